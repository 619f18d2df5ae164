package sqlstore

import "github.com/goliatone/go-provision/core"

var (
	_ core.ResourceStore          = (*ResourceStore)(nil)
	_ core.TaskStore              = (*TaskStore)(nil)
	_ core.CredentialStore        = (*CredentialStore)(nil)
	_ core.PlanMapStore           = (*PlanMapStore)(nil)
	_ PlanMapSource               = (*PlanMapStore)(nil)
	_ core.PlanMapStore           = (*CachedPlanMapStore)(nil)
	_ core.AuditStore             = (*AuditStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
