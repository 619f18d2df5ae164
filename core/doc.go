// Package core contains the provisioning domain: resource and task entities,
// the lifecycle state machine, the orchestrator, driver contracts, and the
// credential vault. Lower-level adapters must depend on this package; core
// must not depend on driver-specific or transport-specific adapters.
package core
