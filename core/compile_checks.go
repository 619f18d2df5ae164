package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ Registry      = (*DriverRegistry)(nil)
	_ TaskScheduler = (*MemoryScheduler)(nil)
	_ TaskRunner    = (*Orchestrator)(nil)
	_ TaskCompleter = (*Orchestrator)(nil)

	_ LifecycleEventBus = (*MemoryLifecycleBus)(nil)
	_ ConfigProvider    = (*CfgxConfigProvider)(nil)
	_ OptionsResolver   = GoOptionsResolver{}
	_ MetricsRecorder   = NopMetricsRecorder{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
