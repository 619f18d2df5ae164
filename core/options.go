package core

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type orchestratorBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	registry        Registry
	breakers        *BreakerSet
	scheduler       TaskScheduler
	eventBus        LifecycleEventBus
	vault           *CredentialVault
	secretProvider  SecretProvider
	resourceStore   ResourceStore
	taskStore       TaskStore
	credentialStore CredentialStore
	planMapStore    PlanMapStore
	auditStore      AuditStore
	metrics         MetricsRecorder
	now             func() time.Time
}

type Option func(*orchestratorBuilder)

func WithLogger(logger Logger) Option {
	return func(b *orchestratorBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *orchestratorBuilder) {
		b.loggerProvider = provider
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *orchestratorBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *orchestratorBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *orchestratorBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *orchestratorBuilder) {
		b.optionsResolver = resolver
	}
}

func WithRegistry(registry Registry) Option {
	return func(b *orchestratorBuilder) {
		b.registry = registry
	}
}

func WithBreakerSet(breakers *BreakerSet) Option {
	return func(b *orchestratorBuilder) {
		b.breakers = breakers
	}
}

func WithScheduler(scheduler TaskScheduler) Option {
	return func(b *orchestratorBuilder) {
		b.scheduler = scheduler
	}
}

func WithEventBus(bus LifecycleEventBus) Option {
	return func(b *orchestratorBuilder) {
		b.eventBus = bus
	}
}

func WithCredentialVault(vault *CredentialVault) Option {
	return func(b *orchestratorBuilder) {
		b.vault = vault
	}
}

func WithSecretProvider(provider SecretProvider) Option {
	return func(b *orchestratorBuilder) {
		b.secretProvider = provider
	}
}

func WithResourceStore(store ResourceStore) Option {
	return func(b *orchestratorBuilder) {
		b.resourceStore = store
	}
}

func WithTaskStore(store TaskStore) Option {
	return func(b *orchestratorBuilder) {
		b.taskStore = store
	}
}

func WithCredentialStore(store CredentialStore) Option {
	return func(b *orchestratorBuilder) {
		b.credentialStore = store
	}
}

func WithPlanMapStore(store PlanMapStore) Option {
	return func(b *orchestratorBuilder) {
		b.planMapStore = store
	}
}

func WithAuditStore(store AuditStore) Option {
	return func(b *orchestratorBuilder) {
		b.auditStore = store
	}
}

func WithStoreProvider(provider StoreProvider) Option {
	return func(b *orchestratorBuilder) {
		if provider == nil {
			return
		}
		b.resourceStore = provider.ResourceStore()
		b.taskStore = provider.TaskStore()
		b.credentialStore = provider.CredentialStore()
		b.planMapStore = provider.PlanMapStore()
		b.auditStore = provider.AuditStore()
	}
}

func WithMetricsRecorder(metrics MetricsRecorder) Option {
	return func(b *orchestratorBuilder) {
		b.metrics = metrics
	}
}

func WithNow(now func() time.Time) Option {
	return func(b *orchestratorBuilder) {
		if now != nil {
			b.now = now
		}
	}
}

func defaultOrchestratorBuilder(cfg Config) orchestratorBuilder {
	return orchestratorBuilder{runtimeConfig: cfg}
}

type staticRawConfigLoader struct{}

func (staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	return map[string]any{}, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || cfg.ServiceName != "" {
		layer["service_name"] = cfg.ServiceName
	}

	poll := map[string]any{}
	if includeZero || cfg.Poll.BaseDelay > 0 {
		poll["base_delay"] = cfg.Poll.BaseDelay
	}
	if includeZero || cfg.Poll.MaxDelay > 0 {
		poll["max_delay"] = cfg.Poll.MaxDelay
	}
	if includeZero || cfg.Poll.JitterRatio > 0 {
		poll["jitter_ratio"] = cfg.Poll.JitterRatio
	}
	if includeZero || cfg.Poll.MaxAttempts > 0 {
		poll["max_attempts"] = cfg.Poll.MaxAttempts
	}
	if len(poll) > 0 {
		layer["poll"] = poll
	}

	breaker := map[string]any{}
	if includeZero || cfg.Breaker.WindowSize > 0 {
		breaker["window_size"] = cfg.Breaker.WindowSize
	}
	if includeZero || cfg.Breaker.MinSamples > 0 {
		breaker["min_samples"] = cfg.Breaker.MinSamples
	}
	if includeZero || cfg.Breaker.FailureRatio > 0 {
		breaker["failure_ratio"] = cfg.Breaker.FailureRatio
	}
	if includeZero || cfg.Breaker.Cooldown > 0 {
		breaker["cooldown"] = cfg.Breaker.Cooldown
	}
	if len(breaker) > 0 {
		layer["breaker"] = breaker
	}

	if includeZero || cfg.HashProviderRefs {
		layer["hash_provider_refs"] = cfg.HashProviderRefs
	}
	return layer
}
