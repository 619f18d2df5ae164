package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultPollBaseDelay   = 2 * time.Second
	defaultPollMaxDelay    = 5 * time.Minute
	defaultPollJitterRatio = 0.5
	defaultPollMaxAttempts = 10

	defaultBreakerWindowSize   = 20
	defaultBreakerMinSamples   = 5
	defaultBreakerFailureRatio = 0.5
	defaultBreakerCooldown     = 30 * time.Second
)

type PollConfig struct {
	BaseDelay   time.Duration `koanf:"base_delay" mapstructure:"base_delay"`
	MaxDelay    time.Duration `koanf:"max_delay" mapstructure:"max_delay"`
	JitterRatio float64       `koanf:"jitter_ratio" mapstructure:"jitter_ratio"`
	MaxAttempts int           `koanf:"max_attempts" mapstructure:"max_attempts"`
}

type Config struct {
	ServiceName      string        `koanf:"service_name" mapstructure:"service_name"`
	Poll             PollConfig    `koanf:"poll" mapstructure:"poll"`
	Breaker          BreakerConfig `koanf:"breaker" mapstructure:"breaker"`
	HashProviderRefs bool          `koanf:"hash_provider_refs" mapstructure:"hash_provider_refs"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "provision",
		Poll: PollConfig{
			BaseDelay:   defaultPollBaseDelay,
			MaxDelay:    defaultPollMaxDelay,
			JitterRatio: defaultPollJitterRatio,
			MaxAttempts: defaultPollMaxAttempts,
		},
		Breaker: BreakerConfig{
			WindowSize:   defaultBreakerWindowSize,
			MinSamples:   defaultBreakerMinSamples,
			FailureRatio: defaultBreakerFailureRatio,
			Cooldown:     defaultBreakerCooldown,
		},
		HashProviderRefs: true,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Poll.BaseDelay < 0 {
		return fmt.Errorf("core: poll.base_delay must be >= 0")
	}
	if c.Poll.MaxDelay < 0 {
		return fmt.Errorf("core: poll.max_delay must be >= 0")
	}
	if c.Poll.JitterRatio < 0 || c.Poll.JitterRatio > 1 {
		return fmt.Errorf("core: poll.jitter_ratio must be within [0, 1]")
	}
	if c.Poll.MaxAttempts < 0 {
		return fmt.Errorf("core: poll.max_attempts must be >= 0")
	}
	if c.Breaker.FailureRatio < 0 || c.Breaker.FailureRatio > 1 {
		return fmt.Errorf("core: breaker.failure_ratio must be within [0, 1]")
	}
	return nil
}

func (c PollConfig) withDefaults() PollConfig {
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaultPollBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultPollMaxDelay
	}
	if c.JitterRatio < 0 || c.JitterRatio > 1 {
		c.JitterRatio = defaultPollJitterRatio
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultPollMaxAttempts
	}
	return c
}
