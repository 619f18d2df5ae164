package core

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("core: circuit open")

type BreakerState string

const (
	BreakerStateClosed   BreakerState = "closed"
	BreakerStateOpen     BreakerState = "open"
	BreakerStateHalfOpen BreakerState = "half_open"
)

type BreakerConfig struct {
	WindowSize   int           `koanf:"window_size" mapstructure:"window_size"`
	MinSamples   int           `koanf:"min_samples" mapstructure:"min_samples"`
	FailureRatio float64       `koanf:"failure_ratio" mapstructure:"failure_ratio"`
	Cooldown     time.Duration `koanf:"cooldown" mapstructure:"cooldown"`
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.WindowSize <= 0 {
		c.WindowSize = defaultBreakerWindowSize
	}
	if c.MinSamples <= 0 {
		c.MinSamples = defaultBreakerMinSamples
	}
	if c.FailureRatio <= 0 || c.FailureRatio > 1 {
		c.FailureRatio = defaultBreakerFailureRatio
	}
	if c.Cooldown <= 0 {
		c.Cooldown = defaultBreakerCooldown
	}
	return c
}

// CircuitBreaker gates outbound calls for one driver. Failures are counted in
// a sliding window of recent call outcomes; once the failure ratio crosses
// the threshold the breaker opens and calls fail fast until the cooldown
// elapses, after which a single trial call decides whether to close again.
type CircuitBreaker struct {
	mu            sync.Mutex
	config        BreakerConfig
	state         BreakerState
	outcomes      []bool
	openedAt      time.Time
	trialInFlight bool
	Now           func() time.Time
}

func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		config: config.withDefaults(),
		state:  BreakerStateClosed,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked(b.now())
	return b.state
}

// Allow reports whether a call may proceed. In half-open state only one trial
// call is admitted at a time.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	b.maybeHalfOpenLocked(now)

	switch b.state {
	case BreakerStateClosed:
		return nil
	case BreakerStateHalfOpen:
		if b.trialInFlight {
			return ErrCircuitOpen
		}
		b.trialInFlight = true
		return nil
	default:
		return ErrCircuitOpen
	}
}

func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerStateHalfOpen {
		b.state = BreakerStateClosed
		b.outcomes = b.outcomes[:0]
		b.trialInFlight = false
		return
	}
	b.recordLocked(true)
}

func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	if b.state == BreakerStateHalfOpen {
		b.state = BreakerStateOpen
		b.openedAt = now
		b.trialInFlight = false
		return
	}
	b.recordLocked(false)
	if b.shouldOpenLocked() {
		b.state = BreakerStateOpen
		b.openedAt = now
		b.outcomes = b.outcomes[:0]
	}
}

func (b *CircuitBreaker) recordLocked(success bool) {
	b.outcomes = append(b.outcomes, success)
	if len(b.outcomes) > b.config.WindowSize {
		b.outcomes = b.outcomes[len(b.outcomes)-b.config.WindowSize:]
	}
}

func (b *CircuitBreaker) shouldOpenLocked() bool {
	if len(b.outcomes) < b.config.MinSamples {
		return false
	}
	failures := 0
	for _, success := range b.outcomes {
		if !success {
			failures++
		}
	}
	return float64(failures)/float64(len(b.outcomes)) >= b.config.FailureRatio
}

func (b *CircuitBreaker) maybeHalfOpenLocked(now time.Time) {
	if b.state == BreakerStateOpen && now.Sub(b.openedAt) >= b.config.Cooldown {
		b.state = BreakerStateHalfOpen
		b.trialInFlight = false
	}
}

func (b *CircuitBreaker) now() time.Time {
	if b != nil && b.Now != nil {
		return b.Now().UTC()
	}
	return time.Now().UTC()
}

// BreakerSet holds one independent breaker per driver identifier so a failing
// provider cannot degrade unrelated ones.
type BreakerSet struct {
	mu       sync.Mutex
	config   BreakerConfig
	breakers map[string]*CircuitBreaker
	Now      func() time.Time
}

func NewBreakerSet(config BreakerConfig) *BreakerSet {
	return &BreakerSet{
		config:   config.withDefaults(),
		breakers: map[string]*CircuitBreaker{},
	}
}

func (s *BreakerSet) For(driverID string) *CircuitBreaker {
	id := strings.TrimSpace(driverID)
	s.mu.Lock()
	defer s.mu.Unlock()
	breaker, ok := s.breakers[id]
	if !ok {
		breaker = NewCircuitBreaker(s.config)
		if s.Now != nil {
			breaker.Now = s.Now
		}
		s.breakers[id] = breaker
	}
	return breaker
}

// Call wraps one outbound driver call with the driver's breaker. The breaker
// gates only network attempts; local state machine work never passes through
// here.
func (s *BreakerSet) Call(driverID string, fn func() error) error {
	if s == nil {
		return fmt.Errorf("core: breaker set is not configured")
	}
	breaker := s.For(driverID)
	if err := breaker.Allow(); err != nil {
		return fmt.Errorf("%w: driver %s", ErrCircuitOpen, strings.TrimSpace(driverID))
	}
	if err := fn(); err != nil {
		breaker.RecordFailure()
		return err
	}
	breaker.RecordSuccess()
	return nil
}
