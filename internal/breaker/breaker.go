// Package breaker tracks per-key downstream health and short-circuits calls
// to a degraded key. It wraps the retry layer, not the reverse: retries absorb
// transient blips inside one call, circuit state reflects sustained health.
package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Status string

const (
	StatusClosed   Status = "CLOSED"
	StatusOpen     Status = "OPEN"
	StatusHalfOpen Status = "HALF_OPEN"
)

type Config struct {
	FailureThreshold int
	SuccessThreshold int
	ResetTimeout     time.Duration
	Cooldown         time.Duration
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 8
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 2
	}
	if c.ResetTimeout == 0 {
		c.ResetTimeout = 120 * time.Second
	}
	if c.Cooldown == 0 {
		c.Cooldown = 180 * time.Second
	}
	return c
}

// OpenError is returned without invoking the operation while a key is open.
type OpenError struct {
	Key       string
	Remaining time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit open, %d seconds remaining", int(e.Remaining.Seconds()))
}

// IsOpen reports whether err is a circuit rejection.
func IsOpen(err error) bool {
	_, ok := err.(*OpenError)
	return ok
}

type monitor struct {
	status        Status
	failures      int
	successes     int
	lastFailure   time.Time
	lastSuccess   time.Time
	cooldownStart time.Time
}

// Monitor is a read-only snapshot of one key's state.
type Monitor struct {
	Key         string    `json:"key"`
	Status      Status    `json:"status"`
	Failures    int       `json:"failures"`
	Successes   int       `json:"successes"`
	LastFailure time.Time `json:"last_failure,omitzero"`
	LastSuccess time.Time `json:"last_success,omitzero"`
}

type Breaker struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	monitors map[string]*monitor

	// onOpen fires outside the lock when a key transitions to OPEN.
	onOpen func(key string, remaining time.Duration)
}

func New(cfg Config, logger *zerolog.Logger) *Breaker {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "breaker").Logger()
	}
	return &Breaker{
		cfg:      cfg.withDefaults(),
		logger:   base,
		now:      time.Now,
		monitors: make(map[string]*monitor),
	}
}

// OnOpen registers a hook invoked whenever a key opens.
func (b *Breaker) OnOpen(fn func(key string, remaining time.Duration)) {
	b.onOpen = fn
}

// Execute gates op behind the key's circuit state.
func (b *Breaker) Execute(ctx context.Context, key string, op func(context.Context) error) error {
	if err := b.allow(key); err != nil {
		return err
	}

	err := op(ctx)
	if err != nil {
		b.recordFailure(key)
		return err
	}
	b.recordSuccess(key)
	return nil
}

func (b *Breaker) allow(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := b.get(key)
	if m.status != StatusOpen {
		return nil
	}

	elapsed := b.now().Sub(m.lastFailure)
	if elapsed >= b.cfg.ResetTimeout {
		m.status = StatusHalfOpen
		m.successes = 0
		b.logger.Info().Str("key", key).Msg("circuit half-open, probing")
		return nil
	}

	return &OpenError{Key: key, Remaining: b.cfg.ResetTimeout - elapsed}
}

func (b *Breaker) recordSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := b.get(key)
	m.lastSuccess = b.now()

	switch m.status {
	case StatusClosed:
		// Gradual recovery rather than a hard reset.
		if m.failures > 0 {
			m.failures--
		}
	case StatusHalfOpen:
		m.successes++
		if m.successes >= b.cfg.SuccessThreshold {
			m.status = StatusClosed
			m.failures = 0
			m.cooldownStart = time.Time{}
			b.logger.Info().Str("key", key).Msg("circuit closed")
		}
	}
}

func (b *Breaker) recordFailure(key string) {
	b.mu.Lock()

	m := b.get(key)
	now := b.now()
	m.failures++
	m.lastFailure = now
	if m.status == StatusHalfOpen {
		m.successes = 0
	}

	var opened time.Duration
	if m.failures >= b.cfg.FailureThreshold &&
		(m.cooldownStart.IsZero() || now.Sub(m.cooldownStart) >= b.cfg.Cooldown) {
		m.status = StatusOpen
		m.cooldownStart = now
		opened = b.cfg.ResetTimeout
		b.logger.Warn().Str("key", key).Int("failures", m.failures).Msg("circuit opened")
	}
	hook := b.onOpen
	b.mu.Unlock()

	if opened > 0 && hook != nil {
		hook(key, opened)
	}
}

// get returns the monitor for key, creating a CLOSED one on first access.
// Caller must hold b.mu.
func (b *Breaker) get(key string) *monitor {
	m, ok := b.monitors[key]
	if !ok {
		m = &monitor{status: StatusClosed}
		b.monitors[key] = m
	}
	return m
}

// Status reports the current state for a key without mutating it.
func (b *Breaker) Status(key string) Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.monitors[key]; ok {
		return m.status
	}
	return StatusClosed
}

// Reset discards a monitor entirely; the key starts CLOSED on next access.
func (b *Breaker) Reset(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.monitors, key)
}

// Snapshot lists all monitors for the admin status endpoint.
func (b *Breaker) Snapshot() []Monitor {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Monitor, 0, len(b.monitors))
	for key, m := range b.monitors {
		out = append(out, Monitor{
			Key:         key,
			Status:      m.status,
			Failures:    m.failures,
			Successes:   m.successes,
			LastFailure: m.lastFailure,
			LastSuccess: m.lastSuccess,
		})
	}
	return out
}
