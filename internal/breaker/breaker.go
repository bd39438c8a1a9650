// Package breaker implements the per-device circuit breaker (C4): a
// classical closed/open/half-open state machine persisted in C1 so every
// worker converges on the same view, per spec.md §4.3.
package breaker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"naas/internal/store"
)

// State is one of the three breaker states.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

const (
	// DefaultFailMax is spec.md §4.3's fail_max.
	DefaultFailMax = 5
	// DefaultResetTimeout is spec.md §4.3's reset_timeout.
	DefaultResetTimeout = 300 * time.Second
)

// Status is the breaker's current view for a device, returned by Allow and
// usable directly for the naas_circuit_breaker_state gauge.
type Status struct {
	State          State
	Counter        int
	SuccessCounter int
	OpenedAt       time.Time
}

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Breaker reads/writes BreakerState(device_ip) hashes in C1.
type Breaker struct {
	rdb          *redis.Client
	logger       *slog.Logger
	failMax      int
	resetTimeout time.Duration
	now          Clock
}

// Option configures a Breaker.
type Option func(*Breaker)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Breaker) { b.logger = logger }
}

func WithFailMax(n int) Option {
	return func(b *Breaker) { b.failMax = n }
}

func WithResetTimeout(d time.Duration) Option {
	return func(b *Breaker) { b.resetTimeout = d }
}

func WithClock(now Clock) Option {
	return func(b *Breaker) { b.now = now }
}

// New constructs a Breaker.
func New(rdb *redis.Client, opts ...Option) *Breaker {
	b := &Breaker{
		rdb:          rdb,
		failMax:      DefaultFailMax,
		resetTimeout: DefaultResetTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ErrOpen is returned by Allow when the breaker is open and not yet
// eligible for a half-open probe.
var ErrOpen = fmt.Errorf("circuit breaker open")

// Allow reports whether an SSH attempt against ip may proceed. When the
// breaker is open and reset_timeout has elapsed it transitions to
// half-open and lets the caller through as the probe. While the state stays
// half-open, every caller is let through until RecordSuccess or
// RecordFailure settles it.
func (b *Breaker) Allow(ctx context.Context, ip string) (Status, error) {
	status, err := b.read(ctx, ip)
	if err != nil {
		return Status{}, err
	}

	switch status.State {
	case StateClosed:
		return status, nil
	case StateHalfOpen:
		return status, nil
	case StateOpen:
		if b.now().Sub(status.OpenedAt) >= b.resetTimeout {
			status.State = StateHalfOpen
			if err := b.write(ctx, ip, status); err != nil {
				return Status{}, err
			}
			return status, nil
		}
		return status, ErrOpen
	default:
		return status, nil
	}
}

// RecordFailure registers a non-auth connection failure against ip,
// advancing the breaker toward (or back into) the open state. Callers MUST
// NOT call this for authentication failures — spec.md §4.3's routing
// discipline keeps a bad password from tripping the breaker.
func (b *Breaker) RecordFailure(ctx context.Context, ip string) error {
	status, err := b.read(ctx, ip)
	if err != nil {
		return err
	}

	switch status.State {
	case StateHalfOpen:
		status.State = StateOpen
		status.OpenedAt = b.now()
		status.SuccessCounter = 0
		return b.write(ctx, ip, status)
	case StateOpen:
		return nil
	default: // closed
		status.Counter++
		if status.Counter >= b.failMax {
			status.State = StateOpen
			status.OpenedAt = b.now()
			status.SuccessCounter = 0
			if b.logger != nil {
				b.logger.InfoContext(ctx, "circuit.opened", "event_type", "circuit.opened", "ip", ip)
			}
		}
		return b.write(ctx, ip, status)
	}
}

// RecordSuccess registers a successful SSH session against ip. In the
// half-open state this closes the breaker; in the closed state it is a
// no-op (spec.md §4.3 only defines a success_counter for the half-open
// probe, not a closed-state reset).
func (b *Breaker) RecordSuccess(ctx context.Context, ip string) error {
	status, err := b.read(ctx, ip)
	if err != nil {
		return err
	}

	if status.State != StateHalfOpen {
		return nil
	}

	status.State = StateClosed
	status.Counter = 0
	status.SuccessCounter = 0
	status.OpenedAt = time.Time{}
	if b.logger != nil {
		b.logger.InfoContext(ctx, "circuit.closed", "event_type", "circuit.closed", "ip", ip)
	}
	return b.write(ctx, ip, status)
}

func (b *Breaker) read(ctx context.Context, ip string) (Status, error) {
	key := store.BreakerKey(ip)
	fields, err := b.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return Status{}, fmt.Errorf("breaker: reading state for %s: %w", ip, err)
	}
	if len(fields) == 0 {
		return Status{State: StateClosed}, nil
	}

	status := Status{State: State(fields["state"])}
	if status.State == "" {
		status.State = StateClosed
	}
	if v, ok := fields["counter"]; ok {
		status.Counter, _ = strconv.Atoi(v)
	}
	if v, ok := fields["success_counter"]; ok {
		status.SuccessCounter, _ = strconv.Atoi(v)
	}
	if v, ok := fields["opened_at"]; ok && v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			status.OpenedAt = time.Unix(unix, 0)
		}
	}
	return status, nil
}

func (b *Breaker) write(ctx context.Context, ip string, status Status) error {
	key := store.BreakerKey(ip)
	openedAt := ""
	if !status.OpenedAt.IsZero() {
		openedAt = strconv.FormatInt(status.OpenedAt.Unix(), 10)
	}
	if err := b.rdb.HSet(ctx, key, map[string]interface{}{
		"state":           string(status.State),
		"counter":         status.Counter,
		"success_counter": status.SuccessCounter,
		"opened_at":       openedAt,
	}).Err(); err != nil {
		return fmt.Errorf("breaker: writing state for %s: %w", ip, err)
	}
	return nil
}
