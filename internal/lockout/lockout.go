// Package lockout implements the per-subject sliding-window lockout (C3):
// both the TACACS user axis and the device axis share the same algorithm,
// parameterized only by key prefix, per spec.md §4.2.
package lockout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"naas/internal/store"
)

const (
	// DefaultThreshold is the failure count that trips a lockout.
	DefaultThreshold = 10
	// DefaultWindow is the sliding window spec.md §3 requires.
	DefaultWindow = 10 * time.Minute
)

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Service implements the check(subject, record_failure) -> locked operation
// against a Redis sorted set. The tacacs_auth_lockout and device_lockout
// call sites each use their own Service, built by NewUserLockout
// (UserFailuresKey) or NewDeviceLockout (DeviceFailuresKey); the algorithm
// is the same and only the key function differs.
type Service struct {
	rdb       *redis.Client
	logger    *slog.Logger
	threshold int64
	window    time.Duration
	keyFn     func(subject string) string
	now       Clock
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithThreshold(n int) Option {
	return func(s *Service) { s.threshold = int64(n) }
}

func WithWindow(d time.Duration) Option {
	return func(s *Service) { s.window = d }
}

func WithClock(now Clock) Option {
	return func(s *Service) { s.now = now }
}

// NewUserLockout returns a Service operating over naas_failures_<user> keys
// — the TACACS auth lockout axis.
func NewUserLockout(rdb *redis.Client, opts ...Option) *Service {
	return newService(rdb, store.UserFailuresKey, opts...)
}

// NewDeviceLockout returns a Service operating over
// naas_failures_device_<ip> keys.
func NewDeviceLockout(rdb *redis.Client, opts ...Option) *Service {
	return newService(rdb, store.DeviceFailuresKey, opts...)
}

func newService(rdb *redis.Client, keyFn func(string) string, opts ...Option) *Service {
	s := &Service{
		rdb:       rdb,
		threshold: DefaultThreshold,
		window:    DefaultWindow,
		keyFn:     keyFn,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check implements spec.md §4.2's prune-then-add-then-count algorithm.
// Pruning, the optional failure record, and the cardinality read all run
// inside a single pipeline so that a concurrent recorder can never have its
// just-added member erased by another caller's prune (spec.md §5).
func (s *Service) Check(ctx context.Context, subject string, recordFailure bool) (bool, error) {
	if subject == "" {
		return false, fmt.Errorf("lockout: empty subject")
	}

	key := s.keyFn(subject)
	now := s.now()
	windowStart := now.Add(-s.window)

	pipe := s.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", windowStart.Unix()))
	if recordFailure {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.Unix()), Member: uuid.NewString()})
		pipe.Expire(ctx, key, s.window)
	}
	card := pipe.ZCard(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("lockout: pipeline exec: %w", err)
	}

	count, err := card.Result()
	if err != nil {
		return false, fmt.Errorf("lockout: reading cardinality: %w", err)
	}

	return count >= s.threshold, nil
}

// Count returns the current cardinality of subject's window without
// mutating it — used by callers that need the failure_count for an audit
// event after Check has already recorded the failure.
func (s *Service) Count(ctx context.Context, subject string) (int64, error) {
	return s.rdb.ZCard(ctx, s.keyFn(subject)).Result()
}
