// Package queue implements the FIFO job queue (C5): enqueue/fetch/cancel,
// the four terminal/non-terminal registries, and TTL-based cleanup, per
// spec.md §4.4.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"naas/internal/store"
)

// ErrNotFound is returned by Fetch-dependent operations when a job id has
// no record.
var ErrNotFound = errors.New("queue: job not found")

// ErrTerminal is returned by Cancel when the job has already reached a
// terminal state.
var ErrTerminal = errors.New("queue: job already in a terminal state")

const (
	// DefaultSuccessTTL is spec.md §4.4's JOB_TTL_SUCCESS.
	DefaultSuccessTTL = 24 * time.Hour
	// DefaultFailedTTL is spec.md §4.4's JOB_TTL_FAILED.
	DefaultFailedTTL = 7 * 24 * time.Hour
)

// Queue is the Redis-backed FIFO: an LPUSH/BRPOP list for dequeue order,
// one JSON-serialized hash-equivalent string per job, and four sorted-set
// registries (score = the timestamp of the job's last transition) so that
// GET /v1/jobs can paginate each registry in stable order.
type Queue struct {
	rdb        *redis.Client
	successTTL time.Duration
	failedTTL  time.Duration
	now        func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

func WithSuccessTTL(d time.Duration) Option {
	return func(q *Queue) { q.successTTL = d }
}

func WithFailedTTL(d time.Duration) Option {
	return func(q *Queue) { q.failedTTL = d }
}

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New constructs a Queue.
func New(rdb *redis.Client, opts ...Option) *Queue {
	q := &Queue{
		rdb:        rdb,
		successTTL: DefaultSuccessTTL,
		failedTTL:  DefaultFailedTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func registryKey(s State) string {
	switch s {
	case StateQueued:
		return store.RegistryQueued
	case StateStarted:
		return store.RegistryStarted
	case StateFinished:
		return store.RegistryFinished
	case StateFailed:
		return store.RegistryFailed
	default:
		return ""
	}
}

// Enqueue atomically writes the job record, adds it to the queued
// registry, and pushes it onto the dequeue list: either all three exist
// after this call or none do (spec.md §4.4).
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	job.State = StateQueued
	if job.CreatedAt.IsZero() {
		job.CreatedAt = q.now()
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job %s: %w", job.ID, err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, store.JobKey(job.ID), data, 0)
	pipe.ZAdd(ctx, store.RegistryQueued, redis.Z{Score: float64(job.CreatedAt.UnixNano()), Member: job.ID})
	pipe.LPush(ctx, store.QueueListKey(), job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", job.ID, err)
	}
	return nil
}

// Exists reports whether a job record already exists for id, used by C6's
// duplicate-request-id check (spec.md §4.5 step 4).
func (q *Queue) Exists(ctx context.Context, id string) (bool, error) {
	n, err := q.rdb.Exists(ctx, store.JobKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("queue: checking existence of %s: %w", id, err)
	}
	return n > 0, nil
}

// Fetch returns the job record for id, or ErrNotFound.
func (q *Queue) Fetch(ctx context.Context, id string) (*Job, error) {
	data, err := q.rdb.Get(ctx, store.JobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("queue: fetching %s: %w", id, err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("queue: unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

// Pop blocks up to timeout for the next job id on the FIFO list. It
// returns ("", nil) on a timeout with no job available, so callers can
// loop and re-check ctx.Done() between polls.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := q.rdb.BRPop(ctx, timeout, store.QueueListKey()).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("queue: pop: %w", err)
	}
	// BRPop returns [key, value]; res[1] is the job id.
	return res[1], nil
}

// Start transitions a job from Queued to Started, moving its registry
// membership, unless a concurrent Cancel has already moved it to
// Cancelled — in which case Start reports that so the worker can skip it
// without opening an SSH session (spec.md §5 "Cancellation").
func (q *Queue) Start(ctx context.Context, id string) (*Job, error) {
	job, err := q.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.State == StateCancelled {
		return job, nil
	}
	if job.State != StateQueued {
		return job, fmt.Errorf("queue: job %s not in queued state (is %s)", id, job.State)
	}

	now := q.now()
	job.State = StateStarted
	job.StartedAt = &now
	if err := q.moveRegistry(ctx, job, StateQueued, 0); err != nil {
		return nil, err
	}
	return job, nil
}

// Finish transitions a job to Finished, the normal shape for both a
// successful command run and a worker-handled error (circuit-open,
// authentication failure) where the worker ran to completion without
// crashing (spec.md §4.6, §7).
func (q *Queue) Finish(ctx context.Context, id string, result map[string]string, errMsg *string) (*Job, error) {
	job, err := q.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	now := q.now()
	job.State = StateFinished
	job.EndedAt = &now
	job.Result = result
	job.Error = errMsg
	if err := q.moveRegistry(ctx, job, StateStarted, q.successTTL); err != nil {
		return nil, err
	}
	return job, nil
}

// Fail transitions a job to Failed: retries were exhausted and the worker
// never produced a usable result (spec.md §7).
func (q *Queue) Fail(ctx context.Context, id string, errMsg string) (*Job, error) {
	job, err := q.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	now := q.now()
	job.State = StateFailed
	job.EndedAt = &now
	job.Error = &errMsg
	if err := q.moveRegistry(ctx, job, StateStarted, q.failedTTL); err != nil {
		return nil, err
	}
	return job, nil
}

// Cancel transitions a non-terminal job to Cancelled. Per spec.md §5,
// cancellation is best-effort: it only suppresses a *new* start, it never
// aborts an SSH session a worker has already opened.
func (q *Queue) Cancel(ctx context.Context, id string) (*Job, error) {
	job, err := q.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.State.Terminal() {
		return job, ErrTerminal
	}

	now := q.now()
	fromRegistry := registryKey(job.State)
	job.State = StateCancelled
	job.EndedAt = &now

	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("queue: marshal job %s: %w", id, err)
	}

	pipe := q.rdb.TxPipeline()
	if fromRegistry != "" {
		pipe.ZRem(ctx, fromRegistry, id)
	}
	pipe.Set(ctx, store.JobKey(id), data, q.failedTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("queue: cancel %s: %w", id, err)
	}
	return job, nil
}

// moveRegistry persists job's updated record, removes it from fromState's
// registry (a no-op if the job wasn't a member, e.g. it skipped Started
// because it was cancelled before dequeue), and adds it to the registry
// matching job.State. ttl of 0 leaves the key without an expiry.
func (q *Queue) moveRegistry(ctx context.Context, job *Job, fromState State, ttl time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job %s: %w", job.ID, err)
	}

	pipe := q.rdb.TxPipeline()
	if from := registryKey(fromState); from != "" {
		pipe.ZRem(ctx, from, job.ID)
	}
	if to := registryKey(job.State); to != "" {
		pipe.ZAdd(ctx, to, redis.Z{Score: float64(q.now().UnixNano()), Member: job.ID})
	}
	pipe.Set(ctx, store.JobKey(job.ID), data, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue: updating job %s: %w", job.ID, err)
	}
	return nil
}

// Registry names accepted by Depth and IDsInRegistry, matching spec.md
// §4.4's four registries.
const (
	RegistryQueued   = "queued"
	RegistryStarted  = "started"
	RegistryFinished = "finished"
	RegistryFailed   = "failed"
)

var registryKeysByName = map[string]string{
	RegistryQueued:   store.RegistryQueued,
	RegistryStarted:  store.RegistryStarted,
	RegistryFinished: store.RegistryFinished,
	RegistryFailed:   store.RegistryFailed,
}

// RegistryNames is the enumeration order GET /v1/jobs walks when no status
// filter is given: queued, then started, then finished, then failed.
var RegistryNames = []string{RegistryQueued, RegistryStarted, RegistryFinished, RegistryFailed}

// Depth returns the number of members currently in a named registry, used
// by the healthcheck (the queued registry) and by GET /v1/jobs.
func (q *Queue) Depth(ctx context.Context, registry string) (int64, error) {
	key, ok := registryKeysByName[registry]
	if !ok {
		return 0, fmt.Errorf("queue: unknown registry %q", registry)
	}
	return q.rdb.ZCard(ctx, key).Result()
}

// IDsInRegistry returns up to length job ids from registry starting at
// offset, oldest transition first.
func (q *Queue) IDsInRegistry(ctx context.Context, registry string, offset, length int64) ([]string, error) {
	key, ok := registryKeysByName[registry]
	if !ok {
		return nil, fmt.Errorf("queue: unknown registry %q", registry)
	}
	if length <= 0 {
		return nil, nil
	}
	return q.rdb.ZRange(ctx, key, offset, offset+length-1).Result()
}
