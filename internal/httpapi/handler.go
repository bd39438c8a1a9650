// Package httpapi implements C6 (admission), C8 (read/cancel), and the
// healthcheck/OpenAPI/metrics endpoints spec.md §6 names, wired onto
// chi following the teacher's handler-construction idiom.
package httpapi

import (
	"context"
	"log/slog"

	"naas/internal/breaker"
	"naas/internal/credentials"
	"naas/internal/lockout"
	"naas/internal/platform/metrics"
	"naas/internal/queue"
)

// SaltStore is the subset of internal/store.Store the handler needs for
// both the credential salt and the KV-reachability healthcheck.
type SaltStore interface {
	credentials.SaltSource
	Health(ctx context.Context) error
}

// WorkerCensus reports how many workers are currently running a job, for
// the healthcheck (spec.md §4.7). The configured worker count is passed to
// New separately.
type WorkerCensus interface {
	ActiveCount() int
}

// Handler wires every NAAS HTTP route to its collaborators.
type Handler struct {
	store         SaltStore
	queue         *queue.Queue
	breaker       *breaker.Breaker
	userLockout   *lockout.Service
	deviceLockout *lockout.Service
	workers       WorkerCensus
	workerCount   int
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

// New constructs a Handler.
func New(
	store SaltStore,
	q *queue.Queue,
	cb *breaker.Breaker,
	userLockout, deviceLockout *lockout.Service,
	workers WorkerCensus,
	workerCount int,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Handler {
	return &Handler{
		store:         store,
		queue:         q,
		breaker:       cb,
		userLockout:   userLockout,
		deviceLockout: deviceLockout,
		workers:       workers,
		workerCount:   workerCount,
		logger:        logger,
		metrics:       m,
	}
}
