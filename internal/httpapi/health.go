package httpapi

import (
	"net/http"

	"naas/internal/platform/httputil"
	"naas/internal/queue"
)

const (
	statusOK        = "ok"
	statusDegraded  = "degraded"
	statusNoWorkers = "no_workers"
)

// HandleHealth implements GET /healthcheck (and GET /): overall status
// plus per-component sub-status (spec.md §4.7). Overall degrades to
// "degraded" when the KV store is unreachable, and to "no_workers" when
// no worker is configured — degraded wins when both hold.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	reachable := h.store.Health(ctx) == nil

	depth, err := h.queue.Depth(ctx, queue.RegistryQueued)
	if err != nil {
		depth = -1
	}

	active := 0
	if h.workers != nil {
		active = h.workers.ActiveCount()
	}

	status := statusOK
	switch {
	case !reachable:
		status = statusDegraded
	case h.workerCount == 0:
		status = statusNoWorkers
	}

	resp := healthResponse{
		Base:   httputil.NewBase(),
		Status: status,
		Components: healthComponents{
			KV:    kvHealth{Reachable: reachable},
			Queue: queueHealth{Depth: depth},
			Workers: workersHealth{
				Configured: h.workerCount,
				Active:     active,
			},
		},
	}

	code := http.StatusOK
	if status != statusOK {
		code = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, code, resp)
}
