package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"naas/internal/audit"
	"naas/internal/credentials"
	"naas/internal/platform/httpmw"
	"naas/internal/platform/httputil"
	"naas/internal/queue"
	"naas/pkg/dErrors"
)

// HandleGetJob implements the C8 read endpoint (spec.md §4.7): GET
// /v1/send_command/{job_id} and /v1/send_config/{job_id} are aliases of
// the same lookup.
func (h *Handler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadOwnedJob(w, r)
	if !ok {
		return
	}

	resp := jobStatusResponse{
		Base:   httputil.NewBase(),
		JobID:  job.ID,
		Status: string(job.State),
	}
	if job.State == queue.StateFinished {
		resp.Results = job.Result
		resp.Error = job.Error
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleCancelJob implements DELETE /v1/jobs/{job_id} (spec.md §4.7
// "Cancellation").
func (h *Handler) HandleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadOwnedJob(w, r)
	if !ok {
		return
	}

	if job.State.Terminal() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "job is already in a terminal state"))
		return
	}

	if _, err := h.queue.Cancel(r.Context(), job.ID); err != nil {
		if errors.Is(err, queue.ErrTerminal) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeConflict, "job is already in a terminal state"))
			return
		}
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "cancelling job"))
		return
	}

	audit.Log(r.Context(), h.logger, "job.cancelled", "request_id", job.ID, "cancelled_by_hash", job.OwnerHash)
	w.WriteHeader(http.StatusNoContent)
}

// loadOwnedJob resolves {job_id}, authenticates the caller, fetches the
// job, and enforces that only the submitting principal may read or cancel
// it (spec.md §4.7 "Ownership").
func (h *Handler) loadOwnedJob(w http.ResponseWriter, r *http.Request) (*queue.Job, bool) {
	raw := chi.URLParam(r, "job_id")
	id, err := uuid.Parse(raw)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "job_id must be a valid UUID"))
		return nil, false
	}

	username, password, ok := httpmw.BasicAuth(r)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "basic auth with non-empty username and password is required"))
		return nil, false
	}

	ctx := r.Context()
	job, err := h.queue.Fetch(ctx, id.String())
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no job with that id"))
			return nil, false
		}
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "fetching job"))
		return nil, false
	}

	callerHash, err := credentials.New(username, password, "").SaltedHash(ctx, h.store)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "computing owner hash"))
		return nil, false
	}
	if !credentials.Equal(callerHash, job.OwnerHash) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "this job belongs to a different principal"))
		return nil, false
	}

	return job, true
}

// HandleListJobs implements GET /v1/jobs (spec.md §4.7 "Listing"):
// pagination across the four registries, optionally filtered to one by
// the status query parameter.
func (h *Handler) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := httpmw.BasicAuth(r); !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "basic auth with non-empty username and password is required"))
		return
	}

	page, perPage, err := parsePagination(r)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnprocessable, err.Error()))
		return
	}

	registries := queue.RegistryNames
	if status := r.URL.Query().Get("status"); status != "" {
		if !isKnownRegistry(status) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnprocessable, "status must be one of: queued, started, finished, failed"))
			return
		}
		registries = []string{status}
	}

	ctx := r.Context()
	var total int64
	for _, reg := range registries {
		depth, err := h.queue.Depth(ctx, reg)
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "computing registry depth"))
			return
		}
		total += depth
	}

	skip := int64((page - 1) * perPage)
	remaining := int64(perPage)
	ids := make([]string, 0, perPage)

	for _, reg := range registries {
		if remaining <= 0 {
			break
		}
		depth, err := h.queue.Depth(ctx, reg)
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "computing registry depth"))
			return
		}
		if skip >= depth {
			skip -= depth
			continue
		}
		got, err := h.queue.IDsInRegistry(ctx, reg, skip, remaining)
		if err != nil {
			httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "listing registry"))
			return
		}
		ids = append(ids, got...)
		remaining -= int64(len(got))
		skip = 0
	}

	summaries := make([]jobSummary, 0, len(ids))
	for _, id := range ids {
		job, err := h.queue.Fetch(ctx, id)
		if err != nil {
			continue // raced with expiry/cancellation between the registry read and the fetch
		}
		summaries = append(summaries, jobSummary{
			JobID:     job.ID,
			Status:    string(job.State),
			CreatedAt: job.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	httputil.WriteJSON(w, http.StatusOK, jobListResponse{
		Base:       httputil.NewBase(),
		Jobs:       summaries,
		Page:       page,
		PerPage:    perPage,
		TotalItems: int(total),
	})
}

const (
	defaultPerPage = 50
	maxPerPage     = 500
)

func parsePagination(r *http.Request) (page, perPage int, err error) {
	page = 1
	perPage = defaultPerPage

	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, errors.New("page must be a positive integer")
		}
	}
	if raw := r.URL.Query().Get("per_page"); raw != "" {
		perPage, err = strconv.Atoi(raw)
		if err != nil || perPage < 1 || perPage > maxPerPage {
			return 0, 0, errors.New("per_page must be between 1 and 500")
		}
	}
	return page, perPage, nil
}

func isKnownRegistry(status string) bool {
	for _, r := range queue.RegistryNames {
		if r == status {
			return true
		}
	}
	return false
}
