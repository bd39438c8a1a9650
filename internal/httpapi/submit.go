package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"naas/internal/audit"
	"naas/internal/credentials"
	"naas/internal/driver"
	"naas/internal/platform/httpmw"
	"naas/internal/platform/httputil"
	"naas/internal/queue"
	"naas/pkg/dErrors"
	"naas/pkg/requestcontext"
)

// HandleSubmitCommand implements POST /v1/send_command (spec.md §4.5).
func (h *Handler) HandleSubmitCommand(w http.ResponseWriter, r *http.Request) {
	username, password, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if !h.checkUserLockout(w, r, username) {
		return
	}

	var req commandRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	platform, usedAlias := req.resolvePlatform()
	if usedAlias {
		h.logger.WarnContext(r.Context(), "device_type is deprecated, use platform", "request_id", requestcontext.RequestID(r.Context()))
	}
	if !h.checkPlatform(w, r, platform) {
		return
	}

	job := &queue.Job{Command: ptrCommandJob(req.toCommandJob(platform))}
	h.submit(w, r, username, password, req.Enable, job)
}

// HandleSubmitConfig implements POST /v1/send_config.
func (h *Handler) HandleSubmitConfig(w http.ResponseWriter, r *http.Request) {
	username, password, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if !h.checkUserLockout(w, r, username) {
		return
	}

	var req configRequest
	if err := Decode(r, &req); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, err.Error()))
		return
	}
	// The embedded commandRequest marks Commands as required; when the
	// canonical config field is sent, its lines are what get validated.
	if len(req.Config) > 0 {
		req.Commands = req.Config
	}
	if errs := Validate(&req); len(errs) > 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnprocessable, errs[0].Field+": "+errs[0].Message))
		return
	}

	platform, usedAlias := req.resolvePlatform()
	if usedAlias {
		h.logger.WarnContext(r.Context(), "device_type is deprecated, use platform", "request_id", requestcontext.RequestID(r.Context()))
	}
	if !h.checkPlatform(w, r, platform) {
		return
	}

	lines := req.resolveLines()
	if len(lines) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnprocessable, "config or commands must be a non-empty list"))
		return
	}

	cfg := req.toConfigJob(platform, lines)
	job := &queue.Job{Config: &cfg}
	h.submit(w, r, username, password, req.Enable, job)
}

// authenticate implements spec.md §4.5 step 1.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (username, password string, ok bool) {
	username, password, ok = httpmw.BasicAuth(r)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "basic auth with non-empty username and password is required"))
		return "", "", false
	}
	return username, password, true
}

// checkUserLockout implements spec.md §4.5 step 2. It runs immediately
// after auth and ahead of any payload decoding/validation so a locked-out
// user gets LockedOut (403) rather than a validation error for a malformed
// body, matching the admission order the original's valid_post decorator
// enforces (has_auth -> locked_out -> is_json -> ...).
func (h *Handler) checkUserLockout(w http.ResponseWriter, r *http.Request, username string) bool {
	locked, err := h.userLockout.Check(r.Context(), username, false)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "checking user lockout"))
		return false
	}
	if locked {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "too many recent authentication failures for this user"))
		return false
	}
	return true
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := Decode(r, dst); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, err.Error()))
		return false
	}
	if errs := Validate(dst); len(errs) > 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnprocessable, errs[0].Field+": "+errs[0].Message))
		return false
	}
	return true
}

func (h *Handler) checkPlatform(w http.ResponseWriter, r *http.Request, platform string) bool {
	if platform == "" || !driver.IsRegistered(platform) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnprocessable, "platform must be one of the registered driver types"))
		return false
	}
	return true
}

// submit implements spec.md §4.5 steps 4-9 common to both payload kinds.
// Steps 1 (auth) and 2 (user lockout) already ran in the caller before the
// payload was even decoded.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request, username, password, enable string, job *queue.Job) {
	ctx := r.Context()

	device := job.Device()

	jobID, err := h.resolveJobID(r)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, err.Error()))
		return
	}
	exists, err := h.queue.Exists(ctx, jobID)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "checking request id"))
		return
	}
	if exists {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "duplicate X-Request-ID"))
		return
	}

	devLocked, err := h.deviceLockout.Check(ctx, device.IP, false)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "checking device lockout"))
		return
	}
	if devLocked {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "too many recent failures for this device"))
		return
	}

	creds := credentials.New(username, password, enable)
	ownerHash, err := creds.SaltedHash(ctx, h.store)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "computing owner hash"))
		return
	}

	job.ID = jobID
	job.Credentials = creds
	job.OwnerHash = ownerHash

	if err := h.queue.Enqueue(ctx, job); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "enqueueing job"))
		return
	}

	audit.Log(ctx, h.logger, "job.submitted",
		"ip", device.IP,
		"platform", device.Platform,
		"port", device.Port,
		"command_count", len(device.Commands),
		"user_hash", ownerHash,
		"request_id", jobID,
	)

	w.Header().Set("X-Request-ID", jobID)
	httputil.WriteJSON(w, http.StatusAccepted, submitResponse{Base: httputil.NewBase(), JobID: jobID})
}

// resolveJobID implements spec.md §4.5 step 4.
func (h *Handler) resolveJobID(r *http.Request) (string, error) {
	raw := r.Header.Get("X-Request-ID")
	if raw == "" {
		return uuid.NewString(), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil || id.Version() != 4 {
		return uuid.NewString(), nil
	}
	return id.String(), nil
}

func ptrCommandJob(c queue.CommandJob) *queue.CommandJob { return &c }
