package httpapi

import (
	"naas/internal/platform/httputil"
	"naas/internal/queue"
)

// commandRequest is the wire shape for POST /v1/send_command. Enable and
// DeviceType exist only at the decode layer: Enable folds into
// credentials.New, DeviceType is the deprecated alias of Platform (spec.md
// §4.5 step 3).
type commandRequest struct {
	IP          string   `json:"ip" validate:"required,ip"`
	Port        int      `json:"port" validate:"omitempty,min=1,max=65535"`
	Platform    string   `json:"platform"`
	DeviceType  string   `json:"device_type"`
	Commands    []string `json:"commands" validate:"required,min=1,dive,required"`
	DelayFactor int      `json:"delay_factor" validate:"omitempty,min=1"`
	Enable      string   `json:"enable"`
}

// resolvePlatform returns Platform, falling back to the deprecated
// device_type alias. The second return reports whether the alias was used,
// so the handler can log the deprecation warning spec.md §4.5 step 3 names.
func (r commandRequest) resolvePlatform() (platform string, usedAlias bool) {
	if r.Platform != "" {
		return r.Platform, false
	}
	return r.DeviceType, r.DeviceType != ""
}

func (r commandRequest) toCommandJob(platform string) queue.CommandJob {
	return queue.CommandJob{
		IP:          r.IP,
		Port:        r.Port,
		Platform:    platform,
		Commands:    r.Commands,
		DelayFactor: r.DelayFactor,
	}
}

// configRequest is the wire shape for POST /v1/send_config. Config is the
// canonical field name for the configuration lines; Commands is accepted
// as its deprecated alias (spec.md §3).
type configRequest struct {
	commandRequest
	Config     []string `json:"config"`
	SaveConfig bool     `json:"save_config"`
	Commit     bool     `json:"commit"`
}

func (r configRequest) resolveLines() []string {
	if len(r.Config) > 0 {
		return r.Config
	}
	return r.Commands
}

func (r configRequest) toConfigJob(platform string, lines []string) queue.ConfigJob {
	cmd := r.commandRequest.toCommandJob(platform)
	cmd.Commands = lines
	return queue.ConfigJob{
		CommandJob: cmd,
		SaveConfig: r.SaveConfig,
		Commit:     r.Commit,
	}
}

// submitResponse is the 202 body for both submission endpoints.
type submitResponse struct {
	httputil.Base
	JobID string `json:"job_id"`
}

// jobStatusResponse is the 200 body for the C8 read endpoint. Results and
// Error are only populated when State is "finished" (spec.md §4.7 step 5).
type jobStatusResponse struct {
	httputil.Base
	JobID   string            `json:"job_id"`
	Status  string            `json:"status"`
	Results map[string]string `json:"results,omitempty"`
	Error   *string           `json:"error,omitempty"`
}

// jobSummary is one entry in the GET /v1/jobs listing.
type jobSummary struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

type jobListResponse struct {
	httputil.Base
	Jobs       []jobSummary `json:"jobs"`
	Page       int          `json:"page"`
	PerPage    int          `json:"per_page"`
	TotalItems int          `json:"total_items"`
}

// healthResponse is the GET /healthcheck body: overall status plus the
// per-component sub-status spec.md §4.7 names.
type healthResponse struct {
	httputil.Base
	Status     string            `json:"status"`
	Components healthComponents  `json:"components"`
}

type healthComponents struct {
	KV      kvHealth      `json:"kv"`
	Queue   queueHealth   `json:"queue"`
	Workers workersHealth `json:"workers"`
}

type kvHealth struct {
	Reachable bool `json:"reachable"`
}

type queueHealth struct {
	Depth int64 `json:"depth"`
}

type workersHealth struct {
	Configured int `json:"configured"`
	Active     int `json:"active"`
}
