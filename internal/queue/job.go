package queue

import (
	"time"

	"naas/internal/credentials"
)

// State is a Job's position in its Queued -> Started -> {Finished, Failed,
// Cancelled} lifecycle (spec.md §3 invariants: only ever moves forward,
// only ever into one terminal state).
type State string

const (
	StateQueued    State = "queued"
	StateStarted   State = "started"
	StateFinished  State = "finished"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether s is one of the three states a job cannot leave.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateFailed || s == StateCancelled
}

// CommandJob is the payload for POST /v1/send_command (spec.md §3).
type CommandJob struct {
	IP          string   `json:"ip" validate:"required,ip"`
	Port        int      `json:"port" validate:"omitempty,min=1,max=65535"`
	Platform    string   `json:"platform" validate:"required"`
	Commands    []string `json:"commands" validate:"required,min=1,dive,required"`
	DelayFactor int      `json:"delay_factor" validate:"omitempty,min=1"`
}

// ConfigJob is CommandJob plus the two config-mode flags (spec.md §3).
// `commands` is accepted as an alias of `config` at the decode layer.
type ConfigJob struct {
	CommandJob
	SaveConfig bool `json:"save_config"`
	Commit     bool `json:"commit"`
}

// Job is one queued unit of work: either a CommandJob or a ConfigJob,
// never both.
type Job struct {
	ID   string      `json:"id"`
	Command *CommandJob `json:"command,omitempty"`
	Config  *ConfigJob  `json:"config,omitempty"`

	// Credentials travels with the job record itself: C7 runs in a
	// separate process from C6, and spec.md §3 requires the device login
	// to be "passed by value into the queued job; destroyed with the job
	// record" rather than held in an in-memory object graph shared across
	// tiers (spec.md §5). OwnerHash, not Credentials, is what C8's
	// ownership check and any API response ever expose.
	Credentials credentials.Credentials `json:"credentials"`
	OwnerHash   string                  `json:"owner_hash"`

	State       State      `json:"state"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	Result      map[string]string `json:"result,omitempty"`
	Error       *string    `json:"error,omitempty"`
	RetryBudget int        `json:"retry_budget"`
}

// IsConfig reports whether this job carries a ConfigJob payload.
func (j *Job) IsConfig() bool {
	return j.Config != nil
}

// Device returns the common CommandJob fields shared by both payload kinds.
func (j *Job) Device() CommandJob {
	if j.Config != nil {
		return j.Config.CommandJob
	}
	if j.Command != nil {
		return *j.Command
	}
	return CommandJob{}
}
