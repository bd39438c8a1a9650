// Package worker implements C7: the long-lived goroutine pool that pops
// jobs from C5, consults C4, drives the SSH driver, and routes failures
// across C3/C4 per spec.md §4.6's taxonomy.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gobackoff "github.com/cenkalti/backoff/v4"

	"naas/internal/audit"
	"naas/internal/breaker"
	"naas/internal/credentials"
	"naas/internal/driver"
	"naas/internal/lockout"
	"naas/internal/platform/metrics"
	"naas/internal/queue"
)

// Dialer opens an SSH session against device using creds. Production code
// passes driver.ConnectHandler; tests inject a fake to avoid real network
// I/O.
type Dialer func(device driver.Device, creds credentials.Credentials) (driver.Client, error)

// Pool runs W long-lived workers (spec.md §5's worker tier), each holding
// at most one job at a time.
type Pool struct {
	queue         *queue.Queue
	breaker       *breaker.Breaker
	userLockout   *lockout.Service
	deviceLockout *lockout.Service
	dial          Dialer
	logger        *slog.Logger
	metrics       *metrics.Metrics
	pollTimeout   time.Duration

	active sync.Map // jobID -> struct{}, for the healthcheck's "currently running" census
}

// Option configures a Pool.
type Option func(*Pool)

func WithDialer(d Dialer) Option {
	return func(p *Pool) { p.dial = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) { p.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

func WithPollTimeout(d time.Duration) Option {
	return func(p *Pool) { p.pollTimeout = d }
}

// New constructs a worker Pool.
func New(q *queue.Queue, cb *breaker.Breaker, userLockout, deviceLockout *lockout.Service, opts ...Option) *Pool {
	p := &Pool{
		queue:         q,
		breaker:       cb,
		userLockout:   userLockout,
		deviceLockout: deviceLockout,
		dial:          driver.ConnectHandler,
		pollTimeout:   2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts n worker goroutines and blocks until ctx is cancelled, then
// waits up to shutdownTimeout for the in-flight job each worker may be
// holding to finish (spec.md §5 "Graceful shutdown").
func (p *Pool) Run(ctx context.Context, n int, shutdownTimeout time.Duration) error {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.runLoop(ctx, id)
		}(i)
	}

	<-ctx.Done()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(shutdownTimeout):
		return fmt.Errorf("worker: %d job(s) still in flight after shutdown timeout", p.activeCount())
	}
}

func (p *Pool) activeCount() int {
	n := 0
	p.active.Range(func(_, _ any) bool { n++; return true })
	return n
}

// ActiveCount reports the number of workers currently holding a job, for
// the healthcheck's worker census.
func (p *Pool) ActiveCount() int {
	return p.activeCount()
}

func (p *Pool) runLoop(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		jobID, err := p.queue.Pop(ctx, p.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if p.logger != nil {
				p.logger.ErrorContext(ctx, "worker: queue pop failed", "worker_id", workerID, "error", err)
			}
			continue
		}
		if jobID == "" {
			continue
		}

		p.processJob(ctx, jobID)
	}
}

func (p *Pool) processJob(ctx context.Context, jobID string) {
	// A job that has been popped runs to completion even after shutdown
	// begins: Run's shutdownTimeout bounds the wait, and the final
	// Finish/Fail write must not be cut off by the cancelled context.
	ctx = context.WithoutCancel(ctx)

	p.active.Store(jobID, struct{}{})
	defer p.active.Delete(jobID)
	if p.metrics != nil {
		p.metrics.WorkersActive.Set(float64(p.activeCount()))
		defer p.metrics.WorkersActive.Set(float64(p.activeCount() - 1))
	}

	start := time.Now()

	job, err := p.queue.Start(ctx, jobID)
	if err != nil {
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "worker: starting job failed", "request_id", jobID, "error", err)
		}
		return
	}
	if job.State == queue.StateCancelled {
		// A Cancel beat the worker to this job between enqueue and pop.
		// spec.md §5: cancellation only suppresses a new start.
		return
	}

	result, errMsg, crashErr := p.runJob(ctx, job)

	status := "finished"
	if crashErr != nil {
		if _, err := p.queue.Fail(ctx, jobID, crashErr.Error()); err != nil && p.logger != nil {
			p.logger.ErrorContext(ctx, "worker: marking job failed", "request_id", jobID, "error", err)
		}
		status = "failed"
	} else {
		if _, err := p.queue.Finish(ctx, jobID, result, errMsg); err != nil && p.logger != nil {
			p.logger.ErrorContext(ctx, "worker: marking job finished", "request_id", jobID, "error", err)
		}
	}

	if p.metrics != nil {
		p.metrics.JobsCompleted.WithLabelValues(status).Inc()
	}
	audit.Log(ctx, p.logger, "job.completed",
		"request_id", jobID,
		"status", status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// runJob drives one job to a worker-observed outcome: (result, nil, nil)
// on success, (nil, errMsg, nil) when the worker completed but the device
// refused (circuit-open, auth failure — job ends Finished), or
// (nil, nil, err) when retries were exhausted and the job ends Failed.
func (p *Pool) runJob(ctx context.Context, job *queue.Job) (map[string]string, *string, error) {
	device := job.Device()

	status, err := p.breaker.Allow(ctx, device.IP)
	if err != nil && errors.Is(err, breaker.ErrOpen) {
		p.recordDeviceFailure(ctx, device.IP, "worker: recording device failure for open breaker")
		msg := fmt.Sprintf("Circuit breaker open for device %s - too many recent failures", device.IP)
		return nil, &msg, nil
	}
	_ = status

	var authErrMsg *string
	var result map[string]string

	attempt := func() error {
		// Re-check the breaker before every attempt: a prior attempt in
		// this same retry loop may have just tripped it open.
		if _, err := p.breaker.Allow(ctx, device.IP); err != nil && errors.Is(err, breaker.ErrOpen) {
			msg := fmt.Sprintf("Circuit breaker open for device %s - too many recent failures", device.IP)
			authErrMsg = &msg
			return nil
		}

		r, handledMsg, attemptErr := p.attemptOnce(ctx, job)
		if handledMsg != nil {
			authErrMsg = handledMsg
			return nil
		}
		if attemptErr == nil {
			result = r
			return nil
		}
		return attemptErr
	}

	retryErr := gobackoff.Retry(attempt, gobackoff.WithContext(newFixedSchedule(), ctx))
	if authErrMsg != nil {
		return nil, authErrMsg, nil
	}
	if retryErr != nil {
		return nil, nil, retryErr
	}
	return result, nil, nil
}

// attemptOnce makes exactly one SSH attempt and routes any failure per
// spec.md §4.6's taxonomy. A non-nil second return means the worker ran to
// completion with a handled error (caller must not retry); a non-nil third
// return is a transport failure the caller may retry.
func (p *Pool) attemptOnce(ctx context.Context, job *queue.Job) (map[string]string, *string, error) {
	device := job.Device()
	dev := driver.Device{
		IP:          device.IP,
		Port:        device.Port,
		Platform:    driver.Platform(device.Platform),
		DelayFactor: device.DelayFactor,
	}

	client, err := p.dial(dev, job.Credentials)
	if err != nil {
		return p.classifyFailure(ctx, device.IP, job.Credentials.Username, err)
	}
	defer func() { _ = client.Disconnect() }()

	if job.IsConfig() {
		return p.runConfig(ctx, device.IP, job.Credentials.Username, client, job.Config)
	}
	return p.runCommands(ctx, device.IP, job.Credentials.Username, client, job.Command)
}

func (p *Pool) runCommands(ctx context.Context, ip, username string, client driver.Client, cmd *queue.CommandJob) (map[string]string, *string, error) {
	result := make(map[string]string, len(cmd.Commands))
	for _, c := range cmd.Commands {
		out, err := client.SendCommand(c)
		if err != nil {
			return p.classifyFailure(ctx, ip, username, err)
		}
		result[c] = out
	}

	if err := p.breaker.RecordSuccess(ctx, ip); err != nil && p.logger != nil {
		p.logger.ErrorContext(ctx, "worker: recording breaker success", "ip", ip, "error", err)
	}
	return result, nil, nil
}

func (p *Pool) runConfig(ctx context.Context, ip, username string, client driver.Client, cfg *queue.ConfigJob) (map[string]string, *string, error) {
	out, err := client.SendConfigSet(cfg.Commands)
	if err != nil {
		return p.classifyFailure(ctx, ip, username, err)
	}
	result := map[string]string{"config_set_output": out}

	if cfg.SaveConfig {
		if err := client.SaveConfig(); err != nil && !driver.IsUnsupported(err) {
			return p.classifyFailure(ctx, ip, username, err)
		}
	}
	if cfg.Commit {
		if err := client.Commit(); err != nil && !driver.IsUnsupported(err) {
			return p.classifyFailure(ctx, ip, username, err)
		}
	}

	if err := p.breaker.RecordSuccess(ctx, ip); err != nil && p.logger != nil {
		p.logger.ErrorContext(ctx, "worker: recording breaker success", "ip", ip, "error", err)
	}
	return result, nil, nil
}

// classifyFailure implements spec.md §4.6 step 5 / §4.3's routing
// discipline: authentication failures feed only the user-axis lockout and
// are handled without re-raising; every other transport failure feeds the
// device-axis lockout, advances the breaker, and is re-raised for retry.
func (p *Pool) classifyFailure(ctx context.Context, ip, username string, err error) (map[string]string, *string, error) {
	if driver.IsAuthFailure(err) {
		if _, lerr := p.userLockout.Check(ctx, username, true); lerr != nil && p.logger != nil {
			p.logger.ErrorContext(ctx, "worker: recording user auth failure", "username", username, "error", lerr)
		}
		msg := err.Error()
		return nil, &msg, nil
	}

	p.recordDeviceFailure(ctx, ip, "worker: recording device failure")
	if berr := p.breaker.RecordFailure(ctx, ip); berr != nil && p.logger != nil {
		p.logger.ErrorContext(ctx, "worker: advancing breaker", "ip", ip, "error", berr)
	}
	return nil, nil, err
}

// recordDeviceFailure records one device-axis lockout failure and, when
// that failure trips the lockout, emits the device.locked_out audit event
// with the failure count spec.md §6 requires.
func (p *Pool) recordDeviceFailure(ctx context.Context, ip, errContext string) {
	locked, err := p.deviceLockout.Check(ctx, ip, true)
	if err != nil {
		if p.logger != nil {
			p.logger.ErrorContext(ctx, errContext, "ip", ip, "error", err)
		}
		return
	}
	if !locked {
		return
	}
	if count, err := p.deviceLockout.Count(ctx, ip); err == nil {
		audit.Log(ctx, p.logger, "device.locked_out", "ip", ip, "failure_count", count)
	}
}
