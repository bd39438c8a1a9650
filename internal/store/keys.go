// Package store wraps the Redis connection every other NAAS component
// addresses: the process salt, lockout windows, breaker state, and job
// records/registries all live under keys built here.
package store

import "strings"

// Fixed key names and prefixes from spec.md §6 "Persisted keys in C1".
const (
	SaltKey = "naas_cred_salt"

	userFailuresPrefix   = "naas_failures_"
	deviceFailuresPrefix = "naas_failures_device_"
	breakerPrefix        = "circuit_breaker:device_"

	jobPrefix = "naas_job_"

	RegistryQueued   = "naas_jobs_queued"
	RegistryStarted  = "naas_jobs_started"
	RegistryFinished = "naas_jobs_finished"
	RegistryFailed   = "naas_jobs_failed"

	queueListKey = "naas_queue"
)

// SanitizeKeySegment escapes the key delimiter so that a user-controlled
// identifier (username, IP) can never be crafted to collide with an
// adjacent key's namespace.
func SanitizeKeySegment(s string) string {
	s = strings.ReplaceAll(s, ":", "_")
	return strings.ReplaceAll(s, " ", "_")
}

// UserFailuresKey is the sorted-set key for the TACACS user lockout window.
func UserFailuresKey(username string) string {
	return userFailuresPrefix + SanitizeKeySegment(username)
}

// DeviceFailuresKey is the sorted-set key for the device lockout window.
func DeviceFailuresKey(ip string) string {
	return deviceFailuresPrefix + SanitizeKeySegment(ip)
}

// BreakerKey is the hash key holding a device's circuit breaker state.
func BreakerKey(ip string) string {
	return breakerPrefix + SanitizeKeySegment(ip)
}

// JobKey is the string key holding one job's JSON-encoded record.
func JobKey(jobID string) string {
	return jobPrefix + SanitizeKeySegment(jobID)
}

// QueueListKey is the Redis list NAAS uses as the FIFO job queue.
func QueueListKey() string {
	return queueListKey
}
