package domain

import "time"

// HealthStatus summarises the state of a dependency or the whole system.
type HealthStatus string

const (
	// HealthStatusOK means the dependency responded normally.
	HealthStatusOK HealthStatus = "ok"
	// HealthStatusDegraded means the dependency responded with errors.
	HealthStatusDegraded HealthStatus = "degraded"
	// HealthStatusError means the dependency is unreachable or timed out.
	HealthStatusError HealthStatus = "error"
)

// SystemHealthCheck records the outcome of probing one dependency.
type SystemHealthCheck struct {
	Status    HealthStatus
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency checks for readiness reporting.
type SystemHealthReport struct {
	Status      HealthStatus
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
