package types

import (
	"time"
)

// Environment is a deployment target tier
type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentStaging     Environment = "staging"
	EnvironmentProduction  Environment = "production"
)

// DefaultEnvironments is the closed set of environments accepted when the
// configuration does not override it
var DefaultEnvironments = []Environment{
	EnvironmentDevelopment,
	EnvironmentStaging,
	EnvironmentProduction,
}

// Status is the lifecycle state of a deployment run
type Status string

const (
	StatusPending       Status = "pending"
	StatusValidating    Status = "validating"
	StatusBackingUp     Status = "backing_up"
	StatusProvisioning  Status = "provisioning"
	StatusAwaitingReady Status = "awaiting_ready"
	StatusRollingOut    Status = "rolling_out"
	StatusVerifying     Status = "verifying"
	StatusSucceeded     Status = "succeeded"
	StatusRollingBack   Status = "rolling_back"
	StatusRolledBack    Status = "rolled_back"
	StatusFailed        Status = "failed"
)

// IsTerminal reports whether no further transition is possible
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusRolledBack, StatusFailed:
		return true
	}
	return false
}

// DeploymentRequest is the immutable input of a deployment run
type DeploymentRequest struct {
	ID          string
	Environment Environment
	Image       string
	Region      string

	// MaxDuration bounds the whole run, excluding rollback and reporting
	MaxDuration time.Duration

	// HealthTimeout bounds health convergence
	HealthTimeout time.Duration

	BackupEnabled     bool
	RollbackOnFailure bool
	NotifyEnabled     bool
}

// Backup is a lightweight pointer to the previous deployment. It lives
// only for the duration of one run.
type Backup struct {
	Addresses  []string
	Image      string
	CapturedAt time.Time

	// State is the provisioner's opaque prior-state handle, if any
	State []byte
}

// IsEmpty reports whether there is nothing to roll back to
func (b *Backup) IsEmpty() bool {
	return b == nil || len(b.Addresses) == 0
}

// HealthReport is the probe outcome for one instance
type HealthReport struct {
	Address    string        `json:"address"`
	Live       bool          `json:"live"`
	Functional bool          `json:"functional"`
	Latency    time.Duration `json:"latency"`
	Slow       bool          `json:"slow,omitempty"`
	Message    string        `json:"message,omitempty"`
	CheckedAt  time.Time     `json:"checked_at"`
}

// Healthy reports whether both probes passed
func (r HealthReport) Healthy() bool {
	return r.Live && r.Functional
}

// AllHealthy is the all-or-nothing readiness verdict. An empty set is
// never healthy.
func AllHealthy(reports []HealthReport) bool {
	if len(reports) == 0 {
		return false
	}
	for _, r := range reports {
		if !r.Healthy() {
			return false
		}
	}
	return true
}

// Transition records one state change
type Transition struct {
	From Status    `json:"from"`
	To   Status    `json:"to"`
	At   time.Time `json:"at"`
}

// Report is the terminal record of a deployment run
type Report struct {
	DeploymentID       string         `json:"deployment_id"`
	Environment        Environment    `json:"environment"`
	Image              string         `json:"image"`
	Region             string         `json:"region"`
	Status             Status         `json:"status"`
	FailedStage        Status         `json:"failed_stage,omitempty"`
	FailureKind        ErrorKind      `json:"failure_kind,omitempty"`
	StartedAt          time.Time      `json:"started_at"`
	EndedAt            time.Time      `json:"ended_at"`
	Duration           time.Duration  `json:"duration"`
	Addresses          []string       `json:"addresses"`
	PreviousAddresses  []string       `json:"previous_addresses,omitempty"`
	Errors             []string       `json:"errors,omitempty"`
	Health             []HealthReport `json:"health,omitempty"`
	SlowInstances      []string       `json:"slow_instances,omitempty"`
	RollbackAttempted  bool           `json:"rollback_attempted"`
	ManualIntervention bool           `json:"manual_intervention"`
	Transitions        []Transition   `json:"transitions,omitempty"`
}
