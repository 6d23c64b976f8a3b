package types

import (
	"fmt"
	"time"
)

// transitions lists the allowed successors of every non-terminal status.
// Any working stage may fall through to rolling_back or failed.
var transitions = map[Status][]Status{
	StatusPending:       {StatusValidating, StatusFailed},
	StatusValidating:    {StatusBackingUp, StatusProvisioning, StatusFailed},
	StatusBackingUp:     {StatusProvisioning, StatusRollingBack, StatusFailed},
	StatusProvisioning:  {StatusAwaitingReady, StatusRollingBack, StatusFailed},
	StatusAwaitingReady: {StatusRollingOut, StatusRollingBack, StatusFailed},
	StatusRollingOut:    {StatusVerifying, StatusRollingBack, StatusFailed},
	StatusVerifying:     {StatusSucceeded, StatusRollingBack, StatusFailed},
	StatusRollingBack:   {StatusRolledBack, StatusFailed},
}

// CanTransition reports whether from -> to is an edge of the state machine
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// DeploymentState is the mutable record threaded through one run
type DeploymentState struct {
	Request DeploymentRequest

	Status      Status
	FailedStage Status

	// Addresses is the set returned by the most recent successful
	// provisioning step
	Addresses []string

	PreviousAddresses []string

	StartedAt time.Time
	EndedAt   time.Time

	Errors      []error
	Health      []HealthReport
	Transitions []Transition

	RollbackAttempted  bool
	ManualIntervention bool
}

// NewDeploymentState creates a pending state for req
func NewDeploymentState(req DeploymentRequest) *DeploymentState {
	return &DeploymentState{
		Request:   req,
		Status:    StatusPending,
		StartedAt: time.Now(),
	}
}

// Transition moves the state to the next status. The backup stage cannot
// be skipped when the request enables it.
func (s *DeploymentState) Transition(to Status) error {
	from := s.Status
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid transition %s -> %s", from, to)
	}
	if from == StatusValidating && to == StatusProvisioning && s.Request.BackupEnabled {
		return fmt.Errorf("invalid transition %s -> %s: backup is enabled", from, to)
	}

	now := time.Now()
	s.Transitions = append(s.Transitions, Transition{From: from, To: to, At: now})
	s.Status = to
	if to.IsTerminal() {
		s.EndedAt = now
	}
	return nil
}

// Fail records err against the current stage
func (s *DeploymentState) Fail(err error) {
	if s.FailedStage == "" {
		s.FailedStage = s.Status
	}
	s.Errors = append(s.Errors, err)
}

// SetAddresses replaces the live instance set
func (s *DeploymentState) SetAddresses(addrs []string) {
	s.Addresses = append([]string(nil), addrs...)
}

// Duration returns the elapsed run time, up to now for unfinished runs
func (s *DeploymentState) Duration() time.Duration {
	if s.EndedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// Report builds the terminal record of the run
func (s *DeploymentState) Report() Report {
	errs := make([]string, 0, len(s.Errors))
	for _, err := range s.Errors {
		errs = append(errs, err.Error())
	}

	var slow []string
	for _, h := range s.Health {
		if h.Slow {
			slow = append(slow, h.Address)
		}
	}

	var kind ErrorKind
	if len(s.Errors) > 0 {
		kind = KindOf(s.Errors[0])
	}

	return Report{
		DeploymentID:       s.Request.ID,
		Environment:        s.Request.Environment,
		Image:              s.Request.Image,
		Region:             s.Request.Region,
		Status:             s.Status,
		FailedStage:        s.FailedStage,
		FailureKind:        kind,
		StartedAt:          s.StartedAt,
		EndedAt:            s.EndedAt,
		Duration:           s.Duration(),
		Addresses:          append([]string(nil), s.Addresses...),
		PreviousAddresses:  append([]string(nil), s.PreviousAddresses...),
		Errors:             errs,
		Health:             append([]HealthReport(nil), s.Health...),
		SlowInstances:      slow,
		RollbackAttempted:  s.RollbackAttempted,
		ManualIntervention: s.ManualIntervention,
		Transitions:        append([]Transition(nil), s.Transitions...),
	}
}
