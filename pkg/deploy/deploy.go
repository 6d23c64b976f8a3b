package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/shepherd/pkg/events"
	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/metrics"
	"github.com/cuemby/shepherd/pkg/provision"
	"github.com/cuemby/shepherd/pkg/rollout"
	"github.com/cuemby/shepherd/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Validator performs the read-only pre-flight checks
type Validator interface {
	Validate(ctx context.Context, req types.DeploymentRequest) error
}

// BackupManager captures the previous deployment
type BackupManager interface {
	Capture(ctx context.Context) *types.Backup
}

// Provisioner converges the fleet to a shape
type Provisioner interface {
	Apply(ctx context.Context, shape provision.Shape) ([]string, error)
}

// ReadinessPoller waits for every instance's control channel
type ReadinessPoller interface {
	WaitAll(ctx context.Context, addrs []string) error
}

// HealthChecker waits for health convergence
type HealthChecker interface {
	Converge(ctx context.Context, addrs []string, timeout time.Duration) ([]types.HealthReport, error)
}

// RollbackController restores a backup once
type RollbackController interface {
	Rollback(ctx context.Context, backup *types.Backup) error
}

// Reporter emits the terminal record
type Reporter interface {
	Report(ctx context.Context, r types.Report, notify bool) error
}

// Stages wires the components of a run. Publisher, ProfileFor, Cleanup
// and FinalizeTimeout are optional.
type Stages struct {
	Validator   Validator
	Backup      BackupManager
	Provisioner Provisioner
	Readiness   ReadinessPoller
	Rollout     rollout.Driver
	Health      HealthChecker
	Rollback    RollbackController
	Reporter    Reporter

	Publisher  events.Publisher
	ProfileFor func(types.Environment) provision.Profile

	// Cleanup releases run-scoped resources (workspace, temporary keys).
	// It runs on every exit path after rollback and reporting.
	Cleanup func() error

	// FinalizeTimeout bounds reporting, which runs detached from the
	// run's context so it survives cancellation
	FinalizeTimeout time.Duration
}

// Orchestrator sequences the stages of a deployment run
type Orchestrator struct {
	stages Stages
}

// NewOrchestrator creates an orchestrator over stages
func NewOrchestrator(stages Stages) *Orchestrator {
	if stages.Publisher == nil {
		stages.Publisher = events.Discard
	}
	if stages.ProfileFor == nil {
		stages.ProfileFor = func(env types.Environment) provision.Profile {
			return provision.ProfileFor(env, nil)
		}
	}
	if stages.FinalizeTimeout <= 0 {
		stages.FinalizeTimeout = 30 * time.Second
	}
	return &Orchestrator{stages: stages}
}

// NewDeploymentID returns deploy-<utc yyyymmdd-hhmmss>-<8 hex>
func NewDeploymentID(now time.Time) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("deploy-%s-%s", now.UTC().Format("20060102-150405"), id[:8])
}

// run holds the per-run bookkeeping
type run struct {
	o      *Orchestrator
	state  *types.DeploymentState
	backup *types.Backup
	logger zerolog.Logger

	stageTimer *metrics.Timer

	// mutated is set once the provisioner has been asked to change
	// infrastructure; before that there is nothing to roll back
	mutated bool
}

// Run executes one deployment and returns its terminal report. Operator
// cancellation of ctx is handled like any other failure: rollback (when
// enabled and possible) and reporting still run on a detached context.
func (o *Orchestrator) Run(ctx context.Context, req types.DeploymentRequest) types.Report {
	r := &run{
		o:      o,
		state:  types.NewDeploymentState(req),
		logger: log.WithDeploymentID(req.ID).With().Str("environment", string(req.Environment)).Logger(),
	}

	if o.stages.Cleanup != nil {
		defer func() {
			if err := o.stages.Cleanup(); err != nil {
				r.logger.Warn().Err(err).Msg("Failed to release run resources")
			}
		}()
	}

	r.logger.Info().
		Str("image", req.Image).
		Str("region", req.Region).
		Bool("backup", req.BackupEnabled).
		Bool("rollback", req.RollbackOnFailure).
		Msg("Starting deployment")

	runCtx := ctx
	if req.MaxDuration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, req.MaxDuration)
		defer cancel()
	}

	if err := r.execute(runCtx); err != nil {
		r.fail(ctx, err)
	}

	return r.finalize(ctx)
}

// execute walks the happy path and returns the first stage error
func (r *run) execute(ctx context.Context) error {
	s := r.o.stages
	req := r.state.Request

	if err := r.enter(ctx, types.StatusValidating); err != nil {
		return err
	}
	if err := s.Validator.Validate(ctx, req); err != nil {
		return r.classify(ctx, err, types.KindValidation)
	}

	if req.BackupEnabled {
		if err := r.enter(ctx, types.StatusBackingUp); err != nil {
			return err
		}
		r.backup = s.Backup.Capture(ctx)
		if !r.backup.IsEmpty() {
			r.state.PreviousAddresses = append([]string(nil), r.backup.Addresses...)
		}
	}

	if err := r.enter(ctx, types.StatusProvisioning); err != nil {
		return err
	}
	r.mutated = true
	shape := provision.ShapeFor(req, s.ProfileFor(req.Environment))
	addrs, err := s.Provisioner.Apply(ctx, shape)
	if err != nil {
		return r.classify(ctx, err, types.KindProvisioning)
	}
	if len(addrs) == 0 {
		return types.NewError(types.KindProvisioning, nil, "provisioner returned no instance addresses")
	}
	r.state.SetAddresses(addrs)

	if err := r.enter(ctx, types.StatusAwaitingReady); err != nil {
		return err
	}
	if err := s.Readiness.WaitAll(ctx, r.state.Addresses); err != nil {
		return r.classify(ctx, err, types.KindReadinessTimeout)
	}

	if err := r.enter(ctx, types.StatusRollingOut); err != nil {
		return err
	}
	if _, err := s.Rollout.Rollout(ctx, req, r.state.Addresses); err != nil {
		return r.classify(ctx, err, types.KindRollout)
	}

	if err := r.enter(ctx, types.StatusVerifying); err != nil {
		return err
	}
	reports, err := s.Health.Converge(ctx, r.state.Addresses, req.HealthTimeout)
	r.state.Health = reports
	r.publishSlow(reports)
	if err != nil {
		return r.classify(ctx, err, types.KindHealthTimeout)
	}

	return r.transition(types.StatusSucceeded)
}

// enter moves to the next working stage unless the run was cancelled
func (r *run) enter(ctx context.Context, to types.Status) error {
	if err := ctx.Err(); err != nil {
		return r.canceled(ctx, err)
	}
	return r.transition(to)
}

func (r *run) transition(to types.Status) error {
	from := r.state.Status
	if err := r.state.Transition(to); err != nil {
		return err
	}

	if r.stageTimer != nil {
		r.stageTimer.ObserveDurationVec(metrics.StageDuration, string(from))
	}
	r.stageTimer = metrics.NewTimer()

	r.logger.Info().Str("from", string(from)).Str("to", string(to)).Msg("Stage transition")
	if !to.IsTerminal() {
		r.publish(events.EventStageEntered, string(to), map[string]string{"from": string(from), "stage": string(to)})
	}
	return nil
}

// classify makes sure every stage error reaching the state machine is a
// DeployError. A stage that fails after the run was cancelled reports
// cancellation, whatever its own kind.
func (r *run) classify(ctx context.Context, err error, kind types.ErrorKind) error {
	if ctx.Err() != nil {
		return r.canceled(ctx, err)
	}
	if types.KindOf(err) != "" {
		return err
	}
	return types.NewError(kind, err, "%s failed", r.state.Status)
}

func (r *run) canceled(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return types.NewError(types.KindCanceled, err, "max deployment duration %s exceeded", r.state.Request.MaxDuration)
	}
	return types.NewError(types.KindCanceled, err, "deployment aborted")
}

// fail records err and runs the compensation branch. It is called at most
// once per run, so rollback is attempted at most once.
func (r *run) fail(parent context.Context, err error) {
	stage := r.state.Status
	r.state.Fail(err)
	metrics.RecordStageFailure(stage, types.KindOf(err))
	r.logger.Error().Err(err).Str("stage", string(stage)).Msg("Stage failed")

	if !r.shouldRollback() {
		if r.state.Request.RollbackOnFailure && r.mutated {
			r.logger.Warn().Msg("No previous deployment to roll back to")
		}
		r.finish(types.StatusFailed)
		return
	}

	if terr := r.transition(types.StatusRollingBack); terr != nil {
		r.logger.Error().Err(terr).Msg("Cannot enter rollback")
		r.finish(types.StatusFailed)
		return
	}

	r.state.RollbackAttempted = true
	r.publish(events.EventRollbackStarted, "rolling back to previous deployment", map[string]string{
		"previous_addresses": strings.Join(r.backup.Addresses, ","),
		"image":              r.backup.Image,
	})

	// the rollback controller bounds itself; the run's context may already
	// be cancelled
	rbErr := r.o.stages.Rollback.Rollback(context.WithoutCancel(parent), r.backup)
	if rbErr != nil {
		r.state.Fail(rbErr)
		r.state.ManualIntervention = true
		r.logger.Error().Err(rbErr).Msg("Rollback failed, manual intervention required")
		r.publish(events.EventRollbackCompleted, "rollback failed", map[string]string{"outcome": "failed"})
		r.finish(types.StatusFailed)
		return
	}

	r.publish(events.EventRollbackCompleted, "previous deployment restored", map[string]string{"outcome": "restored"})
	r.finish(types.StatusRolledBack)
}

func (r *run) shouldRollback() bool {
	return r.state.Request.RollbackOnFailure &&
		r.mutated &&
		!r.backup.IsEmpty() &&
		types.CanTransition(r.state.Status, types.StatusRollingBack)
}

func (r *run) finish(status types.Status) {
	if err := r.transition(status); err != nil {
		r.logger.Error().Err(err).Msg("Invalid terminal transition")
	}
}

// finalize reports the terminal state on a detached, bounded context
func (r *run) finalize(parent context.Context) types.Report {
	report := r.state.Report()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), r.o.stages.FinalizeTimeout)
	defer cancel()

	metrics.RecordReport(report)
	if r.o.stages.Reporter != nil {
		if err := r.o.stages.Reporter.Report(ctx, report, r.state.Request.NotifyEnabled); err != nil {
			r.logger.Warn().Err(err).Msg("Report delivery incomplete")
		}
	}

	var evType events.EventType
	switch report.Status {
	case types.StatusSucceeded:
		evType = events.EventDeploymentSucceeded
	case types.StatusRolledBack:
		evType = events.EventDeploymentRolledBack
	default:
		evType = events.EventDeploymentFailed
	}
	r.publish(evType, fmt.Sprintf("deployment %s in %s", report.Status, report.Duration.Round(time.Second)), map[string]string{
		"status":       string(report.Status),
		"failed_stage": string(report.FailedStage),
	})

	r.logger.Info().Str("status", string(report.Status)).Dur("duration", report.Duration).Msg("Deployment finished")
	return report
}

func (r *run) publishSlow(reports []types.HealthReport) {
	for _, h := range reports {
		if h.Slow {
			r.publish(events.EventInstanceSlow, h.Address+" responded in "+h.Latency.Round(time.Millisecond).String(), map[string]string{
				"address": h.Address,
			})
		}
	}
}

func (r *run) publish(t events.EventType, msg string, meta map[string]string) {
	r.o.stages.Publisher.Publish(&events.Event{
		DeploymentID: r.state.Request.ID,
		Type:         t,
		Message:      msg,
		Metadata:     meta,
	})
}

// Exit codes returned by the deploy command
const (
	ExitSucceeded  = 0
	ExitFailed     = 1
	ExitRolledBack = 2
	ExitValidation = 3
)

// ExitCode maps a terminal report to the process exit code
func ExitCode(r types.Report) int {
	switch r.Status {
	case types.StatusSucceeded:
		return ExitSucceeded
	case types.StatusRolledBack:
		return ExitRolledBack
	}
	if r.FailureKind == types.KindValidation {
		return ExitValidation
	}
	return ExitFailed
}
