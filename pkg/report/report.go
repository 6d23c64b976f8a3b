package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/metrics"
	"github.com/cuemby/shepherd/pkg/storage"
	"github.com/cuemby/shepherd/pkg/types"
	"github.com/rs/zerolog"
)

// StoreOpener opens the durable report log for one write
type StoreOpener func() (storage.ReportStore, error)

// Notifier delivers a report to an external channel
type Notifier interface {
	Notify(ctx context.Context, r types.Report) error
}

// Reporter emits the terminal record of a run. Nothing it does can change
// the terminal status.
type Reporter struct {
	open     StoreOpener
	notifier Notifier
	logger   zerolog.Logger
}

// NewReporter creates a reporter. Either argument may be nil.
func NewReporter(open StoreOpener, notifier Notifier) *Reporter {
	return &Reporter{
		open:     open,
		notifier: notifier,
		logger:   log.WithComponent("reporter"),
	}
}

// Report logs r, stores it and, when notify is set, sends it to the
// notifier. Failures are logged and returned for information only.
func (rp *Reporter) Report(ctx context.Context, r types.Report, notify bool) error {
	rp.log(r)

	var errs []string
	if err := rp.store(r); err != nil {
		rp.logger.Error().Err(err).Msg("Failed to store deployment report")
		errs = append(errs, err.Error())
	}

	if notify && rp.notifier != nil {
		if err := rp.notifier.Notify(ctx, r); err != nil {
			metrics.NotificationFailuresTotal.Inc()
			rp.logger.Warn().Err(err).Msg("Failed to send notification")
			errs = append(errs, err.Error())
		} else {
			rp.logger.Debug().Msg("Notification sent")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("report delivery incomplete: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (rp *Reporter) log(r types.Report) {
	level := zerolog.InfoLevel
	if r.Status != types.StatusSucceeded {
		level = zerolog.ErrorLevel
	}

	rp.logger.WithLevel(level).
		Str("event", "deployment_report").
		Str("deployment_id", r.DeploymentID).
		Str("environment", string(r.Environment)).
		Str("image", r.Image).
		Str("region", r.Region).
		Str("status", string(r.Status)).
		Str("failed_stage", string(r.FailedStage)).
		Dur("duration", r.Duration).
		Strs("addresses", r.Addresses).
		Strs("slow_instances", r.SlowInstances).
		Strs("errors", r.Errors).
		Bool("rollback_attempted", r.RollbackAttempted).
		Bool("manual_intervention", r.ManualIntervention).
		Msg("Deployment finished")
}

func (rp *Reporter) store(r types.Report) error {
	if rp.open == nil {
		return nil
	}
	s, err := rp.open()
	if err != nil {
		return err
	}
	defer s.Close()
	return s.PutReport(&r)
}

// Summary renders the human-readable outcome of a run
func Summary(r types.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Deployment %s %s\n", r.DeploymentID, strings.ToUpper(string(r.Status)))
	fmt.Fprintf(&b, "  Environment: %s\n", r.Environment)
	fmt.Fprintf(&b, "  Image:       %s\n", r.Image)
	if r.Region != "" {
		fmt.Fprintf(&b, "  Region:      %s\n", r.Region)
	}
	fmt.Fprintf(&b, "  Duration:    %s\n", r.Duration.Round(time.Second))
	if len(r.Addresses) > 0 {
		fmt.Fprintf(&b, "  Instances:   %s\n", strings.Join(r.Addresses, ", "))
	}
	if r.FailedStage != "" {
		fmt.Fprintf(&b, "  Failed at:   %s\n", r.FailedStage)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "  Error:       %s\n", e)
	}
	if len(r.SlowInstances) > 0 {
		fmt.Fprintf(&b, "  Slow:        %s\n", strings.Join(r.SlowInstances, ", "))
	}
	if r.RollbackAttempted {
		if r.ManualIntervention {
			b.WriteString("  Rollback:    FAILED, manual intervention required\n")
		} else {
			fmt.Fprintf(&b, "  Rollback:    restored %s\n", strings.Join(r.PreviousAddresses, ", "))
		}
	}
	return b.String()
}
