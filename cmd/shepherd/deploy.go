package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cuemby/shepherd/pkg/deploy"
	"github.com/cuemby/shepherd/pkg/events"
	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/metrics"
	"github.com/cuemby/shepherd/pkg/report"
	"github.com/spf13/cobra"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy an image to an environment",
	Long: `Run a full deployment: validate, back up, provision, wait for the
instances, roll out and verify health. A failure after provisioning rolls
back to the previous deployment when one exists.

Exit codes:
  0  deployment succeeded
  1  deployment failed
  2  deployment failed and was rolled back
  3  validation rejected the request

Interrupting the command (Ctrl+C) aborts the run; rollback and reporting
still complete.`,
	Example: `  shepherd deploy --env staging --image ghcr.io/acme/sentiment-api:v2
  shepherd deploy --env production --image ghcr.io/acme/sentiment-api:v2 --region eu-west-1 --notify`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		req := requestFrom(cmd, cfg)

		broker := events.NewBroker()
		broker.Start()
		sub := broker.Subscribe()
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			printProgress(sub)
		}()

		stages, err := newStages(cfg, req, broker)
		if err != nil {
			broker.Stop()
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		finished := make(chan struct{})
		go releaseOnCancel(ctx, stop, finished, func() {
			fmt.Fprintln(os.Stderr, "Interrupted, aborting the run. Press Ctrl+C again to force quit.")
		})

		fmt.Printf("Deploying %s to %s (%s)\n", req.Image, req.Environment, req.ID)
		fmt.Println()

		result := deploy.NewOrchestrator(stages).Run(ctx, req)
		close(finished)

		broker.Stop()
		broker.Unsubscribe(sub)
		wg.Wait()

		fmt.Println()
		fmt.Print(report.Summary(result))

		if cfg.Metrics.Enabled() {
			exportCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := metrics.Export(exportCtx, cfg.Metrics, string(req.Environment)); err != nil {
				log.Logger.Warn().Err(err).Msg("Failed to export metrics")
			}
			cancel()
		}

		exitCode = deploy.ExitCode(result)
		return nil
	},
}

func init() {
	addRequestFlags(deployCmd)
	_ = deployCmd.MarkFlagRequired("env")
	_ = deployCmd.MarkFlagRequired("image")
}

// releaseOnCancel calls stop once ctx is done, restoring default signal
// handling so a second interrupt force-quits while rollback runs. It
// returns without calling stop when finished closes first.
func releaseOnCancel(ctx context.Context, stop context.CancelFunc, finished <-chan struct{}, onCancel func()) {
	select {
	case <-ctx.Done():
		stop()
		if onCancel != nil {
			onCancel()
		}
	case <-finished:
	}
}

// printProgress renders stage events until sub is closed
func printProgress(sub events.Subscriber) {
	for ev := range sub {
		switch ev.Type {
		case events.EventStageEntered:
			fmt.Printf("→ %s\n", ev.Metadata["stage"])
		case events.EventInstanceSlow:
			fmt.Printf("  ! %s\n", ev.Message)
		case events.EventRollbackStarted:
			fmt.Printf("↺ %s\n", ev.Message)
		case events.EventRollbackCompleted:
			fmt.Printf("  %s\n", ev.Message)
		case events.EventDeploymentSucceeded:
			fmt.Printf("✓ %s\n", ev.Message)
		case events.EventDeploymentFailed, events.EventDeploymentRolledBack:
			fmt.Printf("✗ %s\n", ev.Message)
		}
	}
}
