/*
Package deploy sequences a single deployment run from request to report.

The Orchestrator owns the run's state machine and drives each stage through
a narrow interface, so every external effect (cloud provisioning, remote
rollout, probing, persistence, notification) can be replaced in tests.

# Stages

A run moves through a fixed, linear sequence:

	pending
	  │
	  ▼
	validating ──► backing_up ──► provisioning ──► awaiting_ready
	                 (optional)                          │
	                                                     ▼
	                           succeeded ◄── verifying ◄── rolling_out

	any working stage ──► rolling_back ──► rolled_back
	        │                   │
	        └──────────────────►└──────────► failed

Each stage completes before the next starts. Within a stage, work over the
instance set (readiness polling, probing, rollback verification) fans out
concurrently and joins before the stage returns.

# Failure handling

The first stage error ends the happy path. The error is recorded against
the stage that produced it, then the compensation branch runs:

  - Rollback is attempted only when it is enabled, the provisioner has
    been asked to change infrastructure, and the backup stage captured a
    non-empty previous deployment.
  - Rollback is attempted at most once. A failed rollback marks the run
    for manual intervention and is never retried.
  - Cancellation of the caller's context, and expiry of the request's
    MaxDuration, are failures of kind canceled and take the same branch.

Rollback and reporting run on a context detached from the caller's, so an
interrupted run still restores the previous deployment and records its
outcome. Stages.Cleanup runs last on every path.

# Reporting

Every run produces exactly one types.Report. It is handed to the Reporter
(structured log, persisted history, optional webhook), recorded in the
process metrics, and published as a terminal event. Reporter errors are
logged and never change the outcome.

ExitCode maps a report to the deploy command's process exit code:

	0  succeeded
	1  failed
	2  rolled back
	3  validation rejected the request

# Usage

	orch := deploy.NewOrchestrator(deploy.Stages{
		Validator:   validator,
		Backup:      backup.NewManager(tf),
		Provisioner: tf,
		Readiness:   poller,
		Rollout:     ansible,
		Health:      checker,
		Rollback:    rollback.NewController(tf, probes.Liveness(), settle, timeout),
		Reporter:    reporter,
		Publisher:   broker,
		Cleanup:     ws.Release,
	})

	report := orch.Run(ctx, req)
	os.Exit(deploy.ExitCode(report))
*/
package deploy
