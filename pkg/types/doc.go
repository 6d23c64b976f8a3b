/*
Package types defines the core data structures used throughout Shepherd.

This package contains the deployment domain model: the immutable request that
starts a run, the mutable state threaded through every stage, the backup
pointer used for rollback, per-instance health reports and the terminal
report. It also defines the error taxonomy every stage surfaces to the
orchestrator.

# State Machine

A run moves monotonically through the following states:

	pending → validating → backing_up → provisioning → awaiting_ready
	        → rolling_out → verifying → succeeded

Any working stage can instead move to rolling_back, which ends in
rolled_back or failed. Any stage can move straight to failed when rollback
is disabled or no backup exists. validating may skip backing_up only when
the request disables backups; DeploymentState.Transition enforces both rules.

	┌─────────┐   ┌────────────┐   ┌────────────┐   ┌──────────────┐
	│ pending │──▶│ validating │──▶│ backing_up │──▶│ provisioning │
	└─────────┘   └────────────┘   └────────────┘   └──────┬───────┘
	                                                       ▼
	┌───────────┐   ┌───────────┐   ┌─────────────┐   ┌────────────────┐
	│ succeeded │◀──│ verifying │◀──│ rolling_out │◀──│ awaiting_ready │
	└───────────┘   └─────┬─────┘   └──────┬──────┘   └───────┬────────┘
	                      └───────────────┬┴──────────────────┘
	                                      ▼
	                              ┌──────────────┐
	                              │ rolling_back │──▶ rolled_back | failed
	                              └──────────────┘

# Errors

Every stage returns a *DeployError with one of the kinds below. Callers match
kinds with errors.Is against the package sentinels:

	if errors.Is(err, types.ErrReadinessTimeout) {
		// instances never became reachable
	}

  - KindValidation: bad input or credentials, nothing was mutated
  - KindProvisioning: IaC tool failure or an empty address set
  - KindReadinessTimeout: instances never accepted a control connection
  - KindRollout: configuration management failed on at least one host
  - KindHealthTimeout: health convergence was not reached in time
  - KindRollback: restoring the previous state failed; manual intervention
  - KindCanceled: the operator aborted the run
*/
package types
