/*
Package metrics defines the Prometheus metrics recorded by a deployment run.

All metrics are registered on the default registry at package init. A
deployment is a short-lived CLI process, so nothing is served over HTTP;
instead Export writes the registry to a node-exporter textfile, pushes it
to a Pushgateway, or both, once the run reaches a terminal state.

# Metrics

	shepherd_deployments_total{environment,status}     counter
	shepherd_deployment_duration_seconds{environment}  histogram
	shepherd_stage_duration_seconds{stage}             histogram
	shepherd_stage_failures_total{stage,kind}          counter
	shepherd_instance_latency_seconds                  histogram
	shepherd_probe_failures_total{probe}               counter
	shepherd_slow_instances_total                      counter
	shepherd_rollbacks_total{outcome}                  counter
	shepherd_notification_failures_total               counter

# Usage

Stages are timed with a Timer:

	timer := metrics.NewTimer()
	addrs, err := provisioner.Apply(ctx, shape)
	timer.ObserveDurationVec(metrics.StageDuration, "provisioning")

and the terminal report is folded in with RecordReport:

	metrics.RecordReport(report)
	if err := metrics.Export(ctx, cfg.Metrics, string(report.Environment)); err != nil {
		logger.Warn().Err(err).Msg("Failed to export metrics")
	}
*/
package metrics
