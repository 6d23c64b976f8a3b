package metrics

import (
	"github.com/cuemby/shepherd/pkg/types"
)

// RecordReport folds the terminal report of a run into the deployment
// metrics. It is called once per run.
func RecordReport(r types.Report) {
	env := string(r.Environment)

	DeploymentsTotal.WithLabelValues(env, string(r.Status)).Inc()
	DeploymentDuration.WithLabelValues(env).Observe(r.Duration.Seconds())

	for _, h := range r.Health {
		if h.Latency > 0 {
			InstanceLatency.Observe(h.Latency.Seconds())
		}
	}
	if n := len(r.SlowInstances); n > 0 {
		SlowInstancesTotal.Add(float64(n))
	}

	if r.RollbackAttempted {
		outcome := "restored"
		if r.ManualIntervention {
			outcome = "failed"
		}
		RollbacksTotal.WithLabelValues(outcome).Inc()
	}
}

// RecordStageFailure counts a failed stage by its error kind
func RecordStageFailure(stage types.Status, kind types.ErrorKind) {
	if kind == "" {
		kind = "unknown"
	}
	StageFailuresTotal.WithLabelValues(string(stage), string(kind)).Inc()
}
