package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Deployment metrics
	DeploymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shepherd_deployments_total",
			Help: "Total number of deployment runs by environment and terminal status",
		},
		[]string{"environment", "status"},
	)

	DeploymentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shepherd_deployment_duration_seconds",
			Help:    "Wall-clock duration of deployment runs in seconds",
			Buckets: []float64{30, 60, 120, 300, 600, 900, 1200, 1800, 3600},
		},
		[]string{"environment"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shepherd_stage_duration_seconds",
			Help:    "Time spent in each deployment stage in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"stage"},
	)

	StageFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shepherd_stage_failures_total",
			Help: "Total number of failed stages by stage and error kind",
		},
		[]string{"stage", "kind"},
	)

	// Instance metrics
	InstanceLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shepherd_instance_latency_seconds",
			Help:    "Functional probe latency per instance in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ProbeFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shepherd_probe_failures_total",
			Help: "Total number of failed instance probes by probe",
		},
		[]string{"probe"},
	)

	SlowInstancesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shepherd_slow_instances_total",
			Help: "Total number of instances flagged as slow after convergence",
		},
	)

	// Rollback metrics
	RollbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shepherd_rollbacks_total",
			Help: "Total number of rollbacks by outcome",
		},
		[]string{"outcome"},
	)

	NotificationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shepherd_notification_failures_total",
			Help: "Total number of notifications that could not be delivered",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(DeploymentsTotal)
	prometheus.MustRegister(DeploymentDuration)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(StageFailuresTotal)
	prometheus.MustRegister(InstanceLatency)
	prometheus.MustRegister(ProbeFailuresTotal)
	prometheus.MustRegister(SlowInstancesTotal)
	prometheus.MustRegister(RollbacksTotal)
	prometheus.MustRegister(NotificationFailuresTotal)
}
