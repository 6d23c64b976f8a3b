/*
Package health provides the probe primitives Shepherd uses to decide whether
an instance is reachable, alive and functional.

Four checkers implement the Checker interface:

	┌──────────────────────────────────────────────────────────────┐
	│                     Checker Interface                        │
	│  • Check(ctx) Result                                         │
	│  • Type() CheckType                                          │
	└────────┬─────────────────────────────────────────────────────┘
	         │
	    ┌────┴──────┬───────────┬──────────┐
	    ▼           ▼           ▼          ▼
	┌────────┐  ┌───────┐  ┌────────┐  ┌────────┐
	│  HTTP  │  │  TCP  │  │  gRPC  │  │  Exec  │
	└────────┘  └───────┘  └────────┘  └────────┘
	 liveness    SSH port   agent       identity
	 functional  readiness  readiness   check

# HTTP Checks

Liveness and functional probes are HTTP checks. Besides the status range an
HTTPChecker can require a top-level JSON field, optionally with a value:

	liveness := health.NewHTTPChecker("http://10.0.1.12:5000/health").
		WithStatusRange(200, 200).
		WithField("status", "healthy")

	functional := health.NewHTTPChecker("http://10.0.1.12:5000/analyze").
		WithMethod(http.MethodPost).
		WithJSONBody([]byte(`{"text":"looks great"}`)).
		WithStatusRange(200, 200).
		WithField("sentiment", "")

# Control Channel Checks

TCPChecker dials a port (SSH by default). GRPCChecker calls the standard
grpc.health.v1.Health/Check RPC and requires SERVING. CheckerFunc values
build a checker per instance address so pollers stay agnostic of the
protocol:

	newChecker := health.TCPCheckerFor(22, 5*time.Second)
	result := newChecker("10.0.1.12").Check(ctx)

# Exec Checks

ExecChecker runs a local command; exit code 0 is healthy. The environment
validator uses it to confirm cloud credentials are accepted.

Every Result carries the measured Duration, which the convergence checker
reports as per-instance latency.
*/
package health
