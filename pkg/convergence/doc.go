/*
Package convergence verifies a freshly rolled out fleet.

Every polling round runs two probes against every instance concurrently and
waits for all of them before judging the round:

  - liveness: GET /health must return 200 with {"status": "healthy"}
  - functional: POST /analyze with a fixed synthetic text must return 200
    with a "sentiment" field

The verdict is all-or-nothing. One instance failing either probe keeps the
fleet unhealthy until the next round, and the run fails when the health
timeout elapses first.

Once the fleet converges, one more functional request per instance
measures latency. On timeout the last round's latencies are kept and no
further request is sent. Instances above the latency threshold are
flagged Slow in their HealthReport; this never fails the run.
*/
package convergence
