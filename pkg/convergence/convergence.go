package convergence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cuemby/shepherd/pkg/health"
	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/metrics"
	"github.com/cuemby/shepherd/pkg/types"
	"github.com/cuemby/shepherd/pkg/wait"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Checker polls every instance until all pass both probes
type Checker struct {
	liveness         health.CheckerFunc
	functional       health.CheckerFunc
	interval         time.Duration
	latencyThreshold time.Duration
	logger           zerolog.Logger
}

// NewChecker creates a convergence checker. Instances whose functional
// probe is slower than latencyThreshold are flagged, never failed.
func NewChecker(liveness, functional health.CheckerFunc, interval, latencyThreshold time.Duration) *Checker {
	return &Checker{
		liveness:         liveness,
		functional:       functional,
		interval:         interval,
		latencyThreshold: latencyThreshold,
		logger:           log.WithComponent("convergence"),
	}
}

// Converge polls addrs until every instance is healthy or timeout elapses.
// The reports of the last round are returned in both cases, annotated with
// latency from a final measurement pass.
func (c *Checker) Converge(ctx context.Context, addrs []string, timeout time.Duration) ([]types.HealthReport, error) {
	if len(addrs) == 0 {
		return nil, types.NewError(types.KindHealthTimeout, nil, "no instances to verify")
	}

	var reports []types.HealthReport
	round := 0
	waiter := wait.NewWaiter(timeout, c.interval)

	err := waiter.Until(ctx, "instances to become healthy", func(ctx context.Context) (bool, error) {
		round++
		reports = c.probeAll(ctx, addrs)

		healthy := 0
		for _, r := range reports {
			if r.Healthy() {
				healthy++
			}
		}
		c.logger.Info().
			Int("round", round).
			Int("healthy", healthy).
			Int("total", len(addrs)).
			Msg("Health poll")
		return types.AllHealthy(reports), nil
	})

	if err == nil {
		c.measureLatency(ctx, reports)
		c.logger.Info().Int("rounds", round).Msg("All instances healthy")
		return reports, nil
	}

	// the last round's latencies stand; another request could outlive the
	// timeout
	c.flagSlow(reports)

	unhealthy := unhealthyAddresses(reports, addrs)
	if errors.Is(err, wait.ErrTimeout) {
		c.logger.Error().Strs("unhealthy", unhealthy).Dur("timeout", timeout).Msg("Health convergence timed out")
		return reports, types.NewError(types.KindHealthTimeout, err, "%d of %d instances unhealthy", len(unhealthy), len(addrs)).
			WithAddresses(unhealthy)
	}
	if ctx.Err() != nil {
		return reports, types.NewError(types.KindCanceled, err, "health verification aborted")
	}
	return reports, types.NewError(types.KindHealthTimeout, err, "health verification failed")
}

// probeAll runs both probes on every address concurrently and returns
// once all have reported
func (c *Checker) probeAll(ctx context.Context, addrs []string) []types.HealthReport {
	reports := make([]types.HealthReport, len(addrs))

	var g errgroup.Group
	for i, addr := range addrs {
		g.Go(func() error {
			reports[i] = c.probe(ctx, addr)
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

func (c *Checker) probe(ctx context.Context, addr string) types.HealthReport {
	r := types.HealthReport{Address: addr, CheckedAt: time.Now()}
	var messages []string

	live := c.liveness(addr).Check(ctx)
	r.Live = live.Healthy
	if !live.Healthy {
		metrics.ProbeFailuresTotal.WithLabelValues("liveness").Inc()
		messages = append(messages, "liveness: "+live.Message)
	}

	functional := c.functional(addr).Check(ctx)
	r.Functional = functional.Healthy
	r.Latency = functional.Duration
	if !functional.Healthy {
		metrics.ProbeFailuresTotal.WithLabelValues("functional").Inc()
		messages = append(messages, "functional: "+functional.Message)
	}

	r.Message = strings.Join(messages, "; ")
	return r
}

// measureLatency times one functional request per instance and flags the
// slow ones. It never changes the verdict.
func (c *Checker) measureLatency(ctx context.Context, reports []types.HealthReport) {
	var g errgroup.Group
	for i := range reports {
		g.Go(func() error {
			res := c.functional(reports[i].Address).Check(ctx)
			if res.Healthy {
				reports[i].Latency = res.Duration
			}
			return nil
		})
	}
	_ = g.Wait()
	c.flagSlow(reports)
}

// flagSlow marks and logs the instances over the latency threshold
func (c *Checker) flagSlow(reports []types.HealthReport) {
	if c.latencyThreshold <= 0 {
		return
	}
	for i := range reports {
		reports[i].Slow = reports[i].Functional && reports[i].Latency > c.latencyThreshold
	}

	for _, r := range reports {
		if r.Slow {
			c.logger.Warn().
				Str("address", r.Address).
				Dur("latency", r.Latency).
				Dur("threshold", c.latencyThreshold).
				Msg("Instance is slow")
		}
	}
}

func unhealthyAddresses(reports []types.HealthReport, addrs []string) []string {
	if len(reports) == 0 {
		return append([]string(nil), addrs...)
	}
	var out []string
	for _, r := range reports {
		if !r.Healthy() {
			out = append(out, r.Address)
		}
	}
	return out
}
