// Package readiness blocks until every provisioned instance accepts a
// control connection. One unreachable instance holds back the whole batch.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/shepherd/pkg/health"
	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/types"
	"github.com/cuemby/shepherd/pkg/wait"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Protocol is the control channel checked for readiness
type Protocol string

const (
	ProtocolTCP  Protocol = "tcp"
	ProtocolGRPC Protocol = "grpc"
)

// Config describes the control channel and the polling bounds
type Config struct {
	Protocol Protocol      `yaml:"protocol" mapstructure:"protocol"`
	Port     int           `yaml:"port" mapstructure:"port"`
	Service  string        `yaml:"grpc_service" mapstructure:"grpc_service"`
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// DialTimeout bounds a single connection attempt
	DialTimeout time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
}

// CheckerFor returns the per-address checker for cfg.Protocol
func CheckerFor(cfg Config) (health.CheckerFunc, error) {
	switch cfg.Protocol {
	case ProtocolTCP, "":
		port := cfg.Port
		if port == 0 {
			port = 22
		}
		return health.TCPCheckerFor(port, cfg.DialTimeout), nil
	case ProtocolGRPC:
		if cfg.Port == 0 {
			return nil, fmt.Errorf("grpc readiness requires a port")
		}
		return health.GRPCCheckerFor(cfg.Port, cfg.Service, cfg.DialTimeout), nil
	default:
		return nil, fmt.Errorf("unknown readiness protocol %q", cfg.Protocol)
	}
}

// Poller checks every address at a fixed interval until all of them have
// responded once
type Poller struct {
	waiter  *wait.Waiter
	checker health.CheckerFunc
	logger  zerolog.Logger
}

// NewPoller creates a poller bounded by timeout
func NewPoller(timeout, interval time.Duration, checker health.CheckerFunc) *Poller {
	return &Poller{
		waiter:  wait.NewWaiter(timeout, interval),
		checker: checker,
		logger:  log.WithComponent("readiness"),
	}
}

// WaitAll returns once every address has accepted a connection. On timeout
// the error carries the addresses that never became reachable.
func (p *Poller) WaitAll(ctx context.Context, addrs []string) error {
	if len(addrs) == 0 {
		return types.NewError(types.KindReadinessTimeout, nil, "no instances to wait for")
	}

	var mu sync.Mutex
	reached := make(map[string]bool, len(addrs))
	round := 0

	err := p.waiter.Until(ctx, "instances to become reachable", func(ctx context.Context) (bool, error) {
		round++
		pending := p.pending(addrs, reached, &mu)

		var g errgroup.Group
		for _, addr := range pending {
			g.Go(func() error {
				result := p.checker(addr).Check(ctx)
				if result.Healthy {
					mu.Lock()
					reached[addr] = true
					mu.Unlock()
					p.logger.Debug().Str("address", addr).Msg("Instance reachable")
				}
				return nil
			})
		}
		_ = g.Wait()

		remaining := p.pending(addrs, reached, &mu)
		p.logger.Info().
			Int("round", round).
			Int("reachable", len(addrs)-len(remaining)).
			Int("total", len(addrs)).
			Msg("Readiness poll")
		return len(remaining) == 0, nil
	})
	if err == nil {
		return nil
	}

	unreachable := p.pending(addrs, reached, &mu)
	if errors.Is(err, wait.ErrTimeout) {
		p.logger.Error().Strs("unreachable", unreachable).Dur("timeout", p.waiter.Timeout()).Msg("Instances never became reachable")
		return types.NewError(types.KindReadinessTimeout, err, "%d of %d instances unreachable", len(unreachable), len(addrs)).
			WithAddresses(unreachable)
	}
	if ctx.Err() != nil {
		return types.NewError(types.KindCanceled, err, "readiness wait aborted").WithAddresses(unreachable)
	}
	return types.NewError(types.KindReadinessTimeout, err, "readiness wait failed").WithAddresses(unreachable)
}

func (p *Poller) pending(addrs []string, reached map[string]bool, mu *sync.Mutex) []string {
	mu.Lock()
	defer mu.Unlock()

	var out []string
	for _, a := range addrs {
		if !reached[a] {
			out = append(out, a)
		}
	}
	sort.Strings(out)
	return out
}
