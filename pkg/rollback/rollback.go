// Package rollback restores the previous deployment after a failed run and
// confirms that it answers a liveness probe. A controller performs at most
// one rollback; a failed rollback is never retried.
package rollback

import (
	"context"
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

// Restorer re-applies captured infrastructure state
type Restorer interface {
	Restore(ctx context.Context, backup *types.Backup) error
}

// Controller drives a single rollback
type Controller struct {
	restorer Restorer
	liveness health.CheckerFunc
	settle   time.Duration
	timeout  time.Duration
	logger   zerolog.Logger

	mu        sync.Mutex
	attempted bool
}

// NewController creates a rollback controller. settle is the pause between
// restore and verification; timeout bounds the whole rollback.
func NewController(restorer Restorer, liveness health.CheckerFunc, settle, timeout time.Duration) *Controller {
	return &Controller{
		restorer: restorer,
		liveness: liveness,
		settle:   settle,
		timeout:  timeout,
		logger:   log.WithComponent("rollback"),
	}
}

// Attempted reports whether Rollback has been called
func (c *Controller) Attempted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempted
}

// Rollback restores backup and probes each previous address once. Any
// error is a KindRollback failure that needs manual intervention.
func (c *Controller) Rollback(ctx context.Context, backup *types.Backup) error {
	c.mu.Lock()
	if c.attempted {
		c.mu.Unlock()
		return types.NewError(types.KindRollback, nil, "rollback already attempted")
	}
	c.attempted = true
	c.mu.Unlock()

	if backup.IsEmpty() {
		return types.NewError(types.KindRollback, nil, "no backup to restore")
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	logger := c.logger.With().Strs("previous_addresses", backup.Addresses).Str("image", backup.Image).Logger()
	logger.Warn().Msg("Rolling back to previous deployment")

	if err := c.restorer.Restore(ctx, backup); err != nil {
		logger.Error().Err(err).Msg("Restore failed, manual intervention required")
		return types.NewError(types.KindRollback, err, "restore of previous state failed")
	}

	logger.Info().Dur("settle", c.settle).Msg("Restore applied, waiting to settle")
	if err := wait.Sleep(ctx, c.settle); err != nil {
		return types.NewError(types.KindRollback, err, "interrupted while settling")
	}

	if failed := c.verify(ctx, backup.Addresses); len(failed) > 0 {
		logger.Error().Strs("failed", failed).Msg("Previous deployment not live after rollback, manual intervention required")
		return types.NewError(types.KindRollback, nil, "previous deployment failed liveness check").WithAddresses(failed)
	}

	logger.Info().Msg("Rollback verified")
	return nil
}

// verify probes every address once, concurrently
func (c *Controller) verify(ctx context.Context, addrs []string) []string {
	var mu sync.Mutex
	var failed []string

	var g errgroup.Group
	for _, addr := range addrs {
		g.Go(func() error {
			res := c.liveness(addr).Check(ctx)
			if !res.Healthy {
				c.logger.Debug().Str("address", addr).Str("result", res.Message).Msg("Liveness probe failed")
				mu.Lock()
				failed = append(failed, addr)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(failed)
	return failed
}
