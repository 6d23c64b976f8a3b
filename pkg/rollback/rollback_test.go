package rollback

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuemby/shepherd/pkg/health"
	"github.com/cuemby/shepherd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRestorer struct {
	calls atomic.Int32
	err   error
}

func (s *stubRestorer) Restore(ctx context.Context, backup *types.Backup) error {
	s.calls.Add(1)
	return s.err
}

type stubProbe bool

func (p stubProbe) Check(ctx context.Context) health.Result {
	return health.Result{Healthy: bool(p), Message: "stub"}
}

func (p stubProbe) Type() health.CheckType { return health.CheckTypeHTTP }

func liveness(down ...string) (health.CheckerFunc, *atomic.Int32) {
	var probes atomic.Int32
	return func(addr string) health.Checker {
		probes.Add(1)
		for _, d := range down {
			if d == addr {
				return stubProbe(false)
			}
		}
		return stubProbe(true)
	}, &probes
}

var backup = &types.Backup{Addresses: []string{"10.0.0.1", "10.0.0.2"}, Image: "app:v1"}

func TestRollback_Verified(t *testing.T) {
	r := &stubRestorer{}
	probe, probes := liveness()
	c := NewController(r, probe, 20*time.Millisecond, time.Second)

	start := time.Now()
	require.NoError(t, c.Rollback(context.Background(), backup))

	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond, "waits for the settle period")
	assert.Equal(t, int32(1), r.calls.Load())
	assert.Equal(t, int32(2), probes.Load(), "one probe per previous address")
	assert.True(t, c.Attempted())
}

func TestRollback_AtMostOnce(t *testing.T) {
	r := &stubRestorer{}
	probe, _ := liveness()
	c := NewController(r, probe, 0, time.Second)

	require.NoError(t, c.Rollback(context.Background(), backup))
	err := c.Rollback(context.Background(), backup)

	assert.ErrorIs(t, err, types.ErrRollback)
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestRollback_RestoreFails(t *testing.T) {
	r := &stubRestorer{err: errors.New("state push rejected")}
	probe, probes := liveness()
	c := NewController(r, probe, 0, time.Second)

	err := c.Rollback(context.Background(), backup)
	assert.ErrorIs(t, err, types.ErrRollback)
	assert.Contains(t, err.Error(), "state push rejected")
	assert.Equal(t, int32(0), probes.Load())
}

func TestRollback_LivenessFails(t *testing.T) {
	probe, _ := liveness("10.0.0.2")
	c := NewController(&stubRestorer{}, probe, 0, time.Second)

	err := c.Rollback(context.Background(), backup)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrRollback)

	var de *types.DeployError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, []string{"10.0.0.2"}, de.Addresses)
}

func TestRollback_EmptyBackup(t *testing.T) {
	r := &stubRestorer{}
	probe, _ := liveness()
	c := NewController(r, probe, 0, time.Second)

	assert.ErrorIs(t, c.Rollback(context.Background(), &types.Backup{}), types.ErrRollback)
	assert.Equal(t, int32(0), r.calls.Load())
}

func TestRollback_SettleBoundedByTimeout(t *testing.T) {
	probe, _ := liveness()
	c := NewController(&stubRestorer{}, probe, time.Minute, 50*time.Millisecond)

	start := time.Now()
	err := c.Rollback(context.Background(), backup)
	assert.ErrorIs(t, err, types.ErrRollback)
	assert.Less(t, time.Since(start), time.Second)
}
