package convergence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuemby/shepherd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type appServer struct {
	srv        *httptest.Server
	healthyAt  int32 // liveness passes from this request number on
	functional atomic.Bool
	delay      atomic.Int64
	calls      atomic.Int32
}

func newAppServer(t *testing.T, healthyAt int32, functional bool) *appServer {
	t.Helper()
	a := &appServer{healthyAt: healthyAt}
	a.functional.Store(functional)
	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			n := a.calls.Add(1)
			status := "starting"
			if n >= a.healthyAt {
				status = "healthy"
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
		case "/analyze":
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			select {
			case <-time.After(time.Duration(a.delay.Load())):
			case <-r.Context().Done():
				return
			}
			if !a.functional.Load() {
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "model not loaded"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"sentiment": "positive"})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(a.srv.Close)
	return a
}

func (a *appServer) addr() string {
	return strings.TrimPrefix(a.srv.URL, "http://")
}

func testChecker(threshold time.Duration) *Checker {
	cfg := DefaultProbeConfig()
	cfg.Port = 0
	cfg.Timeout = time.Second
	return NewChecker(cfg.Liveness(), cfg.Functional(), 20*time.Millisecond, threshold)
}

func TestConverge_AllHealthy(t *testing.T) {
	a := newAppServer(t, 1, true)
	b := newAppServer(t, 2, true)

	reports, err := testChecker(time.Second).Converge(context.Background(), []string{a.addr(), b.addr()}, 2*time.Second)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.True(t, types.AllHealthy(reports))
	assert.Equal(t, a.addr(), reports[0].Address)
	assert.Equal(t, int32(2), b.calls.Load(), "converged within two polling rounds")
	for _, r := range reports {
		assert.False(t, r.Slow)
		assert.Greater(t, r.Latency, time.Duration(0))
	}
}

func TestConverge_OneFunctionalFailureTimesOut(t *testing.T) {
	a := newAppServer(t, 1, true)
	b := newAppServer(t, 1, true)
	c := newAppServer(t, 1, false)
	timeout := 300 * time.Millisecond

	start := time.Now()
	reports, err := testChecker(time.Second).Converge(context.Background(), []string{a.addr(), b.addr(), c.addr()}, timeout)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrHealthTimeout)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+500*time.Millisecond)
	assert.Greater(t, c.calls.Load(), int32(3), "unhealthy instance polled repeatedly")

	var de *types.DeployError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, []string{c.addr()}, de.Addresses)

	require.Len(t, reports, 3)
	assert.False(t, types.AllHealthy(reports))
	assert.True(t, reports[2].Live)
	assert.False(t, reports[2].Functional)
	assert.Contains(t, reports[2].Message, "sentiment")
}

func TestConverge_HangingInstanceDoesNotExtendTimeout(t *testing.T) {
	a := newAppServer(t, 1, true)
	a.delay.Store(int64(5 * time.Second))
	timeout := 300 * time.Millisecond

	start := time.Now()
	reports, err := testChecker(time.Second).Converge(context.Background(), []string{a.addr()}, timeout)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, types.ErrHealthTimeout)
	assert.Less(t, elapsed, timeout+500*time.Millisecond, "no request outlives the health timeout")
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Live)
	assert.False(t, reports[0].Functional)
}

func TestConverge_SlowInstanceIsOnlyFlagged(t *testing.T) {
	fast := newAppServer(t, 1, true)
	slow := newAppServer(t, 1, true)
	slow.delay.Store(int64(60 * time.Millisecond))

	reports, err := testChecker(30*time.Millisecond).Converge(context.Background(), []string{fast.addr(), slow.addr()}, 2*time.Second)
	require.NoError(t, err)
	assert.False(t, reports[0].Slow)
	assert.True(t, reports[1].Slow)
	assert.GreaterOrEqual(t, reports[1].Latency, 60*time.Millisecond)
}

func TestConverge_Canceled(t *testing.T) {
	a := newAppServer(t, 1, false)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := testChecker(time.Second).Converge(ctx, []string{a.addr()}, time.Minute)
	assert.ErrorIs(t, err, types.ErrCanceled)
}

func TestConverge_NoAddresses(t *testing.T) {
	_, err := testChecker(time.Second).Converge(context.Background(), nil, time.Second)
	assert.Error(t, err)
}

func TestProbeConfig_URLs(t *testing.T) {
	cfg := DefaultProbeConfig()
	assert.Equal(t, "http://10.0.0.1:5000/health", cfg.url("10.0.0.1", cfg.LivenessPath))

	cfg.Port = 0
	assert.Equal(t, "http://127.0.0.1:8080/analyze", cfg.url("127.0.0.1:8080", cfg.FunctionalPath))
}
