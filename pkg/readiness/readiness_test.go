package readiness

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuemby/shepherd/pkg/health"
	"github.com/cuemby/shepherd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type probe func(ctx context.Context) bool

func (p probe) Check(ctx context.Context) health.Result {
	return health.Result{Healthy: p(ctx), CheckedAt: time.Now()}
}

func (p probe) Type() health.CheckType { return health.CheckTypeTCP }

// scripted returns a CheckerFunc where each address becomes reachable
// after the given number of failed attempts; negative means never
type scripted struct {
	mu       sync.Mutex
	failures map[string]int
	attempts map[string]int
}

func newScripted(failures map[string]int) *scripted {
	return &scripted{failures: failures, attempts: map[string]int{}}
}

func (s *scripted) checkerFunc() health.CheckerFunc {
	return func(addr string) health.Checker {
		return probe(func(ctx context.Context) bool {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.attempts[addr]++
			n := s.failures[addr]
			return n >= 0 && s.attempts[addr] > n
		})
	}
}

func (s *scripted) attemptsFor(addr string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[addr]
}

func TestWaitAll_AllReachable(t *testing.T) {
	s := newScripted(map[string]int{"10.0.0.1": 0, "10.0.0.2": 2})
	p := NewPoller(time.Second, 10*time.Millisecond, s.checkerFunc())

	require.NoError(t, p.WaitAll(context.Background(), []string{"10.0.0.1", "10.0.0.2"}))

	assert.Equal(t, 1, s.attemptsFor("10.0.0.1"), "reached instances are not probed again")
	assert.Equal(t, 3, s.attemptsFor("10.0.0.2"))
}

func TestWaitAll_OneUnreachableFailsAtTimeout(t *testing.T) {
	s := newScripted(map[string]int{"10.0.0.1": 0, "10.0.0.2": 0, "10.0.0.3": -1})
	timeout := 200 * time.Millisecond
	p := NewPoller(timeout, 20*time.Millisecond, s.checkerFunc())

	start := time.Now()
	err := p.WaitAll(context.Background(), []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrReadinessTimeout)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+150*time.Millisecond)

	var de *types.DeployError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, []string{"10.0.0.3"}, de.Addresses)
}

func TestWaitAll_ProbesRunConcurrently(t *testing.T) {
	var inFlight, peak int32
	checker := func(addr string) health.Checker {
		return probe(func(ctx context.Context) bool {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(30 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return true
		})
	}

	p := NewPoller(time.Second, 10*time.Millisecond, checker)
	require.NoError(t, p.WaitAll(context.Background(), []string{"a", "b", "c"}))
	assert.Equal(t, int32(3), atomic.LoadInt32(&peak))
}

func TestWaitAll_Canceled(t *testing.T) {
	s := newScripted(map[string]int{"10.0.0.1": -1})
	p := NewPoller(time.Minute, 10*time.Millisecond, s.checkerFunc())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	err := p.WaitAll(ctx, []string{"10.0.0.1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitAll_NoAddresses(t *testing.T) {
	p := NewPoller(time.Second, 10*time.Millisecond, newScripted(nil).checkerFunc())
	assert.Error(t, p.WaitAll(context.Background(), nil))
}

func TestCheckerFor(t *testing.T) {
	fn, err := CheckerFor(Config{})
	require.NoError(t, err)
	assert.Equal(t, health.CheckTypeTCP, fn("10.0.0.1").Type())

	fn, err = CheckerFor(Config{Protocol: ProtocolGRPC, Port: 7946})
	require.NoError(t, err)
	assert.Equal(t, health.CheckTypeGRPC, fn("10.0.0.1").Type())

	_, err = CheckerFor(Config{Protocol: ProtocolGRPC})
	assert.Error(t, err)

	_, err = CheckerFor(Config{Protocol: "ssh"})
	assert.Error(t, err)
}
