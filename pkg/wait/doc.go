// Package wait provides the bounded polling combinator shared by the
// readiness poller and the health convergence checker.
//
// A Waiter is parameterized by an overall timeout and a fixed interval.
// Until evaluates a condition immediately, then once per interval, and gives
// up exactly at the timeout: the condition receives a context that expires
// at the deadline, so a slow probe never extends the wait.
//
//	w := wait.NewWaiter(10*time.Minute, 15*time.Second)
//	err := w.Until(ctx, "instances to accept SSH", func(ctx context.Context) (bool, error) {
//		return allReachable(ctx), nil
//	})
//	if errors.Is(err, wait.ErrTimeout) {
//		// deadline elapsed
//	}
package wait
