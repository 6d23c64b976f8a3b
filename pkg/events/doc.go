/*
Package events provides an in-memory event broker for deployment progress.

The orchestrator publishes an event whenever a run enters a stage, starts or
completes a rollback, flags a slow instance, or reaches a terminal state.
The CLI subscribes to print progress lines; other subscribers (tests,
future integrations) see the same stream.

# Delivery

	Publisher → Event Channel (buffer: 100) → broadcast loop
	                                             ↓
	                          Subscriber Channels (buffer: 50 each)

Publish never blocks on a slow subscriber: a subscriber whose buffer is full
misses the event. Stop delivers events already queued before returning, so
a subscriber that is drained after Stop sees the terminal event of the run.

# Usage

	broker := events.NewBroker()
	broker.Start()

	sub := broker.Subscribe()
	go func() {
		for ev := range sub {
			fmt.Printf("[%s] %s\n", ev.Type, ev.Message)
		}
	}()

	orchestrator.Run(ctx, req)

	broker.Stop()
	broker.Unsubscribe(sub)

Components that do not care about events take events.Discard.
*/
package events
