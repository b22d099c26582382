// Package messaging provides the receive-side plumbing of the bridge.
//
// This package implements:
//   - Transport: the named-message boundary the bridge is built on
//   - Router: maps inbound message names to decode-and-publish handlers
//   - Signal: a typed publish point that downstream consumers subscribe to
//   - MetricsCollector: the hook used to observe calls, emits and events
//
// Routing is synchronous. A transport delivers a message on its receive
// goroutine, the router runs every handler registered for that name in
// registration order, and each handler publishes to its Signal, which in
// turn calls every subscriber in subscription order. Nothing is queued, so a
// slow subscriber delays the next inbound message. That backpressure is the
// price of strict per-kind delivery order.
//
// Example usage:
//
//	logs := messaging.NewSignal[contracts.LogRecord]("logging_received")
//	sub := logs.Subscribe(func(rec contracts.LogRecord) {
//		fmt.Println(rec.Level, rec.Message)
//	})
//	defer sub.Unsubscribe()
//
//	router := messaging.NewRouter()
//	_ = router.Register("logging", func(ctx context.Context, msg contracts.Message) error {
//		var rec contracts.LogRecord
//		if err := json.Unmarshal(msg.Payload, &rec); err != nil {
//			return &contracts.DecodeError{Name: msg.Name, Err: err}
//		}
//		logs.Publish(rec)
//		return nil
//	})
//	router.Bind(transport)
package messaging
