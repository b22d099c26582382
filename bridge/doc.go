// Package bridge provides synchronous calls and typed events over an
// asynchronous named-message transport connected to a GDN host.
//
// The bridge package lets the controller process talk to the host as if the
// transport supported request-response. Outbound notifications are sent and
// forgotten; call-style operations send a message carrying a correlation id
// and block until the matching response arrives or a deadline passes.
//
// Key features:
//   - Bounded waits via RunWithDeadline, with the timer released on every path
//   - Correlation id management in PendingCalls, resolved at most once
//   - Late or unmatched responses dropped without disturbing other calls
//   - Typed signals for unsolicited host messages
//   - Timeouts read once from the environment at construction
//
// Basic usage:
//
//	b, err := bridge.New(transport, bridge.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close()
//
//	b.CommandReceived().Subscribe(func(cmd contracts.CommandRequest) {
//	    runCommand(cmd.CommandID)
//	})
//
//	if err := b.Ping(ctx); err != nil {
//	    log.Printf("host not responding: %v", err)
//	}
//
// Unsolicited host messages are decoded on the transport's receive goroutine
// and published, in arrival order, from one goroutine owned by the bridge.
// Subscribers may therefore call Ping, Call or ActiveDocumentPath; the
// response is correlated on the receive path while the subscriber waits.
// A slow subscriber delays later events but never the transport.
//
// Timeouts come from SHOTGUN_GDN_HEARTBEAT_TIMEOUT (default 0.5s) and
// SHOTGUN_GDN_RESPONSE_TIMEOUT (default 300s), given in seconds or as Go
// duration strings. A value that does not parse, or is not positive, makes
// New fail.
package bridge
