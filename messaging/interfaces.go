package messaging

import (
	"time"
)

// Call outcomes reported to MetricsCollector.RecordCall
const (
	OutcomeOK      = "ok"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// MetricsCollector collects bridge metrics
type MetricsCollector interface {
	// RecordCall records a call-style operation and how it ended
	RecordCall(op string, duration time.Duration, outcome string)

	// RecordEmit records an outbound message
	RecordEmit(name string, success bool)

	// RecordEvent records an inbound message and whether it was handled
	RecordEvent(name string, success bool)

	// RecordLateResponse records a response that matched no pending call
	RecordLateResponse(name string)
}

// NoOpMetricsCollector is a no-op implementation of MetricsCollector
type NoOpMetricsCollector struct{}

// RecordCall does nothing
func (n *NoOpMetricsCollector) RecordCall(op string, duration time.Duration, outcome string) {}

// RecordEmit does nothing
func (n *NoOpMetricsCollector) RecordEmit(name string, success bool) {}

// RecordEvent does nothing
func (n *NoOpMetricsCollector) RecordEvent(name string, success bool) {}

// RecordLateResponse does nothing
func (n *NoOpMetricsCollector) RecordLateResponse(name string) {}
