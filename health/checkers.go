package health

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// Pinger is satisfied by *bridge.Bridge
type Pinger interface {
	Ping(ctx context.Context) error
}

// Connectivity is satisfied by transports that track their connection
type Connectivity interface {
	IsConnected() bool
}

// PingChecker reports whether the host answers a ping within the bridge's
// heartbeat timeout. A ping slower than slowThreshold is degraded.
type PingChecker struct {
	pinger        Pinger
	slowThreshold time.Duration
}

// NewPingChecker creates a ping checker. A zero slowThreshold never degrades.
func NewPingChecker(pinger Pinger, slowThreshold time.Duration) *PingChecker {
	return &PingChecker{pinger: pinger, slowThreshold: slowThreshold}
}

func (c *PingChecker) Name() string {
	return "gdn"
}

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   make(map[string]interface{}),
	}

	err := c.pinger.Ping(ctx)
	result.Duration = time.Since(start)
	result.Details["latency_ms"] = result.Duration.Milliseconds()

	switch {
	case err != nil:
		result.Status = StatusUnhealthy
		result.Message = "Host did not answer ping"
		result.Error = err.Error()
	case c.slowThreshold > 0 && result.Duration > c.slowThreshold:
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("Host answered ping slowly (%s)", result.Duration)
	default:
		result.Status = StatusHealthy
		result.Message = "Host is responsive"
	}
	return result
}

// TransportChecker reports the transport's connection state
type TransportChecker struct {
	name      string
	transport Connectivity
}

// NewTransportChecker creates a transport checker reported under name
func NewTransportChecker(name string, transport Connectivity) *TransportChecker {
	return &TransportChecker{name: name, transport: transport}
}

func (c *TransportChecker) Name() string {
	return c.name
}

func (c *TransportChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
	}

	if c.transport.IsConnected() {
		result.Status = StatusHealthy
		result.Message = "Transport is connected"
	} else {
		result.Status = StatusUnhealthy
		result.Message = "Transport is disconnected"
	}

	result.Duration = time.Since(start)
	return result
}

// GoroutineChecker degrades when the process runs more goroutines than
// expected, which usually means receive-path handlers are piling up
type GoroutineChecker struct {
	warningThreshold  int
	criticalThreshold int
}

// NewGoroutineChecker creates a goroutine count checker
func NewGoroutineChecker(warningThreshold, criticalThreshold int) *GoroutineChecker {
	return &GoroutineChecker{
		warningThreshold:  warningThreshold,
		criticalThreshold: criticalThreshold,
	}
}

func (c *GoroutineChecker) Name() string {
	return "runtime"
}

func (c *GoroutineChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   make(map[string]interface{}),
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	goroutines := runtime.NumGoroutine()
	result.Details["memory_used_mb"] = float64(m.Sys) / 1024 / 1024
	result.Details["gc_runs"] = m.NumGC
	result.Details["goroutines"] = goroutines

	switch {
	case goroutines > c.criticalThreshold:
		result.Status = StatusUnhealthy
		result.Message = fmt.Sprintf("Too many goroutines: %d", goroutines)
	case goroutines > c.warningThreshold:
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("High goroutine count: %d", goroutines)
	default:
		result.Status = StatusHealthy
		result.Message = "Goroutine count is normal"
	}

	result.Duration = time.Since(start)
	return result
}
