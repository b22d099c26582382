// Package metrics exports bridge activity as Prometheus metrics.
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/glimte/gdn-bridge/messaging"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "gdn_bridge"

	resultSuccess = "success"
	resultFailure = "failure"
)

// PrometheusCollector implements messaging.MetricsCollector
type PrometheusCollector struct {
	mu sync.Mutex

	callsTotal     *prometheus.CounterVec
	callDuration   *prometheus.HistogramVec
	emitsTotal     *prometheus.CounterVec
	eventsTotal    *prometheus.CounterVec
	lateResponses  *prometheus.CounterVec
	pendingCalls   prometheus.GaugeFunc
	pendingCountFn func() int

	registerer prometheus.Registerer
	registered bool
}

var _ messaging.MetricsCollector = (*PrometheusCollector)(nil)

func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newHistogramVec(name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}

// NewPrometheusCollector creates a collector that registers with registerer,
// or with the default registerer when it is nil
func NewPrometheusCollector(registerer prometheus.Registerer) *PrometheusCollector {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	c := &PrometheusCollector{
		registerer:    registerer,
		callsTotal:    newCounterVec("calls_total", "Call-style operations by outcome", []string{"op", "outcome"}),
		callDuration:  newHistogramVec("call_duration_seconds", "Time from sending a request to its response or deadline", []float64{.005, .01, .05, .1, .25, .5, 1, 5, 30, 120, 300}, []string{"op"}),
		emitsTotal:    newCounterVec("emitted_messages_total", "Outbound messages by name and result", []string{"message", "result"}),
		eventsTotal:   newCounterVec("received_messages_total", "Inbound messages by name and whether they were handled", []string{"message", "result"}),
		lateResponses: newCounterVec("late_responses_total", "Responses that matched no pending call", []string{"message"}),
	}
	c.pendingCalls = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_calls",
			Help:      "Calls awaiting a response",
		},
		c.pendingCount,
	)
	return c
}

// Register registers the collectors. Safe to call multiple times. When the
// registerer already holds the same series, the collector records into the
// existing ones. Call it before recording.
func (c *PrometheusCollector) Register() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.registered {
		return nil
	}

	var err error
	if c.callsTotal, err = register(c.registerer, c.callsTotal); err != nil {
		return err
	}
	if c.callDuration, err = register(c.registerer, c.callDuration); err != nil {
		return err
	}
	if c.emitsTotal, err = register(c.registerer, c.emitsTotal); err != nil {
		return err
	}
	if c.eventsTotal, err = register(c.registerer, c.eventsTotal); err != nil {
		return err
	}
	if c.lateResponses, err = register(c.registerer, c.lateResponses); err != nil {
		return err
	}
	// An existing pending_calls gauge keeps reporting its own tracker
	if c.pendingCalls, err = register(c.registerer, c.pendingCalls); err != nil {
		return err
	}

	c.registered = true
	return nil
}

// register returns the collector already registered under the same
// descriptors, if any, so recorded values reach the registry
func register[T prometheus.Collector](registerer prometheus.Registerer, collector T) (T, error) {
	err := registerer.Register(collector)
	if err == nil {
		return collector, nil
	}

	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing, nil
		}
	}
	return collector, err
}

// TrackPending reports fn as the pending_calls gauge, typically
// Bridge.PendingCount
func (c *PrometheusCollector) TrackPending(fn func() int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingCountFn = fn
}

func (c *PrometheusCollector) pendingCount() float64 {
	c.mu.Lock()
	fn := c.pendingCountFn
	c.mu.Unlock()

	if fn == nil {
		return 0
	}
	return float64(fn())
}

// RecordCall implements messaging.MetricsCollector
func (c *PrometheusCollector) RecordCall(op string, duration time.Duration, outcome string) {
	c.callsTotal.WithLabelValues(op, outcome).Inc()
	c.callDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordEmit implements messaging.MetricsCollector
func (c *PrometheusCollector) RecordEmit(name string, success bool) {
	c.emitsTotal.WithLabelValues(name, result(success)).Inc()
}

// RecordEvent implements messaging.MetricsCollector
func (c *PrometheusCollector) RecordEvent(name string, success bool) {
	c.eventsTotal.WithLabelValues(name, result(success)).Inc()
}

// RecordLateResponse implements messaging.MetricsCollector
func (c *PrometheusCollector) RecordLateResponse(name string) {
	c.lateResponses.WithLabelValues(name).Inc()
}

// Reset clears every series (useful for testing)
func (c *PrometheusCollector) Reset() {
	c.callsTotal.Reset()
	c.callDuration.Reset()
	c.emitsTotal.Reset()
	c.eventsTotal.Reset()
	c.lateResponses.Reset()
}

func result(success bool) string {
	if success {
		return resultSuccess
	}
	return resultFailure
}
