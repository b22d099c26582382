// Package memory provides an in-process transport pair. Each end delivers
// inbound messages on its own receive goroutine, in the order they were
// emitted, which is the contract the bridge expects from real transports.
package memory

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/glimte/gdn-bridge/contracts"
	"github.com/glimte/gdn-bridge/messaging"
)

// ErrClosed is returned when emitting on or to a closed end
var ErrClosed = errors.New("memory: transport closed")

var _ messaging.ConnectedTransport = (*Transport)(nil)

// Transport is one end of an in-memory connection
type Transport struct {
	name     string
	peer     *Transport
	mu       sync.RWMutex
	handlers map[string][]messaging.TransportHandler
	inbox    chan contracts.Message
	done     chan struct{}
	once     sync.Once
	logger   *slog.Logger
}

type config struct {
	bufferSize int
	logger     *slog.Logger
}

// Option configures a transport pair
type Option func(*config)

// WithBufferSize sets how many undelivered messages each end holds before
// Emit blocks
func WithBufferSize(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// NewPair creates two connected ends. What one emits, the other receives.
func NewPair(options ...Option) (*Transport, *Transport) {
	cfg := &config{
		bufferSize: 256,
		logger:     slog.Default(),
	}
	for _, opt := range options {
		opt(cfg)
	}

	a := newTransport("a", cfg)
	b := newTransport("b", cfg)
	a.peer, b.peer = b, a

	go a.receive()
	go b.receive()

	return a, b
}

func newTransport(name string, cfg *config) *Transport {
	return &Transport{
		name:     name,
		handlers: make(map[string][]messaging.TransportHandler),
		inbox:    make(chan contracts.Message, cfg.bufferSize),
		done:     make(chan struct{}),
		logger:   cfg.logger.With("transport", "memory", "end", name),
	}
}

// On implements messaging.Transport
func (t *Transport) On(name string, handler messaging.TransportHandler) {
	if handler == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[name] = append(t.handlers[name], handler)
}

// Emit implements messaging.Transport
func (t *Transport) Emit(ctx context.Context, name string, payload []byte) error {
	if !t.IsConnected() {
		return ErrClosed
	}

	body := make([]byte, len(payload))
	copy(body, payload)
	msg := contracts.NewMessage(name, body)

	select {
	case t.peer.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return ErrClosed
	case <-t.peer.done:
		return ErrClosed
	}
}

// IsConnected reports whether both ends are open
func (t *Transport) IsConnected() bool {
	select {
	case <-t.done:
		return false
	case <-t.peer.done:
		return false
	default:
		return true
	}
}

// Close closes this end. Undelivered inbound messages are dropped.
func (t *Transport) Close() error {
	t.once.Do(func() {
		close(t.done)
	})
	return nil
}

func (t *Transport) receive() {
	for {
		select {
		case msg := <-t.inbox:
			t.dispatch(msg)
		case <-t.done:
			return
		}
	}
}

func (t *Transport) dispatch(msg contracts.Message) {
	t.mu.RLock()
	handlers := make([]messaging.TransportHandler, len(t.handlers[msg.Name]))
	copy(handlers, t.handlers[msg.Name])
	t.mu.RUnlock()

	if len(handlers) == 0 {
		t.logger.Debug("no handler for message", "message", msg.Name)
		return
	}
	for _, handler := range handlers {
		handler(msg.Payload)
	}
}
