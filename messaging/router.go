package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/glimte/gdn-bridge/contracts"
)

// ErrNoHandler is returned by Handle for a message name nobody registered
var ErrNoHandler = errors.New("messaging: no handler registered")

// HandlerFunc processes one inbound message
type HandlerFunc func(ctx context.Context, msg contracts.Message) error

// MiddlewareFunc processes messages before they reach handlers
type MiddlewareFunc func(ctx context.Context, msg contracts.Message, next HandlerFunc) error

// Router routes inbound messages to handlers by message name
type Router struct {
	handlers   map[string][]HandlerFunc
	mu         sync.RWMutex
	logger     *slog.Logger
	middleware []MiddlewareFunc
}

// RouterOption configures the Router
type RouterOption func(*Router)

// WithRouterLogger sets the logger
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithMiddleware adds middleware to the router
func WithMiddleware(middleware ...MiddlewareFunc) RouterOption {
	return func(r *Router) {
		r.middleware = append(r.middleware, middleware...)
	}
}

// NewRouter creates a new router
func NewRouter(options ...RouterOption) *Router {
	r := &Router{
		handlers: make(map[string][]HandlerFunc),
		logger:   slog.Default(),
	}

	for _, opt := range options {
		opt(r)
	}

	return r
}

// Register registers a handler for a message name. Several handlers may be
// registered for one name; they run in registration order.
func (r *Router) Register(name string, handler HandlerFunc) error {
	if name == "" {
		return fmt.Errorf("message name cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[name] = append(r.handlers[name], handler)

	r.logger.Debug("registered message handler", "message", name)
	return nil
}

// Names returns every registered message name, sorted
func (r *Router) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bind subscribes the router to every registered message name on the transport.
// Names registered after Bind are not bound.
func (r *Router) Bind(t Transport) {
	for _, name := range r.Names() {
		name := name
		t.On(name, func(payload []byte) {
			// Errors are already logged by Handle.
			_ = r.Handle(context.Background(), contracts.NewMessage(name, payload))
		})
	}
}

// Handle runs every handler registered for msg.Name. Handler failures and
// panics are logged and returned, never propagated to the transport.
func (r *Router) Handle(ctx context.Context, msg contracts.Message) error {
	r.mu.RLock()
	handlers := make([]HandlerFunc, len(r.handlers[msg.Name]))
	copy(handlers, r.handlers[msg.Name])
	r.mu.RUnlock()

	if len(handlers) == 0 {
		r.logger.Debug("no handler registered for message", "message", msg.Name)
		return fmt.Errorf("%w: %s", ErrNoHandler, msg.Name)
	}

	var errs []error
	for _, handler := range handlers {
		if err := r.invoke(ctx, r.buildMiddlewareChain(handler), msg); err != nil {
			r.logger.Warn("dropping inbound message",
				"message", msg.Name,
				"error", err,
			)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (r *Router) invoke(ctx context.Context, handler HandlerFunc, msg contracts.Message) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic for %s: %v", msg.Name, p)
		}
	}()
	return handler(ctx, msg)
}

// buildMiddlewareChain builds the middleware execution chain
func (r *Router) buildMiddlewareChain(handler HandlerFunc) HandlerFunc {
	if len(r.middleware) == 0 {
		return handler
	}

	result := handler
	for i := len(r.middleware) - 1; i >= 0; i-- {
		middleware := r.middleware[i]
		next := result
		result = func(ctx context.Context, msg contracts.Message) error {
			return middleware(ctx, msg, next)
		}
	}

	return result
}

// MetricsMiddleware reports every routed message to the collector
func MetricsMiddleware(collector MetricsCollector) MiddlewareFunc {
	return func(ctx context.Context, msg contracts.Message, next HandlerFunc) error {
		err := next(ctx, msg)
		collector.RecordEvent(msg.Name, err == nil)
		return err
	}
}

// LoggingMiddleware logs every routed message at debug level
func LoggingMiddleware(logger *slog.Logger) MiddlewareFunc {
	return func(ctx context.Context, msg contracts.Message, next HandlerFunc) error {
		start := time.Now()
		err := next(ctx, msg)
		logger.Debug("routed inbound message",
			"message", msg.Name,
			"bytes", len(msg.Payload),
			"duration", time.Since(start),
			"ok", err == nil,
		)
		return err
	}
}
