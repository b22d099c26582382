// Package rabbitmq carries bridge messages over an AMQP topic exchange.
//
// Each endpoint publishes a message named N to routing key "<remote>.N" and
// consumes everything under "<local>." from a private, auto-deleted queue.
// Inbound deliveries are dispatched one at a time on a single consumer
// goroutine, so handlers see messages in the order the broker delivers them.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glimte/gdn-bridge/internal/rabbitmq"
	"github.com/glimte/gdn-bridge/messaging"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Defaults for the routing layout
const (
	DefaultExchange   = "gdn.bridge"
	DefaultLocalName  = "controller"
	DefaultRemoteName = "gdn"
)

// ErrTransportClosed is returned by Emit after Close
var ErrTransportClosed = errors.New("rabbitmq transport: closed")

var _ messaging.ConnectedTransport = (*Transport)(nil)

// Config holds the routing layout of one endpoint
type Config struct {
	Exchange   string `yaml:"exchange"`
	LocalName  string `yaml:"local_name"`
	RemoteName string `yaml:"remote_name"`
	Prefetch   int    `yaml:"prefetch"`
}

// DefaultConfig returns the controller-side layout
func DefaultConfig() Config {
	return Config{
		Exchange:   DefaultExchange,
		LocalName:  DefaultLocalName,
		RemoteName: DefaultRemoteName,
		Prefetch:   64,
	}
}

// Validate checks the layout
func (c Config) Validate() error {
	switch {
	case c.Exchange == "":
		return fmt.Errorf("exchange cannot be empty")
	case c.LocalName == "" || c.RemoteName == "":
		return fmt.Errorf("local and remote names cannot be empty")
	case strings.ContainsAny(c.LocalName+c.RemoteName, ".#*"):
		return fmt.Errorf("endpoint names cannot contain '.', '#' or '*'")
	case c.LocalName == c.RemoteName:
		return fmt.Errorf("local and remote names must differ")
	case c.Prefetch < 0:
		return fmt.Errorf("prefetch cannot be negative")
	}
	return nil
}

// Transport implements messaging.ConnectedTransport over RabbitMQ
type Transport struct {
	manager *rabbitmq.ConnectionManager
	config  Config
	queue   string
	logger  *slog.Logger

	mu       sync.RWMutex
	handlers map[string][]messaging.TransportHandler

	sessionMu sync.Mutex
	session   *session
	closed    bool
}

// session is the channel pair of one underlying connection
type session struct {
	publish *amqp.Channel
	pubMu   sync.Mutex
	consume *amqp.Channel
}

type transportOptions struct {
	config            Config
	connectionOptions []rabbitmq.ConnectionOption
	logger            *slog.Logger
}

// TransportOption configures the transport
type TransportOption func(*transportOptions)

// WithConfig replaces the whole routing layout
func WithConfig(cfg Config) TransportOption {
	return func(o *transportOptions) {
		o.config = cfg
	}
}

// WithExchange sets the exchange both endpoints share
func WithExchange(name string) TransportOption {
	return func(o *transportOptions) {
		o.config.Exchange = name
	}
}

// WithEndpoints sets this endpoint's name and its peer's name
func WithEndpoints(local, remote string) TransportOption {
	return func(o *transportOptions) {
		o.config.LocalName = local
		o.config.RemoteName = remote
	}
}

// WithConnectionOptions sets connection options
func WithConnectionOptions(opts ...rabbitmq.ConnectionOption) TransportOption {
	return func(o *transportOptions) {
		o.connectionOptions = append(o.connectionOptions, opts...)
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) TransportOption {
	return func(o *transportOptions) {
		o.logger = logger
	}
}

// NewTransport connects to the broker, declares this endpoint's topology and
// starts consuming
func NewTransport(ctx context.Context, connectionString string, options ...TransportOption) (*Transport, error) {
	o := &transportOptions{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(o)
	}

	t, err := newTransport(o)
	if err != nil {
		return nil, err
	}

	connOpts := append([]rabbitmq.ConnectionOption{
		rabbitmq.WithLogger(o.logger),
		rabbitmq.WithConnectionName("gdn-bridge-" + o.config.LocalName),
	}, o.connectionOptions...)
	t.manager = rabbitmq.NewConnectionManager(connectionString, connOpts...)

	if err := t.manager.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if err := t.open(); err != nil {
		t.manager.Close()
		return nil, err
	}
	t.manager.AddStateListener(&connectionListener{t: t})

	return t, nil
}

func newTransport(o *transportOptions) (*Transport, error) {
	if err := o.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transport configuration: %w", err)
	}
	return &Transport{
		config:   o.config,
		queue:    fmt.Sprintf("%s.%s.%s", o.config.Exchange, o.config.LocalName, uuid.NewString()),
		logger:   o.logger.With("transport", "rabbitmq", "endpoint", o.config.LocalName),
		handlers: make(map[string][]messaging.TransportHandler),
	}, nil
}

// Config returns the routing layout
func (t *Transport) Config() Config {
	return t.config
}

// Queue returns the name of this endpoint's queue
func (t *Transport) Queue() string {
	return t.queue
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
	if name == "" {
		return fmt.Errorf("message name cannot be empty")
	}

	t.sessionMu.Lock()
	s, closed := t.session, t.closed
	t.sessionMu.Unlock()

	if closed {
		return ErrTransportClosed
	}
	if s == nil {
		return rabbitmq.ErrNotConnected
	}

	key := t.routingKey(name)
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		MessageId:    uuid.NewString(),
		Type:         name,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	}

	s.pubMu.Lock()
	err := s.publish.PublishWithContext(ctx, t.config.Exchange, key, false, false, msg)
	s.pubMu.Unlock()

	if err != nil {
		return &rabbitmq.PublishError{
			Exchange:   t.config.Exchange,
			RoutingKey: key,
			Err:        err,
			Timestamp:  time.Now(),
		}
	}
	return nil
}

// IsConnected reports whether the broker connection and channels are up
func (t *Transport) IsConnected() bool {
	t.sessionMu.Lock()
	s, closed := t.session, t.closed
	t.sessionMu.Unlock()

	if closed || s == nil || t.manager == nil {
		return false
	}
	return t.manager.IsConnected() && !s.publish.IsClosed()
}

// Close stops consuming and closes the connection
func (t *Transport) Close() error {
	t.sessionMu.Lock()
	if t.closed {
		t.sessionMu.Unlock()
		return nil
	}
	t.closed = true
	s := t.session
	t.session = nil
	t.sessionMu.Unlock()

	if s != nil {
		s.close()
	}
	if t.manager != nil {
		return t.manager.Close()
	}
	return nil
}

// open declares the topology on a fresh channel pair and starts the consumer
func (t *Transport) open() error {
	t.sessionMu.Lock()
	defer t.sessionMu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}

	publish, err := t.manager.Channel()
	if err != nil {
		return fmt.Errorf("failed to open publish channel: %w", err)
	}
	consume, err := t.manager.Channel()
	if err != nil {
		publish.Close()
		return fmt.Errorf("failed to open consume channel: %w", err)
	}
	s := &session{publish: publish, consume: consume}

	topology := rabbitmq.EndpointTopology(t.config.Exchange, t.queue, t.config.LocalName)
	if err := rabbitmq.DeclareTopology(consume, topology); err != nil {
		s.close()
		return err
	}

	if err := consume.Qos(t.config.Prefetch, 0, false); err != nil {
		s.close()
		return &rabbitmq.ConsumerError{Queue: t.queue, Op: "qos", Err: err, Timestamp: time.Now()}
	}

	deliveries, err := consume.Consume(
		t.queue,
		"",    // consumer tag
		true,  // auto-ack: delivery is fire-and-forget
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		s.close()
		return &rabbitmq.ConsumerError{Queue: t.queue, Op: "consume", Err: err, Timestamp: time.Now()}
	}

	if t.session != nil {
		t.session.close()
	}
	t.session = s

	go t.consume(deliveries)

	t.logger.Info("consuming bridge messages",
		"exchange", t.config.Exchange,
		"queue", t.queue,
		"bindingKey", t.config.LocalName+".#",
	)
	return nil
}

// consume dispatches deliveries until the channel closes
func (t *Transport) consume(deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		name, ok := t.messageName(d)
		if !ok {
			t.logger.Warn("dropping delivery with unexpected routing key", "routingKey", d.RoutingKey)
			continue
		}
		t.dispatch(name, d.Body)
	}
	t.logger.Debug("delivery channel closed", "queue", t.queue)
}

func (t *Transport) dispatch(name string, payload []byte) {
	t.mu.RLock()
	handlers := make([]messaging.TransportHandler, len(t.handlers[name]))
	copy(handlers, t.handlers[name])
	t.mu.RUnlock()

	if len(handlers) == 0 {
		t.logger.Debug("no handler for message", "message", name)
		return
	}
	for _, handler := range handlers {
		handler(payload)
	}
}

func (t *Transport) routingKey(name string) string {
	return t.config.RemoteName + "." + name
}

// messageName recovers the message name from the delivery's type or, for
// publishers that do not set it, from its routing key
func (t *Transport) messageName(d amqp.Delivery) (string, bool) {
	if d.Type != "" {
		return d.Type, true
	}
	prefix := t.config.LocalName + "."
	if !strings.HasPrefix(d.RoutingKey, prefix) || len(d.RoutingKey) == len(prefix) {
		return "", false
	}
	return strings.TrimPrefix(d.RoutingKey, prefix), true
}

func (s *session) close() {
	s.consume.Close()
	s.publish.Close()
}

// connectionListener re-opens the session after the manager reconnects
type connectionListener struct {
	t *Transport
}

func (l *connectionListener) OnConnected() {
	if err := l.t.open(); err != nil && !errors.Is(err, ErrTransportClosed) {
		l.t.logger.Error("failed to restore consumer after reconnect", "error", err)
	}
}

func (l *connectionListener) OnDisconnected(err error) {
	l.t.sessionMu.Lock()
	if s := l.t.session; s != nil && s.publish.IsClosed() {
		l.t.session = nil
	}
	l.t.sessionMu.Unlock()
	l.t.logger.Warn("broker connection lost, messages emitted now are dropped", "error", err)
}

func (l *connectionListener) OnReconnecting(attempt int) {
	l.t.logger.Debug("reconnecting to broker", "attempt", attempt)
}
