package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/glimte/gdn-bridge/contracts"
	"github.com/glimte/gdn-bridge/messaging"
)

const (
	pingTimeoutMessage     = "Ping timed out."
	responseTimeoutMessage = "Timed out waiting for response."
)

// Bridge is the controller-side endpoint of a GDN connection. It turns the
// transport's fire-and-forget messages into bounded calls and republishes
// unsolicited host messages on typed signals.
type Bridge struct {
	transport messaging.Transport
	router    *messaging.Router
	pending   *PendingCalls
	events    *eventQueue
	host      HostApplication
	config    Config
	logger    *slog.Logger
	metrics   messaging.MetricsCollector
	closed    atomic.Bool

	loggingReceived       *messaging.Signal[contracts.LogRecord]
	commandReceived       *messaging.Signal[contracts.CommandRequest]
	runTestsRequested     *messaging.Signal[contracts.RunTestsRequest]
	stateRequested        *messaging.Signal[contracts.StateRequest]
	activeDocumentChanged *messaging.Signal[contracts.ActiveDocumentChange]
	hwndChanged           *messaging.Signal[contracts.HwndChange]
}

// Option configures the bridge
type Option func(*options)

type options struct {
	config           *Config
	heartbeatTimeout time.Duration
	responseTimeout  time.Duration
	lookupEnv        func(string) (string, bool)
	logger           *slog.Logger
	metrics          messaging.MetricsCollector
	host             HostApplication
}

// WithConfig sets the base configuration, e.g. one loaded from a file.
// Environment variables still override it.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.config = &cfg
	}
}

// WithHeartbeatTimeout sets the ping timeout, overriding config and environment
func WithHeartbeatTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.heartbeatTimeout = timeout
	}
}

// WithResponseTimeout sets the call timeout, overriding config and environment
func WithResponseTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.responseTimeout = timeout
	}
}

// WithEnvLookup replaces os.LookupEnv when reading timeouts
func WithEnvLookup(lookup func(string) (string, bool)) Option {
	return func(o *options) {
		o.lookupEnv = lookup
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(collector messaging.MetricsCollector) Option {
	return func(o *options) {
		o.metrics = collector
	}
}

// WithHost sets the host application accessor. Without it the bridge
// queries the host through call-style requests.
func WithHost(host HostApplication) Option {
	return func(o *options) {
		o.host = host
	}
}

// New creates a bridge over the transport. Timeouts are resolved once, here:
// defaults, then WithConfig, then the environment, then explicit timeout options.
func New(transport messaging.Transport, opts ...Option) (*Bridge, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}

	o := &options{
		logger:  slog.Default(),
		metrics: &messaging.NoOpMetricsCollector{},
	}
	for _, opt := range opts {
		opt(o)
	}

	cfg := DefaultConfig()
	if o.config != nil {
		cfg = *o.config
	}
	if err := cfg.ApplyEnv(o.lookupEnv); err != nil {
		return nil, fmt.Errorf("invalid bridge configuration: %w", err)
	}
	if o.heartbeatTimeout != 0 {
		cfg.HeartbeatTimeout = Duration(o.heartbeatTimeout)
	}
	if o.responseTimeout != 0 {
		cfg.ResponseTimeout = Duration(o.responseTimeout)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bridge configuration: %w", err)
	}

	b := &Bridge{
		transport: transport,
		pending:   NewPendingCalls(o.logger),
		events:    newEventQueue(o.logger),
		config:    cfg,
		logger:    o.logger,
		metrics:   o.metrics,

		loggingReceived:       messaging.NewSignal[contracts.LogRecord](EventLoggingReceived),
		commandReceived:       messaging.NewSignal[contracts.CommandRequest](EventCommandReceived),
		runTestsRequested:     messaging.NewSignal[contracts.RunTestsRequest](EventRunTestsRequested),
		stateRequested:        messaging.NewSignal[contracts.StateRequest](EventStateRequested),
		activeDocumentChanged: messaging.NewSignal[contracts.ActiveDocumentChange](EventActiveDocumentChanged),
		hwndChanged:           messaging.NewSignal[contracts.HwndChange](EventHwndChanged),
	}

	b.host = o.host
	if b.host == nil {
		b.host = NewRemoteHost(b)
	}

	b.logger.Debug("bridge timeouts",
		EnvResponseTimeout, cfg.ResponseTimeout.String(),
		EnvHeartbeatTimeout, cfg.HeartbeatTimeout.String(),
	)
	if cfg.HeartbeatTimeout > cfg.ResponseTimeout {
		b.logger.Warn("heartbeat timeout exceeds response timeout",
			"heartbeat", cfg.HeartbeatTimeout.String(),
			"response", cfg.ResponseTimeout.String(),
		)
	}

	b.router = messaging.NewRouter(
		messaging.WithRouterLogger(o.logger),
		messaging.WithMiddleware(
			messaging.MetricsMiddleware(o.metrics),
			messaging.LoggingMiddleware(o.logger),
		),
	)
	if err := b.registerForwards(b.router); err != nil {
		b.events.close()
		return nil, err
	}

	b.logger.Debug("setting up event connections", "messages", b.router.Names())
	b.router.Bind(transport)

	return b, nil
}

// Config returns the resolved configuration
func (b *Bridge) Config() Config {
	return b.config
}

// LoggingReceived fires when the host forwards a log line
func (b *Bridge) LoggingReceived() *messaging.Signal[contracts.LogRecord] {
	return b.loggingReceived
}

// CommandReceived fires when the host asks for an engine command to run
func (b *Bridge) CommandReceived() *messaging.Signal[contracts.CommandRequest] {
	return b.commandReceived
}

// RunTestsRequested fires when the host asks for the tests to run
func (b *Bridge) RunTestsRequested() *messaging.Signal[contracts.RunTestsRequest] {
	return b.runTestsRequested
}

// StateRequested fires when the host asks for the current state
func (b *Bridge) StateRequested() *messaging.Signal[contracts.StateRequest] {
	return b.stateRequested
}

// ActiveDocumentChanged fires when the host's active document changes
func (b *Bridge) ActiveDocumentChanged() *messaging.Signal[contracts.ActiveDocumentChange] {
	return b.activeDocumentChanged
}

// HwndChanged fires when the host reports its main frame window handle
func (b *Bridge) HwndChanged() *messaging.Signal[contracts.HwndChange] {
	return b.hwndChanged
}

// PendingCount returns the number of calls awaiting a response
func (b *Bridge) PendingCount() int {
	return b.pending.Len()
}

// Ping checks that the host is responsive, within the heartbeat timeout
func (b *Bridge) Ping(ctx context.Context) error {
	if b.closed.Load() {
		return contracts.ErrBridgeClosed
	}

	start := time.Now()
	_, err := RunWithDeadline(ctx, b.config.HeartbeatTimeout.Std(), pingTimeoutMessage,
		func(ctx context.Context) (struct{}, error) {
			id := b.pending.Begin()
			if err := b.emitJSON(ctx, MessagePing, contracts.PingRequest{ID: id}); err != nil {
				b.pending.Discard(id)
				return struct{}{}, err
			}
			_, err := b.pending.Await(ctx, id)
			return struct{}{}, err
		})
	b.recordCall(MessagePing, start, err)
	return err
}

// Call invokes a method on the host and waits for its result, within the
// response timeout. A host-side failure is returned as *contracts.RemoteError.
func (b *Bridge) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if method == "" {
		return nil, fmt.Errorf("method cannot be empty")
	}
	if b.closed.Load() {
		return nil, contracts.ErrBridgeClosed
	}

	start := time.Now()
	id := b.pending.Begin()
	if err := b.emitJSON(ctx, MessageExecuteCommand, contracts.NewCallRequest(id, method, params)); err != nil {
		b.pending.Discard(id)
		b.recordCall(method, start, err)
		return nil, err
	}

	result, err := b.waitForResponse(ctx, id)
	b.recordCall(method, start, err)
	return result, err
}

// CallInto calls method and decodes its result into out
func (b *Bridge) CallInto(ctx context.Context, method string, params interface{}, out interface{}) error {
	raw, err := b.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &contracts.DecodeError{Name: method, Err: err}
	}
	return nil
}

// waitForResponse waits for the result of the call with the given id
func (b *Bridge) waitForResponse(ctx context.Context, id string) (json.RawMessage, error) {
	return RunWithDeadline(ctx, b.config.ResponseTimeout.Std(), responseTimeoutMessage,
		func(ctx context.Context) (json.RawMessage, error) {
			return b.pending.Await(ctx, id)
		})
}

// ActiveDocument returns the host's active document, or nil when there is
// none or it cannot be read.
func (b *Bridge) ActiveDocument(ctx context.Context) Document {
	doc, err := b.host.ActiveDocument(ctx)
	if err != nil {
		if errors.Is(err, contracts.ErrNoDocument) {
			b.logger.Debug("no active document in GDN")
		} else {
			b.logger.Warn("failed to get active document from GDN", "error", err)
		}
		return nil
	}
	return doc
}

// ActiveDocumentPath returns the active document's path on disk. It reports
// false when there is no document or it has never been saved.
func (b *Bridge) ActiveDocumentPath(ctx context.Context) (string, bool) {
	doc := b.ActiveDocument(ctx)
	if doc == nil {
		return "", false
	}

	path, err := doc.FullName(ctx)
	if err != nil {
		b.logger.Debug("active document has no path", "error", err)
		return "", false
	}
	if path == "" {
		return "", false
	}
	return path, true
}

// LogMessage sends a log line to the host so it is visible on its side
func (b *Bridge) LogMessage(ctx context.Context, level, msg string) error {
	// Must not log: a bridge-backed log handler would recurse.
	data, err := json.Marshal(contracts.LogEntry{Level: level, Msg: msg})
	if err != nil {
		return &contracts.EncodeError{Name: MessageLogMessage, Err: err}
	}
	return b.emit(ctx, MessageLogMessage, data)
}

// SendCommands forwards the current engine commands to the host
func (b *Bridge) SendCommands(ctx context.Context, commands interface{}) error {
	data, err := b.encode(MessageSetCommands, commands)
	if err != nil {
		return err
	}
	b.logger.Debug("sending commands", "commands", string(data))
	return b.emit(ctx, MessageSetCommands, data)
}

// SendContextDisplay forwards the current context display info to the host
func (b *Bridge) SendContextDisplay(ctx context.Context, display interface{}) error {
	data, err := b.encode(MessageSetContextDisplay, display)
	if err != nil {
		return err
	}
	b.logger.Debug("sending context display")
	return b.emit(ctx, MessageSetContextDisplay, data)
}

// SendContextThumbnail forwards the current context thumbnail info to the host
func (b *Bridge) SendContextThumbnail(ctx context.Context, thumbnail interface{}) error {
	data, err := b.encode(MessageSetContextThumbnail, thumbnail)
	if err != nil {
		return err
	}
	b.logger.Debug("sending context thumbnail", "thumbnail", string(data))
	return b.emit(ctx, MessageSetContextThumbnail, data)
}

// SendLogFilePath forwards the current log file path to the host. The host
// shows it in error reports.
func (b *Bridge) SendLogFilePath(ctx context.Context, path string) error {
	data, err := b.encode(MessageSetLogFilePath, path)
	if err != nil {
		return err
	}
	b.logger.Debug("sending log file path", "path", path)
	return b.emit(ctx, MessageSetLogFilePath, data)
}

// SendUnknownContext tells the host no context could be determined for the
// current file.
func (b *Bridge) SendUnknownContext(ctx context.Context) error {
	b.logger.Debug("alerting host that there is no context")
	return b.emit(ctx, MessageSetUnknownContext, nil)
}

// ContextAboutToChange tells the host the context is about to change
func (b *Bridge) ContextAboutToChange(ctx context.Context) error {
	b.logger.Debug("sending context about to change")
	return b.emit(ctx, MessageContextAboutToChange, nil)
}

// Close fails every pending call with contracts.ErrBridgeClosed and stops
// event publication; events not yet published are dropped. Calls and sends
// made after Close fail the same way.
func (b *Bridge) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	b.pending.Close()
	b.events.close()
	b.logger.Debug("bridge closed")
	return nil
}

func (b *Bridge) encode(name string, value interface{}) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, &contracts.EncodeError{Name: name, Err: err}
	}
	return data, nil
}

func (b *Bridge) emitJSON(ctx context.Context, name string, value interface{}) error {
	data, err := b.encode(name, value)
	if err != nil {
		return err
	}
	return b.emit(ctx, name, data)
}

func (b *Bridge) emit(ctx context.Context, name string, payload []byte) error {
	if b.closed.Load() {
		return contracts.ErrBridgeClosed
	}

	err := b.transport.Emit(ctx, name, payload)
	b.metrics.RecordEmit(name, err == nil)
	if err != nil {
		return fmt.Errorf("failed to emit %s: %w", name, err)
	}
	return nil
}

func (b *Bridge) recordCall(op string, start time.Time, err error) {
	outcome := messaging.OutcomeOK
	switch {
	case errors.Is(err, contracts.ErrTimeout):
		outcome = messaging.OutcomeTimeout
	case err != nil:
		outcome = messaging.OutcomeError
	}
	b.metrics.RecordCall(op, time.Since(start), outcome)
}
