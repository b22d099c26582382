package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/glimte/gdn-bridge/contracts"
	"github.com/glimte/gdn-bridge/messaging"
)

// Inbound message names
const (
	MessageLogging               = "logging"
	MessageCommand               = "command"
	MessageRunTests              = "run_tests"
	MessageStateRequested        = "state_requested"
	MessageActiveDocumentChanged = "active_document_changed"
	MessageHwnd                  = "gdn_hwnd"
	MessagePong                  = "pong"
	MessageReturn                = "return"
)

// Outbound message names
const (
	MessageLogMessage           = "log_message"
	MessageSetCommands          = "set_commands"
	MessageSetContextDisplay    = "set_context_display"
	MessageSetContextThumbnail  = "set_context_thumbnail"
	MessageSetLogFilePath       = "set_log_file_path"
	MessageSetUnknownContext    = "set_unknown_context"
	MessageContextAboutToChange = "context_about_to_change"
	MessagePing                 = "ping"
	MessageExecuteCommand       = "execute_command"
)

// Published event kinds
const (
	EventLoggingReceived       = "logging_received"
	EventCommandReceived       = "command_received"
	EventRunTestsRequested     = "run_tests_requested"
	EventStateRequested        = "state_requested"
	EventActiveDocumentChanged = "active_document_changed"
	EventHwndChanged           = "hwnd_changed"
)

func (b *Bridge) registerForwards(router *messaging.Router) error {
	forwards := []struct {
		name    string
		handler messaging.HandlerFunc
	}{
		{MessageLogging, b.forwardLogging},
		{MessageCommand, b.forwardCommand},
		{MessageRunTests, b.forwardRunTests},
		{MessageStateRequested, b.forwardStateRequest},
		{MessageActiveDocumentChanged, b.forwardActiveDocumentChanged},
		{MessageHwnd, b.forwardHwnd},
		{MessagePong, b.handlePong},
		{MessageReturn, b.handleReturn},
	}

	for _, f := range forwards {
		if err := router.Register(f.name, f.handler); err != nil {
			return fmt.Errorf("failed to register %s handler: %w", f.name, err)
		}
	}
	return nil
}

func (b *Bridge) forwardLogging(ctx context.Context, msg contracts.Message) error {
	var rec contracts.LogRecord
	if err := decodeObject(msg.Payload, &rec); err != nil {
		return &contracts.DecodeError{Name: msg.Name, Err: err}
	}
	b.logger.Debug("got logging command, forwarding", "level", rec.Level, "message", rec.Message)
	b.events.push(EventLoggingReceived, func() { b.loggingReceived.Publish(rec) })
	return nil
}

func (b *Bridge) forwardCommand(ctx context.Context, msg contracts.Message) error {
	id, err := decodeInteger(msg.Payload)
	if err != nil {
		return &contracts.DecodeError{Name: msg.Name, Err: err}
	}
	if id < math.MinInt32 || id > math.MaxInt32 {
		return &contracts.DecodeError{Name: msg.Name, Err: fmt.Errorf("command id %d out of range", id)}
	}
	b.logger.Debug("emitting command_received", "commandId", id)
	b.events.push(EventCommandReceived, func() { b.commandReceived.Publish(contracts.CommandRequest{CommandID: int(id)}) })
	return nil
}

func (b *Bridge) forwardRunTests(ctx context.Context, msg contracts.Message) error {
	b.logger.Debug("emitting run_tests_requested")
	b.events.push(EventRunTestsRequested, func() { b.runTestsRequested.Publish(contracts.RunTestsRequest{}) })
	return nil
}

func (b *Bridge) forwardStateRequest(ctx context.Context, msg contracts.Message) error {
	b.logger.Debug("emitting state_requested")
	b.events.push(EventStateRequested, func() { b.stateRequested.Publish(contracts.StateRequest{}) })
	return nil
}

func (b *Bridge) forwardActiveDocumentChanged(ctx context.Context, msg contracts.Message) error {
	var change contracts.ActiveDocumentChange
	if err := decodeObject(msg.Payload, &change); err != nil {
		return &contracts.DecodeError{Name: msg.Name, Err: err}
	}
	if change.Path != nil && *change.Path == "" {
		change.Path = nil
	}
	b.logger.Debug("emitting active_document_changed", "hasPath", change.Path != nil)
	b.events.push(EventActiveDocumentChanged, func() { b.activeDocumentChanged.Publish(change) })
	return nil
}

func (b *Bridge) forwardHwnd(ctx context.Context, msg contracts.Message) error {
	hwnd, err := decodeInteger(msg.Payload)
	if err != nil {
		return &contracts.DecodeError{Name: msg.Name, Err: err}
	}
	b.logger.Debug("emitting hwnd_changed", "hwnd", hwnd)
	b.events.push(EventHwndChanged, func() { b.hwndChanged.Publish(contracts.HwndChange{Hwnd: hwnd}) })
	return nil
}

func (b *Bridge) handlePong(ctx context.Context, msg contracts.Message) error {
	var pong contracts.PingRequest
	if err := decodeObject(msg.Payload, &pong); err != nil {
		return &contracts.DecodeError{Name: msg.Name, Err: err}
	}
	if pong.ID == "" {
		return &contracts.DecodeError{Name: msg.Name, Err: errors.New("missing id")}
	}
	if !b.pending.Resolve(pong.ID, nil) {
		b.metrics.RecordLateResponse(msg.Name)
	}
	return nil
}

func (b *Bridge) handleReturn(ctx context.Context, msg contracts.Message) error {
	var resp contracts.CallResponse
	if err := decodeObject(msg.Payload, &resp); err != nil {
		return &contracts.DecodeError{Name: msg.Name, Err: err}
	}
	if resp.ID == "" {
		return &contracts.DecodeError{Name: msg.Name, Err: errors.New("missing id")}
	}

	var delivered bool
	if resp.Error != nil {
		delivered = b.pending.Fail(resp.ID, resp.Error)
	} else {
		delivered = b.pending.Resolve(resp.ID, resp.Result)
	}
	if !delivered {
		b.metrics.RecordLateResponse(msg.Name)
	}
	return nil
}

// decodeObject decodes a payload that must be a JSON object
func decodeObject(payload []byte, out interface{}) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return errors.New("expected a JSON object")
	}
	return json.Unmarshal(trimmed, out)
}

// decodeInteger accepts a JSON number with no fractional part or a string
// holding one, e.g. 42, 42.0 or "42".
func decodeInteger(payload []byte) (int64, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return 0, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return 0, errors.New("unexpected data after value")
	}

	switch x := v.(type) {
	case json.Number:
		return parseInteger(x.String())
	case string:
		return parseInteger(strings.TrimSpace(x))
	default:
		return 0, fmt.Errorf("expected an integer, got %T", v)
	}
}

func parseInteger(s string) (int64, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return int64(f), nil
}
