package contracts

import (
	"encoding/json"
	"time"
)

// Message is a single named delivery from a transport
type Message struct {
	Name       string
	Payload    []byte
	ReceivedAt time.Time
}

// NewMessage creates a message stamped with the current time
func NewMessage(name string, payload []byte) Message {
	return Message{
		Name:       name,
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	}
}

// PingRequest is the heartbeat body sent on "ping" and echoed back on "pong"
type PingRequest struct {
	ID string `json:"id"`
}

// CallRequest is the body of an "execute_command" message
type CallRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// NewCallRequest creates a call request for the given correlation id
func NewCallRequest(id, method string, params interface{}) CallRequest {
	return CallRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// CallResponse is the body of a "return" message
type CallResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RemoteError    `json:"error,omitempty"`
}

// LogEntry is the body of an outbound "log_message"
type LogEntry struct {
	Level string `json:"level"`
	Msg   string `json:"msg"`
}
