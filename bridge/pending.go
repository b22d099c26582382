package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/gdn-bridge/contracts"
	"github.com/google/uuid"
)

// PendingCall is an in-flight call awaiting its correlated response
type PendingCall struct {
	ID        string
	CreatedAt time.Time
	result    chan callResult
	done      bool
}

type callResult struct {
	payload json.RawMessage
	err     error
}

// PendingCalls correlates responses from the receive path with callers
// blocked in Await. Every entry is resolved at most once. A resolved entry
// stays registered until its waiter collects the result, so a response that
// arrives before Await is still delivered.
type PendingCalls struct {
	mu      sync.Mutex
	pending map[string]*PendingCall
	closed  bool
	logger  *slog.Logger
}

// NewPendingCalls creates an empty registry
func NewPendingCalls(logger *slog.Logger) *PendingCalls {
	if logger == nil {
		logger = slog.Default()
	}
	return &PendingCalls{
		pending: make(map[string]*PendingCall),
		logger:  logger,
	}
}

// Begin registers a new pending call and returns its correlation id.
// After Close, the id is not registered and Await on it fails with
// ErrBridgeClosed.
func (p *PendingCalls) Begin() string {
	call := &PendingCall{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		result:    make(chan callResult, 1),
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		p.pending[call.ID] = call
	}
	return call.ID
}

// Await blocks until the call is resolved, failed, or ctx is done, and
// removes the entry before returning.
func (p *PendingCalls) Await(ctx context.Context, id string) (json.RawMessage, error) {
	p.mu.Lock()
	call, exists := p.pending[id]
	closed := p.closed
	p.mu.Unlock()

	if !exists {
		if closed {
			return nil, contracts.ErrBridgeClosed
		}
		return nil, contracts.ErrUnknownCall
	}

	defer p.remove(call)

	select {
	case res := <-call.result:
		return res.payload, res.err
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

// Resolve delivers payload to the waiter for id. It reports false, and does
// nothing, if no call with that id is pending.
func (p *PendingCalls) Resolve(id string, payload json.RawMessage) bool {
	return p.complete(id, callResult{payload: payload})
}

// Fail delivers err to the waiter for id. It reports false, and does nothing,
// if no call with that id is pending.
func (p *PendingCalls) Fail(id string, err error) bool {
	return p.complete(id, callResult{err: err})
}

// Discard drops a pending call that will never be awaited
func (p *PendingCalls) Discard(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, id)
}

// Len returns the number of calls whose waiter has not yet returned
func (p *PendingCalls) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Close fails every pending call with ErrBridgeClosed. Calls begun after
// Close fail the same way.
func (p *PendingCalls) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	for id, call := range p.pending {
		if !call.done {
			call.done = true
			call.result <- callResult{err: contracts.ErrBridgeClosed}
		}
		delete(p.pending, id)
	}
}

func (p *PendingCalls) complete(id string, res callResult) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	call, exists := p.pending[id]
	if !exists || call.done {
		p.logger.Debug("discarding response with no pending call", "id", id)
		return false
	}

	// Capacity is one and done is set under the lock, so this is the only
	// send the channel will ever see.
	call.done = true
	call.result <- res
	return true
}

func (p *PendingCalls) remove(call *PendingCall) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if current, exists := p.pending[call.ID]; exists && current == call {
		delete(p.pending, call.ID)
	}
}
