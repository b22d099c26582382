package bridge

import (
	"log/slog"
	"sync"
)

// eventQueue publishes unsolicited host events in arrival order on a single
// goroutine owned by the bridge. Keeping publication off the transport's
// receive goroutine lets pong and return messages reach waiting calls while a
// subscriber is blocked in Ping, Call or ActiveDocumentPath.
type eventQueue struct {
	mu     sync.Mutex
	items  []queuedEvent
	wake   chan struct{}
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

type queuedEvent struct {
	kind    string
	publish func()
}

func newEventQueue(logger *slog.Logger) *eventQueue {
	q := &eventQueue{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
	go q.run()
	return q
}

// push appends an event. It never blocks the caller.
func (q *eventQueue) push(kind string, publish func()) {
	q.mu.Lock()
	q.items = append(q.items, queuedEvent{kind: kind, publish: publish})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of events not yet published
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// close stops the publishing goroutine. Queued events are dropped.
func (q *eventQueue) close() {
	q.once.Do(func() {
		close(q.done)
	})
}

func (q *eventQueue) run() {
	for {
		select {
		case <-q.done:
			return
		case <-q.wake:
		}

		for {
			select {
			case <-q.done:
				return
			default:
			}

			event, ok := q.pop()
			if !ok {
				break
			}
			q.deliver(event)
		}
	}
}

func (q *eventQueue) pop() (queuedEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return queuedEvent{}, false
	}
	event := q.items[0]
	q.items[0] = queuedEvent{}
	q.items = q.items[1:]
	return event, true
}

func (q *eventQueue) deliver(event queuedEvent) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("event subscriber panicked",
				"event", event.kind,
				"panic", r,
			)
		}
	}()
	event.publish()
}
