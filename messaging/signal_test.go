package messaging

import (
	"sync"
	"testing"

	"github.com/glimte/gdn-bridge/contracts"
	"github.com/stretchr/testify/assert"
)

func TestSignal(t *testing.T) {
	t.Run("Publish delivers to subscribers in subscription order", func(t *testing.T) {
		sig := NewSignal[contracts.LogRecord]("logging_received")
		var got []string
		sig.Subscribe(func(rec contracts.LogRecord) { got = append(got, "first:"+rec.Message) })
		sig.Subscribe(func(rec contracts.LogRecord) { got = append(got, "second:"+rec.Message) })

		n := sig.Publish(contracts.LogRecord{Level: "warning", Message: "disk full"})

		assert.Equal(t, 2, n)
		assert.Equal(t, []string{"first:disk full", "second:disk full"}, got)
		assert.Equal(t, "logging_received", sig.Name())
	})

	t.Run("Unsubscribe removes only that subscriber", func(t *testing.T) {
		sig := NewSignal[int]("command_received")
		var a, b int
		subA := sig.Subscribe(func(v int) { a += v })
		sig.Subscribe(func(v int) { b += v })

		subA.Unsubscribe()
		subA.Unsubscribe()
		sig.Publish(5)

		assert.Equal(t, 0, a)
		assert.Equal(t, 5, b)
		assert.Equal(t, 1, sig.Len())
	})

	t.Run("subscriber may unsubscribe itself during publish", func(t *testing.T) {
		sig := NewSignal[int]("hwnd_changed")
		calls := 0
		var sub *Subscription
		sub = sig.Subscribe(func(v int) {
			calls++
			sub.Unsubscribe()
		})

		sig.Publish(1)
		sig.Publish(2)

		assert.Equal(t, 1, calls)
		assert.Equal(t, 0, sig.Len())
	})

	t.Run("nil subscriber yields inert subscription", func(t *testing.T) {
		sig := NewSignal[int]("state_requested")
		sub := sig.Subscribe(nil)
		assert.NotPanics(t, sub.Unsubscribe)
		assert.Equal(t, 0, sig.Publish(1))
	})

	t.Run("concurrent subscribe and publish is safe", func(t *testing.T) {
		sig := NewSignal[int]("run_tests_requested")
		var mu sync.Mutex
		total := 0
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				sub := sig.Subscribe(func(v int) {
					mu.Lock()
					total += v
					mu.Unlock()
				})
				sub.Unsubscribe()
			}()
			go func() {
				defer wg.Done()
				sig.Publish(1)
			}()
		}
		wg.Wait()
		assert.Equal(t, 0, sig.Len())
	})
}
