package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glimte/gdn-bridge/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingCalls(t *testing.T) {
	t.Run("Begin returns unique ids", func(t *testing.T) {
		calls := NewPendingCalls(nil)
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			id := calls.Begin()
			assert.False(t, seen[id])
			seen[id] = true
		}
		assert.Equal(t, 100, calls.Len())
	})

	t.Run("Resolve wakes the waiter with the payload", func(t *testing.T) {
		calls := NewPendingCalls(nil)
		id := calls.Begin()

		go func() {
			time.Sleep(10 * time.Millisecond)
			assert.True(t, calls.Resolve(id, json.RawMessage(`{"ok":true}`)))
		}()

		payload, err := calls.Await(context.Background(), id)
		require.NoError(t, err)
		assert.JSONEq(t, `{"ok":true}`, string(payload))
		assert.Equal(t, 0, calls.Len())
	})

	t.Run("Resolve before Await is not lost", func(t *testing.T) {
		calls := NewPendingCalls(nil)
		id := calls.Begin()
		require.True(t, calls.Resolve(id, json.RawMessage(`1`)))

		payload, err := calls.Await(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, json.RawMessage(`1`), payload)
	})

	t.Run("a resolved call stays registered until its waiter returns", func(t *testing.T) {
		calls := NewPendingCalls(nil)
		id := calls.Begin()
		require.True(t, calls.Resolve(id, json.RawMessage(`"early"`)))
		assert.Equal(t, 1, calls.Len())
		assert.False(t, calls.Fail(id, errors.New("too late")))

		payload, err := calls.Await(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, json.RawMessage(`"early"`), payload)
		assert.Equal(t, 0, calls.Len())

		_, err = calls.Await(context.Background(), id)
		assert.ErrorIs(t, err, contracts.ErrUnknownCall)
	})

	t.Run("Close fails a resolved call that was never awaited", func(t *testing.T) {
		calls := NewPendingCalls(nil)
		id := calls.Begin()
		require.True(t, calls.Resolve(id, json.RawMessage(`1`)))
		calls.Close()

		_, err := calls.Await(context.Background(), id)
		assert.ErrorIs(t, err, contracts.ErrBridgeClosed)
		assert.Equal(t, 0, calls.Len())
	})

	t.Run("Fail delivers the error", func(t *testing.T) {
		calls := NewPendingCalls(nil)
		id := calls.Begin()
		remote := &contracts.RemoteError{Code: 1, Message: "nope"}
		require.True(t, calls.Fail(id, remote))

		_, err := calls.Await(context.Background(), id)
		var remoteErr *contracts.RemoteError
		assert.ErrorAs(t, err, &remoteErr)
	})

	t.Run("resolving an unknown id is a no-op", func(t *testing.T) {
		calls := NewPendingCalls(nil)
		other := calls.Begin()

		assert.False(t, calls.Resolve("missing", json.RawMessage(`1`)))
		assert.False(t, calls.Fail("missing", errors.New("x")))
		assert.Equal(t, 1, calls.Len())

		require.True(t, calls.Resolve(other, json.RawMessage(`2`)))
		payload, err := calls.Await(context.Background(), other)
		require.NoError(t, err)
		assert.Equal(t, json.RawMessage(`2`), payload)
	})

	t.Run("duplicate resolution is a no-op", func(t *testing.T) {
		calls := NewPendingCalls(nil)
		id := calls.Begin()

		assert.True(t, calls.Resolve(id, json.RawMessage(`"first"`)))
		assert.False(t, calls.Resolve(id, json.RawMessage(`"second"`)))

		payload, err := calls.Await(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, json.RawMessage(`"first"`), payload)
	})

	t.Run("timed out waiter removes its entry and ignores late resolution", func(t *testing.T) {
		calls := NewPendingCalls(nil)
		id := calls.Begin()

		_, err := RunWithDeadline(context.Background(), 20*time.Millisecond, "Timed out waiting for response.",
			func(ctx context.Context) (json.RawMessage, error) {
				return calls.Await(ctx, id)
			})
		require.ErrorIs(t, err, contracts.ErrTimeout)
		assert.Equal(t, 0, calls.Len())

		assert.NotPanics(t, func() {
			assert.False(t, calls.Resolve(id, json.RawMessage(`"late"`)))
		})

		_, err = calls.Await(context.Background(), id)
		assert.ErrorIs(t, err, contracts.ErrUnknownCall)
	})

	t.Run("Await on an unknown id fails immediately", func(t *testing.T) {
		calls := NewPendingCalls(nil)
		_, err := calls.Await(context.Background(), "never-begun")
		assert.ErrorIs(t, err, contracts.ErrUnknownCall)
	})

	t.Run("Discard drops the entry", func(t *testing.T) {
		calls := NewPendingCalls(nil)
		id := calls.Begin()
		calls.Discard(id)
		assert.Equal(t, 0, calls.Len())
		assert.False(t, calls.Resolve(id, nil))
	})

	t.Run("Close wakes every waiter", func(t *testing.T) {
		calls := NewPendingCalls(nil)
		ids := []string{calls.Begin(), calls.Begin(), calls.Begin()}

		var wg sync.WaitGroup
		errs := make(chan error, len(ids))
		for _, id := range ids {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := calls.Await(context.Background(), id)
				errs <- err
			}(id)
		}

		time.Sleep(10 * time.Millisecond)
		calls.Close()
		calls.Close()
		wg.Wait()
		close(errs)

		for err := range errs {
			assert.ErrorIs(t, err, contracts.ErrBridgeClosed)
		}
		assert.Equal(t, 0, calls.Len())
	})

	t.Run("calls begun after Close fail", func(t *testing.T) {
		calls := NewPendingCalls(nil)
		calls.Close()

		id := calls.Begin()
		_, err := calls.Await(context.Background(), id)
		assert.ErrorIs(t, err, contracts.ErrBridgeClosed)
	})

	t.Run("concurrent calls resolve independently", func(t *testing.T) {
		calls := NewPendingCalls(nil)
		const n = 50

		ids := make([]string, n)
		for i := range ids {
			ids[i] = calls.Begin()
		}

		var wg sync.WaitGroup
		results := make([]string, n)
		for i, id := range ids {
			wg.Add(1)
			go func(i int, id string) {
				defer wg.Done()
				payload, err := calls.Await(context.Background(), id)
				if assert.NoError(t, err) {
					results[i] = string(payload)
				}
			}(i, id)
		}

		// Resolve in reverse order; correlation is by id, not by order.
		for i := n - 1; i >= 0; i-- {
			payload, _ := json.Marshal(ids[i])
			require.True(t, calls.Resolve(ids[i], payload))
		}
		wg.Wait()

		for i, id := range ids {
			assert.Equal(t, `"`+id+`"`, results[i])
		}
	})
}
