package bridge

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventQueue(t *testing.T) {
	t.Run("events are published in push order", func(t *testing.T) {
		q := newEventQueue(slog.Default())
		defer q.close()

		got := make(chan int, 100)
		for i := 0; i < 100; i++ {
			i := i
			q.push("n", func() { got <- i })
		}
		for i := 0; i < 100; i++ {
			assert.Equal(t, i, receive(t, got))
		}
	})

	t.Run("push does not wait for a blocked subscriber", func(t *testing.T) {
		q := newEventQueue(slog.Default())
		defer q.close()

		release := make(chan struct{})
		q.push("slow", func() { <-release })

		pushed := make(chan struct{})
		go func() {
			for i := 0; i < 10; i++ {
				q.push("queued", func() {})
			}
			close(pushed)
		}()

		receive(t, pushed)
		assert.Eventually(t, func() bool { return q.Len() == 10 }, time.Second, 5*time.Millisecond)
		close(release)
		assert.Eventually(t, func() bool { return q.Len() == 0 }, time.Second, 5*time.Millisecond)
	})

	t.Run("a panic is recovered and later events still run", func(t *testing.T) {
		q := newEventQueue(slog.Default())
		defer q.close()

		ran := make(chan struct{}, 1)
		q.push("bad", func() { panic("boom") })
		q.push("good", func() { ran <- struct{}{} })

		receive(t, ran)
	})

	t.Run("nothing is published after close", func(t *testing.T) {
		q := newEventQueue(slog.Default())
		q.close()
		q.close()

		ran := make(chan struct{}, 1)
		q.push("late", func() { ran <- struct{}{} })

		select {
		case <-ran:
			t.Fatal("event published after close")
		case <-time.After(50 * time.Millisecond):
		}
	})
}
