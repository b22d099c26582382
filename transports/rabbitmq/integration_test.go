//go:build integration

package rabbitmq

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func brokerURL(t *testing.T) string {
	url := os.Getenv("RABBITMQ_URL")
	if url == "" {
		t.Skip("RABBITMQ_URL not set")
	}
	return url
}

func TestTransportIntegration(t *testing.T) {
	url := brokerURL(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exchange := "gdn.bridge.test"
	controller, err := NewTransport(ctx, url, WithExchange(exchange))
	require.NoError(t, err)
	defer controller.Close()

	gdn, err := NewTransport(ctx, url, WithExchange(exchange), WithEndpoints("gdn", "controller"))
	require.NoError(t, err)
	defer gdn.Close()

	assert.True(t, controller.IsConnected())

	t.Run("messages arrive in order under their name", func(t *testing.T) {
		got := make(chan string, 10)
		gdn.On("log_message", func(payload []byte) { got <- string(payload) })

		for _, body := range []string{`"a"`, `"b"`, `"c"`} {
			require.NoError(t, controller.Emit(ctx, "log_message", []byte(body)))
		}

		for _, want := range []string{`"a"`, `"b"`, `"c"`} {
			select {
			case body := <-got:
				assert.Equal(t, want, body)
			case <-time.After(5 * time.Second):
				t.Fatal("message not delivered")
			}
		}
	})

	t.Run("replies travel the other way", func(t *testing.T) {
		pong := make(chan []byte, 1)
		controller.On("pong", func(payload []byte) { pong <- payload })
		gdn.On("ping", func(payload []byte) {
			assert.NoError(t, gdn.Emit(context.Background(), "pong", payload))
		})

		require.NoError(t, controller.Emit(ctx, "ping", []byte(`{"id":"1"}`)))

		select {
		case payload := <-pong:
			assert.JSONEq(t, `{"id":"1"}`, string(payload))
		case <-time.After(5 * time.Second):
			t.Fatal("pong not delivered")
		}
	})

	t.Run("an endpoint does not receive its own messages", func(t *testing.T) {
		echoed := make(chan struct{}, 1)
		controller.On("set_commands", func([]byte) { echoed <- struct{}{} })

		require.NoError(t, controller.Emit(ctx, "set_commands", []byte(`[]`)))

		select {
		case <-echoed:
			t.Fatal("controller received its own message")
		case <-time.After(300 * time.Millisecond):
		}
	})
}
