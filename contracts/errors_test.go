package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeoutError(t *testing.T) {
	t.Run("TimeoutError carries its message", func(t *testing.T) {
		err := &TimeoutError{Message: "Ping timed out.", Timeout: 500 * time.Millisecond}
		assert.Equal(t, "Ping timed out.", err.Error())
	})

	t.Run("TimeoutError matches ErrTimeout when wrapped", func(t *testing.T) {
		err := fmt.Errorf("call failed: %w", &TimeoutError{Message: "Timed out waiting for response."})
		assert.True(t, errors.Is(err, ErrTimeout))

		var timeoutErr *TimeoutError
		require.True(t, errors.As(err, &timeoutErr))
		assert.Equal(t, "Timed out waiting for response.", timeoutErr.Message)
	})

	t.Run("other errors do not match ErrTimeout", func(t *testing.T) {
		assert.False(t, errors.Is(ErrBridgeClosed, ErrTimeout))
	})
}

func TestWrappedErrors(t *testing.T) {
	cause := errors.New("boom")

	t.Run("DecodeError unwraps", func(t *testing.T) {
		err := &DecodeError{Name: "command", Err: cause}
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), `"command"`)
	})

	t.Run("EncodeError unwraps", func(t *testing.T) {
		err := &EncodeError{Name: "set_commands", Err: cause}
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "set_commands")
	})

	t.Run("HostQueryError unwraps", func(t *testing.T) {
		err := &HostQueryError{Op: "active document", Err: ErrNoDocument}
		assert.ErrorIs(t, err, ErrNoDocument)
	})
}

func TestCallResponseDecoding(t *testing.T) {
	t.Run("decodes a successful response", func(t *testing.T) {
		var resp CallResponse
		require.NoError(t, json.Unmarshal([]byte(`{"id":"abc","result":{"path":"/tmp/a.psd"}}`), &resp))
		assert.Equal(t, "abc", resp.ID)
		assert.JSONEq(t, `{"path":"/tmp/a.psd"}`, string(resp.Result))
		assert.Nil(t, resp.Error)
	})

	t.Run("decodes a remote error", func(t *testing.T) {
		var resp CallResponse
		require.NoError(t, json.Unmarshal([]byte(`{"id":"abc","error":{"code":-32601,"message":"no such method"}}`), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, -32601, resp.Error.Code)
		assert.Equal(t, "remote error -32601: no such method", resp.Error.Error())
	})

	t.Run("call request carries jsonrpc version", func(t *testing.T) {
		data, err := json.Marshal(NewCallRequest("id-1", "get_active_document", nil))
		require.NoError(t, err)
		assert.JSONEq(t, `{"jsonrpc":"2.0","id":"id-1","method":"get_active_document"}`, string(data))
	})
}
