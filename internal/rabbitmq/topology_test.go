package rabbitmq

import (
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDeclarer struct {
	mock.Mock
}

func (m *mockDeclarer) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return m.Called(name, kind, durable, autoDelete).Error(0)
}

func (m *mockDeclarer) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	ret := m.Called(name, durable, autoDelete, exclusive)
	return amqp.Queue{Name: name}, ret.Error(0)
}

func (m *mockDeclarer) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	return m.Called(name, key, exchange).Error(0)
}

func TestEndpointTopology(t *testing.T) {
	t.Run("binds a private queue under the local prefix", func(t *testing.T) {
		topology := EndpointTopology("gdn.bridge", "gdn.bridge.controller.1", "controller")

		require.Len(t, topology.Exchanges, 1)
		assert.Equal(t, amqp.ExchangeTopic, topology.Exchanges[0].Type)
		require.Len(t, topology.Queues, 1)
		assert.True(t, topology.Queues[0].Exclusive)
		assert.True(t, topology.Queues[0].AutoDelete)
		require.Len(t, topology.Bindings, 1)
		assert.Equal(t, "controller.#", topology.Bindings[0].RoutingKey)
		assert.NoError(t, topology.Validate())
	})
}

func TestDeclareTopology(t *testing.T) {
	t.Run("declares exchanges, queues and bindings in order", func(t *testing.T) {
		ch := &mockDeclarer{}
		ch.On("ExchangeDeclare", "gdn.bridge", "topic", true, false).Return(nil).Once()
		ch.On("QueueDeclare", "q", false, true, true).Return(nil).Once()
		ch.On("QueueBind", "q", "controller.#", "gdn.bridge").Return(nil).Once()

		require.NoError(t, DeclareTopology(ch, EndpointTopology("gdn.bridge", "q", "controller")))
		ch.AssertExpectations(t)
	})

	t.Run("stops at the first failure", func(t *testing.T) {
		ch := &mockDeclarer{}
		ch.On("ExchangeDeclare", "gdn.bridge", "topic", true, false).Return(nil)
		ch.On("QueueDeclare", "q", false, true, true).Return(errors.New("access refused"))

		err := DeclareTopology(ch, EndpointTopology("gdn.bridge", "q", "controller"))

		var topoErr *TopologyError
		require.ErrorAs(t, err, &topoErr)
		assert.Equal(t, "queue", topoErr.Component)
		assert.Equal(t, "q", topoErr.Name)
		ch.AssertNotCalled(t, "QueueBind", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects invalid topology before touching the channel", func(t *testing.T) {
		ch := &mockDeclarer{}
		err := DeclareTopology(ch, Topology{
			Bindings: []Binding{{Queue: "missing", Exchange: "x", RoutingKey: "#"}},
		})

		assert.ErrorIs(t, err, ErrInvalidConfiguration)
		ch.AssertNotCalled(t, "ExchangeDeclare", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
