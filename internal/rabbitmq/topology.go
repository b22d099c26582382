package rabbitmq

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Declarer is the subset of *amqp.Channel used to declare topology
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// ExchangeDeclaration defines an exchange to be declared
type ExchangeDeclaration struct {
	Name       string
	Type       string
	Durable    bool
	AutoDelete bool
	Arguments  amqp.Table
}

// QueueDeclaration defines a queue to be declared
type QueueDeclaration struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	Arguments  amqp.Table
}

// Binding defines a queue-to-exchange binding
type Binding struct {
	Queue      string
	Exchange   string
	RoutingKey string
	Arguments  amqp.Table
}

// Topology represents the complete messaging topology
type Topology struct {
	Exchanges []ExchangeDeclaration
	Queues    []QueueDeclaration
	Bindings  []Binding
}

// EndpointTopology is the topology one bridge endpoint consumes from: a
// durable topic exchange shared by both ends and a private queue receiving
// every routing key under "<local>.".
func EndpointTopology(exchange, queue, local string) Topology {
	return Topology{
		Exchanges: []ExchangeDeclaration{
			{Name: exchange, Type: amqp.ExchangeTopic, Durable: true},
		},
		Queues: []QueueDeclaration{
			{Name: queue, AutoDelete: true, Exclusive: true},
		},
		Bindings: []Binding{
			{Queue: queue, Exchange: exchange, RoutingKey: local + ".#"},
		},
	}
}

// Validate checks that every declaration is named and every binding
// references a declared queue
func (t Topology) Validate() error {
	queues := make(map[string]bool, len(t.Queues))
	for _, ex := range t.Exchanges {
		if ex.Name == "" || ex.Type == "" {
			return fmt.Errorf("%w: exchange needs a name and a type", ErrInvalidConfiguration)
		}
	}
	for _, q := range t.Queues {
		if q.Name == "" {
			return fmt.Errorf("%w: queue needs a name", ErrInvalidConfiguration)
		}
		queues[q.Name] = true
	}
	for _, b := range t.Bindings {
		if !queues[b.Queue] {
			return fmt.Errorf("%w: binding references undeclared queue %q", ErrInvalidConfiguration, b.Queue)
		}
	}
	return nil
}

// DeclareTopology declares exchanges, then queues, then bindings
func DeclareTopology(ch Declarer, topology Topology) error {
	if err := topology.Validate(); err != nil {
		return err
	}

	for _, exchange := range topology.Exchanges {
		err := ch.ExchangeDeclare(
			exchange.Name,
			exchange.Type,
			exchange.Durable,
			exchange.AutoDelete,
			false, // internal
			false, // no-wait
			exchange.Arguments,
		)
		if err != nil {
			return topologyError("exchange", exchange.Name, "declare", err)
		}
	}

	for _, queue := range topology.Queues {
		_, err := ch.QueueDeclare(
			queue.Name,
			queue.Durable,
			queue.AutoDelete,
			queue.Exclusive,
			false, // no-wait
			queue.Arguments,
		)
		if err != nil {
			return topologyError("queue", queue.Name, "declare", err)
		}
	}

	for _, binding := range topology.Bindings {
		err := ch.QueueBind(
			binding.Queue,
			binding.RoutingKey,
			binding.Exchange,
			false, // no-wait
			binding.Arguments,
		)
		if err != nil {
			return topologyError("binding", binding.Queue+"->"+binding.Exchange, "declare", err)
		}
	}

	return nil
}

func topologyError(component, name, op string, err error) error {
	return &TopologyError{
		Component: component,
		Name:      name,
		Op:        op,
		Err:       err,
		Timestamp: time.Now(),
	}
}
