// Package rabbitmq holds the AMQP plumbing behind the RabbitMQ transport.
//
// This package includes:
//   - ConnectionManager: dials with a timeout, watches for close
//     notifications and reconnects with backoff
//   - Topology: declares the exchange, queue and binding a bridge endpoint
//     consumes from
//
// Connection state changes are reported to ConnectionStateListener
// implementations so that channels and consumers can be re-established
// after a reconnect.
package rabbitmq
