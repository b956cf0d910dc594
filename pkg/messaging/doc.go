/*
Package messaging provides a unified abstraction layer for message brokers.

This package defines the core interfaces for producing and consuming
messages, decoupled from any one broker implementation. The bridge wraps
the nats adapter in InstrumentedBroker (tracing/logging) and
ResilientBroker (circuit breaker + retry) before handing it to callers.

# Architecture

  - Core interfaces are defined here (zero external dependencies)
  - The adapter lives in pkg/messaging/adapters/nats
  - Decorators (InstrumentedBroker, ResilientBroker) wrap any Broker

# Usage

	import (
	    "github.com/attaradev/jetstream-bridge/pkg/messaging"
	    natsadapter "github.com/attaradev/jetstream-bridge/pkg/messaging/adapters/nats"
	)

	nb, err := natsadapter.Connect(natsadapter.Config{URL: "nats://localhost:4222"})
	broker := messaging.NewResilientBroker(messaging.NewInstrumentedBroker(nb), messaging.ResilientBrokerConfig{})

	producer, err := broker.Producer("my-subject")
	defer producer.Close()

	err = producer.Publish(ctx, &messaging.Message{
	    ID:      uuid.New().String(),
	    Topic:   "my-subject",
	    Payload: []byte(`{"event": "user.created"}`),
	})
*/
package messaging
