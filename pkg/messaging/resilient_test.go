package messaging_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/attaradev/jetstream-bridge/pkg/messaging"
	"github.com/attaradev/jetstream-bridge/pkg/resilience"
)

// fakeBroker is an in-memory Broker used to drive ResilientBroker/
// InstrumentedBroker without a live NATS connection.
type fakeBroker struct {
	producerErr error
	publishErr  func(attempt int) error
	attempts    int
}

func (b *fakeBroker) Producer(topic string) (messaging.Producer, error) {
	if b.producerErr != nil {
		return nil, b.producerErr
	}
	return &fakeProducer{broker: b}, nil
}

func (b *fakeBroker) Consumer(topic, group string) (messaging.Consumer, error) {
	return nil, errors.New("not implemented")
}

func (b *fakeBroker) Close() error                 { return nil }
func (b *fakeBroker) Healthy(context.Context) bool { return true }

type fakeProducer struct {
	broker *fakeBroker
}

func (p *fakeProducer) Publish(ctx context.Context, msg *messaging.Message) error {
	p.broker.attempts++
	if p.broker.publishErr == nil {
		return nil
	}
	return p.broker.publishErr(p.broker.attempts)
}

func (p *fakeProducer) PublishBatch(ctx context.Context, msgs []*messaging.Message) error {
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func TestResilientBrokerRetriesThenSucceeds(t *testing.T) {
	fb := &fakeBroker{
		publishErr: func(attempt int) error {
			if attempt < 3 {
				return errors.New("transient failure")
			}
			return nil
		},
	}

	rb := messaging.NewResilientBroker(fb, messaging.ResilientBrokerConfig{
		RetryEnabled:     true,
		RetryMaxAttempts: 5,
		RetryBackoff:     time.Millisecond,
	})

	producer, err := rb.Producer("orders.created")
	require.NoError(t, err)

	err = producer.Publish(context.Background(), &messaging.Message{ID: "evt-1", Topic: "orders.created"})
	require.NoError(t, err)
	require.Equal(t, 3, fb.attempts)
}

func TestResilientBrokerCircuitOpensAfterThreshold(t *testing.T) {
	fb := &fakeBroker{
		publishErr: func(attempt int) error {
			return errors.New("broker down")
		},
	}

	rb := messaging.NewResilientBroker(fb, messaging.ResilientBrokerConfig{
		CircuitBreakerEnabled:   true,
		CircuitBreakerThreshold: 2,
		CircuitBreakerTimeout:   time.Minute,
		RetryEnabled:            false,
	})

	producer, err := rb.Producer("orders.created")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		err := producer.Publish(context.Background(), &messaging.Message{ID: "evt", Topic: "orders.created"})
		require.Error(t, err)
	}

	attemptsBeforeOpen := fb.attempts
	err = producer.Publish(context.Background(), &messaging.Message{ID: "evt", Topic: "orders.created"})
	require.Error(t, err)
	require.Equal(t, attemptsBeforeOpen, fb.attempts, "circuit should fail fast without calling the underlying broker")
	require.Equal(t, resilience.StateOpen, rb.CircuitState())
}

func TestResilientBrokerCircuitStateClosedWithoutBreaker(t *testing.T) {
	rb := messaging.NewResilientBroker(&fakeBroker{}, messaging.ResilientBrokerConfig{})
	require.Equal(t, resilience.StateClosed, rb.CircuitState())
}

func TestInstrumentedBrokerPassesThroughPublish(t *testing.T) {
	fb := &fakeBroker{}
	ib := messaging.NewInstrumentedBroker(fb)

	producer, err := ib.Producer("orders.created")
	require.NoError(t, err)

	err = producer.Publish(context.Background(), &messaging.Message{ID: "evt-1", Topic: "orders.created"})
	require.NoError(t, err)
	require.Equal(t, 1, fb.attempts)
}

func TestInstrumentedBrokerSurfacesProducerError(t *testing.T) {
	fb := &fakeBroker{producerErr: errors.New("connection lost")}
	ib := messaging.NewInstrumentedBroker(fb)

	_, err := ib.Producer("orders.created")
	require.Error(t, err)
}
