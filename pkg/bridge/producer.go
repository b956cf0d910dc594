package bridge

import (
	"context"

	"github.com/attaradev/jetstream-bridge/pkg/logger"
	"github.com/attaradev/jetstream-bridge/pkg/messaging"
	natsadapter "github.com/attaradev/jetstream-bridge/pkg/messaging/adapters/nats"
)

// PublishResult reports the outcome of a Producer.Publish call.
type PublishResult struct {
	// EventID is the envelope's event_id.
	EventID string
	// Subject is the subject the envelope was (or will be) published on.
	Subject string
	// Duplicate is true if the broker recognized event_id within its
	// deduplication window and did not store a second copy.
	Duplicate bool
	// Queued is true when UseOutbox routed this publish through the
	// outbox instead of publishing immediately; Duplicate is always false
	// in that case since the duplicate check happens at dispatch time.
	Queued bool
}

// BrokerProvider is the slice of ConnectionManager the direct-publish path
// needs. Narrowing to an interface (the same pattern topology.go uses for
// streamManager) lets Producer and Dispatcher be exercised against a fake
// messaging.Broker in tests without a live NATS connection.
type BrokerProvider interface {
	MessagingBroker(ctx context.Context) (messaging.Broker, error)
}

// Producer builds envelopes and publishes them, either directly or via the
// transactional outbox depending on Config.UseOutbox.
type Producer struct {
	cfg    Config
	cm     BrokerProvider
	outbox *OutboxStore
}

// NewProducer builds a Producer bound to cm and, when UseOutbox is set, to
// the given outbox store (which may be nil only when UseOutbox is false).
func NewProducer(cfg Config, cm BrokerProvider, outbox *OutboxStore) *Producer {
	return &Producer{cfg: cfg, cm: cm, outbox: outbox}
}

// Publish constructs an Envelope for eventType/resourceType/resourceID
// aimed at destination and either writes it to the outbox or publishes it
// directly, depending on Config.UseOutbox.
func (p *Producer) Publish(ctx context.Context, destination, eventType, resourceType, resourceID string, payload interface{}) (*PublishResult, error) {
	env, err := NewEnvelope(eventType, p.cfg.ProducerName, resourceType, resourceID, payload)
	if err != nil {
		return nil, err
	}
	return p.PublishEnvelope(ctx, destination, env)
}

// PublishEnvelope publishes an already-built Envelope. It is exposed
// separately from Publish so callers that need to control event_id
// generation (e.g. idempotent retries of a caller-level operation) can do
// so.
func (p *Producer) PublishEnvelope(ctx context.Context, destination string, env *Envelope) (*PublishResult, error) {
	subject := SubjectFor(p.cfg.ProducerName, destination)
	data, err := env.Encode()
	if err != nil {
		return nil, err
	}

	if p.cfg.UseOutbox {
		if p.outbox == nil {
			return nil, WrapConfigurationError("UseOutbox is true but no outbox store was configured", nil)
		}
		if err := p.outbox.Insert(ctx, OutboxInsert{
			ID:             env.EventID,
			Subject:        subject,
			ResourceType:   env.ResourceType,
			ResourceID:     env.ResourceID,
			EventType:      env.EventType,
			DestinationApp: destination,
			Payload:        data,
		}); err != nil {
			return nil, err
		}
		return &PublishResult{EventID: env.EventID, Subject: subject, Queued: true}, nil
	}

	dup, err := p.publishDirect(ctx, subject, env.EventID, data)
	if err != nil {
		return nil, err
	}
	return &PublishResult{EventID: env.EventID, Subject: subject, Duplicate: dup}, nil
}

// publishDirect publishes data to subject with msgID via the resilient,
// instrumented messaging.Broker (circuit breaker and retry live in
// ConnectionManager.MessagingBroker), returning whether the broker treated
// it as a duplicate.
func (p *Producer) publishDirect(ctx context.Context, subject, msgID string, data []byte) (bool, error) {
	broker, err := p.cm.MessagingBroker(ctx)
	if err != nil {
		return false, err
	}

	producer, err := broker.Producer(subject)
	if err != nil {
		return false, WrapPublishError(err)
	}

	msg := &messaging.Message{
		ID:      msgID,
		Topic:   subject,
		Payload: data,
	}
	if err := producer.Publish(ctx, msg); err != nil {
		logger.L().ErrorContext(ctx, "bridge publish failed", "subject", subject, "event_id", msgID, "error", err)
		return false, WrapPublishError(err)
	}
	return natsadapter.Duplicate(msg), nil
}
