package nats

import (
	"context"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/attaradev/jetstream-bridge/pkg/messaging"
)

// PullSubscription is a pull-based JetStream consumer exposing explicit
// per-message acknowledgment (Ack / NakWithDelay / Term), which the bridge's
// consumer needs to implement its backoff and DLQ-on-exhaustion behavior.
// The generic messaging.Consumer interface only models a nil/error ack
// contract and cannot express this.
type PullSubscription struct {
	consumer jetstream.Consumer
	stream   string
	durable  string
}

// PullConsumerConfig describes the JetStream consumer backing a
// PullSubscription.
type PullConsumerConfig struct {
	Durable       string
	FilterSubject string
	AckWait       time.Duration
	MaxDeliver    int
	MaxAckPending int
}

// NewPullSubscription creates or updates a durable pull consumer on stream
// and returns a handle for fetching from it.
func NewPullSubscription(ctx context.Context, js jetstream.JetStream, stream string, cfg PullConsumerConfig) (*PullSubscription, error) {
	consumerCfg := jetstream.ConsumerConfig{
		Durable:       cfg.Durable,
		FilterSubject: cfg.FilterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait,
		MaxDeliver:    cfg.MaxDeliver,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
		MaxAckPending: cfg.MaxAckPending,
	}

	cons, err := js.CreateOrUpdateConsumer(ctx, stream, consumerCfg)
	if err != nil {
		return nil, messaging.ErrConsumeFailed(err)
	}
	return &PullSubscription{consumer: cons, stream: stream, durable: cfg.Durable}, nil
}

// InboundMessage is a single fetched JetStream message with explicit
// acknowledgment control.
type InboundMessage struct {
	msg  jetstream.Msg
	meta *jetstream.MsgMetadata
}

// Subject returns the subject the message was published to.
func (m *InboundMessage) Subject() string { return m.msg.Subject() }

// Data returns the raw message payload.
func (m *InboundMessage) Data() []byte { return m.msg.Data() }

// Header returns a single header value, or "" if absent.
func (m *InboundMessage) Header(key string) string { return m.msg.Headers().Get(key) }

// Deliveries returns how many times this message has been delivered,
// including the current delivery.
func (m *InboundMessage) Deliveries() uint64 {
	if m.meta == nil {
		return 1
	}
	return m.meta.NumDelivered
}

// StreamSequence returns the message's sequence number within its stream.
func (m *InboundMessage) StreamSequence() uint64 {
	if m.meta == nil {
		return 0
	}
	return m.meta.Sequence.Stream
}

// Ack acknowledges successful processing.
func (m *InboundMessage) Ack() error {
	if err := m.msg.Ack(); err != nil {
		return messaging.ErrAckFailed(err)
	}
	return nil
}

// NakWithDelay signals failed processing and asks the server to redeliver
// after delay.
func (m *InboundMessage) NakWithDelay(delay time.Duration) error {
	if err := m.msg.NakWithDelay(delay); err != nil {
		return messaging.ErrNackFailed(err)
	}
	return nil
}

// Term terminates redelivery entirely; the server will not attempt to
// redeliver this message again.
func (m *InboundMessage) Term() error {
	return m.msg.Term()
}

// InProgress extends the ack deadline for a message still being processed.
func (m *InboundMessage) InProgress() error {
	return m.msg.InProgress()
}

// Fetch pulls up to batchSize messages, waiting at most timeout for the
// first message to arrive. It returns an empty slice (not an error) if no
// messages were available within the window.
func (s *PullSubscription) Fetch(ctx context.Context, batchSize int, timeout time.Duration) ([]*InboundMessage, error) {
	msgs, err := s.consumer.Fetch(batchSize, jetstream.FetchMaxWait(timeout))
	if err != nil {
		return nil, messaging.ErrConsumeFailed(err)
	}

	var out []*InboundMessage
	for msg := range msgs.Messages() {
		meta, _ := msg.Metadata()
		out = append(out, &InboundMessage{msg: msg, meta: meta})
	}
	if err := msgs.Error(); err != nil {
		return out, messaging.ErrConsumeFailed(err)
	}
	return out, nil
}

// Close releases resources held by the subscription. JetStream pull
// consumers have no client-side handle to release beyond letting it be
// garbage collected, but Close is kept for symmetry with Consumer.
func (s *PullSubscription) Close() error {
	return nil
}
