package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/attaradev/jetstream-bridge/pkg/logger"
	"github.com/attaradev/jetstream-bridge/pkg/messaging"
	natsadapter "github.com/attaradev/jetstream-bridge/pkg/messaging/adapters/nats"
	"github.com/attaradev/jetstream-bridge/pkg/resilience"
)

// natsMsgIDHeader is the header the nats adapter's producer sets for
// broker-side dedup (jetstream.WithMsgID); the consumer falls
// back to it as the dedup key when the envelope itself fails to parse.
const natsMsgIDHeader = "Nats-Msg-Id"

// Event is the view of an Envelope handed to a Handler: the same fields,
// plus delivery bookkeeping the handler may want for logging.
type Event struct {
	EventID      string
	SchemaVer    int
	EventType    string
	Producer     string
	ResourceType string
	ResourceID   string
	OccurredAt   time.Time
	TraceID      string
	Payload      json.RawMessage
	Deliveries   uint64
}

// UnmarshalPayload decodes the event's payload into dst.
func (e Event) UnmarshalPayload(dst interface{}) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return WrapDeserializationError(err)
	}
	return nil
}

// Handler processes one Event. Returning nil acknowledges the message;
// returning an error triggers the configured NAK-with-backoff/DLQ policy.
type Handler func(ctx context.Context, event Event) error

// Subscription pulls messages for one filter subject, deduplicating via the
// inbox, retrying failed handlers with backoff, and routing exhausted
// messages to the DLQ subject.
type Subscription struct {
	cfg           Config
	cm            *ConnectionManager
	inbox         *InboxStore
	handler       Handler
	filterSubject string
	dlqSubject    string
	durable       string
	backoff       resilience.Schedule

	sub    *natsadapter.PullSubscription
	broker messaging.Broker
}

// NewSubscription builds a Subscription for filterSubject (typically the
// inbound subject from a destination, SubjectFor(destination, self)).
// durable names the JetStream consumer so restarts rebind rather than
// create a fresh one.
func NewSubscription(cfg Config, cm *ConnectionManager, inbox *InboxStore, filterSubject string, handler Handler) *Subscription {
	return &Subscription{
		cfg:           cfg,
		cm:            cm,
		inbox:         inbox,
		handler:       handler,
		filterSubject: filterSubject,
		dlqSubject:    filterSubject + ".dlq",
		durable:       durableName(cfg.ProducerName, filterSubject),
		backoff:       cfg.ParsedBackoff(),
	}
}

// Run binds (creating if necessary) the durable pull consumer and loops
// fetching/processing batches until ctx is canceled.
func (s *Subscription) Run(ctx context.Context) error {
	js, err := s.cm.JetStreamContext(ctx)
	if err != nil {
		return err
	}
	broker, err := s.cm.MessagingBroker(ctx)
	if err != nil {
		return err
	}

	sub, err := natsadapter.NewPullSubscription(ctx, js, StreamName(s.cfg.Env), natsadapter.PullConsumerConfig{
		Durable:       s.durable,
		FilterSubject: s.filterSubject,
		AckWait:       s.cfg.AckWait,
		MaxDeliver:    s.cfg.MaxDeliveries,
	})
	if err != nil {
		return WrapConnectionError(err)
	}
	s.sub = sub
	s.broker = broker

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.fetchAndProcess(ctx); err != nil {
			logger.L().ErrorContext(ctx, "bridge fetch failed", "subject", s.filterSubject, "error", err)
		}
	}
}

func (s *Subscription) fetchAndProcess(ctx context.Context) error {
	batch, err := s.sub.Fetch(ctx, s.cfg.FetchBatchSize, s.cfg.FetchTimeout)
	if err != nil {
		return err
	}

	for _, msg := range batch {
		s.process(ctx, msg)
	}
	return nil
}

// process builds an Event from msg and runs it through the inbox/handler/
// ack protocol. A message whose envelope fails to parse is not discarded
// out of hand: it is given an empty envelope and a fallback event_id
// (header Nats-Msg-Id, else "seq:<streamSeq>") and flows through the exact
// same failed/backoff/DLQ path a handler error would, per the
// DeserializationError handling in spec.md §7.
func (s *Subscription) process(ctx context.Context, msg *natsadapter.InboundMessage) {
	env, parseErr := DecodeEnvelope(msg.Data())
	if parseErr != nil {
		logger.L().ErrorContext(ctx, "bridge received malformed envelope", "subject", s.filterSubject, "error", parseErr)
		env = &Envelope{}
	}

	eventID := env.EventID
	if eventID == "" {
		eventID = msg.Header(natsMsgIDHeader)
	}
	if eventID == "" {
		eventID = fmt.Sprintf("seq:%d", msg.StreamSequence())
	}

	deliveries := msg.Deliveries()

	if s.cfg.InboxEnabled {
		duplicate, err := s.alreadyProcessed(ctx, eventID)
		if err != nil {
			logger.L().ErrorContext(ctx, "inbox lookup failed", "event_id", eventID, "error", err)
		} else if duplicate {
			logger.L().InfoContext(ctx, "bridge skipping already-processed event", "event_id", eventID)
			_ = msg.Ack()
			return
		}
		if _, err := s.inbox.TryBeginProcessing(ctx, eventID, InboxBeginParams{
			EventType:    env.EventType,
			ConsumerID:   s.durable,
			ResourceType: env.ResourceType,
			ResourceID:   env.ResourceID,
			SourceApp:    env.Producer,
			Payload:      msg.Data(),
		}); err != nil {
			logger.L().ErrorContext(ctx, "inbox begin-processing failed", "event_id", eventID, "error", err)
		}
	}

	var handlerErr error
	if parseErr != nil {
		handlerErr = WrapDeserializationError(parseErr)
	} else {
		event := Event{
			EventID:      eventID,
			SchemaVer:    env.SchemaVer,
			EventType:    env.EventType,
			Producer:     env.Producer,
			ResourceType: env.ResourceType,
			ResourceID:   env.ResourceID,
			OccurredAt:   env.OccurredAt,
			TraceID:      env.TraceID,
			Payload:      env.Payload,
			Deliveries:   deliveries,
		}
		handlerErr = s.handler(ctx, event)
	}

	if handlerErr == nil {
		if s.cfg.InboxEnabled {
			if err := s.inbox.MarkProcessed(ctx, eventID); err != nil {
				logger.L().ErrorContext(ctx, "failed to mark inbox processed", "event_id", eventID, "error", err)
			}
		}
		_ = msg.Ack()
		return
	}

	wrapped := handlerErr
	if parseErr == nil {
		wrapped = WrapHandlerError(handlerErr)
	}
	if s.cfg.InboxEnabled {
		if err := s.inbox.MarkFailed(ctx, eventID, wrapped); err != nil {
			logger.L().ErrorContext(ctx, "failed to mark inbox failed", "event_id", eventID, "error", err)
		}
	}

	if s.cfg.MaxDeliveries > 0 && int(deliveries) >= s.cfg.MaxDeliveries {
		if s.cfg.UseDLQ {
			s.routeToDLQ(ctx, msg.Data(), eventID, wrapped)
		} else {
			logger.L().WarnContext(ctx, "bridge exhausted deliveries with DLQ disabled, terminating", "event_id", eventID, "deliveries", deliveries)
		}
		_ = msg.Term()
		return
	}

	delay := s.backoff.Delay(int(deliveries) - 1)
	logger.L().WarnContext(ctx, "bridge handler failed, nacking with backoff", "event_id", eventID, "deliveries", deliveries, "delay", delay, "error", wrapped)
	_ = msg.NakWithDelay(delay)
}

// alreadyProcessed reports whether eventID's inbox row is already
// InboxProcessed - a true duplicate, as opposed to a row in InboxProcessing
// or InboxFailed, which means this delivery is a retry that should still
// run the handler.
func (s *Subscription) alreadyProcessed(ctx context.Context, eventID string) (bool, error) {
	row, err := s.inbox.Lookup(ctx, eventID)
	if err != nil {
		return false, err
	}
	return row != nil && row.Status == InboxProcessed, nil
}

func (s *Subscription) routeToDLQ(ctx context.Context, data []byte, eventID string, cause error) {
	if s.broker == nil {
		return
	}
	producer, err := s.broker.Producer(s.dlqSubject)
	if err == nil {
		err = producer.Publish(ctx, &messaging.Message{
			ID:      eventID + "-dlq",
			Topic:   s.dlqSubject,
			Payload: data,
			Headers: map[string]string{"Bridge-Dlq-Reason": cause.Error()},
		})
	}
	if err != nil {
		logger.L().ErrorContext(ctx, "failed to route event to DLQ", "event_id", eventID, "dlq_subject", s.dlqSubject, "error", err)
		return
	}
	logger.L().WarnContext(ctx, "bridge routed exhausted event to DLQ", "event_id", eventID, "dlq_subject", s.dlqSubject)
}
