package nats

import (
	"context"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/attaradev/jetstream-bridge/pkg/messaging"
)

// consumer implements messaging.Consumer using JetStream's push-iterator
// Messages() API. It is used where the generic nil/error ack contract is
// sufficient (e.g. DLQ draining tools); the bridge's main consume loop uses
// PullSubscription instead for explicit backoff/DLQ control.
type consumer struct {
	consumer jetstream.Consumer
	topic    string
	group    string
}

func (c *consumer) Consume(ctx context.Context, handler messaging.MessageHandler) error {
	iter, err := c.consumer.Messages()
	if err != nil {
		return messaging.ErrConsumeFailed(err)
	}
	defer iter.Stop()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		msg, err := iter.Next()
		if err != nil {
			if err == jetstream.ErrMsgIteratorClosed {
				return nil
			}
			return messaging.ErrConsumeFailed(err)
		}

		meta, _ := msg.Metadata()
		m := &messaging.Message{
			Topic:   msg.Subject(),
			Payload: msg.Data(),
			Headers: flattenHeaders(msg.Headers()),
		}
		if meta != nil {
			m.Metadata.DeliveryCount = int(meta.NumDelivered)
		}
		m.Metadata.Raw = msg

		if err := handler(ctx, m); err != nil {
			_ = msg.Nak()
			continue
		}
		_ = msg.Ack()
	}
}

func (c *consumer) Close() error {
	return nil
}

func flattenHeaders(h map[string][]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
