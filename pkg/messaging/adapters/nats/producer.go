package nats

import (
	"context"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/attaradev/jetstream-bridge/pkg/messaging"
)

// producer implements messaging.Producer by publishing into JetStream with
// Nats-Msg-Id deduplication headers.
type producer struct {
	js    jetstream.JetStream
	topic string
}

func (p *producer) Publish(ctx context.Context, msg *messaging.Message) error {
	subject := msg.Topic
	if subject == "" {
		subject = p.topic
	}

	natsMsg := &natsgo.Msg{
		Subject: subject,
		Data:    msg.Payload,
		Header:  natsgo.Header{},
	}
	for k, v := range msg.Headers {
		natsMsg.Header.Set(k, v)
	}

	var opts []jetstream.PublishOpt
	if msg.ID != "" {
		opts = append(opts, jetstream.WithMsgID(msg.ID))
	}

	ack, err := p.js.PublishMsg(ctx, natsMsg, opts...)
	if err != nil {
		return messaging.ErrPublishFailed(err)
	}

	msg.Metadata.Raw = ack
	return nil
}

func (p *producer) PublishBatch(ctx context.Context, msgs []*messaging.Message) error {
	for _, m := range msgs {
		if err := p.Publish(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (p *producer) Close() error {
	return nil
}

// Duplicate reports whether the ack attached to msg's metadata (after a
// successful Publish) indicates the server recognized it as a duplicate
// within the stream's deduplication window.
func Duplicate(msg *messaging.Message) bool {
	ack, ok := msg.Metadata.Raw.(*jetstream.PubAck)
	return ok && ack != nil && ack.Duplicate
}

// Sequence returns the stream sequence number assigned to msg, if known.
func Sequence(msg *messaging.Message) uint64 {
	ack, ok := msg.Metadata.Raw.(*jetstream.PubAck)
	if !ok || ack == nil {
		return 0
	}
	return ack.Sequence
}
