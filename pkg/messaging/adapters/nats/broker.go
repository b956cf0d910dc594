package nats

import (
	"context"
	"fmt"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/attaradev/jetstream-bridge/pkg/logger"
	"github.com/attaradev/jetstream-bridge/pkg/messaging"
)

// Broker implements messaging.Broker on top of a single NATS connection and
// its JetStream context.
type Broker struct {
	conn *natsgo.Conn
	js   jetstream.JetStream
}

// Connect dials NATS and opens a JetStream context.
func Connect(cfg Config) (*Broker, error) {
	opts := []natsgo.Option{
		natsgo.Name(cfg.Name),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.Timeout(cfg.ConnectTimeout),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.L().Warn("nats disconnected", "error", err)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.L().Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		natsgo.ClosedHandler(func(_ *natsgo.Conn) {
			logger.L().Info("nats connection closed")
		}),
	}

	conn, err := natsgo.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, messaging.ErrConnectionFailed(err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, messaging.ErrConnectionFailed(fmt.Errorf("create jetstream context: %w", err))
	}

	return &Broker{conn: conn, js: js}, nil
}

// NewFromConn wraps an already-established connection and JetStream
// context, for callers that own the connection lifecycle themselves.
func NewFromConn(conn *natsgo.Conn, js jetstream.JetStream) *Broker {
	return &Broker{conn: conn, js: js}
}

// JetStream exposes the raw JetStream handle for topology management and
// pull-consumer construction, which need operations the generic Broker
// interface does not model.
func (b *Broker) JetStream() jetstream.JetStream {
	return b.js
}

// Conn exposes the underlying NATS connection.
func (b *Broker) Conn() *natsgo.Conn {
	return b.conn
}

func (b *Broker) Producer(topic string) (messaging.Producer, error) {
	return &producer{js: b.js, topic: topic}, nil
}

func (b *Broker) Consumer(topic string, group string) (messaging.Consumer, error) {
	durable := sanitizeDurable(group)
	if durable == "" {
		durable = sanitizeDurable(topic)
	}
	cons, err := b.js.CreateOrUpdateConsumer(context.Background(), streamNameForSubject(topic), jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: topic,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, messaging.ErrConsumeFailed(err)
	}
	return &consumer{consumer: cons, topic: topic, group: group}, nil
}

func (b *Broker) Close() error {
	b.conn.Close()
	return nil
}

func (b *Broker) Healthy(ctx context.Context) bool {
	if b.conn == nil || !b.conn.IsConnected() {
		return false
	}
	_, err := b.js.AccountInfo(ctx)
	return err == nil
}
