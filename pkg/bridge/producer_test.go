package bridge_test

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/attaradev/jetstream-bridge/pkg/bridge"
	"github.com/attaradev/jetstream-bridge/pkg/messaging"
	"github.com/attaradev/jetstream-bridge/pkg/test"
)

// fakeBroker is an in-memory messaging.Broker standing in for a live NATS
// connection, mirroring pkg/messaging's own fakeBroker test pattern.
type fakeBroker struct {
	published  []*messaging.Message
	duplicate  bool
	publishErr error
	brokerErr  error
}

func (b *fakeBroker) Producer(topic string) (messaging.Producer, error) {
	if b.brokerErr != nil {
		return nil, b.brokerErr
	}
	return &fakeProducer{broker: b}, nil
}

func (b *fakeBroker) Consumer(topic, group string) (messaging.Consumer, error) {
	return nil, errors.New("not implemented")
}

func (b *fakeBroker) Close() error                 { return nil }
func (b *fakeBroker) Healthy(context.Context) bool { return b.brokerErr == nil }

type fakeProducer struct{ broker *fakeBroker }

func (p *fakeProducer) Publish(ctx context.Context, msg *messaging.Message) error {
	if p.broker.publishErr != nil {
		return p.broker.publishErr
	}
	p.broker.published = append(p.broker.published, msg)
	msg.Metadata.Raw = &jetstream.PubAck{Duplicate: p.broker.duplicate}
	return nil
}

func (p *fakeProducer) PublishBatch(ctx context.Context, msgs []*messaging.Message) error {
	for _, m := range msgs {
		if err := p.Publish(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (p *fakeProducer) Close() error { return nil }

// fakeBrokerProvider implements bridge.BrokerProvider over a fakeBroker.
type fakeBrokerProvider struct {
	broker *fakeBroker
	err    error
}

func (f *fakeBrokerProvider) MessagingBroker(context.Context) (messaging.Broker, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.broker, nil
}

type ProducerSuite struct {
	test.Suite
}

func TestProducerSuite(t *testing.T) {
	test.Run(t, new(ProducerSuite))
}

func (s *ProducerSuite) TestDirectPublishSuccess() {
	fb := &fakeBroker{}
	p := bridge.NewProducer(bridge.Config{ProducerName: "api", UseOutbox: false}, &fakeBrokerProvider{broker: fb}, nil)

	res, err := p.Publish(s.Ctx, "worker", "user.created", "user", "1", map[string]any{"name": "Ada"})
	s.Require().NoError(err)
	s.Require().NotNil(res)
	s.False(res.Duplicate)
	s.False(res.Queued)
	s.Equal("api.sync.worker", res.Subject)
	s.Require().Len(fb.published, 1)
	s.Equal(res.EventID, fb.published[0].ID)
}

func (s *ProducerSuite) TestDirectPublishReportsDuplicate() {
	fb := &fakeBroker{duplicate: true}
	p := bridge.NewProducer(bridge.Config{ProducerName: "api"}, &fakeBrokerProvider{broker: fb}, nil)

	res, err := p.Publish(s.Ctx, "worker", "user.created", "user", "1", map[string]any{})
	s.Require().NoError(err)
	s.True(res.Duplicate)
}

func (s *ProducerSuite) TestDirectPublishSurfacesBrokerError() {
	fb := &fakeBroker{publishErr: errors.New("broker unreachable")}
	p := bridge.NewProducer(bridge.Config{ProducerName: "api"}, &fakeBrokerProvider{broker: fb}, nil)

	_, err := p.Publish(s.Ctx, "worker", "user.created", "user", "1", map[string]any{})
	s.Require().Error(err)
}

func (s *ProducerSuite) TestOutboxPublishQueuesWithoutBroker() {
	db, err := bridge.OpenStore(bridge.Config{DatabaseDriver: "sqlite", DatabaseDSN: "file:" + s.T().Name() + "?mode=memory&cache=shared&_busy_timeout=5000"})
	s.Require().NoError(err)
	outbox := bridge.NewOutboxStore(db)

	// No broker is reachable; UseOutbox must still succeed since outbox
	// publish never touches the broker synchronously.
	p := bridge.NewProducer(bridge.Config{ProducerName: "api", UseOutbox: true}, &fakeBrokerProvider{err: errors.New("not connected")}, outbox)

	res, err := p.Publish(s.Ctx, "worker", "user.created", "user", "1", map[string]any{"id": 1})
	s.Require().NoError(err)
	s.True(res.Queued)
	s.False(res.Duplicate)

	rows, err := outbox.ClaimBatch(s.Ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal(res.EventID, rows[0].ID)
}

func (s *ProducerSuite) TestOutboxPublishWithoutStoreIsConfigurationError() {
	p := bridge.NewProducer(bridge.Config{ProducerName: "api", UseOutbox: true}, &fakeBrokerProvider{}, nil)

	_, err := p.Publish(s.Ctx, "worker", "user.created", "user", "1", map[string]any{})
	s.Require().Error(err)
}
