package bridge_test

import (
	"errors"
	"testing"
	"time"

	"github.com/attaradev/jetstream-bridge/pkg/bridge"
	"github.com/attaradev/jetstream-bridge/pkg/test"
)

type DispatcherSuite struct {
	test.Suite
	outbox *bridge.OutboxStore
}

func (s *DispatcherSuite) SetupTest() {
	s.Suite.SetupTest()
	db, err := bridge.OpenStore(bridge.Config{DatabaseDriver: "sqlite", DatabaseDSN: "file:" + s.T().Name() + "?mode=memory&cache=shared&_busy_timeout=5000"})
	s.Require().NoError(err)
	s.outbox = bridge.NewOutboxStore(db)
}

func (s *DispatcherSuite) newDispatcher(cfg bridge.Config, broker *fakeBroker) *bridge.Dispatcher {
	if cfg.ProducerName == "" {
		cfg.ProducerName = "api"
	}
	if cfg.DispatcherBatchSize == 0 {
		cfg.DispatcherBatchSize = 10
	}
	if cfg.RetryBackoffSchedule == "" {
		cfg.RetryBackoffSchedule = "1ms,2ms"
	}
	return bridge.NewDispatcher(cfg, &fakeBrokerProvider{broker: broker}, s.outbox)
}

func TestDispatcherSuite(t *testing.T) {
	test.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) TestTickPublishesPendingRowAndMarksSent() {
	s.Require().NoError(s.outbox.Insert(s.Ctx, bridge.OutboxInsert{ID: "evt-sent", Subject: "api.sync.worker", Payload: []byte(`{}`)}))

	fb := &fakeBroker{}
	d := s.newDispatcher(bridge.Config{MaxOutboxAttempts: 5}, fb)
	s.Require().NoError(d.Tick(s.Ctx))

	s.Require().Len(fb.published, 1)
	s.Equal("evt-sent", fb.published[0].ID)

	claimed, err := s.outbox.ClaimBatch(s.Ctx, 10)
	s.Require().NoError(err)
	s.Empty(claimed, "a sent row must never be reclaimed")
}

func (s *DispatcherSuite) TestTickReschedulesOnFailureBelowMaxAttempts() {
	s.Require().NoError(s.outbox.Insert(s.Ctx, bridge.OutboxInsert{ID: "evt-retry", Subject: "api.sync.worker", Payload: []byte(`{}`)}))

	fb := &fakeBroker{publishErr: errors.New("broker unreachable")}
	d := s.newDispatcher(bridge.Config{MaxOutboxAttempts: 5, RetryBackoffSchedule: "0s"}, fb)
	s.Require().NoError(d.Tick(s.Ctx))

	// not_before was set to ~now, so the row is due again immediately.
	claimed, err := s.outbox.ClaimBatch(s.Ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(claimed, 1)
	s.Equal(2, claimed[0].Attempts)
}

func (s *DispatcherSuite) TestTickMarksFailedAfterMaxAttempts() {
	s.Require().NoError(s.outbox.Insert(s.Ctx, bridge.OutboxInsert{ID: "evt-exhausted", Subject: "api.sync.worker", Payload: []byte(`{}`)}))

	fb := &fakeBroker{publishErr: errors.New("broker unreachable")}
	d := s.newDispatcher(bridge.Config{MaxOutboxAttempts: 1}, fb)
	s.Require().NoError(d.Tick(s.Ctx))

	claimed, err := s.outbox.ClaimBatch(s.Ctx, 10)
	s.Require().NoError(err)
	s.Empty(claimed, "a permanently failed row must never be reclaimed")
}

func (s *DispatcherSuite) TestStartAndStopRunsAtLeastOneCycle() {
	s.Require().NoError(s.outbox.Insert(s.Ctx, bridge.OutboxInsert{ID: "evt-bg", Subject: "api.sync.worker", Payload: []byte(`{}`)}))

	fb := &fakeBroker{}
	d := s.newDispatcher(bridge.Config{MaxOutboxAttempts: 5, DispatcherInterval: time.Millisecond, DispatcherWorkers: 1}, fb)

	d.Start(s.Ctx)
	s.Eventually(func() bool { return len(fb.published) == 1 }, time.Second, time.Millisecond)
	d.Stop()
}
