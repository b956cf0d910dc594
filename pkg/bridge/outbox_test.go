package bridge_test

import (
	"errors"
	"testing"
	"time"

	"github.com/attaradev/jetstream-bridge/pkg/bridge"
	"github.com/attaradev/jetstream-bridge/pkg/test"
)

type OutboxSuite struct {
	test.Suite
	store *bridge.OutboxStore
}

func TestOutboxSuite(t *testing.T) {
	test.Run(t, new(OutboxSuite))
}

func (s *OutboxSuite) SetupTest() {
	s.Suite.SetupTest()
	db, err := bridge.OpenStore(bridge.Config{DatabaseDriver: "sqlite", DatabaseDSN: "file:" + s.T().Name() + "?mode=memory&cache=shared&_busy_timeout=5000"})
	s.Require().NoError(err)
	s.store = bridge.NewOutboxStore(db)
}

func (s *OutboxSuite) TestInsertAndClaimIsMonotonic() {
	s.Require().NoError(s.store.Insert(s.Ctx, bridge.OutboxInsert{ID: "evt-1", Subject: "orders.sync.billing", Payload: []byte(`{"a":1}`)}))

	claimed, err := s.store.ClaimBatch(s.Ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(claimed, 1)
	s.Equal(1, claimed[0].Attempts)

	// ClaimBatch does not change a row's status: until MarkPendingWithBackoff
	// or MarkSent is called the row is still "pending" and due in storage,
	// with only its attempts advanced, so a second immediate claim would
	// re-claim it (at-least-once, not exactly-once, claiming). Reschedule it
	// into the future to simulate a dispatcher that is handling it.
	s.Require().NoError(s.store.MarkPendingWithBackoff(s.Ctx, "evt-1", time.Hour, errors.New("boom")))

	claimed, err = s.store.ClaimBatch(s.Ctx, 10)
	s.Require().NoError(err)
	s.Empty(claimed)
}

func (s *OutboxSuite) TestClaimBatchCASPreventsDoubleClaim() {
	s.Require().NoError(s.store.Insert(s.Ctx, bridge.OutboxInsert{ID: "evt-2", Subject: "orders.sync.billing", Payload: []byte(`{}`)}))

	first, err := s.store.ClaimBatch(s.Ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(first, 1)
	s.Require().NoError(s.store.MarkPendingWithBackoff(s.Ctx, "evt-2", -time.Second, nil))

	// The re-claim's CAS matches on the stored attempts == 1 and advances it
	// to 2; a claimer still holding the stale attempts == 0 would match no
	// row and skip it.
	second, err := s.store.ClaimBatch(s.Ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(second, 1)
	s.Equal(2, second[0].Attempts)
}

func (s *OutboxSuite) TestMarkSentExcludesFromFutureClaims() {
	s.Require().NoError(s.store.Insert(s.Ctx, bridge.OutboxInsert{ID: "evt-3", Subject: "orders.sync.billing", Payload: []byte(`{}`)}))
	claimed, err := s.store.ClaimBatch(s.Ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(claimed, 1)

	s.Require().NoError(s.store.MarkSent(s.Ctx, "evt-3"))

	claimed, err = s.store.ClaimBatch(s.Ctx, 10)
	s.Require().NoError(err)
	s.Empty(claimed)
}

func (s *OutboxSuite) TestMarkFailedExcludesFromFutureClaims() {
	s.Require().NoError(s.store.Insert(s.Ctx, bridge.OutboxInsert{ID: "evt-4", Subject: "orders.sync.billing", Payload: []byte(`{}`)}))
	_, err := s.store.ClaimBatch(s.Ctx, 10)
	s.Require().NoError(err)

	s.Require().NoError(s.store.MarkFailed(s.Ctx, "evt-4", errors.New("exhausted")))

	claimed, err := s.store.ClaimBatch(s.Ctx, 10)
	s.Require().NoError(err)
	s.Empty(claimed)
}
