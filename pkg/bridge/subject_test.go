package bridge_test

import (
	"testing"

	"github.com/attaradev/jetstream-bridge/pkg/bridge"
	"github.com/attaradev/jetstream-bridge/pkg/test"
)

type SubjectSuite struct {
	test.Suite
}

func TestSubjectSuite(t *testing.T) {
	test.Run(t, new(SubjectSuite))
}

func (s *SubjectSuite) TestSubjectFor() {
	s.Equal("orders.sync.billing", bridge.SubjectFor("orders", "billing"))
}

func (s *SubjectSuite) TestDLQSubjectFor() {
	s.Equal("orders.sync.billing.dlq", bridge.DLQSubjectFor("orders", "billing"))
}

func (s *SubjectSuite) TestStreamName() {
	s.Equal("prod-jetstream-bridge-stream", bridge.StreamName("prod"))
}

func (s *SubjectSuite) TestMatchesWildcardSingleToken() {
	s.True(bridge.MatchesWildcard("orders.sync.*", "orders.sync.billing"))
	s.False(bridge.MatchesWildcard("orders.sync.*", "orders.sync.billing.dlq"))
}

func (s *SubjectSuite) TestMatchesWildcardTrailing() {
	s.True(bridge.MatchesWildcard("orders.>", "orders.sync.billing.dlq"))
	s.False(bridge.MatchesWildcard("billing.>", "orders.sync.billing"))
}

func (s *SubjectSuite) TestOverlapsSymmetric() {
	s.True(bridge.Overlaps("orders.sync.*", "orders.sync.billing"))
	s.True(bridge.Overlaps("orders.sync.billing", "orders.sync.*"))
	s.False(bridge.Overlaps("orders.sync.billing", "orders.sync.shipping"))
}

func (s *SubjectSuite) TestOverlapsTrailingWildcard() {
	s.True(bridge.Overlaps("orders.>", "orders.sync.billing"))
	s.True(bridge.Overlaps("orders.sync.billing", "orders.>"))
}

func (s *SubjectSuite) TestCoversAll() {
	have := []string{"orders.sync.*", "billing.sync.orders"}
	ok, missing := bridge.CoversAll(have, []string{"orders.sync.billing", "billing.sync.orders"})
	s.True(ok)
	s.Empty(missing)

	ok, missing = bridge.CoversAll(have, []string{"shipping.sync.orders"})
	s.False(ok)
	s.Equal([]string{"shipping.sync.orders"}, missing)
}
