package bridge_test

import (
	"testing"

	"github.com/attaradev/jetstream-bridge/pkg/bridge"
	"github.com/attaradev/jetstream-bridge/pkg/test"
)

type EnvelopeSuite struct {
	test.Suite
}

func TestEnvelopeSuite(t *testing.T) {
	test.Run(t, new(EnvelopeSuite))
}

type orderPayload struct {
	OrderID string `json:"order_id"`
	Total   int    `json:"total"`
}

func (s *EnvelopeSuite) TestRoundTrip() {
	env, err := bridge.NewEnvelope("order.created", "orders", "order", "o-123", orderPayload{OrderID: "o-123", Total: 4200})
	s.Require().NoError(err)
	s.NotEmpty(env.EventID)
	s.Equal(bridge.SchemaVersion, env.SchemaVer)

	data, err := env.Encode()
	s.Require().NoError(err)

	decoded, err := bridge.DecodeEnvelope(data)
	s.Require().NoError(err)
	s.Equal(env.EventID, decoded.EventID)
	s.Equal(env.EventType, decoded.EventType)
	s.Equal(env.Producer, decoded.Producer)
	s.Equal(env.ResourceID, decoded.ResourceID)
	s.WithinDuration(env.OccurredAt, decoded.OccurredAt, 0)

	var payload orderPayload
	s.Require().NoError(decoded.UnmarshalPayload(&payload))
	s.Equal("o-123", payload.OrderID)
	s.Equal(4200, payload.Total)
}

func (s *EnvelopeSuite) TestDecodeMalformedReturnsDeserializationError() {
	_, err := bridge.DecodeEnvelope([]byte("not json"))
	s.Require().Error(err)
	s.True(bridge.IsDeserialization(err))
}
