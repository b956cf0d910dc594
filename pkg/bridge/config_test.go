package bridge_test

import (
	"testing"
	"time"

	"github.com/attaradev/jetstream-bridge/pkg/bridge"
	"github.com/attaradev/jetstream-bridge/pkg/test"
)

type ConfigSuite struct {
	test.Suite
}

func TestConfigSuite(t *testing.T) {
	test.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) TestParsedBackoffOrdersEntries() {
	cfg := bridge.Config{RetryBackoffSchedule: "1s,5s,15s"}
	sched := cfg.ParsedBackoff()
	s.Equal(time.Second, sched.Delay(0))
	s.Equal(5*time.Second, sched.Delay(1))
	s.Equal(15*time.Second, sched.Delay(2))
	// Exhausted schedule repeats the last entry.
	s.Equal(15*time.Second, sched.Delay(99))
}

func (s *ConfigSuite) TestParsedBackoffFallsBackOnEmpty() {
	cfg := bridge.Config{}
	sched := cfg.ParsedBackoff()
	s.Equal(time.Second, sched.Delay(0))
}

func (s *ConfigSuite) TestDesiredSubjectsCoversBothDirectionsAndDLQ() {
	cfg := bridge.Config{ProducerName: "orders", Destinations: []string{"billing"}}
	subjects := cfg.DesiredSubjects()

	ok, missing := bridge.CoversAll(subjects, []string{
		"orders.sync.billing",
		"orders.sync.billing.dlq",
		"billing.sync.orders",
		"billing.sync.orders.dlq",
	})
	s.True(ok, "missing subjects: %v", missing)
}
