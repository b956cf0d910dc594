package bridge

import (
	"strings"
	"time"

	"github.com/attaradev/jetstream-bridge/pkg/messaging"
	"github.com/attaradev/jetstream-bridge/pkg/resilience"
)

// AutoStartPolicy controls when the bridge reconciles topology and opens
// its connection relative to construction.
type AutoStartPolicy string

const (
	// AutoStartNever requires an explicit Start call.
	AutoStartNever AutoStartPolicy = "never"
	// AutoStartOnFirstUse lazily connects the first time a Producer or
	// Consumer needs the connection.
	AutoStartOnFirstUse AutoStartPolicy = "on_first_use"
	// AutoStartImmediate connects eagerly as soon as the bridge is built.
	AutoStartImmediate AutoStartPolicy = "immediate"
)

// Config holds every environment-tunable bridge setting. It is loaded via
// pkg/config.Load, which both reads the environment (or a .env file) and
// validates struct tags.
type Config struct {
	// Env namespaces the JetStream stream this bridge manages:
	// "<env>-jetstream-bridge-stream".
	Env string `env:"BRIDGE_ENV" env-default:"dev" validate:"required"`

	// ProducerName identifies this instance as an event producer/consumer
	// and is the first token of subjects it publishes on.
	ProducerName string `env:"BRIDGE_PRODUCER_NAME" validate:"required"`

	// Destinations lists the other bridge instance names this producer
	// publishes to and/or consumes from, comma-separated.
	Destinations []string `env:"BRIDGE_DESTINATIONS" env-separator:","`

	// NATSURL is the NATS server URL (or comma-separated cluster list).
	NATSURL string `env:"BRIDGE_NATS_URL" env-default:"nats://127.0.0.1:4222"`

	// ConnectTimeout bounds how long a lazy connect attempt may take.
	ConnectTimeout time.Duration `env:"BRIDGE_CONNECT_TIMEOUT" env-default:"5s"`

	// HealthCheckInterval is how often the connection manager probes the
	// broker in the background; 0 disables background probing.
	HealthCheckInterval time.Duration `env:"BRIDGE_HEALTH_CHECK_INTERVAL" env-default:"30s"`

	// AutoStart controls when the bridge connects. See AutoStartPolicy.
	AutoStart AutoStartPolicy `env:"BRIDGE_AUTO_START" env-default:"on_first_use"`

	// UseOutbox routes Producer.Publish through the transactional outbox
	// instead of publishing directly.
	UseOutbox bool `env:"BRIDGE_USE_OUTBOX" env-default:"true"`

	// DispatcherBatchSize bounds how many outbox rows one dispatcher tick
	// claims at once.
	DispatcherBatchSize int `env:"BRIDGE_DISPATCHER_BATCH_SIZE" env-default:"100"`

	// DispatcherInterval is the delay between dispatcher ticks when the
	// previous tick found nothing pending.
	DispatcherInterval time.Duration `env:"BRIDGE_DISPATCHER_INTERVAL" env-default:"2s"`

	// DispatcherWorkers is the number of concurrent dispatcher workers.
	// The recommended and default value is 1: a single worker makes outbox
	// claim contention a non-issue and preserves rough publish ordering
	// per destination without needing a distributed lock.
	DispatcherWorkers int `env:"BRIDGE_DISPATCHER_WORKERS" env-default:"1"`

	// RetryBackoffSchedule is an ordered, comma-separated list of delays
	// (e.g. "1s,5s,15s,30s,60s") applied between redelivery/retry attempts
	// on both the outbox dispatcher and the consumer's NAK backoff. The
	// last entry repeats once exhausted.
	RetryBackoffSchedule string `env:"BRIDGE_RETRY_BACKOFF" env-default:"1s,5s,15s,30s,60s"`

	// MaxDeliveries bounds how many times the consumer will attempt a
	// message before routing it to the DLQ subject.
	MaxDeliveries int `env:"BRIDGE_MAX_DELIVERIES" env-default:"10"`

	// UseDLQ controls what happens once MaxDeliveries is exhausted: when
	// true the message is published to the "<subject>.dlq" subject before
	// being terminated; when false it is simply terminated in place.
	UseDLQ bool `env:"BRIDGE_USE_DLQ" env-default:"true"`

	// MaxOutboxAttempts bounds how many times the dispatcher will retry an
	// outbox row before marking it permanently failed.
	MaxOutboxAttempts int `env:"BRIDGE_MAX_OUTBOX_ATTEMPTS" env-default:"10"`

	// FetchBatchSize is how many messages the consumer pulls per fetch.
	FetchBatchSize int `env:"BRIDGE_FETCH_BATCH_SIZE" env-default:"50"`

	// FetchTimeout bounds how long a single pull fetch waits for at least
	// one message before returning empty.
	FetchTimeout time.Duration `env:"BRIDGE_FETCH_TIMEOUT" env-default:"5s"`

	// AckWait is the JetStream consumer's ack deadline.
	AckWait time.Duration `env:"BRIDGE_ACK_WAIT" env-default:"30s"`

	// InboxEnabled turns on consume-side deduplication via the inbox
	// table. Disabling it is only safe if the handler is itself
	// idempotent.
	InboxEnabled bool `env:"BRIDGE_INBOX_ENABLED" env-default:"true"`

	// InboxRetention is how long processed inbox rows are kept before a
	// caller-driven cleanup may purge them. The bridge does not purge
	// automatically; see Non-goals.
	InboxRetention time.Duration `env:"BRIDGE_INBOX_RETENTION" env-default:"168h"`

	// DatabaseDriver selects the outbox/inbox store backend: "postgres" or
	// "sqlite".
	DatabaseDriver string `env:"BRIDGE_DB_DRIVER" env-default:"postgres" validate:"oneof=postgres sqlite"`

	// DatabaseDSN is the connection string for DatabaseDriver.
	DatabaseDSN string `env:"BRIDGE_DB_DSN"`

	// CircuitBreakerEnabled guards the direct-publish path with a circuit
	// breaker so a stalled broker fails fast instead of queuing retries
	// behind a dead connection.
	CircuitBreakerEnabled bool `env:"BRIDGE_CB_ENABLED" env-default:"true"`

	// CircuitBreakerThreshold is the number of consecutive publish
	// failures that trips the breaker open.
	CircuitBreakerThreshold int64 `env:"BRIDGE_CB_THRESHOLD" env-default:"5"`

	// CircuitBreakerTimeout is how long the breaker stays open before
	// allowing a half-open probe.
	CircuitBreakerTimeout time.Duration `env:"BRIDGE_CB_TIMEOUT" env-default:"30s"`

	// PublishRetryMaxAttempts bounds the exponential-backoff retries the
	// resilient broker wrapper applies to a single direct publish call.
	PublishRetryMaxAttempts int `env:"BRIDGE_PUBLISH_RETRY_MAX" env-default:"5"`

	// PublishRetryBackoff is the initial backoff between direct-publish
	// retries; it doubles on each attempt up to 5s.
	PublishRetryBackoff time.Duration `env:"BRIDGE_PUBLISH_RETRY_BACKOFF" env-default:"200ms"`
}

// resilientBrokerConfig adapts the bridge's resilience settings to the
// generic messaging.ResilientBrokerConfig consumed by the broker wrapper
// used on the direct-publish path.
func (c Config) resilientBrokerConfig() messaging.ResilientBrokerConfig {
	return messaging.ResilientBrokerConfig{
		CircuitBreakerEnabled:   c.CircuitBreakerEnabled,
		CircuitBreakerThreshold: c.CircuitBreakerThreshold,
		CircuitBreakerTimeout:   c.CircuitBreakerTimeout,
		RetryEnabled:            c.PublishRetryMaxAttempts > 0,
		RetryMaxAttempts:        c.PublishRetryMaxAttempts,
		RetryBackoff:            c.PublishRetryBackoff,
	}
}

// ParsedBackoff parses RetryBackoffSchedule into a resilience.Schedule,
// falling back to a single 1s delay if the field is empty or malformed.
func (c Config) ParsedBackoff() resilience.Schedule {
	parts := strings.Split(c.RetryBackoffSchedule, ",")
	sched := make(resilience.Schedule, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		d, err := time.ParseDuration(p)
		if err != nil {
			continue
		}
		sched = append(sched, d)
	}
	if len(sched) == 0 {
		sched = resilience.Schedule{time.Second}
	}
	return sched
}

// subjectsForDestinations returns SubjectFor(producer, dest) for every
// configured destination.
func (c Config) subjectsForDestinations() []string {
	subjects := make([]string, 0, len(c.Destinations))
	for _, d := range c.Destinations {
		subjects = append(subjects, SubjectFor(c.ProducerName, strings.TrimSpace(d)))
	}
	return subjects
}

// DesiredSubjects returns every subject (including DLQ variants) this
// bridge instance's stream must cover: its own publish subjects plus the
// inbound subject for each destination that also publishes back to it.
func (c Config) DesiredSubjects() []string {
	subjects := c.subjectsForDestinations()
	for _, d := range c.Destinations {
		inbound := SubjectFor(strings.TrimSpace(d), c.ProducerName)
		subjects = append(subjects, inbound, inbound+".dlq")
	}
	for _, s := range c.subjectsForDestinations() {
		subjects = append(subjects, s+".dlq")
	}
	return dedupeStrings(subjects)
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// durableName derives the literal "<app>--<dest>" durable consumer name so
// that restarts rebind to the same durable instead of creating a new one.
// filterSubject is the inbound subject SubjectFor(dest, app) a Subscription
// listens on, so dest is its leading token.
func durableName(app, filterSubject string) string {
	dest := app
	if idx := strings.Index(filterSubject, "."); idx >= 0 {
		dest = filterSubject[:idx]
	}
	return SanitizeToken(app) + "--" + SanitizeToken(dest)
}
