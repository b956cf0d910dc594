// Package nats adapts NATS JetStream to the pkg/messaging Broker/Producer/
// Consumer interfaces, and additionally exposes a PullSubscription type for
// callers (like pkg/bridge) that need explicit per-message Ack/Nak/Term
// control beyond the generic Consumer.Consume(handler) contract.
package nats

import "time"

// Config configures the connection to a NATS server.
type Config struct {
	// URL is a comma-separated list of NATS server URLs.
	URL string `env:"NATS_URL" env-default:"nats://127.0.0.1:4222"`

	// ConnectTimeout bounds the initial dial.
	ConnectTimeout time.Duration `env:"NATS_CONNECT_TIMEOUT" env-default:"5s"`

	// MaxReconnects is passed to nats.Connect; -1 means retry forever.
	MaxReconnects int `env:"NATS_MAX_RECONNECTS" env-default:"-1"`

	// ReconnectWait is the delay between reconnect attempts.
	ReconnectWait time.Duration `env:"NATS_RECONNECT_WAIT" env-default:"2s"`

	// Name identifies this connection to the server (shown in NATS monitoring).
	Name string `env:"NATS_CONN_NAME" env-default:"jetstream-bridge"`
}
