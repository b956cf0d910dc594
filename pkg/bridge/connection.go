package bridge

import (
	"context"
	"strings"
	"sync"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/attaradev/jetstream-bridge/pkg/logger"
	"github.com/attaradev/jetstream-bridge/pkg/messaging"
	natsadapter "github.com/attaradev/jetstream-bridge/pkg/messaging/adapters/nats"
	"github.com/attaradev/jetstream-bridge/pkg/resilience"
)

// ConnState is the lifecycle state of a ConnectionManager.
type ConnState string

const (
	StateIdle         ConnState = "idle"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
	StateClosed       ConnState = "closed"
)

// Version identifies the bridge build reported by health_check().
const Version = "1.0.0"

// StreamHealth summarizes the managed JetStream stream's state, as reported
// by health_check().
type StreamHealth struct {
	Exists   bool     `json:"exists"`
	Name     string   `json:"name"`
	Subjects []string `json:"subjects,omitempty"`
	Messages uint64   `json:"messages"`
}

// HealthConfig is the read-only subset of Config health_check() surfaces so
// callers can confirm how a running bridge is configured without leaking
// secrets like the DSN.
type HealthConfig struct {
	Env            string `json:"env"`
	AppName        string `json:"app_name"`
	DestinationApp string `json:"destination_app"`
	UseOutbox      bool   `json:"use_outbox"`
	UseInbox       bool   `json:"use_inbox"`
	UseDLQ         bool   `json:"use_dlq"`
}

// HealthStatus is the object returned by ConnectionManager.Health /
// Bridge.HealthCheck.
type HealthStatus struct {
	Connected      bool             `json:"connected"`
	State          ConnState        `json:"state"`
	ConnectedAt    *time.Time       `json:"connected_at,omitempty"`
	LastError      string           `json:"last_error,omitempty"`
	LastErrorAt    *time.Time       `json:"last_error_at,omitempty"`
	Stream         StreamHealth     `json:"stream"`
	Config         HealthConfig     `json:"config"`
	Version        string           `json:"version"`
	CircuitBreaker resilience.State `json:"circuit_breaker"`
}

// ConnectionManager owns the lifecycle of the underlying NATS connection
// and JetStream context: lazy connect on first use (or eager, per
// AutoStartPolicy), periodic health probing, and graceful shutdown via
// Drain semantics.
type ConnectionManager struct {
	cfg Config

	mu          sync.Mutex
	state       ConnState
	conn        *natsgo.Conn
	js          jetstream.JetStream
	broker      *natsadapter.Broker
	mbroker     messaging.Broker
	connectedAt time.Time
	lastErr     error
	lastErrAt   time.Time

	healthCancel context.CancelFunc
	healthDone   chan struct{}
}

// NewConnectionManager builds a manager that has not yet connected, unless
// cfg.AutoStart is AutoStartImmediate.
func NewConnectionManager(cfg Config) (*ConnectionManager, error) {
	cm := &ConnectionManager{cfg: cfg, state: StateIdle}
	if cfg.AutoStart == AutoStartImmediate {
		if err := cm.Connect(context.Background()); err != nil {
			return nil, err
		}
	}
	return cm, nil
}

// Connect establishes the NATS connection and JetStream context if not
// already connected. It is safe to call repeatedly and from multiple
// goroutines; only the first caller does the work.
func (cm *ConnectionManager) Connect(ctx context.Context) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.state == StateConnected {
		return nil
	}
	if cm.state == StateClosed {
		return WrapConnectionError(nil)
	}
	cm.state = StateConnecting

	broker, err := natsadapter.Connect(natsadapter.Config{
		URL:            cm.cfg.NATSURL,
		ConnectTimeout: cm.cfg.ConnectTimeout,
		Name:           cm.cfg.ProducerName,
	})
	if err != nil {
		wrapped := WrapConnectionError(err)
		cm.state = StateIdle
		cm.lastErr = wrapped
		cm.lastErrAt = time.Now().UTC()
		return wrapped
	}

	mbroker := messaging.NewResilientBroker(messaging.NewInstrumentedBroker(broker), cm.cfg.resilientBrokerConfig())

	cm.conn = broker.Conn()
	cm.js = broker.JetStream()
	cm.broker = broker
	cm.mbroker = mbroker
	cm.state = StateConnected
	cm.connectedAt = time.Now().UTC()

	if cm.cfg.HealthCheckInterval > 0 {
		cm.startHealthLoop()
	}

	logger.L().InfoContext(ctx, "bridge connected", "url", cm.cfg.NATSURL)
	return nil
}

// ensureConnected lazily connects on first use for AutoStartOnFirstUse, or
// returns an error if the policy requires an explicit Start/Connect call.
func (cm *ConnectionManager) ensureConnected(ctx context.Context) error {
	cm.mu.Lock()
	state := cm.state
	policy := cm.cfg.AutoStart
	cm.mu.Unlock()

	if state == StateConnected {
		return nil
	}
	if policy == AutoStartNever {
		return WrapConnectionError(nil)
	}
	return cm.Connect(ctx)
}

// JetStreamContext returns the raw JetStream handle, connecting first if
// necessary.
func (cm *ConnectionManager) JetStreamContext(ctx context.Context) (jetstream.JetStream, error) {
	if err := cm.ensureConnected(ctx); err != nil {
		return nil, err
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.js, nil
}

// NatsClient returns the raw NATS connection, connecting first if
// necessary.
func (cm *ConnectionManager) NatsClient(ctx context.Context) (*natsgo.Conn, error) {
	if err := cm.ensureConnected(ctx); err != nil {
		return nil, err
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.conn, nil
}

// MessagingBroker returns the instrumented, circuit-breaker-and-retry
// wrapped messaging.Broker used for the direct-publish path, connecting
// first if necessary.
func (cm *ConnectionManager) MessagingBroker(ctx context.Context) (messaging.Broker, error) {
	if err := cm.ensureConnected(ctx); err != nil {
		return nil, err
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.mbroker, nil
}

// probeHealthy reports whether the underlying broker connection is
// currently usable; used by the background health loop to drive state
// transitions without building the full Health report each tick.
func (cm *ConnectionManager) probeHealthy(ctx context.Context) bool {
	cm.mu.Lock()
	broker := cm.broker
	cm.mu.Unlock()
	if broker == nil {
		return false
	}
	return broker.Healthy(ctx)
}

// Health builds the health_check() object: connection state, last error,
// the managed stream's live subjects/message count, and the config values
// relevant to a caller deciding whether the bridge is usable.
func (cm *ConnectionManager) Health(ctx context.Context) HealthStatus {
	cm.mu.Lock()
	state := cm.state
	broker := cm.broker
	mbroker := cm.mbroker
	js := cm.js
	lastErr := cm.lastErr
	lastErrAt := cm.lastErrAt
	var connectedAt *time.Time
	if !cm.connectedAt.IsZero() {
		t := cm.connectedAt
		connectedAt = &t
	}
	cm.mu.Unlock()

	connected := broker != nil && broker.Healthy(ctx)

	cbState := resilience.StateClosed
	if rb, ok := mbroker.(*messaging.ResilientBroker); ok {
		cbState = rb.CircuitState()
	}

	status := HealthStatus{
		Connected:      connected,
		State:          state,
		ConnectedAt:    connectedAt,
		Version:        Version,
		CircuitBreaker: cbState,
		Config: HealthConfig{
			Env:            cm.cfg.Env,
			AppName:        cm.cfg.ProducerName,
			DestinationApp: strings.Join(cm.cfg.Destinations, ","),
			UseOutbox:      cm.cfg.UseOutbox,
			UseInbox:       cm.cfg.InboxEnabled,
			UseDLQ:         cm.cfg.UseDLQ,
		},
	}
	if lastErr != nil {
		status.LastError = lastErr.Error()
		t := lastErrAt
		status.LastErrorAt = &t
	}

	streamName := StreamName(cm.cfg.Env)
	status.Stream.Name = streamName
	if js != nil {
		if stream, err := js.Stream(ctx, streamName); err == nil {
			if info, err := stream.Info(ctx); err == nil {
				status.Stream.Exists = true
				status.Stream.Subjects = info.Config.Subjects
				status.Stream.Messages = info.State.Msgs
			}
		}
	}
	return status
}

func (cm *ConnectionManager) startHealthLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	cm.healthCancel = cancel
	cm.healthDone = make(chan struct{})

	go func() {
		defer close(cm.healthDone)
		ticker := time.NewTicker(cm.cfg.HealthCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !cm.probeHealthy(ctx) {
					logger.L().Warn("bridge health check failed")
					cm.mu.Lock()
					if cm.state == StateConnected {
						cm.state = StateReconnecting
					}
					cm.lastErr = WrapConnectionError(nil)
					cm.lastErrAt = time.Now().UTC()
					cm.mu.Unlock()
				} else {
					cm.mu.Lock()
					if cm.state == StateReconnecting {
						cm.state = StateConnected
					}
					cm.mu.Unlock()
				}
			}
		}
	}()
}

// State returns the manager's current lifecycle state.
func (cm *ConnectionManager) State() ConnState {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.state
}

// Disconnect drains the NATS connection (letting in-flight acks/publishes
// complete) and releases all resources. It is safe to call multiple times.
func (cm *ConnectionManager) Disconnect() error {
	cm.mu.Lock()
	if cm.state == StateClosed {
		cm.mu.Unlock()
		return nil
	}
	cm.state = StateClosed
	conn := cm.conn
	cm.mu.Unlock()

	if cm.healthCancel != nil {
		cm.healthCancel()
		<-cm.healthDone
	}

	if conn == nil {
		return nil
	}
	if err := conn.Drain(); err != nil {
		logger.L().Warn("bridge drain failed, closing without drain", "error", err)
		conn.Close()
		return WrapConnectionError(err)
	}
	return nil
}
