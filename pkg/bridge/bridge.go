// Package bridge implements a reliable bidirectional event bridge between
// two application instances over a JetStream-style persistent messaging
// substrate. It owns four cooperating subsystems: a topology Reconciler
// that keeps the managed stream's subjects in sync with configuration, a
// Producer (direct or transactional-outbox) for publishing events, a
// background Dispatcher that drains the outbox, and a pull-based Consumer
// with inbox deduplication, NAK backoff, and DLQ routing.
package bridge

import (
	"context"

	"gorm.io/gorm"

	"github.com/attaradev/jetstream-bridge/pkg/config"
)

// Bridge is the top-level facade wiring configuration, connection,
// storage, and the four subsystems together. Most applications only need
// this type; the individual pieces (ConnectionManager, Producer,
// Dispatcher, Subscription) are exported for callers that want finer
// control or want to embed the bridge's pieces into their own lifecycle.
type Bridge struct {
	Config Config

	conn       *ConnectionManager
	db         *gorm.DB
	outbox     *OutboxStore
	inbox      *InboxStore
	dispatcher *Dispatcher
	producer   *Producer

	subs []*Subscription
}

// LoadConfig reads bridge configuration from the environment (or a .env
// file) and validates it.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return Config{}, WrapConfigurationError("failed to load bridge configuration", err)
	}
	return cfg, nil
}

// New builds a Bridge: it opens the outbox/inbox store, constructs the
// connection manager (connecting immediately if AutoStart is
// AutoStartImmediate), and - if UseOutbox is enabled - its dispatcher. It
// does not reconcile topology or start consuming; call Start for that.
func New(cfg Config) (*Bridge, error) {
	db, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}

	cm, err := NewConnectionManager(cfg)
	if err != nil {
		return nil, err
	}

	outbox := NewOutboxStore(db)
	inbox := NewInboxStore(db)

	b := &Bridge{
		Config: cfg,
		conn:   cm,
		db:     db,
		outbox: outbox,
		inbox:  inbox,
	}
	b.producer = NewProducer(cfg, cm, outbox)
	if cfg.UseOutbox {
		b.dispatcher = NewDispatcher(cfg, cm, outbox)
	}
	return b, nil
}

// Start connects (if not already connected), reconciles topology against
// Config.DesiredSubjects, and starts the dispatcher if the outbox is in
// use. It does not start any consumers; call Subscribe then Run (or
// StartConsuming) for that.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.conn.Connect(ctx); err != nil {
		return err
	}

	js, err := b.conn.JetStreamContext(ctx)
	if err != nil {
		return err
	}
	reconciler := NewReconciler(js, StreamName(b.Config.Env))
	if err := reconciler.Ensure(ctx, b.Config.DesiredSubjects()); err != nil {
		return err
	}

	if b.dispatcher != nil {
		b.dispatcher.Start(ctx)
	}
	return nil
}

// Producer returns the bridge's Producer.
func (b *Bridge) Producer() *Producer { return b.producer }

// Subscribe registers a handler for filterSubject and returns the
// Subscription; callers are expected to run it (typically via
// StartConsuming or their own goroutine calling sub.Run(ctx)).
func (b *Bridge) Subscribe(filterSubject string, handler Handler) *Subscription {
	sub := NewSubscription(b.Config, b.conn, b.inbox, filterSubject, handler)
	b.subs = append(b.subs, sub)
	return sub
}

// StartConsuming runs every Subscription registered via Subscribe in its
// own goroutine. It returns immediately; consumption runs until ctx is
// canceled.
func (b *Bridge) StartConsuming(ctx context.Context) {
	for _, sub := range b.subs {
		go func(s *Subscription) {
			_ = s.Run(ctx)
		}(sub)
	}
}

// HealthCheck reports the bridge's connection state, managed stream, and
// configuration, matching the health_check() object hosts expose over
// /health/jetstream.
func (b *Bridge) HealthCheck(ctx context.Context) HealthStatus {
	return b.conn.Health(ctx)
}

// Close stops the dispatcher (if running) and gracefully drains the
// connection.
func (b *Bridge) Close() error {
	if b.dispatcher != nil {
		b.dispatcher.Stop()
	}
	return b.conn.Disconnect()
}
