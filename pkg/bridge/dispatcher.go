package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/attaradev/jetstream-bridge/pkg/logger"
	"github.com/attaradev/jetstream-bridge/pkg/messaging"
	natsadapter "github.com/attaradev/jetstream-bridge/pkg/messaging/adapters/nats"
	"github.com/attaradev/jetstream-bridge/pkg/resilience"
)

// Dispatcher drains pending OutboxRows in the background, publishing each
// to JetStream and advancing its status. A single worker (the default and
// recommended configuration) is sufficient: ClaimBatch's CAS on
// (id, attempts) already makes it safe to run more, but extra workers only
// help once outbox volume is high enough that one worker can't keep the
// queue drained.
type Dispatcher struct {
	cfg     Config
	cm      BrokerProvider
	outbox  *OutboxStore
	backoff resilience.Schedule

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewDispatcher builds a Dispatcher. Start must be called to start it.
func NewDispatcher(cfg Config, cm BrokerProvider, outbox *OutboxStore) *Dispatcher {
	return &Dispatcher{cfg: cfg, cm: cm, outbox: outbox, backoff: cfg.ParsedBackoff()}
}

// Start launches the configured number of dispatcher workers in the
// background. Stop must be called to shut them down.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	workers := d.cfg.DispatcherWorkers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.runWorker(ctx)
	}
}

// Stop signals all workers to exit and waits for them to finish their
// current tick.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

func (d *Dispatcher) runWorker(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.cfg.DispatcherInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Tick(ctx); err != nil {
				logger.L().ErrorContext(ctx, "dispatcher tick failed", "error", err)
			}
		}
	}
}

// Tick claims and publishes one batch of due outbox rows. It is exported so
// callers that prefer externally-driven scheduling (e.g. a cron trigger, or
// a test) can run a single dispatch cycle without Start's background timer.
func (d *Dispatcher) Tick(ctx context.Context) error {
	rows, err := d.outbox.ClaimBatch(ctx, d.cfg.DispatcherBatchSize)
	if err != nil {
		return err
	}

	broker, err := d.cm.MessagingBroker(ctx)
	if err != nil {
		return err
	}

	for _, row := range rows {
		d.publishRow(ctx, broker, row)
	}
	return nil
}

func (d *Dispatcher) publishRow(ctx context.Context, broker messaging.Broker, row OutboxRow) {
	producer, err := broker.Producer(row.Subject)
	if err == nil {
		msg := &messaging.Message{ID: row.ID, Topic: row.Subject, Payload: row.Payload}
		err = producer.Publish(ctx, msg)
		if err == nil {
			if markErr := d.outbox.MarkSent(ctx, row.ID); markErr != nil {
				logger.L().ErrorContext(ctx, "failed to mark outbox row sent", "id", row.ID, "error", markErr)
			}
			if natsadapter.Duplicate(msg) {
				logger.L().InfoContext(ctx, "outbox publish was a broker-level duplicate", "id", row.ID, "subject", row.Subject)
			}
			return
		}
	}

	logger.L().WarnContext(ctx, "outbox publish failed", "id", row.ID, "subject", row.Subject, "attempt", row.Attempts, "error", err)

	if d.cfg.MaxOutboxAttempts > 0 && row.Attempts >= d.cfg.MaxOutboxAttempts {
		if markErr := d.outbox.MarkFailed(ctx, row.ID, err); markErr != nil {
			logger.L().ErrorContext(ctx, "failed to mark outbox row failed", "id", row.ID, "error", markErr)
		}
		return
	}

	delay := d.backoff.Delay(row.Attempts - 1)
	if markErr := d.outbox.MarkPendingWithBackoff(ctx, row.ID, delay, err); markErr != nil {
		logger.L().ErrorContext(ctx, "failed to reschedule outbox row", "id", row.ID, "error", markErr)
	}
}
