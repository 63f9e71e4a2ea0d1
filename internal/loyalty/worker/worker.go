// Package worker drains the transactional outbox: it claims due events with
// a short lease, settles loyalty cashback for committed invoices and fans
// out cache invalidation, retrying failures with exponential backoff.
package worker

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/zenbill/zenbill/internal/cache"
	"github.com/zenbill/zenbill/internal/clock"
	"github.com/zenbill/zenbill/internal/config"
	invoicedomain "github.com/zenbill/zenbill/internal/invoice/domain"
	loyaltydomain "github.com/zenbill/zenbill/internal/loyalty/domain"
	obsmetrics "github.com/zenbill/zenbill/internal/observability/metrics"
	outboxdomain "github.com/zenbill/zenbill/internal/outbox/domain"
	pkgdb "github.com/zenbill/zenbill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	claimLease = time.Minute

	backoffBase = 5 * time.Second
	backoffMax  = 5 * time.Minute
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Cfg         config.Config
	Clock       clock.Clock
	Loyalty     loyaltydomain.Service
	Invalidator cache.Invalidator   `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Worker struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	loyalty     loyaltydomain.Service
	invalidator cache.Invalidator
	obsMetrics  *obsmetrics.Metrics

	pollInterval time.Duration
	batchSize    int
	maxAttempts  int

	done chan struct{}
}

func New(p Params) *Worker {
	interval := time.Duration(p.Cfg.WorkerPollInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	batch := p.Cfg.WorkerBatchSize
	if batch <= 0 {
		batch = 50
	}
	attempts := p.Cfg.WorkerMaxAttempts
	if attempts <= 0 {
		attempts = 10
	}

	return &Worker{
		db:           p.DB,
		log:          p.Log.Named("loyalty.worker"),
		clock:        p.Clock,
		loyalty:      p.Loyalty,
		invalidator:  p.Invalidator,
		obsMetrics:   p.ObsMetrics,
		pollInterval: interval,
		batchSize:    batch,
		maxAttempts:  attempts,
		done:         make(chan struct{}),
	}
}

// Register hooks the polling loop into the application lifecycle.
func Register(lc fx.Lifecycle, w *Worker) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go w.Run(ctx)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-w.done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	w.log.Info("settlement worker started",
		zap.Duration("poll_interval", w.pollInterval),
		zap.Int("batch_size", w.batchSize),
	)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("settlement worker stopped")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.log.Error("settlement pass failed", zap.Error(err))
			}
		}
	}
}

// RunOnce claims one batch of due events and processes each. It returns the
// number of events handled; per-event failures are recorded for retry, never
// propagated.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	runID := uuid.NewString()

	events, err := w.claim(ctx)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	log := w.log.With(zap.String("run_id", runID))
	log.Debug("claimed outbox batch", zap.Int("events", len(events)))

	for i := range events {
		event := &events[i]
		if err := w.dispatch(ctx, event); err != nil {
			w.markFailed(ctx, log, event, err)
			continue
		}
		w.markPublished(ctx, log, event)
	}
	return len(events), nil
}

// claim selects due unpublished events and leases them so a concurrent
// worker pass skips the same rows.
func (w *Worker) claim(ctx context.Context) ([]outboxdomain.OutboxEvent, error) {
	now := w.clock.Now()
	var events []outboxdomain.OutboxEvent

	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := pkgdb.ForUpdateSkipLocked(tx).
			Where("published = ? AND next_attempt_at <= ? AND attempts < ?", false, now, w.maxAttempts).
			Order("created_at ASC").
			Limit(w.batchSize).
			Find(&events).Error; err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		ids := make([]snowflake.ID, 0, len(events))
		for _, event := range events {
			ids = append(ids, event.ID)
		}
		return tx.Model(&outboxdomain.OutboxEvent{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"attempts":        gorm.Expr("attempts + 1"),
				"next_attempt_at": now.Add(claimLease),
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (w *Worker) dispatch(ctx context.Context, event *outboxdomain.OutboxEvent) error {
	switch event.EventType {
	case outboxdomain.EventLoyaltySettle:
		return w.settle(ctx, event)
	case outboxdomain.EventInvoiceChanged:
		if w.invalidator != nil {
			w.invalidator.InvalidateTenant(event.TenantID)
		}
		return nil
	default:
		w.log.Warn("unknown outbox event type, dropping",
			zap.String("event_type", string(event.EventType)),
			zap.String("event_id", event.ID.String()),
		)
		return nil
	}
}

func (w *Worker) settle(ctx context.Context, event *outboxdomain.OutboxEvent) error {
	raw, _ := event.Payload["invoice_id"].(string)
	invoiceID, err := snowflake.ParseString(raw)
	if err != nil {
		w.log.Error("malformed settle payload, dropping",
			zap.String("event_id", event.ID.String()),
			zap.Any("payload", event.Payload),
		)
		return nil
	}

	err = w.loyalty.ProcessInvoice(ctx, invoiceID)
	if err == invoicedomain.ErrInvoiceNotFound {
		// Invoice deleted between enqueue and settlement. Nothing to earn.
		w.log.Warn("settle target gone, dropping",
			zap.String("invoice_id", invoiceID.String()),
		)
		return nil
	}
	if err != nil {
		return err
	}

	if w.obsMetrics != nil {
		w.obsMetrics.ObserveSettlementLag(ctx, w.clock.Now().Sub(event.CreatedAt))
	}
	return nil
}

func (w *Worker) markPublished(ctx context.Context, log *zap.Logger, event *outboxdomain.OutboxEvent) {
	now := w.clock.Now()
	err := w.db.WithContext(ctx).Model(&outboxdomain.OutboxEvent{}).
		Where("id = ?", event.ID).
		Updates(map[string]any{
			"published":    true,
			"published_at": now,
			"last_error":   nil,
		}).Error
	if err != nil {
		log.Error("failed to mark event published", zap.Error(err),
			zap.String("event_id", event.ID.String()))
	}
}

func (w *Worker) markFailed(ctx context.Context, log *zap.Logger, event *outboxdomain.OutboxEvent, cause error) {
	attempts := event.Attempts + 1
	msg := cause.Error()
	now := w.clock.Now()

	updates := map[string]any{
		"last_error":      msg,
		"next_attempt_at": now.Add(backoff(attempts)),
	}
	if err := w.db.WithContext(ctx).Model(&outboxdomain.OutboxEvent{}).
		Where("id = ?", event.ID).
		Updates(updates).Error; err != nil {
		log.Error("failed to record event failure", zap.Error(err),
			zap.String("event_id", event.ID.String()))
		return
	}

	if attempts >= w.maxAttempts {
		log.Error("outbox event exhausted retries",
			zap.String("event_id", event.ID.String()),
			zap.String("event_type", string(event.EventType)),
			zap.Int("attempts", attempts),
			zap.String("last_error", msg),
		)
		return
	}
	log.Warn("outbox event failed, will retry",
		zap.String("event_id", event.ID.String()),
		zap.Int("attempts", attempts),
		zap.Error(cause),
	)
}

func backoff(attempts int) time.Duration {
	d := backoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= backoffMax {
			return backoffMax
		}
	}
	return d
}
