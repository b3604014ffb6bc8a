package outbox

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"

	"github.com/poolvest/ledger-service/internal/domain/entities"
	"github.com/poolvest/ledger-service/internal/infrastructure/database"
	"github.com/poolvest/ledger-service/internal/infrastructure/repositories"
	"github.com/poolvest/ledger-service/pkg/logger"
	"github.com/poolvest/ledger-service/pkg/metrics"
)

// Notifier delivers one outbox event to its destination
type Notifier interface {
	Notify(ctx context.Context, event *entities.OutboxEvent) error
}

// Worker drains the outbox on a schedule. Events are claimed with SKIP LOCKED
// so multiple instances can run the worker without double delivery.
type Worker struct {
	db          *sqlx.DB
	outboxRepo  repositories.OutboxStore
	notifier    Notifier
	cron        *cron.Cron
	schedule    string
	batchSize   int
	maxAttempts int
	logger      *logger.Logger
}

// NewWorker creates a new outbox worker
func NewWorker(
	db *sqlx.DB,
	outboxRepo repositories.OutboxStore,
	notifier Notifier,
	schedule string,
	batchSize, maxAttempts int,
	logger *logger.Logger,
) *Worker {
	return &Worker{
		db:          db,
		outboxRepo:  outboxRepo,
		notifier:    notifier,
		cron:        cron.New(),
		schedule:    schedule,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Start schedules the drain loop
func (w *Worker) Start() error {
	_, err := w.cron.AddFunc(w.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		if err := w.Drain(ctx); err != nil {
			w.logger.Error("Outbox drain failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	w.cron.Start()
	w.logger.Info("Outbox worker started", "schedule", w.schedule, "batch_size", w.batchSize)
	return nil
}

// Stop stops the scheduler
func (w *Worker) Stop() {
	w.cron.Stop()
	w.logger.Info("Outbox worker stopped")
}

// Drain claims and delivers one batch of pending events. The claim holds row
// locks until the batch commits, so a second instance skips those rows and
// nothing is delivered twice. Delivery failures bump the attempt counter; an
// event that exhausts its attempts is parked as failed instead of blocking
// the queue.
func (w *Worker) Drain(ctx context.Context) error {
	return database.WithTransaction(ctx, w.db, func(dbTx *sqlx.Tx) error {
		repo := w.outboxRepo.WithTx(dbTx)

		events, err := repo.ClaimPending(ctx, w.batchSize)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		for _, event := range events {
			if err := w.notifier.Notify(ctx, event); err != nil {
				w.logger.Warn("Outbox delivery failed",
					"event_id", event.ID,
					"event_type", event.EventType,
					"attempts", event.Attempts+1,
					"error", err)
				if err := repo.MarkAttemptFailed(ctx, event.ID, w.maxAttempts); err != nil {
					return err
				}
				metrics.OutboxDispatched.WithLabelValues("failed").Inc()
				continue
			}

			if err := repo.MarkSent(ctx, event.ID); err != nil {
				return err
			}
			metrics.OutboxDispatched.WithLabelValues("sent").Inc()
		}

		w.logger.Debug("Outbox batch drained", "count", len(events))
		return nil
	})
}

// LogNotifier writes events to the log. It stands in for a real notification
// transport in environments without one.
type LogNotifier struct {
	logger *logger.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(logger *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the event
func (n *LogNotifier) Notify(_ context.Context, event *entities.OutboxEvent) error {
	n.logger.Info("Notification",
		"event_type", event.EventType,
		"user_id", event.UserID,
		"payload", string(event.Payload))
	return nil
}
