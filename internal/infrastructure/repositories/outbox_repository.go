package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/poolvest/ledger-service/internal/domain/entities"
)

// OutboxRepository persists outbound notification tasks. Ledger paths enqueue
// inside their atomic unit; the worker claims and dispatches afterwards.
type OutboxRepository struct {
	db Querier
}

// NewOutboxRepository creates a new outbox repository
func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// WithTx returns a copy of the repository bound to an open transaction
func (r *OutboxRepository) WithTx(tx *sqlx.Tx) OutboxStore {
	return &OutboxRepository{db: tx}
}

// Enqueue inserts a pending event
func (r *OutboxRepository) Enqueue(ctx context.Context, event *entities.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (id, user_id, event_type, payload, status,
			attempts, created_at, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.UserID,
		event.EventType,
		[]byte(event.Payload),
		event.Status,
		event.Attempts,
		event.CreatedAt,
		event.SentAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue outbox event: %w", err)
	}

	return nil
}

// ClaimPending returns up to limit pending events, skipping rows another
// worker already holds.
func (r *OutboxRepository) ClaimPending(ctx context.Context, limit int) ([]*entities.OutboxEvent, error) {
	query := `
		SELECT id, user_id, event_type, payload, status, attempts, created_at, sent_at
		FROM outbox_events
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`

	var events []*entities.OutboxEvent
	if err := sqlx.SelectContext(ctx, r.db, &events, query, limit); err != nil {
		return nil, fmt.Errorf("claim pending events: %w", err)
	}

	return events, nil
}

// MarkSent records a successful dispatch
func (r *OutboxRepository) MarkSent(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE outbox_events
		SET status = 'sent', attempts = attempts + 1, sent_at = $1
		WHERE id = $2
	`

	if _, err := r.db.ExecContext(ctx, query, time.Now(), id); err != nil {
		return fmt.Errorf("mark event sent: %w", err)
	}

	return nil
}

// MarkAttemptFailed bumps the attempt counter, moving the event to failed once
// maxAttempts is exhausted.
func (r *OutboxRepository) MarkAttemptFailed(ctx context.Context, id uuid.UUID, maxAttempts int) error {
	query := `
		UPDATE outbox_events
		SET attempts = attempts + 1,
		    status = CASE WHEN attempts + 1 >= $1 THEN 'failed' ELSE 'pending' END
		WHERE id = $2
	`

	if _, err := r.db.ExecContext(ctx, query, maxAttempts, id); err != nil {
		return fmt.Errorf("mark event attempt failed: %w", err)
	}

	return nil
}
