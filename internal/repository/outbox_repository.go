package repository

import (
	"context"
	"fmt"

	"storefront/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type outboxRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewOutboxRepository creates a new PostgreSQL-backed outbox.
func NewOutboxRepository(pool *pgxpool.Pool, logger zerolog.Logger) OutboxRepository {
	return &outboxRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "outbox").Logger(),
	}
}

func (r *outboxRepository) Insert(ctx context.Context, tx pgx.Tx, event *model.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (aggregate_id, event_type, payload)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	if err := tx.QueryRow(ctx, query, event.AggregateID, event.EventType, event.Payload).Scan(&event.ID, &event.CreatedAt); err != nil {
		r.logger.Error().
			Err(err).
			Str("aggregate_id", event.AggregateID).
			Str("event_type", event.EventType).
			Msg("failed to insert outbox event")
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}

	return nil
}

func (r *outboxRepository) GetUnpublished(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	query := `
		SELECT id, aggregate_id, event_type, payload, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to query outbox events")
		return nil, fmt.Errorf("failed to query outbox events: %w", err)
	}
	defer rows.Close()

	events := []model.OutboxEvent{}
	for rows.Next() {
		var e model.OutboxEvent
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox events: %w", err)
	}

	return events, nil
}

func (r *outboxRepository) MarkPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := r.pool.Exec(ctx, `UPDATE outbox_events SET published_at = NOW() WHERE id = ANY($1)`, ids)
	if err != nil {
		r.logger.Error().Err(err).Int("count", len(ids)).Msg("failed to mark outbox events published")
		return fmt.Errorf("failed to mark outbox events published: %w", err)
	}

	return nil
}
