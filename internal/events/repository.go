package events

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository writes audit events to Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs an event repository.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Record appends one event.
func (r *Repository) Record(ctx context.Context, event Event) error {
	if r == nil || r.db == nil {
		return errors.New("events repo: nil db")
	}
	if event.ID == "" {
		event.ID = NewID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO schedule_events (
	id, tank_id, event_type, trigger_source, detail, created_at
) VALUES (
	$1, $2, $3, $4, $5, $6
)`, event.ID, event.TankID, string(event.Type), event.Source, event.Detail, event.CreatedAt)
	return err
}

// ListByTank returns a tank's events newest first, capped by limit.
func (r *Repository) ListByTank(ctx context.Context, tankID string, limit int) ([]Event, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("events repo: nil db")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, tank_id, event_type, trigger_source, detail, created_at
FROM schedule_events
WHERE tank_id = $1
ORDER BY created_at DESC
LIMIT $2`, tankID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Event
	for rows.Next() {
		var event Event
		var eventType string
		if err := rows.Scan(&event.ID, &event.TankID, &eventType, &event.Source, &event.Detail, &event.CreatedAt); err != nil {
			return nil, err
		}
		event.Type = Type(eventType)
		event.CreatedAt = event.CreatedAt.UTC()
		result = append(result, event)
	}
	return result, rows.Err()
}
