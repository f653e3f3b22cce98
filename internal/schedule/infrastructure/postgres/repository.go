package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	schedule "tankfleet-cloud/internal/schedule/domain"
)

// Repository is a Postgres implementation of the schedule store.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Get fetches a tank's settings; (nil, nil) when none exist.
func (r *Repository) Get(ctx context.Context, tankID string) (*schedule.Settings, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("schedule repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, selectSettings+`
WHERE tank_id = $1
LIMIT 1`, tankID)
	return scanSettings(row)
}

// Save upserts a tank's settings.
func (r *Repository) Save(ctx context.Context, settings *schedule.Settings) error {
	if r == nil || r.db == nil {
		return errors.New("schedule repo: nil db")
	}
	if settings == nil || settings.TankID == "" {
		return schedule.ErrSettingsNotFound
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO schedule_settings (
	tank_id, light_on, light_off, enabled, override, override_set_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)
ON CONFLICT (tank_id) DO UPDATE SET
	light_on = EXCLUDED.light_on,
	light_off = EXCLUDED.light_off,
	enabled = EXCLUDED.enabled,
	override = EXCLUDED.override,
	override_set_at = EXCLUDED.override_set_at,
	updated_at = EXCLUDED.updated_at`,
		settings.TankID,
		settings.LightOn.String(),
		settings.LightOff.String(),
		settings.Enabled,
		settings.Override,
		nullTime(settings.OverrideSetAt),
		settings.UpdatedAt)
	return err
}

// ListEnabled returns every enabled schedule, ordered by tank id.
func (r *Repository) ListEnabled(ctx context.Context) ([]schedule.Settings, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("schedule repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, selectSettings+`
WHERE enabled
ORDER BY tank_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []schedule.Settings
	for rows.Next() {
		s, err := scanSettings(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SetEnabled toggles scheduling for a tank.
func (r *Repository) SetEnabled(ctx context.Context, tankID string, enabled bool, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("schedule repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE schedule_settings
SET enabled = $1, updated_at = $2
WHERE tank_id = $3`, enabled, at, tankID)
	if err != nil {
		return err
	}
	count, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return schedule.ErrSettingsNotFound
	}
	return nil
}

// SetOverride stores an operator override for the next pass.
func (r *Repository) SetOverride(ctx context.Context, tankID string, state schedule.OverrideState, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("schedule repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE schedule_settings
SET override = $1, override_set_at = $2
WHERE tank_id = $3`, state, at, tankID)
	if err != nil {
		return err
	}
	count, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return schedule.ErrSettingsNotFound
	}
	return nil
}

// ClearOverride resets the override only while it still holds the observed
// value.
func (r *Repository) ClearOverride(ctx context.Context, tankID string, observed schedule.OverrideState) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("schedule repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE schedule_settings
SET override = $1, override_set_at = NULL
WHERE tank_id = $2 AND override = $3`, schedule.OverrideNone, tankID, observed)
	if err != nil {
		return false, err
	}
	count, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

const selectSettings = `
SELECT tank_id, light_on, light_off, enabled, override, override_set_at, updated_at
FROM schedule_settings`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSettings(row rowScanner) (*schedule.Settings, error) {
	var s schedule.Settings
	var lightOn, lightOff string
	var overrideSetAt sql.NullTime
	if err := row.Scan(
		&s.TankID,
		&lightOn,
		&lightOff,
		&s.Enabled,
		&s.Override,
		&overrideSetAt,
		&s.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var err error
	if s.LightOn, err = schedule.ParseTimeOfDay(lightOn); err != nil {
		return nil, err
	}
	if s.LightOff, err = schedule.ParseTimeOfDay(lightOff); err != nil {
		return nil, err
	}
	if overrideSetAt.Valid {
		s.OverrideSetAt = overrideSetAt.Time.UTC()
	}
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
