package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	registry "tankfleet-cloud/internal/registry/domain"
)

// TankRepository is a Postgres implementation of the tank store.
type TankRepository struct {
	db *sql.DB
}

// NewTankRepository constructs a repository.
func NewTankRepository(db *sql.DB) *TankRepository {
	return &TankRepository{db: db}
}

const tankColumns = `tank_id, tank_name, token, token_issued_at, last_seen, is_online,
	light_state, temperature, ph, firmware_version, created_at`

// Create inserts a tank; tank_name carries a unique constraint.
func (r *TankRepository) Create(ctx context.Context, tank *registry.Tank) error {
	if r == nil || r.db == nil {
		return errors.New("tank repo: nil db")
	}
	if tank == nil {
		return errors.New("tank repo: nil tank")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO tanks (
	tank_id, tank_name, token, token_issued_at, last_seen, is_online,
	light_state, temperature, ph, firmware_version, created_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
)`, tank.ID, tank.Name, tank.Token, tank.TokenIssuedAt, tank.LastSeenAt, tank.IsOnline,
		tank.LightState, tank.Temperature, tank.PH, nullString(tank.FirmwareVersion), tank.CreatedAt)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return registry.ErrNameTaken
	}
	return err
}

// GetByID fetches a tank by id.
func (r *TankRepository) GetByID(ctx context.Context, id string) (*registry.Tank, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("tank repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+tankColumns+`
FROM tanks
WHERE tank_id = $1
LIMIT 1`, id)
	return scanTank(row)
}

// GetByName fetches a tank by its unique name.
func (r *TankRepository) GetByName(ctx context.Context, name string) (*registry.Tank, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("tank repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+tankColumns+`
FROM tanks
WHERE tank_name = $1
LIMIT 1`, name)
	return scanTank(row)
}

// ListAll returns every tank ordered by name.
func (r *TankRepository) ListAll(ctx context.Context) ([]registry.Tank, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("tank repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+tankColumns+`
FROM tanks
ORDER BY tank_name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []registry.Tank
	for rows.Next() {
		tank, err := scanTank(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *tank)
	}
	return result, rows.Err()
}

// UpdateToken replaces the device token.
func (r *TankRepository) UpdateToken(ctx context.Context, id, token string, issuedAt time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("tank repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE tanks
SET token = $1, token_issued_at = $2
WHERE tank_id = $3`, token, issuedAt, id)
	if err != nil {
		return err
	}
	if count, _ := result.RowsAffected(); count == 0 {
		return registry.ErrTankNotFound
	}
	return nil
}

// RecordHeartbeat stores last_seen and telemetry and marks the tank
// online in one statement. COALESCE keeps prior telemetry when a field
// is absent from the heartbeat.
func (r *TankRepository) RecordHeartbeat(ctx context.Context, id string, seenAt time.Time, telemetry registry.Telemetry) error {
	if r == nil || r.db == nil {
		return errors.New("tank repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE tanks
SET last_seen = $1,
	is_online = TRUE,
	light_state = COALESCE($2, light_state),
	temperature = COALESCE($3, temperature),
	ph = COALESCE($4, ph),
	firmware_version = COALESCE($5, firmware_version)
WHERE tank_id = $6`, seenAt, telemetry.LightState, telemetry.Temperature, telemetry.PH,
		nullString(telemetry.FirmwareVersion), id)
	if err != nil {
		return err
	}
	if count, _ := result.RowsAffected(); count == 0 {
		return registry.ErrTankNotFound
	}
	return nil
}

// MarkOffline flips is_online to false only while the tank is online and
// last_seen is at or before the cutoff.
func (r *TankRepository) MarkOffline(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("tank repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE tanks
SET is_online = FALSE
WHERE tank_id = $1 AND is_online AND last_seen <= $2`, id, cutoff)
	if err != nil {
		return false, err
	}
	count, _ := result.RowsAffected()
	return count > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTank(row rowScanner) (*registry.Tank, error) {
	var tank registry.Tank
	var token sql.NullString
	var tokenIssuedAt sql.NullTime
	var lightState sql.NullBool
	var temperature sql.NullFloat64
	var ph sql.NullFloat64
	var firmware sql.NullString
	if err := row.Scan(
		&tank.ID,
		&tank.Name,
		&token,
		&tokenIssuedAt,
		&tank.LastSeenAt,
		&tank.IsOnline,
		&lightState,
		&temperature,
		&ph,
		&firmware,
		&tank.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	tank.Token = token.String
	if tokenIssuedAt.Valid {
		tank.TokenIssuedAt = tokenIssuedAt.Time.UTC()
	}
	if lightState.Valid {
		value := lightState.Bool
		tank.LightState = &value
	}
	if temperature.Valid {
		value := temperature.Float64
		tank.Temperature = &value
	}
	if ph.Valid {
		value := ph.Float64
		tank.PH = &value
	}
	tank.FirmwareVersion = firmware.String
	tank.LastSeenAt = tank.LastSeenAt.UTC()
	tank.CreatedAt = tank.CreatedAt.UTC()
	return &tank, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
