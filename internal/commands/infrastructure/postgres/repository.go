package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	commands "tankfleet-cloud/internal/commands/domain"
)

// Repository is a Postgres implementation of the command store. Status
// transitions are guarded in SQL, so concurrent callers race on
// RowsAffected rather than on application state.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a command.
func (r *Repository) Create(ctx context.Context, cmd *commands.Command) error {
	if r == nil || r.db == nil {
		return errors.New("command repo: nil db")
	}
	if cmd == nil {
		return errors.New("command repo: nil command")
	}
	params, err := encodeParams(cmd.Params)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO commands (
	command_id, tank_id, command_type, params, source,
	status, retry_count, max_retries, created_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9
)`, cmd.ID, cmd.TankID, cmd.Type, params, cmd.Source, cmd.Status, cmd.RetryCount, cmd.MaxRetries, cmd.CreatedAt)
	return err
}

// GetByID fetches a command by id.
func (r *Repository) GetByID(ctx context.Context, id string) (*commands.Command, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("command repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, selectCommand+`
WHERE command_id = $1
LIMIT 1`, id)
	return scanCommand(row)
}

// OldestPending returns the FIFO head of the tank's pending commands.
func (r *Repository) OldestPending(ctx context.Context, tankID string) (*commands.Command, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("command repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, selectCommand+`
WHERE tank_id = $1 AND status = $2
ORDER BY created_at ASC, command_id ASC
LIMIT 1`, tankID, commands.StatusPending)
	return scanCommand(row)
}

// Dispatched returns the tank's in-flight command, if any.
func (r *Repository) Dispatched(ctx context.Context, tankID string) (*commands.Command, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("command repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, selectCommand+`
WHERE tank_id = $1 AND status = $2
ORDER BY dispatched_at DESC
LIMIT 1`, tankID, commands.StatusDispatched)
	return scanCommand(row)
}

// MarkDispatched moves pending -> dispatched.
func (r *Repository) MarkDispatched(ctx context.Context, id string, at time.Time) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("command repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE commands
SET status = $1, dispatched_at = $2
WHERE command_id = $3 AND status = $4`, commands.StatusDispatched, at, id, commands.StatusPending)
	return swapped(result, err)
}

// MarkAckedSuccess moves dispatched -> acked_success.
func (r *Repository) MarkAckedSuccess(ctx context.Context, id string, at time.Time) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("command repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE commands
SET status = $1, acked_at = $2
WHERE command_id = $3 AND status = $4`, commands.StatusAckedSuccess, at, id, commands.StatusDispatched)
	return swapped(result, err)
}

// Requeue moves dispatched -> pending after a failed attempt.
func (r *Repository) Requeue(ctx context.Context, id string, retryCount int, reason string) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("command repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE commands
SET status = $1, retry_count = $2, error = $3, dispatched_at = NULL
WHERE command_id = $4 AND status = $5`, commands.StatusPending, retryCount, reason, id, commands.StatusDispatched)
	return swapped(result, err)
}

// MarkFailed moves dispatched -> failed once retries are exhausted.
func (r *Repository) MarkFailed(ctx context.Context, id string, retryCount int, at time.Time, reason string) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("command repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE commands
SET status = $1, retry_count = $2, error = $3, acked_at = $4
WHERE command_id = $5 AND status = $6`, commands.StatusFailed, retryCount, reason, at, id, commands.StatusDispatched)
	return swapped(result, err)
}

// ListDispatchedBefore returns in-flight commands dispatched at or before
// the cutoff, oldest first.
func (r *Repository) ListDispatchedBefore(ctx context.Context, cutoff time.Time) ([]commands.Command, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("command repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, selectCommand+`
WHERE status = $1 AND dispatched_at <= $2
ORDER BY dispatched_at ASC`, commands.StatusDispatched, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCommands(rows)
}

// ListByTankAndTime lists a tank's commands in [from, to) ordered by
// created_at.
func (r *Repository) ListByTankAndTime(ctx context.Context, tankID string, from, to time.Time) ([]commands.Command, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("command repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, selectCommand+`
WHERE tank_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at ASC`, tankID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCommands(rows)
}

const selectCommand = `
SELECT command_id, tank_id, command_type, params, source,
	status, retry_count, max_retries, created_at, dispatched_at, acked_at, error
FROM commands`

func swapped(result sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	count, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func encodeParams(params map[string]string) ([]byte, error) {
	if len(params) == 0 {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, errors.New("command repo: invalid params")
	}
	return data, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommand(row rowScanner) (*commands.Command, error) {
	var cmd commands.Command
	var params []byte
	var dispatchedAt sql.NullTime
	var ackedAt sql.NullTime
	var errMsg sql.NullString
	if err := row.Scan(
		&cmd.ID,
		&cmd.TankID,
		&cmd.Type,
		&params,
		&cmd.Source,
		&cmd.Status,
		&cmd.RetryCount,
		&cmd.MaxRetries,
		&cmd.CreatedAt,
		&dispatchedAt,
		&ackedAt,
		&errMsg,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &cmd.Params); err != nil {
			return nil, err
		}
	}
	cmd.CreatedAt = cmd.CreatedAt.UTC()
	if dispatchedAt.Valid {
		cmd.DispatchedAt = dispatchedAt.Time.UTC()
	}
	if ackedAt.Valid {
		cmd.AckedAt = ackedAt.Time.UTC()
	}
	if errMsg.Valid {
		cmd.Error = errMsg.String
	}
	return &cmd, nil
}

func collectCommands(rows *sql.Rows) ([]commands.Command, error) {
	var result []commands.Command
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
