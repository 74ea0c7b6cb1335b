package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-gluehome/internal/operation"
)

const (
	// DefaultLimit caps List when no limit is given.
	DefaultLimit = 50

	// MaxLimit caps List whatever the caller asks for.
	MaxLimit = 500

	writeTimeout = 5 * time.Second

	// timeFormat has fixed width so stored times sort as text.
	timeFormat = "2006-01-02T15:04:05.000Z07:00"
)

// Entry is one finished lock command.
type Entry struct {
	ID          string    `json:"id"`
	LockID      string    `json:"lock_id"`
	Action      string    `json:"action"`
	OperationID string    `json:"operation_id,omitempty"`
	Outcome     string    `json:"outcome"`
	Reason      string    `json:"reason,omitempty"`
	Attempts    int       `json:"attempts"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Logger is the logging surface of the recorder.
type Logger interface {
	Error(msg string, args ...any)
}

// Repository stores command history in SQLite.
type Repository struct {
	db     *sql.DB
	logger Logger
}

// NewRepository creates a history repository. logger may be nil.
func NewRepository(db *sql.DB, logger Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Add inserts an entry. The ID is generated if empty.
func (r *Repository) Add(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO lock_operations
		   (id, lock_id, action, operation_id, outcome, reason, attempts, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.LockID, e.Action,
		nullString(e.OperationID), e.Outcome, nullString(e.Reason),
		e.Attempts, nullString(e.Error),
		e.StartedAt.UTC().Format(timeFormat),
		e.FinishedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("adding history entry: %w", err)
	}
	return nil
}

// List returns the most recent entries for lockID, newest first.
//
// Parameters:
//   - lockID: Lock to list
//   - limit: Maximum entries; <= 0 means DefaultLimit, capped at MaxLimit
func (r *Repository) List(ctx context.Context, lockID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, lock_id, action, operation_id, outcome, reason, attempts, error, started_at, finished_at
		 FROM lock_operations WHERE lock_id = ?
		 ORDER BY started_at DESC LIMIT ?`, lockID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var opID, reason, errText sql.NullString
		var started, finished string
		if err := rows.Scan(&e.ID, &e.LockID, &e.Action, &opID, &e.Outcome, &reason,
			&e.Attempts, &errText, &started, &finished); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		e.OperationID = opID.String
		e.Reason = reason.String
		e.Error = errText.String
		e.StartedAt, _ = time.Parse(timeFormat, started)   //nolint:errcheck // format is controlled
		e.FinishedAt, _ = time.Parse(timeFormat, finished) //nolint:errcheck // format is controlled
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}
	return entries, nil
}

// Observe records a finished command. It matches operation.Observer and
// runs on the command's goroutine; failures are logged, not returned.
func (r *Repository) Observe(rec operation.Record) {
	e := Entry{
		LockID:      rec.LockID,
		Action:      rec.Action,
		OperationID: rec.OperationID,
		Outcome:     rec.Outcome,
		Reason:      rec.Reason,
		Attempts:    rec.Attempts,
		StartedAt:   rec.Started,
		FinishedAt:  rec.Finished,
	}
	if rec.Err != nil {
		e.Error = rec.Err.Error()
	}

	// The command's own context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.Add(ctx, &e); err != nil && r.logger != nil {
		r.logger.Error("failed to record lock operation", "lock_id", rec.LockID, "error", err)
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
