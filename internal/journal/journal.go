package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/solarlog/internal/clock"
	"github.com/nerrad567/solarlog/internal/poller"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 1000

	// writeTimeout bounds a single insert so a locked database cannot
	// stall the polling goroutine.
	writeTimeout = 2 * time.Second
)

// Outcome is the result class of a cycle.
type Outcome string

// Cycle outcomes.
const (
	OutcomeOK          Outcome = "ok"
	OutcomeReadFailed  Outcome = "read_failed"
	OutcomeStoreFailed Outcome = "store_failed"
)

// Entry is one journal row.
type Entry struct {
	ID         int64
	RunID      string
	Instrument string
	StartedAt  time.Time
	Duration   time.Duration
	Outcome    Outcome
	ErrorKind  string
	Error      string
	Registers  int
}

// Logger defines the logging interface used by the journal.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Option customises a Journal.
type Option func(*Journal)

// WithLogger reports failed inserts from OnCycle.
func WithLogger(l Logger) Option {
	return func(j *Journal) {
		if l != nil {
			j.logger = l
		}
	}
}

// WithClock sets the clock used for pruning cutoffs.
func WithClock(c clock.Clock) Option {
	return func(j *Journal) {
		if c != nil {
			j.clock = c
		}
	}
}

// Journal records poll cycles in the poll_cycles table.
//
// Thread Safety: All methods are safe for concurrent use.
type Journal struct {
	db     *sql.DB
	runID  string
	logger Logger
	clock  clock.Clock
}

// New creates a journal writing under runID. An empty runID gets a fresh UUID.
//
// Parameters:
//   - db: Open SQLite connection with the poll_cycles schema applied
//   - runID: Identifier shared by every row this process writes
//   - opts: Optional logger and clock
//
// Returns:
//   - *Journal: Journal ready for use as a poller.Observer
func New(db *sql.DB, runID string, opts ...Option) *Journal {
	if runID == "" {
		runID = uuid.NewString()
	}

	j := &Journal{
		db:     db,
		runID:  runID,
		logger: noopLogger{},
		clock:  clock.Real(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// RunID returns the identifier of this process run.
func (j *Journal) RunID() string {
	return j.runID
}

// OnCycle implements poller.Observer. Insert failures are logged, never
// returned, so the journal cannot disturb acquisition.
func (j *Journal) OnCycle(ctx context.Context, c poller.Cycle) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := j.Record(ctx, c); err != nil {
		j.logger.Warn("journal write failed", "instrument", c.Instrument, "error", err)
	}
}

// Record inserts one row describing c.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - c: Cycle outcome from the poller
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (j *Journal) Record(ctx context.Context, c poller.Cycle) error {
	outcome := OutcomeOK
	errKind := ""
	errText := ""

	switch {
	case c.Err != nil:
		outcome = OutcomeReadFailed
		errKind = string(c.Kind)
		errText = c.Err.Error()
	case c.StoreErr != nil:
		outcome = OutcomeStoreFailed
		errKind = "storage_write"
		errText = c.StoreErr.Error()
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO poll_cycles
		 (run_id, instrument, started_at, duration_ms, outcome, error_kind, error, registers)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.runID,
		c.Instrument,
		c.Started.UnixMilli(),
		c.Duration().Milliseconds(),
		string(outcome),
		errKind,
		errText,
		c.Record.Len(),
	)
	if err != nil {
		return fmt.Errorf("inserting poll cycle: %w", err)
	}
	return nil
}

// Recent returns the latest journal entries, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - limit: Maximum entries to return (default 50, max 1000)
//
// Returns:
//   - []Entry: Entries ordered by started_at DESC
//   - error: nil on success, otherwise the underlying query error
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, run_id, instrument, started_at, duration_ms, outcome, error_kind, error, registers
		 FROM poll_cycles
		 ORDER BY started_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying poll cycles: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var startedMs, durationMs int64
		var outcome string

		if err := rows.Scan(&e.ID, &e.RunID, &e.Instrument, &startedMs, &durationMs,
			&outcome, &e.ErrorKind, &e.Error, &e.Registers); err != nil {
			return nil, fmt.Errorf("scanning poll cycle: %w", err)
		}

		e.StartedAt = time.UnixMilli(startedMs)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		e.Outcome = Outcome(outcome)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating poll cycles: %w", err)
	}

	return entries, nil
}

// Outcomes counts cycles per outcome started at or after since.
func (j *Journal) Outcomes(ctx context.Context, since time.Time) (map[Outcome]int, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM poll_cycles
		 WHERE started_at >= ?
		 GROUP BY outcome`,
		since.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("counting poll cycles: %w", err)
	}
	defer rows.Close()

	counts := make(map[Outcome]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scanning outcome count: %w", err)
		}
		counts[Outcome(outcome)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outcome counts: %w", err)
	}
	return counts, nil
}

// Prune deletes entries that started more than olderThan ago.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - olderThan: Age beyond which entries are deleted
//
// Returns:
//   - int64: Number of rows deleted
//   - error: ErrInvalidRetention, or the underlying database error
func (j *Journal) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := j.clock.Now().Add(-olderThan).UnixMilli()
	result, err := j.db.ExecContext(ctx,
		"DELETE FROM poll_cycles WHERE started_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting poll cycles: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}
