package journal

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/solarlog/internal/clock"
	"github.com/nerrad567/solarlog/internal/infrastructure/database"
	"github.com/nerrad567/solarlog/internal/modbus"
	"github.com/nerrad567/solarlog/internal/poller"
	"github.com/nerrad567/solarlog/internal/reading"
	"github.com/nerrad567/solarlog/migrations"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// openTestDB opens a migrated journal database in a temp dir.
func openTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "journal.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func okCycle(start time.Time) poller.Cycle {
	return poller.Cycle{
		Instrument: "inverter",
		Started:    start,
		Finished:   start.Add(120 * time.Millisecond),
		Record:     reading.New(make([]uint16, 27), start.Add(120*time.Millisecond)),
	}
}

func failedCycle(start time.Time) poller.Cycle {
	err := fmt.Errorf("%w: timeout", modbus.ErrNoResponse)
	return poller.Cycle{
		Instrument: "inverter",
		Started:    start,
		Finished:   start.Add(time.Second),
		Err:        err,
		Kind:       modbus.KindOf(err),
	}
}

func TestNew_GeneratesRunID(t *testing.T) {
	db := openTestDB(t)

	j := New(db.DB, "")
	if _, err := uuid.Parse(j.RunID()); err != nil {
		t.Errorf("RunID() = %q, not a UUID: %v", j.RunID(), err)
	}
	if other := New(db.DB, ""); other.RunID() == j.RunID() {
		t.Error("two journals share a generated run id")
	}
	if fixed := New(db.DB, "run-1"); fixed.RunID() != "run-1" {
		t.Errorf("RunID() = %q, want run-1", fixed.RunID())
	}
}

func TestRecord_Outcomes(t *testing.T) {
	db := openTestDB(t)
	j := New(db.DB, "run-1")
	ctx := context.Background()

	storeFail := okCycle(t0.Add(6 * time.Second))
	storeFail.StoreErr = errors.New("disk full")

	cycles := []poller.Cycle{okCycle(t0), failedCycle(t0.Add(3 * time.Second)), storeFail}
	for _, c := range cycles {
		if err := j.Record(ctx, c); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	entries, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	// Newest first.
	if entries[0].Outcome != OutcomeStoreFailed || entries[0].ErrorKind != "storage_write" {
		t.Errorf("entry 0 = %+v, want store_failed", entries[0])
	}
	if entries[1].Outcome != OutcomeReadFailed || entries[1].ErrorKind != "no_response" {
		t.Errorf("entry 1 = %+v, want read_failed/no_response", entries[1])
	}
	if entries[1].Duration != time.Second {
		t.Errorf("entry 1 duration = %v, want 1s", entries[1].Duration)
	}
	ok := entries[2]
	if ok.Outcome != OutcomeOK || ok.Error != "" || ok.Registers != 27 {
		t.Errorf("entry 2 = %+v, want ok with 27 registers", ok)
	}
	if !ok.StartedAt.Equal(t0) || ok.RunID != "run-1" || ok.Instrument != "inverter" {
		t.Errorf("entry 2 identity = %+v", ok)
	}
}

func TestRecent_Limit(t *testing.T) {
	db := openTestDB(t)
	j := New(db.DB, "run-1")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := j.Record(ctx, okCycle(t0.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := j.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || !entries[0].StartedAt.Equal(t0.Add(4*time.Second)) {
		t.Errorf("Recent(2) = %+v", entries)
	}

	all, err := j.Recent(ctx, 0)
	if err != nil || len(all) != 5 {
		t.Errorf("Recent(0) = %d entries, %v; want default limit to cover 5", len(all), err)
	}
}

func TestOutcomes(t *testing.T) {
	db := openTestDB(t)
	j := New(db.DB, "run-1")
	ctx := context.Background()

	_ = j.Record(ctx, okCycle(t0.Add(-time.Hour)))
	_ = j.Record(ctx, okCycle(t0))
	_ = j.Record(ctx, okCycle(t0.Add(3*time.Second)))
	_ = j.Record(ctx, failedCycle(t0.Add(6*time.Second)))

	counts, err := j.Outcomes(ctx, t0)
	if err != nil {
		t.Fatalf("Outcomes() error = %v", err)
	}
	if counts[OutcomeOK] != 2 || counts[OutcomeReadFailed] != 1 || counts[OutcomeStoreFailed] != 0 {
		t.Errorf("Outcomes() = %v", counts)
	}
}

func TestPrune(t *testing.T) {
	db := openTestDB(t)
	clk := clock.NewFake(t0)
	j := New(db.DB, "run-1", WithClock(clk))
	ctx := context.Background()

	_ = j.Record(ctx, okCycle(t0.Add(-48*time.Hour)))
	_ = j.Record(ctx, okCycle(t0.Add(-25*time.Hour)))
	_ = j.Record(ctx, okCycle(t0.Add(-time.Hour)))

	deleted, err := j.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("Prune() deleted %d, want 2", deleted)
	}

	if _, err := j.Prune(ctx, 0); !errors.Is(err, ErrInvalidRetention) {
		t.Errorf("Prune(0) error = %v, want ErrInvalidRetention", err)
	}
}

// recordingLogger captures warnings.
type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func TestOnCycle_AsObserver(t *testing.T) {
	db := openTestDB(t)
	logger := &recordingLogger{}
	j := New(db.DB, "run-1", WithLogger(logger))

	var obs poller.Observer = j
	obs.OnCycle(context.Background(), okCycle(t0))

	entries, err := j.Recent(context.Background(), 1)
	if err != nil || len(entries) != 1 {
		t.Fatalf("Recent() = %v, %v", entries, err)
	}

	// A closed database is logged, not propagated.
	db.Close() //nolint:errcheck // Forcing the failure path
	obs.OnCycle(context.Background(), okCycle(t0))

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.warns) != 1 {
		t.Errorf("warnings = %d, want 1", len(logger.warns))
	}
}
