package database

import (
	"context"
	"testing"
	"testing/fstest"
	"time"
)

// testMigrations is a two-step schema used by the migration tests.
var testMigrations = fstest.MapFS{
	"20260101_000000_create_samples.up.sql": {Data: []byte(`
		CREATE TABLE samples (
			id INTEGER PRIMARY KEY,
			instrument TEXT NOT NULL
		);
	`)},
	"20260101_000000_create_samples.down.sql": {Data: []byte("DROP TABLE samples;")},
	"20260102_000000_add_value.up.sql": {Data: []byte(`
		ALTER TABLE samples ADD COLUMN value INTEGER;
	`)},
	"README.md": {Data: []byte("not a migration")},
}

// TestMigrate verifies migration application.
func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx, testMigrations); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	// Both migrations ran in order: the column added by the second exists.
	if _, err := db.ExecContext(ctx,
		"INSERT INTO samples (instrument, value) VALUES (?, ?)", "inverter", 42,
	); err != nil {
		t.Fatalf("insert after migrate: %v", err)
	}

	applied, err := db.AppliedVersions(ctx)
	if err != nil {
		t.Fatalf("AppliedVersions() error = %v", err)
	}
	if len(applied) != 2 || !applied["20260101_000000"] || !applied["20260102_000000"] {
		t.Errorf("AppliedVersions() = %v", applied)
	}

	// Running again should be idempotent
	if err := db.Migrate(ctx, testMigrations); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

// TestMigrate_FailureRollsBack verifies a failing migration leaves no trace.
func TestMigrate_FailureRollsBack(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	broken := fstest.MapFS{
		"20260101_000000_ok.up.sql":     {Data: []byte("CREATE TABLE ok_table (id INTEGER);")},
		"20260102_000000_broken.up.sql": {Data: []byte("CREATE TABLE broken (;")},
	}

	if err := db.Migrate(ctx, broken); err == nil {
		t.Fatal("Migrate() expected error for broken SQL")
	}

	applied, err := db.AppliedVersions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !applied["20260101_000000"] || applied["20260102_000000"] {
		t.Errorf("AppliedVersions() = %v, want only the first", applied)
	}
}

// TestMigrate_NilFS verifies that no migrations is not an error.
func TestMigrate_NilFS(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), nil); err != nil {
		t.Errorf("Migrate(nil) error = %v", err)
	}
}

// TestLoadMigrations_Order verifies migrations sort by version.
func TestLoadMigrations_Order(t *testing.T) {
	migrations, err := LoadMigrations(testMigrations)
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("got %d migrations, want 2 (down and non-sql files ignored)", len(migrations))
	}
	if migrations[0].Name != "create_samples" || migrations[1].Name != "add_value" {
		t.Errorf("order = %s, %s", migrations[0].Name, migrations[1].Name)
	}
}

// TestLoadMigrations_Duplicate verifies duplicate versions are rejected.
func TestLoadMigrations_Duplicate(t *testing.T) {
	dup := fstest.MapFS{
		"20260101_000000_a.up.sql": {Data: []byte("SELECT 1;")},
		"20260101_000000_b.up.sql": {Data: []byte("SELECT 1;")},
	}
	if _, err := LoadMigrations(dup); err == nil {
		t.Error("LoadMigrations() expected duplicate version error")
	}
}

// TestParseMigrationFilename verifies filename parsing.
func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		wantVersion string
		wantDesc    string
		wantOK      bool
	}{
		{"20260118_120000_poll_cycles.up.sql", "20260118_120000", "poll_cycles", true},
		{"20260118_120000.up.sql", "20260118_120000", "20260118_120000", true},
		{"20260118_120000_poll_cycles.down.sql", "", "", false},
		{"20260118_120000_poll_cycles.sql", "", "", false},
		{"initial.up.sql", "", "", false},
		{"embed.go", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, desc, ok := parseMigrationFilename(tt.name)
			if ok != tt.wantOK || version != tt.wantVersion || desc != tt.wantDesc {
				t.Errorf("parseMigrationFilename(%q) = %q, %q, %v; want %q, %q, %v",
					tt.name, version, desc, ok, tt.wantVersion, tt.wantDesc, tt.wantOK)
			}
		})
	}
}
