package store

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/solarlog/internal/clock"
	"github.com/nerrad567/solarlog/internal/reading"
)

// newTestStore returns a store in a temp dir driven by a fake clock in UTC.
func newTestStore(t *testing.T, now time.Time) (*Store, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(now)
	s, err := New(Config{
		Dir:      filepath.Join(t.TempDir(), "data"),
		Location: time.UTC,
		Clock:    clk,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, clk
}

func day(y int, m time.Month, d, h, mi int) time.Time {
	return time.Date(y, m, d, h, mi, 0, 0, time.UTC)
}

func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	if _, err := New(Config{Dir: dir}); err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("directory not created: %v", err)
	}
}

func TestNew_RequiresDir(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty Dir")
	}
}

func TestPartitionPath(t *testing.T) {
	s, _ := newTestStore(t, day(2024, 6, 1, 12, 0))
	got := filepath.Base(s.PartitionPath(day(2024, 6, 1, 23, 59)))
	if got != "results_2024-06-01.csv" {
		t.Errorf("PartitionPath() = %s, want results_2024-06-01.csv", got)
	}
}

func TestAppend_WritesHeaderOnce(t *testing.T) {
	s, clk := newTestStore(t, day(2024, 6, 1, 8, 0))

	for i := 0; i < 3; i++ {
		rec := reading.New([]uint16{uint16(i), 230, 50}, clk.Now())
		if err := s.Append(rec); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		clk.Set(clk.Now().Add(3 * time.Second))
	}

	data, err := os.ReadFile(s.PartitionPath(clk.Now()))
	if err != nil {
		t.Fatalf("reading partition: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4:\n%s", len(lines), data)
	}
	if lines[0] != "0,1,2,timestamp" {
		t.Errorf("header = %q, want 0,1,2,timestamp", lines[0])
	}
	if strings.Count(string(data), "timestamp") != 1 {
		t.Error("header written more than once")
	}
	want := "0,230,50," + itoa(day(2024, 6, 1, 8, 0).UnixMilli())
	if lines[1] != want {
		t.Errorf("first row = %q, want %q", lines[1], want)
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

func TestAppend_ThenReadToday(t *testing.T) {
	s, clk := newTestStore(t, day(2024, 6, 1, 8, 0))

	values := []uint16{2301, 500, 0, 65535}
	for i := 0; i < 5; i++ {
		values[2] = uint16(i)
		if err := s.Append(reading.New(values, clk.Now())); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		clk.Set(clk.Now().Add(time.Second))
	}

	records, err := s.ReadToday()
	if err != nil {
		t.Fatalf("ReadToday() error = %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("got %d records, want 5", len(records))
	}

	last := records[len(records)-1]
	if v, _ := last.Value(2); v != 4 {
		t.Errorf("last record value[2] = %d, want 4 (append order)", v)
	}
	if v, _ := last.Value(3); v != 65535 {
		t.Errorf("value[3] = %d, want 65535", v)
	}
	if !last.Timestamp.Equal(day(2024, 6, 1, 8, 0).Add(4 * time.Second)) {
		t.Errorf("last timestamp = %v", last.Timestamp)
	}
}

func TestAppend_EmptyRecord(t *testing.T) {
	s, clk := newTestStore(t, day(2024, 6, 1, 8, 0))

	err := s.Append(reading.New(nil, clk.Now()))
	if !errors.Is(err, ErrWrite) || !errors.Is(err, ErrEmptyRecord) {
		t.Errorf("Append(empty) error = %v, want ErrWrite and ErrEmptyRecord", err)
	}
}

func TestAppend_UnwritableDirectory(t *testing.T) {
	s, clk := newTestStore(t, day(2024, 6, 1, 8, 0))

	// Replace the data directory with a plain file so opens fail.
	if err := os.RemoveAll(s.Dir()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.Dir(), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	err := s.Append(reading.New([]uint16{1}, clk.Now()))
	if !errors.Is(err, ErrWrite) {
		t.Errorf("Append() error = %v, want ErrWrite", err)
	}
}

func TestReadPartition_Absent(t *testing.T) {
	s, _ := newTestStore(t, day(2024, 6, 1, 8, 0))

	records, err := s.ReadPartition(day(2020, 1, 1, 0, 0))
	if err != nil {
		t.Fatalf("ReadPartition() error = %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("ReadPartition(absent) = %v, want empty non-nil", records)
	}
}

func TestReadPartition_HeaderOnly(t *testing.T) {
	s, _ := newTestStore(t, day(2024, 6, 1, 8, 0))
	writePartition(t, s, day(2024, 6, 1, 0, 0), "0,1,timestamp\n")

	records, err := s.ReadPartition(day(2024, 6, 1, 0, 0))
	if err != nil || len(records) != 0 {
		t.Errorf("ReadPartition() = %v, %v; want empty", records, err)
	}
}

func TestReadPartition_LegacyFloatSeconds(t *testing.T) {
	s, _ := newTestStore(t, day(2024, 6, 1, 8, 0))
	writePartition(t, s, day(2024, 6, 1, 0, 0),
		"0,1,timestamp\n"+
			"10,20,1717228800.5\n"+
			"11,21.0,1717228803\n")

	records, err := s.ReadPartition(day(2024, 6, 1, 0, 0))
	if err != nil {
		t.Fatalf("ReadPartition() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	want := time.UnixMilli(1717228800500)
	if !records[0].Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", records[0].Timestamp, want)
	}
	if !records[1].Timestamp.Equal(time.Unix(1717228803, 0)) {
		t.Errorf("integer seconds timestamp = %v", records[1].Timestamp)
	}
	if v, _ := records[1].Value(1); v != 21 {
		t.Errorf("value = %d, want 21", v)
	}
}

// tear appends raw bytes without a trailing newline, as a crash mid-write
// would leave them.
func tear(t *testing.T, path, partial string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(partial); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()
}

func TestReadPartition_TruncatedFinalRow(t *testing.T) {
	s, clk := newTestStore(t, day(2024, 6, 1, 8, 0))
	for i := 0; i < 2; i++ {
		if err := s.Append(reading.New([]uint16{1, 2, 3}, clk.Now())); err != nil {
			t.Fatal(err)
		}
	}
	tear(t, s.PartitionPath(clk.Now()), "1,2")

	records, err := s.ReadToday()
	if err != nil {
		t.Fatalf("ReadToday() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, want 2 (partial row ignored)", len(records))
	}
}

func TestAppend_AfterTornWrite(t *testing.T) {
	tests := []struct {
		name    string
		partial string
	}{
		{"short row", "1,2"},
		{"full width, timestamp cut", "1,2,3,17172"},
		{"register cut", "1,2,3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, clk := newTestStore(t, day(2024, 6, 1, 8, 0))
			for i := 0; i < 3; i++ {
				if err := s.Append(reading.New([]uint16{1, 2, 3}, clk.Now())); err != nil {
					t.Fatal(err)
				}
			}
			tear(t, s.PartitionPath(clk.Now()), tt.partial)

			clk.Set(clk.Now().Add(3 * time.Second))
			if err := s.Append(reading.New([]uint16{7, 8, 9}, clk.Now())); err != nil {
				t.Fatalf("Append() error = %v", err)
			}

			records, err := s.ReadToday()
			if err != nil {
				t.Fatalf("ReadToday() error = %v", err)
			}
			if len(records) != 4 {
				t.Fatalf("got %d records, want 4", len(records))
			}
			for i, rec := range records {
				if rec.Timestamp.Year() != 2024 {
					t.Errorf("record %d timestamp = %v, torn row read back", i, rec.Timestamp)
				}
			}
			if v, _ := records[3].Value(0); v != 7 {
				t.Errorf("last record value[0] = %d, want 7 (append order)", v)
			}
		})
	}
}

func TestAppend_TornHeader(t *testing.T) {
	s, clk := newTestStore(t, day(2024, 6, 1, 8, 0))
	if err := os.WriteFile(s.PartitionPath(clk.Now()), []byte("0,1"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := s.Append(reading.New([]uint16{4, 5, 6}, clk.Now())); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	data, err := os.ReadFile(s.PartitionPath(clk.Now()))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "0,1,2,timestamp\n") {
		t.Errorf("partition = %q, want a fresh header", data)
	}
	if records, err := s.ReadToday(); err != nil || len(records) != 1 {
		t.Errorf("ReadToday() = %d records, %v; want 1", len(records), err)
	}
}

func TestAppend_HeaderMismatch(t *testing.T) {
	tests := []struct {
		name string
		rec  reading.Record
	}{
		{"wider", reading.New([]uint16{1, 2, 3, 4}, day(2024, 6, 1, 8, 0))},
		{"narrower", reading.New([]uint16{1, 2}, day(2024, 6, 1, 8, 0))},
		{"other start", reading.NewAt(5, []uint16{1, 2, 3}, day(2024, 6, 1, 8, 0))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, clk := newTestStore(t, day(2024, 6, 1, 8, 0))
			if err := s.Append(reading.New([]uint16{1, 2, 3}, clk.Now())); err != nil {
				t.Fatal(err)
			}

			err := s.Append(tt.rec)
			if !errors.Is(err, ErrWrite) || !errors.Is(err, ErrHeaderMismatch) {
				t.Errorf("Append() error = %v, want ErrWrite and ErrHeaderMismatch", err)
			}

			records, err := s.ReadToday()
			if err != nil || len(records) != 1 {
				t.Errorf("ReadToday() = %d records, %v; want 1 untouched", len(records), err)
			}
		})
	}
}

func TestAppend_StartOffsetHeader(t *testing.T) {
	s, clk := newTestStore(t, day(2024, 6, 1, 8, 0))
	if err := s.Append(reading.NewAt(10, []uint16{100, 110}, clk.Now())); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(s.PartitionPath(clk.Now()))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.SplitN(string(data), "\n", 2)[0]; got != "10,11,timestamp" {
		t.Errorf("header = %q, want 10,11,timestamp", got)
	}

	records, err := s.ReadToday()
	if err != nil || len(records) != 1 {
		t.Fatalf("ReadToday() = %d records, %v", len(records), err)
	}
	if records[0].Start() != 10 {
		t.Errorf("Start() = %d, want 10", records[0].Start())
	}
	if v, ok := records[0].Value(11); !ok || v != 110 {
		t.Errorf("Value(11) = %d, %v; want 110, true", v, ok)
	}
}

func TestReadPartition_Headers(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		wantErr bool
	}{
		{"timestamp key", "0,1,timestamp", false},
		{"numeric timestamp key", "0,1,2", false},
		{"gap in indexes", "0,2,timestamp", true},
		{"named columns", "volts,amps,timestamp", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t, day(2024, 6, 1, 8, 0))
			writePartition(t, s, day(2024, 6, 1, 0, 0), tt.header+"\n10,20,1717228800000\n")

			records, err := s.ReadPartition(day(2024, 6, 1, 0, 0))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Errorf("error = %v, want ErrMalformed", err)
				}
				return
			}
			if err != nil || len(records) != 1 {
				t.Errorf("ReadPartition() = %d records, %v; want 1", len(records), err)
			}
		})
	}
}

func TestReadPartition_MalformedInteriorRow(t *testing.T) {
	s, _ := newTestStore(t, day(2024, 6, 1, 8, 0))
	writePartition(t, s, day(2024, 6, 1, 0, 0),
		"0,1,timestamp\n"+
			"10,abc,1717228800000\n"+
			"11,21,1717228803000\n")

	_, err := s.ReadPartition(day(2024, 6, 1, 0, 0))
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("error = %v, want ErrMalformed", err)
	}
}

func TestPartitions_IgnoresForeignFiles(t *testing.T) {
	s, _ := newTestStore(t, day(2024, 6, 1, 8, 0))
	writePartition(t, s, day(2024, 6, 3, 0, 0), "0,timestamp\n")
	writePartition(t, s, day(2024, 6, 1, 0, 0), "0,timestamp\n")
	for _, name := range []string{"notes.txt", "results_garbage.csv", "other_2024-06-02.csv"} {
		if err := os.WriteFile(filepath.Join(s.Dir(), name), nil, 0600); err != nil {
			t.Fatal(err)
		}
	}

	dates, err := s.Partitions()
	if err != nil {
		t.Fatalf("Partitions() error = %v", err)
	}
	if len(dates) != 2 || !dates[0].Equal(day(2024, 6, 1, 0, 0)) || !dates[1].Equal(day(2024, 6, 3, 0, 0)) {
		t.Errorf("Partitions() = %v", dates)
	}
}

func TestReadRecent(t *testing.T) {
	s, _ := newTestStore(t, day(2024, 6, 10, 8, 0))
	for d := 1; d <= 6; d++ {
		date := day(2024, 6, d, 0, 0)
		writePartition(t, s, date, "0,timestamp\n"+
			"1,"+itoa(date.Add(time.Hour).UnixMilli())+"\n")
	}

	tests := []struct {
		name     string
		k        int
		cutoff   time.Time
		wantDays []int
	}{
		{"last three", 3, day(2024, 5, 1, 0, 0), []int{4, 5, 6}},
		{"cutoff is exclusive", 10, day(2024, 6, 4, 15, 0), []int{5, 6}},
		{"no limit", 0, day(2024, 6, 2, 0, 0), []int{3, 4, 5, 6}},
		{"cutoff after all", 3, day(2024, 6, 6, 0, 0), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts, err := s.ReadRecent(tt.k, tt.cutoff)
			if err != nil {
				t.Fatalf("ReadRecent() error = %v", err)
			}
			if len(parts) != len(tt.wantDays) {
				t.Fatalf("got %d partitions, want %d", len(parts), len(tt.wantDays))
			}
			for i, p := range parts {
				if p.Date.Day() != tt.wantDays[i] {
					t.Errorf("partition %d date = %v, want day %d", i, p.Date, tt.wantDays[i])
				}
				if len(p.Records) != 1 {
					t.Errorf("partition %d has %d records, want 1", i, len(p.Records))
				}
			}
		})
	}
}

// A record read just before midnight but appended after it lands in the
// new day's partition: the partition follows the clock at append time.
func TestAppend_PartitionFollowsAppendTime(t *testing.T) {
	s, clk := newTestStore(t, day(2024, 6, 1, 23, 59))

	readAt := clk.Now().Add(59 * time.Second)
	clk.Set(day(2024, 6, 2, 0, 0).Add(100 * time.Millisecond))

	if err := s.Append(reading.New([]uint16{1}, readAt)); err != nil {
		t.Fatal(err)
	}

	prev, _ := s.ReadPartition(day(2024, 6, 1, 0, 0))
	next, _ := s.ReadPartition(day(2024, 6, 2, 0, 0))
	if len(prev) != 0 || len(next) != 1 {
		t.Errorf("partitions = %d / %d records, want 0 / 1", len(prev), len(next))
	}
}

func writePartition(t *testing.T, s *Store, date time.Time, content string) {
	t.Helper()
	if err := os.WriteFile(s.PartitionPath(date), []byte(content), 0600); err != nil {
		t.Fatalf("writing partition: %v", err)
	}
}
