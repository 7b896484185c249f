package store

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/solarlog/internal/clock"
	"github.com/nerrad567/solarlog/internal/reading"
)

// Store layout constants.
const (
	// DefaultPrefix is the partition file name prefix.
	DefaultPrefix = "results_"

	// TimestampColumn is the header key of the trailing timestamp column.
	TimestampColumn = "timestamp"

	// fileExtension is the partition file suffix.
	fileExtension = ".csv"

	// dateLayout formats the date part of a partition file name.
	dateLayout = "2006-01-02"

	// dirPermissions is the permission mode for the data directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for partition files.
	filePermissions = 0640

	// tailChunk is the read size used when scanning back for the last
	// complete line.
	tailChunk = 4096

	// secondsThreshold separates epoch seconds from epoch milliseconds in
	// integer timestamps: 1e11 ms is March 1973, 1e11 s is far future.
	secondsThreshold = 1e11
)

// Config contains store settings.
type Config struct {
	// Dir is the directory holding partition files. Created if missing.
	Dir string

	// Prefix is prepended to partition file names. Default: "results_".
	Prefix string

	// Location decides which calendar date a moment belongs to.
	// Default: time.Local.
	Location *time.Location

	// Clock supplies "today" for Append and ReadToday. Default: real clock.
	Clock clock.Clock
}

// Partition is the set of records sharing one calendar date.
type Partition struct {
	// Date is midnight of the partition's date in the store location.
	Date time.Time

	// Records are in append order.
	Records []reading.Record
}

// Store appends records to date-partitioned CSV files and reads them back.
//
// Thread Safety: All methods are safe for concurrent use.
type Store struct {
	dir    string
	prefix string
	loc    *time.Location
	clock  clock.Clock

	mu sync.Mutex
}

// New creates a store rooted at cfg.Dir.
//
// Parameters:
//   - cfg: Store configuration (zero fields take defaults)
//
// Returns:
//   - *Store: Ready for Append and reads
//   - error: If Dir is empty or cannot be created
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("store directory is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}

	if err := os.MkdirAll(cfg.Dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	return &Store{
		dir:    cfg.Dir,
		prefix: cfg.Prefix,
		loc:    cfg.Location,
		clock:  cfg.Clock,
	}, nil
}

// Dir returns the directory holding partition files.
func (s *Store) Dir() string {
	return s.dir
}

// Location returns the location used to resolve partition dates.
func (s *Store) Location() *time.Location {
	return s.loc
}

// PartitionPath returns the file path of the partition containing t.
func (s *Store) PartitionPath(t time.Time) string {
	name := s.prefix + t.In(s.loc).Format(dateLayout) + fileExtension
	return filepath.Join(s.dir, name)
}

// Append writes rec as one row of today's partition and syncs it to disk.
//
// The partition is chosen from the store clock at call time. When the
// partition file is new (or empty) a header row is written first. A partial
// last line left by an interrupted write is cut off before the new row, so
// it can never be read back as a record.
//
// Returns:
//   - error: nil once the row is durable, otherwise wraps ErrWrite
//     (and ErrHeaderMismatch when rec does not fit the partition's columns)
func (s *Store) Append(rec reading.Record) error {
	if rec.Len() == 0 {
		return fmt.Errorf("%w: %w", ErrWrite, ErrEmptyRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.PartitionPath(s.clock.Now())

	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND|os.O_CREATE, filePermissions) //nolint:gosec // Path built from configured dir
	if err != nil {
		return fmt.Errorf("%w: opening %s: %w", ErrWrite, path, err)
	}

	if err := writeRow(f, rec); err != nil {
		_ = f.Close() //nolint:errcheck // Already failing
		return fmt.Errorf("%w: %s: %w", ErrWrite, path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %w", ErrWrite, path, err)
	}
	return nil
}

// writeRow appends the header (for an empty file) and one data row, then syncs.
func writeRow(f *os.File, rec reading.Record) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}

	size := info.Size()
	if size > 0 && !endsWithNewline(f, size) {
		if size, err = dropPartialLine(f, size); err != nil {
			return err
		}
	}

	want := header(rec.Start(), rec.Len())

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if size == 0 {
		if err := w.Write(want); err != nil {
			return fmt.Errorf("encoding header: %w", err)
		}
	} else {
		got, err := readHeader(f, size)
		if err != nil {
			return err
		}
		if !sameColumns(got, want) {
			return fmt.Errorf("%w: record covers registers %d..%d, header has %d columns",
				ErrHeaderMismatch, rec.Start(), rec.Start()+rec.Len()-1, len(got))
		}
	}

	if err := w.Write(encodeRow(rec)); err != nil {
		return fmt.Errorf("encoding row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encoding row: %w", err)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing row: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing: %w", err)
	}
	return nil
}

// endsWithNewline reports whether the file's last byte is '\n'.
func endsWithNewline(f *os.File, size int64) bool {
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return true
	}
	return last[0] == '\n'
}

// dropPartialLine truncates f after its last newline and returns the new
// size. A file without any newline is emptied.
func dropPartialLine(f *os.File, size int64) (int64, error) {
	buf := make([]byte, tailChunk)
	keep := int64(0)
	for end := size; end > 0; {
		from := max(end-tailChunk, 0)
		chunk := buf[:end-from]
		if _, err := f.ReadAt(chunk, from); err != nil {
			return 0, fmt.Errorf("reading tail: %w", err)
		}
		if i := bytes.LastIndexByte(chunk, '\n'); i >= 0 {
			keep = from + int64(i) + 1
			break
		}
		end = from
	}

	if err := f.Truncate(keep); err != nil {
		return 0, fmt.Errorf("dropping partial line: %w", err)
	}
	return keep, nil
}

// readHeader parses the first line of a partition file.
func readHeader(f *os.File, size int64) ([]string, error) {
	r := csv.NewReader(io.NewSectionReader(f, 0, size))
	r.FieldsPerRecord = -1
	cols, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %w", ErrMalformed, err)
	}
	return cols, nil
}

// sameColumns reports whether an existing header has the register keys of
// want. The timestamp column's key is not compared: files written by older
// tooling label it with a number.
func sameColumns(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := 0; i < len(want)-1; i++ {
		if strings.TrimSpace(got[i]) != want[i] {
			return false
		}
	}
	return true
}

// header returns the column keys for n registers starting at start.
func header(start, n int) []string {
	cols := make([]string, 0, n+1)
	for i := 0; i < n; i++ {
		cols = append(cols, strconv.Itoa(start+i))
	}
	return append(cols, TimestampColumn)
}

// headerStart returns the register index of the first column and checks
// that the register keys are consecutive.
func headerStart(keys []string) (int, error) {
	start, err := strconv.Atoi(strings.TrimSpace(keys[0]))
	if err != nil || start < 0 {
		return 0, fmt.Errorf("header column 0: %q is not a register index", keys[0])
	}
	for i, k := range keys {
		if n, err := strconv.Atoi(strings.TrimSpace(k)); err != nil || n != start+i {
			return 0, fmt.Errorf("header column %d: %q, want %d", i, k, start+i)
		}
	}
	return start, nil
}

// encodeRow renders rec as raw integers followed by epoch milliseconds.
func encodeRow(rec reading.Record) []string {
	values := rec.Values()
	row := make([]string, 0, len(values)+1)
	for _, v := range values {
		row = append(row, strconv.FormatUint(uint64(v), 10))
	}
	return append(row, strconv.FormatInt(rec.UnixMilli(), 10))
}

// ReadPartition returns the records of the partition containing date, in
// append order. A partition that does not exist yields an empty slice.
//
// A final row without a trailing newline (interrupted write) is ignored.
// Register columns take their indexes from the header.
//
// Returns:
//   - []reading.Record: Records in append order (never nil)
//   - error: Wraps ErrRead or ErrMalformed
func (s *Store) ReadPartition(date time.Time) ([]reading.Record, error) {
	path := s.PartitionPath(date)

	data, err := os.ReadFile(path) //nolint:gosec // Path built from configured dir
	if errors.Is(err, fs.ErrNotExist) {
		return []reading.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRead, path, err)
	}

	if i := bytes.LastIndexByte(data, '\n'); i != len(data)-1 {
		data = data[:i+1]
	}

	rows, err := csvRows(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, path, err)
	}

	return s.decodeRows(path, rows)
}

// csvRows parses CSV data without enforcing a fixed field count.
func csvRows(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	return r.ReadAll()
}

// decodeRows converts the header and data rows of one partition.
func (s *Store) decodeRows(path string, rows [][]string) ([]reading.Record, error) {
	if len(rows) == 0 {
		return []reading.Record{}, nil
	}

	width := len(rows[0])
	if width < 2 {
		return nil, fmt.Errorf("%w: %s: header has %d columns", ErrMalformed, path, width)
	}
	start, err := headerStart(rows[0][:width-1])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, path, err)
	}

	records := make([]reading.Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		line := i + 2
		if len(row) != width {
			return nil, fmt.Errorf("%w: %s line %d: %d columns, header has %d", ErrMalformed, path, line, len(row), width)
		}

		values := make([]uint16, width-1)
		for j, field := range row[:width-1] {
			v, err := parseRegister(field)
			if err != nil {
				return nil, fmt.Errorf("%w: %s line %d column %d: %w", ErrMalformed, path, line, j, err)
			}
			values[j] = v
		}

		ts, err := parseTimestamp(row[width-1])
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d timestamp: %w", ErrMalformed, path, line, err)
		}

		records = append(records, reading.NewAt(start, values, ts.In(s.loc)))
	}

	return records, nil
}

// parseRegister parses a raw register cell. Integral floats ("512.0") are
// accepted for files produced by dataframe tooling.
func parseRegister(field string) (uint16, error) {
	field = strings.TrimSpace(field)
	if v, err := strconv.ParseUint(field, 10, 16); err == nil {
		return uint16(v), nil
	}

	f, err := strconv.ParseFloat(field, 64)
	if err != nil || f != math.Trunc(f) || f < 0 || f > math.MaxUint16 {
		return 0, fmt.Errorf("invalid register value %q", field)
	}
	return uint16(f), nil
}

// parseTimestamp accepts epoch milliseconds (written by this store) and
// epoch seconds, integral or fractional (written by older tooling).
func parseTimestamp(field string) (time.Time, error) {
	field = strings.TrimSpace(field)

	if ms, err := strconv.ParseInt(field, 10, 64); err == nil {
		if ms < secondsThreshold {
			return time.Unix(ms, 0), nil
		}
		return time.UnixMilli(ms), nil
	}

	secs, err := strconv.ParseFloat(field, 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", field)
	}
	return time.UnixMilli(int64(math.Round(secs * 1000))), nil
}

// ReadToday returns the records of the partition for the store clock's date.
func (s *Store) ReadToday() ([]reading.Record, error) {
	return s.ReadPartition(s.clock.Now())
}

// Partitions returns the dates that have a partition file, ascending.
func (s *Store) Partitions() ([]time.Time, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %w", ErrRead, s.dir, err)
	}

	dates := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, s.prefix) || !strings.HasSuffix(name, fileExtension) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, s.prefix), fileExtension)
		date, err := time.ParseInLocation(dateLayout, stamp, s.loc)
		if err != nil {
			continue
		}
		dates = append(dates, date)
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// ReadRecent returns up to k of the most recent partitions dated strictly
// after the date of cutoff, oldest first. k <= 0 means no limit.
//
// Partitions are returned separately; merging them is left to the caller.
func (s *Store) ReadRecent(k int, cutoff time.Time) ([]Partition, error) {
	dates, err := s.Partitions()
	if err != nil {
		return nil, err
	}

	floor := s.dateOf(cutoff)
	selected := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		if d.After(floor) {
			selected = append(selected, d)
		}
	}
	if k > 0 && len(selected) > k {
		selected = selected[len(selected)-k:]
	}

	partitions := make([]Partition, 0, len(selected))
	for _, d := range selected {
		records, err := s.ReadPartition(d)
		if err != nil {
			return nil, err
		}
		partitions = append(partitions, Partition{Date: d, Records: records})
	}
	return partitions, nil
}

// dateOf returns midnight of t's date in the store location.
func (s *Store) dateOf(t time.Time) time.Time {
	y, m, d := t.In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}
