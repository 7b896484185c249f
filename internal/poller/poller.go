package poller

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/solarlog/internal/clock"
	"github.com/nerrad567/solarlog/internal/modbus"
	"github.com/nerrad567/solarlog/internal/reading"
)

// Reader performs one register read. Satisfied by *modbus.Client.
type Reader interface {
	ReadRegisters(ctx context.Context, start, count int, fc modbus.FunctionCode) ([]uint16, error)
}

// Appender persists one record. Satisfied by *store.Store.
type Appender interface {
	Append(rec reading.Record) error
}

// Observer receives every cycle outcome after the store write.
// Implementations must not block for long: they run on the polling goroutine.
type Observer interface {
	OnCycle(ctx context.Context, c Cycle)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, c Cycle)

// OnCycle calls f(ctx, c).
func (f ObserverFunc) OnCycle(ctx context.Context, c Cycle) {
	f(ctx, c)
}

// Logger defines the logging interface used by the poller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// State is the poller's activity state.
type State int32

// Poller states.
const (
	// StateIdle means the poller is waiting for the next tick (or not running).
	StateIdle State = iota

	// StatePolling means a transaction or store write is in progress.
	StatePolling
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Cycle is the outcome of one polling cycle.
type Cycle struct {
	// Instrument is the poller's instrument name.
	Instrument string

	// Started and Finished bracket the register read.
	Started  time.Time
	Finished time.Time

	// Record is set when the read succeeded.
	Record reading.Record

	// Err is the read error, nil on success.
	Err error

	// Kind classifies Err. modbus.KindNone on success.
	Kind modbus.ErrorKind

	// StoreErr is set when the record could not be persisted.
	StoreErr error
}

// OK reports whether the read succeeded.
func (c Cycle) OK() bool {
	return c.Err == nil
}

// Duration returns the time spent on the read.
func (c Cycle) Duration() time.Duration {
	return c.Finished.Sub(c.Started)
}

// Stats holds cumulative poller counters.
type Stats struct {
	Cycles        uint64
	Records       uint64
	StoreFailures uint64
	Failures      map[modbus.ErrorKind]uint64
	LastSuccess   time.Time
}

// Options configures a Poller.
type Options struct {
	// Instrument names the polled device in logs and cycle outcomes.
	Instrument string

	// Interval is the fixed cadence between cycle starts. Required.
	Interval time.Duration

	// StartAddress is the first register to read.
	StartAddress int

	// Count is the number of registers per read (1-125).
	Count int

	// FunctionCode selects holding or input registers.
	FunctionCode modbus.FunctionCode

	// Reader performs the register read. Required.
	Reader Reader

	// Store persists successful reads. Required.
	Store Appender

	// Observers receive every cycle outcome. Optional.
	Observers []Observer

	// Clock drives the ticker and timestamps. Default: real clock.
	Clock clock.Clock

	// Logger receives diagnostics. Default: discard.
	Logger Logger
}

// Poller runs the acquisition loop for one instrument.
//
// Thread Safety: State, Stats, Start and Stop are safe for concurrent use.
// Run must not be called concurrently with itself.
type Poller struct {
	instrument string
	interval   time.Duration
	start      int
	count      int
	fc         modbus.FunctionCode
	reader     Reader
	store      Appender
	observers  []Observer
	clock      clock.Clock
	logger     Logger

	state   atomic.Int32
	running atomic.Bool

	statsMu sync.Mutex
	stats   Stats

	// Shutdown coordination for Start/Stop
	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

// New creates a Poller.
//
// Parameters:
//   - opts: Poller configuration
//
// Returns:
//   - *Poller: Idle poller, ready for Run or Start
//   - error: Wraps ErrInvalidOptions listing every problem found
func New(opts Options) (*Poller, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	observers := make([]Observer, 0, len(opts.Observers))
	for _, o := range opts.Observers {
		if o != nil {
			observers = append(observers, o)
		}
	}

	return &Poller{
		instrument: opts.Instrument,
		interval:   opts.Interval,
		start:      opts.StartAddress,
		count:      opts.Count,
		fc:         opts.FunctionCode,
		reader:     opts.Reader,
		store:      opts.Store,
		observers:  observers,
		clock:      opts.Clock,
		logger:     opts.Logger,
		stats:      Stats{Failures: make(map[modbus.ErrorKind]uint64)},
	}, nil
}

// validate collects every configuration problem.
func (o Options) validate() error {
	var errs []string

	if o.Instrument == "" {
		errs = append(errs, "instrument name is required")
	}
	if o.Interval <= 0 {
		errs = append(errs, "interval must be positive")
	}
	if o.Count < 1 || o.Count > modbus.MaxRegisters {
		errs = append(errs, fmt.Sprintf("count must be between 1 and %d", modbus.MaxRegisters))
	}
	if o.StartAddress < 0 || o.StartAddress+o.Count-1 > 0xFFFF {
		errs = append(errs, "register range exceeds address space")
	}
	if o.FunctionCode != modbus.ReadHoldingRegisters && o.FunctionCode != modbus.ReadInputRegisters {
		errs = append(errs, fmt.Sprintf("unsupported function code %d", uint8(o.FunctionCode)))
	}
	if o.Reader == nil {
		errs = append(errs, "reader is required")
	}
	if o.Store == nil {
		errs = append(errs, "store is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidOptions, strings.Join(errs, "; "))
	}
	return nil
}

// Run polls until ctx is cancelled.
//
// The first cycle runs immediately; later cycles run on each tick of a
// fixed-cadence ticker. A failed read is logged and skipped unless the
// reader is closed or rejects the request.
//
// Returns:
//   - error: nil on cancellation, ErrAlreadyRunning if already running,
//     ErrReadAborted if the reader is closed or rejects the request
func (p *Poller) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer p.running.Store(false)

	if ctx.Err() != nil {
		return nil
	}

	p.logger.Info("poller started",
		"instrument", p.instrument,
		"interval", p.interval,
		"start_address", p.start,
		"count", p.count,
		"function_code", p.fc.String(),
	)

	if err := fatal(p.poll(ctx)); err != nil {
		return err
	}

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped", "instrument", p.instrument)
			return nil
		case <-ticker.C():
			// A tick and a cancellation can be ready together.
			if ctx.Err() != nil {
				p.logger.Info("poller stopped", "instrument", p.instrument)
				return nil
			}
			if err := fatal(p.poll(ctx)); err != nil {
				return err
			}
		}
	}
}

// fatal returns a non-nil error when c failed in a way that repeating the
// read cannot fix.
func fatal(c Cycle) error {
	switch c.Kind {
	case modbus.KindClosed, modbus.KindInvalidRequest:
		return fmt.Errorf("%w: %w", ErrReadAborted, c.Err)
	default:
		return nil
	}
}

// Start runs the poller in a background goroutine.
//
// Returns:
//   - error: ErrAlreadyRunning if Start was already called, ErrStopped
//     after Stop
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrStopped
	}
	if p.cancel != nil {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.Run(runCtx); err != nil {
			p.logger.Error("poller exited", "instrument", p.instrument, "error", err)
		}
	}()

	return nil
}

// Stop cancels a poller started with Start and waits for the in-flight
// cycle to finish. Safe to call more than once. A stopped poller cannot be
// started again.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

// State returns the current activity state.
func (p *Poller) State() State {
	return State(p.state.Load())
}

// Instrument returns the instrument name.
func (p *Poller) Instrument() string {
	return p.instrument
}

// Stats returns a snapshot of the cumulative counters.
func (p *Poller) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	s := p.stats
	s.Failures = make(map[modbus.ErrorKind]uint64, len(p.stats.Failures))
	for k, v := range p.stats.Failures {
		s.Failures[k] = v
	}
	return s
}

// logFailure reports a failed read. Steady-state faults that the next
// cycle may clear are warnings; anything else is an error.
func (p *Poller) logFailure(c Cycle) {
	args := []any{
		"instrument", p.instrument,
		"error_kind", string(c.Kind),
		"error", c.Err,
	}
	if code, ok := modbus.ExceptionCode(c.Err); ok {
		args = append(args, "exception_code", code)
	}

	if modbus.Recoverable(c.Err) {
		p.logger.Warn("poll failed", args...)
		return
	}
	p.logger.Error("poll failed", args...)
}

// poll runs one cycle: read, append, notify observers.
func (p *Poller) poll(ctx context.Context) Cycle {
	p.state.Store(int32(StatePolling))
	defer p.state.Store(int32(StateIdle))

	// The cycle runs to completion once started.
	cycleCtx := context.WithoutCancel(ctx)

	c := Cycle{Instrument: p.instrument, Started: p.clock.Now()}
	values, err := p.reader.ReadRegisters(cycleCtx, p.start, p.count, p.fc)
	c.Finished = p.clock.Now()

	if err == nil && len(values) != p.count {
		err = fmt.Errorf("%w: got %d registers, want %d", modbus.ErrProtocol, len(values), p.count)
	}

	if err != nil {
		c.Err = err
		c.Kind = modbus.KindOf(err)
		p.logFailure(c)
	} else {
		c.Record = reading.NewAt(p.start, values, c.Finished)
		if err := p.store.Append(c.Record); err != nil {
			c.StoreErr = err
			p.logger.Error("storing record failed",
				"instrument", p.instrument,
				"error_kind", "storage_write",
				"error", err,
			)
		} else {
			p.logger.Debug("record stored",
				"instrument", p.instrument,
				"registers", c.Record.Len(),
				"duration", c.Duration(),
			)
		}
	}

	p.recordStats(c)
	p.notify(cycleCtx, c)
	return c
}

// recordStats updates counters from a cycle outcome.
func (p *Poller) recordStats(c Cycle) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	p.stats.Cycles++
	switch {
	case c.Err != nil:
		p.stats.Failures[c.Kind]++
	case c.StoreErr != nil:
		p.stats.StoreFailures++
	default:
		p.stats.Records++
		p.stats.LastSuccess = c.Finished
	}
}

// notify delivers c to every observer. A panicking observer is logged and
// skipped so the loop keeps running.
func (p *Poller) notify(ctx context.Context, c Cycle) {
	for _, o := range p.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("observer panicked", "instrument", p.instrument, "panic", r)
				}
			}()
			o.OnCycle(ctx, c)
		}()
	}
}
