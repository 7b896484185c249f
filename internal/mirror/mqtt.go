package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/solarlog/internal/infrastructure/mqtt"
	"github.com/nerrad567/solarlog/internal/poller"
	"github.com/nerrad567/solarlog/internal/registers"
)

const (
	defaultQueueSize          = 16
	defaultAvailabilityWindow = 30 * time.Second
)

// Publisher sends one MQTT message. Satisfied by *mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger defines the logging interface used by the mirrors.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// MQTTOptions configures an MQTT mirror.
type MQTTOptions struct {
	// Publisher is the broker connection. Required.
	Publisher Publisher

	// Catalog adds scaled values to each reading. Optional.
	Catalog *registers.Catalog

	// QoS for every publish (0-2).
	QoS byte

	// AvailabilityWindow is how long an instrument may fail before it is
	// reported offline. Default: 30s.
	AvailabilityWindow time.Duration

	// QueueSize bounds the cycles waiting to be published. Default: 16.
	QueueSize int

	// Logger receives publish failures. Default: discard.
	Logger Logger
}

// availability tracks one instrument's published status.
type availability struct {
	status      string
	lastSuccess time.Time
}

// MQTT is a poller.Observer that publishes cycles to an MQTT broker.
//
// Thread Safety: OnCycle, Start and Stop are safe for concurrent use.
// Per-instrument availability is owned by the worker goroutine.
type MQTT struct {
	pub     Publisher
	catalog *registers.Catalog
	qos     byte
	window  time.Duration
	logger  Logger
	topics  mqtt.Topics

	queue     chan poller.Cycle
	instState map[string]*availability

	published atomic.Uint64
	dropped   atomic.Uint64

	mu       sync.Mutex
	started  bool
	stopped  bool
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewMQTT creates an MQTT mirror. Call Start before the poller runs.
//
// Parameters:
//   - opts: Mirror configuration
//
// Returns:
//   - *MQTT: Mirror ready to Start
//   - error: ErrInvalidOptions if Publisher is nil or QoS is above 2
func NewMQTT(opts MQTTOptions) (*MQTT, error) {
	if opts.Publisher == nil {
		return nil, fmt.Errorf("%w: publisher is required", ErrInvalidOptions)
	}
	if opts.QoS > 2 {
		return nil, fmt.Errorf("%w: qos %d", ErrInvalidOptions, opts.QoS)
	}
	if opts.AvailabilityWindow <= 0 {
		opts.AvailabilityWindow = defaultAvailabilityWindow
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	return &MQTT{
		pub:       opts.Publisher,
		catalog:   opts.Catalog,
		qos:       opts.QoS,
		window:    opts.AvailabilityWindow,
		logger:    opts.Logger,
		queue:     make(chan poller.Cycle, opts.QueueSize),
		instState: make(map[string]*availability),
		done:      make(chan struct{}),
	}, nil
}

// Start launches the publishing goroutine.
func (m *MQTT) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true

	m.wg.Add(1)
	go m.run()
	return nil
}

// Stop publishes what is already queued and waits for the worker to exit.
// Cycles delivered after Stop are dropped. Safe to call more than once.
func (m *MQTT) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		m.mu.Unlock()

		close(m.done)
		m.wg.Wait()
	})
}

// OnCycle implements poller.Observer. It never blocks: when the queue is
// full the cycle is dropped and counted.
func (m *MQTT) OnCycle(_ context.Context, c poller.Cycle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	select {
	case m.queue <- c:
	default:
		m.dropped.Add(1)
		m.logger.Warn("mqtt mirror queue full, cycle dropped", "instrument", c.Instrument)
	}
}

// Published returns the number of messages accepted by the broker.
func (m *MQTT) Published() uint64 {
	return m.published.Load()
}

// Dropped returns the number of cycles discarded because the queue was full.
func (m *MQTT) Dropped() uint64 {
	return m.dropped.Load()
}

func (m *MQTT) run() {
	defer m.wg.Done()

	for {
		select {
		case c := <-m.queue:
			m.handle(c)
		case <-m.done:
			for {
				select {
				case c := <-m.queue:
					m.handle(c)
				default:
					return
				}
			}
		}
	}
}

// handle publishes the reading of a successful cycle and any availability
// change. Status is only recorded once the broker accepted it, so a failed
// status publish is retried on the next cycle.
func (m *MQTT) handle(c poller.Cycle) {
	st, ok := m.instState[c.Instrument]
	if !ok {
		st = &availability{}
		m.instState[c.Instrument] = st
	}

	if c.OK() {
		payload := NewReadingPayload(c.Instrument, c.Record, m.catalog)
		m.publishJSON(m.topics.Reading(c.Instrument), payload)

		st.lastSuccess = c.Finished
		if st.status != StatusOnline && m.publishStatus(c.Instrument, StatusOnline, "", st, c.Finished) {
			st.status = StatusOnline
		}
		return
	}

	if st.status == StatusOffline {
		return
	}
	if st.status == StatusOnline && c.Finished.Sub(st.lastSuccess) < m.window {
		return
	}
	if m.publishStatus(c.Instrument, StatusOffline, string(c.Kind), st, c.Finished) {
		st.status = StatusOffline
	}
}

func (m *MQTT) publishStatus(instrument, status, reason string, st *availability, at time.Time) bool {
	p := StatusPayload{
		Instrument: instrument,
		Status:     status,
		Reason:     reason,
		Timestamp:  at.UTC().Format(time.RFC3339),
	}
	if !st.lastSuccess.IsZero() {
		p.LastSuccess = st.lastSuccess.UTC().Format(time.RFC3339)
	}
	return m.publishJSON(m.topics.Status(instrument), p)
}

func (m *MQTT) publishJSON(topic string, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		m.logger.Warn("mqtt mirror encode failed", "topic", topic, "error", err)
		return false
	}

	if err := m.pub.Publish(topic, data, m.qos, true); err != nil {
		m.logger.Warn("mqtt mirror publish failed",
			"topic", topic,
			"error_kind", "mirror_publish",
			"error", err,
		)
		return false
	}

	m.published.Add(1)
	m.logger.Debug("mqtt mirror published", "topic", topic, "bytes", len(data))
	return true
}
