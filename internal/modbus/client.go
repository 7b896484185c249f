package modbus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mb "github.com/goburrow/modbus"
)

// Protocol limits.
const (
	// MaxRegisters is the largest quantity a single read may request.
	MaxRegisters = 125

	// maxAddress is the highest addressable register.
	maxAddress = 0xFFFF
)

// Serial defaults for the instruments this client talks to.
const (
	DefaultBaudRate = 9600
	DefaultDataBits = 8
	DefaultParity   = "N"
	DefaultStopBits = 1
	DefaultTimeout  = 1 * time.Second
)

// FunctionCode selects the Modbus read operation.
type FunctionCode uint8

// Supported read function codes.
const (
	ReadHoldingRegisters FunctionCode = 3
	ReadInputRegisters   FunctionCode = 4
)

// String returns a readable name for the function code.
func (fc FunctionCode) String() string {
	switch fc {
	case ReadHoldingRegisters:
		return "read_holding_registers"
	case ReadInputRegisters:
		return "read_input_registers"
	default:
		return fmt.Sprintf("function_%d", uint8(fc))
	}
}

// ParseFunctionCode converts a numeric function code from configuration.
func ParseFunctionCode(code int) (FunctionCode, error) {
	switch FunctionCode(code) {
	case ReadHoldingRegisters, ReadInputRegisters:
		return FunctionCode(code), nil
	default:
		return 0, fmt.Errorf("%w: unsupported function code %d", ErrInvalidRequest, code)
	}
}

// Config contains serial line and addressing settings for one instrument.
type Config struct {
	// Port is the serial device path (e.g., "/dev/ttyUSB0").
	Port string

	// SlaveAddress is the Modbus unit identifier (1-247).
	SlaveAddress int

	// BaudRate defaults to 9600.
	BaudRate int

	// DataBits defaults to 8.
	DataBits int

	// Parity is "N", "E" or "O". Defaults to "N".
	Parity string

	// StopBits defaults to 1.
	StopBits int

	// Timeout bounds a single transaction. Defaults to 1s.
	Timeout time.Duration

	// IdleTimeout closes the port after this long without traffic; the
	// next transaction reopens it. Zero keeps the driver default (60s).
	IdleTimeout time.Duration
}

// withDefaults fills zero fields with the serial defaults.
func (c Config) withDefaults() Config {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.DataBits == 0 {
		c.DataBits = DefaultDataBits
	}
	if c.Parity == "" {
		c.Parity = DefaultParity
	}
	if c.StopBits == 0 {
		c.StopBits = DefaultStopBits
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	var errs []string

	if c.Port == "" {
		errs = append(errs, "port is required")
	}
	if c.SlaveAddress < 1 || c.SlaveAddress > 247 {
		errs = append(errs, "slave address must be between 1 and 247")
	}
	switch strings.ToUpper(c.Parity) {
	case "", "N", "E", "O":
	default:
		errs = append(errs, "parity must be N, E or O")
	}
	if c.Timeout < 0 {
		errs = append(errs, "timeout must not be negative")
	}
	if c.IdleTimeout < 0 {
		errs = append(errs, "idle timeout must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid modbus config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// handler is the lifecycle half of a goburrow client handler.
type handler interface {
	Connect() error
	Close() error
}

// registerReader is the subset of mb.Client this package uses.
type registerReader interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
}

// Option customises Connect.
type Option func(*options)

type options struct {
	frameLogger *log.Logger
}

// WithFrameLogger routes raw frame tracing from the RTU transport to l.
// Use slog.NewLogLogger to send it through structured logging.
func WithFrameLogger(l *log.Logger) Option {
	return func(o *options) {
		o.frameLogger = l
	}
}

// Client is a Modbus RTU master bound to one serial port and one slave.
//
// Thread Safety: All methods are safe for concurrent use. Transactions are
// serialised; Close waits for an in-flight transaction to complete.
type Client struct {
	cfg Config

	mu      sync.Mutex
	handler handler
	regs    registerReader
	closed  bool
}

// Connect opens the serial port and returns a ready client.
//
// Parameters:
//   - cfg: Serial and addressing settings (zero fields take defaults)
//   - opts: Optional behaviour such as frame tracing
//
// Returns:
//   - *Client: Connected client
//   - error: Wraps ErrConnection if the device cannot be opened
func Connect(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	h := mb.NewRTUClientHandler(cfg.Port)
	h.BaudRate = cfg.BaudRate
	h.DataBits = cfg.DataBits
	h.Parity = strings.ToUpper(cfg.Parity)
	h.StopBits = cfg.StopBits
	h.SlaveId = byte(cfg.SlaveAddress) // #nosec G115 -- validated to 1..247
	h.Timeout = cfg.Timeout
	if cfg.IdleTimeout > 0 {
		h.IdleTimeout = cfg.IdleTimeout
	}
	h.Logger = o.frameLogger

	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrConnection, cfg.Port, err)
	}

	return newClient(cfg, h, mb.NewClient(h)), nil
}

// newClient assembles a Client from its parts. Tests inject fakes here.
func newClient(cfg Config, h handler, regs registerReader) *Client {
	return &Client{
		cfg:     cfg,
		handler: h,
		regs:    regs,
	}
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// ReadRegisters reads count consecutive 16-bit registers starting at start.
//
// Parameters:
//   - ctx: Checked before the transaction starts; a started transaction
//     always runs to completion or timeout
//   - start: First register address (0-65535)
//   - count: Number of registers (1-125)
//   - fc: ReadHoldingRegisters or ReadInputRegisters
//
// Returns:
//   - []uint16: Exactly count values
//   - error: Wraps ErrNoResponse, ErrProtocol, ErrTransport,
//     ErrInvalidRequest or ErrClosed
func (c *Client) ReadRegisters(ctx context.Context, start, count int, fc FunctionCode) ([]uint16, error) {
	if err := validateRequest(start, count, fc); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	address := uint16(start)  // #nosec G115 -- validated to 0..65535
	quantity := uint16(count) // #nosec G115 -- validated to 1..125

	var raw []byte
	var err error
	switch fc {
	case ReadHoldingRegisters:
		raw, err = c.regs.ReadHoldingRegisters(address, quantity)
	case ReadInputRegisters:
		raw, err = c.regs.ReadInputRegisters(address, quantity)
	}
	if err != nil {
		return nil, classify(err)
	}

	return decodeRegisters(raw, count)
}

// Close releases the serial port. It waits for an in-flight transaction.
// Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.handler == nil {
		return nil
	}
	if err := c.handler.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", c.cfg.Port, err)
	}
	return nil
}

// validateRequest rejects reads the protocol cannot express.
func validateRequest(start, count int, fc FunctionCode) error {
	if fc != ReadHoldingRegisters && fc != ReadInputRegisters {
		return fmt.Errorf("%w: unsupported function code %d", ErrInvalidRequest, uint8(fc))
	}
	if start < 0 || start > maxAddress {
		return fmt.Errorf("%w: start address %d out of range", ErrInvalidRequest, start)
	}
	if count < 1 || count > MaxRegisters {
		return fmt.Errorf("%w: count %d must be between 1 and %d", ErrInvalidRequest, count, MaxRegisters)
	}
	if start+count-1 > maxAddress {
		return fmt.Errorf("%w: range %d+%d exceeds address space", ErrInvalidRequest, start, count)
	}
	return nil
}

// decodeRegisters converts big-endian register bytes to values.
func decodeRegisters(raw []byte, count int) ([]uint16, error) {
	if len(raw) != 2*count {
		return nil, fmt.Errorf("%w: got %d bytes for %d registers", ErrProtocol, len(raw), count)
	}

	values := make([]uint16, count)
	for i := range values {
		values[i] = binary.BigEndian.Uint16(raw[2*i:])
	}
	return values, nil
}

// classify maps a goburrow/serial error onto the package taxonomy.
//
// goburrow reports validation failures (CRC, length, function code) as
// plain errors prefixed "modbus:" and exception replies as *ModbusError.
func classify(err error) error {
	var exc *mb.ModbusError
	switch {
	case errors.As(err, &exc):
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	case isTimeout(err):
		return fmt.Errorf("%w: %w", ErrNoResponse, err)
	case strings.HasPrefix(err.Error(), "modbus:"):
		return fmt.Errorf("%w: %w", ErrProtocol, err)
	default:
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
}
