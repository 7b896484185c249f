package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Instrument kinds with built-in presets.
const (
	KindInverter = "inverter"
	KindMeter    = "meter"
)

// Function codes accepted in instrument.function_code.
const (
	functionReadHolding = 3
	functionReadInput   = 4
)

// Config is the root configuration structure for solarlog.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Instrument InstrumentConfig `yaml:"instrument"`
	Storage    StorageConfig    `yaml:"storage"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// InstrumentConfig describes the polled device and its serial line.
// Zero values are filled from the preset selected by Kind.
type InstrumentConfig struct {
	// Kind selects the preset: "inverter" or "meter".
	Kind string `yaml:"kind"`

	// Name identifies the instrument in logs, topics and the journal.
	// Default: Kind
	Name string `yaml:"name"`

	// Port is the serial device path.
	Port string `yaml:"port"`

	// SlaveAddress is the Modbus unit identifier (1-247).
	SlaveAddress int `yaml:"slave_address"`

	// FunctionCode is 3 (holding registers) or 4 (input registers).
	FunctionCode int `yaml:"function_code"`

	// StartAddress is the first register read each cycle.
	StartAddress int `yaml:"start_address"`

	// Count is the number of registers read each cycle.
	Count int `yaml:"count"`

	// Interval is the polling cadence (e.g. "3s").
	Interval time.Duration `yaml:"interval"`

	// Timeout bounds one Modbus transaction (e.g. "1.5s").
	Timeout time.Duration `yaml:"timeout"`

	// IdleTimeout closes the serial port after inactivity. Zero keeps the
	// driver default.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	Parity   string `yaml:"parity"`
	StopBits int    `yaml:"stop_bits"`

	// TraceFrames logs raw Modbus frames at debug level.
	TraceFrames bool `yaml:"trace_frames"`
}

// StorageConfig contains partition store settings.
type StorageConfig struct {
	// Dir holds the partition files. Default: preset directory.
	Dir string `yaml:"dir"`

	// Prefix is prepended to partition file names. Default: "results_".
	Prefix string `yaml:"prefix"`

	// Timezone decides partition dates. Default: "Local".
	Timezone string `yaml:"timezone"`
}

// CatalogConfig selects the register catalog used for display scaling.
type CatalogConfig struct {
	// Path to a YAML catalog. Empty uses the built-in catalog for the kind.
	Path string `yaml:"path"`
}

// DatabaseConfig contains SQLite settings for the cycle journal.
type DatabaseConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	WALMode       bool   `yaml:"wal_mode"`
	BusyTimeout   int    `yaml:"busy_timeout"`
	RetentionDays int    `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// AvailabilityWindow is how long after the last successful read the
	// instrument is still reported online. Default: three poll intervals.
	AvailabilityWindow time.Duration `yaml:"availability_window"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// preset holds the per-kind defaults for an instrument.
type preset struct {
	slaveAddress int
	functionCode int
	count        int
	interval     time.Duration
	timeout      time.Duration
	dataDir      string
}

// presets are the factory settings for each instrument kind.
var presets = map[string]preset{
	KindInverter: {
		slaveAddress: 1,
		functionCode: functionReadInput,
		count:        27,
		interval:     3 * time.Second,
		timeout:      1 * time.Second,
		dataDir:      "data",
	},
	KindMeter: {
		slaveAddress: 2,
		functionCode: functionReadHolding,
		count:        70,
		interval:     4 * time.Second,
		timeout:      1500 * time.Millisecond,
		dataDir:      "data_meter",
	},
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//  4. Instrument preset (fills whatever is still unset)
//
// Environment variables follow the pattern: SOLARLOG_SECTION_KEY
// For example: SOLARLOG_INSTRUMENT_PORT, SOLARLOG_STORAGE_DIR
//
// Parameters:
//   - path: Path to the YAML configuration file (empty skips the file)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // Path comes from the operator
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	cfg.applyPreset()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Instrument: InstrumentConfig{
			Kind:     KindInverter,
			Port:     "/dev/ttyUSB0",
			BaudRate: 9600,
			DataBits: 8,
			Parity:   "N",
			StopBits: 1,
		},
		Storage: StorageConfig{
			Prefix:   "results_",
			Timezone: "Local",
		},
		Database: DatabaseConfig{
			Path:          "./data/solarlog.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Bucket:        "solarlog",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyPreset fills unset instrument and storage fields from the kind preset.
// Unknown kinds are left alone for Validate to report.
func (c *Config) applyPreset() {
	c.Instrument.Kind = strings.ToLower(strings.TrimSpace(c.Instrument.Kind))
	p, ok := presets[c.Instrument.Kind]
	if !ok {
		return
	}

	in := &c.Instrument
	if in.Name == "" {
		in.Name = in.Kind
	}
	if in.SlaveAddress == 0 {
		in.SlaveAddress = p.slaveAddress
	}
	if in.FunctionCode == 0 {
		in.FunctionCode = p.functionCode
	}
	if in.Count == 0 {
		in.Count = p.count
	}
	if in.Interval == 0 {
		in.Interval = p.interval
	}
	if in.Timeout == 0 {
		in.Timeout = p.timeout
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = p.dataDir
	}
	if c.MQTT.Broker.ClientID == "" {
		c.MQTT.Broker.ClientID = "solarlog-" + in.Name
	}
	if c.MQTT.AvailabilityWindow == 0 {
		c.MQTT.AvailabilityWindow = 3 * in.Interval
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SOLARLOG_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	var errs []string

	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = d
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = b
		}
	}

	// Instrument
	if v := os.Getenv("SOLARLOG_INSTRUMENT_KIND"); v != "" {
		cfg.Instrument.Kind = v
	}
	if v := os.Getenv("SOLARLOG_INSTRUMENT_NAME"); v != "" {
		cfg.Instrument.Name = v
	}
	if v := os.Getenv("SOLARLOG_INSTRUMENT_PORT"); v != "" {
		cfg.Instrument.Port = v
	}
	setInt("SOLARLOG_INSTRUMENT_SLAVE_ADDRESS", &cfg.Instrument.SlaveAddress)
	setInt("SOLARLOG_INSTRUMENT_FUNCTION_CODE", &cfg.Instrument.FunctionCode)
	setInt("SOLARLOG_INSTRUMENT_COUNT", &cfg.Instrument.Count)
	setDuration("SOLARLOG_INSTRUMENT_INTERVAL", &cfg.Instrument.Interval)
	setDuration("SOLARLOG_INSTRUMENT_TIMEOUT", &cfg.Instrument.Timeout)

	// Storage
	if v := os.Getenv("SOLARLOG_STORAGE_DIR"); v != "" {
		cfg.Storage.Dir = v
	}
	if v := os.Getenv("SOLARLOG_STORAGE_TIMEZONE"); v != "" {
		cfg.Storage.Timezone = v
	}

	// Catalog
	if v := os.Getenv("SOLARLOG_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}

	// Database
	setBool("SOLARLOG_DATABASE_ENABLED", &cfg.Database.Enabled)
	if v := os.Getenv("SOLARLOG_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	setBool("SOLARLOG_MQTT_ENABLED", &cfg.MQTT.Enabled)
	if v := os.Getenv("SOLARLOG_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SOLARLOG_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SOLARLOG_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	setBool("SOLARLOG_INFLUXDB_ENABLED", &cfg.InfluxDB.Enabled)
	if v := os.Getenv("SOLARLOG_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("SOLARLOG_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("SOLARLOG_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Instrument validation
	in := c.Instrument
	if _, ok := presets[in.Kind]; !ok {
		errs = append(errs, fmt.Sprintf("instrument.kind must be %q or %q", KindInverter, KindMeter))
	}
	if in.Port == "" {
		errs = append(errs, "instrument.port is required")
	}
	if in.SlaveAddress < 1 || in.SlaveAddress > 247 {
		errs = append(errs, "instrument.slave_address must be between 1 and 247")
	}
	if in.FunctionCode != functionReadHolding && in.FunctionCode != functionReadInput {
		errs = append(errs, "instrument.function_code must be 3 or 4")
	}
	if in.Count < 1 || in.Count > 125 {
		errs = append(errs, "instrument.count must be between 1 and 125")
	}
	if in.StartAddress < 0 || in.StartAddress+in.Count-1 > 0xFFFF {
		errs = append(errs, "instrument.start_address out of range")
	}
	if in.Interval <= 0 {
		errs = append(errs, "instrument.interval must be positive")
	}
	if in.Timeout <= 0 {
		errs = append(errs, "instrument.timeout must be positive")
	} else if in.Interval > 0 && in.Timeout >= in.Interval {
		errs = append(errs, "instrument.timeout must be shorter than instrument.interval")
	}
	if in.IdleTimeout < 0 {
		errs = append(errs, "instrument.idle_timeout must not be negative")
	}
	switch strings.ToUpper(in.Parity) {
	case "N", "E", "O":
	default:
		errs = append(errs, "instrument.parity must be N, E or O")
	}

	// Storage validation
	if c.Storage.Dir == "" {
		errs = append(errs, "storage.dir is required")
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("storage.timezone: %v", err))
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the journal is enabled")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && (c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535) {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Location returns the time zone used for partition dates.
func (c *Config) Location() (*time.Location, error) {
	switch c.Storage.Timezone {
	case "", "Local":
		return time.Local, nil
	default:
		return time.LoadLocation(c.Storage.Timezone)
	}
}
