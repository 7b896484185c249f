// solarlog polls a solar inverter or energy meter over Modbus RTU and
// appends every reading to a date-partitioned CSV store.
//
// Optional mirrors copy readings to MQTT and InfluxDB, and a SQLite journal
// records the outcome of each poll cycle.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/solarlog/internal/infrastructure/config"
	"github.com/nerrad567/solarlog/internal/infrastructure/database"
	"github.com/nerrad567/solarlog/internal/infrastructure/influxdb"
	"github.com/nerrad567/solarlog/internal/infrastructure/logging"
	"github.com/nerrad567/solarlog/internal/infrastructure/mqtt"
	"github.com/nerrad567/solarlog/internal/journal"
	"github.com/nerrad567/solarlog/internal/mirror"
	"github.com/nerrad567/solarlog/internal/modbus"
	"github.com/nerrad567/solarlog/internal/poller"
	"github.com/nerrad567/solarlog/internal/registers"
	"github.com/nerrad567/solarlog/internal/store"
	"github.com/nerrad567/solarlog/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnv         = "SOLARLOG_CONFIG"

	// pruneInterval is how often the journal drops entries past retention.
	pruneInterval = 24 * time.Hour

	// sinkCheckTimeout bounds each startup health check.
	sinkCheckTimeout = 5 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Without a subcommand it polls.
func newRootCmd() *cobra.Command {
	var configPath string

	pollCmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll the instrument and append readings to the store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), resolveConfigPath(configPath))
		},
	}

	root := &cobra.Command{
		Use:   "solarlog",
		Short: "Modbus RTU solar logger",
		Long: `solarlog reads a fixed block of registers from a solar inverter or
energy meter at a fixed cadence and appends each reading to a CSV file per day.

Commands:
  poll     - Run the acquisition loop (default)
  summary  - Print the live snapshot and recent partition sizes
  watch    - Print readings published by a running poller over MQTT
  journal  - List recent poll cycle outcomes`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          pollCmd.RunE,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "",
		"path to the YAML configuration (default $"+configEnv+" or "+defaultConfigPath+")")

	root.AddCommand(
		pollCmd,
		newSummaryCmd(&configPath),
		newWatchCmd(&configPath),
		newJournalCmd(&configPath),
	)
	return root
}

// resolveConfigPath picks the --config flag, then SOLARLOG_CONFIG, then the default.
func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig loads configuration and builds the configured logger.
func loadConfig(path string) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, logging.New(cfg.Logging, version), nil
}

// run is the acquisition loop, separated from main for testability.
//
// Parameters:
//   - ctx: Cancelled on SIGINT/SIGTERM
//   - configPath: YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown; wraps modbus.ErrConnection when the
//     serial port cannot be opened
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting solarlog",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	log.Info("configuration loaded",
		"path", configPath,
		"instrument", cfg.Instrument.Name,
		"kind", cfg.Instrument.Kind,
	)

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	log.Info("store ready", "dir", st.Dir(), "timezone", st.Location().String())

	fc, err := modbus.ParseFunctionCode(cfg.Instrument.FunctionCode)
	if err != nil {
		return fmt.Errorf("instrument function code: %w", err)
	}

	var connectOpts []modbus.Option
	if cfg.Instrument.TraceFrames {
		connectOpts = append(connectOpts, modbus.WithFrameLogger(log.StdLogger()))
	}
	client, err := modbus.Connect(modbus.Config{
		Port:         cfg.Instrument.Port,
		SlaveAddress: cfg.Instrument.SlaveAddress,
		BaudRate:     cfg.Instrument.BaudRate,
		DataBits:     cfg.Instrument.DataBits,
		Parity:       cfg.Instrument.Parity,
		StopBits:     cfg.Instrument.StopBits,
		Timeout:      cfg.Instrument.Timeout,
		IdleTimeout:  cfg.Instrument.IdleTimeout,
	}, connectOpts...)
	if err != nil {
		log.Error("serial connection failed", "error_kind", string(modbus.KindOf(err)), "error", err)
		return fmt.Errorf("connecting to instrument: %w", err)
	}
	defer func() {
		log.Info("closing serial port", "port", cfg.Instrument.Port)
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing serial port", "error", closeErr)
		}
	}()
	log.Info("serial port open",
		"port", cfg.Instrument.Port,
		"slave_address", cfg.Instrument.SlaveAddress,
		"baud_rate", cfg.Instrument.BaudRate,
	)

	var observers []poller.Observer

	var jnl *journal.Journal
	if cfg.Database.Enabled {
		db, openErr := openJournalDB(ctx, cfg)
		if openErr != nil {
			return openErr
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if checkErr := checkSink(ctx, "database", db); checkErr != nil {
			return checkErr
		}

		jnl = journal.New(db.DB, "", journal.WithLogger(log))
		observers = append(observers, jnl)
		log.Info("cycle journal enabled", "path", db.Path(), "run_id", jnl.RunID())
	}

	if cfg.MQTT.Enabled {
		mqttClient, connErr := mqtt.Connect(cfg.MQTT)
		if connErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", connErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		if checkErr := checkSink(ctx, "mqtt", mqttClient); checkErr != nil {
			return checkErr
		}
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() { log.Info("MQTT connected") })

		mqttMirror, mirrorErr := mirror.NewMQTT(mirror.MQTTOptions{
			Publisher:          mqttClient,
			Catalog:            catalog,
			QoS:                byte(cfg.MQTT.QoS), // #nosec G115 -- validated 0..2
			AvailabilityWindow: cfg.MQTT.AvailabilityWindow,
			Logger:             log,
		})
		if mirrorErr != nil {
			return fmt.Errorf("creating MQTT mirror: %w", mirrorErr)
		}
		if startErr := mqttMirror.Start(); startErr != nil {
			return fmt.Errorf("starting MQTT mirror: %w", startErr)
		}
		defer mqttMirror.Stop()

		observers = append(observers, mqttMirror)
		log.Info("MQTT mirror enabled",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"topic", mqtt.Topics{}.Reading(cfg.Instrument.Name),
		)
	} else {
		log.Info("MQTT mirror disabled")
	}

	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(cfg.InfluxDB)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		if checkErr := checkSink(ctx, "influxdb", influxClient); checkErr != nil {
			return checkErr
		}
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error_kind", "mirror_write", "error", err)
		})

		influxMirror, mirrorErr := mirror.NewInflux(influxClient, catalog)
		if mirrorErr != nil {
			return fmt.Errorf("creating InfluxDB mirror: %w", mirrorErr)
		}
		observers = append(observers, influxMirror)
		log.Info("InfluxDB mirror enabled", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB mirror disabled")
	}

	p, err := poller.New(poller.Options{
		Instrument:   cfg.Instrument.Name,
		Interval:     cfg.Instrument.Interval,
		StartAddress: cfg.Instrument.StartAddress,
		Count:        cfg.Instrument.Count,
		FunctionCode: fc,
		Reader:       client,
		Store:        st,
		Observers:    observers,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("creating poller: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.Run(gctx)
	})
	if jnl != nil {
		retention := time.Duration(cfg.Database.RetentionDays) * 24 * time.Hour
		g.Go(func() error {
			pruneJournal(gctx, jnl, retention, log.With("component", "journal"))
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, finishing current cycle")
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("poller: %w", err)
	}

	stats := p.Stats()
	log.Info("solarlog stopped",
		"cycles", stats.Cycles,
		"records", stats.Records,
		"store_failures", stats.StoreFailures,
	)
	return nil
}

// loadCatalog returns the configured catalog file, or the built-in one for the kind.
func loadCatalog(cfg *config.Config) (*registers.Catalog, error) {
	if cfg.Catalog.Path != "" {
		c, err := registers.Load(cfg.Catalog.Path)
		if err != nil {
			return nil, fmt.Errorf("loading register catalog: %w", err)
		}
		return c, nil
	}

	c, err := registers.ForKind(cfg.Instrument.Kind)
	if err != nil {
		return nil, fmt.Errorf("built-in register catalog: %w", err)
	}
	return c, nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("storage timezone: %w", err)
	}

	st, err := store.New(store.Config{
		Dir:      cfg.Storage.Dir,
		Prefix:   cfg.Storage.Prefix,
		Location: loc,
	})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return st, nil
}

// healthChecker is a sink that can report whether it is usable.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// checkSink runs a sink's health check once, bounded by sinkCheckTimeout.
// A sink that is enabled but unusable at startup stops the run.
func checkSink(ctx context.Context, name string, hc healthChecker) error {
	checkCtx, cancel := context.WithTimeout(ctx, sinkCheckTimeout)
	defer cancel()

	if err := hc.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("%s health check: %w", name, err)
	}
	return nil
}

// openJournalDB opens the SQLite journal and applies migrations.
func openJournalDB(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// pruneJournal drops journal entries older than retention now and then
// every pruneInterval until ctx is done.
func pruneJournal(ctx context.Context, j *journal.Journal, retention time.Duration, log *logging.Logger) {
	if retention <= 0 {
		return
	}

	prune := func() {
		deleted, err := j.Prune(ctx, retention)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("journal prune failed", "error", err)
			}
			return
		}
		if deleted > 0 {
			log.Info("journal pruned", "deleted", deleted, "retention", retention)
		}
	}

	prune()

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
