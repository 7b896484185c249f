package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/solarlog/internal/infrastructure/logging"
	"github.com/nerrad567/solarlog/internal/infrastructure/mqtt"
	"github.com/nerrad567/solarlog/internal/journal"
	"github.com/nerrad567/solarlog/internal/mirror"
	"github.com/nerrad567/solarlog/internal/store"
	"github.com/nerrad567/solarlog/internal/summary"
)

const (
	defaultSummaryDays  = 7
	defaultJournalLimit = 20
)

// newSummaryCmd prints today's snapshot and record counts for recent days.
func newSummaryCmd(configPath *string) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the live snapshot and recent partition sizes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(resolveConfigPath(*configPath))
			if err != nil {
				return err
			}
			catalog, err := loadCatalog(cfg)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			today, err := st.ReadToday()
			if err != nil {
				return fmt.Errorf("reading today's partition: %w", err)
			}
			snap, err := summary.Live(today, catalog)
			switch {
			case errors.Is(err, summary.ErrNoData):
				fmt.Fprintln(out, "No readings today.")
			case err != nil:
				return err
			default:
				printSnapshot(out, cfg.Instrument.Name, snap)
			}

			partitions, err := st.ReadRecent(days, time.Now().AddDate(0, 0, -days))
			if err != nil {
				return fmt.Errorf("reading recent partitions: %w", err)
			}
			printPartitions(out, partitions)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", defaultSummaryDays, "number of recent daily partitions to list")
	return cmd
}

func printSnapshot(w io.Writer, instrument string, s summary.Snapshot) {
	fmt.Fprintf(w, "%s at %s (%d records today)\n", instrument, s.Timestamp.Format(time.DateTime), s.Records)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, m := range []summary.Metric{
		s.OutputLoad, s.OutputCurrent, s.BatteryCapacity,
		s.BatteryVoltage, s.PVCurrent, s.PVVoltage,
	} {
		if !m.Available {
			fmt.Fprintf(tw, "  %s\t-\t\n", m.Name)
			continue
		}
		fmt.Fprintf(tw, "  %s\t%.1f\t%s\n", m.Name, m.Value, m.Unit)
	}
	fmt.Fprintf(tw, "  PV power\t%.0f\tW (%+d%% vs last %d)\n", s.PVPower, s.PVPowerDelta, summary.TrendWindow)
	tw.Flush() //nolint:errcheck // Console output
}

func printPartitions(w io.Writer, partitions []store.Partition) {
	if len(partitions) == 0 {
		fmt.Fprintln(w, "No recent partitions.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tRECORDS\tFIRST\tLAST")
	for _, p := range partitions {
		first, last := "-", "-"
		if n := len(p.Records); n > 0 {
			first = p.Records[0].Timestamp.Format(time.TimeOnly)
			last = p.Records[n-1].Timestamp.Format(time.TimeOnly)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", p.Date.Format(time.DateOnly), len(p.Records), first, last)
	}
	tw.Flush() //nolint:errcheck // Console output
}

// newWatchCmd subscribes to the readings published by running pollers.
func newWatchCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print readings published by a running poller over MQTT",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(resolveConfigPath(*configPath))
			if err != nil {
				return err
			}
			// Diagnostics go to stderr so stdout carries only readings.
			log := logging.NewWithWriter(cfg.Logging, version, cmd.ErrOrStderr())

			// A distinct client ID keeps the poller's session alive.
			mqttCfg := cfg.MQTT
			mqttCfg.Broker.ClientID += "-watch"

			client, err := mqtt.Connect(mqttCfg)
			if err != nil {
				return fmt.Errorf("connecting to MQTT: %w", err)
			}
			defer client.Close() //nolint:errcheck // Best effort on exit
			client.SetLogger(log)

			w := &lineWriter{w: cmd.OutOrStdout()}
			qos := byte(cfg.MQTT.QoS) // #nosec G115 -- validated 0..2

			if err := client.Subscribe(mqtt.Topics{}.AllReadings(), qos, w.reading); err != nil {
				return fmt.Errorf("subscribing to readings: %w", err)
			}
			if err := client.Subscribe(mqtt.Topics{}.AllStatuses(), qos, w.status); err != nil {
				return fmt.Errorf("subscribing to status: %w", err)
			}

			<-cmd.Context().Done()
			return nil
		},
	}
}

// lineWriter serialises output from concurrent MQTT handlers.
type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lineWriter) reading(_ string, payload []byte) error {
	p, err := mirror.DecodeReading(payload)
	if err != nil {
		return err
	}
	l.println(formatReading(p))
	return nil
}

func (l *lineWriter) status(topic string, payload []byte) error {
	l.println(fmt.Sprintf("%s status %s", mqtt.InstrumentFromTopic(topic), payload))
	return nil
}

func (l *lineWriter) println(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, line)
}

// formatReading renders a reading as "<time> <instrument> key=value ...",
// named metrics in key order, or raw values when there are none.
func formatReading(p mirror.ReadingPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", time.UnixMilli(p.Timestamp).Format(time.DateTime), p.Instrument)

	if len(p.Metrics) == 0 {
		for i, v := range p.Values {
			fmt.Fprintf(&b, " %d=%d", p.Start+i, v)
		}
		return b.String()
	}

	keys := make([]string, 0, len(p.Metrics))
	for k := range p.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m := p.Metrics[k]
		fmt.Fprintf(&b, " %s=%g%s", k, m.Value, m.Unit)
	}
	return b.String()
}

// newJournalCmd lists recent cycle outcomes from the SQLite journal.
func newJournalCmd(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List recent poll cycle outcomes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(resolveConfigPath(*configPath))
			if err != nil {
				return err
			}

			db, err := openJournalDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // Read-only use

			j := journal.New(db.DB, "")
			entries, err := j.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			counts, err := j.Outcomes(cmd.Context(), time.Now().Add(-24*time.Hour))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Last 24h: %d ok, %d read failed, %d store failed\n",
				counts[journal.OutcomeOK], counts[journal.OutcomeReadFailed], counts[journal.OutcomeStoreFailed])
			printEntries(out, entries)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", defaultJournalLimit, "number of entries to show")
	return cmd
}

func printEntries(w io.Writer, entries []journal.Entry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tINSTRUMENT\tOUTCOME\tKIND\tDURATION\tERROR")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.StartedAt.Format(time.DateTime), e.Instrument, e.Outcome, e.ErrorKind, e.Duration, e.Error)
	}
	tw.Flush() //nolint:errcheck // Console output
}
