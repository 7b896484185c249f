package mirror

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/solarlog/internal/reading"
	"github.com/nerrad567/solarlog/internal/registers"
)

// Instrument availability values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Metric is one catalog-scaled register value.
type Metric struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// ReadingPayload is the JSON document published for each record.
type ReadingPayload struct {
	Instrument string            `json:"instrument"`
	Timestamp  int64             `json:"timestamp"`
	Time       string            `json:"time"`
	Start      int               `json:"start"`
	Values     []uint16          `json:"values"`
	Metrics    map[string]Metric `json:"metrics,omitempty"`
}

// StatusPayload is the JSON document published on an instrument's status topic.
type StatusPayload struct {
	Instrument  string `json:"instrument"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
	LastSuccess string `json:"last_success,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// NewReadingPayload builds the payload for rec. Registers described by
// catalog are added to Metrics under their MetricKey.
func NewReadingPayload(instrument string, rec reading.Record, catalog *registers.Catalog) ReadingPayload {
	p := ReadingPayload{
		Instrument: instrument,
		Timestamp:  rec.UnixMilli(),
		Time:       rec.Timestamp.UTC().Format(time.RFC3339Nano),
		Start:      rec.Start(),
		Values:     rec.Values(),
	}

	for _, d := range catalog.Descriptors() {
		raw, ok := rec.Value(d.Index)
		if !ok {
			continue
		}
		if p.Metrics == nil {
			p.Metrics = make(map[string]Metric)
		}
		p.Metrics[MetricKey(d.Name)] = Metric{Index: d.Index, Value: d.Scale.Apply(raw), Unit: d.Unit}
	}
	return p
}

// DecodeReading parses a payload published by the MQTT mirror.
func DecodeReading(data []byte) (ReadingPayload, error) {
	var p ReadingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return ReadingPayload{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if p.Instrument == "" {
		return ReadingPayload{}, fmt.Errorf("%w: missing instrument", ErrInvalidPayload)
	}
	return p, nil
}

// ScaledMetrics returns the physical value of every described register in
// rec, keyed by MetricKey.
func ScaledMetrics(rec reading.Record, catalog *registers.Catalog) map[string]float64 {
	out := make(map[string]float64, catalog.Len())
	for _, d := range catalog.Descriptors() {
		if raw, ok := rec.Value(d.Index); ok {
			out[MetricKey(d.Name)] = d.Scale.Apply(raw)
		}
	}
	return out
}

// MetricKey turns a register name into a snake_case key:
// "Controller internal (aux)" becomes "controller_internal_aux".
func MetricKey(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}
