package summary

import (
	"math"
	"time"

	"github.com/nerrad567/solarlog/internal/reading"
	"github.com/nerrad567/solarlog/internal/registers"
)

// TrendWindow is the number of trailing records averaged for the PV power trend.
const TrendWindow = 20

// noBaselineDelta is reported when the trailing mean power is zero.
const noBaselineDelta = 100

// Metric is one scaled register value.
type Metric struct {
	Name      string
	Unit      string
	Value     float64
	Available bool
}

// Snapshot holds the headline figures of the latest record.
type Snapshot struct {
	// Timestamp is the time of the latest record.
	Timestamp time.Time

	// Records is the number of records the snapshot was computed from.
	Records int

	OutputLoad      Metric
	OutputCurrent   Metric
	BatteryCapacity Metric
	BatteryVoltage  Metric
	PVCurrent       Metric
	PVVoltage       Metric

	// PVPower is PV current times PV voltage, rounded to whole watts.
	PVPower float64

	// PVPowerDelta is the percentage change of PVPower against the mean PV
	// power of the last TrendWindow records, or 100 when that mean is zero.
	PVPowerDelta int
}

// Live computes the headline snapshot from a partition's records.
//
// Parameters:
//   - records: Records in append order; the last one is "now"
//   - catalog: Scaling for the inverter registers (nil means raw values)
//
// Returns:
//   - Snapshot: Figures of the latest record plus the PV power trend
//   - error: ErrNoData if records is empty
func Live(records []reading.Record, catalog *registers.Catalog) (Snapshot, error) {
	if len(records) == 0 {
		return Snapshot{}, ErrNoData
	}

	latest := records[len(records)-1]
	s := Snapshot{
		Timestamp:       latest.Timestamp,
		Records:         len(records),
		OutputLoad:      metric(latest, registers.RegOutputLoadRate, catalog),
		OutputCurrent:   metric(latest, registers.RegOutputCurrent, catalog),
		BatteryCapacity: metric(latest, registers.RegBatteryCapacityRate, catalog),
		BatteryVoltage:  metric(latest, registers.RegBatteryVoltage, catalog),
		PVCurrent:       metric(latest, registers.RegControllerCharging, catalog),
		PVVoltage:       metric(latest, registers.RegPVInputVoltage, catalog),
	}

	s.PVPower = math.Round(pvPower(latest, catalog))

	window := records
	if len(window) > TrendWindow {
		window = window[len(window)-TrendWindow:]
	}
	var sum float64
	for _, rec := range window {
		sum += pvPower(rec, catalog)
	}
	mean := sum / float64(len(window))

	s.PVPowerDelta = noBaselineDelta
	if mean != 0 {
		s.PVPowerDelta = int(math.Round((s.PVPower - mean) / mean * 100))
	}

	return s, nil
}

// pvPower returns PV current times PV voltage for one record, each rounded
// to one decimal as displayed.
func pvPower(rec reading.Record, catalog *registers.Catalog) float64 {
	current := metric(rec, registers.RegControllerCharging, catalog)
	voltage := metric(rec, registers.RegPVInputVoltage, catalog)
	if !current.Available || !voltage.Available {
		return 0
	}
	return current.Value * voltage.Value
}

// metric scales register index of rec through catalog.
func metric(rec reading.Record, index int, catalog *registers.Catalog) Metric {
	m := Metric{}
	if d, ok := catalog.Describe(index); ok {
		m.Name = d.Name
		m.Unit = d.Unit
	}

	raw, ok := rec.Value(index)
	if !ok {
		return m
	}

	m.Available = true
	m.Value = scale(raw, index, catalog)
	return m
}

// scale converts raw through the catalog, rounded to one decimal.
// Undescribed registers pass through unchanged.
func scale(raw uint16, index int, catalog *registers.Catalog) float64 {
	v, ok := catalog.Physical(index, raw)
	if !ok {
		return float64(raw)
	}
	return math.Round(v*10) / 10
}

// Point is one sample of a register series.
type Point struct {
	Time  time.Time
	Value float64
}

// Series extracts register index from records as scaled points, in record
// order. Records too short to contain index are skipped.
func Series(records []reading.Record, index int, catalog *registers.Catalog) []Point {
	points := make([]Point, 0, len(records))
	for _, rec := range records {
		raw, ok := rec.Value(index)
		if !ok {
			continue
		}
		v, described := catalog.Physical(index, raw)
		if !described {
			v = float64(raw)
		}
		points = append(points, Point{Time: rec.Timestamp, Value: v})
	}
	return points
}
