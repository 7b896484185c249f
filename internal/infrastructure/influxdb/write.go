package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	// MeasurementRegisters holds raw register values, one field per index.
	MeasurementRegisters = "modbus_registers"

	// MeasurementMetrics holds catalog-scaled physical values.
	MeasurementMetrics = "solar_metrics"

	// TagInstrument identifies the polled device.
	TagInstrument = "instrument"
)

// RegisterPoint builds the point for one record: measurement
// modbus_registers, tag instrument, one integer field r<index> per register.
//
// Parameters:
//   - instrument: Instrument name (e.g. "inverter")
//   - start: Register index of values[0]
//   - values: Raw register values in index order
//   - at: Record timestamp
//
// Returns:
//   - *write.Point: Point ready for the write API
func RegisterPoint(instrument string, start int, values []uint16, at time.Time) *write.Point {
	fields := make(map[string]interface{}, len(values))
	for i, v := range values {
		fields["r"+strconv.Itoa(start+i)] = int64(v)
	}

	return write.NewPoint(
		MeasurementRegisters,
		map[string]string{TagInstrument: instrument},
		fields,
		at,
	)
}

// WriteRegisters queues the raw registers of one record.
//
// The write is non-blocking; failures are reported through SetOnError.
func (c *Client) WriteRegisters(instrument string, start int, values []uint16, at time.Time) {
	if !c.IsConnected() || len(values) == 0 {
		return
	}
	c.writeAPI.WritePoint(RegisterPoint(instrument, start, values, at))
}

// WriteMetrics queues named physical values (e.g. "pv_voltage": 52.3).
func (c *Client) WriteMetrics(instrument string, metrics map[string]float64, at time.Time) {
	if !c.IsConnected() || len(metrics) == 0 {
		return
	}

	fields := make(map[string]interface{}, len(metrics))
	for name, v := range metrics {
		fields[name] = v
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementMetrics,
		map[string]string{TagInstrument: instrument},
		fields,
		at,
	))
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
