// Package reading defines the Record produced by one successful poll cycle.
//
// A Record is the raw register array returned by the instrument plus the
// wall-clock time the read completed. Records are immutable: the register
// slice is copied on the way in and on the way out, so a Record can be
// handed to the store and to observers without coordination.
package reading

import "time"

// Record is one successful read of an instrument.
//
// A Record covers the contiguous register range starting at Start().
// Value looks registers up by their device index; Values returns them in
// read order. No scaling is applied; scaling is a display concern handled
// by the registers package.
type Record struct {
	// Timestamp is the wall-clock time at read completion.
	Timestamp time.Time

	start  int
	values []uint16
}

// New creates a Record for a read starting at register 0.
// The values slice is copied.
func New(values []uint16, timestamp time.Time) Record {
	return NewAt(0, values, timestamp)
}

// NewAt creates a Record whose first value is register start.
// The values slice is copied.
func NewAt(start int, values []uint16, timestamp time.Time) Record {
	v := make([]uint16, len(values))
	copy(v, values)
	return Record{Timestamp: timestamp, start: start, values: v}
}

// Start returns the register index of the first value.
func (r Record) Start() int {
	return r.start
}

// Len returns the number of registers in the record.
func (r Record) Len() int {
	return len(r.values)
}

// Value returns the raw value of register index.
// The second return value is false when the record does not cover index.
func (r Record) Value(index int) (uint16, bool) {
	i := index - r.start
	if i < 0 || i >= len(r.values) {
		return 0, false
	}
	return r.values[i], true
}

// Values returns a copy of the raw register values in read order.
func (r Record) Values() []uint16 {
	v := make([]uint16, len(r.values))
	copy(v, r.values)
	return v
}

// UnixMilli returns the timestamp as milliseconds since the Unix epoch.
func (r Record) UnixMilli() int64 {
	return r.Timestamp.UnixMilli()
}
