// Package mirror copies poll cycles to external systems.
//
// Both types implement poller.Observer:
//
//   - MQTT publishes every record as retained JSON on
//     solarlog/<instrument>/reading and tracks availability on
//     solarlog/<instrument>/status. Publishing happens on a worker
//     goroutine so a slow broker never delays the next poll.
//   - Influx writes one modbus_registers point per record plus a
//     solar_metrics point with catalog-scaled values.
//
// Failed reads are never mirrored as readings. The CSV store stays the
// system of record; a mirror failure is logged and otherwise ignored.
package mirror
