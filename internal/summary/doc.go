// Package summary derives operator-facing figures from stored records.
//
// Live reduces the most recent records of a partition to a Snapshot of the
// inverter's headline metrics (load, battery, PV input power and its trend).
// Series extracts one register as scaled time/value points for plotting.
// Neither function touches the store or the serial line; callers pass the
// records they already read.
package summary
