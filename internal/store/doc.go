// Package store persists poll records in date-partitioned CSV files.
//
// Each calendar date (in the store's location, process-local by default)
// has one partition file named <prefix><YYYY-MM-DD>.csv. Files are
// append-only: the header is written once when the file is created, and
// every Append adds exactly one row and syncs it to disk before returning.
//
// # File Format
//
//	0,1,2,...,26,timestamp
//	2301,500,2299,500,3,0,18,512,...,1718000000123
//
// Columns are the raw register values keyed by register position, followed
// by the completion time in milliseconds since the Unix epoch. Rows written
// by older tooling with fractional epoch seconds are read back as well.
//
// # Partition Selection
//
// Append files a record under the date of the store clock at call time, not
// the record's own timestamp. A record captured just before midnight and
// appended after it lands in the next day's partition.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Appends are serialised.
package store
