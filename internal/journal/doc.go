// Package journal keeps an SQLite log of every polling cycle.
//
// The CSV partitions hold only successful reads. The journal records each
// cycle's outcome (ok, read failed, store failed), its duration and the
// classified error, so link quality can be reviewed after the fact:
//
//	SELECT error_kind, COUNT(*) FROM poll_cycles
//	WHERE started_at > ? GROUP BY error_kind;
//
// Every process run gets a fresh UUID run_id. The schema lives in the
// top-level migrations package and is applied with database.DB.Migrate.
package journal
