// Package poller drives the acquisition loop for one Modbus instrument.
//
// A Poller reads a fixed block of registers at a fixed cadence, turns each
// successful read into a reading.Record and appends it to a store. Failed
// reads are logged with their classified kind and skipped: there is no
// retry and no backoff, the next tick simply tries again.
//
// # Lifecycle
//
// Run blocks until its context is cancelled. The first cycle runs
// immediately, subsequent cycles run on ticker fires. Cancellation is
// observed between cycles only, so a started transaction and its store
// write always complete.
//
// Start and Stop wrap Run in a goroutine for callers that manage several
// components:
//
//	p, err := poller.New(poller.Options{...})
//	if err := p.Start(ctx); err != nil { ... }
//	defer p.Stop()
//
// # Observers
//
// Every cycle outcome, successful or not, is delivered to each Observer
// after the store write. Observers are best-effort consumers (MQTT, InfluxDB,
// the cycle journal) and cannot affect what is persisted.
package poller
