// Package adapter connects the sync engine to the outside world.
//
// # Row Sources
//
// A RowSource reads the tables exported by a monitored element. FileSource
// reads YAML table dumps from a directory, SSHSource runs an export command
// on the element over SSH. Neither returns errors: an unreachable element
// yields no rows and a logged warning.
//
// # Push Sinks
//
// A PushSink delivers the batch produced by one cycle. LogSink writes it to
// the log; HTTPSink posts it as JSON to the catalog import endpoint, rate
// limited and retried on server errors.
//
// # Reachability
//
// NmapProbe runs a ping or port scan against the element host before each
// cycle. An element that does not answer is cycled with empty tables.
//
// # Source Registry
//
// Registry owns the polling loop of every registered source. It restores
// persisted attribute state before the first cycle, runs the engine, saves
// the new state, journals the batch and pushes it. TriggerSyncAll runs all
// sources in parallel with a bounded number of concurrent cycles.
package adapter
