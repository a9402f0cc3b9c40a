// Package repository defines persistence for sync state.
//
// The engine keeps attribute state in memory. Without persistence a
// restart would make the first cycle report every monitored attribute
// again. A Repository stores the state of each source after every cycle
// and restores it before the first cycle after a restart.
//
// # Delta Journal
//
// Every non-empty batch is journaled with its run ID and fingerprint so
// operators can see what was pushed and replay it by hand.
//
// # SQLite Implementation
//
// The sqlite subpackage implements Repository on modernc.org/sqlite (pure
// Go, no cgo). The schema is created on open; tests use :memory:.
package repository
