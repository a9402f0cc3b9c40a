// Package domain defines the core types shared by the cmdbsync engine.
//
// The types describe how tabular rows exported by a monitored network element
// are turned into configuration items (CIs) for an external asset catalog.
//
// # Schema
//
// ClassSchema describes one CI class: the source tables and columns its
// attributes are read from, which attributes are monitored for change, which
// ones only feed identity, and the naming strategy that produces a stable
// unique ID for each instance.
//
// RelationshipRule declares how instances of two classes are linked, either by
// equality of attribute values or against a class instance's own identity.
//
// # Cycle Data
//
// RawRow is a fixed-width tuple read from one source table. PropertyRecord is a
// named, normalized attribute value. Instance binds a resolved unique ID to
// its properties for the duration of one polling cycle.
//
// # Change State
//
// AttributeState holds the current and previous value of a tracked attribute
// for one unique ID. It outlives a cycle and is owned by the change tracker of
// a single monitored source.
//
// # Design Principles
//
// - Schema values are immutable after load and safe for concurrent reads
// - No database or external dependencies
// - Sentinel values ("", "-1", "NA") always mean "no value"
package domain
