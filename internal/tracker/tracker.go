// Package tracker keeps the per-source attribute state used to report only
// what changed between polling cycles.
//
// Each cycle runs merge, prune, diff and reset as one step under the
// tracker's lock:
//
//  1. current values of every observed instance are merged in by attribute
//  2. instances absent from the cycle are dropped
//  3. attributes no longer tracked by their class are dropped
//  4. monitored attributes whose current value differs from the previous
//     one are emitted, together with the identity-only values
//  5. previous takes the current value and current is cleared
//
// An instance whose only candidates are identity-only values emits nothing.
package tracker

import (
	"sort"
	"sync"

	"cmdbsync/internal/domain"
)

// Observation is one resolved instance seen in the current cycle
type Observation struct {
	UniqueID   string
	Class      string
	Properties domain.Properties
}

// TrackedSet lists the tracked attributes of each class
type TrackedSet map[string][]domain.AttributeDef

type entry struct {
	class string
	attrs map[string]*domain.AttributeState
}

// Tracker holds the AttributeState map of one monitored source
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty tracker
func New() *Tracker {
	return &Tracker{entries: make(map[string]*entry)}
}

// Apply runs one cycle and returns the deltas sorted by unique ID. Duplicate
// unique IDs in obs are ignored after the first occurrence.
func (t *Tracker) Apply(obs []Observation, tracked TrackedSet) []domain.Delta {
	t.mu.Lock()
	defer t.mu.Unlock()

	// 1. merge
	seen := make(map[string]bool, len(obs))
	for _, o := range obs {
		if o.UniqueID == "" || seen[o.UniqueID] {
			continue
		}
		seen[o.UniqueID] = true

		e, ok := t.entries[o.UniqueID]
		if !ok || e.class != o.Class {
			e = &entry{class: o.Class, attrs: make(map[string]*domain.AttributeState)}
			t.entries[o.UniqueID] = e
		}
		for _, def := range tracked[o.Class] {
			st, ok := e.attrs[def.Name]
			if !ok {
				st = &domain.AttributeState{}
				e.attrs[def.Name] = st
			}
			st.Monitored = def.Monitored
			st.ClassField = def.ClassField
			st.Current = o.Properties.Value(def.Name)
		}
	}

	// 2. prune absent instances
	for id := range t.entries {
		if !seen[id] {
			delete(t.entries, id)
		}
	}

	// 3. prune attributes no longer tracked
	for id, e := range t.entries {
		names := make(map[string]bool)
		for _, def := range tracked[e.class] {
			names[def.Name] = true
		}
		for name := range e.attrs {
			if !names[name] {
				delete(e.attrs, name)
			}
		}
		if len(e.attrs) == 0 {
			delete(t.entries, id)
		}
	}

	// 4-6. diff, reset, suppress
	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var deltas []domain.Delta
	for _, id := range ids {
		e := t.entries[id]
		names := make([]string, 0, len(e.attrs))
		for name := range e.attrs {
			names = append(names, name)
		}
		sort.Strings(names)

		d := domain.Delta{UniqueID: id, Class: e.class}
		for _, name := range names {
			st := e.attrs[name]
			update := domain.AttributeUpdate{
				Name:       name,
				Value:      st.Current,
				Monitored:  st.Monitored,
				ClassField: st.ClassField,
			}
			switch {
			case st.Changed():
				d.Changes = append(d.Changes, update)
			case !st.Monitored:
				d.Identity = append(d.Identity, update)
			}
			st.Rotate()
		}
		if len(d.Changes) > 0 {
			deltas = append(deltas, d)
		}
	}
	return deltas
}

// Len returns the number of tracked instances
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Record is one persisted attribute state
type Record struct {
	UniqueID  string `json:"unique_id"`
	Class     string `json:"class"`
	Attribute string `json:"attribute"`
	domain.AttributeState
}

// Snapshot returns the tracker state sorted by unique ID and attribute
func (t *Tracker) Snapshot() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	var records []Record
	for id, e := range t.entries {
		for name, st := range e.attrs {
			records = append(records, Record{
				UniqueID:       id,
				Class:          e.class,
				Attribute:      name,
				AttributeState: *st,
			})
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].UniqueID != records[j].UniqueID {
			return records[i].UniqueID < records[j].UniqueID
		}
		return records[i].Attribute < records[j].Attribute
	})
	return records
}

// Restore replaces the tracker state with records, typically from a snapshot
// taken before a restart
func (t *Tracker) Restore(records []Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = make(map[string]*entry)
	for _, r := range records {
		if r.UniqueID == "" {
			continue
		}
		e, ok := t.entries[r.UniqueID]
		if !ok {
			e = &entry{class: r.Class, attrs: make(map[string]*domain.AttributeState)}
			t.entries[r.UniqueID] = e
		}
		st := r.AttributeState
		e.attrs[r.Attribute] = &st
	}
}
