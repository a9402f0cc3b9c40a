package domain

// Delta is the set of attribute changes reported for one CI in one cycle
type Delta struct {
	UniqueID    string `json:"unique_id"`
	Class       string `json:"class"`
	TargetTable string `json:"target_table"`
	// Changes holds monitored attributes whose value changed
	Changes []AttributeUpdate `json:"changes"`
	// Identity holds identity-only attributes the catalog needs to rebuild the CI name
	Identity []AttributeUpdate `json:"identity,omitempty"`
}

// Change returns the changed value of a monitored attribute
func (d Delta) Change(name string) (string, bool) {
	for _, u := range d.Changes {
		if u.Name == name {
			return u.Value, true
		}
	}
	return "", false
}

// Batch is everything one source produced in one cycle
type Batch struct {
	Source string `json:"source"`
	RunID  string `json:"run_id"`
	// Fingerprint identifies this batch and is sent as its idempotency key.
	// A redelivered batch keeps it; two cycles never share it.
	Fingerprint string  `json:"fingerprint"`
	Deltas      []Delta `json:"deltas"`
	// Edges holds relationships that appeared since the previous cycle
	Edges []RelationshipEdge `json:"edges"`
	// RemovedEdges holds relationships that no longer hold
	RemovedEdges []RelationshipEdge `json:"removed_edges,omitempty"`
}

// Empty reports whether the batch carries no updates
func (b *Batch) Empty() bool {
	return len(b.Deltas) == 0 && len(b.Edges) == 0 && len(b.RemovedEdges) == 0
}
