package relation

import (
	"sort"

	"cmdbsync/internal/domain"
)

// EdgeSet is the set of edges a source produced in its last cycle
type EdgeSet map[domain.RelationshipEdge]struct{}

// NewEdgeSet builds a set from edges
func NewEdgeSet(edges []domain.RelationshipEdge) EdgeSet {
	set := make(EdgeSet, len(edges))
	for _, e := range edges {
		set[e] = struct{}{}
	}
	return set
}

// Diff compares the current edges against the previous set. Both results
// are sorted the way Build sorts.
func (s EdgeSet) Diff(current []domain.RelationshipEdge) (added, removed []domain.RelationshipEdge) {
	seen := make(map[domain.RelationshipEdge]struct{}, len(current))
	for _, e := range current {
		seen[e] = struct{}{}
		if _, ok := s[e]; !ok {
			added = append(added, e)
		}
	}
	for e := range s {
		if _, ok := seen[e]; !ok {
			removed = append(removed, e)
		}
	}
	sortEdges(added)
	sortEdges(removed)
	return added, removed
}

func sortEdges(edges []domain.RelationshipEdge) {
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.ParentID != b.ParentID {
			return a.ParentID < b.ParentID
		}
		if a.ChildID != b.ChildID {
			return a.ChildID < b.ChildID
		}
		return a.Label < b.Label
	})
}
