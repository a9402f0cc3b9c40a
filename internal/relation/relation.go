// Package relation derives labeled edges between the instances resolved in
// one cycle.
package relation

import (
	"strings"

	"cmdbsync/internal/domain"
)

// ValueSeparator separates the values of a fanned-out attribute
const ValueSeparator = ";"

// Build joins instances according to rules. Joins that cannot be made
// (sentinel values, missing instances) are skipped. Edges are unique and
// sorted by parent, child and label.
func Build(scope string, rules []domain.RelationshipRule, instances []domain.Instance) []domain.RelationshipEdge {
	byClass := make(map[string][]*domain.Instance)
	for i := range instances {
		inst := &instances[i]
		if inst.UniqueID == "" {
			continue
		}
		byClass[inst.Class] = append(byClass[inst.Class], inst)
	}

	seen := make(map[domain.RelationshipEdge]bool)
	var edges []domain.RelationshipEdge
	for _, rule := range rules {
		for _, e := range buildRule(scope, rule, byClass) {
			if !seen[e] {
				seen[e] = true
				edges = append(edges, e)
			}
		}
	}

	sortEdges(edges)
	return edges
}

// side describes how one end of a join link is read
type side struct {
	attr     string
	identity bool
}

func buildRule(scope string, rule domain.RelationshipRule, byClass map[string][]*domain.Instance) []domain.RelationshipEdge {
	if len(rule.Links) == 0 {
		return nil
	}
	parents := byClass[rule.ParentClass]
	children := byClass[rule.ChildClass]
	if len(parents) == 0 || len(children) == 0 {
		return nil
	}

	var via map[string][]*domain.Instance
	if rule.Via != nil {
		via = indexByAttr(byClass[rule.Via.Class], rule.Via.MatchAttr)
	}

	childSides := make([]side, len(rule.Links))
	parentSides := make([]side, len(rule.Links))
	for i, l := range rule.Links {
		childSides[i] = side{attr: l.ChildAttr, identity: l.ChildAttr == ""}
		if rule.Via != nil {
			childSides[i].identity = rule.Via.ValueAttr == ""
		}
		parentSides[i] = side{attr: l.ParentAttr, identity: l.ParentAttr == ""}
	}

	// parent values per link, aligned with the child side
	parentVals := make([][]map[string]bool, len(parents))
	first := make(map[string][]int)
	for pi, p := range parents {
		parentVals[pi] = make([]map[string]bool, len(rule.Links))
		for li := range rule.Links {
			vals := align(read(p, parentSides[li].attr), parentSides[li].identity, childSides[li].identity, scope)
			set := make(map[string]bool, len(vals))
			for _, v := range vals {
				set[v] = true
			}
			parentVals[pi][li] = set
			if li == 0 {
				for v := range set {
					first[v] = append(first[v], pi)
				}
			}
		}
	}

	var edges []domain.RelationshipEdge
	for _, c := range children {
		childVals := make([][]string, len(rule.Links))
		for li, l := range rule.Links {
			raw := read(c, l.ChildAttr)
			if rule.Via != nil {
				raw = translate(raw, via, rule.Via.ValueAttr)
			}
			childVals[li] = align(raw, childSides[li].identity, parentSides[li].identity, scope)
		}

		candidates := make(map[int]bool)
		for _, v := range childVals[0] {
			for _, pi := range first[v] {
				candidates[pi] = true
			}
		}

		for pi := range candidates {
			p := parents[pi]
			if p.UniqueID == c.UniqueID {
				continue
			}
			if !matchesAll(childVals, parentVals[pi]) {
				continue
			}
			edges = append(edges, domain.RelationshipEdge{
				ParentID:         p.UniqueID,
				ChildID:          c.UniqueID,
				Label:            rule.Label,
				MappedFromParent: rule.MappedFromParent,
			})
		}
	}
	return edges
}

func matchesAll(childVals [][]string, parentVals []map[string]bool) bool {
	for li := range childVals {
		found := false
		for _, v := range childVals[li] {
			if parentVals[li][v] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// read returns the join values of an instance. An empty attribute name reads
// the instance identity.
func read(inst *domain.Instance, attr string) []string {
	if attr == "" {
		return []string{inst.UniqueID}
	}
	return SplitValues(inst.Properties.Value(attr))
}

// SplitValues splits a fanned-out value and drops sentinels
func SplitValues(value string) []string {
	var out []string
	for _, v := range strings.Split(value, ValueSeparator) {
		v = strings.TrimSpace(v)
		if !domain.IsSentinel(v) {
			out = append(out, v)
		}
	}
	return out
}

// align qualifies plain attribute values with the scope when they are
// compared against an identity
func align(vals []string, identity, otherIdentity bool, scope string) []string {
	if identity || !otherIdentity {
		return vals
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = scope + "." + v
	}
	return out
}

func indexByAttr(instances []*domain.Instance, attr string) map[string][]*domain.Instance {
	idx := make(map[string][]*domain.Instance)
	for _, inst := range instances {
		for _, v := range read(inst, attr) {
			idx[v] = append(idx[v], inst)
		}
	}
	return idx
}

// translate maps child values through the external class
func translate(vals []string, via map[string][]*domain.Instance, valueAttr string) []string {
	var out []string
	for _, v := range vals {
		for _, inst := range via[v] {
			out = append(out, read(inst, valueAttr)...)
		}
	}
	return out
}
