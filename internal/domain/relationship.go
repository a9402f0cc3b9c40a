package domain

import "fmt"

// JoinLink correlates one attribute of a child instance with one attribute of
// a parent instance. An empty name stands for that instance's own unique ID.
type JoinLink struct {
	ChildAttr  string `json:"child" yaml:"child"`
	ParentAttr string `json:"parent" yaml:"parent"`
}

// ExternalLink mediates a join through a third class: the child value is
// matched against MatchAttr of a Class instance, whose ValueAttr is then
// compared with the parent side. An empty ValueAttr yields the identity of
// the matched instance.
type ExternalLink struct {
	Class     string `json:"class" yaml:"class"`
	MatchAttr string `json:"match" yaml:"match"`
	ValueAttr string `json:"value" yaml:"value"`
}

// RelationshipRule declares how instances of two classes are linked
type RelationshipRule struct {
	ParentClass string        `json:"parent_class" yaml:"parent_class"`
	ChildClass  string        `json:"child_class" yaml:"child_class"`
	Links       []JoinLink    `json:"links" yaml:"links"`
	Via         *ExternalLink `json:"via,omitempty" yaml:"via,omitempty"`
	// Label is the catalog relationship type, e.g. "Managed by::Manages"
	Label string `json:"label" yaml:"label"`
	// MappedFromParent selects which side's stored property is authoritative
	MappedFromParent bool `json:"mapped_from_parent,omitempty" yaml:"mapped_from_parent,omitempty"`
}

// Name returns a readable identifier for the rule
func (r RelationshipRule) Name() string {
	return fmt.Sprintf("%s/%s/%s", r.ChildClass, r.Label, r.ParentClass)
}

// SelfReferential reports whether both sides are the same class
func (r RelationshipRule) SelfReferential() bool {
	return r.ParentClass == r.ChildClass
}

// Validate checks that the rule can correlate anything
func (r RelationshipRule) Validate() error {
	if r.ParentClass == "" || r.ChildClass == "" {
		return fmt.Errorf("relationship %q: parent and child class are required", r.Name())
	}
	if r.Label == "" {
		return fmt.Errorf("relationship %q: label is required", r.Name())
	}
	if len(r.Links) == 0 {
		return fmt.Errorf("relationship %q: at least one join link is required", r.Name())
	}
	for _, l := range r.Links {
		if l.ChildAttr == "" && l.ParentAttr == "" {
			return fmt.Errorf("relationship %q: a join link needs at least one attribute", r.Name())
		}
	}
	if r.Via != nil {
		if r.Via.Class == "" || r.Via.MatchAttr == "" {
			return fmt.Errorf("relationship %q: external link needs a class and a match attribute", r.Name())
		}
		for _, l := range r.Links {
			if l.ChildAttr == "" {
				return fmt.Errorf("relationship %q: external link cannot translate the child identity", r.Name())
			}
		}
	}
	return nil
}

// RelationshipEdge links two resolved instances
type RelationshipEdge struct {
	ParentID         string `json:"parent"`
	ChildID          string `json:"child"`
	Label            string `json:"label"`
	MappedFromParent bool   `json:"mapped_from_parent,omitempty"`
}
