// Package identity computes the stable unique ID of a parsed instance.
//
// IDs are namespaced by the scope token of the monitored source:
//
//	ByPrimaryKey          S.K
//	ByPrimaryKeyAndLabel  S.K.L
//	ByLabel               S.L
//	ByLabelAndPrimaryKey  S.L.K
//	ByCustomFunction      class-specific
//
// A failed resolution is an empty ID with a reason, never an error.
package identity

import (
	"strings"

	"cmdbsync/internal/domain"
)

// Failure reasons
const (
	ReasonBlankScope      = "blank scope"
	ReasonBlankKey        = "blank primary key"
	ReasonMissingLabel    = "missing label"
	ReasonMissingResolver = "no custom resolver for class"
	ReasonUnknownStrategy = "unknown naming strategy"
)

// ResolverTable finds the custom identity function of a class
type ResolverTable interface {
	Resolver(class string) (domain.IdentityFunc, bool)
}

// Resolver applies naming strategies. It holds no state and is safe for concurrent use.
type Resolver struct {
	custom ResolverTable
}

// NewResolver creates a resolver backed by a custom function table. custom may be nil.
func NewResolver(custom ResolverTable) *Resolver {
	return &Resolver{custom: custom}
}

// Resolve computes the unique ID of one instance of schema
func (r *Resolver) Resolve(schema *domain.ClassSchema, key string, props domain.Properties, scope string) domain.Resolution {
	if strings.TrimSpace(scope) == "" {
		return domain.Unresolved(ReasonBlankScope)
	}

	label := props.Value(domain.AttrLabel)
	hasLabel := !domain.IsSentinel(label)
	hasKey := strings.TrimSpace(key) != ""

	switch schema.Naming {
	case domain.NamingByPrimaryKey:
		if !hasKey {
			return domain.Unresolved(ReasonBlankKey)
		}
		return domain.Resolution{ID: scope + "." + key}

	case domain.NamingByPrimaryKeyAndLabel:
		if !hasKey {
			return domain.Unresolved(ReasonBlankKey)
		}
		if !hasLabel {
			return domain.Unresolved(ReasonMissingLabel)
		}
		return domain.Resolution{ID: scope + "." + key + "." + label}

	case domain.NamingByLabel:
		if !hasLabel {
			return domain.Unresolved(ReasonMissingLabel)
		}
		return domain.Resolution{ID: scope + "." + label}

	case domain.NamingByLabelAndPrimaryKey:
		if !hasKey {
			return domain.Unresolved(ReasonBlankKey)
		}
		if !hasLabel {
			return domain.Unresolved(ReasonMissingLabel)
		}
		return domain.Resolution{ID: scope + "." + label + "." + key}

	case domain.NamingByCustomFunction:
		if r.custom == nil {
			return domain.Unresolved(ReasonMissingResolver)
		}
		fn, ok := r.custom.Resolver(schema.Name)
		if !ok {
			return domain.Unresolved(ReasonMissingResolver)
		}
		res := fn(props, scope)
		if strings.TrimSpace(res.ID) == "" {
			res.ID = ""
			if res.Reason == "" {
				res.Reason = "custom resolver returned no ID"
			}
		}
		return res
	}
	return domain.Unresolved(ReasonUnknownStrategy)
}
