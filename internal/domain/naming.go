package domain

// Resolution is the outcome of identity resolution for one instance.
// An empty ID means the instance cannot be named and must be discarded.
type Resolution struct {
	ID string `json:"id"`
	// Label is a corrected display label, set only when Corrected is true
	Label     string `json:"label,omitempty"`
	Corrected bool   `json:"corrected,omitempty"`
	// Reason explains an empty ID
	Reason string `json:"reason,omitempty"`
}

// Resolved reports whether a unique ID was produced
func (r Resolution) Resolved() bool {
	return r.ID != ""
}

// Unresolved builds a failed resolution
func Unresolved(reason string) Resolution {
	return Resolution{Reason: reason}
}

// IdentityFunc is a class-specific identity resolver used by NamingByCustomFunction
type IdentityFunc func(props Properties, scope string) Resolution

// PropertyProcessor derives relationship attributes from other properties of
// the same instance. It returns a new slice and never modifies its input.
type PropertyProcessor func(props Properties) Properties
