package domain

// AttributeState is the persisted change state of one tracked attribute of one CI
type AttributeState struct {
	Current    string `json:"current"`
	Previous   string `json:"previous"`
	Monitored  bool   `json:"monitored"`
	ClassField bool   `json:"class_field,omitempty"`
}

// Changed reports whether the attribute must be reported this cycle
func (s *AttributeState) Changed() bool {
	return s.Monitored && s.Current != s.Previous
}

// Rotate records the current value as previous and clears the current value
// for the next cycle
func (s *AttributeState) Rotate() {
	s.Previous = s.Current
	s.Current = ""
}

// AttributeUpdate is one attribute value sent to the catalog
type AttributeUpdate struct {
	Name       string `json:"name"`
	Value      string `json:"value"`
	Monitored  bool   `json:"monitored"`
	ClassField bool   `json:"class_field,omitempty"`
}
