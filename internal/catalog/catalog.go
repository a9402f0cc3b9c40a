package catalog

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"cmdbsync/internal/domain"
)

// Lookup failures. Match with errors.Is.
var (
	ErrUnknownIntegration = errors.New("unknown integration")
	ErrUnknownConnector   = errors.New("unknown connector")
	ErrUnknownClass       = errors.New("unknown class")
)

// LookupError reports the name that could not be found
type LookupError struct {
	Name string
	Err  error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%v: %q", e.Err, e.Name)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// Connector is the mapping for one element protocol
type Connector struct {
	Protocol      string                    `json:"protocol" yaml:"protocol"`
	Classes       []domain.ClassSchema      `json:"classes" yaml:"classes"`
	Relationships []domain.RelationshipRule `json:"relationships,omitempty" yaml:"relationships,omitempty"`
}

// Class returns the schema of a class handled by the connector
func (c *Connector) Class(name string) (*domain.ClassSchema, error) {
	for i := range c.Classes {
		if c.Classes[i].Name == name {
			return &c.Classes[i], nil
		}
	}
	return nil, &LookupError{Name: name, Err: ErrUnknownClass}
}

// Tables returns every source table read by any class of the connector, ascending
func (c *Connector) Tables() []int {
	seen := make(map[int]bool)
	var ids []int
	for i := range c.Classes {
		for _, id := range c.Classes[i].Tables() {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Ints(ids)
	return ids
}

// Integration groups the connectors of one integrated system
type Integration struct {
	Name       string      `json:"name" yaml:"name"`
	Connectors []Connector `json:"connectors" yaml:"connectors"`
}

// Catalog is the validated, read-only registry of integrations.
// Schemas returned by its lookups are shared and must not be modified.
type Catalog struct {
	integrations []Integration
	byName       map[string]*Integration
	byProtocol   map[string]*Connector
	resolvers    map[string]domain.IdentityFunc
	processors   map[string]domain.PropertyProcessor
}

// New validates the integrations and builds a catalog around the closed
// resolver and processor tables
func New(integrations []Integration) (*Catalog, error) {
	c := &Catalog{
		integrations: cloneIntegrations(integrations),
		byName:       make(map[string]*Integration),
		byProtocol:   make(map[string]*Connector),
		resolvers:    customResolvers,
		processors:   propertyProcessors,
	}

	for i := range c.integrations {
		integ := &c.integrations[i]
		if integ.Name == "" {
			return nil, fmt.Errorf("integration %d has no name", i)
		}
		if _, dup := c.byName[integ.Name]; dup {
			return nil, fmt.Errorf("duplicate integration %q", integ.Name)
		}
		c.byName[integ.Name] = integ

		for j := range integ.Connectors {
			conn := &integ.Connectors[j]
			if err := validateConnector(conn); err != nil {
				return nil, fmt.Errorf("integration %q: %w", integ.Name, err)
			}
			if _, dup := c.byProtocol[conn.Protocol]; dup {
				return nil, fmt.Errorf("protocol %q is mapped more than once", conn.Protocol)
			}
			c.byProtocol[conn.Protocol] = conn
		}
	}
	return c, nil
}

func validateConnector(conn *Connector) error {
	if conn.Protocol == "" {
		return fmt.Errorf("connector has no protocol name")
	}

	classes := make(map[string]bool)
	for i := range conn.Classes {
		schema := &conn.Classes[i]
		if err := schema.Validate(); err != nil {
			return fmt.Errorf("connector %q: %w", conn.Protocol, err)
		}
		if classes[schema.Name] {
			return fmt.Errorf("connector %q: duplicate class %q", conn.Protocol, schema.Name)
		}
		classes[schema.Name] = true
	}

	for _, rule := range conn.Relationships {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("connector %q: %w", conn.Protocol, err)
		}
		for _, class := range []string{rule.ParentClass, rule.ChildClass} {
			if !classes[class] {
				return fmt.Errorf("connector %q: relationship %q references unknown class %q", conn.Protocol, rule.Name(), class)
			}
		}
		if rule.Via != nil && !classes[rule.Via.Class] {
			return fmt.Errorf("connector %q: relationship %q goes through unknown class %q", conn.Protocol, rule.Name(), rule.Via.Class)
		}
	}
	return nil
}

// Integration returns an integration by name
func (c *Catalog) Integration(name string) (*Integration, error) {
	integ, ok := c.byName[name]
	if !ok {
		return nil, &LookupError{Name: name, Err: ErrUnknownIntegration}
	}
	return integ, nil
}

// Connector returns the mapping for an element protocol
func (c *Catalog) Connector(protocol string) (*Connector, error) {
	conn, ok := c.byProtocol[protocol]
	if !ok {
		return nil, &LookupError{Name: protocol, Err: ErrUnknownConnector}
	}
	return conn, nil
}

// Class returns the schema of one class of a connector
func (c *Catalog) Class(protocol, class string) (*domain.ClassSchema, error) {
	conn, err := c.Connector(protocol)
	if err != nil {
		return nil, err
	}
	return conn.Class(class)
}

// TrackedAttributes returns the attributes pushed to the catalog for a class
func (c *Catalog) TrackedAttributes(protocol, class string) ([]domain.AttributeDef, error) {
	schema, err := c.Class(protocol, class)
	if err != nil {
		return nil, err
	}
	return schema.TrackedAttributes(), nil
}

// Protocols lists every supported element protocol, sorted
func (c *Catalog) Protocols() []string {
	protocols := make([]string, 0, len(c.byProtocol))
	for p := range c.byProtocol {
		protocols = append(protocols, p)
	}
	sort.Strings(protocols)
	return protocols
}

// Integrations returns the integration definitions in declaration order
func (c *Catalog) Integrations() []Integration {
	return c.integrations
}

// Resolver returns the custom identity function registered for a class
func (c *Catalog) Resolver(class string) (domain.IdentityFunc, bool) {
	fn, ok := c.resolvers[class]
	return fn, ok
}

// Processor returns the property processor registered for a class
func (c *Catalog) Processor(class string) (domain.PropertyProcessor, bool) {
	fn, ok := c.processors[class]
	return fn, ok
}

// HasResolver reports whether a custom identity function exists for class
func HasResolver(class string) bool {
	_, ok := customResolvers[class]
	return ok
}

// Merge returns a new catalog with overlay applied on top of c. Classes and
// relationships of a known protocol are replaced by name, unknown protocols
// and integrations are added. c is left untouched.
func (c *Catalog) Merge(overlay []Integration) (*Catalog, error) {
	merged := cloneIntegrations(c.integrations)

	for _, over := range overlay {
		idx := -1
		for i := range merged {
			if merged[i].Name == over.Name {
				idx = i
				break
			}
		}
		if idx < 0 {
			merged = append(merged, cloneIntegrations([]Integration{over})[0])
			continue
		}

		target := &merged[idx]
		for _, oc := range over.Connectors {
			found := false
			for j := range target.Connectors {
				if target.Connectors[j].Protocol == oc.Protocol {
					mergeConnector(&target.Connectors[j], oc)
					found = true
					break
				}
			}
			if !found {
				target.Connectors = append(target.Connectors, cloneConnector(oc))
			}
		}
	}
	return New(merged)
}

func mergeConnector(dst *Connector, src Connector) {
	for _, class := range src.Classes {
		replaced := false
		for i := range dst.Classes {
			if dst.Classes[i].Name == class.Name {
				dst.Classes[i] = cloneSchema(class)
				replaced = true
				break
			}
		}
		if !replaced {
			dst.Classes = append(dst.Classes, cloneSchema(class))
		}
	}
	for _, rule := range src.Relationships {
		replaced := false
		for i := range dst.Relationships {
			if dst.Relationships[i].Name() == rule.Name() {
				dst.Relationships[i] = cloneRule(rule)
				replaced = true
				break
			}
		}
		if !replaced {
			dst.Relationships = append(dst.Relationships, cloneRule(rule))
		}
	}
}

func cloneIntegrations(in []Integration) []Integration {
	out := make([]Integration, len(in))
	for i, integ := range in {
		out[i] = Integration{Name: integ.Name, Connectors: make([]Connector, len(integ.Connectors))}
		for j, conn := range integ.Connectors {
			out[i].Connectors[j] = cloneConnector(conn)
		}
	}
	return out
}

func cloneConnector(in Connector) Connector {
	out := Connector{
		Protocol:      in.Protocol,
		Classes:       make([]domain.ClassSchema, len(in.Classes)),
		Relationships: make([]domain.RelationshipRule, len(in.Relationships)),
	}
	for i, cls := range in.Classes {
		out.Classes[i] = cloneSchema(cls)
	}
	for i, rule := range in.Relationships {
		out.Relationships[i] = cloneRule(rule)
	}
	return out
}

func cloneSchema(in domain.ClassSchema) domain.ClassSchema {
	out := in
	out.Attributes = append([]domain.AttributeDef(nil), in.Attributes...)
	return out
}

func cloneRule(in domain.RelationshipRule) domain.RelationshipRule {
	out := in
	out.Links = append([]domain.JoinLink(nil), in.Links...)
	if in.Via != nil {
		via := *in.Via
		out.Via = &via
	}
	return out
}

// Holder publishes the active catalog to concurrent readers. A reload swaps
// the whole catalog; cycles already running keep the one they loaded.
type Holder struct {
	current atomic.Pointer[Catalog]
}

// NewHolder creates a holder serving c
func NewHolder(c *Catalog) *Holder {
	h := &Holder{}
	h.current.Store(c)
	return h
}

// Load returns the active catalog
func (h *Holder) Load() *Catalog {
	return h.current.Load()
}

// Store replaces the active catalog
func (h *Holder) Store(c *Catalog) {
	h.current.Store(c)
}
