// Package loader reads catalog overlays from YAML.
//
// An overlay declares integrations the same way the built-in catalog does.
// Classes and relationships of a protocol already in the catalog replace
// the built-in ones by name; anything else is added.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"cmdbsync/internal/catalog"
	"cmdbsync/internal/domain"
)

// CatalogYAML represents the overlay file structure
type CatalogYAML struct {
	Version      string            `yaml:"version"`
	Integrations []IntegrationYAML `yaml:"integrations"`
}

// IntegrationYAML represents one integrated system
type IntegrationYAML struct {
	Name       string          `yaml:"name"`
	Connectors []ConnectorYAML `yaml:"connectors"`
}

// ConnectorYAML represents the mapping of one element protocol
type ConnectorYAML struct {
	Protocol      string         `yaml:"protocol"`
	Classes       []ClassYAML    `yaml:"classes"`
	Relationships []RelationYAML `yaml:"relationships,omitempty"`
}

// ClassYAML represents a CI class
type ClassYAML struct {
	Name        string          `yaml:"name"`
	TargetTable string          `yaml:"target_table"`
	Parent      bool            `yaml:"parent,omitempty"`
	Naming      string          `yaml:"naming"`
	Attributes  []AttributeYAML `yaml:"attributes,omitempty"`
}

// AttributeYAML represents one attribute. A missing column marks an
// attribute injected by the service rather than read from the row.
type AttributeYAML struct {
	Name       string `yaml:"name"`
	Table      int    `yaml:"table"`
	Column     *int   `yaml:"column,omitempty"`
	Key        string `yaml:"key,omitempty"` // primary | foreign
	Monitored  bool   `yaml:"monitored,omitempty"`
	Identity   bool   `yaml:"identity,omitempty"`
	ClassField bool   `yaml:"class_field,omitempty"`
}

// RelationYAML represents a relationship rule
type RelationYAML struct {
	Parent     string     `yaml:"parent"`
	Child      string     `yaml:"child"`
	Label      string     `yaml:"label"`
	FromParent bool       `yaml:"from_parent,omitempty"`
	Links      []LinkYAML `yaml:"links"`
	Via        *ViaYAML   `yaml:"via,omitempty"`
}

// LinkYAML joins a child attribute to a parent attribute. Leave a side
// empty to join against that instance's unique ID.
type LinkYAML struct {
	Child  string `yaml:"child,omitempty"`
	Parent string `yaml:"parent,omitempty"`
}

// ViaYAML routes a join through a third class
type ViaYAML struct {
	Class string `yaml:"class"`
	Match string `yaml:"match"`
	Value string `yaml:"value,omitempty"`
}

// ErrMissingResolver is returned when an overlay class uses custom naming
// but no resolver is compiled in for it
var ErrMissingResolver = errors.New("custom naming without a resolver")

// LoadYAML loads an overlay from a YAML file
func LoadYAML(path string) ([]catalog.Integration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML parses an overlay from YAML bytes. Unknown keys are rejected so
// a misspelled flag does not silently drop an attribute.
func ParseYAML(data []byte) ([]catalog.Integration, error) {
	var doc CatalogYAML
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return convertYAMLToIntegrations(&doc)
}

func convertYAMLToIntegrations(y *CatalogYAML) ([]catalog.Integration, error) {
	integrations := make([]catalog.Integration, 0, len(y.Integrations))
	for _, iy := range y.Integrations {
		integ := catalog.Integration{Name: iy.Name}
		for _, cy := range iy.Connectors {
			conn := catalog.Connector{Protocol: cy.Protocol}
			for _, cl := range cy.Classes {
				schema, err := convertClass(cl)
				if err != nil {
					return nil, fmt.Errorf("integration %q, protocol %q: %w", iy.Name, cy.Protocol, err)
				}
				conn.Classes = append(conn.Classes, schema)
			}
			for _, ry := range cy.Relationships {
				conn.Relationships = append(conn.Relationships, convertRelation(ry))
			}
			integ.Connectors = append(integ.Connectors, conn)
		}
		integrations = append(integrations, integ)
	}
	return integrations, nil
}

func convertClass(y ClassYAML) (domain.ClassSchema, error) {
	schema := domain.ClassSchema{
		Name:        y.Name,
		TargetTable: y.TargetTable,
		IsParent:    y.Parent,
		Naming:      domain.NamingStrategy(y.Naming),
	}
	if schema.Naming == domain.NamingByCustomFunction && !catalog.HasResolver(y.Name) {
		return domain.ClassSchema{}, fmt.Errorf("class %q: %w", y.Name, ErrMissingResolver)
	}

	for _, a := range y.Attributes {
		def := domain.AttributeDef{
			Name:          a.Name,
			TableID:       a.Table,
			Column:        domain.InjectedColumn,
			Monitored:     a.Monitored,
			IdentityInput: a.Identity,
			ClassField:    a.ClassField,
		}
		if a.Column != nil {
			def.Column = *a.Column
		}
		switch a.Key {
		case "":
		case "primary":
			def.Role = domain.RolePrimaryKey
		case "foreign":
			def.Role = domain.RoleForeignKey
		default:
			return domain.ClassSchema{}, fmt.Errorf("class %q, attribute %q: unknown key %q", y.Name, a.Name, a.Key)
		}
		schema.Attributes = append(schema.Attributes, def)
	}
	return schema, nil
}

func convertRelation(y RelationYAML) domain.RelationshipRule {
	rule := domain.RelationshipRule{
		ParentClass:      y.Parent,
		ChildClass:       y.Child,
		Label:            y.Label,
		MappedFromParent: y.FromParent,
	}
	for _, l := range y.Links {
		rule.Links = append(rule.Links, domain.JoinLink{ChildAttr: l.Child, ParentAttr: l.Parent})
	}
	if y.Via != nil {
		rule.Via = &domain.ExternalLink{Class: y.Via.Class, MatchAttr: y.Via.Match, ValueAttr: y.Via.Value}
	}
	return rule
}

// Apply merges the overlay at path over base and validates the result.
// An empty path returns base unchanged.
func Apply(base *catalog.Catalog, path string) (*catalog.Catalog, error) {
	if path == "" {
		return base, nil
	}
	overlay, err := LoadYAML(path)
	if err != nil {
		return nil, err
	}
	merged, err := base.Merge(overlay)
	if err != nil {
		return nil, fmt.Errorf("merge overlay %s: %w", path, err)
	}
	return merged, nil
}

// Reload applies the overlay at path over base and swaps the result into
// holder. On error the holder keeps its current catalog.
func Reload(holder *catalog.Holder, base *catalog.Catalog, path string) error {
	merged, err := Apply(base, path)
	if err != nil {
		return err
	}
	holder.Store(merged)
	return nil
}

// ExportYAML exports integrations in overlay format
func ExportYAML(integrations []catalog.Integration) ([]byte, error) {
	doc := CatalogYAML{Version: "1"}
	for _, integ := range integrations {
		iy := IntegrationYAML{Name: integ.Name}
		for _, conn := range integ.Connectors {
			cy := ConnectorYAML{Protocol: conn.Protocol}
			for _, schema := range conn.Classes {
				cy.Classes = append(cy.Classes, exportClass(schema))
			}
			for _, rule := range conn.Relationships {
				cy.Relationships = append(cy.Relationships, exportRelation(rule))
			}
			iy.Connectors = append(iy.Connectors, cy)
		}
		doc.Integrations = append(doc.Integrations, iy)
	}
	return yaml.Marshal(&doc)
}

func exportClass(schema domain.ClassSchema) ClassYAML {
	cy := ClassYAML{
		Name:        schema.Name,
		TargetTable: schema.TargetTable,
		Parent:      schema.IsParent,
		Naming:      string(schema.Naming),
	}
	for _, a := range schema.Attributes {
		ay := AttributeYAML{
			Name:       a.Name,
			Table:      a.TableID,
			Monitored:  a.Monitored,
			Identity:   a.IdentityInput,
			ClassField: a.ClassField,
		}
		if !a.Injected() {
			col := a.Column
			ay.Column = &col
		}
		switch a.Role {
		case domain.RolePrimaryKey:
			ay.Key = "primary"
		case domain.RoleForeignKey:
			ay.Key = "foreign"
		}
		cy.Attributes = append(cy.Attributes, ay)
	}
	return cy
}

func exportRelation(rule domain.RelationshipRule) RelationYAML {
	ry := RelationYAML{
		Parent:     rule.ParentClass,
		Child:      rule.ChildClass,
		Label:      rule.Label,
		FromParent: rule.MappedFromParent,
	}
	for _, l := range rule.Links {
		ry.Links = append(ry.Links, LinkYAML{Child: l.ChildAttr, Parent: l.ParentAttr})
	}
	if rule.Via != nil {
		ry.Via = &ViaYAML{Class: rule.Via.Class, Match: rule.Via.MatchAttr, Value: rule.Via.ValueAttr}
	}
	return ry
}
