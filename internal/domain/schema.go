package domain

import (
	"fmt"
	"sort"
)

// NamingStrategy selects how a class builds the unique ID of its instances
type NamingStrategy string

const (
	NamingUnknown              NamingStrategy = ""
	NamingByPrimaryKey         NamingStrategy = "primary_key"       // scope.pk
	NamingByPrimaryKeyAndLabel NamingStrategy = "primary_key_label" // scope.pk.label
	NamingByLabel              NamingStrategy = "label"             // scope.label
	NamingByLabelAndPrimaryKey NamingStrategy = "label_primary_key" // scope.label.pk
	NamingByCustomFunction     NamingStrategy = "custom"            // class-specific resolver
)

// Valid reports whether the strategy is one of the known variants
func (s NamingStrategy) Valid() bool {
	switch s {
	case NamingByPrimaryKey, NamingByPrimaryKeyAndLabel, NamingByLabel,
		NamingByLabelAndPrimaryKey, NamingByCustomFunction:
		return true
	}
	return false
}

// AttributeRole marks the key columns of a source table
type AttributeRole string

const (
	RoleValue      AttributeRole = ""
	RolePrimaryKey AttributeRole = "primary_key"
	RoleForeignKey AttributeRole = "foreign_key"
)

// InjectedColumn marks an attribute that is not read from the row itself
const InjectedColumn = -1

// RowKeyColumn holds the row key of a table that declares no key attribute.
// Such a supplementary table only adds attributes to records created by the
// keyed tables of the same class.
const RowKeyColumn = 0

// Well-known attribute names
const (
	AttrPrimaryKey = "pk"
	AttrForeignKey = "fk"
	AttrLabel      = "u_label"
	AttrStatus     = "u_status"
	AttrNMSName    = "u_nms_name"
)

// AttributeDef describes where an attribute comes from and how it is tracked
type AttributeDef struct {
	Name          string        `json:"name" yaml:"name"`
	TableID       int           `json:"table" yaml:"table"`
	Column        int           `json:"column" yaml:"column"`
	Role          AttributeRole `json:"role,omitempty" yaml:"role,omitempty"`
	Monitored     bool          `json:"monitored,omitempty" yaml:"monitored,omitempty"`
	IdentityInput bool          `json:"identity,omitempty" yaml:"identity,omitempty"`
	// ClassField is set for native catalog fields (serial_number) as opposed to custom u_ fields
	ClassField bool `json:"class_field,omitempty" yaml:"class_field,omitempty"`
}

// IsKey reports whether the attribute is a primary or foreign key column
func (a AttributeDef) IsKey() bool {
	return a.Role == RolePrimaryKey || a.Role == RoleForeignKey
}

// Injected reports whether the value is supplied outside the row data
func (a AttributeDef) Injected() bool {
	return a.Column == InjectedColumn
}

// ClassSchema describes one CI class exported by a connector
type ClassSchema struct {
	Name        string         `json:"name" yaml:"name"`
	TargetTable string         `json:"target_table" yaml:"target_table"`
	IsParent    bool           `json:"is_parent,omitempty" yaml:"is_parent,omitempty"`
	Naming      NamingStrategy `json:"naming" yaml:"naming"`
	Attributes  []AttributeDef `json:"attributes" yaml:"attributes"`
}

// Tables returns the source table IDs in order of first declaration
func (c *ClassSchema) Tables() []int {
	seen := make(map[int]bool)
	var ids []int
	for _, a := range c.Attributes {
		if !seen[a.TableID] {
			seen[a.TableID] = true
			ids = append(ids, a.TableID)
		}
	}
	return ids
}

// TableAttributes returns the attributes read from one table, in declaration order
func (c *ClassSchema) TableAttributes(tableID int) []AttributeDef {
	var attrs []AttributeDef
	for _, a := range c.Attributes {
		if a.TableID == tableID {
			attrs = append(attrs, a)
		}
	}
	return attrs
}

// KeyOf returns the attribute holding the given role in a table
func (c *ClassSchema) KeyOf(tableID int, role AttributeRole) (AttributeDef, bool) {
	for _, a := range c.Attributes {
		if a.TableID == tableID && a.Role == role {
			return a, true
		}
	}
	return AttributeDef{}, false
}

// Supplementary reports whether a table declares neither a primary nor a
// foreign key
func (c *ClassSchema) Supplementary(tableID int) bool {
	_, pk := c.KeyOf(tableID, RolePrimaryKey)
	_, fk := c.KeyOf(tableID, RoleForeignKey)
	return !pk && !fk
}

// Attribute looks up an attribute definition by name. The first declaration wins.
func (c *ClassSchema) Attribute(name string) (AttributeDef, bool) {
	for _, a := range c.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return AttributeDef{}, false
}

// Synthetic reports whether the class has no source tables and stands for
// the monitored element itself
func (c *ClassSchema) Synthetic() bool {
	return c.IsParent && len(c.Attributes) == 0
}

// Validate checks the per-table key invariants and the naming strategy
func (c *ClassSchema) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("class name is required")
	}
	if !c.Naming.Valid() {
		return fmt.Errorf("class %q: unknown naming strategy %q", c.Name, c.Naming)
	}

	pks := make(map[int]int)
	fks := make(map[int]int)
	for _, a := range c.Attributes {
		if a.Name == "" {
			return fmt.Errorf("class %q: attribute in table %d has no name", c.Name, a.TableID)
		}
		if a.Column < InjectedColumn {
			return fmt.Errorf("class %q: attribute %q has invalid column %d", c.Name, a.Name, a.Column)
		}
		switch a.Role {
		case RolePrimaryKey:
			pks[a.TableID]++
		case RoleForeignKey:
			fks[a.TableID]++
		case RoleValue:
		default:
			return fmt.Errorf("class %q: attribute %q has unknown role %q", c.Name, a.Name, a.Role)
		}
		if a.IsKey() && a.Injected() {
			return fmt.Errorf("class %q: key attribute %q cannot be injected", c.Name, a.Name)
		}
	}

	keyed := false
	for _, table := range c.Tables() {
		if pks[table] > 1 {
			return fmt.Errorf("class %q: table %d declares %d primary keys", c.Name, table, pks[table])
		}
		if fks[table] > 1 {
			return fmt.Errorf("class %q: table %d declares %d foreign keys", c.Name, table, fks[table])
		}
		if pks[table] > 0 || fks[table] > 0 {
			keyed = true
		}
	}
	if len(c.Attributes) > 0 && !keyed {
		return fmt.Errorf("class %q: no table declares a primary or foreign key", c.Name)
	}
	return nil
}

// TrackedAttributes returns the attributes the change tracker keeps state for:
// every monitored attribute, plus the identity inputs of any table that
// contributes at least one monitored attribute. Sorted by name.
func (c *ClassSchema) TrackedAttributes() []AttributeDef {
	monitoredTables := make(map[int]bool)
	for _, a := range c.Attributes {
		if a.Monitored {
			monitoredTables[a.TableID] = true
		}
	}

	byName := make(map[string]AttributeDef)
	for _, a := range c.Attributes {
		if a.IsKey() {
			continue
		}
		if a.Monitored || (a.IdentityInput && monitoredTables[a.TableID]) {
			if existing, ok := byName[a.Name]; ok {
				existing.Monitored = existing.Monitored || a.Monitored
				existing.IdentityInput = existing.IdentityInput || a.IdentityInput
				byName[a.Name] = existing
				continue
			}
			byName[a.Name] = a
		}
	}

	tracked := make([]AttributeDef, 0, len(byName))
	for _, a := range byName {
		tracked = append(tracked, a)
	}
	sort.Slice(tracked, func(i, j int) bool { return tracked[i].Name < tracked[j].Name })
	return tracked
}
