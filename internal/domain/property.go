package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// RawRow is one fixed-width row from a source table, addressable by column
type RawRow []any

// Cell returns the column value as text. Missing columns and nil cells are empty.
func (r RawRow) Cell(column int) string {
	if column < 0 || column >= len(r) {
		return ""
	}
	switch v := r[column].(type) {
	case nil:
		return ""
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprint(v)
	}
}

// TableRows holds the rows of each source table read during one cycle
type TableRows map[int][]RawRow

// IsSentinel reports whether a value is a placeholder meaning "no value"
func IsSentinel(value string) bool {
	v := strings.TrimSpace(value)
	return v == "" || v == "-1" || v == "NA"
}

// InstanceState is the lifecycle state reported for a CI
type InstanceState string

const (
	StateUnknown        InstanceState = "Unknown"
	StateDeactivated    InstanceState = "Deactivated"
	StateActive         InstanceState = "Active"
	StateRemoved        InstanceState = "Removed"
	StateDecommissioned InstanceState = "Decommissioned"
)

// stateOrdinals maps the numeric state codes exported by elements
var stateOrdinals = []InstanceState{
	StateDeactivated,
	StateActive,
	StateRemoved,
	StateDecommissioned,
}

// NormalizeStatus converts an element status cell into an InstanceState name.
// Blank and "True" mean active; integers map through the fixed ordinal set;
// anything else passes through unchanged.
func NormalizeStatus(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "True" {
		return string(StateActive)
	}

	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return raw
	}
	if n < 0 || n >= len(stateOrdinals) {
		return string(StateUnknown)
	}
	return string(stateOrdinals[n])
}

// IsStatusAttribute reports whether the attribute carries an element status
func IsStatusAttribute(name string) bool {
	return name == AttrStatus || name == "status"
}

// NormalizeValue applies the normalization hook keyed by attribute name
func NormalizeValue(name, value string) string {
	if IsStatusAttribute(name) {
		return NormalizeStatus(value)
	}
	return value
}

// PropertyRecord is a named attribute value of one instance
type PropertyRecord struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// NewPropertyRecord builds a record, normalizing the value for its name
func NewPropertyRecord(name, value string) PropertyRecord {
	return PropertyRecord{Name: name, Value: NormalizeValue(name, value)}
}

// Properties is the ordered attribute set of one instance
type Properties []PropertyRecord

// Get returns the value of the first record with the given name
func (p Properties) Get(name string) (string, bool) {
	for _, rec := range p {
		if rec.Name == name {
			return rec.Value, true
		}
	}
	return "", false
}

// Value returns the named value or empty string
func (p Properties) Value(name string) string {
	v, _ := p.Get(name)
	return v
}

// Has reports whether the named value is present and not a sentinel
func (p Properties) Has(name string) bool {
	v, ok := p.Get(name)
	return ok && !IsSentinel(v)
}

// With returns a copy of p where the named record holds value.
// The record is appended when missing. p itself is never modified.
func (p Properties) With(name, value string) Properties {
	out := make(Properties, len(p), len(p)+1)
	copy(out, p)
	for i := range out {
		if out[i].Name == name {
			out[i].Value = value
			return out
		}
	}
	return append(out, PropertyRecord{Name: name, Value: value})
}

// Map returns the properties as a name -> value map; first record wins
func (p Properties) Map() map[string]string {
	m := make(map[string]string, len(p))
	for _, rec := range p {
		if _, ok := m[rec.Name]; !ok {
			m[rec.Name] = rec.Value
		}
	}
	return m
}

// Instance is one resolved CI observed during a cycle
type Instance struct {
	Class      string     `json:"class"`
	PrimaryKey string     `json:"primary_key"`
	UniqueID   string     `json:"unique_id"`
	Properties Properties `json:"properties"`
}
