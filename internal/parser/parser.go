// Package parser turns raw table rows into per-instance attribute records.
package parser

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"cmdbsync/internal/domain"
)

// FanOutSeparator joins the values collected for one key through a foreign key table
const FanOutSeparator = ";"

// Record is the parsed attribute set of one row primary key
type Record struct {
	PrimaryKey string
	Properties domain.Properties
}

// Result is the output of parsing one class
type Result struct {
	Records []Record
	// SkippedRows counts rows dropped for a missing or sentinel key
	SkippedRows int
}

// CleanCell normalizes raw cell text: surrounding whitespace is removed and
// the text is put in Unicode NFC form so equal labels compare equal.
func CleanCell(raw string) string {
	return norm.NFC.String(strings.TrimSpace(raw))
}

// InjectedValue returns the value of an attribute not read from row data
func InjectedValue(name, scope string) string {
	if name == domain.AttrNMSName {
		return scope
	}
	return ""
}

// Parse builds records for one class from this cycle's tables. Records are
// returned in order of first appearance. Missing tables yield no records.
// Supplementary tables are applied last and only to records a keyed table
// created.
func Parse(schema *domain.ClassSchema, tables domain.TableRows, scope string) Result {
	var res Result
	index := make(map[string]int)
	fanOut := make(map[string]map[string][]string)
	var supplementary []int

	for _, tableID := range schema.Tables() {
		if schema.Supplementary(tableID) {
			supplementary = append(supplementary, tableID)
			continue
		}
		attrs := schema.TableAttributes(tableID)
		pk, hasPK := schema.KeyOf(tableID, domain.RolePrimaryKey)
		fk, hasFK := schema.KeyOf(tableID, domain.RoleForeignKey)

		for _, row := range tables[tableID] {
			if hasPK {
				key := CleanCell(row.Cell(pk.Column))
				if domain.IsSentinel(key) {
					res.SkippedRows++
					continue
				}

				i, ok := index[key]
				if !ok {
					i = len(res.Records)
					index[key] = i
					res.Records = append(res.Records, Record{PrimaryKey: key})
				}
				res.Records[i].Properties = applyRow(res.Records[i].Properties, attrs, row, scope)
			}

			if hasFK {
				key := CleanCell(row.Cell(fk.Column))
				if domain.IsSentinel(key) {
					if !hasPK {
						res.SkippedRows++
					}
					continue
				}
				values, ok := fanOut[key]
				if !ok {
					values = make(map[string][]string)
					fanOut[key] = values
				}
				for _, a := range attrs {
					if a.IsKey() || a.Injected() {
						continue
					}
					v := domain.NormalizeValue(a.Name, CleanCell(row.Cell(a.Column)))
					values[a.Name] = append(values[a.Name], v)
				}
			}
		}
	}

	for _, tableID := range supplementary {
		attrs := schema.TableAttributes(tableID)
		for _, row := range tables[tableID] {
			i, ok := index[CleanCell(row.Cell(domain.RowKeyColumn))]
			if !ok {
				continue
			}
			res.Records[i].Properties = applyRow(res.Records[i].Properties, attrs, row, scope)
		}
	}

	for i := range res.Records {
		values, ok := fanOut[res.Records[i].PrimaryKey]
		if !ok {
			continue
		}
		names := make([]string, 0, len(values))
		for name := range values {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			// sorted so the joined value does not depend on row order
			vals := append([]string(nil), values[name]...)
			sort.Strings(vals)
			joined := strings.Join(vals, FanOutSeparator)
			res.Records[i].Properties = res.Records[i].Properties.With(name, joined)
		}
	}
	return res
}

// applyRow adds the non-key attributes of one row. Column values from later
// tables overwrite earlier ones; injected values only fill gaps.
func applyRow(props domain.Properties, attrs []domain.AttributeDef, row domain.RawRow, scope string) domain.Properties {
	for _, a := range attrs {
		if a.IsKey() {
			continue
		}
		if a.Injected() {
			if _, ok := props.Get(a.Name); !ok {
				props = append(props, domain.NewPropertyRecord(a.Name, InjectedValue(a.Name, scope)))
			}
			continue
		}

		rec := domain.NewPropertyRecord(a.Name, CleanCell(row.Cell(a.Column)))
		replaced := false
		for i := range props {
			if props[i].Name == rec.Name {
				props[i] = rec
				replaced = true
				break
			}
		}
		if !replaced {
			props = append(props, rec)
		}
	}
	return props
}

// SyntheticRecord is the single record of a parent class that stands for the
// monitored element itself
func SyntheticRecord(elementID, scope string) Record {
	return Record{
		PrimaryKey: elementID,
		Properties: domain.Properties{
			{Name: domain.AttrLabel, Value: scope},
			{Name: domain.AttrNMSName, Value: scope},
		},
	}
}
