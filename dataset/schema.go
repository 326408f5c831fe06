// Package dataset provides the rows a table renders: a typed Schema and
// the Sources that read rows for it.
package dataset

import (
	"fmt"

	"github.com/liamcoop/cellrules/rules"
	"github.com/liamcoop/cellrules/table"
)

// FieldType is the declared type of a column's values
type FieldType string

const (
	TypeString FieldType = "string"
	TypeNumber FieldType = "number"
	TypeBool   FieldType = "bool"
)

// Valid reports whether t is a known field type
func (t FieldType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBool:
		return true
	}
	return false
}

// Field is one column of a Schema
type Field struct {
	Name  string    `json:"name"`
	Title string    `json:"title"`
	Type  FieldType `json:"type"`
}

// Schema is the ordered list of a dataset's columns
type Schema []Field

// Names returns the field names in order
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Field looks up a field by name
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Columns converts the schema to table columns. Every column sorts; every
// column except the first can be hidden.
func (s Schema) Columns() []table.Column {
	cols := make([]table.Column, len(s))
	for i, f := range s {
		title := f.Title
		if title == "" {
			title = f.Name
		}
		cols[i] = table.Column{
			ID:       f.Name,
			Title:    title,
			Sortable: true,
			Hideable: i > 0,
		}
	}
	return cols
}

// Coerce converts a raw value to a Scalar of the field's type. Nil stays null.
func (f Field) Coerce(v any) (rules.Scalar, error) {
	s := rules.FromAny(v)
	if s.IsNull() {
		return s, nil
	}

	switch f.Type {
	case TypeString:
		if s.Kind() == rules.KindString {
			return s, nil
		}
		return rules.StringValue(s.String()), nil
	case TypeNumber:
		if n, ok := s.Number(); ok {
			return rules.NumberValue(n), nil
		}
	case TypeBool:
		if b, ok := s.AsBool(); ok {
			return rules.BoolValue(b), nil
		}
		if str, ok := s.AsString(); ok {
			switch str {
			case "true", "t":
				return rules.BoolValue(true), nil
			case "false", "f":
				return rules.BoolValue(false), nil
			}
		}
	}
	return rules.Scalar{}, fmt.Errorf("field %s: cannot use %v as %s", f.Name, v, f.Type)
}
