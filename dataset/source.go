package dataset

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/liamcoop/cellrules/table"
)

// Source reads the rows of a dataset
type Source interface {
	Schema() Schema
	Rows(ctx context.Context) ([]table.Row, error)
}

// MemorySource serves a fixed set of rows
type MemorySource struct {
	schema Schema
	rows   []table.Row
}

// NewMemorySource creates a source over rows. Every value is coerced to its
// field's type; columns not in the schema are rejected.
func NewMemorySource(schema Schema, rows []map[string]any) (*MemorySource, error) {
	out := make([]table.Row, 0, len(rows))
	for i, raw := range rows {
		row := make(table.Row, len(schema))
		for name, v := range raw {
			f, ok := schema.Field(name)
			if !ok {
				return nil, fmt.Errorf("row %d: unknown column %q", i, name)
			}
			s, err := f.Coerce(v)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			row[name] = s
		}
		out = append(out, row)
	}

	return &MemorySource{schema: slices.Clone(schema), rows: out}, nil
}

func (s *MemorySource) Schema() Schema {
	return slices.Clone(s.schema)
}

// Rows returns a copy of the rows; callers may not mutate the source
func (s *MemorySource) Rows(ctx context.Context) ([]table.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows := make([]table.Row, len(s.rows))
	for i, r := range s.rows {
		rows[i] = maps.Clone(r)
	}
	return rows, nil
}
