package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/lib/pq"

	"github.com/liamcoop/cellrules/table"
)

// PostgresSource reads rows from one PostgreSQL table. Each schema field
// is a column of the same name.
type PostgresSource struct {
	db      *sql.DB
	table   string
	schema  Schema
	orderBy string
}

// NewPostgresSource creates a source over table. orderBy names the column
// that fixes row order; empty leaves ordering to the database.
func NewPostgresSource(db *sql.DB, table string, schema Schema, orderBy string) *PostgresSource {
	return &PostgresSource{
		db:      db,
		table:   table,
		schema:  slices.Clone(schema),
		orderBy: orderBy,
	}
}

// NewPaymentsPostgresSource reads the payments table created by the migrations
func NewPaymentsPostgresSource(db *sql.DB) *PostgresSource {
	return NewPostgresSource(db, "payments", PaymentSchema, "seq")
}

func (s *PostgresSource) Schema() Schema {
	return slices.Clone(s.schema)
}

// Rows selects every row of the table
func (s *PostgresSource) Rows(ctx context.Context) ([]table.Row, error) {
	rows, err := s.db.QueryContext(ctx, s.query())
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.table, err)
	}
	defer rows.Close()

	var out []table.Row
	values := make([]any, len(s.schema))
	dest := make([]any, len(s.schema))
	for i := range values {
		dest[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", s.table, err)
		}

		row := make(table.Row, len(s.schema))
		for i, f := range s.schema {
			v, err := f.Coerce(values[i])
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", len(out), err)
			}
			row[f.Name] = v
		}
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", s.table, err)
	}

	return out, nil
}

func (s *PostgresSource) query() string {
	cols := make([]string, len(s.schema))
	for i, f := range s.schema {
		cols[i] = pq.QuoteIdentifier(f.Name)
	}

	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), pq.QuoteIdentifier(s.table))
	if s.orderBy != "" {
		q += " ORDER BY " + pq.QuoteIdentifier(s.orderBy)
	}
	return q
}
