// Package table is a headless tabular display: it owns rows and column
// state (sorting, text filters, visibility, pagination) and asks an
// Evaluator for the style of every visible cell it renders.
package table

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"golang.org/x/text/cases"

	"github.com/liamcoop/cellrules/rules"
)

// DefaultPageSize is used when State.PageSize is not positive
const DefaultPageSize = 50

// ErrInvalidState is returned when State names an unknown or unsortable column
var ErrInvalidState = errors.New("invalid table state")

// Evaluator returns the conditional style for one cell.
// *rules.Engine satisfies it.
type Evaluator interface {
	Evaluate(columnID string, value rules.Scalar) (rules.Style, error)
}

// EvaluatorFunc adapts a plain function to Evaluator
type EvaluatorFunc func(columnID string, value rules.Scalar) (rules.Style, error)

// Evaluate calls f
func (f EvaluatorFunc) Evaluate(columnID string, value rules.Scalar) (rules.Style, error) {
	return f(columnID, value)
}

// Column describes one table column
type Column struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Sortable bool   `json:"sortable"`
	Hideable bool   `json:"hideable"`
}

// Row maps column ids to cell values. Missing columns read as null.
type Row map[string]rules.Scalar

// Sort orders rows by one column
type Sort struct {
	ColumnID string `json:"columnId"`
	Desc     bool   `json:"desc"`
}

// State is the caller-controlled view state
type State struct {
	Sorting   []Sort            `json:"sorting,omitempty"`
	Filters   map[string]string `json:"filters,omitempty"`
	Where     string            `json:"where,omitempty"`
	Hidden    map[string]bool   `json:"hidden,omitempty"`
	PageIndex int               `json:"pageIndex"`
	PageSize  int               `json:"pageSize"`
}

// Cell is a rendered cell with its conditional style
type Cell struct {
	ColumnID string       `json:"columnId"`
	Value    rules.Scalar `json:"value"`
	Style    rules.Style  `json:"style"`
}

// RenderedRow is one visible row. Index is the row's position in the
// unfiltered data.
type RenderedRow struct {
	Index int    `json:"index"`
	Cells []Cell `json:"cells"`
}

// Page is one rendered page of the table
type Page struct {
	Columns   []Column      `json:"columns"`
	Rows      []RenderedRow `json:"rows"`
	PageIndex int           `json:"pageIndex"`
	PageSize  int           `json:"pageSize"`
	PageCount int           `json:"pageCount"`
	TotalRows int           `json:"totalRows"`
}

// Table is immutable after New; Render is safe for concurrent use
type Table struct {
	columns []Column
	rows    []Row
	eval    Evaluator
	filters *expressionFilter
}

// New creates a table over rows. Column ids must be unique and non-empty;
// the evaluator is required.
func New(columns []Column, rows []Row, eval Evaluator) (*Table, error) {
	if eval == nil {
		return nil, errors.New("table requires an evaluator")
	}
	if len(columns) == 0 {
		return nil, errors.New("table requires at least one column")
	}

	ids := make([]string, 0, len(columns))
	for _, col := range columns {
		if col.ID == "" {
			return nil, errors.New("column id cannot be empty")
		}
		if slices.Contains(ids, col.ID) {
			return nil, fmt.Errorf("duplicate column id %q", col.ID)
		}
		ids = append(ids, col.ID)
	}

	filters, err := newExpressionFilter(ids)
	if err != nil {
		return nil, err
	}

	return &Table{
		columns: slices.Clone(columns),
		rows:    slices.Clone(rows),
		eval:    eval,
		filters: filters,
	}, nil
}

// Columns returns every column, hidden or not
func (t *Table) Columns() []Column {
	return slices.Clone(t.columns)
}

// Len is the number of rows before filtering
func (t *Table) Len() int {
	return len(t.rows)
}

// Render runs the row pipeline (filter, sort, paginate) and styles every
// visible cell of the resulting page.
func (t *Table) Render(state State) (*Page, error) {
	indexes, err := t.filteredRows(state)
	if err != nil {
		return nil, err
	}

	if err := t.sortRows(indexes, state.Sorting); err != nil {
		return nil, err
	}

	visible := t.visibleColumns(state.Hidden)

	pageSize := state.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	total := len(indexes)
	pageCount := (total + pageSize - 1) / pageSize
	pageIndex := min(max(state.PageIndex, 0), max(pageCount-1, 0))

	start := min(pageIndex*pageSize, total)
	end := min(start+pageSize, total)

	page := &Page{
		Columns:   visible,
		Rows:      make([]RenderedRow, 0, end-start),
		PageIndex: pageIndex,
		PageSize:  pageSize,
		PageCount: pageCount,
		TotalRows: total,
	}

	for _, idx := range indexes[start:end] {
		row := t.rows[idx]
		rendered := RenderedRow{Index: idx, Cells: make([]Cell, 0, len(visible))}
		for _, col := range visible {
			value := row[col.ID]
			style, err := t.eval.Evaluate(col.ID, value)
			if err != nil {
				return nil, fmt.Errorf("evaluate cell %s[%d]: %w", col.ID, idx, err)
			}
			rendered.Cells = append(rendered.Cells, Cell{ColumnID: col.ID, Value: value, Style: style})
		}
		page.Rows = append(page.Rows, rendered)
	}

	return page, nil
}

// filteredRows returns the indexes of rows passing the column text filters
// and the Where expression
func (t *Table) filteredRows(state State) ([]int, error) {
	for colID := range state.Filters {
		if !t.hasColumn(colID) {
			return nil, fmt.Errorf("%w: filter on unknown column %q", ErrInvalidState, colID)
		}
	}

	var where *compiledFilter
	if state.Where != "" {
		var err error
		where, err = t.filters.compile(state.Where)
		if err != nil {
			return nil, err
		}
	}

	indexes := make([]int, 0, len(t.rows))
	for i, row := range t.rows {
		if !matchesTextFilters(row, state.Filters) {
			continue
		}
		if where != nil && !where.match(row) {
			continue
		}
		indexes = append(indexes, i)
	}
	return indexes, nil
}

// matchesTextFilters applies the same case-insensitive substring test the
// contains operator uses. Empty filter text is ignored.
func matchesTextFilters(row Row, filters map[string]string) bool {
	for colID, text := range filters {
		if text == "" {
			continue
		}
		if !rules.Test(rules.OperatorContains, row[colID], rules.StringValue(text)) {
			return false
		}
	}
	return true
}

func (t *Table) sortRows(indexes []int, sorting []Sort) error {
	if len(sorting) == 0 {
		return nil
	}
	for _, s := range sorting {
		col, ok := t.column(s.ColumnID)
		if !ok {
			return fmt.Errorf("%w: sort on unknown column %q", ErrInvalidState, s.ColumnID)
		}
		if !col.Sortable {
			return fmt.Errorf("%w: column %q is not sortable", ErrInvalidState, s.ColumnID)
		}
	}

	caser := cases.Fold()
	slices.SortStableFunc(indexes, func(a, b int) int {
		for _, s := range sorting {
			c := compareCells(caser, t.rows[a][s.ColumnID], t.rows[b][s.ColumnID], s.Desc)
			if c != 0 {
				return c
			}
		}
		return 0
	})
	return nil
}

// compareCells orders numbers numerically and everything else by
// case-folded text, with all numbers ahead of all text in a mixed column.
// Nulls sort last in either direction.
func compareCells(caser cases.Caser, a, b rules.Scalar, desc bool) int {
	switch {
	case a.IsNull() && b.IsNull():
		return 0
	case a.IsNull():
		return 1
	case b.IsNull():
		return -1
	}

	var c int
	an, aok := a.AsNumber()
	bn, bok := b.AsNumber()
	aok = aok && !math.IsNaN(an)
	bok = bok && !math.IsNaN(bn)
	switch {
	case aok && bok:
		c = cmp.Compare(an, bn)
	case aok:
		c = -1
	case bok:
		c = 1
	default:
		c = cmp.Compare(caser.String(a.String()), caser.String(b.String()))
	}

	if desc {
		return -c
	}
	return c
}

func (t *Table) visibleColumns(hidden map[string]bool) []Column {
	visible := make([]Column, 0, len(t.columns))
	for _, col := range t.columns {
		if col.Hideable && hidden[col.ID] {
			continue
		}
		visible = append(visible, col)
	}
	return visible
}

func (t *Table) column(id string) (Column, bool) {
	i := slices.IndexFunc(t.columns, func(c Column) bool { return c.ID == id })
	if i < 0 {
		return Column{}, false
	}
	return t.columns[i], true
}

func (t *Table) hasColumn(id string) bool {
	_, ok := t.column(id)
	return ok
}
