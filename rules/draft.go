package rules

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNoColumns rejects a draft with an empty column selection
	ErrNoColumns = errors.New("at least one column must be selected")

	// ErrEmptyRule rejects a draft with neither operand text nor style
	ErrEmptyRule = errors.New("operand and style cannot both be empty")
)

// Draft is what the rule authoring panel collects before "Apply"
type Draft struct {
	Columns    []string     `json:"columns"`
	Operator   Operator     `json:"operator,omitempty"`
	Operand    string       `json:"operand"`
	Color      string       `json:"color,omitempty"`
	Background string       `json:"backgroundColor,omitempty"`
	Fonts      []FontToggle `json:"fonts,omitempty"`
}

// Style assembles the style payload: font toggles first, then the
// foreground and background colors
func (d Draft) Style() Style {
	style := FontStyle(d.Fonts...)
	if c := strings.TrimSpace(d.Color); c != "" {
		style = style.With(PropertyColor, c)
	}
	if bg := strings.TrimSpace(d.Background); bg != "" {
		style = style.With(PropertyBackgroundColor, bg)
	}
	return style
}

// Validate is the pre-store gate. known lists the column ids the table
// offers; a nil known skips the membership check.
func (d Draft) Validate(known []string) error {
	if len(d.Columns) == 0 {
		return ErrNoColumns
	}
	for _, col := range d.Columns {
		if col == "" {
			return fmt.Errorf("%w: column id cannot be empty", ErrInvalidRule)
		}
		if known != nil && !slices.Contains(known, col) {
			return fmt.Errorf("%w: unknown column %q", ErrInvalidRule, col)
		}
	}

	if d.Operator != "" && !d.Operator.Valid() {
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidRule, d.Operator)
	}

	for _, f := range d.Fonts {
		if !f.Valid() {
			return fmt.Errorf("%w: unknown font toggle %q", ErrInvalidRule, f)
		}
	}

	if strings.TrimSpace(d.Operand) == "" && d.Style().IsEmpty() {
		return ErrEmptyRule
	}

	return nil
}

// Build validates the draft and turns it into a Rule with a fresh ID.
// The operand is coerced to a number when it parses cleanly.
func (d Draft) Build(known []string) (*Rule, error) {
	if err := d.Validate(known); err != nil {
		return nil, err
	}

	op := d.Operator
	if op == "" {
		op = DefaultOperator
	}

	var columns []string
	for _, col := range d.Columns {
		if !slices.Contains(columns, col) {
			columns = append(columns, col)
		}
	}

	return &Rule{
		ID:        uuid.NewString(),
		Columns:   columns,
		Operator:  op,
		Operand:   ParseOperand(d.Operand),
		Style:     d.Style(),
		CreatedAt: time.Now(),
	}, nil
}
