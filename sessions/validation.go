package sessions

import (
	"fmt"
	"regexp"

	"github.com/liamcoop/cellrules/dataset"
)

const (
	maxColumns          = 100
	maxIdentifierLength = 100
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateSchema checks a dataset schema before sessions are built on it.
// Column names double as CEL variables in table filters, so they must be
// plain identifiers.
func ValidateSchema(schema dataset.Schema) error {
	if len(schema) == 0 {
		return fmt.Errorf("schema cannot be empty, must contain at least one column")
	}

	if len(schema) > maxColumns {
		return fmt.Errorf("schema contains %d columns, maximum allowed is %d", len(schema), maxColumns)
	}

	seen := make(map[string]bool, len(schema))
	for _, f := range schema {
		if err := validateIdentifier(f.Name); err != nil {
			return fmt.Errorf("invalid column name %q: %w", f.Name, err)
		}

		if seen[f.Name] {
			return fmt.Errorf("duplicate column name %q", f.Name)
		}
		seen[f.Name] = true

		if !f.Type.Valid() {
			return fmt.Errorf("column %q has invalid type %q (must be one of: string, number, bool)", f.Name, f.Type)
		}
	}

	return nil
}

// validateIdentifier requires 1-100 characters matching validIdentifier
// that are not a reserved word
func validateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > maxIdentifierLength {
		return fmt.Errorf("identifier length %d exceeds maximum of %d characters", len(name), maxIdentifierLength)
	}

	if !validIdentifier.MatchString(name) {
		return fmt.Errorf("must match pattern %s (start with letter or underscore, followed by letters, digits, or underscores)", validIdentifier)
	}

	if reservedKeywords[name] {
		return fmt.Errorf("cannot use reserved keyword %q as identifier", name)
	}

	return nil
}

// reservedKeywords are CEL literals and reserved words, plus "row", which
// table filters bind to the whole row
var reservedKeywords = map[string]bool{
	"true":  true,
	"false": true,
	"null":  true,
	"row":   true,

	"if":       true,
	"else":     true,
	"for":      true,
	"while":    true,
	"break":    true,
	"continue": true,
	"return":   true,

	"var":      true,
	"let":      true,
	"const":    true,
	"function": true,

	"in":        true,
	"as":        true,
	"import":    true,
	"package":   true,
	"namespace": true,
	"loop":      true,
	"void":      true,
}
