package rules

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Operator is the comparison a rule applies between a cell value and its operand
type Operator string

const (
	OperatorContains    Operator = "contains"
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "notEquals"
	OperatorGreaterThan Operator = "greaterThan"
	OperatorLessThan    Operator = "lessThan"
)

// DefaultOperator is preselected by the authoring panel
const DefaultOperator = OperatorContains

// Operators lists every operator in display order
var Operators = []Operator{
	OperatorContains,
	OperatorEquals,
	OperatorNotEquals,
	OperatorGreaterThan,
	OperatorLessThan,
}

var operatorLabels = map[Operator]string{
	OperatorContains:    "Contains",
	OperatorEquals:      "Equals",
	OperatorNotEquals:   "Not Equals",
	OperatorGreaterThan: "Greater Than",
	OperatorLessThan:    "Less Than",
}

var operatorTests = map[Operator]func(value, operand Scalar) bool{
	OperatorContains:    contains,
	OperatorEquals:      equals,
	OperatorNotEquals:   func(a, b Scalar) bool { return !equals(a, b) },
	OperatorGreaterThan: func(a, b Scalar) bool { return compareNumbers(a, b, func(x, y float64) bool { return x > y }) },
	OperatorLessThan:    func(a, b Scalar) bool { return compareNumbers(a, b, func(x, y float64) bool { return x < y }) },
}

// ParseOperator validates an operator name
func ParseOperator(name string) (Operator, error) {
	op := Operator(name)
	if !op.Valid() {
		return "", fmt.Errorf("unknown operator %q (must be one of: contains, equals, notEquals, greaterThan, lessThan)", name)
	}
	return op, nil
}

// Valid reports whether op is one of the five known operators
func (op Operator) Valid() bool {
	_, ok := operatorTests[op]
	return ok
}

// Label is the human-readable operator name
func (op Operator) Label() string {
	if label, ok := operatorLabels[op]; ok {
		return label
	}
	return string(op)
}

// Test reports whether value satisfies op against operand. It never panics
// and never errors: unknown operators and incomparable inputs are a miss.
func Test(op Operator, value, operand Scalar) bool {
	fn, ok := operatorTests[op]
	if !ok {
		return false
	}
	return fn(value, operand)
}

// contains is a case-insensitive substring test over the stringified values.
// A missing or empty needle never matches, so a style-only rule paints nothing.
func contains(value, operand Scalar) bool {
	if value.IsNull() || operand.IsNull() {
		return false
	}
	needle := operand.String()
	if needle == "" {
		return false
	}
	return strings.Contains(lower(value.String()), lower(needle))
}

// equals compares numerically when both sides coerce to numbers, then
// case-insensitively when both are strings, and strictly otherwise.
func equals(value, operand Scalar) bool {
	a, aok := value.Number()
	b, bok := operand.Number()
	if aok && bok {
		return a == b
	}

	as, aIsString := value.AsString()
	bs, bIsString := operand.AsString()
	if aIsString && bIsString {
		return lower(as) == lower(bs)
	}

	return value.Equal(operand)
}

func compareNumbers(value, operand Scalar, cmp func(a, b float64) bool) bool {
	a, aok := value.Number()
	b, bok := operand.Number()
	return aok && bok && cmp(a, b)
}

// lower applies Unicode full lowercasing. A Caser carries state, so each call
// gets its own.
func lower(s string) string {
	return cases.Lower(language.Und).String(s)
}
