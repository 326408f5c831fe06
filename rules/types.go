package rules

import (
	"slices"
	"time"
)

// Rule is one conditional formatting directive: when a cell in one of
// Columns satisfies Operator against Operand, Style is applied to it.
// A rule must not be modified after it has been added to a store.
type Rule struct {
	ID        string    `json:"id"`
	Columns   []string  `json:"columns"`
	Operator  Operator  `json:"operator"`
	Operand   Scalar    `json:"operand"`
	Style     Style     `json:"style"`
	CreatedAt time.Time `json:"createdAt"`
}

// Targets reports whether the rule applies to columnID
func (r *Rule) Targets(columnID string) bool {
	return slices.Contains(r.Columns, columnID)
}

// Matches reports whether the rule targets columnID and its operator test
// passes for value
func (r *Rule) Matches(columnID string, value Scalar) bool {
	return r.Targets(columnID) && Test(r.Operator, value, r.Operand)
}

// EvaluationResult is the outcome of testing one rule against one cell
type EvaluationResult struct {
	RuleID   string   `json:"ruleId"`
	Operator Operator `json:"operator"`
	Operand  Scalar   `json:"operand"`
	Matched  bool     `json:"matched"`
	Style    Style    `json:"style"`
}
