package rules

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// ErrMissingColumnIdentifier is returned when a cell is evaluated without
	// a column id. It is a caller bug, not a per-cell condition.
	ErrMissingColumnIdentifier = errors.New("column identifier is required")

	// ErrInvalidRule is returned by AddRule for rules that break the store
	// invariants (no columns, empty column id, unknown operator)
	ErrInvalidRule = errors.New("invalid rule")
)

// Engine evaluates cells against the rules of one store.
// Mutations are serialized. Evaluation is safe to call concurrently and
// repeatedly; it also sees rules added to the store directly.
type Engine struct {
	store   RuleStore
	cache   RulesCache
	indexed atomic.Uint64 // store version the cache was built from
	mu      sync.Mutex    // serializes store mutation + reindex
}

// NewEngine creates an engine over store and indexes the rules it already holds
func NewEngine(store RuleStore) (*Engine, error) {
	en := &Engine{
		store: store,
		cache: NewInMemoryRulesCache(),
	}

	if err := en.reindex(); err != nil {
		return nil, fmt.Errorf("failed to index rules: %w", err)
	}

	return en, nil
}

// reindex rebuilds the per-column cache from the store. Callers hold en.mu
// (or own the engine exclusively, as NewEngine does).
func (en *Engine) reindex() error {
	version := en.store.Version()
	rules, err := en.store.List()
	if err != nil {
		en.cache.Invalidate()
		return err
	}
	en.cache.Set(rules)
	en.indexed.Store(version)
	return nil
}

// syncCache rebuilds the cache when the store was mutated without going
// through the engine.
func (en *Engine) syncCache() {
	if en.indexed.Load() == en.store.Version() {
		return
	}

	en.mu.Lock()
	defer en.mu.Unlock()

	if en.indexed.Load() != en.store.Version() {
		// a failed rebuild leaves the cache invalid; candidates then scans
		_ = en.reindex()
	}
}

// AddRule validates r and appends it to the store. Later evaluations see
// it; styles already rendered are not recomputed.
func (en *Engine) AddRule(r *Rule) error {
	if err := checkRule(r); err != nil {
		return err
	}

	en.mu.Lock()
	defer en.mu.Unlock()

	if err := en.store.Add(r); err != nil {
		return err
	}

	return en.reindex()
}

// RemoveRule deletes a rule by ID. The remaining rules keep their order.
func (en *Engine) RemoveRule(id string) error {
	en.mu.Lock()
	defer en.mu.Unlock()

	if err := en.store.Delete(id); err != nil {
		return err
	}

	return en.reindex()
}

// Rule returns a rule by ID
func (en *Engine) Rule(id string) (*Rule, error) {
	return en.store.Get(id)
}

// Rules returns every rule in store order
func (en *Engine) Rules() ([]*Rule, error) {
	return en.store.List()
}

// Evaluate returns the combined style for a cell: the styles of every rule
// that targets columnID and whose operator test passes, merged in store
// order with later rules winning. No match yields the empty style.
func (en *Engine) Evaluate(columnID string, value Scalar) (Style, error) {
	candidates, err := en.candidates(columnID)
	if err != nil {
		return Style{}, err
	}

	var matched []Style
	for _, rule := range candidates {
		if Test(rule.Operator, value, rule.Operand) {
			matched = append(matched, rule.Style)
		}
	}

	return MergeStyles(matched), nil
}

// Explain reports, for every rule targeting columnID, whether it matched
// value. Results are in store order.
func (en *Engine) Explain(columnID string, value Scalar) ([]*EvaluationResult, error) {
	candidates, err := en.candidates(columnID)
	if err != nil {
		return nil, err
	}

	results := make([]*EvaluationResult, 0, len(candidates))
	for _, rule := range candidates {
		results = append(results, &EvaluationResult{
			RuleID:   rule.ID,
			Operator: rule.Operator,
			Operand:  rule.Operand,
			Matched:  Test(rule.Operator, value, rule.Operand),
			Style:    rule.Style,
		})
	}

	return results, nil
}

// EvaluateRow evaluates every cell of a row. Cells with no matching rule
// are omitted from the result.
func (en *Engine) EvaluateRow(row map[string]Scalar) (map[string]Style, error) {
	styles := make(map[string]Style)
	for columnID, value := range row {
		style, err := en.Evaluate(columnID, value)
		if err != nil {
			return nil, err
		}
		if !style.IsEmpty() {
			styles[columnID] = style
		}
	}
	return styles, nil
}

// candidates returns the rules targeting columnID in store order. A stale
// cache is rebuilt first; an invalid one is bypassed with a store scan.
func (en *Engine) candidates(columnID string) ([]*Rule, error) {
	if columnID == "" {
		return nil, ErrMissingColumnIdentifier
	}

	en.syncCache()
	if rules, ok := en.cache.Get(columnID); ok {
		return rules, nil
	}

	all, err := en.store.List()
	if err != nil {
		return nil, err
	}

	var selected []*Rule
	for _, rule := range all {
		if rule.Targets(columnID) {
			selected = append(selected, rule)
		}
	}
	return selected, nil
}

func checkRule(r *Rule) error {
	if r == nil {
		return fmt.Errorf("%w: rule is nil", ErrInvalidRule)
	}
	if len(r.Columns) == 0 {
		return fmt.Errorf("%w: at least one column is required", ErrInvalidRule)
	}
	for _, col := range r.Columns {
		if col == "" {
			return fmt.Errorf("%w: column id cannot be empty", ErrInvalidRule)
		}
	}
	if !r.Operator.Valid() {
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidRule, r.Operator)
	}
	return nil
}
