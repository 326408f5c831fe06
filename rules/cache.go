package rules

// RulesCache is a per-column view of a RuleStore. It is rebuilt whenever
// the store changes and only read during evaluation.
type RulesCache interface {
	// Get returns the rules targeting columnID in store order.
	// ok is false when the cache holds no valid snapshot.
	Get(columnID string) (rules []*Rule, ok bool)

	// Set replaces the snapshot with an index built from rules
	Set(rules []*Rule)

	// Invalidate drops the snapshot
	Invalidate()

	// IsValid returns true if the cache has a snapshot
	IsValid() bool
}
