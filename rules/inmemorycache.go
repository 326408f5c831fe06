package rules

import (
	"slices"
	"sync"
)

// InMemoryRulesCache indexes rules by target column.
// Thread-safe for concurrent access
type InMemoryRulesCache struct {
	byColumn map[string][]*Rule
	size     int
	isValid  bool
	mu       sync.RWMutex
}

// NewInMemoryRulesCache creates an empty, invalid cache
func NewInMemoryRulesCache() *InMemoryRulesCache {
	return &InMemoryRulesCache{}
}

// Get returns the rules for columnID. A valid cache with no rules for the
// column returns (nil, true).
func (c *InMemoryRulesCache) Get(columnID string) ([]*Rule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isValid {
		return nil, false
	}

	// Return copy to prevent external modifications
	return slices.Clone(c.byColumn[columnID]), true
}

// Set rebuilds the index. A rule listing the same column twice is indexed
// once for it.
func (c *InMemoryRulesCache) Set(rules []*Rule) {
	byColumn := make(map[string][]*Rule)
	for _, rule := range rules {
		for i, col := range rule.Columns {
			if slices.Contains(rule.Columns[:i], col) {
				continue
			}
			byColumn[col] = append(byColumn[col], rule)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.byColumn = byColumn
	c.size = len(rules)
	c.isValid = true
}

// Invalidate clears the cache
func (c *InMemoryRulesCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byColumn = nil
	c.size = 0
	c.isValid = false
}

// IsValid returns true if cache contains valid data
func (c *InMemoryRulesCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.isValid
}

// Size is the number of rules in the snapshot
func (c *InMemoryRulesCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.size
}
