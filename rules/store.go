package rules

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrRuleNotFound is returned when a rule ID is not in the store
var ErrRuleNotFound = errors.New("rule not found")

// RuleStore holds the ordered working set of rules for a session.
// Insertion order is significant: it is the style merge order.
type RuleStore interface {
	// Add appends a rule
	Add(rule *Rule) error

	// Get a rule by ID
	Get(id string) (*Rule, error)

	// List all rules in insertion order
	List() ([]*Rule, error)

	// Delete removes a rule, keeping the order of the others
	Delete(id string) error

	// Version changes on every successful Add or Delete
	Version() uint64
}

// InMemoryRuleStore implements RuleStore with a slice
type InMemoryRuleStore struct {
	rules   []*Rule
	version uint64
	mu      sync.RWMutex
}

// NewInMemoryRuleStore creates an empty store
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{}
}

// Add appends rule to the end of the sequence. Rules with identical content
// are kept; only IDs must be unique. An empty ID is filled with a UUID and a
// zero CreatedAt with the current time.
func (s *InMemoryRuleStore) Add(rule *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if s.indexOf(rule.ID) >= 0 {
		return fmt.Errorf("rule with ID %s already exists", rule.ID)
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}

	s.rules = append(s.rules, rule)
	s.version++
	return nil
}

// Get retrieves a rule by ID
func (s *InMemoryRuleStore) Get(id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil, fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}
	return s.rules[i], nil
}

// List returns a snapshot of the rules in insertion order
func (s *InMemoryRuleStore) List() ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.rules), nil
}

// Delete removes a rule from the store
func (s *InMemoryRuleStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}

	s.rules = slices.Delete(s.rules, i, i+1)
	s.version++
	return nil
}

// Version is a counter of successful mutations
func (s *InMemoryRuleStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.version
}

// Len is the number of stored rules
func (s *InMemoryRuleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.rules)
}

func (s *InMemoryRuleStore) indexOf(id string) int {
	return slices.IndexFunc(s.rules, func(r *Rule) bool { return r.ID == id })
}
