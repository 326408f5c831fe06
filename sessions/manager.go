// Package sessions keeps one rule store per viewer session. Every session
// evaluates its own rules against a shared dataset.
package sessions

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/cellrules/dataset"
	"github.com/liamcoop/cellrules/internal/logger"
	"github.com/liamcoop/cellrules/internal/metrics"
	"github.com/liamcoop/cellrules/rules"
	"github.com/liamcoop/cellrules/table"
)

// ErrSessionNotFound is returned for unknown session ids
var ErrSessionNotFound = errors.New("session not found")

// Session owns a rule store, the engine over it and a table of the dataset
// rows styled by that engine.
type Session struct {
	ID        string
	CreatedAt time.Time

	schema  dataset.Schema
	engine  *rules.Engine
	metrics *metrics.Metrics

	table *table.Table
	mu    sync.RWMutex // guards table
}

// Info is a summary of a session
type Info struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Rules     int       `json:"rules"`
	Rows      int       `json:"rows"`
}

// Info summarises the session
func (s *Session) Info() Info {
	info := Info{ID: s.ID, CreatedAt: s.CreatedAt}
	if list, err := s.engine.Rules(); err == nil {
		info.Rules = len(list)
	}
	s.mu.RLock()
	info.Rows = s.table.Len()
	s.mu.RUnlock()
	return info
}

// AddRule validates the draft against the dataset columns, builds the rule
// and appends it to the session's store
func (s *Session) AddRule(d rules.Draft) (*rules.Rule, error) {
	rule, err := d.Build(s.schema.Names())
	if err != nil {
		return nil, err
	}

	if err := s.engine.AddRule(rule); err != nil {
		return nil, err
	}

	s.metrics.RuleAdded()
	logger.Debug("rule added", "session_id", s.ID, "rule_id", rule.ID, "columns", rule.Columns, "operator", rule.Operator)
	return rule, nil
}

// RemoveRule deletes a rule by id
func (s *Session) RemoveRule(id string) error {
	if err := s.engine.RemoveRule(id); err != nil {
		return err
	}
	s.metrics.RuleRemoved()
	logger.Debug("rule removed", "session_id", s.ID, "rule_id", id)
	return nil
}

func (s *Session) Rule(id string) (*rules.Rule, error) {
	return s.engine.Rule(id)
}

// Rules returns the session's rules in insertion order
func (s *Session) Rules() ([]*rules.Rule, error) {
	return s.engine.Rules()
}

// Evaluate returns the merged style for one cell
func (s *Session) Evaluate(columnID string, value rules.Scalar) (rules.Style, error) {
	style, err := s.engine.Evaluate(columnID, value)
	if err != nil {
		return rules.Style{}, err
	}
	s.metrics.CellEvaluated(!style.IsEmpty())
	return style, nil
}

// Explain reports every rule targeting the column and whether it matched
func (s *Session) Explain(columnID string, value rules.Scalar) ([]*rules.EvaluationResult, error) {
	return s.engine.Explain(columnID, value)
}

// Render renders the current rows with the session's rules applied
func (s *Session) Render(state table.State) (*table.Page, error) {
	s.mu.RLock()
	t := s.table
	s.mu.RUnlock()

	page, err := t.Render(state)
	if err != nil {
		s.metrics.RenderFailed()
		return nil, err
	}
	return page, nil
}

// Schema returns the dataset schema the session's rules are checked against
func (s *Session) Schema() dataset.Schema {
	return slices.Clone(s.schema)
}

func (s *Session) setRows(rows []table.Row) error {
	t, err := table.New(s.schema.Columns(), rows, table.EvaluatorFunc(s.Evaluate))
	if err != nil {
		return fmt.Errorf("failed to build table: %w", err)
	}

	s.mu.Lock()
	s.table = t
	s.mu.Unlock()
	return nil
}

// Manager creates and tracks sessions over one dataset source
type Manager struct {
	source   dataset.Source
	schema   dataset.Schema
	metrics  *metrics.Metrics
	sessions map[string]*Session
	mu       sync.RWMutex
}

// NewManager validates the source schema and returns an empty manager.
// m may be nil.
func NewManager(source dataset.Source, m *metrics.Metrics) (*Manager, error) {
	schema := source.Schema()
	if err := ValidateSchema(schema); err != nil {
		return nil, fmt.Errorf("invalid dataset schema: %w", err)
	}

	return &Manager{
		source:   source,
		schema:   schema,
		metrics:  m,
		sessions: make(map[string]*Session),
	}, nil
}

// Schema returns the dataset schema shared by every session
func (m *Manager) Schema() dataset.Schema {
	return slices.Clone(m.schema)
}

// CreateSession loads the dataset rows and opens a session with an empty
// rule store
func (m *Manager) CreateSession(ctx context.Context) (*Session, error) {
	rows, err := m.source.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rows: %w", err)
	}

	engine, err := rules.NewEngine(rules.NewInMemoryRuleStore())
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		schema:    m.schema,
		engine:    engine,
		metrics:   m.metrics,
	}
	if err := s.setRows(rows); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.metrics.SessionOpened()
	logger.Info("session created", "session_id", s.ID, "rows", len(rows))
	return s, nil
}

// GetSession retrieves a session by id
func (m *Manager) GetSession(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.sessions[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// ListSessions returns every session, oldest first
func (m *Manager) ListSessions() []*Session {
	m.mu.RLock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.RUnlock()

	slices.SortFunc(list, func(a, b *Session) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return list
}

// DeleteSession drops a session and its rules
func (m *Manager) DeleteSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; !exists {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	delete(m.sessions, id)
	m.metrics.SessionClosed()
	logger.Info("session deleted", "session_id", id)
	return nil
}

// RefreshSession reloads the dataset rows and swaps the session's table.
// Rules are kept; renders in flight finish on the old rows.
func (m *Manager) RefreshSession(ctx context.Context, id string) error {
	s, err := m.GetSession(id)
	if err != nil {
		return err
	}

	rows, err := m.source.Rows(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rows: %w", err)
	}

	if err := s.setRows(rows); err != nil {
		return err
	}

	logger.Info("session refreshed", "session_id", id, "rows", len(rows))
	return nil
}
