package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/lib/pq"

	"github.com/liamcoop/cellrules/dataset"
	"github.com/liamcoop/cellrules/internal/logger"
	"github.com/liamcoop/cellrules/internal/metrics"
	"github.com/liamcoop/cellrules/migrations"
	"github.com/liamcoop/cellrules/rules"
	"github.com/liamcoop/cellrules/sessions"
	"github.com/liamcoop/cellrules/table"
)

// Config is read from the environment by configFromEnv
type Config struct {
	DatabaseURL    string
	MigrateOnStart bool
	Port           string
	AllowedOrigins []string
}

func configFromEnv() Config {
	cfg := Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		MigrateOnStart: strings.ToLower(os.Getenv("MIGRATE_ON_START")) == "true",
		Port:           os.Getenv("PORT"),
		AllowedOrigins: []string{"*"},
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = nil
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}
	return cfg
}

type Server struct {
	db       *sql.DB // nil when serving the built-in sample
	sessions *sessions.Manager
	metrics  *metrics.Metrics
	router   *chi.Mux
}

// NewServer connects to DATABASE_URL when set, otherwise serves the
// built-in payments sample
func NewServer(ctx context.Context, cfg Config) (*Server, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("DATABASE_URL not set, serving the built-in sample dataset")
		return newServer(dataset.NewPaymentsSource(nil), nil, metrics.New(), cfg.AllowedOrigins)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.MigrateOnStart {
		logger.Info("Running migrations...")
		m, err := migrations.New(cfg.DatabaseURL)
		if err != nil {
			db.Close()
			return nil, err
		}
		err = migrations.Up(m)
		m.Close()
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	s, err := newServer(dataset.NewPaymentsPostgresSource(db), db, metrics.New(), cfg.AllowedOrigins)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func newServer(source dataset.Source, db *sql.DB, m *metrics.Metrics, origins []string) (*Server, error) {
	manager, err := sessions.NewManager(source, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	s := &Server{
		db:       db,
		sessions: manager,
		metrics:  m,
	}
	s.setupRoutes(origins)
	return s, nil
}

func (s *Server) setupRoutes(origins []string) {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/operators", s.handleOperators)
		r.Get("/schema", s.handleSchema)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Post("/", s.handleCreateSession)

			r.Route("/{sessionId}", func(r chi.Router) {
				r.Delete("/", s.handleDeleteSession)
				r.Post("/refresh", s.handleRefreshSession)

				r.Get("/rules", s.handleListRules)
				r.Post("/rules", s.handleCreateRule)
				r.Get("/rules/{ruleId}", s.handleGetRule)
				r.Delete("/rules/{ruleId}", s.handleDeleteRule)

				r.Post("/evaluate", s.handleEvaluate)
				r.Post("/explain", s.handleExplain)
				r.Get("/table", s.handleTable)
			})
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "healthy",
		Dataset:  "sample",
		Sessions: len(s.sessions.ListSessions()),
	}

	if s.db != nil {
		resp.Dataset = "postgres"
		if err := s.db.PingContext(r.Context()); err != nil {
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOperators(w http.ResponseWriter, r *http.Request) {
	resp := OperatorsResponse{Default: rules.DefaultOperator}
	for _, op := range rules.Operators {
		resp.Operators = append(resp.Operators, OperatorResponse{Kind: op, Label: op.Label()})
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, SchemaResponse{Fields: s.sessions.Schema()})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list := s.sessions.ListSessions()
	resp := SessionsListResponse{Sessions: make([]sessions.Info, 0, len(list))}
	for _, sess := range list {
		resp.Sessions = append(resp.Sessions, sess.Info())
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.CreateSession(r.Context())
	if err != nil {
		respondError(w, statusFor(err), "failed to create session", err)
		return
	}
	respondJSON(w, http.StatusCreated, sess.Info())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.DeleteSession(chi.URLParam(r, "sessionId")); err != nil {
		respondError(w, statusFor(err), "failed to delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefreshSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")
	if err := s.sessions.RefreshSession(r.Context(), id); err != nil {
		respondError(w, statusFor(err), "failed to refresh session", err)
		return
	}

	sess, err := s.sessions.GetSession(id)
	if err != nil {
		respondError(w, statusFor(err), "session not found", err)
		return
	}
	respondJSON(w, http.StatusOK, sess.Info())
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	list, err := sess.Rules()
	if err != nil {
		respondError(w, statusFor(err), "failed to list rules", err)
		return
	}
	if list == nil {
		list = []*rules.Rule{}
	}
	respondJSON(w, http.StatusOK, RulesListResponse{Rules: list})
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var draft rules.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule, err := sess.AddRule(draft)
	if err != nil {
		respondError(w, statusFor(err), "invalid rule", err)
		return
	}
	respondJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	rule, err := sess.Rule(chi.URLParam(r, "ruleId"))
	if err != nil {
		respondError(w, statusFor(err), "rule not found", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	if err := sess.RemoveRule(chi.URLParam(r, "ruleId")); err != nil {
		respondError(w, statusFor(err), "rule not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	style, err := sess.Evaluate(req.ColumnID, req.Value)
	if err != nil {
		respondError(w, statusFor(err), "evaluation failed", err)
		return
	}
	respondJSON(w, http.StatusOK, EvaluateResponse{Style: style, CSS: style.CSS()})
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	results, err := sess.Explain(req.ColumnID, req.Value)
	if err != nil {
		respondError(w, statusFor(err), "evaluation failed", err)
		return
	}

	var matched []rules.Style
	for _, res := range results {
		if res.Matched {
			matched = append(matched, res.Style)
		}
	}
	if results == nil {
		results = []*rules.EvaluationResult{}
	}
	respondJSON(w, http.StatusOK, ExplainResponse{Results: results, Style: rules.MergeStyles(matched)})
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	state, err := parseTableState(r.URL.Query())
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid table query", err)
		return
	}

	page, err := sess.Render(state)
	if err != nil {
		respondError(w, statusFor(err), "failed to render table", err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// session resolves {sessionId}, writing a 404 when it does not exist
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*sessions.Session, bool) {
	sess, err := s.sessions.GetSession(chi.URLParam(r, "sessionId"))
	if err != nil {
		respondError(w, statusFor(err), "session not found", err)
		return nil, false
	}
	return sess, true
}

// parseTableState reads the table query:
//
//	sort=amount,-email   ascending amount, then descending email
//	filter.email=doe     case-insensitive substring filter
//	where=amount > 500.0 CEL row filter
//	hide=email,status    hidden columns
//	page=0&pageSize=50   zero-based page index and size
func parseTableState(q url.Values) (table.State, error) {
	var state table.State

	for _, key := range splitList(q.Get("sort")) {
		desc := strings.HasPrefix(key, "-")
		state.Sorting = append(state.Sorting, table.Sort{ColumnID: strings.TrimPrefix(key, "-"), Desc: desc})
	}

	for key, values := range q {
		col, ok := strings.CutPrefix(key, "filter.")
		if !ok || len(values) == 0 {
			continue
		}
		if state.Filters == nil {
			state.Filters = make(map[string]string)
		}
		state.Filters[col] = values[0]
	}

	state.Where = strings.TrimSpace(q.Get("where"))

	for _, col := range splitList(q.Get("hide")) {
		if state.Hidden == nil {
			state.Hidden = make(map[string]bool)
		}
		state.Hidden[col] = true
	}

	var err error
	if state.PageIndex, err = intParam(q, "page"); err != nil {
		return table.State{}, err
	}
	if state.PageSize, err = intParam(q, "pageSize"); err != nil {
		return table.State{}, err
	}
	return state, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func intParam(q url.Values, name string) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", name, raw)
	}
	return n, nil
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, sessions.ErrSessionNotFound), errors.Is(err, rules.ErrRuleNotFound):
		return http.StatusNotFound
	case errors.Is(err, rules.ErrMissingColumnIdentifier),
		errors.Is(err, rules.ErrInvalidRule),
		errors.Is(err, rules.ErrNoColumns),
		errors.Is(err, rules.ErrEmptyRule),
		errors.Is(err, table.ErrInvalidExpression),
		errors.Is(err, table.ErrInvalidState):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}

	if status >= http.StatusInternalServerError {
		logger.Error(message, "status", status, "error", err)
	} else {
		logger.Warn(message, "status", status, "error", err)
	}
	respondJSON(w, status, resp)
}

func main() {
	ctx := context.Background()

	if err := logger.Setup(ctx, logger.ConfigFromEnv()); err != nil {
		logger.WarnAlways("logger setup degraded", "error", err)
	}
	defer logger.Shutdown(ctx)

	cfg := configFromEnv()

	server, err := NewServer(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to create server", "error", err)
	}
	if server.db != nil {
		defer server.db.Close()
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Server stopped")
}
