package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/liamcoop/cellrules/dataset"
	"github.com/liamcoop/cellrules/internal/metrics"
)

// newTestServer serves the built-in payments sample
func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()

	server, err := newServer(dataset.NewPaymentsSource(nil), nil, metrics.New(), []string{"https://grid.example.com"})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)
	return ts, ts.URL + "/api/v1"
}

func createSession(t *testing.T, baseURL string) string {
	t.Helper()
	session := makeRequest(t, http.MethodPost, baseURL+"/sessions", nil)
	id, ok := session["id"].(string)
	if !ok || id == "" {
		t.Fatalf("Session response has no id: %v", session)
	}
	return id
}

func TestHealthAndMetadata(t *testing.T) {
	_, baseURL := newTestServer(t)

	health := makeRequest(t, http.MethodGet, baseURL+"/health", nil)
	if health["status"] != "healthy" || health["dataset"] != "sample" {
		t.Errorf("health = %v", health)
	}

	ops := makeRequest(t, http.MethodGet, baseURL+"/operators", nil)
	list, _ := ops["operators"].([]any)
	if len(list) != 5 || ops["default"] != "contains" {
		t.Fatalf("operators = %v", ops)
	}
	if first := list[3].(map[string]any); first["kind"] != "greaterThan" || first["label"] != "Greater Than" {
		t.Errorf("operators[3] = %v", first)
	}

	schema := makeRequest(t, http.MethodGet, baseURL+"/schema", nil)
	fields, _ := schema["fields"].([]any)
	if len(fields) != 4 {
		t.Errorf("schema fields = %v", schema)
	}
}

// TestEndToEnd_RuleStylesTable covers the authoring flow: add rules, then
// render and evaluate cells against them
func TestEndToEnd_RuleStylesTable(t *testing.T) {
	_, baseURL := newTestServer(t)
	sessionURL := baseURL + "/sessions/" + createSession(t, baseURL)

	first := makeRequest(t, http.MethodPost, sessionURL+"/rules", map[string]any{
		"columns":         []string{"status"},
		"operand":         "failed",
		"backgroundColor": "#ffed9d",
	})
	second := makeRequest(t, http.MethodPost, sessionURL+"/rules", map[string]any{
		"columns":  []string{"status"},
		"operator": "equals",
		"operand":  "failed",
		"color":    "red",
		"fonts":    []string{"bold"},
	})
	if first["operator"] != "contains" {
		t.Errorf("default operator = %v, want contains", first["operator"])
	}

	eval := makeRequest(t, http.MethodPost, sessionURL+"/evaluate", map[string]any{"columnId": "status", "value": "failed"})
	style, _ := eval["style"].(map[string]any)
	if style["backgroundColor"] != "#ffed9d" || style["color"] != "red" || style["fontWeight"] != "bold" {
		t.Errorf("merged style = %v", style)
	}
	if eval["css"] != "background-color: #ffed9d; color: red; font-weight: bold" {
		t.Errorf("css = %v", eval["css"])
	}

	explain := makeRequest(t, http.MethodPost, sessionURL+"/explain", map[string]any{"columnId": "status", "value": "Failed twice"})
	results, _ := explain["results"].([]any)
	if len(results) != 2 {
		t.Fatalf("explain results = %v", explain)
	}
	if r0 := results[0].(map[string]any); r0["matched"] != true {
		t.Errorf("contains should match a case-insensitive substring: %v", r0)
	}
	if r1 := results[1].(map[string]any); r1["matched"] != false {
		t.Errorf("equals should not match a longer string: %v", r1)
	}

	page := makeRequest(t, http.MethodGet, sessionURL+"/table?sort=-amount&filter.status=fail&pageSize=2", nil)
	if page["totalRows"] != float64(4) || page["pageCount"] != float64(2) {
		t.Fatalf("page = %v", page)
	}
	rows := page["rows"].([]any)
	cells := rows[0].(map[string]any)["cells"].([]any)
	for _, c := range cells {
		cell := c.(map[string]any)
		switch cell["columnId"] {
		case "amount":
			if cell["value"] != float64(721) {
				t.Errorf("highest failed amount = %v, want 721", cell["value"])
			}
		case "status":
			if s := cell["style"].(map[string]any); s["color"] != "red" {
				t.Errorf("status cell style = %v", s)
			}
		}
	}

	// removing a rule drops its properties
	deleteRequest(t, sessionURL+"/rules/"+second["id"].(string))
	eval = makeRequest(t, http.MethodPost, sessionURL+"/evaluate", map[string]any{"columnId": "status", "value": "failed"})
	if style := eval["style"].(map[string]any); len(style) != 1 {
		t.Errorf("style after delete = %v", style)
	}

	list := makeRequest(t, http.MethodGet, sessionURL+"/rules", nil)
	if rules, _ := list["rules"].([]any); len(rules) != 1 {
		t.Errorf("rules after delete = %v", list)
	}
	got := makeRequest(t, http.MethodGet, sessionURL+"/rules/"+first["id"].(string), nil)
	if got["id"] != first["id"] {
		t.Errorf("get rule = %v", got)
	}
}

func TestNumericOperandFromAuthoring(t *testing.T) {
	_, baseURL := newTestServer(t)
	sessionURL := baseURL + "/sessions/" + createSession(t, baseURL)

	rule := makeRequest(t, http.MethodPost, sessionURL+"/rules", map[string]any{
		"columns":  []string{"amount"},
		"operator": "equals",
		"operand":  "316",
		"fonts":    []string{"italic"},
	})
	if rule["operand"] != float64(316) {
		t.Errorf("operand = %v, want number 316", rule["operand"])
	}

	eval := makeRequest(t, http.MethodPost, sessionURL+"/evaluate", map[string]any{"columnId": "amount", "value": 316})
	if style := eval["style"].(map[string]any); style["fontStyle"] != "italic" {
		t.Errorf("style = %v", style)
	}
}

func TestErrorStatuses(t *testing.T) {
	_, baseURL := newTestServer(t)
	sessionURL := baseURL + "/sessions/" + createSession(t, baseURL)

	tests := []struct {
		name   string
		method string
		url    string
		body   any
		want   int
	}{
		{"unknown session", http.MethodGet, baseURL + "/sessions/nope/rules", nil, http.StatusNotFound},
		{"delete unknown session", http.MethodDelete, baseURL + "/sessions/nope", nil, http.StatusNotFound},
		{"unknown rule", http.MethodGet, sessionURL + "/rules/nope", nil, http.StatusNotFound},
		{"delete unknown rule", http.MethodDelete, sessionURL + "/rules/nope", nil, http.StatusNotFound},
		{"empty rule", http.MethodPost, sessionURL + "/rules", map[string]any{"columns": []string{"status"}}, http.StatusBadRequest},
		{"no columns", http.MethodPost, sessionURL + "/rules", map[string]any{"operand": "x"}, http.StatusBadRequest},
		{"unknown column", http.MethodPost, sessionURL + "/rules", map[string]any{"columns": []string{"country"}, "operand": "CA"}, http.StatusBadRequest},
		{"bad operator", http.MethodPost, sessionURL + "/rules", map[string]any{"columns": []string{"status"}, "operator": "like", "operand": "x"}, http.StatusBadRequest},
		{"missing column id", http.MethodPost, sessionURL + "/evaluate", map[string]any{"value": "x"}, http.StatusBadRequest},
		{"bad json", http.MethodPost, sessionURL + "/evaluate", "{", http.StatusBadRequest},
		{"bad where", http.MethodGet, sessionURL + "/table?where=" + url.QueryEscape("amount >"), nil, http.StatusBadRequest},
		{"bad sort", http.MethodGet, sessionURL + "/table?sort=country", nil, http.StatusBadRequest},
		{"bad page", http.MethodGet, sessionURL + "/table?page=-1", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := makeHTTPRequest(tt.method, tt.url, tt.body)
			if err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.want {
				body, _ := io.ReadAll(resp.Body)
				t.Fatalf("status = %d, want %d: %s", resp.StatusCode, tt.want, body)
			}

			var e ErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
				t.Errorf("error body = %+v, %v", e, err)
			}
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	_, baseURL := newTestServer(t)
	id := createSession(t, baseURL)
	createSession(t, baseURL)

	list := makeRequest(t, http.MethodGet, baseURL+"/sessions", nil)
	if sessions, _ := list["sessions"].([]any); len(sessions) != 2 {
		t.Fatalf("sessions = %v", list)
	}

	refreshed := makeRequest(t, http.MethodPost, baseURL+"/sessions/"+id+"/refresh", nil)
	if refreshed["rows"] != float64(15) {
		t.Errorf("refresh = %v", refreshed)
	}

	deleteRequest(t, baseURL+"/sessions/"+id)
	list = makeRequest(t, http.MethodGet, baseURL+"/sessions", nil)
	if sessions, _ := list["sessions"].([]any); len(sessions) != 1 {
		t.Errorf("sessions after delete = %v", list)
	}
}

func TestTableQueryHidesAndPages(t *testing.T) {
	_, baseURL := newTestServer(t)
	sessionURL := baseURL + "/sessions/" + createSession(t, baseURL)

	q := url.Values{}
	q.Set("where", `amount > 800.0 && status != "processing"`)
	q.Set("hide", "email,id")
	q.Set("sort", "amount")
	page := makeRequest(t, http.MethodGet, sessionURL+"/table?"+q.Encode(), nil)

	// id is the first column and cannot be hidden
	cols := page["columns"].([]any)
	if len(cols) != 3 {
		t.Fatalf("columns = %v", cols)
	}
	if page["totalRows"] != float64(2) {
		t.Errorf("totalRows = %v, want 2 (874 and 910)", page["totalRows"])
	}
}

func TestParseTableState(t *testing.T) {
	q, _ := url.ParseQuery("sort=status,-amount&filter.email=doe&filter.status=&where=amount%3E1.0&hide=email&page=2&pageSize=10")

	state, err := parseTableState(q)
	if err != nil {
		t.Fatalf("parseTableState() failed: %v", err)
	}
	if len(state.Sorting) != 2 || state.Sorting[0].ColumnID != "status" || state.Sorting[0].Desc || !state.Sorting[1].Desc {
		t.Errorf("Sorting = %+v", state.Sorting)
	}
	if state.Filters["email"] != "doe" || len(state.Filters) != 2 {
		t.Errorf("Filters = %v", state.Filters)
	}
	if state.Where != "amount>1.0" || !state.Hidden["email"] || state.PageIndex != 2 || state.PageSize != 10 {
		t.Errorf("state = %+v", state)
	}

	if _, err := parseTableState(url.Values{"pageSize": {"ten"}}); err == nil {
		t.Error("non-numeric pageSize should fail")
	}
}

func TestCORSAndMetrics(t *testing.T) {
	ts, baseURL := newTestServer(t)
	createSession(t, baseURL)

	req, _ := http.NewRequest(http.MethodOptions, baseURL+"/sessions", nil)
	req.Header.Set("Origin", "https://grid.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Preflight failed: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://grid.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "cellrules_sessions 1") {
		t.Errorf("metrics missing session gauge:\n%s", body)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PORT", "")
	t.Setenv("MIGRATE_ON_START", "TRUE")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example.com, ,https://b.example.com")

	cfg := configFromEnv()
	if cfg.Port != "8080" || !cfg.MigrateOnStart || len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("configFromEnv() = %+v", cfg)
	}

	server, err := NewServer(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewServer() without DATABASE_URL failed: %v", err)
	}
	if server.db != nil {
		t.Error("sample server should not hold a database")
	}
}

// Helper function to make HTTP requests with JSON body
func makeRequest(t *testing.T, method, url string, body any) map[string]any {
	t.Helper()

	resp, err := makeHTTPRequest(method, url, body)
	if err != nil {
		t.Fatalf("Failed to make %s request to %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		t.Fatalf("Request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	return result
}

func deleteRequest(t *testing.T, url string) {
	t.Helper()

	resp, err := makeHTTPRequest(http.MethodDelete, url, nil)
	if err != nil {
		t.Fatalf("Failed to make DELETE request to %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		bodyBytes, _ := io.ReadAll(resp.Body)
		t.Fatalf("DELETE failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}
}

// Helper function to make raw HTTP requests. A string body is sent verbatim.
func makeHTTPRequest(method, url string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		bodyReader = strings.NewReader(b)
	default:
		jsonBytes, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 5 * time.Second}
	return client.Do(req)
}
