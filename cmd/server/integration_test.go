//go:build integration

package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB creates an empty PostgreSQL testcontainer; the server
// migrates it on start
func setupTestDB(t *testing.T) (*sql.DB, string, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("postgres://postgres:password@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	for i := 0; i < 30; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	cleanup := func() {
		db.Close()
		postgres.Terminate(ctx)
	}

	return db, connStr, cleanup
}

// TestEndToEnd_PostgresDataset tests the complete workflow against Postgres:
// 1. Start the server with MIGRATE_ON_START
// 2. Create a session and a rule
// 3. Change a payment and refresh the session
// 4. Render the table with the rule applied to the new value
func TestEndToEnd_PostgresDataset(t *testing.T) {
	db, connStr, cleanup := setupTestDB(t)
	defer cleanup()

	server, err := NewServer(context.Background(), Config{
		DatabaseURL:    connStr,
		MigrateOnStart: true,
		AllowedOrigins: []string{"*"},
	})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	defer server.db.Close()

	ts := httptest.NewServer(server)
	defer ts.Close()
	baseURL := ts.URL + "/api/v1"

	health := makeRequest(t, http.MethodGet, baseURL+"/health", nil)
	if health["dataset"] != "postgres" {
		t.Errorf("health = %v", health)
	}

	t.Log("Step 2: Creating session and rule...")
	sessionURL := baseURL + "/sessions/" + createSession(t, baseURL)
	makeRequest(t, http.MethodPost, sessionURL+"/rules", map[string]any{
		"columns":  []string{"status"},
		"operator": "equals",
		"operand":  "failed",
		"color":    "red",
	})

	t.Log("Step 3: Failing a payment and refreshing...")
	if _, err := db.Exec(`UPDATE payments SET status = 'failed' WHERE id = 'm5gr84i9'`); err != nil {
		t.Fatalf("Failed to update payment: %v", err)
	}
	makeRequest(t, http.MethodPost, sessionURL+"/refresh", nil)

	t.Log("Step 4: Rendering the table...")
	page := makeRequest(t, http.MethodGet, sessionURL+"/table?filter.id=m5gr84i9", nil)
	if page["totalRows"] != float64(1) {
		t.Fatalf("page = %v", page)
	}
	cells := page["rows"].([]any)[0].(map[string]any)["cells"].([]any)
	for _, c := range cells {
		cell := c.(map[string]any)
		if cell["columnId"] != "status" {
			continue
		}
		if style := cell["style"].(map[string]any); style["color"] != "red" {
			t.Errorf("refreshed status cell style = %v", style)
		}
	}
}
