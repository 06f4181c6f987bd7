//go:build postgres_integration

package store

import (
	"os"
	"testing"
)

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	s, err := OpenSQL(t.Context(), Postgres, dsn)
	if err != nil {
		t.Fatalf("OpenSQL: %v", err)
	}
	defer s.Close()
	if err := s.Migrate(t.Context()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if _, err := s.db.ExecContext(t.Context(), `TRUNCATE stays, boats, slots, plan_metrics, subscriptions, webhook_deliveries RESTART IDENTITY`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	exerciseStore(t, s)
}
