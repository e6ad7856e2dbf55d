package db

import (
	"context"
	"os"
	"strings"
	"testing"
)

func TestSchemaChannel(t *testing.T) {
	sql, err := Schema("table_changes")
	if err != nil {
		t.Fatalf("Schema: %v", err)
	}
	if !strings.Contains(sql, "pg_notify('table_changes'") {
		t.Fatalf("channel not substituted")
	}
	if strings.Contains(sql, channelPlaceholder) {
		t.Fatalf("placeholder left in schema")
	}
	for _, bad := range []string{"", "Changes", "x'; DROP TABLE students; --", "1abc"} {
		if _, err := Schema(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	pool, err := NewPool(context.Background(), url)
	if err != nil {
		t.Skipf("db unavailable: %v", err)
	}
	defer pool.Close()

	store := NewStore(pool)
	for i := 0; i < 2; i++ {
		if err := store.Migrate(context.Background(), "table_changes"); err != nil {
			t.Fatalf("migrate run %d: %v", i, err)
		}
	}
}
