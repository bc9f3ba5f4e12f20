package postgres

import (
	"context"
	"testing"
)

func TestNewStoreRequiresDSNAndName(t *testing.T) {
	if _, err := NewStore(context.Background(), "", "main"); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
	if _, err := NewStore(context.Background(), "postgres://localhost/honest", ""); err == nil {
		t.Fatalf("expected error for empty ledger name")
	}
}
