package ch

import (
	"context"
	"testing"
)

// TestOpen_BadDSN rejects an unparseable DSN before dialing
func TestOpen_BadDSN(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{URL: "://not-a-dsn"})
	if err == nil {
		t.Fatalf("Open expected error for bad DSN, got nil")
	}
}

// TestNilConnection_Errs ensures nil receivers fail loudly instead of panicking
func TestNilConnection_Errs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var cl *CH

	if err := cl.Insert(ctx, "t", nil); err == nil {
		t.Fatalf("Insert on nil client expected error")
	}
	if _, err := cl.Query(ctx, "SELECT 1"); err == nil {
		t.Fatalf("Query on nil client expected error")
	}
	if err := cl.Ping(ctx); err == nil {
		t.Fatalf("Ping on nil client expected error")
	}
	if err := cl.Close(); err != nil {
		t.Fatalf("Close on nil client should be a no-op, got %v", err)
	}

	empty := &CH{}
	if err := empty.Insert(ctx, "t", nil); err == nil {
		t.Fatalf("Insert on empty client expected error")
	}
}
