package sqlite

import (
	"context"
	"testing"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if _, ok, err := store.LookupOrderID(ctx, "open-1-fut"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := store.SaveOrderID(ctx, "open-1-fut", "12345"); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	got, ok, err := store.LookupOrderID(ctx, "open-1-fut")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if !ok || got != "12345" {
		t.Fatalf("unexpected order id: %q (ok=%v)", got, ok)
	}
	// Saving again overwrites rather than failing on the primary key.
	if err := store.SaveOrderID(ctx, "open-1-fut", "12346"); err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	got, _, _ = store.LookupOrderID(ctx, "open-1-fut")
	if got != "12346" {
		t.Fatalf("expected overwrite, got %q", got)
	}
}
