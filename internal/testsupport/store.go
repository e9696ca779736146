package testsupport

import (
	"context"
	"testing"

	"minuteman/internal/config"
	"minuteman/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// ClaimFile claims a file identity for tests and fails if the claim loses.
func ClaimFile(t testing.TB, st *store.Store, fileID string) {
	t.Helper()

	claimed, err := st.TryClaim(context.Background(), fileID)
	if err != nil {
		t.Fatalf("store.TryClaim: %v", err)
	}
	if !claimed {
		t.Fatalf("expected to claim file %s", fileID)
	}
}

// SaveDraft persists a draft for tests using the provided store.
func SaveDraft(t testing.TB, st *store.Store, draft *store.DraftRow) {
	t.Helper()

	if err := st.SaveDraft(context.Background(), draft); err != nil {
		t.Fatalf("store.SaveDraft: %v", err)
	}
}
