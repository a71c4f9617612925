package sync

import (
	"context"
	"testing"

	"github.com/edward/tracksync/internal/store"
)

// seedLegacy installs an app_state table with one blob row, simulating a
// database from before entity normalization existed.
func seedLegacy(t *testing.T, st *store.Store, clientID, stateJSON string, updatedAtMs int64) {
	t.Helper()

	ctx := context.Background()
	if _, err := st.RawDB().ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS app_state (
			client_id TEXT PRIMARY KEY,
			state_json TEXT NOT NULL,
			updated_at_ms INTEGER NOT NULL DEFAULT 0
		)`); err != nil {
		t.Fatalf("failed to create legacy table: %v", err)
	}
	if _, err := st.RawDB().ExecContext(ctx,
		`INSERT INTO app_state (client_id, state_json, updated_at_ms) VALUES (?, ?, ?)`,
		clientID, stateJSON, updatedAtMs); err != nil {
		t.Fatalf("failed to seed legacy row: %v", err)
	}
}

func TestFetch_MigratesLegacy(t *testing.T) {
	ctx := context.Background()
	e, st := setupEngine(t)

	seedLegacy(t, st, "alice", `{
		"habits": [{"id": "h1", "name": "Read"}, {"id": "h2", "name": "Train"}],
		"entries": {"h1|2024-01-01": 1, "h1|2024-01-02": 0},
		"todos": [{"id": "t1", "dateISO": "2024-01-02", "text": "Pay rent"}],
		"wishlist": [{"id": "w1", "name": "Bike", "price": ""}]
	}`, 4200)

	res, err := e.Fetch(ctx, "alice")
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if res.Status != StatusOK || res.UpdatedAtMs != 4200 {
		t.Fatalf("migrated fetch = %+v, want clock 4200", res)
	}
	if len(res.State.Habits) != 2 || len(res.State.Todos) != 1 {
		t.Errorf("migrated state = %+v", res.State)
	}
	// Sanitation rules apply during migration too.
	if _, ok := res.State.Entries["h1|2024-01-02"]; ok {
		t.Error("neutral legacy entry survived migration")
	}
	if res.State.Wishlist[0].Price != nil {
		t.Errorf("blank legacy price = %v, want nil", *res.State.Wishlist[0].Price)
	}

	clock, err := st.Clock(ctx, "alice")
	if err != nil {
		t.Fatalf("Clock() failed: %v", err)
	}
	if clock != 4200 {
		t.Errorf("clock after migration = %d, want 4200", clock)
	}
}

func TestFetch_MigrationRunsOnce(t *testing.T) {
	ctx := context.Background()
	e, st := setupEngine(t)

	seedLegacy(t, st, "alice", `{"habits": [{"id": "h1", "name": "Read"}]}`, 4200)

	if _, err := e.Fetch(ctx, "alice"); err != nil {
		t.Fatalf("first Fetch() failed: %v", err)
	}

	// Mutating the legacy row afterward must have no effect: a positive
	// normalized clock means the legacy source is never consulted again.
	if _, err := st.RawDB().ExecContext(ctx,
		`UPDATE app_state SET state_json = ?, updated_at_ms = ?`,
		`{"habits": [{"id": "h9", "name": "Ghost"}]}`, 9999); err != nil {
		t.Fatalf("failed to mutate legacy row: %v", err)
	}

	res, err := e.Fetch(ctx, "alice")
	if err != nil {
		t.Fatalf("second Fetch() failed: %v", err)
	}
	if res.UpdatedAtMs != 4200 || len(res.State.Habits) != 1 || res.State.Habits[0].ID != "h1" {
		t.Errorf("second fetch = %+v, want first migration result", res)
	}
}

func TestFetch_CorruptLegacyBlob(t *testing.T) {
	e, st := setupEngine(t)

	seedLegacy(t, st, "alice", `{"habits": [truncated`, 4200)

	res, err := e.Fetch(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if res.Status != StatusNoState || res.UpdatedAtMs != 0 {
		t.Errorf("corrupt-blob fetch = %+v, want no state", res)
	}
}

func TestFetch_NonObjectLegacyBlob(t *testing.T) {
	e, st := setupEngine(t)

	// All decode without error but none yields an object; each must read
	// as a fresh client at clock 0, never as a migrated empty document.
	blobs := map[string]string{
		"alice": `[1, 2, 3]`,
		"bob":   `null`,
		"carol": `"state"`,
		"dave":  `42`,
	}

	for clientID, blob := range blobs {
		seedLegacy(t, st, clientID, blob, 4200)

		res, err := e.Fetch(context.Background(), clientID)
		if err != nil {
			t.Fatalf("Fetch(%s) failed: %v", clientID, err)
		}
		if res.Status != StatusNoState || res.UpdatedAtMs != 0 {
			t.Errorf("blob %s fetch = %+v, want no state at clock 0", blob, res)
		}
	}
}

func TestFetch_LegacyClockDefaultsToNow(t *testing.T) {
	e, st := setupEngine(t)

	seedLegacy(t, st, "alice", `{"habits": [{"id": "h1", "name": "Read"}]}`, 0)

	res, err := e.Fetch(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	// Non-positive legacy timestamp: the engine's wall clock substitutes.
	if res.Status != StatusOK || res.UpdatedAtMs != 5_000_000 {
		t.Errorf("fetch = %+v, want migrated state at clock 5000000", res)
	}
}
