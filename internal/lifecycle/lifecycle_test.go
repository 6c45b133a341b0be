package lifecycle

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/record"
	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/store"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "tlt.db"), store.StaticKeychain(testKey), nil)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// seedOldSyncedShift inserts a completed, synced shift whose timestamps are
// well past the retention horizon.
func seedOldSyncedShift(t *testing.T, st *store.Store, owner string) *record.Shift {
	t.Helper()
	ctx := context.Background()
	old := time.Now().AddDate(0, 0, -90)

	sh := record.NewShift(owner, old, 45.5, -73.5)
	sh.CreatedAt = old
	if err := st.InsertShift(ctx, sh); err != nil {
		t.Fatalf("InsertShift: %v", err)
	}
	if _, err := st.CompleteActiveShift(ctx, owner, old.Add(8*time.Hour), 45.6, -73.6); err != nil {
		t.Fatalf("CompleteActiveShift: %v", err)
	}
	if err := st.UpdateStatus(ctx, record.KindShift, sh.ID, record.StatusSynced, store.StatusUpdate{RemoteID: "srv-" + sh.ID, At: old}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	return sh
}

func TestCheck_ReportsOKBelowThresholds(t *testing.T) {
	st := openTestStore(t)
	m := New(st, nil, Config{CapacityBytes: 1 << 40})

	var got Report
	m.OnReport(func(r Report) { got = r })

	rep, err := m.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if rep.Severity != SeverityOK {
		t.Fatalf("expected OK severity, got %v", rep.Severity)
	}
	if got.Metrics == nil {
		t.Fatal("report consumer was not called")
	}
	if got.Metrics.TotalBytes <= 0 {
		t.Errorf("expected positive usage, got %d", got.Metrics.TotalBytes)
	}
}

func TestCheck_CriticalRunsCleanup(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	old := seedOldSyncedShift(t, st, "owner-1")

	// Any nonzero usage exceeds a one-byte capacity.
	m := New(st, nil, Config{CapacityBytes: 1})

	rep, err := m.Check(ctx)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if rep.Severity != SeverityCritical {
		t.Fatalf("expected critical severity, got %v", rep.Severity)
	}
	if _, err := st.GetShift(ctx, old.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatal("critical check should have purged the old synced shift")
	}
}

func TestCheck_SurfacesStaleUnsynced(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	old := time.Now().AddDate(0, 0, -90)
	sh := record.NewShift("owner-1", old, 45.5, -73.5)
	sh.CreatedAt = old
	if err := st.InsertShift(ctx, sh); err != nil {
		t.Fatalf("InsertShift: %v", err)
	}

	m := New(st, nil, Config{CapacityBytes: 1 << 40})
	rep, err := m.Check(ctx)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if rep.StaleUnsynced[record.KindShift] != 1 {
		t.Fatalf("expected 1 stale unsynced shift, got %+v", rep.StaleUnsynced)
	}
}

func TestCleanup_HonorsRetentionAndSyncState(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	old := seedOldSyncedShift(t, st, "owner-1")

	// Recent synced shift: inside retention, must stay.
	recent := record.NewShift("owner-2", time.Now().Add(-time.Hour), 45.5, -73.5)
	if err := st.InsertShift(ctx, recent); err != nil {
		t.Fatalf("InsertShift: %v", err)
	}
	if _, err := st.CompleteActiveShift(ctx, "owner-2", time.Now(), 45.6, -73.6); err != nil {
		t.Fatalf("CompleteActiveShift: %v", err)
	}
	if err := st.UpdateStatus(ctx, record.KindShift, recent.ID, record.StatusSynced, store.StatusUpdate{RemoteID: "srv-r", At: time.Now()}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	// Old unsynced shift: outside retention but never synced, must stay.
	oldPending := record.NewShift("owner-3", time.Now().AddDate(0, 0, -90), 45.5, -73.5)
	oldPending.CreatedAt = time.Now().AddDate(0, 0, -90)
	if err := st.InsertShift(ctx, oldPending); err != nil {
		t.Fatalf("InsertShift: %v", err)
	}

	m := New(st, nil, Config{RetentionDays: 30})
	deleted, err := m.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected exactly 1 purge, got %d", deleted)
	}

	if _, err := st.GetShift(ctx, old.ID); !errors.Is(err, store.ErrNotFound) {
		t.Error("old synced shift should be purged")
	}
	if _, err := st.GetShift(ctx, recent.ID); err != nil {
		t.Errorf("recent synced shift must survive: %v", err)
	}
	if _, err := st.GetShift(ctx, oldPending.ID); err != nil {
		t.Errorf("unsynced shift must survive regardless of age: %v", err)
	}
}

func TestMetrics_StaleFlag(t *testing.T) {
	st := openTestStore(t)
	m := New(st, nil, Config{Interval: time.Hour})

	if m.Metrics() != nil {
		t.Fatal("expected nil before the first check")
	}
	if _, err := m.Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}

	snap := m.Metrics()
	if snap == nil {
		t.Fatal("expected a snapshot after a check")
	}
	if snap.Stale {
		t.Error("fresh snapshot must not be stale")
	}

	// Backdate the last run past the interval.
	m.mu.Lock()
	m.lastRun = time.Now().Add(-2 * time.Hour)
	m.mu.Unlock()

	if snap := m.Metrics(); !snap.Stale {
		t.Error("snapshot older than the interval must be flagged stale")
	}
}
