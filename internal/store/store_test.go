package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CedricTri-logis/tri-logis-time-sub009/internal/record"
)

// testKey is a fixed 256-bit hex key so test databases open deterministically.
const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "tlt.db"), StaticKeychain(testKey), nil)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Errorf("failed to close store: %v", err)
		}
	})
	return st
}

func TestInsertShift_Roundtrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sh := record.NewShift("owner-1", time.Now(), 45.5017, -73.5673)
	sh.Notes = "morning route"

	if err := st.InsertShift(ctx, sh); err != nil {
		t.Fatalf("InsertShift: %v", err)
	}

	got, err := st.GetShift(ctx, sh.ID)
	if err != nil {
		t.Fatalf("GetShift: %v", err)
	}
	if got.OwnerID != "owner-1" || got.Notes != "morning route" {
		t.Errorf("unexpected shift: %+v", got)
	}
	if got.Status != record.ShiftActive {
		t.Errorf("expected active, got %q", got.Status)
	}
	if got.SyncStatus != record.StatusPending {
		t.Errorf("expected pending, got %q", got.SyncStatus)
	}
	if got.RequestID != sh.RequestID {
		t.Error("request ID not preserved")
	}
}

func TestInsertShift_DuplicateID(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sh := record.NewShift("owner-1", time.Now(), 45.5, -73.5)
	if err := st.InsertShift(ctx, sh); err != nil {
		t.Fatalf("InsertShift: %v", err)
	}

	dup := record.NewShift("owner-2", time.Now(), 45.5, -73.5)
	dup.ID = sh.ID
	if err := st.InsertShift(ctx, dup); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestInsertShift_SingleActivePerOwner(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.InsertShift(ctx, record.NewShift("owner-1", time.Now(), 45.5, -73.5)); err != nil {
		t.Fatalf("first shift: %v", err)
	}

	err := st.InsertShift(ctx, record.NewShift("owner-1", time.Now(), 45.5, -73.5))
	if !errors.Is(err, ErrActiveShiftExists) {
		t.Fatalf("expected ErrActiveShiftExists, got %v", err)
	}

	// A different owner is unaffected.
	if err := st.InsertShift(ctx, record.NewShift("owner-2", time.Now(), 45.5, -73.5)); err != nil {
		t.Fatalf("other owner's shift: %v", err)
	}
}

func TestInsertShift_ConcurrentSingleActive(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = st.InsertShift(ctx, record.NewShift("owner-1", time.Now(), 45.5, -73.5))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, ErrActiveShiftExists) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly 1 insert to win, got %d", succeeded)
	}
}

func TestCompleteActiveShift(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sh := record.NewShift("owner-1", time.Now().Add(-8*time.Hour), 45.5, -73.5)
	if err := st.InsertShift(ctx, sh); err != nil {
		t.Fatalf("InsertShift: %v", err)
	}

	// Mark synced so the clock-out's re-queue is observable.
	if err := st.UpdateStatus(ctx, record.KindShift, sh.ID, record.StatusSynced, StatusUpdate{RemoteID: "srv-1", At: time.Now()}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	done, err := st.CompleteActiveShift(ctx, "owner-1", time.Now(), 45.6, -73.6)
	if err != nil {
		t.Fatalf("CompleteActiveShift: %v", err)
	}
	if done.ID != sh.ID {
		t.Fatalf("completed wrong shift: %s", done.ID)
	}
	if done.Status != record.ShiftCompleted || done.EndAt == nil {
		t.Error("shift not closed")
	}
	if done.RequestID == sh.RequestID {
		t.Error("clock-out must issue a fresh request ID")
	}
	if done.SyncStatus != record.StatusPending {
		t.Errorf("clock-out must re-queue the shift, got %q", done.SyncStatus)
	}

	// Owner can start a new shift now.
	if err := st.InsertShift(ctx, record.NewShift("owner-1", time.Now(), 45.5, -73.5)); err != nil {
		t.Fatalf("new shift after clock-out: %v", err)
	}

	// No active shift for an unknown owner.
	if _, err := st.CompleteActiveShift(ctx, "owner-x", time.Now(), 0, 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPendingShifts_FIFOAndStatusFilter(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	var ids []string
	for i := 0; i < 3; i++ {
		sh := record.NewShift("owner-1", base.Add(time.Duration(i)*time.Minute), 45.5, -73.5)
		sh.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := st.InsertShift(ctx, sh); err != nil {
			t.Fatalf("InsertShift: %v", err)
		}
		if _, err := st.CompleteActiveShift(ctx, "owner-1", base.Add(time.Duration(i)*time.Minute+30*time.Second), 45.5, -73.5); err != nil {
			t.Fatalf("CompleteActiveShift: %v", err)
		}
		ids = append(ids, sh.ID)
	}

	// Oldest created first.
	pending, err := st.PendingShifts(ctx, 0)
	if err != nil {
		t.Fatalf("PendingShifts: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending, got %d", len(pending))
	}
	for i, sh := range pending {
		if sh.ID != ids[i] {
			t.Fatalf("order mismatch at %d: got %s want %s", i, sh.ID, ids[i])
		}
	}

	// Synced records leave the queue; error records stay in it.
	if err := st.UpdateStatus(ctx, record.KindShift, ids[0], record.StatusSynced, StatusUpdate{RemoteID: "srv-1", At: time.Now()}); err != nil {
		t.Fatalf("UpdateStatus synced: %v", err)
	}
	if err := st.UpdateStatus(ctx, record.KindShift, ids[1], record.StatusError, StatusUpdate{Error: "boom", ChargeAttempt: true, At: time.Now()}); err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}

	pending, err = st.PendingShifts(ctx, 0)
	if err != nil {
		t.Fatalf("PendingShifts: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending after sync, got %d", len(pending))
	}
}

func TestUpdateStatus_AttemptCharging(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sh := record.NewShift("owner-1", time.Now(), 45.5, -73.5)
	if err := st.InsertShift(ctx, sh); err != nil {
		t.Fatalf("InsertShift: %v", err)
	}

	// Back to pending without charging: the transport never delivered.
	if err := st.UpdateStatus(ctx, record.KindShift, sh.ID, record.StatusPending, StatusUpdate{At: time.Now()}); err != nil {
		t.Fatalf("UpdateStatus pending: %v", err)
	}
	got, _ := st.GetShift(ctx, sh.ID)
	if got.AttemptCount != 0 {
		t.Errorf("transport failure must not charge an attempt, got %d", got.AttemptCount)
	}

	// A server rejection charges one.
	if err := st.UpdateStatus(ctx, record.KindShift, sh.ID, record.StatusError, StatusUpdate{Error: "http_503", ChargeAttempt: true, At: time.Now()}); err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
	got, _ = st.GetShift(ctx, sh.ID)
	if got.AttemptCount != 1 {
		t.Errorf("expected 1 attempt, got %d", got.AttemptCount)
	}
	if got.LastError != "http_503" {
		t.Errorf("expected last error recorded, got %q", got.LastError)
	}
	if got.LastAttemptAt == nil {
		t.Error("expected last attempt timestamp")
	}

	// Success clears the error.
	if err := st.UpdateStatus(ctx, record.KindShift, sh.ID, record.StatusSynced, StatusUpdate{RemoteID: "srv-9", At: time.Now()}); err != nil {
		t.Fatalf("UpdateStatus synced: %v", err)
	}
	got, _ = st.GetShift(ctx, sh.ID)
	if got.LastError != "" {
		t.Errorf("synced record should have no error, got %q", got.LastError)
	}
	if got.RemoteID != "srv-9" {
		t.Errorf("expected remote ID, got %q", got.RemoteID)
	}

	// Unknown record.
	if err := st.UpdateStatus(ctx, record.KindShift, "nope", record.StatusSynced, StatusUpdate{At: time.Now()}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertLocations_AllOrNothing(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sh := record.NewShift("owner-1", time.Now(), 45.5, -73.5)
	if err := st.InsertShift(ctx, sh); err != nil {
		t.Fatalf("InsertShift: %v", err)
	}

	now := time.Now()
	first := record.NewLocationSample(sh.ID, 45.5, -73.5, 8, 0, now)
	if err := st.InsertLocations(ctx, []*record.LocationSample{first}); err != nil {
		t.Fatalf("InsertLocations: %v", err)
	}

	// A batch containing a duplicate ID must insert nothing.
	fresh := record.NewLocationSample(sh.ID, 45.6, -73.6, 8, 0, now)
	dup := record.NewLocationSample(sh.ID, 45.7, -73.7, 8, 0, now)
	dup.ID = first.ID
	err := st.InsertLocations(ctx, []*record.LocationSample{fresh, dup})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}

	samples, err := st.LocationsForShift(ctx, sh.ID)
	if err != nil {
		t.Fatalf("LocationsForShift: %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("batch with duplicate must be atomic; got %d rows", len(samples))
	}
}

func TestQuarantine_RemovesOriginalAtomically(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sh := record.NewShift("owner-1", time.Now(), 45.5, -73.5)
	if err := st.InsertShift(ctx, sh); err != nil {
		t.Fatalf("InsertShift: %v", err)
	}

	q, err := record.NewQuarantinedRecord(record.KindShift, sh.ID, sh, "validation_failed", "rejected", time.Now())
	if err != nil {
		t.Fatalf("NewQuarantinedRecord: %v", err)
	}
	if err := st.InsertQuarantined(ctx, q); err != nil {
		t.Fatalf("InsertQuarantined: %v", err)
	}

	if _, err := st.GetShift(ctx, sh.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("original must leave the queue, got %v", err)
	}

	entries, err := st.ListQuarantined(ctx, record.ResolutionPending)
	if err != nil {
		t.Fatalf("ListQuarantined: %v", err)
	}
	if len(entries) != 1 || entries[0].OriginalID != sh.ID {
		t.Fatalf("unexpected quarantine contents: %+v", entries)
	}
	if !strings.Contains(string(entries[0].Snapshot), sh.ID) {
		t.Error("snapshot should embed the original record")
	}
}

func TestSetQuarantineResolution(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sh := record.NewShift("owner-1", time.Now(), 45.5, -73.5)
	if err := st.InsertShift(ctx, sh); err != nil {
		t.Fatalf("InsertShift: %v", err)
	}
	q, _ := record.NewQuarantinedRecord(record.KindShift, sh.ID, sh, "x", "y", time.Now())
	if err := st.InsertQuarantined(ctx, q); err != nil {
		t.Fatalf("InsertQuarantined: %v", err)
	}

	if err := st.SetQuarantineResolution(ctx, q.ID, record.ResolutionDiscarded, "operator gave up"); err != nil {
		t.Fatalf("SetQuarantineResolution: %v", err)
	}
	got, err := st.GetQuarantined(ctx, q.ID)
	if err != nil {
		t.Fatalf("GetQuarantined: %v", err)
	}
	if got.Resolution != record.ResolutionDiscarded || got.ResolutionNotes != "operator gave up" {
		t.Errorf("unexpected resolution: %+v", got)
	}

	if err := st.SetQuarantineResolution(ctx, "nope", record.ResolutionDiscarded, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteSyncedBefore_NeverTouchesUnsynced(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-60 * 24 * time.Hour)

	// Old synced completed shift: eligible.
	eligible := record.NewShift("owner-1", old, 45.5, -73.5)
	eligible.CreatedAt = old
	if err := st.InsertShift(ctx, eligible); err != nil {
		t.Fatalf("InsertShift: %v", err)
	}
	if _, err := st.CompleteActiveShift(ctx, "owner-1", old.Add(time.Hour), 45.5, -73.5); err != nil {
		t.Fatalf("CompleteActiveShift: %v", err)
	}
	if err := st.UpdateStatus(ctx, record.KindShift, eligible.ID, record.StatusSynced, StatusUpdate{RemoteID: "srv-1", At: old}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	// Old but unsynced: must survive any cleanup.
	unsynced := record.NewShift("owner-2", old, 45.5, -73.5)
	unsynced.CreatedAt = old
	if err := st.InsertShift(ctx, unsynced); err != nil {
		t.Fatalf("InsertShift: %v", err)
	}

	cutoff := time.Now().Add(-30 * 24 * time.Hour)
	deleted, err := st.DeleteSyncedBefore(ctx, record.KindShift, cutoff)
	if err != nil {
		t.Fatalf("DeleteSyncedBefore: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deletion, got %d", deleted)
	}

	if _, err := st.GetShift(ctx, eligible.ID); !errors.Is(err, ErrNotFound) {
		t.Error("synced old shift should be gone")
	}
	if _, err := st.GetShift(ctx, unsynced.ID); err != nil {
		t.Errorf("unsynced shift must survive cleanup: %v", err)
	}
}

func TestUnsyncedOlderThan(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-10 * 24 * time.Hour)
	sh := record.NewShift("owner-1", old, 45.5, -73.5)
	sh.CreatedAt = old
	if err := st.InsertShift(ctx, sh); err != nil {
		t.Fatalf("InsertShift: %v", err)
	}

	counts, err := st.UnsyncedOlderThan(ctx, time.Now().Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("UnsyncedOlderThan: %v", err)
	}
	if counts[record.KindShift] != 1 {
		t.Errorf("expected 1 stale shift, got %d", counts[record.KindShift])
	}
}

func TestAuditTrail(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sh := record.NewShift("owner-1", time.Now(), 45.5, -73.5)
	if err := st.InsertShift(ctx, sh); err != nil {
		t.Fatalf("InsertShift: %v", err)
	}
	if err := st.UpdateStatus(ctx, record.KindShift, sh.ID, record.StatusSyncing, StatusUpdate{At: time.Now()}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	entries, err := st.AuditTail(ctx, 10)
	if err != nil {
		t.Fatalf("AuditTail: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected at least 2 audit rows, got %d", len(entries))
	}
	// Newest first.
	if entries[0].ToStatus != string(record.StatusSyncing) {
		t.Errorf("expected newest transition first, got %+v", entries[0])
	}

	trimmed, err := st.TrimAudit(ctx, 1)
	if err != nil {
		t.Fatalf("TrimAudit: %v", err)
	}
	if trimmed < 1 {
		t.Fatalf("expected trim to delete rows, got %d", trimmed)
	}
	entries, _ = st.AuditTail(ctx, 10)
	if len(entries) != 1 {
		t.Fatalf("expected 1 row after trim, got %d", len(entries))
	}
}

func TestPendingCounts(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sh := record.NewShift("owner-1", time.Now(), 45.5, -73.5)
	if err := st.InsertShift(ctx, sh); err != nil {
		t.Fatalf("InsertShift: %v", err)
	}
	if err := st.InsertLocations(ctx, []*record.LocationSample{
		record.NewLocationSample(sh.ID, 45.5, -73.5, 8, 0, time.Now()),
		record.NewLocationSample(sh.ID, 45.6, -73.6, 8, 0, time.Now()),
	}); err != nil {
		t.Fatalf("InsertLocations: %v", err)
	}

	counts, err := st.PendingCounts(ctx)
	if err != nil {
		t.Fatalf("PendingCounts: %v", err)
	}
	if counts[record.KindShift] != 1 || counts[record.KindLocation] != 2 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestComputeMetrics(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	sh := record.NewShift("owner-1", time.Now(), 45.5, -73.5)
	if err := st.InsertShift(ctx, sh); err != nil {
		t.Fatalf("InsertShift: %v", err)
	}

	m, err := st.ComputeMetrics(ctx, 512*1024*1024)
	if err != nil {
		t.Fatalf("ComputeMetrics: %v", err)
	}
	if m.TotalBytes <= 0 {
		t.Errorf("expected positive database size, got %d", m.TotalBytes)
	}
	if m.ByKind[record.KindShift].Rows != 1 {
		t.Errorf("expected 1 shift row, got %d", m.ByKind[record.KindShift].Rows)
	}
}

func TestFileKeychain_StableAcrossOpens(t *testing.T) {
	dir := t.TempDir()
	kc := FileKeychain{Path: filepath.Join(dir, "device.key")}

	k1, err := kc.DeviceKey()
	if err != nil {
		t.Fatalf("DeviceKey: %v", err)
	}
	if len(k1) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(k1))
	}
	k2, err := kc.DeviceKey()
	if err != nil {
		t.Fatalf("DeviceKey second read: %v", err)
	}
	if k1 != k2 {
		t.Fatal("key must be stable across reads")
	}
}

func TestEncryptedReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tlt.db")

	st, err := Open(path, StaticKeychain(testKey), nil)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	sh := record.NewShift("owner-1", time.Now(), 45.5, -73.5)
	if err := st.InsertShift(context.Background(), sh); err != nil {
		t.Fatalf("InsertShift: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st, err = Open(path, StaticKeychain(testKey), nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	if _, err := st.GetShift(context.Background(), sh.ID); err != nil {
		t.Fatalf("data lost across reopen: %v", err)
	}
}

func TestOpen_RecoversInterruptedSyncing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tlt.db")
	ctx := context.Background()

	st, err := Open(path, StaticKeychain(testKey), nil)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	sh := record.NewShift("owner-1", time.Now(), 45.5, -73.5)
	sh.Complete(time.Now(), 45.6, -73.6)
	if err := st.InsertShift(ctx, sh); err != nil {
		t.Fatalf("InsertShift: %v", err)
	}
	loc := record.NewLocationSample(sh.ID, 45.5, -73.5, 10, 0, time.Now())
	if err := st.InsertLocations(ctx, []*record.LocationSample{loc}); err != nil {
		t.Fatalf("InsertLocations: %v", err)
	}

	// A kill between marking syncing and handling the response strands the
	// records mid-flight.
	if err := st.UpdateStatus(ctx, record.KindShift, sh.ID, record.StatusSyncing, StatusUpdate{}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := st.UpdateStatus(ctx, record.KindLocation, loc.ID, record.StatusSyncing, StatusUpdate{}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st, err = Open(path, StaticKeychain(testKey), nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()

	shifts, err := st.PendingShifts(ctx, 0)
	if err != nil {
		t.Fatalf("PendingShifts: %v", err)
	}
	if len(shifts) != 1 || shifts[0].ID != sh.ID {
		t.Fatalf("interrupted shift not back in the queue: %+v", shifts)
	}
	if shifts[0].SyncStatus != record.StatusPending {
		t.Errorf("status = %q, want pending", shifts[0].SyncStatus)
	}
	if shifts[0].AttemptCount != 0 {
		t.Errorf("recovery must not charge an attempt, got %d", shifts[0].AttemptCount)
	}
	if shifts[0].RequestID != sh.RequestID {
		t.Error("request ID must survive recovery so the server can deduplicate")
	}

	locs, err := st.PendingLocations(ctx, 0)
	if err != nil {
		t.Fatalf("PendingLocations: %v", err)
	}
	if len(locs) != 1 || locs[0].ID != loc.ID {
		t.Fatalf("interrupted sample not back in the queue: %+v", locs)
	}

	entries, err := st.AuditTail(ctx, 10)
	if err != nil {
		t.Fatalf("AuditTail: %v", err)
	}
	found := false
	for _, e := range entries {
		if e.RecordID == sh.ID && e.FromStatus == "syncing" && e.ToStatus == "pending" {
			found = true
		}
	}
	if !found {
		t.Error("recovery transition missing from the audit trail")
	}
}
