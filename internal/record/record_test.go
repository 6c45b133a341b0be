package record

import (
	"testing"
	"time"
)

func TestNewShift_Defaults(t *testing.T) {
	now := time.Now()
	sh := NewShift("owner-1", now, 45.5017, -73.5673)

	if sh.ID == "" {
		t.Fatal("expected generated ID")
	}
	if sh.RequestID == "" {
		t.Fatal("expected generated request ID")
	}
	if sh.Status != ShiftActive {
		t.Errorf("expected active status, got %q", sh.Status)
	}
	if sh.SyncStatus != StatusPending {
		t.Errorf("expected pending sync status, got %q", sh.SyncStatus)
	}
	if sh.AttemptCount != 0 {
		t.Errorf("expected zero attempts, got %d", sh.AttemptCount)
	}
	if err := sh.Validate(); err != nil {
		t.Errorf("new shift should validate: %v", err)
	}
}

func TestShift_Complete(t *testing.T) {
	start := time.Now()
	sh := NewShift("owner-1", start, 45.5, -73.5)
	origRequestID := sh.RequestID

	sh.AttemptCount = 2
	sh.SyncStatus = StatusSynced

	end := start.Add(8 * time.Hour)
	sh.Complete(end, 45.6, -73.6)

	if sh.Status != ShiftCompleted {
		t.Errorf("expected completed, got %q", sh.Status)
	}
	if sh.EndAt == nil || !sh.EndAt.Equal(end) {
		t.Error("end time not recorded")
	}
	if sh.RequestID == origRequestID {
		t.Error("clock-out must issue a fresh request ID")
	}
	if sh.SyncStatus != StatusPending {
		t.Errorf("clock-out must re-queue the shift, got %q", sh.SyncStatus)
	}
	if sh.AttemptCount != 0 {
		t.Errorf("clock-out must reset attempts, got %d", sh.AttemptCount)
	}
	if err := sh.Validate(); err != nil {
		t.Errorf("completed shift should validate: %v", err)
	}
}

func TestShift_ValidateRejectsBadValues(t *testing.T) {
	now := time.Now()

	sh := NewShift("", now, 0, 0)
	if err := sh.Validate(); err == nil {
		t.Error("expected error for missing owner")
	}

	sh = NewShift("owner-1", now, 91.0, 0)
	if err := sh.Validate(); err == nil {
		t.Error("expected error for out-of-range latitude")
	}

	sh = NewShift("owner-1", now, 45.5, -73.5)
	sh.Complete(now.Add(-time.Hour), 45.5, -73.5)
	if err := sh.Validate(); err == nil {
		t.Error("expected error for end before start")
	}
}

func TestNewLocationSample_Validate(t *testing.T) {
	now := time.Now()
	loc := NewLocationSample("shift-1", 45.5, -73.5, 8.0, 1.2, now)
	if err := loc.Validate(); err != nil {
		t.Fatalf("valid sample rejected: %v", err)
	}
	if loc.SyncStatus != StatusPending {
		t.Errorf("expected pending, got %q", loc.SyncStatus)
	}

	loc = NewLocationSample("", 45.5, -73.5, 8.0, 1.2, now)
	if err := loc.Validate(); err == nil {
		t.Error("expected error for missing shift ID")
	}

	loc = NewLocationSample("shift-1", 45.5, -200, 8.0, 1.2, now)
	if err := loc.Validate(); err == nil {
		t.Error("expected error for out-of-range longitude")
	}
}

func TestResetForResubmit(t *testing.T) {
	now := time.Now()
	meta := NewSyncMeta(now)
	orig := meta.RequestID

	meta.SyncStatus = StatusError
	meta.AttemptCount = 3
	meta.LastError = "boom"

	later := now.Add(time.Minute)
	meta.ResetForResubmit(later)

	if meta.RequestID == orig {
		t.Error("expected a fresh request ID")
	}
	if meta.SyncStatus != StatusPending {
		t.Errorf("expected pending, got %q", meta.SyncStatus)
	}
	if meta.AttemptCount != 0 || meta.LastError != "" || meta.LastAttemptAt != nil {
		t.Error("expected attempt state cleared")
	}
	if !meta.UpdatedAt.Equal(later) {
		t.Error("expected updated timestamp")
	}
}

func TestQuarantinedRecordSnapshot(t *testing.T) {
	now := time.Now()
	sh := NewShift("owner-1", now, 45.5, -73.5)

	q, err := NewQuarantinedRecord(KindShift, sh.ID, sh, "validation_failed", "bad shift", now)
	if err != nil {
		t.Fatalf("NewQuarantinedRecord: %v", err)
	}
	if q.Resolution != ResolutionPending {
		t.Errorf("expected pending resolution, got %q", q.Resolution)
	}
	if len(q.Snapshot) == 0 {
		t.Fatal("expected snapshot payload")
	}
}
