package record

import (
	"fmt"
	"time"
)

// ShiftStatus is the business state of a shift, independent of sync state.
type ShiftStatus string

const (
	// ShiftActive is an open shift: clocked in, not yet clocked out.
	ShiftActive ShiftStatus = "active"
	// ShiftCompleted is a closed shift.
	ShiftCompleted ShiftStatus = "completed"
)

// Shift is one clock-in/clock-out span for an owner (user on a device).
//
// At most one active shift may exist per owner at any time; the store
// enforces this atomically on insert.
type Shift struct {
	ID      string      `json:"id"`
	OwnerID string      `json:"owner_id"`
	Status  ShiftStatus `json:"status"`

	StartAt  time.Time  `json:"start_at"`
	EndAt    *time.Time `json:"end_at,omitempty"`
	StartLat float64    `json:"start_lat"`
	StartLon float64    `json:"start_lon"`
	EndLat   *float64   `json:"end_lat,omitempty"`
	EndLon   *float64   `json:"end_lon,omitempty"`
	Notes    string     `json:"notes,omitempty"`

	SyncMeta
}

// NewShift creates an active shift starting now with pending sync state.
func NewShift(ownerID string, startAt time.Time, lat, lon float64) *Shift {
	return &Shift{
		ID:       NewID(),
		OwnerID:  ownerID,
		Status:   ShiftActive,
		StartAt:  startAt,
		StartLat: lat,
		StartLon: lon,
		SyncMeta: NewSyncMeta(startAt),
	}
}

// Complete closes the shift and re-queues it for sync as a new logical
// operation (the remote sees the clock-out as a fresh idempotent submission).
func (s *Shift) Complete(endAt time.Time, lat, lon float64) {
	s.Status = ShiftCompleted
	s.EndAt = &endAt
	s.EndLat = &lat
	s.EndLon = &lon
	s.ResetForResubmit(endAt)
}

// Validate checks the shift's field values.
func (s *Shift) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if s.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	if s.Status != ShiftActive && s.Status != ShiftCompleted {
		return fmt.Errorf("invalid shift status %q", s.Status)
	}
	if s.StartAt.IsZero() {
		return fmt.Errorf("start_at is required")
	}
	if s.StartLat < -90 || s.StartLat > 90 || s.StartLon < -180 || s.StartLon > 180 {
		return fmt.Errorf("start coordinates out of range (%f, %f)", s.StartLat, s.StartLon)
	}
	if s.Status == ShiftCompleted {
		if s.EndAt == nil {
			return fmt.Errorf("completed shift requires end_at")
		}
		if s.EndAt.Before(s.StartAt) {
			return fmt.Errorf("end_at precedes start_at")
		}
	}
	return s.validate()
}
