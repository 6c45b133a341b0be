package record

import (
	"fmt"
	"time"
)

// LocationSample is one GPS fix captured during a shift.
//
// Samples are high-volume and sync in fixed-size batches. A sample cannot be
// submitted before its parent shift has a remote identifier; the orchestrator
// skips such samples and retries them on a later pass.
type LocationSample struct {
	ID      string `json:"id"`
	ShiftID string `json:"shift_id"`

	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	AccuracyM  float64   `json:"accuracy_m"`
	SpeedMPS   float64   `json:"speed_mps"`
	RecordedAt time.Time `json:"recorded_at"`

	SyncMeta
}

// NewLocationSample creates a pending sample for the given shift.
func NewLocationSample(shiftID string, lat, lon, accuracyM, speedMPS float64, recordedAt time.Time) *LocationSample {
	return &LocationSample{
		ID:         NewID(),
		ShiftID:    shiftID,
		Lat:        lat,
		Lon:        lon,
		AccuracyM:  accuracyM,
		SpeedMPS:   speedMPS,
		RecordedAt: recordedAt,
		SyncMeta:   NewSyncMeta(recordedAt),
	}
}

// Validate checks the sample's field values.
func (l *LocationSample) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("id is required")
	}
	if l.ShiftID == "" {
		return fmt.Errorf("shift_id is required")
	}
	if l.Lat < -90 || l.Lat > 90 || l.Lon < -180 || l.Lon > 180 {
		return fmt.Errorf("coordinates out of range (%f, %f)", l.Lat, l.Lon)
	}
	if l.AccuracyM < 0 {
		return fmt.Errorf("accuracy_m must be non-negative (got %f)", l.AccuracyM)
	}
	if l.RecordedAt.IsZero() {
		return fmt.Errorf("recorded_at is required")
	}
	return l.validate()
}
