package record

import (
	"fmt"
	"time"
)

// DiagnosticEvent is auxiliary telemetry (engine warnings, probe readings,
// quarantine activity) synced after all business records.
type DiagnosticEvent struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`

	Level      string            `json:"level"` // info, warn, error
	Message    string            `json:"message"`
	Context    map[string]string `json:"context,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`

	SyncMeta
}

// NewDiagnosticEvent creates a pending diagnostic event.
func NewDiagnosticEvent(ownerID, level, message string, occurredAt time.Time) *DiagnosticEvent {
	return &DiagnosticEvent{
		ID:         NewID(),
		OwnerID:    ownerID,
		Level:      level,
		Message:    message,
		OccurredAt: occurredAt,
		SyncMeta:   NewSyncMeta(occurredAt),
	}
}

// Validate checks the event's field values.
func (d *DiagnosticEvent) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("id is required")
	}
	if d.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	switch d.Level {
	case "info", "warn", "error":
	default:
		return fmt.Errorf("invalid level %q", d.Level)
	}
	if d.Message == "" {
		return fmt.Errorf("message is required")
	}
	if len(d.Message) > 2000 {
		return fmt.Errorf("message must be 2000 characters or less (got %d)", len(d.Message))
	}
	if d.OccurredAt.IsZero() {
		return fmt.Errorf("occurred_at is required")
	}
	return d.validate()
}
