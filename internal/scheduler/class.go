// Package scheduler decides when and how much to sync from connectivity.
//
// It observes network-class changes from a Probe collaborator and emits
// typed SyncTrigger values on a channel for a single subscriber, decoupling
// when to sync from how syncing works. It never calls the orchestrator
// directly.
package scheduler

// Class categorizes the active network connection.
type Class int

const (
	// ClassUnknown means connectivity could not be determined.
	ClassUnknown Class = iota
	// ClassNone means no network is available.
	ClassNone
	// ClassMetered is a pay-per-byte connection (cellular).
	ClassMetered
	// ClassUnmetered is wifi or ethernet.
	ClassUnmetered
)

// String returns a human-readable class name.
func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassMetered:
		return "metered"
	case ClassUnmetered:
		return "unmetered"
	default:
		return "unknown"
	}
}

// ParseClass maps a platform connectivity label to a Class.
func ParseClass(label string) Class {
	switch label {
	case "wifi", "ethernet", "unmetered":
		return ClassUnmetered
	case "cellular", "metered":
		return ClassMetered
	case "none", "offline":
		return ClassNone
	default:
		return ClassUnknown
	}
}

// Trigger tells the orchestrator's subscriber to attempt a sync pass.
type Trigger struct {
	// Reason describes what fired the trigger (connect, bulk, retry, manual).
	Reason string

	// Class is the network class at emission time.
	Class Class

	// BatchLimit caps the location batch size; zero means the
	// orchestrator's configured default.
	BatchLimit int
}
