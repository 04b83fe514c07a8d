package domain

import "time"

// EventType categorizes artifact lifecycle events in the audit trail.
type EventType string

const (
	EventIssued     EventType = "Issued"
	EventVerified   EventType = "Verified"
	EventRevoked    EventType = "Revoked"
	EventSuperseded EventType = "Superseded"
)

// AuditEntry is one immutable record in the append-only audit trail.
// Entries are never edited or removed; the trail for an artifact is the
// chronologically ordered subsequence of entries carrying its id.
type AuditEntry struct {
	EntryID    string    `json:"entryId"`
	ArtifactID string    `json:"artifactId"`
	Timestamp  time.Time `json:"timestamp"`
	EventType  EventType `json:"eventType"`
	ActorID    string    `json:"actorId"`
	Detail     string    `json:"detail,omitempty"`
}
