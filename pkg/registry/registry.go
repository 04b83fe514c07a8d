// Package registry stores usage-right artifacts append-only and keeps the
// immutable audit trail of their lifecycle events. The registry is the only
// component allowed to mutate artifact state after issuance, and the only
// writer of audit entries.
package registry

import (
	"context"
	"errors"

	"github.com/flexproof/flexproof/pkg/domain"
)

var (
	// ErrNotFound is returned when the artifact id is not in the registry.
	ErrNotFound = errors.New("artifact not found")
	// ErrAlreadyExists is returned when storing an id that is already
	// present. Artifacts are write-once by id; there is no silent overwrite.
	ErrAlreadyExists = errors.New("artifact already exists")
)

// Registry is the append-only artifact store with audit trail. Both failure
// classes (NotFound, AlreadyExists) are caller contract violations, never
// retried internally; the caller decides whether a retry makes sense.
type Registry interface {
	// Store inserts a new artifact and appends an Issued audit entry.
	Store(ctx context.Context, artifact *domain.UsageRightArtifact, actorID string) error

	// Get returns the artifact with the given id.
	Get(ctx context.Context, artifactID string) (*domain.UsageRightArtifact, error)

	// List returns all stored artifacts.
	List(ctx context.Context) ([]*domain.UsageRightArtifact, error)

	// Revoke marks an artifact revoked, records the reason, and appends a
	// Revoked audit entry. Revocation is terminal.
	Revoke(ctx context.Context, artifactID, reason, actorID string) error

	// Supersede marks the old artifact superseded, links it to the
	// replacement, inserts the replacement, and appends a Superseded entry
	// on the old artifact plus an Issued entry on the new one.
	Supersede(ctx context.Context, oldArtifactID string, replacement *domain.UsageRightArtifact, actorID string) error

	// RecordVerification appends a Verified audit entry summarizing a
	// verification outcome. Purely observational: it never alters state.
	RecordVerification(ctx context.Context, artifactID string, result *domain.VerificationResult, actorID string) error

	// GetAuditTrail returns the artifact's audit entries sorted by
	// timestamp ascending.
	GetAuditTrail(ctx context.Context, artifactID string) ([]domain.AuditEntry, error)
}

// verificationDetail renders the audit detail line for a verification event.
func verificationDetail(result *domain.VerificationResult) string {
	if result.IsValid {
		return "verification passed"
	}
	detail := "verification failed:"
	for i, reason := range result.FailureReasons {
		if i > 0 {
			detail += ","
		}
		detail += " " + reason
	}
	return detail
}
