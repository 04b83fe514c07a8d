package api

import (
	"time"

	"github.com/flexproof/flexproof/pkg/domain"
)

// IssueArtifactRequest asks the server to aggregate depot readings over a
// period, build a draft claim artifact, and issue it.
type IssueArtifactRequest struct {
	ClaimType       string            `json:"claimType"`
	PeriodStart     time.Time         `json:"periodStart"`
	PeriodEnd       time.Time         `json:"periodEnd"`
	BaselineMode    string            `json:"baselineMode,omitempty"`
	LookbackStart   *time.Time        `json:"lookbackStart,omitempty"`
	CounterpartyID  string            `json:"counterpartyId"`
	Purpose         string            `json:"purpose"`
	RightsValidFrom time.Time         `json:"rightsValidFrom"`
	RightsValidTo   time.Time         `json:"rightsValidTo"`
	Constraints     map[string]string `json:"constraints,omitempty"`
}

// VerifyArtifactRequest names a registered artifact or carries a full
// artifact document to verify. Exactly one of the two must be set.
type VerifyArtifactRequest struct {
	ArtifactID string                     `json:"artifactId,omitempty"`
	Artifact   *domain.UsageRightArtifact `json:"artifact,omitempty"`
}

// RevokeArtifactRequest marks a registered artifact revoked.
type RevokeArtifactRequest struct {
	ArtifactID    string `json:"artifactId"`
	RevocationRef string `json:"revocationRef"`
	ActorID       string `json:"actorId"`
}

// SupersedeArtifactRequest replaces a registered artifact with a new issue
// covering the same period.
type SupersedeArtifactRequest struct {
	OldArtifactID string `json:"oldArtifactId"`
	ActorID       string `json:"actorId"`
	IssueArtifactRequest
}

// IssueArtifactResponse returns the issued artifact and its registry state.
type IssueArtifactResponse struct {
	Artifact *domain.UsageRightArtifact `json:"artifact"`
}

// PresentationResponse carries a signed presentation token for an artifact.
type PresentationResponse struct {
	ArtifactID string `json:"artifactId"`
	Token      string `json:"token"`
}

// AuditTrailResponse returns the ordered audit entries for an artifact.
type AuditTrailResponse struct {
	ArtifactID string              `json:"artifactId"`
	Entries    []domain.AuditEntry `json:"entries"`
}
