// Package domain defines the usage-right artifact model: the credential, its
// claim and rights scope, lifecycle states, audit entries, and verification
// results. Enum-valued fields serialize as their symbolic names so the
// interchange shape stays stable across implementations.
package domain

import (
	"fmt"
	"time"
)

// ArtifactState is the lifecycle state of a usage-right artifact.
type ArtifactState string

const (
	StateDraft      ArtifactState = "Draft"
	StateIssued     ArtifactState = "Issued"
	StateRevoked    ArtifactState = "Revoked"
	StateSuperseded ArtifactState = "Superseded"
)

// ClaimType identifies what kind of aggregated claim an artifact attests to.
// New pilot scenarios add new values; canonicalization and verification treat
// the tag as an opaque symbolic string.
type ClaimType string

const (
	ClaimPeakWindowCompliance     ClaimType = "PeakWindowCompliance"
	ClaimDemandChargeDeltaEstimate ClaimType = "DemandChargeDeltaEstimate"
)

// ParseClaimType validates a symbolic claim type name.
func ParseClaimType(s string) (ClaimType, error) {
	switch ClaimType(s) {
	case ClaimPeakWindowCompliance, ClaimDemandChargeDeltaEstimate:
		return ClaimType(s), nil
	}
	return "", fmt.Errorf("unknown claim type %q", s)
}

// ClaimValue is the quantitative claim asserted by an artifact.
// All fields are immutable once the artifact is drafted.
type ClaimValue struct {
	// Type of claim (peak compliance, demand delta, ...).
	Type ClaimType `json:"type"`
	// MetricName names the aggregated metric (e.g. "peak_kw").
	MetricName string `json:"metricName"`
	// Value is the aggregated scalar the artifact attests to.
	Value float64 `json:"value"`
	// Unit of measurement (e.g. "kW", "%").
	Unit string `json:"unit"`
	// BaselineRef references the baseline computation used, if any.
	BaselineRef string `json:"baselineRef,omitempty"`
	// ComputationVersion tags the aggregation logic that produced the value.
	ComputationVersion string `json:"computationVersion"`
}

// RightsScope is the purpose-bound grant attached to an artifact: who may
// rely on it, for what, and during which validity window. The validity window
// is independent of the artifact's observation period.
type RightsScope struct {
	CounterpartyID string    `json:"counterpartyId"`
	Purpose        string    `json:"purpose"`
	ValidFrom      time.Time `json:"validFrom"`
	ValidTo        time.Time `json:"validTo"`
	// Constraints are opaque key-value restrictions. The core never
	// evaluates them; it only canonicalizes them in sorted-key order.
	Constraints map[string]string `json:"constraints,omitempty"`
}

// UsageRightArtifact is the credential: a cryptographically committed,
// signed assertion of one aggregated claim, scoped to a counterparty,
// purpose, and timeframe.
type UsageRightArtifact struct {
	ArtifactID    string        `json:"artifactId"`
	SchemaVersion string        `json:"schemaVersion"`
	IssuerID      string        `json:"issuerId"`
	CreatedAt     time.Time     `json:"createdAt"`
	State         ArtifactState `json:"state"`

	// Observation window the claim covers. PeriodStart < PeriodEnd.
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`

	Claim  ClaimValue  `json:"claim"`
	Rights RightsScope `json:"rights"`

	// Integrity fields, set only during Issue.
	//
	// DataCommitment is the lowercase-hex SHA-256 digest of the canonical
	// claim content. Signature is the base64 ASN.1 DER ECDSA P-256 detached
	// signature over the same canonical bytes. SignerPublicKey is the
	// base64 PKIX (SubjectPublicKeyInfo) encoding of the signing key.
	DataCommitment  string `json:"dataCommitment,omitempty"`
	Signature       string `json:"signature,omitempty"`
	SignerPublicKey string `json:"signerPublicKey,omitempty"`

	// Lifecycle pointers, set only by the registry after issuance.
	SupersededBy  string `json:"supersededBy,omitempty"`
	RevocationRef string `json:"revocationRef,omitempty"`
}

// Clone returns a deep copy. The registry stores and returns clones so the
// caller's pointer can never mutate registry-owned state.
func (a *UsageRightArtifact) Clone() *UsageRightArtifact {
	if a == nil {
		return nil
	}
	dup := *a
	if a.Rights.Constraints != nil {
		dup.Rights.Constraints = make(map[string]string, len(a.Rights.Constraints))
		for k, v := range a.Rights.Constraints {
			dup.Rights.Constraints[k] = v
		}
	}
	return &dup
}
