// Package canonicalize produces the RFC 8785 (JSON Canonicalization Scheme)
// byte encoding of an artifact's claim-relevant fields. The canonical bytes
// are the single source of truth for both the data commitment and the
// detached signature: two logically equal artifacts canonicalize to
// byte-identical output regardless of platform, locale, or float formatting.
package canonicalize

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/flexproof/flexproof/pkg/domain"
)

// TimeLayout is the fixed timestamp encoding inside canonical bytes:
// RFC 3339, UTC, full nanosecond precision, Z suffix. Any other format
// breaks cross-implementation interoperability.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// canonicalPayload lists exactly the claim-relevant fields. Lifecycle and
// integrity fields (state, dataCommitment, signature, signerPublicKey,
// supersededBy, revocationRef) are deliberately absent: commitments and
// signatures must stay stable across registry-owned state transitions.
type canonicalPayload struct {
	ArtifactID    string           `json:"artifactId"`
	IssuerID      string           `json:"issuerId"`
	SchemaVersion string           `json:"schemaVersion"`
	PeriodStart   string           `json:"periodStart"`
	PeriodEnd     string           `json:"periodEnd"`
	Claim         claimPayload     `json:"claim"`
	Rights        rightsPayload    `json:"rights"`
}

type claimPayload struct {
	Type               string  `json:"type"`
	MetricName         string  `json:"metricName"`
	Value              float64 `json:"value"`
	Unit               string  `json:"unit"`
	BaselineRef        string  `json:"baselineRef,omitempty"`
	ComputationVersion string  `json:"computationVersion"`
}

type rightsPayload struct {
	CounterpartyID string            `json:"counterpartyId"`
	Purpose        string            `json:"purpose"`
	ValidFrom      string            `json:"validFrom"`
	ValidTo        string            `json:"validTo"`
	Constraints    map[string]string `json:"constraints"`
}

// Canonicalize returns the canonical UTF-8 bytes of the artifact's claim
// content. JCS sorts all object members lexicographically, which fixes the
// constraint-key ordering as part of the contract rather than leaving it to
// map iteration order.
func Canonicalize(a *domain.UsageRightArtifact) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("canonicalize: artifact is nil")
	}

	constraints := a.Rights.Constraints
	if constraints == nil {
		// nil and empty constraint maps are the same logical artifact.
		constraints = map[string]string{}
	}

	payload := canonicalPayload{
		ArtifactID:    a.ArtifactID,
		IssuerID:      a.IssuerID,
		SchemaVersion: a.SchemaVersion,
		PeriodStart:   formatTime(a.PeriodStart),
		PeriodEnd:     formatTime(a.PeriodEnd),
		Claim: claimPayload{
			Type:               string(a.Claim.Type),
			MetricName:         a.Claim.MetricName,
			Value:              a.Claim.Value,
			Unit:               a.Claim.Unit,
			BaselineRef:        a.Claim.BaselineRef,
			ComputationVersion: a.Claim.ComputationVersion,
		},
		Rights: rightsPayload{
			CounterpartyID: a.Rights.CounterpartyID,
			Purpose:        a.Rights.Purpose,
			ValidFrom:      formatTime(a.Rights.ValidFrom),
			ValidTo:        formatTime(a.Rights.ValidTo),
			Constraints:    constraints,
		},
	}

	intermediate, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal failed: %w", err)
	}

	canonical, err := jcs.Transform(intermediate)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: jcs transform failed: %w", err)
	}
	return canonical, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
