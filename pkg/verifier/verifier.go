// Package verifier runs the verification battery against usage-right
// artifacts.
//
// The verifier trusts only the cryptographic primitives (ECDSA P-256,
// SHA-256, canonical JSON) and the artifact format: it reconstructs the
// verification key from the artifact's own self-describing public key bytes
// and recomputes the commitment from scratch. It never consults the
// registry and never mutates the artifact. Computing a verdict and
// recording that it was computed are separate responsibilities.
package verifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flexproof/flexproof/pkg/canonicalize"
	"github.com/flexproof/flexproof/pkg/crypto"
	"github.com/flexproof/flexproof/pkg/domain"
)

// Check names, in execution order.
const (
	CheckStateIsIssued   = "StateIsIssued"
	CheckCommitmentMatch = "CommitmentMatch"
	CheckSignatureValid  = "SignatureValid"
	CheckRightsInPeriod  = "RightsInPeriod"
)

// Stable failure reason codes, at most one per check family.
const (
	ReasonArtifactNotIssued  = "ARTIFACT_NOT_ISSUED"
	ReasonCommitmentMissing  = "COMMITMENT_MISSING"
	ReasonCommitmentMismatch = "COMMITMENT_MISMATCH"
	ReasonSignatureMissing   = "SIGNATURE_MISSING"
	ReasonSignatureInvalid   = "SIGNATURE_INVALID"
	ReasonRightsExpired      = "RIGHTS_EXPIRED"
)

// Verifier runs the four-check battery.
type Verifier struct {
	committer crypto.Committer
	clock     func() time.Time
	newID     func() string
}

// NewVerifier creates a verifier that recomputes commitments with the given
// committer.
func NewVerifier(committer crypto.Committer) *Verifier {
	return &Verifier{
		committer: committer,
		clock:     time.Now,
		newID:     func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

// WithClock overrides the clock for deterministic testing.
func (v *Verifier) WithClock(clock func() time.Time) *Verifier {
	v.clock = clock
	return v
}

// Verify runs all four checks and returns the structured result. Checks
// never short-circuit each other: every check executes and is reported even
// when an earlier one failed, so the caller gets full diagnostic detail in
// one pass. Cryptographic decode errors fold into a failed SignatureValid
// check; nothing here panics or propagates an error.
func (v *Verifier) Verify(a *domain.UsageRightArtifact) *domain.VerificationResult {
	now := v.clock().UTC()
	checks := make([]domain.VerificationCheck, 0, 4)
	failures := make([]string, 0, 4)

	// Check 1: artifact must be in Issued state.
	statePass := a.State == domain.StateIssued
	detail := ""
	if !statePass {
		detail = fmt.Sprintf("expected %s, got %s", domain.StateIssued, a.State)
		failures = append(failures, ReasonArtifactNotIssued)
	}
	checks = append(checks, domain.VerificationCheck{CheckName: CheckStateIsIssued, Passed: statePass, Detail: detail})

	// Check 2: commitment must be present and match recomputation. The
	// canonical encoding excludes commitment, signature, and state, so
	// recomputation is stable even after lifecycle transitions.
	commitmentPresent := a.DataCommitment != ""
	commitmentMatch := false
	if commitmentPresent {
		recomputed, err := v.committer.ComputeCommitment(a)
		commitmentMatch = err == nil && strings.EqualFold(recomputed, a.DataCommitment)
	}
	detail = ""
	switch {
	case !commitmentPresent:
		detail = "no commitment present"
		failures = append(failures, ReasonCommitmentMissing)
	case !commitmentMatch:
		detail = "recomputed commitment does not match"
		failures = append(failures, ReasonCommitmentMismatch)
	}
	checks = append(checks, domain.VerificationCheck{CheckName: CheckCommitmentMatch, Passed: commitmentPresent && commitmentMatch, Detail: detail})

	// Check 3: signature and public key must be present and the signature
	// must verify over the canonical bytes.
	signaturePresent := a.Signature != "" && a.SignerPublicKey != ""
	signatureValid := false
	if signaturePresent {
		if canonical, err := canonicalize.Canonicalize(a); err == nil {
			ok, verr := crypto.VerifySignature(a.SignerPublicKey, a.Signature, canonical)
			signatureValid = verr == nil && ok
		}
	}
	detail = ""
	switch {
	case !signaturePresent:
		detail = "no signature or public key present"
		failures = append(failures, ReasonSignatureMissing)
	case !signatureValid:
		detail = "signature verification failed"
		failures = append(failures, ReasonSignatureInvalid)
	}
	checks = append(checks, domain.VerificationCheck{CheckName: CheckSignatureValid, Passed: signaturePresent && signatureValid, Detail: detail})

	// Check 4: current time must lie within the rights validity window,
	// inclusive at both ends. This is the rights window, not the
	// observation period; the two windows are independent.
	rightsValid := !now.Before(a.Rights.ValidFrom) && !now.After(a.Rights.ValidTo)
	detail = ""
	if !rightsValid {
		detail = "current time is outside the rights validity window"
		failures = append(failures, ReasonRightsExpired)
	}
	checks = append(checks, domain.VerificationCheck{CheckName: CheckRightsInPeriod, Passed: rightsValid, Detail: detail})

	return &domain.VerificationResult{
		IsValid:        len(failures) == 0,
		VerificationID: v.newID(),
		ArtifactID:     a.ArtifactID,
		VerifiedAt:     now,
		Checks:         checks,
		FailureReasons: failures,
	}
}
