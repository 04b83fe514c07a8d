package verifier

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexproof/flexproof/pkg/adapter"
	"github.com/flexproof/flexproof/pkg/crypto"
	"github.com/flexproof/flexproof/pkg/domain"
	"github.com/flexproof/flexproof/pkg/engine"
)

var verifyNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func issuedArtifact(t *testing.T) *domain.UsageRightArtifact {
	t.Helper()
	signer, err := crypto.NewECDSASigner()
	require.NoError(t, err)
	factory, err := engine.NewFactory(crypto.NewSHA256Committer(), signer)
	require.NoError(t, err)

	draft, err := factory.CreateDraft(adapter.AggregatedClaimInput{
		ClaimType:   domain.ClaimDemandChargeDeltaEstimate,
		Value:       18.75,
		Unit:        "%",
		MetricName:  "demand_charge_delta_pct",
		PeriodStart: time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
		BaselineRef: "lookback-30d-v1",
	}, "fleet-operator-01", domain.RightsScope{
		CounterpartyID: "utility-partner-01",
		Purpose:        "demand-charge-settlement",
		ValidFrom:      time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
		ValidTo:        time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
		Constraints:    map[string]string{"region": "DE"},
	})
	require.NoError(t, err)

	issued, err := factory.Issue(draft)
	require.NoError(t, err)
	return issued
}

func newTestVerifier() *Verifier {
	return NewVerifier(crypto.NewSHA256Committer()).
		WithClock(func() time.Time { return verifyNow })
}

func checkByName(t *testing.T, result *domain.VerificationResult, name string) domain.VerificationCheck {
	t.Helper()
	for _, c := range result.Checks {
		if c.CheckName == name {
			return c
		}
	}
	t.Fatalf("check %s not found", name)
	return domain.VerificationCheck{}
}

func TestVerifyValidArtifact(t *testing.T) {
	result := newTestVerifier().Verify(issuedArtifact(t))

	assert.True(t, result.IsValid)
	assert.Empty(t, result.FailureReasons)
	require.Len(t, result.Checks, 4)
	for _, c := range result.Checks {
		assert.True(t, c.Passed, "check %s", c.CheckName)
	}
	assert.NotEmpty(t, result.VerificationID)
	assert.Equal(t, verifyNow, result.VerifiedAt)
}

func TestVerifyRunsAllChecksWithoutShortCircuit(t *testing.T) {
	a := issuedArtifact(t)
	a.State = domain.StateRevoked

	result := newTestVerifier().Verify(a)

	assert.False(t, result.IsValid)
	require.Len(t, result.Checks, 4, "every check reports even after a failure")
	assert.Equal(t, []string{ReasonArtifactNotIssued}, result.FailureReasons)
	assert.True(t, checkByName(t, result, CheckCommitmentMatch).Passed)
	assert.True(t, checkByName(t, result, CheckSignatureValid).Passed)
}

func TestVerifyTamperedClaimValue(t *testing.T) {
	a := issuedArtifact(t)
	a.Claim.Value += 10

	result := newTestVerifier().Verify(a)

	assert.False(t, result.IsValid)
	assert.Contains(t, result.FailureReasons, ReasonCommitmentMismatch)
	assert.Contains(t, result.FailureReasons, ReasonSignatureInvalid)
	assert.True(t, checkByName(t, result, CheckStateIsIssued).Passed)
}

func TestVerifyTamperedRightsScope(t *testing.T) {
	a := issuedArtifact(t)
	a.Rights.CounterpartyID = "someone-else"

	result := newTestVerifier().Verify(a)

	assert.False(t, result.IsValid)
	assert.Contains(t, result.FailureReasons, ReasonCommitmentMismatch)
	assert.Contains(t, result.FailureReasons, ReasonSignatureInvalid)
}

func TestVerifyKeySubstitution(t *testing.T) {
	// An attacker re-signs the artifact with their own key. The commitment
	// still matches because it does not cover the key, so the only
	// protection is the signature check against the embedded key bytes.
	a := issuedArtifact(t)
	other := issuedArtifact(t)
	a.SignerPublicKey = other.SignerPublicKey

	result := newTestVerifier().Verify(a)

	assert.False(t, result.IsValid)
	assert.Equal(t, []string{ReasonSignatureInvalid}, result.FailureReasons)
	assert.True(t, checkByName(t, result, CheckCommitmentMatch).Passed)
}

func TestVerifyReplayedIntegrityFields(t *testing.T) {
	// Commitment and signature copied onto an artifact with a different id
	// must fail: the canonical bytes cover the artifact id.
	genuine := issuedArtifact(t)
	forged := genuine.Clone()
	forged.ArtifactID = "ffffffffffffffffffffffffffffffff"

	result := newTestVerifier().Verify(forged)

	assert.False(t, result.IsValid)
	assert.Contains(t, result.FailureReasons, ReasonCommitmentMismatch)
	assert.Contains(t, result.FailureReasons, ReasonSignatureInvalid)
}

func TestVerifyMissingCommitment(t *testing.T) {
	a := issuedArtifact(t)
	a.DataCommitment = ""

	result := newTestVerifier().Verify(a)

	assert.False(t, result.IsValid)
	assert.Contains(t, result.FailureReasons, ReasonCommitmentMissing)
}

func TestVerifyMissingSignature(t *testing.T) {
	a := issuedArtifact(t)
	a.Signature = ""

	result := newTestVerifier().Verify(a)

	assert.False(t, result.IsValid)
	assert.Contains(t, result.FailureReasons, ReasonSignatureMissing)
}

func TestVerifyMalformedSignatureFoldsToFailedCheck(t *testing.T) {
	a := issuedArtifact(t)
	a.Signature = "%%% not base64 %%%"

	result := newTestVerifier().Verify(a)

	assert.False(t, result.IsValid)
	assert.Contains(t, result.FailureReasons, ReasonSignatureInvalid)
}

func TestVerifyCommitmentCaseInsensitive(t *testing.T) {
	a := issuedArtifact(t)
	a.DataCommitment = strings.ToUpper(a.DataCommitment)

	result := newTestVerifier().Verify(a)

	assert.True(t, checkByName(t, result, CheckCommitmentMatch).Passed)
}

func TestVerifyRightsWindow(t *testing.T) {
	a := issuedArtifact(t)

	cases := []struct {
		name  string
		now   time.Time
		valid bool
	}{
		{"before window", a.Rights.ValidFrom.Add(-time.Second), false},
		{"at window start", a.Rights.ValidFrom, true},
		{"inside window", a.Rights.ValidFrom.AddDate(0, 6, 0), true},
		{"at window end", a.Rights.ValidTo, true},
		{"after window", a.Rights.ValidTo.Add(time.Second), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := NewVerifier(crypto.NewSHA256Committer()).
				WithClock(func() time.Time { return tc.now })
			result := v.Verify(a)
			assert.Equal(t, tc.valid, checkByName(t, result, CheckRightsInPeriod).Passed)
			if !tc.valid {
				assert.Contains(t, result.FailureReasons, ReasonRightsExpired)
			}
		})
	}
}
