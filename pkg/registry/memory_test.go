package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexproof/flexproof/pkg/domain"
)

const actor = "test-operator"

func issuedFixture(id string) *domain.UsageRightArtifact {
	return &domain.UsageRightArtifact{
		ArtifactID:    id,
		SchemaVersion: "1.0",
		IssuerID:      "fleet-operator-01",
		CreatedAt:     time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC),
		State:         domain.StateIssued,
		PeriodStart:   time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:     time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
		Claim: domain.ClaimValue{
			Type:               domain.ClaimPeakWindowCompliance,
			MetricName:         "peak_kw",
			Value:              142.5,
			Unit:               "kW",
			ComputationVersion: "1.0.0",
		},
		Rights: domain.RightsScope{
			CounterpartyID: "utility-partner-01",
			Purpose:        "demand-charge-settlement",
			ValidFrom:      time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
			ValidTo:        time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
			Constraints:    map[string]string{"region": "DE"},
		},
		DataCommitment:  "aa00000000000000000000000000000000000000000000000000000000000000",
		Signature:       "c2lnbmF0dXJl",
		SignerPublicKey: "a2V5",
	}
}

func TestMemoryStoreAndGet(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, reg.Store(ctx, issuedFixture("id-1"), actor))

	got, err := reg.Get(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, "id-1", got.ArtifactID)
	assert.Equal(t, domain.StateIssued, got.State)
	assert.Equal(t, "DE", got.Rights.Constraints["region"])
}

func TestMemoryStoreDuplicate(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, reg.Store(ctx, issuedFixture("id-1"), actor))
	err := reg.Store(ctx, issuedFixture("id-1"), actor)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestMemoryGetNotFound(t *testing.T) {
	reg := NewMemoryRegistry()

	_, err := reg.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCloneIsolation(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	original := issuedFixture("id-1")
	require.NoError(t, reg.Store(ctx, original, actor))

	// Mutating the caller's pointer must not leak into the registry.
	original.Claim.Value = 999
	original.Rights.Constraints["region"] = "XX"

	stored, err := reg.Get(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, 142.5, stored.Claim.Value)
	assert.Equal(t, "DE", stored.Rights.Constraints["region"])

	// Mutating a returned artifact must not leak either.
	stored.State = domain.StateRevoked
	again, err := reg.Get(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateIssued, again.State)
}

func TestMemoryListSorted(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	newer := issuedFixture("id-b")
	newer.CreatedAt = newer.CreatedAt.Add(time.Hour)
	older := issuedFixture("id-a")

	require.NoError(t, reg.Store(ctx, newer, actor))
	require.NoError(t, reg.Store(ctx, older, actor))

	list, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "id-a", list[0].ArtifactID)
	assert.Equal(t, "id-b", list[1].ArtifactID)
}

func TestMemoryRevoke(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, reg.Store(ctx, issuedFixture("id-1"), actor))
	require.NoError(t, reg.Revoke(ctx, "id-1", "dispute-42", actor))

	got, err := reg.Get(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateRevoked, got.State)
	assert.Equal(t, "dispute-42", got.RevocationRef)
}

func TestMemoryRevokeNotFound(t *testing.T) {
	reg := NewMemoryRegistry()

	err := reg.Revoke(context.Background(), "missing", "reason", actor)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemorySupersede(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, reg.Store(ctx, issuedFixture("id-old"), actor))
	require.NoError(t, reg.Supersede(ctx, "id-old", issuedFixture("id-new"), actor))

	old, err := reg.Get(ctx, "id-old")
	require.NoError(t, err)
	assert.Equal(t, domain.StateSuperseded, old.State)
	assert.Equal(t, "id-new", old.SupersededBy)

	replacement, err := reg.Get(ctx, "id-new")
	require.NoError(t, err)
	assert.Equal(t, domain.StateIssued, replacement.State)
}

func TestMemorySupersedeErrors(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	err := reg.Supersede(ctx, "missing", issuedFixture("id-new"), actor)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, reg.Store(ctx, issuedFixture("id-old"), actor))
	require.NoError(t, reg.Store(ctx, issuedFixture("id-taken"), actor))
	err = reg.Supersede(ctx, "id-old", issuedFixture("id-taken"), actor)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestMemoryAuditTrailOrder(t *testing.T) {
	now := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)
	reg := NewMemoryRegistry().WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	})
	ctx := context.Background()

	require.NoError(t, reg.Store(ctx, issuedFixture("id-1"), actor))
	result := &domain.VerificationResult{IsValid: true, ArtifactID: "id-1"}
	require.NoError(t, reg.RecordVerification(ctx, "id-1", result, "verifier-1"))
	require.NoError(t, reg.Revoke(ctx, "id-1", "dispute-42", actor))

	trail, err := reg.GetAuditTrail(ctx, "id-1")
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, domain.EventIssued, trail[0].EventType)
	assert.Equal(t, domain.EventVerified, trail[1].EventType)
	assert.Equal(t, domain.EventRevoked, trail[2].EventType)
	assert.Equal(t, "verifier-1", trail[1].ActorID)
	assert.Equal(t, "verification passed", trail[1].Detail)
	assert.True(t, trail[0].Timestamp.Before(trail[1].Timestamp))
	assert.True(t, trail[1].Timestamp.Before(trail[2].Timestamp))
}

func TestMemoryAuditTrailFiltersByArtifact(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, reg.Store(ctx, issuedFixture("id-1"), actor))
	require.NoError(t, reg.Store(ctx, issuedFixture("id-2"), actor))

	trail, err := reg.GetAuditTrail(ctx, "id-1")
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, "id-1", trail[0].ArtifactID)
}

func TestMemorySupersedeAuditEntries(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, reg.Store(ctx, issuedFixture("id-old"), actor))
	require.NoError(t, reg.Supersede(ctx, "id-old", issuedFixture("id-new"), actor))

	oldTrail, err := reg.GetAuditTrail(ctx, "id-old")
	require.NoError(t, err)
	require.Len(t, oldTrail, 2)
	assert.Equal(t, domain.EventSuperseded, oldTrail[1].EventType)
	assert.Contains(t, oldTrail[1].Detail, "id-new")

	newTrail, err := reg.GetAuditTrail(ctx, "id-new")
	require.NoError(t, err)
	require.Len(t, newTrail, 1)
	assert.Equal(t, domain.EventIssued, newTrail[0].EventType)
	assert.Contains(t, newTrail[0].Detail, "id-old")
}

func TestMemoryFailedVerificationDetail(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, reg.Store(ctx, issuedFixture("id-1"), actor))
	result := &domain.VerificationResult{
		IsValid:        false,
		ArtifactID:     "id-1",
		FailureReasons: []string{"COMMITMENT_MISMATCH", "SIGNATURE_INVALID"},
	}
	require.NoError(t, reg.RecordVerification(ctx, "id-1", result, actor))

	trail, err := reg.GetAuditTrail(ctx, "id-1")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Contains(t, trail[1].Detail, "COMMITMENT_MISMATCH")
	assert.Contains(t, trail[1].Detail, "SIGNATURE_INVALID")
}

func TestMemoryConcurrentStoreSameID(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = reg.Store(ctx, issuedFixture("contended"), actor)
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, errors.Is(err, ErrAlreadyExists))
		}
	}
	assert.Equal(t, 1, succeeded)

	trail, err := reg.GetAuditTrail(ctx, "contended")
	require.NoError(t, err)
	assert.Len(t, trail, 1, "exactly one Issued entry for the winning store")
}
