package registry

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexproof/flexproof/pkg/domain"
)

func newTestSQLiteRegistry(t *testing.T) *SQLiteRegistry {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	reg, err := NewSQLiteRegistry(db)
	require.NoError(t, err)
	return reg
}

func TestSQLiteStoreAndGetRoundTrip(t *testing.T) {
	reg := newTestSQLiteRegistry(t)
	ctx := context.Background()

	original := issuedFixture("id-1")
	require.NoError(t, reg.Store(ctx, original, actor))

	got, err := reg.Get(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, original.ArtifactID, got.ArtifactID)
	assert.Equal(t, original.State, got.State)
	assert.Equal(t, original.Claim, got.Claim)
	assert.Equal(t, original.Rights.Constraints, got.Rights.Constraints)
	assert.Equal(t, original.DataCommitment, got.DataCommitment)
	assert.Equal(t, original.Signature, got.Signature)
	assert.Equal(t, original.SignerPublicKey, got.SignerPublicKey)
	assert.True(t, original.PeriodStart.Equal(got.PeriodStart))
	assert.True(t, original.Rights.ValidTo.Equal(got.Rights.ValidTo))
}

func TestSQLiteStoreDuplicate(t *testing.T) {
	reg := newTestSQLiteRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Store(ctx, issuedFixture("id-1"), actor))
	err := reg.Store(ctx, issuedFixture("id-1"), actor)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// The failed store must not leave a stray audit entry behind.
	trail, err := reg.GetAuditTrail(ctx, "id-1")
	require.NoError(t, err)
	assert.Len(t, trail, 1)
}

func TestSQLiteGetNotFound(t *testing.T) {
	reg := newTestSQLiteRegistry(t)

	_, err := reg.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteListSorted(t *testing.T) {
	reg := newTestSQLiteRegistry(t)
	ctx := context.Background()

	newer := issuedFixture("id-b")
	newer.CreatedAt = newer.CreatedAt.Add(time.Hour)
	require.NoError(t, reg.Store(ctx, newer, actor))
	require.NoError(t, reg.Store(ctx, issuedFixture("id-a"), actor))

	list, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "id-a", list[0].ArtifactID)
	assert.Equal(t, "id-b", list[1].ArtifactID)
}

func TestSQLiteRevoke(t *testing.T) {
	reg := newTestSQLiteRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Store(ctx, issuedFixture("id-1"), actor))
	require.NoError(t, reg.Revoke(ctx, "id-1", "dispute-42", actor))

	got, err := reg.Get(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StateRevoked, got.State)
	assert.Equal(t, "dispute-42", got.RevocationRef)

	err = reg.Revoke(ctx, "missing", "reason", actor)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteSupersede(t *testing.T) {
	reg := newTestSQLiteRegistry(t)
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

	oldTrail, err := reg.GetAuditTrail(ctx, "id-old")
	require.NoError(t, err)
	require.Len(t, oldTrail, 2)
	assert.Equal(t, domain.EventSuperseded, oldTrail[1].EventType)

	newTrail, err := reg.GetAuditTrail(ctx, "id-new")
	require.NoError(t, err)
	require.Len(t, newTrail, 1)
	assert.Equal(t, domain.EventIssued, newTrail[0].EventType)
}

func TestSQLiteSupersedeErrors(t *testing.T) {
	reg := newTestSQLiteRegistry(t)
	ctx := context.Background()

	err := reg.Supersede(ctx, "missing", issuedFixture("id-new"), actor)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, reg.Store(ctx, issuedFixture("id-old"), actor))
	require.NoError(t, reg.Store(ctx, issuedFixture("id-taken"), actor))
	err = reg.Supersede(ctx, "id-old", issuedFixture("id-taken"), actor)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// Failed supersession must not have touched the old artifact.
	old, err := reg.Get(ctx, "id-old")
	require.NoError(t, err)
	assert.Equal(t, domain.StateIssued, old.State)
	assert.Empty(t, old.SupersededBy)
}

func TestSQLiteAuditTrailOrder(t *testing.T) {
	now := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)
	reg := newTestSQLiteRegistry(t).WithClock(func() time.Time {
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
	assert.Equal(t, "verification passed", trail[1].Detail)
}
