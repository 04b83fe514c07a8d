package audit

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexproof/flexproof/pkg/domain"
	"github.com/flexproof/flexproof/pkg/registry"
)

func seededRegistry(t *testing.T) registry.Registry {
	t.Helper()
	reg := registry.NewMemoryRegistry()
	ctx := context.Background()

	artifact := &domain.UsageRightArtifact{
		ArtifactID:    "id-1",
		SchemaVersion: "1.0",
		IssuerID:      "fleet-operator-01",
		CreatedAt:     time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC),
		State:         domain.StateIssued,
		PeriodStart:   time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:     time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, reg.Store(ctx, artifact, "test-operator"))
	result := &domain.VerificationResult{IsValid: true, ArtifactID: "id-1"}
	require.NoError(t, reg.RecordVerification(ctx, "id-1", result, "verifier-1"))
	return reg
}

func TestGeneratePackRoundTrip(t *testing.T) {
	exporter := NewExporter(seededRegistry(t))

	pack, checksum, err := exporter.GeneratePack(context.Background(), "id-1")
	require.NoError(t, err)
	require.NotEmpty(t, pack)
	assert.Regexp(t, `^[0-9a-f]{64}$`, checksum)

	entries, err := VerifyPack(pack)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.EventIssued, entries[0].EventType)
	assert.Equal(t, domain.EventVerified, entries[1].EventType)
	assert.Equal(t, "id-1", entries[0].ArtifactID)
}

func TestGeneratePackContents(t *testing.T) {
	exporter := NewExporter(seededRegistry(t))

	pack, _, err := exporter.GeneratePack(context.Background(), "id-1")
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(pack), int64(len(pack)))
	require.NoError(t, err)

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"audit_trail.jsonl", "manifest.json"}, names)
}

func TestGeneratePackEmptyTrail(t *testing.T) {
	exporter := NewExporter(registry.NewMemoryRegistry())

	pack, _, err := exporter.GeneratePack(context.Background(), "unknown")
	require.NoError(t, err)

	entries, err := VerifyPack(pack)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGeneratePackNoRegistry(t *testing.T) {
	exporter := &Exporter{}

	_, _, err := exporter.GeneratePack(context.Background(), "id-1")
	assert.ErrorIs(t, err, ErrRegistryNotConfigured)
}

func TestVerifyPackDetectsTampering(t *testing.T) {
	exporter := NewExporter(seededRegistry(t))

	pack, _, err := exporter.GeneratePack(context.Background(), "id-1")
	require.NoError(t, err)

	// Rebuild the zip with an altered trail but the original manifest.
	zr, err := zip.NewReader(bytes.NewReader(pack), int64(len(pack)))
	require.NoError(t, err)

	var tampered bytes.Buffer
	zw := zip.NewWriter(&tampered)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		var content bytes.Buffer
		_, err = content.ReadFrom(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())

		data := content.Bytes()
		if f.Name == "audit_trail.jsonl" {
			data = bytes.Replace(data, []byte("verifier-1"), []byte("attacker-9"), 1)
		}
		w, err := zw.Create(f.Name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	_, err = VerifyPack(tampered.Bytes())
	assert.ErrorContains(t, err, "checksum mismatch")
}

func TestVerifyPackRejectsGarbage(t *testing.T) {
	_, err := VerifyPack([]byte("not a zip"))
	assert.Error(t, err)
}
