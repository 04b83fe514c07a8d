// Package audit exports artifact audit trails as self-contained evidence
// packs an external auditor can replay independently of the registry.
package audit

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flexproof/flexproof/pkg/crypto"
	"github.com/flexproof/flexproof/pkg/domain"
	"github.com/flexproof/flexproof/pkg/registry"
)

// ErrRegistryNotConfigured is returned when export is invoked without a
// backing registry.
var ErrRegistryNotConfigured = errors.New("audit: registry not configured")

// Manifest describes the exported bundle and carries the checksum that
// binds it.
type Manifest struct {
	ArtifactID  string    `json:"artifactId"`
	GeneratedAt time.Time `json:"generatedAt"`
	EntryCount  int       `json:"entryCount"`
	// Checksum is the SHA-256 hex digest of the trail JSONL file.
	Checksum string `json:"checksum"`
}

// Exporter builds evidence packs from a registry's audit trail.
type Exporter struct {
	registry registry.Registry
	clock    func() time.Time
}

// NewExporter creates an exporter over the given registry.
func NewExporter(r registry.Registry) *Exporter {
	return &Exporter{registry: r, clock: time.Now}
}

// GeneratePack returns a zip bundle with the artifact's audit trail as
// JSONL plus a manifest containing its checksum, and the checksum itself.
func (e *Exporter) GeneratePack(ctx context.Context, artifactID string) ([]byte, string, error) {
	if e.registry == nil {
		return nil, "", ErrRegistryNotConfigured
	}

	entries, err := e.registry.GetAuditTrail(ctx, artifactID)
	if err != nil {
		return nil, "", fmt.Errorf("audit export for %s: %w", artifactID, err)
	}

	var trail bytes.Buffer
	enc := json.NewEncoder(&trail)
	for _, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			return nil, "", fmt.Errorf("audit export for %s: %w", artifactID, err)
		}
	}
	checksum := crypto.HashBytes(trail.Bytes())

	manifest := Manifest{
		ArtifactID:  artifactID,
		GeneratedAt: e.clock().UTC(),
		EntryCount:  len(entries),
		Checksum:    checksum,
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("audit export for %s: %w", artifactID, err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if err := writeZipFile(zw, "audit_trail.jsonl", trail.Bytes()); err != nil {
		return nil, "", fmt.Errorf("audit export for %s: %w", artifactID, err)
	}
	if err := writeZipFile(zw, "manifest.json", manifestJSON); err != nil {
		return nil, "", fmt.Errorf("audit export for %s: %w", artifactID, err)
	}
	if err := zw.Close(); err != nil {
		return nil, "", fmt.Errorf("audit export for %s: %w", artifactID, err)
	}

	return buf.Bytes(), checksum, nil
}

// VerifyPack re-reads a pack and checks the trail checksum against the
// manifest. Returns the decoded entries on success.
func VerifyPack(pack []byte) ([]domain.AuditEntry, error) {
	zr, err := zip.NewReader(bytes.NewReader(pack), int64(len(pack)))
	if err != nil {
		return nil, fmt.Errorf("audit pack: %w", err)
	}

	var trail, manifestJSON []byte
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("audit pack: open %s: %w", f.Name, err)
		}
		var content bytes.Buffer
		if _, err := content.ReadFrom(rc); err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("audit pack: read %s: %w", f.Name, err)
		}
		_ = rc.Close()

		switch f.Name {
		case "audit_trail.jsonl":
			trail = content.Bytes()
		case "manifest.json":
			manifestJSON = content.Bytes()
		}
	}
	if trail == nil || manifestJSON == nil {
		return nil, errors.New("audit pack: missing audit_trail.jsonl or manifest.json")
	}

	var manifest Manifest
	if err := json.Unmarshal(manifestJSON, &manifest); err != nil {
		return nil, fmt.Errorf("audit pack: bad manifest: %w", err)
	}
	if got := crypto.HashBytes(trail); got != manifest.Checksum {
		return nil, fmt.Errorf("audit pack: checksum mismatch: manifest %s, trail %s", manifest.Checksum, got)
	}

	var entries []domain.AuditEntry
	dec := json.NewDecoder(bytes.NewReader(trail))
	for dec.More() {
		var entry domain.AuditEntry
		if err := dec.Decode(&entry); err != nil {
			return nil, fmt.Errorf("audit pack: bad trail entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func writeZipFile(zw *zip.Writer, name string, content []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(content)
	return err
}
