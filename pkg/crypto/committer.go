// Package crypto provides the integrity primitives for usage-right
// artifacts: SHA-256 content commitments over canonical bytes and detached
// ECDSA P-256 signatures. Everything here is deterministic given its inputs
// and safe for concurrent use.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/flexproof/flexproof/pkg/canonicalize"
	"github.com/flexproof/flexproof/pkg/domain"
)

// Committer computes content commitments binding an artifact to its
// canonical claim content.
type Committer interface {
	ComputeCommitment(a *domain.UsageRightArtifact) (string, error)
}

// SHA256Committer hashes the canonical bytes with SHA-256.
type SHA256Committer struct{}

// NewSHA256Committer creates a committer.
func NewSHA256Committer() *SHA256Committer {
	return &SHA256Committer{}
}

// ComputeCommitment returns the lowercase hex SHA-256 digest (64 chars) of
// the artifact's canonical claim content. Pure and side-effect-free; used
// both to produce dataCommitment at issuance and to recompute-and-compare
// at verification time.
func (c *SHA256Committer) ComputeCommitment(a *domain.UsageRightArtifact) (string, error) {
	canonical, err := canonicalize.Canonicalize(a)
	if err != nil {
		return "", fmt.Errorf("commitment: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// HashBytes computes the SHA-256 hex digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
