package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flexproof/flexproof/pkg/domain"
)

// MemoryRegistry is the in-memory Registry for local deployment and tests.
// A single mutex serializes every mutation together with its audit append,
// so readers always observe a fully committed snapshot: an artifact is never
// visible as Issued without its Issued audit entry, or vice versa.
type MemoryRegistry struct {
	mu        sync.RWMutex
	artifacts map[string]*domain.UsageRightArtifact
	auditLog  []domain.AuditEntry
	clock     func() time.Time
	newID     func() string
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		artifacts: make(map[string]*domain.UsageRightArtifact),
		clock:     time.Now,
		newID:     func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

// WithClock overrides the clock for deterministic testing.
func (r *MemoryRegistry) WithClock(clock func() time.Time) *MemoryRegistry {
	r.clock = clock
	return r
}

func (r *MemoryRegistry) Store(ctx context.Context, artifact *domain.UsageRightArtifact, actorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.artifacts[artifact.ArtifactID]; exists {
		return fmt.Errorf("store artifact %s: %w", artifact.ArtifactID, ErrAlreadyExists)
	}

	// Stored clone, so the caller's pointer can never reach
	// registry-owned state.
	r.artifacts[artifact.ArtifactID] = artifact.Clone()
	r.appendAudit(artifact.ArtifactID, domain.EventIssued, actorID, "artifact stored and issued")
	return nil
}

func (r *MemoryRegistry) Get(ctx context.Context, artifactID string) (*domain.UsageRightArtifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	artifact, ok := r.artifacts[artifactID]
	if !ok {
		return nil, fmt.Errorf("get artifact %s: %w", artifactID, ErrNotFound)
	}
	return artifact.Clone(), nil
}

func (r *MemoryRegistry) List(ctx context.Context) ([]*domain.UsageRightArtifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.UsageRightArtifact, 0, len(r.artifacts))
	for _, artifact := range r.artifacts {
		out = append(out, artifact.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ArtifactID < out[j].ArtifactID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRegistry) Revoke(ctx context.Context, artifactID, reason, actorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	artifact, ok := r.artifacts[artifactID]
	if !ok {
		return fmt.Errorf("revoke artifact %s: %w", artifactID, ErrNotFound)
	}

	artifact.State = domain.StateRevoked
	artifact.RevocationRef = reason
	r.appendAudit(artifactID, domain.EventRevoked, actorID, reason)
	return nil
}

func (r *MemoryRegistry) Supersede(ctx context.Context, oldArtifactID string, replacement *domain.UsageRightArtifact, actorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.artifacts[oldArtifactID]
	if !ok {
		return fmt.Errorf("supersede artifact %s: %w", oldArtifactID, ErrNotFound)
	}
	if _, exists := r.artifacts[replacement.ArtifactID]; exists {
		return fmt.Errorf("supersede: replacement %s: %w", replacement.ArtifactID, ErrAlreadyExists)
	}

	old.State = domain.StateSuperseded
	old.SupersededBy = replacement.ArtifactID
	r.artifacts[replacement.ArtifactID] = replacement.Clone()

	r.appendAudit(oldArtifactID, domain.EventSuperseded, actorID, "superseded by "+replacement.ArtifactID)
	r.appendAudit(replacement.ArtifactID, domain.EventIssued, actorID, "supersedes "+oldArtifactID)
	return nil
}

func (r *MemoryRegistry) RecordVerification(ctx context.Context, artifactID string, result *domain.VerificationResult, actorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.appendAudit(artifactID, domain.EventVerified, actorID, verificationDetail(result))
	return nil
}

func (r *MemoryRegistry) GetAuditTrail(ctx context.Context, artifactID string) ([]domain.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var entries []domain.AuditEntry
	for _, e := range r.auditLog {
		if e.ArtifactID == artifactID {
			entries = append(entries, e)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

// appendAudit must be called with the write lock held.
func (r *MemoryRegistry) appendAudit(artifactID string, eventType domain.EventType, actorID, detail string) {
	r.auditLog = append(r.auditLog, domain.AuditEntry{
		EntryID:    r.newID(),
		ArtifactID: artifactID,
		Timestamp:  r.clock().UTC(),
		EventType:  eventType,
		ActorID:    actorID,
		Detail:     detail,
	})
}
