// Package engine creates, commits, and signs usage-right artifacts.
// The factory owns artifacts only while they are drafts; once stored,
// lifecycle mutation belongs exclusively to the registry.
package engine

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/flexproof/flexproof/pkg/adapter"
	"github.com/flexproof/flexproof/pkg/canonicalize"
	"github.com/flexproof/flexproof/pkg/crypto"
	"github.com/flexproof/flexproof/pkg/domain"
)

// ErrInvalidState is returned when a lifecycle transition is attempted from
// the wrong state, e.g. issuing an artifact that is not a draft. This is a
// caller contract violation, not a transient failure.
var ErrInvalidState = errors.New("invalid artifact state")

const schemaVersion = "1.0"

// Factory drafts and issues usage-right artifacts.
type Factory struct {
	committer          crypto.Committer
	signer             crypto.Signer
	computationVersion string
	clock              func() time.Time
	newID              func() string
}

// Option configures a Factory.
type Option func(*Factory) error

// WithComputationVersion sets the version tag stamped on drafted claims.
// The tag must be valid semver.
func WithComputationVersion(v string) Option {
	return func(f *Factory) error {
		if _, err := semver.NewVersion(v); err != nil {
			return fmt.Errorf("invalid computation version %q: %w", v, err)
		}
		f.computationVersion = v
		return nil
	}
}

// WithClock overrides the clock for deterministic testing.
func WithClock(clock func() time.Time) Option {
	return func(f *Factory) error {
		f.clock = clock
		return nil
	}
}

// WithIDGenerator overrides artifact id generation for deterministic testing.
func WithIDGenerator(newID func() string) Option {
	return func(f *Factory) error {
		f.newID = newID
		return nil
	}
}

// NewFactory creates a factory using the given committer and signer.
func NewFactory(committer crypto.Committer, signer crypto.Signer, opts ...Option) (*Factory, error) {
	f := &Factory{
		committer:          committer,
		signer:             signer,
		computationVersion: "1.0.0",
		clock:              time.Now,
		newID:              newArtifactID,
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// CreateDraft builds a draft artifact from an aggregated claim input and a
// rights scope. Pure construction: a fresh unique id, a creation timestamp,
// and a verbatim copy of the scalar claim fields. The caller must have
// aggregated and minimized the raw data before this call; the factory never
// touches a data source.
func (f *Factory) CreateDraft(input adapter.AggregatedClaimInput, issuerID string, rights domain.RightsScope) (*domain.UsageRightArtifact, error) {
	if issuerID == "" {
		return nil, fmt.Errorf("issuer id must not be empty")
	}
	if !input.PeriodStart.Before(input.PeriodEnd) {
		return nil, fmt.Errorf("period start %s must precede period end %s",
			input.PeriodStart.Format(time.RFC3339), input.PeriodEnd.Format(time.RFC3339))
	}
	if _, err := domain.ParseClaimType(string(input.ClaimType)); err != nil {
		return nil, err
	}

	return &domain.UsageRightArtifact{
		ArtifactID:    f.newID(),
		SchemaVersion: schemaVersion,
		IssuerID:      issuerID,
		CreatedAt:     f.clock().UTC(),
		State:         domain.StateDraft,
		PeriodStart:   input.PeriodStart,
		PeriodEnd:     input.PeriodEnd,
		Claim: domain.ClaimValue{
			Type:               input.ClaimType,
			MetricName:         input.MetricName,
			Value:              input.Value,
			Unit:               input.Unit,
			BaselineRef:        input.BaselineRef,
			ComputationVersion: f.computationVersion,
		},
		Rights: rights,
	}, nil
}

// Issue commits and signs a draft, promoting it in place to Issued. There is
// exactly one identity per lifecycle: the same artifact is mutated and
// returned, its id never changes. Issuing anything that is not a draft fails
// with ErrInvalidState; issuance is neither idempotent nor retryable.
func (f *Factory) Issue(draft *domain.UsageRightArtifact) (*domain.UsageRightArtifact, error) {
	if draft.State != domain.StateDraft {
		return nil, fmt.Errorf("cannot issue artifact %s in state %s: %w",
			draft.ArtifactID, draft.State, ErrInvalidState)
	}

	commitment, err := f.committer.ComputeCommitment(draft)
	if err != nil {
		return nil, fmt.Errorf("issue %s: %w", draft.ArtifactID, err)
	}

	canonical, err := canonicalize.Canonicalize(draft)
	if err != nil {
		return nil, fmt.Errorf("issue %s: %w", draft.ArtifactID, err)
	}
	signature, err := f.signer.Sign(canonical)
	if err != nil {
		return nil, fmt.Errorf("issue %s: %w", draft.ArtifactID, err)
	}
	publicKey, err := f.signer.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("issue %s: %w", draft.ArtifactID, err)
	}

	draft.DataCommitment = commitment
	draft.Signature = base64.StdEncoding.EncodeToString(signature)
	draft.SignerPublicKey = base64.StdEncoding.EncodeToString(publicKey)
	draft.State = domain.StateIssued

	return draft, nil
}

func newArtifactID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
