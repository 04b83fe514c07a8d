package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/flexproof/flexproof/pkg/adapter"
	"github.com/flexproof/flexproof/pkg/audit"
	"github.com/flexproof/flexproof/pkg/crypto"
	"github.com/flexproof/flexproof/pkg/domain"
	"github.com/flexproof/flexproof/pkg/engine"
	"github.com/flexproof/flexproof/pkg/observability"
	"github.com/flexproof/flexproof/pkg/presentation"
	"github.com/flexproof/flexproof/pkg/registry"
	"github.com/flexproof/flexproof/pkg/verifier"
)

const maxRequestBody = 1 << 20

// defaultLookback is used for historical baselines when the request does not
// pin an explicit lookback start.
const defaultLookback = 30 * 24 * time.Hour

// Server wires the artifact core behind an HTTP API.
type Server struct {
	factory    *engine.Factory
	verifier   *verifier.Verifier
	registry   registry.Registry
	source     adapter.DataSource
	aggregator *adapter.Aggregator
	signer     *crypto.ECDSASigner
	exporter   *audit.Exporter
	validator  *RequestValidator
	issuerID   string
	logger     *slog.Logger
	obs        *observability.Provider
}

// Deps carries the collaborators a Server needs.
type Deps struct {
	Factory  *engine.Factory
	Verifier *verifier.Verifier
	Registry registry.Registry
	Source   adapter.DataSource
	Signer   *crypto.ECDSASigner
	IssuerID string
	Logger   *slog.Logger
	Obs      *observability.Provider
}

// NewServer creates a server from its dependencies.
func NewServer(deps Deps) (*Server, error) {
	if deps.Factory == nil || deps.Verifier == nil || deps.Registry == nil {
		return nil, fmt.Errorf("factory, verifier, and registry are required")
	}
	if deps.IssuerID == "" {
		return nil, fmt.Errorf("issuer id is required")
	}
	validator, err := NewRequestValidator()
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		factory:    deps.Factory,
		verifier:   deps.Verifier,
		registry:   deps.Registry,
		source:     deps.Source,
		aggregator: adapter.NewAggregator(),
		signer:     deps.Signer,
		exporter:   audit.NewExporter(deps.Registry),
		validator:  validator,
		issuerID:   deps.IssuerID,
		logger:     logger,
		obs:        deps.Obs,
	}, nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler(limiter *RateLimiter) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/artifacts/issue", s.instrument("issue", s.handleIssue))
	mux.HandleFunc("POST /api/artifacts/verify", s.instrument("verify", s.handleVerify))
	mux.HandleFunc("POST /api/artifacts/revoke", s.instrument("revoke", s.handleRevoke))
	mux.HandleFunc("POST /api/artifacts/supersede", s.instrument("supersede", s.handleSupersede))
	mux.HandleFunc("GET /api/artifacts", s.instrument("list", s.handleList))
	mux.HandleFunc("GET /api/artifacts/{id}", s.instrument("get", s.handleGet))
	mux.HandleFunc("GET /api/artifacts/{id}/audit", s.instrument("audit", s.handleAuditTrail))
	mux.HandleFunc("GET /api/artifacts/{id}/audit/pack", s.instrument("audit_pack", s.handleAuditPack))
	mux.HandleFunc("GET /api/artifacts/{id}/presentation", s.instrument("presentation", s.handlePresentation))
	mux.HandleFunc("GET /healthz", s.handleHealth)

	var handler http.Handler = mux
	if limiter != nil {
		handler = limiter.Middleware(handler)
	}
	return LoggingMiddleware(s.logger)(handler)
}

func (s *Server) instrument(operation string, h http.HandlerFunc) http.HandlerFunc {
	if s.obs == nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		var err error
		if rec.status >= 500 {
			err = fmt.Errorf("status %d", rec.status)
		}
		s.obs.RecordRequest(r.Context(), operation, time.Since(start), err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid Request", "cannot read request body")
		return
	}
	if err := s.validator.ValidateIssue(body); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	var req IssueArtifactRequest
	if err := json.Unmarshal(body, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}

	artifact, err := s.issueFromRequest(r.Context(), &req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if err := s.registry.Store(r.Context(), artifact, s.issuerID); err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.logger.Info("artifact issued",
		"artifact_id", artifact.ArtifactID,
		"claim_type", artifact.Claim.Type,
		"counterparty", artifact.Rights.CounterpartyID,
	)
	writeJSON(w, http.StatusCreated, IssueArtifactResponse{Artifact: artifact})
}

// issueFromRequest aggregates source data for the request, drafts the
// artifact, and issues it. The returned artifact is not yet registered.
func (s *Server) issueFromRequest(ctx context.Context, req *IssueArtifactRequest) (*domain.UsageRightArtifact, error) {
	input, err := s.aggregateForRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	rights := domain.RightsScope{
		CounterpartyID: req.CounterpartyID,
		Purpose:        req.Purpose,
		ValidFrom:      req.RightsValidFrom,
		ValidTo:        req.RightsValidTo,
		Constraints:    req.Constraints,
	}
	draft, err := s.factory.CreateDraft(input, s.issuerID, rights)
	if err != nil {
		return nil, err
	}
	return s.factory.Issue(draft)
}

func (s *Server) aggregateForRequest(ctx context.Context, req *IssueArtifactRequest) (adapter.AggregatedClaimInput, error) {
	if s.source == nil {
		return adapter.AggregatedClaimInput{}, fmt.Errorf("no data source configured")
	}

	claimType, err := domain.ParseClaimType(req.ClaimType)
	if err != nil {
		return adapter.AggregatedClaimInput{}, err
	}

	readings, err := s.source.LoadReadings(ctx, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		return adapter.AggregatedClaimInput{}, fmt.Errorf("load readings: %w", err)
	}
	windows, err := s.source.TariffWindows(ctx)
	if err != nil {
		return adapter.AggregatedClaimInput{}, fmt.Errorf("load tariff windows: %w", err)
	}

	switch claimType {
	case domain.ClaimPeakWindowCompliance:
		return s.aggregator.AggregatePeakCompliance(readings, windows, req.PeriodStart, req.PeriodEnd), nil

	case domain.ClaimDemandChargeDeltaEstimate:
		mode := adapter.BaselineHistoricalLookback
		if req.BaselineMode != "" {
			mode, err = adapter.ParseBaselineMode(req.BaselineMode)
			if err != nil {
				return adapter.AggregatedClaimInput{}, err
			}
		}
		var lookback []adapter.LoadReading
		if mode == adapter.BaselineHistoricalLookback {
			lookbackStart := req.PeriodStart.Add(-defaultLookback)
			if req.LookbackStart != nil {
				lookbackStart = *req.LookbackStart
			}
			lookback, err = s.source.LoadReadings(ctx, lookbackStart, req.PeriodStart)
			if err != nil {
				return adapter.AggregatedClaimInput{}, fmt.Errorf("load lookback readings: %w", err)
			}
		}
		return s.aggregator.AggregateDemandDelta(readings, lookback, windows, mode, req.PeriodStart, req.PeriodEnd)

	default:
		return adapter.AggregatedClaimInput{}, fmt.Errorf("unsupported claim type %q", claimType)
	}
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyArtifactRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if (req.ArtifactID == "") == (req.Artifact == nil) {
		WriteError(w, http.StatusBadRequest, "Invalid Request",
			"exactly one of artifactId or artifact must be provided")
		return
	}

	artifact := req.Artifact
	fromRegistry := false
	if req.ArtifactID != "" {
		stored, err := s.registry.Get(r.Context(), req.ArtifactID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		artifact = stored
		fromRegistry = true
	}

	result := s.verifier.Verify(artifact)

	// Registry-backed verifications land in the audit trail; external
	// documents have no trail to append to.
	if fromRegistry {
		if err := s.registry.RecordVerification(r.Context(), artifact.ArtifactID, result, "api"); err != nil {
			s.logger.Warn("record verification failed",
				"artifact_id", artifact.ArtifactID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req RevokeArtifactRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if req.ArtifactID == "" || req.RevocationRef == "" {
		WriteError(w, http.StatusBadRequest, "Invalid Request",
			"artifactId and revocationRef are required")
		return
	}
	actor := req.ActorID
	if actor == "" {
		actor = s.issuerID
	}

	if err := s.registry.Revoke(r.Context(), req.ArtifactID, req.RevocationRef, actor); err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.logger.Info("artifact revoked", "artifact_id", req.ArtifactID, "ref", req.RevocationRef)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSupersede(w http.ResponseWriter, r *http.Request) {
	var req SupersedeArtifactRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if req.OldArtifactID == "" {
		WriteError(w, http.StatusBadRequest, "Invalid Request", "oldArtifactId is required")
		return
	}
	actor := req.ActorID
	if actor == "" {
		actor = s.issuerID
	}

	replacement, err := s.issueFromRequest(r.Context(), &req.IssueArtifactRequest)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if err := s.registry.Supersede(r.Context(), req.OldArtifactID, replacement, actor); err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.logger.Info("artifact superseded",
		"old_artifact_id", req.OldArtifactID,
		"new_artifact_id", replacement.ArtifactID,
	)
	writeJSON(w, http.StatusCreated, IssueArtifactResponse{Artifact: replacement})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	artifacts, err := s.registry.List(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, artifacts)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	artifact, err := s.registry.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, artifact)
}

func (s *Server) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entries, err := s.registry.GetAuditTrail(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuditTrailResponse{ArtifactID: id, Entries: entries})
}

func (s *Server) handleAuditPack(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	pack, checksum, err := s.exporter.GeneratePack(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "audit-pack-"+id+".zip"))
	w.Header().Set("X-Audit-Checksum", checksum)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pack)
}

func (s *Server) handlePresentation(w http.ResponseWriter, r *http.Request) {
	if s.signer == nil {
		WriteError(w, http.StatusServiceUnavailable, "Presentation Unavailable",
			"no signing key configured")
		return
	}

	id := r.PathValue("id")
	artifact, err := s.registry.Get(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	token, err := presentation.BuildToken(s.signer, artifact)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PresentationResponse{ArtifactID: id, Token: token})
}

// writeDomainError maps core errors onto RFC 7807 responses.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		WriteError(w, http.StatusNotFound, "Artifact Not Found", err.Error())
	case errors.Is(err, registry.ErrAlreadyExists):
		WriteError(w, http.StatusConflict, "Artifact Already Exists", err.Error())
	case errors.Is(err, engine.ErrInvalidState):
		WriteError(w, http.StatusConflict, "Invalid Artifact State", err.Error())
	case errors.Is(err, presentation.ErrNotIssued):
		WriteError(w, http.StatusConflict, "Invalid Artifact State", err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "Internal Error", err.Error())
	}
}
