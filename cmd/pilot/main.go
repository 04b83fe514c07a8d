// Command pilot runs the offline end-to-end scenario: synthetic depot data,
// artifact issuance for two depots plus a portfolio roll-up, verification,
// a tampering demonstration, a supersession, and an audit pack export. All
// outputs land in ./pilot-output.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/flexproof/flexproof/pkg/adapter"
	"github.com/flexproof/flexproof/pkg/audit"
	"github.com/flexproof/flexproof/pkg/crypto"
	"github.com/flexproof/flexproof/pkg/domain"
	"github.com/flexproof/flexproof/pkg/engine"
	"github.com/flexproof/flexproof/pkg/registry"
	"github.com/flexproof/flexproof/pkg/verifier"
)

const (
	issuerID  = "fleet-operator-pilot"
	actorID   = "pilot-runner"
	outputDir = "pilot-output"
)

type depot struct {
	name      string
	baseKW    float64
	managedKW float64
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(context.Background(), logger); err != nil {
		logger.Error("pilot failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return err
	}

	signer, err := crypto.NewECDSASigner()
	if err != nil {
		return err
	}
	committer := crypto.NewSHA256Committer()
	factory, err := engine.NewFactory(committer, signer)
	if err != nil {
		return err
	}
	check := verifier.NewVerifier(committer)
	reg := registry.NewMemoryRegistry()
	agg := adapter.NewAggregator()

	periodStart := time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC)
	lookbackStart := periodStart.AddDate(0, -1, 0)
	windows := []adapter.TariffWindow{{
		Label: "weekday-peak",
		Start: 7 * time.Hour,
		End:   20 * time.Hour,
		Days: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		},
	}}

	depots := []depot{
		{name: "depot-north", baseKW: 420, managedKW: 110},
		{name: "depot-south", baseKW: 360, managedKW: 95},
	}

	rights := domain.RightsScope{
		CounterpartyID: "utility-partner-01",
		Purpose:        "demand-charge-settlement",
		ValidFrom:      periodEnd,
		ValidTo:        periodEnd.AddDate(1, 0, 0),
		Constraints:    map[string]string{"region": "DE", "program": "pilot-2025"},
	}

	var issued []*domain.UsageRightArtifact
	var portfolioDelta float64

	for _, d := range depots {
		actual := syntheticReadings(periodStart, periodEnd, d.managedKW)
		lookback := syntheticReadings(lookbackStart, periodStart, d.baseKW)

		peakInput := agg.AggregatePeakCompliance(actual, windows, periodStart, periodEnd)
		peak, err := issueArtifact(ctx, factory, reg, peakInput, rights)
		if err != nil {
			return fmt.Errorf("%s peak artifact: %w", d.name, err)
		}
		logger.Info("issued peak compliance artifact",
			"depot", d.name, "artifact_id", peak.ArtifactID, "peak_kw", peak.Claim.Value)

		deltaInput, err := agg.AggregateDemandDelta(actual, lookback, windows,
			adapter.BaselineHistoricalLookback, periodStart, periodEnd)
		if err != nil {
			return fmt.Errorf("%s demand delta: %w", d.name, err)
		}
		delta, err := issueArtifact(ctx, factory, reg, deltaInput, rights)
		if err != nil {
			return fmt.Errorf("%s delta artifact: %w", d.name, err)
		}
		logger.Info("issued demand delta artifact",
			"depot", d.name, "artifact_id", delta.ArtifactID, "delta_pct", delta.Claim.Value)

		portfolioDelta += delta.Claim.Value
		issued = append(issued, peak, delta)
	}

	// Portfolio roll-up: the average reduction across depots as one claim.
	portfolioInput := adapter.AggregatedClaimInput{
		ClaimType:   domain.ClaimDemandChargeDeltaEstimate,
		Value:       portfolioDelta / float64(len(depots)),
		Unit:        "%",
		MetricName:  "demand_charge_delta_pct",
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		BaselineRef: "portfolio-avg-v1",
	}
	portfolio, err := issueArtifact(ctx, factory, reg, portfolioInput, rights)
	if err != nil {
		return fmt.Errorf("portfolio artifact: %w", err)
	}
	logger.Info("issued portfolio artifact",
		"artifact_id", portfolio.ArtifactID, "delta_pct", portfolio.Claim.Value)
	issued = append(issued, portfolio)

	for _, a := range issued {
		result := check.Verify(a)
		if err := reg.RecordVerification(ctx, a.ArtifactID, result, actorID); err != nil {
			return err
		}
		if !result.IsValid {
			return fmt.Errorf("artifact %s unexpectedly invalid: %v", a.ArtifactID, result.FailureReasons)
		}
		logger.Info("verified", "artifact_id", a.ArtifactID, "valid", result.IsValid)
	}

	if err := tamperDemo(logger, check, issued[0]); err != nil {
		return err
	}

	replacement, err := supersedeDemo(ctx, factory, reg, issued[len(issued)-1], portfolioInput, rights)
	if err != nil {
		return err
	}
	logger.Info("superseded portfolio artifact",
		"old_artifact_id", portfolio.ArtifactID, "new_artifact_id", replacement.ArtifactID)

	if err := writeOutputs(ctx, reg, append(issued, replacement)); err != nil {
		return err
	}
	logger.Info("pilot complete", "artifacts", len(issued)+1, "output_dir", outputDir)
	return nil
}

func issueArtifact(ctx context.Context, factory *engine.Factory, reg registry.Registry,
	input adapter.AggregatedClaimInput, rights domain.RightsScope) (*domain.UsageRightArtifact, error) {
	draft, err := factory.CreateDraft(input, issuerID, rights)
	if err != nil {
		return nil, err
	}
	artifact, err := factory.Issue(draft)
	if err != nil {
		return nil, err
	}
	if err := reg.Store(ctx, artifact, actorID); err != nil {
		return nil, err
	}
	return artifact, nil
}

// tamperDemo shows that changing the claim value after issuance breaks both
// the commitment and the signature.
func tamperDemo(logger *slog.Logger, check *verifier.Verifier, original *domain.UsageRightArtifact) error {
	tampered := original.Clone()
	tampered.Claim.Value += 25.0

	result := check.Verify(tampered)
	if result.IsValid {
		return fmt.Errorf("tampered artifact %s passed verification", tampered.ArtifactID)
	}
	logger.Info("tampering detected",
		"artifact_id", tampered.ArtifactID,
		"failure_reasons", result.FailureReasons,
	)
	return nil
}

func supersedeDemo(ctx context.Context, factory *engine.Factory, reg registry.Registry,
	old *domain.UsageRightArtifact, input adapter.AggregatedClaimInput,
	rights domain.RightsScope) (*domain.UsageRightArtifact, error) {
	// Corrected figure after a late meter data delivery.
	input.Value += 0.4
	draft, err := factory.CreateDraft(input, issuerID, rights)
	if err != nil {
		return nil, err
	}
	replacement, err := factory.Issue(draft)
	if err != nil {
		return nil, err
	}
	if err := reg.Supersede(ctx, old.ArtifactID, replacement, actorID); err != nil {
		return nil, err
	}
	return replacement, nil
}

func writeOutputs(ctx context.Context, reg registry.Registry, artifacts []*domain.UsageRightArtifact) error {
	exporter := audit.NewExporter(reg)
	for _, a := range artifacts {
		stored, err := reg.Get(ctx, a.ArtifactID)
		if err != nil {
			return err
		}
		doc, err := json.MarshalIndent(stored, "", "  ")
		if err != nil {
			return err
		}
		name := filepath.Join(outputDir, "artifact-"+a.ArtifactID+".json")
		if err := os.WriteFile(name, doc, 0o600); err != nil {
			return err
		}

		pack, _, err := exporter.GeneratePack(ctx, a.ArtifactID)
		if err != nil {
			return err
		}
		packName := filepath.Join(outputDir, "audit-pack-"+a.ArtifactID+".zip")
		if err := os.WriteFile(packName, pack, 0o600); err != nil {
			return err
		}
	}
	return nil
}

// syntheticReadings generates deterministic hourly readings: heavy overnight
// charging at peakKW and a light daytime floor.
func syntheticReadings(from, to time.Time, peakKW float64) []adapter.LoadReading {
	var readings []adapter.LoadReading
	for t := from; t.Before(to); t = t.Add(time.Hour) {
		kw := 35.0
		switch h := t.Hour(); {
		case h < 6:
			kw = peakKW + float64(t.Day()%5)*2
		case h >= 7 && h < 20:
			kw = peakKW*0.35 + float64(h%4)*2.5
		}
		readings = append(readings, adapter.LoadReading{
			IntervalStart:    t,
			IntervalDuration: time.Hour,
			AverageKW:        kw,
			EnergyKWh:        kw,
		})
	}
	return readings
}
