package adapter

import (
	"fmt"
	"math"
	"time"

	"github.com/flexproof/flexproof/pkg/domain"
)

// AggregatedClaimInput is an aggregation result ready for claim generation.
// It carries only minimized, aggregated values.
type AggregatedClaimInput struct {
	ClaimType   domain.ClaimType `json:"claimType"`
	Value       float64          `json:"value"`
	Unit        string           `json:"unit"`
	MetricName  string           `json:"metricName"`
	PeriodStart time.Time        `json:"periodStart"`
	PeriodEnd   time.Time        `json:"periodEnd"`
	BaselineRef string           `json:"baselineRef,omitempty"`
}

// Aggregator produces aggregated claim inputs from local load data.
type Aggregator struct {
	baseline *BaselineEngine
}

// NewAggregator creates an aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{baseline: NewBaselineEngine()}
}

// AggregatePeakCompliance returns the maximum observed load during tariff
// peak windows over the period, rounded to two decimals.
func (a *Aggregator) AggregatePeakCompliance(readings []LoadReading, windows []TariffWindow, periodStart, periodEnd time.Time) AggregatedClaimInput {
	var peakKW float64
	for _, r := range readings {
		if inPeakWindow(r, windows) && r.AverageKW > peakKW {
			peakKW = r.AverageKW
		}
	}

	return AggregatedClaimInput{
		ClaimType:   domain.ClaimPeakWindowCompliance,
		Value:       round2(peakKW),
		Unit:        "kW",
		MetricName:  "peak_kw",
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	}
}

// AggregateDemandDelta returns the percentage reduction of peak demand
// versus the baseline computed with the given mode.
func (a *Aggregator) AggregateDemandDelta(actual, lookback []LoadReading, windows []TariffWindow, mode BaselineMode, periodStart, periodEnd time.Time) (AggregatedClaimInput, error) {
	var baselinePeak float64
	var baselineRef string
	switch mode {
	case BaselineHistoricalLookback:
		baselinePeak = a.baseline.HistoricalBaseline(lookback, windows)
		baselineRef = "lookback-30d-v1"
	case BaselineCounterfactualModel:
		baselinePeak = a.baseline.CounterfactualBaseline(actual, 1.0)
		baselineRef = "counterfactual-v1"
	default:
		return AggregatedClaimInput{}, fmt.Errorf("unknown baseline mode %q", mode)
	}

	var actualPeak float64
	for _, r := range actual {
		if inPeakWindow(r, windows) && r.AverageKW > actualPeak {
			actualPeak = r.AverageKW
		}
	}

	var deltaPct float64
	if baselinePeak > 0 {
		deltaPct = round2((baselinePeak - actualPeak) / baselinePeak * 100)
	}

	return AggregatedClaimInput{
		ClaimType:   domain.ClaimDemandChargeDeltaEstimate,
		Value:       deltaPct,
		Unit:        "%",
		MetricName:  "demand_charge_delta_pct",
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		BaselineRef: baselineRef,
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
