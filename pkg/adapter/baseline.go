package adapter

import "fmt"

// BaselineMode identifies the baseline computation strategy.
type BaselineMode string

const (
	// BaselineHistoricalLookback averages peak demand over a lookback
	// period before optimization.
	BaselineHistoricalLookback BaselineMode = "HistoricalLookback"
	// BaselineCounterfactualModel estimates the uncontrolled demand that
	// would have occurred without optimization.
	BaselineCounterfactualModel BaselineMode = "CounterfactualModel"
)

// ParseBaselineMode validates a symbolic baseline mode name.
func ParseBaselineMode(s string) (BaselineMode, error) {
	switch BaselineMode(s) {
	case BaselineHistoricalLookback, BaselineCounterfactualModel:
		return BaselineMode(s), nil
	}
	return "", fmt.Errorf("unknown baseline mode %q", s)
}

// BaselineEngine computes baseline demand values for delta claims.
type BaselineEngine struct{}

// NewBaselineEngine creates a baseline engine.
func NewBaselineEngine() *BaselineEngine {
	return &BaselineEngine{}
}

// HistoricalBaseline computes baseline peak demand from lookback readings:
// per-day maximum within tariff peak windows, averaged across days.
func (e *BaselineEngine) HistoricalBaseline(lookback []LoadReading, windows []TariffWindow) float64 {
	if len(lookback) == 0 {
		return 0
	}

	dailyPeaks := make(map[string]float64)
	for _, r := range lookback {
		if !inPeakWindow(r, windows) {
			continue
		}
		day := r.IntervalStart.Format("2006-01-02")
		if r.AverageKW > dailyPeaks[day] {
			dailyPeaks[day] = r.AverageKW
		}
	}
	if len(dailyPeaks) == 0 {
		return 0
	}

	var sum float64
	for _, peak := range dailyPeaks {
		sum += peak
	}
	return sum / float64(len(dailyPeaks))
}

// CounterfactualBaseline estimates uncontrolled peak demand assuming the
// total energy had been drawn uniformly, scaled by a simultaneity factor.
func (e *BaselineEngine) CounterfactualBaseline(actual []LoadReading, simultaneityFactor float64) float64 {
	if len(actual) == 0 {
		return 0
	}

	var totalEnergy, totalHours float64
	for _, r := range actual {
		totalEnergy += r.EnergyKWh
		totalHours += r.IntervalDuration.Hours()
	}
	if totalHours == 0 {
		return 0
	}
	return totalEnergy / totalHours * simultaneityFactor
}
