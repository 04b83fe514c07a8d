// Package adapter aggregates local load data into the scalar claim inputs
// the artifact engine consumes. It enforces data minimization: only
// aggregated values cross this boundary, never raw session-level data.
package adapter

import (
	"context"
	"sort"
	"sync"
	"time"
)

// LoadReading is a single aggregated interval reading (e.g. a 15-minute
// average). This is the minimal ingestion unit.
type LoadReading struct {
	// IntervalStart is the start of the measurement interval.
	IntervalStart time.Time `json:"intervalStart"`
	// IntervalDuration is the length of the measurement interval.
	IntervalDuration time.Duration `json:"intervalDuration"`
	// AverageKW is the mean power during the interval.
	AverageKW float64 `json:"averageKw"`
	// EnergyKWh is the energy delivered during the interval.
	EnergyKWh float64 `json:"energyKwh"`
}

// TariffWindow is a time-of-use window during which peak behavior matters.
// Start and End are offsets from midnight in the reading's location.
type TariffWindow struct {
	Label string         `json:"label"`
	Start time.Duration  `json:"start"`
	End   time.Duration  `json:"end"`
	Days  []time.Weekday `json:"days"`
}

// Contains reports whether t falls inside the window: the day matches and
// the time of day is in [Start, End).
func (w TariffWindow) Contains(t time.Time) bool {
	dayMatch := false
	for _, d := range w.Days {
		if t.Weekday() == d {
			dayMatch = true
			break
		}
	}
	if !dayMatch {
		return false
	}
	h, m, s := t.Clock()
	offset := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second
	return offset >= w.Start && offset < w.End
}

func inPeakWindow(r LoadReading, windows []TariffWindow) bool {
	for _, w := range windows {
		if w.Contains(r.IntervalStart) {
			return true
		}
	}
	return false
}

// DataSource provides aggregated load readings and tariff windows.
// Implementations connect to depot or fleet systems but must only expose
// aggregated data.
type DataSource interface {
	// LoadReadings returns readings with IntervalStart in [from, to),
	// ordered by interval start.
	LoadReadings(ctx context.Context, from, to time.Time) ([]LoadReading, error)
	// TariffWindows returns the applicable tariff windows.
	TariffWindows(ctx context.Context) ([]TariffWindow, error)
}

// MemoryDataSource is an in-memory DataSource for tests and pilots, loaded
// with synthetic or imported aggregated readings.
type MemoryDataSource struct {
	mu       sync.RWMutex
	readings []LoadReading
	windows  []TariffWindow
}

// NewMemoryDataSource creates an empty in-memory data source.
func NewMemoryDataSource() *MemoryDataSource {
	return &MemoryDataSource{}
}

// AddReadings appends readings to the source.
func (s *MemoryDataSource) AddReadings(readings ...LoadReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = append(s.readings, readings...)
}

// AddTariffWindows appends tariff windows to the source.
func (s *MemoryDataSource) AddTariffWindows(windows ...TariffWindow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows = append(s.windows, windows...)
}

func (s *MemoryDataSource) LoadReadings(ctx context.Context, from, to time.Time) ([]LoadReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []LoadReading
	for _, r := range s.readings {
		if !r.IntervalStart.Before(from) && r.IntervalStart.Before(to) {
			filtered = append(filtered, r)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].IntervalStart.Before(filtered[j].IntervalStart)
	})
	return filtered, nil
}

func (s *MemoryDataSource) TariffWindows(ctx context.Context) ([]TariffWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TariffWindow, len(s.windows))
	copy(out, s.windows)
	return out, nil
}
