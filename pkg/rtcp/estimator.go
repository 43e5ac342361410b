package rtcp

import (
	"log/slog"
	"sync"
)

// MaxLevel is the most severe congestion level
const MaxLevel = 4

// RateAdjustment is emitted by Sample when the congestion level changed
// since the previous sample.
type RateAdjustment struct {
	Level         int
	PreviousLevel int
}

// LevelFor maps a loss fraction to a congestion level:
//
//	[0, 0.01]    -> 0
//	(0.01, 0.25] -> 1
//	(0.25, 0.5]  -> 2
//	(0.5, 0.75]  -> 3
//	(0.75, 1]    -> 4
func LevelFor(lossFraction float64) int {
	switch {
	case lossFraction >= 0 && lossFraction <= 0.01:
		return 0
	case lossFraction > 0.01 && lossFraction <= 0.25:
		return 1
	case lossFraction > 0.25 && lossFraction <= 0.5:
		return 2
	case lossFraction > 0.5 && lossFraction <= 0.75:
		return 3
	default:
		return MaxLevel
	}
}

// Estimator tracks the latest loss fraction and derives a congestion level.
// Observe is called from the RTCP listener, Level from the frame sender and
// Sample from the controller tick.
type Estimator struct {
	mu            sync.RWMutex
	lossFraction  float64
	currentLevel  int
	previousLevel int
	reports       uint64
}

// NewEstimator creates an estimator at level 0
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Observe records a decoded report and recomputes the current level.
func (e *Estimator) Observe(report Report) {
	level := LevelFor(report.LossFraction)

	e.mu.Lock()
	e.lossFraction = report.LossFraction
	e.currentLevel = level
	e.reports++
	e.mu.Unlock()

	slog.Debug("RTCP report observed", "report", report.String(), "level", level)
}

// Level returns the current congestion level
func (e *Estimator) Level() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.currentLevel
}

// LossFraction returns the most recently observed loss fraction
func (e *Estimator) LossFraction() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lossFraction
}

// Reports returns how many reports have been observed
func (e *Estimator) Reports() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reports
}

// Sample compares the current level with the one seen at the previous
// sample. It returns an adjustment only on a change.
func (e *Estimator) Sample() (RateAdjustment, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.currentLevel == e.previousLevel {
		return RateAdjustment{}, false
	}

	adj := RateAdjustment{Level: e.currentLevel, PreviousLevel: e.previousLevel}
	e.previousLevel = e.currentLevel
	return adj, true
}
