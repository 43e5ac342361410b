package rtcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelForBoundaries(t *testing.T) {
	cases := []struct {
		loss  float64
		level int
	}{
		{0.0, 0},
		{0.01, 0},
		{0.010001, 1},
		{0.25, 1},
		{0.2500001, 2},
		{0.5, 2},
		{0.75, 3},
		{0.7500001, 4},
		{1.0, 4},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.level, LevelFor(tc.loss), "loss %v", tc.loss)
	}
}

func TestEstimatorObserve(t *testing.T) {
	e := NewEstimator()
	assert.Equal(t, 0, e.Level())

	e.Observe(Report{LossFraction: 0.4})
	assert.Equal(t, 2, e.Level())
	assert.InDelta(t, 0.4, e.LossFraction(), 1e-9)
	assert.Equal(t, uint64(1), e.Reports())
}

func TestSampleIsEdgeTriggered(t *testing.T) {
	e := NewEstimator()

	_, changed := e.Sample()
	assert.False(t, changed, "level 0 at start is not a change")

	events := 0
	for i := 0; i < 5; i++ {
		e.Observe(Report{LossFraction: 0.6})
		if adj, ok := e.Sample(); ok {
			events++
			assert.Equal(t, 3, adj.Level)
			assert.Equal(t, 0, adj.PreviousLevel)
		}
	}
	assert.Equal(t, 1, events)

	e.Observe(Report{LossFraction: 0.0})
	adj, ok := e.Sample()
	assert.True(t, ok)
	assert.Equal(t, RateAdjustment{Level: 0, PreviousLevel: 3}, adj)

	_, ok = e.Sample()
	assert.False(t, ok)
}

func TestSampleSeesOnlyLatestReport(t *testing.T) {
	e := NewEstimator()

	// A burst between samples that returns to the previous level is not seen.
	e.Observe(Report{LossFraction: 0.9})
	e.Observe(Report{LossFraction: 0.0})

	_, ok := e.Sample()
	assert.False(t, ok)
}
