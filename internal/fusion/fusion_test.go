package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/mediaguard/internal/conf"
	"github.com/tphakala/mediaguard/internal/detection"
)

func testSettings() conf.FusionSettings {
	return conf.FusionSettings{
		Weights: conf.FusionWeights{
			Voice:    0.20,
			Video:    0.25,
			Document: 0.15,
			Scam:     0.20,
			Liveness: 0.20,
		},
		Thresholds: conf.FusionThresholds{
			Low:    0.30,
			Medium: 0.60,
			High:   0.85,
		},
	}
}

func TestFuseAllComponentsMaxed(t *testing.T) {
	t.Parallel()

	results := detection.ResultSet{}
	for _, c := range detection.Components() {
		results[c] = detection.Present(1.0, 1.0)
	}

	b := NewEngine(testSettings()).Fuse(results, nil)
	assert.InDelta(t, 1.0, b.WeightedScore, 1e-9)
	assert.InDelta(t, 1.0, b.FinalScore, 1e-9)
	assert.InDelta(t, 1.0, b.Confidence, 1e-9)
	assert.Equal(t, CategoryCritical, b.Category)
	assert.Len(t, b.RiskFactors, len(detection.Components()))
	assert.Empty(t, b.MitigatingFactors)
}

// A single present component carries the full weight: its score passes
// through unchanged regardless of its configured weight.
func TestFuseSingleComponentRenormalizes(t *testing.T) {
	t.Parallel()

	results := detection.ResultSet{
		detection.ComponentDocument: detection.Present(0.4, 0.9),
	}

	b := NewEngine(testSettings()).Fuse(results, nil)
	assert.InDelta(t, 0.4, b.WeightedScore, 1e-9)
	assert.InDelta(t, 0.9, b.Confidence, 1e-9)
	assert.Equal(t, CategoryMedium, b.Category)
}

func TestFuseTwoComponents(t *testing.T) {
	t.Parallel()

	// voice 0.8 @ weight .20, video 0.75 @ weight .25:
	// (0.8*0.20 + 0.75*0.25) / 0.45 = 0.7722...
	results := detection.ResultSet{
		detection.ComponentVoice: detection.Present(0.8, 0.9),
		detection.ComponentVideo: detection.Present(0.75, 0.85),
	}

	b := NewEngine(testSettings()).Fuse(results, nil)
	assert.InDelta(t, 0.7722, b.WeightedScore, 0.001)
	assert.InDelta(t, 0.875, b.Confidence, 1e-9)
	assert.Equal(t, CategoryHigh, b.Category)
	require.Len(t, b.RiskFactors, 2)
	assert.Empty(t, b.MitigatingFactors)
}

func TestFuseNoComponentsIsNeutral(t *testing.T) {
	t.Parallel()

	b := NewEngine(testSettings()).Fuse(detection.ResultSet{}, nil)
	assert.InDelta(t, neutralScore, b.WeightedScore, 1e-9)
	assert.InDelta(t, neutralConfidence, b.Confidence, 1e-9)
	assert.Equal(t, CategoryMedium, b.Category)
}

func TestFuseAbsentComponentsExcluded(t *testing.T) {
	t.Parallel()

	results := detection.ResultSet{
		detection.ComponentVoice:    detection.Present(0.9, 0.8),
		detection.ComponentVideo:    detection.Absent("detector timeout"),
		detection.ComponentLiveness: detection.Absent("not applicable"),
	}

	b := NewEngine(testSettings()).Fuse(results, nil)
	assert.InDelta(t, 0.9, b.WeightedScore, 1e-9)
	assert.InDelta(t, 0.8, b.Confidence, 1e-9)
}

func TestFuseMitigatingFactors(t *testing.T) {
	t.Parallel()

	results := detection.ResultSet{
		detection.ComponentVoice: detection.Present(0.1, 0.9),
		detection.ComponentScam:  detection.Present(0.9, 0.9),
	}

	b := NewEngine(testSettings()).Fuse(results, nil)
	require.Len(t, b.MitigatingFactors, 1)
	assert.Equal(t, detection.ComponentVoice, b.MitigatingFactors[0].Component)
	require.Len(t, b.RiskFactors, 1)
	assert.Equal(t, detection.ComponentScam, b.RiskFactors[0].Component)
}

func TestHistoryFactor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		history *History
		want    float64
	}{
		{"nil history", nil, 1.0},
		{"no signal", &History{}, 1.0},
		{"some incidents", &History{IncidentCount: 3}, 1.15},
		{"many incidents", &History{IncidentCount: 6}, 1.3},
		{"extreme incidents still capped", &History{IncidentCount: 10000}, 1.3},
		{"clean record", &History{CleanSessions: 51}, 0.85},
		{"clean sessions with incidents", &History{CleanSessions: 100, IncidentCount: 1}, 1.0},
		{"boundary incidents", &History{IncidentCount: 2}, 1.0},
		{"boundary clean sessions", &History{CleanSessions: 50}, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := HistoryFactor(tt.history)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, MinHistoryFactor)
			assert.LessOrEqual(t, got, MaxHistoryFactor)
		})
	}
}

func TestFuseHistoryAdjustsScoreWithinBounds(t *testing.T) {
	t.Parallel()

	results := detection.ResultSet{
		detection.ComponentScam: detection.Present(0.9, 0.9),
	}

	e := NewEngine(testSettings())
	adjusted := e.Fuse(results, &History{IncidentCount: 6})
	assert.InDelta(t, 1.3, adjusted.HistoryFactor, 1e-9)
	// 0.9 * 1.3 clamps to 1.0.
	assert.InDelta(t, 1.0, adjusted.FinalScore, 1e-9)

	lowered := e.Fuse(results, &History{CleanSessions: 100})
	assert.InDelta(t, 0.765, lowered.FinalScore, 1e-9)
	assert.Equal(t, CategoryHigh, lowered.Category)
}

func TestCategorize(t *testing.T) {
	t.Parallel()

	e := NewEngine(testSettings())
	tests := []struct {
		score float64
		want  Category
	}{
		{0.0, CategoryLow},
		{0.29, CategoryLow},
		{0.30, CategoryMedium},
		{0.59, CategoryMedium},
		{0.60, CategoryHigh},
		{0.84, CategoryHigh},
		{0.85, CategoryCritical},
		{1.0, CategoryCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, e.categorize(tt.score), "score %.2f", tt.score)
	}
}

func TestRecommendationCoversAllCategories(t *testing.T) {
	t.Parallel()

	for _, c := range []Category{CategoryLow, CategoryMedium, CategoryHigh, CategoryCritical} {
		assert.NotEmpty(t, recommendationFor(c))
	}
}
