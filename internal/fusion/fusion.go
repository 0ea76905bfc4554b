// Package fusion combines independent per-component detection results into
// one risk score with a confidence, risk category and recommended action
// text. Absent components are excluded from both the numerator and the
// denominator of the weighted score, so missing data re-normalizes the
// weights instead of counting as zero risk.
package fusion

import (
	"log/slog"

	"github.com/tphakala/mediaguard/internal/conf"
	"github.com/tphakala/mediaguard/internal/detection"
	"github.com/tphakala/mediaguard/internal/logging"
)

const serviceName = "fusion"

var logger *slog.Logger

func init() {
	logger = logging.ForService(serviceName)
	if logger == nil {
		logger = slog.Default().With("service", serviceName)
	}
}

// Category is the risk band assigned to a final score.
type Category string

const (
	CategoryLow      Category = "low"
	CategoryMedium   Category = "medium"
	CategoryHigh     Category = "high"
	CategoryCritical Category = "critical"
)

// Neutral values used when no component produced a verdict.
const (
	neutralScore      = 0.5
	neutralConfidence = 0.5
)

// History factor bounds and bands. The multiplier is clamped to
// [MinHistoryFactor, MaxHistoryFactor] regardless of input extremity.
const (
	MinHistoryFactor = 0.7
	MaxHistoryFactor = 1.5

	manyIncidentsFactor = 1.3
	someIncidentsFactor = 1.15
	cleanRecordFactor   = 0.85

	manyIncidentsAbove = 5
	someIncidentsAbove = 2
	cleanSessionsAbove = 50
)

// Factor score breakpoints: components scoring above RiskFactorAbove are
// listed as risk factors, below MitigatingFactorBelow as mitigating factors.
const (
	RiskFactorAbove       = 0.65
	MitigatingFactorBelow = 0.35
)

// History is the caller-supplied incident and session history used for the
// score multiplier.
type History struct {
	IncidentCount int
	CleanSessions int
}

// Factor is one contributing or mitigating component in a breakdown.
type Factor struct {
	Component detection.Component `json:"component"`
	Score     float64             `json:"score"`
}

// Breakdown is the full fusion output for one assessment. It is produced
// and consumed within one call chain and is not persisted.
type Breakdown struct {
	Components        detection.ResultSet `json:"components"`
	WeightedScore     float64             `json:"weighted_score"`
	HistoryFactor     float64             `json:"history_factor"`
	FinalScore        float64             `json:"final_score"`
	Confidence        float64             `json:"confidence"`
	Category          Category            `json:"category"`
	Recommendation    string              `json:"recommendation"`
	RiskFactors       []Factor            `json:"risk_factors,omitempty"`
	MitigatingFactors []Factor            `json:"mitigating_factors,omitempty"`
}

// Engine fuses component results using configured weights and thresholds.
type Engine struct {
	cfg conf.FusionSettings
}

// NewEngine creates a fusion engine with the given settings.
func NewEngine(cfg conf.FusionSettings) *Engine {
	return &Engine{cfg: cfg}
}

// Fuse combines the present component results and the optional caller
// history into a breakdown. The final score and confidence are always in
// [0,1]; the category is a pure function of the final score and the
// configured thresholds.
func (e *Engine) Fuse(results detection.ResultSet, history *History) Breakdown {
	weightedScore := e.weightedScore(results)
	historyFactor := HistoryFactor(history)
	finalScore := clamp01(weightedScore * historyFactor)
	confidence := meanConfidence(results)
	category := e.categorize(finalScore)

	b := Breakdown{
		Components:     results,
		WeightedScore:  weightedScore,
		HistoryFactor:  historyFactor,
		FinalScore:     finalScore,
		Confidence:     confidence,
		Category:       category,
		Recommendation: recommendationFor(category),
	}

	for _, component := range detection.Components() {
		r, ok := results[component]
		if !ok || !r.IsPresent() {
			continue
		}
		switch {
		case r.Score() > RiskFactorAbove:
			b.RiskFactors = append(b.RiskFactors, Factor{Component: component, Score: r.Score()})
		case r.Score() < MitigatingFactorBelow:
			b.MitigatingFactors = append(b.MitigatingFactors, Factor{Component: component, Score: r.Score()})
		}
	}

	logger.Debug("fusion complete",
		"present_components", results.PresentCount(),
		"weighted_score", weightedScore,
		"history_factor", historyFactor,
		"final_score", finalScore,
		"confidence", confidence,
		"category", category)

	return b
}

// weightedScore computes the weight-renormalized average over present
// components only. With no components present the score is neutral.
func (e *Engine) weightedScore(results detection.ResultSet) float64 {
	weightedSum := 0.0
	totalWeight := 0.0
	for component, r := range results {
		if !r.IsPresent() {
			continue
		}
		w := e.weightFor(component)
		weightedSum += clamp01(r.Score()) * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return neutralScore
	}
	return weightedSum / totalWeight
}

func (e *Engine) weightFor(component detection.Component) float64 {
	w := e.cfg.Weights
	switch component {
	case detection.ComponentVoice:
		return w.Voice
	case detection.ComponentVideo:
		return w.Video
	case detection.ComponentDocument:
		return w.Document
	case detection.ComponentScam:
		return w.Scam
	case detection.ComponentLiveness:
		return w.Liveness
	default:
		return 0
	}
}

// HistoryFactor maps caller history to a score multiplier via fixed bands,
// clamped to [MinHistoryFactor, MaxHistoryFactor] for any input.
func HistoryFactor(history *History) float64 {
	factor := 1.0
	if history != nil {
		switch {
		case history.IncidentCount > manyIncidentsAbove:
			factor = manyIncidentsFactor
		case history.IncidentCount > someIncidentsAbove:
			factor = someIncidentsFactor
		case history.CleanSessions > cleanSessionsAbove && history.IncidentCount == 0:
			factor = cleanRecordFactor
		}
	}
	if factor < MinHistoryFactor {
		return MinHistoryFactor
	}
	if factor > MaxHistoryFactor {
		return MaxHistoryFactor
	}
	return factor
}

// meanConfidence is the arithmetic mean over present components, neutral
// when none are present.
func meanConfidence(results detection.ResultSet) float64 {
	sum := 0.0
	n := 0
	for _, r := range results {
		if !r.IsPresent() {
			continue
		}
		sum += clamp01(r.Confidence())
		n++
	}
	if n == 0 {
		return neutralConfidence
	}
	return sum / float64(n)
}

// categorize is a pure function of the final, history-adjusted score and the
// configured thresholds. No hysteresis, no history dependence here.
func (e *Engine) categorize(finalScore float64) Category {
	t := e.cfg.Thresholds
	switch {
	case finalScore < t.Low:
		return CategoryLow
	case finalScore < t.Medium:
		return CategoryMedium
	case finalScore < t.High:
		return CategoryHigh
	default:
		return CategoryCritical
	}
}

// recommendationFor selects recommendation text purely from the category.
func recommendationFor(category Category) string {
	switch category {
	case CategoryLow:
		return "No action required; content appears authentic."
	case CategoryMedium:
		return "Review recommended; some signals warrant attention."
	case CategoryHigh:
		return "Manual review required; multiple signals indicate likely manipulation."
	case CategoryCritical:
		return "Immediate action required; content is very likely manipulated."
	default:
		return "Review recommended."
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
