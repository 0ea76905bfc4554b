// Package policy maps a fused risk assessment to one automated action. The
// engine never returns an error: malformed input is clamped and logged,
// since a conservative decision beats a crash at a decision-critical point.
package policy

import (
	"log/slog"

	"github.com/tphakala/mediaguard/internal/conf"
	"github.com/tphakala/mediaguard/internal/fusion"
	"github.com/tphakala/mediaguard/internal/logging"
)

const serviceName = "policy"

var logger *slog.Logger

func init() {
	logger = logging.ForService(serviceName)
	if logger == nil {
		logger = slog.Default().With("service", serviceName)
	}
}

// Action is the automated response to a risk assessment.
type Action string

const (
	ActionAllow     Action = "allow"
	ActionChallenge Action = "challenge"
	ActionEscalate  Action = "escalate"
	ActionBlock     Action = "block"
)

// Context carries caller-supplied policy overrides. Each override relaxes or
// tightens the decision by one tier; the impossible-travel flag is absolute
// and applied last.
type Context struct {
	TrustedCaller    bool
	KnownBadActor    bool
	ImpossibleTravel bool
}

// Decision is the engine's output: one action, a human-readable reason and
// whether a human must review the result.
type Decision struct {
	Action         Action `json:"action"`
	Reason         string `json:"reason"`
	RequiresReview bool   `json:"requires_review"`
}

// Engine maps breakdowns to decisions using configured breakpoints.
type Engine struct {
	cfg conf.PolicySettings
}

// NewEngine creates a response engine with the given settings.
func NewEngine(cfg conf.PolicySettings) *Engine {
	return &Engine{cfg: cfg}
}

// Decide returns the action for a breakdown and policy context. The
// confidence gate is evaluated before the score tiers so an uncertain
// high-risk verdict is never auto-blocked; overrides are applied afterwards
// in a fixed order.
func (e *Engine) Decide(breakdown fusion.Breakdown, pctx Context) Decision {
	score := e.clampInput("final_score", breakdown.FinalScore)
	confidence := e.clampInput("confidence", breakdown.Confidence)

	var d Decision
	switch {
	case confidence < e.cfg.MinConfidence:
		d = Decision{
			Action: ActionEscalate,
			Reason: "confidence below review threshold; result cannot be auto-resolved",
		}
	case score > e.cfg.BlockThreshold:
		d = Decision{
			Action: ActionBlock,
			Reason: "risk score exceeds block threshold",
		}
	case score > e.cfg.EscalateThreshold:
		d = Decision{
			Action: ActionEscalate,
			Reason: "risk score exceeds escalation threshold",
		}
	case score > e.cfg.ChallengeThreshold:
		d = Decision{
			Action: ActionChallenge,
			Reason: "elevated risk score; additional verification required",
		}
	default:
		d = Decision{
			Action: ActionAllow,
			Reason: "risk score within acceptable range",
		}
	}

	// Overrides, in order. Trusted and bad-actor flags move the decision
	// one tier; impossible travel forces escalation regardless.
	if pctx.TrustedCaller && (d.Action == ActionBlock || d.Action == ActionEscalate) {
		d.Action = ActionChallenge
		d.Reason = "trusted caller; downgraded to challenge"
	}
	if pctx.KnownBadActor && (d.Action == ActionAllow || d.Action == ActionChallenge) {
		d.Action = ActionEscalate
		d.Reason = "known bad actor; escalated for review"
	}
	if pctx.ImpossibleTravel {
		d.Action = ActionEscalate
		d.Reason = "geographic anomaly detected; escalated for review"
	}

	d.RequiresReview = d.Action == ActionEscalate || d.Action == ActionBlock

	logger.Debug("decision made",
		"action", d.Action,
		"requires_review", d.RequiresReview,
		"final_score", score,
		"confidence", confidence,
		"category", breakdown.Category)

	return d
}

// clampInput bounds a score-like input to [0,1], logging when it was out of
// range. Out-of-range inputs indicate a bug upstream but must not crash the
// decision path.
func (e *Engine) clampInput(name string, v float64) float64 {
	switch {
	case v < 0:
		logger.Warn("clamping out-of-range input", "field", name, "value", v)
		return 0
	case v > 1:
		logger.Warn("clamping out-of-range input", "field", name, "value", v)
		return 1
	default:
		return v
	}
}
