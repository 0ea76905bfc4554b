// Package detection defines the component result types produced by the
// external detectors and the collaborator interfaces the pipeline consumes:
// the fingerprint extractor and the per-component detectors.
package detection

import (
	"encoding/json"
	"fmt"
)

// Component identifies one independent detection signal.
type Component string

const (
	ComponentVoice    Component = "voice"
	ComponentVideo    Component = "video"
	ComponentDocument Component = "document"
	ComponentScam     Component = "scam"
	ComponentLiveness Component = "liveness"
)

// Components lists all known components in a stable order.
func Components() []Component {
	return []Component{
		ComponentVoice,
		ComponentVideo,
		ComponentDocument,
		ComponentScam,
		ComponentLiveness,
	}
}

// Result is a tagged component result: either Present with a score and
// confidence, or Absent with a reason. Absent components contribute nothing
// to fusion; the tag makes "present components only" explicit instead of
// relying on nil checks.
type Result struct {
	present    bool
	score      float64
	confidence float64
	reason     string
}

// Present constructs a result carrying a detector verdict.
func Present(score, confidence float64) Result {
	return Result{present: true, score: score, confidence: confidence}
}

// Absent constructs a result for a component that produced no verdict,
// e.g. a detector timeout or a component not applicable to the media kind.
func Absent(reason string) Result {
	return Result{reason: reason}
}

// IsPresent reports whether the component produced a verdict.
func (r Result) IsPresent() bool { return r.present }

// Score returns the risk score in [0,1]. Only meaningful when present.
func (r Result) Score() float64 { return r.score }

// Confidence returns the detector confidence in [0,1]. Only meaningful when present.
func (r Result) Confidence() float64 { return r.confidence }

// Reason returns why the component is absent, empty when present.
func (r Result) Reason() string { return r.reason }

// String implements fmt.Stringer for logs.
func (r Result) String() string {
	if !r.present {
		return fmt.Sprintf("absent(%s)", r.reason)
	}
	return fmt.Sprintf("score=%.3f conf=%.3f", r.score, r.confidence)
}

// resultJSON is the serialized form of a Result.
type resultJSON struct {
	Present    bool    `json:"present"`
	Score      float64 `json:"score,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		Present:    r.present,
		Score:      r.score,
		Confidence: r.confidence,
		Reason:     r.reason,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Result) UnmarshalJSON(data []byte) error {
	var rj resultJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return err
	}
	*r = Result{
		present:    rj.Present,
		score:      rj.Score,
		confidence: rj.Confidence,
		reason:     rj.Reason,
	}
	return nil
}

// ResultSet maps components to their results for one analysis.
type ResultSet map[Component]Result

// PresentCount returns the number of components with a verdict.
func (rs ResultSet) PresentCount() int {
	n := 0
	for _, r := range rs {
		if r.IsPresent() {
			n++
		}
	}
	return n
}
