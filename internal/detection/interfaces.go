package detection

import (
	"context"

	"github.com/tphakala/mediaguard/internal/fingerprint"
)

// Extraction is the output of the external fingerprint extractor. Exactly
// one of Value or Sequence is populated, matching the fingerprint family.
type Extraction struct {
	Kind     fingerprint.Kind
	Value    fingerprint.Value
	Sequence fingerprint.Sequence
}

// Extractor computes a perceptual fingerprint from raw media bytes. The
// extraction is a deterministic, pure function of the input bytes. Failure
// is a dependency error and is fatal to the calling job, since nothing
// downstream is meaningful without a fingerprint.
type Extractor interface {
	Extract(ctx context.Context, media []byte, kind fingerprint.MediaKind) (Extraction, error)
}

// Verdict is a detector's judgement of one media item.
type Verdict struct {
	Score      float64 // risk score in [0,1]
	Confidence float64 // detector confidence in [0,1]
}

// Detector is one external deepfake/forgery classifier. Detect may be slow;
// callers must bound it with a context deadline. A timeout or failure
// downgrades the component to absent rather than failing the job.
type Detector interface {
	// Component returns the fusion slot this detector feeds.
	Component() Component
	// Supports reports whether the detector applies to the media kind.
	Supports(kind fingerprint.MediaKind) bool
	Detect(ctx context.Context, media []byte, kind fingerprint.MediaKind) (Verdict, error)
}
