// Package fingerprint defines the perceptual fingerprint value types and the
// pure comparison primitives used by the similarity matcher: Hamming
// distance, match classification and sequence comparison.
//
// A fingerprint is a fixed-width bit vector produced by an external
// extractor; perceptually similar media yield low-distance vectors. All
// functions in this package are side-effect free so the corpus scan can later
// be replaced by an indexed near-duplicate search without changing callers.
package fingerprint

import (
	"encoding/hex"

	"github.com/tphakala/mediaguard/internal/errors"
)

const (
	// BitWidth is the fixed fingerprint width, set by the external extractor.
	BitWidth = 256
	// ByteWidth is BitWidth in bytes.
	ByteWidth = BitWidth / 8
)

// ErrMalformed is returned when a fingerprint value has the wrong width.
var ErrMalformed = errors.NewStd("malformed fingerprint value")

// Kind identifies the fingerprint family.
type Kind string

const (
	// KindStill is a single fingerprint computed over a still image.
	KindStill Kind = "still"
	// KindTemporal is a sequence of per-segment fingerprints computed over video.
	KindTemporal Kind = "temporal"
)

// MediaKind identifies the uploaded media type.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// KindForMedia returns the fingerprint family produced for a media kind.
func KindForMedia(media MediaKind) Kind {
	if media == MediaVideo {
		return KindTemporal
	}
	return KindStill
}

// Value is a fixed-width fingerprint bit vector.
type Value []byte

// NewValue validates raw bytes as a fingerprint value. Zero-length or
// wrong-width input is rejected with a validation error; this is fatal to
// the calling job step.
func NewValue(b []byte) (Value, error) {
	if len(b) != ByteWidth {
		return nil, errors.Newf("%w: got %d bits, want %d", ErrMalformed, len(b)*8, BitWidth).
			Component("fingerprint").
			Category(errors.CategoryValidation).
			Build()
	}
	v := make(Value, ByteWidth)
	copy(v, b)
	return v, nil
}

// ParseHex decodes a hex-encoded fingerprint value.
func ParseHex(s string) (Value, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.New(err).
			Component("fingerprint").
			Category(errors.CategoryValidation).
			Context("input_length", len(s)).
			Build()
	}
	return NewValue(b)
}

// Hex returns the value as a lowercase hex string.
func (v Value) Hex() string {
	return hex.EncodeToString(v)
}

// Valid reports whether the value has the expected width.
func (v Value) Valid() bool {
	return len(v) == ByteWidth
}

// Sequence is an ordered list of per-segment fingerprints for temporal media.
type Sequence []Value

// Valid reports whether every segment has the expected width and the
// sequence is non-empty.
func (s Sequence) Valid() bool {
	if len(s) == 0 {
		return false
	}
	for _, v := range s {
		if !v.Valid() {
			return false
		}
	}
	return true
}
