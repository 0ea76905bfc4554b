package fingerprint

import (
	"encoding/binary"
	"math/bits"

	"github.com/tphakala/mediaguard/internal/errors"
)

// Distance returns the Hamming distance between two fingerprint values, the
// count of differing bit positions. It is symmetric and zero for identical
// values. Both values must be full-width.
func Distance(a, b Value) (int, error) {
	if !a.Valid() {
		return 0, malformedInput(len(a))
	}
	if !b.Valid() {
		return 0, malformedInput(len(b))
	}

	distance := 0
	for i := 0; i < ByteWidth; i += 8 {
		x := binary.LittleEndian.Uint64(a[i : i+8])
		y := binary.LittleEndian.Uint64(b[i : i+8])
		distance += bits.OnesCount64(x ^ y)
	}
	return distance, nil
}

// Similarity converts a Hamming distance to a similarity in [0,1]:
// 1 - distance/BitWidth.
func Similarity(distance int) float64 {
	if distance < 0 {
		return 1
	}
	if distance > BitWidth {
		return 0
	}
	return 1 - float64(distance)/float64(BitWidth)
}

func malformedInput(byteLen int) error {
	return errors.Newf("%w: got %d bits, want %d", ErrMalformed, byteLen*8, BitWidth).
		Component("fingerprint").
		Category(errors.CategoryValidation).
		Build()
}
