package fingerprint

// MatchType classifies how close a candidate fingerprint is to a stored one.
type MatchType string

const (
	MatchExact  MatchType = "exact"
	MatchHigh   MatchType = "high"
	MatchMedium MatchType = "medium"
	MatchLow    MatchType = "low"
	MatchNone   MatchType = "none"
)

// Distance breakpoints for match classification. The confidence step
// function below uses the identical breakpoints so classification and
// confidence can never disagree.
const (
	// MaxHighDistance is the upper bound of the high band (>= ~94% similarity).
	MaxHighDistance = 15
	// MaxMediumDistance is the upper bound of the medium band.
	MaxMediumDistance = 23
	// MaxMatchDistance is the matching ceiling; anything beyond is no match.
	MaxMatchDistance = 31
)

// Classify maps a Hamming distance to its match type. Every distance in
// [0, BitWidth] maps to exactly one type.
func Classify(distance int) MatchType {
	switch {
	case distance == 0:
		return MatchExact
	case distance <= MaxHighDistance:
		return MatchHigh
	case distance <= MaxMediumDistance:
		return MatchMedium
	case distance <= MaxMatchDistance:
		return MatchLow
	default:
		return MatchNone
	}
}

// Confidence maps a Hamming distance to a match confidence. The step
// function is aligned to the classification breakpoints.
func Confidence(distance int) float64 {
	switch {
	case distance == 0:
		return 1.0
	case distance <= MaxHighDistance:
		return 0.95
	case distance <= MaxMediumDistance:
		return 0.80
	case distance <= MaxMatchDistance:
		return 0.60
	default:
		return 0.0
	}
}

// IsMatch reports whether a distance is at or below the matching ceiling.
func IsMatch(distance int) bool {
	return distance <= MaxMatchDistance
}
