package fingerprint

// SegmentMatchRatio is the fraction of compared segments that must fall at
// or below the per-segment ceiling for two sequences to count as a match.
const SegmentMatchRatio = 0.75

// SequenceComparison is the result of comparing two temporal fingerprint
// sequences over their overlapping prefix.
type SequenceComparison struct {
	SegmentsCompared  int
	SegmentsMatched   int
	AverageSimilarity float64
	AverageDistance   int
	Matched           bool
}

// CompareSequences compares two temporal sequences by pairwise-comparing the
// overlapping prefix (length = min of the two sequence lengths), averaging
// per-segment similarity, and counting the pair as a match when at least
// SegmentMatchRatio of compared segments are at or below the per-segment
// ceiling. Mismatched lengths are compared over the shorter sequence only;
// segments are not aligned temporally.
func CompareSequences(a, b Sequence) (SequenceComparison, error) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return SequenceComparison{}, malformedInput(0)
	}

	totalSimilarity := 0.0
	totalDistance := 0
	matched := 0
	for i := 0; i < n; i++ {
		d, err := Distance(a[i], b[i])
		if err != nil {
			return SequenceComparison{}, err
		}
		totalSimilarity += Similarity(d)
		totalDistance += d
		if IsMatch(d) {
			matched++
		}
	}

	return SequenceComparison{
		SegmentsCompared:  n,
		SegmentsMatched:   matched,
		AverageSimilarity: totalSimilarity / float64(n),
		AverageDistance:   totalDistance / n,
		Matched:           float64(matched) >= SegmentMatchRatio*float64(n),
	}, nil
}
