// Package matcher scans the active fingerprint corpus for near-duplicates of
// a candidate fingerprint. The scan is a full pass over the active set of
// the candidate's kind; the pairwise comparison itself is pure, so the scan
// can later be replaced by a bucketed or multi-index near-duplicate index
// without changing callers.
package matcher

import (
	"context"
	"log/slog"
	"sort"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/tphakala/mediaguard/internal/conf"
	"github.com/tphakala/mediaguard/internal/datastore"
	"github.com/tphakala/mediaguard/internal/errors"
	"github.com/tphakala/mediaguard/internal/fingerprint"
	"github.com/tphakala/mediaguard/internal/logging"
)

const serviceName = "matcher"

var logger *slog.Logger

func init() {
	logger = logging.ForService(serviceName)
	if logger == nil {
		logger = slog.Default().With("service", serviceName)
	}
}

// CorpusSource provides the active fingerprints of one kind.
type CorpusSource interface {
	ActiveFingerprints(kind string) ([]datastore.Fingerprint, error)
}

// Match is one stored fingerprint whose distance to the candidate was at or
// below the matching ceiling.
type Match struct {
	FingerprintID uint
	Distance      int
	Similarity    float64
	Confidence    float64
	Type          fingerprint.MatchType
}

// Matcher compares candidate fingerprints against the active corpus.
type Matcher struct {
	source CorpusSource
	cfg    conf.MatcherSettings
	cache  *gocache.Cache
}

// New creates a matcher over the given corpus source.
func New(source CorpusSource, cfg conf.MatcherSettings) *Matcher {
	var cache *gocache.Cache
	if cfg.CacheEnabled {
		ttl := cfg.CacheTTL
		if ttl <= 0 {
			ttl = 30 * time.Second
		}
		cache = gocache.New(ttl, 2*ttl)
	}
	return &Matcher{source: source, cfg: cfg, cache: cache}
}

// FindMatches scans the active still-image corpus for near-duplicates of the
// candidate value. Results are sorted by ascending distance. An empty corpus
// yields an empty result, not an error. The scan itself is read-only; match
// recording happens in the pipeline's saving step.
func (m *Matcher) FindMatches(ctx context.Context, value fingerprint.Value, kind fingerprint.Kind) ([]Match, error) {
	if !value.Valid() {
		return nil, errors.Newf("%w: candidate has %d bits", fingerprint.ErrMalformed, len(value)*8).
			Component(serviceName).
			Category(errors.CategoryValidation).
			Build()
	}

	corpus, err := m.corpus(kind)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var matches []Match
	for i := range corpus {
		if ctx.Err() != nil {
			return nil, errors.New(ctx.Err()).
				Component(serviceName).
				Category(errors.CategoryCancellation).
				Build()
		}

		stored, err := corpus[i].ValueBits()
		if err != nil {
			// A stored row that fails to decode is corrupt; skip it
			// rather than failing every job that scans the corpus.
			logger.Warn("skipping undecodable fingerprint",
				"fingerprint_id", corpus[i].ID, "error", err)
			continue
		}

		d, err := fingerprint.Distance(value, stored)
		if err != nil {
			return nil, err
		}
		if d > m.maxDistance() {
			continue
		}

		matches = append(matches, Match{
			FingerprintID: corpus[i].ID,
			Distance:      d,
			Similarity:    fingerprint.Similarity(d),
			Confidence:    fingerprint.Confidence(d),
			Type:          fingerprint.Classify(d),
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })

	logger.Debug("corpus scan complete",
		"kind", kind,
		"corpus_size", len(corpus),
		"matches", len(matches),
		"duration_ms", time.Since(start).Milliseconds())

	return matches, nil
}

// FindSequenceMatches scans the active temporal corpus for near-duplicates
// of the candidate sequence. Two sequences are compared over their
// overlapping prefix; the match type is classified from the average
// per-segment distance.
func (m *Matcher) FindSequenceMatches(ctx context.Context, seq fingerprint.Sequence, kind fingerprint.Kind) ([]Match, error) {
	if !seq.Valid() {
		return nil, errors.Newf("%w: empty or malformed sequence", fingerprint.ErrMalformed).
			Component(serviceName).
			Category(errors.CategoryValidation).
			Build()
	}

	corpus, err := m.corpus(kind)
	if err != nil {
		return nil, err
	}

	var matches []Match
	for i := range corpus {
		if ctx.Err() != nil {
			return nil, errors.New(ctx.Err()).
				Component(serviceName).
				Category(errors.CategoryCancellation).
				Build()
		}

		stored, err := corpus[i].SequenceBits()
		if err != nil || len(stored) == 0 {
			logger.Warn("skipping undecodable fingerprint sequence",
				"fingerprint_id", corpus[i].ID, "error", err)
			continue
		}

		cmp, err := fingerprint.CompareSequences(seq, stored)
		if err != nil {
			return nil, err
		}
		if !cmp.Matched {
			continue
		}

		matches = append(matches, Match{
			FingerprintID: corpus[i].ID,
			Distance:      cmp.AverageDistance,
			Similarity:    cmp.AverageSimilarity,
			Confidence:    fingerprint.Confidence(cmp.AverageDistance),
			Type:          fingerprint.Classify(cmp.AverageDistance),
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	return matches, nil
}

// HighestSimilarity returns the best similarity among matches, 0 when none.
func HighestSimilarity(matches []Match) float64 {
	best := 0.0
	for _, m := range matches {
		if m.Similarity > best {
			best = m.Similarity
		}
	}
	return best
}

// ToHashMatches converts matches to persistable rows for one job.
func ToHashMatches(jobID string, matches []Match) []datastore.HashMatch {
	rows := make([]datastore.HashMatch, len(matches))
	for i, m := range matches {
		rows[i] = datastore.HashMatch{
			JobID:         jobID,
			FingerprintID: m.FingerprintID,
			Distance:      m.Distance,
			Similarity:    m.Similarity,
			MatchType:     string(m.Type),
		}
	}
	return rows
}

func (m *Matcher) maxDistance() int {
	if m.cfg.MaxDistance > 0 {
		return m.cfg.MaxDistance
	}
	return fingerprint.MaxMatchDistance
}

// corpus returns the active fingerprints of one kind, served from the cache
// when enabled. Staleness is bounded by the cache TTL; eventual corpus
// visibility across concurrent jobs is acceptable.
func (m *Matcher) corpus(kind fingerprint.Kind) ([]datastore.Fingerprint, error) {
	key := string(kind)
	if m.cache != nil {
		if cached, found := m.cache.Get(key); found {
			return cached.([]datastore.Fingerprint), nil
		}
	}

	corpus, err := m.source.ActiveFingerprints(key)
	if err != nil {
		return nil, err
	}

	if m.cache != nil {
		m.cache.Set(key, corpus, gocache.DefaultExpiration)
	}
	return corpus, nil
}
