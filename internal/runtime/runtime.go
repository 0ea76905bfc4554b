// Package runtime wires the engine's collaborators together for the CLI
// commands. Lifecycle of every handle is owned here, not by package-level
// singletons.
package runtime

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/mediaguard/internal/conf"
	"github.com/tphakala/mediaguard/internal/datastore"
	"github.com/tphakala/mediaguard/internal/detection"
	"github.com/tphakala/mediaguard/internal/fingerprint"
	"github.com/tphakala/mediaguard/internal/fusion"
	"github.com/tphakala/mediaguard/internal/matcher"
	"github.com/tphakala/mediaguard/internal/observability"
	"github.com/tphakala/mediaguard/internal/pipeline"
	"github.com/tphakala/mediaguard/internal/policy"
	"github.com/tphakala/mediaguard/internal/telemetry"
)

// Engine bundles the wired components and their shutdown handles.
type Engine struct {
	Store    datastore.Interface
	Pipeline *pipeline.Pipeline
	Pool     *pipeline.Pool
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
}

// Build wires a complete engine from settings: datastore, extractor and
// detector clients, matcher, fusion and policy engines, pipeline and worker
// pool.
func Build(settings *conf.Settings) (*Engine, error) {
	if err := telemetry.Init(&settings.Sentry); err != nil {
		return nil, err
	}

	store, err := datastore.New(settings)
	if err != nil {
		return nil, err
	}
	if err := store.Open(); err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	extractor := detection.NewHTTPExtractor(detection.HTTPExtractorConfig{
		Endpoint: settings.Extractor.Endpoint,
		Timeout:  settings.Extractor.Timeout,
	})

	detectors := make([]detection.Detector, 0, len(settings.Detectors))
	for component, endpoint := range settings.Detectors {
		kinds := make([]fingerprint.MediaKind, 0, len(endpoint.MediaKinds))
		for _, k := range endpoint.MediaKinds {
			kinds = append(kinds, fingerprint.MediaKind(k))
		}
		detectors = append(detectors, detection.NewHTTPDetector(detection.HTTPDetectorConfig{
			Component:  detection.Component(component),
			Endpoint:   endpoint.Endpoint,
			MediaKinds: kinds,
			Timeout:    endpoint.Timeout,
			RateLimit:  endpoint.RateLimit,
			RateBurst:  endpoint.RateBurst,
		}))
	}

	m := matcher.New(store, settings.Matcher)
	fusioner := fusion.NewEngine(settings.Fusion)
	policier := policy.NewEngine(settings.Policy)

	p := pipeline.New(store, extractor, detectors, m, fusioner, policier,
		&settings.Pipeline, metrics)
	pool := pipeline.NewPool(p, store, settings.Pipeline.Workers, settings.Pipeline.PollInterval)

	return &Engine{
		Store:    store,
		Pipeline: p,
		Pool:     pool,
		Metrics:  metrics,
		Registry: registry,
	}, nil
}

// Close releases the engine's resources.
func (e *Engine) Close() error {
	telemetry.Flush()
	if e.Store != nil {
		return e.Store.Close()
	}
	return nil
}
