package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/mediaguard/internal/errors"
	"github.com/tphakala/mediaguard/internal/fingerprint"
	"github.com/tphakala/mediaguard/internal/logging"
)

const serviceName = "detection"

var logger *slog.Logger

func init() {
	logger = logging.ForService(serviceName)
	if logger == nil {
		logger = slog.Default().With("service", serviceName)
	}
}

const (
	defaultTimeout             = 30 * time.Second
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultIdleConnTimeout     = 90 * time.Second
	defaultDialTimeout         = 10 * time.Second

	userAgent = "mediaguard"

	// maxResponseBytes bounds detector response bodies; verdicts are tiny.
	maxResponseBytes = 1 << 20
)

// HTTPDetectorConfig configures one remote detector endpoint.
type HTTPDetectorConfig struct {
	Component  Component
	Endpoint   string
	MediaKinds []fingerprint.MediaKind // media kinds the detector accepts
	Timeout    time.Duration           // per-call ceiling, defaulted if zero
	RateLimit  float64                 // calls per second, 0 disables limiting
	RateBurst  int
}

// HTTPDetector calls a remote classifier service over HTTP. Requests are
// rate limited and timeout bounded; any transport failure, timeout or
// non-2xx status surfaces as a dependency error so the pipeline records the
// component as absent instead of failing the job.
type HTTPDetector struct {
	cfg     HTTPDetectorConfig
	client  *http.Client
	limiter *rate.Limiter
}

// verdictResponse is the wire format returned by detector services.
type verdictResponse struct {
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

// NewHTTPDetector creates a detector client for one remote endpoint.
func NewHTTPDetector(cfg HTTPDetectorConfig) *HTTPDetector {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	transport := &http.Transport{
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
		DialContext: (&net.Dialer{
			Timeout: defaultDialTimeout,
		}).DialContext,
	}

	return &HTTPDetector{
		cfg:     cfg,
		client:  &http.Client{Transport: transport},
		limiter: limiter,
	}
}

// Component returns the fusion slot this detector feeds.
func (d *HTTPDetector) Component() Component {
	return d.cfg.Component
}

// Supports reports whether the detector applies to the media kind.
func (d *HTTPDetector) Supports(kind fingerprint.MediaKind) bool {
	if len(d.cfg.MediaKinds) == 0 {
		return true
	}
	for _, k := range d.cfg.MediaKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Detect posts the media bytes to the remote classifier and decodes its
// verdict. The context deadline is tightened to the configured per-call
// timeout.
func (d *HTTPDetector) Detect(ctx context.Context, media []byte, kind fingerprint.MediaKind) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return Verdict{}, d.dependencyError(err, "rate-limit wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.Endpoint, bytes.NewReader(media))
	if err != nil {
		return Verdict{}, d.dependencyError(err, "build request")
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Media-Kind", string(kind))

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return Verdict{}, d.dependencyError(err, "request")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Verdict{}, d.dependencyError(
			fmt.Errorf("detector returned status %d", resp.StatusCode), "status")
	}

	var vr verdictResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&vr); err != nil {
		return Verdict{}, d.dependencyError(err, "decode response")
	}

	verdict := Verdict{
		Score:      clamp01(vr.Score),
		Confidence: clamp01(vr.Confidence),
	}

	logger.Debug("detector verdict received",
		"component", d.cfg.Component,
		"score", verdict.Score,
		"confidence", verdict.Confidence,
		"duration_ms", time.Since(start).Milliseconds())

	return verdict, nil
}

func (d *HTTPDetector) dependencyError(err error, operation string) error {
	return errors.New(err).
		Component(serviceName).
		Category(errors.CategoryDependency).
		Context("detector_component", string(d.cfg.Component)).
		Context("operation", operation).
		Build()
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
