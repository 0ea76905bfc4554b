package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/tphakala/mediaguard/internal/errors"
	"github.com/tphakala/mediaguard/internal/fingerprint"
)

// HTTPExtractorConfig configures the remote fingerprint extractor service.
type HTTPExtractorConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// HTTPExtractor calls the remote fingerprint extractor over HTTP. Unlike
// detectors, extractor failures are fatal to the calling job, so errors are
// still dependency-categorized but the pipeline treats them as terminal
// after its retry bound.
type HTTPExtractor struct {
	cfg    HTTPExtractorConfig
	client *http.Client
}

// extractionResponse is the wire format returned by the extractor service.
type extractionResponse struct {
	Kind     string   `json:"kind"`
	Value    string   `json:"value,omitempty"`
	Segments []string `json:"segments,omitempty"`
}

// NewHTTPExtractor creates an extractor client.
func NewHTTPExtractor(cfg HTTPExtractorConfig) *HTTPExtractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	transport := &http.Transport{
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
		DialContext: (&net.Dialer{
			Timeout: defaultDialTimeout,
		}).DialContext,
	}
	return &HTTPExtractor{cfg: cfg, client: &http.Client{Transport: transport}}
}

// Extract posts the media bytes and decodes the fingerprint value or
// segment sequence.
func (e *HTTPExtractor) Extract(ctx context.Context, media []byte, kind fingerprint.MediaKind) (Extraction, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint, bytes.NewReader(media))
	if err != nil {
		return Extraction{}, e.dependencyError(err, "build request")
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Media-Kind", string(kind))

	resp, err := e.client.Do(req)
	if err != nil {
		return Extraction{}, e.dependencyError(err, "request")
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Extraction{}, e.dependencyError(
			fmt.Errorf("extractor returned status %d", resp.StatusCode), "status")
	}

	var er extractionResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&er); err != nil {
		return Extraction{}, e.dependencyError(err, "decode response")
	}

	switch fingerprint.Kind(er.Kind) {
	case fingerprint.KindStill:
		value, err := fingerprint.ParseHex(er.Value)
		if err != nil {
			return Extraction{}, e.dependencyError(err, "parse value")
		}
		return Extraction{Kind: fingerprint.KindStill, Value: value}, nil
	case fingerprint.KindTemporal:
		seq := make(fingerprint.Sequence, 0, len(er.Segments))
		for _, s := range er.Segments {
			v, err := fingerprint.ParseHex(s)
			if err != nil {
				return Extraction{}, e.dependencyError(err, "parse segment")
			}
			seq = append(seq, v)
		}
		if len(seq) == 0 {
			return Extraction{}, e.dependencyError(
				fmt.Errorf("extractor returned empty segment sequence"), "parse segments")
		}
		return Extraction{Kind: fingerprint.KindTemporal, Sequence: seq}, nil
	default:
		return Extraction{}, e.dependencyError(
			fmt.Errorf("extractor returned unknown kind %q", er.Kind), "parse kind")
	}
}

func (e *HTTPExtractor) dependencyError(err error, operation string) error {
	return errors.New(err).
		Component(serviceName).
		Category(errors.CategoryDependency).
		Context("operation", operation).
		Build()
}
