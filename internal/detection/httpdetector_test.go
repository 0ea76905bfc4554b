package detection

import (
	"context"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/mediaguard/internal/errors"
	"github.com/tphakala/mediaguard/internal/fingerprint"
)

const testEndpoint = "http://detector.test/detect"

func newTestDetector(t *testing.T, cfg HTTPDetectorConfig) *HTTPDetector {
	t.Helper()
	if cfg.Endpoint == "" {
		cfg.Endpoint = testEndpoint
	}
	if cfg.Component == "" {
		cfg.Component = ComponentVoice
	}
	d := NewHTTPDetector(cfg)
	httpmock.ActivateNonDefault(d.client)
	t.Cleanup(httpmock.DeactivateAndReset)
	return d
}

func TestHTTPDetectorDetect(t *testing.T) {
	d := newTestDetector(t, HTTPDetectorConfig{})
	httpmock.RegisterResponder(http.MethodPost, testEndpoint,
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]float64{
			"score":      0.82,
			"confidence": 0.91,
		}))

	verdict, err := d.Detect(context.Background(), []byte("media"), fingerprint.MediaImage)
	require.NoError(t, err)
	assert.InDelta(t, 0.82, verdict.Score, 1e-9)
	assert.InDelta(t, 0.91, verdict.Confidence, 1e-9)
}

func TestHTTPDetectorClampsVerdict(t *testing.T) {
	d := newTestDetector(t, HTTPDetectorConfig{})
	httpmock.RegisterResponder(http.MethodPost, testEndpoint,
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]float64{
			"score":      1.7,
			"confidence": -0.3,
		}))

	verdict, err := d.Detect(context.Background(), []byte("media"), fingerprint.MediaImage)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, verdict.Score, 1e-9)
	assert.InDelta(t, 0.0, verdict.Confidence, 1e-9)
}

func TestHTTPDetectorErrorStatusIsDependencyError(t *testing.T) {
	d := newTestDetector(t, HTTPDetectorConfig{})
	httpmock.RegisterResponder(http.MethodPost, testEndpoint,
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "overloaded"))

	_, err := d.Detect(context.Background(), []byte("media"), fingerprint.MediaImage)
	require.Error(t, err)
	assert.Equal(t, errors.CategoryDependency, errors.Category(err))
}

func TestHTTPDetectorMalformedBodyIsDependencyError(t *testing.T) {
	d := newTestDetector(t, HTTPDetectorConfig{})
	httpmock.RegisterResponder(http.MethodPost, testEndpoint,
		httpmock.NewStringResponder(http.StatusOK, "not json"))

	_, err := d.Detect(context.Background(), []byte("media"), fingerprint.MediaImage)
	require.Error(t, err)
	assert.Equal(t, errors.CategoryDependency, errors.Category(err))
}

func TestHTTPDetectorSupports(t *testing.T) {
	t.Parallel()

	imageOnly := NewHTTPDetector(HTTPDetectorConfig{
		Component:  ComponentDocument,
		Endpoint:   testEndpoint,
		MediaKinds: []fingerprint.MediaKind{fingerprint.MediaImage},
	})
	assert.True(t, imageOnly.Supports(fingerprint.MediaImage))
	assert.False(t, imageOnly.Supports(fingerprint.MediaVideo))

	// No kind restriction means all kinds.
	all := NewHTTPDetector(HTTPDetectorConfig{Component: ComponentScam, Endpoint: testEndpoint})
	assert.True(t, all.Supports(fingerprint.MediaImage))
	assert.True(t, all.Supports(fingerprint.MediaVideo))
}

func TestHTTPDetectorComponent(t *testing.T) {
	t.Parallel()

	d := NewHTTPDetector(HTTPDetectorConfig{Component: ComponentLiveness, Endpoint: testEndpoint})
	assert.Equal(t, ComponentLiveness, d.Component())
}
