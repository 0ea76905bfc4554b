package runtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/mediaguard/internal/conf"
)

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()

	s := &conf.Settings{}
	s.Output.SQLite.Enabled = true
	s.Output.SQLite.Path = t.TempDir() + "/test.db"
	s.Matcher = conf.MatcherSettings{MaxDistance: 31}
	s.Pipeline = conf.PipelineSettings{
		Workers:      2,
		PollInterval: time.Second,
		JobTimeout:   time.Minute,
	}
	s.Extractor = conf.ExtractorSettings{Endpoint: "http://localhost:8600/extract"}
	s.Detectors = map[string]conf.DetectorEndpoint{
		"voice": {Endpoint: "http://localhost:8601/detect", MediaKinds: []string{"image", "video"}},
		"scam":  {Endpoint: "http://localhost:8602/detect"},
	}
	return s
}

func TestBuildWiresEverything(t *testing.T) {
	engine, err := Build(testSettings(t))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, engine.Close()) })

	assert.NotNil(t, engine.Store)
	assert.NotNil(t, engine.Pipeline)
	assert.NotNil(t, engine.Pool)
	assert.NotNil(t, engine.Metrics)
	assert.NotNil(t, engine.Registry)
}

func TestBuildFailsWithoutOutput(t *testing.T) {
	_, err := Build(&conf.Settings{})
	assert.Error(t, err)
}
