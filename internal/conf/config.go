// Package conf loads and validates the application settings from YAML
// configuration with viper, applying defaults for everything not set.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// LogConfig controls the optional file log output.
type LogConfig struct {
	Enabled    bool
	Path       string
	Level      string
	MaxSize    int // megabytes before rotation
	MaxBackups int
	MaxAge     int // days
}

// MainSettings holds process-wide settings.
type MainSettings struct {
	Name  string // node name, included in logs
	Debug bool
	Log   LogConfig
}

// MatcherSettings configures the similarity matcher.
type MatcherSettings struct {
	// MaxDistance is the matching ceiling; candidates beyond it are no match.
	MaxDistance int
	// CacheTTL bounds staleness of the cached active corpus. Eventual
	// corpus visibility across jobs is acceptable.
	CacheTTL     time.Duration
	CacheEnabled bool
}

// FusionWeights are the per-component weights. Absent components are
// excluded from both numerator and denominator, so the weights need not sum
// to one.
type FusionWeights struct {
	Voice    float64
	Video    float64
	Document float64
	Scam     float64
	Liveness float64
}

// FusionThresholds are the risk category breakpoints applied to the final,
// history-adjusted score.
type FusionThresholds struct {
	Low    float64 // below this: low
	Medium float64 // below this: medium
	High   float64 // below this: high, else critical
}

// FusionSettings configures the fusion engine.
type FusionSettings struct {
	Weights    FusionWeights
	Thresholds FusionThresholds
}

// PolicySettings configures the response engine's decision breakpoints.
type PolicySettings struct {
	MinConfidence      float64 // below this, always escalate for review
	BlockThreshold     float64
	EscalateThreshold  float64
	ChallengeThreshold float64
}

// PipelineSettings configures the analysis job pipeline and its worker pool.
type PipelineSettings struct {
	Workers      int
	PollInterval time.Duration

	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	JobTimeout     time.Duration // hard wall-clock ceiling per job
	ExtractTimeout time.Duration
	DetectTimeout  time.Duration

	MaxUploadBytes    int64
	AllowedMediaKinds []string
}

// ExtractorSettings configures the remote fingerprint extractor service.
type ExtractorSettings struct {
	Endpoint string
	Timeout  time.Duration
}

// DetectorEndpoint configures one remote detector service.
type DetectorEndpoint struct {
	Endpoint   string
	MediaKinds []string
	Timeout    time.Duration
	RateLimit  float64 // calls per second, 0 disables limiting
	RateBurst  int
}

// OutputSettings selects and configures the datastore backend.
type OutputSettings struct {
	SQLite struct {
		Enabled bool
		Path    string
	}
	MySQL struct {
		Enabled  bool
		Username string
		Password string
		Host     string
		Port     int
		Database string
	}
}

// SentrySettings configures optional error telemetry.
type SentrySettings struct {
	Enabled     bool
	DSN         string
	Environment string
}

// Settings is the top-level configuration.
type Settings struct {
	Main      MainSettings
	Matcher   MatcherSettings
	Fusion    FusionSettings
	Policy    PolicySettings
	Pipeline  PipelineSettings
	Extractor ExtractorSettings
	Detectors map[string]DetectorEndpoint
	Output    OutputSettings
	Sentry    SentrySettings
}

var (
	settingsInstance *Settings
	settingsOnce     sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file, applies defaults and validates the
// result. Missing configuration files are not an error; defaults apply.
func Load() (*Settings, error) {
	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()

	return settings, nil
}

// Setting returns the loaded settings, loading them on first use.
func Setting() *Settings {
	settingsOnce.Do(func() {
		settingsMutex.RLock()
		loaded := settingsInstance != nil
		settingsMutex.RUnlock()
		if !loaded {
			if _, err := Load(); err != nil {
				panic(fmt.Sprintf("error loading settings: %v", err))
			}
		}
	})

	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// initViper initializes viper with default values and reads the
// configuration file when one exists.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return err
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("fatal error reading config file: %w", err)
		}
	}
	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "mediaguard"))
	}
	paths = append(paths, "/etc/mediaguard")
	return paths, nil
}

// SaveSettings writes the effective settings to a YAML file.
func SaveSettings(settings *Settings, path string) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}
