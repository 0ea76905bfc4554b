package conf

import (
	"errors"
	"fmt"
)

// ValidateSettings checks the loaded settings for values the engine cannot
// operate with. Validation failures abort startup.
func ValidateSettings(settings *Settings) error {
	var errs []error

	if settings.Matcher.MaxDistance < 0 || settings.Matcher.MaxDistance > 256 {
		errs = append(errs, fmt.Errorf("matcher.maxdistance must be in [0,256], got %d",
			settings.Matcher.MaxDistance))
	}

	w := settings.Fusion.Weights
	for name, v := range map[string]float64{
		"voice": w.Voice, "video": w.Video, "document": w.Document,
		"scam": w.Scam, "liveness": w.Liveness,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("fusion.weights.%s must not be negative, got %v", name, v))
		}
	}

	t := settings.Fusion.Thresholds
	if !(t.Low < t.Medium && t.Medium < t.High) {
		errs = append(errs, fmt.Errorf("fusion.thresholds must be strictly increasing: low=%v medium=%v high=%v",
			t.Low, t.Medium, t.High))
	}

	p := settings.Policy
	for name, v := range map[string]float64{
		"minconfidence":      p.MinConfidence,
		"blockthreshold":     p.BlockThreshold,
		"escalatethreshold":  p.EscalateThreshold,
		"challengethreshold": p.ChallengeThreshold,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("policy.%s must be in [0,1], got %v", name, v))
		}
	}
	if p.ChallengeThreshold >= p.EscalateThreshold || p.EscalateThreshold >= p.BlockThreshold {
		errs = append(errs, fmt.Errorf("policy thresholds must be strictly increasing: challenge=%v escalate=%v block=%v",
			p.ChallengeThreshold, p.EscalateThreshold, p.BlockThreshold))
	}

	if settings.Pipeline.Workers < 1 {
		errs = append(errs, fmt.Errorf("pipeline.workers must be at least 1, got %d",
			settings.Pipeline.Workers))
	}
	if settings.Pipeline.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("pipeline.maxretries must not be negative, got %d",
			settings.Pipeline.MaxRetries))
	}
	if settings.Pipeline.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("pipeline.multiplier must be at least 1, got %v",
			settings.Pipeline.Multiplier))
	}

	if settings.Output.SQLite.Enabled && settings.Output.MySQL.Enabled {
		errs = append(errs, errors.New("only one datastore output may be enabled"))
	}

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		errs = append(errs, errors.New("sentry.dsn is required when sentry is enabled"))
	}

	return errors.Join(errs...)
}
