package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig registers the default value for every setting. Values in
// the configuration file override these.
func setDefaultConfig() {
	viper.SetDefault("main.name", "mediaguard")
	viper.SetDefault("main.debug", false)
	viper.SetDefault("main.log.enabled", false)
	viper.SetDefault("main.log.path", "logs/mediaguard.log")
	viper.SetDefault("main.log.level", "info")
	viper.SetDefault("main.log.maxsize", 100)
	viper.SetDefault("main.log.maxbackups", 3)
	viper.SetDefault("main.log.maxage", 28)

	// Similarity matcher. The ceiling matches the low-band upper bound;
	// distances beyond it are not matches.
	viper.SetDefault("matcher.maxdistance", 31)
	viper.SetDefault("matcher.cacheenabled", true)
	viper.SetDefault("matcher.cachettl", 30*time.Second)

	// Fusion weights per component.
	viper.SetDefault("fusion.weights.voice", 0.20)
	viper.SetDefault("fusion.weights.video", 0.25)
	viper.SetDefault("fusion.weights.document", 0.15)
	viper.SetDefault("fusion.weights.scam", 0.20)
	viper.SetDefault("fusion.weights.liveness", 0.20)

	// Risk category breakpoints, applied to the history-adjusted score.
	viper.SetDefault("fusion.thresholds.low", 0.30)
	viper.SetDefault("fusion.thresholds.medium", 0.60)
	viper.SetDefault("fusion.thresholds.high", 0.85)

	// Response engine breakpoints. The confidence gate is evaluated before
	// the score tiers.
	viper.SetDefault("policy.minconfidence", 0.6)
	viper.SetDefault("policy.blockthreshold", 0.95)
	viper.SetDefault("policy.escalatethreshold", 0.85)
	viper.SetDefault("policy.challengethreshold", 0.6)

	// Analysis pipeline.
	viper.SetDefault("pipeline.workers", 4)
	viper.SetDefault("pipeline.pollinterval", 1*time.Second)
	viper.SetDefault("pipeline.maxretries", 3)
	viper.SetDefault("pipeline.initialdelay", 2*time.Second)
	viper.SetDefault("pipeline.maxdelay", 30*time.Second)
	viper.SetDefault("pipeline.multiplier", 2.0)
	viper.SetDefault("pipeline.jobtimeout", 5*time.Minute)
	viper.SetDefault("pipeline.extracttimeout", 30*time.Second)
	viper.SetDefault("pipeline.detecttimeout", 30*time.Second)
	viper.SetDefault("pipeline.maxuploadbytes", int64(100*1024*1024))
	viper.SetDefault("pipeline.allowedmediakinds", []string{"image", "video"})

	// External fingerprint extractor.
	viper.SetDefault("extractor.endpoint", "http://localhost:8600/extract")
	viper.SetDefault("extractor.timeout", 30*time.Second)

	// Datastore output.
	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "mediaguard.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "mediaguard")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", 3306)
	viper.SetDefault("output.mysql.database", "mediaguard")

	// Telemetry.
	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "production")
}
