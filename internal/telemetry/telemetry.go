// Package telemetry reports enhanced errors to Sentry when enabled.
package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/mediaguard/internal/conf"
	"github.com/tphakala/mediaguard/internal/errors"
)

// flushTimeout bounds how long shutdown waits for buffered events.
const flushTimeout = 2 * time.Second

// SentryReporter forwards enhanced errors to Sentry with their category,
// component and context attached as tags and extras.
type SentryReporter struct{}

// Init configures the Sentry client and attaches the reporter to the errors
// package. A disabled configuration is a no-op.
func Init(settings *conf.SentrySettings) error {
	if !settings.Enabled {
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         settings.DSN,
		Environment: settings.Environment,
	})
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}

	errors.SetTelemetryReporter(&SentryReporter{})
	return nil
}

// ReportError implements errors.Reporter.
func (r *SentryReporter) ReportError(ee *errors.EnhancedError) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.Component)
		scope.SetTag("category", string(ee.Category))
		for k, v := range ee.GetContext() {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(ee.Err)
	})
}

// Flush drains buffered events, for use during shutdown.
func Flush() {
	sentry.Flush(flushTimeout)
}
