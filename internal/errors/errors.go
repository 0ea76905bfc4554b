// Package errors provides centralized error handling with categories and
// optional telemetry reporting for the fingerprint analysis engine.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// ErrorCategory represents the type of error for categorization and for
// the pipeline's retry policy.
type ErrorCategory string

const (
	// CategoryValidation marks bad input. Fatal to the calling job, never retried.
	CategoryValidation ErrorCategory = "validation"
	// CategoryDependency marks a failed or timed-out external extractor or
	// detector call. Downgrades the affected component to absent; fatal only
	// for fingerprint extraction.
	CategoryDependency ErrorCategory = "dependency"
	// CategoryTransientIO marks a storage or network blip, retryable up to a bound.
	CategoryTransientIO ErrorCategory = "transient-io"
	// CategoryIntegrity marks a post-detection persistence failure. Always
	// surfaced, never silently swallowed.
	CategoryIntegrity ErrorCategory = "integrity"

	CategoryTimeout       ErrorCategory = "timeout"
	CategoryCancellation  ErrorCategory = "cancellation"
	CategoryDatabase      ErrorCategory = "database"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryMatching      ErrorCategory = "matching"
	CategoryFusion        ErrorCategory = "fusion"
	CategoryPipeline      ErrorCategory = "pipeline"
	CategoryGeneric       ErrorCategory = "generic"
)

// ComponentUnknown is used when the component has not been set.
const ComponentUnknown = "unknown"

// EnhancedError wraps an error with category, component and context metadata.
type EnhancedError struct {
	Err       error
	Component string
	Category  ErrorCategory
	Context   map[string]any
	Timestamp time.Time
	mu        sync.RWMutex
	reported  bool
}

// Error implements the error interface
func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

// Unwrap implements the error unwrapping interface
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is matches either the underlying error or another EnhancedError of the
// same category.
func (ee *EnhancedError) Is(target error) bool {
	var other *EnhancedError
	if stderrors.As(target, &other) {
		return ee.Category == other.Category
	}
	return stderrors.Is(ee.Err, target)
}

// GetCategory returns the error category.
func (ee *EnhancedError) GetCategory() ErrorCategory {
	return ee.Category
}

// GetContext returns a copy of the error context.
func (ee *EnhancedError) GetContext() map[string]any {
	ee.mu.RLock()
	defer ee.mu.RUnlock()
	if ee.Context == nil {
		return nil
	}
	contextCopy := make(map[string]any, len(ee.Context))
	maps.Copy(contextCopy, ee.Context)
	return contextCopy
}

// MarkReported marks this error as reported to telemetry.
func (ee *EnhancedError) MarkReported() {
	ee.mu.Lock()
	defer ee.mu.Unlock()
	ee.reported = true
}

// IsReported returns whether this error has been reported.
func (ee *EnhancedError) IsReported() bool {
	ee.mu.RLock()
	defer ee.mu.RUnlock()
	return ee.reported
}

// ErrorBuilder provides a fluent interface for creating enhanced errors
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New creates a new error builder wrapping err.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf creates a new error builder from a formatted message.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component name.
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the error category.
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context adds context data to the error
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// JobContext adds job-specific context.
func (eb *ErrorBuilder) JobContext(jobID string, step string) *ErrorBuilder {
	if jobID != "" {
		eb = eb.Context("job_id", jobID)
	}
	if step != "" {
		eb = eb.Context("step", step)
	}
	return eb
}

// Timing adds performance timing context
func (eb *ErrorBuilder) Timing(operation string, duration time.Duration) *ErrorBuilder {
	eb = eb.Context("operation", operation)
	return eb.Context("duration_ms", duration.Milliseconds())
}

// Build creates the EnhancedError and triggers optional telemetry reporting.
func (eb *ErrorBuilder) Build() *EnhancedError {
	ee := &EnhancedError{
		Err:       eb.err,
		Component: eb.component,
		Category:  eb.category,
		Context:   eb.context,
		Timestamp: time.Now(),
	}
	if ee.Component == "" {
		ee.Component = ComponentUnknown
	}
	if ee.Category == "" {
		ee.Category = CategoryGeneric
	}
	reportToTelemetry(ee)
	return ee
}

// Category returns the category of err if it carries one, CategoryGeneric
// otherwise. Wrapped errors are unwrapped.
func Category(err error) ErrorCategory {
	var ee *EnhancedError
	if stderrors.As(err, &ee) {
		return ee.Category
	}
	return CategoryGeneric
}

// HasCategory reports whether err carries the given category.
func HasCategory(err error, category ErrorCategory) bool {
	return Category(err) == category
}

// Standard library passthroughs so callers only import this package.

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Join wraps errors.Join from the standard library.
func Join(errs ...error) error { return stderrors.Join(errs...) }

// NewStd creates a plain sentinel error without enhancement.
func NewStd(text string) error { return stderrors.New(text) }

// Telemetry integration. A Reporter is attached at process wiring time;
// nothing is reported until one is set.

// Reporter receives enhanced errors for out-of-band reporting.
type Reporter interface {
	ReportError(ee *EnhancedError)
}

var (
	telemetryReporter  atomic.Pointer[reporterHolder]
	hasActiveReporting atomic.Bool
)

type reporterHolder struct {
	reporter Reporter
}

// SetTelemetryReporter attaches a reporter. Passing nil disables reporting.
func SetTelemetryReporter(r Reporter) {
	if r == nil {
		telemetryReporter.Store(nil)
		hasActiveReporting.Store(false)
		return
	}
	telemetryReporter.Store(&reporterHolder{reporter: r})
	hasActiveReporting.Store(true)
}

func reportToTelemetry(ee *EnhancedError) {
	if !hasActiveReporting.Load() {
		return
	}
	holder := telemetryReporter.Load()
	if holder == nil || ee.IsReported() {
		return
	}
	holder.reporter.ReportError(ee)
	ee.MarkReported()
}
