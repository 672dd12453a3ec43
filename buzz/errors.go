// Package buzz provides error handling for focuspuller lookup operations.
//
// The buzz package borrows the focus puller's vocabulary for missed focus -
// when a lookup wobbles or a shot slips soft, the session "buzzes" rather
// than failing outright, and the fallback chain carries on.
package buzz

import (
	"fmt"
	"strings"
	"time"
)

// Buzz represents a failure during discovery or scene lookup with rich context.
//
// Buzzes categorize the ways runtime discovery can go wrong, providing
// structured context for diagnostics without ever surfacing a failure to
// the host renderer.
//
// Buzz types:
//   - "discovery": shape discovery against the loaded component catalog
//   - "hierarchy": provider lookups while walking the scene graph
//   - "zoom": live zoom-handler reads on the active optic
//   - "reflection": recovered panics from structural field probes
//   - "capture": reticle frame rendering or file output issues
//
// Example usage:
//
//	err := New("hierarchy", "No same-variant provider under scope root",
//	    Context{"optic": "scope_root_acog/variant_4x/lens", "variant": "variant_4x"})
//
//	if err.CanRecover() {
//	    // Drop to the next fallback tier
//	}
type Buzz struct {
	Type      string    // Failure category for systematic handling
	Message   string    // Human-readable description
	Context   Context   // Additional debugging information
	Timestamp time.Time // When the failure occurred
	Attempt   int       // Which attempt/retry this was
	Severity  Severity  // How serious this failure is
}

// Context provides structured debugging information for buzzes.
//
// Context captures the state of the lookup when a failure occurs, including
// node paths, candidate type names, and fallback-tier information.
type Context map[string]interface{}

// Severity indicates how serious a buzz is and how it should be handled.
type Severity int

const (
	// Breath indicates an expected miss that the fallback chain absorbs.
	// Examples: no provider on a node, a variant mismatch, handler absent
	Breath Severity = iota

	// Soft indicates a significant issue that degrades resolution quality.
	// Examples: recovered reflection panics, out-of-range FOV values
	Soft

	// Blown indicates a serious issue that invalidates a tooling session.
	// Examples: frame capture directory unwritable, report generation failures
	Blown
)

func (s Severity) String() string {
	switch s {
	case Breath:
		return "breath"
	case Soft:
		return "soft"
	case Blown:
		return "blown"
	default:
		return "unknown"
	}
}

// New creates a new buzz with the current timestamp.
func New(buzzType, message string, context Context) *Buzz {
	return &Buzz{
		Type:      buzzType,
		Message:   message,
		Context:   context,
		Timestamp: time.Now(),
		Severity:  Soft, // Default severity
	}
}

// NewBreath creates a new buzz with Breath severity.
func NewBreath(buzzType, message string, context Context) *Buzz {
	return &Buzz{
		Type:      buzzType,
		Message:   message,
		Context:   context,
		Timestamp: time.Now(),
		Severity:  Breath,
	}
}

// NewBlown creates a new buzz with Blown severity.
func NewBlown(buzzType, message string, context Context) *Buzz {
	return &Buzz{
		Type:      buzzType,
		Message:   message,
		Context:   context,
		Timestamp: time.Now(),
		Severity:  Blown,
	}
}

// WithAttempt sets the attempt number for this buzz.
func (b *Buzz) WithAttempt(attemptNumber int) *Buzz {
	b.Attempt = attemptNumber
	return b
}

// WithSeverity sets the severity level for this buzz.
func (b *Buzz) WithSeverity(severity Severity) *Buzz {
	b.Severity = severity
	return b
}

// Error implements the error interface.
func (b *Buzz) Error() string {
	return fmt.Sprintf("[%s:%s] %s", b.Type, b.Severity, b.Message)
}

// CanRecover returns true if resolution can continue despite this buzz.
func (b *Buzz) CanRecover() bool {
	return b.Severity == Breath
}

// IsBlown returns true if this buzz should immediately stop a tooling session.
func (b *Buzz) IsBlown() bool {
	return b.Severity == Blown
}

// GetContext returns a specific context value if it exists.
func (b *Buzz) GetContext(key string) (interface{}, bool) {
	if b.Context == nil {
		return nil, false
	}
	val, exists := b.Context[key]
	return val, exists
}

// DetailedString returns a comprehensive failure description with context.
func (b *Buzz) DetailedString() string {
	var details strings.Builder

	details.WriteString(fmt.Sprintf("[%s:%s] %s", b.Type, b.Severity, b.Message))
	details.WriteString(fmt.Sprintf("\n  Time: %s", b.Timestamp.Format("15:04:05.000")))

	if b.Attempt > 0 {
		details.WriteString(fmt.Sprintf("\n  Attempt: %d", b.Attempt))
	}

	if len(b.Context) > 0 {
		details.WriteString("\n  Context:")
		for key, value := range b.Context {
			details.WriteString(fmt.Sprintf("\n    %s: %v", key, value))
		}
	}

	return details.String()
}

// Handler manages buzz collection and reporting for one lookup component.
//
// The handler keeps "not found" and "went wrong" distinguishable inside the
// library even though both degrade to the same fallback behavior outside it.
// Breaths are the expected texture of runtime discovery; soft and blown
// buzzes mean something actually misbehaved.
type Handler struct {
	component string  // Component name (e.g., "registry", "resolver", "walker")
	buzzes    []*Buzz // Collected failures in chronological order
	breaths   []*Buzz // Collected expected misses in chronological order
	policy    *Policy // How to handle different failure types
}

// Policy defines how different types and severities of buzzes should be handled.
type Policy struct {
	// StopOnBlown determines if a tooling session should stop immediately on blown buzzes
	StopOnBlown bool

	// MaxBreaths sets a limit on accumulated breaths before treating them as a real problem
	MaxBreaths int

	// RecoverableTypes lists buzz types that are considered recoverable
	RecoverableTypes []string

	// RetryPolicy defines retry behavior for different buzz types
	RetryPolicy map[string]RetryConfig
}

// RetryConfig defines retry behavior for specific buzz types.
//
// Discovery is deliberately absent: a failed shape discovery is cached as a
// terminal result and never retried.
type RetryConfig struct {
	MaxRetries  int           // Maximum retry attempts
	Backoff     time.Duration // Delay between retries
	Exponential bool          // Whether to use exponential backoff
}

// DefaultPolicy returns a sensible default buzz handling policy.
func DefaultPolicy() *Policy {
	return &Policy{
		StopOnBlown:      true,
		MaxBreaths:       16,
		RecoverableTypes: []string{"hierarchy", "zoom", "discovery"},
		RetryPolicy: map[string]RetryConfig{
			"capture": {MaxRetries: 3, Backoff: 100 * time.Millisecond, Exponential: false},
		},
	}
}

// NewHandler creates a new buzz handler for a specific component.
func NewHandler(component string, policy *Policy) *Handler {
	if policy == nil {
		policy = DefaultPolicy()
	}

	return &Handler{
		component: component,
		buzzes:    make([]*Buzz, 0),
		breaths:   make([]*Buzz, 0),
		policy:    policy,
	}
}

// Record adds a buzz to the handler's collection.
func (h *Handler) Record(b *Buzz) {
	if b.Severity == Breath {
		h.breaths = append(h.breaths, b)
	} else {
		h.buzzes = append(h.buzzes, b)
	}
}

// ShouldContinue determines if a session should continue based on current buzzes.
func (h *Handler) ShouldContinue() bool {
	// Stop on blown buzzes if policy requires it
	if h.policy.StopOnBlown {
		for _, b := range h.buzzes {
			if b.IsBlown() {
				return false
			}
		}
	}

	// Stop if too many breaths have accumulated
	if h.policy.MaxBreaths > 0 && len(h.breaths) > h.policy.MaxBreaths {
		return false
	}

	return true
}

// HasBuzzes returns true if any failures (non-breaths) have been recorded.
func (h *Handler) HasBuzzes() bool {
	return len(h.buzzes) > 0
}

// HasBreaths returns true if any expected misses have been recorded.
func (h *Handler) HasBreaths() bool {
	return len(h.breaths) > 0
}

// GetBuzzes returns all recorded failures.
func (h *Handler) GetBuzzes() []*Buzz {
	return h.buzzes
}

// GetBreaths returns all recorded expected misses.
func (h *Handler) GetBreaths() []*Buzz {
	return h.breaths
}

// GetRetryConfig returns the retry configuration for a specific buzz type.
func (h *Handler) GetRetryConfig(buzzType string) (RetryConfig, bool) {
	config, exists := h.policy.RetryPolicy[buzzType]
	return config, exists
}

// CanRecover returns true if the given buzz type is considered recoverable.
func (h *Handler) CanRecover(buzzType string) bool {
	for _, recoverableType := range h.policy.RecoverableTypes {
		if recoverableType == buzzType {
			return true
		}
	}
	return false
}

// Summary provides a concise overview of all buzzes and breaths.
func (h *Handler) Summary() string {
	if len(h.buzzes) == 0 && len(h.breaths) == 0 {
		return fmt.Sprintf("[%s] No issues during resolution", h.component)
	}

	return fmt.Sprintf("[%s] %d buzzes, %d breaths",
		h.component, len(h.buzzes), len(h.breaths))
}

// DetailedReport provides a comprehensive report of all issues.
func (h *Handler) DetailedReport() string {
	var report strings.Builder

	report.WriteString(fmt.Sprintf("=== %s Component Report ===\n", h.component))
	report.WriteString(h.Summary() + "\n")

	if len(h.buzzes) > 0 {
		report.WriteString("\nBuzzes:\n")
		for i, b := range h.buzzes {
			report.WriteString(fmt.Sprintf("%d. %s\n", i+1, b.DetailedString()))
		}
	}

	if len(h.breaths) > 0 {
		report.WriteString("\nBreaths:\n")
		for i, b := range h.breaths {
			report.WriteString(fmt.Sprintf("%d. %s\n", i+1, b.DetailedString()))
		}
	}

	return report.String()
}
