package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeUnauthenticated     ErrorType = "Unauthenticated"
	ErrorTypeNotFound            ErrorType = "NotFound"
	ErrorTypeValidation          ErrorType = "Validation"
	ErrorTypeLimitReached        ErrorType = "LimitReached"
	ErrorTypeSolverMisconfigured ErrorType = "SolverMisconfigured"
	ErrorTypeNoProxies           ErrorType = "NoProxiesAvailable"
	ErrorTypeExternalService     ErrorType = "ExternalService"
	ErrorTypeTimeout             ErrorType = "Timeout"
	ErrorTypeStore               ErrorType = "Store"
	ErrorTypeUnknown             ErrorType = "Unknown"
)

// Service identifies which external collaborator an error came from.
type Service string

const (
	ServiceAccount Service = "AccountService"
	ServiceSolver  Service = "ChallengeSolver"
	ServiceStore   Service = "RecordStore"
	ServiceNone    Service = "None"
)

// EngineError is a typed error with enough context for a caller to
// decide between retrying and fixing configuration.
type EngineError struct {
	Type      ErrorType
	Service   Service
	Message   string
	Cause     string
	Solutions []string

	// Oldest carries the eviction candidate descriptor on
	// ErrorTypeLimitReached so the caller can prompt for confirmation.
	Oldest *EvictionCandidate
}

// EvictionCandidate describes the snapshot that would be deleted if the
// caller confirms creation past the retention cap.
type EvictionCandidate struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	CreatedAt string `json:"created_at"`
}

// Error implements the error interface
func (e *EngineError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	if e.Cause != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Cause)
	}
	if len(e.Solutions) > 0 {
		sb.WriteString("\nSolutions:\n")
		for _, s := range e.Solutions {
			sb.WriteString("  - ")
			sb.WriteString(s)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// Format implements fmt.Formatter for custom formatting
func (e *EngineError) Format(f fmt.State, verb rune) {
	switch verb {
	case 's':
		fmt.Fprintf(f, "%s", e.Error())
	case 'v':
		if f.Flag('+') {
			fmt.Fprintf(f, "[%s/%s] %s", e.Type, e.Service, e.Error())
		} else {
			fmt.Fprintf(f, "%s", e.Error())
		}
	}
}

// New creates a new EngineError
func New(errType ErrorType, service Service, message string) *EngineError {
	return &EngineError{
		Type:    errType,
		Service: service,
		Message: message,
	}
}

// WithCause adds cause information
func (e *EngineError) WithCause(cause string) *EngineError {
	e.Cause = cause
	return e
}

// WithSolutions adds actionable solution steps
func (e *EngineError) WithSolutions(solutions ...string) *EngineError {
	e.Solutions = append(e.Solutions, solutions...)
	return e
}

// WithOldest attaches the eviction candidate to a limit error
func (e *EngineError) WithOldest(c *EvictionCandidate) *EngineError {
	e.Oldest = c
	return e
}

// TypeOf returns the error type, or ErrorTypeUnknown for foreign errors.
func TypeOf(err error) ErrorType {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Type
	}
	return ErrorTypeUnknown
}

// Is lets errors.Is match on error type via sentinel comparison.
func (e *EngineError) Is(target error) bool {
	var te *EngineError
	if !errors.As(target, &te) {
		return false
	}
	return e.Type == te.Type
}

// IsConfigError reports whether the error requires a configuration fix
// rather than a retry (bad credential, missing solver key, no proxies).
func IsConfigError(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeUnauthenticated, ErrorTypeSolverMisconfigured, ErrorTypeNoProxies, ErrorTypeValidation:
		return true
	default:
		return false
	}
}

// IsInfraError reports whether the error came from an external service
// or the record store being unavailable, where a retry may succeed.
func IsInfraError(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeExternalService, ErrorTypeStore, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// NotFound builds the canonical not-found error. Owner mismatch MUST be
// reported through this same constructor so existence is never revealed
// to a non-owner.
func NotFound(what string) *EngineError {
	return New(ErrorTypeNotFound, ServiceNone, fmt.Sprintf("%s not found", what))
}
