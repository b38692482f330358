// Package errors provides the error taxonomy used across reqkit.
//
// Every typed error maps onto one sentinel through its Is method, so callers
// can branch with errors.Is without caring about the concrete type, and use
// errors.As when they need the details.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors that can be checked with errors.Is()
var (
	// ErrNetwork indicates the transport failed to exchange bytes.
	ErrNetwork = errors.New("network error")

	// ErrTimeout indicates the request deadline fired.
	ErrTimeout = errors.New("request timed out")

	// ErrInvalidRequest indicates a malformed request descriptor.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrTooManyRedirects indicates the redirect budget was exhausted.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrResponseParse indicates the response body could not be interpreted.
	ErrResponseParse = errors.New("response parse error")

	// ErrJSON indicates JSON encoding or decoding failed.
	ErrJSON = errors.New("json error")

	// ErrAuth indicates the auth policy could not produce a credential.
	ErrAuth = errors.New("authentication error")

	// ErrMultipart indicates a multipart body could not be assembled.
	ErrMultipart = errors.New("multipart error")

	// ErrCookie indicates an invalid Set-Cookie directive.
	ErrCookie = errors.New("cookie error")

	// ErrConfig indicates a configuration error.
	ErrConfig = errors.New("configuration error")

	// ErrCanceled indicates the caller canceled the operation.
	ErrCanceled = errors.New("operation canceled")

	// ErrStatus indicates a 4xx or 5xx response status.
	ErrStatus = errors.New("unsuccessful status")

	// ErrBodyConsumed indicates the response body was already read or streamed.
	ErrBodyConsumed = &bodyConsumedError{}
)

type bodyConsumedError struct{}

func (*bodyConsumedError) Error() string { return "response body already consumed" }

func (*bodyConsumedError) Is(target error) bool { return target == ErrResponseParse }

// RequestError adds request context to an error.
type RequestError struct {
	Op      string // Operation that failed (e.g., "send", "build", "encode")
	URL     string // URL of the request, if applicable
	Method  string // HTTP method, if applicable
	Wrapped error  // Underlying error
}

func (e *RequestError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Method, e.URL, e.Op, e.Wrapped)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Wrapped)
}

func (e *RequestError) Unwrap() error {
	return e.Wrapped
}

// NewRequestError creates a new RequestError.
func NewRequestError(op string, err error) *RequestError {
	return &RequestError{Op: op, Wrapped: err}
}

// NewRequestErrorWithURL creates a new RequestError with URL context.
func NewRequestErrorWithURL(op, method, url string, err error) *RequestError {
	return &RequestError{Op: op, Method: method, URL: url, Wrapped: err}
}

// NetworkError is a transport-level failure.
type NetworkError struct {
	Op      string
	URL     string
	Wrapped error
}

func (e *NetworkError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Wrapped)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Wrapped)
}

func (e *NetworkError) Unwrap() error { return e.Wrapped }

// Is implements errors.Is for NetworkError.
func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// NewNetworkError creates a new NetworkError.
func NewNetworkError(op, url string, err error) *NetworkError {
	return &NetworkError{Op: op, URL: url, Wrapped: err}
}

// TimeoutError reports the deadline that fired.
type TimeoutError struct {
	Duration time.Duration
	URL      string
}

func (e *TimeoutError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("request to %s timed out after %s", e.URL, e.Duration)
	}
	return fmt.Sprintf("request timed out after %s", e.Duration)
}

// Is implements errors.Is for TimeoutError.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// Timeout reports true so TimeoutError satisfies net.Error-style checks.
func (e *TimeoutError) Timeout() bool { return true }

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(d time.Duration, url string) *TimeoutError {
	return &TimeoutError{Duration: d, URL: url}
}

// ValidationError represents a malformed request field.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   string // The invalid value (may be redacted for sensitive fields)
	Message string // Description of what's wrong
}

func (e *ValidationError) Error() string {
	if e.Field != "" && e.Value != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return e.Message
}

// Is implements errors.Is for ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NewValidationErrorWithValue creates a new ValidationError with the invalid value.
func NewValidationErrorWithValue(field, value, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// RedirectError is returned when a redirect chain exceeds Max hops.
type RedirectError struct {
	Max int
	URL string // last Location that would have been followed
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("stopped after %d redirects at %s", e.Max, e.URL)
}

// Is implements errors.Is for RedirectError.
func (e *RedirectError) Is(target error) bool { return target == ErrTooManyRedirects }

// ParseError represents a response body that could not be interpreted.
type ParseError struct {
	Message string
	Wrapped error
}

func (e *ParseError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Wrapped)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is for ParseError.
func (e *ParseError) Is(target error) bool {
	return target == ErrResponseParse
}

// NewParseError creates a new ParseError.
func NewParseError(message string, cause error) *ParseError {
	return &ParseError{Message: message, Wrapped: cause}
}

// JSONError wraps an encoding/json failure. Op is "encode" or "decode".
type JSONError struct {
	Op      string
	Wrapped error
}

func (e *JSONError) Error() string {
	return fmt.Sprintf("json %s: %v", e.Op, e.Wrapped)
}

func (e *JSONError) Unwrap() error { return e.Wrapped }

// Is implements errors.Is for JSONError.
func (e *JSONError) Is(target error) bool { return target == ErrJSON }

// AuthError reports a credential that could not be resolved.
type AuthError struct {
	Scheme  string
	Message string
}

func (e *AuthError) Error() string {
	if e.Scheme != "" {
		return fmt.Sprintf("%s auth: %s", e.Scheme, e.Message)
	}
	return "auth: " + e.Message
}

// Is implements errors.Is for AuthError.
func (e *AuthError) Is(target error) bool { return target == ErrAuth }

// NewAuthError creates a new AuthError.
func NewAuthError(scheme, message string) *AuthError {
	return &AuthError{Scheme: scheme, Message: message}
}

// MultipartError names the part that could not be assembled.
type MultipartError struct {
	Part    string
	Wrapped error
}

func (e *MultipartError) Error() string {
	return fmt.Sprintf("multipart part %q: %v", e.Part, e.Wrapped)
}

func (e *MultipartError) Unwrap() error { return e.Wrapped }

// Is implements errors.Is for MultipartError.
func (e *MultipartError) Is(target error) bool { return target == ErrMultipart }

// CookieError reports a rejected Set-Cookie directive.
type CookieError struct {
	Directive string
	Message   string
}

func (e *CookieError) Error() string {
	return fmt.Sprintf("cookie %q: %s", e.Directive, e.Message)
}

// Is implements errors.Is for CookieError.
func (e *CookieError) Is(target error) bool { return target == ErrCookie }

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	Key     string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config %s: %s", e.Key, e.Message)
	}
	return "config: " + e.Message
}

// Is implements errors.Is for ConfigError.
func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// NewConfigError creates a new ConfigError.
func NewConfigError(key, message string) *ConfigError {
	return &ConfigError{Key: key, Message: message}
}

// StatusError is produced by Response.ErrorForStatus for 4xx and 5xx responses.
type StatusError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %s", e.URL, e.Status)
}

// Is implements errors.Is for StatusError.
func (e *StatusError) Is(target error) bool { return target == ErrStatus }

// IsClientError reports a 4xx status.
func (e *StatusError) IsClientError() bool { return e.StatusCode >= 400 && e.StatusCode < 500 }

// IsServerError reports a 5xx status.
func (e *StatusError) IsServerError() bool { return e.StatusCode >= 500 && e.StatusCode < 600 }

// Wrap wraps an error with a message, using %w for proper error chaining.
// Returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted message.
// Returns nil if err is nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
// This is a convenience re-export of errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience re-export of errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}
