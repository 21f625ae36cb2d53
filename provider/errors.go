// Classified errors for vendor adapter failures. Sentinel kinds enable
// errors.Is assertions in the orchestrator and tests instead of string
// matching; the wrapper preserves the underlying error for errors.As.
package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mfellsbbtv/oneclick-provisioner/types"
)

// Sentinel kinds for adapter failure classification.
var (
	// ErrValidation indicates bad or missing input. Caller's fault; no
	// vendor call was made and retrying without new input is pointless.
	ErrValidation = errors.New("validation failed")

	// ErrAuth indicates the adapter's own credentials were rejected by
	// the vendor. A configuration fault, distinct from vendor-data
	// errors.
	ErrAuth = errors.New("authentication failed")

	// ErrVendor indicates a vendor API call failed: 5xx, malformed
	// response, connection failure.
	ErrVendor = errors.New("vendor error")

	// ErrNotFound indicates the vendor reports the resource absent.
	// Existence checks rely on this to choose create vs update.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited indicates the vendor throttled the call (429).
	ErrRateLimited = errors.New("rate limited")

	// ErrTimeout indicates a vendor call exceeded its allotted time.
	ErrTimeout = errors.New("vendor call timed out")
)

// Error wraps an underlying failure with its classification, the
// provider it belongs to, and the operation that failed.
type Error struct {
	// Kind is the sentinel for classification.
	Kind error
	// Provider is the owning provider.
	Provider types.ProviderID
	// Op is the failed operation, e.g. "get user", "assign license".
	Op string
	// Err is the underlying error.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v: %v", e.Provider, e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Op, e.Kind)
}

// Unwrap returns the underlying error for chain traversal.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether the error matches the target sentinel.
func (e *Error) Is(target error) bool { return errors.Is(e.Kind, target) }

// NewError creates a classified adapter error.
func NewError(kind error, provider types.ProviderID, op string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Op: op, Err: err}
}

// NewValidationError creates a validation failure with a formatted
// message. Validation errors carry no underlying cause: the input itself
// is the problem.
func NewValidationError(provider types.ProviderID, format string, args ...any) *Error {
	return &Error{
		Kind:     ErrValidation,
		Provider: provider,
		Op:       "validate",
		Err:      fmt.Errorf(format, args...),
	}
}

// ClassifyStatus maps an HTTP response status to a sentinel kind.
// Returns nil for 2xx.
func ClassifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuth
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrVendor
	}
}

// Classify determines the sentinel kind for an arbitrary error, checking
// typed timeout errors first and falling back to message patterns for
// errors that cross process or SDK boundaries.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	// Already classified.
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}

	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return ErrTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "deadline exceeded", "timed out", "timeout"):
		return ErrTimeout
	case containsAny(msg, "401", "unauthorized", "invalid_auth", "invalid credentials", "token expired", "403", "forbidden"):
		return ErrAuth
	case containsAny(msg, "429", "too many requests", "rate limit", "ratelimited"):
		return ErrRateLimited
	case containsAny(msg, "404", "not found", "user_not_found", "does not exist"):
		return ErrNotFound
	default:
		return ErrVendor
	}
}

// containsAny reports whether s contains any of the substrings.
// Callers pass s already lowercased.
func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
