package shared

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExpired     = fmt.Errorf("access token expired")
	ErrRefreshFailed    = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken   = fmt.Errorf("no refresh token available")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrRateLimited        = fmt.Errorf("rate limited")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrNotFound           = fmt.Errorf("resource not found")
	ErrPlaylistNotFound   = fmt.Errorf("playlist not found")
	ErrTrackNotFound      = fmt.Errorf("track not found")

	// Sync errors
	ErrSyncInProgress  = fmt.Errorf("a sync is already in progress")
	ErrJobNotFound     = fmt.Errorf("job not found")
	ErrIncompleteRead  = fmt.Errorf("incomplete paginated read")
	ErrUnsupportedKind = fmt.Errorf("unsupported export format")
	ErrPanic           = fmt.Errorf("unexpected panic")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)

// ErrorKind classifies a failed remote call for retry and fallback decisions.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindTransient
	KindAuthExpired
	KindNotFound
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindAuthExpired:
		return "auth_expired"
	case KindNotFound:
		return "not_found"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// APIError is returned by service clients for any non-2xx response.
type APIError struct {
	Service    string
	Method     string
	Endpoint   string
	Status     int
	Body       string
	RetryAfter time.Duration
}

// NewAPIError creates an [APIError] from a response status and (possibly truncated) body.
func NewAPIError(service, method, endpoint string, status int, body []byte) *APIError {
	const maxBody = 512
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return &APIError{
		Service:  service,
		Method:   method,
		Endpoint: endpoint,
		Status:   status,
		Body:     string(body),
	}
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s API error: %s %s: status %d: %s", e.Service, e.Method, e.Endpoint, e.Status, e.Body)
	}
	return fmt.Sprintf("%s API error: %s %s: status %d", e.Service, e.Method, e.Endpoint, e.Status)
}

// Kind maps the HTTP status onto an [ErrorKind].
func (e *APIError) Kind() ErrorKind {
	switch {
	case e.Status == http.StatusTooManyRequests || e.Status >= 500:
		return KindTransient
	case e.Status == http.StatusUnauthorized:
		return KindAuthExpired
	case e.Status == http.StatusNotFound || e.Status == http.StatusMethodNotAllowed:
		return KindNotFound
	case e.Status == http.StatusBadRequest || e.Status == http.StatusForbidden:
		return KindFatal
	default:
		return KindUnknown
	}
}

// Is lets callers match an [APIError] against the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAPIRequest:
		return true
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	case ErrServiceUnavailable:
		return e.Status >= 500
	case ErrTokenExpired:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Kind() == KindNotFound
	}
	return false
}

// Classify returns the [ErrorKind] of err, looking through wrapped errors.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind()
	}

	switch {
	case errors.Is(err, ErrTokenExpired):
		return KindAuthExpired
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrServiceUnavailable), errors.Is(err, ErrTimeout):
		return KindTransient
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPlaylistNotFound):
		return KindNotFound
	case errors.Is(err, ErrMissingCredentials), errors.Is(err, ErrMissingArgument),
		errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrNotAuthenticated):
		return KindFatal
	}
	return KindUnknown
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool { return Classify(err) == KindTransient }

// IsAuthExpired reports whether err means the access credential must be refreshed.
func IsAuthExpired(err error) bool { return Classify(err) == KindAuthExpired }

// IsNotFound reports whether err is a not-found or unsupported-endpoint failure.
func IsNotFound(err error) bool { return Classify(err) == KindNotFound }
