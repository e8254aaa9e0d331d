package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// PageError describes a failed page fetch or a rejected admin request.
type PageError struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	URL        string `json:"url,omitempty"`
	underlying error
}

func (e *PageError) Error() string {
	msg := e.Message
	if e.URL != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.URL)
	}
	if e.underlying != nil {
		return fmt.Sprintf("%s: %v", msg, e.underlying)
	}
	return msg
}

func (e *PageError) Unwrap() error {
	return e.underlying
}

// Retryable reports whether the same fetch may succeed if repeated: transport
// failures (Code 0), 408, 429 and 5xx.
func (e *PageError) Retryable() bool {
	switch {
	case e.Code == 0:
		return true
	case e.Code == http.StatusRequestTimeout, e.Code == http.StatusTooManyRequests:
		return true
	case e.Code >= 500:
		return true
	}
	return false
}

// WriteJSON writes the error as JSON to the response.
// For base errors (no details/URL), uses pre-serialized JSON to avoid allocations.
func (e *PageError) WriteJSON(w http.ResponseWriter) {
	code := e.Code
	if code == 0 {
		code = http.StatusBadGateway
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if pre, ok := preSerialized[e]; ok {
		w.Write(pre)
		return
	}
	json.NewEncoder(w).Encode(e)
}

// Common errors
var (
	ErrNotFound = &PageError{
		Code:    http.StatusNotFound,
		Message: "Not Found",
	}

	ErrBadRequest = &PageError{
		Code:    http.StatusBadRequest,
		Message: "Bad Request",
	}

	ErrTooManyRequests = &PageError{
		Code:    http.StatusTooManyRequests,
		Message: "Too Many Requests",
	}

	ErrBadGateway = &PageError{
		Code:    http.StatusBadGateway,
		Message: "Bad Gateway",
	}

	ErrServiceUnavailable = &PageError{
		Code:    http.StatusServiceUnavailable,
		Message: "Service Unavailable",
	}

	ErrInternalServer = &PageError{
		Code:    http.StatusInternalServerError,
		Message: "Internal Server Error",
	}
)

// preSerialized holds JSON-encoded bytes for base error singletons.
var preSerialized map[*PageError][]byte

func init() {
	bases := []*PageError{
		ErrNotFound, ErrBadRequest, ErrTooManyRequests, ErrBadGateway,
		ErrServiceUnavailable, ErrInternalServer,
	}
	preSerialized = make(map[*PageError][]byte, len(bases))
	for _, e := range bases {
		b, _ := json.Marshal(e)
		b = append(b, '\n') // match json.Encoder behavior
		preSerialized[e] = b
	}
}

// New creates a new PageError
func New(code int, message string) *PageError {
	return &PageError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code int, message string) *PageError {
	return &PageError{
		Code:       code,
		Message:    message,
		underlying: err,
	}
}

// FromStatus builds the error for a non-2xx page response.
func FromStatus(code int, url string) *PageError {
	return &PageError{
		Code:    code,
		Message: http.StatusText(code),
		URL:     url,
	}
}

// WithDetails adds details to the error
func (e *PageError) WithDetails(details string) *PageError {
	return &PageError{
		Code:       e.Code,
		Message:    e.Message,
		Details:    details,
		URL:        e.URL,
		underlying: e.underlying,
	}
}

// WithURL records the URL that produced the error
func (e *PageError) WithURL(url string) *PageError {
	return &PageError{
		Code:       e.Code,
		Message:    e.Message,
		Details:    e.Details,
		URL:        url,
		underlying: e.underlying,
	}
}

// AsPageError finds the first PageError in err's chain.
func AsPageError(err error) (*PageError, bool) {
	var pe *PageError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsRetryable reports whether err is worth retrying. Errors that are not
// PageErrors are treated as transport failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if pe, ok := AsPageError(err); ok {
		return pe.Retryable()
	}
	return true
}
