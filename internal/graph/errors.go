package graph

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a structured failure from the remote service. Retryability is
// decided from the status code when one is present; message matching is only
// a fallback for opaque transport failures that never produced a response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Retryable  bool
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("graph request failed, status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("graph request failed: %s", e.Message)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}
	return matchesTransientPattern(err)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Fallback classification for errors with no status code, typically raw
// net/http transport failures.
var transientPatterns = []string{
	"timeout",
	"connection reset",
	"connection refused",
	"temporary failure",
	"try again",
	"i/o timeout",
	"network is unreachable",
	"throttl",
}

func matchesTransientPattern(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
