package plex

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed API call.
type ErrorKind string

const (
	KindNetwork    ErrorKind = "network"
	KindTimeout    ErrorKind = "timeout"
	KindHTTPStatus ErrorKind = "http_status"
	KindDecode     ErrorKind = "decode"
)

// Sentinels matched by APIError.Is, one per ErrorKind.
var (
	ErrNetwork    = errors.New("plex: network error")
	ErrTimeout    = errors.New("plex: request timed out")
	ErrHTTPStatus = errors.New("plex: unexpected HTTP status")
	ErrDecode     = errors.New("plex: cannot decode response")
)

// APIError is returned for every failed call to a Plex endpoint.
// It never carries the auth token.
type APIError struct {
	Kind       ErrorKind
	Endpoint   string
	StatusCode int // set for KindHTTPStatus
	Err        error
}

func (e *APIError) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("GET %s: HTTP %d", e.Endpoint, e.StatusCode)
	default:
		if e.Err != nil {
			return fmt.Sprintf("GET %s: %s: %v", e.Endpoint, e.Kind, e.Err)
		}
		return fmt.Sprintf("GET %s: %s", e.Endpoint, e.Kind)
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the kind sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrHTTPStatus:
		return e.Kind == KindHTTPStatus
	case ErrDecode:
		return e.Kind == KindDecode
	}
	return false
}
