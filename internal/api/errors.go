package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies why a request failed.
type Kind string

const (
	KindTransport Kind = "transport"
	KindStatus    Kind = "status"
	KindDecode    Kind = "decode"
	KindEncode    Kind = "encode"
)

var errBaseURLRequired = errors.New("api base url is required")

// Error is returned by every Client request that does not complete with a
// 2xx response and a decodable body.
type Error struct {
	Kind       Kind
	Method     string
	Path       string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("%s %s: %s: %v", e.Method, e.Path, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the failure kind of err, or "" when err did not come from a
// Client.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// StatusCode returns the HTTP status of a KindStatus failure, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the remote API.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// ErrorBody is the JSON error document PostgREST returns.
type ErrorBody struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Details *string `json:"details"`
	Hint    *string `json:"hint"`
}
