package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for platform responses.
var (
	// ErrNotFound indicates the platform answered 404.
	ErrNotFound = errors.New("resource not found")

	// ErrUnauthorized indicates the platform rejected the credentials (401/403).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict indicates the platform answered 409.
	ErrConflict = errors.New("conflict")

	// ErrBadRequest indicates the platform rejected the request payload (400/422).
	ErrBadRequest = errors.New("bad request")

	// ErrServer indicates a 5xx answer from the platform.
	ErrServer = errors.New("platform server error")
)

// RestAPIError is returned for every non-2xx response.
type RestAPIError struct {
	// Method and URL of the failed request.
	Method string
	URL    string

	// StatusCode is the HTTP status returned by the platform.
	StatusCode int

	// ErrorCode is the platform-specific error code, if the body carried one.
	ErrorCode int

	// Message is the platform error message (errorMsg).
	Message string

	// UserMessage and DevMessage are optional details (usrMsg, devMsg).
	UserMessage string
	DevMessage  string
}

// Error implements the error interface.
func (e *RestAPIError) Error() string {
	msg := fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.StatusCode)
	if e.ErrorCode != 0 {
		msg += fmt.Sprintf(" (error code %d)", e.ErrorCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.UserMessage != "" {
		msg += ": " + e.UserMessage
	}
	return msg
}

// Unwrap maps the status code to a sentinel error for errors.Is support.
func (e *RestAPIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case e.StatusCode == http.StatusConflict:
		return ErrConflict
	case e.StatusCode == http.StatusBadRequest, e.StatusCode == http.StatusUnprocessableEntity:
		return ErrBadRequest
	case e.StatusCode >= 500:
		return ErrServer
	}
	return nil
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRestAPIError returns true if err carries a platform HTTP error.
func IsRestAPIError(err error) bool {
	var apiErr *RestAPIError
	return errors.As(err, &apiErr)
}

// errorBody is the JSON error envelope returned by the platform.
type errorBody struct {
	ErrorCode   int    `json:"errorCode"`
	ErrorMsg    string `json:"errorMsg"`
	UserMessage string `json:"usrMsg"`
	DevMessage  string `json:"devMsg"`
}
