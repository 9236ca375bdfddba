package qaboard

import (
	"errors"
	"fmt"
)

var (
	// ErrFetchFailed wraps every page-fetch failure surfaced by a Feed.
	ErrFetchFailed = errors.New("page fetch failed")

	ErrInvalidInput       = errors.New("invalid input")
	ErrMalformedMessage   = errors.New("malformed realtime message")
	ErrUnknownMessageType = errors.New("unknown realtime message type")
)

// APIError is a non-2xx response from the REST API.
type APIError struct {
	StatusCode int    `json:"-"`
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Detail)
}
