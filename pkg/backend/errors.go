package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized means the backend rejected the credentials or token
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound means the requested record does not exist
	ErrNotFound = errors.New("not found")
)

// APIError is a non-2xx backend response
type APIError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend %s: %d %s", e.Operation, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("backend %s: %d: %s", e.Operation, e.StatusCode, e.Message)
}

// Unwrap maps 401 and 404 to the package sentinels
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

// errorMessage extracts a readable message from an error body. JSON bodies
// carrying error, detail or message are unpacked; anything else is used as
// text.
func errorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		for _, msg := range []string{payload.Error, payload.Detail, payload.Message} {
			if msg != "" {
				return msg
			}
		}
	}
	return strings.TrimSpace(string(body))
}
