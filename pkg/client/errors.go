package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// HTTPError is returned for any non-2xx response from the backend.
type HTTPError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s failed (%d)", e.Op, e.StatusCode)
}

// Detail extracts the backend's error message from a JSON body
// ({"error": ...} or {"detail": ...}), falling back to the raw body.
func (e *HTTPError) Detail() string {
	var body struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal([]byte(e.Body), &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Detail != "" {
			return body.Detail
		}
	}
	return strings.TrimSpace(e.Body)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}
