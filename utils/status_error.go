package utils

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBodyBytes bounds how much of an error response is kept.
const maxErrorBodyBytes = 1024

// StatusError reports an HTTP response with an unexpected status code.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("unexpected status %s from %s: %s", e.Status, e.URL, e.Body)
	}
	return fmt.Sprintf("unexpected status %s from %s", e.Status, e.URL)
}

// NewStatusError builds a StatusError from resp, reading at most 1 KiB of its
// body. The caller still owns and closes the body.
func NewStatusError(resp *http.Response) *StatusError {
	rawURL := ""
	if resp.Request != nil && resp.Request.URL != nil {
		rawURL = resp.Request.URL.Redacted()
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	return &StatusError{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}
