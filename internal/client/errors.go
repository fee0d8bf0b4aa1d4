package client

import "fmt"

// StatusError is returned when a provider answers with a non-success
// status. Body is the provider's response body, unmodified.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d body=%q", e.StatusCode, e.Body)
}
