package bridge

import "fmt"

// RequestError is a non-2xx response from a provider API. The routers
// inspect the status code to classify delivery failures.
type RequestError struct {
	Provider   Provider
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s request failed: status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s request failed: status %d: %s", e.Provider, e.StatusCode, e.Body)
}
