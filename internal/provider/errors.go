package provider

import "fmt"

// SessionAcquisitionError is returned when the cookie handshake cannot complete.
type SessionAcquisitionError struct {
	Step string
	Err  error
}

func (e *SessionAcquisitionError) Error() string {
	return fmt.Sprintf("session acquisition failed at %s: %v", e.Step, e.Err)
}

func (e *SessionAcquisitionError) Unwrap() error { return e.Err }

// FetchError is returned when the data endpoint keeps failing after retries.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SchemaValidationError is returned when a raw payload misses required structure
// or has nothing left after filtering.
type SchemaValidationError struct {
	Reason string
}

func (e *SchemaValidationError) Error() string {
	return "invalid option chain payload: " + e.Reason
}

// PersistenceError wraps a store failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// HTTPStatusError is a non-2xx response from the origin.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GET %s -> %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("GET %s -> %d: %s", e.URL, e.StatusCode, e.Body)
}
