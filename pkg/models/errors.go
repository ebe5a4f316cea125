package models

import "fmt"

// APIError represents a non-success response from a coordinator
// ingestion endpoint after any retries were exhausted.
type APIError struct {
	StatusCode int    // HTTP status of the final attempt
	Body       string // Response body of the final attempt
	Endpoint   string // Ingestion path that failed
	Attempts   int    // Number of attempts made
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ingest request to %s failed with status %d after %d attempt(s): %s", e.Endpoint, e.StatusCode, e.Attempts, e.Body)
}

// ValidationError reports a locally rejected job signature batch.
// No network call was attempted for the batch.
type ValidationError struct {
	JobID  string // Offending job id, if one was identified
	Reason error
}

func (e *ValidationError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("job signature %s rejected: %v", e.JobID, e.Reason)
	}
	return fmt.Sprintf("job signature batch rejected: %v", e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}
