package openalex

import (
	"errors"
	"fmt"
)

// Sentinel errors for bibliographic lookups.
var (
	ErrNotFound     = errors.New("openalex: not found")
	ErrInvalidQuery = errors.New("openalex: query needs an ORCID or a name")
	ErrInvalidORCID = errors.New("openalex: malformed ORCID")
)

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("openalex: status %d", e.StatusCode)
	}
	return fmt.Sprintf("openalex: status %d: %s", e.StatusCode, e.Message)
}
