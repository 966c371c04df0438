package domain

import (
	"errors"
	"fmt"
)

var (
	ErrTenantNotFound        = errors.New("tenant not found")
	ErrJobNotFound           = errors.New("job not found")
	ErrInvalidTransition     = errors.New("invalid job status transition")
	ErrCredentialUnavailable = errors.New("no access token for tenant")
	ErrUnknownResource       = errors.New("unknown resource")
	ErrMissingRemoteID       = errors.New("record has no remote id")
)

// RemoteFetchError is a non-recoverable response from the remote platform,
// or a transient one that outlived the retry budget.
type RemoteFetchError struct {
	StatusCode int
	URL        string
	Err        error
}

func (e *RemoteFetchError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("remote fetch %s: %v", e.URL, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("remote fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("remote fetch %s: status %d", e.URL, e.StatusCode)
}

func (e *RemoteFetchError) Unwrap() error {
	return e.Err
}
