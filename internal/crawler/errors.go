package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrContentNotFound marks an article page without the text container.
	ErrContentNotFound = errors.New("article content not found")
	// ErrStorage wraps failures writing the archive tree.
	ErrStorage = errors.New("storage failure")
	// ErrPlanning marks an invalid crawl task.
	ErrPlanning = errors.New("invalid crawl plan")
	// ErrCorrection wraps text corrector failures.
	ErrCorrection = errors.New("correction failed")
)

// StatusError reports an HTTP error status returned by a navigation.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// FetchError is returned once a page could not be fetched within the retry budget.
type FetchError struct {
	URL        string
	Attempts   int
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
