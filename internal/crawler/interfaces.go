package crawler

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Navigator loads one URL once and reports what came back.
type Navigator interface {
	Navigate(ctx context.Context, url string) (Page, error)
	Close() error
}

// PageFetcher returns a parsed document for a URL, retrying as configured.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*goquery.Document, error)
}

// Pauser suspends the caller for a duration unless ctx ends first.
type Pauser interface {
	Pause(ctx context.Context, d time.Duration) error
}

// Hasher computes digests for article identity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
