package crawler

import "time"

// Query describes one archive search request before pagination.
type Query struct {
	Text       string
	Newspapers []string
	Cantons    []string
	// Decade is the decade prefix filter, e.g. "197" for the 1970s.
	Decade string
	// Year is an exact year filter; zero means unset.
	Year int
}

// SearchResult is one entry of an archive result page.
type SearchResult struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Newspaper string `json:"newspaper"`
	RawDate   string `json:"date"`
}

// SearchPage is a parsed result page plus the archive-reported total.
type SearchPage struct {
	Results      []SearchResult
	TotalResults int
}

// Page is the raw outcome of a single navigation.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	HTML       string
	Duration   time.Duration
}

// Viewport is a browser window size in CSS pixels.
type Viewport struct {
	Width  int
	Height int
}

// Fingerprint is the browser identity presented for one fetcher session.
type Fingerprint struct {
	UserAgent string
	Viewport  Viewport
	Locale    string
	Timezone  string
}

// FetchStats counts navigation attempts made by a fetcher session.
type FetchStats struct {
	Attempts int
	Retries  int
	Failures int
}
