package archive

import "time"

// ArticleRecord is the persisted form of one article version.
type ArticleRecord struct {
	ID               string    `json:"id"`
	BaseID           string    `json:"base_id"`
	Title            string    `json:"title"`
	Newspaper        string    `json:"newspaper"`
	Date             string    `json:"date"`
	Topics           []string  `json:"topics"`
	URL              string    `json:"url"`
	RawPath          string    `json:"raw_path"`
	Content          string    `json:"content,omitempty"`
	OriginalContent  string    `json:"original_content"`
	SpellCorrected   bool      `json:"spell_corrected"`
	CorrectionMethod string    `json:"correction_method"`
	Language         string    `json:"language"`
	WordCount        int       `json:"word_count"`
	Canton           string    `json:"canton,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	Versions         []string  `json:"versions"`
}

// Correction is the outcome of running a text corrector over the raw text.
type Correction struct {
	Text      string
	Method    string
	Language  string
	Corrected bool
}

// SaveRequest carries everything Save needs for one article.
type SaveRequest struct {
	RawText    string
	URL        string
	SearchTerm string
	Title      string
	Newspaper  string
	RawDate    string
	Canton     string
	Correction Correction
}

// SaveResult reports what Save wrote.
type SaveResult struct {
	// Record is the saved record with Content cleared.
	Record         ArticleRecord
	VersionPath    string
	CanonicalPath  string
	RawCreated     bool
	VersionCreated bool
}

// VersionInfo summarizes one version file.
type VersionInfo struct {
	ID               string    `json:"id"`
	CorrectionMethod string    `json:"correction_method"`
	Language         string    `json:"language"`
	WordCount        int       `json:"word_count"`
	CreatedAt        time.Time `json:"created_at"`
	Path             string    `json:"path"`
}
