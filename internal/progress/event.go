package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart     Stage = "RUN_START"
	StageScope        Stage = "SCOPE"
	StagePeriodStart  Stage = "PERIOD_START"
	StageResultsFound Stage = "RESULTS_FOUND"
	StageArticleStart Stage = "ARTICLE_START"
	StageArticleSaved Stage = "ARTICLE_SAVED"
	StageArticleError Stage = "ARTICLE_ERROR"
	StagePeriodDone   Stage = "PERIOD_DONE"
	StageRunDone      Stage = "RUN_DONE"
)

// Event captures a single milestone of a crawl run.
type Event struct {
	// RunID identifies the crawl run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	Stage Stage
	// Query is the search text of the run.
	Query string
	// Period is the label of the current period, e.g. "1970-1979".
	Period string
	// Index is the 1-based position of the period or article.
	Index int
	// Total is the number of periods, or the article limit of the period.
	Total int
	// Count carries result totals and processed article counts.
	Count int
	// Retries is the fetch retry count reported with RUN_DONE.
	Retries int
	// Path is the version file written for ARTICLE_SAVED.
	Path string
	// State is the final run state reported with RUN_DONE.
	State string
	Dur   time.Duration
	// Note carries low-volume context such as an error kind or message.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageScope, StageRunDone:
	case StagePeriodStart, StagePeriodDone:
		if e.Period == "" {
			return errors.New("period events require a period label")
		}
	case StageResultsFound:
		if e.Count < 0 || e.Total < 0 {
			return errors.New("results found requires non-negative counts")
		}
	case StageArticleStart, StageArticleSaved, StageArticleError:
		if e.Index < 1 {
			return errors.New("article events require a 1-based index")
		}
		if e.Stage == StageArticleSaved && e.Path == "" {
			return errors.New("article saved requires a path")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
