package orchestrator

import (
	"fmt"
	"strconv"

	"github.com/JakeFAU/newsarchive-crawler/internal/crawler"
)

// Mode selects how a year range is split into periods.
type Mode string

// Supported period modes.
const (
	ModeYear   Mode = "year"
	ModeDecade Mode = "decade"
)

const (
	minYear = 1000
	maxYear = 9999

	allTimeLabel = "all-time"
)

// Task is one crawl request.
type Task struct {
	Query      string
	Newspapers []string
	Cantons    []string
	// MaxArticles caps the articles processed per period; zero uses the configured default.
	MaxArticles int
	// StartFrom is the 0-based number of leading results skipped in the first period.
	StartFrom int
	StartYear int
	EndYear   int
	Mode      Mode
	AllTime   bool
	// Correction names the text corrector; empty means "none".
	Correction string
	Language   string
}

// Period is one planned search window.
type Period struct {
	Label string
	// Year is the exact-year filter; zero when unset.
	Year int
	// Decade is the decade prefix filter, e.g. "197"; empty when unset.
	Decade string
}

// Plan validates t and returns its periods in execution order.
func Plan(t Task) ([]Period, error) {
	if t.Query == "" {
		return nil, planErr("query is required")
	}
	if t.MaxArticles < 0 {
		return nil, planErr("max articles must be >= 0, got %d", t.MaxArticles)
	}
	if t.StartFrom < 0 {
		return nil, planErr("start offset must be >= 0, got %d", t.StartFrom)
	}
	hasStart, hasEnd := t.StartYear != 0, t.EndYear != 0
	if hasStart != hasEnd {
		return nil, planErr("start and end year must be given together")
	}
	if !hasStart {
		return []Period{{Label: allTimeLabel}}, nil
	}
	if t.AllTime {
		return nil, planErr("all-time search cannot be combined with a year range")
	}
	for _, y := range []int{t.StartYear, t.EndYear} {
		if y < minYear || y > maxYear {
			return nil, planErr("year %d outside %d..%d", y, minYear, maxYear)
		}
	}
	if t.StartYear > t.EndYear {
		return nil, planErr("start year %d is after end year %d", t.StartYear, t.EndYear)
	}

	switch t.Mode {
	case ModeYear, "":
		periods := make([]Period, 0, t.EndYear-t.StartYear+1)
		for y := t.StartYear; y <= t.EndYear; y++ {
			periods = append(periods, Period{Label: fmt.Sprintf("%d-%d", y, y), Year: y})
		}
		return periods, nil
	case ModeDecade:
		var periods []Period
		for d := t.StartYear / 10; d <= t.EndYear/10; d++ {
			periods = append(periods, Period{
				Label:  fmt.Sprintf("%d-%d", d*10, d*10+9),
				Decade: strconv.Itoa(d),
			})
		}
		return periods, nil
	default:
		return nil, planErr("unknown mode %q", t.Mode)
	}
}

// Query returns the search query for p.
func (p Period) Query(t Task) crawler.Query {
	return crawler.Query{
		Text:       t.Query,
		Newspapers: t.Newspapers,
		Cantons:    t.Cantons,
		Decade:     p.Decade,
		Year:       p.Year,
	}
}

func planErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", crawler.ErrPlanning, fmt.Sprintf(format, args...))
}
