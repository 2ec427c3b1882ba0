package sinks

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/JakeFAU/newsarchive-crawler/internal/progress"
)

// StdoutSink writes the line-oriented progress protocol consumed by the
// supervisor. The line formats are fixed and must not change.
type StdoutSink struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewStdoutSink writes to w, or to os.Stdout when w is nil.
func NewStdoutSink(w io.Writer) *StdoutSink {
	if w == nil {
		w = os.Stdout
	}
	return &StdoutSink{w: bufio.NewWriter(w)}
}

// Consume writes the signal lines for a batch and flushes them.
func (s *StdoutSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		for _, line := range SignalLines(evt) {
			if _, err := s.w.WriteString(line + "\n"); err != nil {
				return fmt.Errorf("write progress signal: %w", err)
			}
		}
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush progress signals: %w", err)
	}
	return nil
}

// Lossless reports true: the supervisor parses every line, so the hub must
// never drop events on the way here.
func (s *StdoutSink) Lossless() bool { return true }

// Close flushes any buffered output.
func (s *StdoutSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Flush()
}

// SignalLines renders the protocol lines for evt. Stages without a signal
// produce nothing.
func SignalLines(evt progress.Event) []string {
	switch evt.Stage {
	case progress.StageScope:
		return []string{fmt.Sprintf("SEARCH_SCOPE: total_years=%d", evt.Total)}
	case progress.StagePeriodStart:
		return []string{
			fmt.Sprintf("YEAR_PROGRESS: current_year=%d total_years=%d", evt.Index, evt.Total),
			fmt.Sprintf("Searching for period: %s", evt.Period),
		}
	case progress.StageResultsFound:
		return []string{fmt.Sprintf("Found %d total results for query %s, processing up to %d", evt.Count, evt.Query, evt.Total)}
	case progress.StageArticleStart:
		return []string{fmt.Sprintf("Processing article %d/%d", evt.Index, evt.Total)}
	case progress.StageArticleSaved:
		return []string{fmt.Sprintf("Version saved to: %s", evt.Path)}
	case progress.StageRunDone:
		return []string{fmt.Sprintf("Processing complete. %d articles processed", evt.Count)}
	default:
		return nil
	}
}
