package sinks

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/newsarchive-crawler/internal/logging"
	"github.com/JakeFAU/newsarchive-crawler/internal/progress"
	"github.com/JakeFAU/newsarchive-crawler/internal/store"
)

// LedgerSink records run starts and completions in a store.RunRepository.
// Article errors are tallied in memory until the run completes.
type LedgerSink struct {
	repo   store.RunRepository
	logger *zap.Logger

	mu     sync.Mutex
	errors map[[16]byte]int64
}

// NewLedgerSink constructs a LedgerSink for the provided repository.
func NewLedgerSink(repo store.RunRepository, logger *zap.Logger) *LedgerSink {
	return &LedgerSink{
		repo:   repo,
		logger: logging.OrNop(logger),
		errors: make(map[[16]byte]int64),
	}
}

// Consume forwards run boundaries to the repository. It respects ctx
// deadlines and returns repository errors to the hub.
func (s *LedgerSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.repo.StartRun(ctx, evt.RunUUID(), evt.Query, evt.TS); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case progress.StageArticleError:
			s.mu.Lock()
			s.errors[evt.RunID]++
			s.mu.Unlock()
		case progress.StageRunDone:
			if err := s.complete(ctx, evt); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *LedgerSink) complete(ctx context.Context, evt progress.Event) error {
	s.mu.Lock()
	errCount := s.errors[evt.RunID]
	delete(s.errors, evt.RunID)
	s.mu.Unlock()

	state := store.RunState(evt.State)
	if state == "" {
		state = store.RunCompleted
	}
	var note *string
	if evt.Note != "" {
		note = &evt.Note
	}
	c := store.Completion{
		FinishedAt:    evt.TS,
		State:         state,
		ArticlesSaved: int64(evt.Count),
		Errors:        errCount,
		Retries:       int64(evt.Retries),
		Note:          note,
	}
	if err := s.repo.CompleteRun(ctx, evt.RunUUID(), c); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	s.logger.Debug("run recorded in ledger", zap.String("run_id", evt.RunUUID().String()), zap.String("state", string(state)))
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LedgerSink) Close(context.Context) error {
	return nil
}
