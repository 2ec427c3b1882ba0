package progress_test

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/newsarchive-crawler/internal/progress"
)

// savedPaths prints the version path of each saved article. Lossless makes
// the hub call it from Emit itself.
type savedPaths struct{}

func (savedPaths) Lossless() bool { return true }

func (savedPaths) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		if evt.Stage == progress.StageArticleSaved {
			fmt.Println("saved", evt.Path)
		}
	}
	return nil
}

func (savedPaths) Close(context.Context) error { return nil }

// articleTally counts article outcomes from batches.
type articleTally struct {
	saved, failed int
}

func (t *articleTally) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageArticleSaved:
			t.saved++
		case progress.StageArticleError:
			t.failed++
		}
	}
	return nil
}

func (t *articleTally) Close(context.Context) error { return nil }

func ExampleHub() {
	tally := &articleTally{}
	hub := progress.NewHub(progress.Config{MaxBatchWait: time.Second}, tally, savedPaths{})

	run := progress.UUIDToBytes(uuid.MustParse("7d6f1c1e-0000-4000-8000-000000000001"))
	ts := time.Date(2024, time.May, 1, 9, 30, 0, 0, time.UTC)
	hub.Emit(progress.Event{RunID: run, TS: ts, Stage: progress.StageArticleSaved, Index: 1,
		Path: "data/processed/versions/article_1971-02-07_nzz_1a2b3c4d/article_1971-02-07_nzz_1a2b3c4d_none.json"})
	hub.Emit(progress.Event{RunID: run, TS: ts, Stage: progress.StageArticleError, Index: 2, Note: "fetch"})

	// Close flushes the pending batch to the tally.
	if err := hub.Close(context.Background()); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("saved=%d failed=%d\n", tally.saved, tally.failed)
	// Output:
	// saved data/processed/versions/article_1971-02-07_nzz_1a2b3c4d/article_1971-02-07_nzz_1a2b3c4d_none.json
	// saved=1 failed=1
}
