package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestHubFlushesFullBatch(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{MaxBatchEvents: 2, MaxBatchWait: time.Minute}, sink)
	defer func() { require.NoError(t, hub.Close(context.Background())) }()

	hub.Emit(sampleEvent(StageRunStart))
	hub.Emit(sampleEvent(StageScope))
	require.Eventually(t, func() bool {
		batches := sink.Batches()
		return len(batches) == 1 && len(batches[0]) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestHubFlushesPartialBatchAfterWait(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{MaxBatchEvents: 50, MaxBatchWait: 20 * time.Millisecond}, sink)
	defer func() { require.NoError(t, hub.Close(context.Background())) }()

	hub.Emit(sampleEvent(StageRunStart))
	require.Eventually(t, func() bool { return hub.Delivered() == 1 }, time.Second, 5*time.Millisecond)
	require.Len(t, sink.Batches(), 1)
}

func TestHubCloseDrainsInEmissionOrder(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{MaxBatchEvents: 3, MaxBatchWait: time.Minute}, sink)
	for i := 1; i <= 8; i++ {
		hub.Emit(articleEvent(StageArticleStart, i))
	}
	require.NoError(t, hub.Close(context.Background()))

	require.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, sink.Indexes())
	require.EqualValues(t, 8, hub.Delivered())
	require.Zero(t, hub.Dropped())
	require.True(t, sink.Closed())
}

func TestHubLosslessSinkSurvivesFullQueue(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	signals := &recordingSink{lossless: true}
	stalled := &recordingSink{gate: make(chan struct{})}
	hub := NewHub(Config{
		QueueSize:      1,
		MaxBatchEvents: 1,
		Logger:         zap.New(core),
	}, stalled, signals)

	const articles = 300
	for i := 1; i <= articles; i++ {
		hub.Emit(articleEvent(StageArticleSaved, i))
	}

	// Every event already reached the lossless sink before Emit returned.
	require.Len(t, signals.Indexes(), articles)
	require.Positive(t, hub.Dropped())
	require.Equal(t, 1, logs.FilterMessage("progress queue full; batched sinks miss events").Len())

	close(stalled.gate)
	require.NoError(t, hub.Close(context.Background()))

	want := make([]int, articles)
	for i := range want {
		want[i] = i + 1
	}
	require.Equal(t, want, signals.Indexes())
	require.EqualValues(t, articles, int64(len(stalled.Indexes()))+hub.Dropped())
	require.True(t, signals.Closed())
	require.True(t, stalled.Closed())
}

func TestHubIgnoresInvalidAndLateEvents(t *testing.T) {
	t.Parallel()

	signals := &recordingSink{lossless: true}
	batched := &recordingSink{}
	hub := NewHub(Config{MaxBatchEvents: 1}, signals, batched)

	hub.Emit(Event{Stage: StageRunStart})
	require.NoError(t, hub.Close(context.Background()))
	hub.Emit(sampleEvent(StageRunDone))

	require.Empty(t, signals.Batches())
	require.Empty(t, batched.Batches())
	require.NoError(t, hub.Close(context.Background()), "close is idempotent")
}

func TestHubLogsSinkFailures(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	failing := &recordingSink{err: errors.New("ledger unavailable")}
	healthy := &recordingSink{}
	hub := NewHub(Config{MaxBatchEvents: 1, Logger: zap.New(core)}, failing, healthy)

	hub.Emit(sampleEvent(StageRunStart))
	require.NoError(t, hub.Close(context.Background()))

	require.Len(t, healthy.Batches(), 1)
	entries := logs.FilterMessage("progress sink failed").All()
	require.Len(t, entries, 1)
	require.Equal(t, "*progress.recordingSink", entries[0].ContextMap()["sink"])
}

func TestNilHubIsInert(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Emit(sampleEvent(StageRunStart))
	require.NoError(t, hub.Close(context.Background()))
	require.Zero(t, hub.Delivered())
	require.Zero(t, hub.Dropped())
}

// recordingSink keeps every batch it sees. A non-nil gate holds Consume
// until the gate is closed.
type recordingSink struct {
	lossless bool
	gate     chan struct{}
	err      error

	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func (s *recordingSink) Lossless() bool { return s.lossless }

func (s *recordingSink) Consume(ctx context.Context, batch []Event) error {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return s.err
}

func (s *recordingSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]Event(nil), s.batches...)
}

func (s *recordingSink) Indexes() []int {
	var out []int
	for _, batch := range s.Batches() {
		for _, evt := range batch {
			out = append(out, evt.Index)
		}
	}
	return out
}

func (s *recordingSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func sampleEvent(stage Stage) Event {
	return Event{
		RunID: UUIDToBytes(uuid.New()),
		TS:    time.Now(),
		Stage: stage,
		Query: "Landsgemeinde",
	}
}

func articleEvent(stage Stage, index int) Event {
	evt := sampleEvent(stage)
	evt.Index = index
	evt.Total = 20
	evt.Path = "data/processed/versions/a/a_none.json"
	return evt
}
