package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/newsarchive-crawler/internal/logging"
)

// Config tunes the batched side of the Hub. Lossless sinks ignore the queue
// and batching settings.
type Config struct {
	// QueueSize bounds the events waiting for batched sinks (default 1024).
	QueueSize int
	// MaxBatchEvents flushes a batch once it holds this many events (default 256).
	MaxBatchEvents int
	// MaxBatchWait flushes a batch this long after its first event (default 100ms).
	MaxBatchWait time.Duration
	// SinkTimeout bounds every Consume call (default 10s).
	SinkTimeout time.Duration
	// BaseContext is the parent of the per-call sink contexts.
	BaseContext context.Context
	Logger      *zap.Logger
}

const (
	defaultQueueSize      = 1024
	defaultMaxBatchEvents = 256
	defaultMaxBatchWait   = 100 * time.Millisecond
	defaultSinkTimeout    = 10 * time.Second
	dropWarnInterval      = 5 * time.Second
)

// Hub routes crawl events to sinks. Lossless sinks, such as the supervisor
// signal stream, see every event synchronously and in order before Emit
// returns. All other sinks are fed in batches by a background goroutine
// from a bounded queue; when that queue is full their events are dropped
// so a slow database or scrape never stalls the crawl.
type Hub struct {
	cfg      Config
	logger   *zap.Logger
	lossless []Sink
	batched  []Sink

	// mu serializes lossless dispatch and guards closed and lastDropWarn.
	mu           sync.Mutex
	closed       bool
	lastDropWarn time.Time

	queue    chan Event
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	closeCtx context.Context

	delivered atomic.Int64
	dropped   atomic.Int64
}

// NewHub sorts sinks by their delivery guarantee and starts the batching
// goroutine.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	h := &Hub{
		cfg:    cfg,
		logger: logging.OrNop(cfg.Logger),
		queue:  make(chan Event, cfg.QueueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, sink := range sinks {
		switch {
		case sink == nil:
		case isLossless(sink):
			h.lossless = append(h.lossless, sink)
		default:
			h.batched = append(h.batched, sink)
		}
	}
	go h.run()
	return h
}

// Emit validates evt, writes it to every lossless sink and queues it for the
// batched ones. Events emitted after Close are ignored. Lossless sinks must
// not call Emit themselves.
func (h *Hub) Emit(evt Event) {
	if h == nil {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.String("stage", string(evt.Stage)), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if len(h.lossless) > 0 {
		h.consume(h.lossless, []Event{evt})
	}
	if len(h.batched) == 0 {
		return
	}
	select {
	case h.queue <- evt:
	default:
		total := h.dropped.Add(1)
		if now := time.Now(); now.Sub(h.lastDropWarn) >= dropWarnInterval {
			h.lastDropWarn = now
			h.logger.Warn("progress queue full; batched sinks miss events",
				zap.String("stage", string(evt.Stage)),
				zap.Int64("dropped_total", total),
			)
		}
	}
}

// Close stops accepting events, flushes what is queued, closes every sink
// and waits for the batching goroutine until ctx expires. Repeated calls
// only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.stopOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()
		h.closeCtx = ctx
		close(h.stop)
	})
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close progress hub: %w", ctx.Err())
	}
}

// Delivered counts events flushed to the batched sinks.
func (h *Hub) Delivered() int64 {
	if h == nil {
		return 0
	}
	return h.delivered.Load()
}

// Dropped counts events the batched sinks never saw because the queue was full.
func (h *Hub) Dropped() int64 {
	if h == nil {
		return 0
	}
	return h.dropped.Load()
}

func (h *Hub) run() {
	defer close(h.done)

	var (
		pending []Event
		timer   *time.Timer
		due     <-chan time.Time
	)
	flush := func() {
		if timer != nil {
			timer.Stop()
			timer, due = nil, nil
		}
		if len(pending) == 0 {
			return
		}
		h.consume(h.batched, pending)
		h.delivered.Add(int64(len(pending)))
		pending = nil
	}
	add := func(evt Event) {
		pending = append(pending, evt)
		switch {
		case len(pending) >= h.cfg.MaxBatchEvents:
			flush()
		case timer == nil:
			timer = time.NewTimer(h.cfg.MaxBatchWait)
			due = timer.C
		}
	}

	for {
		select {
		case evt := <-h.queue:
			add(evt)
		case <-due:
			timer, due = nil, nil
			flush()
		case <-h.stop:
			// Emit refuses new events once stop is closed, so the queue only shrinks.
			for {
				select {
				case evt := <-h.queue:
					add(evt)
				default:
					flush()
					h.closeSinks()
					return
				}
			}
		}
	}
}

// consume hands batch to every sink under its own timeout. Sink failures are
// logged and never reach the emitter.
func (h *Hub) consume(sinks []Sink, batch []Event) {
	for _, sink := range sinks {
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, batch); err != nil {
			h.logger.Warn("progress sink failed",
				zap.String("sink", fmt.Sprintf("%T", sink)),
				zap.Int("events", len(batch)),
				zap.Error(err),
			)
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range append(append([]Sink(nil), h.batched...), h.lossless...) {
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.String("sink", fmt.Sprintf("%T", sink)), zap.Error(err))
		}
	}
}

func isLossless(s Sink) bool {
	l, ok := s.(LosslessSink)
	return ok && l.Lossless()
}
