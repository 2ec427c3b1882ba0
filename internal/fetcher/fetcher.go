// Package fetcher turns a navigation engine into a polite, retrying
// PageFetcher that hands back parsed documents.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsarchive-crawler/internal/crawler"
	"github.com/JakeFAU/newsarchive-crawler/internal/logging"
	"github.com/JakeFAU/newsarchive-crawler/internal/metrics"
	"github.com/JakeFAU/newsarchive-crawler/internal/politeness"
)

const defaultMaxRetries = 3

// Pacer is the slice of the politeness controller the fetcher relies on.
type Pacer interface {
	CheckAllowed(ctx context.Context, rawURL string) bool
	PaceRequest(ctx context.Context, origin string) error
	BackoffDuration(retryCount int) time.Duration
	Pause(ctx context.Context, d time.Duration) error
}

// Config controls the retry budget.
type Config struct {
	MaxRetries int
}

// Fetcher implements crawler.PageFetcher on top of a crawler.Navigator.
type Fetcher struct {
	engine crawler.Navigator
	pacer  Pacer
	cfg    Config
	logger *zap.Logger

	mu    sync.Mutex
	stats crawler.FetchStats
}

var _ crawler.PageFetcher = (*Fetcher)(nil)

// New wraps engine with politeness and retries.
func New(engine crawler.Navigator, pacer Pacer, cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if engine == nil {
		return nil, errors.New("fetcher: engine is required")
	}
	if pacer == nil {
		return nil, errors.New("fetcher: pacer is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	return &Fetcher{
		engine: engine,
		pacer:  pacer,
		cfg:    cfg,
		logger: logging.OrNop(logger),
	}, nil
}

// Fetch navigates to url, retrying transport failures and error statuses
// with exponential backoff, and returns the parsed document.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	origin, err := politeness.Origin(url)
	if err != nil {
		return nil, &crawler.FetchError{URL: url, Err: err}
	}
	f.pacer.CheckAllowed(ctx, url)
	if err := f.pacer.PaceRequest(ctx, origin); err != nil {
		return nil, &crawler.FetchError{URL: url, Err: err}
	}

	site := metrics.SanitizeSite(origin)
	retryCount := 0
	lastStatus := 0
	for {
		f.record(func(s *crawler.FetchStats) { s.Attempts++ })
		page, navErr := f.engine.Navigate(ctx, url)
		if navErr == nil && page.StatusCode >= http.StatusBadRequest {
			navErr = &crawler.StatusError{StatusCode: page.StatusCode}
		}
		if navErr == nil {
			metrics.ObserveFetch(site, page.StatusCode, page.Duration)
			doc, parseErr := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
			if parseErr != nil {
				return nil, &crawler.FetchError{URL: url, Attempts: retryCount + 1, StatusCode: page.StatusCode, Err: fmt.Errorf("parse html: %w", parseErr)}
			}
			return doc, nil
		}

		lastStatus = page.StatusCode
		metrics.ObserveFetch(site, page.StatusCode, page.Duration)
		retryCount++
		if ctx.Err() != nil || retryCount >= f.cfg.MaxRetries {
			f.record(func(s *crawler.FetchStats) { s.Failures++ })
			f.logger.Warn("fetch failed",
				zap.String("url", url),
				zap.Int("attempts", retryCount),
				zap.Error(navErr),
			)
			return nil, &crawler.FetchError{URL: url, Attempts: retryCount, StatusCode: lastStatus, Err: navErr}
		}

		backoff := f.pacer.BackoffDuration(retryCount)
		f.record(func(s *crawler.FetchStats) { s.Retries++ })
		metrics.ObserveRetry(site, backoff)
		f.logger.Info("retrying fetch",
			zap.String("url", url),
			zap.Int("retry", retryCount),
			zap.Duration("backoff", backoff),
			zap.Error(navErr),
		)
		if err := f.pacer.Pause(ctx, backoff); err != nil {
			f.record(func(s *crawler.FetchStats) { s.Failures++ })
			return nil, &crawler.FetchError{URL: url, Attempts: retryCount, StatusCode: lastStatus, Err: err}
		}
	}
}

// Stats returns the attempt counters accumulated so far.
func (f *Fetcher) Stats() crawler.FetchStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

// Close releases the engine.
func (f *Fetcher) Close() error {
	return f.engine.Close()
}

func (f *Fetcher) record(update func(*crawler.FetchStats)) {
	f.mu.Lock()
	update(&f.stats)
	f.mu.Unlock()
}
