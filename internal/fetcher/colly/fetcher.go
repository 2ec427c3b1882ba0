// Package collyfetcher implements a static-HTML navigation engine using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/newsarchive-crawler/internal/crawler"
)

const defaultTimeout = 30 * time.Second

// Config controls collector behavior.
type Config struct {
	Timeout time.Duration
}

// Engine implements crawler.Navigator with plain HTTP requests. Pages are
// returned as served, without running scripts.
type Engine struct {
	cfg           Config
	fp            crawler.Fingerprint
	baseCollector *colly.Collector
}

var _ crawler.Navigator = (*Engine)(nil)

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds an Engine presenting the given fingerprint.
func New(cfg Config, fp crawler.Fingerprint) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
	)
	c.WithTransport(newHTTPTransport())
	c.DisableCookies()
	c.SetRequestTimeout(cfg.Timeout)
	if fp.UserAgent != "" {
		c.UserAgent = fp.UserAgent
	}
	return &Engine{
		cfg:           cfg,
		fp:            fp,
		baseCollector: c,
	}
}

// Navigate executes a single HTTP GET. Error statuses are reported through
// Page.StatusCode rather than as errors.
func (e *Engine) Navigate(ctx context.Context, url string) (crawler.Page, error) {
	var (
		page     crawler.Page
		fetchErr error
	)
	start := time.Now()
	collector := e.baseCollector.Clone()
	collector.Context = ctx
	e.configureCollectorHooks(collector, url, start, &page, &fetchErr)

	if err := runCollector(ctx, collector, url, &fetchErr); err != nil {
		if ctx.Err() != nil {
			// The visit goroutine may still be writing page.
			return crawler.Page{URL: url}, err
		}
		page.URL = url
		page.Duration = time.Since(start)
		return page, err
	}
	return page, nil
}

// Close is a no-op; the engine holds no browser process.
func (e *Engine) Close() error {
	return nil
}

func (e *Engine) configureCollectorHooks(
	hooks collectorHooks,
	url string,
	start time.Time,
	page *crawler.Page,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		if e.fp.Locale != "" {
			r.Headers.Set("Accept-Language", e.fp.Locale)
		}
		r.Headers.Set("Accept", "text/html,application/xhtml+xml")
	})

	hooks.OnResponse(func(r *colly.Response) {
		*page = crawler.Page{
			URL:        url,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			HTML:       string(r.Body),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			page.StatusCode = r.StatusCode
		}
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
