// Package headless renders archive pages in a real Chrome instance via chromedp.
package headless

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsarchive-crawler/internal/crawler"
	"github.com/JakeFAU/newsarchive-crawler/internal/logging"
	"github.com/JakeFAU/newsarchive-crawler/internal/politeness"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultScrollStep        = 400
)

const hideWebdriverJS = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

// Config controls the behavior of the headless session.
type Config struct {
	Headless          bool
	NavigationTimeout time.Duration
	ScrollPauseMin    time.Duration
	ScrollPauseMax    time.Duration
}

// Session owns one browser process for the lifetime of a crawl period.
// Every navigation runs in a fresh browser context so cookies and storage
// never leak between pages.
type Session struct {
	cfg    Config
	fp     crawler.Fingerprint
	pauser crawler.Pauser
	logger *zap.Logger

	mu            sync.Mutex
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	closed        bool
}

var _ crawler.Navigator = (*Session)(nil)

// NewSession prepares a session; the browser starts on the first Navigate.
func NewSession(cfg Config, fp crawler.Fingerprint, pauser crawler.Pauser, logger *zap.Logger) *Session {
	if pauser == nil {
		pauser = politeness.TimerPauser{}
	}
	return &Session{
		cfg:    cfg,
		fp:     fp,
		pauser: pauser,
		logger: logging.OrNop(logger),
	}
}

// Navigate loads url in an isolated browsing context, scrolls through the
// page like a reader would and returns the rendered DOM.
func (s *Session) Navigate(ctx context.Context, url string) (crawler.Page, error) {
	browserCtx, err := s.browser()
	if err != nil {
		return crawler.Page{}, err
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx, chromedp.WithNewBrowserContext())
	defer tabCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	runCtx, cancel := context.WithTimeout(tabCtx, s.navTimeout())
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(runCtx, meta.captureEvent)

	start := time.Now()
	var html, finalURL string
	err = chromedp.Run(runCtx,
		s.fingerprintAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(s.scroll),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return crawler.Page{}, fmt.Errorf("chromedp run: %w", ctx.Err())
		}
		return crawler.Page{URL: url, StatusCode: meta.observedStatus(), Duration: time.Since(start)}, fmt.Errorf("chromedp run: %w", err)
	}

	status, responseURL := meta.snapshotWithFallbacks(url, finalURL)
	return crawler.Page{
		URL:        url,
		FinalURL:   responseURL,
		StatusCode: status,
		HTML:       html,
		Duration:   time.Since(start),
	}, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.browserCancel != nil {
		s.browserCancel()
		s.browserCancel = nil
	}
	if s.allocCancel != nil {
		s.allocCancel()
		s.allocCancel = nil
	}
	s.browserCtx = nil
	return nil
}

func (s *Session) browser() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("headless session closed")
	}
	if s.browserCtx != nil {
		return s.browserCtx, nil
	}

	headless := chromedp.Flag("headless", false)
	if s.cfg.Headless {
		headless = chromedp.Flag("headless", "new")
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		headless,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if s.fp.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(s.fp.UserAgent))
	}
	if s.fp.Viewport.Width > 0 && s.fp.Viewport.Height > 0 {
		opts = append(opts, chromedp.WindowSize(s.fp.Viewport.Width, s.fp.Viewport.Height))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	s.logger.Info("browser session started",
		zap.String("user_agent", s.fp.UserAgent),
		zap.Int("viewport_width", s.fp.Viewport.Width),
		zap.Int("viewport_height", s.fp.Viewport.Height),
		zap.String("locale", s.fp.Locale),
		zap.String("timezone", s.fp.Timezone),
	)
	s.browserCtx = browserCtx
	s.browserCancel = browserCancel
	s.allocCancel = allocCancel
	return browserCtx, nil
}

func (s *Session) fingerprintAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.fp.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.fp.UserAgent).WithAcceptLanguage(s.fp.Locale).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if s.fp.Viewport.Width > 0 && s.fp.Viewport.Height > 0 {
			if err := emulation.SetDeviceMetricsOverride(int64(s.fp.Viewport.Width), int64(s.fp.Viewport.Height), 1, false).Do(ctx); err != nil {
				return fmt.Errorf("set viewport: %w", err)
			}
		}
		if s.fp.Locale != "" {
			if err := emulation.SetLocaleOverride().WithLocale(s.fp.Locale).Do(ctx); err != nil {
				return fmt.Errorf("set locale: %w", err)
			}
		}
		if s.fp.Timezone != "" {
			if err := emulation.SetTimezoneOverride(s.fp.Timezone).Do(ctx); err != nil {
				return fmt.Errorf("set timezone: %w", err)
			}
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriverJS).Do(ctx); err != nil {
			return fmt.Errorf("mask webdriver: %w", err)
		}
		return nil
	})
}

// scroll walks the page in half-viewport steps with a short pause per step.
func (s *Session) scroll(ctx context.Context) error {
	var height int
	if err := chromedp.Evaluate(`document.body ? document.body.scrollHeight : 0`, &height).Do(ctx); err != nil {
		return fmt.Errorf("measure page: %w", err)
	}
	for _, y := range scrollOffsets(height, s.fp.Viewport.Height) {
		if err := chromedp.Evaluate(fmt.Sprintf("window.scrollTo(0, %d)", y), nil).Do(ctx); err != nil {
			return fmt.Errorf("scroll to %d: %w", y, err)
		}
		if err := s.pauser.Pause(ctx, s.scrollPause()); err != nil {
			return fmt.Errorf("scroll pause: %w", err)
		}
	}
	return nil
}

func (s *Session) scrollPause() time.Duration {
	lo, hi := s.cfg.ScrollPauseMin, s.cfg.ScrollPauseMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo))) //nolint:gosec // pacing jitter
}

func (s *Session) navTimeout() time.Duration {
	if s.cfg.NavigationTimeout > 0 {
		return s.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

// scrollOffsets returns the scroll positions visited for a page of the given height.
func scrollOffsets(pageHeight, viewportHeight int) []int {
	step := viewportHeight / 2
	if step <= 0 {
		step = defaultScrollStep
	}
	var offsets []int
	for y := 0; y < pageHeight; y += step {
		offsets = append(offsets, y)
	}
	return offsets
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	m.mu.RLock()
	status, url := m.status, m.url
	m.mu.RUnlock()
	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}

// observedStatus is the document status seen so far, zero when none arrived.
func (m *responseMeta) observedStatus() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}
