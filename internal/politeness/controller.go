package politeness

import (
	"context"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/newsarchive-crawler/internal/config"
	"github.com/JakeFAU/newsarchive-crawler/internal/crawler"
	"github.com/JakeFAU/newsarchive-crawler/internal/logging"
)

// Config tunes the controller.
type Config struct {
	DelayMin          time.Duration
	DelayMax          time.Duration
	BackoffBase       time.Duration
	BreakProbability  float64
	BreakMin          time.Duration
	BreakMax          time.Duration
	RobotsUserAgent   string
	RespectCrawlDelay bool
	DefaultCrawlDelay time.Duration
	RobotsTimeout     time.Duration
}

// ConfigFrom maps the politeness section of the service configuration.
func ConfigFrom(cfg config.PolitenessConfig) Config {
	return Config{
		DelayMin:          cfg.DelayMin,
		DelayMax:          cfg.DelayMax,
		BackoffBase:       cfg.BackoffBase,
		BreakProbability:  cfg.BreakProbability,
		BreakMin:          cfg.BreakMin,
		BreakMax:          cfg.BreakMax,
		RobotsUserAgent:   cfg.RobotsUserAgent,
		RespectCrawlDelay: cfg.RespectCrawlDelay,
		DefaultCrawlDelay: cfg.DefaultCrawlDelay,
		RobotsTimeout:     cfg.RobotsTimeout,
	}
}

// Option customizes a Controller.
type Option func(*Controller)

// WithPauser replaces the timer-based pauser.
func WithPauser(p crawler.Pauser) Option {
	return func(c *Controller) {
		if p != nil {
			c.pauser = p
		}
	}
}

// WithRand replaces the random source.
func WithRand(r *rand.Rand) Option {
	return func(c *Controller) {
		if r != nil {
			c.rng = r
		}
	}
}

// WithHTTPClient replaces the client used to fetch robots.txt.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Controller) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// Controller is the single authority on request pacing for a crawl run.
// It is safe for concurrent use.
type Controller struct {
	cfg        Config
	pauser     crawler.Pauser
	httpClient *http.Client
	robots     *robotsCache
	logger     *zap.Logger

	mu       sync.Mutex
	rng      *rand.Rand
	limiters map[string]*rate.Limiter
}

// New builds a Controller.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Controller {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.DefaultCrawlDelay <= 0 {
		cfg.DefaultCrawlDelay = time.Second
	}
	if cfg.RobotsUserAgent == "" {
		cfg.RobotsUserAgent = "*"
	}
	c := &Controller{
		cfg:      cfg,
		pauser:   TimerPauser{},
		logger:   logging.OrNop(logger),
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)), //nolint:gosec // pacing jitter
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = defaultHTTPClient(cfg.RobotsTimeout)
	}
	c.robots = newRobotsCache(c.httpClient, cfg.RobotsUserAgent, c.logger)
	return c
}

// CheckAllowed reports whether robots.txt allows rawURL. A disallowed URL is
// logged as a warning and the caller proceeds anyway.
func (c *Controller) CheckAllowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		c.logger.Warn("cannot check robots for malformed url", zap.String("url", rawURL))
		return true
	}
	group := c.robots.group(ctx, parsed.Scheme+"://"+parsed.Host)
	if group == nil {
		return true
	}
	if !group.Test(robotsPath(parsed)) {
		c.logger.Warn("URL disallowed by robots.txt; proceeding", zap.String("url", rawURL))
		return false
	}
	return true
}

// CrawlDelay returns the origin's declared crawl delay and true, or the
// default delay and false when none is declared.
func (c *Controller) CrawlDelay(ctx context.Context, origin string) (time.Duration, bool) {
	if !c.cfg.RespectCrawlDelay {
		return c.cfg.DefaultCrawlDelay, false
	}
	group := c.robots.group(ctx, strings.TrimSuffix(origin, "/"))
	if group == nil || group.CrawlDelay <= 0 {
		return c.cfg.DefaultCrawlDelay, false
	}
	return group.CrawlDelay, true
}

// Delay pauses for a uniform duration in [minDelay, maxDelay], occasionally
// extended by a longer human-like break. It returns the duration slept.
func (c *Controller) Delay(ctx context.Context, minDelay, maxDelay time.Duration) (time.Duration, error) {
	d := c.DelayDuration(minDelay, maxDelay)
	return d, c.pauser.Pause(ctx, d)
}

// DelayDuration draws the duration Delay would sleep.
func (c *Controller) DelayDuration(minDelay, maxDelay time.Duration) time.Duration {
	if maxDelay < minDelay {
		minDelay, maxDelay = maxDelay, minDelay
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	d := minDelay + time.Duration(c.rng.Float64()*float64(maxDelay-minDelay))
	if c.cfg.BreakProbability > 0 && c.rng.Float64() < c.cfg.BreakProbability {
		span := c.cfg.BreakMax - c.cfg.BreakMin
		d += c.cfg.BreakMin + time.Duration(c.rng.Float64()*float64(max(span, 0)))
	}
	return d
}

// PaceRequest applies the delay due before a request to origin: the declared
// crawl delay when robots.txt sets one, otherwise the configured range.
func (c *Controller) PaceRequest(ctx context.Context, origin string) error {
	delay, declared := c.CrawlDelay(ctx, origin)
	if !declared {
		_, err := c.Delay(ctx, c.cfg.DelayMin, c.cfg.DelayMax)
		return err
	}
	if _, err := c.Delay(ctx, delay, delay); err != nil {
		return err
	}
	return c.WaitTurn(ctx, origin, delay)
}

// WaitTurn blocks until at least interval has passed since the previous
// request to origin.
func (c *Controller) WaitTurn(ctx context.Context, origin string, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	c.mu.Lock()
	limiter, ok := c.limiters[origin]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
		c.limiters[origin] = limiter
	}
	c.mu.Unlock()
	return limiter.Wait(ctx)
}

// BackoffDuration returns base * 2^retryCount * (0.5 + U[0,1)).
func (c *Controller) BackoffDuration(retryCount int) time.Duration {
	c.mu.Lock()
	jitter := 0.5 + c.rng.Float64()
	c.mu.Unlock()
	return time.Duration(float64(c.cfg.BackoffBase) * math.Pow(2, float64(retryCount)) * jitter)
}

// Pause sleeps through the controller's pauser.
func (c *Controller) Pause(ctx context.Context, d time.Duration) error {
	return c.pauser.Pause(ctx, d)
}
