package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/newsarchive-crawler/internal/config"
	"github.com/JakeFAU/newsarchive-crawler/internal/crawler"
	"github.com/JakeFAU/newsarchive-crawler/internal/fetcher"
	collyfetcher "github.com/JakeFAU/newsarchive-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/newsarchive-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/newsarchive-crawler/internal/logging"
	"github.com/JakeFAU/newsarchive-crawler/internal/politeness"
	"github.com/JakeFAU/newsarchive-crawler/internal/search"
)

// Engine names accepted by fetcher.engine.
const (
	EngineChromedp = "chromedp"
	EngineColly    = "colly"
)

// BrowserOpener builds a fetcher, search client and extractor around a
// freshly fingerprinted navigation engine for every period.
type BrowserOpener struct {
	cfg        config.Config
	politeness *politeness.Controller
	logger     *zap.Logger
}

var _ SessionOpener = (*BrowserOpener)(nil)

// NewBrowserOpener shares one politeness controller across all sessions.
func NewBrowserOpener(cfg config.Config, ctrl *politeness.Controller, logger *zap.Logger) (*BrowserOpener, error) {
	if ctrl == nil {
		return nil, errors.New("orchestrator: politeness controller is required")
	}
	return &BrowserOpener{cfg: cfg, politeness: ctrl, logger: logging.OrNop(logger)}, nil
}

// Open starts a new session with a random fingerprint.
func (b *BrowserOpener) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fp := b.politeness.RandomFingerprint()
	var engine crawler.Navigator
	switch b.cfg.Fetcher.Engine {
	case EngineColly:
		engine = collyfetcher.New(collyfetcher.Config{Timeout: b.cfg.Fetcher.NavigationTimeout}, fp)
	case EngineChromedp, "":
		engine = headless.NewSession(headless.Config{
			Headless:          b.cfg.Fetcher.Headless,
			NavigationTimeout: b.cfg.Fetcher.NavigationTimeout,
			ScrollPauseMin:    b.cfg.Fetcher.ScrollPauseMin,
			ScrollPauseMax:    b.cfg.Fetcher.ScrollPauseMax,
		}, fp, b.politeness, b.logger)
	default:
		return nil, fmt.Errorf("unknown fetcher engine %q", b.cfg.Fetcher.Engine)
	}

	f, err := fetcher.New(engine, b.politeness, fetcher.Config{MaxRetries: b.cfg.Fetcher.MaxRetries}, b.logger)
	if err != nil {
		_ = engine.Close()
		return nil, err
	}
	client, err := search.NewClient(f, b.cfg.Site, b.cfg.Selectors, b.logger)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	extractor, err := search.NewExtractor(f, b.cfg.Selectors, b.logger)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	b.logger.Debug("browsing session opened",
		zap.String("engine", b.cfg.Fetcher.Engine),
		zap.String("user_agent", fp.UserAgent),
	)
	return &browserSession{fetcher: f, client: client, extractor: extractor}, nil
}

type browserSession struct {
	fetcher   *fetcher.Fetcher
	client    *search.Client
	extractor *search.Extractor
}

func (s *browserSession) Search(ctx context.Context, q crawler.Query, pageIndex int) (crawler.SearchPage, error) {
	return s.client.Search(ctx, q, pageIndex)
}

func (s *browserSession) Extract(ctx context.Context, url string) (string, error) {
	return s.extractor.Extract(ctx, url)
}

func (s *browserSession) Stats() crawler.FetchStats {
	return s.fetcher.Stats()
}

func (s *browserSession) Close() error {
	return s.fetcher.Close()
}
