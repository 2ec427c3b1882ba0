package politeness

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// robotsCache fetches robots.txt once per origin and keeps the parsed rules.
type robotsCache struct {
	client    *http.Client
	cache     sync.Map
	userAgent string
	logger    *zap.Logger
}

func newRobotsCache(client *http.Client, userAgent string, logger *zap.Logger) *robotsCache {
	return &robotsCache{
		client:    client,
		userAgent: userAgent,
		logger:    logger,
	}
}

// entry is a cached robots.txt; a nil data field means allow-all.
type entry struct {
	data *robotstxt.RobotsData
}

// group returns the rule group for the configured user agent, loading the
// origin's robots.txt on first use. A nil group allows everything.
func (r *robotsCache) group(ctx context.Context, origin string) *robotstxt.Group {
	key := strings.ToLower(origin)
	cached, ok := r.cache.Load(key)
	if !ok {
		data, err := r.fetch(ctx, key)
		if err != nil {
			r.logger.Warn("robots fetch failed; allowing access", zap.String("origin", key), zap.Error(err))
		}
		cached, _ = r.cache.LoadOrStore(key, entry{data: data})
	}
	e, ok := cached.(entry)
	if !ok || e.data == nil {
		return nil
	}
	return e.data.FindGroup(r.userAgent)
}

func (r *robotsCache) fetch(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			r.logger.Debug("Failed to close robots response body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, nil //nolint:nilnil // non-200 robots means allow-all
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	return data, nil
}

// Origin returns scheme://host for rawURL.
func Origin(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("url %q has no origin", rawURL)
	}
	return parsed.Scheme + "://" + parsed.Host, nil
}

func robotsPath(parsed *url.URL) string {
	p := parsed.EscapedPath()
	if p == "" {
		p = "/"
	}
	if parsed.RawQuery != "" {
		p += "?" + parsed.RawQuery
	}
	return p
}

func defaultHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
