// Package search queries the newspaper archive and extracts article text
// from the pages it links to.
package search

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsarchive-crawler/internal/config"
	"github.com/JakeFAU/newsarchive-crawler/internal/crawler"
	"github.com/JakeFAU/newsarchive-crawler/internal/logging"
)

// Counts like "1 - 20 von 1'234 für ..."; the umlaut may arrive damaged.
var totalPattern = regexp.MustCompile(`von\s+([\d'’.,\s\x{00a0}\x{202f}]*\d)[\s\x{00a0}]+f(?:ü|u|Ã¼|\x{fffd})r`)

var digitsOnly = strings.NewReplacer("'", "", "’", "", ".", "", ",", "", " ", "", "\u00a0", "", "\u202f", "")

// Client builds archive search URLs and parses result pages.
type Client struct {
	fetcher   crawler.PageFetcher
	base      *url.URL
	perPage   int
	params    map[string]string
	selectors config.SelectorConfig
	logger    *zap.Logger
}

// NewClient builds a Client that fetches result pages through fetcher.
func NewClient(fetcher crawler.PageFetcher, site config.SiteConfig, selectors config.SelectorConfig, logger *zap.Logger) (*Client, error) {
	if fetcher == nil {
		return nil, errors.New("search: fetcher is required")
	}
	base, err := url.Parse(strings.TrimSuffix(site.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("search: invalid base url %q", site.BaseURL)
	}
	perPage := site.ResultsPerPage
	if perPage <= 0 {
		perPage = 20
	}
	return &Client{
		fetcher:   fetcher,
		base:      base,
		perPage:   perPage,
		params:    site.SearchParams,
		selectors: selectors,
		logger:    logging.OrNop(logger),
	}, nil
}

// PageSize is the number of results requested per page.
func (c *Client) PageSize() int {
	return c.perPage
}

// BuildURL returns the search URL for query at the 1-based pageIndex.
func (c *Client) BuildURL(query crawler.Query, pageIndex int) string {
	if pageIndex < 1 {
		pageIndex = 1
	}
	values := url.Values{}
	for k, v := range c.params {
		values.Set(k, v)
	}
	values.Set("txq", query.Text)
	if len(query.Newspapers) > 0 {
		values.Set("puq", strings.Join(query.Newspapers, ","))
	}
	if len(query.Cantons) > 0 {
		values.Set("ccq", strings.Join(query.Cantons, ","))
	}
	if query.Decade != "" {
		values.Set("deq", query.Decade)
	}
	if query.Year > 0 {
		values.Set("yeq", strconv.Itoa(query.Year))
	}
	values.Set("r", strconv.Itoa((pageIndex-1)*c.perPage+1))

	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/"
	u.RawPath = ""
	u.RawQuery = values.Encode()
	return u.String()
}

// Search fetches and parses one result page.
func (c *Client) Search(ctx context.Context, query crawler.Query, pageIndex int) (crawler.SearchPage, error) {
	target := c.BuildURL(query, pageIndex)
	doc, err := c.fetcher.Fetch(ctx, target)
	if err != nil {
		return crawler.SearchPage{}, fmt.Errorf("search page %d: %w", pageIndex, err)
	}
	page := c.Parse(doc)
	c.logger.Debug("parsed search page",
		zap.String("url", target),
		zap.Int("page", pageIndex),
		zap.Int("results", len(page.Results)),
		zap.Int("total", page.TotalResults),
	)
	return page, nil
}

// Parse extracts results and the reported total from a result page.
func (c *Client) Parse(doc *goquery.Document) crawler.SearchPage {
	var results []crawler.SearchResult
	doc.Find(c.selectors.ResultItem).Each(func(_ int, item *goquery.Selection) {
		if result, ok := c.parseItem(item); ok {
			results = append(results, result)
		}
	})
	return crawler.SearchPage{
		Results:      results,
		TotalResults: c.parseTotal(doc, len(results)),
	}
}

func (c *Client) parseItem(item *goquery.Selection) (crawler.SearchResult, bool) {
	link := item.Find(c.selectors.ResultLink).First()
	href, ok := link.Attr("href")
	if link.Length() == 0 || !ok || strings.TrimSpace(href) == "" {
		return crawler.SearchResult{}, false
	}

	title := ""
	if c.selectors.ResultTitle != "" {
		title = collapse(link.Find(c.selectors.ResultTitle).First().Text())
	}
	if title == "" {
		title = collapse(link.Text())
	}

	var newspaper, rawDate string
	if c.selectors.ResultInfo != "" {
		newspaper, rawDate = splitInfo(item.Find(c.selectors.ResultInfo).First().Text())
	}

	return crawler.SearchResult{
		Title:     title,
		URL:       c.resolve(href),
		Newspaper: newspaper,
		RawDate:   rawDate,
	}, true
}

func (c *Client) parseTotal(doc *goquery.Document, fallback int) int {
	text := ""
	if c.selectors.ResultsSummary != "" {
		text = doc.Find(c.selectors.ResultsSummary).Text()
	}
	if strings.TrimSpace(text) == "" {
		text = doc.Find("body").Text()
	}
	m := totalPattern.FindStringSubmatch(text)
	if m == nil {
		return fallback
	}
	total, err := strconv.Atoi(digitsOnly.Replace(m[1]))
	if err != nil {
		return fallback
	}
	return total
}

func (c *Client) resolve(href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return c.base.ResolveReference(ref).String()
}

// splitInfo separates "Le Temps 14. März 1980" into the newspaper (first two
// tokens) and the remaining date text.
func splitInfo(info string) (string, string) {
	fields := strings.Fields(info)
	switch len(fields) {
	case 0:
		return "", ""
	case 1, 2:
		return strings.Join(fields, " "), ""
	default:
		return strings.Join(fields[:2], " "), strings.Join(fields[2:], " ")
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
