package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/JakeFAU/newsarchive-crawler/internal/config"
	"github.com/JakeFAU/newsarchive-crawler/internal/crawler"
	"github.com/JakeFAU/newsarchive-crawler/internal/logging"
)

// Extractor pulls the OCR text body out of an article page.
type Extractor struct {
	fetcher   crawler.PageFetcher
	selectors config.SelectorConfig
	logger    *zap.Logger
}

// NewExtractor builds an Extractor.
func NewExtractor(fetcher crawler.PageFetcher, selectors config.SelectorConfig, logger *zap.Logger) (*Extractor, error) {
	if fetcher == nil {
		return nil, errors.New("search: fetcher is required")
	}
	if selectors.ArticleText == "" {
		return nil, errors.New("search: article text selector is required")
	}
	return &Extractor{
		fetcher:   fetcher,
		selectors: selectors,
		logger:    logging.OrNop(logger),
	}, nil
}

// Extract fetches url and returns its article text. A page without the
// content container yields crawler.ErrContentNotFound.
func (e *Extractor) Extract(ctx context.Context, url string) (string, error) {
	doc, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", url, err)
	}
	text, err := e.ExtractDocument(doc)
	if err != nil {
		e.logger.Warn("article content missing", zap.String("url", url), zap.Error(err))
		return "", fmt.Errorf("extract %s: %w", url, err)
	}
	return text, nil
}

// ExtractDocument applies the content and header selectors to doc.
func (e *Extractor) ExtractDocument(doc *goquery.Document) (string, error) {
	container := doc.Find(e.selectors.ArticleText).First()
	if container.Length() == 0 {
		return "", crawler.ErrContentNotFound
	}
	if e.selectors.ArticleHeaders != "" {
		container.Find(e.selectors.ArticleHeaders).Remove()
	}
	text := blockText(container)
	if text == "" {
		return "", crawler.ErrContentNotFound
	}
	return text, nil
}

// blockText joins every non-empty text node under sel with blank lines.
func blockText(sel *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, "\n\n")
}
