package search

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/newsarchive-crawler/internal/config"
	"github.com/JakeFAU/newsarchive-crawler/internal/crawler"
)

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	urls  []string
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, target string) (*goquery.Document, error) {
	f.mu.Lock()
	f.urls = append(f.urls, target)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.pages[target]
	if !ok {
		body = f.pages["*"]
	}
	return goquery.NewDocumentFromReader(strings.NewReader(body))
}

func testSite() config.SiteConfig {
	return config.SiteConfig{
		BaseURL:        "https://www.e-newspaperarchives.ch",
		ResultsPerPage: 20,
		SearchParams:   map[string]string{"a": "q", "hs": "1", "results": "1"},
	}
}

func testSelectors() config.SelectorConfig {
	return config.SelectorConfig{
		ResultItem:     "ol.searchresults > li",
		ResultLink:     ".vlistentrymaincell div > a",
		ResultInfo:     ".vlistentrymaincell > div:nth-child(2)",
		ResultsSummary: ".searchresultsheader",
		ArticleText:    "#text",
		ArticleHeaders: "h1, .byline",
	}
}

func resultItem(href, title, info string) string {
	return fmt.Sprintf(`<li><div class="vlistentrymaincell"><div><a href="%s">%s</a></div><div>%s</div></div></li>`, href, title, info)
}

func resultPage(summary string, items ...string) string {
	return `<html><body><div class="searchresultsheader">` + summary + `</div><ol class="searchresults">` +
		strings.Join(items, "") + `</ol></body></html>`
}

func TestBuildURL(t *testing.T) {
	t.Parallel()

	c, err := NewClient(&fakeFetcher{}, testSite(), testSelectors(), nil)
	require.NoError(t, err)

	raw := c.BuildURL(crawler.Query{
		Text:       "Atomkraft Gösgen",
		Newspapers: []string{"LLE", "JDG"},
		Cantons:    []string{"GE", "VD"},
		Decade:     "197",
	}, 3)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "www.e-newspaperarchives.ch", u.Host)
	q := u.Query()
	require.Equal(t, "q", q.Get("a"))
	require.Equal(t, "1", q.Get("hs"))
	require.Equal(t, "1", q.Get("results"))
	require.Equal(t, "Atomkraft Gösgen", q.Get("txq"))
	require.Equal(t, "LLE,JDG", q.Get("puq"))
	require.Equal(t, "GE,VD", q.Get("ccq"))
	require.Equal(t, "197", q.Get("deq"))
	require.Empty(t, q.Get("yeq"))
	require.Equal(t, "41", q.Get("r"))

	year := c.BuildURL(crawler.Query{Text: "x", Year: 1980}, 1)
	u, err = url.Parse(year)
	require.NoError(t, err)
	require.Equal(t, "1980", u.Query().Get("yeq"))
	require.Equal(t, "1", u.Query().Get("r"))
	require.Empty(t, u.Query().Get("puq"))
}

func TestBuildURLKeepsBasePath(t *testing.T) {
	t.Parallel()

	for _, base := range []string{"https://archive.test/digitool", "https://archive.test/digitool/"} {
		site := testSite()
		site.BaseURL = base
		c, err := NewClient(&fakeFetcher{}, site, testSelectors(), nil)
		require.NoError(t, err)

		u, err := url.Parse(c.BuildURL(crawler.Query{Text: "Atom"}, 2))
		require.NoError(t, err)
		require.Equal(t, "/digitool/", u.Path, base)
		require.Equal(t, "Atom", u.Query().Get("txq"))
		require.Equal(t, "21", u.Query().Get("r"))
	}

	c, err := NewClient(&fakeFetcher{}, testSite(), testSelectors(), nil)
	require.NoError(t, err)
	u, err := url.Parse(c.BuildURL(crawler.Query{Text: "Atom"}, 1))
	require.NoError(t, err)
	require.Equal(t, "/", u.Path)
}

func TestSearchParsesResults(t *testing.T) {
	t.Parallel()

	page := resultPage("Resultate 1 - 2 von 1'234 für «Atom»",
		resultItem("/?a=d&d=JDG19800314-01.2.3", " Centrale\n nucléaire ", "Journal de Genève 14. März 1980"),
		resultItem("https://other.example/abs", "Absolute", "Le Temps"),
		`<li><div class="vlistentrymaincell"><div>no link here</div></div></li>`,
	)
	fetcher := &fakeFetcher{pages: map[string]string{"*": page}}
	c, err := NewClient(fetcher, testSite(), testSelectors(), nil)
	require.NoError(t, err)

	got, err := c.Search(context.Background(), crawler.Query{Text: "Atom"}, 1)
	require.NoError(t, err)
	require.Equal(t, 1234, got.TotalResults)
	require.Len(t, got.Results, 2)

	first := got.Results[0]
	require.Equal(t, "Centrale nucléaire", first.Title)
	require.Equal(t, "https://www.e-newspaperarchives.ch/?a=d&d=JDG19800314-01.2.3", first.URL)
	require.Equal(t, "Journal de", first.Newspaper)
	require.Equal(t, "Genève 14. März 1980", first.RawDate)

	second := got.Results[1]
	require.Equal(t, "https://other.example/abs", second.URL)
	require.Equal(t, "Le Temps", second.Newspaper)
	require.Empty(t, second.RawDate)
}

func TestTotalFallsBackToPageCount(t *testing.T) {
	t.Parallel()

	page := resultPage("keine Zusammenfassung", resultItem("/a", "A", "X Y 1980"), resultItem("/b", "B", "X Y 1981"))
	c, err := NewClient(&fakeFetcher{pages: map[string]string{"*": page}}, testSite(), testSelectors(), nil)
	require.NoError(t, err)

	got, err := c.Search(context.Background(), crawler.Query{Text: "x"}, 1)
	require.NoError(t, err)
	require.Equal(t, 2, got.TotalResults)
}

func TestTotalToleratesDamagedUmlaut(t *testing.T) {
	t.Parallel()

	for _, summary := range []string{"1 - 20 von 47 fur x", "1 - 20 von 47 fÃ¼r x", "1 - 20 von 47 f�r x", "von 1.050 für"} {
		page := resultPage(summary, resultItem("/a", "A", "X Y 1980"))
		c, err := NewClient(&fakeFetcher{pages: map[string]string{"*": page}}, testSite(), testSelectors(), nil)
		require.NoError(t, err)
		got, err := c.Search(context.Background(), crawler.Query{Text: "x"}, 1)
		require.NoError(t, err)
		require.Contains(t, []int{47, 1050}, got.TotalResults, summary)
	}
}

func TestSearchEmptyPage(t *testing.T) {
	t.Parallel()

	c, err := NewClient(&fakeFetcher{pages: map[string]string{"*": resultPage("")}}, testSite(), testSelectors(), nil)
	require.NoError(t, err)
	got, err := c.Search(context.Background(), crawler.Query{Text: "nothing"}, 1)
	require.NoError(t, err)
	require.Empty(t, got.Results)
	require.Zero(t, got.TotalResults)
}

func TestSearchPropagatesFetchError(t *testing.T) {
	t.Parallel()

	boom := &crawler.FetchError{URL: "u", Attempts: 3, Err: errors.New("boom")}
	c, err := NewClient(&fakeFetcher{err: boom}, testSite(), testSelectors(), nil)
	require.NoError(t, err)
	_, err = c.Search(context.Background(), crawler.Query{Text: "x"}, 2)
	var fetchErr *crawler.FetchError
	require.ErrorAs(t, err, &fetchErr)
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	_, err := NewClient(nil, testSite(), testSelectors(), nil)
	require.Error(t, err)
	site := testSite()
	site.BaseURL = "not a url"
	_, err = NewClient(&fakeFetcher{}, site, testSelectors(), nil)
	require.Error(t, err)
}

func TestExtractJoinsBlocks(t *testing.T) {
	t.Parallel()

	page := `<html><body><div id="text">
<h1>Le Temps</h1><p class="byline">par X</p>
<p>Première ligne.</p>
<p>  Deuxième <b>ligne</b>  </p>
<script>var x = 1;</script>
</div></body></html>`
	e, err := NewExtractor(&fakeFetcher{pages: map[string]string{"*": page}}, testSelectors(), nil)
	require.NoError(t, err)

	text, err := e.Extract(context.Background(), "https://archive.test/a")
	require.NoError(t, err)
	require.Equal(t, "Première ligne.\n\nDeuxième\n\nligne", text)
}

func TestExtractMissingContainer(t *testing.T) {
	t.Parallel()

	e, err := NewExtractor(&fakeFetcher{pages: map[string]string{"*": `<html><body><p>x</p></body></html>`}}, testSelectors(), nil)
	require.NoError(t, err)
	_, err = e.Extract(context.Background(), "https://archive.test/a")
	require.ErrorIs(t, err, crawler.ErrContentNotFound)

	e, err = NewExtractor(&fakeFetcher{pages: map[string]string{"*": `<div id="text"><h1>only header</h1></div>`}}, testSelectors(), nil)
	require.NoError(t, err)
	_, err = e.Extract(context.Background(), "https://archive.test/a")
	require.ErrorIs(t, err, crawler.ErrContentNotFound)
}
