package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/newsarchive-crawler/internal/crawler"
)

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback)   { s.onRequest = cb }
func (s *stubHooks) OnResponse(cb colly.ResponseCallback) { s.onResponse = cb }
func (s *stubHooks) OnError(cb colly.ErrorCallback)       { s.onError = cb }

var testFingerprint = crawler.Fingerprint{
	UserAgent: "Mozilla/5.0 (X11; Linux x86_64) test",
	Locale:    "fr-FR",
}

func TestNavigateReturnsPage(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		agents  []string
		langs   []string
		cookies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agents = append(agents, r.UserAgent())
		langs = append(langs, r.Header.Get("Accept-Language"))
		cookies = append(cookies, r.Header.Get("Cookie"))
		mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc"})
		_, _ = w.Write([]byte(`<html><body><div id="text">Bonjour</div></body></html>`))
	}))
	defer srv.Close()

	e := New(Config{Timeout: 5 * time.Second}, testFingerprint)
	for range 2 {
		page, err := e.Navigate(context.Background(), srv.URL+"/doc")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, page.StatusCode)
		require.Contains(t, page.HTML, "Bonjour")
		require.Equal(t, srv.URL+"/doc", page.FinalURL)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{testFingerprint.UserAgent, testFingerprint.UserAgent}, agents)
	require.Equal(t, []string{"fr-FR", "fr-FR"}, langs)
	require.Equal(t, []string{"", ""}, cookies, "cookies must not carry over between navigations")
	require.NoError(t, e.Close())
}

func TestNavigateReportsErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("busy"))
	}))
	defer srv.Close()

	e := New(Config{}, testFingerprint)
	page, err := e.Navigate(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, page.StatusCode)
}

func TestNavigateTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	e := New(Config{Timeout: time.Second}, testFingerprint)
	page, err := e.Navigate(context.Background(), url)
	require.Error(t, err)
	require.Equal(t, url, page.URL)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	e := New(Config{}, testFingerprint)
	var page crawler.Page
	var fetchErr error
	hooks := &stubHooks{}
	e.configureCollectorHooks(hooks, "https://archive.test/a", time.Now(), &page, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	req := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(req)
	require.Equal(t, "fr-FR", req.Headers.Get("Accept-Language"))

	hooks.onError(&colly.Response{StatusCode: 502}, errors.New("bad gateway"))
	require.Equal(t, 502, page.StatusCode)
	require.EqualError(t, fetchErr, "bad gateway")
}
