package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"archive origin", "https://www.e-newspaperarchives.ch", "www.e-newspaperarchives.ch"},
		{"mixed case", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "127.0.0.1:8080", "127.0.0.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestObserveFetchAndRetry(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(fetchAttemptsTotal.WithLabelValues("metrics.test", "503"))
	ObserveFetch("metrics.test", 503, 2*time.Second)
	require.Equal(t, before+1, testutil.ToFloat64(fetchAttemptsTotal.WithLabelValues("metrics.test", "503")))

	retries := testutil.ToFloat64(fetchRetriesTotal.WithLabelValues("metrics.test"))
	ObserveRetry("metrics.test", 1500*time.Millisecond)
	require.Equal(t, retries+1, testutil.ToFloat64(fetchRetriesTotal.WithLabelValues("metrics.test")))
	require.Positive(t, testutil.CollectAndCount(fetchBackoffSeconds))
}

func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://www.e-newspaperarchives.ch/?a=q", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
