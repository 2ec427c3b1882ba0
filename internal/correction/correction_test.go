package correction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/newsarchive-crawler/internal/config"
	"github.com/JakeFAU/newsarchive-crawler/internal/crawler"
)

type stubCorrector struct {
	name string
	out  string
	err  error
}

func (s stubCorrector) Name() string { return s.name }

func (s stubCorrector) Correct(context.Context, string, string) (string, error) {
	return s.out, s.err
}

func TestApply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		corrector TextCorrector
		want      Result
		warns     int
	}{
		{name: "nil corrector", corrector: nil, want: Result{Text: "rawr", Method: "none", Language: "de"}},
		{name: "none", corrector: None{}, want: Result{Text: "rawr", Method: "none", Language: "de"}},
		{
			name:      "success",
			corrector: stubCorrector{name: "mistral", out: "raw"},
			want:      Result{Text: "raw", Method: "mistral", Language: "de", Corrected: true},
		},
		{
			name:      "unchanged output is not a correction",
			corrector: stubCorrector{name: "mistral", out: "rawr"},
			want:      Result{Text: "rawr", Method: "mistral", Language: "de"},
		},
		{
			name:      "failure keeps original",
			corrector: stubCorrector{name: "mistral", err: errors.New("boom")},
			want:      Result{Text: "rawr", Method: "none", Language: "de"},
			warns:     1,
		},
		{
			name:      "empty output counts as failure",
			corrector: stubCorrector{name: "mistral", out: "  "},
			want:      Result{Text: "rawr", Method: "none", Language: "de"},
			warns:     1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			core, logs := observer.New(zapcore.WarnLevel)
			got := Apply(context.Background(), tt.corrector, "rawr", "de", zap.New(core))
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.warns, logs.Len())
		})
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	c, err := r.Get("")
	require.NoError(t, err)
	require.Equal(t, MethodNone, c.Name())

	_, err = r.Get("symspell")
	require.ErrorIs(t, err, crawler.ErrCorrection)
	require.Contains(t, err.Error(), "none")

	r.Register(stubCorrector{name: "symspell"})
	require.Equal(t, []string{"none", "symspell"}, r.Names())
}

func TestFromConfigRegistersMistralWithKey(t *testing.T) {
	t.Parallel()

	without := FromConfig(config.CorrectionConfig{}, nil)
	require.Equal(t, []string{"none"}, without.Names())

	with := FromConfig(config.CorrectionConfig{Mistral: config.MistralConfig{APIKey: "k"}}, nil)
	require.Equal(t, []string{"mistral", "none"}, with.Names())
	c, err := with.Get("mistral")
	require.NoError(t, err)
	m, ok := c.(*Mistral)
	require.True(t, ok)
	require.Equal(t, defaultMistralEndpoint, m.cfg.Endpoint)
	require.Equal(t, defaultMistralTimeout, m.cfg.Timeout)
}
