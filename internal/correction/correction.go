// Package correction defines the text correction capability applied to OCR
// text before it is archived, with a registry of named backends.
package correction

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/newsarchive-crawler/internal/config"
	"github.com/JakeFAU/newsarchive-crawler/internal/crawler"
	"github.com/JakeFAU/newsarchive-crawler/internal/logging"
)

// MethodNone names the pass-through corrector.
const MethodNone = "none"

// TextCorrector rewrites OCR text in the given language.
type TextCorrector interface {
	Name() string
	Correct(ctx context.Context, text, language string) (string, error)
}

// Result is the outcome of Apply.
type Result struct {
	Text      string
	Method    string
	Language  string
	Corrected bool
}

// Apply runs c over text. A failing or empty correction is not fatal: the
// original text is returned with Method set to "none".
func Apply(ctx context.Context, c TextCorrector, text, language string, logger *zap.Logger) Result {
	fallback := Result{Text: text, Method: MethodNone, Language: language}
	if c == nil || c.Name() == MethodNone {
		return fallback
	}
	out, err := c.Correct(ctx, text, language)
	if err == nil && strings.TrimSpace(out) == "" {
		err = fmt.Errorf("%s returned empty text", c.Name())
	}
	if err != nil {
		logging.OrNop(logger).Warn("text correction failed; keeping original text",
			zap.String("method", c.Name()),
			zap.String("language", language),
			zap.Error(err),
		)
		return fallback
	}
	return Result{Text: out, Method: c.Name(), Language: language, Corrected: out != text}
}

// None returns text unchanged.
type None struct{}

// Name implements TextCorrector.
func (None) Name() string { return MethodNone }

// Correct implements TextCorrector.
func (None) Correct(_ context.Context, text, _ string) (string, error) {
	return text, nil
}

// Registry maps method names to correctors.
type Registry struct {
	mu         sync.RWMutex
	correctors map[string]TextCorrector
}

// NewRegistry returns a registry holding only the "none" corrector.
func NewRegistry() *Registry {
	r := &Registry{correctors: make(map[string]TextCorrector)}
	r.Register(None{})
	return r
}

// FromConfig builds the registry for cfg. The mistral backend is registered
// only when an API key is configured.
func FromConfig(cfg config.CorrectionConfig, logger *zap.Logger) *Registry {
	r := NewRegistry()
	if cfg.Mistral.APIKey != "" {
		r.Register(NewMistral(MistralConfig{
			APIKey:   cfg.Mistral.APIKey,
			Endpoint: cfg.Mistral.Endpoint,
			Model:    cfg.Mistral.Model,
			Timeout:  cfg.Mistral.Timeout,
		}, logger))
	}
	return r
}

// Register adds or replaces c under its name.
func (r *Registry) Register(c TextCorrector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.correctors[c.Name()] = c
}

// Get resolves name. An empty name resolves to "none".
func (r *Registry) Get(name string) (TextCorrector, error) {
	if name == "" {
		name = MethodNone
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.correctors[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown correction method %q (available: %s)",
			crawler.ErrCorrection, name, strings.Join(r.namesLocked(), ", "))
	}
	return c, nil
}

// Names lists registered methods in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.correctors))
	for name := range r.correctors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
