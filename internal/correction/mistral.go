package correction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/newsarchive-crawler/internal/crawler"
	"github.com/JakeFAU/newsarchive-crawler/internal/logging"
)

// MethodMistral names the Mistral chat-completions backend.
const MethodMistral = "mistral"

const (
	defaultMistralEndpoint = "https://api.mistral.ai/v1/chat/completions"
	defaultMistralModel    = "mistral-large-latest"
	defaultMistralTimeout  = 60 * time.Second
	mistralTemperature     = 0.3
	maxErrorBody           = 512
)

// ErrUnexpectedStatusCode is returned for non-2xx API responses.
var ErrUnexpectedStatusCode = errors.New("unexpected status code")

// MistralConfig configures the Mistral backend.
type MistralConfig struct {
	APIKey   string
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// Mistral corrects OCR errors through the Mistral chat-completions API.
type Mistral struct {
	cfg        MistralConfig
	httpClient *http.Client
	logger     *zap.Logger
}

var _ TextCorrector = (*Mistral)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewMistral creates a Mistral corrector.
func NewMistral(cfg MistralConfig, logger *zap.Logger) *Mistral {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultMistralEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = defaultMistralModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultMistralTimeout
	}
	return &Mistral{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logging.OrNop(logger),
	}
}

// Name implements TextCorrector.
func (m *Mistral) Name() string { return MethodMistral }

// Correct sends text to the API and returns the corrected version.
func (m *Mistral) Correct(ctx context.Context, text, language string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       m.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt(text, language)}},
		Temperature: mistralTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)

	m.logger.Debug("calling mistral", zap.String("model", m.cfg.Model), zap.Int("chars", len(text)))
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: mistral request: %w", crawler.ErrCorrection, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("%w: %w: %d %s", crawler.ErrCorrection, ErrUnexpectedStatusCode, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", crawler.ErrCorrection, err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: response has no choices", crawler.ErrCorrection)
	}
	corrected := strings.TrimSpace(out.Choices[0].Message.Content)
	m.logger.Debug("mistral returned corrected text", zap.Int("chars", len(corrected)))
	return corrected, nil
}

func prompt(text, language string) string {
	var b strings.Builder
	b.WriteString("Correct only the OCR errors in the following text without changing its style")
	if language != "" {
		b.WriteString(" and keep it in its language (")
		b.WriteString(language)
		b.WriteString(")")
	}
	b.WriteString(":\n\n")
	b.WriteString(text)
	b.WriteString("\n\nCorrected text:\n")
	return b.String()
}
