// Package llm provides the optional Ollama-backed query paraphraser.
// Search works without it: every failure degrades to the original query.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bulldra/bookrag/internal/config"
	ragerrors "github.com/bulldra/bookrag/internal/errors"
)

// Default paraphraser configuration.
const (
	DefaultParaphraseModel   = "qwen3:0.6b"
	DefaultParaphraseTimeout = 3 * time.Second
	DefaultParaphraseHost    = "http://localhost:11434"

	// MaxParaphraseRunes caps the paraphrase length.
	MaxParaphraseRunes = 100
)

// paraphrasePromptTemplate asks for one search-friendly rephrasing of
// the question, including synonyms and related terms.
const paraphrasePromptTemplate = "以下の質問を、より検索しやすい形に言い換えてください。" +
	"類義語や関連語を含めて、同じ意味の別の表現を1つ提案してください。\n\n" +
	"元の質問: %s\n\n言い換えた質問:"

// Paraphraser rewrites queries via a small Ollama model.
type Paraphraser struct {
	client  *http.Client
	host    string
	model   string
	breaker *ragerrors.CircuitBreaker
}

// generateRequest is the Ollama /api/generate request body.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// generateResponse is the Ollama /api/generate response body.
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewParaphraser creates a paraphraser from config.
// Returns nil when the LLM is disabled; callers treat a nil Paraphraser
// as "no expansion".
func NewParaphraser(cfg config.LLMConfig) *Paraphraser {
	if !cfg.Enabled {
		return nil
	}

	host := cfg.OllamaHost
	if host == "" {
		host = DefaultParaphraseHost
	}
	model := cfg.Model
	if model == "" {
		model = DefaultParaphraseModel
	}

	timeout := DefaultParaphraseTimeout
	if cfg.Timeout != "" {
		if parsed, err := time.ParseDuration(cfg.Timeout); err == nil && parsed > 0 {
			timeout = parsed
		}
	}

	return &Paraphraser{
		client:  &http.Client{Timeout: timeout},
		host:    host,
		model:   model,
		breaker: ragerrors.NewCircuitBreaker("llm-paraphrase", ragerrors.WithMaxFailures(3)),
	}
}

// Paraphrase returns one search-friendly rewording of the query, or an
// empty string when no useful rewording was produced. Errors are never
// fatal to a search; callers log and continue with the original query.
func (p *Paraphraser) Paraphrase(ctx context.Context, query string) (string, error) {
	if p == nil || strings.TrimSpace(query) == "" {
		return "", nil
	}

	result, err := ragerrors.ExecuteWithResult(p.breaker,
		func() (string, error) {
			return p.generate(ctx, fmt.Sprintf(paraphrasePromptTemplate, query))
		},
		func() (string, error) {
			return "", ragerrors.New(ragerrors.ErrCodeLLMUnavailable,
				"paraphrase model circuit open", ragerrors.ErrCircuitOpen)
		})
	if err != nil {
		return "", err
	}

	paraphrase := cleanParaphrase(result)
	if paraphrase == "" || paraphrase == query {
		return "", nil
	}

	slog.Debug("query_paraphrased",
		slog.String("original", query),
		slog.String("paraphrase", paraphrase))

	return paraphrase, nil
}

// cleanParaphrase strips model chatter and caps the length.
func cleanParaphrase(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "言い換えた質問:")
	s = strings.TrimSpace(s)

	// Some models answer with a quoted line; take the first line only.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = strings.TrimSpace(s[:idx])
	}
	s = strings.Trim(s, "「」\"")

	runes := []rune(s)
	if len(runes) > MaxParaphraseRunes {
		s = string(runes[:MaxParaphraseRunes])
	}
	return s
}

// generate makes a non-streaming request to Ollama.
func (p *Paraphraser) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  p.model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := p.host + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", ragerrors.Wrap(ragerrors.ErrCodeLLMUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	return genResp.Response, nil
}

// Available checks if Ollama is reachable.
func (p *Paraphraser) Available(ctx context.Context) bool {
	if p == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.host+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

// ModelName returns the model being used.
func (p *Paraphraser) ModelName() string {
	if p == nil {
		return ""
	}
	return p.model
}
