package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bulldra/bookrag/internal/config"
)

// ProviderType identifies an embedding backend.
type ProviderType string

const (
	// ProviderAuto selects ollama when reachable, static otherwise.
	ProviderAuto ProviderType = "auto"
	// ProviderOllama uses a local Ollama server.
	ProviderOllama ProviderType = "ollama"
	// ProviderStatic uses the deterministic hash embedder.
	ProviderStatic ProviderType = "static"
)

// ParseProvider converts a string to a ProviderType.
func ParseProvider(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ProviderAuto, nil
	case "ollama":
		return ProviderOllama, nil
	case "static":
		return ProviderStatic, nil
	default:
		return "", fmt.Errorf("unknown embedding provider: %s", s)
	}
}

// NewEmbedder creates an embedder from configuration, wrapped with an
// LRU cache. Auto-detection prefers Ollama and degrades to the static
// embedder when no server is reachable.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	provider, err := ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	inner, err := newInnerEmbedder(ctx, provider, cfg)
	if err != nil {
		return nil, err
	}

	cached, err := NewCachedEmbedder(inner, cfg.CacheSize)
	if err != nil {
		_ = inner.Close()
		return nil, err
	}

	return cached, nil
}

func newInnerEmbedder(ctx context.Context, provider ProviderType, cfg config.EmbeddingsConfig) (Embedder, error) {
	switch provider {
	case ProviderStatic:
		return NewStaticEmbedder(), nil

	case ProviderOllama:
		return newOllamaFromConfig(ctx, cfg)

	case ProviderAuto:
		embedder, err := newOllamaFromConfig(ctx, cfg)
		if err == nil {
			slog.Debug("embedder_selected", slog.String("provider", "ollama"),
				slog.String("model", embedder.ModelName()))
			return embedder, nil
		}
		slog.Debug("ollama_unavailable_using_static", slog.String("error", err.Error()))
		return NewStaticEmbedder(), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", provider)
	}
}

func newOllamaFromConfig(ctx context.Context, cfg config.EmbeddingsConfig) (*OllamaEmbedder, error) {
	ollamaCfg := DefaultOllamaConfig()
	if cfg.OllamaHost != "" {
		ollamaCfg.Host = cfg.OllamaHost
	}
	if cfg.Model != "" {
		ollamaCfg.Model = cfg.Model
	}
	if cfg.Dimensions > 0 {
		ollamaCfg.Dimensions = cfg.Dimensions
	}
	if cfg.BatchSize > 0 {
		ollamaCfg.BatchSize = cfg.BatchSize
	}
	if cfg.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
			ollamaCfg.Timeout = d
		}
	}
	return NewOllamaEmbedder(ctx, ollamaCfg)
}

// GetInfo returns a human-readable description of an embedder,
// unwrapping cache decorators.
func GetInfo(e Embedder) string {
	if cached, ok := e.(*CachedEmbedder); ok {
		return GetInfo(cached.Inner()) + " (cached)"
	}
	switch e.(type) {
	case *OllamaEmbedder:
		return fmt.Sprintf("ollama/%s (%dd)", e.ModelName(), e.Dimensions())
	case *StaticEmbedder:
		return fmt.Sprintf("static/%s (%dd)", e.ModelName(), e.Dimensions())
	default:
		return fmt.Sprintf("%s (%dd)", e.ModelName(), e.Dimensions())
	}
}
