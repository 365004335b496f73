package embed

import "time"

// Ollama API constants.
const (
	// DefaultOllamaHost is the default Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is the default embedding model. nomic-embed-text
	// handles mixed Japanese/English prose well at modest memory cost.
	DefaultOllamaModel = "nomic-embed-text"

	// OllamaConnectTimeout for the initial health check.
	OllamaConnectTimeout = 5 * time.Second

	// OllamaPoolSize for the HTTP connection pool.
	OllamaPoolSize = 4
)

// FallbackOllamaModels are tried in order if the primary model is unavailable.
var FallbackOllamaModels = []string{
	"mxbai-embed-large",
	"all-minilm",
}

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	// Host is the Ollama API endpoint (default: http://localhost:11434).
	Host string

	// Model is the embedding model to use (default: nomic-embed-text).
	Model string

	// FallbackModels are tried in order if the primary model is unavailable.
	FallbackModels []string

	// Dimensions can be set to override auto-detection (0 = auto-detect).
	Dimensions int

	// BatchSize for batch embedding requests (default: 32).
	BatchSize int

	// Timeout for API requests (default: 30s).
	Timeout time.Duration

	// ConnectTimeout for the initial health check (default: 5s).
	ConnectTimeout time.Duration

	// MaxRetries for transient failures (default: 3).
	MaxRetries int

	// PoolSize for the HTTP connection pool (default: 4).
	PoolSize int

	// SkipHealthCheck skips the initial Ollama availability check (for testing).
	SkipHealthCheck bool

	// ProgressFunc is called after each batch with (completed, total) counts.
	ProgressFunc func(completed, total int)
}

// DefaultOllamaConfig returns sensible defaults.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:           DefaultOllamaHost,
		Model:          DefaultOllamaModel,
		FallbackModels: FallbackOllamaModels,
		Dimensions:     0, // Auto-detect
		BatchSize:      DefaultBatchSize,
		Timeout:        DefaultTimeout,
		ConnectTimeout: OllamaConnectTimeout,
		MaxRetries:     DefaultMaxRetries,
		PoolSize:       OllamaPoolSize,
	}
}

// OllamaEmbedRequest is the Ollama /api/embed request.
type OllamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"` // string or []string for batch
}

// OllamaEmbedResponse is the Ollama /api/embed response.
type OllamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// OllamaModelListResponse is the Ollama /api/tags response.
type OllamaModelListResponse struct {
	Models []OllamaModelInfo `json:"models"`
}

// OllamaModelInfo describes an installed model.
type OllamaModelInfo struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}
