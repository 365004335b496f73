// Package config loads bookrag configuration from YAML files and
// environment variables.
//
// Configuration is applied in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/bookrag/config.yaml)
//  3. Project config (.bookrag.yaml in the library directory)
//  4. Environment variables (BOOKRAG_*)
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete bookrag configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Library    LibraryConfig    `yaml:"library" json:"library"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	LLM        LLMConfig        `yaml:"llm" json:"llm"`
	Expansion  ExpansionConfig  `yaml:"expansion" json:"expansion"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Workers    WorkersConfig    `yaml:"workers" json:"workers"`
}

// LibraryConfig configures where books and index artifacts live.
type LibraryConfig struct {
	// BooksDir is the directory containing book markdown files.
	BooksDir string `yaml:"books_dir" json:"books_dir"`
	// CacheDir is the directory for index artifacts and caches.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
	// Exclude lists glob patterns excluded from book discovery.
	Exclude []string `yaml:"exclude" json:"exclude"`
	// Watch enables automatic reindexing when book files change.
	Watch bool `yaml:"watch" json:"watch"`
	// WatchDebounce is the settle time before a change triggers reindexing.
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// SearchConfig configures hybrid search parameters.
type SearchConfig struct {
	// SemanticWeight is the weight for vector similarity (0.0-1.0).
	// Must sum to 1.0 with KeywordWeight.
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`

	// KeywordWeight is the weight for BM25 keyword matching (0.0-1.0).
	// Must sum to 1.0 with SemanticWeight.
	KeywordWeight float64 `yaml:"keyword_weight" json:"keyword_weight"`

	// KeywordScale divides raw BM25 scores before clamping to [0,1].
	KeywordScale float64 `yaml:"keyword_scale" json:"keyword_scale"`

	// KeywordBackend selects the BM25 index backend.
	// Options: "okapi" (default, in-process) or "bleve".
	KeywordBackend string `yaml:"keyword_backend" json:"keyword_backend"`

	// TopK is the default number of results returned.
	TopK int `yaml:"top_k" json:"top_k"`

	// MaxContextLength is the default character budget for assembled context.
	MaxContextLength int `yaml:"max_context_length" json:"max_context_length"`

	// Rerank enables diversity-aware re-ranking.
	Rerank bool `yaml:"rerank" json:"rerank"`

	// Compress enables context compression.
	Compress bool `yaml:"compress" json:"compress"`

	// BookWeighting enables catalog-driven per-book score weighting.
	BookWeighting bool `yaml:"book_weighting" json:"book_weighting"`
}

// Chunking strategies.
const (
	// ChunkStrategySentence is the boundary-aware fixed-window chunker.
	ChunkStrategySentence = "sentence"
	// ChunkStrategyParagraph packs whole paragraphs up to a size cap.
	ChunkStrategyParagraph = "paragraph"
)

// ChunkingConfig configures how book text is split.
type ChunkingConfig struct {
	// Strategy selects the chunker: "sentence" (default) or "paragraph".
	Strategy string `yaml:"strategy" json:"strategy"`
	// ChunkSize is the target chunk size in characters.
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// Overlap is the number of characters carried over between chunks.
	Overlap int `yaml:"overlap" json:"overlap"`
	// BoundarySearch is how far past the target to look for a sentence end.
	BoundarySearch int `yaml:"boundary_search" json:"boundary_search"`
	// ParagraphMaxChars caps paragraph-mode chunks.
	ParagraphMaxChars int `yaml:"paragraph_max_chars" json:"paragraph_max_chars"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "ollama", "static", or empty for
	// auto-detection (ollama if reachable, static otherwise).
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	// OllamaHost is the Ollama API endpoint (default: http://localhost:11434).
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	// CacheSize is the LRU embedding cache capacity (entries).
	CacheSize int `yaml:"cache_size" json:"cache_size"`
	// Timeout is the per-request timeout (e.g. "30s").
	Timeout string `yaml:"timeout" json:"timeout"`
}

// LLMConfig configures the optional LLM used for query paraphrasing.
type LLMConfig struct {
	// Enabled enables LLM-backed query expansion.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Model is the Ollama model used for paraphrasing.
	Model string `yaml:"model" json:"model"`
	// OllamaHost is the Ollama API endpoint.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	// Timeout is the paraphrase deadline (default: "3s").
	Timeout string `yaml:"timeout" json:"timeout"`
}

// ExpansionConfig configures query expansion.
type ExpansionConfig struct {
	// Enabled enables synonym-based expansion.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// MaxSynonymVariants caps synonym-substituted variants per query.
	MaxSynonymVariants int `yaml:"max_synonym_variants" json:"max_synonym_variants"`
	// MaxQueries caps the total expanded query set, original included.
	MaxQueries int `yaml:"max_queries" json:"max_queries"`
}

// CacheConfig configures the search result cache.
type CacheConfig struct {
	// Enabled enables result caching.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// MaxEntries caps the number of cached results.
	MaxEntries int `yaml:"max_entries" json:"max_entries"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

// WorkersConfig configures indexing concurrency.
type WorkersConfig struct {
	// IndexWorkers is the number of books indexed in parallel.
	IndexWorkers int `yaml:"index_workers" json:"index_workers"`
}

// defaultExcludePatterns are always excluded from book discovery.
var defaultExcludePatterns = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/README.md",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Library: LibraryConfig{
			BooksDir:      "books",
			CacheDir:      defaultCacheDir(),
			Exclude:       defaultExcludePatterns,
			Watch:         false,
			WatchDebounce: "500ms",
		},
		Search: SearchConfig{
			SemanticWeight:   0.7,
			KeywordWeight:    0.3,
			KeywordScale:     10.0,
			KeywordBackend:   "okapi",
			TopK:             10,
			MaxContextLength: 8000,
			Rerank:           true,
			Compress:         true,
			BookWeighting:    false,
		},
		Chunking: ChunkingConfig{
			Strategy:          ChunkStrategySentence,
			ChunkSize:         4000,
			Overlap:           500,
			BoundarySearch:    200,
			ParagraphMaxChars: 800,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "", // auto-detect
			Model:      "nomic-embed-text",
			Dimensions: 0, // from embedder
			BatchSize:  32,
			OllamaHost: "",
			CacheSize:  1000,
			Timeout:    "30s",
		},
		LLM: LLMConfig{
			Enabled:    false,
			Model:      "qwen3:0.6b",
			OllamaHost: "",
			Timeout:    "3s",
		},
		Expansion: ExpansionConfig{
			Enabled:            true,
			MaxSynonymVariants: 3,
			MaxQueries:         5,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: 500,
		},
		Logging: LoggingConfig{
			Level:    "info",
			FilePath: "",
		},
		Workers: WorkersConfig{
			IndexWorkers: runtime.NumCPU(),
		},
	}
}

// defaultCacheDir returns the default index artifact directory.
func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".bookrag", "cache")
	}
	return filepath.Join(home, ".bookrag", "cache")
}

// GetUserConfigPath returns the path to the user configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/bookrag/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/bookrag/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "bookrag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "bookrag", "config.yaml")
	}
	return filepath.Join(home, ".config", "bookrag", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load loads configuration rooted at the given library directory.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .bookrag.yaml or .bookrag.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".bookrag.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".bookrag.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine, use defaults.
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Library
	if other.Library.BooksDir != "" {
		c.Library.BooksDir = other.Library.BooksDir
	}
	if other.Library.CacheDir != "" {
		c.Library.CacheDir = other.Library.CacheDir
	}
	if len(other.Library.Exclude) > 0 {
		// Merge with defaults rather than replace
		c.Library.Exclude = append(c.Library.Exclude, other.Library.Exclude...)
	}
	if other.Library.Watch {
		c.Library.Watch = true
	}
	if other.Library.WatchDebounce != "" {
		c.Library.WatchDebounce = other.Library.WatchDebounce
	}

	// Search weights
	// Note: 0 is not a practical value for weights, so only non-zero values merge.
	if other.Search.SemanticWeight != 0 {
		c.Search.SemanticWeight = other.Search.SemanticWeight
	}
	if other.Search.KeywordWeight != 0 {
		c.Search.KeywordWeight = other.Search.KeywordWeight
	}
	if other.Search.KeywordScale != 0 {
		c.Search.KeywordScale = other.Search.KeywordScale
	}
	if other.Search.KeywordBackend != "" {
		c.Search.KeywordBackend = other.Search.KeywordBackend
	}
	if other.Search.TopK != 0 {
		c.Search.TopK = other.Search.TopK
	}
	if other.Search.MaxContextLength != 0 {
		c.Search.MaxContextLength = other.Search.MaxContextLength
	}
	if other.Search.BookWeighting {
		c.Search.BookWeighting = true
	}

	// Chunking
	if other.Chunking.ChunkSize != 0 {
		c.Chunking.ChunkSize = other.Chunking.ChunkSize
	}
	if other.Chunking.Overlap != 0 {
		c.Chunking.Overlap = other.Chunking.Overlap
	}
	if other.Chunking.BoundarySearch != 0 {
		c.Chunking.BoundarySearch = other.Chunking.BoundarySearch
	}
	if other.Chunking.ParagraphMaxChars != 0 {
		c.Chunking.ParagraphMaxChars = other.Chunking.ParagraphMaxChars
	}

	// Embeddings
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}
	if other.Embeddings.Timeout != "" {
		c.Embeddings.Timeout = other.Embeddings.Timeout
	}

	// LLM
	if other.LLM.Enabled {
		c.LLM.Enabled = true
	}
	if other.LLM.Model != "" {
		c.LLM.Model = other.LLM.Model
	}
	if other.LLM.OllamaHost != "" {
		c.LLM.OllamaHost = other.LLM.OllamaHost
	}
	if other.LLM.Timeout != "" {
		c.LLM.Timeout = other.LLM.Timeout
	}

	// Expansion
	if other.Expansion.MaxSynonymVariants != 0 {
		c.Expansion.MaxSynonymVariants = other.Expansion.MaxSynonymVariants
	}
	if other.Expansion.MaxQueries != 0 {
		c.Expansion.MaxQueries = other.Expansion.MaxQueries
	}

	// Cache
	if other.Cache.MaxEntries != 0 {
		c.Cache.MaxEntries = other.Cache.MaxEntries
	}

	// Logging
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.FilePath != "" {
		c.Logging.FilePath = other.Logging.FilePath
	}

	// Workers
	if other.Workers.IndexWorkers != 0 {
		c.Workers.IndexWorkers = other.Workers.IndexWorkers
	}
}

// applyEnvOverrides applies BOOKRAG_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BOOKRAG_BOOKS_DIR"); v != "" {
		c.Library.BooksDir = v
	}
	if v := os.Getenv("BOOKRAG_CACHE_DIR"); v != "" {
		c.Library.CacheDir = v
	}
	if v := os.Getenv("BOOKRAG_SEMANTIC_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.SemanticWeight = w
		}
	}
	if v := os.Getenv("BOOKRAG_KEYWORD_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.KeywordWeight = w
		}
	}
	if v := os.Getenv("BOOKRAG_KEYWORD_SCALE"); v != "" {
		if s, err := parseFloat64(v); err == nil && s > 0 {
			c.Search.KeywordScale = s
		}
	}
	if v := os.Getenv("BOOKRAG_KEYWORD_BACKEND"); v != "" {
		c.Search.KeywordBackend = v
	}
	if v := os.Getenv("BOOKRAG_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.TopK = k
		}
	}
	if v := os.Getenv("BOOKRAG_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("BOOKRAG_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("BOOKRAG_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
		c.LLM.OllamaHost = v
	}
	if v := os.Getenv("BOOKRAG_LLM_ENABLED"); v != "" {
		c.LLM.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("BOOKRAG_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		return fmt.Errorf("semantic_weight must be between 0 and 1, got %f", c.Search.SemanticWeight)
	}
	if c.Search.KeywordWeight < 0 || c.Search.KeywordWeight > 1 {
		return fmt.Errorf("keyword_weight must be between 0 and 1, got %f", c.Search.KeywordWeight)
	}

	sum := c.Search.SemanticWeight + c.Search.KeywordWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("semantic_weight + keyword_weight must equal 1.0, got %.2f", sum)
	}

	if c.Search.KeywordScale <= 0 {
		return fmt.Errorf("keyword_scale must be positive, got %f", c.Search.KeywordScale)
	}
	if c.Search.TopK < 0 {
		return fmt.Errorf("top_k must be non-negative, got %d", c.Search.TopK)
	}
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("overlap must be non-negative and smaller than chunk_size, got %d", c.Chunking.Overlap)
	}

	switch strings.ToLower(c.Chunking.Strategy) {
	case ChunkStrategySentence, ChunkStrategyParagraph:
	default:
		return fmt.Errorf("chunking.strategy must be 'sentence' or 'paragraph', got %s", c.Chunking.Strategy)
	}

	switch strings.ToLower(c.Search.KeywordBackend) {
	case "okapi", "bleve":
	default:
		return fmt.Errorf("search.keyword_backend must be 'okapi' or 'bleve', got %s", c.Search.KeywordBackend)
	}

	if c.Embeddings.Provider != "" { // empty triggers auto-detection
		validProviders := map[string]bool{"static": true, "ollama": true}
		if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
			return fmt.Errorf("embeddings.provider must be 'static', 'ollama', or empty (auto-detect), got %s", c.Embeddings.Provider)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}
