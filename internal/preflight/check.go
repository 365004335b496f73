// Package preflight validates the environment before indexing: books
// directory, cache directory permissions, disk space, and embedding
// provider availability.
package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bulldra/bookrag/internal/config"
	"github.com/bulldra/bookrag/internal/embed"
	"github.com/bulldra/bookrag/internal/library"
)

// CheckStatus is the outcome of one check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// CheckResult holds the outcome of a single check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Required bool        `json:"required"`
}

// IsCritical reports whether a required check failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker runs environment checks against a configuration.
type Checker struct {
	cfg *config.Config
}

// New creates a Checker for the given configuration.
func New(cfg *config.Config) *Checker {
	return &Checker{cfg: cfg}
}

// RunAll runs every check.
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	return []CheckResult{
		c.CheckBooksDir(),
		c.CheckCacheDirWritable(),
		c.CheckDiskSpace(),
		c.CheckEmbedder(ctx),
	}
}

// HasCriticalFailures reports whether any required check failed.
func HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// CheckBooksDir verifies the books directory exists and holds books.
func (c *Checker) CheckBooksDir() CheckResult {
	result := CheckResult{Name: "books_dir", Required: true}

	dir := c.cfg.Library.BooksDir
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s is not a directory", dir)
		return result
	}

	paths, err := library.DiscoverBooks(dir, c.cfg.Library.Exclude)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot scan %s: %v", dir, err)
		return result
	}
	if len(paths) == 0 {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("no book files found under %s", dir)
		result.Required = false
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d book(s) under %s", len(paths), dir)
	return result
}

// CheckCacheDirWritable verifies index artifacts can be written.
func (c *Checker) CheckCacheDirWritable() CheckResult {
	result := CheckResult{Name: "cache_dir", Required: true}

	dir := c.cfg.Library.CacheDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create %s: %v", dir, err)
		return result
	}

	probe := filepath.Join(dir, ".preflight-probe")
	f, err := os.Create(probe)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s is not writable: %v", dir, err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(probe)

	result.Status = StatusPass
	result.Message = "writable"
	return result
}

// CheckEmbedder verifies an embedding provider is reachable. The static
// provider always works, so this can warn but never fail hard.
func (c *Checker) CheckEmbedder(ctx context.Context) CheckResult {
	result := CheckResult{Name: "embedder", Required: false}

	embedder, err := embed.NewEmbedder(ctx, c.cfg.Embeddings)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("embedder unavailable, static fallback will be used: %v", err)
		return result
	}
	defer func() { _ = embedder.Close() }()

	if !embedder.Available(ctx) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s is not responding", embedder.ModelName())
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%d dimensions)", embedder.ModelName(), embedder.Dimensions())
	return result
}
