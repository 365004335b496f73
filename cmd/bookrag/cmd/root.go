// Package cmd provides the CLI commands for bookrag.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bulldra/bookrag/internal/config"
	"github.com/bulldra/bookrag/internal/logging"
	"github.com/bulldra/bookrag/internal/profiling"
	"github.com/bulldra/bookrag/internal/service"
	"github.com/bulldra/bookrag/pkg/version"
)

// Persistent flags shared by every command.
var (
	libraryDir string
	debugMode  bool

	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     = profiling.NewProfiler()
	cpuCleanup   func()
	traceCleanup func()
)

// NewRootCmd creates the root command for the bookrag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookrag",
		Short: "Hybrid search over your personal book library",
		Long: `bookrag indexes markdown book files and answers queries with
hybrid retrieval: semantic vector search fused with BM25 keyword
search, adaptive per-query strategy, and diversity-aware re-ranking.

Typical flow:
  bookrag index                 index all books under the library
  bookrag search "検索の仕組み"   search the indexed library
  bookrag context "要約して"      build LLM-ready context text`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("bookrag version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&libraryDir, "dir", "d", ".", "Library directory (holds .bookrag.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfiling
	cmd.PersistentPostRunE = stopProfiling

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newContextCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newRemoveCmd())
	cmd.AddCommand(newCacheCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startProfiling(_ *cobra.Command, _ []string) error {
	var err error
	if profileCPU != "" {
		if cpuCleanup, err = profiler.StartCPU(profileCPU); err != nil {
			return err
		}
	}
	if profileTrace != "" {
		if traceCleanup, err = profiler.StartTrace(profileTrace); err != nil {
			return err
		}
	}
	return nil
}

func stopProfiling(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}
	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}
	if profileMem != "" {
		return profiler.WriteHeap(profileMem)
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// loadConfig loads configuration for the selected library directory.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(libraryDir)
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(cfg.Library.BooksDir) {
		// Relative book paths resolve against the library directory.
		cfg.Library.BooksDir = filepath.Join(libraryDir, cfg.Library.BooksDir)
	}
	if debugMode {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// setupLogging installs the configured logger as the process default.
// CLI runs log to file only; stderr stays clean for command output.
func setupLogging(cfg *config.Config) func() {
	logCfg := logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.FilePath,
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: false,
	}
	if logCfg.FilePath == "" {
		logCfg.FilePath = logging.DefaultLogPath()
		if err := logging.EnsureLogDir(); err != nil {
			logCfg.FilePath = ""
		}
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return func() {}
	}
	slog.SetDefault(logger)
	return cleanup
}

// withService loads config, sets up logging, opens the retrieval
// service, and guarantees teardown around fn.
func withService(ctx context.Context, fn func(ctx context.Context, cfg *config.Config, svc *service.Service) error) error {
	return withServiceConfig(ctx, nil, fn)
}

// withServiceConfig is withService with a config hook applied after
// loading, for commands whose flags override config values.
func withServiceConfig(ctx context.Context, mutate func(*config.Config), fn func(ctx context.Context, cfg *config.Config, svc *service.Service) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if mutate != nil {
		mutate(cfg)
	}
	cleanup := setupLogging(cfg)
	defer cleanup()

	svc, err := service.Open(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	return fn(ctx, cfg, svc)
}
