// Command monkeypress runs the typewriting monkey streaming service.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"monkeypress/internal/backend"
	backendbolt "monkeypress/internal/backend/bolt"
	backendmem "monkeypress/internal/backend/memory"
	backendsqlite "monkeypress/internal/backend/sqlite"
	"monkeypress/internal/chunkstore"
	"monkeypress/internal/engine"
	"monkeypress/internal/server"
	"monkeypress/internal/words"
)

var version = "dev"

// statsInterval is how often the operational stats job logs.
const statsInterval = time.Minute

func main() {
	var level slog.LevelVar

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: &level,
	}))

	rootCmd := &cobra.Command{
		Use:   "monkeypress",
		Short: "Typewriting monkey streaming service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Flags().GetBool("verbose")
			if verbose {
				level.Set(slog.LevelDebug)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the monkeypress service",
		RunE: func(cmd *cobra.Command, args []string) error {
			port, _ := cmd.Flags().GetInt("port")
			testMode, _ := cmd.Flags().GetBool("test-mode")
			backendType, _ := cmd.Flags().GetString("backend")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			dictPath, _ := cmd.Flags().GetString("dict")

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			return run(ctx, logger, port, testMode, backendType, dataDir, dictPath)
		},
	}
	serveCmd.Flags().Int("port", envInt("HTTP_PORT", server.DefaultPort), "HTTP listen port")
	serveCmd.Flags().Bool("test-mode", envBool("TEST_MODE", true), "simulate a baseline audience so the stream moves without viewers")
	serveCmd.Flags().String("backend", envStr("BACKEND", "memory"), "durable backend: memory, bolt, or sqlite")
	serveCmd.Flags().String("data-dir", envStr("DATA_DIR", "./data"), "data directory for durable backends")
	serveCmd.Flags().String("dict", envStr("DICT_PATH", ""), "dictionary file path (default: embedded word list)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(serveCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, port int, testMode bool, backendType, dataDir, dictPath string) error {
	server.Version = version

	store, err := openBackend(backendType, dataDir, logger)
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}
	defer store.Close()
	logger.Info("backend opened", "type", backendType)

	chunks, err := chunkstore.Open(ctx, chunkstore.Config{
		Backend: store,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("open chunk store: %w", err)
	}

	dict, err := openDictionary(dictPath)
	if err != nil {
		return fmt.Errorf("load dictionary: %w", err)
	}
	logger.Info("dictionary loaded", "words", dict.Size())

	wordStore, err := words.NewStore(words.StoreConfig{
		Backend: store,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("open word store: %w", err)
	}

	eng, err := engine.New(engine.Config{
		Chunks:     chunks,
		Words:      wordStore,
		Dictionary: dict,
		TestMode:   testMode,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	// The engine refuses subscribers until the word index is reconciled
	// with the generated text.
	if err := eng.Reconcile(ctx); err != nil {
		return err
	}

	reporter, err := engine.NewStatsReporter(eng, statsInterval, logger)
	if err != nil {
		return fmt.Errorf("start stats reporter: %w", err)
	}

	srv := server.New(server.Config{
		Engine:     eng,
		Chunks:     chunks,
		Dictionary: dict,
		Logger:     logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gctx)
	})
	g.Go(func() error {
		return srv.ServeTCP(":" + strconv.Itoa(port))
	})
	g.Go(func() error {
		// A signal or an engine halt both land here; stop accepting
		// connections so the group can drain.
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(stopCtx)
	})

	runErr := g.Wait()

	if err := reporter.Shutdown(); err != nil {
		logger.Warn("stats reporter shutdown error", "error", err)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := wordStore.Close(closeCtx); err != nil {
		logger.Error("word store close error", "error", err)
	}
	if err := chunks.Close(closeCtx); err != nil {
		logger.Error("chunk store close error", "error", err)
	}

	logger.Info("shutdown complete")
	return runErr
}

// openBackend creates a backend.Store based on the backend type.
func openBackend(backendType, dataDir string, logger *slog.Logger) (backend.Store, error) {
	switch backendType {
	case "memory":
		return backendmem.NewStore(logger), nil
	case "bolt":
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, err
		}
		return backendbolt.NewStore(filepath.Join(dataDir, "monkeypress.db"), logger)
	case "sqlite":
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, err
		}
		return backendsqlite.NewStore(filepath.Join(dataDir, "monkeypress.sqlite"), logger)
	default:
		return nil, fmt.Errorf("unknown backend type: %q", backendType)
	}
}

func openDictionary(path string) (*words.Dictionary, error) {
	if path != "" {
		return words.LoadDictionaryFile(path)
	}
	return words.DefaultDictionary()
}

// envStr returns the environment value for key, or def when unset.
func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
