// Package main is the Kotoba CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/kotoba/internal/cli"
	"github.com/hyperjump/kotoba/internal/config"
	"github.com/hyperjump/kotoba/internal/models"
	"github.com/hyperjump/kotoba/internal/server"
	"github.com/hyperjump/kotoba/internal/sourceid"
	"github.com/hyperjump/kotoba/internal/transcript"
	"github.com/hyperjump/kotoba/internal/watcher"
	"github.com/hyperjump/kotoba/pkg/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

const defaultConfigPath = "/usr/local/etc/kotoba/config.yaml"

var (
	configPath string
	debugFlag  bool
	jsonOutput bool
	serverURL  string
)

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory wins if present (for development). When neither exists, built-in defaults are
// used. Returns the config and the path actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// setup loads .env and the config and builds the logger.
func setup() (*config.Config, *zap.Logger, bool, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, nil, false, err
	}
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	return cfg, logger, debugMode, nil
}

func outputFormat() cli.OutputFormat {
	if jsonOutput {
		return cli.OutputJSON
	}
	return cli.OutputText
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "kotoba",
		Short: "Ask questions about video transcripts",
		Long: `Kotoba indexes timestamped transcripts into a vector store and answers
questions about them with retrieved, timestamp-cited context.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "config file path")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "output as JSON")

	rootCmd.AddCommand(serverCmd(), indexCmd(), askCmd(), readyCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				_ = cli.WriteJSON(cmd.OutOrStdout(), map[string]string{
					"version": version,
					"commit":  commit,
					"date":    buildDate,
				})
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "kotoba %s (%s, %s)\n", version, commit, buildDate)
		},
	}
}

func serverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Run the HTTP API (and the transcript watcher when enabled)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, debugMode, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			components, err := initializeComponents(ctx, cfg, logger, debugMode)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Close()

			if cfg.Watch.Enabled {
				rec := watcher.NewReconciler(ctx, components.Service, logger)
				watchOpts := []watcher.WatcherOption{watcher.WithDebounce(cfg.Watch.Debounce)}
				if debugMode {
					watchOpts = append(watchOpts, watcher.WithLogger(logger))
				}
				w := watcher.NewWatcher(cfg.Transcripts.Dir, rec.Reconcile, watchOpts...)
				if err := w.Start(ctx); err != nil {
					return fmt.Errorf("failed to start watcher: %w", err)
				}
				defer w.Stop()
				if cfg.Watch.SyncOrDefault() {
					go func() {
						if err := w.SyncExisting(); err != nil {
							logger.Warn("watcher sync failed", zap.Error(err))
						}
					}()
				}
			}

			srv := server.NewServer(components.Service, &cfg.Server, components.Info, logger)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return fmt.Errorf("server failed: %w", err)
			case <-ctx.Done():
			}
			logger.Info("Shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return srv.Stop(shutdownCtx)
		},
	}
}

// remote returns a client for a running server, or nil to run in-process.
func remote(ctx context.Context) *cli.Client {
	if serverURL == "" {
		return nil
	}
	c := cli.NewClient(serverURL, 0)
	pingCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if !c.Reachable(pingCtx) {
		return nil
	}
	return c
}

// local builds the components for in-process commands.
func local(ctx context.Context) (*Components, *zap.Logger, error) {
	cfg, logger, debugMode, err := setup()
	if err != nil {
		return nil, nil, err
	}
	components, err := initializeComponents(ctx, cfg, logger, debugMode)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize components: %w", err)
	}
	return components, logger, nil
}

func indexCmd() *cobra.Command {
	var file, id string
	cmd := &cobra.Command{
		Use:   "index [url-or-id]",
		Short: "Fetch and index a transcript",
		Long: `Index a source by URL or id from the transcripts directory, or index a
single .srt/.json file with --file. Uses a running server when one is reachable.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if file == "" && len(args) == 0 {
				return errors.New("a URL, an id, or --file is required")
			}
			if file == "" {
				if c := remote(ctx); c != nil {
					res, err := c.Process(ctx, args[0])
					if err != nil {
						return err
					}
					return cli.WriteIndexResult(cmd.OutOrStdout(), res, outputFormat())
				}
			}

			components, logger, err := local(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer components.Close()

			var res *models.IndexResult
			if file != "" {
				sourceID, segments, err := readTranscriptFile(file, id)
				if err != nil {
					return err
				}
				res, err = components.Service.Index(ctx, sourceID, segments)
				if err != nil {
					return err
				}
			} else {
				res, err = components.Service.Process(ctx, args[0])
				if err != nil {
					return err
				}
			}
			return cli.WriteIndexResult(cmd.OutOrStdout(), res, outputFormat())
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "transcript file (.srt or .json) to index")
	cmd.Flags().StringVar(&id, "id", "", "source id for --file (defaults to the file name, or a hash of its path)")
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:5000", "server URL (empty = always run in-process)")
	return cmd
}

func askCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <id> <question...>",
		Short: "Ask a question about an indexed source",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sourceID, question := args[0], strings.Join(args[1:], " ")
			if c := remote(ctx); c != nil {
				ans, err := c.Ask(ctx, sourceID, question)
				if err != nil {
					return err
				}
				return cli.WriteAnswer(cmd.OutOrStdout(), ans, outputFormat())
			}
			components, logger, err := local(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer components.Close()
			ans, err := components.Service.Answer(ctx, sourceID, question)
			if err != nil {
				return err
			}
			return cli.WriteAnswer(cmd.OutOrStdout(), ans, outputFormat())
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:5000", "server URL (empty = always run in-process)")
	return cmd
}

func readyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ready <id>",
		Short: "Report whether a source has been indexed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sourceID := args[0]
			if c := remote(ctx); c != nil {
				entry, err := c.Session(ctx, sourceID)
				if err != nil {
					return err
				}
				return cli.WriteSession(cmd.OutOrStdout(), sourceID, entry, outputFormat())
			}
			components, logger, err := local(ctx)
			if err != nil {
				return err
			}
			defer logger.Sync()
			defer components.Close()
			entry, err := components.Service.Session(ctx, sourceID)
			if errors.Is(err, models.ErrSourceNotIndexed) {
				entry, err = nil, nil
			}
			if err != nil {
				return err
			}
			return cli.WriteSession(cmd.OutOrStdout(), sourceID, entry, outputFormat())
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:5000", "server URL (empty = always run in-process)")
	return cmd
}

// readTranscriptFile parses path and derives the source id from its name unless id is given.
// File names that are not valid ids map to a stable hash of the absolute path.
func readTranscriptFile(path, id string) (string, []models.TimedSegment, error) {
	if id == "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", nil, fmt.Errorf("resolve %s: %w", path, err)
		}
		id = sourceid.FromPath(abs)
	}
	segments, err := transcript.ParseFile(path)
	if err != nil {
		return "", nil, err
	}
	return id, segments, nil
}
