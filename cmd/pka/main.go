package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/sadjad6/personal-knowledge-agent/internal/config"
	"github.com/sadjad6/personal-knowledge-agent/internal/handler"
	"github.com/sadjad6/personal-knowledge-agent/internal/job"
	"github.com/sadjad6/personal-knowledge-agent/internal/mcpserver"
	"github.com/sadjad6/personal-knowledge-agent/internal/middleware"
	"github.com/sadjad6/personal-knowledge-agent/internal/schedule"
	"github.com/sadjad6/personal-knowledge-agent/internal/watch"
)

var version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "pka",
		Short:        "personal knowledge agent",
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (json, yaml or toml)")

	// setup loads the config and wires the components. Logging to the
	// console is turned off for commands that own stdout.
	setup := func(console bool) (*app, error) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return nil, err
		}
		if !console {
			cfg.LogConfig.Console = false
		}
		logger.Init(
			cfg.LogConfig.File,
			cfg.LogConfig.Level,
			int(cfg.LogConfig.FileCount),
			int(cfg.LogConfig.FileSize),
			int(cfg.LogConfig.KeepDays),
			cfg.LogConfig.Console,
		)
		logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
		return newApp(cfg)
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the http server, scheduler and file watcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(true)
			if err != nil {
				return err
			}
			defer a.Close()
			return runServer(a)
		},
	}

	ingestCmd := &cobra.Command{
		Use:   "ingest [paths...]",
		Short: "index the notes directory, or only the given files",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(true)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()
			if err := a.indexer.EnsureCollection(ctx); err != nil {
				return err
			}
			report, err := a.ingest.Ingest(ctx, args)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}

	var askLimit int
	askCmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "answer a question from the notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(false)
			if err != nil {
				return err
			}
			defer a.Close()
			ans := a.qa.Answer(cmd.Context(), args[0], askLimit)
			fmt.Fprintln(cmd.OutOrStdout(), ans.Text)
			if ans.Failed() {
				return ans.Err
			}
			return nil
		},
	}
	askCmd.Flags().IntVar(&askLimit, "limit", 0, "number of chunks to retrieve (default from config)")

	var summaryDays int
	summarizeCmd := &cobra.Command{
		Use:   "summarize",
		Short: "generate and store a summary of recently ingested notes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(false)
			if err != nil {
				return err
			}
			defer a.Close()
			sum := a.summaries.Generate(cmd.Context(), summaryDays)
			fmt.Fprintln(cmd.OutOrStdout(), sum.Text)
			if sum.Failed() {
				return sum.Err
			}
			if sum.PersistErr != nil {
				return fmt.Errorf("summary not saved: %w", sum.PersistErr)
			}
			cmd.PrintErrf("saved as %s\n", sum.Key)
			return nil
		},
	}
	summarizeCmd.Flags().IntVar(&summaryDays, "days", 0, "window in days (default from config)")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "show index and model status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(false)
			if err != nil {
				return err
			}
			defer a.Close()
			return printJSON(cmd, a.statusService(nil).Status(cmd.Context()))
		},
	}

	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "serve the knowledge base as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(false)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			s := mcpserver.New(mcpserver.Deps{QA: a.qa, Summaries: a.summaries, Version: version})
			logutil.GetLogger(ctx).Info("mcp server listening on stdio")
			return server.NewStdioServer(s).Listen(ctx, os.Stdin, os.Stdout)
		},
	}

	rootCmd.AddCommand(runCmd, ingestCmd, askCmd, summarizeCmd, statusCmd, mcpCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logutil.GetLogger(context.Background()).Fatal("command failed", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func runServer(a *app) error {
	cfg := a.cfg
	logger := logutil.GetLogger(context.Background())
	logger.Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("db_path", cfg.DBPath),
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.String("file_store", cfg.FileStore.Type),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.indexer.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("vector store: %w", err)
	}

	scheduler := schedule.NewCronScheduler()
	if cfg.Summary.IsEnabled() {
		if err := scheduler.AddJob(job.NewSummaryJob(a.summaries, cfg.Summary.WindowDays), cfg.Summary.Schedule); err != nil {
			return fmt.Errorf("schedule summary: %w", err)
		}
	}
	if cfg.Ingest.Schedule != "" {
		if err := scheduler.AddJob(job.NewIngestJob(a.ingest), cfg.Ingest.Schedule); err != nil {
			return fmt.Errorf("schedule ingest: %w", err)
		}
	}
	if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(a.cacheRepo, cfg.EmbedCache.MaxAgeDays), cfg.EmbedCache.CleanupSchedule); err != nil {
		return fmt.Errorf("schedule cache cleanup: %w", err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if cfg.Ingest.OnStartup {
		go func() {
			if _, err := a.ingest.IngestAll(ctx); err != nil {
				logger.Error("startup ingest failed", zap.Error(err))
			}
		}()
	}
	if cfg.Ingest.Watch {
		w := watch.New(a.loader.Root(), a.ingest, time.Duration(cfg.Ingest.DebounceMS)*time.Millisecond)
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error("file watcher stopped", zap.Error(err))
			}
		}()
	}

	deps := handler.RouterDeps{
		QA:        handler.NewQAHandler(a.qa),
		Summaries: handler.NewSummaryHandler(a.summaries),
		Ingest:    handler.NewIngestHandler(a.ingest),
		System:    handler.NewSystemHandler(a.statusService(scheduler), scheduler),
		RateLimit: time.Duration(cfg.RateLimit) * time.Second,
	}
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logger.Info("http server listening", zap.String("addr", addr))

	go func() {
		if err := engine.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("server stopping...")
	return nil
}
