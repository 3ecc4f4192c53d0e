package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"claude-relay/internal/config"
	"claude-relay/internal/logging"
	"claude-relay/internal/realtime"
	"claude-relay/internal/session"
	"claude-relay/internal/store"
	"claude-relay/internal/summary"
	"claude-relay/internal/transcript"
	"claude-relay/internal/watcher"
)

var version = "dev"

func main() {
	cmd := rootCmd()
	cmd.AddCommand(versionCmd())

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		port       string
	)

	cmd := &cobra.Command{
		Use:          "claude-relay",
		Short:        "Relay Claude CLI sessions to the browser",
		Long:         "claude-relay runs Claude CLI processes on behalf of web clients and streams their output over WebSocket.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if port != "" {
				cfg.Port = port
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	cmd.Flags().StringVar(&port, "port", "", "Listen port or host:port (overrides PORT)")

	return cmd
}

func run(parent context.Context, cfg *config.Config) error {
	logger, logWriter, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	if c, ok := logWriter.(io.Closer); ok {
		defer c.Close()
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	projectsDir := cfg.Claude.ProjectsDir
	if projectsDir == "" {
		projectsDir = transcript.DefaultRoot()
	}
	transcripts := transcript.NewRepository(projectsDir)
	repo := store.NewRepository(st, transcripts, cfg.Summary.WriteTranscript, logger)

	hub := realtime.NewHub(cfg.ReplayBuffer, logger)

	var gen summary.Generator = summary.FirstPrompt{}
	if cfg.Summary.Generator == config.GeneratorCLI {
		gen = summary.CLI{Binary: cfg.Claude.Binary, Model: cfg.Summary.Model, Env: cfg.Claude.Env}
	}
	regen := summary.NewRegenerator(repo, gen, hub, summary.RegeneratorOptions{
		RecentMessages: cfg.Summary.RecentMessages,
		Logger:         logger,
	})
	scheduler := summary.NewScheduler(summary.SchedulerConfig{
		Interval: cfg.Summary.Interval,
		Delay:    cfg.Summary.Delay,
		Logger:   logger,
	}, regen.Run)
	defer scheduler.Stop()

	supervisor := session.NewSupervisor(session.Options{
		Binary:       cfg.Claude.Binary,
		DefaultModel: cfg.Claude.DefaultModel,
		Env:          cfg.Claude.Env,
		Logger:       logger,
	}, hub, scheduler)
	defer supervisor.Shutdown()

	rtServer := realtime.New(realtime.Options{
		Hub:        hub,
		Supervisor: supervisor,
		Summaries:  scheduler,
		Sessions:   repo,
		Health:     st.Ping,
		StaticDir:  cfg.StaticDir,
		Logger:     logger,

		AllowedOrigins: cfg.AllowedOrigins,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           rtServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server listening", "addr", httpServer.Addr, "projects", projectsDir)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.WatchProjects {
		fileWatch := watcher.New(projectsDir, rtServer.OnTranscriptUpdate, logger)
		g.Go(func() error {
			return fileWatch.Run(ctx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
