// mnemo serves conversational memory for LLM agents: per-session working
// memory with summarization, and a long-term store with vector search,
// deduplication, and fact extraction. It exposes an HTTP API by default and
// an MCP stdio surface with --mcp.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"

	"github.com/mnemo-ai/mnemo/config"
	"github.com/mnemo-ai/mnemo/dedup"
	"github.com/mnemo-ai/mnemo/extract"
	"github.com/mnemo-ai/mnemo/hydrate"
	"github.com/mnemo-ai/mnemo/llm/providers"
	"github.com/mnemo-ai/mnemo/longterm"
	"github.com/mnemo-ai/mnemo/mcpserver"
	"github.com/mnemo-ai/mnemo/server"
	"github.com/mnemo-ai/mnemo/slogger"
	"github.com/mnemo-ai/mnemo/summarize"
	"github.com/mnemo-ai/mnemo/tasks"
	"github.com/mnemo-ai/mnemo/tokens"
	"github.com/mnemo-ai/mnemo/vectorstore"
	"github.com/mnemo-ai/mnemo/vectorstore/localvec"
	"github.com/mnemo-ai/mnemo/vectorstore/redisvec"
	"github.com/mnemo-ai/mnemo/workingmemory"
)

const version = "0.1.0"

const shutdownTimeout = 15 * time.Second

// backlogSweepInterval paces the discrete-extraction backlog sweep.
const backlogSweepInterval = 5 * time.Minute

func main() {
	configPath := flag.String("config", "", "Path to a YAML or JSON config file")
	mcpMode := flag.Bool("mcp", false, "Serve MCP over stdio instead of HTTP")
	flag.Parse()

	if err := run(*configPath, *mcpMode); err != nil {
		fmt.Fprintln(os.Stderr, "mnemo:", err)
		os.Exit(1)
	}
}

func run(configPath string, mcpMode bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	mcpMode = mcpMode || cfg.MCP.Stdio

	logger := newLogger(cfg.Log.Level, mcpMode)

	registry := providers.NewRegistry()

	generator, err := registry.ClientForModel(cfg.LLM.GenerationModel)
	if err != nil {
		return err
	}
	embedder, err := registry.EmbeddingClientForModel(cfg.LLM.EmbeddingModel)
	if err != nil {
		return err
	}

	var (
		wmStore workingmemory.Store
		adapter vectorstore.Adapter
	)
	if cfg.Redis.URL != "" {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parsing redis url: %w", err)
		}
		client := redis.NewClient(redisOpts)
		defer client.Close()
		wmStore = workingmemory.NewRedisStore(client)
		adapter = redisvec.New(client, redisvec.WithDimensions(cfg.LLM.EmbeddingDims))
		logger.Info("using redis storage", "addr", redisOpts.Addr)
	} else {
		wmStore = workingmemory.NewMemoryStore()
		adapter = localvec.New()
		logger.Warn("no redis url configured, memory will not survive restarts")
	}

	runner := tasks.NewRunner(
		tasks.WithWorkers(cfg.Tasks.Workers),
		tasks.WithQueueSize(cfg.Tasks.QueueSize),
		tasks.WithLogger(logger),
	)

	engineOpts := []longterm.Option{
		longterm.WithRunner(runner),
		longterm.WithSemanticDupThreshold(cfg.Memory.SemanticDupThreshold),
	}
	if !cfg.Memory.DisableDedup {
		engineOpts = append(engineOpts,
			longterm.WithSemanticJudge(dedup.NewSemanticJudge(generator, cfg.LLM.GenerationModel)))
	}
	if !cfg.Memory.DisableExtraction {
		engineOpts = append(engineOpts,
			longterm.WithExtractor(extract.New(generator, cfg.LLM.GenerationModel)))
	}
	engine, err := longterm.New(adapter, embedder, engineOpts...)
	if err != nil {
		return err
	}

	counter := tokens.NewCounter()
	sessions := workingmemory.NewService(
		wmStore,
		summarize.New(generator, counter),
		counter,
		runner,
		engine,
		workingmemory.WithWindowSize(cfg.Memory.WindowSize),
	)
	hydrator := hydrate.New(sessions, engine)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !cfg.Memory.DisableExtraction {
		scheduleBacklogSweep(ctx, runner, engine)
	}

	if mcpMode {
		return serveMCP(ctx, logger, runner, sessions, engine, hydrator)
	}
	return serveHTTP(ctx, cfg, logger, runner, sessions, engine, hydrator)
}

func serveHTTP(ctx context.Context, cfg *config.Config, logger slogger.Logger, runner *tasks.Runner,
	sessions *workingmemory.Service, engine *longterm.Engine, hydrator *hydrate.Hydrator) error {

	srv := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: server.New(sessions, engine, hydrator,
			server.WithRunner(runner),
			server.WithLogger(logger),
		).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http shutdown failed", "error", err)
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Error("task runner shutdown failed", "error", err)
	}
	return nil
}

func serveMCP(ctx context.Context, logger slogger.Logger, runner *tasks.Runner,
	sessions *workingmemory.Service, engine *longterm.Engine, hydrator *hydrate.Hydrator) error {

	mcpSrv := mcpserver.New("mnemo", version, sessions, engine, hydrator,
		mcpserver.WithLogger(logger))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mcp server listening on stdio", "version", version)
		errCh <- mcpSrv.ServeStdio()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Error("task runner shutdown failed", "error", err)
	}
	return nil
}

// scheduleBacklogSweep enqueues the discrete-extraction backlog sweep once
// at startup and again on each tick. The task key coalesces overlapping
// sweeps; enqueues after shutdown are rejected by the runner.
func scheduleBacklogSweep(ctx context.Context, runner *tasks.Runner, engine *longterm.Engine) {
	enqueue := func() {
		runner.Enqueue(&tasks.Task{
			Name: "extract-backlog",
			Key:  "extract-backlog",
			Run:  engine.ExtractBacklog,
		})
	}
	enqueue()
	go func() {
		ticker := time.NewTicker(backlogSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				enqueue()
			}
		}
	}()
}

// newLogger builds the process logger. In MCP mode stdout is the transport,
// so logs go to stderr.
func newLogger(level string, mcpMode bool) slogger.Logger {
	logLevel := slogger.LevelFromString(level)
	if !mcpMode {
		return slogger.New(logLevel)
	}
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		NoColor: true,
		Level:   slog.Level(logLevel),
	})
	return slogger.FromSlog(slog.New(handler))
}
