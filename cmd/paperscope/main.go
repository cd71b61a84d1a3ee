// Paperscope server: exposes the deep-research engine over HTTP and
// WebSocket, coordinating literature search, synthesis and review.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/paperscope/paperscope/pkg/aggregator"
	"github.com/paperscope/paperscope/pkg/api"
	"github.com/paperscope/paperscope/pkg/audit"
	"github.com/paperscope/paperscope/pkg/checklist"
	"github.com/paperscope/paperscope/pkg/config"
	"github.com/paperscope/paperscope/pkg/coordinator"
	"github.com/paperscope/paperscope/pkg/critic"
	"github.com/paperscope/paperscope/pkg/enrich"
	"github.com/paperscope/paperscope/pkg/llm"
	"github.com/paperscope/paperscope/pkg/planner"
	"github.com/paperscope/paperscope/pkg/source"
	"github.com/paperscope/paperscope/pkg/source/arxiv"
	"github.com/paperscope/paperscope/pkg/source/crossref"
	"github.com/paperscope/paperscope/pkg/source/openalex"
	"github.com/paperscope/paperscope/pkg/version"
	"github.com/paperscope/paperscope/pkg/writer"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config",
		getEnv("PAPERSCOPE_CONFIG", "./paperscope.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnv("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, continuing with existing environment")
	}

	slog.Info("Starting paperscope", "version", version.Version, "commit", version.Commit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(ctx, *configPath)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	apiKey := os.Getenv(cfg.LLM.APIKeyEnv)
	if apiKey == "" {
		slog.Error("Missing LLM API key", "env", cfg.LLM.APIKeyEnv)
		os.Exit(1)
	}
	client, err := llm.NewAnthropicClientFromAPIKey(apiKey, cfg.LLM)
	if err != nil {
		slog.Error("Failed to create LLM client", "error", err)
		os.Exit(1)
	}
	usage := llm.NewUsageTracker()
	caller := llm.NewCaller(client, cfg.LLM, usage)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	mailto := os.Getenv("PAPERSCOPE_MAILTO")

	registry := source.NewRegistry()
	for _, adapter := range []source.Adapter{
		openalex.New(httpClient, mailto),
		arxiv.New(httpClient),
	} {
		if err := registry.Register(adapter); err != nil {
			slog.Error("Failed to register source adapter", "source", adapter.Name(), "error", err)
			os.Exit(1)
		}
	}
	slog.Info("Source adapters registered", "sources", registry.Names())

	var pdf *enrich.PDFFetcher
	if cfg.Enricher.EnablePDFParsing {
		pdf = enrich.NewPDFFetcher(httpClient, cfg.Enricher.MaxPDFBytes)
	}

	var crossrefClient *crossref.Client
	if cfg.Workflow.EnableCitationValidation {
		crossrefClient = crossref.New(httpClient, mailto)
	}

	coord := coordinator.New(coordinator.Deps{
		Config:     cfg,
		Aggregator: aggregator.New(registry, cfg.Aggregator),
		Enricher:   enrich.New(registry, pdf, cfg.Enricher),
		Planner:    planner.New(caller),
		Writer:     writer.New(client, cfg.LLM, usage),
		Critic:     critic.New(caller),
		Auditor:    audit.New(caller),
		Checklist:  checklist.New(caller),
		Crossref:   crossrefClient,
		Caller:     caller,
	})
	manager := coordinator.NewManager(coord, cfg.Sessions)

	server := api.NewServer(manager, cfg.Server)
	if err := server.Run(ctx, cfg.Sessions.GracefulShutdownTimeout); err != nil && err != http.ErrServerClosed {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}

	tokens, calls := usage.Total()
	slog.Info("Paperscope stopped",
		"llm_calls", calls,
		"input_tokens", tokens.InputTokens,
		"output_tokens", tokens.OutputTokens)
}
