// Package config loads and validates the engine configuration from YAML
// with environment expansion, merged over built-in defaults.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Config is the root engine configuration.
type Config struct {
	Workflow    WorkflowConfig    `yaml:"workflow"`
	QualityGate QualityGateConfig `yaml:"quality_gate"`
	Aggregator  AggregatorConfig  `yaml:"aggregator"`
	Enricher    EnricherConfig    `yaml:"enricher"`
	LLM         LLMConfig         `yaml:"llm"`
	Server      ServerConfig      `yaml:"server"`
	Sessions    SessionConfig     `yaml:"sessions"`
}

// WorkflowConfig bounds the coordinator's state machine.
type WorkflowConfig struct {
	MaxSearchRounds           int           `yaml:"max_search_rounds"`
	MaxIterations             int           `yaml:"max_iterations"`
	MinPapersRequired         int           `yaml:"min_papers_required"`
	MaxPapersPerRound         int           `yaml:"max_papers_per_round"`
	EnableMultiSource         bool          `yaml:"enable_multi_source"`
	EnableCitationValidation  bool          `yaml:"enable_citation_validation"`
	EnableContextCompression  bool          `yaml:"enable_context_compression"`
	EnableVerifiableChecklist bool          `yaml:"enable_verifiable_checklist"`
	EnableEvidenceAudit       bool          `yaml:"enable_evidence_audit"`
	EnableSemanticSearch      bool          `yaml:"enable_semantic_search"`
	EnableParallelSearch      bool          `yaml:"enable_parallel_search"`
	RequirePlanApproval       bool          `yaml:"require_plan_approval"`
	ParallelSearchConcurrency int           `yaml:"parallel_search_concurrency"`
	CitationStyle             CitationStyle `yaml:"citation_style"`
}

// QualityGateConfig holds the gate thresholds.
type QualityGateConfig struct {
	MinOverallScore    float64 `yaml:"min_overall_score"`
	MinCoverageScore   float64 `yaml:"min_coverage_score"`
	MinCitationDensity float64 `yaml:"min_citation_density"`
	MinUniqueSources   int     `yaml:"min_unique_sources"`
}

// AggregatorConfig tunes the multi-source search aggregator.
type AggregatorConfig struct {
	EnabledSources       []SourceName  `yaml:"enabled_sources"`
	SmartSourceSelection bool          `yaml:"smart_source_selection"`
	MaxRetries           int           `yaml:"max_retries"`
	RetryDelay           time.Duration `yaml:"retry_delay"`
	SearchTimeout        time.Duration `yaml:"search_timeout"`
	MinSuccessfulSources int           `yaml:"min_successful_sources"`
	EnableFallback       bool          `yaml:"enable_fallback"`
	MinCitations         int           `yaml:"min_citations"`
	PreferOpenAccess     bool          `yaml:"prefer_open_access"`
	CacheTTL             time.Duration `yaml:"cache_ttl"`
}

// EnricherConfig tunes the data-availability enricher.
type EnricherConfig struct {
	EnablePDFParsing bool          `yaml:"enable_pdf_parsing"`
	MaxPDFBytes      int64         `yaml:"max_pdf_bytes"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
	TokenBudget      int           `yaml:"token_budget"`
	Concurrency      int           `yaml:"concurrency"`
}

// LLMConfig selects the models used per role.
type LLMConfig struct {
	APIKeyEnv      string        `yaml:"api_key_env"`
	PrimaryModel   string        `yaml:"primary_model"`
	FallbackModel  string        `yaml:"fallback_model"`
	LightModel     string        `yaml:"light_model"`
	MaxTokens      int           `yaml:"max_tokens"`
	Temperature    float64       `yaml:"temperature"`
	MaxRetries     int           `yaml:"max_retries"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ServerConfig holds HTTP surface settings.
type ServerConfig struct {
	Host             string   `yaml:"host"`
	Port             int      `yaml:"port"`
	AllowedWSOrigins []string `yaml:"allowed_ws_origins"`
}

// SessionConfig bounds concurrent sessions and their lifetimes.
type SessionConfig struct {
	MaxConcurrent           int           `yaml:"max_concurrent"`
	SessionTimeout          time.Duration `yaml:"session_timeout"`
	EventBufferSize         int           `yaml:"event_buffer_size"`
	TerminalGracePeriod     time.Duration `yaml:"terminal_grace_period"`
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`
}

// Initialize loads the configuration file (if present), merges it over the
// defaults and validates the result.
func Initialize(ctx context.Context, path string) (*Config, error) {
	cfg, err := Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	slog.Info("Configuration initialized",
		"sources", len(cfg.Aggregator.EnabledSources),
		"max_iterations", cfg.Workflow.MaxIterations,
		"citation_style", cfg.Workflow.CitationStyle)
	return cfg, nil
}
