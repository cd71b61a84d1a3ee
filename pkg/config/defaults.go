package config

import "time"

// DefaultConfig returns the built-in defaults. A configuration file only
// needs to override what it changes.
func DefaultConfig() *Config {
	return &Config{
		Workflow: WorkflowConfig{
			MaxSearchRounds:           5,
			MaxIterations:             3,
			MinPapersRequired:         8,
			MaxPapersPerRound:         20,
			EnableMultiSource:         true,
			EnableCitationValidation:  true,
			EnableContextCompression:  true,
			EnableVerifiableChecklist: true,
			EnableEvidenceAudit:       true,
			EnableSemanticSearch:      false,
			EnableParallelSearch:      true,
			RequirePlanApproval:       false,
			ParallelSearchConcurrency: 3,
			CitationStyle:             CitationStyleIEEE,
		},
		QualityGate: QualityGateConfig{
			MinOverallScore:    70,
			MinCoverageScore:   60,
			MinCitationDensity: 2,
			MinUniqueSources:   5,
		},
		Aggregator: AggregatorConfig{
			EnabledSources: []SourceName{
				SourceOpenAlex, SourceSemanticScholar, SourceArxiv,
			},
			SmartSourceSelection: true,
			MaxRetries:           2,
			RetryDelay:           time.Second,
			SearchTimeout:        30 * time.Second,
			MinSuccessfulSources: 1,
			EnableFallback:       true,
			MinCitations:         0,
			PreferOpenAccess:     true,
			CacheTTL:             15 * time.Minute,
		},
		Enricher: EnricherConfig{
			EnablePDFParsing: true,
			MaxPDFBytes:      20 << 20,
			CacheTTL:         24 * time.Hour,
			TokenBudget:      16000,
			Concurrency:      3,
		},
		LLM: LLMConfig{
			APIKeyEnv:      "ANTHROPIC_API_KEY",
			PrimaryModel:   "claude-sonnet-4-5",
			FallbackModel:  "claude-sonnet-4-0",
			LightModel:     "claude-haiku-4-5",
			MaxTokens:      8192,
			Temperature:    0.3,
			MaxRetries:     2,
			RequestTimeout: 2 * time.Minute,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8790,
		},
		Sessions: SessionConfig{
			MaxConcurrent:           4,
			SessionTimeout:          30 * time.Minute,
			EventBufferSize:         256,
			TerminalGracePeriod:     60 * time.Second,
			GracefulShutdownTimeout: 30 * time.Second,
		},
	}
}
