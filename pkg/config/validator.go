package config

import "fmt"

// Validator validates configuration comprehensively with clear error
// messages, failing fast at the first problem.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation in dependency order:
// workflow → quality gate → aggregator → LLM → sessions.
func (v *Validator) ValidateAll() error {
	if err := v.validateWorkflow(); err != nil {
		return fmt.Errorf("workflow: %w", err)
	}
	if err := v.validateQualityGate(); err != nil {
		return fmt.Errorf("quality_gate: %w", err)
	}
	if err := v.validateAggregator(); err != nil {
		return fmt.Errorf("aggregator: %w", err)
	}
	if err := v.validateLLM(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := v.validateServer(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := v.validateSessions(); err != nil {
		return fmt.Errorf("sessions: %w", err)
	}
	return nil
}

func (v *Validator) validateServer() error {
	s := v.cfg.Server
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be in [1,65535], got %d", s.Port)
	}
	return nil
}

func (v *Validator) validateWorkflow() error {
	w := v.cfg.Workflow
	if w.MaxSearchRounds < 1 {
		return fmt.Errorf("max_search_rounds must be >= 1, got %d", w.MaxSearchRounds)
	}
	if w.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be >= 1, got %d", w.MaxIterations)
	}
	if w.MaxPapersPerRound < 1 {
		return fmt.Errorf("max_papers_per_round must be >= 1, got %d", w.MaxPapersPerRound)
	}
	if w.ParallelSearchConcurrency < 1 {
		return fmt.Errorf("parallel_search_concurrency must be >= 1, got %d", w.ParallelSearchConcurrency)
	}
	if !w.CitationStyle.IsValid() {
		return fmt.Errorf("unknown citation_style %q", w.CitationStyle)
	}
	return nil
}

func (v *Validator) validateQualityGate() error {
	g := v.cfg.QualityGate
	if g.MinOverallScore < 0 || g.MinOverallScore > 100 {
		return fmt.Errorf("min_overall_score must be in [0,100], got %v", g.MinOverallScore)
	}
	if g.MinCoverageScore < 0 || g.MinCoverageScore > 100 {
		return fmt.Errorf("min_coverage_score must be in [0,100], got %v", g.MinCoverageScore)
	}
	if g.MinCitationDensity < 0 {
		return fmt.Errorf("min_citation_density must be >= 0, got %v", g.MinCitationDensity)
	}
	if g.MinUniqueSources < 0 {
		return fmt.Errorf("min_unique_sources must be >= 0, got %d", g.MinUniqueSources)
	}
	return nil
}

func (v *Validator) validateAggregator() error {
	a := v.cfg.Aggregator
	if len(a.EnabledSources) == 0 {
		return fmt.Errorf("at least one source must be enabled")
	}
	for _, s := range a.EnabledSources {
		if !s.IsValid() {
			return fmt.Errorf("unknown source %q", s)
		}
	}
	if a.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", a.MaxRetries)
	}
	if a.SearchTimeout <= 0 {
		return fmt.Errorf("search_timeout must be positive, got %v", a.SearchTimeout)
	}
	if a.MinSuccessfulSources < 1 {
		return fmt.Errorf("min_successful_sources must be >= 1, got %d", a.MinSuccessfulSources)
	}
	return nil
}

func (v *Validator) validateLLM() error {
	l := v.cfg.LLM
	if l.PrimaryModel == "" {
		return fmt.Errorf("primary_model is required")
	}
	if l.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be >= 1, got %d", l.MaxTokens)
	}
	if l.Temperature < 0 || l.Temperature > 1 {
		return fmt.Errorf("temperature must be in [0,1], got %v", l.Temperature)
	}
	return nil
}

func (v *Validator) validateSessions() error {
	s := v.cfg.Sessions
	if s.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be >= 1, got %d", s.MaxConcurrent)
	}
	if s.SessionTimeout <= 0 {
		return fmt.Errorf("session_timeout must be positive, got %v", s.SessionTimeout)
	}
	if s.EventBufferSize < 1 {
		return fmt.Errorf("event_buffer_size must be >= 1, got %d", s.EventBufferSize)
	}
	return nil
}
