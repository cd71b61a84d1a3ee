package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, NewValidator(cfg).ValidateAll())

	assert.Equal(t, 5, cfg.Workflow.MaxSearchRounds)
	assert.Equal(t, 3, cfg.Workflow.MaxIterations)
	assert.Equal(t, CitationStyleIEEE, cfg.Workflow.CitationStyle)
	assert.Equal(t, float64(70), cfg.QualityGate.MinOverallScore)
	assert.Equal(t, 30*time.Second, cfg.Aggregator.SearchTimeout)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Workflow.MaxIterations, cfg.Workflow.MaxIterations)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paperscope.yaml")
	content := `
workflow:
  max_iterations: 5
  citation_style: apa
quality_gate:
  min_overall_score: 80
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Workflow.MaxIterations)
	assert.Equal(t, CitationStyleAPA, cfg.Workflow.CitationStyle)
	assert.Equal(t, float64(80), cfg.QualityGate.MinOverallScore)
	// Untouched keys keep defaults.
	assert.Equal(t, 5, cfg.Workflow.MaxSearchRounds)
	assert.Equal(t, 2, cfg.Aggregator.MaxRetries)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("PAPERSCOPE_TEST_MODEL", "claude-sonnet-4-5")
	out := ExpandEnv([]byte("llm:\n  primary_model: \"{{.PAPERSCOPE_TEST_MODEL}}\"\n"))
	assert.Contains(t, string(out), "claude-sonnet-4-5")
}

func TestExpandEnvMissingVarIsEmpty(t *testing.T) {
	out := ExpandEnv([]byte("key: \"{{.PAPERSCOPE_DOES_NOT_EXIST}}\"\n"))
	assert.Contains(t, string(out), `key: ""`)
}

func TestValidatorRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero iterations", func(c *Config) { c.Workflow.MaxIterations = 0 }},
		{"bad citation style", func(c *Config) { c.Workflow.CitationStyle = "bibtex" }},
		{"no sources", func(c *Config) { c.Aggregator.EnabledSources = nil }},
		{"unknown source", func(c *Config) { c.Aggregator.EnabledSources = []SourceName{"scholar-x"} }},
		{"score out of range", func(c *Config) { c.QualityGate.MinOverallScore = 140 }},
		{"empty model", func(c *Config) { c.LLM.PrimaryModel = "" }},
		{"zero concurrent sessions", func(c *Config) { c.Sessions.MaxConcurrent = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, NewValidator(cfg).ValidateAll())
		})
	}
}
