package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequiredEnv provides the minimum environment for Load to succeed in a
// directory with no config file.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SYSREV_TOPIC_NAME", "Microservice Observability")
	t.Setenv("SYSREV_LLM_OPENAI_API_KEY", "test-key")
}

// inEmptyDir runs the test from a directory without a config file so the
// search path finds nothing.
func inEmptyDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(orig) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	inEmptyDir(t)
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Microservice Observability", cfg.Topic.Name)
	assert.Equal(t, []string{"arxiv", "pubmed", "openalex"}, cfg.Workflow.Databases)
	assert.Equal(t, 100, cfg.Workflow.MaxResults)
	assert.Equal(t, "checkpoints", cfg.Workflow.CheckpointDir)
	assert.Equal(t, 4, cfg.Workflow.Concurrency)

	assert.Equal(t, 0.6, cfg.Screening.IncludeThreshold)
	assert.Equal(t, 0.8, cfg.Screening.ExcludeThreshold)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 3, cfg.LLM.MaxRetries)
	assert.Equal(t, "gpt-4o", cfg.LLM.OpenAI.Model)
	assert.Equal(t, 5, cfg.LLM.Resilience.BreakerThreshold)
	assert.Equal(t, 30*time.Second, cfg.LLM.Resilience.BreakerCooldown)

	assert.Equal(t, "output", cfg.Output.Directory)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Server.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	inEmptyDir(t)
	setRequiredEnv(t)
	t.Setenv("SYSREV_WORKFLOW_MAX_RESULTS", "25")
	t.Setenv("SYSREV_LOGGING_LEVEL", "debug")
	t.Setenv("SYSREV_LLM_TIMEOUT", "90s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Workflow.MaxResults)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 90*time.Second, cfg.LLM.Timeout)
}

func TestLoad_SecretsComeOnlyFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
topic:
  name: Test Topic
llm:
  provider: openai
  openai:
    api_key: from-file-must-be-ignored
    model: gpt-4o-mini
`), 0o600))

	t.Setenv("SYSREV_LLM_OPENAI_API_KEY", "from-env")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.LLM.OpenAI.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.OpenAI.Model)
}

func TestLoadFrom_MissingExplicitFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_PlaceholderSubstitution(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
topic:
  name: Chaos Engineering
  domain: distributed systems
  research_question: Does chaos testing improve resilience?
criteria:
  inclusion:
    - "Study addresses {topic} in {domain}"
    - "Study answers: {question}"
  exclusion:
    - "Study unrelated to {topic}"
agents:
  screener:
    role: "Expert reviewer in {domain}"
    goal: "Screen papers about {topic}"
`), 0o600))

	t.Setenv("SYSREV_LLM_OPENAI_API_KEY", "k")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "Study addresses Chaos Engineering in distributed systems", cfg.Criteria.Inclusion[0])
	assert.Equal(t, "Study answers: Does chaos testing improve resilience?", cfg.Criteria.Inclusion[1])
	assert.Equal(t, "Study unrelated to Chaos Engineering", cfg.Criteria.Exclusion[0])
	assert.Equal(t, "Expert reviewer in distributed systems", cfg.Agents["screener"].Role)
	assert.Equal(t, "Screen papers about Chaos Engineering", cfg.Agents["screener"].Goal)
}

func TestLoad_AgentProviderRequiresKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
topic:
  name: Test Topic
agents:
  writer:
    role: Academic writer
    goal: Write the manuscript
    provider: anthropic
`), 0o600))

	t.Setenv("SYSREV_LLM_OPENAI_API_KEY", "k")
	// No Anthropic key set: the writer agent cannot be served.

	_, err := LoadFrom(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SYSREV_LLM_ANTHROPIC_API_KEY")
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *Config {
		t.Helper()
		inEmptyDir(t)
		setRequiredEnv(t)
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing topic", func(c *Config) { c.Topic.Name = "" }, "topic.name"},
		{"no databases", func(c *Config) { c.Workflow.Databases = nil }, "workflow.databases"},
		{"unknown database", func(c *Config) { c.Workflow.Databases = []string{"scholarnet"} }, "unknown source"},
		{"bad max results", func(c *Config) { c.Workflow.MaxResults = 0 }, "max_results"},
		{"bad concurrency", func(c *Config) { c.Workflow.Concurrency = -1 }, "concurrency"},
		{"inverted date range", func(c *Config) { c.Workflow.DateFrom = 2025; c.Workflow.DateTo = 2015 }, "date_from"},
		{"bad include threshold", func(c *Config) { c.Screening.IncludeThreshold = 1.5 }, "include_threshold"},
		{"bad exclude threshold", func(c *Config) { c.Screening.ExcludeThreshold = -0.1 }, "exclude_threshold"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "log level"},
		{"bad breaker threshold", func(c *Config) { c.LLM.Resilience.BreakerThreshold = 0 }, "breaker_threshold"},
		{"bad server port", func(c *Config) { c.Server.Enabled = true; c.Server.Port = 70000 }, "server port"},
		{"unknown agent provider", func(c *Config) {
			c.Agents = map[string]AgentConfig{"x": {Provider: "cohere"}}
		}, "unknown provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTopicConfig_Context(t *testing.T) {
	tc := TopicConfig{
		Name:             "LLM-Assisted Code Review!",
		Domain:           "software engineering",
		ResearchQuestion: "Does it help?",
		Keywords:         []string{"code review", "llm"},
	}.Context()

	assert.Equal(t, "LLM-Assisted Code Review!", tc.Topic)
	assert.Equal(t, "llm_assisted_code_review", tc.Slug)
	assert.Equal(t, []string{"code review", "llm"}, tc.Keywords)
	assert.Empty(t, tc.Insights)
}
