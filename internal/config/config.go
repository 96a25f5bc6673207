// Package config provides configuration management for the systematic
// review pipeline.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/reviewkit/reviewkit/internal/domain"
)

// Config holds all configuration for a review run.
type Config struct {
	// Topic describes the research topic under review.
	Topic TopicConfig `mapstructure:"topic"`
	// Agents maps agent names to their LLM role configuration.
	Agents map[string]AgentConfig `mapstructure:"agents"`
	// Workflow contains pipeline-level settings.
	Workflow WorkflowConfig `mapstructure:"workflow"`
	// Screening contains keyword pre-filter and threshold settings.
	Screening ScreeningConfig `mapstructure:"screening"`
	// Criteria contains the inclusion/exclusion criteria shown to the LLM.
	Criteria CriteriaConfig `mapstructure:"criteria"`
	// LLM contains provider and resilience settings.
	LLM LLMConfig `mapstructure:"llm"`
	// Output contains report output settings.
	Output OutputConfig `mapstructure:"output"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Server contains the inspection HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
}

// TopicConfig describes the research topic.
type TopicConfig struct {
	// Name is the research topic (required).
	Name string `mapstructure:"name"`
	// Domain is the research field (e.g. "software engineering").
	Domain string `mapstructure:"domain"`
	// ResearchQuestion is the question the review answers.
	ResearchQuestion string `mapstructure:"research_question"`
	// Scope narrows the review (e.g. "2015-2025, peer-reviewed only").
	Scope string `mapstructure:"scope"`
	// Keywords seed the database search queries.
	Keywords []string `mapstructure:"keywords"`
}

// Context builds the TopicContext carried through the workflow.
func (t TopicConfig) Context() *domain.TopicContext {
	return &domain.TopicContext{
		Topic:            t.Name,
		Slug:             domain.Slugify(t.Name),
		Domain:           t.Domain,
		ResearchQuestion: t.ResearchQuestion,
		Scope:            t.Scope,
		Keywords:         append([]string(nil), t.Keywords...),
	}
}

// AgentConfig configures one LLM agent.
type AgentConfig struct {
	// Role is the persona line of the system prompt.
	Role string `mapstructure:"role"`
	// Goal is the task line of the system prompt.
	Goal string `mapstructure:"goal"`
	// Provider overrides llm.provider for this agent (optional).
	Provider string `mapstructure:"provider"`
	// Model overrides the provider's default model (optional).
	Model string `mapstructure:"model"`
	// Temperature overrides llm.temperature for this agent (optional, -1 = inherit).
	Temperature float64 `mapstructure:"temperature"`
}

// WorkflowConfig holds pipeline-level settings.
type WorkflowConfig struct {
	// Databases lists the enabled paper sources (arxiv, pubmed, openalex).
	Databases []string `mapstructure:"databases"`
	// DateFrom is the earliest publication year searched (0 = unbounded).
	DateFrom int `mapstructure:"date_from"`
	// DateTo is the latest publication year searched (0 = unbounded).
	DateTo int `mapstructure:"date_to"`
	// MaxResults caps results per database query.
	MaxResults int `mapstructure:"max_results"`
	// CheckpointDir is where workflow checkpoint directories are created.
	CheckpointDir string `mapstructure:"checkpoint_dir"`
	// Concurrency bounds the number of per-paper LLM calls in flight.
	Concurrency int `mapstructure:"concurrency"`
}

// ScreeningConfig holds keyword pre-filter settings.
type ScreeningConfig struct {
	// InclusionConcepts are groups of interchangeable inclusion terms; a
	// paper matching a majority of groups passes the pre-filter.
	InclusionConcepts [][]string `mapstructure:"inclusion_concepts"`
	// ExclusionConcepts are groups of exclusion terms.
	ExclusionConcepts [][]string `mapstructure:"exclusion_concepts"`
	// IncludeThreshold is the inclusion score required to include without
	// an LLM call (default 0.6).
	IncludeThreshold float64 `mapstructure:"include_threshold"`
	// ExcludeThreshold is the exclusion score required to exclude without
	// an LLM call (default 0.8).
	ExcludeThreshold float64 `mapstructure:"exclude_threshold"`
}

// CriteriaConfig holds the eligibility criteria shown to the LLM screener.
// Entries may contain {topic}, {domain}, and {question} placeholders, which
// are substituted from the topic section at load time.
type CriteriaConfig struct {
	Inclusion []string `mapstructure:"inclusion"`
	Exclusion []string `mapstructure:"exclusion"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	// Provider is the default LLM provider (openai, anthropic).
	Provider string `mapstructure:"provider"`
	// Timeout is the per-call timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries is the maximum number of retries for failed calls.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// Temperature is the default sampling temperature.
	Temperature float64 `mapstructure:"temperature"`
	// OpenAI contains OpenAI-specific settings.
	OpenAI OpenAIConfig `mapstructure:"openai"`
	// Anthropic contains Anthropic-specific settings.
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	// Resilience contains rate limiter and circuit breaker settings.
	Resilience ResilienceConfig `mapstructure:"resilience"`
}

// OpenAIConfig holds OpenAI-specific settings.
type OpenAIConfig struct {
	// APIKey is loaded exclusively from SYSREV_LLM_OPENAI_API_KEY.
	APIKey string `mapstructure:"-"`
	// Model is the OpenAI model to use.
	Model string `mapstructure:"model"`
	// BaseURL is the OpenAI API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic-specific settings.
type AnthropicConfig struct {
	// APIKey is loaded exclusively from SYSREV_LLM_ANTHROPIC_API_KEY.
	APIKey string `mapstructure:"-"`
	// Model is the Anthropic model to use.
	Model string `mapstructure:"model"`
	// BaseURL is the Anthropic API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
}

// ResilienceConfig holds rate limiter and circuit breaker settings for LLM
// calls.
type ResilienceConfig struct {
	// RateLimitRPS is the requests-per-second limit per provider.
	RateLimitRPS float64 `mapstructure:"rate_limit_rps"`
	// RateLimitBurst is the burst size for the rate limiter.
	RateLimitBurst int `mapstructure:"rate_limit_burst"`
	// BreakerThreshold is consecutive failures before a circuit opens.
	BreakerThreshold int `mapstructure:"breaker_threshold"`
	// BreakerCooldown is how long an open circuit rejects calls before a probe.
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

// OutputConfig holds report output settings.
type OutputConfig struct {
	// Directory is where the report and exports are written.
	Directory string `mapstructure:"directory"`
	// Formats lists output formats; only "markdown" is currently produced.
	Formats []string `mapstructure:"formats"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics exposure on the inspection server.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for the metrics endpoint.
	Path string `mapstructure:"path"`
	// Namespace is the metric name prefix.
	Namespace string `mapstructure:"namespace"`
}

// ServerConfig holds the inspection HTTP server configuration.
type ServerConfig struct {
	// Enabled starts the inspection server alongside a run.
	Enabled bool `mapstructure:"enabled"`
	// Host is the address to bind to.
	Host string `mapstructure:"host"`
	// Port is the HTTP port.
	Port int `mapstructure:"port"`
	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing a response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the inspection server bind address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load loads configuration from defaults, the config file search path, and
// SYSREV_-prefixed environment variables.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom loads configuration like Load, but reads the config file at path
// when path is non-empty. A missing explicit file is an error; a missing
// file on the search path is not.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("SYSREV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/sysrev")

		if err := v.ReadInConfig(); err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// No file on the search path: env vars and defaults only.
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Secrets use mapstructure:"-" so they can never come from config files.
	loadSecrets(&cfg)

	cfg.substitutePlaceholders()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.LLM.OpenAI.APIKey = os.Getenv("SYSREV_LLM_OPENAI_API_KEY")
	cfg.LLM.Anthropic.APIKey = os.Getenv("SYSREV_LLM_ANTHROPIC_API_KEY")
}

// substitutePlaceholders replaces {topic}, {domain}, and {question} in
// criteria entries and agent prompts with the topic section's values.
func (c *Config) substitutePlaceholders() {
	replacer := strings.NewReplacer(
		"{topic}", c.Topic.Name,
		"{domain}", c.Topic.Domain,
		"{question}", c.Topic.ResearchQuestion,
	)

	for i, entry := range c.Criteria.Inclusion {
		c.Criteria.Inclusion[i] = replacer.Replace(entry)
	}
	for i, entry := range c.Criteria.Exclusion {
		c.Criteria.Exclusion[i] = replacer.Replace(entry)
	}
	for name, agent := range c.Agents {
		agent.Role = replacer.Replace(agent.Role)
		agent.Goal = replacer.Replace(agent.Goal)
		c.Agents[name] = agent
	}
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Topic defaults are empty strings so env-only overrides bind.
	v.SetDefault("topic.name", "")
	v.SetDefault("topic.domain", "")
	v.SetDefault("topic.research_question", "")
	v.SetDefault("topic.scope", "")

	// Workflow defaults
	v.SetDefault("workflow.databases", []string{"arxiv", "pubmed", "openalex"})
	v.SetDefault("workflow.date_from", 0)
	v.SetDefault("workflow.date_to", 0)
	v.SetDefault("workflow.max_results", 100)
	v.SetDefault("workflow.checkpoint_dir", "checkpoints")
	v.SetDefault("workflow.concurrency", 4)

	// Screening defaults
	v.SetDefault("screening.include_threshold", 0.6)
	v.SetDefault("screening.exclude_threshold", 0.8)

	// LLM defaults
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay", "2s")
	v.SetDefault("llm.temperature", 0.3)
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("llm.openai.model", "gpt-4o")
	v.SetDefault("llm.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.anthropic.model", "claude-3-5-sonnet-20241022")
	v.SetDefault("llm.anthropic.base_url", "https://api.anthropic.com")

	// LLM resilience defaults
	v.SetDefault("llm.resilience.rate_limit_rps", 5.0)
	v.SetDefault("llm.resilience.rate_limit_burst", 10)
	v.SetDefault("llm.resilience.breaker_threshold", 5)
	v.SetDefault("llm.resilience.breaker_cooldown", "30s")

	// Output defaults
	v.SetDefault("output.directory", "output")
	v.SetDefault("output.formats", []string{"markdown"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "sysrev")

	// Inspection server defaults
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
}

// knownDatabases are the paper sources the search phase can use.
var knownDatabases = map[string]bool{
	string(domain.SourceTypeArXiv):    true,
	string(domain.SourceTypePubMed):   true,
	string(domain.SourceTypeOpenAlex): true,
}

// Validate validates the configuration. Failures are fatal at startup: each
// message names the offending field so the operator can fix the file.
func (c *Config) Validate() error {
	if c.Topic.Name == "" {
		return fmt.Errorf("topic.name is required")
	}

	if len(c.Workflow.Databases) == 0 {
		return fmt.Errorf("workflow.databases must list at least one source")
	}
	for _, db := range c.Workflow.Databases {
		if !knownDatabases[strings.ToLower(db)] {
			return fmt.Errorf("workflow.databases: unknown source %q", db)
		}
	}
	if c.Workflow.MaxResults <= 0 {
		return fmt.Errorf("workflow.max_results must be positive")
	}
	if c.Workflow.Concurrency <= 0 {
		return fmt.Errorf("workflow.concurrency must be positive")
	}
	if c.Workflow.DateFrom != 0 && c.Workflow.DateTo != 0 && c.Workflow.DateFrom > c.Workflow.DateTo {
		return fmt.Errorf("workflow.date_from (%d) must not exceed workflow.date_to (%d)", c.Workflow.DateFrom, c.Workflow.DateTo)
	}
	if c.Workflow.CheckpointDir == "" {
		return fmt.Errorf("workflow.checkpoint_dir is required")
	}

	if c.Screening.IncludeThreshold < 0 || c.Screening.IncludeThreshold > 1 {
		return fmt.Errorf("screening.include_threshold must be between 0 and 1")
	}
	if c.Screening.ExcludeThreshold < 0 || c.Screening.ExcludeThreshold > 1 {
		return fmt.Errorf("screening.exclude_threshold must be between 0 and 1")
	}

	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries must not be negative")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive")
	}
	if c.LLM.Resilience.BreakerThreshold <= 0 {
		return fmt.Errorf("llm.resilience.breaker_threshold must be positive")
	}
	if c.LLM.Resilience.RateLimitRPS <= 0 {
		return fmt.Errorf("llm.resilience.rate_limit_rps must be positive")
	}

	if c.Output.Directory == "" {
		return fmt.Errorf("output.directory is required")
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Every agent's provider (or the default) needs its API key.
	providers := map[string]bool{strings.ToLower(c.LLM.Provider): true}
	for name, agent := range c.Agents {
		p := strings.ToLower(agent.Provider)
		if p == "" {
			continue
		}
		if p != "openai" && p != "anthropic" {
			return fmt.Errorf("agents.%s.provider: unknown provider %q", name, agent.Provider)
		}
		providers[p] = true
	}
	for p := range providers {
		switch p {
		case "openai":
			if c.LLM.OpenAI.APIKey == "" {
				return fmt.Errorf("provider %q requires SYSREV_LLM_OPENAI_API_KEY to be set", p)
			}
		case "anthropic":
			if c.LLM.Anthropic.APIKey == "" {
				return fmt.Errorf("provider %q requires SYSREV_LLM_ANTHROPIC_API_KEY to be set", p)
			}
		default:
			return fmt.Errorf("llm.provider: unknown provider %q", p)
		}
	}

	return nil
}
