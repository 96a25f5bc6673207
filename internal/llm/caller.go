package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/reviewkit/reviewkit/internal/observability"
)

// ParseFailureKind tags why a schema-constrained call attempt failed.
// Expected failures are routed through this tagged outcome instead of
// exceptions; errors are reserved for programming faults.
type ParseFailureKind string

const (
	FailProviderError ParseFailureKind = "provider_error"
	FailTimeout       ParseFailureKind = "timeout"
	FailCircuitOpen   ParseFailureKind = "circuit_open"
	FailEmptyResponse ParseFailureKind = "empty_response"
	FailMalformedJSON ParseFailureKind = "malformed_json"
	FailMissingField  ParseFailureKind = "missing_field"
	FailOutOfRange    ParseFailureKind = "out_of_range"
)

// ParseFailure is the tagged outcome of a failed call attempt.
type ParseFailure struct {
	Kind ParseFailureKind
	Err  error
}

// String returns a human-readable description of the failure.
func (f *ParseFailure) String() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	}
	return string(f.Kind)
}

// CallerConfig holds the resilience parameters for one agent's calls.
type CallerConfig struct {
	// Agent is the agent name used for metrics and cost accounting
	// (e.g. "screener", "extractor", "writer").
	Agent string

	// MaxRetries is the schema-call retry budget. Attempts are independent.
	MaxRetries int

	// RetryDelay is the backoff before the first retry; it doubles per attempt.
	RetryDelay time.Duration

	// CallTimeout bounds a single provider call. Exceeding it counts as a
	// failure toward the retry budget and the circuit breaker.
	CallTimeout time.Duration
}

// Caller wraps a Provider with the full resilience stack: rate limiting,
// per-call timeout, circuit breaking, schema validation with retries,
// marker-based text fallback, and a synthetic terminal result.
//
// No LLM-related error ever escapes CallDecision: every code path ends in
// either a validated structured result or a typed uncertain/degraded one.
type Caller struct {
	provider Provider
	cfg      CallerConfig
	breaker  *CircuitBreaker
	limiter  *rate.Limiter
	validate *validator.Validate
	obs      *observability.Observer
}

// NewCaller creates a Caller. breaker and limiter may be nil to disable
// circuit breaking or rate limiting.
func NewCaller(provider Provider, cfg CallerConfig, breaker *CircuitBreaker, limiter *rate.Limiter, obs *observability.Observer) *Caller {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if obs == nil {
		obs = observability.Nop()
	}
	return &Caller{
		provider: provider,
		cfg:      cfg,
		breaker:  breaker,
		limiter:  limiter,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		obs:      obs,
	}
}

// Provider returns the wrapped provider.
func (c *Caller) Provider() Provider { return c.provider }

// Agent returns the agent name this caller records metrics under.
func (c *Caller) Agent() string { return c.cfg.Agent }

// complete performs one guarded provider call: rate limit, breaker check,
// timeout, metrics, and cost accounting. Failures come back as tagged
// outcomes, never as raised errors.
func (c *Caller) complete(ctx context.Context, req Request) (*Response, *ParseFailure) {
	m := c.obs.Metrics

	if c.breaker != nil {
		if err := c.breaker.Allow(); err != nil {
			m.CircuitBreakerShortCircuits.WithLabelValues(c.cfg.Agent).Inc()
			return nil, &ParseFailure{Kind: FailCircuitOpen, Err: err}
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &ParseFailure{Kind: FailTimeout, Err: err}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	m.LLMRequestsTotal.WithLabelValues(c.cfg.Agent, c.provider.Model()).Inc()
	start := time.Now()
	resp, err := c.provider.Complete(callCtx, req)
	m.LLMRequestDuration.WithLabelValues(c.cfg.Agent, c.provider.Model()).Observe(time.Since(start).Seconds())

	if err != nil {
		kind := FailProviderError
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			kind = FailTimeout
		}
		m.LLMRequestsFailed.WithLabelValues(c.cfg.Agent, c.provider.Model(), string(kind)).Inc()
		if c.breaker != nil && c.breaker.RecordFailure() {
			m.CircuitBreakerTrips.WithLabelValues(c.cfg.Agent).Inc()
			c.obs.Logger.Warn().
				Str("agent", c.cfg.Agent).
				Str("provider", c.provider.Name()).
				Msg("circuit breaker opened")
		}
		return nil, &ParseFailure{Kind: kind, Err: err}
	}

	if c.breaker != nil {
		c.breaker.RecordSuccess()
	}
	m.LLMTokensUsed.WithLabelValues(c.cfg.Agent, c.provider.Model(), "input").Add(float64(resp.Usage.InputTokens))
	m.LLMTokensUsed.WithLabelValues(c.cfg.Agent, c.provider.Model(), "output").Add(float64(resp.Usage.OutputTokens))
	c.obs.Costs.Record(c.cfg.Agent, c.provider.Name(), c.provider.Model(), resp.Usage.InputTokens, resp.Usage.OutputTokens)

	return resp, nil
}

// recordParseFailure maps an attempt failure onto the failed-requests
// metric for kinds produced after a successful HTTP exchange.
func (c *Caller) recordParseFailure(kind ParseFailureKind) {
	c.obs.Metrics.LLMRequestsFailed.WithLabelValues(c.cfg.Agent, c.provider.Model(), string(kind)).Inc()
}

// CallStructured performs a schema-constrained call for an arbitrary target
// shape T, retrying up to the configured budget with exponential backoff.
// T's fields declare their constraints with validator tags; a response that
// fails decoding or validation is a schema failure, not a crash.
//
// A circuit-open outcome is returned immediately: retrying would not reach
// the network either.
func CallStructured[T any](ctx context.Context, c *Caller, systemPrompt, userPrompt string) (*T, *ParseFailure) {
	req := Request{
		Messages: []Message{
			{Role: RoleSystem, Content: systemPrompt},
			{Role: RoleUser, Content: userPrompt},
		},
		ResponseFormat: FormatJSON,
	}

	var lastFail *ParseFailure
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.cfg.RetryDelay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, &ParseFailure{Kind: FailTimeout, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		out, fail := attemptStructured[T](ctx, c, req)
		if fail == nil {
			return out, nil
		}
		if fail.Kind == FailCircuitOpen {
			return nil, fail
		}
		lastFail = fail

		c.obs.Logger.Debug().
			Str("agent", c.cfg.Agent).
			Int("attempt", attempt+1).
			Str("failure", fail.String()).
			Msg("schema-constrained call failed")
	}

	return nil, lastFail
}

// CallText performs a free-text call, retrying up to the configured budget
// with exponential backoff. Empty responses count as failures. Like
// CallStructured, a circuit-open outcome is returned immediately.
func CallText(ctx context.Context, c *Caller, systemPrompt, userPrompt string) (string, *ParseFailure) {
	req := Request{
		Messages: []Message{
			{Role: RoleSystem, Content: systemPrompt},
			{Role: RoleUser, Content: userPrompt},
		},
		ResponseFormat: FormatText,
	}

	var lastFail *ParseFailure
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.cfg.RetryDelay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return "", &ParseFailure{Kind: FailTimeout, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		resp, fail := c.complete(ctx, req)
		if fail == nil {
			content := strings.TrimSpace(resp.Content)
			if content != "" {
				return content, nil
			}
			c.recordParseFailure(FailEmptyResponse)
			fail = &ParseFailure{Kind: FailEmptyResponse, Err: errors.New("response is empty or whitespace-only")}
		}
		if fail.Kind == FailCircuitOpen {
			return "", fail
		}
		lastFail = fail

		c.obs.Logger.Debug().
			Str("agent", c.cfg.Agent).
			Int("attempt", attempt+1).
			Str("failure", fail.String()).
			Msg("free-text call failed")
	}

	return "", lastFail
}

// attemptStructured is a single schema-constrained attempt: one provider
// call, JSON decode into a fresh T, and validator check.
func attemptStructured[T any](ctx context.Context, c *Caller, req Request) (*T, *ParseFailure) {
	resp, fail := c.complete(ctx, req)
	if fail != nil {
		return nil, fail
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		c.recordParseFailure(FailEmptyResponse)
		return nil, &ParseFailure{Kind: FailEmptyResponse, Err: errors.New("response is empty or whitespace-only")}
	}

	out := new(T)
	if err := json.Unmarshal([]byte(content), out); err != nil {
		c.recordParseFailure(FailMalformedJSON)
		return nil, &ParseFailure{Kind: FailMalformedJSON, Err: err}
	}

	if err := c.validate.Struct(out); err != nil {
		kind := classifyValidationError(err)
		c.recordParseFailure(kind)
		return nil, &ParseFailure{Kind: kind, Err: err}
	}

	return out, nil
}

// classifyValidationError distinguishes missing required fields from
// out-of-range or otherwise invalid values.
func classifyValidationError(err error) ParseFailureKind {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Tag() == "required" {
				return FailMissingField
			}
		}
	}
	return FailOutOfRange
}

// Decision is the structured verdict shape used by screening calls.
type Decision struct {
	Decision        string  `json:"decision" validate:"required,oneof=include exclude uncertain"`
	Confidence      float64 `json:"confidence" validate:"min=0,max=1"`
	Reasoning       string  `json:"reasoning"`
	ExclusionReason string  `json:"exclusion_reason,omitempty"`
}

// DecisionSource records which path produced a Decision.
type DecisionSource string

const (
	// DecisionFromSchema: the schema-constrained call validated.
	DecisionFromSchema DecisionSource = "schema"

	// DecisionFromText: schema retries exhausted, marker parsing succeeded.
	DecisionFromText DecisionSource = "text_fallback"

	// DecisionSynthetic: every path failed; the result is the terminal
	// uncertain fallback.
	DecisionSynthetic DecisionSource = "synthetic"

	// DecisionDegraded: the circuit breaker rejected the call without
	// network I/O.
	DecisionDegraded DecisionSource = "degraded"
)

// Tolerant field-marker extraction for the text fallback.
var (
	decisionMarkerRe   = regexp.MustCompile(`(?im)^\s*\**\s*DECISION\s*\**\s*[:\-]\s*(\w+)`)
	confidenceMarkerRe = regexp.MustCompile(`(?im)^\s*\**\s*CONFIDENCE\s*\**\s*[:\-]\s*([0-9]*\.?[0-9]+)`)
	reasoningMarkerRe  = regexp.MustCompile(`(?is)\**\s*REASONING\s*\**\s*[:\-]\s*(.+)`)
)

// CallDecision runs the full resilience ladder for a screening-style call:
//
//	schema-constrained call (with retries) →
//	free-text call with marker parsing →
//	synthetic uncertain result.
//
// It never returns an error. A circuit-open rejection yields a degraded
// "service unavailable" result immediately, without attempting the text
// fallback (which would be rejected too).
func CallDecision(ctx context.Context, c *Caller, systemPrompt, userPrompt string) (Decision, DecisionSource) {
	out, fail := CallStructured[Decision](ctx, c, systemPrompt, userPrompt)
	if fail == nil {
		return *out, DecisionFromSchema
	}

	if fail.Kind == FailCircuitOpen {
		c.obs.Metrics.LLMFallbacks.WithLabelValues(c.cfg.Agent, string(DecisionDegraded)).Inc()
		return Decision{
			Decision:   "uncertain",
			Confidence: 0.0,
			Reasoning:  fmt.Sprintf("service unavailable: %s provider circuit open, manual adjudication required", c.provider.Name()),
		}, DecisionDegraded
	}

	c.obs.Logger.Warn().
		Str("agent", c.cfg.Agent).
		Str("failure", fail.String()).
		Msg("schema retries exhausted, falling back to text parsing")

	if d, ok := c.textFallback(ctx, systemPrompt, userPrompt); ok {
		c.obs.Metrics.LLMFallbacks.WithLabelValues(c.cfg.Agent, string(DecisionFromText)).Inc()
		return d, DecisionFromText
	}

	c.obs.Metrics.LLMFallbacks.WithLabelValues(c.cfg.Agent, string(DecisionSynthetic)).Inc()
	return Decision{
		Decision:   "uncertain",
		Confidence: 0.0,
		Reasoning:  "automated screening failed, manual adjudication required",
	}, DecisionSynthetic
}

// textFallback requests free text and extracts DECISION / CONFIDENCE /
// REASONING markers. Unmatched markers default to safe values (decision →
// uncertain, confidence → 0.5). It reports ok=false when the call failed,
// the response was empty or whitespace-only, or no marker matched at all.
func (c *Caller) textFallback(ctx context.Context, systemPrompt, userPrompt string) (Decision, bool) {
	instruction := userPrompt + "\n\nRespond in plain text using exactly these markers, one per line:\n" +
		"DECISION: include, exclude, or uncertain\n" +
		"CONFIDENCE: a number between 0.0 and 1.0\n" +
		"REASONING: a brief explanation"

	resp, fail := c.complete(ctx, Request{
		Messages: []Message{
			{Role: RoleSystem, Content: systemPrompt},
			{Role: RoleUser, Content: instruction},
		},
		ResponseFormat: FormatText,
	})
	if fail != nil {
		return Decision{}, false
	}

	return ParseDecisionMarkers(resp.Content)
}

// ParseDecisionMarkers extracts a Decision from marker-formatted free text.
// It reports ok=false for empty/whitespace-only input or when no marker
// matched at all (totally unparseable text).
func ParseDecisionMarkers(text string) (Decision, bool) {
	if strings.TrimSpace(text) == "" {
		return Decision{}, false
	}

	d := Decision{Decision: "uncertain", Confidence: 0.5}
	matched := false

	if m := decisionMarkerRe.FindStringSubmatch(text); m != nil {
		matched = true
		switch strings.ToLower(m[1]) {
		case "include", "included", "yes":
			d.Decision = "include"
		case "exclude", "excluded", "no":
			d.Decision = "exclude"
		default:
			d.Decision = "uncertain"
		}
	}

	if m := confidenceMarkerRe.FindStringSubmatch(text); m != nil {
		matched = true
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			if v < 0 {
				v = 0
			}
			if v > 1 {
				v = 1
			}
			d.Confidence = v
		}
	}

	if m := reasoningMarkerRe.FindStringSubmatch(text); m != nil {
		matched = true
		d.Reasoning = strings.TrimSpace(m[1])
	}

	if !matched {
		return Decision{}, false
	}
	return d, true
}
