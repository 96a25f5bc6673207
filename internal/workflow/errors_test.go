package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reviewkit/reviewkit/internal/domain"
	"github.com/reviewkit/reviewkit/internal/llm"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorCategory
	}{
		{"nil", nil, Permanent},
		{"context cancelled", context.Canceled, Permanent},
		{"wrapped cancellation", fmt.Errorf("phase: %w", domain.ErrCancelled), Permanent},

		{"api error 429", &llm.APIError{Provider: "openai", StatusCode: 429, Message: "slow down"}, Transient},
		{"api error 503", &llm.APIError{Provider: "openai", StatusCode: 503, Message: "overloaded"}, Transient},
		{"api error network", &llm.APIError{Provider: "openai", StatusCode: 0, Message: "dial tcp"}, Transient},
		{"api error 401", &llm.APIError{Provider: "openai", StatusCode: 401, Message: "bad key"}, Permanent},
		{"api error 400", &llm.APIError{Provider: "anthropic", StatusCode: 400, Message: "bad model"}, Permanent},
		{"circuit open", llm.ErrCircuitOpen, Transient},

		{"sentinel rate limited", domain.ErrRateLimited, Transient},
		{"sentinel unavailable", fmt.Errorf("x: %w", domain.ErrServiceUnavailable), Transient},
		{"sentinel invalid input", domain.ErrInvalidInput, Permanent},
		{"sentinel not found", domain.ErrNotFound, Permanent},

		{"timeout substring", errors.New("request timeout after 30s"), Transient},
		{"connection refused", errors.New("dial tcp 1.2.3.4: connection refused"), Transient},
		{"unauthorized substring", errors.New("401 unauthorized"), Permanent},
		{"author is not auth", errors.New("could not parse author list"), Transient},
		{"validation substring", errors.New("schema validation failed"), Permanent},
		{"unknown defaults transient", errors.New("something odd happened"), Transient},

		// Transient wins when both match: retry is the fail-safe bias.
		{"both substrings", errors.New("bad request caused a timeout"), Transient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err), "error: %v", tt.err)
		})
	}
}

func TestErrorCategoryString(t *testing.T) {
	assert.Equal(t, "transient", Transient.String())
	assert.Equal(t, "permanent", Permanent.String())
	assert.Equal(t, "unknown", ErrorCategory(42).String())
}
