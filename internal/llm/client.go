// Package llm provides the chat-completion client used by the analysis,
// generation, quality, and advisory services.
//
// The client targets any OpenAI-compatible endpoint (DeepSeek in the default
// configuration) through langchaingo, and layers rate limiting, bounded
// retries with exponential backoff, and transient-error classification on
// top of it.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/diagramd/internal/logging"
)

const (
	defaultTimeout     = 60 * time.Second
	defaultMaxRetries  = 3
	defaultRateLimit   = 2 // requests per second
	defaultBurst       = 4
	defaultBaseBackoff = 500 * time.Millisecond
	defaultMaxTokens   = 4096
)

// Client generates chat completions.
type Client interface {
	// Complete sends a single-prompt completion request and returns the
	// generated text.
	Complete(ctx context.Context, prompt string, opts ...CallOption) (string, error)
	// Ping verifies the backend is reachable with a minimal request.
	Ping(ctx context.Context) error
}

// Config holds client configuration.
type Config struct {
	BaseURL           string
	APIKey            string
	Model             string
	ReasonerModel     string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
}

type client struct {
	llm           *openai.LLM
	model         string
	reasonerModel string
	limiter       *rate.Limiter
	maxRetries    int
	timeout       time.Duration
	logger        *logging.Logger
}

// NewClient creates a completion client for an OpenAI-compatible endpoint.
func NewClient(cfg Config, logger *logging.Logger) (Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger required")
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		// langchaingo requires a token even for keyless local endpoints
		apiKey = "placeholder"
	}

	backend, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating completion backend: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRateLimit
	}
	reasoner := cfg.ReasonerModel
	if reasoner == "" {
		reasoner = cfg.Model
	}

	return &client{
		llm:           backend,
		model:         cfg.Model,
		reasonerModel: reasoner,
		limiter:       rate.NewLimiter(rate.Limit(rps), defaultBurst),
		maxRetries:    maxRetries,
		timeout:       timeout,
		logger:        logger.Named("llm"),
	}, nil
}

// Complete sends the prompt and returns the generated text.
//
// The call waits on the rate limiter, honors context cancellation, and
// retries transient failures with exponential backoff.
func (c *client) Complete(ctx context.Context, prompt string, opts ...CallOption) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	call := newCallOptions(opts...)
	model := c.model
	if call.useReasoner {
		model = c.reasonerModel
	}

	callOpts := []llms.CallOption{
		llms.WithModel(model),
		llms.WithTemperature(call.temperature),
		llms.WithMaxTokens(call.maxTokens),
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			c.logger.Debug(ctx, "retrying completion",
				zap.Int("attempt", attempt), zap.String("model", model))
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		response, err := llms.GenerateFromSinglePrompt(reqCtx, c.llm, prompt, callOpts...)
		cancel()
		if err == nil {
			if response == "" {
				return "", fmt.Errorf("empty response from backend")
			}
			return response, nil
		}

		lastErr = err
		if !isRetryableError(ctx, err) {
			return "", fmt.Errorf("completion failed: %w", err)
		}
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Ping sends a minimal completion to verify connectivity.
func (c *client) Ping(ctx context.Context) error {
	_, err := c.Complete(ctx, "ping", WithMaxTokens(1))
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	return nil
}

// isRetryableError reports whether the request should be retried.
// Context cancellation and deadline expiry are never retried; everything else
// from the transport (connection resets, 429s, 5xx surfaced as errors by the
// backend library) is.
func isRetryableError(ctx context.Context, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// Only give up when the outer context is done; a per-attempt
		// timeout alone is worth retrying.
		if ctx.Err() != nil {
			return false
		}
	}
	return true
}
