// Package ai provides the single text-generation capability the pipeline
// depends on. Failures are classified so callers can switch to their
// deterministic fallbacks instead of retrying indefinitely.
package ai

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/applyflow/applyflow-be/internal/domain"
)

// GenerateOptions bound a single generation call.
type GenerateOptions struct {
	MaxTokens   int32
	Temperature float32
}

// TextGenerator is the narrow capability exposed to the pipeline.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// Config holds Gemini client configuration.
type Config struct {
	APIKey         string
	Model          string
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	RequestTimeout time.Duration
}

// GeminiClient implements TextGenerator against the Gemini API with a
// per-call timeout and bounded retry with exponential backoff.
type GeminiClient struct {
	client         *genai.Client
	model          string
	maxRetries     int
	baseDelay      time.Duration
	maxDelay       time.Duration
	requestTimeout time.Duration
	logger         *slog.Logger
}

// NewGeminiClient creates a Gemini-backed text generator.
func NewGeminiClient(ctx context.Context, cfg *Config, logger *slog.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}

	return &GeminiClient{
		client:         client,
		model:          model,
		maxRetries:     maxRetries,
		baseDelay:      baseDelay,
		maxDelay:       maxDelay,
		requestTimeout: requestTimeout,
		logger:         logger,
	}, nil
}

// Generate produces text for the prompt. Rate limiting, unavailability and
// timeouts surface as domain.ErrAIUnavailable after the retry budget is
// exhausted, so callers engage their fallback path.
func (c *GeminiClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	genConfig := &genai.GenerateContentConfig{}
	if opts.Temperature > 0 {
		genConfig.Temperature = genai.Ptr(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		genConfig.MaxOutputTokens = opts.MaxTokens
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			c.logger.Warn("Retrying text generation",
				slog.Int("attempt", attempt),
				slog.Int("max_retries", c.maxRetries),
				slog.Duration("retry_after", delay),
			)

			select {
			case <-time.After(delay):
			case <-timeoutCtx.Done():
				return "", fmt.Errorf("%w: %v", domain.ErrAIUnavailable, timeoutCtx.Err())
			}
		}

		result, err := c.client.Models.GenerateContent(timeoutCtx, c.model, genai.Text(prompt), genConfig)
		if err == nil {
			text := result.Text()
			if strings.TrimSpace(text) == "" {
				return "", fmt.Errorf("%w: empty response", domain.ErrAIUnavailable)
			}
			return text, nil
		}

		lastErr = err
		if !isTransient(err) {
			return "", fmt.Errorf("text generation failed: %w", err)
		}
	}

	return "", fmt.Errorf("%w: %v", domain.ErrAIUnavailable, lastErr)
}

// backoff computes the exponential backoff delay with jitter, capped at
// maxDelay.
func (c *GeminiClient) backoff(attempt int) time.Duration {
	delay := float64(c.baseDelay) * math.Pow(2, float64(attempt-1))
	delay += delay * 0.2 * rand.Float64()
	if delay > float64(c.maxDelay) {
		delay = float64(c.maxDelay)
	}
	return time.Duration(delay)
}

// isTransient reports whether the generation error is worth retrying.
func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429", "rate limit", "resource_exhausted",
		"500", "502", "503", "unavailable", "overloaded",
		"deadline exceeded", "connection reset", "timeout",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
