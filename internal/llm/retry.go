package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// RetryConfig bounds the retry loop around generation calls.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig suits the Gemini API's typical transient failures.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryMarkers are substrings of errors worth retrying: throttling,
// transient server failures, and flaky connections. Schema and auth
// errors deliberately match none of these.
var retryMarkers = []string{
	"rate limit", "quota exceeded", "429",
	"500", "502", "503", "504", "unavailable",
	"connection reset", "timeout", "temporary",
}

func retryableError(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(err.Error(), retryMarkers...)
}

func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// executeWithRetry calls genkit.Generate under the client's rate limiter,
// doubling the backoff after each retryable failure up to MaxInterval.
// Non-retryable errors abort the loop on first sight.
func (c *Client) executeWithRetry(ctx context.Context, opts []ai.GenerateOption) (*ai.ModelResponse, error) {
	cfg := c.retryConfig
	delay := cfg.InitialInterval
	start := time.Now()

	var lastErr error
	for attempt := 0; ; attempt++ {
		if c.rateLimiter != nil {
			if err := c.rateLimiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		resp, err := genkit.Generate(ctx, c.g, opts...)
		if err == nil {
			if attempt > 0 {
				c.logger.Debug("generation recovered",
					"attempts", attempt+1, "elapsed", time.Since(start))
			}
			return resp, nil
		}
		if !retryableError(err) {
			return nil, fmt.Errorf("generate: %w", err)
		}

		lastErr = err
		if attempt == cfg.MaxRetries {
			break
		}

		c.logger.Debug("generation failed, backing off",
			"attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay = min(delay*2, cfg.MaxInterval)
	}

	return nil, fmt.Errorf("generate after %d retries (elapsed: %v): %w",
		cfg.MaxRetries, time.Since(start), lastErr)
}
