// Package llm wraps Genkit text generation behind a small client used by
// all agent workflows. It supports plain-text, schema-constrained, and
// multimodal requests, signals output truncation distinctly, and applies
// rate limiting and retry to every call.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// ErrSchemaViolation indicates the model's output could not be parsed
// into the requested structured type. Check with errors.Is(); callers
// must supply their own fallback value.
var ErrSchemaViolation = errors.New("generation output violates requested schema")

// Config configures a Client.
type Config struct {
	Genkit      *genkit.Genkit
	ModelName   string  // bare or provider-qualified, e.g. "gemini-2.5-flash"
	Temperature float32
	RetryConfig RetryConfig   // zero value uses defaults
	RateLimiter *rate.Limiter // nil uses a conservative default
	Logger      *slog.Logger
}

// Request describes one generation call.
type Request struct {
	System   string
	Messages []*ai.Message

	// OutputType, when non-nil, requests schema-constrained output.
	// Pass a zero value of the target type, e.g. FinancialFacts{}.
	OutputType any

	// Tools are made visible to the model. With ReturnToolRequests set,
	// requested calls are returned to the caller instead of executed.
	Tools              []ai.ToolRef
	ReturnToolRequests bool
}

// Response wraps a model response.
type Response struct {
	raw *ai.ModelResponse
}

// NewResponse wraps a raw model response. Exposed so collaborators can be
// faked without a live model.
func NewResponse(raw *ai.ModelResponse) *Response {
	return &Response{raw: raw}
}

// Text returns the response text.
func (r *Response) Text() string {
	return r.raw.Text()
}

// Message returns the model's message so callers running their own tool
// loop can append it to the conversation verbatim.
func (r *Response) Message() *ai.Message {
	return r.raw.Message
}

// ToolRequests returns the tool calls the model asked for, if any.
func (r *Response) ToolRequests() []*ai.ToolRequest {
	return r.raw.ToolRequests()
}

// Truncated reports whether the model stopped because it hit its output
// length limit rather than completing normally.
func (r *Response) Truncated() bool {
	return r.raw.FinishReason == ai.FinishReasonLength
}

// Output unmarshals structured output into v.
// Returns ErrSchemaViolation when the output does not fit.
func (r *Response) Output(v any) error {
	if err := r.raw.Output(v); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	return nil
}

// Client is the generation collaborator shared by all workflows.
//
// Client is stateless apart from its rate limiter and safe for concurrent
// use by multiple goroutines.
type Client struct {
	g           *genkit.Genkit
	modelName   string
	temperature float32
	retryConfig RetryConfig
	rateLimiter *rate.Limiter
	logger      *slog.Logger
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.Genkit == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("model name is required")
	}

	retryConfig := cfg.RetryConfig
	if retryConfig.MaxRetries == 0 {
		retryConfig = DefaultRetryConfig()
	}

	rl := cfg.RateLimiter
	if rl == nil {
		// 10 requests/second burst 30 matches the free-tier Gemini quota
		// comfortably while smoothing research-loop bursts.
		rl = rate.NewLimiter(10, 30)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		g:           cfg.Genkit,
		modelName:   qualifyModelName(cfg.ModelName),
		temperature: cfg.Temperature,
		retryConfig: retryConfig,
		rateLimiter: rl,
		logger:      logger,
	}, nil
}

// Generate performs one generation call with rate limiting and retry.
func (c *Client) Generate(ctx context.Context, req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("at least one message is required")
	}

	opts := []ai.GenerateOption{
		ai.WithModelName(c.modelName),
		ai.WithMessages(req.Messages...),
		ai.WithConfig(&genai.GenerateContentConfig{
			Temperature: genai.Ptr(c.temperature),
		}),
	}
	if req.System != "" {
		opts = append(opts, ai.WithSystem(req.System))
	}
	if req.OutputType != nil {
		opts = append(opts, ai.WithOutputType(req.OutputType))
	}
	if len(req.Tools) > 0 {
		opts = append(opts, ai.WithTools(req.Tools...))
		if req.ReturnToolRequests {
			opts = append(opts, ai.WithReturnToolRequests(true))
		}
	}

	resp, err := c.executeWithRetry(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Response{raw: resp}, nil
}

// GenerateText is a convenience wrapper for single-prompt text calls.
func (c *Client) GenerateText(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.Generate(ctx, Request{
		System:   system,
		Messages: []*ai.Message{ai.NewUserMessage(ai.NewTextPart(prompt))},
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// qualifyModelName prefixes bare model names with the googleai provider.
func qualifyModelName(name string) string {
	if strings.Contains(name, "/") {
		return name
	}
	return "googleai/" + name
}
