package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ctxloom/ctxloom/internal/agent"
	"github.com/ctxloom/ctxloom/internal/intent"
	"github.com/ctxloom/ctxloom/internal/retry"
	"github.com/ctxloom/ctxloom/pkg/models"
)

// ResponseMessage mirrors the spec's `choices[0].message` shape: either
// Content or ToolCalls may be populated, possibly both empty.
type ResponseMessage struct {
	Content   string
	ToolCalls []models.ToolCall
}

// Choice wraps a single completion choice, matching the upstream
// OpenAI-style envelope the spec's C1 contract is shaped after.
type Choice struct {
	Message ResponseMessage
}

// Response is the single synchronous envelope every Client.Call returns,
// regardless of which backend produced it.
type Response struct {
	Choices []Choice
	Latency time.Duration
}

// Content returns the first choice's text content, or "" if there is none.
func (r Response) Content() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// ToolCalls returns the first choice's tool calls, or nil if there are none.
func (r Response) ToolCalls() []models.ToolCall {
	if len(r.Choices) == 0 {
		return nil
	}
	return r.Choices[0].Message.ToolCalls
}

// Client is the unified provider façade (C1): a single `Call` operation
// that drains whichever backend's internal streaming channel into the
// synchronous Response envelope spec.md §4.1 requires. The providers
// themselves are untouched and may still be driven incrementally by
// other callers that want the raw channel.
type Client struct {
	providers   map[string]agent.LLMProvider
	retryConfig retry.Config
}

// NewClient builds a façade over a set of named backends. Names are
// matched case-insensitively against the `provider` argument to Call.
// A transient transport error (rate limit, timeout, 5xx) is retried
// exactly once with jittered backoff; everything else, and every
// protocol/config error, fails on the first attempt.
func NewClient(providers map[string]agent.LLMProvider) *Client {
	normalized := make(map[string]agent.LLMProvider, len(providers))
	for name, p := range providers {
		normalized[strings.ToLower(strings.TrimSpace(name))] = p
	}
	return &Client{providers: normalized, retryConfig: retry.Exponential(2, 200*time.Millisecond, 2*time.Second)}
}

// Providers returns the configured backend names, sorted, for callers
// that need to enumerate what's wired (e.g. listing every known model).
func (c *Client) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for name := range c.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ModelsFor returns the named backend's advertised model list, or nil if
// the backend is unknown.
func (c *Client) ModelsFor(provider string) []agent.Model {
	p, ok := c.providers[strings.ToLower(strings.TrimSpace(provider))]
	if !ok {
		return nil
	}
	return p.Models()
}

// Call sends messages (and optional tools) to modelID on the named
// backend and blocks until the full response has decoded. latency is
// measured wall-clock from dispatch to full decode. A zero timeout means
// the caller's context governs cancellation alone.
func (c *Client) Call(ctx context.Context, provider, modelID string, messages []agent.CompletionMessage, tools []agent.Tool, timeout time.Duration) (Response, error) {
	return c.CallRequest(ctx, provider, &agent.CompletionRequest{
		Model:    modelID,
		Messages: messages,
		Tools:    tools,
	}, timeout)
}

// CallRequest is the full-fidelity counterpart to Call: it accepts a
// complete *agent.CompletionRequest (tool choice, temperature, stop
// sequences, max tokens, thinking budget) for callers — the probe
// harness chief among them — that need more than messages and tools.
// The model is taken from req.Model, which the caller sets; the probe
// harness sets it to the model under test before each dispatch.
func (c *Client) CallRequest(ctx context.Context, provider string, req *agent.CompletionRequest, timeout time.Duration) (Response, error) {
	modelID := req.Model
	p, ok := c.providers[strings.ToLower(strings.TrimSpace(provider))]
	if !ok {
		return Response{}, NewProviderError(provider, modelID, fmt.Errorf("unknown provider %q", provider)).WithCode("invalid_request_error")
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	var content strings.Builder
	var toolCalls []models.ToolCall

	attempt := func() error {
		content.Reset()
		toolCalls = nil

		stream, err := p.Complete(ctx, req)
		if err != nil {
			return retryableOrPermanent(err)
		}

		for chunk := range stream {
			if chunk == nil {
				continue
			}
			if chunk.Error != nil {
				return retryableOrPermanent(NewProviderError(provider, modelID, chunk.Error))
			}
			if chunk.Text != "" {
				content.WriteString(chunk.Text)
			}
			if chunk.ToolCall != nil {
				toolCalls = append(toolCalls, *chunk.ToolCall)
			}
		}
		if err := ctx.Err(); err != nil {
			return retry.Permanent(NewProviderError(provider, modelID, err).WithCode("timeout"))
		}
		return nil
	}

	result := retry.Do(ctx, c.retryConfig, attempt)
	if result.Err != nil {
		var permanent *retry.PermanentError
		if errors.As(result.Err, &permanent) {
			return Response{}, permanent.Unwrap()
		}
		return Response{}, result.Err
	}

	return Response{
		Choices: []Choice{{Message: ResponseMessage{Content: content.String(), ToolCalls: toolCalls}}},
		Latency: time.Since(start),
	}, nil
}

// retryableOrPermanent wraps err as a retry.PermanentError unless the
// provider package's own classification marks it retryable, so retry.Do's
// generic backoff loop defers to ClassifyError's rate-limit/timeout/5xx
// rubric instead of retrying every failure indiscriminately.
func retryableOrPermanent(err error) error {
	if IsRetryable(err) {
		return err
	}
	return retry.Permanent(err)
}

// IntentAdapter implements intent.Caller over a Client, converting the
// intent package's minimal message/tool shapes to and from the agent
// package's provider-facing ones. It is the seam that lets C7 (which
// knows nothing about providers) drive C1 (which knows nothing about
// intents).
type IntentAdapter struct {
	Client  *Client
	Timeout time.Duration
}

var _ intent.Caller = (*IntentAdapter)(nil)

// Call implements intent.Caller.
func (a *IntentAdapter) Call(ctx context.Context, provider, modelID string, messages []intent.Message, tools []intent.Tool) (intent.Response, error) {
	resp, err := a.Client.Call(ctx, provider, modelID, toCompletionMessages(messages), toAgentTools(tools), a.Timeout)
	if err != nil {
		return intent.Response{}, err
	}
	return intent.Response{
		Content:   resp.Content(),
		ToolCalls: toIntentToolCalls(resp.ToolCalls()),
		Latency:   resp.Latency,
	}, nil
}

func toCompletionMessages(in []intent.Message) []agent.CompletionMessage {
	out := make([]agent.CompletionMessage, len(in))
	for i, m := range in {
		out[i] = agent.CompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			ToolCalls:  toModelToolCalls(m.ToolCalls),
		}
	}
	return out
}

func toModelToolCalls(in []intent.ToolCall) []models.ToolCall {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.ToolCall, len(in))
	for i, tc := range in {
		input, _ := json.Marshal(tc.Arguments)
		out[i] = models.ToolCall{ID: tc.ID, Name: tc.Name, Input: input}
	}
	return out
}

func toIntentToolCalls(in []models.ToolCall) []intent.ToolCall {
	if len(in) == 0 {
		return nil
	}
	out := make([]intent.ToolCall, len(in))
	for i, tc := range in {
		var args map[string]any
		_ = json.Unmarshal(tc.Input, &args)
		out[i] = intent.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: args}
	}
	return out
}

func toAgentTools(in []intent.Tool) []agent.Tool {
	if len(in) == 0 {
		return nil
	}
	out := make([]agent.Tool, len(in))
	for i, t := range in {
		out[i] = agent.StaticTool{ToolName: t.Name, ToolDescription: t.Description, ToolSchema: t.Parameters}
	}
	return out
}
