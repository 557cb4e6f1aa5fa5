package providers_test

import (
	"context"
	"testing"
	"time"

	"github.com/ctxloom/ctxloom/internal/agent"
	"github.com/ctxloom/ctxloom/internal/agent/providers"
	"github.com/ctxloom/ctxloom/internal/intent"
	"github.com/ctxloom/ctxloom/pkg/models"
)

type fakeProvider struct {
	name   string
	chunks []*agent.CompletionChunk
}

func (p *fakeProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	ch := make(chan *agent.CompletionChunk, len(p.chunks))
	for _, c := range p.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}
func (p *fakeProvider) Name() string         { return p.name }
func (p *fakeProvider) Models() []agent.Model { return nil }
func (p *fakeProvider) SupportsTools() bool   { return true }

func TestClientCallDrainsTextAndToolCalls(t *testing.T) {
	fp := &fakeProvider{
		name: "local",
		chunks: []*agent.CompletionChunk{
			{Text: "hel"},
			{Text: "lo"},
			{ToolCall: &models.ToolCall{ID: "1", Name: "ping"}},
			{Done: true},
		},
	}
	c := providers.NewClient(map[string]agent.LLMProvider{"local": fp})

	resp, err := c.Call(context.Background(), "LOCAL", "model-a", nil, nil, 0)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.Content() != "hello" {
		t.Fatalf("content = %q, want hello", resp.Content())
	}
	if len(resp.ToolCalls()) != 1 || resp.ToolCalls()[0].Name != "ping" {
		t.Fatalf("tool calls = %+v", resp.ToolCalls())
	}
}

func TestClientCallUnknownProvider(t *testing.T) {
	c := providers.NewClient(nil)
	if _, err := c.Call(context.Background(), "missing", "m", nil, nil, 0); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestIntentAdapterRoundTrips(t *testing.T) {
	fp := &fakeProvider{
		name: "local",
		chunks: []*agent.CompletionChunk{
			{ToolCall: &models.ToolCall{ID: "1", Name: "read_file", Input: []byte(`{"path":"a.go"}`)}},
			{Done: true},
		},
	}
	c := providers.NewClient(map[string]agent.LLMProvider{"local": fp})
	adapter := &providers.IntentAdapter{Client: c, Timeout: time.Second}

	resp, err := adapter.Call(context.Background(), "local", "model-a",
		[]intent.Message{{Role: "user", Content: "hi"}},
		[]intent.Tool{{Name: "read_file"}})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "read_file" {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	if resp.ToolCalls[0].Arguments["path"] != "a.go" {
		t.Fatalf("arguments = %+v", resp.ToolCalls[0].Arguments)
	}
}
