package intent

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

type stubCaller struct {
	responses map[string]Response
	errors    map[string]error
	calls     []string
	lastTools map[string][]Tool
}

func (s *stubCaller) Call(ctx context.Context, provider, modelID string, messages []Message, tools []Tool) (Response, error) {
	s.calls = append(s.calls, modelID)
	if err, ok := s.errors[modelID]; ok {
		return Response{}, err
	}
	if s.lastTools == nil {
		s.lastTools = map[string][]Tool{}
	}
	s.lastTools[modelID] = tools
	return s.responses[modelID], nil
}

// stubAutoSelector is a scripted AutoSelector: SelectMain/SelectExecutor
// return the configured ids once, and MarkUnhealthy clears them so a
// later selection call reports no candidate.
type stubAutoSelector struct {
	mainID, executorID string
	unhealthy          map[string]bool
}

func (s *stubAutoSelector) SelectMain() (string, bool) {
	if s.unhealthy[s.mainID] || s.mainID == "" {
		return "", false
	}
	return s.mainID, true
}

func (s *stubAutoSelector) SelectExecutor() (string, bool) {
	if s.unhealthy[s.executorID] || s.executorID == "" {
		return "", false
	}
	return s.executorID, true
}

func (s *stubAutoSelector) MarkUnhealthy(modelID string) {
	if s.unhealthy == nil {
		s.unhealthy = map[string]bool{}
	}
	s.unhealthy[modelID] = true
}

func TestSingleModePassthrough(t *testing.T) {
	caller := &stubCaller{responses: map[string]Response{
		"model-a": {Content: "hi there"},
	}}
	router := NewRouter(Config{ExecutorModelID: "model-a"}, caller, nil, nil, nil)

	result, err := router.Route(context.Background(), []Message{{Role: "user", Content: "hello"}}, nil)
	if err != nil {
		t.Fatalf("Route() error: %v", err)
	}
	if result.Mode != "single" {
		t.Fatalf("Mode = %q, want single", result.Mode)
	}
	if len(caller.calls) != 1 || caller.calls[0] != "model-a" {
		t.Fatalf("expected exactly one call to model-a, got %v", caller.calls)
	}
}

func TestDualModeRouting(t *testing.T) {
	caller := &stubCaller{responses: map[string]Response{
		"main":     {Content: `{"action":"call_tool","tool":"read_file","parameters":{"path":"src/index.ts"},"metadata":{"reasoning":"read the file"}}`},
		"executor": {Content: "", ToolCalls: []ToolCall{{Name: "read_file", Arguments: map[string]any{"path": "src/index.ts"}}}},
	}}
	router := NewRouter(Config{
		MainModelID:     "main",
		ExecutorModelID: "executor",
		EnableDualModel: true,
	}, caller, nil, nil, nil)

	result, err := router.Route(context.Background(), []Message{{Role: "user", Content: "Read file src/index.ts"}}, []Tool{{Name: "read_file"}})
	if err != nil {
		t.Fatalf("Route() error: %v", err)
	}
	if result.Mode != "dual" {
		t.Fatalf("Mode = %q, want dual", result.Mode)
	}
	if len(caller.calls) != 2 || caller.calls[0] != "main" || caller.calls[1] != "executor" {
		t.Fatalf("expected main then executor call, got %v", caller.calls)
	}
	if result.Intent == nil || result.Intent.Action != ActionCallTool || result.Intent.Tool != "read_file" {
		t.Fatalf("expected parsed call_tool intent, got %+v", result.Intent)
	}
	if len(result.ToolCalls) != 1 || result.ToolCalls[0].Name != "read_file" {
		t.Fatalf("expected final tool call read_file, got %+v", result.ToolCalls)
	}
	if caller.lastTools["executor"] == nil {
		t.Fatalf("expected tools to be exposed to executor")
	}
	// planning precedes execution: exactly one planning call, one intent parse
	if len(result.Phases) != 2 || result.Phases[0] != "planning" || result.Phases[1] != "execution" {
		t.Fatalf("unexpected phases: %v", result.Phases)
	}
}

func TestUnparsableIntentFallsBackToRespond(t *testing.T) {
	caller := &stubCaller{responses: map[string]Response{
		"main": {Content: "not json at all"},
	}}
	router := NewRouter(Config{
		MainModelID:     "main",
		ExecutorModelID: "executor",
		EnableDualModel: true,
	}, caller, nil, nil, nil)

	result, err := router.Route(context.Background(), []Message{{Role: "user", Content: "hello"}}, nil)
	if err != nil {
		t.Fatalf("Route() error: %v", err)
	}
	if result.Intent == nil || result.Intent.Action != ActionRespond {
		t.Fatalf("expected respond fallback, got %+v", result.Intent)
	}
	for _, call := range caller.calls {
		if call == "executor" {
			t.Fatalf("expected no executor call when planning yields no valid JSON")
		}
	}
}

func TestExpiredDeadlineSkipsExecution(t *testing.T) {
	caller := &stubCaller{responses: map[string]Response{
		"main": {Content: `{"action":"call_tool","tool":"x","metadata":{}}`},
	}}
	router := NewRouter(Config{
		MainModelID:     "main",
		ExecutorModelID: "executor",
		EnableDualModel: true,
	}, caller, nil, nil, nil)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	result, err := router.Route(ctx, []Message{{Role: "user", Content: "hello"}}, nil)
	if err == nil {
		t.Fatalf("expected error when deadline already expired before execution")
	}
	if len(result.Phases) != 1 || result.Phases[0] != "planning" {
		t.Fatalf("expected partial response flagged with planning phase only, got %v", result.Phases)
	}
	for _, call := range caller.calls {
		if call == "executor" {
			t.Fatalf("expected execution to be skipped after deadline expiry")
		}
	}
}

func TestExecutorToolsIntersectWithProfile(t *testing.T) {
	caller := &stubCaller{responses: map[string]Response{
		"main":     {Content: `{"action":"call_tool","tool":"read_file","metadata":{}}`},
		"executor": {Content: "ok"},
	}}
	profiles := func(modelID string) []string { return []string{"read_file"} }
	router := NewRouter(Config{
		MainModelID:     "main",
		ExecutorModelID: "executor",
		EnableDualModel: true,
	}, caller, profiles, nil, nil)

	_, err := router.Route(context.Background(), []Message{{Role: "user", Content: "go"}}, []Tool{{Name: "read_file"}, {Name: "write_file"}})
	if err != nil {
		t.Fatalf("Route() error: %v", err)
	}
	tools := caller.lastTools["executor"]
	if len(tools) != 1 || tools[0].Name != "read_file" {
		t.Fatalf("expected only read_file exposed to executor, got %+v", tools)
	}
}

func TestAutoSelectionFillsUnsetModelIDs(t *testing.T) {
	caller := &stubCaller{responses: map[string]Response{
		"auto-main":     {Content: `{"action":"call_tool","tool":"read_file","metadata":{}}`},
		"auto-executor": {Content: "ok"},
	}}
	autoSelect := &stubAutoSelector{mainID: "auto-main", executorID: "auto-executor"}
	router := NewRouter(Config{EnableDualModel: true}, caller, nil, nil, autoSelect)

	result, err := router.Route(context.Background(), []Message{{Role: "user", Content: "go"}}, nil)
	if err != nil {
		t.Fatalf("Route() error: %v", err)
	}
	if len(caller.calls) != 2 || caller.calls[0] != "auto-main" || caller.calls[1] != "auto-executor" {
		t.Fatalf("expected auto-selected main then executor call, got %v", caller.calls)
	}
	if result.Mode != "dual" {
		t.Fatalf("Mode = %q, want dual", result.Mode)
	}
}

func TestAutoSelectionFallsBackToSingleModeWithoutExecutorCandidate(t *testing.T) {
	caller := &stubCaller{responses: map[string]Response{
		"auto-main": {Content: "hi"},
	}}
	autoSelect := &stubAutoSelector{mainID: "auto-main"}
	router := NewRouter(Config{EnableDualModel: true}, caller, nil, nil, autoSelect)

	result, err := router.Route(context.Background(), []Message{{Role: "user", Content: "go"}}, nil)
	if err != nil {
		t.Fatalf("Route() error: %v", err)
	}
	if result.Mode != "single" {
		t.Fatalf("Mode = %q, want single when no executor candidate is available", result.Mode)
	}
	if len(caller.calls) != 1 || caller.calls[0] != "auto-main" {
		t.Fatalf("expected single call to auto-main, got %v", caller.calls)
	}
}

func TestFailedAutoSelectedMainMarksUnhealthy(t *testing.T) {
	caller := &stubCaller{
		responses: map[string]Response{"auto-executor": {Content: "ok"}},
		errors:    map[string]error{"auto-main": errBoom},
	}
	autoSelect := &stubAutoSelector{mainID: "auto-main", executorID: "auto-executor"}
	router := NewRouter(Config{EnableDualModel: true}, caller, nil, nil, autoSelect)

	_, err := router.Route(context.Background(), []Message{{Role: "user", Content: "go"}}, nil)
	if err == nil {
		t.Fatalf("expected error from failed planning call")
	}
	if !autoSelect.unhealthy["auto-main"] {
		t.Fatalf("expected auto-main to be marked unhealthy after a failed call")
	}

	// A second turn should no longer be offered auto-main as a candidate.
	if _, ok := autoSelect.SelectMain(); ok {
		t.Fatalf("expected auto-main to be excluded from a subsequent selection")
	}
}
