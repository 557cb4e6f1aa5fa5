// Package intent implements the dual-model dispatcher (C7): a single
// user turn is either passed through to one model, or decomposed into a
// planning call on a "main" model producing a typed Intent, followed by
// an execution call on an "executor" model realizing it as tool calls.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Action is the planner's decision about how to handle a turn.
type Action string

const (
	ActionCallTool         Action = "call_tool"
	ActionRespond          Action = "respond"
	ActionAskClarification Action = "ask_clarification"
	ActionMultiStep        Action = "multi_step"
)

// Step is one element of a multi_step intent's ordered plan.
type Step struct {
	Tool       string         `json:"tool,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Metadata carries the planner's supporting narrative for an Intent.
type Metadata struct {
	Reasoning string `json:"reasoning,omitempty"`
	Priority  string `json:"priority,omitempty"`
	Context   string `json:"context,omitempty"`
	Response  string `json:"response,omitempty"`
	Question  string `json:"question,omitempty"`
}

// Intent is the typed record mediating between the planning and
// execution stages.
type Intent struct {
	SchemaVersion int            `json:"schema_version"`
	Action        Action         `json:"action"`
	Tool          string         `json:"tool,omitempty"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	Steps         []Step         `json:"steps,omitempty"`
	Metadata      Metadata       `json:"metadata"`
}

// Message mirrors the spec's Turn/Message shape for provider calls.
type Message struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Source     string         `json:"source,omitempty"`
}

// ToolCall is a canonical tool invocation: a name plus argument mapping.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Tool is the canonical tool schema used in calls to providers.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Caller abstracts a single C1 provider call: it is implemented by the
// provider client façade and stubbed in tests.
type Caller interface {
	Call(ctx context.Context, provider, modelID string, messages []Message, tools []Tool) (Response, error)
}

// Response is the synchronous shape every Caller.Call returns.
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Latency   time.Duration
}

// ProfileLookup resolves a model's enabled tool list for executor-side
// tool filtering; nil or an empty result means "use request tools
// unchanged."
type ProfileLookup func(modelID string) []string

// Prosthetics resolves a model's stored prompt fragment, if any.
type Prosthetics func(modelID string) (text string, ok bool)

// AutoSelector resolves a main/executor model id when Config leaves it
// unset, per spec.md §4.6's Auto-selection operation, and is notified
// when a dispatched call to an auto-selected model fails so it can
// exclude that model from later turns. A nil AutoSelector disables
// auto-selection: Config.MainModelID/ExecutorModelID are used as-is,
// empty or not.
type AutoSelector interface {
	SelectMain() (modelID string, ok bool)
	SelectExecutor() (modelID string, ok bool)
	MarkUnhealthy(modelID string)
}

// Config configures a Router's default candidates and behavior.
type Config struct {
	MainModelID     string
	ExecutorModelID string
	EnableDualModel bool
	Timeout         time.Duration
	Provider        string
}

// Result is the full outcome of routing one turn.
type Result struct {
	Mode           string     `json:"mode"`
	MainResponse   *Response  `json:"main_response,omitempty"`
	ExecutorResponse *Response `json:"executor_response,omitempty"`
	FinalResponse  Response   `json:"final_response"`
	ToolCalls      []ToolCall `json:"tool_calls,omitempty"`
	LatencyMain    time.Duration `json:"latency_main,omitempty"`
	LatencyExecutor time.Duration `json:"latency_executor,omitempty"`
	LatencyTotal   time.Duration `json:"latency_total"`
	Phases         []string   `json:"phases"`
	Intent         *Intent    `json:"intent,omitempty"`
}

const intentSchemaVersion = 1

const plannerSkeleton = `You are the planning stage of a two-model agent. Read the user's request ` +
	`and respond with a single JSON object describing your intent: ` +
	`{"action": "call_tool"|"respond"|"ask_clarification"|"multi_step", "tool": "...", ` +
	`"parameters": {...}, "steps": [...], "metadata": {"reasoning": "..."}}. ` +
	`Emit exactly one JSON object and nothing else.`

const executorPreamble = `You are the execution stage of a two-model agent. You are given a parsed ` +
	`intent describing what to do. Use the available tools to carry it out.`

// Router dispatches turns through the single- or dual-mode pipeline.
type Router struct {
	cfg         Config
	caller      Caller
	profiles    ProfileLookup
	prosthetics Prosthetics
	autoSelect  AutoSelector
}

// NewRouter constructs a Router. profiles, prosthetics and autoSelect may
// all be nil.
func NewRouter(cfg Config, caller Caller, profiles ProfileLookup, prosthetics Prosthetics, autoSelect AutoSelector) *Router {
	return &Router{cfg: cfg, caller: caller, profiles: profiles, prosthetics: prosthetics, autoSelect: autoSelect}
}

// Route dispatches a single turn. messages are the user/system history;
// tools are the request's original tool set.
func (r *Router) Route(ctx context.Context, messages []Message, tools []Tool) (Result, error) {
	start := time.Now()

	mainID, executorID := r.cfg.MainModelID, r.cfg.ExecutorModelID
	if r.cfg.EnableDualModel {
		if mainID == "" {
			mainID = r.autoSelectMain()
		}
		if executorID == "" {
			executorID = r.autoSelectExecutor()
		}
	}

	if !r.cfg.EnableDualModel || mainID == "" || executorID == "" {
		modelID := executorID
		if modelID == "" {
			modelID = mainID
		}
		fragment, ok := r.fragment(modelID)
		resp, err := r.caller.Call(ctx, r.cfg.Provider, modelID, withProsthetic(messages, fragment, ok), tools)
		if err != nil {
			r.markUnhealthy(modelID)
			return Result{}, err
		}
		return Result{
			Mode:          "single",
			FinalResponse: resp,
			ToolCalls:     resp.ToolCalls,
			LatencyTotal:  time.Since(start),
			Phases:        []string{"response"},
		}, nil
	}

	return r.routeDual(ctx, messages, tools, start, mainID, executorID)
}

func (r *Router) routeDual(ctx context.Context, messages []Message, tools []Tool, start time.Time, mainID, executorID string) (Result, error) {
	planMessages := append([]Message{{Role: "system", Content: r.plannerSystemPrompt(mainID)}}, userSystemOnly(messages)...)

	if deadlineExceeded(ctx) {
		return Result{Mode: "dual", Phases: []string{"planning"}, LatencyTotal: time.Since(start)}, fmt.Errorf("deadline exceeded before planning")
	}

	mainResp, err := r.caller.Call(ctx, r.cfg.Provider, mainID, planMessages, nil)
	if err != nil {
		r.markUnhealthy(mainID)
		return Result{}, err
	}

	intentRecord := parseIntent(mainResp.Content)

	if intentRecord.Action == ActionRespond || intentRecord.Action == ActionAskClarification {
		text := intentRecord.Metadata.Response
		if intentRecord.Action == ActionAskClarification {
			text = intentRecord.Metadata.Question
		}
		if text == "" {
			neutral := []Message{{Role: "system", Content: "Respond directly and helpfully to the user."}}
			neutral = append(neutral, userSystemOnly(messages)...)
			fallback, err := r.caller.Call(ctx, r.cfg.Provider, mainID, neutral, nil)
			if err != nil {
				r.markUnhealthy(mainID)
				return Result{}, err
			}
			text = fallback.Content
		}
		return Result{
			Mode:          "dual",
			MainResponse:  &mainResp,
			FinalResponse: Response{Content: text},
			LatencyMain:   mainResp.Latency,
			LatencyTotal:  time.Since(start),
			Phases:        []string{"planning"},
			Intent:        &intentRecord,
		}, nil
	}

	if deadlineExceeded(ctx) {
		return Result{
			Mode:          "dual",
			MainResponse:  &mainResp,
			FinalResponse: Response{},
			LatencyMain:   mainResp.Latency,
			LatencyTotal:  time.Since(start),
			Phases:        []string{"planning"},
			Intent:        &intentRecord,
		}, fmt.Errorf("deadline exceeded before execution")
	}

	execTools := r.resolveExecutorTools(tools, executorID)
	execMessages := []Message{
		{Role: "system", Content: r.executorSystemPrompt(executorID)},
		{Role: "user", Content: serializeIntent(intentRecord)},
	}
	execResp, err := r.caller.Call(ctx, r.cfg.Provider, executorID, execMessages, execTools)
	if err != nil {
		r.markUnhealthy(executorID)
		return Result{}, err
	}

	return Result{
		Mode:             "dual",
		MainResponse:     &mainResp,
		ExecutorResponse: &execResp,
		FinalResponse:    execResp,
		ToolCalls:        execResp.ToolCalls,
		LatencyMain:      mainResp.Latency,
		LatencyExecutor:  execResp.Latency,
		LatencyTotal:     time.Since(start),
		Phases:           []string{"planning", "execution"},
		Intent:           &intentRecord,
	}, nil
}

// autoSelectMain resolves the best main-role candidate through the
// configured AutoSelector, if any.
func (r *Router) autoSelectMain() string {
	if r.autoSelect == nil {
		return ""
	}
	id, ok := r.autoSelect.SelectMain()
	if !ok {
		return ""
	}
	return id
}

// autoSelectExecutor resolves the best executor-role candidate through
// the configured AutoSelector, if any.
func (r *Router) autoSelectExecutor() string {
	if r.autoSelect == nil {
		return ""
	}
	id, ok := r.autoSelect.SelectExecutor()
	if !ok {
		return ""
	}
	return id
}

// markUnhealthy reports a failed dispatch to the AutoSelector so a later
// turn's auto-selection skips modelID for its cooldown window. A no-op
// when auto-selection is disabled or modelID was pinned by Config.
func (r *Router) markUnhealthy(modelID string) {
	if r.autoSelect == nil || modelID == "" {
		return
	}
	if modelID == r.cfg.MainModelID || modelID == r.cfg.ExecutorModelID {
		return
	}
	r.autoSelect.MarkUnhealthy(modelID)
}

func (r *Router) fragment(modelID string) (string, bool) {
	if r.prosthetics == nil {
		return "", false
	}
	return r.prosthetics(modelID)
}

func withProsthetic(messages []Message, fragment string, ok bool) []Message {
	if !ok || fragment == "" {
		return messages
	}
	out := make([]Message, len(messages))
	copy(out, messages)
	injected := false
	for i, m := range out {
		if m.Role == "system" {
			out[i].Content = m.Content + "\n\n" + fragment
			injected = true
			break
		}
	}
	if !injected {
		out = append([]Message{{Role: "system", Content: fragment}}, out...)
	}
	return out
}

func (r *Router) plannerSystemPrompt(mainID string) string {
	text, ok := r.fragment(mainID)
	if ok && text != "" {
		return plannerSkeleton + "\n\n" + text
	}
	return plannerSkeleton
}

func (r *Router) executorSystemPrompt(executorID string) string {
	text, ok := r.fragment(executorID)
	if ok && text != "" {
		return executorPreamble + "\n\n" + text
	}
	return executorPreamble
}

func (r *Router) resolveExecutorTools(requestTools []Tool, executorID string) []Tool {
	if r.profiles == nil {
		return requestTools
	}
	enabled := r.profiles(executorID)
	if len(enabled) == 0 {
		return requestTools
	}
	allow := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		allow[name] = true
	}
	var out []Tool
	for _, t := range requestTools {
		if allow[t.Name] {
			out = append(out, t)
		}
	}
	return out
}

func userSystemOnly(messages []Message) []Message {
	var out []Message
	for _, m := range messages {
		if m.Role == "user" || m.Role == "system" {
			out = append(out, m)
		}
	}
	return out
}

func deadlineExceeded(ctx context.Context) bool {
	deadline, ok := ctx.Deadline()
	if !ok {
		return false
	}
	return time.Now().After(deadline)
}

// parseIntent extracts the first JSON object found in text and decodes
// it as an Intent. A parse failure or malformed record falls back to a
// respond action with a fixed reasoning note.
func parseIntent(text string) Intent {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return fallbackIntent()
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				candidate := text[start : i+1]
				var parsed Intent
				if err := json.Unmarshal([]byte(candidate), &parsed); err != nil || parsed.Action == "" {
					return fallbackIntent()
				}
				if parsed.SchemaVersion == 0 {
					parsed.SchemaVersion = intentSchemaVersion
				}
				return parsed
			}
		}
	}
	return fallbackIntent()
}

func fallbackIntent() Intent {
	return Intent{
		SchemaVersion: intentSchemaVersion,
		Action:        ActionRespond,
		Metadata:      Metadata{Reasoning: "could not parse"},
	}
}

func serializeIntent(in Intent) string {
	data, err := json.Marshal(in)
	if err != nil {
		return ""
	}
	return string(data)
}
