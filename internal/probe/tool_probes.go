package probe

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/ctxloom/ctxloom/internal/agent"
	"github.com/ctxloom/ctxloom/internal/agent/providers"
	"github.com/ctxloom/ctxloom/pkg/models"
)

func userMsg(content string) []agent.CompletionMessage {
	return []agent.CompletionMessage{{Role: "user", Content: content}}
}

func toolCalled(resp providers.Response, name string) (models.ToolCall, bool) {
	for _, tc := range resp.ToolCalls() {
		if tc.Name == name {
			return tc, true
		}
	}
	return models.ToolCall{}, false
}

func toolArgs(tc models.ToolCall) map[string]any {
	var args map[string]any
	if len(tc.Input) > 0 {
		_ = json.Unmarshal(tc.Input, &args)
	}
	return args
}

// toolProbes returns the tool-calling family of the fixed catalog.
func toolProbes() []Probe {
	return []Probe{
		emitProbe(),
		schemaAdherenceProbe(),
		selectionProbe(),
		suppressionProbe(),
		nearIdenticalSelectionProbe(),
		multiToolEmitProbe(),
		nestedArgumentProbe(),
		schemaReorderProbe(),
	}
}

// emitProbe: must call a named tool given an unambiguous instruction.
// Falls back to a textual XML-style tool-call instruction if the
// OpenAI-style attempt produces no call, recording whichever worked.
func emitProbe() Probe {
	eval := func(resp providers.Response, _ time.Duration) Result {
		if tc, ok := toolCalled(resp, "ping"); ok {
			args := toolArgs(tc)
			if v, _ := args["value"].(string); v == "hello" {
				return Result{Pass: true, Score: 100, ToolFormat: ToolFormatOpenAI, Diagnostic: "called ping with value=hello"}
			}
			return Result{Pass: true, Score: 70, ToolFormat: ToolFormatOpenAI, Diagnostic: "called ping with unexpected value"}
		}
		return Result{Pass: false, Score: 0, Diagnostic: "no ping call emitted"}
	}
	return Probe{
		Name: "tool_emit", Family: FamilyTool, Axis: "tool_accuracy",
		Build: func(f Fixtures) *agent.CompletionRequest {
			return &agent.CompletionRequest{
				Messages:   userMsg("Call the ping tool with value 'hello'. You must call the tool; do not just describe it."),
				Tools:      []agent.Tool{f.Ping},
				ToolChoice: "auto",
			}
		},
		Evaluate: eval,
		Fallback: func(f Fixtures) *agent.CompletionRequest {
			return &agent.CompletionRequest{
				Messages: userMsg("You have one tool available: ping(value: string). " +
					"To call it, reply with exactly:\n<tool_call>\n<name>ping</name>\n<arguments>{\"value\": \"hello\"}</arguments>\n</tool_call>\n" +
					"Call ping with value 'hello' now."),
			}
		},
	}
}

// schemaAdherenceProbe: the tool definition renames fields; the model
// must use the new names, not ones remembered from a stale schema.
func schemaAdherenceProbe() Probe {
	return Probe{
		Name: "tool_schema_adherence", Family: FamilyTool, Axis: "tool_accuracy",
		Build: func(f Fixtures) *agent.CompletionRequest {
			return &agent.CompletionRequest{
				Messages:   userMsg("Call ping with message 'hello' and timestamp 1234567890."),
				Tools:      []agent.Tool{f.PingRenamed},
				ToolChoice: "auto",
			}
		},
		Evaluate: func(resp providers.Response, _ time.Duration) Result {
			tc, ok := toolCalled(resp, "ping")
			if !ok {
				return Result{Pass: false, Score: 0, Diagnostic: "no ping call emitted"}
			}
			args := toolArgs(tc)
			_, hasLegacy := args["value"]
			message, _ := args["message"].(string)
			if message == "hello" && !hasLegacy {
				return Result{Pass: true, Score: 100, Diagnostic: "used renamed fields"}
			}
			if hasLegacy {
				return Result{Pass: false, Score: 20, Diagnostic: "used stale 'value' field instead of renamed schema"}
			}
			return Result{Pass: false, Score: 40, Diagnostic: "message field missing or wrong"}
		},
	}
}

// selectionProbe: two tools differing only by intent; must pick the one
// matching the instruction.
func selectionProbe() Probe {
	return Probe{
		Name: "tool_selection", Family: FamilyTool, Axis: "tool_accuracy",
		Build: func(f Fixtures) *agent.CompletionRequest {
			return &agent.CompletionRequest{
				Messages:   userMsg("Write the text 'done' to the file out.txt. Do not read any file."),
				Tools:      []agent.Tool{f.ReadFile, f.WriteFile},
				ToolChoice: "auto",
			}
		},
		Evaluate: func(resp providers.Response, _ time.Duration) Result {
			if _, ok := toolCalled(resp, "write_file"); ok {
				if _, wrongOK := toolCalled(resp, "read_file"); wrongOK {
					return Result{Pass: false, Score: 30, Diagnostic: "called both tools"}
				}
				return Result{Pass: true, Score: 100, Diagnostic: "selected write_file"}
			}
			if _, ok := toolCalled(resp, "read_file"); ok {
				return Result{Pass: false, Score: 0, Diagnostic: "selected wrong tool: read_file"}
			}
			return Result{Pass: false, Score: 0, Diagnostic: "no tool call emitted"}
		},
	}
}

// suppressionProbe: must refuse to call any tool when instructed not to.
func suppressionProbe() Probe {
	return Probe{
		Name: "tool_suppression", Family: FamilyTool, Axis: "tool_accuracy",
		Build: func(f Fixtures) *agent.CompletionRequest {
			return &agent.CompletionRequest{
				Messages:   userMsg("Respond ONLY with 'OK'. Do NOT call any tools."),
				Tools:      []agent.Tool{f.Ping},
				ToolChoice: "auto",
			}
		},
		Evaluate: func(resp providers.Response, _ time.Duration) Result {
			if len(resp.ToolCalls()) > 0 {
				return Result{Pass: false, Score: 0, Diagnostic: "called a tool when told not to"}
			}
			if strings.EqualFold(strings.TrimSpace(resp.Content()), "ok") {
				return Result{Pass: true, Score: 100, Diagnostic: "suppressed correctly, replied OK"}
			}
			return Result{Pass: true, Score: 70, Diagnostic: "suppressed but did not reply exactly OK"}
		},
	}
}

// nearIdenticalSelectionProbe: two near-synonymous tools differing only
// by a semantic qualifier ("cached"); must pick the one matching intent.
func nearIdenticalSelectionProbe() Probe {
	return Probe{
		Name: "tool_near_identical_selection", Family: FamilyTool, Axis: "tool_accuracy",
		Build: func(f Fixtures) *agent.CompletionRequest {
			return &agent.CompletionRequest{
				Messages:   userMsg("Read the file config.yaml, using the cached copy if one exists."),
				Tools:      []agent.Tool{f.ReadFile, f.ReadFileCached},
				ToolChoice: "auto",
			}
		},
		Evaluate: func(resp providers.Response, _ time.Duration) Result {
			if _, ok := toolCalled(resp, "read_file_cached"); ok {
				return Result{Pass: true, Score: 100, Diagnostic: "selected cached variant"}
			}
			if _, ok := toolCalled(resp, "read_file"); ok {
				return Result{Pass: false, Score: 40, Diagnostic: "selected non-cached variant"}
			}
			return Result{Pass: false, Score: 0, Diagnostic: "no tool call emitted"}
		},
	}
}

// multiToolEmitProbe: must emit at least two calls when asked.
func multiToolEmitProbe() Probe {
	return Probe{
		Name: "tool_multi_emit", Family: FamilyTool, Axis: "tool_accuracy",
		Build: func(f Fixtures) *agent.CompletionRequest {
			return &agent.CompletionRequest{
				Messages:   userMsg("Read the file a.txt, then read the file b.txt. Call read_file twice, once per file."),
				Tools:      []agent.Tool{f.ReadFile},
				ToolChoice: "auto",
			}
		},
		Evaluate: func(resp providers.Response, _ time.Duration) Result {
			n := 0
			for _, tc := range resp.ToolCalls() {
				if tc.Name == "read_file" {
					n++
				}
			}
			if n >= 2 {
				return Result{Pass: true, Score: 100, Diagnostic: "emitted >=2 calls"}
			}
			return Result{Pass: false, Score: float64(n) * 40, Diagnostic: "emitted fewer than 2 calls"}
		},
	}
}

// nestedArgumentProbe: a tool with a nested array-of-objects argument
// must be called with correctly nested JSON.
func nestedArgumentProbe() Probe {
	return Probe{
		Name: "tool_nested_argument", Family: FamilyTool, Axis: "tool_accuracy",
		Build: func(f Fixtures) *agent.CompletionRequest {
			return &agent.CompletionRequest{
				Messages: userMsg("Edit file notes.txt: replace the text 'foo' with 'bar'."),
				Tools:    []agent.Tool{f.Edit},
				ToolChoice: "auto",
			}
		},
		Evaluate: func(resp providers.Response, _ time.Duration) Result {
			tc, ok := toolCalled(resp, "edit_file")
			if !ok {
				return Result{Pass: false, Score: 0, Diagnostic: "no edit_file call emitted"}
			}
			args := toolArgs(tc)
			edits, ok := args["edits"].([]any)
			if !ok || len(edits) == 0 {
				return Result{Pass: false, Score: 20, Diagnostic: "edits field missing or not an array"}
			}
			first, ok := edits[0].(map[string]any)
			if !ok {
				return Result{Pass: false, Score: 30, Diagnostic: "edit entry not an object"}
			}
			oldText, _ := first["oldText"].(string)
			newText, _ := first["newText"].(string)
			if oldText == "foo" && newText == "bar" {
				return Result{Pass: true, Score: 100, Diagnostic: "nested edit arguments correct"}
			}
			return Result{Pass: false, Score: 50, Diagnostic: "nested edit arguments present but wrong values"}
		},
	}
}

// schemaReorderProbe: a semantically identical schema with fields
// reordered must still succeed.
func schemaReorderProbe() Probe {
	return Probe{
		Name: "tool_schema_reorder", Family: FamilyTool, Axis: "tool_accuracy",
		Build: func(f Fixtures) *agent.CompletionRequest {
			return &agent.CompletionRequest{
				Messages:   userMsg("Call the ping tool with value 'hello'."),
				Tools:      []agent.Tool{f.PingReorder},
				ToolChoice: "auto",
			}
		},
		Evaluate: func(resp providers.Response, _ time.Duration) Result {
			tc, ok := toolCalled(resp, "ping")
			if !ok {
				return Result{Pass: false, Score: 0, Diagnostic: "no ping call emitted"}
			}
			if v, _ := toolArgs(tc)["value"].(string); v == "hello" {
				return Result{Pass: true, Score: 100, Diagnostic: "succeeded despite field reorder"}
			}
			return Result{Pass: false, Score: 40, Diagnostic: "wrong value for reordered schema"}
		},
	}
}
