package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ctxloom/ctxloom/internal/agent/providers"
	"github.com/ctxloom/ctxloom/internal/failurelog"
	"github.com/ctxloom/ctxloom/internal/idemapper"
	"github.com/ctxloom/ctxloom/internal/intent"
)

// chatMessage mirrors one entry of an OpenAI-compatible chat completion
// request/response message.
type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function chatFunctionCall `json:"function"`
}

type chatFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatTool struct {
	Type     string             `json:"type"`
	Function chatFunctionSchema `json:"function"`
}

type chatFunctionSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []chatTool    `json:"tools,omitempty"`
}

type chatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// handleChatCompletions is the OpenAI-compatible passthrough: it parses
// the IDE suffix off the model string, loads that IDE's tool mapping
// table, converts history and tool schemas to canonical shape, routes
// the turn through the intent router (single- or dual-model), and maps
// any resulting tool calls back to the client.
func (c *Core) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatCompletionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages is required", nil)
		return
	}
	if c.Router == nil {
		writeError(w, http.StatusServiceUnavailable, "intent router unavailable", nil)
		return
	}

	baseModel, ide := idemapper.ParseModelString(req.Model)

	table, err := c.mappingTableFor(ide)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading ide mapping table", err.Error())
		return
	}

	canonicalTools := c.executorEnabledTools()

	messages := toIntentMessages(table, canonicalTools, req.Messages)
	tools, extensions := mapRequestTools(table, req.Tools, canonicalTools)
	if len(extensions) > 0 {
		addendum := idemapper.ExtensionsAddendum(extensions)
		messages = append([]intent.Message{{Role: "system", Content: addendum}}, messages...)
	}

	result, err := c.Router.Route(r.Context(), messages, tools)
	if err != nil {
		hash := c.currentWorkspaceHash()
		if log, logErr := c.failureLogFor(hash); logErr == nil {
			_, _ = log.LogFailure(failurelog.LogParams{
				ModelID:  baseModel,
				Category: failurelog.CategoryIntent,
				Message:  err.Error(),
				Query:    lastUserText(req.Messages),
			})
		}
		writeError(w, statusForRouteError(err), "routing failed", err.Error())
		return
	}

	reverse := reverseRenames(table)
	respMessage := chatMessage{Role: "assistant", Content: result.FinalResponse.Content}
	for _, tc := range result.ToolCalls {
		respMessage.ToolCalls = append(respMessage.ToolCalls, toChatToolCall(tc, reverse))
	}

	writeJSON(w, http.StatusOK, chatCompletionResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   baseModel,
		Choices: []chatChoice{{Index: 0, Message: respMessage, FinishReason: finishReasonFor(result)}},
	})
}

// executorEnabledTools resolves the canonical tool names the configured
// executor model was probed against, if its capability profile is known.
func (c *Core) executorEnabledTools() map[string]bool {
	canonical := map[string]bool{}
	if c.Capability == nil {
		return canonical
	}
	profile, ok := c.Capability.Get(c.Config.Routing.ExecutorModelID)
	if !ok {
		return canonical
	}
	for _, name := range profile.EnabledTools {
		canonical[name] = true
	}
	return canonical
}

func toIntentMessages(table idemapper.MappingTable, canonicalTools map[string]bool, in []chatMessage) []intent.Message {
	out := make([]intent.Message, 0, len(in))
	for _, m := range in {
		im := intent.Message{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			var args map[string]any
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
			decision, mapping := idemapper.MapCall(table, tc.Function.Name, canonicalTools)
			name := tc.Function.Name
			switch decision {
			case idemapper.DecisionTransform:
				if mapping.Transform == "find_replace_to_edits" {
					args = idemapper.FindReplaceToEdits(args)
				} else {
					args = idemapper.ApplyParamRenames(args, mapping.ParamRenames)
				}
				if mapping.CanonicalName != "" {
					name = mapping.CanonicalName
				}
			case idemapper.DecisionExecute:
				if mapping.CanonicalName != "" {
					name = mapping.CanonicalName
				}
			}
			im.ToolCalls = append(im.ToolCalls, intent.ToolCall{ID: tc.ID, Name: name, Arguments: args})
		}
		out = append(out, im)
	}
	return out
}

func mapRequestTools(table idemapper.MappingTable, in []chatTool, canonicalTools map[string]bool) ([]intent.Tool, []string) {
	out := make([]intent.Tool, 0, len(in))
	for _, t := range in {
		decision, mapping := idemapper.MapCall(table, t.Function.Name, canonicalTools)
		if decision == idemapper.DecisionPassthrough {
			continue
		}
		name := t.Function.Name
		if mapping.CanonicalName != "" {
			name = mapping.CanonicalName
		}
		out = append(out, intent.Tool{Name: name, Description: t.Function.Description, Parameters: t.Function.Parameters})
	}

	var extensions []string
	if len(canonicalTools) > 0 {
		enabled := make([]string, 0, len(canonicalTools))
		for name := range canonicalTools {
			enabled = append(enabled, name)
		}
		extensions = idemapper.ComputeExtensions(table, enabled)
	}
	return out, extensions
}

// reverseRenames builds the canonical-name -> IDE-param-name rename list
// used to translate a freshly emitted tool call back into the IDE's own
// argument naming before it reaches the client.
func reverseRenames(table idemapper.MappingTable) map[string][]idemapper.ParamRename {
	reverse := map[string][]idemapper.ParamRename{}
	for _, mapping := range table.Tools {
		if mapping.CanonicalName == "" || len(mapping.ParamRenames) == 0 {
			continue
		}
		for _, rn := range mapping.ParamRenames {
			reverse[mapping.CanonicalName] = append(reverse[mapping.CanonicalName], idemapper.ParamRename{From: rn.To, To: rn.From})
		}
	}
	return reverse
}

func toChatToolCall(tc intent.ToolCall, reverse map[string][]idemapper.ParamRename) chatToolCall {
	args := tc.Arguments
	if renames, ok := reverse[tc.Name]; ok {
		args = idemapper.ApplyParamRenames(args, renames)
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		encoded = []byte("{}")
	}
	return chatToolCall{ID: tc.ID, Type: "function", Function: chatFunctionCall{Name: tc.Name, Arguments: string(encoded)}}
}

func finishReasonFor(result intent.Result) string {
	if len(result.ToolCalls) > 0 {
		return "tool_calls"
	}
	return "stop"
}

func lastUserText(messages []chatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

func statusForRouteError(err error) int {
	if providerErr, ok := providers.GetProviderError(err); ok && providerErr.Status != 0 {
		return providerErr.Status
	}
	return http.StatusBadGateway
}
