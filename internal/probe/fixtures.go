package probe

import (
	"encoding/json"

	"github.com/ctxloom/ctxloom/internal/agent"
)

// Fixtures carries the fixed tool definitions the tool-probe family
// builds requests from. A single shared set keeps every model tested
// against byte-identical schemas.
type Fixtures struct {
	Ping         agent.Tool // {value: string}
	PingRenamed  agent.Tool // {message: string, timestamp: number} — schema-adherence probe
	PingReorder  agent.Tool // same fields as Ping, declared in reverse order
	ReadFile     agent.Tool
	WriteFile    agent.Tool
	ReadFileCached agent.Tool // near-synonym of ReadFile, differs only by "cached" qualifier
	Edit         agent.Tool  // nested-argument probe: edits: [{oldText,newText}]
}

func schema(props map[string]any, required []string) json.RawMessage {
	doc := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	raw, _ := json.Marshal(doc)
	return raw
}

// DefaultFixtures builds the fixed tool set the catalog is evaluated
// against. Every probe run for every model reuses the same fixtures, so
// schema/selection/suppression scores are comparable across models.
func DefaultFixtures() Fixtures {
	return Fixtures{
		Ping: agent.StaticTool{
			ToolName:        "ping",
			ToolDescription: "Send a ping with a value.",
			ToolSchema:      schema(map[string]any{"value": map[string]any{"type": "string"}}, []string{"value"}),
		},
		PingRenamed: agent.StaticTool{
			ToolName:        "ping",
			ToolDescription: "Send a ping with a message and timestamp.",
			ToolSchema: schema(map[string]any{
				"message":   map[string]any{"type": "string"},
				"timestamp": map[string]any{"type": "number"},
			}, []string{"message", "timestamp"}),
		},
		PingReorder: agent.StaticTool{
			ToolName:        "ping",
			ToolDescription: "Send a ping with a value.",
			ToolSchema: schema(map[string]any{
				"extra": map[string]any{"type": "string", "description": "unused, declared first"},
				"value": map[string]any{"type": "string"},
			}, []string{"value"}),
		},
		ReadFile: agent.StaticTool{
			ToolName:        "read_file",
			ToolDescription: "Read the contents of a file at a path.",
			ToolSchema:      schema(map[string]any{"path": map[string]any{"type": "string"}}, []string{"path"}),
		},
		ReadFileCached: agent.StaticTool{
			ToolName:        "read_file_cached",
			ToolDescription: "Read the contents of a file at a path, using a cached copy if available.",
			ToolSchema:      schema(map[string]any{"path": map[string]any{"type": "string"}}, []string{"path"}),
		},
		WriteFile: agent.StaticTool{
			ToolName:        "write_file",
			ToolDescription: "Write content to a file at a path.",
			ToolSchema: schema(map[string]any{
				"path":    map[string]any{"type": "string"},
				"content": map[string]any{"type": "string"},
			}, []string{"path", "content"}),
		},
		Edit: agent.StaticTool{
			ToolName:        "edit_file",
			ToolDescription: "Apply a list of find/replace edits to a file.",
			ToolSchema: schema(map[string]any{
				"path": map[string]any{"type": "string"},
				"edits": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"oldText": map[string]any{"type": "string"},
							"newText": map[string]any{"type": "string"},
						},
					},
				},
			}, []string{"path", "edits"}),
		},
	}
}
