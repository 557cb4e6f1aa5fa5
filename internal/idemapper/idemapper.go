// Package idemapper translates IDE-flavored tool calls into the
// canonical tool vocabulary an executor model was probed against (C10).
// Mapping tables are version-controlled YAML/JSON5 assets loaded the
// same way the configuration package loads its documents.
package idemapper

import (
	"strings"
)

// IDE is a recognized IDE suffix on a model string.
type IDE string

const (
	IDEContinue IDE = "continue"
	IDECursor   IDE = "cursor"
	IDECopilot  IDE = "copilot"
	IDEWindsurf IDE = "windsurf"
	IDEZed      IDE = "zed"
	IDEVSCode   IDE = "vscode"
	IDEDefault  IDE = "default"
)

var knownIDEs = map[string]IDE{
	"continue": IDEContinue,
	"cursor":   IDECursor,
	"copilot":  IDECopilot,
	"windsurf": IDEWindsurf,
	"zed":      IDEZed,
	"vscode":   IDEVSCode,
}

// ParseModelString splits a trailing "-<ide>" suffix off a model string,
// returning the base model id and the recognized IDE (or IDEDefault if
// the suffix is absent or unrecognized).
func ParseModelString(modelString string) (baseModel string, ide IDE) {
	idx := strings.LastIndexByte(modelString, '-')
	if idx < 0 || idx == len(modelString)-1 {
		return modelString, IDEDefault
	}
	suffix := strings.ToLower(modelString[idx+1:])
	if found, ok := knownIDEs[suffix]; ok {
		return modelString[:idx], found
	}
	return modelString, IDEDefault
}

// ParamRename renames one parameter from an IDE tool call to its
// canonical equivalent.
type ParamRename struct {
	From string
	To   string
}

// ToolMapping describes how one IDE tool name maps to the canonical
// vocabulary.
type ToolMapping struct {
	CanonicalName string
	ParamRenames  []ParamRename
	Transform     string // named transform, e.g. "find_replace_to_edits"
}

// MappingTable is one IDE's full mapping document.
type MappingTable struct {
	IDE IDE
	Tools           map[string]ToolMapping // IDE tool name -> mapping
	BrowserTools    map[string]ToolMapping // optional browser-tool IDE name -> mapping
	PassthroughOnly map[string]bool        // IDE-only tools with no canonical equivalent
}

// Decision is what the mapper decided to do with one emitted tool call.
type Decision string

const (
	DecisionExecute     Decision = "execute_as_is"
	DecisionTransform   Decision = "transform"
	DecisionPassthrough Decision = "passthrough"
	DecisionUnknown     Decision = "unknown"
)

// MapCall decides how to handle one IDE-emitted tool call name against a
// mapping table and the set of canonical names the executor supports.
func MapCall(table MappingTable, ideToolName string, canonicalTools map[string]bool) (Decision, ToolMapping) {
	if canonicalTools[ideToolName] {
		return DecisionExecute, ToolMapping{CanonicalName: ideToolName}
	}
	if mapping, ok := table.Tools[ideToolName]; ok {
		if mapping.Transform != "" {
			return DecisionTransform, mapping
		}
		return DecisionExecute, mapping
	}
	if mapping, ok := table.BrowserTools[ideToolName]; ok {
		if mapping.Transform != "" {
			return DecisionTransform, mapping
		}
		return DecisionExecute, mapping
	}
	if table.PassthroughOnly[ideToolName] {
		return DecisionPassthrough, ToolMapping{}
	}
	return DecisionUnknown, ToolMapping{}
}

// ApplyParamRenames rewrites argument keys per a mapping's ParamRenames.
func ApplyParamRenames(args map[string]any, renames []ParamRename) map[string]any {
	if len(renames) == 0 {
		return args
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	for _, r := range renames {
		if v, ok := out[r.From]; ok {
			delete(out, r.From)
			out[r.To] = v
		}
	}
	return out
}

// FindReplaceToEdits is the spec's named example transform: an IDE
// "find/replace" call ({oldText, newText}) becomes the canonical
// edits=[{oldText,newText}] shape.
func FindReplaceToEdits(args map[string]any) map[string]any {
	oldText, _ := args["oldText"].(string)
	newText, _ := args["newText"].(string)
	return map[string]any{
		"edits": []map[string]any{{"oldText": oldText, "newText": newText}},
	}
}

// ComputeExtensions returns the subset of the executor's enabled tools not
// covered by the IDE mapping table — tools to append to the exposed set
// and describe in a system-prompt addendum.
func ComputeExtensions(table MappingTable, executorEnabledTools []string) []string {
	covered := make(map[string]bool, len(table.Tools)+len(table.BrowserTools))
	for _, mapping := range table.Tools {
		covered[mapping.CanonicalName] = true
	}
	for _, mapping := range table.BrowserTools {
		covered[mapping.CanonicalName] = true
	}
	var extensions []string
	for _, name := range executorEnabledTools {
		if !covered[name] {
			extensions = append(extensions, name)
		}
	}
	return extensions
}

// ExtensionsAddendum renders a system-prompt addendum describing the
// extension tools appended beyond the IDE's own mapping.
func ExtensionsAddendum(extensions []string) string {
	if len(extensions) == 0 {
		return ""
	}
	return "Additional tools available beyond your IDE's built-ins: " + strings.Join(extensions, ", ")
}
