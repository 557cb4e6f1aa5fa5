package idemapper

import (
	"testing"

	"github.com/ctxloom/ctxloom/internal/testharness"
)

func TestParseModelStringSuffix(t *testing.T) {
	base, ide := ParseModelString("gpt-4o-cursor")
	if base != "gpt-4o" || ide != IDECursor {
		t.Fatalf("ParseModelString() = (%q, %q), want (%q, %q)", base, ide, "gpt-4o", IDECursor)
	}
}

func TestParseModelStringNoSuffix(t *testing.T) {
	base, ide := ParseModelString("claude-sonnet")
	if base != "claude-sonnet" || ide != IDEDefault {
		t.Fatalf("ParseModelString() = (%q, %q), want (%q, %q)", base, ide, "claude-sonnet", IDEDefault)
	}
}

func TestMapCallDecisions(t *testing.T) {
	table := MappingTable{
		IDE: IDECursor,
		Tools: map[string]ToolMapping{
			"search_replace": {CanonicalName: "edit_file", Transform: "find_replace_to_edits"},
			"open_file":      {CanonicalName: "read_file"},
		},
		PassthroughOnly: map[string]bool{"notebook_run": true},
	}
	canonical := map[string]bool{"edit_file": true}

	if d, _ := MapCall(table, "edit_file", canonical); d != DecisionExecute {
		t.Fatalf("canonical passthrough = %q, want %q", d, DecisionExecute)
	}
	if d, m := MapCall(table, "search_replace", canonical); d != DecisionTransform || m.Transform != "find_replace_to_edits" {
		t.Fatalf("transform decision = (%q, %+v)", d, m)
	}
	if d, _ := MapCall(table, "open_file", canonical); d != DecisionExecute {
		t.Fatalf("mapped-without-transform = %q, want %q", d, DecisionExecute)
	}
	if d, _ := MapCall(table, "notebook_run", canonical); d != DecisionPassthrough {
		t.Fatalf("passthrough-only = %q, want %q", d, DecisionPassthrough)
	}
	if d, _ := MapCall(table, "mystery_tool", canonical); d != DecisionUnknown {
		t.Fatalf("unmapped = %q, want %q", d, DecisionUnknown)
	}
}

func TestMapCallBrowserToolFallback(t *testing.T) {
	table := MappingTable{
		IDE: IDEZed,
		Tools: map[string]ToolMapping{
			"open_file": {CanonicalName: "read_file"},
		},
		BrowserTools: map[string]ToolMapping{
			"browser_click": {CanonicalName: "browser_click"},
			"browser_fill":  {CanonicalName: "browser_fill", Transform: "find_replace_to_edits"},
		},
	}
	canonical := map[string]bool{}

	if d, m := MapCall(table, "browser_click", canonical); d != DecisionExecute || m.CanonicalName != "browser_click" {
		t.Fatalf("browser tool without transform = (%q, %+v)", d, m)
	}
	if d, m := MapCall(table, "browser_fill", canonical); d != DecisionTransform || m.Transform != "find_replace_to_edits" {
		t.Fatalf("browser tool with transform = (%q, %+v)", d, m)
	}
	if d, _ := MapCall(table, "browser_scroll", canonical); d != DecisionUnknown {
		t.Fatalf("unmapped browser tool = %q, want %q", d, DecisionUnknown)
	}
}

func TestApplyParamRenames(t *testing.T) {
	args := map[string]any{"old_path": "a.go", "content": "x"}
	renamed := ApplyParamRenames(args, []ParamRename{{From: "old_path", To: "path"}})
	if renamed["path"] != "a.go" {
		t.Fatalf("renamed[path] = %v, want a.go", renamed["path"])
	}
	if _, ok := renamed["old_path"]; ok {
		t.Fatalf("old_path key should have been removed")
	}
}

// TestExtensionsAddendumGolden pins the exact wording of the system-prompt
// addendum the IDE tool mapper appends for executor tools an IDE's own
// mapping table doesn't cover, since that string is user-visible.
func TestExtensionsAddendumGolden(t *testing.T) {
	table := MappingTable{
		IDE: IDECursor,
		Tools: map[string]ToolMapping{
			"search_replace": {CanonicalName: "edit_file", Transform: "find_replace_to_edits"},
			"open_file":      {CanonicalName: "read_file"},
		},
	}
	extensions := ComputeExtensions(table, []string{"edit_file", "read_file", "run_command", "list_directory"})

	golden := testharness.NewGolden(t)
	golden.Assert(ExtensionsAddendum(extensions))
}
