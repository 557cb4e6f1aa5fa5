package compress

import "testing"

func TestEstimateTokensCeilingDivision(t *testing.T) {
	tests := []struct {
		content string
		want    int
	}{
		{"", 0},
		{"abcd", 1},
		{"abcde", 2},
		{"abcdefgh", 2},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.content); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.content, got, tt.want)
		}
	}
}

func buildMessages(n int, toolAt map[int]bool) []Message {
	out := make([]Message, n)
	for i := range out {
		out[i] = Message{Role: "user", Content: "some message content here that is not trivially short"}
		if toolAt[i] {
			out[i].ToolCalls = true
		}
	}
	return out
}

func TestCompressPreservesPlusCompressedPlusDroppedEqualsTotal(t *testing.T) {
	messages := buildMessages(20, map[int]bool{3: true, 7: true, 12: true})
	result := Compress(messages, Options{Mode: ModeConservative, SkipLast: 5, PreserveToolCalls: true})
	total := result.Stats.Preserved + result.Stats.Compressed + result.Stats.Dropped
	if total != len(messages) {
		t.Fatalf("preserved+compressed+dropped = %d, want %d", total, len(messages))
	}
	if len(result.Decisions) != len(messages) {
		t.Fatalf("decisions length = %d, want %d", len(result.Decisions), len(messages))
	}
}

func TestCompressPreservesToolCallsAndRecent(t *testing.T) {
	messages := buildMessages(20, map[int]bool{3: true, 7: true, 12: true})
	result := Compress(messages, Options{Mode: ModeConservative, SkipLast: 5, PreserveToolCalls: true})

	for _, idx := range []int{3, 7, 12} {
		if result.Decisions[idx].Action != ActionPreserve {
			t.Errorf("message %d with tool calls should be preserved, got %v", idx, result.Decisions[idx].Action)
		}
	}
	for idx := 15; idx < 20; idx++ {
		if result.Decisions[idx].Action != ActionPreserve {
			t.Errorf("message %d within skipLast window should be preserved, got %v", idx, result.Decisions[idx].Action)
		}
	}
}

func TestCompressShortInputAllPreserved(t *testing.T) {
	messages := buildMessages(3, nil)
	result := Compress(messages, Options{Mode: ModeConservative, SkipLast: 5, PreserveToolCalls: true})
	if result.Stats.Preserved != 3 {
		t.Fatalf("expected all messages preserved when input <= skipLast, got %d", result.Stats.Preserved)
	}
}

func TestCompressedTokensNeverExceedOriginal(t *testing.T) {
	messages := buildMessages(30, nil)
	result := Compress(messages, Options{Mode: ModeAggressive, SkipLast: 5, PreserveToolCalls: true})
	if result.Stats.CompressedTokens > result.Stats.OriginalTokens {
		t.Fatalf("CompressedTokens (%d) > OriginalTokens (%d)", result.Stats.CompressedTokens, result.Stats.OriginalTokens)
	}
}

func TestFoldGroupsSplitsLongRuns(t *testing.T) {
	decisions := make([]Decision, 10)
	for i := range decisions {
		decisions[i].Action = ActionCompress
	}
	groups := foldGroups(decisions, 3)
	for _, g := range groups {
		if len(g) > 3 {
			t.Fatalf("group size %d exceeds cap of 3", len(g))
		}
	}
	var total int
	for _, g := range groups {
		total += len(g)
	}
	if total != 10 {
		t.Fatalf("folded groups cover %d indices, want 10", total)
	}
}
