package probe

import (
	"encoding/json"
	"strings"

	"github.com/ctxloom/ctxloom/internal/agent/providers"
)

// controlTokens are model-specific chat-template markers that should
// never survive into decoded content; their presence indicates template
// leakage rather than an intentional reply.
var controlTokens = []string{
	"<|im_start|>", "<|im_end|>", "<|eot_id|>", "<|start_header_id|>",
	"<|end_header_id|>", "[INST]", "[/INST]", "<<SYS>>", "<</SYS>>",
	"<|assistant|>", "<|user|>", "<|system|>",
}

// DetectLeakedControlTokens reports whether content contains a raw
// chat-template control token.
func DetectLeakedControlTokens(content string) bool {
	for _, tok := range controlTokens {
		if strings.Contains(content, tok) {
			return true
		}
	}
	return false
}

// DetectRepetitionLoop reports whether content contains the same
// n-gram of words repeated more than maxRepeats times consecutively —
// a common failure mode for models that lose track of when to stop.
func DetectRepetitionLoop(content string, nGram, maxRepeats int) bool {
	if nGram <= 0 || maxRepeats <= 0 {
		return false
	}
	words := strings.Fields(content)
	if len(words) < nGram*(maxRepeats+1) {
		return false
	}
	for i := 0; i+nGram <= len(words); i++ {
		gram := strings.Join(words[i:i+nGram], " ")
		repeats := 1
		for j := i + nGram; j+nGram <= len(words); j += nGram {
			if strings.Join(words[j:j+nGram], " ") != gram {
				break
			}
			repeats++
		}
		if repeats > maxRepeats {
			return true
		}
	}
	return false
}

// DetectMalformedToolArgs reports whether any emitted tool call has an
// empty Name or non-empty arguments that are not valid JSON. A call with
// no arguments at all is not flagged.
func DetectMalformedToolArgs(resp providers.Response) bool {
	for _, tc := range resp.ToolCalls() {
		if strings.TrimSpace(tc.Name) == "" {
			return true
		}
		if len(tc.Input) == 0 {
			continue
		}
		var v any
		if err := json.Unmarshal(tc.Input, &v); err != nil {
			return true
		}
	}
	return false
}

// badOutputPenalty is subtracted from a probe's score (floored at 0) for
// each heuristic that fires, per spec.md §4.2's bad-output downgrade.
const badOutputPenalty = 25

// applyHeuristicPenalty downgrades a result's score when its response
// content or tool calls trip one of the bad-output heuristics. Pass is
// left untouched — heuristics shade the score, they do not themselves
// flip a probe's pass/fail verdict.
func applyHeuristicPenalty(r Result, resp providers.Response) Result {
	penalty := 0.0
	var reasons []string
	if DetectRepetitionLoop(resp.Content(), 3, 5) {
		penalty += badOutputPenalty
		reasons = append(reasons, "repetition loop detected")
	}
	if DetectLeakedControlTokens(resp.Content()) {
		penalty += badOutputPenalty
		reasons = append(reasons, "leaked control tokens")
	}
	if DetectMalformedToolArgs(resp) {
		penalty += badOutputPenalty
		reasons = append(reasons, "malformed tool arguments")
	}
	if penalty == 0 {
		return r
	}
	r.Score -= penalty
	if r.Score < 0 {
		r.Score = 0
	}
	r.HeuristicPenalty = penalty
	if r.Diagnostic != "" {
		r.Diagnostic += "; "
	}
	r.Diagnostic += strings.Join(reasons, "; ")
	return r
}
