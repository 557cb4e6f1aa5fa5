package probe

import (
	"context"
	"strings"
	"time"

	"github.com/ctxloom/ctxloom/internal/agent"
	"github.com/ctxloom/ctxloom/internal/agent/providers"
	"github.com/ctxloom/ctxloom/internal/prosthetic"
)

// levelOneProsthetic is the fixed corrective fragment the trainability
// probe injects. Real fragments are served by the prosthetic store (C5)
// and updated by a controller workflow out of scope here; the probe uses
// a fixed Level 1 fragment rather than consulting the store, since a
// smoke test must be reproducible independent of what a particular
// deployment has accumulated for a model.
var levelOneProsthetic = prosthetic.Fragment{
	Level: prosthetic.InjectionGentle,
	Text:  "Before giving your final answer, re-check any array or slice index arithmetic for off-by-one errors.",
}

// trainabilityResult is the trainability strategic probe's outcome: how
// much a fixed corrective fragment moved the model from a wrong baseline
// answer toward a right one on the same task.
type trainabilityResult struct {
	Score      float64
	Diagnostic string
}

// runTrainabilityProbe dispatches the same bounds-checking task twice:
// once bare, once with levelOneProsthetic folded into the system prompt.
// A model that gets it wrong unprompted but right once nudged scores
// highest — that is exactly what "trainability" means for a smoke test.
func runTrainabilityProbe(ctx context.Context, caller *providers.Client, provider, modelID string, timeout time.Duration) trainabilityResult {
	task := "Here is a Go function:\n\n" +
		"func Last(xs []int) int {\n    return xs[len(xs)]\n}\n\n" +
		"Does this compile and run correctly for a non-empty slice? Answer yes or no, and if no, say what is wrong."

	baseReq := &agent.CompletionRequest{
		Model:    modelID,
		Messages: []agent.CompletionMessage{{Role: "user", Content: task}},
	}
	baseResp, err := caller.CallRequest(ctx, provider, baseReq, timeout)
	if err != nil {
		return trainabilityResult{Score: 0, Diagnostic: "baseline call failed: " + err.Error()}
	}
	basePass := judgesBoundsBug(baseResp.Content())

	guidedReq := &agent.CompletionRequest{
		Model:    modelID,
		System:   strings.TrimSpace(prosthetic.Inject("", levelOneProsthetic, true)),
		Messages: []agent.CompletionMessage{{Role: "user", Content: task}},
	}
	guidedResp, err := caller.CallRequest(ctx, provider, guidedReq, timeout)
	if err != nil {
		return trainabilityResult{Score: 0, Diagnostic: "guided call failed: " + err.Error()}
	}
	guidedPass := judgesBoundsBug(guidedResp.Content())

	switch {
	case !basePass && guidedPass:
		return trainabilityResult{Score: 100, Diagnostic: "corrected after Level 1 prosthetic"}
	case basePass && guidedPass:
		return trainabilityResult{Score: 70, Diagnostic: "correct both unprompted and guided"}
	case !basePass && !guidedPass:
		return trainabilityResult{Score: 0, Diagnostic: "did not correct even after Level 1 prosthetic"}
	default: // basePass && !guidedPass
		return trainabilityResult{Score: 20, Diagnostic: "regressed after guidance"}
	}
}

func judgesBoundsBug(content string) bool {
	lower := strings.ToLower(content)
	saysNo := strings.Contains(lower, "no") && !strings.Contains(lower, "no issue") && !strings.Contains(lower, "no problem")
	namesBug := containsAny(lower, "out of range", "off-by-one", "off by one", "index out of bounds", "len(xs)-1", "len(xs) - 1")
	return saysNo && namesBug
}
