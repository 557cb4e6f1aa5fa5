// Package probe implements the capability-probing battery (C2): a fixed
// catalog of scripted interactions run against one model at a time,
// each evaluated against a known expected outcome to produce a
// pass/score/latency result. Following the teacher's "probe is a value"
// translation of its class-per-probe-family source pattern, a Probe is a
// plain descriptor — name, family, axis, a request builder and a
// response evaluator — run over the common provider client (C1). The
// catalog itself is a flat slice, never a type hierarchy.
package probe

import (
	"context"
	"time"

	"github.com/ctxloom/ctxloom/internal/agent"
	"github.com/ctxloom/ctxloom/internal/agent/providers"
)

// Family buckets a probe into one of the spec's three families.
type Family string

const (
	FamilyTool      Family = "tool"
	FamilyReasoning Family = "reasoning"
	FamilyStrategic Family = "strategic"
)

// ToolFormat classifies which calling convention produced a successful
// tool invocation, when a probe cares to distinguish.
type ToolFormat string

const (
	ToolFormatOpenAI ToolFormat = "openai"
	ToolFormatXML    ToolFormat = "xml"
	ToolFormatNone   ToolFormat = "none"
)

// Result is a single probe's outcome. Immutable after creation.
type Result struct {
	TestName   string
	Family     Family
	Axis       string
	Pass       bool
	Score      float64
	LatencyMS  int64
	Diagnostic string
	Error      string
	ToolFormat ToolFormat

	// HeuristicPenalty is the amount already subtracted from Score by a
	// bad-output heuristic (repetition, control-token leakage, malformed
	// tool args). The harness aggregates it across a run into the
	// anti-pattern-penalty axis; it is not itself part of Score's meaning
	// beyond what has already been subtracted.
	HeuristicPenalty float64
}

// Probe is one scripted interaction: a request builder plus an
// evaluator, grouped under a family and the capability axis it feeds.
// Axis is "" for strategic probes, which do not contribute to the
// weighted axis mean. Fallback, when set, is retried once if the
// primary attempt fails — the emit probe's "try OpenAI-style tool
// calling, then fall back to an XML-style instruction" rule is the one
// catalog entry that needs it; every other probe leaves it nil.
type Probe struct {
	Name     string
	Family   Family
	Axis     string
	Build    func(f Fixtures) *agent.CompletionRequest
	Evaluate func(resp providers.Response, elapsed time.Duration) Result
	Fallback func(f Fixtures) *agent.CompletionRequest
}

// run builds, dispatches, and evaluates a single probe against modelID,
// retrying once via Fallback if the primary attempt does not pass.
func (p Probe) run(ctx context.Context, caller *providers.Client, provider, modelID string, f Fixtures, timeout time.Duration) Result {
	result, resp, ok := p.attempt(ctx, caller, provider, modelID, p.Build, f, timeout)
	if ok && result.Pass {
		return applyHeuristicPenalty(result, resp)
	}
	if p.Fallback == nil {
		if !ok {
			return result
		}
		return applyHeuristicPenalty(result, resp)
	}

	fallbackResult, fallbackResp, fallbackOK := p.attempt(ctx, caller, provider, modelID, p.Fallback, f, timeout)
	if !fallbackOK {
		if ok {
			return applyHeuristicPenalty(result, resp)
		}
		return fallbackResult
	}
	fallbackResult.ToolFormat = ToolFormatXML
	if fallbackResult.Pass {
		return applyHeuristicPenalty(fallbackResult, fallbackResp)
	}
	// Neither attempt passed: keep whichever scored higher.
	if ok && result.Score >= fallbackResult.Score {
		return applyHeuristicPenalty(result, resp)
	}
	return applyHeuristicPenalty(fallbackResult, fallbackResp)
}

func (p Probe) attempt(ctx context.Context, caller *providers.Client, provider, modelID string, build func(Fixtures) *agent.CompletionRequest, f Fixtures, timeout time.Duration) (Result, providers.Response, bool) {
	req := build(f)
	req.Model = modelID

	start := time.Now()
	resp, err := caller.CallRequest(ctx, provider, req, timeout)
	elapsed := time.Since(start)
	if err != nil {
		return Result{
			TestName:  p.Name,
			Family:    p.Family,
			Axis:      p.Axis,
			Pass:      false,
			Score:     0,
			LatencyMS: elapsed.Milliseconds(),
			Error:     err.Error(),
		}, providers.Response{}, false
	}

	result := p.Evaluate(resp, elapsed)
	result.TestName = p.Name
	result.Family = p.Family
	result.Axis = p.Axis
	result.LatencyMS = elapsed.Milliseconds()
	return result, resp, true
}
