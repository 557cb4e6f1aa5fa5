// Package probe's Harness runs the full battery against one model and
// aggregates it into a capability.Axes, mirroring the spec's separation
// between a scripted smoke test (this package) and the weighted Scorer
// that turns its output into a routing decision (internal/capability).
package probe

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/ctxloom/ctxloom/internal/agent"
	"github.com/ctxloom/ctxloom/internal/agent/providers"
	"github.com/ctxloom/ctxloom/internal/capability"
)

// sweepSizes are the fixed context sizes the strategic latency sweep
// walks, in order, bounded above by the model's own max context.
var sweepSizes = []int{2048, 4096, 8192, 16384, 32768, 65536}

// latencyThreshold halts the sweep once a single-turn probe crosses it.
const latencyThreshold = 8 * time.Second

// Options configures a Harness run.
type Options struct {
	// Timeout bounds each individual probe dispatch. Zero means the
	// caller's context governs cancellation alone.
	Timeout time.Duration

	// IncludeLatencySweep runs the context-latency sweep in addition to
	// the fixed catalog. It issues one call per context size and can run
	// long against a slow backend, so callers doing a quick health check
	// may skip it.
	IncludeLatencySweep bool

	// MaxContext bounds the latency sweep; sizes beyond it are skipped.
	// Zero means use the largest fixed sweep size.
	MaxContext int
}

// Harness runs the probe catalog against one model at a time through a
// shared Client. Probe runs against one model are serialized: probes
// share fixtures and a model's response to one probe can leak context
// into the next call on some backends, so concurrent dispatch against
// the same model would confound results.
type Harness struct {
	Client   *providers.Client
	Fixtures Fixtures
}

// NewHarness builds a Harness over a Client, using the package's default
// fixed tool fixtures.
func NewHarness(client *providers.Client) *Harness {
	return &Harness{Client: client, Fixtures: DefaultFixtures()}
}

// ProfileResult is one completed run's raw output: every probe result,
// the derived axes, and the latency curve when the sweep was requested.
type ProfileResult struct {
	ModelID      string
	Provider     string
	Results      []Result
	Axes         capability.Axes
	ToolScores   capability.ToolSubScores
	LatencyCurve *capability.ContextLatencyCurve
}

// RunProfile executes the full catalog plus the trainability probe (and,
// if requested, the context-latency sweep) against one model, serially,
// and folds the results into a capability.Axes.
func (h *Harness) RunProfile(ctx context.Context, provider, modelID string, opts Options) (ProfileResult, error) {
	catalog := Catalog()
	results := make([]Result, 0, len(catalog)+1)
	for _, p := range catalog {
		results = append(results, p.run(ctx, h.Client, provider, modelID, h.Fixtures, opts.Timeout))
	}

	trainability := runTrainabilityProbe(ctx, h.Client, provider, modelID, opts.Timeout)

	axes := aggregateAxes(results, trainability.Score)

	pr := ProfileResult{
		ModelID:    modelID,
		Provider:   provider,
		Results:    results,
		Axes:       axes,
		ToolScores: toolSubScores(results),
	}

	if opts.IncludeLatencySweep {
		curve := h.runLatencySweep(ctx, provider, modelID, opts)
		pr.LatencyCurve = &curve
	}

	return pr, nil
}

// aggregateAxes groups catalog results by axis and averages each group's
// score; an axis with no constituent probes is left NaN so Overall drops
// it from the weighted mean instead of treating it as zero.
func aggregateAxes(results []Result, trainabilityScore float64) capability.Axes {
	sums := map[string]float64{}
	counts := map[string]int{}
	var penaltySum float64
	var penaltyCount int
	for _, r := range results {
		if r.Axis != "" {
			sums[r.Axis] += r.Score
			counts[r.Axis]++
		}
		penaltySum += r.HeuristicPenalty
		penaltyCount++
	}

	axisMean := func(name string) float64 {
		if counts[name] == 0 {
			return math.NaN()
		}
		return sums[name] / float64(counts[name])
	}

	antiPatternPenalty := 0.0
	if penaltyCount > 0 {
		antiPatternPenalty = penaltySum / float64(penaltyCount)
	}

	return capability.Axes{
		ToolAccuracy:       axisMean("tool_accuracy"),
		IntentRecognition:  axisMean("intent_recognition"),
		RAGUsage:           axisMean("rag_usage"),
		Reasoning:          axisMean("reasoning"),
		BugDetection:       axisMean("bug_detection"),
		CodeUnderstanding:  axisMean("code_understanding"),
		SelfCorrection:     axisMean("self_correction"),
		Trainability:       trainabilityScore,
		AntiPatternPenalty: antiPatternPenalty,
	}
}

// toolSubScores picks out the four named tool-catalog probe scores
// capability.ToolSubScores retains for the auto-selection operation,
// alongside aggregateAxes' averaged tool_accuracy axis.
func toolSubScores(results []Result) capability.ToolSubScores {
	var s capability.ToolSubScores
	for _, r := range results {
		switch r.TestName {
		case "tool_emit":
			s.Emit = r.Score
		case "tool_schema_adherence":
			s.SchemaAdherence = r.Score
		case "tool_selection":
			s.Selection = r.Score
		case "tool_suppression":
			s.Suppression = r.Score
		}
	}
	return s
}

// runLatencySweep walks sweepSizes (bounded by opts.MaxContext, if set),
// issuing one padded one-turn probe per size, until a probe's latency
// crosses latencyThreshold or the bound is reached.
func (h *Harness) runLatencySweep(ctx context.Context, provider, modelID string, opts Options) capability.ContextLatencyCurve {
	maxContext := opts.MaxContext
	var points []capability.ContextLatencyPoint
	var minLatency time.Duration
	recommended := 0
	maxUsable := 0

	for _, size := range sweepSizes {
		if maxContext > 0 && size > maxContext {
			break
		}
		req := &agent.CompletionRequest{
			Model: modelID,
			Messages: []agent.CompletionMessage{{
				Role:    "user",
				Content: padToApproxTokens(size) + "\n\nReply with exactly one word: OK.",
			}},
		}
		start := time.Now()
		resp, err := h.Client.CallRequest(ctx, provider, req, opts.Timeout)
		elapsed := time.Since(start)
		if err != nil {
			break
		}
		points = append(points, capability.ContextLatencyPoint{ContextSize: size, LatencyMS: elapsed.Milliseconds()})
		if minLatency == 0 || elapsed < minLatency {
			minLatency = elapsed
		}
		maxUsable = size
		if strings.Contains(strings.ToUpper(resp.Content()), "OK") {
			recommended = size
		}
		if elapsed >= latencyThreshold {
			break
		}
	}

	if recommended == 0 {
		recommended = maxUsable
	}

	return capability.ContextLatencyCurve{
		Points:             points,
		MaxUsableContext:   maxUsable,
		RecommendedContext: recommended,
		MinLatencyMS:       minLatency.Milliseconds(),
		SpeedRating:        capability.SpeedRatingFor(minLatency),
	}
}

// padToApproxTokens builds filler content roughly targetTokens tokens
// long, at the catalog's fixed 4-chars-per-token estimate, so the sweep
// exercises context sizes rather than just asking a short question.
func padToApproxTokens(targetTokens int) string {
	const wordsPerFourTokens = 3 // "word " averages ~4 chars ~= 1 token; leave headroom
	words := targetTokens * wordsPerFourTokens / 4
	if words < 1 {
		words = 1
	}
	var b strings.Builder
	b.WriteString("Context filler for a latency sweep, ignore the following padding:\n")
	for i := 0; i < words; i++ {
		b.WriteString("lorem ")
	}
	return b.String()
}
