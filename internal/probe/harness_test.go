package probe

import (
	"math"
	"testing"
)

func TestAggregateAxesDropsEmptyAxisAsNaN(t *testing.T) {
	results := []Result{
		{Axis: "tool_accuracy", Score: 80},
		{Axis: "tool_accuracy", Score: 100},
		{Axis: "reasoning", Score: 50},
	}
	axes := aggregateAxes(results, 90)

	if axes.ToolAccuracy != 90 {
		t.Fatalf("tool accuracy mean = %v, want 90", axes.ToolAccuracy)
	}
	if axes.Reasoning != 50 {
		t.Fatalf("reasoning mean = %v, want 50", axes.Reasoning)
	}
	if !math.IsNaN(axes.RAGUsage) {
		t.Fatalf("rag usage should be NaN with no constituent probes, got %v", axes.RAGUsage)
	}
	if axes.Trainability != 90 {
		t.Fatalf("trainability = %v, want 90 (passed through)", axes.Trainability)
	}
}

func TestAggregateAxesAveragesHeuristicPenaltyIntoAntiPattern(t *testing.T) {
	results := []Result{
		{Axis: "tool_accuracy", Score: 75, HeuristicPenalty: 25},
		{Axis: "reasoning", Score: 100, HeuristicPenalty: 0},
	}
	axes := aggregateAxes(results, 0)
	if axes.AntiPatternPenalty != 12.5 {
		t.Fatalf("anti-pattern penalty = %v, want 12.5", axes.AntiPatternPenalty)
	}
}

func TestPadToApproxTokensGrowsWithTarget(t *testing.T) {
	small := padToApproxTokens(2048)
	large := padToApproxTokens(65536)
	if len(large) <= len(small) {
		t.Fatalf("expected larger target to produce more filler: small=%d large=%d", len(small), len(large))
	}
}
