package capability

import (
	"math"
	"testing"
	"time"
)

func fullAxes() Axes {
	return Axes{
		ToolAccuracy:      90,
		IntentRecognition: 85,
		RAGUsage:          80,
		Reasoning:         85,
		BugDetection:      70,
		CodeUnderstanding: 75,
		SelfCorrection:    60,
	}
}

func TestOverallClampedAndRounded(t *testing.T) {
	a := fullAxes()
	got := Overall(a)
	if got < 0 || got > 100 {
		t.Fatalf("overall out of range: %v", got)
	}
	if got != math.Round(got) {
		t.Fatalf("overall not rounded: %v", got)
	}
}

func TestOverallAntiPatternPenalty(t *testing.T) {
	a := fullAxes()
	base := Overall(a)
	a.AntiPatternPenalty = 50
	penalized := Overall(a)
	if penalized >= base {
		t.Fatalf("expected penalty to reduce score: base=%v penalized=%v", base, penalized)
	}
}

func TestOverallMissingAxisDropsOut(t *testing.T) {
	a := fullAxes()
	a.SelfCorrection = math.NaN()
	got := Overall(a)
	if math.IsNaN(got) {
		t.Fatalf("overall should not be NaN when one axis is missing")
	}
}

func TestRecommendRole(t *testing.T) {
	tests := []struct {
		name string
		axes Axes
		want Role
	}{
		{"main", Axes{Reasoning: 85, IntentRecognition: 70, RAGUsage: 65, ToolAccuracy: 10}, RoleMain},
		{"executor", Axes{ToolAccuracy: 85, Reasoning: 10, IntentRecognition: 10, RAGUsage: 10}, RoleExecutor},
		{"both", Axes{Reasoning: 85, IntentRecognition: 70, RAGUsage: 65, ToolAccuracy: 85}, RoleBoth},
		{"none-low-overall", Axes{}, RoleNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RecommendRole(tt.axes); got != tt.want {
				t.Errorf("RecommendRole() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeNoopAboveThreshold(t *testing.T) {
	a := fullAxes()
	got := Normalize(a, 96)
	if got != a {
		t.Fatalf("expected no-op normalization above threshold, got %+v", got)
	}
}

func TestNormalizeRescales(t *testing.T) {
	a := Axes{ToolAccuracy: 45}
	got := Normalize(a, 90)
	want := 50.0 // 45 / (90/100)
	if got.ToolAccuracy != want {
		t.Fatalf("ToolAccuracy = %v, want %v", got.ToolAccuracy, want)
	}
}

func TestSpeedRatingBoundaries(t *testing.T) {
	tests := []struct {
		ms   int
		want SpeedRating
	}{
		{100, SpeedExcellent},
		{1000, SpeedGood},
		{3000, SpeedAcceptable},
		{7000, SpeedSlow},
		{20000, SpeedVerySlow},
	}
	for _, tt := range tests {
		got := SpeedRatingFor(time.Duration(tt.ms) * time.Millisecond)
		if got != tt.want {
			t.Errorf("SpeedRatingFor(%dms) = %v, want %v", tt.ms, got, tt.want)
		}
	}
}

func TestProfileFinalizeIsPureFunctionOfRaw(t *testing.T) {
	p := Profile{ModelID: "m1", Raw: fullAxes()}
	p.Finalize()
	p2 := Profile{ModelID: "m1", Raw: fullAxes()}
	p2.Finalize()
	if p.Overall != p2.Overall || p.Role != p2.Role {
		t.Fatalf("Finalize is not deterministic over identical raw scores")
	}
}
