package combo

import (
	"testing"

	"github.com/ctxloom/ctxloom/internal/capability"
)

func TestBuildRecordAggregates(t *testing.T) {
	outcomes := []Outcome{
		{TestName: "t1", Tier: TierSimple, Category: "tool", Pass: true, Score: 90, LatencyMS: 100},
		{TestName: "t2", Tier: TierSimple, Category: "tool", Pass: false, Score: 40, LatencyMS: 200},
		{TestName: "t3", Tier: TierComplex, Category: "reasoning", Pass: true, Score: 80, LatencyMS: 300},
	}
	r := BuildRecord("main-a", "exec-b", outcomes, false)
	if r.PassCount != 2 || r.FailCount != 1 {
		t.Fatalf("pass/fail = %d/%d, want 2/1", r.PassCount, r.FailCount)
	}
	if r.TierScores[TierSimple] != 65 {
		t.Fatalf("TierScores[simple] = %v, want 65", r.TierScores[TierSimple])
	}
	if r.AverageLatencyMS != 200 {
		t.Fatalf("AverageLatencyMS = %v, want 200", r.AverageLatencyMS)
	}
}

func TestExclusionTracker(t *testing.T) {
	tr := NewExclusionTracker(3)
	tr.RecordPlanningFailure("m")
	tr.RecordPlanningFailure("m")
	if tr.IsExcluded("m") {
		t.Fatalf("expected not excluded before threshold")
	}
	tr.RecordPlanningFailure("m")
	if !tr.IsExcluded("m") {
		t.Fatalf("expected excluded at threshold")
	}
}

func TestExclusionTrackerResetsOnSuccess(t *testing.T) {
	tr := NewExclusionTracker(2)
	tr.RecordPlanningFailure("m")
	tr.RecordPlanningSuccess("m")
	tr.RecordPlanningFailure("m")
	if tr.IsExcluded("m") {
		t.Fatalf("expected failure count to reset after success")
	}
}

func TestRecommendPicksBestUnderVRAM(t *testing.T) {
	mains := []Candidate{
		{ModelID: "main-strong", Family: "A", VRAMMB: 4000, Axes: capability.Axes{Reasoning: 90, RAGUsage: 85, IntentRecognition: 80, Trainability: 90, SelfCorrection: 70}},
		{ModelID: "main-weak", Family: "A", VRAMMB: 1000, Axes: capability.Axes{Reasoning: 30}},
	}
	executors := []Candidate{
		{ModelID: "exec-strong", Family: "B", VRAMMB: 4000, Speed: capability.SpeedGood, Axes: capability.Axes{ToolAccuracy: 90, IntentRecognition: 80}},
	}

	rec, ok := Recommend(mains, executors, 9000)
	if !ok {
		t.Fatalf("expected a recommendation")
	}
	if rec.MainModelID != "main-strong" {
		t.Fatalf("MainModelID = %q, want main-strong", rec.MainModelID)
	}

	_, ok2 := Recommend(mains, executors, 4500)
	if ok2 {
		t.Fatalf("expected no recommendation when combined VRAM exceeds the limit")
	}
}

func TestRecommendExcludesSelfPairing(t *testing.T) {
	cands := []Candidate{
		{ModelID: "solo", Axes: capability.Axes{Reasoning: 90, ToolAccuracy: 90}},
	}
	if _, ok := Recommend(cands, cands, 0); ok {
		t.Fatalf("expected no recommendation when the only candidate would pair with itself")
	}
}

func TestStoreSaveGetRoundTrip(t *testing.T) {
	s, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenStore() error: %v", err)
	}
	r := BuildRecord("m", "e", []Outcome{{Score: 75, Pass: true}}, false)
	if err := s.Save(r); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, ok := s.Get("m", "e")
	if !ok {
		t.Fatalf("expected stored record to be found")
	}
	if got.OverallScore != r.OverallScore {
		t.Fatalf("OverallScore = %v, want %v", got.OverallScore, r.OverallScore)
	}
}

func TestStoreRerunReplaces(t *testing.T) {
	s, err := OpenStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenStore() error: %v", err)
	}
	if err := s.Save(BuildRecord("m", "e", []Outcome{{Score: 50}}, false)); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := s.Save(BuildRecord("m", "e", []Outcome{{Score: 90}}, false)); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	all := s.All()
	if len(all) != 1 {
		t.Fatalf("expected re-run to replace, got %d records", len(all))
	}
	if all[0].OverallScore != 90 {
		t.Fatalf("OverallScore = %v, want 90", all[0].OverallScore)
	}
}
