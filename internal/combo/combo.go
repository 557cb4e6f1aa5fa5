// Package combo evaluates main×executor model pairings (C8): it runs
// scored combo tests across a candidate set, excludes a main model whose
// planning step repeatedly fails, and recommends the best pairing under
// VRAM and compatibility constraints.
package combo

import (
	"sort"
	"sync"
	"time"

	"github.com/ctxloom/ctxloom/internal/capability"
)

// Tier buckets a combo test's difficulty.
type Tier string

const (
	TierSimple  Tier = "simple"
	TierMedium  Tier = "medium"
	TierComplex Tier = "complex"
)

// Outcome is one constituent test result within a combo run.
type Outcome struct {
	TestName string  `json:"test_name"`
	Tier     Tier    `json:"tier"`
	Category string  `json:"category"`
	Pass     bool    `json:"pass"`
	Score    float64 `json:"score"`
	LatencyMS int64  `json:"latency_ms"`
}

// Record is the persisted per-pair evaluation result. Unique per pair;
// re-runs replace the existing record.
type Record struct {
	MainModelID     string             `json:"main_model_id"`
	ExecutorModelID string             `json:"executor_model_id"`
	OverallScore    float64            `json:"overall_score"`
	TierScores      map[Tier]float64   `json:"tier_scores"`
	CategoryScores  map[string]float64 `json:"category_scores"`
	Outcomes        []Outcome          `json:"outcomes"`
	AverageLatencyMS int64             `json:"average_latency_ms"`
	PassCount       int                `json:"pass_count"`
	FailCount       int                `json:"fail_count"`
	Excluded        bool               `json:"excluded"`
	Timestamp       time.Time          `json:"timestamp"`
}

// Key uniquely identifies a combo record.
func (r Record) Key() string { return r.MainModelID + "::" + r.ExecutorModelID }

// BuildRecord aggregates outcomes into a Record. VRAM/latency constraints
// are evaluated separately by the caller before persisting.
func BuildRecord(mainID, executorID string, outcomes []Outcome, excluded bool) Record {
	tierScores := map[Tier]float64{}
	tierCounts := map[Tier]int{}
	categoryScores := map[string]float64{}
	categoryCounts := map[string]int{}
	var totalScore float64
	var totalLatency int64
	pass, fail := 0, 0

	for _, o := range outcomes {
		tierScores[o.Tier] += o.Score
		tierCounts[o.Tier]++
		categoryScores[o.Category] += o.Score
		categoryCounts[o.Category]++
		totalScore += o.Score
		totalLatency += o.LatencyMS
		if o.Pass {
			pass++
		} else {
			fail++
		}
	}
	for tier, sum := range tierScores {
		tierScores[tier] = sum / float64(tierCounts[tier])
	}
	for cat, sum := range categoryScores {
		categoryScores[cat] = sum / float64(categoryCounts[cat])
	}

	var overall, avgLatency float64
	if len(outcomes) > 0 {
		overall = totalScore / float64(len(outcomes))
		avgLatency = float64(totalLatency) / float64(len(outcomes))
	}

	return Record{
		MainModelID:      mainID,
		ExecutorModelID:  executorID,
		OverallScore:      overall,
		TierScores:       tierScores,
		CategoryScores:   categoryScores,
		Outcomes:         outcomes,
		AverageLatencyMS: int64(avgLatency),
		PassCount:        pass,
		FailCount:        fail,
		Excluded:         excluded,
		Timestamp:        time.Now(),
	}
}

// ExclusionTracker marks a main model excluded once its planning step
// fails repeatedly (suppression/schema probes), so subsequent pairs with
// it are skipped during a run. Guarded for concurrent combo workers.
type ExclusionTracker struct {
	mu        sync.Mutex
	threshold int
	failures  map[string]int
	excluded  map[string]bool
}

// NewExclusionTracker builds a tracker that excludes a main model after
// threshold consecutive planning failures.
func NewExclusionTracker(threshold int) *ExclusionTracker {
	if threshold <= 0 {
		threshold = 3
	}
	return &ExclusionTracker{threshold: threshold, failures: map[string]int{}, excluded: map[string]bool{}}
}

// RecordPlanningFailure increments the consecutive-failure counter for
// mainID and excludes it once the threshold is reached.
func (t *ExclusionTracker) RecordPlanningFailure(mainID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[mainID]++
	if t.failures[mainID] >= t.threshold {
		t.excluded[mainID] = true
	}
}

// RecordPlanningSuccess resets the consecutive-failure counter for mainID.
func (t *ExclusionTracker) RecordPlanningSuccess(mainID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[mainID] = 0
}

// IsExcluded reports whether mainID has been excluded for this run.
func (t *ExclusionTracker) IsExcluded(mainID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.excluded[mainID]
}

// Candidate is one model under consideration for pairing, carrying the
// capability axes the pairing formulas consume plus a model-family tag
// used for the "different families" compatibility bonus.
type Candidate struct {
	ModelID  string
	Family   string
	VRAMMB   int
	Axes     capability.Axes
	Speed    capability.SpeedRating
}

// MainSuitability implements the spec's main-suitability formula.
func MainSuitability(a capability.Axes) float64 {
	return 0.30*a.Reasoning + 0.25*a.RAGUsage + 0.20*a.IntentRecognition + 0.15*a.Trainability + 0.10*a.SelfCorrection
}

func speedBonus(s capability.SpeedRating) float64 {
	switch s {
	case capability.SpeedExcellent:
		return 100
	case capability.SpeedGood:
		return 80
	case capability.SpeedAcceptable:
		return 60
	case capability.SpeedSlow:
		return 30
	default:
		return 10
	}
}

// ExecutorSuitability implements the spec's executor-suitability formula.
func ExecutorSuitability(a capability.Axes, speed capability.SpeedRating) float64 {
	return 0.50*a.ToolAccuracy + 0.20*(100-a.AntiPatternPenalty) + 0.15*a.IntentRecognition + 0.15*speedBonus(speed)
}

// Recommendation is the best-pairing output: overall score plus reasons
// and warnings as bullet lists.
type Recommendation struct {
	MainModelID     string   `json:"main_model_id"`
	ExecutorModelID string   `json:"executor_model_id"`
	Overall         float64  `json:"overall_score"`
	MainScore       float64  `json:"main_score"`
	ExecutorScore   float64  `json:"executor_score"`
	CompatScore     float64  `json:"compatibility_score"`
	Reasons         []string `json:"reasons"`
	Warnings        []string `json:"warnings"`
}

// compatibility computes the spec's pairwise bonus/penalty adjustments.
func compatibility(main, executor Candidate) (float64, []string, []string) {
	var score float64
	var reasons, warnings []string

	if main.Axes.Reasoning >= 70 && executor.Axes.ToolAccuracy >= 80 {
		score += 30
		reasons = append(reasons, "strong reasoning/tool-accuracy complement")
	}
	if main.Axes.Trainability >= 80 {
		score += 20
		reasons = append(reasons, "main model highly trainable")
	}
	switch executor.Speed {
	case capability.SpeedGood, capability.SpeedExcellent:
		score += 15
		reasons = append(reasons, "executor responds quickly")
	case capability.SpeedSlow, capability.SpeedVerySlow:
		score -= 10
		warnings = append(warnings, "executor is slow")
	}
	if main.Family != "" && executor.Family != "" && main.Family != executor.Family {
		score += 10
		reasons = append(reasons, "main and executor are from different model families")
	}
	if executor.Axes.AntiPatternPenalty > 20 {
		score -= executor.Axes.AntiPatternPenalty / 2
		warnings = append(warnings, "executor shows elevated anti-pattern penalty")
	}
	return score, reasons, warnings
}

// Recommend picks the best (main, executor) pair from mains × executors
// under an optional VRAM limit (0 means unconstrained).
func Recommend(mains, executors []Candidate, vramLimitMB int) (Recommendation, bool) {
	var best Recommendation
	found := false

	for _, m := range mains {
		mainScore := MainSuitability(m.Axes)
		for _, e := range executors {
			if m.ModelID == e.ModelID {
				continue
			}
			if vramLimitMB > 0 && m.VRAMMB+e.VRAMMB > vramLimitMB {
				continue
			}
			execScore := ExecutorSuitability(e.Axes, e.Speed)
			compat, reasons, warnings := compatibility(m, e)
			overall := (mainScore + execScore + compat) / 3

			if !found || overall > best.Overall {
				best = Recommendation{
					MainModelID:     m.ModelID,
					ExecutorModelID: e.ModelID,
					Overall:         overall,
					MainScore:       mainScore,
					ExecutorScore:   execScore,
					CompatScore:     compat,
					Reasons:         reasons,
					Warnings:        warnings,
				}
				found = true
			}
		}
	}
	return best, found
}

// SortByOverall sorts records by overall score descending, the shape
// used when listing stored combo results.
func SortByOverall(records []Record) {
	sort.Slice(records, func(i, j int) bool { return records[i].OverallScore > records[j].OverallScore })
}
