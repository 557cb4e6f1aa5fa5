// Package capability aggregates probe results into a weighted capability
// profile (the Scorer) and persists per-model profiles for routing and
// pairing decisions (the Capability Registry). The two are kept in one
// package because they are two operations over the same document.
package capability

import (
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"time"

	"github.com/ctxloom/ctxloom/internal/jsonstore"
)

// Role is a model's recommended routing role.
type Role string

const (
	RoleMain     Role = "main"
	RoleExecutor Role = "executor"
	RoleBoth     Role = "both"
	RoleNone     Role = "none"
)

// SpeedRating buckets a model's context-latency sweep result.
type SpeedRating string

const (
	SpeedExcellent SpeedRating = "excellent"
	SpeedGood      SpeedRating = "good"
	SpeedAcceptable SpeedRating = "acceptable"
	SpeedSlow      SpeedRating = "slow"
	SpeedVerySlow  SpeedRating = "very_slow"
)

// ToolSubScores retains the individual named tool-probe scores that feed
// the averaged ToolAccuracy axis. §4.6's Auto-selection operation ranks
// main candidates by suppression+selection and executor candidates by
// emit+schema, which aggregateAxes' per-axis mean does not preserve on
// its own.
type ToolSubScores struct {
	Emit            float64 `json:"emit"`
	SchemaAdherence float64 `json:"schema_adherence"`
	Selection       float64 `json:"selection"`
	Suppression     float64 `json:"suppression"`
}

// Axes are the constituent capability scores a profile is built from.
type Axes struct {
	ToolAccuracy      float64 `json:"tool_accuracy"`
	IntentRecognition float64 `json:"intent_recognition"`
	RAGUsage          float64 `json:"rag_usage"`
	Reasoning         float64 `json:"reasoning"`
	BugDetection      float64 `json:"bug_detection"`
	CodeUnderstanding float64 `json:"code_understanding"`
	SelfCorrection    float64 `json:"self_correction"`
	Trainability      float64 `json:"trainability"`
	AntiPatternPenalty float64 `json:"anti_pattern_penalty"`
}

// axisWeight pairs an axis accessor with its contribution to the overall
// agentic score. Order matches spec §4.3.
type axisWeight struct {
	name   string
	weight float64
	value  func(Axes) float64
	count  func(Axes) bool
}

var overallWeights = []axisWeight{
	{"toolAccuracy", 0.20, func(a Axes) float64 { return a.ToolAccuracy }, func(a Axes) bool { return true }},
	{"intentRecognition", 0.18, func(a Axes) float64 { return a.IntentRecognition }, func(a Axes) bool { return true }},
	{"ragUsage", 0.14, func(a Axes) float64 { return a.RAGUsage }, func(a Axes) bool { return true }},
	{"reasoning", 0.14, func(a Axes) float64 { return a.Reasoning }, func(a Axes) bool { return true }},
	{"bugDetection", 0.10, func(a Axes) float64 { return a.BugDetection }, func(a Axes) bool { return true }},
	{"codeUnderstanding", 0.10, func(a Axes) float64 { return a.CodeUnderstanding }, func(a Axes) bool { return true }},
	{"selfCorrection", 0.06, func(a Axes) float64 { return a.SelfCorrection }, func(a Axes) bool { return true }},
}

// Overall computes the weighted agentic score: the spec-weighted mean of
// the axes, minus the anti-pattern penalty, clamped to [0,100] and rounded.
// Axes with no constituent probes (NaN) drop out of the mean rather than
// contributing zero.
func Overall(a Axes) float64 {
	var weightedSum, weightTotal float64
	for _, aw := range overallWeights {
		v := aw.value(a)
		if math.IsNaN(v) {
			continue
		}
		weightedSum += aw.weight * v
		weightTotal += aw.weight
	}
	var score float64
	if weightTotal > 0 {
		score = weightedSum / weightTotal
	}
	score -= 0.08 * a.AntiPatternPenalty
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return math.Round(score)
}

// RecommendRole applies the spec's fixed thresholds to raw axis scores.
func RecommendRole(a Axes) Role {
	main := a.Reasoning >= 80 && a.IntentRecognition >= 60 && a.RAGUsage >= 60
	executor := a.ToolAccuracy >= 80
	switch {
	case main && executor:
		return RoleBoth
	case main:
		return RoleMain
	case executor:
		return RoleExecutor
	case Overall(a) < 60:
		return RoleNone
	default:
		return RoleNone
	}
}

// Normalize rescales axes against a baseline model's overall score, per the
// spec's baseline-normalization rule: if baselineOverall < 95, divide each
// axis by baselineOverall/100 and re-clamp.
func Normalize(a Axes, baselineOverall float64) Axes {
	if baselineOverall >= 95 || baselineOverall <= 0 {
		return a
	}
	factor := baselineOverall / 100
	scale := func(v float64) float64 {
		if math.IsNaN(v) {
			return v
		}
		v = v / factor
		if v > 100 {
			v = 100
		}
		if v < 0 {
			v = 0
		}
		return v
	}
	return Axes{
		ToolAccuracy:       scale(a.ToolAccuracy),
		IntentRecognition:  scale(a.IntentRecognition),
		RAGUsage:           scale(a.RAGUsage),
		Reasoning:          scale(a.Reasoning),
		BugDetection:       scale(a.BugDetection),
		CodeUnderstanding:  scale(a.CodeUnderstanding),
		SelfCorrection:     scale(a.SelfCorrection),
		Trainability:       scale(a.Trainability),
		AntiPatternPenalty: a.AntiPatternPenalty,
	}
}

// SpeedRatingFor buckets a minimum observed latency into the spec's fixed
// boundaries.
func SpeedRatingFor(minLatency time.Duration) SpeedRating {
	switch {
	case minLatency < 500*time.Millisecond:
		return SpeedExcellent
	case minLatency < 2*time.Second:
		return SpeedGood
	case minLatency < 5*time.Second:
		return SpeedAcceptable
	case minLatency < 10*time.Second:
		return SpeedSlow
	default:
		return SpeedVerySlow
	}
}

// ContextLatencyPoint is one (contextSize, latency) sample from a sweep.
type ContextLatencyPoint struct {
	ContextSize int           `json:"context_size"`
	LatencyMS   int64         `json:"latency_ms"`
}

// ContextLatencyCurve is the derived result of a strategic latency sweep.
type ContextLatencyCurve struct {
	Points             []ContextLatencyPoint `json:"points"`
	MaxUsableContext   int                    `json:"max_usable_context"`
	RecommendedContext int                    `json:"recommended_context"`
	MinLatencyMS       int64                  `json:"min_latency_ms"`
	SpeedRating        SpeedRating            `json:"speed_rating"`
}

// Settings are a profile's recommended inference parameters.
type Settings struct {
	Temperature float64 `json:"temperature"`
	ContextSize int     `json:"context_size"`
}

// Profile is the per-model document owned by the Capability Registry.
// It is mutated only by probe completion and never partially updated:
// callers must replace the whole record via Registry.Save.
type Profile struct {
	ModelID         string              `json:"model_id"`
	Provider        string              `json:"provider"`
	TestVersion     int                 `json:"test_version"`
	TestedAt        time.Time           `json:"tested_at"`
	Raw             Axes                `json:"raw_scores"`
	ToolScores      ToolSubScores       `json:"tool_scores"`
	Overall         float64             `json:"overall"`
	Role            Role                `json:"role"`
	OptimalPairings []string            `json:"optimal_pairings,omitempty"`
	Settings        Settings            `json:"settings"`
	EnabledTools    []string            `json:"enabled_tools,omitempty"`
	LatencyCurve    *ContextLatencyCurve `json:"latency_curve,omitempty"`
}

// Finalize derives Overall and Role from Raw. Call it once a profile's raw
// scores are complete; it is the one place the "pure function of raw
// scores" invariant is enforced.
func (p *Profile) Finalize() {
	p.Overall = Overall(p.Raw)
	p.Role = RecommendRole(p.Raw)
}

type registryDoc struct {
	Version  int                `json:"version"`
	Profiles map[string]Profile `json:"profiles"`
}

// Registry is the persistent, process-wide store of per-model profiles.
// Reads share a read lock over the in-memory document; writes take an
// exclusive lock and persist atomically, matching the read-mostly /
// single-writer shared-resource model.
type Registry struct {
	mu   sync.RWMutex
	path string
	doc  registryDoc
}

// NewRegistry loads (or initializes) the registry document at
// <dataRoot>/profiles.json.
func NewRegistry(dataRoot string) (*Registry, error) {
	r := &Registry{path: filepath.Join(dataRoot, "profiles.json")}
	found, err := jsonstore.Read(r.path, &r.doc)
	if err != nil {
		return nil, fmt.Errorf("loading capability registry: %w", err)
	}
	if !found || r.doc.Profiles == nil {
		r.doc = registryDoc{Version: 1, Profiles: map[string]Profile{}}
	}
	return r, nil
}

// Get returns the stored profile for modelID, if any.
func (r *Registry) Get(modelID string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.doc.Profiles[modelID]
	return p, ok
}

// All returns a snapshot copy of every stored profile.
func (r *Registry) All() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Profile, 0, len(r.doc.Profiles))
	for _, p := range r.doc.Profiles {
		out = append(out, p)
	}
	return out
}

// Save writes a complete profile, replacing any prior record for the same
// model. Profiles are mutated only as a whole, never field-by-field.
func (r *Registry) Save(p Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc.Profiles == nil {
		r.doc.Profiles = map[string]Profile{}
	}
	r.doc.Profiles[p.ModelID] = p
	return jsonstore.Write(r.path, &r.doc)
}

// ByRole returns every profile whose recommended role matches any of roles.
func (r *Registry) ByRole(roles ...Role) []Profile {
	want := make(map[Role]bool, len(roles))
	for _, role := range roles {
		want[role] = true
	}
	var out []Profile
	for _, p := range r.All() {
		if want[p.Role] {
			out = append(out, p)
		}
	}
	return out
}
