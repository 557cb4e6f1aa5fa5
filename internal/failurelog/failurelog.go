// Package failurelog is the append-only, per-workspace journal of
// production failures (C4): it classifies errors against a fixed rubric,
// fingerprints queries, clusters entries into named patterns, and
// persists everything atomically so a crash never corrupts the document.
package failurelog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ctxloom/ctxloom/internal/jsonstore"
)

// Category classifies the broad area a failure occurred in.
type Category string

const (
	CategoryTool         Category = "tool"
	CategoryRAG          Category = "rag"
	CategoryReasoning    Category = "reasoning"
	CategoryIntent       Category = "intent"
	CategoryBrowser      Category = "browser"
	CategoryComboPairing Category = "combo_pairing"
	CategoryUnknown      Category = "unknown"
)

// Severity is a failure pattern's urgency rating.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// rubric pairs a lower-cased substring with the errorType it implies.
// Order matters: the first substring match wins, mirroring a fixed rubric
// walked top to bottom.
var rubric = []struct {
	substr    string
	errorType string
}{
	{"timeout", "timeout"},
	{"tool not called", "tool_not_called"},
	{"tool_not_called", "tool_not_called"},
	{"wrong tool", "wrong_tool"},
	{"wrong_tool", "wrong_tool"},
	{"hallucinat", "hallucination"},
	{"parse error", "parse_error"},
	{"parse_error", "parse_error"},
	{"rag not used", "rag_not_used"},
	{"rag_not_used", "rag_not_used"},
	{"bad params", "bad_params"},
	{"bad_params", "bad_params"},
	{"format error", "format_error"},
	{"format_error", "format_error"},
	{"intent misread", "intent_misread"},
	{"intent_misread", "intent_misread"},
	{"main timeout", "main_timeout"},
	{"main_timeout", "main_timeout"},
	{"poor coordination", "poor_coordination"},
	{"poor_coordination", "poor_coordination"},
	{"score too low", "score_too_low"},
	{"score_too_low", "score_too_low"},
	{"combo excluded", "combo_excluded"},
	{"combo_excluded", "combo_excluded"},
	{"qualifying gate", "qualifying_gate_failure"},
	{"qualifying_gate", "qualifying_gate_failure"},
	{"format compatibility", "format_compatibility"},
	{"format_compatibility", "format_compatibility"},
}

// ClassifyErrorType walks the fixed rubric in order and returns the first
// errorType whose substring matches, lower-cased. An unmatched message
// classifies as "unknown".
func ClassifyErrorType(message string) string {
	lower := strings.ToLower(message)
	for _, r := range rubric {
		if strings.Contains(lower, r.substr) {
			return r.errorType
		}
	}
	return "unknown"
}

// patternCatalogEntry describes a named failure pattern's id, name and
// fixed severity. The (category, errorType) pairs that map to a pattern
// are kept separately, in categoryErrorPattern.
type patternCatalogEntry struct {
	id       string
	name     string
	severity Severity
}

var patternCatalog = map[string]patternCatalogEntry{
	"RAG_NOT_USED_BEFORE_READ":  {"RAG_NOT_USED_BEFORE_READ", "RAG not consulted before read", SeverityMedium},
	"TOOL_SUPPRESSION":          {"TOOL_SUPPRESSION", "Tool suppressed when required", SeverityHigh},
	"WRONG_TOOL_SELECTION":      {"WRONG_TOOL_SELECTION", "Wrong tool selected", SeverityMedium},
	"PARAM_EXTRACTION_FAILURE":  {"PARAM_EXTRACTION_FAILURE", "Parameter extraction failure", SeverityMedium},
	"INTENT_MISUNDERSTANDING":   {"INTENT_MISUNDERSTANDING", "Intent misunderstood", SeverityMedium},
	"REASONING_FAILURE":         {"REASONING_FAILURE", "Reasoning failure", SeverityHigh},
	"TOOL_HALLUCINATION":        {"TOOL_HALLUCINATION", "Tool hallucinated", SeverityCritical},
	"COMBO_MAIN_EXCLUDED":       {"COMBO_MAIN_EXCLUDED", "Main model excluded mid-combo-run", SeverityHigh},
	"COMBO_SCORE_TOO_LOW":       {"COMBO_SCORE_TOO_LOW", "Combo score below threshold", SeverityMedium},
	"COMBO_VRAM_EXCEEDED":       {"COMBO_VRAM_EXCEEDED", "Combo VRAM budget exceeded", SeverityMedium},
	"COMBO_QUALIFYING_GATE":     {"COMBO_QUALIFYING_GATE", "Combo failed qualifying gate", SeverityLow},
	"COMBO_FORMAT_INCOMPATIBLE": {"COMBO_FORMAT_INCOMPATIBLE", "Combo format incompatibility", SeverityMedium},
	"COMBO_POOR_COORDINATION":   {"COMBO_POOR_COORDINATION", "Poor main/executor coordination", SeverityHigh},
}

// categoryErrorPattern maps (category, errorType) to a pattern id.
var categoryErrorPattern = map[string]string{
	"rag:rag_not_used":                 "RAG_NOT_USED_BEFORE_READ",
	"tool:tool_not_called":             "TOOL_SUPPRESSION",
	"tool:wrong_tool":                  "WRONG_TOOL_SELECTION",
	"tool:bad_params":                  "PARAM_EXTRACTION_FAILURE",
	"intent:intent_misread":            "INTENT_MISUNDERSTANDING",
	"reasoning:unknown":                "REASONING_FAILURE",
	"tool:hallucination":               "TOOL_HALLUCINATION",
	"combo_pairing:main_timeout":       "COMBO_MAIN_EXCLUDED",
	"combo_pairing:score_too_low":      "COMBO_SCORE_TOO_LOW",
	"combo_pairing:poor_coordination":  "COMBO_POOR_COORDINATION",
	"combo_pairing:combo_excluded":     "COMBO_MAIN_EXCLUDED",
	"combo_pairing:qualifying_gate_failure": "COMBO_QUALIFYING_GATE",
	"combo_pairing:format_compatibility":    "COMBO_FORMAT_INCOMPATIBLE",
}

func detectPattern(category Category, errorType string) string {
	return categoryErrorPattern[string(category)+":"+errorType]
}

// Entry is a single failure record. Immutable after creation except for
// the resolution fields (Resolved, ResolvedProstheticID).
type Entry struct {
	ID                 int64     `json:"id"`
	Timestamp          time.Time `json:"timestamp"`
	ModelID            string    `json:"model_id"`
	ExecutorModelID    string    `json:"executor_model_id,omitempty"`
	Category           Category  `json:"category"`
	ErrorType          string    `json:"error_type"`
	QueryFingerprint   string    `json:"query_fingerprint"`
	ConversationDepth  int       `json:"conversation_depth"`
	PatternID          string    `json:"pattern_id,omitempty"`
	Resolved           bool      `json:"resolved"`
	ResolvedProstheticID string  `json:"resolved_prosthetic_id,omitempty"`
}

// Pattern is a named cluster of entries sharing category and error type.
// It is derived and re-derivable from the entry list.
type Pattern struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Severity         Severity  `json:"severity"`
	Count            int       `json:"count"`
	FirstSeen        time.Time `json:"first_seen"`
	LastSeen         time.Time `json:"last_seen"`
	Examples         []int64   `json:"examples"`
	SuggestedProsthetic string `json:"suggested_prosthetic_id,omitempty"`
}

const maxPatternExamples = 10

type logDoc struct {
	Version  int                `json:"version"`
	NextID   int64              `json:"next_id"`
	Entries  []Entry            `json:"entries"`
	Patterns map[string]Pattern `json:"patterns"`
}

// Log is the per-workspace failure journal. Writes are serialized behind
// mu, matching the spec's per-workspace exclusive-writer model; reads see
// the last completed write.
type Log struct {
	mu   sync.Mutex
	path string
	doc  logDoc
}

// Open loads (or initializes) the failure log for a given workspace hash
// under dataRoot, at projects/<hash>/failure-log.json.
func Open(dataRoot, workspaceHash string) (*Log, error) {
	l := &Log{path: filepath.Join(dataRoot, "projects", workspaceHash, "failure-log.json")}
	found, err := jsonstore.Read(l.path, &l.doc)
	if err != nil {
		return nil, fmt.Errorf("loading failure log: %w", err)
	}
	if !found {
		l.doc = logDoc{Version: 1, NextID: 1, Patterns: map[string]Pattern{}}
	}
	if l.doc.Patterns == nil {
		l.doc.Patterns = map[string]Pattern{}
	}
	return l, nil
}

// LogParams describes a new failure to record.
type LogParams struct {
	ModelID           string
	ExecutorModelID   string
	Category          Category
	Message           string
	Query             string
	ConversationDepth int
}

// LogFailure classifies, fingerprints, and appends a new entry, updating
// any affected pattern and persisting atomically.
func (l *Log) LogFailure(p LogParams) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	errorType := ClassifyErrorType(p.Message)
	entry := Entry{
		ID:                l.doc.NextID,
		Timestamp:         time.Now(),
		ModelID:           p.ModelID,
		ExecutorModelID:   p.ExecutorModelID,
		Category:          p.Category,
		ErrorType:         errorType,
		QueryFingerprint:  Fingerprint(p.Query),
		ConversationDepth: p.ConversationDepth,
		PatternID:         detectPattern(p.Category, errorType),
	}
	l.doc.NextID++
	l.doc.Entries = append(l.doc.Entries, entry)

	if entry.PatternID != "" {
		pat := l.doc.Patterns[entry.PatternID]
		if pat.ID == "" {
			cat := patternCatalog[entry.PatternID]
			pat = Pattern{ID: cat.id, Name: cat.name, Severity: cat.severity, FirstSeen: entry.Timestamp}
		}
		pat.Count++
		pat.LastSeen = entry.Timestamp
		if len(pat.Examples) < maxPatternExamples {
			pat.Examples = append(pat.Examples, entry.ID)
		}
		l.doc.Patterns[entry.PatternID] = pat
	}

	if err := jsonstore.Write(l.path, &l.doc); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Filters narrow a GetFailures query. Zero values are "no filter".
type Filters struct {
	ModelID  string
	Category Category
	Pattern  string
	Resolved *bool
	Since    time.Time
	Offset   int
	Limit    int
}

// GetFailures returns entries matching filters, newest-first, paged.
func (l *Log) GetFailures(f Filters) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var matched []Entry
	for _, e := range l.doc.Entries {
		if f.ModelID != "" && e.ModelID != f.ModelID {
			continue
		}
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if f.Pattern != "" && e.PatternID != f.Pattern {
			continue
		}
		if f.Resolved != nil && e.Resolved != *f.Resolved {
			continue
		}
		if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
			continue
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp.After(matched[j].Timestamp) })

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched
}

// GetPatterns returns all known patterns sorted by count descending.
func (l *Log) GetPatterns() []Pattern {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Pattern, 0, len(l.doc.Patterns))
	for _, p := range l.doc.Patterns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// GetPatternsAboveThreshold returns patterns with count >= n, sorted desc.
func (l *Log) GetPatternsAboveThreshold(n int) []Pattern {
	var out []Pattern
	for _, p := range l.GetPatterns() {
		if p.Count >= n {
			out = append(out, p)
		}
	}
	return out
}

// MarkResolved sets resolved=true and records the resolving prosthetic for
// the given entry ids.
func (l *Log) MarkResolved(ids []int64, prostheticID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for i := range l.doc.Entries {
		if want[l.doc.Entries[i].ID] {
			l.doc.Entries[i].Resolved = true
			l.doc.Entries[i].ResolvedProstheticID = prostheticID
		}
	}
	return jsonstore.Write(l.path, &l.doc)
}

// ClearOld removes resolved entries older than the given retention window,
// keeping unresolved entries regardless of age.
func (l *Log) ClearOld(days int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -days)
	kept := l.doc.Entries[:0]
	for _, e := range l.doc.Entries {
		if e.Resolved && e.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, e)
	}
	l.doc.Entries = kept
	return jsonstore.Write(l.path, &l.doc)
}

var (
	numberPattern = regexp.MustCompile(`\d+`)
	quotedPattern = regexp.MustCompile(`"[^"]*"|'[^']*'`)
	spacePattern  = regexp.MustCompile(`\s+`)
)

// Fingerprint normalizes a query for deduplication: lower-case, numbers
// replaced by N, quoted literals collapsed, then hashed.
func Fingerprint(query string) string {
	s := strings.ToLower(strings.TrimSpace(query))
	s = quotedPattern.ReplaceAllString(s, "LIT")
	s = numberPattern.ReplaceAllString(s, "N")
	s = spacePattern.ReplaceAllString(s, " ")
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}
