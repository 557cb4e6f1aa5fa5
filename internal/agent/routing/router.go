// Package routing implements the C7 Auto-selection operation (spec.md
// §4.6): given a capability registry snapshot, pick the best main model
// from the profiles whose recommended role qualifies it for planning,
// and the best executor model from the profiles whose role qualifies it
// for tool execution. It keeps this module's original provider-routing
// engine's health-cooldown idiom, generalized from "a provider that
// errors is skipped for a cooldown window" to "a model that errors is
// skipped for a cooldown window" — a candidate the router actually
// dispatched to and that failed drops out of consideration until the
// cooldown elapses, rather than being re-selected on every turn.
package routing

import (
	"sync"
	"time"

	"github.com/ctxloom/ctxloom/internal/capability"
)

// Selector auto-selects main/executor model candidates from a
// capability.Registry snapshot. It is safe for concurrent use.
type Selector struct {
	registry *capability.Registry
	cooldown time.Duration

	mu        sync.Mutex
	unhealthy map[string]time.Time
}

// NewSelector builds a Selector reading profiles from registry. cooldown
// is how long a model marked unhealthy via MarkUnhealthy is excluded
// from selection; zero disables cooldown tracking entirely (a model is
// never excluded).
func NewSelector(registry *capability.Registry, cooldown time.Duration) *Selector {
	return &Selector{
		registry:  registry,
		cooldown:  cooldown,
		unhealthy: make(map[string]time.Time),
	}
}

// SelectMain picks the best main-role candidate by suppression+selection
// score, per spec.md §4.6: "pick the best main from profiles where
// role∈{main,both} by suppression+selection score."
func (s *Selector) SelectMain() (string, bool) {
	candidates := s.registry.ByRole(capability.RoleMain, capability.RoleBoth)
	return s.selectBest(candidates, func(p capability.Profile) float64 {
		return p.ToolScores.Suppression + p.ToolScores.Selection
	})
}

// SelectExecutor picks the best executor-role candidate by emit+schema
// score, per spec.md §4.6: "pick the best executor from profiles where
// role∈{executor,both} by emit+schema score."
func (s *Selector) SelectExecutor() (string, bool) {
	candidates := s.registry.ByRole(capability.RoleExecutor, capability.RoleBoth)
	return s.selectBest(candidates, func(p capability.Profile) float64 {
		return p.ToolScores.Emit + p.ToolScores.SchemaAdherence
	})
}

// MarkUnhealthy excludes modelID from selection until the cooldown
// window elapses. Called by the intent router when a dispatched call to
// an auto-selected model fails.
func (s *Selector) MarkUnhealthy(modelID string) {
	if s.cooldown <= 0 || modelID == "" {
		return
	}
	s.mu.Lock()
	s.unhealthy[modelID] = time.Now().Add(s.cooldown)
	s.mu.Unlock()
}

func (s *Selector) isHealthy(modelID string) bool {
	if s.cooldown <= 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.unhealthy[modelID]
	if !ok {
		return true
	}
	if time.Now().After(until) {
		delete(s.unhealthy, modelID)
		return true
	}
	return false
}

func (s *Selector) selectBest(candidates []capability.Profile, score func(capability.Profile) float64) (string, bool) {
	var best string
	var bestScore float64
	found := false
	for _, p := range candidates {
		if !s.isHealthy(p.ModelID) {
			continue
		}
		sc := score(p)
		if !found || sc > bestScore {
			best, bestScore, found = p.ModelID, sc, true
		}
	}
	return best, found
}
