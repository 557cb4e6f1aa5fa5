package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ctxloom/ctxloom/internal/agent"
	"github.com/ctxloom/ctxloom/internal/agent/providers"
	"github.com/ctxloom/ctxloom/internal/combo"
	"github.com/ctxloom/ctxloom/internal/intent"
	"github.com/ctxloom/ctxloom/internal/probe"
	"github.com/ctxloom/ctxloom/internal/ratelimit"
	"github.com/ctxloom/ctxloom/pkg/models"
)

// comboTriggerKey is the single ratelimit.Limiter key every combo-test
// trigger shares. comboActive (below) already enforces one sweep at a
// time; the limiter's narrower job is keeping a client from hammering
// the run/context-test endpoints with rapid-fire requests that each
// dispatch a model call before comboActive has a chance to reject them.
const comboTriggerKey = "combo-test"

var comboLimiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerSecond: 0.5, BurstSize: 2, Enabled: true})

// modelDispatchLocks serializes probe dispatch per model ID, matching
// the combo evaluator's rule of bounding concurrent per-model probe
// calls to one; different models may still probe in parallel.
var modelDispatchLocks sync.Map // map[string]*sync.Mutex

func lockForModel(modelID string) *sync.Mutex {
	v, _ := modelDispatchLocks.LoadOrStore(modelID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

type toolyModel struct {
	ID       string  `json:"id"`
	Provider string  `json:"provider"`
	Name     string  `json:"name"`
	Role     string  `json:"role,omitempty"`
	Overall  float64 `json:"overall,omitempty"`
	Profiled bool    `json:"profiled"`
}

func (c *Core) handleToolyModels(w http.ResponseWriter, r *http.Request) {
	if c.Providers == nil {
		writeError(w, http.StatusServiceUnavailable, "provider client unavailable", nil)
		return
	}
	var out []toolyModel
	for _, providerName := range c.Providers.Providers() {
		for _, m := range c.Providers.ModelsFor(providerName) {
			tm := toolyModel{ID: m.ID, Provider: providerName, Name: m.Name}
			if c.Capability != nil {
				if profile, ok := c.Capability.Get(m.ID); ok {
					tm.Role = string(profile.Role)
					tm.Overall = profile.Overall
					tm.Profiled = true
				}
			}
			out = append(out, tm)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": out})
}

type comboTestRunRequest struct {
	MainModels     []string `json:"mainModels"`
	ExecutorModels []string `json:"executorModels"`
}

func (c *Core) handleComboTestRun(w http.ResponseWriter, r *http.Request) {
	if !comboLimiter.Allow(comboTriggerKey) {
		writeError(w, http.StatusTooManyRequests, "combo test triggered too frequently", nil)
		return
	}
	if c.ComboStore == nil || c.Exclusions == nil || c.Providers == nil {
		writeError(w, http.StatusServiceUnavailable, "combo evaluator unavailable", nil)
		return
	}

	var req comboTestRunRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if len(req.MainModels) == 0 || len(req.ExecutorModels) == 0 {
		writeError(w, http.StatusBadRequest, "mainModels and executorModels are required", nil)
		return
	}

	c.comboMu.Lock()
	if c.comboActive {
		c.comboMu.Unlock()
		writeError(w, http.StatusConflict, "a combo test is already running", nil)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.comboActive = true
	c.comboCancel = cancel
	c.comboMu.Unlock()

	go c.runComboSweep(ctx, req.MainModels, req.ExecutorModels)

	writeJSON(w, http.StatusAccepted, map[string]any{"started": true})
}

func (c *Core) handleComboTestStop(w http.ResponseWriter, r *http.Request) {
	c.comboMu.Lock()
	defer c.comboMu.Unlock()
	if !c.comboActive || c.comboCancel == nil {
		writeJSON(w, http.StatusOK, map[string]any{"stopped": false})
		return
	}
	c.comboCancel()
	writeJSON(w, http.StatusOK, map[string]any{"stopped": true})
}

// runComboSweep drives the combo evaluator (C8) across every (main,
// executor) candidate pair, dispatching the tool probe catalog through
// each pair's own dual-mode router and persisting a combo.Record per
// pair. It always clears comboActive on return, however it exits.
func (c *Core) runComboSweep(ctx context.Context, mains, executors []string) {
	defer func() {
		c.comboMu.Lock()
		c.comboActive = false
		c.comboCancel = nil
		c.comboMu.Unlock()
	}()

	adapter := &providers.IntentAdapter{Client: c.Providers, Timeout: c.Config.Routing.Timeout}
	fixtures := probe.DefaultFixtures()
	catalog := probe.Catalog()
	total := len(mains) * len(executors)
	done := 0

	for _, mainID := range mains {
		if ctx.Err() != nil {
			return
		}
		if c.Exclusions.IsExcluded(mainID) {
			c.hub.Broadcast(EventComboTestMainExcluded, map[string]any{"mainModelId": mainID})
			done += len(executors)
			continue
		}
		for _, executorID := range executors {
			if ctx.Err() != nil {
				return
			}
			if mainID == executorID {
				done++
				continue
			}

			record := c.runComboPair(ctx, adapter, catalog, fixtures, mainID, executorID)
			done++

			if err := c.ComboStore.Save(record); err != nil {
				c.Logger.Warn("saving combo record", "error", err)
			}
			c.hub.Broadcast(EventComboTestResult, record)
			c.hub.Broadcast(EventComboTestProgress, map[string]any{"completed": done, "total": total})

			if record.Excluded {
				c.hub.Broadcast(EventComboTestMainExcluded, map[string]any{"mainModelId": mainID})
				break
			}
		}
	}

	c.hub.Broadcast(EventComboTestCompleted, map[string]any{"completed": done, "total": total})
}

// runComboPair runs the full probe catalog for one (main, executor)
// candidate through a dedicated dual-mode router and folds the results
// into a combo.Record.
func (c *Core) runComboPair(ctx context.Context, adapter *providers.IntentAdapter, catalog []probe.Probe, fixtures probe.Fixtures, mainID, executorID string) combo.Record {
	router := intent.NewRouter(intent.Config{
		MainModelID:     mainID,
		ExecutorModelID: executorID,
		EnableDualModel: true,
		Timeout:         c.Config.Routing.Timeout,
		Provider:        c.Config.Routing.Provider,
	}, adapter, c.profileLookupFunc(), c.prostheticLookupFunc(), nil)

	outcomes := make([]combo.Outcome, 0, len(catalog))
	for _, p := range catalog {
		outcomes = append(outcomes, c.runComboProbe(ctx, router, p, fixtures, mainID, executorID))
	}

	return combo.BuildRecord(mainID, executorID, outcomes, c.Exclusions.IsExcluded(mainID))
}

// runComboProbe runs a single catalog probe through the dual-mode router
// rather than the probe harness's own direct single-model dispatch,
// since the combo evaluator's whole point is scoring a main/executor
// pairing, not a single model in isolation.
func (c *Core) runComboProbe(ctx context.Context, router *intent.Router, p probe.Probe, fixtures probe.Fixtures, mainID, executorID string) combo.Outcome {
	req := p.Build(fixtures)
	messages := probeRequestToIntentMessages(req)
	tools := toIntentTools(req.Tools)

	mainLock, executorLock := lockForModel(mainID), lockForModel(executorID)
	mainLock.Lock()
	if executorID != mainID {
		executorLock.Lock()
	}
	start := time.Now()
	result, err := router.Route(ctx, messages, tools)
	elapsed := time.Since(start)
	if executorID != mainID {
		executorLock.Unlock()
	}
	mainLock.Unlock()

	if err != nil {
		if len(result.Phases) <= 1 {
			c.Exclusions.RecordPlanningFailure(mainID)
		}
		return combo.Outcome{TestName: p.Name, Tier: tierForProbe(p.Name), Category: p.Axis, Pass: false, Score: 0, LatencyMS: elapsed.Milliseconds()}
	}
	c.Exclusions.RecordPlanningSuccess(mainID)

	resp := providers.Response{
		Choices: []providers.Choice{{Message: providers.ResponseMessage{
			Content:   result.FinalResponse.Content,
			ToolCalls: toModelToolCalls(result.ToolCalls),
		}}},
		Latency: result.LatencyTotal,
	}
	evaluated := p.Evaluate(resp, elapsed)
	return combo.Outcome{
		TestName:  p.Name,
		Tier:      tierForProbe(p.Name),
		Category:  p.Axis,
		Pass:      evaluated.Pass,
		Score:     evaluated.Score,
		LatencyMS: elapsed.Milliseconds(),
	}
}

// tierForProbe buckets a catalog probe name into the combo evaluator's
// simple/medium/complex difficulty tiers by the kind of judgment the
// probe exercises, since the probe catalog itself is organized by
// capability axis rather than difficulty.
func tierForProbe(name string) combo.Tier {
	switch {
	case strings.Contains(name, "emit") || strings.Contains(name, "selection") || strings.Contains(name, "suppression"):
		return combo.TierSimple
	case strings.Contains(name, "schema") || strings.Contains(name, "near_identical") || strings.Contains(name, "multi"):
		return combo.TierMedium
	default:
		return combo.TierComplex
	}
}

func (c *Core) profileLookupFunc() intent.ProfileLookup {
	if c.Capability == nil {
		return nil
	}
	return func(modelID string) []string {
		profile, ok := c.Capability.Get(modelID)
		if !ok {
			return nil
		}
		return profile.EnabledTools
	}
}

func (c *Core) prostheticLookupFunc() intent.Prosthetics {
	if c.Prosthetics == nil {
		return nil
	}
	return func(modelID string) (string, bool) {
		fragment, ok := c.Prosthetics.Get(modelID)
		if !ok {
			return "", false
		}
		return fragment.Text, true
	}
}

type comboContextTestRequest struct {
	MainModelID     string `json:"mainModelId"`
	ExecutorModelID string `json:"executorModelId"`
}

// handleComboContextTest runs a single, synchronous combo probe pass for
// one pair: the "try this pairing now" counterpart to the full
// asynchronous sweep /combo-test/run drives.
func (c *Core) handleComboContextTest(w http.ResponseWriter, r *http.Request) {
	if c.Providers == nil || c.Exclusions == nil || c.ComboStore == nil {
		writeError(w, http.StatusServiceUnavailable, "combo evaluator unavailable", nil)
		return
	}
	var req comboContextTestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.MainModelID == "" || req.ExecutorModelID == "" {
		writeError(w, http.StatusBadRequest, "mainModelId and executorModelId are required", nil)
		return
	}
	if !comboLimiter.Allow(comboTriggerKey) {
		writeError(w, http.StatusTooManyRequests, "combo test triggered too frequently", nil)
		return
	}

	adapter := &providers.IntentAdapter{Client: c.Providers, Timeout: c.Config.Routing.Timeout}
	record := c.runComboPair(r.Context(), adapter, probe.Catalog(), probe.DefaultFixtures(), req.MainModelID, req.ExecutorModelID)
	if err := c.ComboStore.Save(record); err != nil {
		c.Logger.Warn("saving combo record", "error", err)
	}
	writeJSON(w, http.StatusOK, record)
}

// probeRequestToIntentMessages converts an agent.CompletionRequest's
// System prompt and Messages into the intent package's canonical message
// list: the seam between the probe catalog's agent-shaped requests and
// the dual-mode router's intent-shaped ones.
func probeRequestToIntentMessages(req *agent.CompletionRequest) []intent.Message {
	out := make([]intent.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, intent.Message{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		out = append(out, intent.Message{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			ToolCalls:  toIntentToolCallsFromModels(m.ToolCalls),
		})
	}
	return out
}

func toIntentTools(in []agent.Tool) []intent.Tool {
	if len(in) == 0 {
		return nil
	}
	out := make([]intent.Tool, len(in))
	for i, t := range in {
		out[i] = intent.Tool{Name: t.Name(), Description: t.Description(), Parameters: t.Schema()}
	}
	return out
}

func toIntentToolCallsFromModels(in []models.ToolCall) []intent.ToolCall {
	if len(in) == 0 {
		return nil
	}
	out := make([]intent.ToolCall, len(in))
	for i, tc := range in {
		var args map[string]any
		_ = json.Unmarshal(tc.Input, &args)
		out[i] = intent.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: args}
	}
	return out
}

func toModelToolCalls(in []intent.ToolCall) []models.ToolCall {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.ToolCall, len(in))
	for i, tc := range in {
		input, _ := json.Marshal(tc.Arguments)
		out[i] = models.ToolCall{ID: tc.ID, Name: tc.Name, Input: input}
	}
	return out
}
