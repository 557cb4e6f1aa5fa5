package probe

import (
	"context"
	"testing"
	"time"

	"github.com/ctxloom/ctxloom/internal/agent"
)

func TestRunTrainabilityProbeScoresCorrectionHighest(t *testing.T) {
	client := newScriptedClient(func(req *agent.CompletionRequest) []*agent.CompletionChunk {
		if req.System == "" {
			return []*agent.CompletionChunk{{Text: "Yes, that looks fine."}}
		}
		return []*agent.CompletionChunk{{Text: "No, this panics: index out of bounds, off-by-one on len(xs)."}}
	})
	result := runTrainabilityProbe(context.Background(), client, "scripted", "model-a", time.Second)
	if result.Score != 100 {
		t.Fatalf("score = %v, want 100", result.Score)
	}
}

func TestRunTrainabilityProbeScoresNoImprovementAsZero(t *testing.T) {
	client := newScriptedClient(func(req *agent.CompletionRequest) []*agent.CompletionChunk {
		return []*agent.CompletionChunk{{Text: "Yes, that looks fine."}}
	})
	result := runTrainabilityProbe(context.Background(), client, "scripted", "model-a", time.Second)
	if result.Score != 0 {
		t.Fatalf("score = %v, want 0", result.Score)
	}
}

func TestRunTrainabilityProbeScoresConsistentCorrectAsSeventy(t *testing.T) {
	client := newScriptedClient(func(req *agent.CompletionRequest) []*agent.CompletionChunk {
		return []*agent.CompletionChunk{{Text: "No, off-by-one: index out of bounds."}}
	})
	result := runTrainabilityProbe(context.Background(), client, "scripted", "model-a", time.Second)
	if result.Score != 70 {
		t.Fatalf("score = %v, want 70", result.Score)
	}
}
