package capability

import (
	"math"
	"time"

	"github.com/BaSui01/agentpool/config"
	"go.uber.org/zap"
)

// scoreEpsilon bounds float comparison when breaking score ties.
const scoreEpsilon = 1e-9

// neutralScore is used for sub-scores whose signal is unavailable (no
// history, or the task did not supply the optional requirement).
const neutralScore = 0.5

// Matcher computes weighted multi-factor match scores between task
// requirements and candidate agents. Weight profiles come from the shared
// config provider, so strategy hot-swaps apply to the next selection.
type Matcher struct {
	cfg    *config.Provider
	logger *zap.Logger
}

// NewMatcher creates a matcher backed by the given config provider.
func NewMatcher(cfg *config.Provider, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "capability_matcher")),
	}
}

// scoredCandidate pairs a match result with the tie-break signals.
type scoredCandidate struct {
	MatchResult
	cumulativeBusy time.Duration
}

// Score computes the six sub-scores and the weighted total for one agent.
// The second return value is false when the agent is excluded outright: a
// missing required capability is a hard filter, not a penalty.
func (m *Matcher) Score(snap matchSnapshot, req Requirements, profile config.WeightProfile) (MatchResult, bool) {
	capScore, eligible := capabilityMatchScore(snap, req.RequiredCapabilities)
	if !eligible {
		return MatchResult{}, false
	}

	breakdown := ScoreBreakdown{
		CapabilityMatch:     capScore,
		SpecializationMatch: specializationScore(snap, req.PreferredCapabilities),
		SuccessRate:         clamp01(snap.SuccessRate),
		AverageTime:         m.averageTimeScore(snap, req.Category),
		Complexity:          complexityScore(snap, req.Complexity),
		Workload:            workloadScore(snap),
	}

	score := profile.CapabilityMatch*breakdown.CapabilityMatch +
		profile.SpecializationMatch*breakdown.SpecializationMatch +
		profile.SuccessRate*breakdown.SuccessRate +
		profile.AverageTime*breakdown.AverageTime +
		profile.Complexity*breakdown.Complexity +
		profile.Workload*breakdown.Workload

	return MatchResult{
		AgentID:    snap.ID,
		Score:      score,
		Confidence: score * optionalSignalFraction(req),
		Breakdown:  breakdown,
	}, true
}

// better orders two candidates: higher score wins; within scoreEpsilon the
// agent with less cumulative busy time wins, then the lexicographically
// smaller agent ID, for determinism.
func better(a, b scoredCandidate) bool {
	if math.Abs(a.Score-b.Score) > scoreEpsilon {
		return a.Score > b.Score
	}
	if a.cumulativeBusy != b.cumulativeBusy {
		return a.cumulativeBusy < b.cumulativeBusy
	}
	return a.AgentID < b.AgentID
}

// capabilityMatchScore returns the fraction of required capabilities the
// agent provides. Any missing capability excludes the agent entirely.
func capabilityMatchScore(snap matchSnapshot, required []string) (float64, bool) {
	if len(required) == 0 {
		return 1.0, true
	}
	matched := 0
	for _, c := range required {
		if _, ok := snap.Capabilities[c]; ok {
			matched++
		}
	}
	if matched < len(required) {
		return 0, false
	}
	return 1.0, true
}

// specializationScore returns the fraction of preferred capabilities
// present, or the neutral score when the task supplied none.
func specializationScore(snap matchSnapshot, preferred []string) float64 {
	if len(preferred) == 0 {
		return neutralScore
	}
	matched := 0
	for _, c := range preferred {
		if _, ok := snap.Capabilities[c]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(preferred))
}

// averageTimeScore inverse-normalizes the agent's average execution time
// against the category's expected duration: faster than expected scores
// higher, capped at 1.0. Agents with no history score neutral.
func (m *Matcher) averageTimeScore(snap matchSnapshot, category string) float64 {
	if !snap.HasHistory || snap.AvgExecutionTime <= 0 {
		return neutralScore
	}
	expected := m.cfg.Scheduler().ExpectedDuration(category)
	if expected <= 0 {
		return neutralScore
	}
	return clamp01(float64(expected) / float64(snap.AvgExecutionTime))
}

// complexityScore compares the task's declared tier with the agent's
// historical tier: exact match 1.0, adjacent tier 0.5, otherwise 0.
func complexityScore(snap matchSnapshot, declared Complexity) float64 {
	if declared == "" || snap.DominantComplexity == "" {
		return neutralScore
	}
	a, aok := complexityRank[declared]
	b, bok := complexityRank[snap.DominantComplexity]
	if !aok || !bok {
		return neutralScore
	}
	switch distance := abs(a - b); distance {
	case 0:
		return 1.0
	case 1:
		return 0.5
	default:
		return 0
	}
}

// workloadScore is 1 − utilization. A running task saturates the execution
// slot outright: any busy agent scores 0, never a diluted fraction, so an
// idle peer always carries the full workload edge. Queued work utilizes a
// non-busy agent proportionally to its queue capacity.
func workloadScore(snap matchSnapshot) float64 {
	if snap.Busy {
		return 0
	}
	capacity := float64(1 + snap.MaxQueueDepth)
	return clamp01(1.0 - float64(snap.QueueLen)/capacity)
}

// optionalSignalFraction scales confidence by how many of the optional
// requirement signals (preferred capabilities, complexity, category) the
// task actually supplied. Laplace-smoothed so a bare task still yields a
// nonzero confidence.
func optionalSignalFraction(req Requirements) float64 {
	supplied := 0
	if len(req.PreferredCapabilities) > 0 {
		supplied++
	}
	if req.Complexity != "" {
		supplied++
	}
	if req.Category != "" {
		supplied++
	}
	return float64(1+supplied) / 4.0
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
