// Package confidence implements the epistemic scoring engine for semantic
// memory: signal-driven confidence updates, the derived epistemic status
// state machine, and clarification-loop protection.
package confidence

import (
	"fmt"
	"strings"
	"time"

	"github.com/freshair129/eva-msp/internal/model"
)

// Signal is a discrete confidence update event.
type Signal string

const (
	RepeatedOccurrence    Signal = "repeated_occurrence"
	ConsistentRecall      Signal = "consistent_recall"
	UserAffirmation       Signal = "user_affirmation"
	ImplicitUserSignal    Signal = "implicit_user_signal"
	SystemCrossValidation Signal = "system_cross_validation"
	ConflictDetected      Signal = "conflict_detected"
	ContradictionByUser   Signal = "contradiction_by_user"
	InconsistencyOverTime Signal = "inconsistency_over_time"
	SystemNoiseDetected   Signal = "system_noise_detected"
)

// Epistemic statuses, derived from confidence and never stored as
// independent truth.
const (
	StatusHypothesis  = "hypothesis"  // confidence < 0.45
	StatusProvisional = "provisional" // 0.45 <= confidence < 0.80
	StatusConfirmed   = "confirmed"   // confidence >= 0.80
)

// Resolution states for conflict handling.
const (
	StateUnresolved = "unresolved"
	StateResolved   = "resolved"
	StateSuppressed = "suppressed"
)

// EpistemicStatuses and ResolutionStates enumerate the legal values, in
// escalation order.
var (
	EpistemicStatuses = []string{StatusHypothesis, StatusProvisional, StatusConfirmed}
	ResolutionStates  = []string{StateUnresolved, StateResolved, StateSuppressed}
)

// Status thresholds.
const (
	confirmedThreshold   = 0.80
	provisionalThreshold = 0.45

	// ConsolidationThreshold is the sole gate for migrating a semantic
	// entry from buffer to Origin.
	ConsolidationThreshold = 0.70

	// DefaultInitialConfidence is the starting confidence of a new entry.
	DefaultInitialConfidence = 0.3
)

// modifier is the fixed delta and application constraints of one signal.
type modifier struct {
	value           float64
	maxApplications int // 0 means unlimited
	singleUse       bool
	forceConfirmed  bool // drives confidence to at least the confirmed threshold, unless frozen
}

var modifiers = map[Signal]modifier{
	RepeatedOccurrence:    {value: 0.05, maxApplications: 3},
	ConsistentRecall:      {value: 0.04, maxApplications: 3},
	UserAffirmation:       {value: 0.30, singleUse: true, forceConfirmed: true},
	ImplicitUserSignal:    {value: 0.10},
	SystemCrossValidation: {value: 0.08},
	ConflictDetected:      {value: -0.20},
	ContradictionByUser:   {value: -0.35},
	InconsistencyOverTime: {value: -0.10},
	SystemNoiseDetected:   {value: -0.08},
}

// Resolution-state multipliers: doubt suppresses growth and amplifies
// decay; confirmed facts resist erosion; suppressed entries are frozen.
var resolutionMultipliers = map[string][2]float64{
	StateUnresolved: {0.5, 1.0}, // positive, negative
	StateResolved:   {1.0, 0.5},
	StateSuppressed: {0.0, 0.0},
}

// Max clarification attempts by stakes level. Health/safety topics get
// more attempts before the loop is forced shut.
var maxClarificationAttempts = map[string]int{
	"low":    2,
	"medium": 3,
	"high":   4,
}

// ParseSignal validates a signal name.
func ParseSignal(s string) (Signal, error) {
	if _, ok := modifiers[Signal(s)]; !ok {
		return "", fmt.Errorf("unknown signal %q", s)
	}
	return Signal(s), nil
}

// StatusFor derives the epistemic status from a confidence value. Pure step
// function with breakpoints at exactly 0.45 and 0.80.
func StatusFor(confidence float64) string {
	switch {
	case confidence >= confirmedThreshold:
		return StatusConfirmed
	case confidence >= provisionalThreshold:
		return StatusProvisional
	default:
		return StatusHypothesis
	}
}

// ShouldConsolidate reports whether an entry's confidence clears the
// buffer-to-Origin migration gate.
func ShouldConsolidate(confidence float64) bool {
	return confidence > ConsolidationThreshold
}

// MaxAttempts returns the clarification attempt cap for a stakes level.
// Unknown levels get the medium cap.
func MaxAttempts(stakesLevel string) int {
	if n, ok := maxClarificationAttempts[stakesLevel]; ok {
		return n
	}
	return maxClarificationAttempts["medium"]
}

// Calculate applies a batch of signals to a confidence value. Each signal's
// delta is skipped if its application cap is already reached, scaled by the
// resolution multiplier, and summed; the result clamps to [0, 1].
func Calculate(current float64, signals []Signal, resolutionState string, history map[string]int) float64 {
	mult, ok := resolutionMultipliers[resolutionState]
	if !ok {
		mult = resolutionMultipliers[StateUnresolved]
	}

	// Copy so repeated signals inside one batch count against each other.
	applied := make(map[string]int, len(history))
	for k, v := range history {
		applied[k] = v
	}

	confidence := current
	for _, signal := range signals {
		mod, ok := modifiers[signal]
		if !ok {
			continue
		}

		times := applied[string(signal)]
		applied[string(signal)]++
		if mod.maxApplications > 0 && times >= mod.maxApplications {
			continue
		}
		if mod.singleUse && times > 0 {
			continue
		}

		value := mod.value
		if value > 0 {
			value *= mult[0]
		} else {
			value *= mult[1]
		}
		confidence += value

		// A suppressed entry stays frozen: the multiplier that zeroes the
		// delta also blocks the forced jump to confirmed.
		if mod.forceConfirmed && mult[0] > 0 && confidence < confirmedThreshold {
			confidence = confirmedThreshold
		}
	}

	return clamp01(confidence)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Engine manages semantic entry lifecycles.
type Engine struct {
	InitialConfidence float64
}

// NewEngine returns an engine with the default initial confidence.
func NewEngine() *Engine {
	return &Engine{InitialConfidence: DefaultInitialConfidence}
}

// NewEntry builds the initial semantic entry for an accepted proposal.
// Confidence, status, and resolution state are MSP-authoritative.
func (e *Engine) NewEntry(concept, definition, stakesLevel string) model.SemanticEntry {
	return model.SemanticEntry{
		Concept:                  concept,
		Definition:               definition,
		EpistemicStatus:          StatusFor(e.InitialConfidence),
		Confidence:               e.InitialConfidence,
		ResolutionState:          StateUnresolved,
		SignalHistory:            map[string]int{},
		ClarificationAttempts:    0,
		MaxClarificationAttempts: MaxAttempts(stakesLevel),
		StakesLevel:              stakesLevel,
	}
}

// Update applies a signal batch to an entry: confidence is recalculated,
// status is re-derived, and history counters increment even for capped
// signals so later checks still see them as used. The first update that
// confirms an unresolved entry resolves it.
func (e *Engine) Update(entry *model.SemanticEntry, signals []Signal, now time.Time) {
	if entry.SignalHistory == nil {
		entry.SignalHistory = map[string]int{}
	}
	state := entry.ResolutionState
	if state == "" {
		state = StateUnresolved
	}

	entry.Confidence = Calculate(entry.Confidence, signals, state, entry.SignalHistory)
	for _, signal := range signals {
		entry.SignalHistory[string(signal)]++
	}
	entry.EpistemicStatus = StatusFor(entry.Confidence)
	entry.LastUpdated = model.NowISO(now)

	if entry.EpistemicStatus == StatusConfirmed && state == StateUnresolved {
		entry.ResolutionState = StateResolved
	}
}

// ShouldAskClarification reports whether another clarification round is
// allowed. Loop protection: false once attempts reach the stakes cap.
func (e *Engine) ShouldAskClarification(entry *model.SemanticEntry) bool {
	return entry.ClarificationAttempts < MaxAttempts(entry.StakesLevel)
}

// IncrementClarification bumps the attempt counter.
func (e *Engine) IncrementClarification(entry *model.SemanticEntry) {
	entry.ClarificationAttempts++
}

// ForceExitLoop terminates a clarification dialogue. A still-unresolved
// entry is suppressed and flagged, guaranteeing termination regardless of
// external retry pressure.
func (e *Engine) ForceExitLoop(entry *model.SemanticEntry) {
	if entry.ResolutionState == StateUnresolved || entry.ResolutionState == "" {
		entry.ResolutionState = StateSuppressed
		entry.ForcedExit = true
	}
}

// Health/safety keywords that raise the stakes level of a topic.
var highStakesKeywords = []string{
	"health", "safety", "allergy", "medical", "poison", "toxic",
	"danger", "harmful", "disease", "medication", "hospital",
}

// InferStakes guesses the stakes level from concept and definition text.
// Health/safety topics are high stakes; everything else defaults to medium.
func InferStakes(concept, definition string) string {
	combined := strings.ToLower(concept + " " + definition)
	for _, keyword := range highStakesKeywords {
		if strings.Contains(combined, keyword) {
			return "high"
		}
	}
	return "medium"
}
