package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/freshair129/eva-msp/internal/confidence"
	"github.com/freshair129/eva-msp/internal/model"
)

var conceptPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$|^[a-z]$`)

// Words that encode certainty inside a concept name. Certainty belongs in
// epistemic_status, which only MSP may set.
var certaintyWords = []string{"confirmed", "certain", "definite", "absolute", "proven"}

// SemanticProposal validates an untrusted semantic proposal before MSP
// attaches its authoritative fields. Phases: structure, concept format,
// conflict detection against existing entries, forbidden fields
// (proposal-stage denylist, which also covers MSP-authoritative fields).
func SemanticProposal(proposal map[string]any, existing []model.SemanticEntry) *Result {
	result := newResult()

	r := newResult()
	r.AddInfo("phase 1: structural validation")
	checkRequired(proposal, []string{"concept", "definition", "derived_from"}, r)
	if derived, ok := proposal["derived_from"]; ok {
		m, isMap := derived.(map[string]any)
		if !isMap {
			r.AddError("'derived_from' must be an object")
		} else if _, ok := m["episode_id"]; !ok {
			r.AddError("'derived_from' missing 'episode_id'")
		}
	}
	result.Merge(r)

	result.Merge(conceptFormat(getString(proposal, "concept")))
	result.Merge(semanticConflicts(getString(proposal, "concept"), getString(proposal, "definition"), conflictsWith(proposal), existing))

	forbidden := newResult()
	forbidden.AddInfo("phase 4: forbidden fields check")
	scanForbidden(proposal, semanticProposalForbidden, forbidden, "")
	result.Merge(forbidden)

	return result
}

// SemanticRecord validates a finalized semantic entry (one MSP itself
// authored), as re-checked during consolidation.
func SemanticRecord(entry model.SemanticEntry) *Result {
	result := newResult()

	r := newResult()
	r.AddInfo("phase 1: structural validation")
	if entry.Concept == "" {
		r.AddError("missing required field: \"concept\"")
	}
	if entry.EpistemicStatus == "" {
		r.AddError("missing required field: \"epistemic_status\"")
	} else {
		checkEnum(entry.EpistemicStatus, confidence.EpistemicStatuses, "epistemic_status", r)
	}
	if entry.ResolutionState != "" {
		checkEnum(entry.ResolutionState, confidence.ResolutionStates, "resolution_state", r)
	}
	if entry.DerivedFrom == nil {
		r.AddError("missing required field: \"derived_from\"")
	} else if entry.DerivedFrom.EpisodeID == "" {
		r.AddError("'derived_from' missing 'episode_id'")
	}
	result.Merge(r)

	result.Merge(conceptFormat(entry.Concept))

	conf := newResult()
	conf.AddInfo("phase 3: confidence validation")
	checkRange(entry.Confidence, 0.0, 1.0, "confidence", conf)
	if entry.EpistemicStatus != "" {
		expected := confidence.StatusFor(entry.Confidence)
		if entry.EpistemicStatus != expected {
			conf.AddWarning(fmt.Sprintf("confidence %v suggests %q but epistemic_status is %q",
				entry.Confidence, expected, entry.EpistemicStatus))
		}
	}
	result.Merge(conf)

	return result
}

func conceptFormat(concept string) *Result {
	r := newResult()
	r.AddInfo("phase 2: concept format validation")
	if concept == "" {
		return r
	}

	if !conceptPattern.MatchString(concept) {
		r.AddError(fmt.Sprintf("concept %q must be lowercase_snake_case format", concept))
	}

	lower := strings.ToLower(concept)
	for _, word := range certaintyWords {
		if strings.Contains(lower, word) {
			r.AddWarning(fmt.Sprintf("concept %q appears to encode certainty (should be in epistemic_status instead)", concept))
			break
		}
	}

	return r
}

// semanticConflicts detects a clash with existing buffered entries: the same
// concept carrying a different definition, or explicit conflicts_with
// membership. Conflicts warn rather than block; the confidence engine
// handles them via CONFLICT_DETECTED signals.
func semanticConflicts(concept, definition string, declared []string, existing []model.SemanticEntry) *Result {
	r := newResult()
	r.AddInfo("phase 3: conflict detection")

	conflicting := ""
	for _, e := range existing {
		if e.Concept == concept && e.Definition != definition {
			conflicting = e.Concept
			break
		}
		for _, c := range declared {
			if e.Concept == c {
				conflicting = e.Concept
				break
			}
		}
		if conflicting != "" {
			break
		}
	}

	if conflicting != "" {
		r.AddWarning(fmt.Sprintf("conflict detected with existing concept: %q", conflicting))
		r.Context["conflict_detected"] = true
		r.Context["conflicting_concept"] = conflicting
		found := false
		for _, c := range declared {
			if c == conflicting {
				found = true
				break
			}
		}
		if !found {
			r.AddInfo(fmt.Sprintf("consider adding %q to conflicts_with field", conflicting))
		}
	}

	return r
}

func conflictsWith(proposal map[string]any) []string {
	raw, ok := proposal["conflicts_with"].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
