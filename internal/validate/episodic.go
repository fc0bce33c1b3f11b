package validate

import (
	"fmt"
	"strings"

	"github.com/freshair129/eva-msp/internal/model"
)

// Episode runs the full 5-phase validation on an episodic proposal:
//
//  1. Structural — required sections (L3+ only), enums, turn list shape
//  2. Epistemic — IDs must look system-generated (warnings only)
//  3. State — indexed_state axes and ranges
//  4. Crosslinks — ID-only references, enumerated categories
//  5. Forbidden content — recursive denylist scan
func Episode(data model.Episode, riLevel string) *Result {
	result := newResult()
	result.Merge(episodeStructural(data, riLevel))
	result.Merge(episodeEpistemic(data))
	result.Merge(episodeState(data, riLevel))
	result.Merge(episodeCrosslinks(data))
	result.Merge(episodeForbidden(data))
	return result
}

func episodeStructural(data model.Episode, riLevel string) *Result {
	r := newResult()
	r.AddInfo("phase 1: structural validation")

	// L1/L2 episodes are reduced at write time, so structural sections are
	// only required for full-retention levels.
	if riLevel != model.RILevelL1 && riLevel != model.RILevelL2 {
		checkRequired(data, []string{"episode_header", "situation_context", "turns", "emotive_snapshot"}, r)
	}

	if header := getMap(data, "episode_header"); header != nil {
		if v, ok := header["episode_type"]; ok {
			checkEnum(v, model.ValidEpisodeTypes, "episode_header.episode_type", r)
		}
	}

	if ctx := getMap(data, "situation_context"); ctx != nil {
		if v, ok := ctx["interaction_mode"]; ok {
			checkEnum(v, model.ValidInteractionModes, "situation_context.interaction_mode", r)
		}
		if v, ok := ctx["stakes_level"]; ok {
			checkEnum(v, model.ValidLevels, "situation_context.stakes_level", r)
		}
		if v, ok := ctx["time_pressure"]; ok {
			checkEnum(v, model.ValidLevels, "situation_context.time_pressure", r)
		}
	}

	if turns, ok := data["turns"]; ok {
		validateTurns(turns, r)
	}

	return r
}

func validateTurns(turns any, r *Result) {
	list, ok := turns.([]any)
	if !ok {
		r.AddError("'turns' must be an array")
		return
	}

	seen := map[string]bool{}
	for i, item := range list {
		turn, ok := item.(map[string]any)
		if !ok {
			r.AddError(fmt.Sprintf("turn [%d] must be an object", i))
			continue
		}

		if id, ok := turn["turn_id"]; !ok {
			r.AddError(fmt.Sprintf("turn [%d] missing 'turn_id'", i))
		} else if s, ok := id.(string); ok {
			if seen[s] {
				r.AddError(fmt.Sprintf("duplicate turn_id: %q", s))
			}
			seen[s] = true
		}

		if v, ok := turn["speaker"]; ok {
			checkEnum(v, model.ValidSpeakers, fmt.Sprintf("turns[%d].speaker", i), r)
		}

		if affective, ok := turn["affective_inference"]; ok {
			validateAffectiveInference(affective, fmt.Sprintf("turns[%d]", i), r)
		}
	}
}

// validateAffectiveInference enforces that affective readings are marked
// non-authoritative: hypothesize or speculate, never a certainty claim.
func validateAffectiveInference(affective any, path string, r *Result) {
	m, ok := affective.(map[string]any)
	if !ok {
		r.AddError(path + ".affective_inference must be an object")
		return
	}
	status, ok := m["epistemic_status"]
	if !ok {
		r.AddError(path + ".affective_inference missing 'epistemic_status'")
		return
	}
	checkEnum(status, model.ValidAffectiveStatuses, path+".affective_inference.epistemic_status", r)
}

func episodeEpistemic(data model.Episode) *Result {
	r := newResult()
	r.AddInfo("phase 2: epistemic validation")

	// IDs are allowed in proposals, but non-system-looking formats get a
	// warning. This is a trust-boundary softener, not a rejection.
	for _, field := range []string{"episode_id", "context_id", "session_id", "user_id", "instance_id"} {
		if v, ok := data[field]; ok {
			if s, ok := v.(string); ok && !looksSystemGenerated(s) {
				r.AddWarning(fmt.Sprintf("field %q has unusual ID format: %q", field, s))
			}
		}
	}

	if turns, ok := data["turns"].([]any); ok {
		for i, item := range turns {
			turn, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if s, ok := turn["turn_id"].(string); ok && !looksSystemGenerated(s) {
				r.AddWarning(fmt.Sprintf("turns[%d].turn_id has unusual format: %q", i, s))
			}
		}
	}

	return r
}

// looksSystemGenerated is a heuristic: system IDs carry underscores or a
// recognized prefix (ep_..., t1, inst_...).
func looksSystemGenerated(id string) bool {
	return strings.Contains(id, "_") || strings.HasPrefix(id, "t") || strings.HasPrefix(id, "ep_")
}

func episodeState(data model.Episode, riLevel string) *Result {
	r := newResult()
	r.AddInfo("phase 3: state validation")

	snapshot := getMap(data, "emotive_snapshot")
	indexed := getMap(snapshot, "indexed_state")
	if len(indexed) == 0 {
		if riLevel == model.RILevelL1 || riLevel == model.RILevelL2 {
			r.AddInfo("no indexed_state present (acceptable for L1/L2)")
		} else {
			r.AddInfo("no indexed_state present")
		}
		return r
	}

	if matrix, ok := indexed["eva_matrix"]; ok {
		validateEvaMatrix(matrix, r)
	} else {
		r.AddError("indexed_state missing 'eva_matrix'")
	}

	validateSingleField(indexed, "qualia", "intensity", r)
	validateSingleField(indexed, "reflex", "threat_level", r)

	return r
}

func validateEvaMatrix(matrix any, r *Result) {
	m, ok := matrix.(map[string]any)
	if !ok {
		r.AddError("eva_matrix must be an object")
		return
	}

	for _, axis := range model.EvaMatrixAxes {
		if v, ok := m[axis]; ok {
			checkRange(v, 0.0, 1.0, "eva_matrix."+axis, r)
		} else {
			r.AddError(fmt.Sprintf("eva_matrix missing required axis: %q", axis))
		}
	}

	var extra []string
	for key := range m {
		known := false
		for _, axis := range model.EvaMatrixAxes {
			if key == axis {
				known = true
				break
			}
		}
		if !known {
			extra = append(extra, key)
		}
	}
	if len(extra) > 0 {
		r.AddError(fmt.Sprintf("eva_matrix contains extra axes: %v", extra))
	}
}

// validateSingleField checks a one-field state block (qualia.intensity,
// reflex.threat_level): the field is required, in [0,1], and exclusive.
func validateSingleField(indexed map[string]any, block, field string, r *Result) {
	v, ok := indexed[block]
	if !ok {
		r.AddError(fmt.Sprintf("indexed_state missing %q", block))
		return
	}
	m, ok := v.(map[string]any)
	if !ok {
		r.AddError(block + " must be an object")
		return
	}

	if val, ok := m[field]; ok {
		checkRange(val, 0.0, 1.0, block+"."+field, r)
	} else {
		r.AddError(fmt.Sprintf("%s missing %q", block, field))
	}

	var extra []string
	for key := range m {
		if key != field {
			extra = append(extra, key)
		}
	}
	if len(extra) > 0 {
		r.AddError(fmt.Sprintf("%s contains extra fields: %v", block, extra))
	}
}

func episodeCrosslinks(data model.Episode) *Result {
	r := newResult()
	r.AddInfo("phase 4: crosslinks validation")

	snapshot := getMap(data, "emotive_snapshot")
	if snapshot == nil {
		return r
	}
	raw, ok := snapshot["crosslinks"]
	if !ok {
		return r
	}
	crosslinks, ok := raw.(map[string]any)
	if !ok {
		r.AddError("crosslinks must be an object")
		return r
	}

	valid := asSet(model.CrosslinkTypes)
	for key, value := range crosslinks {
		if !valid[key] {
			r.AddError(fmt.Sprintf("invalid crosslink type: %q", key))
			continue
		}
		switch v := value.(type) {
		case map[string]any:
			// Crosslinks are ID references; a fat nested object is
			// suspected embedded state.
			for subKey, subValue := range v {
				if m, ok := subValue.(map[string]any); ok && len(m) > 5 {
					r.AddWarning(fmt.Sprintf("crosslinks.%s.%s looks like embedded state (should be ID only)", key, subKey))
				}
			}
		case []any:
			for _, item := range v {
				if _, ok := item.(string); !ok {
					r.AddError(fmt.Sprintf("crosslinks.%s should contain ID strings, not %T", key, item))
				}
			}
		}
	}

	return r
}

func episodeForbidden(data model.Episode) *Result {
	r := newResult()
	r.AddInfo("phase 5: forbidden content check")
	scanForbidden(data, episodicForbidden, r, "")
	return r
}
