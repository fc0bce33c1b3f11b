package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/freshair129/eva-msp/internal/model"
)

// Sensory validates a sensory entry. Sensory memory records evidence, not
// meaning: phase 2 is the critical interpretation scan. Phases: structure,
// interpretation detection, data-type consistency, forbidden fields.
func Sensory(entry model.SensoryEntry) *Result {
	result := newResult()
	result.Merge(sensoryStructural(entry))
	result.Merge(sensoryInterpretation(entry))
	result.Merge(sensoryDataType(entry))
	result.Merge(sensoryForbiddenFields(entry))
	return result
}

func sensoryStructural(entry model.SensoryEntry) *Result {
	r := newResult()
	r.AddInfo("phase 1: structural validation")

	checkRequired(entry, []string{
		"sensory_id", "session_id", "episode_ref", "timestamp",
		"data_type", "data_source", "sensory_payload",
	}, r)

	if v, ok := entry["data_type"]; ok {
		checkEnum(v, model.ValidDataTypes, "data_type", r)
	}

	if raw, ok := entry["data_source"]; ok {
		source, isMap := raw.(map[string]any)
		if !isMap {
			r.AddError("'data_source' must be an object")
		} else {
			if _, ok := source["source_name"]; !ok {
				r.AddError("'data_source' missing 'source_name'")
			}
			if channel, ok := source["capture_channel"]; ok {
				checkEnum(channel, model.ValidCaptureChannels, "data_source.capture_channel", r)
			} else {
				r.AddError("'data_source' missing 'capture_channel'")
			}
		}
	}

	if raw, ok := entry["sensory_payload"]; ok {
		if _, isMap := raw.(map[string]any); !isMap {
			r.AddError("'sensory_payload' must be an object")
		}
	}

	return r
}

// sensoryInterpretation rejects interpretive language in raw_content and
// non-measurable keys in feature_snapshot. This phase is what keeps sensory
// memory descriptive-only.
func sensoryInterpretation(entry model.SensoryEntry) *Result {
	r := newResult()
	r.AddInfo("phase 2: interpretation detection")

	payload := getMap(entry, "sensory_payload")

	if raw := getString(payload, "raw_content"); raw != "" {
		if detected := detectInterpretiveKeywords(raw); len(detected) > 0 {
			r.AddError(fmt.Sprintf("interpretive language detected in raw_content: %v", detected))
		}
	}

	if snapshot := getMap(payload, "feature_snapshot"); snapshot != nil {
		allowed := asSet(model.AllowedSensoryFeatures)
		var invalid []string
		for key := range snapshot {
			if !allowed[key] {
				invalid = append(invalid, key)
			}
		}
		if len(invalid) > 0 {
			sort.Strings(invalid)
			r.AddError(fmt.Sprintf("invalid features in feature_snapshot: %v (only measurable features allowed: %v)",
				invalid, model.AllowedSensoryFeatures))
		}
	}

	return r
}

func detectInterpretiveKeywords(text string) []string {
	lower := strings.ToLower(text)
	var detected []string
	for _, keyword := range interpretiveKeywords {
		if strings.Contains(lower, keyword) {
			detected = append(detected, keyword)
		}
	}
	return detected
}

func sensoryDataType(entry model.SensoryEntry) *Result {
	r := newResult()
	r.AddInfo("phase 3: data type consistency")

	if getString(entry, "data_type") != "audio" {
		return r
	}

	payload := getMap(entry, "sensory_payload")
	snapshot := getMap(payload, "feature_snapshot")
	if len(snapshot) == 0 {
		return r
	}

	for _, f := range []string{"pitch", "volume", "tempo"} {
		if _, ok := snapshot[f]; ok {
			return r
		}
	}
	r.AddWarning("data_type is 'audio' but no audio features (pitch/volume/tempo) found")
	return r
}

func sensoryForbiddenFields(entry model.SensoryEntry) *Result {
	r := newResult()
	r.AddInfo("phase 4: forbidden fields check")
	scanForbidden(entry, sensoryForbidden, r, "")
	return r
}
