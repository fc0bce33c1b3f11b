// Package model defines the core memory data types.
package model

import "time"

// RI levels control how much of an episode is retained.
const (
	RILevelL1   = "L1"
	RILevelL2   = "L2"
	RILevelL3   = "L3"
	RILevelFull = "L3+"
)

// ValidRILevels are the allowed RI levels.
var ValidRILevels = map[string]bool{
	RILevelL1:   true,
	RILevelL2:   true,
	RILevelL3:   true,
	RILevelFull: true,
}

// ValidEpisodeTypes are the allowed episode_type values.
var ValidEpisodeTypes = []string{"interaction", "observation", "system_event"}

// ValidInteractionModes are the allowed interaction_mode values.
var ValidInteractionModes = []string{"casual", "discussion", "deep_discussion", "crisis"}

// ValidLevels are the allowed stakes_level and time_pressure values.
var ValidLevels = []string{"low", "medium", "high"}

// ValidSpeakers are the allowed speaker values.
var ValidSpeakers = []string{"user", "eva"}

// ValidAffectiveStatuses are the allowed epistemic_status values inside an
// affective_inference block. Certainty claims are never allowed there.
var ValidAffectiveStatuses = []string{"hypothesize", "speculate"}

// CrosslinkTypes are the only legal crosslink keys.
var CrosslinkTypes = []string{
	"ess_refs", "eva_matrix_refs", "rms_refs",
	"semantic_refs", "sensory_refs", "gks_refs",
}

// EvaMatrixAxes are the exactly-four required axes of indexed_state.eva_matrix.
var EvaMatrixAxes = []string{"stress_load", "social_warmth", "drive_level", "cognitive_clarity"}

// ValidDataTypes are the allowed sensory data_type values.
var ValidDataTypes = []string{"text", "audio", "visual", "multimodal"}

// ValidCaptureChannels are the allowed data_source.capture_channel values.
var ValidCaptureChannels = []string{"user_input", "system_ui", "external_sensor"}

// AllowedSensoryFeatures are the only legal feature_snapshot keys
// (measurable features, never interpretations).
var AllowedSensoryFeatures = []string{"pitch", "volume", "tempo", "pause_length", "tone_descriptor"}

// Episode is a single unit of episodic memory. The payload shape depends on
// the RI level, so it stays a dynamic document validated at the boundary.
type Episode map[string]any

// ID returns the episode_id, or "" if absent.
func (e Episode) ID() string {
	id, _ := e["episode_id"].(string)
	return id
}

// MSPMetadata is the system-authoritative block stamped onto every written
// episode. It is never supplied by a proposal.
type MSPMetadata struct {
	WrittenBy     string         `json:"written_by"`
	InstanceID    string         `json:"instance_id"`
	SessionID     string         `json:"session_id"`
	RILevel       string         `json:"ri_level"`
	WrittenAt     string         `json:"written_at"`
	PulseSnapshot map[string]any `json:"pulse_snapshot,omitempty"`
}

// DerivedFrom records the episode a semantic entry was derived from.
type DerivedFrom struct {
	EpisodeID string   `json:"episode_id"`
	TurnIDs   []string `json:"turn_ids,omitempty"`
}

// SemanticEntry is one deduplicated concept with its epistemic state.
type SemanticEntry struct {
	SemanticID               string         `json:"semantic_id,omitempty"`
	Concept                  string         `json:"concept"`
	Definition               string         `json:"definition"`
	EpistemicStatus          string         `json:"epistemic_status"`
	Confidence               float64        `json:"confidence"`
	ResolutionState          string         `json:"resolution_state,omitempty"`
	SignalHistory            map[string]int `json:"signal_history,omitempty"`
	ClarificationAttempts    int            `json:"clarification_attempts"`
	MaxClarificationAttempts int            `json:"max_clarification_attempts,omitempty"`
	StakesLevel              string         `json:"stakes_level,omitempty"`
	DerivedFrom              *DerivedFrom   `json:"derived_from,omitempty"`
	ConflictsWith            []string       `json:"conflicts_with,omitempty"`
	ForcedExit               bool           `json:"forced_exit,omitempty"`
	CreatedAt                string         `json:"created_at,omitempty"`
	LastUpdated              string         `json:"last_updated,omitempty"`
}

// SensoryEntry is a descriptive-only record; interpretation is forbidden and
// enforced by validation, so the document stays dynamic.
type SensoryEntry map[string]any

// ID returns the sensory_id, or "" if absent.
func (e SensoryEntry) ID() string {
	id, _ := e["sensory_id"].(string)
	return id
}

// EpisodicDocument is the master/buffer shape for episodic memory.
type EpisodicDocument struct {
	System     string    `json:"system"`
	UserID     string    `json:"user_id,omitempty"`
	InstanceID string    `json:"instance_id,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	Timestamp  string    `json:"timestamp"`
	Episodes   []Episode `json:"episodes"`
}

// SemanticDocument is the master/buffer shape for semantic memory.
type SemanticDocument struct {
	System     string          `json:"system,omitempty"`
	InstanceID string          `json:"instance_id,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
	Timestamp  string          `json:"timestamp,omitempty"`
	Entries    []SemanticEntry `json:"entries"`
}

// SensoryDocument is the master/buffer shape for sensory memory.
type SensoryDocument struct {
	System     string         `json:"system,omitempty"`
	InstanceID string         `json:"instance_id,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	Timestamp  string         `json:"timestamp,omitempty"`
	Entries    []SensoryEntry `json:"entries"`
}

// Instance statuses.
const (
	InstanceActive       = "active"
	InstanceConsolidated = "consolidated_instance"
)

// InstanceMetadata is the audit record of a sandbox instance.
type InstanceMetadata struct {
	InstanceID     string `json:"instance_id"`
	OriginName     string `json:"origin_name"`
	ParentVersion  int    `json:"parent_version"`
	CreatedAt      string `json:"created_at"`
	SessionCount   int    `json:"session_count"`
	Status         string `json:"status"`
	ConsolidatedAt string `json:"consolidated_at,omitempty"`
}

// SessionRecord is the immutable snapshot produced by EndSession.
type SessionRecord struct {
	SessionID       string          `json:"session_id"`
	InstanceID      string          `json:"instance_id"`
	CreatedAt       string          `json:"created_at"`
	EpisodeCount    int             `json:"episode_count"`
	Episodes        []Episode       `json:"episodes"`
	SemanticUpdates []SemanticEntry `json:"semantic_updates"`
}

// BackupMetadata describes a pre-consolidation Origin snapshot.
type BackupMetadata struct {
	Timestamp   string `json:"timestamp"`
	PrevVersion int    `json:"prev_version"`
	InstanceID  string `json:"instance_id"`
}

// VersionFile is the persisted Origin version counter.
type VersionFile struct {
	Version   int    `json:"version"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// NowISO formats t as RFC3339 UTC, the timestamp format used in every
// MSP document.
func NowISO(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
