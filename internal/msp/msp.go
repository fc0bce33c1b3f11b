// Package msp implements the Memory & Soul Passport orchestrator: the
// façade composing validation, confidence scoring, session-scoped buffered
// writes, and backup-guarded consolidation into the Origin store.
//
// Lifecycle: LoadOrigin → CreateInstance → StartSession → WriteEpisode /
// WriteSemantic / WriteSensory → EndSession → ConsolidateToInstance /
// ConsolidateToOrigin.
package msp

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/freshair129/eva-msp/internal/confidence"
	"github.com/freshair129/eva-msp/internal/model"
	"github.com/freshair129/eva-msp/internal/store"
	"github.com/freshair129/eva-msp/internal/validate"
)

// MaxEpisodesPerSession caps writes within one session.
const MaxEpisodesPerSession = 30

var (
	ErrNoOrigin    = errors.New("no origin loaded: call LoadOrigin first")
	ErrNoInstance  = errors.New("no active instance: call CreateInstance first")
	ErrNoSession   = errors.New("no active session: call StartSession first")
	ErrSessionFull = errors.New("session episode capacity reached")
)

// MSP is the orchestrator. Single-writer: one active instance, one active
// session at a time.
type MSP struct {
	origin *store.Origin
	log    *zap.Logger
	mode   validate.Mode
	engine *confidence.Engine

	entropy *rand.Rand

	originLoaded  bool
	parentVersion int
	instanceID    string
	sessionID     string
	episodeCount  int
}

// New creates an orchestrator over the store rooted at basePath. The logger
// is the injected structured-event sink for validation audit events;
// validators themselves never log.
func New(basePath string, mode validate.Mode, log *zap.Logger) *MSP {
	if log == nil {
		log = zap.NewNop()
	}
	return &MSP{
		origin:  store.NewOrigin(basePath, ""),
		log:     log,
		mode:    mode,
		engine:  confidence.NewEngine(),
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Origin exposes the underlying store (read paths for CLI output).
func (m *MSP) Origin() *store.Origin { return m.origin }

// InstanceID returns the active instance ID, or "".
func (m *MSP) InstanceID() string { return m.instanceID }

// SessionID returns the active session ID, or "".
func (m *MSP) SessionID() string { return m.sessionID }

// EpisodeCount returns the episode count of the active session.
func (m *MSP) EpisodeCount() int { return m.episodeCount }

// SetInitialConfidence overrides the seed confidence for new semantic
// entries. Non-positive values keep the default.
func (m *MSP) SetInitialConfidence(v float64) {
	if v > 0 {
		m.engine.InitialConfidence = v
	}
}

func (m *MSP) newULID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), m.entropy).String()
}

// idSuffix is a short lowercase tail for human-scannable IDs.
func (m *MSP) idSuffix(n int) string {
	id := strings.ToLower(m.newULID())
	return id[len(id)-n:]
}

// OriginState is the read-only master snapshot returned by LoadOrigin.
type OriginState struct {
	OriginName    string                 `json:"origin_name"`
	Version       int                    `json:"version"`
	Timestamp     string                 `json:"timestamp"`
	EpisodeCount  int                    `json:"episode_count"`
	SemanticCount int                    `json:"semantic_count"`
	SensoryCount  int                    `json:"sensory_count"`
	SessionCount  int                    `json:"session_count"`
	UserBlock     map[string]any         `json:"user_block,omitempty"`
	Episodic      model.EpisodicDocument `json:"-"`
	Semantic      model.SemanticDocument `json:"-"`
	Sensory       model.SensoryDocument  `json:"-"`
}

// LoadOrigin reads the Origin master files (missing files yield empty
// documents) and records the current version. Must be called before any
// instance operation.
func (m *MSP) LoadOrigin(originName string) (*OriginState, error) {
	m.origin.Name = originName

	state := &OriginState{
		OriginName: originName,
		Version:    m.origin.Version(),
		Timestamp:  model.NowISO(time.Now()),
		Episodic:   m.origin.LoadEpisodic(),
		Semantic:   m.origin.LoadSemantic(),
		Sensory:    m.origin.LoadSensory(),
		UserBlock:  m.origin.LoadUserBlock(),
	}
	state.EpisodeCount = len(state.Episodic.Episodes)
	state.SemanticCount = len(state.Semantic.Entries)
	state.SensoryCount = len(state.Sensory.Entries)
	state.SessionCount = m.origin.CountSessions()

	m.originLoaded = true
	m.parentVersion = state.Version

	m.log.Info("origin loaded",
		zap.String("origin", originName),
		zap.Int("version", state.Version),
		zap.Int("episodes", state.EpisodeCount),
		zap.Int("semantic", state.SemanticCount))

	return state, nil
}

// CreateInstance creates an isolated sandbox cloned (skeleton only) from
// Origin. An empty instanceID auto-generates a collision-safe ULID-based ID.
func (m *MSP) CreateInstance(instanceID string) (string, error) {
	if !m.originLoaded {
		return "", ErrNoOrigin
	}

	if instanceID == "" {
		instanceID = "inst_" + m.newULID()
	}

	if err := m.origin.CreateInstanceDirs(instanceID); err != nil {
		return "", fmt.Errorf("create instance dirs: %w", err)
	}

	meta := model.InstanceMetadata{
		InstanceID:    instanceID,
		OriginName:    m.origin.Name,
		ParentVersion: m.parentVersion,
		CreatedAt:     model.NowISO(time.Now()),
		SessionCount:  0,
		Status:        model.InstanceActive,
	}
	if err := store.SaveJSON(m.origin.InstanceMetadataPath(instanceID), meta); err != nil {
		return "", fmt.Errorf("write instance metadata: %w", err)
	}

	m.instanceID = instanceID
	m.log.Info("instance created",
		zap.String("instance", instanceID),
		zap.Int("parent_version", m.parentVersion))

	return instanceID, nil
}

// StartSession begins a new session in the active instance. An empty
// sessionID auto-increments the persisted session_count in instance
// metadata. The episode counter resets to zero.
func (m *MSP) StartSession(sessionID string) (string, error) {
	if m.instanceID == "" {
		return "", ErrNoInstance
	}

	if sessionID == "" {
		metaPath := m.origin.InstanceMetadataPath(m.instanceID)
		var meta model.InstanceMetadata
		if !store.LoadJSON(metaPath, &meta) || meta.InstanceID == "" {
			return "", fmt.Errorf("instance metadata missing or unreadable for %s", m.instanceID)
		}
		meta.SessionCount++
		sessionID = fmt.Sprintf("S%02d", meta.SessionCount)
		if err := store.SaveJSON(metaPath, meta); err != nil {
			return "", fmt.Errorf("update instance metadata: %w", err)
		}
	}

	m.sessionID = sessionID
	m.episodeCount = 0

	m.log.Info("session started",
		zap.String("session", sessionID),
		zap.String("instance", m.instanceID))

	return sessionID, nil
}

// ApplyRIFilter projects an episode down to its RI level's retained shape.
// L1 keeps id, timestamp, and state; L2 adds the summary; L3+ passes the
// payload through unchanged. Idempotent.
func ApplyRIFilter(episode model.Episode, riLevel string, now time.Time) model.Episode {
	timestamp := episode["timestamp"]
	if timestamp == nil {
		timestamp = model.NowISO(now)
	}

	switch riLevel {
	case model.RILevelL1:
		return model.Episode{
			"episode_id":       episode["episode_id"],
			"timestamp":        timestamp,
			"emotive_snapshot": snapshotOrEmpty(episode),
		}
	case model.RILevelL2:
		summary := episode["summary"]
		if summary == nil {
			summary = ""
		}
		return model.Episode{
			"episode_id":       episode["episode_id"],
			"timestamp":        timestamp,
			"summary":          summary,
			"emotive_snapshot": snapshotOrEmpty(episode),
		}
	default:
		return episode
	}
}

func snapshotOrEmpty(episode model.Episode) any {
	if s, ok := episode["emotive_snapshot"]; ok {
		return s
	}
	return map[string]any{}
}

// WriteEpisode validates an episode proposal, projects it to its RI level,
// stamps system-authoritative msp_metadata, and appends it to the session
// buffer. Fails with ErrSessionFull once the session holds 30 episodes.
func (m *MSP) WriteEpisode(episode model.Episode, riLevel string) (string, error) {
	if m.sessionID == "" {
		return "", ErrNoSession
	}
	if m.episodeCount >= MaxEpisodesPerSession {
		return "", fmt.Errorf("session %s holds %d episodes: %w", m.sessionID, m.episodeCount, ErrSessionFull)
	}

	if m.mode != validate.ModeOff {
		result := validate.Episode(episode, riLevel)
		if !result.Valid {
			if m.mode == validate.ModeStrict {
				m.log.Error("episodic validation failed",
					zap.String("session", m.sessionID),
					zap.Strings("errors", result.Errors))
				return "", &validate.Error{
					Msg:     "episodic validation failed",
					Errors:  result.Errors,
					Context: map[string]any{"ri_level": riLevel},
				}
			}
			m.log.Warn("episodic validation issues",
				zap.String("session", m.sessionID),
				zap.Strings("errors", result.Errors))
		}
		for _, w := range result.Warnings {
			m.log.Warn("episodic validation warning", zap.String("warning", w))
		}
	}

	now := time.Now()
	episodeID := episode.ID()
	if episodeID == "" {
		episodeID = fmt.Sprintf("ep_%s_%03d_%s", m.sessionID, m.episodeCount+1, m.idSuffix(6))
		episode["episode_id"] = episodeID
	}

	filtered := ApplyRIFilter(episode, riLevel, now)

	metadata := model.MSPMetadata{
		WrittenBy:  "MSP",
		InstanceID: m.instanceID,
		SessionID:  m.sessionID,
		RILevel:    riLevel,
		WrittenAt:  model.NowISO(now),
	}
	if pulse, ok := episode["pulse_snapshot"].(map[string]any); ok {
		metadata.PulseSnapshot = pulse
	}
	filtered["msp_metadata"] = metadata

	bufPath := m.origin.EpisodicBufferPath(m.instanceID)
	var buffer model.EpisodicDocument
	if !store.LoadJSON(bufPath, &buffer) || buffer.Episodes == nil {
		buffer = model.EpisodicDocument{
			System:     m.origin.Name,
			InstanceID: m.instanceID,
			SessionID:  m.sessionID,
			Timestamp:  model.NowISO(now),
			Episodes:   []model.Episode{},
		}
	}
	buffer.Episodes = append(buffer.Episodes, filtered)
	if err := store.SaveJSON(bufPath, buffer); err != nil {
		return "", fmt.Errorf("write episodic buffer: %w", err)
	}

	m.episodeCount++
	m.log.Info("episode written",
		zap.String("episode", episodeID),
		zap.String("ri_level", riLevel),
		zap.Int("count", m.episodeCount),
		zap.Int("max", MaxEpisodesPerSession))

	return episodeID, nil
}

// SemanticParams holds a semantic write proposal. Only descriptive fields:
// confidence, status, IDs, and timestamps are MSP-authoritative and
// attached after validation, so a proposer can never forge them.
type SemanticParams struct {
	Concept     string
	Definition  string
	EpisodeID   string
	TurnIDs     []string
	StakesLevel string
}

// WriteSemantic validates a semantic proposal against the buffered entries,
// then attaches the authoritative fields and appends it to the buffer.
func (m *MSP) WriteSemantic(p SemanticParams) (string, error) {
	if m.sessionID == "" {
		return "", ErrNoSession
	}

	stakes := p.StakesLevel
	if stakes == "" {
		stakes = confidence.InferStakes(p.Concept, p.Definition)
	}

	proposal := map[string]any{
		"concept":    p.Concept,
		"definition": p.Definition,
		"derived_from": map[string]any{
			"episode_id": p.EpisodeID,
		},
	}
	if len(p.TurnIDs) > 0 {
		turnIDs := make([]any, len(p.TurnIDs))
		for i, t := range p.TurnIDs {
			turnIDs[i] = t
		}
		proposal["derived_from"].(map[string]any)["turn_ids"] = turnIDs
	}

	bufPath := m.origin.SemanticBufferPath(m.instanceID)
	var buffer model.SemanticDocument
	store.LoadJSON(bufPath, &buffer)

	var conflictsWith []string
	if m.mode != validate.ModeOff {
		result := validate.SemanticProposal(proposal, buffer.Entries)
		if !result.Valid {
			if m.mode == validate.ModeStrict {
				m.log.Error("semantic validation failed",
					zap.String("concept", p.Concept),
					zap.Strings("errors", result.Errors))
				return "", &validate.Error{
					Msg:     "semantic proposal validation failed",
					Errors:  result.Errors,
					Context: map[string]any{"concept": p.Concept},
				}
			}
			m.log.Warn("semantic validation issues",
				zap.String("concept", p.Concept),
				zap.Strings("errors", result.Errors))
		}
		if conflict, ok := result.Context["conflicting_concept"].(string); ok {
			m.log.Warn("semantic conflict detected",
				zap.String("concept", p.Concept),
				zap.String("conflicts_with", conflict))
			conflictsWith = []string{conflict}
		}
	}

	// Authoritative fields are attached only after validation accepts the
	// proposal.
	now := time.Now()
	entry := m.engine.NewEntry(p.Concept, p.Definition, stakes)
	entry.DerivedFrom = &model.DerivedFrom{EpisodeID: p.EpisodeID, TurnIDs: p.TurnIDs}
	entry.ConflictsWith = conflictsWith
	entry.CreatedAt = model.NowISO(now)
	entry.LastUpdated = model.NowISO(now)
	entry.SemanticID = fmt.Sprintf("sem_%s_%s", m.sessionID, m.idSuffix(8))

	if buffer.Entries == nil {
		buffer = model.SemanticDocument{
			System:     m.origin.Name,
			InstanceID: m.instanceID,
			SessionID:  m.sessionID,
			Timestamp:  model.NowISO(now),
			Entries:    []model.SemanticEntry{},
		}
	}
	buffer.Entries = append(buffer.Entries, entry)
	if err := store.SaveJSON(bufPath, buffer); err != nil {
		return "", fmt.Errorf("write semantic buffer: %w", err)
	}

	m.log.Info("semantic written",
		zap.String("concept", p.Concept),
		zap.Float64("confidence", entry.Confidence),
		zap.String("stakes", stakes))

	return entry.SemanticID, nil
}

// UpdateSemantic applies a batch of confidence signals to a buffered entry
// identified by concept. Status and resolution state are re-derived; the
// updated entry is persisted back into the buffer.
func (m *MSP) UpdateSemantic(concept string, signals []confidence.Signal) (*model.SemanticEntry, error) {
	if m.instanceID == "" {
		return nil, ErrNoInstance
	}

	bufPath := m.origin.SemanticBufferPath(m.instanceID)
	var buffer model.SemanticDocument
	if !store.LoadJSON(bufPath, &buffer) {
		return nil, fmt.Errorf("no semantic buffer for instance %s", m.instanceID)
	}

	idx := -1
	for i := range buffer.Entries {
		if buffer.Entries[i].Concept == concept {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("concept %q not found in buffer", concept)
	}

	entry := &buffer.Entries[idx]
	before := entry.Confidence
	m.engine.Update(entry, signals, time.Now())

	if err := store.SaveJSON(bufPath, buffer); err != nil {
		return nil, fmt.Errorf("write semantic buffer: %w", err)
	}

	m.log.Info("semantic updated",
		zap.String("concept", concept),
		zap.Float64("confidence_before", before),
		zap.Float64("confidence", entry.Confidence),
		zap.String("status", entry.EpistemicStatus))

	return entry, nil
}

// WriteSensory stamps the system-authoritative identification fields onto a
// sensory proposal, validates the completed record, and appends it to the
// sensory buffer.
func (m *MSP) WriteSensory(entry model.SensoryEntry) (string, error) {
	if m.sessionID == "" {
		return "", ErrNoSession
	}

	now := time.Now()
	sensoryID := entry.ID()
	if sensoryID == "" {
		sensoryID = fmt.Sprintf("sen_%s_%s", m.sessionID, m.idSuffix(6))
		entry["sensory_id"] = sensoryID
	}
	entry["session_id"] = m.sessionID
	if _, ok := entry["timestamp"]; !ok {
		entry["timestamp"] = model.NowISO(now)
	}

	if m.mode != validate.ModeOff {
		result := validate.Sensory(entry)
		if !result.Valid {
			if m.mode == validate.ModeStrict {
				m.log.Error("sensory validation failed",
					zap.String("sensory_id", sensoryID),
					zap.Strings("errors", result.Errors))
				return "", &validate.Error{
					Msg:     "sensory validation failed",
					Errors:  result.Errors,
					Context: map[string]any{"sensory_id": sensoryID},
				}
			}
			m.log.Warn("sensory validation issues",
				zap.String("sensory_id", sensoryID),
				zap.Strings("errors", result.Errors))
		}
	}

	bufPath := m.origin.SensoryBufferPath(m.instanceID)
	var buffer model.SensoryDocument
	if !store.LoadJSON(bufPath, &buffer) || buffer.Entries == nil {
		buffer = model.SensoryDocument{
			System:     m.origin.Name,
			InstanceID: m.instanceID,
			SessionID:  m.sessionID,
			Timestamp:  model.NowISO(now),
			Entries:    []model.SensoryEntry{},
		}
	}
	buffer.Entries = append(buffer.Entries, entry)
	if err := store.SaveJSON(bufPath, buffer); err != nil {
		return "", fmt.Errorf("write sensory buffer: %w", err)
	}

	m.log.Info("sensory written", zap.String("sensory_id", sensoryID))
	return sensoryID, nil
}

// EndSession folds the buffered episodes and semantic entries into an
// immutable session record and resets session state. The buffer stays
// intact; consolidation, not session end, clears it.
func (m *MSP) EndSession() (*model.SessionRecord, error) {
	if m.sessionID == "" {
		return nil, ErrNoSession
	}

	var episodicBuf model.EpisodicDocument
	store.LoadJSON(m.origin.EpisodicBufferPath(m.instanceID), &episodicBuf)
	var semanticBuf model.SemanticDocument
	store.LoadJSON(m.origin.SemanticBufferPath(m.instanceID), &semanticBuf)

	record := &model.SessionRecord{
		SessionID:       m.sessionID,
		InstanceID:      m.instanceID,
		CreatedAt:       model.NowISO(time.Now()),
		EpisodeCount:    m.episodeCount,
		Episodes:        episodicBuf.Episodes,
		SemanticUpdates: semanticBuf.Entries,
	}

	if err := store.SaveJSON(m.origin.SessionRecordPath(m.sessionID), record); err != nil {
		return nil, fmt.Errorf("write session record: %w", err)
	}

	m.log.Info("session ended",
		zap.String("session", m.sessionID),
		zap.Int("episodes", m.episodeCount))

	m.sessionID = ""
	m.episodeCount = 0

	return record, nil
}

// ConsolidateToInstance marks the instance metadata as a consolidated
// checkpoint. A lightweight operation: buffer and Origin are untouched.
func (m *MSP) ConsolidateToInstance() (string, error) {
	if m.instanceID == "" {
		return "", ErrNoInstance
	}

	metaPath := m.origin.InstanceMetadataPath(m.instanceID)
	var meta model.InstanceMetadata
	store.LoadJSON(metaPath, &meta)
	meta.Status = model.InstanceConsolidated
	meta.ConsolidatedAt = model.NowISO(time.Now())
	if err := store.SaveJSON(metaPath, meta); err != nil {
		return "", fmt.Errorf("update instance metadata: %w", err)
	}

	m.log.Info("instance checkpoint saved", zap.String("instance", m.instanceID))
	return m.instanceID, nil
}

// ConsolidateToOrigin merges the instance buffer into Origin via the
// backup-guarded staged commit, then clears instance and session state.
// The instance metadata file is removed with the buffer, but the session
// records under 04_Session_Memory persist as the audit trail.
func (m *MSP) ConsolidateToOrigin() (*store.ConsolidateResult, error) {
	if m.instanceID == "" {
		return nil, ErrNoInstance
	}

	result, err := m.origin.Consolidate(m.instanceID, time.Now())
	if err != nil {
		m.log.Error("consolidation failed",
			zap.String("instance", m.instanceID),
			zap.Error(err))
		return nil, err
	}

	if result.NoOp {
		m.log.Warn("no buffers found to consolidate", zap.String("instance", m.instanceID))
		return result, nil
	}

	m.log.Info("consolidated to origin",
		zap.String("instance", m.instanceID),
		zap.Int("new_version", result.NewVersion),
		zap.Int("episodes", result.EpisodesMerged),
		zap.Int("semantic", result.SemanticMerged),
		zap.Int("semantic_skipped", result.SemanticSkipped))

	m.instanceID = ""
	m.sessionID = ""
	m.episodeCount = 0
	m.parentVersion = result.NewVersion

	return result, nil
}

// DeleteBuffer removes the instance buffer tree and clears instance and
// session state. Irreversible without a prior backup.
func (m *MSP) DeleteBuffer() error {
	if m.instanceID == "" {
		return ErrNoInstance
	}

	if err := m.origin.DeleteInstanceBuffer(m.instanceID); err != nil {
		return fmt.Errorf("delete buffer: %w", err)
	}

	m.log.Info("buffer deleted", zap.String("instance", m.instanceID))

	m.instanceID = ""
	m.sessionID = ""
	m.episodeCount = 0

	return nil
}
