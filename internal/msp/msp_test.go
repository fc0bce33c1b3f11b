package msp

import (
	"errors"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/freshair129/eva-msp/internal/confidence"
	"github.com/freshair129/eva-msp/internal/model"
	"github.com/freshair129/eva-msp/internal/store"
	"github.com/freshair129/eva-msp/internal/validate"
)

func newTestMSP(t *testing.T, mode validate.Mode) *MSP {
	t.Helper()
	return New(t.TempDir(), mode, zap.NewNop())
}

func fullEpisode() model.Episode {
	return model.Episode{
		"episode_header": map[string]any{
			"episode_type": "interaction",
		},
		"situation_context": map[string]any{
			"interaction_mode": "casual",
			"stakes_level":     "low",
			"time_pressure":    "low",
		},
		"turns": []any{
			map[string]any{"turn_id": "t1", "speaker": "user", "text": "I prefer espresso"},
			map[string]any{"turn_id": "t2", "speaker": "eva", "text": "noted"},
		},
		"summary": "coffee preferences discussed",
		"emotive_snapshot": map[string]any{
			"indexed_state": map[string]any{
				"eva_matrix": map[string]any{
					"stress_load":       0.2,
					"social_warmth":     0.7,
					"drive_level":       0.5,
					"cognitive_clarity": 0.9,
				},
				"qualia": map[string]any{"intensity": 0.4},
				"reflex": map[string]any{"threat_level": 0.1},
			},
		},
	}
}

func setupSession(t *testing.T, m *MSP) {
	t.Helper()
	if _, err := m.LoadOrigin("EVA"); err != nil {
		t.Fatalf("load origin: %v", err)
	}
	if _, err := m.CreateInstance(""); err != nil {
		t.Fatalf("create instance: %v", err)
	}
	if _, err := m.StartSession(""); err != nil {
		t.Fatalf("start session: %v", err)
	}
}

func TestLifecycleOrdering(t *testing.T) {
	m := newTestMSP(t, validate.ModeStrict)

	if _, err := m.CreateInstance(""); !errors.Is(err, ErrNoOrigin) {
		t.Errorf("instance before load: got %v, want ErrNoOrigin", err)
	}
	if _, err := m.StartSession(""); !errors.Is(err, ErrNoInstance) {
		t.Errorf("session before instance: got %v, want ErrNoInstance", err)
	}
	if _, err := m.WriteEpisode(fullEpisode(), model.RILevelFull); !errors.Is(err, ErrNoSession) {
		t.Errorf("write before session: got %v, want ErrNoSession", err)
	}
}

func TestAutoIDs(t *testing.T) {
	m := newTestMSP(t, validate.ModeStrict)
	if _, err := m.LoadOrigin("EVA"); err != nil {
		t.Fatal(err)
	}

	instanceID, err := m.CreateInstance("")
	if err != nil {
		t.Fatalf("create instance: %v", err)
	}
	if !strings.HasPrefix(instanceID, "inst_") {
		t.Errorf("instance ID %q, want inst_ prefix", instanceID)
	}

	s1, err := m.StartSession("")
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if s1 != "S01" {
		t.Errorf("first session = %q, want S01", s1)
	}

	s2, _ := m.StartSession("")
	if s2 != "S02" {
		t.Errorf("second session = %q, want S02", s2)
	}
}

func TestWriteEpisodeStampsMetadata(t *testing.T) {
	m := newTestMSP(t, validate.ModeStrict)
	setupSession(t, m)

	ep := fullEpisode()
	ep["pulse_snapshot"] = map[string]any{"valence": 0.6}

	episodeID, err := m.WriteEpisode(ep, model.RILevelFull)
	if err != nil {
		t.Fatalf("write episode: %v", err)
	}
	if !strings.HasPrefix(episodeID, "ep_S01_001_") {
		t.Errorf("episode ID %q, want ep_S01_001_ prefix", episodeID)
	}

	var buffer model.EpisodicDocument
	if !store.LoadJSON(m.Origin().EpisodicBufferPath(m.InstanceID()), &buffer) {
		t.Fatal("buffer not written")
	}
	if len(buffer.Episodes) != 1 {
		t.Fatalf("buffer episodes = %d, want 1", len(buffer.Episodes))
	}

	meta, ok := buffer.Episodes[0]["msp_metadata"].(map[string]any)
	if !ok {
		t.Fatalf("msp_metadata missing or wrong shape: %T", buffer.Episodes[0]["msp_metadata"])
	}
	if meta["written_by"] != "MSP" {
		t.Errorf("written_by = %v, want MSP", meta["written_by"])
	}
	if meta["session_id"] != "S01" {
		t.Errorf("session_id = %v, want S01", meta["session_id"])
	}
	if pulse, ok := meta["pulse_snapshot"].(map[string]any); !ok || pulse["valence"] != 0.6 {
		t.Errorf("pulse_snapshot not carried through: %v", meta["pulse_snapshot"])
	}
}

func TestWriteEpisodeStrictRejectsInvalid(t *testing.T) {
	m := newTestMSP(t, validate.ModeStrict)
	setupSession(t, m)

	ep := fullEpisode()
	ep["salience_score"] = 0.9

	_, err := m.WriteEpisode(ep, model.RILevelFull)
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verr *validate.Error
	if !errors.As(err, &verr) {
		t.Fatalf("got %T, want *validate.Error", err)
	}
	if m.EpisodeCount() != 0 {
		t.Errorf("episode count = %d, want 0 after rejection", m.EpisodeCount())
	}
}

func TestWriteEpisodeWarnModeAdmits(t *testing.T) {
	m := newTestMSP(t, validate.ModeWarn)
	setupSession(t, m)

	ep := fullEpisode()
	ep["salience_score"] = 0.9

	if _, err := m.WriteEpisode(ep, model.RILevelFull); err != nil {
		t.Fatalf("warn mode should admit: %v", err)
	}
	if m.EpisodeCount() != 1 {
		t.Errorf("episode count = %d, want 1", m.EpisodeCount())
	}
}

func TestSessionCapacity(t *testing.T) {
	m := newTestMSP(t, validate.ModeOff)
	setupSession(t, m)

	for i := 0; i < MaxEpisodesPerSession; i++ {
		if _, err := m.WriteEpisode(model.Episode{"n": i}, model.RILevelFull); err != nil {
			t.Fatalf("episode %d: %v", i, err)
		}
	}

	_, err := m.WriteEpisode(model.Episode{"n": 30}, model.RILevelFull)
	if !errors.Is(err, ErrSessionFull) {
		t.Errorf("31st write: got %v, want ErrSessionFull", err)
	}
}

func TestApplyRIFilterProjection(t *testing.T) {
	now := time.Now()
	ep := fullEpisode()
	ep["episode_id"] = "ep_1"

	l1 := ApplyRIFilter(ep, model.RILevelL1, now)
	if _, ok := l1["turns"]; ok {
		t.Error("L1 must drop turns")
	}
	if _, ok := l1["summary"]; ok {
		t.Error("L1 must drop summary")
	}
	if _, ok := l1["emotive_snapshot"]; !ok {
		t.Error("L1 must keep emotive_snapshot")
	}

	l2 := ApplyRIFilter(ep, model.RILevelL2, now)
	if l2["summary"] != "coffee preferences discussed" {
		t.Errorf("L2 summary = %v", l2["summary"])
	}
	if _, ok := l2["turns"]; ok {
		t.Error("L2 must drop turns")
	}

	full := ApplyRIFilter(ep, model.RILevelFull, now)
	if _, ok := full["turns"]; !ok {
		t.Error("L3+ must keep the full payload")
	}
}

func TestApplyRIFilterIdempotent(t *testing.T) {
	now := time.Now()
	ep := fullEpisode()
	ep["episode_id"] = "ep_1"

	once := ApplyRIFilter(ep, model.RILevelL1, now)
	twice := ApplyRIFilter(once, model.RILevelL1, now.Add(time.Hour))
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("not idempotent:\nonce:  %v\ntwice: %v", once, twice)
	}
}

func TestWriteSemantic(t *testing.T) {
	m := newTestMSP(t, validate.ModeStrict)
	setupSession(t, m)

	semanticID, err := m.WriteSemantic(SemanticParams{
		Concept:    "coffee_preference",
		Definition: "prefers espresso",
		EpisodeID:  "ep_S01_001_abc",
		TurnIDs:    []string{"t1"},
	})
	if err != nil {
		t.Fatalf("write semantic: %v", err)
	}
	if !strings.HasPrefix(semanticID, "sem_S01_") {
		t.Errorf("semantic ID %q, want sem_S01_ prefix", semanticID)
	}

	var buffer model.SemanticDocument
	if !store.LoadJSON(m.Origin().SemanticBufferPath(m.InstanceID()), &buffer) {
		t.Fatal("semantic buffer not written")
	}
	entry := buffer.Entries[0]
	if entry.Confidence != 0.3 {
		t.Errorf("confidence = %v, want initial 0.3", entry.Confidence)
	}
	if entry.EpistemicStatus != "hypothesis" {
		t.Errorf("status = %q, want hypothesis", entry.EpistemicStatus)
	}
	if entry.StakesLevel != "medium" {
		t.Errorf("stakes = %q, want inferred medium", entry.StakesLevel)
	}
	if entry.DerivedFrom == nil || entry.DerivedFrom.EpisodeID != "ep_S01_001_abc" {
		t.Errorf("derived_from = %+v", entry.DerivedFrom)
	}
}

func TestWriteSemanticInfersHighStakes(t *testing.T) {
	m := newTestMSP(t, validate.ModeStrict)
	setupSession(t, m)

	if _, err := m.WriteSemantic(SemanticParams{
		Concept:    "peanut_allergy",
		Definition: "severe reaction to peanuts",
		EpisodeID:  "ep_1",
	}); err != nil {
		t.Fatalf("write semantic: %v", err)
	}

	var buffer model.SemanticDocument
	store.LoadJSON(m.Origin().SemanticBufferPath(m.InstanceID()), &buffer)
	entry := buffer.Entries[0]
	if entry.StakesLevel != "high" {
		t.Errorf("stakes = %q, want high", entry.StakesLevel)
	}
	if entry.MaxClarificationAttempts != 4 {
		t.Errorf("max attempts = %d, want 4", entry.MaxClarificationAttempts)
	}
}

func TestWriteSemanticAnnotatesConflict(t *testing.T) {
	m := newTestMSP(t, validate.ModeStrict)
	setupSession(t, m)

	if _, err := m.WriteSemantic(SemanticParams{
		Concept: "coffee_preference", Definition: "prefers filter", EpisodeID: "ep_1",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.WriteSemantic(SemanticParams{
		Concept: "coffee_preference", Definition: "prefers espresso", EpisodeID: "ep_2",
	}); err != nil {
		t.Fatalf("conflicting proposal should be admitted with annotation: %v", err)
	}

	var buffer model.SemanticDocument
	store.LoadJSON(m.Origin().SemanticBufferPath(m.InstanceID()), &buffer)
	second := buffer.Entries[1]
	if len(second.ConflictsWith) != 1 || second.ConflictsWith[0] != "coffee_preference" {
		t.Errorf("conflicts_with = %v, want [coffee_preference]", second.ConflictsWith)
	}
}

func TestStartSessionRequiresInstanceMetadata(t *testing.T) {
	m := newTestMSP(t, validate.ModeStrict)
	if _, err := m.LoadOrigin("EVA"); err != nil {
		t.Fatalf("load origin: %v", err)
	}
	if _, err := m.CreateInstance("inst_meta"); err != nil {
		t.Fatalf("create instance: %v", err)
	}

	metaPath := m.Origin().InstanceMetadataPath("inst_meta")
	if err := os.WriteFile(metaPath, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Auto-incremented IDs need the persisted session_count; a corrupt
	// metadata file must not be silently replaced with a zero record.
	if _, err := m.StartSession(""); err == nil {
		t.Fatal("expected error for unreadable instance metadata")
	}
	data, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "{not json" {
		t.Error("metadata file was rewritten despite failed load")
	}

	// Caller-supplied session IDs never touch the metadata file.
	if _, err := m.StartSession("S99"); err != nil {
		t.Fatalf("explicit session id: %v", err)
	}
}

func TestUpdateSemanticAppliesSignals(t *testing.T) {
	m := newTestMSP(t, validate.ModeStrict)
	setupSession(t, m)

	if _, err := m.WriteSemantic(SemanticParams{
		Concept: "coffee_preference", Definition: "prefers espresso", EpisodeID: "ep_1",
	}); err != nil {
		t.Fatal(err)
	}

	entry, err := m.UpdateSemantic("coffee_preference", []confidence.Signal{confidence.UserAffirmation})
	if err != nil {
		t.Fatalf("update semantic: %v", err)
	}
	if entry.EpistemicStatus != "confirmed" {
		t.Errorf("status = %q, want confirmed", entry.EpistemicStatus)
	}
	if entry.ResolutionState != "resolved" {
		t.Errorf("resolution = %q, want resolved", entry.ResolutionState)
	}

	// The update persists into the buffer.
	var buffer model.SemanticDocument
	store.LoadJSON(m.Origin().SemanticBufferPath(m.InstanceID()), &buffer)
	if buffer.Entries[0].Confidence < 0.80 {
		t.Errorf("persisted confidence = %v, want >= 0.80", buffer.Entries[0].Confidence)
	}

	if _, err := m.UpdateSemantic("ghost_concept", nil); err == nil {
		t.Error("expected error for unknown concept")
	}
}

func TestWriteSemanticRejectsBadConcept(t *testing.T) {
	m := newTestMSP(t, validate.ModeStrict)
	setupSession(t, m)

	_, err := m.WriteSemantic(SemanticParams{
		Concept: "Coffee Preference", Definition: "x", EpisodeID: "ep_1",
	})
	if err == nil {
		t.Fatal("expected validation error for bad concept format")
	}
}

func TestWriteSensory(t *testing.T) {
	m := newTestMSP(t, validate.ModeStrict)
	setupSession(t, m)

	sensoryID, err := m.WriteSensory(model.SensoryEntry{
		"episode_ref": "ep_S01_001_abc",
		"data_type":   "audio",
		"data_source": map[string]any{
			"source_name":     "microphone",
			"capture_channel": "user_input",
		},
		"sensory_payload": map[string]any{
			"feature_snapshot": map[string]any{"pitch": "rising", "volume": "loud"},
		},
	})
	if err != nil {
		t.Fatalf("write sensory: %v", err)
	}
	if !strings.HasPrefix(sensoryID, "sen_S01_") {
		t.Errorf("sensory ID %q, want sen_S01_ prefix", sensoryID)
	}

	var buffer model.SensoryDocument
	if !store.LoadJSON(m.Origin().SensoryBufferPath(m.InstanceID()), &buffer) {
		t.Fatal("sensory buffer not written")
	}
	if buffer.Entries[0]["session_id"] != "S01" {
		t.Errorf("session_id = %v, want S01", buffer.Entries[0]["session_id"])
	}
}

func TestEndSessionWritesRecord(t *testing.T) {
	m := newTestMSP(t, validate.ModeStrict)
	setupSession(t, m)

	for i := 0; i < 3; i++ {
		if _, err := m.WriteEpisode(fullEpisode(), model.RILevelFull); err != nil {
			t.Fatalf("episode %d: %v", i, err)
		}
	}

	record, err := m.EndSession()
	if err != nil {
		t.Fatalf("end session: %v", err)
	}
	if record.EpisodeCount != 3 {
		t.Errorf("episode count = %d, want 3", record.EpisodeCount)
	}
	if record.SessionID != "S01" {
		t.Errorf("session = %q, want S01", record.SessionID)
	}

	var onDisk model.SessionRecord
	if !store.LoadJSON(m.Origin().SessionRecordPath("S01"), &onDisk) {
		t.Fatal("session record not written")
	}
	if len(onDisk.Episodes) != 3 {
		t.Errorf("record episodes = %d, want 3", len(onDisk.Episodes))
	}

	if m.SessionID() != "" {
		t.Error("session state not cleared")
	}
	// The buffer survives session end; only consolidation clears it.
	var buffer model.EpisodicDocument
	if !store.LoadJSON(m.Origin().EpisodicBufferPath(m.InstanceID()), &buffer) {
		t.Fatal("buffer should survive session end")
	}
}

func TestConsolidateEndToEnd(t *testing.T) {
	m := newTestMSP(t, validate.ModeStrict)
	setupSession(t, m)

	for i := 0; i < 3; i++ {
		if _, err := m.WriteEpisode(fullEpisode(), model.RILevelFull); err != nil {
			t.Fatalf("episode %d: %v", i, err)
		}
	}
	if _, err := m.EndSession(); err != nil {
		t.Fatal(err)
	}

	instanceID := m.InstanceID()
	result, err := m.ConsolidateToOrigin()
	if err != nil {
		t.Fatalf("consolidate: %v", err)
	}

	if result.NewVersion != 2 {
		t.Errorf("version = %d, want 2", result.NewVersion)
	}
	if result.EpisodesMerged != 3 {
		t.Errorf("merged = %d, want 3", result.EpisodesMerged)
	}

	origin := m.Origin()
	if got := len(origin.LoadEpisodic().Episodes); got != 3 {
		t.Errorf("master episodes = %d, want 3", got)
	}

	backups, _ := origin.ListBackups()
	if len(backups) != 1 {
		t.Fatalf("backups = %d, want 1", len(backups))
	}
	if backups[0].Metadata.PrevVersion != 1 {
		t.Errorf("backup prev_version = %d, want 1", backups[0].Metadata.PrevVersion)
	}
	if backups[0].Metadata.InstanceID != instanceID {
		t.Errorf("backup instance = %q, want %q", backups[0].Metadata.InstanceID, instanceID)
	}

	if m.InstanceID() != "" {
		t.Error("instance state not cleared after consolidation")
	}
}

func TestConsolidateToInstanceMarksMetadata(t *testing.T) {
	m := newTestMSP(t, validate.ModeStrict)
	setupSession(t, m)

	if _, err := m.ConsolidateToInstance(); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}

	var meta model.InstanceMetadata
	if !store.LoadJSON(m.Origin().InstanceMetadataPath(m.InstanceID()), &meta) {
		t.Fatal("metadata missing")
	}
	if meta.Status != model.InstanceConsolidated {
		t.Errorf("status = %q, want %q", meta.Status, model.InstanceConsolidated)
	}
	if meta.ConsolidatedAt == "" {
		t.Error("consolidated_at not set")
	}
}

func TestDeleteBuffer(t *testing.T) {
	m := newTestMSP(t, validate.ModeOff)
	setupSession(t, m)

	if _, err := m.WriteEpisode(model.Episode{"x": 1}, model.RILevelFull); err != nil {
		t.Fatal(err)
	}
	instanceID := m.InstanceID()

	if err := m.DeleteBuffer(); err != nil {
		t.Fatalf("delete buffer: %v", err)
	}

	var buffer model.EpisodicDocument
	if store.LoadJSON(m.Origin().EpisodicBufferPath(instanceID), &buffer) {
		t.Error("buffer should be gone")
	}
	if m.InstanceID() != "" {
		t.Error("instance state not cleared")
	}
}

func TestStateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := New(dir, validate.ModeOff, zap.NewNop())
	if _, err := m.LoadOrigin("EVA"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateInstance("inst_custom"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.StartSession(""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.WriteEpisode(model.Episode{"x": 1}, model.RILevelFull); err != nil {
		t.Fatal(err)
	}
	if err := m.PersistState(); err != nil {
		t.Fatalf("persist: %v", err)
	}

	restored := New(dir, validate.ModeOff, zap.NewNop())
	restored.RestoreState()

	if restored.InstanceID() != "inst_custom" {
		t.Errorf("instance = %q, want inst_custom", restored.InstanceID())
	}
	if restored.SessionID() != "S01" {
		t.Errorf("session = %q, want S01", restored.SessionID())
	}
	if restored.EpisodeCount() != 1 {
		t.Errorf("episode count = %d, want 1", restored.EpisodeCount())
	}
}
