package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/freshair129/eva-msp/internal/confidence"
	"github.com/freshair129/eva-msp/internal/model"
)

func newTestOrigin(t *testing.T) *Origin {
	t.Helper()
	return NewOrigin(t.TempDir(), "EVA")
}

func semanticEntry(concept string, conf float64) model.SemanticEntry {
	return model.SemanticEntry{
		SemanticID:      "sem_S01_" + concept,
		Concept:         concept,
		Definition:      "definition of " + concept,
		EpistemicStatus: confidence.StatusFor(conf),
		Confidence:      conf,
		ResolutionState: confidence.StateResolved,
		DerivedFrom:     &model.DerivedFrom{EpisodeID: "ep_S01_001_abc"},
	}
}

func writeEpisodicBuffer(t *testing.T, o *Origin, instanceID string, episodes ...model.Episode) {
	t.Helper()
	doc := model.EpisodicDocument{
		System:     o.Name,
		InstanceID: instanceID,
		Episodes:   episodes,
	}
	if err := SaveJSON(o.EpisodicBufferPath(instanceID), doc); err != nil {
		t.Fatalf("write episodic buffer: %v", err)
	}
}

func writeSemanticBuffer(t *testing.T, o *Origin, instanceID string, entries ...model.SemanticEntry) {
	t.Helper()
	doc := model.SemanticDocument{Entries: entries}
	if err := SaveJSON(o.SemanticBufferPath(instanceID), doc); err != nil {
		t.Fatalf("write semantic buffer: %v", err)
	}
}

func TestConsolidateMergesAndBumpsVersion(t *testing.T) {
	o := newTestOrigin(t)
	writeEpisodicBuffer(t, o, "inst1",
		model.Episode{"episode_id": "ep_1"},
		model.Episode{"episode_id": "ep_2"},
	)
	writeSemanticBuffer(t, o, "inst1", semanticEntry("coffee_preference", 0.9))

	res, err := o.Consolidate("inst1", time.Now())
	if err != nil {
		t.Fatalf("consolidate: %v", err)
	}

	if res.NewVersion != 2 {
		t.Errorf("version = %d, want 2", res.NewVersion)
	}
	if res.EpisodesMerged != 2 {
		t.Errorf("episodes merged = %d, want 2", res.EpisodesMerged)
	}
	if res.SemanticMerged != 1 {
		t.Errorf("semantic merged = %d, want 1", res.SemanticMerged)
	}

	master := o.LoadEpisodic()
	if len(master.Episodes) != 2 {
		t.Errorf("master episodes = %d, want 2", len(master.Episodes))
	}

	// Buffer is cleared after a successful commit.
	if _, err := os.Stat(o.InstancePath("inst1")); !os.IsNotExist(err) {
		t.Error("expected instance buffer removed")
	}
}

func TestConsolidateIntoEmptyOrigin(t *testing.T) {
	o := newTestOrigin(t)
	writeEpisodicBuffer(t, o, "inst1", model.Episode{"episode_id": "ep_1"})
	writeSemanticBuffer(t, o, "inst1", semanticEntry("coffee_preference", 0.9))

	// The master memory directories do not exist before the first commit.
	if _, err := os.Stat(filepath.Dir(o.EpisodicPath())); !os.IsNotExist(err) {
		t.Fatal("expected episodic master directory absent before consolidation")
	}

	res, err := o.Consolidate("inst1", time.Now())
	if err != nil {
		t.Fatalf("consolidate into empty origin: %v", err)
	}
	if res.NewVersion != 2 {
		t.Errorf("version = %d, want 2", res.NewVersion)
	}
	if got := len(o.LoadEpisodic().Episodes); got != 1 {
		t.Errorf("master episodes = %d, want 1", got)
	}
	if got := len(o.LoadSemantic().Entries); got != 1 {
		t.Errorf("master entries = %d, want 1", got)
	}
}

func TestConsolidateConfidenceGate(t *testing.T) {
	o := newTestOrigin(t)
	writeSemanticBuffer(t, o, "inst1",
		semanticEntry("below_gate", 0.69),
		semanticEntry("at_gate", 0.70),
		semanticEntry("above_gate", 0.71),
	)

	res, err := o.Consolidate("inst1", time.Now())
	if err != nil {
		t.Fatalf("consolidate: %v", err)
	}

	if res.SemanticMerged != 1 {
		t.Errorf("merged = %d, want 1 (only > 0.70)", res.SemanticMerged)
	}
	if res.SemanticSkipped != 2 {
		t.Errorf("skipped = %d, want 2", res.SemanticSkipped)
	}

	master := o.LoadSemantic()
	if len(master.Entries) != 1 || master.Entries[0].Concept != "above_gate" {
		t.Errorf("master entries = %+v, want only above_gate", master.Entries)
	}
}

func TestConsolidateDedupKeepsHigherConfidence(t *testing.T) {
	o := newTestOrigin(t)

	existing := model.SemanticDocument{Entries: []model.SemanticEntry{
		semanticEntry("coffee_preference", 0.72),
	}}
	if err := SaveJSON(o.SemanticPath(), existing); err != nil {
		t.Fatalf("seed master: %v", err)
	}

	writeSemanticBuffer(t, o, "inst1", semanticEntry("coffee_preference", 0.90))

	if _, err := o.Consolidate("inst1", time.Now()); err != nil {
		t.Fatalf("consolidate: %v", err)
	}

	master := o.LoadSemantic()
	if len(master.Entries) != 1 {
		t.Fatalf("entries = %d, want 1 (deduplicated)", len(master.Entries))
	}
	if master.Entries[0].Confidence != 0.90 {
		t.Errorf("confidence = %v, want 0.90 (higher side wins)", master.Entries[0].Confidence)
	}
}

func TestConsolidateDedupKeepsExistingWhenHigher(t *testing.T) {
	o := newTestOrigin(t)

	existing := model.SemanticDocument{Entries: []model.SemanticEntry{
		semanticEntry("coffee_preference", 0.95),
	}}
	if err := SaveJSON(o.SemanticPath(), existing); err != nil {
		t.Fatalf("seed master: %v", err)
	}

	writeSemanticBuffer(t, o, "inst1", semanticEntry("coffee_preference", 0.75))

	if _, err := o.Consolidate("inst1", time.Now()); err != nil {
		t.Fatalf("consolidate: %v", err)
	}

	master := o.LoadSemantic()
	if master.Entries[0].Confidence != 0.95 {
		t.Errorf("confidence = %v, want existing 0.95 kept", master.Entries[0].Confidence)
	}
}

func TestConsolidateNoBuffersIsNoOp(t *testing.T) {
	o := newTestOrigin(t)

	res, err := o.Consolidate("ghost", time.Now())
	if err != nil {
		t.Fatalf("consolidate: %v", err)
	}
	if !res.NoOp {
		t.Error("expected no-op")
	}
	if res.NewVersion != 1 {
		t.Errorf("version = %d, want unchanged 1", res.NewVersion)
	}
}

func TestConsolidateCreatesBackupFirst(t *testing.T) {
	o := newTestOrigin(t)

	seeded := model.EpisodicDocument{System: "EVA", Episodes: []model.Episode{{"episode_id": "ep_old"}}}
	if err := SaveJSON(o.EpisodicPath(), seeded); err != nil {
		t.Fatalf("seed master: %v", err)
	}

	writeEpisodicBuffer(t, o, "inst1", model.Episode{"episode_id": "ep_new"})

	res, err := o.Consolidate("inst1", time.Now())
	if err != nil {
		t.Fatalf("consolidate: %v", err)
	}
	if res.BackupPath == "" {
		t.Fatal("expected backup path")
	}

	// Backup holds the pre-merge state: one episode, named for v1.
	var backedUp model.EpisodicDocument
	if !LoadJSON(filepath.Join(res.BackupPath, DirEpisodic, FileEpisodic), &backedUp) {
		t.Fatal("backup episodic file missing")
	}
	if len(backedUp.Episodes) != 1 || backedUp.Episodes[0].ID() != "ep_old" {
		t.Errorf("backup episodes = %+v, want pre-merge state", backedUp.Episodes)
	}

	backups, err := o.ListBackups()
	if err != nil {
		t.Fatalf("list backups: %v", err)
	}
	if len(backups) != 1 {
		t.Fatalf("backups = %d, want 1", len(backups))
	}
	if backups[0].Metadata.PrevVersion != 1 {
		t.Errorf("prev_version = %d, want 1", backups[0].Metadata.PrevVersion)
	}
}

func TestRestoreRollsBackConsolidation(t *testing.T) {
	o := newTestOrigin(t)

	seeded := model.EpisodicDocument{System: "EVA", Episodes: []model.Episode{{"episode_id": "ep_old"}}}
	if err := SaveJSON(o.EpisodicPath(), seeded); err != nil {
		t.Fatalf("seed master: %v", err)
	}
	writeEpisodicBuffer(t, o, "inst1", model.Episode{"episode_id": "ep_new"})

	res, err := o.Consolidate("inst1", time.Now())
	if err != nil {
		t.Fatalf("consolidate: %v", err)
	}
	if got := len(o.LoadEpisodic().Episodes); got != 2 {
		t.Fatalf("post-merge episodes = %d, want 2", got)
	}

	if err := o.Restore(res.BackupPath, time.Now()); err != nil {
		t.Fatalf("restore: %v", err)
	}

	if got := len(o.LoadEpisodic().Episodes); got != 1 {
		t.Errorf("restored episodes = %d, want 1", got)
	}
	if o.Version() != 1 {
		t.Errorf("restored version = %d, want 1", o.Version())
	}
}

func TestRestoreRejectsNonBackupDir(t *testing.T) {
	o := newTestOrigin(t)
	dir := t.TempDir()
	if err := o.Restore(dir, time.Now()); err == nil {
		t.Error("expected error for directory without backup metadata")
	}
}

func TestVersionDefaultsToOne(t *testing.T) {
	o := newTestOrigin(t)
	if o.Version() != 1 {
		t.Errorf("version = %d, want 1", o.Version())
	}
	if err := o.IncrementVersion(time.Now()); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if o.Version() != 2 {
		t.Errorf("version = %d, want 2", o.Version())
	}
}

func TestLoadJSONSoftFails(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	out := map[string]any{"kept": true}
	if LoadJSON(bad, &out) {
		t.Error("expected false for malformed JSON")
	}
	if LoadJSON(filepath.Join(dir, "missing.json"), &out) {
		t.Error("expected false for missing file")
	}
}
