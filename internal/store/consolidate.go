package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/freshair129/eva-msp/internal/confidence"
	"github.com/freshair129/eva-msp/internal/model"
	"github.com/freshair129/eva-msp/internal/validate"
)

// ConsolidationError wraps any failure between buffer load and version
// bump. The pre-consolidation backup is the recovery path.
type ConsolidationError struct {
	Stage string
	Err   error
}

func (e *ConsolidationError) Error() string {
	return fmt.Sprintf("consolidation failed at %s: %v", e.Stage, e.Err)
}

func (e *ConsolidationError) Unwrap() error { return e.Err }

// ConsolidateResult summarizes one consolidation run.
type ConsolidateResult struct {
	NewVersion      int    `json:"new_version"`
	BackupPath      string `json:"backup_path,omitempty"`
	NoOp            bool   `json:"no_op,omitempty"`
	EpisodesMerged  int    `json:"episodes_merged"`
	SemanticMerged  int    `json:"semantic_merged"`
	SemanticSkipped int    `json:"semantic_skipped"`
	SensoryMerged   int    `json:"sensory_merged"`
	SensorySkipped  int    `json:"sensory_skipped"`
}

// Consolidate merges an instance's buffered writes into Origin:
//
//  1. backup Origin (abort before any mutation on failure)
//  2. load buffers (no buffers at all is a no-op)
//  3. merge in memory: episodic append-only, semantic confidence-gated and
//     deduplicated by concept, sensory re-validated
//  4. staged commit: write every merged master to a staging file, verify
//     all of them, then apply ordered renames — a failure before the first
//     rename leaves Origin untouched
//  5. bump the version, re-check the written masters, delete the buffer
func (o *Origin) Consolidate(instanceID string, now time.Time) (*ConsolidateResult, error) {
	backupPath, err := o.CreateBackup(instanceID, now)
	if err != nil {
		return nil, err
	}

	res := &ConsolidateResult{BackupPath: backupPath}

	var (
		episodicBuf model.EpisodicDocument
		semanticBuf model.SemanticDocument
		sensoryBuf  model.SensoryDocument
	)
	haveEpisodic := LoadJSON(o.EpisodicBufferPath(instanceID), &episodicBuf)
	haveSemantic := LoadJSON(o.SemanticBufferPath(instanceID), &semanticBuf)
	haveSensory := LoadJSON(o.SensoryBufferPath(instanceID), &sensoryBuf)

	if !haveEpisodic && !haveSemantic && !haveSensory {
		res.NoOp = true
		res.NewVersion = o.Version()
		return res, nil
	}

	episodicDoc := o.mergeEpisodic(episodicBuf, now, res)
	semanticDoc := o.mergeSemantic(semanticBuf, res)
	sensoryDoc := o.mergeSensory(sensoryBuf, res)

	if err := o.commitStaged(episodicDoc, semanticDoc, sensoryDoc, now); err != nil {
		return nil, err
	}

	if err := o.VerifyIntegrity(); err != nil {
		return nil, err
	}

	res.NewVersion = o.Version()

	if err := o.DeleteInstanceBuffer(instanceID); err != nil {
		return nil, &ConsolidationError{Stage: "cleanup", Err: err}
	}

	return res, nil
}

// mergeEpisodic appends all buffered episodes verbatim. Episodic memory is
// strictly append-only.
func (o *Origin) mergeEpisodic(buf model.EpisodicDocument, now time.Time, res *ConsolidateResult) model.EpisodicDocument {
	master := o.LoadEpisodic()
	if master.Episodes == nil {
		master = model.EpisodicDocument{
			System:   o.Name,
			UserID:   "User01",
			Episodes: []model.Episode{},
		}
	}
	master.Episodes = append(master.Episodes, buf.Episodes...)
	master.Timestamp = model.NowISO(now)
	res.EpisodesMerged = len(buf.Episodes)
	return master
}

// mergeSemantic gates each buffered entry on the consolidation threshold
// plus a structural re-validation, then deduplicates against Origin by
// concept, keeping whichever side has higher confidence.
func (o *Origin) mergeSemantic(buf model.SemanticDocument, res *ConsolidateResult) model.SemanticDocument {
	master := o.LoadSemantic()
	if master.Entries == nil {
		master.Entries = []model.SemanticEntry{}
	}

	var accepted []model.SemanticEntry
	for _, entry := range buf.Entries {
		if !confidence.ShouldConsolidate(entry.Confidence) {
			res.SemanticSkipped++
			continue
		}
		if !validate.SemanticRecord(entry).Valid {
			res.SemanticSkipped++
			continue
		}
		accepted = append(accepted, entry)
	}

	index := make(map[string]int, len(master.Entries))
	for i, entry := range master.Entries {
		index[entry.Concept] = i
	}

	for _, entry := range accepted {
		if i, ok := index[entry.Concept]; ok {
			if entry.Confidence > master.Entries[i].Confidence {
				master.Entries[i] = entry
			}
		} else {
			index[entry.Concept] = len(master.Entries)
			master.Entries = append(master.Entries, entry)
		}
	}

	res.SemanticMerged = len(accepted)
	return model.SemanticDocument{Entries: master.Entries}
}

// mergeSensory appends only entries that still pass the sensory validator.
func (o *Origin) mergeSensory(buf model.SensoryDocument, res *ConsolidateResult) model.SensoryDocument {
	master := o.LoadSensory()
	if master.Entries == nil {
		master.Entries = []model.SensoryEntry{}
	}

	for _, entry := range buf.Entries {
		if validate.Sensory(entry).Valid {
			master.Entries = append(master.Entries, entry)
			res.SensoryMerged++
		} else {
			res.SensorySkipped++
		}
	}

	return model.SensoryDocument{Entries: master.Entries}
}

// commitStaged writes every merged master plus the bumped version file to
// staging paths, verifies the staged content, and only then applies the
// renames. Origin is untouched until all staged files have been verified.
func (o *Origin) commitStaged(episodic model.EpisodicDocument, semantic model.SemanticDocument, sensory model.SensoryDocument, now time.Time) error {
	type staged struct {
		path        string
		doc         any
		requiredKey string
	}
	files := []staged{
		{o.EpisodicPath(), episodic, "episodes"},
		{o.SemanticPath(), semantic, "entries"},
		{o.SensoryPath(), sensory, "entries"},
		{o.VersionPath(), model.VersionFile{Version: o.Version() + 1, UpdatedAt: model.NowISO(now)}, "version"},
	}

	stagingPaths := make([]string, len(files))
	for i, f := range files {
		stagingPaths[i] = f.path + ".staged"
	}

	for _, f := range files {
		if err := writeStaging(f.path+".staged", f.doc); err != nil {
			removeStaging(stagingPaths)
			return &ConsolidationError{Stage: "stage", Err: err}
		}
	}

	for _, f := range files {
		if err := verifyDocument(f.path+".staged", f.requiredKey); err != nil {
			removeStaging(stagingPaths)
			return &ConsolidationError{Stage: "verify", Err: err}
		}
	}

	for _, f := range files {
		if err := os.Rename(f.path+".staged", f.path); err != nil {
			return &ConsolidationError{Stage: "commit", Err: err}
		}
	}

	return nil
}

func writeStaging(path string, doc any) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func removeStaging(paths []string) {
	for _, p := range paths {
		os.Remove(p)
	}
}

// verifyDocument asserts a file holds non-empty valid JSON with its
// required top-level key.
func verifyDocument(path, requiredKey string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	doc := map[string]any{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if len(doc) == 0 {
		return fmt.Errorf("%s is empty", path)
	}
	if _, ok := doc[requiredKey]; !ok {
		return fmt.Errorf("%s missing required key %q", path, requiredKey)
	}
	return nil
}

// VerifyIntegrity re-reads the written Origin masters as a secondary check
// after commit. The staged verification is the primary guard.
func (o *Origin) VerifyIntegrity() error {
	checks := []struct {
		path        string
		requiredKey string
	}{
		{o.EpisodicPath(), "episodes"},
		{o.SemanticPath(), "entries"},
		{o.SensoryPath(), "entries"},
	}
	for _, c := range checks {
		if _, err := os.Stat(c.path); os.IsNotExist(err) {
			continue
		}
		if err := verifyDocument(c.path, c.requiredKey); err != nil {
			return &ConsolidationError{Stage: "post-commit verify", Err: err}
		}
	}
	return nil
}
