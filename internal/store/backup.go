package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/freshair129/eva-msp/internal/model"
)

// BackupError indicates the pre-consolidation snapshot failed. Nothing has
// been mutated when this is returned.
type BackupError struct {
	Err error
}

func (e *BackupError) Error() string { return fmt.Sprintf("backup failed: %v", e.Err) }
func (e *BackupError) Unwrap() error { return e.Err }

// backupDirs are the Origin memory directories captured in every backup.
var backupDirs = []string{DirEpisodic, DirSemantic, DirSensory, DirUserBlock}

// CreateBackup snapshots Origin's memory directories into a fresh
// Backups/Origin_v<version>_<timestamp>/ tree before any consolidation
// mutation. Backups are never automatically deleted.
func (o *Origin) CreateBackup(instanceID string, now time.Time) (string, error) {
	stamp := now.Format("20060102_150405")
	root := filepath.Join(o.BackupsDir(), fmt.Sprintf("Origin_v%d_%s", o.Version(), stamp))

	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", &BackupError{Err: err}
	}

	for _, d := range backupDirs {
		src := filepath.Join(o.BasePath, d)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		if err := copyDir(src, filepath.Join(root, d)); err != nil {
			return "", &BackupError{Err: fmt.Errorf("copy %s: %w", d, err)}
		}
	}

	meta := model.BackupMetadata{
		Timestamp:   model.NowISO(now),
		PrevVersion: o.Version(),
		InstanceID:  instanceID,
	}
	if err := SaveJSON(filepath.Join(root, "backup_metadata.json"), meta); err != nil {
		return "", &BackupError{Err: fmt.Errorf("write metadata: %w", err)}
	}

	return root, nil
}

// BackupInfo pairs a backup directory with its recorded metadata.
type BackupInfo struct {
	Path     string               `json:"path"`
	Metadata model.BackupMetadata `json:"metadata"`
}

// ListBackups returns all backups, oldest first.
func (o *Origin) ListBackups() ([]BackupInfo, error) {
	matches, err := filepath.Glob(filepath.Join(o.BackupsDir(), "Origin_v*"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	var backups []BackupInfo
	for _, dir := range matches {
		info := BackupInfo{Path: dir}
		LoadJSON(filepath.Join(dir, "backup_metadata.json"), &info.Metadata)
		backups = append(backups, info)
	}
	return backups, nil
}

// Restore copies a backup's memory directories back over Origin and
// restores the recorded version. This is the manual recovery path for a
// failed consolidation.
func (o *Origin) Restore(backupPath string, now time.Time) error {
	var meta model.BackupMetadata
	if !LoadJSON(filepath.Join(backupPath, "backup_metadata.json"), &meta) {
		return fmt.Errorf("restore: %s is not a backup directory (missing backup_metadata.json)", backupPath)
	}

	for _, d := range backupDirs {
		src := filepath.Join(backupPath, d)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		dst := filepath.Join(o.BasePath, d)
		if err := os.RemoveAll(dst); err != nil {
			return fmt.Errorf("restore: clear %s: %w", d, err)
		}
		if err := copyDir(src, dst); err != nil {
			return fmt.Errorf("restore: copy %s: %w", d, err)
		}
	}

	if meta.PrevVersion > 0 {
		if err := SaveJSON(o.VersionPath(), model.VersionFile{
			Version:   meta.PrevVersion,
			UpdatedAt: model.NowISO(now),
		}); err != nil {
			return fmt.Errorf("restore: version file: %w", err)
		}
	}

	return nil
}
