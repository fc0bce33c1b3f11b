package store

import (
	"os"
	"path/filepath"
	"time"

	"github.com/freshair129/eva-msp/internal/model"
)

// Origin memory directory names. The numbering mirrors the on-disk layout
// the rest of the system reads.
const (
	DirEpisodic  = "01_Episodic_memory"
	DirSemantic  = "02_Semantic_memory"
	DirSensory   = "03_Sensory_memory"
	DirSession   = "04_Session_Memory"
	DirUserBlock = "07_User_block"
	DirBuffer    = "Buffer"
	DirBackups   = "Backups"

	FileEpisodic  = "Episodic_memory.json"
	FileSemantic  = "Semantic_memory.json"
	FileSensory   = "Sensory_memory.json"
	FileUserBlock = "User_Block.json"
	FileVersion   = "version.json"
)

// Origin is the single authoritative, versioned memory store. It is
// read-only to everything except the consolidation step.
type Origin struct {
	BasePath string
	Name     string
}

// NewOrigin opens the Origin store rooted at basePath.
func NewOrigin(basePath, name string) *Origin {
	return &Origin{BasePath: basePath, Name: name}
}

func (o *Origin) EpisodicPath() string {
	return filepath.Join(o.BasePath, DirEpisodic, FileEpisodic)
}

func (o *Origin) SemanticPath() string {
	return filepath.Join(o.BasePath, DirSemantic, FileSemantic)
}

func (o *Origin) SensoryPath() string {
	return filepath.Join(o.BasePath, DirSensory, FileSensory)
}

func (o *Origin) UserBlockPath() string {
	return filepath.Join(o.BasePath, DirUserBlock, FileUserBlock)
}

func (o *Origin) VersionPath() string {
	return filepath.Join(o.BasePath, FileVersion)
}

func (o *Origin) SessionDir() string {
	return filepath.Join(o.BasePath, DirSession)
}

// SessionRecordPath is where EndSession writes the immutable record.
func (o *Origin) SessionRecordPath(sessionID string) string {
	return filepath.Join(o.SessionDir(), "Session_memory_"+sessionID+".json")
}

func (o *Origin) BufferDir() string {
	return filepath.Join(o.BasePath, DirBuffer)
}

// InstancePath is the buffer directory owned by one instance.
func (o *Origin) InstancePath(instanceID string) string {
	return filepath.Join(o.BufferDir(), "instance_"+instanceID)
}

func (o *Origin) InstanceMetadataPath(instanceID string) string {
	return filepath.Join(o.InstancePath(instanceID), "metadata.json")
}

// Buffer file paths inside an instance, mirroring the Origin layout.
func (o *Origin) EpisodicBufferPath(instanceID string) string {
	return filepath.Join(o.InstancePath(instanceID), DirEpisodic, FileEpisodic)
}

func (o *Origin) SemanticBufferPath(instanceID string) string {
	return filepath.Join(o.InstancePath(instanceID), DirSemantic, FileSemantic)
}

func (o *Origin) SensoryBufferPath(instanceID string) string {
	return filepath.Join(o.InstancePath(instanceID), DirSensory, FileSensory)
}

func (o *Origin) BackupsDir() string {
	return filepath.Join(o.BasePath, DirBackups)
}

// Version returns the current Origin version, defaulting to 1 when no
// version file exists yet.
func (o *Origin) Version() int {
	var v model.VersionFile
	if !LoadJSON(o.VersionPath(), &v) || v.Version == 0 {
		return 1
	}
	return v.Version
}

// IncrementVersion persists version+1.
func (o *Origin) IncrementVersion(now time.Time) error {
	return SaveJSON(o.VersionPath(), model.VersionFile{
		Version:   o.Version() + 1,
		UpdatedAt: model.NowISO(now),
	})
}

// LoadEpisodic reads the episodic master. Missing or malformed files yield
// an empty skeleton.
func (o *Origin) LoadEpisodic() model.EpisodicDocument {
	var doc model.EpisodicDocument
	LoadJSON(o.EpisodicPath(), &doc)
	return doc
}

// LoadSemantic reads the semantic master.
func (o *Origin) LoadSemantic() model.SemanticDocument {
	var doc model.SemanticDocument
	LoadJSON(o.SemanticPath(), &doc)
	return doc
}

// LoadSensory reads the sensory master.
func (o *Origin) LoadSensory() model.SensoryDocument {
	var doc model.SensoryDocument
	LoadJSON(o.SensoryPath(), &doc)
	return doc
}

// LoadUserBlock reads the user block as a raw document.
func (o *Origin) LoadUserBlock() map[string]any {
	doc := map[string]any{}
	LoadJSON(o.UserBlockPath(), &doc)
	return doc
}

// CountSessions counts persisted session records.
func (o *Origin) CountSessions() int {
	matches, err := filepath.Glob(filepath.Join(o.SessionDir(), "Session_memory_*.json"))
	if err != nil {
		return 0
	}
	return len(matches)
}

// CountInstances counts instance buffer directories.
func (o *Origin) CountInstances() int {
	matches, err := filepath.Glob(filepath.Join(o.BufferDir(), "instance_*"))
	if err != nil {
		return 0
	}
	return len(matches)
}

// CreateInstanceDirs clones the Origin directory skeleton (not content)
// into a fresh instance buffer.
func (o *Origin) CreateInstanceDirs(instanceID string) error {
	for _, d := range []string{DirEpisodic, DirSemantic, DirSensory} {
		if err := os.MkdirAll(filepath.Join(o.InstancePath(instanceID), d), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// DeleteInstanceBuffer removes an instance's buffer tree. Irreversible
// without a prior backup.
func (o *Origin) DeleteInstanceBuffer(instanceID string) error {
	return os.RemoveAll(o.InstancePath(instanceID))
}
