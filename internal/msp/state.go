package msp

import (
	"fmt"
	"path/filepath"

	"github.com/freshair129/eva-msp/internal/store"
)

// contextState persists the active instance and session between CLI
// invocations. It carries no memory content, only which sandbox the next
// command should write into.
type contextState struct {
	OriginName   string `json:"origin_name,omitempty"`
	InstanceID   string `json:"instance_id,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	EpisodeCount int    `json:"episode_count,omitempty"`
}

func (m *MSP) statePath() string {
	return filepath.Join(m.origin.BasePath, "msp_state.json")
}

// RestoreState reloads the persisted CLI context, if any. Restoring an
// origin name implies the origin was loaded in a prior invocation.
func (m *MSP) RestoreState() {
	var st contextState
	if !store.LoadJSON(m.statePath(), &st) {
		return
	}
	if st.OriginName != "" {
		m.origin.Name = st.OriginName
		m.originLoaded = true
		m.parentVersion = m.origin.Version()
	}
	m.instanceID = st.InstanceID
	m.sessionID = st.SessionID
	m.episodeCount = st.EpisodeCount
}

// PersistState writes the current CLI context next to the version file.
func (m *MSP) PersistState() error {
	st := contextState{
		InstanceID:   m.instanceID,
		SessionID:    m.sessionID,
		EpisodeCount: m.episodeCount,
	}
	if m.originLoaded {
		st.OriginName = m.origin.Name
	}
	if err := store.SaveJSON(m.statePath(), st); err != nil {
		return fmt.Errorf("persist context: %w", err)
	}
	return nil
}
