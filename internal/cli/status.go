package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current context and Origin version",
		Run:   runStatus,
	}

	RootCmd.AddCommand(cmd)
}

type statusOutput struct {
	BasePath     string `json:"base_path"`
	Origin       string `json:"origin,omitempty"`
	Version      int    `json:"version"`
	InstanceID   string `json:"instance_id,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	EpisodeCount int    `json:"episode_count"`
	Instances    int    `json:"instances"`
	Sessions     int    `json:"sessions"`
}

func runStatus(cmd *cobra.Command, args []string) {
	m, cfg := openMSP(cmd)
	origin := m.Origin()

	out := statusOutput{
		BasePath:     cfg.BasePath,
		Origin:       origin.Name,
		Version:      origin.Version(),
		InstanceID:   m.InstanceID(),
		SessionID:    m.SessionID(),
		EpisodeCount: m.EpisodeCount(),
		Instances:    origin.CountInstances(),
		Sessions:     origin.CountSessions(),
	}

	printResult(out, func() string {
		s := fmt.Sprintf("origin %s v%d at %s", out.Origin, out.Version, out.BasePath)
		if out.InstanceID != "" {
			s += fmt.Sprintf("\ninstance %s", out.InstanceID)
		}
		if out.SessionID != "" {
			s += fmt.Sprintf("\nsession %s (%d episodes)", out.SessionID, out.EpisodeCount)
		}
		return s
	})
}
