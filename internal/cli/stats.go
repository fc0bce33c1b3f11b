package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show Origin memory statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

type statsOutput struct {
	Version    int            `json:"version"`
	Episodes   int            `json:"episodes"`
	Semantic   int            `json:"semantic"`
	Sensory    int            `json:"sensory"`
	Sessions   int            `json:"sessions"`
	Instances  int            `json:"instances"`
	Backups    int            `json:"backups"`
	ByStatus   map[string]int `json:"semantic_by_status,omitempty"`
	Suppressed int            `json:"semantic_suppressed"`
}

func runStats(cmd *cobra.Command, args []string) {
	m, _ := openMSP(cmd)
	origin := m.Origin()

	semantic := origin.LoadSemantic()
	byStatus := map[string]int{}
	suppressed := 0
	for _, e := range semantic.Entries {
		byStatus[e.EpistemicStatus]++
		if e.ResolutionState == "suppressed" {
			suppressed++
		}
	}

	backups, _ := origin.ListBackups()

	out := statsOutput{
		Version:    origin.Version(),
		Episodes:   len(origin.LoadEpisodic().Episodes),
		Semantic:   len(semantic.Entries),
		Sensory:    len(origin.LoadSensory().Entries),
		Sessions:   origin.CountSessions(),
		Instances:  origin.CountInstances(),
		Backups:    len(backups),
		ByStatus:   byStatus,
		Suppressed: suppressed,
	}

	printResult(out, func() string {
		return fmt.Sprintf("v%d: %d episodes, %d semantic (%d suppressed), %d sensory, %d sessions, %d backups",
			out.Version, out.Episodes, out.Semantic, out.Suppressed, out.Sensory, out.Sessions, out.Backups)
	})
}
