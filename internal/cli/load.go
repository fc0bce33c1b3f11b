package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "load [origin-name]",
		Short: "Load the Origin master state",
		Long:  "Load the Origin memory masters and record the current version. Must run before instance operations.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runLoad,
	}

	RootCmd.AddCommand(cmd)
}

func runLoad(cmd *cobra.Command, args []string) {
	m, cfg := openMSP(cmd)

	name := cfg.OriginName
	if len(args) > 0 {
		name = args[0]
	}

	state, err := m.LoadOrigin(name)
	if err != nil {
		exitErr("load origin", err)
	}
	saveMSP(m)

	printResult(state, func() string {
		return fmt.Sprintf("origin %s v%d: %d episodes, %d semantic, %d sensory, %d sessions",
			state.OriginName, state.Version,
			state.EpisodeCount, state.SemanticCount, state.SensoryCount, state.SessionCount)
	})
}
