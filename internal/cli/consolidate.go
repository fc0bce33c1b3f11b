package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/freshair129/eva-msp/internal/index"
)

func init() {
	checkpoint := &cobra.Command{
		Use:   "checkpoint",
		Short: "Mark the instance as a consolidated checkpoint",
		Long:  "Record an instance-level checkpoint in the instance metadata. Buffer and Origin are untouched.",
		Run:   runCheckpoint,
	}
	RootCmd.AddCommand(checkpoint)

	consolidate := &cobra.Command{
		Use:   "consolidate",
		Short: "Merge the instance buffer into Origin",
		Long: "Back up Origin, merge the buffered writes through the staged commit,\n" +
			"bump the version, clear the buffer, and refresh the recall index.",
		Run: runConsolidate,
	}
	RootCmd.AddCommand(consolidate)
}

func runCheckpoint(cmd *cobra.Command, args []string) {
	m, _ := openMSP(cmd)

	instanceID, err := m.ConsolidateToInstance()
	if err != nil {
		exitErr("checkpoint", err)
	}
	saveMSP(m)

	printResult(map[string]string{"instance_id": instanceID}, func() string {
		return "checkpoint saved for " + instanceID
	})
}

func runConsolidate(cmd *cobra.Command, args []string) {
	m, cfg := openMSP(cmd)

	result, err := m.ConsolidateToOrigin()
	if err != nil {
		exitErr("consolidate", err)
	}
	saveMSP(m)

	if !result.NoOp {
		// Index refresh is best-effort; the index is rebuildable via reindex.
		if idx, err := index.Open(cfg.ResolvedIndexPath()); err == nil {
			idx.Rebuild(cmd.Context(), m.Origin())
			idx.Close()
		}
	}

	printResult(result, func() string {
		if result.NoOp {
			return "nothing to consolidate"
		}
		return fmt.Sprintf("consolidated to v%d: %d episodes, %d semantic (%d skipped), backup %s",
			result.NewVersion, result.EpisodesMerged,
			result.SemanticMerged, result.SemanticSkipped, result.BackupPath)
	})
}
