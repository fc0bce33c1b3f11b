package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/freshair129/eva-msp/internal/msp"
)

func init() {
	cmd := &cobra.Command{
		Use:   "write-semantic",
		Short: "Propose a semantic entry",
		Long: "Propose a concept/definition pair derived from an episode. Confidence,\n" +
			"epistemic status, and IDs are system-assigned, never proposed.",
		Run: runWriteSemantic,
	}

	cmd.Flags().StringP("concept", "c", "", "Concept key, snake_case (required)")
	cmd.Flags().StringP("definition", "d", "", "Definition (required)")
	cmd.Flags().StringP("episode", "e", "", "Source episode ID (required)")
	cmd.Flags().String("turns", "", "Comma-separated source turn IDs")
	cmd.Flags().String("stakes", "", "Stakes level: low, medium, high (default: inferred)")

	cmd.MarkFlagRequired("concept")
	cmd.MarkFlagRequired("definition")
	cmd.MarkFlagRequired("episode")

	RootCmd.AddCommand(cmd)
}

func runWriteSemantic(cmd *cobra.Command, args []string) {
	concept, _ := cmd.Flags().GetString("concept")
	definition, _ := cmd.Flags().GetString("definition")
	episodeID, _ := cmd.Flags().GetString("episode")
	turnsStr, _ := cmd.Flags().GetString("turns")
	stakes, _ := cmd.Flags().GetString("stakes")

	var turnIDs []string
	for _, t := range strings.Split(turnsStr, ",") {
		if t = strings.TrimSpace(t); t != "" {
			turnIDs = append(turnIDs, t)
		}
	}

	m, _ := openMSP(cmd)

	semanticID, err := m.WriteSemantic(msp.SemanticParams{
		Concept:     concept,
		Definition:  definition,
		EpisodeID:   episodeID,
		TurnIDs:     turnIDs,
		StakesLevel: stakes,
	})
	if err != nil {
		exitErr("write semantic", err)
	}
	saveMSP(m)

	printResult(map[string]string{
		"semantic_id": semanticID,
		"concept":     concept,
	}, func() string {
		return semanticID
	})
}
