package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/freshair129/eva-msp/internal/index"
)

func init() {
	recall := &cobra.Command{
		Use:   "recall [query]",
		Short: "Search consolidated memory by keyword",
		Long:  "Search the recall index over consolidated Origin memory. The index is derived; reindex rebuilds it.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRecall,
	}
	recall.Flags().String("kind", "", "Filter by kind: episodic or semantic")
	recall.Flags().IntP("limit", "l", 20, "Max results")
	RootCmd.AddCommand(recall)

	reindex := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the recall index from Origin",
		Run:   runReindex,
	}
	RootCmd.AddCommand(reindex)
}

func runRecall(cmd *cobra.Command, args []string) {
	kind, _ := cmd.Flags().GetString("kind")
	limit, _ := cmd.Flags().GetInt("limit")
	query := strings.Join(args, " ")

	_, cfg := openMSP(cmd)

	idx, err := index.Open(cfg.ResolvedIndexPath())
	if err != nil {
		exitErr("open index", err)
	}
	defer idx.Close()

	results, err := idx.Search(cmd.Context(), query, kind, limit)
	if err != nil {
		exitErr("recall", err)
	}

	if len(results) == 0 {
		fmt.Println("[]")
		return
	}

	printResult(results, func() string {
		var lines []string
		for _, r := range results {
			lines = append(lines, fmt.Sprintf("[%s] %s: %s", r.Kind, r.RefID, r.Title))
		}
		return strings.Join(lines, "\n")
	})
}

func runReindex(cmd *cobra.Command, args []string) {
	m, cfg := openMSP(cmd)

	idx, err := index.Open(cfg.ResolvedIndexPath())
	if err != nil {
		exitErr("open index", err)
	}
	defer idx.Close()

	count, err := idx.Rebuild(cmd.Context(), m.Origin())
	if err != nil {
		exitErr("reindex", err)
	}

	printResult(map[string]int{"indexed": count}, func() string {
		return fmt.Sprintf("indexed %d records", count)
	})
}
