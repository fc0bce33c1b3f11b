package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/freshair129/eva-msp/internal/confidence"
)

func init() {
	cmd := &cobra.Command{
		Use:   "signal <concept> <signal>...",
		Short: "Apply confidence signals to a buffered semantic entry",
		Long: "Apply one or more confidence signals (repeated_occurrence, user_affirmation,\n" +
			"contradiction_by_user, ...) to a buffered entry. Confidence, epistemic status,\n" +
			"and resolution state are recomputed.",
		Args: cobra.MinimumNArgs(2),
		Run:  runSignal,
	}

	RootCmd.AddCommand(cmd)
}

func runSignal(cmd *cobra.Command, args []string) {
	concept := args[0]

	var signals []confidence.Signal
	for _, s := range args[1:] {
		sig, err := confidence.ParseSignal(strings.ToLower(s))
		if err != nil {
			exitErr("signal", err)
		}
		signals = append(signals, sig)
	}

	m, _ := openMSP(cmd)

	entry, err := m.UpdateSemantic(concept, signals)
	if err != nil {
		exitErr("update semantic", err)
	}

	printResult(entry, func() string {
		return fmt.Sprintf("%s: confidence %.2f (%s, %s)",
			entry.Concept, entry.Confidence, entry.EpistemicStatus, entry.ResolutionState)
	})
}
