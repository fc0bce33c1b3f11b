package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	start := &cobra.Command{
		Use:   "session [id]",
		Short: "Start a session in the active instance",
		Long:  "Start a session. Without an ID the persisted session counter assigns the next S<NN>.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runSession,
	}
	RootCmd.AddCommand(start)

	end := &cobra.Command{
		Use:   "end-session",
		Short: "End the session and write its immutable record",
		Run:   runEndSession,
	}
	RootCmd.AddCommand(end)
}

func runSession(cmd *cobra.Command, args []string) {
	m, _ := openMSP(cmd)

	var id string
	if len(args) > 0 {
		id = args[0]
	}

	sessionID, err := m.StartSession(id)
	if err != nil {
		exitErr("start session", err)
	}
	saveMSP(m)

	printResult(map[string]string{"session_id": sessionID}, func() string {
		return sessionID
	})
}

func runEndSession(cmd *cobra.Command, args []string) {
	m, _ := openMSP(cmd)

	record, err := m.EndSession()
	if err != nil {
		exitErr("end session", err)
	}
	saveMSP(m)

	printResult(record, func() string {
		return fmt.Sprintf("session %s ended: %d episodes, %d semantic updates",
			record.SessionID, record.EpisodeCount, len(record.SemanticUpdates))
	})
}
