package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/freshair129/eva-msp/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "write-sensory [json]",
		Short: "Validate and buffer a sensory record",
		Long:  "Write a descriptive sensory record into the session buffer. Interpretation fields are rejected.",
		Run:   runWriteSensory,
	}

	RootCmd.AddCommand(cmd)
}

func runWriteSensory(cmd *cobra.Command, args []string) {
	raw := readDocArg(args)
	if strings.TrimSpace(raw) == "" {
		exitErr("write sensory", fmt.Errorf("sensory JSON required (positional arg or stdin)"))
	}

	var entry model.SensoryEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		exitErr("parse sensory", err)
	}

	m, _ := openMSP(cmd)

	sensoryID, err := m.WriteSensory(entry)
	if err != nil {
		exitErr("write sensory", err)
	}
	saveMSP(m)

	printResult(map[string]string{"sensory_id": sensoryID}, func() string {
		return sensoryID
	})
}
