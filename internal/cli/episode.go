package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/freshair129/eva-msp/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "write-episode [json]",
		Short: "Validate and buffer an episode",
		Long:  "Write an episode into the session buffer. The episode JSON can be a positional arg or piped via stdin.",
		Run:   runWriteEpisode,
	}

	cmd.Flags().String("ri", model.RILevelFull, "RI level: L1, L2, L3, L3+")

	RootCmd.AddCommand(cmd)
}

// readDocArg returns the positional arg, or stdin when piped.
func readDocArg(args []string) string {
	if len(args) > 0 {
		return strings.Join(args, " ")
	}
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		return string(b)
	}
	return ""
}

func runWriteEpisode(cmd *cobra.Command, args []string) {
	riLevel, _ := cmd.Flags().GetString("ri")
	if !model.ValidRILevels[riLevel] {
		exitErr("write episode", fmt.Errorf("invalid ri level %q", riLevel))
	}

	raw := readDocArg(args)
	if strings.TrimSpace(raw) == "" {
		exitErr("write episode", fmt.Errorf("episode JSON required (positional arg or stdin)"))
	}

	var episode model.Episode
	if err := json.Unmarshal([]byte(raw), &episode); err != nil {
		exitErr("parse episode", err)
	}

	m, _ := openMSP(cmd)

	episodeID, err := m.WriteEpisode(episode, riLevel)
	if err != nil {
		exitErr("write episode", err)
	}
	saveMSP(m)

	printResult(map[string]any{
		"episode_id": episodeID,
		"ri_level":   riLevel,
		"count":      m.EpisodeCount(),
	}, func() string {
		return episodeID
	})
}
