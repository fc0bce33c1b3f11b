package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	list := &cobra.Command{
		Use:   "backups",
		Short: "List Origin backups",
		Run:   runBackups,
	}
	RootCmd.AddCommand(list)

	restore := &cobra.Command{
		Use:   "restore <backup-dir>",
		Short: "Restore Origin from a backup",
		Long:  "Copy a backup's memory directories back over Origin and restore its recorded version.",
		Args:  cobra.ExactArgs(1),
		Run:   runRestore,
	}
	restore.Flags().Bool("yes", false, "Confirm restore")
	RootCmd.AddCommand(restore)
}

func runBackups(cmd *cobra.Command, args []string) {
	m, _ := openMSP(cmd)

	backups, err := m.Origin().ListBackups()
	if err != nil {
		exitErr("list backups", err)
	}

	printResult(backups, func() string {
		if len(backups) == 0 {
			return "no backups"
		}
		s := ""
		for _, b := range backups {
			s += fmt.Sprintf("%s (v%d, %s)\n", b.Path, b.Metadata.PrevVersion, b.Metadata.Timestamp)
		}
		return s[:len(s)-1]
	})
}

func runRestore(cmd *cobra.Command, args []string) {
	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		exitErr("restore", fmt.Errorf("refusing without --yes: restore overwrites current Origin memory"))
	}

	m, _ := openMSP(cmd)

	if err := m.Origin().Restore(args[0], time.Now()); err != nil {
		exitErr("restore", err)
	}

	printResult(map[string]any{
		"restored_from": args[0],
		"version":       m.Origin().Version(),
	}, func() string {
		return fmt.Sprintf("restored from %s (v%d)", args[0], m.Origin().Version())
	})
}
