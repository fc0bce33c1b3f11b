package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "delete-buffer",
		Short: "Discard the instance buffer without consolidating",
		Long:  "Remove the active instance's buffer tree. Irreversible: nothing reaches Origin.",
		Run:   runDeleteBuffer,
	}

	cmd.Flags().Bool("yes", false, "Confirm deletion")

	RootCmd.AddCommand(cmd)
}

func runDeleteBuffer(cmd *cobra.Command, args []string) {
	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		exitErr("delete buffer", fmt.Errorf("refusing without --yes: buffered writes are discarded permanently"))
	}

	m, _ := openMSP(cmd)
	instanceID := m.InstanceID()

	if err := m.DeleteBuffer(); err != nil {
		exitErr("delete buffer", err)
	}
	saveMSP(m)

	printResult(map[string]string{"deleted": instanceID}, func() string {
		return "buffer deleted for " + instanceID
	})
}
