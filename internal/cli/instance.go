package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "instance [id]",
		Short: "Create an isolated write instance",
		Long:  "Create a sandbox instance with its own buffer. Without an ID a collision-safe one is generated.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runInstance,
	}

	RootCmd.AddCommand(cmd)
}

func runInstance(cmd *cobra.Command, args []string) {
	m, _ := openMSP(cmd)

	var id string
	if len(args) > 0 {
		id = args[0]
	}

	instanceID, err := m.CreateInstance(id)
	if err != nil {
		exitErr("create instance", err)
	}
	saveMSP(m)

	printResult(map[string]string{"instance_id": instanceID}, func() string {
		return instanceID
	})
}
