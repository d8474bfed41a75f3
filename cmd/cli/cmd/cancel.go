package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <run-id>",
	Short: "Cancel a queued or running run",
	Long: `Cancel a run that has not yet completed. A run that has already
completed or been cancelled returns an error.

Examples:
  enginecore cancel abc12345-GPU-CUDAExecutionProvider`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func init() {
	RootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	c := newClient()
	if err := c.CancelRun(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Run %s cancelled\n", args[0])
	return nil
}
