package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/olivefarm/enginecore/cmd/cli/format"
	"github.com/olivefarm/enginecore/internal/catalog"
)

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Check the status of a run",
	Long: `Fetch the current status of one run (one accelerator within a
run group, as returned by "enginecore run").

Examples:
  enginecore status abc12345-GPU-CUDAExecutionProvider
  enginecore status abc12345-GPU-CUDAExecutionProvider -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	RootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	c := newClient()
	runID := args[0]

	run, err := c.GetRun(context.Background(), runID)
	if err != nil {
		return err
	}

	if getFormat() == format.FormatJSON {
		return format.JSON(run)
	}

	fmt.Printf("Run ID:       %s\n", run.ID)
	fmt.Printf("Accelerator:  %s\n", run.AcceleratorKey)
	fmt.Printf("Status:       %s\n", run.Status)
	fmt.Printf("Input model:  %s\n", run.InputModelID)
	if run.StartedAt != nil {
		fmt.Printf("Started:      %s\n", run.StartedAt.Format("2006-01-02 15:04:05 UTC"))
	}
	if run.CompletedAt != nil {
		fmt.Printf("Completed:    %s\n", run.CompletedAt.Format("2006-01-02 15:04:05 UTC"))
	}
	if run.Status == catalog.StatusCompleted {
		fmt.Printf("\nFetch results: enginecore footprint %s / enginecore pareto %s\n", run.ID, run.ID)
	}
	return nil
}
