package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var footprintCmd = &cobra.Command{
	Use:   "footprint <run-id>",
	Short: "Fetch the provenance footprint for a completed run",
	Long: `Fetch the full footprint DAG recorded for a run: every pass
application and evaluation, keyed by (pass name, input number, config
hash, accelerator), along with the metrics each node produced.

Examples:
  enginecore footprint abc12345-GPU-CUDAExecutionProvider`,
	Args: cobra.ExactArgs(1),
	RunE: runFootprint,
}

func init() {
	RootCmd.AddCommand(footprintCmd)
}

func runFootprint(cmd *cobra.Command, args []string) error {
	c := newClient()
	raw, err := c.GetFootprint(context.Background(), args[0])
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(raw))
	return err
}
