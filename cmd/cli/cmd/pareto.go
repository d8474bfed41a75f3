package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var paretoCmd = &cobra.Command{
	Use:   "pareto <run-id>",
	Short: "Fetch the Pareto-optimal configurations for a completed run",
	Long: `Fetch the subset of a run's footprint that sits on the Pareto
frontier across its tracked metrics.

Examples:
  enginecore pareto abc12345-GPU-CUDAExecutionProvider`,
	Args: cobra.ExactArgs(1),
	RunE: runPareto,
}

func init() {
	RootCmd.AddCommand(paretoCmd)
}

func runPareto(cmd *cobra.Command, args []string) error {
	c := newClient()
	raw, err := c.GetPareto(context.Background(), args[0])
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(raw))
	return err
}
