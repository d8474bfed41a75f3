package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/olivefarm/enginecore/cmd/cli/format"
)

var acceleratorsCatalog bool

var acceleratorsCmd = &cobra.Command{
	Use:   "accelerators",
	Short: "List accelerators the server resolves runs against",
	Long: `List the accelerator specs (device + execution provider pairs)
the server currently resolves runs against. With --catalog, list the
AWS instance-type capability catalog instead.

Examples:
  enginecore accelerators
  enginecore accelerators --catalog -o json`,
	Args: cobra.NoArgs,
	RunE: runAccelerators,
}

func init() {
	acceleratorsCmd.Flags().BoolVar(&acceleratorsCatalog, "catalog", false, "list the instance-type accelerator capability catalog instead")
	RootCmd.AddCommand(acceleratorsCmd)
}

func runAccelerators(cmd *cobra.Command, args []string) error {
	c := newClient()
	ctx := context.Background()

	if acceleratorsCatalog {
		caps, err := c.ListAcceleratorCatalog(ctx)
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(caps))
		for _, cap := range caps {
			rows = append(rows, []string{cap.InstanceType, cap.AcceleratorName, fmt.Sprintf("%d", cap.AcceleratorCount)})
		}
		return format.Rows(getFormat(), []string{"Instance Type", "Accelerator", "Count"}, rows, caps)
	}

	specs, err := c.ListAccelerators(ctx)
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(specs))
	for _, s := range specs {
		rows = append(rows, []string{s})
	}
	return format.Rows(getFormat(), []string{"Accelerator"}, rows, specs)
}
