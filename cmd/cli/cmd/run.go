package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/olivefarm/enginecore/cmd/cli/client"
	"github.com/olivefarm/enginecore/cmd/cli/format"
)

var (
	runPackage      bool
	runManifestName string
)

var runCmd = &cobra.Command{
	Use:   "run <input-model-path>",
	Short: "Start a search run against an input model",
	Long: `Submit a new engine run for an input model, resolved across every
accelerator the server's declared target and execution providers produce.

Examples:
  enginecore run ./models/resnet50.json
  enginecore run ./models/resnet50.json -o json
  enginecore run ./models/resnet50.json --package --manifest-name frontier.json`,
	Args: cobra.ExactArgs(1),
	RunE: submitRun,
}

func init() {
	runCmd.Flags().BoolVar(&runPackage, "package", false, "package the run's Pareto frontier artifacts once it finishes")
	runCmd.Flags().StringVar(&runManifestName, "manifest-name", "", "packaged manifest filename (default manifest.json, requires --package)")
	RootCmd.AddCommand(runCmd)
}

func submitRun(cmd *cobra.Command, args []string) error {
	c := newClient()

	var pkg *client.PackagingConfig
	if runPackage {
		pkg = &client.PackagingConfig{Enabled: true, ManifestName: runManifestName}
	}

	resp, err := c.CreateRun(context.Background(), args[0], pkg)
	if err != nil {
		return err
	}

	switch getFormat() {
	case format.FormatJSON:
		return format.JSON(resp)
	default:
		fmt.Printf("Run group submitted: %s\n", resp.GroupID)
		for _, r := range resp.Runs {
			fmt.Printf("  %s  accelerator=%s  status=%s\n", r.ID, r.Accelerator, r.Status)
		}
		fmt.Printf("Track progress: enginecore status <run-id>\n")
		return nil
	}
}
