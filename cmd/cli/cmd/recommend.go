package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/olivefarm/enginecore/cmd/cli/format"
)

var recommendInstanceType, recommendHFToken string

var recommendCmd = &cobra.Command{
	Use:   "recommend <model-id>",
	Short: "Recommend a starting pass config for a model on an instance type",
	Long: `Fetch a feasible tensor-parallel degree, quantization, max model
length and concurrency for a HuggingFace model on an instance type. The
result is a starting point for a PassDescriptor's fixed_config, not a
search space — it does not launch a run.

Examples:
  enginecore recommend meta-llama/Llama-3-70B --instance-type p5.48xlarge
  enginecore recommend meta-llama/Llama-3-70B --instance-type p5.48xlarge -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runRecommend,
}

func init() {
	recommendCmd.Flags().StringVar(&recommendInstanceType, "instance-type", "", "instance type to recommend against (required)")
	recommendCmd.Flags().StringVar(&recommendHFToken, "hf-token", "", "HuggingFace access token, for gated models")
	recommendCmd.MarkFlagRequired("instance-type")
	RootCmd.AddCommand(recommendCmd)
}

func runRecommend(cmd *cobra.Command, args []string) error {
	c := newClient()
	rec, err := c.Recommend(context.Background(), args[0], recommendInstanceType, recommendHFToken)
	if err != nil {
		return err
	}

	if getFormat() == format.FormatJSON {
		return format.JSON(rec)
	}

	if !rec.Explanation.Feasible {
		fmt.Printf("Infeasible on %s: %s\n", recommendInstanceType, rec.Explanation.Reason)
		if rec.Explanation.SuggestedInstance != "" {
			fmt.Printf("Suggested instance: %s\n", rec.Explanation.SuggestedInstance)
		}
		return nil
	}

	fmt.Printf("Tensor parallel degree: %d\n", rec.TensorParallelDegree)
	if rec.Quantization != nil {
		fmt.Printf("Quantization:           %s\n", *rec.Quantization)
	} else {
		fmt.Printf("Quantization:           native\n")
	}
	fmt.Printf("Max model length:       %d\n", rec.MaxModelLen)
	fmt.Printf("Concurrency:            %d\n", rec.Concurrency)
	fmt.Printf("Input/output tokens:    %d / %d\n", rec.InputSequenceLength, rec.OutputSequenceLength)
	return nil
}
