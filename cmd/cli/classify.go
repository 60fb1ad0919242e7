package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/fincore-risk/internal/domain/service"
	"github.com/turtacn/fincore-risk/pkg/errors"
)

func newClassifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Print the band of a score or a severity label",
		Example: `  fincore-risk-admin classify --score 82
  fincore-risk-admin classify --severity Critical`,
		Args: cobra.NoArgs,
		RunE: runClassify,
	}
	cmd.Flags().Int("score", 0, "numeric risk score (clamped to 0-100)")
	cmd.Flags().String("severity", "", "severity label: Critical, High, Medium or Low")
	cmd.MarkFlagsMutuallyExclusive("score", "severity")
	cmd.MarkFlagsOneRequired("score", "severity")
	return cmd
}

func runClassify(cmd *cobra.Command, _ []string) error {
	cfg, err := engineConfig(cmd)
	if err != nil {
		return err
	}
	classifier, err := service.NewClassifier(cfg.Thresholds)
	if err != nil {
		return err
	}

	switch {
	case cmd.Flags().Changed("score"):
		score, _ := cmd.Flags().GetInt("score")
		_, err = fmt.Fprintln(cmd.OutOrStdout(), classifier.ClassifyScore(score))
	case cmd.Flags().Changed("severity"):
		label, _ := cmd.Flags().GetString("severity")
		_, err = fmt.Fprintln(cmd.OutOrStdout(), classifier.ClassifySeverity(label))
	default:
		err = errors.ErrInvalidRequest("one of --score and --severity is required")
	}
	return err
}
