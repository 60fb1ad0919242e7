package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/turtacn/fincore-risk/internal/domain/models"
	"github.com/turtacn/fincore-risk/internal/domain/service"
	"github.com/turtacn/fincore-risk/internal/infrastructure/datasource"
	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/errors"
	"github.com/turtacn/fincore-risk/pkg/logger"
)

func newComputeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Compute risk profiles and alerts from a data file",
		Long: `compute runs one pass over the entities and licenses in --input (YAML, or JSON
for a .json file) and prints the result as JSON. --prior supplies the previous
snapshot for trends and alerts; --snapshot-out saves the new snapshot so it can
be passed as --prior to the next run.`,
		Args: cobra.NoArgs,
		RunE: runCompute,
	}
	cmd.Flags().String("input", "", "entity and license data file")
	cmd.Flags().String("prior", "", "prior snapshot JSON")
	cmd.Flags().String("snapshot-out", "", "write the computed snapshot to this file")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runCompute(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	input, _ := cmd.Flags().GetString("input")
	priorPath, _ := cmd.Flags().GetString("prior")
	snapshotOut, _ := cmd.Flags().GetString("snapshot-out")

	cfg, err := engineConfig(cmd)
	if err != nil {
		return err
	}
	engine, err := service.NewEngine(cfg, logger.NewNoopLogger())
	if err != nil {
		return err
	}

	source, err := datasource.NewFileSource(input, logger.NewNoopLogger())
	if err != nil {
		return err
	}
	entities, licenses, err := source.Fetch(ctx)
	if err != nil {
		return err
	}

	var prior *models.Snapshot
	if priorPath != "" {
		if prior, err = datasource.LoadSnapshot(priorPath); err != nil {
			return err
		}
	}

	result, err := engine.ComputeRisks(ctx, entities, licenses, prior, service.NewMemoryAlertTracker())
	if err != nil {
		return err
	}

	if snapshotOut != "" {
		raw, err := json.MarshalIndent(result.Snapshot, "", "  ")
		if err != nil {
			return errors.WrapError(err, constants.ErrCodeServerError, "failed to encode snapshot")
		}
		if err := os.WriteFile(snapshotOut, raw, 0o644); err != nil {
			return errors.WrapError(err, constants.ErrCodeServerError, "failed to write snapshot").
				WithMetadata("path", snapshotOut)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
