package cli

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/turtacn/fincore-risk/internal/config"
	"github.com/turtacn/fincore-risk/internal/domain/models"
	"github.com/turtacn/fincore-risk/internal/infrastructure/messaging"
	"github.com/turtacn/fincore-risk/pkg/logger"
)

func newAlertsCmd() *cobra.Command {
	alertsCmd := &cobra.Command{
		Use:   "alerts",
		Short: "Inspect published alerts",
	}

	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Print alerts from the Kafka topic as JSON lines until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			brokers, _ := cmd.Flags().GetStringSlice("brokers")
			topic, _ := cmd.Flags().GetString("topic")
			group, _ := cmd.Flags().GetString("group")

			consumer, err := messaging.NewAlertConsumer(config.KafkaConfig{Brokers: brokers, Topic: topic}, group, logger.NewNoopLogger())
			if err != nil {
				return err
			}
			defer func() { _ = consumer.Close() }()

			return consumer.Run(cmd.Context(), printAlert(json.NewEncoder(cmd.OutOrStdout())))
		},
	}
	tailCmd.Flags().StringSlice("brokers", []string{"localhost:9092"}, "Kafka brokers")
	tailCmd.Flags().String("topic", "fincore.risk.alerts", "alert topic")
	tailCmd.Flags().String("group", "fincore-risk-admin", "consumer group")

	alertsCmd.AddCommand(tailCmd)
	return alertsCmd
}

func printAlert(enc *json.Encoder) messaging.AlertHandler {
	return func(_ context.Context, alert models.AlertEntry) error {
		return enc.Encode(alert)
	}
}
