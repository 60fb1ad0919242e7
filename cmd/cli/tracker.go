package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/fincore-risk/internal/config"
	"github.com/turtacn/fincore-risk/internal/infrastructure/persistence/redis"
	"github.com/turtacn/fincore-risk/pkg/logger"
)

func newTrackerCmd() *cobra.Command {
	trackerCmd := &cobra.Command{
		Use:   "tracker",
		Short: "Manage the shared alert tracker",
	}

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget every recorded alert condition, so active conditions alert again on the next pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := redisConfig(cmd)
			if err != nil {
				return err
			}

			conn := redis.NewRedisConnection(&cfg, logger.NewNoopLogger())
			if err := conn.Connect(cmd.Context()); err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			if err := redis.NewAlertTracker(conn.GetClient(), cfg.TrackerName).Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "alert tracker %q reset\n", cfg.TrackerName)
			return nil
		},
	}
	resetCmd.Flags().String("redis-addr", "localhost:6379", "redis address (overrides --config)")
	resetCmd.Flags().String("name", "default", "tracker name (overrides --config)")

	trackerCmd.AddCommand(resetCmd)
	return trackerCmd
}

// redisConfig returns the redis section of --config, with explicitly set flags on top.
func redisConfig(cmd *cobra.Command) (config.RedisConfig, error) {
	addr, _ := cmd.Flags().GetString("redis-addr")
	name, _ := cmd.Flags().GetString("name")
	cfg := config.RedisConfig{Address: addr, TrackerName: name}

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.LoadConfig(path, logger.NewNoopLogger())
		if err != nil {
			return config.RedisConfig{}, err
		}
		cfg = loaded.Redis
		if cmd.Flags().Changed("redis-addr") {
			cfg.Address = addr
		}
		if cmd.Flags().Changed("name") {
			cfg.TrackerName = name
		}
	}
	return cfg, nil
}
