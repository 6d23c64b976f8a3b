package main

import (
	"fmt"
	"time"

	"github.com/cuemby/shepherd/pkg/storage"
	"github.com/cuemby/shepherd/pkg/types"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past deployments",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		env, _ := cmd.Flags().GetString("env")
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := openStore(cfg)()
		if err != nil {
			return err
		}
		defer store.Close()

		reports, err := store.ListReports(storage.Filter{Environment: types.Environment(env), Limit: limit})
		if err != nil {
			return fmt.Errorf("failed to list deployments: %w", err)
		}
		if len(reports) == 0 {
			fmt.Println("No deployments recorded")
			return nil
		}

		fmt.Printf("%-36s %-12s %-12s %-20s %-10s %s\n", "ID", "ENVIRONMENT", "STATUS", "STARTED", "DURATION", "IMAGE")
		for _, r := range reports {
			fmt.Printf("%-36s %-12s %-12s %-20s %-10s %s\n",
				r.DeploymentID,
				r.Environment,
				r.Status,
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Duration.Round(time.Second),
				r.Image,
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().String("env", "", "Only show deployments to this environment")
	historyCmd.Flags().Int("limit", 20, "Maximum number of deployments to show (0 for all)")
}
