package main

import (
	"fmt"
	"os"

	"github.com/cuemby/shepherd/pkg/config"
	"github.com/cuemby/shepherd/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// exitCode is set by commands whose outcome is not a plain error
var exitCode int

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

var rootCmd = &cobra.Command{
	Use:   "shepherd",
	Short: "Shepherd - cloud deployment orchestrator with automatic rollback",
	Long: `Shepherd deploys a containerized service to a fleet of cloud instances.

A run validates its inputs, captures the previous deployment, provisions
infrastructure with Terraform, waits for the instances to become reachable,
rolls the application out with Ansible and verifies that every instance is
healthy. Any failure after infrastructure changes rolls back to the
previous deployment.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Shepherd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Write logs as JSON")

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}

// configFlags maps configuration keys to the command-line flags that
// override them
var configFlags = map[string]string{
	"log.level":             "log-level",
	"log.json":              "json-logs",
	"deploy.region":         "region",
	"deploy.notify":         "notify",
	"deploy.max_duration":   "max-duration",
	"deploy.health_timeout": "health-timeout",
}

// loadConfig layers the configuration file, SHEPHERD_* variables and the
// flags cmd defines, then initializes logging from the result
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	loader := config.NewLoader()
	for key, name := range configFlags {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := loader.BindFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := loader.Load(path)
	if err != nil {
		return nil, err
	}

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
	return cfg, nil
}
