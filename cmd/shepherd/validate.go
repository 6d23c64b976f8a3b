package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cuemby/shepherd/pkg/deploy"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run pre-flight checks without deploying",
	Long: `Check the request, credentials, required tools and cloud identity
exactly as a deployment would, without changing anything.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		req := requestFrom(cmd, cfg)

		creds, err := newCredentials(cfg)
		if err != nil {
			return err
		}

		if err := newValidator(cfg, creds).Validate(context.Background(), req); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %v\n", err)
			exitCode = deploy.ExitValidation
			return nil
		}

		fmt.Println("✓ Validation passed")
		fmt.Printf("  Environment: %s\n", req.Environment)
		fmt.Printf("  Image: %s\n", req.Image)
		fmt.Printf("  Region: %s\n", req.Region)
		return nil
	},
}

func init() {
	addRequestFlags(validateCmd)
}
