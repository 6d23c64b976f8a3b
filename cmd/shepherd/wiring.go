package main

import (
	"fmt"
	"time"

	"github.com/cuemby/shepherd/pkg/backup"
	"github.com/cuemby/shepherd/pkg/config"
	"github.com/cuemby/shepherd/pkg/convergence"
	"github.com/cuemby/shepherd/pkg/credentials"
	"github.com/cuemby/shepherd/pkg/deploy"
	"github.com/cuemby/shepherd/pkg/events"
	"github.com/cuemby/shepherd/pkg/provision"
	"github.com/cuemby/shepherd/pkg/readiness"
	"github.com/cuemby/shepherd/pkg/report"
	"github.com/cuemby/shepherd/pkg/rollback"
	"github.com/cuemby/shepherd/pkg/rollout"
	"github.com/cuemby/shepherd/pkg/runner"
	"github.com/cuemby/shepherd/pkg/storage"
	"github.com/cuemby/shepherd/pkg/types"
	"github.com/cuemby/shepherd/pkg/validate"
	"github.com/cuemby/shepherd/pkg/workspace"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// storeLockTimeout bounds waiting for another run holding the report
// database
const storeLockTimeout = 5 * time.Second

func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().String("env", "", "Target environment (development, staging, production)")
	cmd.Flags().String("image", "", "Container image reference to deploy")
	cmd.Flags().String("region", "", "Cloud region")
	cmd.Flags().String("id", "", "Deployment identifier (generated when empty)")
	cmd.Flags().Bool("no-backup", false, "Skip capturing the previous deployment")
	cmd.Flags().Bool("no-rollback", false, "Do not roll back on failure")
	cmd.Flags().Bool("notify", false, "Send the report to the configured webhook")
	cmd.Flags().Duration("max-duration", 0, "Maximum total deployment time")
	cmd.Flags().Duration("health-timeout", 0, "Health convergence timeout")
}

// requestFrom builds the immutable run request from flags and cfg
func requestFrom(cmd *cobra.Command, cfg *config.Config) types.DeploymentRequest {
	env, _ := cmd.Flags().GetString("env")
	image, _ := cmd.Flags().GetString("image")
	id, _ := cmd.Flags().GetString("id")
	noBackup, _ := cmd.Flags().GetBool("no-backup")
	noRollback, _ := cmd.Flags().GetBool("no-rollback")

	if id == "" {
		id = deploy.NewDeploymentID(time.Now())
	}

	return types.DeploymentRequest{
		ID:                id,
		Environment:       types.Environment(env),
		Image:             image,
		Region:            cfg.Deploy.Region,
		MaxDuration:       cfg.Deploy.MaxDuration,
		HealthTimeout:     cfg.Deploy.HealthTimeout,
		BackupEnabled:     cfg.Deploy.Backup && !noBackup,
		RollbackOnFailure: cfg.Deploy.Rollback && !noRollback,
		NotifyEnabled:     cfg.Deploy.Notify,
	}
}

func newCredentials(cfg *config.Config) (credentials.Chain, error) {
	return credentials.NewChain(cfg.Credentials.DotenvFile, cfg.Credentials.KeyringService)
}

func newValidator(cfg *config.Config, creds credentials.Chain) *validate.Validator {
	return validate.NewValidator(validate.Config{
		Environments:        cfg.AllowedEnvironments(),
		RequiredCredentials: cfg.Credentials.Required,
		Tools:               cfg.Validation.Tools,
		IdentityCommand:     cfg.Validation.IdentityCommand,
		IdentityTimeout:     cfg.Validation.IdentityTimeout,
	}, creds)
}

func openStore(cfg *config.Config) report.StoreOpener {
	return func() (storage.ReportStore, error) {
		return storage.NewBoltStore(cfg.DataDir, storeLockTimeout)
	}
}

// newStages wires every stage of a run against the real external tools.
// The returned stages own a workspace released by their Cleanup.
func newStages(cfg *config.Config, req types.DeploymentRequest, publisher events.Publisher) (deploy.Stages, error) {
	creds, err := newCredentials(cfg)
	if err != nil {
		return deploy.Stages{}, err
	}

	ws, err := workspace.New(afero.NewOsFs(), cfg.WorkDir, req.ID)
	if err != nil {
		return deploy.Stages{}, err
	}

	checker, err := readiness.CheckerFor(cfg.Readiness)
	if err != nil {
		_ = ws.Release()
		return deploy.Stages{}, fmt.Errorf("invalid readiness configuration: %w", err)
	}

	env := creds.Environ(cfg.Credentials.Required)
	r := runner.NewExecRunner()

	tf := provision.NewTerraform(provision.TerraformConfig{
		Binary:        cfg.Terraform.Binary,
		Dir:           cfg.Terraform.Dir,
		AddressOutput: cfg.Terraform.AddressOutput,
		ImageOutput:   cfg.Terraform.ImageOutput,
		Env:           env,
		RecoveryDir:   cfg.RecoveryDir(),
	}, r, ws)

	ansible := rollout.NewAnsible(rollout.AnsibleConfig{
		Binary:           cfg.Ansible.Binary,
		Playbook:         cfg.Ansible.Playbook,
		Dir:              cfg.Ansible.Dir,
		User:             cfg.Ansible.User,
		SSHPort:          cfg.Ansible.SSHPort,
		SSHKeyCredential: cfg.Credentials.SSHKey,
		Env:              env,
	}, r, ws, creds)
	for _, e := range cfg.AllowedEnvironments() {
		if vars := cfg.RolloutVarsFor(e); vars != nil {
			ansible.WithVars(e, vars)
		}
	}

	var notifier report.Notifier
	if cfg.Notify.WebhookURL != "" {
		notifier = report.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.Timeout)
	}

	return deploy.Stages{
		Validator:   newValidator(cfg, creds),
		Backup:      backup.NewManager(tf),
		Provisioner: tf,
		Readiness:   readiness.NewPoller(cfg.Readiness.Timeout, cfg.Readiness.Interval, checker),
		Rollout:     ansible,
		Health:      newHealthChecker(cfg),
		Rollback:    rollback.NewController(tf, cfg.Probes.Liveness(), cfg.Rollback.Settle, cfg.Rollback.Timeout),
		Reporter:    report.NewReporter(openStore(cfg), notifier),
		Publisher:   publisher,
		ProfileFor:  cfg.ProfileFor,
		Cleanup:     ws.Release,
	}, nil
}

func newHealthChecker(cfg *config.Config) *convergence.Checker {
	return convergence.NewChecker(
		cfg.Probes.Liveness(),
		cfg.Probes.Functional(),
		cfg.Health.Interval,
		cfg.Health.LatencyThreshold,
	)
}
