package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/runner"
	"github.com/cuemby/shepherd/pkg/types"
	"github.com/cuemby/shepherd/pkg/workspace"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/afero"
)

const (
	varFileName = "shepherd.auto.tfvars.json"
)

// TerraformConfig locates the Terraform module and its outputs
type TerraformConfig struct {
	// Binary is the terraform executable (default: terraform)
	Binary string

	// Dir is the root module directory
	Dir string

	// AddressOutput names the output listing instance addresses
	AddressOutput string

	// ImageOutput names the output holding the deployed image
	ImageOutput string

	// Env is passed to every terraform invocation (cloud credentials)
	Env []string

	// RecoveryDir keeps the pre-deployment state snapshot of a rollback
	// for manual recovery. Empty discards it.
	RecoveryDir string
}

// Terraform is the Provisioner backed by the terraform CLI
type Terraform struct {
	cfg    TerraformConfig
	runner runner.Runner
	ws     *workspace.Workspace
	logger zerolog.Logger

	mu          sync.Mutex
	initialized bool
	lastShape   *Shape
}

// NewTerraform creates a Terraform provisioner writing its variable files
// into ws
func NewTerraform(cfg TerraformConfig, r runner.Runner, ws *workspace.Workspace) *Terraform {
	if cfg.Binary == "" {
		cfg.Binary = "terraform"
	}
	if cfg.AddressOutput == "" {
		cfg.AddressOutput = "instance_ips"
	}
	if cfg.ImageOutput == "" {
		cfg.ImageOutput = "image_uri"
	}
	return &Terraform{
		cfg:    cfg,
		runner: r,
		ws:     ws,
		logger: log.WithComponent("provisioner"),
	}
}

// CurrentState reads the outputs and raw state of the existing deployment
func (t *Terraform) CurrentState(ctx context.Context) (*PriorState, error) {
	if err := t.init(ctx); err != nil {
		return nil, err
	}

	outputs, err := t.outputs(ctx)
	if err != nil {
		return nil, err
	}

	prior := &PriorState{
		Addresses: outputs.addresses(t.cfg.AddressOutput),
		Image:     outputs.str(t.cfg.ImageOutput),
	}
	if len(prior.Addresses) == 0 {
		t.logger.Info().Msg("No previous deployment found")
		return prior, nil
	}

	res, err := t.runQuiet(ctx, "state", "pull")
	if err != nil {
		t.logger.Warn().Err(err).Msg("Failed to pull state, rollback will re-apply outputs only")
	} else {
		prior.Handle = res.Stdout
	}

	t.logger.Info().
		Strs("addresses", prior.Addresses).
		Str("image", prior.Image).
		Msg("Read previous deployment")
	return prior, nil
}

// Apply writes the variable file for shape and runs terraform apply
func (t *Terraform) Apply(ctx context.Context, shape Shape) ([]string, error) {
	t.mu.Lock()
	t.lastShape = &shape
	t.mu.Unlock()

	logger := t.logger.With().
		Str("deployment_id", shape.DeploymentID).
		Str("environment", string(shape.Environment)).
		Logger()

	if err := t.init(ctx); err != nil {
		return nil, types.NewError(types.KindProvisioning, err, "terraform init failed")
	}

	varFile, err := t.writeVars(shape)
	if err != nil {
		return nil, types.NewError(types.KindProvisioning, err, "failed to write variables")
	}

	logger.Info().
		Int("instances", shape.InstanceCount).
		Str("instance_type", shape.InstanceType).
		Msg("Applying infrastructure")

	if _, err := t.run(ctx, "apply", "-auto-approve", "-input=false", "-var-file="+varFile); err != nil {
		return nil, types.NewError(types.KindProvisioning, err, "terraform apply failed")
	}

	outputs, err := t.outputs(ctx)
	if err != nil {
		return nil, types.NewError(types.KindProvisioning, err, "failed to read outputs")
	}

	addrs := outputs.addresses(t.cfg.AddressOutput)
	if len(addrs) == 0 {
		return nil, types.NewError(types.KindProvisioning, nil, "terraform apply returned no instance addresses in output %q", t.cfg.AddressOutput)
	}

	logger.Info().Strs("addresses", addrs).Msg("Infrastructure converged")
	return addrs, nil
}

// Restore re-applies the previous image at the previous instance count
// against the current state. The captured snapshot is never pushed; it is
// kept in RecoveryDir for an operator.
func (t *Terraform) Restore(ctx context.Context, backup *types.Backup) error {
	if backup.IsEmpty() {
		return fmt.Errorf("nothing to restore")
	}

	t.mu.Lock()
	var shape Shape
	if t.lastShape != nil {
		shape = *t.lastShape
	}
	t.mu.Unlock()

	if len(backup.State) > 0 {
		if path, err := t.keepSnapshot(shape.DeploymentID, backup.State); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to keep previous state snapshot")
		} else if path != "" {
			t.logger.Info().Str("path", path).Msg("Previous state snapshot kept for manual recovery")
		}
	}

	shape.Image = backup.Image
	shape.InstanceCount = len(backup.Addresses)

	varFile, err := t.writeVars(shape)
	if err != nil {
		return err
	}

	t.logger.Warn().
		Str("image", shape.Image).
		Int("instances", shape.InstanceCount).
		Msg("Restoring previous infrastructure")

	if err := t.init(ctx); err != nil {
		return fmt.Errorf("terraform init failed: %w", err)
	}
	if _, err := t.run(ctx, "apply", "-auto-approve", "-input=false", "-var-file="+varFile); err != nil {
		return fmt.Errorf("terraform apply of previous deployment failed: %w", err)
	}
	return nil
}

func (t *Terraform) keepSnapshot(deploymentID string, state []byte) (string, error) {
	if t.cfg.RecoveryDir == "" {
		return "", nil
	}
	if deploymentID == "" {
		deploymentID = "unknown"
	}

	fs := t.ws.Fs()
	if err := fs.MkdirAll(t.cfg.RecoveryDir, 0o700); err != nil {
		return "", err
	}
	path := filepath.Join(t.cfg.RecoveryDir, deploymentID+".tfstate")
	if err := afero.WriteFile(fs, path, state, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func (t *Terraform) init(ctx context.Context) error {
	t.mu.Lock()
	done := t.initialized
	t.mu.Unlock()
	if done {
		return nil
	}

	if _, err := t.run(ctx, "init", "-input=false"); err != nil {
		return err
	}

	t.mu.Lock()
	t.initialized = true
	t.mu.Unlock()
	return nil
}

func (t *Terraform) run(ctx context.Context, args ...string) (*runner.Result, error) {
	return t.runner.Run(ctx, t.command(args))
}

// runQuiet keeps the output out of the log; state documents hold secrets
func (t *Terraform) runQuiet(ctx context.Context, args ...string) (*runner.Result, error) {
	cmd := t.command(args)
	cmd.Quiet = true
	return t.runner.Run(ctx, cmd)
}

func (t *Terraform) command(args []string) runner.Command {
	return runner.Command{
		Name: t.cfg.Binary,
		Args: args,
		Dir:  t.cfg.Dir,
		Env:  append([]string{"TF_IN_AUTOMATION=1"}, t.cfg.Env...),
	}
}

func (t *Terraform) writeVars(shape Shape) (string, error) {
	vars := map[string]any{
		"environment":         string(shape.Environment),
		"deployment_id":       shape.DeploymentID,
		"region":              shape.Region,
		"app_image":           shape.Image,
		"instance_count":      shape.InstanceCount,
		"instance_type":       shape.InstanceType,
		"enable_monitoring":   shape.Monitoring,
		"detailed_monitoring": shape.DetailedMonitoring,
		"log_retention_days":  shape.RetentionDays,
	}
	data, err := json.MarshalIndent(vars, "", "  ")
	if err != nil {
		return "", err
	}
	return t.ws.WriteFile(varFileName, data, 0o600)
}

// outputValues is the decoded form of `terraform output -json`
type outputValues map[string]struct {
	Value json.RawMessage `json:"value"`
}

func (t *Terraform) outputs(ctx context.Context) (outputValues, error) {
	res, err := t.run(ctx, "output", "-json")
	if err != nil {
		return nil, err
	}
	return parseOutputs(res.Stdout)
}

func parseOutputs(data []byte) (outputValues, error) {
	out := outputValues{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("invalid terraform output: %w", err)
	}
	return out, nil
}

// addresses accepts a list output or a comma separated string output
func (o outputValues) addresses(name string) []string {
	v, ok := o[name]
	if !ok {
		return nil
	}

	var list []string
	if err := json.Unmarshal(v.Value, &list); err != nil {
		var s string
		if err := json.Unmarshal(v.Value, &s); err != nil {
			return nil
		}
		list = strings.Split(s, ",")
	}

	list = lo.Map(list, func(a string, _ int) string { return strings.TrimSpace(a) })
	return lo.Uniq(lo.Compact(list))
}

func (o outputValues) str(name string) string {
	v, ok := o[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v.Value, &s); err != nil {
		return ""
	}
	return s
}

var _ Provisioner = (*Terraform)(nil)
