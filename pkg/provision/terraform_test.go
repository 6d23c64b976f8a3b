package provision

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/cuemby/shepherd/pkg/runner"
	"github.com/cuemby/shepherd/pkg/runner/runnertest"
	"github.com/cuemby/shepherd/pkg/types"
	"github.com/cuemby/shepherd/pkg/workspace"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoInstances = `{
  "instance_ips": {"sensitive": false, "type": ["list", "string"], "value": ["10.0.1.10", "10.0.1.11", "10.0.1.10"]},
  "image_uri": {"sensitive": false, "type": "string", "value": "ghcr.io/acme/app:v1"}
}`

func newTestTerraform(t *testing.T, fake *runnertest.Fake) (*Terraform, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	ws, err := workspace.New(fs, "/tmp", "deploy-test")
	require.NoError(t, err)
	return NewTerraform(TerraformConfig{
		Dir:         "/infra",
		Env:         []string{"AWS_REGION=us-east-1"},
		RecoveryDir: "/data/recovery",
	}, fake, ws), fs
}

func stagingShape() Shape {
	return ShapeFor(types.DeploymentRequest{
		ID:          "deploy-1",
		Environment: types.EnvironmentStaging,
		Region:      "us-east-1",
		Image:       "ghcr.io/acme/app:v2",
	}, ProfileFor(types.EnvironmentStaging, nil))
}

func TestTerraform_Apply(t *testing.T) {
	fake := &runnertest.Fake{}
	fake.On("terraform output -json", runnertest.Response{Stdout: twoInstances})

	tf, fs := newTestTerraform(t, fake)
	var vars map[string]any
	fake.On("terraform apply", runnertest.Response{Hook: func(cmd runner.Command) error {
		path := strings.TrimPrefix(cmd.Args[len(cmd.Args)-1], "-var-file=")
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, &vars)
	}})

	addrs, err := tf.Apply(context.Background(), stagingShape())
	require.NoError(t, err)

	assert.Equal(t, []string{"10.0.1.10", "10.0.1.11"}, addrs)
	assert.True(t, fake.Called("terraform init -input=false"))
	assert.Equal(t, "ghcr.io/acme/app:v2", vars["app_image"])
	assert.Equal(t, float64(2), vars["instance_count"])
	assert.Equal(t, "t3.small", vars["instance_type"])
	assert.Equal(t, true, vars["enable_monitoring"])

	for _, c := range fake.Calls() {
		assert.Equal(t, "/infra", c.Dir)
		assert.Contains(t, c.Env, "AWS_REGION=us-east-1")
		assert.Contains(t, c.Env, "TF_IN_AUTOMATION=1")
	}
}

func TestTerraform_ApplyEmptyAddressesFails(t *testing.T) {
	fake := &runnertest.Fake{}
	fake.On("terraform output -json", runnertest.Response{Stdout: `{"instance_ips": {"value": []}}`})
	tf, _ := newTestTerraform(t, fake)

	addrs, err := tf.Apply(context.Background(), stagingShape())
	require.Error(t, err)
	assert.Nil(t, addrs)
	assert.ErrorIs(t, err, types.ErrProvisioning)
}

func TestTerraform_ApplyToolFailure(t *testing.T) {
	fake := &runnertest.Fake{}
	fake.On("terraform apply", runnertest.Response{ExitCode: 1, Stderr: "Error: quota exceeded"})
	tf, _ := newTestTerraform(t, fake)

	_, err := tf.Apply(context.Background(), stagingShape())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrProvisioning)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.False(t, fake.Called("terraform output"))
}

func TestTerraform_CurrentState(t *testing.T) {
	fake := &runnertest.Fake{}
	fake.On("terraform output -json", runnertest.Response{Stdout: twoInstances})
	fake.On("terraform state pull", runnertest.Response{Stdout: `{"version": 4, "serial": 7}`})
	tf, _ := newTestTerraform(t, fake)

	prior, err := tf.CurrentState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.1.10", "10.0.1.11"}, prior.Addresses)
	assert.Equal(t, "ghcr.io/acme/app:v1", prior.Image)
	assert.JSONEq(t, `{"version": 4, "serial": 7}`, string(prior.Handle))

	for _, c := range fake.Calls() {
		if c.String() == "terraform state pull" {
			assert.True(t, c.Quiet, "state documents stay out of the log")
		}
	}
}

func TestTerraform_CurrentStateFirstDeployment(t *testing.T) {
	fake := &runnertest.Fake{}
	fake.On("terraform output -json", runnertest.Response{Stdout: "{}"})
	tf, _ := newTestTerraform(t, fake)

	prior, err := tf.CurrentState(context.Background())
	require.NoError(t, err)
	assert.Empty(t, prior.Addresses)
	assert.False(t, fake.Called("terraform state pull"))
}

func TestTerraform_Restore(t *testing.T) {
	fake := &runnertest.Fake{}
	fake.On("terraform output -json", runnertest.Response{Stdout: twoInstances})
	tf, fs := newTestTerraform(t, fake)

	_, err := tf.Apply(context.Background(), stagingShape())
	require.NoError(t, err)

	var vars map[string]any
	fake.On("terraform apply", runnertest.Response{Hook: func(cmd runner.Command) error {
		data, err := afero.ReadFile(fs, strings.TrimPrefix(cmd.Args[len(cmd.Args)-1], "-var-file="))
		if err != nil {
			return err
		}
		return json.Unmarshal(data, &vars)
	}})

	err = tf.Restore(context.Background(), &types.Backup{
		Addresses: []string{"10.0.0.5"},
		Image:     "ghcr.io/acme/app:v1",
		State:     []byte(`{"serial": 7}`),
	})
	require.NoError(t, err)

	assert.False(t, fake.Called("terraform state push"), "the current state is applied over, never replaced")
	assert.Equal(t, "ghcr.io/acme/app:v1", vars["app_image"])
	assert.Equal(t, float64(1), vars["instance_count"])
	assert.Equal(t, "staging", vars["environment"])

	snapshot, err := afero.ReadFile(fs, "/data/recovery/deploy-1.tfstate")
	require.NoError(t, err)
	assert.JSONEq(t, `{"serial": 7}`, string(snapshot))
}

func TestTerraform_RestoreApplyFailure(t *testing.T) {
	fake := &runnertest.Fake{}
	fake.On("terraform apply", runnertest.Response{ExitCode: 1, Stderr: "Error acquiring the state lock"})
	tf, _ := newTestTerraform(t, fake)

	err := tf.Restore(context.Background(), &types.Backup{Addresses: []string{"10.0.0.5"}, Image: "app:v1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "state lock")
}

func TestTerraform_RestoreEmptyBackup(t *testing.T) {
	tf, _ := newTestTerraform(t, &runnertest.Fake{})
	assert.Error(t, tf.Restore(context.Background(), &types.Backup{}))
}

func TestParseOutputs_StringAddresses(t *testing.T) {
	out, err := parseOutputs([]byte(`{"instance_ips": {"value": "10.0.0.1, 10.0.0.2,"}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, out.addresses("instance_ips"))
	assert.Nil(t, out.addresses("missing"))
}

func TestProfileFor(t *testing.T) {
	prod := ProfileFor(types.EnvironmentProduction, nil)
	dev := ProfileFor(types.EnvironmentDevelopment, nil)
	assert.Greater(t, prod.InstanceCount, dev.InstanceCount)
	assert.Greater(t, prod.RetentionDays, dev.RetentionDays)
	assert.True(t, prod.DetailedMonitoring)
	assert.False(t, dev.Monitoring)

	p := ProfileFor(types.EnvironmentStaging, &Profile{InstanceCount: 4})
	assert.Equal(t, 4, p.InstanceCount)
	assert.Equal(t, "t3.small", p.InstanceType)
}
