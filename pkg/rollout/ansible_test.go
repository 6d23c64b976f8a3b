package rollout

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/cuemby/shepherd/pkg/credentials"
	"github.com/cuemby/shepherd/pkg/runner"
	"github.com/cuemby/shepherd/pkg/runner/runnertest"
	"github.com/cuemby/shepherd/pkg/types"
	"github.com/cuemby/shepherd/pkg/workspace"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type mapSource map[string]string

func (m mapSource) Lookup(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

func (m mapSource) Name() string { return "map" }

var addrs = []string{"10.0.1.10", "10.0.1.11"}

func stagingRequest() types.DeploymentRequest {
	return types.DeploymentRequest{
		ID:          "deploy-1",
		Environment: types.EnvironmentStaging,
		Image:       "ghcr.io/acme/app:v2",
	}
}

func newTestAnsible(t *testing.T, fake *runnertest.Fake) (*Ansible, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	ws, err := workspace.New(fs, "/tmp", "deploy-1")
	require.NoError(t, err)

	creds := credentials.Chain{mapSource{"SSH_PRIVATE_KEY": "-----BEGIN KEY-----"}}
	a := NewAnsible(AnsibleConfig{Playbook: "deploy.yml", SSHKeyCredential: "SSH_PRIVATE_KEY"}, fake, ws, creds)
	return a, fs
}

func statsOutput(stats map[string]hostStats) string {
	data, _ := json.Marshal(map[string]any{"plays": []any{}, "stats": stats})
	return string(data)
}

func TestAnsible_RolloutSucceeds(t *testing.T) {
	fake := &runnertest.Fake{}
	a, fs := newTestAnsible(t, fake)

	var inv inventory
	var vars map[string]any
	var keyMode os.FileMode
	fake.On("ansible-playbook", runnertest.Response{
		Stdout: statsOutput(map[string]hostStats{
			"10.0.1.10": {OK: 5, Changed: 2},
			"10.0.1.11": {OK: 5, Changed: 2},
		}),
		Hook: func(cmd runner.Command) error {
			data, err := afero.ReadFile(fs, cmd.Args[1])
			if err != nil {
				return err
			}
			if err := yaml.Unmarshal(data, &inv); err != nil {
				return err
			}
			data, err = afero.ReadFile(fs, strings.TrimPrefix(cmd.Args[3], "@"))
			if err != nil {
				return err
			}
			if err := json.Unmarshal(data, &vars); err != nil {
				return err
			}
			info, err := fs.Stat(inv.All.Hosts["10.0.1.10"].KeyFile)
			if err != nil {
				return err
			}
			keyMode = info.Mode().Perm()
			return nil
		},
	})

	result, err := a.Rollout(context.Background(), stagingRequest(), addrs)
	require.NoError(t, err)
	assert.Empty(t, result.Failed())

	require.Len(t, inv.All.Hosts, 2)
	host := inv.All.Hosts["10.0.1.11"]
	assert.Equal(t, "10.0.1.11", host.AnsibleHost)
	assert.Equal(t, "ubuntu", host.AnsibleUser)
	assert.Equal(t, 22, host.AnsiblePort)
	assert.Equal(t, os.FileMode(0o600), keyMode)

	assert.Equal(t, "ghcr.io/acme/app:v2", vars["app_image"])
	assert.Equal(t, "staging", vars["environment"])
	assert.Equal(t, false, vars["debug"])
	assert.Equal(t, true, vars["enable_rate_limiting"])

	call := fake.Calls()[0]
	assert.Equal(t, "deploy.yml", call.Args[len(call.Args)-1])
	assert.Contains(t, call.Env, "ANSIBLE_STDOUT_CALLBACK=json")
}

func TestAnsible_OneHostFails(t *testing.T) {
	fake := &runnertest.Fake{}
	fake.On("ansible-playbook", runnertest.Response{
		ExitCode: 2,
		Stdout: statsOutput(map[string]hostStats{
			"10.0.1.10": {OK: 5},
			"10.0.1.11": {OK: 2, Failures: 1},
		}),
	})
	a, _ := newTestAnsible(t, fake)

	result, err := a.Rollout(context.Background(), stagingRequest(), addrs)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrRollout)
	assert.Equal(t, []string{"10.0.1.11"}, result.Failed())

	var de *types.DeployError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, []string{"10.0.1.11"}, de.Addresses)
}

func TestAnsible_MissingHostCountsAsFailed(t *testing.T) {
	fake := &runnertest.Fake{}
	fake.On("ansible-playbook", runnertest.Response{
		Stdout: statsOutput(map[string]hostStats{"10.0.1.10": {OK: 5}}),
	})
	a, _ := newTestAnsible(t, fake)

	result, err := a.Rollout(context.Background(), stagingRequest(), addrs)
	assert.ErrorIs(t, err, types.ErrRollout)
	assert.Equal(t, []string{"10.0.1.11"}, result.Failed())
}

func TestAnsible_UnreachableHost(t *testing.T) {
	fake := &runnertest.Fake{}
	fake.On("ansible-playbook", runnertest.Response{
		ExitCode: 4,
		Stdout: "[WARNING]: something\n" + statsOutput(map[string]hostStats{
			"10.0.1.10": {OK: 5},
			"10.0.1.11": {Unreachable: 1},
		}),
	})
	a, _ := newTestAnsible(t, fake)

	result, err := a.Rollout(context.Background(), stagingRequest(), addrs)
	assert.ErrorIs(t, err, types.ErrRollout)
	assert.Equal(t, []string{"10.0.1.11"}, result.Failed())
}

func TestAnsible_ToolFailureWithoutOutput(t *testing.T) {
	fake := &runnertest.Fake{}
	fake.On("ansible-playbook", runnertest.Response{ExitCode: 1, Stderr: "ERROR! the playbook could not be found"})
	a, _ := newTestAnsible(t, fake)

	result, err := a.Rollout(context.Background(), stagingRequest(), addrs)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, types.ErrRollout)
	assert.Contains(t, err.Error(), "playbook could not be found")
}

func TestVarsFor(t *testing.T) {
	prod := VarsFor(types.DeploymentRequest{ID: "d", Environment: types.EnvironmentProduction, Image: "app:v1"}, nil)
	assert.Equal(t, true, prod["enable_tls"])
	assert.Equal(t, false, prod["debug"])
	assert.Equal(t, "d", prod["deployment_id"])

	dev := VarsFor(types.DeploymentRequest{Environment: types.EnvironmentDevelopment}, Vars{"workers": 3})
	assert.Equal(t, true, dev["debug"])
	assert.Equal(t, 3, dev["workers"])
	assert.Equal(t, 1, DefaultVars[types.EnvironmentDevelopment]["workers"], "defaults are not mutated")
}
