package rollout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cuemby/shepherd/pkg/credentials"
	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/runner"
	"github.com/cuemby/shepherd/pkg/types"
	"github.com/cuemby/shepherd/pkg/workspace"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	inventoryFile = "inventory.yaml"
	varsFile      = "extra-vars.json"
	sshKeyFile    = "ssh/id_deploy"
)

// AnsibleConfig locates the playbook and describes how hosts are reached
type AnsibleConfig struct {
	// Binary is the ansible-playbook executable
	Binary string

	Playbook string

	// Dir is the working directory (roles, ansible.cfg)
	Dir string

	User    string
	SSHPort int

	// SSHKeyCredential names the credential holding the private key. When
	// it resolves to nothing the SSH agent is used.
	SSHKeyCredential string

	// Env is passed to every invocation
	Env []string
}

// Ansible is the Driver backed by ansible-playbook
type Ansible struct {
	cfg       AnsibleConfig
	runner    runner.Runner
	ws        *workspace.Workspace
	creds     credentials.Chain
	overrides map[types.Environment]Vars
	logger    zerolog.Logger
}

// NewAnsible creates an Ansible driver writing inventory and keys into ws
func NewAnsible(cfg AnsibleConfig, r runner.Runner, ws *workspace.Workspace, creds credentials.Chain) *Ansible {
	if cfg.Binary == "" {
		cfg.Binary = "ansible-playbook"
	}
	if cfg.User == "" {
		cfg.User = "ubuntu"
	}
	if cfg.SSHPort == 0 {
		cfg.SSHPort = 22
	}
	return &Ansible{
		cfg:       cfg,
		runner:    r,
		ws:        ws,
		creds:     creds,
		overrides: map[types.Environment]Vars{},
		logger:    log.WithComponent("rollout"),
	}
}

// WithVars overrides the default variables of env
func (a *Ansible) WithVars(env types.Environment, vars Vars) *Ansible {
	a.overrides[env] = vars
	return a
}

type inventoryHost struct {
	AnsibleHost string `yaml:"ansible_host"`
	AnsibleUser string `yaml:"ansible_user"`
	AnsiblePort int    `yaml:"ansible_port"`
	KeyFile     string `yaml:"ansible_ssh_private_key_file,omitempty"`
}

type inventory struct {
	All struct {
		Hosts map[string]inventoryHost `yaml:"hosts"`
	} `yaml:"all"`
}

// Rollout runs the playbook against addrs
func (a *Ansible) Rollout(ctx context.Context, req types.DeploymentRequest, addrs []string) (*Result, error) {
	logger := a.logger.With().Str("deployment_id", req.ID).Logger()

	keyPath, err := a.writeKey()
	if err != nil {
		return nil, types.NewError(types.KindRollout, err, "failed to prepare SSH key")
	}

	invPath, err := a.writeInventory(addrs, keyPath)
	if err != nil {
		return nil, types.NewError(types.KindRollout, err, "failed to write inventory")
	}

	data, err := json.Marshal(VarsFor(req, a.overrides[req.Environment]))
	if err != nil {
		return nil, types.NewError(types.KindRollout, err, "failed to encode variables")
	}
	varsPath, err := a.ws.WriteFile(varsFile, data, 0o600)
	if err != nil {
		return nil, types.NewError(types.KindRollout, err, "failed to write variables")
	}

	logger.Info().Strs("hosts", addrs).Str("playbook", a.cfg.Playbook).Msg("Rolling out")

	res, runErr := a.runner.Run(ctx, runner.Command{
		Name: a.cfg.Binary,
		Args: []string{"-i", invPath, "--extra-vars", "@" + varsPath, a.cfg.Playbook},
		Dir:  a.cfg.Dir,
		Env: append([]string{
			"ANSIBLE_STDOUT_CALLBACK=json",
			"ANSIBLE_HOST_KEY_CHECKING=False",
			"ANSIBLE_RETRY_FILES_ENABLED=False",
		}, a.cfg.Env...),
	})
	if runErr != nil && ctx.Err() != nil {
		return nil, types.NewError(types.KindCanceled, runErr, "rollout aborted")
	}

	var stdout []byte
	if res != nil {
		stdout = res.Stdout
	}
	result, parseErr := parseStats(stdout, addrs)
	if parseErr != nil {
		if runErr != nil {
			return nil, types.NewError(types.KindRollout, runErr, "ansible-playbook failed").WithAddresses(addrs)
		}
		return nil, types.NewError(types.KindRollout, parseErr, "unreadable ansible output")
	}

	if failed := result.Failed(); len(failed) > 0 {
		logger.Error().Strs("failed_hosts", failed).Msg("Rollout failed")
		return result, types.NewError(types.KindRollout, runErr, "%d of %d hosts failed", len(failed), len(addrs)).
			WithAddresses(failed)
	}
	if runErr != nil {
		return result, types.NewError(types.KindRollout, runErr, "ansible-playbook failed")
	}

	logger.Info().Int("hosts", len(addrs)).Msg("Rollout complete")
	return result, nil
}

func (a *Ansible) writeKey() (string, error) {
	if a.cfg.SSHKeyCredential == "" {
		return "", nil
	}
	key := a.creds.Get(a.cfg.SSHKeyCredential)
	if key == "" {
		a.logger.Debug().Str("credential", a.cfg.SSHKeyCredential).Msg("No SSH key credential, using agent")
		return "", nil
	}
	if !strings.HasSuffix(key, "\n") {
		key += "\n"
	}
	return a.ws.WriteFile(sshKeyFile, []byte(key), 0o600)
}

func (a *Ansible) writeInventory(addrs []string, keyPath string) (string, error) {
	var inv inventory
	inv.All.Hosts = make(map[string]inventoryHost, len(addrs))
	for _, addr := range addrs {
		inv.All.Hosts[addr] = inventoryHost{
			AnsibleHost: addr,
			AnsibleUser: a.cfg.User,
			AnsiblePort: a.cfg.SSHPort,
			KeyFile:     keyPath,
		}
	}

	data, err := yaml.Marshal(&inv)
	if err != nil {
		return "", err
	}
	return a.ws.WriteFile(inventoryFile, data, 0o600)
}

type hostStats struct {
	OK          int `json:"ok"`
	Changed     int `json:"changed"`
	Failures    int `json:"failures"`
	Unreachable int `json:"unreachable"`
	Skipped     int `json:"skipped"`
}

// parseStats reads the json callback output. A host absent from stats
// counts as failed.
func parseStats(stdout []byte, addrs []string) (*Result, error) {
	start := bytes.IndexByte(stdout, '{')
	if start < 0 {
		return nil, fmt.Errorf("no JSON document in output")
	}

	var doc struct {
		Stats map[string]hostStats `json:"stats"`
	}
	if err := json.Unmarshal(stdout[start:], &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON output: %w", err)
	}
	if doc.Stats == nil {
		return nil, fmt.Errorf("output has no stats block")
	}

	result := &Result{}
	for _, addr := range addrs {
		s, ok := doc.Stats[addr]
		result.Hosts = append(result.Hosts, HostResult{
			Address:     addr,
			OK:          ok && s.Failures == 0 && s.Unreachable == 0,
			Failures:    s.Failures,
			Unreachable: s.Unreachable,
		})
	}
	return result, nil
}

var _ Driver = (*Ansible)(nil)
