package config

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cuemby/shepherd/pkg/convergence"
	"github.com/cuemby/shepherd/pkg/metrics"
	"github.com/cuemby/shepherd/pkg/provision"
	"github.com/cuemby/shepherd/pkg/readiness"
	"github.com/cuemby/shepherd/pkg/rollout"
	"github.com/cuemby/shepherd/pkg/types"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable override
const EnvPrefix = "SHEPHERD"

// Config is the complete shepherd configuration
type Config struct {
	Environments []string `yaml:"environments" mapstructure:"environments"`

	// DataDir holds the report database
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// WorkDir is the parent of per-run workspaces; empty means the OS temp dir
	WorkDir string `yaml:"work_dir" mapstructure:"work_dir"`

	Log         LogConfig                `yaml:"log" mapstructure:"log"`
	Credentials CredentialsConfig        `yaml:"credentials" mapstructure:"credentials"`
	Validation  ValidationConfig         `yaml:"validation" mapstructure:"validation"`
	Deploy      DeployConfig             `yaml:"deploy" mapstructure:"deploy"`
	Terraform   TerraformConfig          `yaml:"terraform" mapstructure:"terraform"`
	Ansible     AnsibleConfig            `yaml:"ansible" mapstructure:"ansible"`
	Readiness   readiness.Config         `yaml:"readiness" mapstructure:"readiness"`
	Probes      convergence.ProbeConfig  `yaml:"probes" mapstructure:"probes"`
	Health      HealthConfig             `yaml:"health" mapstructure:"health"`
	Rollback    RollbackConfig           `yaml:"rollback" mapstructure:"rollback"`
	Notify      NotifyConfig             `yaml:"notify" mapstructure:"notify"`
	Metrics     metrics.ExportConfig     `yaml:"metrics" mapstructure:"metrics"`
	Profiles    map[string]ProfileConfig `yaml:"profiles" mapstructure:"profiles"`
}

type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	JSON  bool   `yaml:"json" mapstructure:"json"`
}

type CredentialsConfig struct {
	DotenvFile     string   `yaml:"dotenv_file" mapstructure:"dotenv_file"`
	KeyringService string   `yaml:"keyring_service" mapstructure:"keyring_service"`
	Required       []string `yaml:"required" mapstructure:"required"`
	SSHKey         string   `yaml:"ssh_key" mapstructure:"ssh_key"`
}

type ValidationConfig struct {
	Tools           []string      `yaml:"tools" mapstructure:"tools"`
	IdentityCommand []string      `yaml:"identity_command" mapstructure:"identity_command"`
	IdentityTimeout time.Duration `yaml:"identity_timeout" mapstructure:"identity_timeout"`
}

type DeployConfig struct {
	Region        string        `yaml:"region" mapstructure:"region"`
	MaxDuration   time.Duration `yaml:"max_duration" mapstructure:"max_duration"`
	HealthTimeout time.Duration `yaml:"health_timeout" mapstructure:"health_timeout"`
	Backup        bool          `yaml:"backup" mapstructure:"backup"`
	Rollback      bool          `yaml:"rollback" mapstructure:"rollback"`
	Notify        bool          `yaml:"notify" mapstructure:"notify"`
}

type TerraformConfig struct {
	Binary        string `yaml:"binary" mapstructure:"binary"`
	Dir           string `yaml:"dir" mapstructure:"dir"`
	AddressOutput string `yaml:"address_output" mapstructure:"address_output"`
	ImageOutput   string `yaml:"image_output" mapstructure:"image_output"`

	// RecoveryDir keeps state snapshots of rolled back runs; empty means
	// <data_dir>/recovery
	RecoveryDir string `yaml:"recovery_dir" mapstructure:"recovery_dir"`
}

type AnsibleConfig struct {
	Binary   string `yaml:"binary" mapstructure:"binary"`
	Playbook string `yaml:"playbook" mapstructure:"playbook"`
	Dir      string `yaml:"dir" mapstructure:"dir"`
	User     string `yaml:"user" mapstructure:"user"`
	SSHPort  int    `yaml:"ssh_port" mapstructure:"ssh_port"`
}

type HealthConfig struct {
	Interval         time.Duration `yaml:"interval" mapstructure:"interval"`
	LatencyThreshold time.Duration `yaml:"latency_threshold" mapstructure:"latency_threshold"`
}

type RollbackConfig struct {
	Settle  time.Duration `yaml:"settle" mapstructure:"settle"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type NotifyConfig struct {
	WebhookURL string        `yaml:"webhook_url" mapstructure:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ProfileConfig overrides sizing and rollout variables for one environment
type ProfileConfig struct {
	provision.Profile `yaml:",inline" mapstructure:",squash"`
	RolloutVars       map[string]any `yaml:"rollout_vars,omitempty" mapstructure:"rollout_vars"`
}

// Default returns the built-in configuration
func Default() *Config {
	profiles := make(map[string]ProfileConfig, len(provision.DefaultProfiles))
	for env, p := range provision.DefaultProfiles {
		profiles[string(env)] = ProfileConfig{Profile: p}
	}

	envs := make([]string, 0, len(types.DefaultEnvironments))
	for _, e := range types.DefaultEnvironments {
		envs = append(envs, string(e))
	}

	return &Config{
		Environments: envs,
		DataDir:      ".shepherd",
		Log:          LogConfig{Level: "info"},
		Credentials: CredentialsConfig{
			DotenvFile:     ".env",
			KeyringService: "shepherd",
			Required:       []string{"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY"},
			SSHKey:         "SSH_PRIVATE_KEY",
		},
		Validation: ValidationConfig{
			Tools:           []string{"terraform", "ansible-playbook"},
			IdentityCommand: []string{"aws", "sts", "get-caller-identity"},
			IdentityTimeout: 30 * time.Second,
		},
		Deploy: DeployConfig{
			Region:        "us-east-1",
			MaxDuration:   30 * time.Minute,
			HealthTimeout: 5 * time.Minute,
			Backup:        true,
			Rollback:      true,
		},
		Terraform: TerraformConfig{
			Binary:        "terraform",
			Dir:           "infrastructure/terraform",
			AddressOutput: "instance_ips",
			ImageOutput:   "image_uri",
		},
		Ansible: AnsibleConfig{
			Binary:   "ansible-playbook",
			Playbook: "deploy.yml",
			Dir:      "infrastructure/ansible",
			User:     "ubuntu",
			SSHPort:  22,
		},
		Readiness: readiness.Config{
			Protocol:    readiness.ProtocolTCP,
			Port:        22,
			Interval:    15 * time.Second,
			Timeout:     10 * time.Minute,
			DialTimeout: 5 * time.Second,
		},
		Probes: convergence.DefaultProbeConfig(),
		Health: HealthConfig{
			Interval:         10 * time.Second,
			LatencyThreshold: 2 * time.Second,
		},
		Rollback: RollbackConfig{
			Settle:  30 * time.Second,
			Timeout: 15 * time.Minute,
		},
		Notify: NotifyConfig{
			Timeout: 10 * time.Second,
		},
		Metrics:  metrics.ExportConfig{Job: "shepherd"},
		Profiles: profiles,
	}
}

// Loader layers defaults, a YAML file, SHEPHERD_* environment variables
// and bound command-line flags, in increasing precedence
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader seeded with Default()
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// BindFlag makes flag override key when it is set on the command line
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("no flag for config key %s", key)
	}
	return l.v.BindPFlag(key, flag)
}

// Load reads path (optional) over the defaults and returns the result
func (l *Loader) Load(path string) (*Config, error) {
	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("failed to encode defaults: %w", err)
	}
	if err := l.v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is a shortcut for NewLoader().Load(path)
func Load(path string) (*Config, error) {
	return NewLoader().Load(path)
}

// Validate rejects configurations that would make a run unbounded
func (c *Config) Validate() error {
	var problems []string
	positive := map[string]time.Duration{
		"readiness.interval":    c.Readiness.Interval,
		"readiness.timeout":     c.Readiness.Timeout,
		"health.interval":       c.Health.Interval,
		"deploy.max_duration":   c.Deploy.MaxDuration,
		"deploy.health_timeout": c.Deploy.HealthTimeout,
		"rollback.timeout":      c.Rollback.Timeout,
		"probes.timeout":        c.Probes.Timeout,
	}
	for _, key := range sortedKeys(positive) {
		if positive[key] <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive", key))
		}
	}
	if c.Rollback.Settle < 0 {
		problems = append(problems, "rollback.settle must not be negative")
	}
	if len(c.Environments) == 0 {
		problems = append(problems, "environments must not be empty")
	}
	if c.Ansible.Playbook == "" {
		problems = append(problems, "ansible.playbook is required")
	}
	if _, err := readiness.CheckerFor(c.Readiness); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// AllowedEnvironments returns Environments as typed values
func (c *Config) AllowedEnvironments() []types.Environment {
	out := make([]types.Environment, 0, len(c.Environments))
	for _, e := range c.Environments {
		out = append(out, types.Environment(e))
	}
	return out
}

// ProfileFor returns the provisioning profile of env. A configured profile
// is used as is once it names an instance count and type.
func (c *Config) ProfileFor(env types.Environment) provision.Profile {
	p, ok := c.Profiles[string(env)]
	if !ok {
		return provision.ProfileFor(env, nil)
	}
	if p.InstanceCount > 0 && p.InstanceType != "" {
		return p.Profile
	}
	return provision.ProfileFor(env, &p.Profile)
}

// RolloutVarsFor returns the configured rollout variable overrides of env
func (c *Config) RolloutVarsFor(env types.Environment) rollout.Vars {
	if p, ok := c.Profiles[string(env)]; ok && len(p.RolloutVars) > 0 {
		return rollout.Vars(p.RolloutVars)
	}
	return nil
}

// RecoveryDir returns where rollback state snapshots are kept
func (c *Config) RecoveryDir() string {
	if c.Terraform.RecoveryDir != "" {
		return c.Terraform.RecoveryDir
	}
	return filepath.Join(c.DataDir, "recovery")
}

// YAML renders the configuration as YAML
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func sortedKeys(m map[string]time.Duration) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
