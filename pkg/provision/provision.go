package provision

import (
	"context"

	"github.com/cuemby/shepherd/pkg/types"
)

// Profile is the per-environment sizing used to build a Shape
type Profile struct {
	InstanceCount      int    `yaml:"instance_count" mapstructure:"instance_count"`
	InstanceType       string `yaml:"instance_type" mapstructure:"instance_type"`
	Monitoring         bool   `yaml:"monitoring" mapstructure:"monitoring"`
	DetailedMonitoring bool   `yaml:"detailed_monitoring" mapstructure:"detailed_monitoring"`
	RetentionDays      int    `yaml:"retention_days" mapstructure:"retention_days"`
}

// DefaultProfiles sizes production larger than staging, and staging larger
// than development
var DefaultProfiles = map[types.Environment]Profile{
	types.EnvironmentDevelopment: {
		InstanceCount: 1,
		InstanceType:  "t3.micro",
		RetentionDays: 7,
	},
	types.EnvironmentStaging: {
		InstanceCount: 2,
		InstanceType:  "t3.small",
		Monitoring:    true,
		RetentionDays: 14,
	},
	types.EnvironmentProduction: {
		InstanceCount:      3,
		InstanceType:       "t3.medium",
		Monitoring:         true,
		DetailedMonitoring: true,
		RetentionDays:      30,
	},
}

// ProfileFor returns the profile for env, with zero fields of override
// falling back to the default profile
func ProfileFor(env types.Environment, override *Profile) Profile {
	p, ok := DefaultProfiles[env]
	if !ok {
		p = DefaultProfiles[types.EnvironmentDevelopment]
	}
	if override == nil {
		return p
	}
	if override.InstanceCount > 0 {
		p.InstanceCount = override.InstanceCount
	}
	if override.InstanceType != "" {
		p.InstanceType = override.InstanceType
	}
	if override.RetentionDays > 0 {
		p.RetentionDays = override.RetentionDays
	}
	p.Monitoring = p.Monitoring || override.Monitoring
	p.DetailedMonitoring = p.DetailedMonitoring || override.DetailedMonitoring
	return p
}

// Shape is the desired fleet handed to the IaC tool
type Shape struct {
	Environment  types.Environment
	DeploymentID string
	Region       string
	Image        string
	Profile
}

// ShapeFor builds the desired shape of req under profile
func ShapeFor(req types.DeploymentRequest, profile Profile) Shape {
	return Shape{
		Environment:  req.Environment,
		DeploymentID: req.ID,
		Region:       req.Region,
		Image:        req.Image,
		Profile:      profile,
	}
}

// PriorState is the provisioner's view of what is currently deployed. An
// empty address list means there is no previous deployment.
type PriorState struct {
	Addresses []string
	Image     string

	// Handle is an opaque snapshot the provisioner can restore from
	Handle []byte
}

// Provisioner converges infrastructure through an external IaC tool. The
// orchestrator never calls it concurrently within a run.
type Provisioner interface {
	// CurrentState reads the existing deployment without mutating it
	CurrentState(ctx context.Context) (*PriorState, error)

	// Apply converges the fleet to shape and returns the resulting
	// instance addresses. An empty set is an error.
	Apply(ctx context.Context, shape Shape) ([]string, error)

	// Restore re-applies the state captured in backup
	Restore(ctx context.Context, backup *types.Backup) error
}
