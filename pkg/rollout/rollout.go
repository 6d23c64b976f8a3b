package rollout

import (
	"context"
	"sort"

	"github.com/cuemby/shepherd/pkg/types"
	"github.com/samber/lo"
)

// Vars is the per-environment variable set handed to the configuration
// management tool
type Vars map[string]any

// DefaultVars holds the built-in variables per environment. Production is
// the strictest.
var DefaultVars = map[types.Environment]Vars{
	types.EnvironmentDevelopment: {
		"app_port":             5000,
		"debug":                true,
		"memory_limit":         "256m",
		"cpu_limit":            "0.25",
		"enable_tls":           false,
		"enable_rate_limiting": false,
		"workers":              1,
	},
	types.EnvironmentStaging: {
		"app_port":             5000,
		"debug":                false,
		"memory_limit":         "512m",
		"cpu_limit":            "0.5",
		"enable_tls":           false,
		"enable_rate_limiting": true,
		"workers":              2,
	},
	types.EnvironmentProduction: {
		"app_port":             5000,
		"debug":                false,
		"memory_limit":         "1g",
		"cpu_limit":            "1.0",
		"enable_tls":           true,
		"enable_rate_limiting": true,
		"workers":              4,
	},
}

// VarsFor merges override over the defaults of req.Environment and adds
// the run identity
func VarsFor(req types.DeploymentRequest, override Vars) Vars {
	base := DefaultVars[req.Environment]
	if base == nil {
		base = DefaultVars[types.EnvironmentDevelopment]
	}

	vars := lo.Assign(Vars{}, base, override)
	vars["app_image"] = req.Image
	vars["environment"] = string(req.Environment)
	vars["deployment_id"] = req.ID
	return vars
}

// HostResult is the outcome of the rollout on one host
type HostResult struct {
	Address     string `json:"address"`
	OK          bool   `json:"ok"`
	Failures    int    `json:"failures"`
	Unreachable int    `json:"unreachable"`
}

// Result is the per-host outcome of a rollout
type Result struct {
	Hosts []HostResult
}

// Failed returns the addresses whose rollout did not succeed, sorted
func (r *Result) Failed() []string {
	if r == nil {
		return nil
	}
	failed := lo.FilterMap(r.Hosts, func(h HostResult, _ int) (string, bool) {
		return h.Address, !h.OK
	})
	sort.Strings(failed)
	return failed
}

// Driver pushes the application onto a live instance set. A failure on
// any host fails the whole rollout.
type Driver interface {
	Rollout(ctx context.Context, req types.DeploymentRequest, addrs []string) (*Result, error)
}
