package validate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuemby/shepherd/pkg/credentials"
	"github.com/cuemby/shepherd/pkg/health"
	"github.com/cuemby/shepherd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource map[string]string

func (s stubSource) Lookup(name string) (string, bool) {
	v, ok := s[name]
	return v, ok && v != ""
}

func (s stubSource) Name() string { return "stub" }

type stubChecker struct {
	healthy bool
	gotEnv  *[]string
}

func (c stubChecker) Check(ctx context.Context) health.Result {
	return health.Result{Healthy: c.healthy, Message: "stub"}
}

func (c stubChecker) Type() health.CheckType { return health.CheckTypeExec }

func allTools(string) (string, error) { return "/usr/bin/tool", nil }

func validRequest() types.DeploymentRequest {
	return types.DeploymentRequest{
		ID:            "deploy-1",
		Environment:   types.EnvironmentStaging,
		Image:         "ghcr.io/acme/sentiment-api:v1.4.2",
		Region:        "us-east-1",
		MaxDuration:   30 * time.Minute,
		HealthTimeout: 5 * time.Minute,
	}
}

func newValidator(creds stubSource, identityHealthy bool) (*Validator, *[]string) {
	var gotEnv []string
	v := NewValidator(Config{
		RequiredCredentials: []string{"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY"},
		Tools:               []string{"terraform", "ansible-playbook"},
		IdentityCommand:     []string{"aws", "sts", "get-caller-identity"},
	}, credentials.Chain{creds}).
		WithLookPath(allTools).
		WithIdentityChecker(func(env []string) health.Checker {
			gotEnv = env
			return stubChecker{healthy: identityHealthy}
		})
	return v, &gotEnv
}

var goodCreds = stubSource{"AWS_ACCESS_KEY_ID": "AKIA", "AWS_SECRET_ACCESS_KEY": "s3cr3t"}

func TestValidate_Passes(t *testing.T) {
	v, env := newValidator(goodCreds, true)

	require.NoError(t, v.Validate(context.Background(), validRequest()))
	assert.ElementsMatch(t, []string{"AWS_ACCESS_KEY_ID=AKIA", "AWS_SECRET_ACCESS_KEY=s3cr3t"}, *env)
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.DeploymentRequest)
		want   string
	}{
		{"unknown environment", func(r *types.DeploymentRequest) { r.Environment = "qa" }, `environment "qa"`},
		{"empty environment", func(r *types.DeploymentRequest) { r.Environment = "" }, "environment"},
		{"empty id", func(r *types.DeploymentRequest) { r.ID = " " }, "deployment id"},
		{"empty image", func(r *types.DeploymentRequest) { r.Image = "" }, "image reference is empty"},
		{"bad image", func(r *types.DeploymentRequest) { r.Image = "UPPER/Case:tag" }, "invalid"},
		{"bad region", func(r *types.DeploymentRequest) { r.Region = "mars" }, "region"},
		{"zero duration", func(r *types.DeploymentRequest) { r.MaxDuration = 0 }, "max deployment duration"},
		{"zero health timeout", func(r *types.DeploymentRequest) { r.HealthTimeout = 0 }, "health check timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _ := newValidator(goodCreds, true)
			req := validRequest()
			tt.mutate(&req)

			err := v.Validate(context.Background(), req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrValidation))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_MissingCredentials(t *testing.T) {
	v, _ := newValidator(stubSource{"AWS_ACCESS_KEY_ID": "AKIA"}, true)

	err := v.Validate(context.Background(), validRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.Contains(t, err.Error(), "AWS_SECRET_ACCESS_KEY")
}

func TestValidate_MissingTools(t *testing.T) {
	v, _ := newValidator(goodCreds, true)
	v.WithLookPath(func(name string) (string, error) {
		if name == "ansible-playbook" {
			return "", errors.New("not found")
		}
		return "/usr/bin/" + name, nil
	})

	err := v.Validate(context.Background(), validRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ansible-playbook")
	assert.NotContains(t, err.Error(), "terraform")
}

func TestValidate_IdentityRejected(t *testing.T) {
	v, _ := newValidator(goodCreds, false)

	err := v.Validate(context.Background(), validRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.Contains(t, err.Error(), "identity")
}

func TestValidate_IdentitySkippedWhenStaticChecksFail(t *testing.T) {
	called := false
	v, _ := newValidator(goodCreds, true)
	v.WithIdentityChecker(func(env []string) health.Checker {
		called = true
		return stubChecker{healthy: true}
	})

	req := validRequest()
	req.Environment = "qa"
	require.Error(t, v.Validate(context.Background(), req))
	assert.False(t, called)
}

func TestValidate_CustomEnvironmentSet(t *testing.T) {
	v := NewValidator(Config{Environments: []types.Environment{"qa"}}, credentials.Chain{}).WithLookPath(allTools)

	req := validRequest()
	req.Environment = "qa"
	assert.NoError(t, v.Validate(context.Background(), req))

	req.Environment = types.EnvironmentProduction
	assert.Error(t, v.Validate(context.Background(), req))
}
