package validate

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/cuemby/shepherd/pkg/credentials"
	"github.com/cuemby/shepherd/pkg/health"
	"github.com/cuemby/shepherd/pkg/log"
	"github.com/cuemby/shepherd/pkg/runner"
	"github.com/cuemby/shepherd/pkg/types"
	"github.com/distribution/reference"
	"github.com/rs/zerolog"
)

var regionPattern = regexp.MustCompile(`^[a-z]{2}(-[a-z]+)+-\d$`)

// Config controls which checks the validator performs
type Config struct {
	// Environments is the closed set of accepted environment names
	Environments []types.Environment

	// RequiredCredentials must all resolve through the credential chain
	RequiredCredentials []string

	// Tools must all be present on PATH
	Tools []string

	// IdentityCommand confirms the credentials are accepted by the cloud
	// (e.g. aws sts get-caller-identity). Empty skips the check.
	IdentityCommand []string

	IdentityTimeout time.Duration
}

// Validator performs read-only pre-flight checks before any mutation
type Validator struct {
	cfg      Config
	creds    credentials.Chain
	lookPath func(string) (string, error)
	identity func(env []string) health.Checker
	logger   zerolog.Logger
}

// NewValidator creates a validator resolving credentials through creds
func NewValidator(cfg Config, creds credentials.Chain) *Validator {
	if len(cfg.Environments) == 0 {
		cfg.Environments = types.DefaultEnvironments
	}
	v := &Validator{
		cfg:      cfg,
		creds:    creds,
		lookPath: runner.LookPath,
		logger:   log.WithComponent("validator"),
	}
	v.identity = func(env []string) health.Checker {
		return health.NewExecChecker(cfg.IdentityCommand).
			WithEnv(env...).
			WithTimeout(cfg.IdentityTimeout)
	}
	return v
}

// WithLookPath replaces the PATH lookup (tests)
func (v *Validator) WithLookPath(fn func(string) (string, error)) *Validator {
	v.lookPath = fn
	return v
}

// WithIdentityChecker replaces the identity check (tests)
func (v *Validator) WithIdentityChecker(fn func(env []string) health.Checker) *Validator {
	v.identity = fn
	return v
}

// Validate checks the request and the ambient credential/tool context.
// Static problems are reported together; the identity check only runs
// once they are all resolved.
func (v *Validator) Validate(ctx context.Context, req types.DeploymentRequest) error {
	var problems []string

	if !slices.Contains(v.cfg.Environments, req.Environment) {
		problems = append(problems, fmt.Sprintf("environment %q is not one of %v", req.Environment, v.cfg.Environments))
	}
	if strings.TrimSpace(req.ID) == "" {
		problems = append(problems, "deployment id is empty")
	}
	if err := checkImage(req.Image); err != nil {
		problems = append(problems, err.Error())
	}
	if !regionPattern.MatchString(req.Region) {
		problems = append(problems, fmt.Sprintf("region %q is not a valid region name", req.Region))
	}
	if req.MaxDuration <= 0 {
		problems = append(problems, "max deployment duration must be positive")
	}
	if req.HealthTimeout <= 0 {
		problems = append(problems, "health check timeout must be positive")
	}
	if missing := v.creds.Missing(v.cfg.RequiredCredentials); len(missing) > 0 {
		problems = append(problems, fmt.Sprintf("missing credentials: %s", strings.Join(missing, ", ")))
	}
	if missing := v.missingTools(); len(missing) > 0 {
		problems = append(problems, fmt.Sprintf("missing tools on PATH: %s", strings.Join(missing, ", ")))
	}

	if len(problems) > 0 {
		v.logger.Error().Strs("problems", problems).Msg("Validation failed")
		return types.NewError(types.KindValidation, nil, "%s", strings.Join(problems, "; "))
	}

	if len(v.cfg.IdentityCommand) > 0 {
		result := v.identity(v.creds.Environ(v.cfg.RequiredCredentials)).Check(ctx)
		if !result.Healthy {
			v.logger.Error().Str("result", result.Message).Msg("Cloud identity check failed")
			return types.NewError(types.KindValidation, nil, "credentials rejected by identity check: %s", result.Message)
		}
		v.logger.Debug().Dur("duration", result.Duration).Msg("Cloud identity confirmed")
	}

	v.logger.Info().
		Str("environment", string(req.Environment)).
		Str("image", req.Image).
		Str("region", req.Region).
		Msg("Validation passed")
	return nil
}

func (v *Validator) missingTools() []string {
	var missing []string
	for _, tool := range v.cfg.Tools {
		if _, err := v.lookPath(tool); err != nil {
			missing = append(missing, tool)
		}
	}
	return missing
}

func checkImage(image string) error {
	if strings.TrimSpace(image) == "" {
		return fmt.Errorf("image reference is empty")
	}
	if _, err := reference.ParseNormalizedNamed(image); err != nil {
		return fmt.Errorf("image reference %q is invalid: %v", image, err)
	}
	return nil
}
