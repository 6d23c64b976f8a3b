package convergence

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cuemby/shepherd/pkg/health"
)

// DefaultFunctionalBody is the synthetic input of the functional probe
const DefaultFunctionalBody = `{"text":"Deployment verification: this release looks great!"}`

// ProbeConfig describes the liveness and functional endpoints of the
// application
type ProbeConfig struct {
	Scheme string `yaml:"scheme" mapstructure:"scheme"`
	Port   int    `yaml:"port" mapstructure:"port"`

	LivenessPath  string `yaml:"liveness_path" mapstructure:"liveness_path"`
	LivenessField string `yaml:"liveness_field" mapstructure:"liveness_field"`
	LivenessValue string `yaml:"liveness_value" mapstructure:"liveness_value"`

	FunctionalPath  string `yaml:"functional_path" mapstructure:"functional_path"`
	FunctionalBody  string `yaml:"functional_body" mapstructure:"functional_body"`
	FunctionalField string `yaml:"functional_field" mapstructure:"functional_field"`

	// Timeout bounds a single probe request
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// DefaultProbeConfig matches the sentiment API
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		Scheme:          "http",
		Port:            5000,
		LivenessPath:    "/health",
		LivenessField:   "status",
		LivenessValue:   "healthy",
		FunctionalPath:  "/analyze",
		FunctionalBody:  DefaultFunctionalBody,
		FunctionalField: "sentiment",
		Timeout:         10 * time.Second,
	}
}

func (c ProbeConfig) url(addr, path string) string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = "http"
	}
	host := addr
	if c.Port > 0 {
		host = net.JoinHostPort(addr, strconv.Itoa(c.Port))
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, path)
}

// Liveness returns the GET probe requiring the healthy marker
func (c ProbeConfig) Liveness() health.CheckerFunc {
	return func(addr string) health.Checker {
		return health.NewHTTPChecker(c.url(addr, c.LivenessPath)).
			WithStatusRange(http.StatusOK, http.StatusOK).
			WithField(c.LivenessField, c.LivenessValue).
			WithTimeout(c.Timeout)
	}
}

// Functional returns the POST probe exercising the real request path
func (c ProbeConfig) Functional() health.CheckerFunc {
	return func(addr string) health.Checker {
		return health.NewHTTPChecker(c.url(addr, c.FunctionalPath)).
			WithMethod(http.MethodPost).
			WithJSONBody([]byte(c.FunctionalBody)).
			WithStatusRange(http.StatusOK, http.StatusOK).
			WithField(c.FunctionalField, "").
			WithTimeout(c.Timeout)
	}
}
