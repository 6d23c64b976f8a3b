package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// ExportConfig selects where metrics go when a run ends. A CLI process is
// gone before any scraper could reach it, so metrics are either written to
// a node-exporter textfile or pushed to a Pushgateway.
type ExportConfig struct {
	// TextfilePath is a .prom file for the node-exporter textfile collector
	TextfilePath string `yaml:"textfile_path" mapstructure:"textfile_path"`

	// PushgatewayURL is the base URL of a Prometheus Pushgateway
	PushgatewayURL string `yaml:"pushgateway_url" mapstructure:"pushgateway_url"`

	// Job is the Pushgateway job label (default: shepherd)
	Job string `yaml:"job" mapstructure:"job"`
}

// Enabled reports whether any export target is configured
func (c ExportConfig) Enabled() bool {
	return c.TextfilePath != "" || c.PushgatewayURL != ""
}

// Export writes the default registry to every configured target
func Export(ctx context.Context, cfg ExportConfig, environment string) error {
	return ExportFrom(ctx, cfg, environment, prometheus.DefaultGatherer)
}

// ExportFrom writes g to every configured target
func ExportFrom(ctx context.Context, cfg ExportConfig, environment string, g prometheus.Gatherer) error {
	if cfg.TextfilePath != "" {
		if err := prometheus.WriteToTextfile(cfg.TextfilePath, g); err != nil {
			return fmt.Errorf("failed to write metrics textfile: %w", err)
		}
	}

	if cfg.PushgatewayURL != "" {
		job := cfg.Job
		if job == "" {
			job = "shepherd"
		}
		pusher := push.New(cfg.PushgatewayURL, job).Gatherer(g)
		if environment != "" {
			pusher = pusher.Grouping("environment", environment)
		}
		if err := pusher.PushContext(ctx); err != nil {
			return fmt.Errorf("failed to push metrics: %w", err)
		}
	}
	return nil
}
