/*
Package log provides structured logging for Shepherd using zerolog.

The package wraps a global zerolog.Logger with component-specific child
loggers and a LineWriter that streams the output of external tools
(terraform, ansible-playbook) into the log one line at a time.

# Usage

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stderr,
	})

	logger := log.WithComponent("provisioner")
	logger.Info().Str("deployment_id", id).Msg("Applying infrastructure")

Streaming a subprocess:

	stdout := log.LineWriter(logger, zerolog.DebugLevel, "stdout")
	defer stdout.Close()
	cmd.Stdout = io.MultiWriter(&buf, stdout)

Console output is the default; JSON output is intended for CI pipelines
where the deployment report is scraped from the log stream.
*/
package log
