/*
Package config loads shepherd's configuration.

Values are layered with viper, lowest precedence first:

 1. Default(), rendered to YAML and read as the base document
 2. the file passed with --config
 3. SHEPHERD_* environment variables, with "." in keys replaced by "_"
    (SHEPHERD_DEPLOY_HEALTH_TIMEOUT=90s)
 4. command-line flags bound with Loader.BindFlag

Durations are Go duration strings. profiles.<environment> overrides the
instance sizing and the rollout variables of one environment:

	profiles:
	  production:
	    instance_count: 5
	    rollout_vars:
	      workers: 8
*/
package config
