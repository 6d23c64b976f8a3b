// Package report emits the terminal record of a deployment run: a
// structured deployment_report log event, a row in the durable report log
// and, when enabled, a webhook notification. Delivery failures are logged
// and never alter the run's status.
package report
