// Package validate implements the pre-flight environment validator. It is
// strictly read-only: it checks the requested environment against the
// allowed set, parses the image reference, checks the region name and
// timeouts, resolves required credentials through the credential chain,
// looks up required tool binaries, and finally runs the cloud identity
// command with the resolved credentials. Every failure is a
// types.KindValidation error; nothing has been mutated, so the orchestrator
// never rolls back after it.
package validate
