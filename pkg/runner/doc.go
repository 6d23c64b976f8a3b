// Package runner is the process boundary between Shepherd and the external
// tools it drives (terraform, ansible-playbook). Adapters build a Command,
// the Runner executes it and returns captured output; nothing above this
// package touches os/exec. Non-zero exits surface as *ExitError carrying
// the tail of stderr.
package runner
