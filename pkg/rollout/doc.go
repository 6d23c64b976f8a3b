/*
Package rollout pushes a new application version onto a live instance set
through a configuration-management tool.

The Ansible driver writes three files into the run workspace: a YAML
inventory listing every address under all.hosts, the extra variables as
JSON, and the SSH private key (mode 0600) when the key credential is set.
It then runs

	ansible-playbook -i inventory.yaml --extra-vars @extra-vars.json <playbook>

with ANSIBLE_STDOUT_CALLBACK=json and reads the per-host outcome from the
stats block of the output. A host with failures, an unreachable host, or a
host missing from stats fails the whole rollout.
*/
package rollout
