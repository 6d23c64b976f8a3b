/*
Package provision converges the instance fleet through an external
infrastructure-as-code tool.

The Provisioner interface isolates the orchestrator from the tool: it
receives a Shape (environment, image, region and sizing Profile) and returns
the resulting instance addresses. Terraform is the only implementation; it
writes shepherd.auto.tfvars.json into the run workspace and drives

	terraform init -input=false
	terraform apply -auto-approve -input=false -var-file=<workspace>/shepherd.auto.tfvars.json
	terraform output -json

CurrentState reads the same outputs plus `terraform state pull`. Restore
re-applies the previous image at the previous instance count against the
current state, so terraform replaces or destroys whatever the failed apply
created. The pulled snapshot is never pushed back; it is only written to the
recovery directory for an operator.

A successful apply that yields no addresses is a provisioning failure.
*/
package provision
