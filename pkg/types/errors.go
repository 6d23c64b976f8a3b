package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a deployment failure
type ErrorKind string

const (
	KindValidation       ErrorKind = "validation"
	KindProvisioning     ErrorKind = "provisioning"
	KindReadinessTimeout ErrorKind = "readiness_timeout"
	KindRollout          ErrorKind = "rollout"
	KindHealthTimeout    ErrorKind = "health_timeout"
	KindRollback         ErrorKind = "rollback"
	KindCanceled         ErrorKind = "canceled"
)

// Sentinels for errors.Is; they match any DeployError of the same kind.
var (
	ErrValidation       = &DeployError{Kind: KindValidation}
	ErrProvisioning     = &DeployError{Kind: KindProvisioning}
	ErrReadinessTimeout = &DeployError{Kind: KindReadinessTimeout}
	ErrRollout          = &DeployError{Kind: KindRollout}
	ErrHealthTimeout    = &DeployError{Kind: KindHealthTimeout}
	ErrRollback         = &DeployError{Kind: KindRollback}
	ErrCanceled         = &DeployError{Kind: KindCanceled}
)

// DeployError is the typed failure every stage surfaces to the orchestrator
type DeployError struct {
	Kind    ErrorKind
	Message string

	// Addresses lists the instances implicated in the failure, if any
	Addresses []string

	Err error
}

// NewError creates a DeployError of the given kind
func NewError(kind ErrorKind, err error, format string, args ...any) *DeployError {
	return &DeployError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// WithAddresses attaches the implicated instance addresses
func (e *DeployError) WithAddresses(addrs []string) *DeployError {
	e.Addresses = append([]string(nil), addrs...)
	return e
}

func (e *DeployError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Addresses) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Addresses, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *DeployError) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind
func (e *DeployError) Is(target error) bool {
	t, ok := target.(*DeployError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// KindOf returns the kind of the first DeployError in err's chain
func KindOf(err error) ErrorKind {
	var de *DeployError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
