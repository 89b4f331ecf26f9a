package trigger

import (
	"errors"
	"fmt"

	"github.com/esino-sf/lightweight-apex-trigger-framework/pkg/authz"
)

// AuthorizationError aborts an after phase before any hook runs: the
// capability descriptor denied the action on the object type. It is
// fatal to the current invocation and never retried.
type AuthorizationError struct {
	Action     authz.Action
	ObjectType string
	Subject    string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("trigger: %s denied %s on %s", e.Subject, e.Action, e.ObjectType)
}

func IsAuthorization(err error) bool {
	var target *AuthorizationError
	return errors.As(err, &target)
}

// ConfigurationError reports a wiring mistake: an unresolvable or
// doubly registered handler. Fatal and non-retryable.
type ConfigurationError struct {
	msg string
}

func (e *ConfigurationError) Error() string { return e.msg }

func NewConfiguration(format string, args ...any) error {
	return &ConfigurationError{msg: "trigger: " + fmt.Sprintf(format, args...)}
}

func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}
