// Package authz answers one question for the trigger framework: may the
// current actor create, update, delete, or undelete records of a given
// object type. Every after phase of a trigger invocation consults this
// before running any hook, because after hooks may cascade writes to
// other object types.
package authz

import (
	"errors"
	"os"
	"strings"

	"github.com/casbin/casbin/v2"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
)

// Action is one of the four record capabilities an actor can hold on an
// object type.
type Action string

const (
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionUndelete Action = "undelete"
)

// Capabilities is the type capability descriptor consulted by the
// trigger framework's after phases.
type Capabilities interface {
	Can(subject string, domain string, objectType string, action Action) (bool, error)
}

type Mode string

const (
	ModeEnforce  Mode = "enforce"
	ModeShadow   Mode = "shadow"
	ModeDisabled Mode = "disabled"
)

func ModeFromEnv() (Mode, error) {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv("TRIGGER_AUTHZ_MODE")))
	if raw == "" {
		return ModeEnforce, nil
	}
	switch Mode(raw) {
	case ModeEnforce, ModeShadow:
		return Mode(raw), nil
	case ModeDisabled:
		if os.Getenv("TRIGGER_AUTHZ_UNSAFE_ALLOW_DISABLED") != "1" {
			return "", errors.New("authz: TRIGGER_AUTHZ_MODE=disabled requires TRIGGER_AUTHZ_UNSAFE_ALLOW_DISABLED=1")
		}
		return ModeDisabled, nil
	default:
		return "", errors.New("authz: invalid TRIGGER_AUTHZ_MODE (expected enforce|shadow|disabled)")
	}
}

// Enforcer backs Capabilities with a casbin policy. Subjects are role
// slugs, domains are tenant ids, objects are object type names and
// actions are the four record capabilities.
type Enforcer struct {
	enforcer *casbin.Enforcer
	mode     Mode
}

func NewEnforcer(modelPath string, policyPath string, mode Mode) (*Enforcer, error) {
	adapter := fileadapter.NewAdapter(policyPath)
	enforcer, err := casbin.NewEnforcer(modelPath)
	if err != nil {
		return nil, err
	}
	enforcer.SetAdapter(adapter)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	return &Enforcer{enforcer: enforcer, mode: mode}, nil
}

func SubjectFromRoleSlug(roleSlug string) string {
	roleSlug = strings.TrimSpace(strings.ToLower(roleSlug))
	if roleSlug == "" {
		roleSlug = RoleAnonymous
	}
	return "role:" + roleSlug
}

func DomainFromTenantID(tenantID string) string {
	return strings.ToLower(strings.TrimSpace(tenantID))
}

func (e *Enforcer) Can(subject string, domain string, objectType string, action Action) (bool, error) {
	switch e.mode {
	case ModeDisabled:
		return true, nil
	case ModeShadow:
		// Evaluated for observability, never blocking.
		if _, err := e.enforcer.Enforce(subject, domain, objectType, string(action)); err != nil {
			return false, err
		}
		return true, nil
	case ModeEnforce:
		return e.enforcer.Enforce(subject, domain, objectType, string(action))
	default:
		return false, errors.New("authz: unknown mode")
	}
}

// ObjectCapabilities is one object type's static grant set.
type ObjectCapabilities struct {
	Create   bool
	Update   bool
	Delete   bool
	Undelete bool
}

// Static is a map-backed Capabilities keyed by object type, for tests
// and single-binary wiring. Subject and domain are ignored.
type Static map[string]ObjectCapabilities

func (s Static) Can(_ string, _ string, objectType string, action Action) (bool, error) {
	caps, ok := s[objectType]
	if !ok {
		return false, nil
	}
	switch action {
	case ActionCreate:
		return caps.Create, nil
	case ActionUpdate:
		return caps.Update, nil
	case ActionDelete:
		return caps.Delete, nil
	case ActionUndelete:
		return caps.Undelete, nil
	default:
		return false, errors.New("authz: unknown action")
	}
}
