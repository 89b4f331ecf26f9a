// Package bindings loads the object-type-to-handler binding file that
// wires record types to registered handler names at startup.
package bindings

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/esino-sf/lightweight-apex-trigger-framework/pkg/authz"
	"github.com/esino-sf/lightweight-apex-trigger-framework/pkg/trigger"
)

// File is the on-disk binding document.
//
//	version: 1
//	authz_mode: enforce
//	handlers:
//	  Opportunity: OpportunityHandler
type File struct {
	Version   int               `yaml:"version"`
	AuthzMode string            `yaml:"authz_mode"`
	Handlers  map[string]string `yaml:"handlers"`
}

func Parse(b []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return File{}, err
	}
	if f.Version != 1 {
		return File{}, trigger.NewConfiguration("bindings: unsupported version %d", f.Version)
	}
	if len(f.Handlers) == 0 {
		return File{}, trigger.NewConfiguration("bindings: no handlers bound")
	}
	for objectType, handlerName := range f.Handlers {
		if objectType == "" || handlerName == "" {
			return File{}, trigger.NewConfiguration("bindings: empty object type or handler name")
		}
	}
	switch f.AuthzMode {
	case "", string(authz.ModeEnforce), string(authz.ModeShadow), string(authz.ModeDisabled):
	default:
		return File{}, trigger.NewConfiguration("bindings: unknown authz_mode %q", f.AuthzMode)
	}
	return f, nil
}

func Load(path string) (File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	return Parse(b)
}

// HandlerFor resolves the canonical handler name bound to an object
// type. Unbound types resolve to "", which the dispatcher treats as a
// configuration error at invocation time.
func (f File) HandlerFor(objectType string) string {
	name, ok := f.Handlers[objectType]
	if !ok {
		return ""
	}
	return trigger.CanonicalHandlerName(name)
}

// Verify checks every bound handler name against the registry, so a
// typo in the binding file fails at startup rather than on the first
// write.
func (f File) Verify(reg *trigger.Registry) error {
	for objectType := range f.Handlers {
		if _, err := reg.Resolve(f.HandlerFor(objectType)); err != nil {
			return err
		}
	}
	return nil
}
