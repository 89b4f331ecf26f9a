// Package fieldrule evaluates declarative validation rules over record
// fields. A rule pairs an eligibility expression (does the rule apply
// to this record) with a requirement expression (does the record pass);
// both are CEL programs over the record's field map. Failing records
// get a field-level error annotation, never a returned error: rule
// outcomes are data signals for the persistence layer.
package fieldrule

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/esino-sf/lightweight-apex-trigger-framework/pkg/sobject"
)

// Rule is one validation rule. When is optional and defaults to true.
// Expressions see the variable `record` as map[string]string holding
// the record's set fields; guard key presence with `"key" in record`.
type Rule struct {
	Field   string
	When    string
	Expr    string
	Message string
}

type compiledRule struct {
	rule    Rule
	when    cel.Program
	require cel.Program
}

// Set is a compiled, reusable group of rules. Handlers are constructed
// once per invocation, so compiled programs are cached process-wide by
// expression text.
type Set struct {
	rules []compiledRule
}

var newRuleEnv = func() (*cel.Env, error) {
	return cel.NewEnv(cel.Variable("record", cel.MapType(cel.StringType, cel.StringType)))
}

var ruleProgramCache sync.Map

func loadOrCompileRuleProgram(expr string) (cel.Program, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("fieldrule: expression required")
	}
	if cached, ok := ruleProgramCache.Load(expr); ok {
		return cached.(cel.Program), nil
	}
	env, err := newRuleEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if ast.OutputType() != cel.BoolType {
		return nil, errors.New("fieldrule: expression must evaluate to bool")
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	ruleProgramCache.Store(expr, program)
	return program, nil
}

// Compile builds a rule set. A rule with no requirement expression or a
// non-bool expression is rejected.
func Compile(rules []Rule) (*Set, error) {
	out := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		when := strings.TrimSpace(rule.When)
		if when == "" {
			when = "true"
		}
		whenProgram, err := loadOrCompileRuleProgram(when)
		if err != nil {
			return nil, err
		}
		requireProgram, err := loadOrCompileRuleProgram(rule.Expr)
		if err != nil {
			return nil, err
		}
		out = append(out, compiledRule{rule: rule, when: whenProgram, require: requireProgram})
	}
	return &Set{rules: out}, nil
}

// MustCompile is Compile for process-start rule sets.
func MustCompile(rules []Rule) *Set {
	set, err := Compile(rules)
	if err != nil {
		panic(err)
	}
	return set
}

func evalBool(program cel.Program, fields map[string]string) (bool, error) {
	out, _, err := program.Eval(map[string]any{"record": fields})
	if err != nil {
		return false, err
	}
	v, ok := out.Value().(bool)
	if !ok {
		return false, errors.New("fieldrule: expression did not produce bool")
	}
	return v, nil
}

// Apply evaluates every rule against every record and annotates the
// records that fail. A rule that errors at evaluation time (a rule
// programming mistake, typically an unguarded key lookup) also
// annotates the record: a broken rule rejects rather than admits.
func (s *Set) Apply(batch []*sobject.Record) {
	for _, record := range batch {
		fields := record.Fields()
		for _, cr := range s.rules {
			eligible, err := evalBool(cr.when, fields)
			if err != nil {
				record.AddError("validation rule error: " + err.Error())
				continue
			}
			if !eligible {
				continue
			}
			passes, err := evalBool(cr.require, fields)
			if err != nil {
				record.AddError("validation rule error: " + err.Error())
				continue
			}
			if passes {
				continue
			}
			if cr.rule.Field != "" {
				record.AddFieldError(cr.rule.Field, cr.rule.Message)
			} else {
				record.AddError(cr.rule.Message)
			}
		}
	}
}
