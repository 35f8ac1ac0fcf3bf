package enforcement

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// invariantCostLimit bounds evaluation of a single invariant so a
// pathological expression cannot stall an authorization check.
const invariantCostLimit = 10_000

// invariantEvaluator compiles and caches Constraint-Set invariants. Each
// invariant is a CEL boolean expression over `action`, `context`, and
// `scope`; an invariant evaluating to anything but true denies the action.
type invariantEvaluator struct {
	env *cel.Env

	mu    sync.Mutex
	cache map[string]cel.Program
}

func newInvariantEvaluator() (*invariantEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("action", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("context", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("scope", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("invariant env: %w", err)
	}
	return &invariantEvaluator{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

func (e *invariantEvaluator) program(expr string) (cel.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if prg, ok := e.cache[expr]; ok {
		return prg, nil
	}
	ast, iss := e.env.Compile(expr)
	if iss.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, iss.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("invariant %q is not boolean", expr)
	}
	prg, err := e.env.Program(ast, cel.CostLimit(invariantCostLimit))
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expr, err)
	}
	e.cache[expr] = prg
	return prg, nil
}

// check evaluates every invariant; the first one that fails to compile,
// errors at runtime, or evaluates false determines the denial.
func (e *invariantEvaluator) check(scope string, act Action, invariants []string) CheckResult {
	if len(invariants) == 0 {
		return CheckResult{Allowed: true, Reason: "allowed"}
	}

	actionVal := map[string]any{
		"name":           act.Name,
		"tool":           act.Tool,
		"data_path":      act.DataPath,
		"network_target": act.NetworkTarget,
		"compute_cost":   act.ComputeCost,
		"irreversible":   act.Irreversible,
	}
	contextVal := map[string]any{
		"irreversible":     act.Irreversible,
		"emergency_active": false,
	}
	for k, v := range act.Context {
		contextVal[k] = v
	}
	vars := map[string]any{
		"action":  actionVal,
		"context": contextVal,
		"scope":   scope,
	}

	for _, expr := range invariants {
		prg, err := e.program(expr)
		if err != nil {
			return CheckResult{Allowed: false, Reason: fmt.Sprintf("invariant rejected: %v", err)}
		}
		out, _, err := prg.Eval(vars)
		if err != nil {
			return CheckResult{Allowed: false, Reason: fmt.Sprintf("invariant %q evaluation failed: %v", expr, err)}
		}
		if held, ok := out.Value().(bool); !ok || !held {
			return CheckResult{Allowed: false, Reason: fmt.Sprintf("invariant violated: %s", expr)}
		}
	}
	return CheckResult{Allowed: true, Reason: "allowed"}
}
