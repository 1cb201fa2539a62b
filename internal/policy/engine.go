// Package policy evaluates Rego policies against calculated plans before
// they are applied. Policies live in .stratus/policies/*.rego and are
// combined with a small built-in set.
package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"github.com/stratus-io/stratus/internal/ir"
	"github.com/stratus-io/stratus/internal/logging"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Policy is one Rego rule set. The module must declare a package and a
// `deny` set whose members are objects with message/severity/resource keys.
type Policy struct {
	Name     string
	Source   string // file path or "builtin"
	Rego     string
	Severity Severity // default when a violation omits one
}

// Violation is a single policy finding.
type Violation struct {
	Policy   string   `json:"policy"`
	Resource string   `json:"resource,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Result is the outcome of evaluating every policy against a plan.
type Result struct {
	Allowed     bool        `json:"allowed"`
	Violations  []Violation `json:"violations,omitempty"`
	EvaluatedAt time.Time   `json:"evaluatedAt"`
}

// Engine holds the loaded policies.
type Engine struct {
	policies []Policy
}

// NewEngine returns an engine preloaded with the built-in policies.
func NewEngine() *Engine {
	return &Engine{policies: BuiltinPolicies()}
}

// LoadDir adds every .rego file in dir. A missing directory is not an error.
func (e *Engine) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read policy directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rego") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read policy %s: %w", path, err)
		}
		e.policies = append(e.policies, Policy{
			Name:     strings.TrimSuffix(entry.Name(), ".rego"),
			Source:   path,
			Rego:     string(src),
			Severity: SeverityError,
		})
		logging.Debug("loaded policy", "name", entry.Name(), "path", path)
	}
	return nil
}

// Policies returns the loaded policy set.
func (e *Engine) Policies() []Policy {
	return e.policies
}

// EvaluatePlan runs every policy against the plan. The result is not
// allowed when any violation has severity error.
func (e *Engine) EvaluatePlan(ctx context.Context, plan *ir.Plan) (*Result, error) {
	input := planInput(plan)

	result := &Result{Allowed: true, EvaluatedAt: time.Now().UTC()}
	for _, pol := range e.policies {
		violations, err := evaluatePolicy(ctx, pol, input)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", pol.Name, err)
		}
		result.Violations = append(result.Violations, violations...)
	}

	for _, v := range result.Violations {
		if v.Severity == SeverityError {
			result.Allowed = false
			break
		}
	}

	logging.Debug("plan policy evaluation complete",
		"policies", len(e.policies), "violations", len(result.Violations), "allowed", result.Allowed)
	return result, nil
}

func evaluatePolicy(ctx context.Context, pol Policy, input map[string]any) ([]Violation, error) {
	pkg := extractPackageName(pol.Rego)
	if pkg == "" {
		return nil, fmt.Errorf("no package declaration found")
	}

	r := rego.New(
		rego.Module(pol.Name, pol.Rego),
		rego.Query(fmt.Sprintf("data.%s.deny", pkg)),
		rego.Input(input),
	)

	results, err := r.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]any)
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, toViolation(pol, d))
			}
		}
	}
	return violations, nil
}

func toViolation(pol Policy, raw any) Violation {
	v := Violation{Policy: pol.Name, Severity: pol.Severity}
	if v.Severity == "" {
		v.Severity = SeverityError
	}

	switch val := raw.(type) {
	case string:
		v.Message = val
	case map[string]any:
		if msg, ok := val["message"].(string); ok {
			v.Message = msg
		}
		if res, ok := val["resource"].(string); ok {
			v.Resource = res
		}
		if sev, ok := val["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
	default:
		v.Message = fmt.Sprintf("%v", raw)
	}
	return v
}

// planInput shapes a plan for policy consumption: a flat list of changes
// plus the summary, so rules don't have to walk engine internals.
func planInput(plan *ir.Plan) map[string]any {
	changes := make([]any, 0, len(plan.Changes))
	for _, change := range plan.Changes {
		entry := map[string]any{
			"address": change.Address,
			"action":  string(change.Action),
		}
		if change.Desired != nil {
			entry["type"] = change.Desired.Type
			entry["name"] = change.Desired.Name
			entry["provider"] = change.Desired.Provider
			entry["properties"] = change.Desired.Properties
		} else if change.Prior != nil {
			entry["type"] = change.Prior.Type
			entry["name"] = change.Prior.Name
			entry["provider"] = change.Prior.Provider
		}
		changes = append(changes, entry)
	}

	return map[string]any{
		"changes": changes,
		"summary": map[string]any{
			"create":  plan.Summary.Create,
			"update":  plan.Summary.Update,
			"delete":  plan.Summary.Delete,
			"replace": plan.Summary.Replace,
		},
	}
}

func extractPackageName(src string) string {
	for _, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "package ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "package "))
		}
	}
	return ""
}
