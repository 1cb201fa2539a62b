package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/stratus-io/stratus/internal/ir"
	"github.com/stratus-io/stratus/internal/logging"
	registry "github.com/stratus-io/stratus/internal/provider"
	"github.com/stratus-io/stratus/pkg/provider"
)

// Engine computes plans from desired configuration and recorded state,
// and applies them through providers.
type Engine struct {
	Registry        *registry.Registry
	ContinueOnError bool
	Parallelism     int
	Retry           RetryPolicy
}

// NewEngine returns an engine with default retry and parallelism settings.
func NewEngine(reg *registry.Registry) *Engine {
	return &Engine{
		Registry:    reg,
		Parallelism: 10,
		Retry:       DefaultRetryPolicy(),
	}
}

// CreatePlan diffs the desired configuration against prior state and
// produces an ordered set of changes.
func (e *Engine) CreatePlan(ctx context.Context, cfg *ir.Config, state *ir.State) (*ir.Plan, error) {
	return e.CreatePlanWithTargets(ctx, cfg, state, nil)
}

// CreatePlanWithTargets behaves like CreatePlan but restricts the plan to
// the targeted addresses plus their transitive dependencies.
func (e *Engine) CreatePlanWithTargets(ctx context.Context, cfg *ir.Config, state *ir.State, targets []string) (*ir.Plan, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	resources := ExpandForEach(cfg.Resources)

	dag, err := BuildDAG(resources)
	if err != nil {
		return nil, err
	}

	included, err := targetClosure(dag, resources, targets)
	if err != nil {
		return nil, err
	}

	plan := &ir.Plan{
		Metadata: ir.PlanMetadata{
			Timestamp:      time.Now().UTC(),
			ConfigHash:     hashJSON(resources),
			PriorStateHash: hashJSON(state.Resources),
		},
		Outputs: cfg.Outputs,
	}

	byAddr := make(map[string]*ir.Resource, len(resources))
	for _, res := range resources {
		byAddr[res.Addr()] = res
	}

	for _, addr := range dag.CreationOrder() {
		res := byAddr[addr]
		if included != nil && !included[addr] {
			continue
		}

		change, err := e.planResource(ctx, res, state)
		if err != nil {
			return nil, fmt.Errorf("planning %s: %w", addr, err)
		}
		change.Dependencies = dag.Dependencies(addr)
		plan.Changes = append(plan.Changes, change)
	}

	deletes, err := e.planDeletes(cfg, resources, state, included)
	if err != nil {
		return nil, err
	}
	plan.Changes = append(plan.Changes, deletes...)

	plan.Summary = summarize(plan.Changes)
	logging.Info("plan complete",
		"create", plan.Summary.Create, "update", plan.Summary.Update,
		"replace", plan.Summary.Replace, "delete", plan.Summary.Delete,
		"noop", plan.Summary.NoOp)

	return plan, nil
}

func (e *Engine) planResource(ctx context.Context, res *ir.Resource, state *ir.State) (*ir.ResourceChange, error) {
	prov, err := e.Registry.Get(res.Provider)
	if err != nil {
		return nil, err
	}

	// References to resources already in state resolve to concrete values
	// so the provider diffs against what apply will actually send; refs to
	// not-yet-created resources stay symbolic.
	props, err := resolveRefs(res.Properties, state, false)
	if err != nil {
		return nil, err
	}
	desired, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("encoding desired config: %w", err)
	}

	prior := state.Find(res.Addr())
	var priorRaw json.RawMessage
	if prior != nil {
		priorRaw, err = json.Marshal(prior.Outputs)
		if err != nil {
			return nil, fmt.Errorf("encoding prior state: %w", err)
		}
	}

	resp, err := prov.Plan(ctx, &provider.PlanRequest{
		Type:          res.Type,
		Name:          res.Name,
		DesiredConfig: desired,
		PriorState:    priorRaw,
	})
	if err != nil {
		return nil, err
	}

	action := resp.Action
	changed := resp.ChangedAttributes
	replaceAttrs := toSet(resp.RequiresReplace)

	// A tainted resource is forcibly recreated regardless of diff.
	if prior != nil && prior.Tainted && action != provider.ActionDelete {
		action = provider.ActionReplace
	}

	if res.Lifecycle != nil && len(res.Lifecycle.IgnoreChanges) > 0 && prior != nil {
		changed, replaceAttrs = applyIgnoreChanges(res.Lifecycle.IgnoreChanges, changed, replaceAttrs)
		if len(changed) == 0 && !prior.Tainted &&
			(action == provider.ActionUpdate || action == provider.ActionReplace) {
			action = provider.ActionNoop
		} else if action == provider.ActionReplace && len(replaceAttrs) == 0 && !prior.Tainted {
			action = provider.ActionUpdate
		}
	}

	if action == provider.ActionReplace && res.Lifecycle != nil && res.Lifecycle.PreventDestroy {
		return nil, fmt.Errorf("%s: replacement required but lifecycle.preventDestroy is set", res.Addr())
	}

	change := &ir.ResourceChange{
		Address: res.Addr(),
		Action:  action,
		Desired: res,
	}
	if prior != nil {
		change.Prior = prior
	}

	switch action {
	case provider.ActionCreate:
		change.Diff = buildCreateDiff(props)
	case provider.ActionUpdate, provider.ActionReplace:
		change.Diff = buildPropertyDiff(prior, props, changed, replaceAttrs)
	}

	return change, nil
}

// planDeletes emits DELETE changes for state entries that no longer appear
// in the configuration, in reverse dependency order.
func (e *Engine) planDeletes(cfg *ir.Config, resources []*ir.Resource, state *ir.State, included map[string]bool) ([]*ir.ResourceChange, error) {
	declared := make(map[string]bool, len(resources))
	for _, res := range resources {
		declared[res.Addr()] = true
	}

	var orphans []*ir.ResourceState
	for _, rs := range state.Resources {
		if !declared[rs.Addr()] {
			orphans = append(orphans, rs)
		}
	}
	if len(orphans) == 0 {
		return nil, nil
	}

	dag, err := BuildDAGFromState(orphans)
	if err != nil {
		return nil, fmt.Errorf("ordering removals: %w", err)
	}

	byAddr := make(map[string]*ir.ResourceState, len(orphans))
	for _, rs := range orphans {
		byAddr[rs.Addr()] = rs
	}

	var changes []*ir.ResourceChange
	for _, addr := range dag.DestructionOrder() {
		rs, ok := byAddr[addr]
		if !ok {
			continue
		}
		if included != nil && !included[addr] {
			continue
		}
		// Deletions gate on dependents: whatever points at this resource
		// must be gone before it is.
		changes = append(changes, &ir.ResourceChange{
			Address:      addr,
			Action:       provider.ActionDelete,
			Prior:        rs,
			Diff:         buildDeleteDiff(rs),
			Dependencies: dag.Dependents(addr),
		})
	}
	return changes, nil
}

// DestroyPlan produces a plan that deletes everything in state, honoring
// preventDestroy declared in the current configuration.
func (e *Engine) DestroyPlan(ctx context.Context, cfg *ir.Config, state *ir.State) (*ir.Plan, error) {
	lifecycles := make(map[string]*ir.Lifecycle)
	if cfg != nil {
		for _, res := range ExpandForEach(cfg.Resources) {
			lifecycles[res.Addr()] = res.Lifecycle
		}
	}

	dag, err := BuildDAGFromState(state.Resources)
	if err != nil {
		return nil, err
	}

	byAddr := make(map[string]*ir.ResourceState, len(state.Resources))
	for _, rs := range state.Resources {
		byAddr[rs.Addr()] = rs
	}

	plan := &ir.Plan{
		Metadata: ir.PlanMetadata{
			Timestamp:      time.Now().UTC(),
			PriorStateHash: hashJSON(state.Resources),
		},
	}

	for _, addr := range dag.DestructionOrder() {
		rs, ok := byAddr[addr]
		if !ok {
			continue
		}
		if lc := lifecycles[addr]; lc != nil && lc.PreventDestroy {
			return nil, fmt.Errorf("%s: destroy requested but lifecycle.preventDestroy is set", addr)
		}
		plan.Changes = append(plan.Changes, &ir.ResourceChange{
			Address:      addr,
			Action:       provider.ActionDelete,
			Prior:        rs,
			Diff:         buildDeleteDiff(rs),
			Dependencies: dag.Dependents(addr),
		})
	}

	plan.Summary = summarize(plan.Changes)
	return plan, nil
}

func targetClosure(dag *DAG, resources []*ir.Resource, targets []string) (map[string]bool, error) {
	if len(targets) == 0 {
		return nil, nil
	}
	declared := make(map[string]bool, len(resources))
	for _, res := range resources {
		declared[res.Addr()] = true
	}

	included := make(map[string]bool)
	for _, target := range targets {
		if !declared[target] {
			return nil, fmt.Errorf("target %q does not match any resource", target)
		}
		included[target] = true
		for _, dep := range dag.TransitiveDeps(target) {
			included[dep] = true
		}
	}
	return included, nil
}

func applyIgnoreChanges(ignored, changed []string, replaceAttrs map[string]bool) ([]string, map[string]bool) {
	skip := toSet(ignored)
	var kept []string
	for _, attr := range changed {
		if skip[attr] {
			continue
		}
		kept = append(kept, attr)
	}
	keptReplace := make(map[string]bool)
	for attr := range replaceAttrs {
		if !skip[attr] {
			keptReplace[attr] = true
		}
	}
	return kept, keptReplace
}

func buildCreateDiff(props map[string]any) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff, len(props))
	for key, val := range props {
		diff[key] = &ir.PropertyDiff{
			After:  normalizeValue(val),
			Action: provider.ActionCreate,
		}
	}
	return diff
}

func buildDeleteDiff(rs *ir.ResourceState) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff, len(rs.Inputs))
	for key, val := range rs.Inputs {
		diff[key] = &ir.PropertyDiff{
			Before: normalizeValue(val),
			Action: provider.ActionDelete,
		}
	}
	return diff
}

func buildPropertyDiff(prior *ir.ResourceState, props map[string]any, changed []string, replaceAttrs map[string]bool) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff, len(changed))
	for _, key := range changed {
		pd := &ir.PropertyDiff{
			After:             normalizeValue(props[key]),
			ForcesReplacement: replaceAttrs[key],
			Action:            provider.ActionUpdate,
		}
		if prior != nil {
			pd.Before = normalizeValue(prior.Inputs[key])
		}
		if pd.ForcesReplacement {
			pd.Action = provider.ActionReplace
		}
		diff[key] = pd
	}
	return diff
}

// normalizeValue round-trips through JSON so before/after values compare
// consistently regardless of their source decoder.
func normalizeValue(v any) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return out
}

func summarize(changes []*ir.ResourceChange) ir.PlanSummary {
	var s ir.PlanSummary
	for _, change := range changes {
		switch change.Action {
		case provider.ActionCreate:
			s.Create++
		case provider.ActionUpdate:
			s.Update++
		case provider.ActionReplace:
			s.Replace++
		case provider.ActionDelete:
			s.Delete++
		default:
			s.NoOp++
		}
	}
	return s
}

// HashProperties returns a stable fingerprint of a resource's inputs,
// recorded in state to detect configuration drift cheaply.
func HashProperties(props map[string]any) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		data, _ := json.Marshal(props[k])
		fmt.Fprintf(h, "%s=%s;", k, data)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func hashJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
