package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stratus-io/stratus/internal/ir"
	"github.com/stratus-io/stratus/internal/logging"
	"github.com/stratus-io/stratus/pkg/provider"
)

// ApplyEvent describes progress of a single change during apply.
type ApplyEvent struct {
	Address string
	Action  provider.Action
	Status  string // "started", "completed", "failed", "skipped"
	Err     error
	Elapsed time.Duration
}

// ApplyCallback receives progress events as changes execute. Callbacks are
// invoked from worker goroutines and must be safe for concurrent use.
type ApplyCallback func(ApplyEvent)

// ApplyPlan executes every change in the plan against the providers and
// mutates state in place. The state serial is bumped once on any change.
func (e *Engine) ApplyPlan(ctx context.Context, plan *ir.Plan, state *ir.State) error {
	return e.ApplyPlanWithCallback(ctx, plan, state, nil)
}

// ApplyPlanWithCallback is ApplyPlan with progress reporting.
func (e *Engine) ApplyPlanWithCallback(ctx context.Context, plan *ir.Plan, state *ir.State, cb ApplyCallback) error {
	pending := make([]*ir.ResourceChange, 0, len(plan.Changes))
	for _, change := range plan.Changes {
		if change.Action != provider.ActionNoop {
			pending = append(pending, change)
		}
	}
	if len(pending) == 0 {
		logging.Info("nothing to apply")
		return nil
	}

	runner := &applyRunner{
		engine:  e,
		state:   state,
		cb:      cb,
		done:    make(map[string]bool),
		failed:  make(map[string]bool),
		planned: make(map[string]bool, len(pending)),
	}
	runner.cond = sync.NewCond(&runner.mu)
	for _, change := range pending {
		runner.planned[change.Address] = true
	}

	errs := runner.run(ctx, pending)

	if len(errs) > 0 || runner.changedAny {
		state.Serial++
	}
	if len(errs) > 0 {
		return fmt.Errorf("apply finished with %d error(s): %w", len(errs), errors.Join(errs...))
	}
	logging.Info("apply complete", "changes", len(pending), "serial", state.Serial)
	return nil
}

type applyRunner struct {
	engine *Engine
	state  *ir.State
	cb     ApplyCallback

	mu         sync.Mutex
	cond       *sync.Cond
	done       map[string]bool
	failed     map[string]bool
	planned    map[string]bool
	changedAny bool
	aborted    bool
}

func (r *applyRunner) run(ctx context.Context, changes []*ir.ResourceChange) []error {
	parallelism := r.engine.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	sem := make(chan struct{}, parallelism)

	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  []error
	)

	for _, change := range changes {
		wg.Add(1)
		go func(change *ir.ResourceChange) {
			defer wg.Done()

			skip, reason := r.waitForDeps(ctx, change)
			if skip {
				r.markDone(change.Address, true)
				r.emit(ApplyEvent{Address: change.Address, Action: change.Action, Status: "skipped", Err: reason})
				if reason != nil {
					errMu.Lock()
					errs = append(errs, reason)
					errMu.Unlock()
				}
				return
			}

			sem <- struct{}{}
			start := time.Now()
			r.emit(ApplyEvent{Address: change.Address, Action: change.Action, Status: "started"})
			err := r.applyChange(ctx, change)
			<-sem

			elapsed := time.Since(start)
			if err != nil {
				r.markDone(change.Address, true)
				r.emit(ApplyEvent{Address: change.Address, Action: change.Action, Status: "failed", Err: err, Elapsed: elapsed})
				errMu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", change.Address, err))
				errMu.Unlock()
				if !r.engine.ContinueOnError {
					r.abort()
				}
				return
			}
			r.markDone(change.Address, false)
			r.emit(ApplyEvent{Address: change.Address, Action: change.Action, Status: "completed", Elapsed: elapsed})
		}(change)
	}

	wg.Wait()
	return errs
}

// waitForDeps blocks until every planned dependency of the change has
// finished. It reports skip=true when a dependency failed or the run was
// aborted.
func (r *applyRunner) waitForDeps(ctx context.Context, change *ir.ResourceChange) (bool, error) {
	// For deletes the planner records dependents here, so the same wait
	// gives reverse ordering.
	deps := change.Dependencies

	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		if r.aborted {
			return true, nil
		}
		if ctx.Err() != nil {
			return true, nil
		}
		ready := true
		for _, dep := range deps {
			if !r.planned[dep] {
				continue
			}
			if r.failed[dep] {
				return true, fmt.Errorf("%s: skipped because dependency %s failed", change.Address, dep)
			}
			if !r.done[dep] {
				ready = false
				break
			}
		}
		if ready {
			return false, nil
		}
		r.cond.Wait()
	}
}

func (r *applyRunner) markDone(addr string, failed bool) {
	r.mu.Lock()
	r.done[addr] = true
	if failed {
		r.failed[addr] = true
	}
	r.cond.Broadcast()
	r.mu.Unlock()
}

func (r *applyRunner) abort() {
	r.mu.Lock()
	r.aborted = true
	r.cond.Broadcast()
	r.mu.Unlock()
}

func (r *applyRunner) emit(ev ApplyEvent) {
	if r.cb != nil {
		r.cb(ev)
	}
}

func (r *applyRunner) applyChange(ctx context.Context, change *ir.ResourceChange) error {
	timeout := DefaultTimeout
	if change.Desired != nil && change.Desired.Timeout != "" {
		if d, err := time.ParseDuration(change.Desired.Timeout); err == nil && d > 0 {
			timeout = d
		}
	}
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch change.Action {
	case provider.ActionDelete:
		return r.deleteResource(opCtx, change)
	case provider.ActionCreate, provider.ActionUpdate, provider.ActionReplace:
		return r.upsertResource(opCtx, change)
	default:
		return nil
	}
}

func (r *applyRunner) upsertResource(ctx context.Context, change *ir.ResourceChange) error {
	res := change.Desired
	prov, err := r.engine.Registry.Get(res.Provider)
	if err != nil {
		return err
	}

	resolved, err := r.resolveReferences(res.Properties)
	if err != nil {
		return err
	}
	desired, err := json.Marshal(resolved)
	if err != nil {
		return fmt.Errorf("encoding desired config: %w", err)
	}

	var priorRaw json.RawMessage
	if change.Prior != nil {
		priorRaw, err = json.Marshal(change.Prior.Outputs)
		if err != nil {
			return fmt.Errorf("encoding prior state: %w", err)
		}
	}

	if change.Action == provider.ActionReplace && change.Prior != nil {
		cbd := res.Lifecycle != nil && res.Lifecycle.CreateBeforeDestroy
		if !cbd {
			if err := r.deletePrior(ctx, prov, change.Prior); err != nil {
				return fmt.Errorf("destroying prior instance: %w", err)
			}
			priorRaw = nil
		}
	}

	var resp *provider.ApplyResponse
	err = RetryWithBackoff(ctx, r.engine.Retry, change.Address, func() error {
		var applyErr error
		resp, applyErr = prov.Apply(ctx, &provider.ApplyRequest{
			Type:          res.Type,
			Name:          res.Name,
			DesiredConfig: desired,
			PriorState:    priorRaw,
		})
		return applyErr
	})
	if err != nil {
		return err
	}

	var outputs map[string]any
	if len(resp.NewState) > 0 {
		if err := json.Unmarshal(resp.NewState, &outputs); err != nil {
			return fmt.Errorf("decoding provider state: %w", err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordState(&ir.ResourceState{
		Type:         res.Type,
		Name:         res.Name,
		Provider:     res.Provider,
		Inputs:       resolved,
		InputsHash:   HashProperties(resolved),
		Outputs:      outputs,
		Dependencies: change.Dependencies,
	})
	r.changedAny = true
	return nil
}

func (r *applyRunner) deleteResource(ctx context.Context, change *ir.ResourceChange) error {
	prior := change.Prior
	prov, err := r.engine.Registry.Get(prior.Provider)
	if err != nil {
		return err
	}
	if err := r.deletePrior(ctx, prov, prior); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeState(prior.Addr())
	r.changedAny = true
	return nil
}

func (r *applyRunner) deletePrior(ctx context.Context, prov provider.Provider, prior *ir.ResourceState) error {
	current, err := json.Marshal(prior.Outputs)
	if err != nil {
		return fmt.Errorf("encoding prior state: %w", err)
	}
	id, _ := prior.Outputs["id"].(string)
	return RetryWithBackoff(ctx, r.engine.Retry, prior.Addr(), func() error {
		return prov.Delete(ctx, &provider.DeleteRequest{
			Type:         prior.Type,
			ID:           id,
			CurrentState: current,
		})
	})
}

func (r *applyRunner) recordState(rs *ir.ResourceState) {
	for i, existing := range r.state.Resources {
		if existing.Addr() == rs.Addr() {
			r.state.Resources[i] = rs
			return
		}
	}
	r.state.Resources = append(r.state.Resources, rs)
}

func (r *applyRunner) removeState(addr string) {
	for i, existing := range r.state.Resources {
		if existing.Addr() == addr {
			r.state.Resources = append(r.state.Resources[:i], r.state.Resources[i+1:]...)
			return
		}
	}
}

// resolveReferences replaces ref:// values with attributes from already
// applied resources. State access is synchronized because workers resolve
// concurrently.
func (r *applyRunner) resolveReferences(props map[string]any) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return resolveRefs(props, r.state, true)
}
