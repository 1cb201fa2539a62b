// Package sim implements an in-memory provider that simulates a remote
// resource API. It is schema-agnostic: any resource type is accepted and
// its properties are stored verbatim. Two conventions give configurations
// control over its behavior:
//
//   - the "immutable" property lists attribute names whose change forces
//     the resource to be replaced rather than updated in place
//   - everything else is freely mutable
//
// The provider also supports injecting transient failures, used to
// exercise the engine's retry and partial-failure handling.
package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/stratus-io/stratus/pkg/provider"
)

const metaImmutable = "immutable"

type object struct {
	id    string
	typ   string
	name  string
	attrs map[string]any
}

type Provider struct {
	mu       sync.Mutex
	objects  map[string]*object // by id
	failures map[string]int     // remaining injected failures by type.name
	nextID   int
}

func New() *Provider {
	return &Provider{
		objects:  make(map[string]*object),
		failures: make(map[string]int),
	}
}

// InjectFailures makes the next n Apply calls for the given resource fail
// with a transient error.
func (p *Provider) InjectFailures(resourceType, name string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[resourceType+"."+name] = n
}

// Remove deletes an object out-of-band, simulating external deletion.
func (p *Provider) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.objects, id)
}

// SetAttribute mutates a stored object out-of-band, simulating drift.
func (p *Provider) SetAttribute(id, key string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if obj, ok := p.objects[id]; ok {
		obj.attrs[key] = value
	}
}

func (p *Provider) Configure(ctx context.Context, req *provider.ConfigureRequest) error {
	return nil
}

func (p *Provider) Plan(ctx context.Context, req *provider.PlanRequest) (*provider.PlanResponse, error) {
	desired, err := decodeAttrs(req.DesiredConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
	}

	if req.PriorState == nil {
		return &provider.PlanResponse{Action: provider.ActionCreate}, nil
	}

	prior, err := decodeAttrs(req.PriorState)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
	}

	changed := changedKeys(prior, desired)
	if len(changed) == 0 {
		return &provider.PlanResponse{Action: provider.ActionNoop}, nil
	}

	immutable := immutableSet(desired)
	var replaceOn []string
	for _, k := range changed {
		if immutable[k] {
			replaceOn = append(replaceOn, k)
		}
	}

	action := provider.ActionUpdate
	if len(replaceOn) > 0 {
		action = provider.ActionReplace
	}
	return &provider.PlanResponse{
		Action:            action,
		ChangedAttributes: changed,
		RequiresReplace:   replaceOn,
	}, nil
}

func (p *Provider) Apply(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	desired, err := decodeAttrs(req.DesiredConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := req.Type + "." + req.Name
	if n := p.failures[key]; n > 0 {
		p.failures[key] = n - 1
		return nil, fmt.Errorf("apply %s: service unavailable (injected fault, %d remaining)", key, n-1)
	}

	var priorID string
	var recreate bool
	if req.PriorState != nil {
		prior, err := decodeAttrs(req.PriorState)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior state: %w", err)
		}
		if id, ok := prior["id"].(string); ok {
			priorID = id
		}
		immutable := immutableSet(desired)
		for _, k := range changedKeys(prior, desired) {
			if immutable[k] {
				recreate = true
				break
			}
		}
	}

	id := priorID
	if id == "" || recreate {
		if recreate && priorID != "" {
			delete(p.objects, priorID)
		}
		p.nextID++
		id = fmt.Sprintf("sim-%s-%04d", req.Name, p.nextID)
	}

	attrs := make(map[string]any, len(desired))
	for k, v := range desired {
		attrs[k] = v
	}
	p.objects[id] = &object{id: id, typ: req.Type, name: req.Name, attrs: attrs}

	state := make(map[string]any, len(attrs)+1)
	for k, v := range attrs {
		state[k] = v
	}
	state["id"] = id

	raw, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return &provider.ApplyResponse{NewState: raw}, nil
}

func (p *Provider) Read(ctx context.Context, req *provider.ReadRequest) (*provider.ReadResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	obj, ok := p.objects[req.ID]
	if !ok {
		return &provider.ReadResponse{Exists: false}, nil
	}

	state := make(map[string]any, len(obj.attrs)+1)
	for k, v := range obj.attrs {
		state[k] = v
	}
	state["id"] = obj.id

	raw, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return &provider.ReadResponse{Exists: true, NewState: raw}, nil
}

func (p *Provider) Delete(ctx context.Context, req *provider.DeleteRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.objects, req.ID)
	return nil
}

func decodeAttrs(raw json.RawMessage) (map[string]any, error) {
	var attrs map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &attrs); err != nil {
			return nil, err
		}
	}
	if attrs == nil {
		attrs = make(map[string]any)
	}
	return attrs, nil
}

// changedKeys compares attribute maps, ignoring provider-computed and
// meta keys.
func changedKeys(prior, desired map[string]any) []string {
	var changed []string
	seen := make(map[string]bool)
	for k, v := range desired {
		if k == "id" || k == metaImmutable {
			continue
		}
		seen[k] = true
		pv, ok := prior[k]
		if !ok || fmt.Sprintf("%v", pv) != fmt.Sprintf("%v", v) {
			changed = append(changed, k)
		}
	}
	for k := range prior {
		if k == "id" || k == metaImmutable || seen[k] {
			continue
		}
		changed = append(changed, k)
	}
	return changed
}

func immutableSet(attrs map[string]any) map[string]bool {
	set := make(map[string]bool)
	list, ok := attrs[metaImmutable].([]any)
	if !ok {
		return set
	}
	for _, v := range list {
		if s, ok := v.(string); ok {
			set[s] = true
		}
	}
	return set
}
