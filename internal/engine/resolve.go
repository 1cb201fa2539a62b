package engine

import (
	"fmt"
	"strings"

	"github.com/stratus-io/stratus/internal/ir"
)

// ResolveOutputs resolves declared output values against state. Outputs
// whose references cannot be resolved keep their symbolic form.
func ResolveOutputs(outputs map[string]any, state *ir.State) map[string]any {
	resolved := make(map[string]any, len(outputs))
	for k, v := range outputs {
		val, err := resolveRefValue(v, state, false)
		if err != nil {
			resolved[k] = v
			continue
		}
		resolved[k] = val
	}
	return resolved
}

// resolveRefs walks a property tree replacing ref:// values with attributes
// recorded in state. In strict mode an unresolvable reference is an error;
// otherwise it is left in place, standing in for a value that only becomes
// known once the referenced resource is applied.
func resolveRefs(props map[string]any, state *ir.State, strict bool) (map[string]any, error) {
	out, err := resolveRefValue(props, state, strict)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func resolveRefValue(v any, state *ir.State, strict bool) (any, error) {
	switch val := v.(type) {
	case string:
		if !strings.HasPrefix(val, RefScheme) {
			return val, nil
		}
		resolved, ok, err := lookupRef(val, state)
		if err != nil {
			return nil, err
		}
		if !ok {
			if strict {
				return nil, fmt.Errorf("reference %q: resource %s has no state", val, RefAddr(val))
			}
			return val, nil
		}
		return resolved, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			resolved, err := resolveRefValue(item, state, strict)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := resolveRefValue(item, state, strict)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

func lookupRef(ref string, state *ir.State) (any, bool, error) {
	addr := RefAddr(ref)
	if addr == "" {
		return nil, false, fmt.Errorf("malformed reference %q", ref)
	}
	rs := state.Find(addr)
	if rs == nil {
		return nil, false, nil
	}
	attr := refAttribute(ref)
	if val, ok := rs.Outputs[attr]; ok {
		return val, true, nil
	}
	if val, ok := rs.Inputs[attr]; ok {
		return val, true, nil
	}
	return nil, false, fmt.Errorf("reference %q: attribute %q not found on %s", ref, attr, addr)
}
