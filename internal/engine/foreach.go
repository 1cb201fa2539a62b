package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stratus-io/stratus/internal/ir"
)

// ExpandForEach flattens resources declared with count or forEach into
// individual instances. dependsOn edges that name an expanded resource
// are rewritten to cover every instance, so dependents stay ordered
// after the whole set. Must run before graph construction and planning.
func ExpandForEach(resources []*ir.Resource) []*ir.Resource {
	var expanded []*ir.Resource
	instances := make(map[string][]string)

	for _, res := range resources {
		switch {
		case res.Count > 0:
			for i := 0; i < res.Count; i++ {
				clone := cloneResource(res)
				clone.Name = fmt.Sprintf("%s-%d", res.Name, i)
				clone.Properties = substituteAll(clone.Properties, map[string]string{
					"${count.index}": fmt.Sprintf("%d", i),
				})
				expanded = append(expanded, clone)
				instances[res.Addr()] = append(instances[res.Addr()], clone.Addr())
			}
		case len(res.ForEach) > 0:
			keys := make([]string, 0, len(res.ForEach))
			for k := range res.ForEach {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, key := range keys {
				clone := cloneResource(res)
				clone.Name = fmt.Sprintf("%s-%s", res.Name, key)
				clone.Properties = substituteAll(clone.Properties, map[string]string{
					"${each.key}":   key,
					"${each.value}": fmt.Sprintf("%v", res.ForEach[key]),
				})
				expanded = append(expanded, clone)
				instances[res.Addr()] = append(instances[res.Addr()], clone.Addr())
			}
		default:
			expanded = append(expanded, res)
		}
	}

	for _, res := range expanded {
		res.DependsOn = expandDependsOn(res.DependsOn, instances)
	}

	return expanded
}

// expandDependsOn replaces a dependsOn target that named a count/forEach
// resource with the addresses of its instances. Returns deps unchanged
// when no target was expanded.
func expandDependsOn(deps []string, instances map[string][]string) []string {
	changed := false
	rewritten := make([]string, 0, len(deps))
	for _, dep := range deps {
		if addrs, ok := instances[dep]; ok {
			rewritten = append(rewritten, addrs...)
			changed = true
			continue
		}
		rewritten = append(rewritten, dep)
	}
	if !changed {
		return deps
	}
	return rewritten
}

func cloneResource(res *ir.Resource) *ir.Resource {
	clone := &ir.Resource{
		Type:     res.Type,
		Name:     res.Name,
		Provider: res.Provider,
		Timeout:  res.Timeout,
	}
	if res.Lifecycle != nil {
		clone.Lifecycle = &ir.Lifecycle{
			CreateBeforeDestroy: res.Lifecycle.CreateBeforeDestroy,
			PreventDestroy:      res.Lifecycle.PreventDestroy,
			IgnoreChanges:       append([]string{}, res.Lifecycle.IgnoreChanges...),
		}
	}
	clone.DependsOn = append([]string{}, res.DependsOn...)
	clone.Properties = deepCopyMap(res.Properties)
	return clone
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	result := make(map[string]any, len(m))
	for k, v := range m {
		result[k] = deepCopyValue(v)
	}
	return result
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		clone := make([]any, len(val))
		for i, item := range val {
			clone[i] = deepCopyValue(item)
		}
		return clone
	default:
		return v
	}
}

func substituteAll(props map[string]any, replacements map[string]string) map[string]any {
	result := make(map[string]any, len(props))
	for k, v := range props {
		result[k] = substituteValue(v, replacements)
	}
	return result
}

func substituteValue(v any, replacements map[string]string) any {
	switch val := v.(type) {
	case string:
		result := val
		for old, repl := range replacements {
			result = strings.ReplaceAll(result, old, repl)
		}
		return result
	case map[string]any:
		return substituteAll(val, replacements)
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = substituteValue(item, replacements)
		}
		return result
	default:
		return v
	}
}
