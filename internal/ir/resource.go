package ir

import "fmt"

// Resource is a single declared resource: a named, typed block of attributes.
// Identity is (Type, Name); two resources may not share an address.
type Resource struct {
	Type       string         `pkl:"type" json:"type"` // e.g. "net.VirtualNetwork"
	Name       string         `pkl:"name" json:"name"`
	Provider   string         `pkl:"provider" json:"provider"`
	Lifecycle  *Lifecycle     `pkl:"lifecycle" json:"lifecycle,omitempty"`
	DependsOn  []string       `pkl:"dependsOn" json:"dependsOn,omitempty"`
	Count      int            `pkl:"count" json:"count,omitempty"`
	ForEach    map[string]any `pkl:"forEach" json:"forEach,omitempty"`
	Timeout    string         `pkl:"timeout" json:"timeout,omitempty"`
	Properties map[string]any `pkl:"properties" json:"properties"`
}

// Lifecycle carries per-resource lifecycle rules enforced by the planner.
type Lifecycle struct {
	CreateBeforeDestroy bool     `pkl:"createBeforeDestroy" json:"createBeforeDestroy,omitempty"`
	PreventDestroy      bool     `pkl:"preventDestroy" json:"preventDestroy,omitempty"`
	IgnoreChanges       []string `pkl:"ignoreChanges" json:"ignoreChanges,omitempty"`
}

// Addr returns the resource address (type.name). Resources with an empty
// type default to "null_resource".
func (r *Resource) Addr() string {
	t := r.Type
	if t == "" {
		t = "null_resource"
	}
	return fmt.Sprintf("%s.%s", t, r.Name)
}
