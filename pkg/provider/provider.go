// Package provider defines the contract between the stratus engine and
// resource providers. Providers run in-process; configuration and state
// cross the boundary as JSON so the engine stays schema-agnostic.
package provider

import (
	"context"
	"encoding/json"
)

// Action is the change a provider decides is needed for a resource.
type Action string

const (
	ActionNoop    Action = "NOOP"
	ActionCreate  Action = "CREATE"
	ActionUpdate  Action = "UPDATE"
	ActionReplace Action = "REPLACE"
	ActionDelete  Action = "DELETE"
)

// Provider is implemented by every resource provider.
type Provider interface {
	// Configure passes provider-level settings before any resource call.
	Configure(ctx context.Context, req *ConfigureRequest) error

	// Plan compares desired configuration with prior state and decides
	// which action is required. Providers must report REPLACE when an
	// immutable attribute differs; identity is never updated in place.
	Plan(ctx context.Context, req *PlanRequest) (*PlanResponse, error)

	// Apply creates or updates the resource and returns its new state.
	Apply(ctx context.Context, req *ApplyRequest) (*ApplyResponse, error)

	// Read fetches the live state of a resource for drift detection.
	Read(ctx context.Context, req *ReadRequest) (*ReadResponse, error)

	// Delete destroys the resource.
	Delete(ctx context.Context, req *DeleteRequest) error
}

type ConfigureRequest struct {
	Settings map[string]string
}

type PlanRequest struct {
	Type          string
	Name          string
	DesiredConfig json.RawMessage
	PriorState    json.RawMessage // nil when the resource is new
}

type PlanResponse struct {
	Action            Action
	ChangedAttributes []string
	// RequiresReplace lists the changed attributes that forced a REPLACE.
	RequiresReplace []string
}

type ApplyRequest struct {
	Type          string
	Name          string
	DesiredConfig json.RawMessage
	PriorState    json.RawMessage
}

type ApplyResponse struct {
	NewState json.RawMessage
}

type ReadRequest struct {
	Type         string
	ID           string
	CurrentState json.RawMessage
}

type ReadResponse struct {
	Exists   bool
	NewState json.RawMessage
}

type DeleteRequest struct {
	Type         string
	ID           string
	CurrentState json.RawMessage
}
