package ir

import (
	"time"

	"github.com/stratus-io/stratus/pkg/provider"
)

// Plan is a calculated change-set, ordered so that every change appears
// after the changes it depends on.
type Plan struct {
	Metadata PlanMetadata      `json:"metadata"`
	Changes  []*ResourceChange `json:"changes"`
	Summary  PlanSummary       `json:"summary"`
	Outputs  map[string]any    `json:"outputs,omitempty"`
}

type PlanMetadata struct {
	Timestamp      time.Time `json:"timestamp"`
	ConfigHash     string    `json:"configHash,omitempty"`
	PriorStateHash string    `json:"priorStateHash,omitempty"`
}

// ResourceChange is one entry of the change-set. Desired is nil for
// deletions; Prior is nil for creations.
type ResourceChange struct {
	Address      string                   `json:"address"`
	Action       provider.Action          `json:"action"`
	Desired      *Resource                `json:"desired,omitempty"`
	Prior        *ResourceState           `json:"prior,omitempty"`
	Dependencies []string                 `json:"dependencies,omitempty"`
	Diff         map[string]*PropertyDiff `json:"diff,omitempty"`
}

// PropertyDiff records the before/after of a single attribute.
type PropertyDiff struct {
	Before            any             `json:"before,omitempty"`
	After             any             `json:"after,omitempty"`
	Sensitive         bool            `json:"sensitive,omitempty"`
	ForcesReplacement bool            `json:"forcesReplacement,omitempty"`
	Action            provider.Action `json:"action"`
}

type PlanSummary struct {
	Create  int `json:"create"`
	Update  int `json:"update"`
	Delete  int `json:"delete"`
	Replace int `json:"replace"`
	NoOp    int `json:"noop"`
}

// Total returns the number of non-noop changes.
func (s PlanSummary) Total() int {
	return s.Create + s.Update + s.Delete + s.Replace
}
