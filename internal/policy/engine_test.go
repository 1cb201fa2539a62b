package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stratus-io/stratus/internal/ir"
	"github.com/stratus-io/stratus/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planWith(changes ...*ir.ResourceChange) *ir.Plan {
	plan := &ir.Plan{Changes: changes}
	for _, c := range changes {
		switch c.Action {
		case provider.ActionCreate:
			plan.Summary.Create++
		case provider.ActionDelete:
			plan.Summary.Delete++
		case provider.ActionReplace:
			plan.Summary.Replace++
		}
	}
	return plan
}

func TestEvaluatePlan_RequireTagsWarning(t *testing.T) {
	eng := NewEngine()

	plan := planWith(&ir.ResourceChange{
		Address: "net.Subnet.web",
		Action:  provider.ActionCreate,
		Desired: &ir.Resource{
			Type: "net.Subnet", Name: "web", Provider: "sim",
			Properties: map[string]any{"cidr": "10.0.1.0/24"},
		},
	})

	result, err := eng.EvaluatePlan(context.Background(), plan)
	require.NoError(t, err)
	assert.True(t, result.Allowed, "warnings must not block the plan")

	require.NotEmpty(t, result.Violations)
	assert.Equal(t, "require-tags", result.Violations[0].Policy)
	assert.Equal(t, SeverityWarning, result.Violations[0].Severity)
	assert.Equal(t, "net.Subnet.web", result.Violations[0].Resource)
}

func TestEvaluatePlan_TaggedResourcePasses(t *testing.T) {
	eng := NewEngine()

	plan := planWith(&ir.ResourceChange{
		Address: "net.Subnet.web",
		Action:  provider.ActionCreate,
		Desired: &ir.Resource{
			Type: "net.Subnet", Name: "web", Provider: "sim",
			Properties: map[string]any{
				"cidr": "10.0.1.0/24",
				"tags": map[string]any{"env": "prod"},
			},
		},
	})

	result, err := eng.EvaluatePlan(context.Background(), plan)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Empty(t, result.Violations)
}

func TestEvaluatePlan_MassDeleteBlocked(t *testing.T) {
	eng := NewEngine()

	var changes []*ir.ResourceChange
	for i := 0; i < 12; i++ {
		changes = append(changes, &ir.ResourceChange{
			Address: "net.Subnet.web",
			Action:  provider.ActionDelete,
			Prior:   &ir.ResourceState{Type: "net.Subnet", Name: "web", Provider: "sim"},
		})
	}

	result, err := eng.EvaluatePlan(context.Background(), planWith(changes...))
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	var found bool
	for _, v := range result.Violations {
		if v.Policy == "mass-delete" {
			found = true
			assert.Equal(t, SeverityError, v.Severity)
		}
	}
	assert.True(t, found)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	policy := `package stratus.policies.nolb

import rego.v1

deny contains violation if {
	some change in input.changes
	change.type == "net.LoadBalancer"
	violation := {
		"message": sprintf("load balancers are forbidden here: %s", [change.address]),
		"severity": "error",
		"resource": change.address,
	}
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "no-lb.rego"), []byte(policy), 0644))

	eng := NewEngine()
	before := len(eng.Policies())
	require.NoError(t, eng.LoadDir(dir))
	require.Len(t, eng.Policies(), before+1)

	plan := planWith(&ir.ResourceChange{
		Address: "net.LoadBalancer.public",
		Action:  provider.ActionCreate,
		Desired: &ir.Resource{
			Type: "net.LoadBalancer", Name: "public", Provider: "sim",
			Properties: map[string]any{"tags": map[string]any{"env": "prod"}},
		},
	})

	result, err := eng.EvaluatePlan(context.Background(), plan)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
}

func TestLoadDir_MissingIsNotAnError(t *testing.T) {
	eng := NewEngine()
	assert.NoError(t, eng.LoadDir(filepath.Join(t.TempDir(), "nope")))
}
