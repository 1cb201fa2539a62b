package sim

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stratus-io/stratus/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestFullLifecycle(t *testing.T) {
	ctx := context.Background()
	p := New()

	require.NoError(t, p.Configure(ctx, &provider.ConfigureRequest{}))

	desired := mustJSON(t, map[string]any{
		"cidr":      "10.0.0.0/16",
		"immutable": []string{"cidr"},
	})

	// Plan with no prior state is a create.
	planResp, err := p.Plan(ctx, &provider.PlanRequest{
		Type:          "net.VirtualNetwork",
		Name:          "main",
		DesiredConfig: desired,
	})
	require.NoError(t, err)
	assert.Equal(t, provider.ActionCreate, planResp.Action)

	applyResp, err := p.Apply(ctx, &provider.ApplyRequest{
		Type:          "net.VirtualNetwork",
		Name:          "main",
		DesiredConfig: desired,
	})
	require.NoError(t, err)

	var state map[string]any
	require.NoError(t, json.Unmarshal(applyResp.NewState, &state))
	id, _ := state["id"].(string)
	assert.NotEmpty(t, id)
	assert.Equal(t, "10.0.0.0/16", state["cidr"])

	readResp, err := p.Read(ctx, &provider.ReadRequest{Type: "net.VirtualNetwork", ID: id})
	require.NoError(t, err)
	assert.True(t, readResp.Exists)

	// Same config again converges to a no-op.
	planResp, err = p.Plan(ctx, &provider.PlanRequest{
		Type:          "net.VirtualNetwork",
		Name:          "main",
		DesiredConfig: desired,
		PriorState:    applyResp.NewState,
	})
	require.NoError(t, err)
	assert.Equal(t, provider.ActionNoop, planResp.Action)

	require.NoError(t, p.Delete(ctx, &provider.DeleteRequest{Type: "net.VirtualNetwork", ID: id}))

	readResp, err = p.Read(ctx, &provider.ReadRequest{Type: "net.VirtualNetwork", ID: id})
	require.NoError(t, err)
	assert.False(t, readResp.Exists)
}

func TestPlanMutableChangeIsUpdate(t *testing.T) {
	ctx := context.Background()
	p := New()

	prior := mustJSON(t, map[string]any{
		"id":        "sim-main-0001",
		"cidr":      "10.0.0.0/16",
		"tags":      map[string]string{"env": "dev"},
		"immutable": []string{"cidr"},
	})
	desired := mustJSON(t, map[string]any{
		"cidr":      "10.0.0.0/16",
		"tags":      map[string]string{"env": "prod"},
		"immutable": []string{"cidr"},
	})

	resp, err := p.Plan(ctx, &provider.PlanRequest{
		Type:          "net.VirtualNetwork",
		Name:          "main",
		DesiredConfig: desired,
		PriorState:    prior,
	})
	require.NoError(t, err)
	assert.Equal(t, provider.ActionUpdate, resp.Action)
	assert.Equal(t, []string{"tags"}, resp.ChangedAttributes)
	assert.Empty(t, resp.RequiresReplace)
}

func TestPlanImmutableChangeIsReplace(t *testing.T) {
	ctx := context.Background()
	p := New()

	prior := mustJSON(t, map[string]any{
		"id":        "sim-main-0001",
		"cidr":      "10.0.0.0/16",
		"immutable": []string{"cidr"},
	})
	desired := mustJSON(t, map[string]any{
		"cidr":      "10.1.0.0/16",
		"immutable": []string{"cidr"},
	})

	resp, err := p.Plan(ctx, &provider.PlanRequest{
		Type:          "net.VirtualNetwork",
		Name:          "main",
		DesiredConfig: desired,
		PriorState:    prior,
	})
	require.NoError(t, err)
	assert.Equal(t, provider.ActionReplace, resp.Action)
	assert.Equal(t, []string{"cidr"}, resp.RequiresReplace)
}

func TestApplyReplaceAssignsNewID(t *testing.T) {
	ctx := context.Background()
	p := New()

	first, err := p.Apply(ctx, &provider.ApplyRequest{
		Type: "net.VirtualNetwork",
		Name: "main",
		DesiredConfig: mustJSON(t, map[string]any{
			"cidr":      "10.0.0.0/16",
			"immutable": []string{"cidr"},
		}),
	})
	require.NoError(t, err)

	var firstState map[string]any
	require.NoError(t, json.Unmarshal(first.NewState, &firstState))
	firstID := firstState["id"].(string)

	second, err := p.Apply(ctx, &provider.ApplyRequest{
		Type: "net.VirtualNetwork",
		Name: "main",
		DesiredConfig: mustJSON(t, map[string]any{
			"cidr":      "10.1.0.0/16",
			"immutable": []string{"cidr"},
		}),
		PriorState: first.NewState,
	})
	require.NoError(t, err)

	var secondState map[string]any
	require.NoError(t, json.Unmarshal(second.NewState, &secondState))
	secondID := secondState["id"].(string)

	assert.NotEqual(t, firstID, secondID)

	// The old object is gone.
	readResp, err := p.Read(ctx, &provider.ReadRequest{Type: "net.VirtualNetwork", ID: firstID})
	require.NoError(t, err)
	assert.False(t, readResp.Exists)
}

func TestApplyInPlaceKeepsID(t *testing.T) {
	ctx := context.Background()
	p := New()

	first, err := p.Apply(ctx, &provider.ApplyRequest{
		Type:          "net.Subnet",
		Name:          "web",
		DesiredConfig: mustJSON(t, map[string]any{"cidr": "10.0.1.0/24"}),
	})
	require.NoError(t, err)

	var firstState map[string]any
	require.NoError(t, json.Unmarshal(first.NewState, &firstState))

	second, err := p.Apply(ctx, &provider.ApplyRequest{
		Type:          "net.Subnet",
		Name:          "web",
		DesiredConfig: mustJSON(t, map[string]any{"cidr": "10.0.2.0/24"}),
		PriorState:    first.NewState,
	})
	require.NoError(t, err)

	var secondState map[string]any
	require.NoError(t, json.Unmarshal(second.NewState, &secondState))

	assert.Equal(t, firstState["id"], secondState["id"])
	assert.Equal(t, "10.0.2.0/24", secondState["cidr"])
}

func TestInjectedFailures(t *testing.T) {
	ctx := context.Background()
	p := New()
	p.InjectFailures("net.Subnet", "web", 2)

	req := &provider.ApplyRequest{
		Type:          "net.Subnet",
		Name:          "web",
		DesiredConfig: mustJSON(t, map[string]any{"cidr": "10.0.1.0/24"}),
	}

	_, err := p.Apply(ctx, req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service unavailable")

	_, err = p.Apply(ctx, req)
	require.Error(t, err)

	// Third attempt succeeds.
	resp, err := p.Apply(ctx, req)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.NewState)
}

func TestOutOfBandMutation(t *testing.T) {
	ctx := context.Background()
	p := New()

	applyResp, err := p.Apply(ctx, &provider.ApplyRequest{
		Type:          "net.Subnet",
		Name:          "web",
		DesiredConfig: mustJSON(t, map[string]any{"cidr": "10.0.1.0/24"}),
	})
	require.NoError(t, err)

	var state map[string]any
	require.NoError(t, json.Unmarshal(applyResp.NewState, &state))
	id := state["id"].(string)

	p.SetAttribute(id, "cidr", "192.168.0.0/24")

	readResp, err := p.Read(ctx, &provider.ReadRequest{Type: "net.Subnet", ID: id})
	require.NoError(t, err)
	require.True(t, readResp.Exists)

	var live map[string]any
	require.NoError(t, json.Unmarshal(readResp.NewState, &live))
	assert.Equal(t, "192.168.0.0/24", live["cidr"])

	p.Remove(id)
	readResp, err = p.Read(ctx, &provider.ReadRequest{Type: "net.Subnet", ID: id})
	require.NoError(t, err)
	assert.False(t, readResp.Exists)
}
