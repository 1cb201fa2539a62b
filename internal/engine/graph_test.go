package engine

import (
	"testing"

	"github.com/stratus-io/stratus/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDAG_NoDependencies(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "null_resource", Name: "a", Provider: "null"},
		{Type: "null_resource", Name: "b", Provider: "null"},
		{Type: "null_resource", Name: "c", Provider: "null"},
	}

	dag, err := BuildDAG(resources)
	require.NoError(t, err)

	order := dag.CreationOrder()
	assert.Len(t, order, 3)
}

func TestBuildDAG_ExplicitDependsOn(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "null_resource", Name: "a", Provider: "null", DependsOn: []string{"null_resource.b"}},
		{Type: "null_resource", Name: "b", Provider: "null"},
		{Type: "null_resource", Name: "c", Provider: "null", DependsOn: []string{"null_resource.a"}},
	}

	dag, err := BuildDAG(resources)
	require.NoError(t, err)

	order := dag.CreationOrder()
	require.Len(t, order, 3)

	// b must come before a, a must come before c
	posB := indexOf(order, "null_resource.b")
	posA := indexOf(order, "null_resource.a")
	posC := indexOf(order, "null_resource.c")

	assert.Less(t, posB, posA, "b should come before a")
	assert.Less(t, posA, posC, "a should come before c")
}

func TestBuildDAG_ImplicitRef(t *testing.T) {
	resources := []*ir.Resource{
		{
			Type:     "net.Subnet",
			Name:     "web",
			Provider: "sim",
			Properties: map[string]any{
				"networkId": "ref://net.VirtualNetwork/main/id",
			},
		},
		{Type: "net.VirtualNetwork", Name: "main", Provider: "sim"},
	}

	dag, err := BuildDAG(resources)
	require.NoError(t, err)

	order := dag.CreationOrder()
	require.Len(t, order, 2)

	posNet := indexOf(order, "net.VirtualNetwork.main")
	posSubnet := indexOf(order, "net.Subnet.web")

	assert.Less(t, posNet, posSubnet, "network should be created before subnet")
}

func TestBuildDAG_CycleDetection(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "null_resource", Name: "a", Provider: "null", DependsOn: []string{"null_resource.b"}},
		{Type: "null_resource", Name: "b", Provider: "null", DependsOn: []string{"null_resource.a"}},
	}

	_, err := BuildDAG(resources)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestBuildDAG_DestructionOrder(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "null_resource", Name: "a", Provider: "null", DependsOn: []string{"null_resource.b"}},
		{Type: "null_resource", Name: "b", Provider: "null"},
	}

	dag, err := BuildDAG(resources)
	require.NoError(t, err)

	revOrder := dag.DestructionOrder()
	require.Len(t, revOrder, 2)

	// a depends on b, so a is torn down first
	posA := indexOf(revOrder, "null_resource.a")
	posB := indexOf(revOrder, "null_resource.b")

	assert.Less(t, posA, posB, "a should be destroyed before b")
}

func TestBuildDAGFromState(t *testing.T) {
	resources := []*ir.ResourceState{
		{Type: "net.Subnet", Name: "web", Provider: "sim", Dependencies: []string{"net.VirtualNetwork.main"}},
		{Type: "net.VirtualNetwork", Name: "main", Provider: "sim"},
	}

	dag, err := BuildDAGFromState(resources)
	require.NoError(t, err)

	order := dag.DestructionOrder()
	require.Len(t, order, 2)
	assert.Equal(t, "net.Subnet.web", order[0])
}

func TestRefAddr(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"ref://net.VirtualNetwork/main/id", "net.VirtualNetwork.main"},
		{"ref://net.LoadBalancer/public/frontendIp", "net.LoadBalancer.public"},
		{"ref://net.Subnet/web", "net.Subnet.web"},
		{"not-a-ref", ""},
		{"ref://short", ""},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			got := RefAddr(tt.ref)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractRefs(t *testing.T) {
	props := map[string]any{
		"networkId": "ref://net.VirtualNetwork/main/id",
		"name":      "web-subnet",
		"tags": map[string]any{
			"nsg": "ref://net.NetworkSecurityGroup/web/id",
		},
		"list": []any{
			"ref://net.LoadBalancer/public/id",
			"plain-string",
		},
	}

	refs := ExtractRefs(props)
	assert.Len(t, refs, 3)
	assert.Contains(t, refs, "ref://net.VirtualNetwork/main/id")
	assert.Contains(t, refs, "ref://net.NetworkSecurityGroup/web/id")
	assert.Contains(t, refs, "ref://net.LoadBalancer/public/id")
}

func TestTransitiveDeps(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "null_resource", Name: "a", Provider: "null", DependsOn: []string{"null_resource.b"}},
		{Type: "null_resource", Name: "b", Provider: "null", DependsOn: []string{"null_resource.c"}},
		{Type: "null_resource", Name: "c", Provider: "null"},
		{Type: "null_resource", Name: "d", Provider: "null"},
	}

	dag, err := BuildDAG(resources)
	require.NoError(t, err)

	deps := dag.TransitiveDeps("null_resource.a")
	assert.Len(t, deps, 2)
	assert.Contains(t, deps, "null_resource.b")
	assert.Contains(t, deps, "null_resource.c")
	assert.NotContains(t, deps, "null_resource.d")
}

func indexOf(slice []string, item string) int {
	for i, s := range slice {
		if s == item {
			return i
		}
	}
	return -1
}
