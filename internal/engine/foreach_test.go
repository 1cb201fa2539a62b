package engine

import (
	"testing"

	"github.com/stratus-io/stratus/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandForEach_Count(t *testing.T) {
	resources := []*ir.Resource{
		{
			Type:     "net.Subnet",
			Name:     "web",
			Provider: "sim",
			Count:    3,
			Properties: map[string]any{
				"cidr": "10.0.${count.index}.0/24",
			},
		},
	}

	expanded := ExpandForEach(resources)
	require.Len(t, expanded, 3)

	assert.Equal(t, "web-0", expanded[0].Name)
	assert.Equal(t, "web-2", expanded[2].Name)
	assert.Equal(t, "10.0.1.0/24", expanded[1].Properties["cidr"])
}

func TestExpandForEach_ForEach(t *testing.T) {
	resources := []*ir.Resource{
		{
			Type:     "net.Subnet",
			Name:     "tier",
			Provider: "sim",
			ForEach: map[string]any{
				"web": "10.0.1.0/24",
				"db":  "10.0.2.0/24",
			},
			Properties: map[string]any{
				"role": "${each.key}",
				"cidr": "${each.value}",
			},
		},
	}

	expanded := ExpandForEach(resources)
	require.Len(t, expanded, 2)

	// keys expand in sorted order
	assert.Equal(t, "tier-db", expanded[0].Name)
	assert.Equal(t, "db", expanded[0].Properties["role"])
	assert.Equal(t, "10.0.2.0/24", expanded[0].Properties["cidr"])
	assert.Equal(t, "tier-web", expanded[1].Name)
	assert.Equal(t, "10.0.1.0/24", expanded[1].Properties["cidr"])
}

func TestExpandForEach_Passthrough(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "net.VirtualNetwork", Name: "main", Provider: "sim"},
	}

	expanded := ExpandForEach(resources)
	require.Len(t, expanded, 1)
	assert.Same(t, resources[0], expanded[0])
}

func TestExpandForEach_DeepCopy(t *testing.T) {
	resources := []*ir.Resource{
		{
			Type:     "net.Subnet",
			Name:     "web",
			Provider: "sim",
			Count:    2,
			Properties: map[string]any{
				"tags": map[string]any{"env": "prod"},
			},
		},
	}

	expanded := ExpandForEach(resources)
	require.Len(t, expanded, 2)

	expanded[0].Properties["tags"].(map[string]any)["env"] = "dev"
	assert.Equal(t, "prod", expanded[1].Properties["tags"].(map[string]any)["env"])
}

func TestExpandForEach_RewritesDependsOn(t *testing.T) {
	resources := []*ir.Resource{
		{Type: "net.VirtualNetwork", Name: "main", Provider: "sim", Count: 2},
		{Type: "net.Subnet", Name: "web", Provider: "sim", DependsOn: []string{"net.VirtualNetwork.main"}},
	}

	expanded := ExpandForEach(resources)
	require.Len(t, expanded, 3)

	subnet := expanded[2]
	assert.Equal(t, []string{"net.VirtualNetwork.main-0", "net.VirtualNetwork.main-1"}, subnet.DependsOn)

	dag, err := BuildDAG(expanded)
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{"net.VirtualNetwork.main-0", "net.VirtualNetwork.main-1"},
		dag.Dependencies("net.Subnet.web"))
}

func TestExpandForEach_RewritesDependsOnForEach(t *testing.T) {
	resources := []*ir.Resource{
		{
			Type:     "net.Subnet",
			Name:     "tier",
			Provider: "sim",
			ForEach:  map[string]any{"web": "10.0.1.0/24", "db": "10.0.2.0/24"},
		},
		{Type: "net.LoadBalancer", Name: "public", Provider: "sim", DependsOn: []string{"net.Subnet.tier"}},
	}

	expanded := ExpandForEach(resources)
	require.Len(t, expanded, 3)
	assert.Equal(t, []string{"net.Subnet.tier-db", "net.Subnet.tier-web"}, expanded[2].DependsOn)
}

func TestExpandForEach_SubstitutesNested(t *testing.T) {
	resources := []*ir.Resource{
		{
			Type:     "net.NetworkSecurityGroup",
			Name:     "nsg",
			Provider: "sim",
			Count:    1,
			Properties: map[string]any{
				"rules": []any{
					map[string]any{"name": "allow-${count.index}"},
				},
			},
		},
	}

	expanded := ExpandForEach(resources)
	require.Len(t, expanded, 1)

	rules := expanded[0].Properties["rules"].([]any)
	rule := rules[0].(map[string]any)
	assert.Equal(t, "allow-0", rule["name"])
}
