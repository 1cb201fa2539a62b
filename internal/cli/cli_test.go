package cli

import (
	"encoding/json"
	"testing"

	pkgprovider "github.com/stratus-io/stratus/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatPkl(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "trailing whitespace",
			input:    "name = \"test\"   \ntype = \"foo\"  \n",
			expected: "name = \"test\"\ntype = \"foo\"\n",
		},
		{
			name:     "ensure trailing newline",
			input:    "name = \"test\"",
			expected: "name = \"test\"\n",
		},
		{
			name:     "collapse blank lines",
			input:    "a = 1\n\n\n\nb = 2\n",
			expected: "a = 1\n\nb = 2\n",
		},
		{
			name:     "already formatted",
			input:    "a = 1\nb = 2\n",
			expected: "a = 1\nb = 2\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatPkl(tt.input))
		})
	}
}

func TestColorize(t *testing.T) {
	noColor = false
	assert.Equal(t, ansiRed+"boom"+ansiReset, colorize(ansiRed, "boom"))

	noColor = true
	assert.Equal(t, "boom", colorize(ansiRed, "boom"))

	noColor = false
}

func TestCurrentWorkspace(t *testing.T) {
	// No workspace file in the test directory, so the default applies.
	assert.Equal(t, "default", currentWorkspace())
}

func TestWorkspaceStatePath(t *testing.T) {
	assert.Equal(t, ".stratus/state.json", WorkspaceStatePath())
	assert.Equal(t, ".stratus/state.staging.json", workspaceStatePathFor("staging"))
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		addr    string
		typ     string
		name    string
		wantErr bool
	}{
		{addr: "net.VirtualNetwork.main", typ: "net.VirtualNetwork", name: "main"},
		{addr: "net.Subnet.web-0", typ: "net.Subnet", name: "web-0"},
		{addr: "thing.a", typ: "thing", name: "a"},
		{addr: "noseparator", wantErr: true},
		{addr: "trailing.", wantErr: true},
		{addr: ".leading", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			typ, name, err := parseAddress(tt.addr)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.typ, typ)
			assert.Equal(t, tt.name, name)
		})
	}
}

func TestActionSymbol(t *testing.T) {
	tests := []struct {
		action   pkgprovider.Action
		expected string
	}{
		{pkgprovider.ActionCreate, "+"},
		{pkgprovider.ActionUpdate, "~"},
		{pkgprovider.ActionDelete, "-"},
		{pkgprovider.ActionReplace, "-/+"},
		{pkgprovider.ActionNoop, " "},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, actionSymbol(tt.action))
	}
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "null", formatValue(nil))
	assert.Equal(t, `"10.0.0.0/16"`, formatValue("10.0.0.0/16"))
	assert.Equal(t, "3", formatValue(3))
	assert.Equal(t, "true", formatValue(true))
}

func TestTerraformStateParsing(t *testing.T) {
	raw := `{
		"version": 4,
		"serial": 12,
		"lineage": "0b7cdd22-1d02-4c33-9f3c-7a15e3c4d111",
		"outputs": {
			"vnet_id": {"value": "vnet-prod-0042", "type": "string"}
		},
		"resources": [
			{
				"mode": "managed",
				"type": "net.VirtualNetwork",
				"name": "main",
				"instances": [
					{
						"attributes": {"id": "vnet-prod-0042", "cidr": "10.0.0.0/16"},
						"dependencies": []
					}
				]
			},
			{
				"mode": "data",
				"type": "net.Subnet",
				"name": "lookup",
				"instances": [{"attributes": {}}]
			}
		]
	}`

	var tf tfState
	require.NoError(t, json.Unmarshal([]byte(raw), &tf))

	assert.Equal(t, 4, tf.Version)
	assert.Equal(t, 12, tf.Serial)
	require.Len(t, tf.Resources, 2)
	assert.Equal(t, "managed", tf.Resources[0].Mode)
	assert.Equal(t, "vnet-prod-0042", tf.Resources[0].Instances[0].Attributes["id"])

	out, ok := tf.Outputs["vnet_id"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "vnet-prod-0042", out["value"])
}
