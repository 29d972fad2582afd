// SPDX-License-Identifier: BSD-3-Clause

package manifest_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mtp-gateway/gateway/pkg/daassembly"
	"github.com/mtp-gateway/gateway/service/addrspace"
	"github.com/mtp-gateway/gateway/service/manifest"
)

func testConfig() manifest.Config {
	return manifest.Config{
		PEAName:      "Reactor1",
		PEAVersion:   "1.0.0",
		Endpoint:     "opc.tcp://0.0.0.0:4840",
		NamespaceURI: "urn:mtp:reactor1",
		DataAssemblies: []daassembly.Assembly{
			{Name: "LT101", Type: daassembly.TypeAnaView, Bindings: map[string]string{"V": "lt101.pv"}},
			{Name: "V101", Type: daassembly.TypeBinVlv, Bindings: map[string]string{"V": "v101.cmd"}},
		},
		Services: []manifest.ServiceInfo{
			{
				Name: "Feed",
				Mode: "THICK",
				Procedures: []manifest.ProcedureInfo{
					{ID: 1, Name: "Standard", IsDefault: true},
					{ID: 2, Name: "FastFeed"},
				},
			},
			{Name: "Drain", Mode: "THIN"},
		},
	}
}

func TestGenerateCAEXContainsAttributeNodeIds(t *testing.T) {
	out, err := manifest.GenerateCAEX(testConfig())
	require.NoError(t, err)
	xmlStr := string(out)
	require.Contains(t, xmlStr, "CAEXFile")
	require.Contains(t, xmlStr, "PEA_Reactor1.DataAssemblies.LT101.V")
	require.Contains(t, xmlStr, "CommandOpNodeId")
}

func TestGenerateNodeSet2IsDeterministicAcrossRuns(t *testing.T) {
	cfg := testConfig()
	cfg.Deterministic = true
	first, err := manifest.GenerateNodeSet2(cfg)
	require.NoError(t, err)
	second, err := manifest.GenerateNodeSet2(cfg)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestAllNodeIDsMatchesAddressSpaceServiceNodes(t *testing.T) {
	cfg := testConfig()

	space := addrspace.New(cfg.NamespaceURI, cfg.PEAName, nil, nil)
	for _, da := range cfg.DataAssemblies {
		require.NoError(t, space.AddDataAssembly(da))
	}
	for _, svc := range cfg.Services {
		require.NoError(t, space.AddService(svc.Name))
	}

	manifestIDs, err := manifest.AllNodeIDs(cfg)
	require.NoError(t, err)
	manifestSet := map[string]bool{}
	for _, id := range manifestIDs {
		manifestSet[id] = true
	}

	for _, svc := range cfg.Services {
		sn, ok := space.ServiceNodeSet(svc.Name)
		require.True(t, ok)
		require.True(t, manifestSet[sn.CommandOp], "manifest missing %s", sn.CommandOp)
		require.True(t, manifestSet[sn.StateCur], "manifest missing %s", sn.StateCur)
		require.True(t, manifestSet[sn.ProcedureCur], "manifest missing %s", sn.ProcedureCur)
	}

	bindings := space.TagBindings()
	for _, nodes := range bindings {
		for _, n := range nodes {
			require.True(t, manifestSet[n], "manifest missing data-assembly node %s", n)
		}
	}
}
