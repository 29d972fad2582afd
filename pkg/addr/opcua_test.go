// SPDX-License-Identifier: BSD-3-Clause

package addr_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mtp-gateway/gateway/pkg/addr"
)

func TestOPCUADefaultNamespace(t *testing.T) {
	n, err := addr.ParseOPCUANodeID("i=2253")
	require.NoError(t, err)
	require.Equal(t, uint16(0), n.Namespace)
	require.Equal(t, addr.OPCUAIdentifierNumeric, n.IDType)
	require.Equal(t, uint32(2253), n.Numeric)
}

func TestOPCUACompactNamespace(t *testing.T) {
	n, err := addr.ParseOPCUANodeID("ns=3;s=Conveyor1.Speed")
	require.NoError(t, err)
	require.Equal(t, uint16(3), n.Namespace)
	require.Equal(t, addr.OPCUAIdentifierString, n.IDType)
	require.Equal(t, "Conveyor1.Speed", n.String)
}

func TestOPCUAExpandedNamespaceURI(t *testing.T) {
	n, err := addr.ParseOPCUANodeID("nsu=http://example.org/UA/Gateway;i=42")
	require.NoError(t, err)
	require.True(t, n.HasURI)
	require.Equal(t, "http://example.org/UA/Gateway", n.NamespaceURI)
	require.Equal(t, uint32(42), n.Numeric)
}

func TestOPCUAGUIDIdentifier(t *testing.T) {
	n, err := addr.ParseOPCUANodeID("ns=4;g=72962B91-FA75-4AE6-8D28-B404DC7DAF63")
	require.NoError(t, err)
	require.Equal(t, addr.OPCUAIdentifierGUID, n.IDType)
	require.Equal(t, "72962B91-FA75-4AE6-8D28-B404DC7DAF63", n.GUID)
}

func TestOPCUAMalformedGUID(t *testing.T) {
	_, err := addr.ParseOPCUANodeID("ns=4;g=not-a-guid")
	require.Error(t, err)
}

func TestOPCUAOpaqueIdentifier(t *testing.T) {
	n, err := addr.ParseOPCUANodeID("ns=2;b=M%2FRbKBsRVkePCePcx24oRA%3D%3D")
	require.NoError(t, err)
	require.Equal(t, addr.OPCUAIdentifierOpaque, n.IDType)
	require.NotEmpty(t, n.Opaque)
}

func TestOPCUAMissingIdentifier(t *testing.T) {
	_, err := addr.ParseOPCUANodeID("ns=3;")
	require.Error(t, err)
}

func TestOPCUANormalizeOmitsDefaultNamespace(t *testing.T) {
	n, err := addr.ParseOPCUANodeID("ns=0;i=85")
	require.NoError(t, err)
	require.Equal(t, "i=85", n.Normalize())
}

func TestOPCUARoundTrip(t *testing.T) {
	for _, raw := range []string{
		"i=2253",
		"ns=3;s=Conveyor1.Speed",
		"nsu=http://example.org/UA/Gateway;i=42",
		"ns=4;g=72962B91-FA75-4AE6-8D28-B404DC7DAF63",
	} {
		n, err := addr.ParseOPCUANodeID(raw)
		require.NoError(t, err)
		m, err := addr.ParseOPCUANodeID(n.Normalize())
		require.NoError(t, err)
		require.Equal(t, n, m, "round trip of %q", raw)
	}
}
