// SPDX-License-Identifier: BSD-3-Clause

package daassembly_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mtp-gateway/gateway/pkg/daassembly"
)

func TestAttributesExhaustiveSets(t *testing.T) {
	attrs, err := daassembly.Attributes(daassembly.TypeAnaVlv)
	require.NoError(t, err)
	require.Equal(t, []string{"V", "VSclMin", "VSclMax", "VUnit", "WQC", "VFbk", "OpMode", "Interlock", "Permit"}, attrs)

	attrs, err = daassembly.Attributes(daassembly.TypeBinDrv)
	require.NoError(t, err)
	require.Contains(t, attrs, "MonPosErr")
	require.Contains(t, attrs, "VFbkOpen")
}

func TestAttributesUnknownType(t *testing.T) {
	_, err := daassembly.Attributes(daassembly.Type("Bogus"))
	require.ErrorIs(t, err, daassembly.ErrUnknownType)
}

func TestValidateRejectsUnknownBinding(t *testing.T) {
	a := daassembly.Assembly{
		Name: "LT101", Type: daassembly.TypeAnaView,
		Bindings: map[string]string{"VFbk": "plc.lt101.fbk"},
	}
	require.Error(t, a.Validate())
}

func TestValidateRequiresMonitorLimitsForAnaMon(t *testing.T) {
	a := daassembly.Assembly{Name: "LT101", Type: daassembly.TypeAnaMon}
	require.ErrorIs(t, a.Validate(), daassembly.ErrMissingBinding)

	a.Limits = &daassembly.MonitorLimits{HH: 90, H: 80, L: 20, LL: 10}
	require.NoError(t, a.Validate())
}

func TestPrimarySourceTag(t *testing.T) {
	a := daassembly.Assembly{
		Name: "LT101", Type: daassembly.TypeAnaMon,
		Bindings: map[string]string{"V": "plc.lt101.pv"},
		Limits:   &daassembly.MonitorLimits{HH: 90, H: 80, L: 20, LL: 10},
	}
	tag, ok := a.PrimarySourceTag()
	require.True(t, ok)
	require.Equal(t, "plc.lt101.pv", tag)
}

func TestIsMonitorAndIsActuator(t *testing.T) {
	require.True(t, daassembly.TypeAnaMon.IsMonitor())
	require.True(t, daassembly.TypeBinMon.IsMonitor())
	require.False(t, daassembly.TypeAnaView.IsMonitor())

	require.True(t, daassembly.TypeAnaVlv.IsActuator())
	require.True(t, daassembly.TypeBinDrv.IsActuator())
	require.False(t, daassembly.TypeAnaView.IsActuator())
}
