// SPDX-License-Identifier: BSD-3-Clause

package addr_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mtp-gateway/gateway/pkg/addr"
)

func TestModbusBoundaries(t *testing.T) {
	a, err := addr.ParseModbus("9999")
	require.NoError(t, err)
	require.Equal(t, addr.ModbusCoil, a.RegisterType)

	_, err = addr.ParseModbus("10000")
	require.Error(t, err, "10000 is not a valid Modbus address in any table")

	a, err = addr.ParseModbus("10001")
	require.NoError(t, err)
	require.Equal(t, addr.ModbusDiscreteInput, a.RegisterType)
	require.Equal(t, 0, a.Address)
}

func TestModbusNamedPrefixAndBit(t *testing.T) {
	a, err := addr.ParseModbus("HR:0.3")
	require.NoError(t, err)
	require.Equal(t, addr.ModbusHoldingRegister, a.RegisterType)
	require.Equal(t, 0, a.Address)
	require.True(t, a.HasBitOffset)
	require.Equal(t, 3, a.BitOffset)
}

func TestModbusBitOutOfRange(t *testing.T) {
	_, err := addr.ParseModbus("40001.16")
	require.ErrorIs(t, err, addr.ErrBitOutOfRange)
}

func TestModbusRoundTrip(t *testing.T) {
	for _, raw := range []string{"9999", "10001", "30050", "40123.5"} {
		a, err := addr.ParseModbus(raw)
		require.NoError(t, err)
		norm := a.Normalize()
		b, err := addr.ParseModbus(norm)
		require.NoError(t, err)
		require.Equal(t, a, b, "round trip of %q", raw)
	}
}

func TestModbusUnitPrefix(t *testing.T) {
	a, err := addr.ParseModbus("unit:3:40001")
	require.NoError(t, err)
	require.True(t, a.HasUnit)
	require.Equal(t, 3, a.Unit)
}
