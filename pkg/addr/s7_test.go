// SPDX-License-Identifier: BSD-3-Clause

package addr_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mtp-gateway/gateway/pkg/addr"
)

func TestS7DBXRequiresBit(t *testing.T) {
	_, err := addr.ParseS7("DB1.DBX4")
	require.Error(t, err)

	a, err := addr.ParseS7("DB1.DBX4.7")
	require.NoError(t, err)
	require.Equal(t, 7, a.BitIndex)
}

func TestS7DBXBitOutOfRange(t *testing.T) {
	_, err := addr.ParseS7("DB1.DBX4.8")
	require.ErrorIs(t, err, addr.ErrBitOutOfRange)
}

func TestS7WordForbidsBit(t *testing.T) {
	_, err := addr.ParseS7("DB1.DBW4.1")
	require.Error(t, err)
}

func TestS7MarkerAndIO(t *testing.T) {
	m, err := addr.ParseS7("MD100")
	require.NoError(t, err)
	require.Equal(t, addr.S7AreaMarker, m.Area)
	require.Equal(t, addr.S7SizeDouble, m.Size)

	bit, err := addr.ParseS7("M10.3")
	require.NoError(t, err)
	require.True(t, bit.HasBit)

	io, err := addr.ParseS7("IB2")
	require.NoError(t, err)
	require.Equal(t, addr.S7AreaInput, io.Area)

	iobit, err := addr.ParseS7("Q5.2")
	require.NoError(t, err)
	require.Equal(t, addr.S7AreaOutput, iobit.Area)
	require.Equal(t, 2, iobit.BitIndex)
}

func TestS7TimerCounter(t *testing.T) {
	tm, err := addr.ParseS7("T5")
	require.NoError(t, err)
	require.Equal(t, addr.S7AreaTimer, tm.Area)

	c, err := addr.ParseS7("C12")
	require.NoError(t, err)
	require.Equal(t, addr.S7AreaCounter, c.Area)
}

func TestS7RoundTrip(t *testing.T) {
	for _, raw := range []string{"DB1.DBX4.7", "DB2.DBW10", "M10.3", "MD100", "IB2", "Q5.2", "T5", "C12"} {
		a, err := addr.ParseS7(raw)
		require.NoError(t, err)
		b, err := addr.ParseS7(a.Normalize())
		require.NoError(t, err)
		require.Equal(t, a, b, "round trip of %q", raw)
	}
}
