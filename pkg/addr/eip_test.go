// SPDX-License-Identifier: BSD-3-Clause

package addr_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mtp-gateway/gateway/pkg/addr"
)

func TestEIPSimpleTag(t *testing.T) {
	a, err := addr.ParseEIP("Conveyor1")
	require.NoError(t, err)
	require.Equal(t, "Conveyor1", a.Tag)
	require.Empty(t, a.Accessors)
}

func TestEIPMembersArraysAndBit(t *testing.T) {
	a, err := addr.ParseEIP("Program:MainProgram.Conveyor1.Speed[2]{3}")
	require.NoError(t, err)
	require.Equal(t, "MainProgram", a.Program)
	require.Equal(t, "Conveyor1", a.Tag)
	require.Len(t, a.Accessors, 3)
	require.Equal(t, "Speed", a.Accessors[0].Member)
	require.Equal(t, []int{2}, a.Accessors[1].ArrayIndex)
	require.True(t, a.Accessors[2].IsBit)
	require.Equal(t, 3, a.Accessors[2].BitIndex)
}

func TestEIPMultiDimArray(t *testing.T) {
	a, err := addr.ParseEIP("Grid[1,2,3]")
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, a.Accessors[0].ArrayIndex)
}

func TestEIPInvalidIdentifier(t *testing.T) {
	_, err := addr.ParseEIP("1BadStart")
	require.Error(t, err)
}

func TestEIPRoundTrip(t *testing.T) {
	for _, raw := range []string{"Conveyor1", "Program:Main.Tag1.Member[2]{3}", "Grid[1,2,3]"} {
		a, err := addr.ParseEIP(raw)
		require.NoError(t, err)
		b, err := addr.ParseEIP(a.Normalize())
		require.NoError(t, err)
		require.Equal(t, a, b, "round trip of %q", raw)
	}
}
