// SPDX-License-Identifier: BSD-3-Clause

package quality_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mtp-gateway/gateway/pkg/quality"
)

func TestBands(t *testing.T) {
	require.True(t, quality.Good.IsGood())
	require.True(t, quality.UncertainNoCommLastUsable.IsUncertain())
	require.True(t, quality.BadNoCommunication.IsBad())
	require.False(t, quality.Good.IsBad())
}

func TestCodeGoodIsZero(t *testing.T) {
	require.Equal(t, uint32(0), quality.Good.Code())
}

func TestFromOPCUAStatusCode(t *testing.T) {
	cases := []struct {
		code uint32
		want quality.Quality
	}{
		{0x00000000, quality.Good},
		{0x40920000, quality.UncertainLastUsable},
		{0x80130000, quality.BadNoCommunication},
	}
	for _, tc := range cases {
		got := quality.FromOPCUAStatusCode(tc.code)
		require.Equal(t, tc.want, got, "code=%#x", tc.code)
	}
}

func TestStringUnknown(t *testing.T) {
	var q quality.Quality = 999
	require.Contains(t, q.String(), "Quality(999)")
}
