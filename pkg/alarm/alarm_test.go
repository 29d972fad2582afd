// SPDX-License-Identifier: BSD-3-Clause

package alarm_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mtp-gateway/gateway/pkg/alarm"
)

func TestRaiseProducesActiveWithRaisedAt(t *testing.T) {
	a := alarm.Raise("LT101_HH", "LT101", alarm.PriorityEmergency, "high-high", 95.0)
	require.Equal(t, alarm.StateActive, a.State)
	require.False(t, a.RaisedAt.IsZero())
	require.True(t, a.ClearedAt.IsZero())
}

func TestAcknowledgeThenClear(t *testing.T) {
	a := alarm.Raise("LT101_HH", "LT101", alarm.PriorityEmergency, "high-high", 95.0)
	require.NoError(t, a.Acknowledge("operator1"))
	require.Equal(t, alarm.StateAcknowledged, a.State)
	require.False(t, a.AcknowledgedAt.IsZero())

	require.NoError(t, a.Clear())
	require.Equal(t, alarm.StateCleared, a.State)
	require.False(t, a.ClearedAt.IsZero())
}

func TestClearRequiresAcknowledgeFirst(t *testing.T) {
	a := alarm.Raise("LT101_HH", "LT101", alarm.PriorityEmergency, "high-high", 95.0)
	require.ErrorIs(t, a.Clear(), alarm.ErrInvalidTransition)
}

func TestAutoClearFromActive(t *testing.T) {
	a := alarm.Raise("LT101_HH", "LT101", alarm.PriorityEmergency, "high-high", 95.0)
	require.NoError(t, a.AutoClear())
	require.Equal(t, alarm.StateCleared, a.State)
}

func TestShelveThenUnshelve(t *testing.T) {
	a := alarm.Raise("LT101_HH", "LT101", alarm.PriorityEmergency, "high-high", 95.0)
	until := time.Now().Add(time.Hour)
	require.NoError(t, a.Shelve(until))
	require.Equal(t, alarm.StateShelved, a.State)

	require.NoError(t, a.Unshelve())
	require.Equal(t, alarm.StateActive, a.State)
}

func TestUnshelveFromNonShelvedFails(t *testing.T) {
	a := alarm.Raise("LT101_HH", "LT101", alarm.PriorityEmergency, "high-high", 95.0)
	require.ErrorIs(t, a.Unshelve(), alarm.ErrInvalidTransition)
}
