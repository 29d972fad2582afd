// SPDX-License-Identifier: BSD-3-Clause

package audit_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mtp-gateway/gateway/pkg/audit"
	"github.com/mtp-gateway/gateway/pkg/packml"
)

func TestLogCommandAndStateTransition(t *testing.T) {
	tr := audit.NewTrail(10)
	tr.LogCommand(context.Background(), "Dosing", packml.CommandStart, "user", true, nil)
	tr.LogStateTransition(context.Background(), "Dosing", packml.StateIdle, packml.StateStarting, "START command")

	entries := tr.Entries("Dosing", 0)
	require.Len(t, entries, 2)
	require.Equal(t, "command", entries[0].Kind)
	require.Equal(t, "state_transition", entries[1].Kind)
}

func TestEntriesFiltersByService(t *testing.T) {
	tr := audit.NewTrail(10)
	tr.LogCommand(context.Background(), "Dosing", packml.CommandStart, "user", true, nil)
	tr.LogCommand(context.Background(), "Heat", packml.CommandStart, "user", true, nil)

	require.Len(t, tr.Entries("Dosing", 0), 1)
	require.Len(t, tr.Entries("", 0), 2)
}

func TestTrailDiscardsOldestBeyondMax(t *testing.T) {
	tr := audit.NewTrail(2)
	for i := 0; i < 5; i++ {
		tr.LogCommand(context.Background(), "Dosing", packml.CommandStart, "user", true, nil)
	}
	require.Equal(t, 2, tr.Count())
}

func TestRecordEventSatisfiesServicemgrInterface(t *testing.T) {
	tr := audit.NewTrail(10)
	tr.RecordEvent(context.Background(), "emergency_stop", "safe-state written")
	entries := tr.Entries("", 0)
	require.Len(t, entries, 1)
	require.Equal(t, "security", entries[0].Kind)
	require.Equal(t, "emergency_stop", entries[0].EventType)
}

func TestClearRemovesAllEntries(t *testing.T) {
	tr := audit.NewTrail(10)
	tr.LogCommand(context.Background(), "Dosing", packml.CommandStart, "user", true, nil)
	tr.Clear()
	require.Equal(t, 0, tr.Count())
}
