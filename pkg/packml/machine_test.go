// SPDX-License-Identifier: BSD-3-Clause

package packml_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mtp-gateway/gateway/pkg/packml"
)

func TestIdleStartToStarting(t *testing.T) {
	m := packml.New("conveyor1")
	require.Equal(t, packml.StateIdle, m.Current())

	res := m.SendCommand(context.Background(), packml.CommandStart)
	require.True(t, res.Success)
	require.Equal(t, packml.StateIdle, res.From)
	require.Equal(t, packml.StateStarting, res.To)
	require.True(t, packml.StateStarting.IsActing())
}

func TestInvalidCommandRejected(t *testing.T) {
	m := packml.New("conveyor1")
	res := m.SendCommand(context.Background(), packml.CommandComplete)
	require.False(t, res.Success)
	require.Error(t, res.Err)
	require.Equal(t, packml.StateIdle, m.Current(), "rejected command must not change state")
}

func TestCompleteActingStateChainsToExecute(t *testing.T) {
	ctx := context.Background()
	m := packml.New("conveyor1")
	require.True(t, m.SendCommand(ctx, packml.CommandStart).Success)

	res := m.CompleteActingState(ctx)
	require.True(t, res.Success)
	require.Equal(t, packml.StateStarting, res.From)
	require.Equal(t, packml.StateExecute, res.To)
}

func TestCompleteActingStateFailsOnStableState(t *testing.T) {
	m := packml.New("conveyor1")
	res := m.CompleteActingState(context.Background())
	require.False(t, res.Success)
	require.ErrorIs(t, res.Err, packml.ErrNotActingState)
}

func TestAbortAcceptedFromAnyActingState(t *testing.T) {
	ctx := context.Background()
	m := packml.New("conveyor1")
	require.True(t, m.SendCommand(ctx, packml.CommandStart).Success)
	require.True(t, m.CompleteActingState(ctx).Success) // -> EXECUTE
	require.True(t, m.SendCommand(ctx, packml.CommandHold).Success)

	res := m.SendCommand(ctx, packml.CommandAbort)
	require.True(t, res.Success)
	require.Equal(t, packml.StateAborting, res.To)
}

func TestHooksRunInOrderAndExitStopsOnError(t *testing.T) {
	ctx := context.Background()
	m := packml.New("conveyor1")

	var calls []string
	failing := errFirstHook{}
	m.OnExit(packml.StateIdle, func(context.Context, string, packml.State) error {
		calls = append(calls, "exit1")
		return failing
	})
	m.OnExit(packml.StateIdle, func(context.Context, string, packml.State) error {
		calls = append(calls, "exit2")
		return nil
	})
	m.OnEnter(packml.StateStarting, func(context.Context, string, packml.State) error {
		calls = append(calls, "enter")
		return nil
	})

	res := m.SendCommand(ctx, packml.CommandStart)
	require.True(t, res.Success, "a failing hook must not roll back the state change")
	require.Equal(t, []string{"exit1", "enter"}, calls, "exit2 must be skipped after exit1 fails")
}

type errFirstHook struct{}

func (errFirstHook) Error() string { return "boom" }

func TestForceStateForCrashRecovery(t *testing.T) {
	m := packml.New("conveyor1")
	m.ForceState(packml.StateExecute)
	require.Equal(t, packml.StateExecute, m.Current())

	res := m.SendCommand(context.Background(), packml.CommandHold)
	require.True(t, res.Success)
	require.Equal(t, packml.StateHolding, res.To)
}
