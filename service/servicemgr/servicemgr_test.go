// SPDX-License-Identifier: BSD-3-Clause

package servicemgr_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mtp-gateway/gateway/pkg/packml"
	"github.com/mtp-gateway/gateway/pkg/tagmodel"
	"github.com/mtp-gateway/gateway/service/servicemgr"
)

type fakeTagWriter struct {
	mu     sync.Mutex
	values map[string]any
	writes []string
}

func newFakeTagWriter() *fakeTagWriter {
	return &fakeTagWriter{values: make(map[string]any)}
}

func (f *fakeTagWriter) WriteTag(ctx context.Context, name string, value any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[name] = value
	f.writes = append(f.writes, name)
	return true, nil
}

func (f *fakeTagWriter) ReadTag(ctx context.Context, name string) (tagmodel.Value, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return tagmodel.NewValue(f.values[name], 0), nil
}

func TestThickStartAutoCompletesToExecute(t *testing.T) {
	tw := newFakeTagWriter()
	m := servicemgr.New("servicemgr", servicemgr.Deps{TagWriter: tw})
	require.NoError(t, m.RegisterService(servicemgr.ServiceConfig{
		Name: "Dosing", Mode: servicemgr.ProxyThick,
	}))

	result, err := m.SendCommand(context.Background(), "Dosing", packml.CommandStart, nil)
	require.NoError(t, err)
	require.True(t, result.Success)

	st, err := m.State("Dosing")
	require.NoError(t, err)
	require.Equal(t, packml.StateExecute, st)
}

func TestThickRunsStateHooksInOrder(t *testing.T) {
	tw := newFakeTagWriter()
	m := servicemgr.New("servicemgr", servicemgr.Deps{TagWriter: tw})
	require.NoError(t, m.RegisterService(servicemgr.ServiceConfig{
		Name: "Dosing", Mode: servicemgr.ProxyThick,
		DefaultHooks: map[packml.State][]servicemgr.Hook{
			packml.StateStarting: {{Tag: "Dosing.Pump", Value: true}},
			packml.StateExecute:  {{Tag: "Dosing.Valve", Value: true}},
		},
	}))

	_, err := m.SendCommand(context.Background(), "Dosing", packml.CommandStart, nil)
	require.NoError(t, err)

	require.Equal(t, true, tw.values["Dosing.Pump"])
	require.Equal(t, true, tw.values["Dosing.Valve"])
	require.Equal(t, []string{"Dosing.Pump", "Dosing.Valve"}, tw.writes)
}

func TestThinWritesCommandOpWithoutDrivingLocalMachine(t *testing.T) {
	tw := newFakeTagWriter()
	m := servicemgr.New("servicemgr", servicemgr.Deps{TagWriter: tw})
	require.NoError(t, m.RegisterService(servicemgr.ServiceConfig{
		Name: "Reactor", Mode: servicemgr.ProxyThin,
		CommandOpTag: "Reactor.CommandOp", StateCurTag: "Reactor.StateCur",
	}))

	result, err := m.SendCommand(context.Background(), "Reactor", packml.CommandStart, nil)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, int(packml.CommandStart), tw.values["Reactor.CommandOp"])

	st, err := m.State("Reactor")
	require.NoError(t, err)
	require.Equal(t, packml.StateIdle, st, "THIN mode must never drive the local machine directly")
}

func TestInterlockBlocksStart(t *testing.T) {
	tw := newFakeTagWriter()
	m := servicemgr.New("servicemgr", servicemgr.Deps{
		TagWriter:  tw,
		Interlocks: blockingInterlock{},
	})
	require.NoError(t, m.RegisterService(servicemgr.ServiceConfig{Name: "Dosing", Mode: servicemgr.ProxyThick}))

	result, err := m.SendCommand(context.Background(), "Dosing", packml.CommandStart, nil)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.ErrorIs(t, result.Err, servicemgr.ErrInterlocked)
}

type blockingInterlock struct{}

func (blockingInterlock) Interlocked(ctx context.Context, service string) (bool, string) {
	return true, "guard door open"
}

func TestAbortAndStopNeverBlockedByInterlock(t *testing.T) {
	tw := newFakeTagWriter()
	m := servicemgr.New("servicemgr", servicemgr.Deps{
		TagWriter:  tw,
		Interlocks: blockingInterlock{},
	})
	require.NoError(t, m.RegisterService(servicemgr.ServiceConfig{Name: "Dosing", Mode: servicemgr.ProxyThick}))

	result, err := m.SendCommand(context.Background(), "Dosing", packml.CommandAbort, nil)
	require.NoError(t, err)
	require.True(t, result.Success)
}

func TestSelfCompletingExecuteAutoCompletes(t *testing.T) {
	tw := newFakeTagWriter()
	m := servicemgr.New("servicemgr", servicemgr.Deps{TagWriter: tw})
	require.NoError(t, m.RegisterService(servicemgr.ServiceConfig{
		Name: "Batch", Mode: servicemgr.ProxyThick, SelfCompleting: true,
	}))

	_, err := m.SendCommand(context.Background(), "Batch", packml.CommandStart, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, _ := m.State("Batch")
		return st == packml.StateCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEmergencyStopWritesSafeStateAndAbortsAll(t *testing.T) {
	tw := newFakeTagWriter()
	m := servicemgr.New("servicemgr", servicemgr.Deps{
		TagWriter: tw,
		SafeState: fakeSafeState{tags: map[string]any{"Reactor.Heater": false}},
	})
	require.NoError(t, m.RegisterService(servicemgr.ServiceConfig{Name: "Dosing", Mode: servicemgr.ProxyThick}))

	m.EmergencyStop(context.Background())

	require.Equal(t, false, tw.values["Reactor.Heater"])
	st, err := m.State("Dosing")
	require.NoError(t, err)
	require.Equal(t, packml.StateAborted, st)
}

type fakeSafeState struct {
	tags map[string]any
}

func (f fakeSafeState) SafeStateTags() map[string]any { return f.tags }

type memSnapshots struct {
	mu   sync.Mutex
	data map[string]servicemgr.Snapshot
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{data: make(map[string]servicemgr.Snapshot)}
}

func (s *memSnapshots) SaveSnapshot(ctx context.Context, snap servicemgr.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[snap.Service] = snap
	return nil
}

func (s *memSnapshots) LoadSnapshots(ctx context.Context) ([]servicemgr.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]servicemgr.Snapshot, 0, len(s.data))
	for _, snap := range s.data {
		out = append(out, snap)
	}
	return out, nil
}

func (s *memSnapshots) DeleteSnapshot(ctx context.Context, service string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, service)
	return nil
}

func TestRecoveryForcesStateAndDeletesSnapshot(t *testing.T) {
	tw := newFakeTagWriter()
	snaps := newMemSnapshots()
	require.NoError(t, snaps.SaveSnapshot(context.Background(), servicemgr.Snapshot{
		Service: "Dosing", State: "EXECUTE", CurrentProcedureID: 2,
	}))

	m := servicemgr.New("servicemgr", servicemgr.Deps{TagWriter: tw, Snapshots: snaps})
	require.NoError(t, m.RegisterService(servicemgr.ServiceConfig{Name: "Dosing", Mode: servicemgr.ProxyThick}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = m.Run(ctx, nil)

	st, err := m.State("Dosing")
	require.NoError(t, err)
	require.Equal(t, packml.StateExecute, st)

	procID, err := m.CurrentProcedure("Dosing")
	require.NoError(t, err)
	require.Equal(t, 2, procID)

	loaded, err := snaps.LoadSnapshots(context.Background())
	require.NoError(t, err)
	require.Empty(t, loaded, "recovered snapshot must be deleted")
}
