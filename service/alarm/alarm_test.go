// SPDX-License-Identifier: BSD-3-Clause

package alarm_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	alarmpkg "github.com/mtp-gateway/gateway/pkg/alarm"
	"github.com/mtp-gateway/gateway/pkg/daassembly"
	"github.com/mtp-gateway/gateway/pkg/tagmodel"
	alarmsvc "github.com/mtp-gateway/gateway/service/alarm"
	"github.com/mtp-gateway/gateway/pkg/connector"
	"github.com/mtp-gateway/gateway/service/tagmgr"
)

type memStore struct {
	mu     sync.Mutex
	byID   map[uint64]alarmpkg.Alarm
	nextID uint64
}

func newMemStore() *memStore {
	return &memStore{byID: make(map[uint64]alarmpkg.Alarm)}
}

func (s *memStore) UpsertAlarm(ctx context.Context, a alarmpkg.Alarm) (alarmpkg.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		s.nextID++
		a.ID = s.nextID
	}
	s.byID[a.ID] = a
	return a, nil
}

func (s *memStore) ListAlarms(ctx context.Context, states map[alarmpkg.State]bool, start, end time.Time) ([]alarmpkg.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []alarmpkg.Alarm
	for _, a := range s.byID {
		if len(states) > 0 && !states[a.State] {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func TestAnalogMonitorRaisesAndClearsHH(t *testing.T) {
	mc := connector.NewMockConnector("plc", map[string]any{"lt101": 50.0})
	tags := tagmgr.New()
	tags.RegisterConnector("plc", mc, 5*time.Millisecond)
	require.NoError(t, tags.RegisterTag(tagmodel.Tag{Name: "lt101.pv", Connector: "plc", Address: "lt101", DataType: tagmodel.DataTypeFloat64, Writable: true}))

	store := newMemStore()
	mgr := alarmsvc.New("alarm", tags, store)
	require.NoError(t, mgr.RegisterAssembly(daassembly.Assembly{
		Name: "LT101", Type: daassembly.TypeAnaMon,
		Bindings: map[string]string{"V": "lt101.pv"},
		Limits:   &daassembly.MonitorLimits{HH: 90, H: 80, L: 20, LL: 10},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tags.Run(ctx, nil)
	go mgr.Run(ctx, nil)

	time.Sleep(10 * time.Millisecond)
	mc.Set("lt101", 95.0)

	require.Eventually(t, func() bool {
		active, _ := store.ListAlarms(ctx, map[alarmpkg.State]bool{alarmpkg.StateActive: true}, time.Time{}, time.Time{})
		return len(active) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	mc.Set("lt101", 50.0)

	require.Eventually(t, func() bool {
		active, _ := store.ListAlarms(ctx, map[alarmpkg.State]bool{alarmpkg.StateActive: true}, time.Time{}, time.Time{})
		return len(active) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRegisterAssemblyRejectsNonMonitorType(t *testing.T) {
	tags := tagmgr.New()
	store := newMemStore()
	mgr := alarmsvc.New("alarm", tags, store)
	err := mgr.RegisterAssembly(daassembly.Assembly{Name: "LT101", Type: daassembly.TypeAnaView})
	require.Error(t, err)
}
