// SPDX-License-Identifier: BSD-3-Clause

package history_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mtp-gateway/gateway/pkg/connector"
	"github.com/mtp-gateway/gateway/pkg/tagmodel"
	"github.com/mtp-gateway/gateway/service/history"
	"github.com/mtp-gateway/gateway/service/persistence"
	"github.com/mtp-gateway/gateway/service/tagmgr"
)

type memStore struct {
	mu      sync.Mutex
	records []persistence.HistoryRecord
	failN   int // fail the next failN appends
}

func (s *memStore) AppendHistory(ctx context.Context, rec persistence.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failN > 0 {
		s.failN--
		return context.DeadlineExceeded
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func TestRecorderFlushesOnInterval(t *testing.T) {
	mc := connector.NewMockConnector("plc", map[string]any{"lt101": 10.0})
	tags := tagmgr.New()
	tags.RegisterConnector("plc", mc, 5*time.Millisecond)
	require.NoError(t, tags.RegisterTag(tagmodel.Tag{Name: "lt101.pv", Connector: "plc", Address: "lt101", DataType: tagmodel.DataTypeFloat64, Writable: true}))

	store := &memStore{}
	rec := history.New("history", tags, store, history.Config{FlushInterval: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tags.Run(ctx, nil)
	go rec.Run(ctx, nil)

	mc.Set("lt101", 20.0)

	require.Eventually(t, func() bool {
		return store.count() > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRecorderForcesFlushAtMaxBuffer(t *testing.T) {
	mc := connector.NewMockConnector("plc", map[string]any{"lt101": 10.0})
	tags := tagmgr.New()
	tags.RegisterConnector("plc", mc, 2*time.Millisecond)
	require.NoError(t, tags.RegisterTag(tagmodel.Tag{Name: "lt101.pv", Connector: "plc", Address: "lt101", DataType: tagmodel.DataTypeFloat64, Writable: true}))

	store := &memStore{}
	rec := history.New("history", tags, store, history.Config{FlushInterval: time.Hour, MaxBufferSize: 3})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tags.Run(ctx, nil)
	go rec.Run(ctx, nil)

	for i := 0; i < 5; i++ {
		mc.Set("lt101", float64(20+i))
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return store.count() >= 3
	}, 2*time.Second, 10*time.Millisecond, "buffer should force-flush once it reaches MaxBufferSize without waiting for the long interval")
}

func TestRecorderExcludesFilteredTags(t *testing.T) {
	mc := connector.NewMockConnector("plc", map[string]any{"a": 1.0, "b": 2.0})
	tags := tagmgr.New()
	tags.RegisterConnector("plc", mc, 2*time.Millisecond)
	require.NoError(t, tags.RegisterTag(tagmodel.Tag{Name: "a.v", Connector: "plc", Address: "a", DataType: tagmodel.DataTypeFloat64}))
	require.NoError(t, tags.RegisterTag(tagmodel.Tag{Name: "b.v", Connector: "plc", Address: "b", DataType: tagmodel.DataTypeFloat64}))

	store := &memStore{}
	rec := history.New("history", tags, store, history.Config{
		FlushInterval: 10 * time.Millisecond,
		ExcludeTags:   map[string]bool{"b.v": true},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tags.Run(ctx, nil)
	go rec.Run(ctx, nil)

	mc.Set("a", 5.0)
	mc.Set("b", 6.0)

	require.Eventually(t, func() bool { return store.count() > 0 }, 2*time.Second, 10*time.Millisecond)
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, r := range store.records {
		require.NotEqual(t, "b.v", r.Tag)
	}
}
