// SPDX-License-Identifier: BSD-3-Clause

package persistence_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mtp-gateway/gateway/pkg/alarm"
	"github.com/mtp-gateway/gateway/pkg/audit"
	"github.com/mtp-gateway/gateway/service/persistence"
	"github.com/mtp-gateway/gateway/service/servicemgr"
)

func openTestStore(t *testing.T) *persistence.Store {
	t.Helper()
	s, err := persistence.Open(filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestSnapshotUpsertLoadDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSnapshot(ctx, servicemgr.Snapshot{Service: "Dosing", State: "EXECUTE", CurrentProcedureID: 2}))
	snaps, err := s.LoadSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.Equal(t, "EXECUTE", snaps[0].State)

	require.NoError(t, s.DeleteSnapshot(ctx, "Dosing"))
	snaps, err = s.LoadSnapshots(ctx)
	require.NoError(t, err)
	require.Empty(t, snaps)
}

func TestHistoryAppendAndRangeQuery(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		v := float64(i)
		require.NoError(t, s.AppendHistory(ctx, persistence.HistoryRecord{
			Time: base.Add(time.Duration(i) * time.Second), Tag: "LT101", Value: &v, Quality: "Good",
		}))
	}

	recs, err := s.QueryHistory(ctx, "LT101", base, base.Add(2*time.Second))
	require.NoError(t, err)
	require.Len(t, recs, 3)

	tags, err := s.AvailableHistoryTags(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"LT101"}, tags)
}

func TestHistoryBucketedAggregation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	values := []float64{10, 20, 30, 40}
	for i, v := range values {
		vv := v
		require.NoError(t, s.AppendHistory(ctx, persistence.HistoryRecord{
			Time: base.Add(time.Duration(i) * time.Second), Tag: "LT101", Value: &vv, Quality: "Good",
		}))
	}

	buckets, err := s.QueryHistoryBucketed(ctx, "LT101", base, base.Add(10*time.Second), 5*time.Second, persistence.AggregateAvg)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	require.InDelta(t, 25.0, buckets[0].Value, 0.001)
	require.Equal(t, 4, buckets[0].Count)
}

func TestHistoryBucketedRejectsUnknownSize(t *testing.T) {
	s := openTestStore(t)
	_, err := s.QueryHistoryBucketed(context.Background(), "LT101", time.Now(), time.Now(), 7*time.Second, persistence.AggregateAvg)
	require.ErrorIs(t, err, persistence.ErrInvalidBucketSize)
}

func TestAuditAppendAndQuery(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.AppendAudit(ctx, audit.Entry{Service: "Dosing", Timestamp: base, Kind: "command"}))
	require.NoError(t, s.AppendAudit(ctx, audit.Entry{Service: "Heat", Timestamp: base.Add(time.Second), Kind: "command"}))

	entries, err := s.QueryAudit(ctx, "Dosing", base.Add(-time.Hour), base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "Dosing", entries[0].Service)
}

func TestAlarmUpsertAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := alarm.Raise("LT101_HH", "LT101", alarm.PriorityEmergency, "high-high", 95.0)
	saved, err := s.UpsertAlarm(ctx, a)
	require.NoError(t, err)
	require.NotZero(t, saved.ID)

	fetched, err := s.GetAlarm(ctx, saved.ID)
	require.NoError(t, err)
	require.Equal(t, "LT101_HH", fetched.AlarmID)

	require.NoError(t, fetched.Acknowledge("operator1"))
	_, err = s.UpsertAlarm(ctx, fetched)
	require.NoError(t, err)

	active, err := s.ListAlarms(ctx, map[alarm.State]bool{alarm.StateActive: true}, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Empty(t, active)

	acked, err := s.ListAlarms(ctx, map[alarm.State]bool{alarm.StateAcknowledged: true}, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, acked, 1)
}
