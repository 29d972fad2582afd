// SPDX-License-Identifier: BSD-3-Clause

package webui

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	alarmpkg "github.com/mtp-gateway/gateway/pkg/alarm"
	"github.com/mtp-gateway/gateway/pkg/packml"
	"github.com/mtp-gateway/gateway/pkg/quality"
	"github.com/mtp-gateway/gateway/pkg/tagmodel"
)

func TestBroadcasterCoalescesRapidTagUpdates(t *testing.T) {
	h := newHub(discardLogger())
	b := newBroadcaster(50*time.Millisecond, h)

	c := &conn{send: make(chan event, 8), subs: map[subscription]bool{{channel: "tags"}: true}}
	h.register(c)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		b.onTagChange(ctx, "Tank.Level", tagmodel.Value{}, tagmodel.NewValue(float64(i), quality.Good))
	}

	select {
	case <-c.send:
		t.Fatal("expected no event before the coalescing window elapses")
	case <-time.After(10 * time.Millisecond):
	}

	select {
	case e := <-c.send:
		var payload tagUpdatePayload
		require.NoError(t, json.Unmarshal(e.Payload, &payload))
		require.InDelta(t, 4.0, payload.Value.(float64), 1e-9)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected exactly one coalesced event")
	}
}

func TestBroadcasterServiceStateChangeIsNotCoalesced(t *testing.T) {
	h := newHub(discardLogger())
	b := newBroadcaster(time.Hour, h)

	c := &conn{send: make(chan event, 8), subs: map[subscription]bool{{channel: "services"}: true}}
	h.register(c)

	b.onServiceStateChange(context.Background(), "Feed", packml.StateIdle, packml.StateExecute)

	select {
	case e := <-c.send:
		require.Equal(t, "service_state", e.Type)
		require.Equal(t, "Feed", e.Name)
	case <-time.After(time.Second):
		t.Fatal("expected an immediate service_state event")
	}
}

func TestHubOnlyDispatchesToMatchingSubscriptions(t *testing.T) {
	h := newHub(discardLogger())

	tagsOnly := &conn{send: make(chan event, 8), subs: map[subscription]bool{{channel: "tags"}: true}}
	filtered := &conn{send: make(chan event, 8), subs: map[subscription]bool{{channel: "tags", filter: "Other"}: true}}
	h.register(tagsOnly)
	h.register(filtered)

	h.broadcast(event{Channel: "tags", Type: "tag_update", Name: "Tank.Level"})

	require.Len(t, tagsOnly.send, 1)
	require.Len(t, filtered.send, 0)
}

func TestBroadcastAlarmEmitsOnAlarmsChannel(t *testing.T) {
	h := newHub(discardLogger())
	b := newBroadcaster(time.Second, h)

	c := &conn{send: make(chan event, 8), subs: map[subscription]bool{{channel: "all"}: true}}
	h.register(c)

	b.broadcastAlarm(alarmpkg.Raise("LT101_HH", "LT101", alarmpkg.PriorityEmergency, "high high", 99))

	select {
	case e := <-c.send:
		require.Equal(t, "alarms", e.Channel)
		require.Equal(t, "LT101_HH", e.Name)
	case <-time.After(time.Second):
		t.Fatal("expected an alarm event")
	}
}
