// SPDX-License-Identifier: BSD-3-Clause

package webui

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	alarmpkg "github.com/mtp-gateway/gateway/pkg/alarm"
	"github.com/mtp-gateway/gateway/pkg/packml"
	"github.com/mtp-gateway/gateway/pkg/tagmodel"
)

// event is one broadcast message, framed onto every subscribed WebSocket
// connection whose channel/filter matches.
type event struct {
	Channel string          `json:"channel"` // "tags"|"services"|"alarms", or "control" for replies
	Type    string          `json:"type"`    // "tag_update"|"service_state"|"alarm", or a serverAck type
	Name    string          `json:"name"`    // tag name or service name, for filtering
	Payload json.RawMessage `json:"payload"`
}

// tagUpdatePayload is the JSON body of a "tag_update" event.
type tagUpdatePayload struct {
	Tag       string    `json:"tag"`
	Value     any       `json:"value"`
	Quality   string    `json:"quality"`
	Timestamp time.Time `json:"timestamp"`
}

// serviceStatePayload is the JSON body of a "service_state" event.
type serviceStatePayload struct {
	Service string `json:"service"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// alarmPayload is the JSON body of an "alarm" event.
type alarmPayload struct {
	ID       uint64  `json:"id"`
	AlarmID  string  `json:"alarm_id"`
	Source   string  `json:"source"`
	Priority int     `json:"priority"`
	State    string  `json:"state"`
	Message  string  `json:"message"`
	Value    float64 `json:"value"`
}

// broadcaster fans tag, service, and alarm changes out to every connected
// WebSocket client, coalescing same-tag updates inside a sliding window so
// a fast-changing tag cannot flood a slow client: no more than one update
// per tag per min_update_interval_ms, always reflecting the most recent
// value.
type broadcaster struct {
	interval time.Duration
	hub      *hub

	mu      sync.Mutex
	pending map[string]tagUpdatePayload
	timer   *time.Timer
}

func newBroadcaster(interval time.Duration, h *hub) *broadcaster {
	return &broadcaster{interval: interval, hub: h, pending: make(map[string]tagUpdatePayload)}
}

// onTagChange is registered as a TagSource.Subscribe callback.
func (b *broadcaster) onTagChange(_ context.Context, tagName string, _, newVal tagmodel.Value) {
	payload := tagUpdatePayload{
		Tag: tagName, Value: newVal.Value, Quality: newVal.Quality.String(), Timestamp: newVal.Timestamp,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[tagName] = payload
	if b.timer != nil {
		return
	}
	b.timer = time.AfterFunc(b.interval, b.flush)
}

func (b *broadcaster) flush() {
	b.mu.Lock()
	batch := b.pending
	b.pending = make(map[string]tagUpdatePayload)
	b.timer = nil
	b.mu.Unlock()

	for tag, payload := range batch {
		raw, err := json.Marshal(payload)
		if err != nil {
			continue
		}
		b.hub.broadcast(event{Channel: "tags", Type: "tag_update", Name: tag, Payload: raw})
	}
}

// onServiceStateChange is registered as a ServiceSource.Subscribe
// callback. Service state transitions are not coalesced — they're exempt
// from the tag-update coalescing window since they carry command-response
// semantics a client must see every one of.
func (b *broadcaster) onServiceStateChange(_ context.Context, service string, from, to packml.State) {
	payload := serviceStatePayload{Service: service, From: from.String(), To: to.String()}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	b.hub.broadcast(event{Channel: "services", Type: "service_state", Name: service, Payload: raw})
}

// broadcastAlarm is called directly by the alarm REST handlers after a
// successful ack/clear/shelve mutation, and can be wired to a raise/clear
// notification hook once the Alarm Detector exposes one.
func (b *broadcaster) broadcastAlarm(a alarmpkg.Alarm) {
	payload := alarmPayload{
		ID: a.ID, AlarmID: a.AlarmID, Source: a.Source,
		Priority: int(a.Priority), State: string(a.State), Message: a.Message, Value: a.Value,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	b.hub.broadcast(event{Channel: "alarms", Type: "alarm", Name: a.AlarmID, Payload: raw})
}
