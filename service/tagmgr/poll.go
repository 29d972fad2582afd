// SPDX-License-Identifier: BSD-3-Clause

package tagmgr

import (
	"context"
	"time"

	"github.com/mtp-gateway/gateway/pkg/connector"
	"github.com/mtp-gateway/gateway/pkg/quality"
	"github.com/mtp-gateway/gateway/pkg/tagmodel"
)

// runGroup drives a single connector's poll loop for the lifetime of ctx:
// on each tick it reconnects opportunistically, reads every tag bound to
// the connector, scales and records the results, and notifies subscribers.
func (m *Manager) runGroup(ctx context.Context, g *connectorGroup) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	m.pollOnce(ctx, g)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pollOnce(ctx, g)
		}
	}
}

func (m *Manager) pollOnce(ctx context.Context, g *connectorGroup) {
	health := g.conn.Health()
	if !health.Healthy() {
		m.triggerReconnect(ctx, g)
		m.markGroupDown(ctx, g)
		return
	}

	for _, st := range g.tags {
		m.pollTag(ctx, g.conn, st)
	}
}

// triggerReconnect starts a background reconnect attempt for the
// connector if one is not already in flight. It does not block the poll
// tick: a connector that takes many attempts to recover simply leaves its
// tags in a degraded quality state until it succeeds.
func (m *Manager) triggerReconnect(ctx context.Context, g *connectorGroup) {
	if !g.reconnecting.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer g.reconnecting.Store(false)
		bgCtx := context.WithoutCancel(ctx)
		if err := connector.RunReconnectLoop(bgCtx, g.conn.Health(), connector.DefaultBackoff(), connector.DefaultMaxReconnectAttempts, g.conn.Connect); err != nil {
			m.logger.WarnContext(ctx, "reconnect loop exited", "connector", g.name, "error", err)
		}
	}()
}

// markGroupDown records the batch-failure quality rule: a tag with a prior
// good value is marked uncertain-holding-over, one that has never had a
// good value is marked bad-no-communication.
func (m *Manager) markGroupDown(ctx context.Context, g *connectorGroup) {
	for _, st := range g.tags {
		old := st.Current()
		var v tagmodel.Value
		if lg, ok := st.LastGood(); ok {
			v = tagmodel.NewValue(lg.Value, quality.UncertainNoCommLastUsable)
		} else {
			v = tagmodel.NewValue(nil, quality.BadNoCommunication)
		}
		if st.Update(v) {
			m.notify(ctx, st.Tag().Name, old, v)
		}
	}
}

func (m *Manager) pollTag(ctx context.Context, conn connector.Connector, st *tagmodel.State) {
	tag := st.Tag()
	raw, err := conn.Read(ctx, tag.Address)
	old := st.Current()
	if err != nil {
		st.RecordError()
		var v tagmodel.Value
		if lg, ok := st.LastGood(); ok {
			v = tagmodel.NewValue(lg.Value, quality.UncertainNoCommLastUsable)
		} else {
			v = tagmodel.NewValue(nil, quality.BadNoCommunication)
		}
		if st.Update(v) {
			m.notify(ctx, tag.Name, old, v)
		}
		return
	}

	scaled := applyScale(tag, raw)
	v := tagmodel.NewValue(scaled, quality.Good)
	if st.Update(v) {
		m.notify(ctx, tag.Name, old, v)
	}
}

// applyScale converts a raw connector reading into the tag's engineering
// value, applying Tag.Scale when the tag declares one and the sample is
// numeric. Non-numeric (bool, string) samples pass through unchanged.
func applyScale(tag tagmodel.Tag, raw any) any {
	if tag.Scale == nil {
		return raw
	}
	v := tagmodel.Value{Value: raw}
	f, ok := v.AsFloat64()
	if !ok {
		return raw
	}
	return tag.Scale.Apply(f)
}
