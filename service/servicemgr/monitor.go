// SPDX-License-Identifier: BSD-3-Clause

package servicemgr

import (
	"context"
	"time"

	"github.com/mtp-gateway/gateway/pkg/packml"
)

// onEnterExecute stamps execute_start_time and launches the completion
// monitor. Only THICK/HYBRID services ever reach this hook, since THIN
// services never drive the local machine.
func (m *Manager) onEnterExecute(ctx context.Context, rt *runtime) {
	rt.mu.Lock()
	rt.executeStartTime = time.Now()
	monitorCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	rt.monitorCancel = cancel
	rt.mu.Unlock()

	go m.runCompletionMonitor(monitorCtx, rt)
}

func (m *Manager) stopCompletionMonitor(rt *runtime) {
	rt.mu.Lock()
	cancel := rt.monitorCancel
	rt.monitorCancel = nil
	rt.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// runCompletionMonitor wakes every 100ms while the service remains in
// EXECUTE and evaluates, in order: self-completing, then a configured
// completion condition, then a timeout, by convention.
func (m *Manager) runCompletionMonitor(ctx context.Context, rt *runtime) {
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if rt.machine.Current() != packml.StateExecute {
			return
		}

		cfg := rt.cfg
		switch {
		case cfg.SelfCompleting:
			m.sendMonitorCommand(ctx, cfg.Name, rt, packml.CommandComplete)
			return
		case cfg.CompletionCondition != nil:
			if m.evaluateCompletionCondition(ctx, *cfg.CompletionCondition) {
				m.sendMonitorCommand(ctx, cfg.Name, rt, packml.CommandComplete)
				return
			}
			fallthrough
		default:
			if cfg.TimeoutS > 0 {
				rt.mu.Lock()
				elapsed := time.Since(rt.executeStartTime).Seconds()
				rt.mu.Unlock()
				if elapsed >= cfg.TimeoutS {
					action := cfg.TimeoutAction
					if action == 0 {
						action = packml.CommandAbort
					}
					m.sendMonitorCommand(ctx, cfg.Name, rt, action)
					return
				}
			}
		}
	}
}

func (m *Manager) evaluateCompletionCondition(ctx context.Context, cond CompletionCondition) bool {
	v, err := m.tagw.ReadTag(ctx, cond.Tag)
	if err != nil {
		return false
	}
	f, ok := v.AsFloat64()
	if !ok {
		return false
	}
	return cond.Op.Evaluate(f, cond.Reference)
}

func (m *Manager) sendMonitorCommand(ctx context.Context, service string, rt *runtime, cmd packml.Command) {
	result := rt.machine.SendCommand(ctx, cmd)
	if !result.Success {
		m.logger.WarnContext(ctx, "completion monitor command rejected", "service", service, "command", cmd.String(), "error", result.Err)
		return
	}
	m.afterTransition(ctx, service, rt, result)
	if result.To.IsActing() {
		m.autoComplete(ctx, service, rt, result.To)
	}
}

// startSyncLoop polls StateCurTag every 100ms for THIN/HYBRID services and
// forces the local state machine to match whenever the PLC-reported state
// diverges, notifying subscribers of the forced change.
func (m *Manager) startSyncLoop(ctx context.Context, service string, rt *runtime) {
	syncCtx, cancel := context.WithCancel(ctx)
	rt.mu.Lock()
	rt.syncCancel = cancel
	rt.mu.Unlock()

	go func() {
		ticker := time.NewTicker(syncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-syncCtx.Done():
				return
			case <-ticker.C:
			}
			m.syncOnce(syncCtx, service, rt)
		}
	}()
}

func (m *Manager) syncOnce(ctx context.Context, service string, rt *runtime) {
	v, err := m.tagw.ReadTag(ctx, rt.cfg.StateCurTag)
	if err != nil {
		return
	}
	f, ok := v.AsFloat64()
	if !ok {
		return
	}
	plcState := packml.State(int(f))
	if !plcState.Valid() {
		return
	}

	local := rt.machine.Current()
	if plcState == local {
		return
	}
	rt.machine.ForceState(plcState)
	m.notify(ctx, service, local, plcState)
	m.snapshotAsync(service, rt)
}
