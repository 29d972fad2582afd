// SPDX-License-Identifier: BSD-3-Clause

package servicemgr

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mtp-gateway/gateway/pkg/packml"
)

// SendCommand is the single entry point for driving a service, behaving
// per its configured ProxyMode.
func (m *Manager) SendCommand(ctx context.Context, service string, cmd packml.Command, procedureID *int) (packml.Result, error) {
	rt, err := m.lookup(service)
	if err != nil {
		return packml.Result{}, err
	}

	if (cmd == packml.CommandStart || cmd == packml.CommandUnhold) && m.inter != nil {
		if blocked, reason := m.inter.Interlocked(ctx, service); blocked {
			return packml.Result{Success: false, From: rt.machine.Current(), Err: fmt.Errorf("%w: %s", ErrInterlocked, reason)}, nil
		}
	}

	if cmd == packml.CommandStart {
		rt.mu.Lock()
		if procedureID != nil {
			rt.currentProcedureID = *procedureID
		} else if rt.pendingProcedureID != nil {
			rt.currentProcedureID = *rt.pendingProcedureID
			rt.pendingProcedureID = nil
		} else {
			rt.currentProcedureID = rt.cfg.defaultProcedure().ID
		}
		rt.mu.Unlock()
	}

	switch rt.cfg.Mode {
	case ProxyThin:
		return m.sendThin(ctx, service, rt, cmd)
	case ProxyHybrid:
		return m.sendHybridOrThick(ctx, service, rt, cmd, true)
	default: // ProxyThick
		return m.sendHybridOrThick(ctx, service, rt, cmd, false)
	}
}

// sendThin never drives the local state machine: it writes the numeric
// command value to CommandOpTag. The sync loop is solely responsible for
// propagating the PLC's reported state back onto the local machine.
func (m *Manager) sendThin(ctx context.Context, service string, rt *runtime, cmd packml.Command) (packml.Result, error) {
	from := rt.machine.Current()
	if _, err := m.tagw.WriteTag(ctx, rt.cfg.CommandOpTag, int(cmd)); err != nil {
		return packml.Result{Success: false, From: from, Err: err}, nil
	}
	return packml.Result{Success: true, From: from, To: from}, nil
}

// sendHybridOrThick drives the local state machine, auto-completing acting
// states as hooks finish; when alsoWriteTag is true (HYBRID) it additionally
// writes the command to the PLC.
func (m *Manager) sendHybridOrThick(ctx context.Context, service string, rt *runtime, cmd packml.Command, alsoWriteTag bool) (packml.Result, error) {
	if alsoWriteTag {
		if _, err := m.tagw.WriteTag(ctx, rt.cfg.CommandOpTag, int(cmd)); err != nil {
			return packml.Result{Success: false, From: rt.machine.Current(), Err: err}, nil
		}
	}

	result := rt.machine.SendCommand(ctx, cmd)
	if !result.Success {
		return result, nil
	}
	m.afterTransition(ctx, service, rt, result)

	if result.To.IsActing() {
		m.autoComplete(ctx, service, rt, result.To)
	}
	return result, nil
}

// autoComplete runs CompleteActingState once the acting state's on-enter
// hooks have already finished (they run synchronously inside SendCommand),
// per the THICK/HYBRID "auto-complete after hooks finish" rule.
func (m *Manager) autoComplete(ctx context.Context, service string, rt *runtime, from packml.State) {
	result := rt.machine.CompleteActingState(ctx)
	if !result.Success {
		m.logger.WarnContext(ctx, "auto-complete failed", "service", service, "state", from.String(), "error", result.Err)
		return
	}
	m.afterTransition(ctx, service, rt, result)
}

// afterTransition runs the side effects common to every successful state
// change regardless of proxy mode: subscriber notification and a
// fire-and-forget snapshot write.
func (m *Manager) afterTransition(ctx context.Context, service string, rt *runtime, result packml.Result) {
	m.notify(ctx, service, result.From, result.To)
	m.snapshotAsync(service, rt)
}

// RequestProcedure stores id as the pending procedure for service, consumed
// by the next START that does not pass an explicit procedure id. Used by
// the address-space builder's ProcedureReq write handler.
func (m *Manager) RequestProcedure(service string, id int) error {
	rt, err := m.lookup(service)
	if err != nil {
		return err
	}
	rt.mu.Lock()
	rt.pendingProcedureID = &id
	rt.mu.Unlock()
	return nil
}

// CurrentProcedure returns the active procedure id for service.
func (m *Manager) CurrentProcedure(service string) (int, error) {
	rt, err := m.lookup(service)
	if err != nil {
		return 0, err
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.currentProcedureID, nil
}

// State returns the current PackML state for service.
func (m *Manager) State(service string) (packml.State, error) {
	rt, err := m.lookup(service)
	if err != nil {
		return packml.StateUndefined, err
	}
	return rt.machine.Current(), nil
}

// parseCommandValue decodes a CommandOp tag write into a validated Command.
func parseCommandValue(raw any) (packml.Command, error) {
	switch v := raw.(type) {
	case int:
		return packml.CommandFromInt(v)
	case int64:
		return packml.CommandFromInt(int(v))
	case uint64:
		return packml.CommandFromInt(int(v))
	case float64:
		return packml.CommandFromInt(int(v))
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("servicemgr: command value %q is not numeric: %w", v, err)
		}
		return packml.CommandFromInt(n)
	default:
		return 0, fmt.Errorf("servicemgr: unsupported command value type %T", raw)
	}
}
