// SPDX-License-Identifier: BSD-3-Clause

// Package packml implements the 17-state ISA-88/VDI 2658 service state
// machine: fixed command transitions, a distinct acting-state completion
// operation, and ordered on-enter/on-exit hooks run under a per-instance
// mutex so that command and completion operations serialize.
package packml

import (
	"context"
	"fmt"
	"sync"

	"github.com/qmuntal/stateless"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// HookFunc is one step of a state's on-enter or on-exit hook list. In the
// gateway these write tags through the Tag Manager; HookFunc keeps packml
// free of that dependency.
type HookFunc func(ctx context.Context, service string, s State) error

// Result reports the outcome of SendCommand or CompleteActingState.
type Result struct {
	Success bool
	From    State
	To      State
	Err     error
}

// Machine is one service's PackML state machine instance.
type Machine struct {
	mu      sync.Mutex
	service string
	fsm     *stateless.StateMachine
	current State
	tracer  trace.Tracer

	onEnter map[State][]HookFunc
	onExit  map[State][]HookFunc
}

// New builds a Machine for the named service, starting in IDLE, with the
// fixed ISA-88 transition table plus the uniform "any acting state accepts
// ABORT" rule.
func New(service string) *Machine {
	m := &Machine{
		service: service,
		current: StateIdle,
		tracer:  otel.Tracer("packml"),
		onEnter: make(map[State][]HookFunc),
		onExit:  make(map[State][]HookFunc),
	}
	m.fsm = stateless.NewStateMachine(StateIdle)
	m.configure()
	return m
}

// OnEnter appends a hook to run, in order, after the state machine has
// settled into s.
func (m *Machine) OnEnter(s State, hook HookFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEnter[s] = append(m.onEnter[s], hook)
}

// OnExit appends a hook to run, in order, before the state machine leaves s.
func (m *Machine) OnExit(s State, hook HookFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExit[s] = append(m.onExit[s], hook)
}

func (m *Machine) configure() {
	for from, cmds := range transitions {
		cfg := m.fsm.Configure(from)
		for cmd, to := range cmds {
			cfg.Permit(cmd.String(), to)
		}
	}
	// Every acting state accepts ABORT; ABORTING itself treats ABORT as a
	// no-op rather than a self-transition. Every acting state other than
	// STOPPING, ABORTING, and CLEARING (which already head toward a stable
	// state on their own) also accepts STOP, aborting the in-flight action
	// in favor of stopping. Each acting state also gets a "complete" trigger
	// to its stable target, fired by CompleteActingState.
	for s, target := range completionTarget {
		if s != StateAborting {
			m.fsm.Configure(s).Permit(CommandAbort.String(), StateAborting)
		}
		if s != StateStopping && s != StateAborting && s != StateClearing {
			m.fsm.Configure(s).Permit(CommandStop.String(), StateStopping)
		}
		m.fsm.Configure(s).Permit(completeTrigger, target)
	}

	for s := range stateNames {
		state := s
		m.fsm.Configure(state).
			OnEntry(func(ctx context.Context, _ ...any) error {
				if err := m.runHooks(ctx, m.onEnter[state], state); err != nil {
					trace.SpanFromContext(ctx).RecordError(err)
				}
				return nil
			}).
			OnExit(func(ctx context.Context, _ ...any) error {
				if err := m.runHooks(ctx, m.onExit[state], state); err != nil {
					trace.SpanFromContext(ctx).RecordError(err)
				}
				return nil
			})
	}
}

// runHooks executes hooks in order. A failing hook stops the remaining
// hooks for that state but the state transition already in flight is not
// rolled back.
func (m *Machine) runHooks(ctx context.Context, hooks []HookFunc, s State) error {
	for _, h := range hooks {
		if err := h(ctx, m.service, s); err != nil {
			return err
		}
	}
	return nil
}

// Current returns the machine's current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// CanSend reports whether cmd is valid from the current state.
func (m *Machine) CanSend(cmd Command) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ok, err := m.fsm.CanFire(cmd.String())
	return err == nil && ok
}

// SendCommand applies cmd to the machine if valid for the current state.
// Transition order is on_exit(from), state update, on_enter(to); hooks run
// while the instance's mutex is held.
func (m *Machine) SendCommand(ctx context.Context, cmd Command) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, span := m.tracer.Start(ctx, "packml.SendCommand",
		trace.WithAttributes(
			attribute.String("service", m.service),
			attribute.String("state.current", m.current.String()),
			attribute.String("command", cmd.String()),
		))
	defer span.End()

	from := m.current

	if ok, _ := m.fsm.CanFire(cmd.String()); !ok {
		err := fmt.Errorf("%w: %s not valid in state %s", ErrInvalidTransition, cmd, from)
		span.RecordError(err)
		return Result{Success: false, From: from, Err: err}
	}

	if err := m.fsm.FireCtx(ctx, cmd.String()); err != nil {
		wrapped := fmt.Errorf("%w: %w", ErrInvalidTransition, err)
		span.RecordError(wrapped)
		return Result{Success: false, From: from, Err: wrapped}
	}

	to := m.readState(ctx)
	m.current = to
	span.SetAttributes(attribute.String("state.new", to.String()))
	return Result{Success: true, From: from, To: to}
}

// CompleteActingState runs the acting-to-stable completion, e.g.
// STARTING -> EXECUTE. It fails if the machine is not currently in an
// acting state.
func (m *Machine) CompleteActingState(ctx context.Context) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.current
	to, ok := completionTarget[from]
	if !ok {
		return Result{Success: false, From: from, Err: ErrNotActingState}
	}

	ctx, span := m.tracer.Start(ctx, "packml.CompleteActingState",
		trace.WithAttributes(
			attribute.String("service", m.service),
			attribute.String("state.current", from.String()),
		))
	defer span.End()

	if err := m.fsm.FireCtx(ctx, completeTrigger); err != nil {
		wrapped := fmt.Errorf("%w: %w", ErrInvalidTransition, err)
		span.RecordError(wrapped)
		return Result{Success: false, From: from, Err: wrapped}
	}

	m.current = to
	span.SetAttributes(attribute.String("state.new", to.String()))
	return Result{Success: true, From: from, To: to}
}

// ForceState sets the machine directly to s, bypassing transitions and
// hooks, for crash-recovery startup and for THIN/HYBRID proxy sync loops
// where the PLC-reported state must win unconditionally.
func (m *Machine) ForceState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = s
	m.fsm = stateless.NewStateMachine(s)
	m.configure()
}

func (m *Machine) readState(ctx context.Context) State {
	raw, err := m.fsm.State(ctx)
	if err != nil {
		return m.current
	}
	s, ok := raw.(State)
	if !ok {
		return m.current
	}
	return s
}
