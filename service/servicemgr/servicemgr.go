// SPDX-License-Identifier: BSD-3-Clause

// Package servicemgr implements the Service Manager: one PackML state
// machine runtime per configured service, wired to the Tag Manager through
// on-enter state hooks, with THIN/THICK/HYBRID proxy semantics, a
// completion monitor, interlock checks, emergency stop, and crash
// recovery from persisted snapshots.
package servicemgr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mtp-gateway/gateway/pkg/log"
	"github.com/mtp-gateway/gateway/pkg/packml"
)

// SubscribeFunc is invoked synchronously and must be non-blocking on every
// service state change. Panics are recovered and logged.
type SubscribeFunc func(ctx context.Context, service string, from, to packml.State)

// runtime is the live, per-service state the manager owns in addition to
// the packml.Machine itself.
type runtime struct {
	cfg     ServiceConfig
	machine *packml.Machine

	mu                  sync.Mutex
	currentProcedureID  int
	pendingProcedureID  *int
	executeStartTime    time.Time
	monitorCancel       context.CancelFunc
	syncCancel          context.CancelFunc
}

// Manager is the Service Manager.
type Manager struct {
	name   string
	tagw   TagWriter
	inter  InterlockEvaluator
	safe   SafeStateProvider
	audit  AuditRecorder
	snaps  SnapshotStore

	logger *slog.Logger
	tracer trace.Tracer
	meter  metric.Meter

	mu       sync.RWMutex
	services map[string]*runtime

	subMu       sync.RWMutex
	subscribers map[int]SubscribeFunc
	nextSubID   int

	startedMu sync.Mutex
	started   bool
}

// Deps bundles the Service Manager's collaborators. TagWriter is required;
// the rest are optional (nil disables the corresponding behavior).
type Deps struct {
	TagWriter  TagWriter
	Interlocks InterlockEvaluator
	SafeState  SafeStateProvider
	Audit      AuditRecorder
	Snapshots  SnapshotStore
}

// New creates a Manager with the given name and collaborators.
func New(name string, deps Deps) *Manager {
	return &Manager{
		name:        name,
		tagw:        deps.TagWriter,
		inter:       deps.Interlocks,
		safe:        deps.SafeState,
		audit:       deps.Audit,
		snaps:       deps.Snapshots,
		services:    make(map[string]*runtime),
		subscribers: make(map[int]SubscribeFunc),
		logger:      log.GetGlobalLogger().With("service", name),
		tracer:      otel.Tracer("servicemgr"),
		meter:       otel.Meter("servicemgr"),
	}
}

// Name returns the service name under the service.Service contract.
func (m *Manager) Name() string { return m.name }

// RegisterService wires a new service's state machine: on-enter hooks that
// execute configured tag writes, plus, for THICK/HYBRID, execute-start-time
// stamping on EXECUTE.
func (m *Manager) RegisterService(cfg ServiceConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.services[cfg.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, cfg.Name)
	}

	rt := &runtime{cfg: cfg, machine: packml.New(cfg.Name)}
	rt.currentProcedureID = cfg.defaultProcedure().ID

	for _, s := range packml.AllStates() {
		s := s
		rt.machine.OnEnter(s, func(ctx context.Context, service string, entered packml.State) error {
			return m.runStateHooks(ctx, rt, entered)
		})
	}
	rt.machine.OnEnter(packml.StateExecute, func(ctx context.Context, service string, entered packml.State) error {
		m.onEnterExecute(ctx, rt)
		return nil
	})
	rt.machine.OnExit(packml.StateExecute, func(ctx context.Context, service string, entered packml.State) error {
		m.stopCompletionMonitor(rt)
		return nil
	})

	m.services[cfg.Name] = rt
	return nil
}

func (m *Manager) runStateHooks(ctx context.Context, rt *runtime, entered packml.State) error {
	rt.mu.Lock()
	procID := rt.currentProcedureID
	rt.mu.Unlock()

	hooks := append([]Hook(nil), rt.cfg.DefaultHooks[entered]...)
	if proc, ok := rt.cfg.procedure(procID); ok {
		hooks = append(hooks, proc.Hooks[entered]...)
	}

	for _, h := range hooks {
		if _, err := m.tagw.WriteTag(ctx, h.Tag, h.Value); err != nil {
			m.logger.ErrorContext(ctx, "service state hook write failed",
				"service", rt.cfg.Name, "state", entered.String(), "tag", h.Tag, "error", err)
			return err
		}
	}
	return nil
}

// Subscribe registers fn for every service's state changes.
func (m *Manager) Subscribe(fn SubscribeFunc) (unsubscribe func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		delete(m.subscribers, id)
	}
}

func (m *Manager) notify(ctx context.Context, service string, from, to packml.State) {
	m.subMu.RLock()
	subs := make([]SubscribeFunc, 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.subMu.RUnlock()

	for _, fn := range subs {
		m.callSubscriber(ctx, fn, service, from, to)
	}
}

func (m *Manager) callSubscriber(ctx context.Context, fn SubscribeFunc, service string, from, to packml.State) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.ErrorContext(ctx, "service subscriber panicked", "service", service, "panic", r)
		}
	}()
	fn(ctx, service, from, to)
}

func (m *Manager) lookup(name string) (*runtime, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rt, ok := m.services[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
	return rt, nil
}

func (m *Manager) snapshotAsync(service string, rt *runtime) {
	if m.snaps == nil {
		return
	}
	rt.mu.Lock()
	snap := Snapshot{
		Service:            service,
		State:              rt.machine.Current().String(),
		CurrentProcedureID: rt.currentProcedureID,
	}
	rt.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.snaps.SaveSnapshot(ctx, snap); err != nil {
			m.logger.Error("failed to persist service snapshot", "service", service, "error", err)
		}
	}()
}

// Run performs crash recovery from persisted snapshots, then blocks until
// ctx is cancelled, tearing down every service's background loops.
func (m *Manager) Run(ctx context.Context, _ nats.InProcessConnProvider) error {
	m.startedMu.Lock()
	if m.started {
		m.startedMu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.startedMu.Unlock()

	m.recover(ctx)

	m.mu.RLock()
	for name, rt := range m.services {
		if rt.cfg.Mode == ProxyThin || rt.cfg.Mode == ProxyHybrid {
			m.startSyncLoop(ctx, name, rt)
		}
	}
	m.mu.RUnlock()

	<-ctx.Done()
	m.shutdown()
	return ctx.Err()
}

func (m *Manager) shutdown() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rt := range m.services {
		m.stopCompletionMonitor(rt)
		rt.mu.Lock()
		if rt.syncCancel != nil {
			rt.syncCancel()
		}
		rt.mu.Unlock()
	}
}

// recover forces every persisted service snapshot onto its state machine
// and restores the active procedure, deleting the snapshot once applied.
// Unknown states are logged and ignored.
func (m *Manager) recover(ctx context.Context) {
	if m.snaps == nil {
		return
	}
	snaps, err := m.snaps.LoadSnapshots(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to load service snapshots", "error", err)
		return
	}
	for _, snap := range snaps {
		rt, err := m.lookup(snap.Service)
		if err != nil {
			m.logger.WarnContext(ctx, "snapshot references unknown service", "service", snap.Service)
			continue
		}
		s, err := packml.ParseState(snap.State)
		if err != nil {
			m.logger.WarnContext(ctx, "snapshot has unknown state, ignoring", "service", snap.Service, "state", snap.State)
			continue
		}
		rt.machine.ForceState(s)
		rt.mu.Lock()
		rt.currentProcedureID = snap.CurrentProcedureID
		rt.mu.Unlock()

		if err := m.snaps.DeleteSnapshot(ctx, snap.Service); err != nil {
			m.logger.ErrorContext(ctx, "failed to delete recovered snapshot", "service", snap.Service, "error", err)
		}
	}
}
