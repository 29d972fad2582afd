// SPDX-License-Identifier: BSD-3-Clause

// Package alarm implements the Alarm Detector: it indexes
// configured AnaMon/BinMon data assemblies by their source tag, evaluates
// limit/state-match booleans on every tag change, and raises or
// auto-clears alarms on false→true / true→false transitions.
package alarm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	alarmpkg "github.com/mtp-gateway/gateway/pkg/alarm"
	"github.com/mtp-gateway/gateway/pkg/daassembly"
	"github.com/mtp-gateway/gateway/pkg/log"
	"github.com/mtp-gateway/gateway/pkg/tagmodel"
	"github.com/mtp-gateway/gateway/service/tagmgr"
)

// ErrAlreadyStarted indicates Run was called more than once on a Manager.
var ErrAlreadyStarted = errors.New("alarm: already started")

const sweepInterval = 60 * time.Second

// Store persists raised/cleared alarms and answers listing queries.
// service/persistence implements this.
type Store interface {
	UpsertAlarm(ctx context.Context, a alarmpkg.Alarm) (alarmpkg.Alarm, error)
	ListAlarms(ctx context.Context, states map[alarmpkg.State]bool, start, end time.Time) ([]alarmpkg.Alarm, error)
}

// monitor is the detector's per-assembly bookkeeping: the configured
// assembly plus the last-evaluated boolean per suffix, used to detect edge
// transitions.
type monitor struct {
	da   daassembly.Assembly
	mu   sync.Mutex
	bits map[string]bool // suffix ("HH","H","L","LL","state_err") -> last value
	// active mirrors the currently-open alarm per suffix so re-raising is
	// idempotent and auto-clear can find what to clear.
	active map[string]alarmpkg.Alarm
}

// Manager is the Alarm Detector.
type Manager struct {
	name  string
	tags  *tagmgr.Manager
	store Store

	logger *slog.Logger
	tracer trace.Tracer

	mu       sync.RWMutex
	monitors map[string]*monitor // source tag name -> monitor

	startedMu sync.Mutex
	started   bool
}

// New creates a Manager reading monitored values through tags and
// persisting through store.
func New(name string, tags *tagmgr.Manager, store Store) *Manager {
	return &Manager{
		name:     name,
		tags:     tags,
		store:    store,
		monitors: make(map[string]*monitor),
		logger:   log.GetGlobalLogger().With("service", name),
		tracer:   otel.Tracer("alarm"),
	}
}

// Name satisfies the service.Service contract.
func (m *Manager) Name() string { return m.name }

// RegisterAssembly indexes an AnaMon or BinMon data assembly by its primary
// source tag ("V" binding).
func (m *Manager) RegisterAssembly(da daassembly.Assembly) error {
	if !da.Type.IsMonitor() {
		return fmt.Errorf("alarm: %s is not a monitor type (%s)", da.Name, da.Type)
	}
	tag, ok := da.PrimarySourceTag()
	if !ok {
		return fmt.Errorf("alarm: %s has no V binding to monitor", da.Name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.monitors[tag] = &monitor{da: da, bits: make(map[string]bool), active: make(map[string]alarmpkg.Alarm)}
	return nil
}

// Run subscribes to the Tag Manager and runs the 60s unshelve sweep until
// ctx is cancelled. It satisfies the service.Service contract.
func (m *Manager) Run(ctx context.Context, _ nats.InProcessConnProvider) error {
	m.startedMu.Lock()
	if m.started {
		m.startedMu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.startedMu.Unlock()

	unsubscribe := m.tags.Subscribe(m.onTagChange)
	defer unsubscribe()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.sweepShelved(ctx)
		}
	}
}

func (m *Manager) onTagChange(ctx context.Context, tagName string, old, newVal tagmodel.Value) {
	m.mu.RLock()
	mon, ok := m.monitors[tagName]
	m.mu.RUnlock()
	if !ok {
		return
	}

	ctx, span := m.tracer.Start(ctx, "alarm.evaluate")
	defer span.End()

	if mon.da.Type == daassembly.TypeBinMon {
		m.evaluateBinary(ctx, mon, newVal)
		return
	}
	m.evaluateAnalog(ctx, mon, newVal)
}

func (m *Manager) evaluateAnalog(ctx context.Context, mon *monitor, v tagmodel.Value) {
	f, ok := v.AsFloat64()
	if !ok || mon.da.Limits == nil {
		return
	}
	limits := mon.da.Limits
	bits := map[string]bool{
		"HH": f >= limits.HH,
		"H":  f >= limits.H,
		"L":  f <= limits.L,
		"LL": f <= limits.LL,
	}
	priorities := map[string]alarmpkg.Priority{
		"HH": alarmpkg.PriorityEmergency, "LL": alarmpkg.PriorityEmergency,
		"H": alarmpkg.PriorityHigh, "L": alarmpkg.PriorityHigh,
	}
	for suffix, now := range bits {
		m.applyEdge(ctx, mon, suffix, now, priorities[suffix], f)
	}
}

func (m *Manager) evaluateBinary(ctx context.Context, mon *monitor, v tagmodel.Value) {
	b, ok := v.AsBool()
	if !ok {
		return
	}
	expected := true
	if mon.da.States != nil {
		// State0/State1 naming is descriptive only; BinMon's expected state
		// is always "true" per its configured binding unless overridden via
		// bindings (no explicit expected-state attribute exists in the
		// attribute set, so this mirrors a fixed expectation of true).
		_ = mon.da.States
	}
	stateErr := b != expected
	f := 0.0
	if b {
		f = 1.0
	}
	m.applyEdge(ctx, mon, "state_err", stateErr, alarmpkg.PriorityHigh, f)
}

// applyEdge raises an alarm on a false→true transition and auto-clears on
// true→false, reusing the active alarm for idempotent re-raises.
func (m *Manager) applyEdge(ctx context.Context, mon *monitor, suffix string, now bool, priority alarmpkg.Priority, value float64) {
	mon.mu.Lock()
	was := mon.bits[suffix]
	mon.bits[suffix] = now
	alarmID := fmt.Sprintf("%s_%s", mon.da.Name, suffix)

	switch {
	case !was && now:
		if existing, ok := mon.active[suffix]; ok && existing.IsOpen() {
			mon.mu.Unlock()
			return
		}
		a := alarmpkg.Raise(alarmID, mon.da.Name, priority, fmt.Sprintf("%s %s", mon.da.Name, suffix), value)
		mon.active[suffix] = a
		mon.mu.Unlock()

		saved, err := m.store.UpsertAlarm(ctx, a)
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to persist raised alarm", "alarm_id", alarmID, "error", err)
			return
		}
		mon.mu.Lock()
		mon.active[suffix] = saved
		mon.mu.Unlock()
		m.logger.WarnContext(ctx, "alarm raised", "alarm_id", alarmID, "source", mon.da.Name, "value", value)

	case was && !now:
		a, ok := mon.active[suffix]
		mon.mu.Unlock()
		if !ok || !a.IsOpen() {
			return
		}
		if err := a.AutoClear(); err != nil {
			m.logger.ErrorContext(ctx, "failed to auto-clear alarm", "alarm_id", alarmID, "error", err)
			return
		}
		if _, err := m.store.UpsertAlarm(ctx, a); err != nil {
			m.logger.ErrorContext(ctx, "failed to persist cleared alarm", "alarm_id", alarmID, "error", err)
			return
		}
		mon.mu.Lock()
		mon.active[suffix] = a
		mon.mu.Unlock()
		m.logger.InfoContext(ctx, "alarm auto-cleared", "alarm_id", alarmID, "source", mon.da.Name)

	default:
		mon.mu.Unlock()
	}
}

// sweepShelved unshelves every alarm whose ShelvedUntil has passed.
func (m *Manager) sweepShelved(ctx context.Context) {
	shelved, err := m.store.ListAlarms(ctx, map[alarmpkg.State]bool{alarmpkg.StateShelved: true}, time.Time{}, time.Time{})
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to list shelved alarms", "error", err)
		return
	}
	now := time.Now().UTC()
	for _, a := range shelved {
		if a.ShelvedUntil.IsZero() || a.ShelvedUntil.After(now) {
			continue
		}
		if err := a.Unshelve(); err != nil {
			continue
		}
		if _, err := m.store.UpsertAlarm(ctx, a); err != nil {
			m.logger.ErrorContext(ctx, "failed to persist unshelved alarm", "alarm_id", a.AlarmID, "error", err)
		}
	}
}
