// SPDX-License-Identifier: BSD-3-Clause

// Package tagmgr implements the Tag Manager: it groups tags by the
// connector that backs them, runs one poll loop per connector at that
// connector's configured interval, applies linear scaling, tracks quality
// and last-good values, and fans value changes out to subscribers.
package tagmgr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arunsworld/nursery"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mtp-gateway/gateway/pkg/connector"
	"github.com/mtp-gateway/gateway/pkg/log"
	"github.com/mtp-gateway/gateway/pkg/tagmodel"
)

// SafetyController gates writes before they reach a connector. pkg/safety
// implements this; it is declared here, not imported, so tagmgr has no
// compile-time dependency on the safety package's internals.
type SafetyController interface {
	// AllowWrite reports whether a write to tagName is currently permitted,
	// returning a descriptive error when it is not (pkg/safety reports an
	// allowlist miss or an exceeded rate limit).
	AllowWrite(tagName string) error
}

// SubscribeFunc is invoked synchronously on every tag value change. Panics
// recovered from a subscriber are logged and never propagate to the poll
// loop that triggered them.
type SubscribeFunc func(ctx context.Context, tagName string, old, newVal tagmodel.Value)

// connectorGroup is the set of tags polled together because they share a
// connector.
type connectorGroup struct {
	name         string
	conn         connector.Connector
	interval     time.Duration
	tags         []*tagmodel.State
	reconnecting atomic.Bool
}

// Manager is the Tag Manager service.
type Manager struct {
	cfg *Config

	logger *slog.Logger
	tracer trace.Tracer
	meter  metric.Meter

	mu          sync.RWMutex
	connectors  map[string]connector.Connector
	intervals   map[string]time.Duration
	states      map[string]*tagmodel.State
	byConnector map[string][]*tagmodel.State

	subMu       sync.RWMutex
	subscribers map[int]SubscribeFunc
	nextSubID   int

	startedMu sync.Mutex
	started   bool
}

// New creates a Manager from the given options.
func New(opts ...Option) *Manager {
	return &Manager{
		cfg:         NewConfig(opts...),
		connectors:  make(map[string]connector.Connector),
		intervals:   make(map[string]time.Duration),
		states:      make(map[string]*tagmodel.State),
		byConnector: make(map[string][]*tagmodel.State),
		subscribers: make(map[int]SubscribeFunc),
	}
}

// Name returns the service name.
func (m *Manager) Name() string { return m.cfg.ServiceName }

// SetSafetyController installs the write-path gate after construction, for
// callers that must build the safety controller from this Manager itself
// (it reads interlock source tags through the same Manager it is gating).
func (m *Manager) SetSafetyController(s SafetyController) {
	m.cfg.Safety = s
}

// RegisterConnector adds a southbound connector to poll, at the given
// interval. A zero interval falls back to Config.DefaultPollInterval.
func (m *Manager) RegisterConnector(name string, c connector.Connector, pollInterval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pollInterval <= 0 {
		pollInterval = m.cfg.DefaultPollInterval
	}
	m.connectors[name] = c
	m.intervals[name] = pollInterval
}

// RegisterTag adds a tag bound to an already-registered connector.
func (m *Manager) RegisterTag(tag tagmodel.Tag) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.connectors[tag.Connector]; !ok {
		return fmt.Errorf("%w: %s (tag %s)", ErrUnknownConnector, tag.Connector, tag.Name)
	}
	st := tagmodel.NewState(tag)
	m.states[tag.Name] = st
	m.byConnector[tag.Connector] = append(m.byConnector[tag.Connector], st)
	return nil
}

// Subscribe registers fn to be called synchronously on every tag value
// change across every connector group. It returns a function that removes
// the subscription.
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

// notify invokes every subscriber for a tag's change, isolating each call
// so a panicking subscriber never takes down the poll loop.
func (m *Manager) notify(ctx context.Context, tagName string, old, newVal tagmodel.Value) {
	m.subMu.RLock()
	subs := make([]SubscribeFunc, 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.subMu.RUnlock()

	for _, fn := range subs {
		m.callSubscriber(ctx, fn, tagName, old, newVal)
	}
}

func (m *Manager) callSubscriber(ctx context.Context, fn SubscribeFunc, tagName string, old, newVal tagmodel.Value) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.ErrorContext(ctx, "tag subscriber panicked", "tag", tagName, "panic", r)
		}
	}()
	fn(ctx, tagName, old, newVal)
}

// State returns the runtime state for a tag, if registered.
func (m *Manager) State(name string) (*tagmodel.State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[name]
	return st, ok
}

// Tags returns the names of every registered tag.
func (m *Manager) Tags() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.states))
	for name := range m.states {
		out = append(out, name)
	}
	return out
}

// Run starts one poll loop per registered connector and blocks until ctx is
// cancelled, matching the service.Service contract.
func (m *Manager) Run(ctx context.Context, _ nats.InProcessConnProvider) error {
	m.startedMu.Lock()
	if m.started {
		m.startedMu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.startedMu.Unlock()

	m.tracer = otel.Tracer(m.cfg.ServiceName)
	m.meter = otel.Meter(m.cfg.ServiceName)
	m.logger = log.GetGlobalLogger().With("service", m.cfg.ServiceName)

	if err := m.cfg.Validate(); err != nil {
		return err
	}

	groups := m.snapshotGroups()
	m.logger.InfoContext(ctx, "starting tag manager", "connectors", len(groups))

	var tasks []nursery.ConcurrentJob
	for _, g := range groups {
		g := g
		tasks = append(tasks, func(ctx context.Context, errChan chan error) {
			m.runGroup(ctx, g)
		})
	}
	if len(tasks) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	return nursery.RunConcurrentlyWithContext(ctx, tasks...)
}

func (m *Manager) snapshotGroups() []*connectorGroup {
	m.mu.RLock()
	defer m.mu.RUnlock()
	groups := make([]*connectorGroup, 0, len(m.connectors))
	for name, c := range m.connectors {
		groups = append(groups, &connectorGroup{
			name:     name,
			conn:     c,
			interval: m.intervals[name],
			tags:     append([]*tagmodel.State(nil), m.byConnector[name]...),
		})
	}
	return groups
}
