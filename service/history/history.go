// SPDX-License-Identifier: BSD-3-Clause

// Package history implements the History Recorder: it
// subscribes to the Tag Manager, buffers samples in an in-memory deque,
// and periodically (or when the buffer fills) flushes them to persistence.
package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mtp-gateway/gateway/pkg/log"
	"github.com/mtp-gateway/gateway/pkg/tagmodel"
	"github.com/mtp-gateway/gateway/service/persistence"
	"github.com/mtp-gateway/gateway/service/tagmgr"
)

// ErrAlreadyStarted indicates Run was called more than once on a Manager.
var ErrAlreadyStarted = errors.New("history: already started")

const (
	// DefaultFlushInterval is the default periodic flush cadence.
	DefaultFlushInterval = time.Second
	// DefaultMaxBufferSize forces an out-of-cycle flush once reached.
	DefaultMaxBufferSize = 100
)

// Store appends history records. service/persistence implements this.
type Store interface {
	AppendHistory(ctx context.Context, rec persistence.HistoryRecord) error
}

// Config tunes the recorder's buffering and tag filtering.
type Config struct {
	FlushInterval time.Duration
	MaxBufferSize int

	// IncludeTags, if non-empty, is the only set of tags recorded.
	IncludeTags map[string]bool
	// ExcludeTags is always checked, even when IncludeTags is set.
	ExcludeTags map[string]bool
}

func (c Config) flushInterval() time.Duration {
	if c.FlushInterval > 0 {
		return c.FlushInterval
	}
	return DefaultFlushInterval
}

func (c Config) maxBufferSize() int {
	if c.MaxBufferSize > 0 {
		return c.MaxBufferSize
	}
	return DefaultMaxBufferSize
}

func (c Config) admits(tag string) bool {
	if c.ExcludeTags[tag] {
		return false
	}
	if len(c.IncludeTags) > 0 && !c.IncludeTags[tag] {
		return false
	}
	return true
}

// Manager is the History Recorder.
type Manager struct {
	name  string
	cfg   Config
	tags  *tagmgr.Manager
	store Store

	logger *slog.Logger

	mu     sync.Mutex
	buffer []persistence.HistoryRecord

	flushSig chan struct{}

	startedMu sync.Mutex
	started   bool
}

// New creates a Manager buffering samples from tags and flushing to store.
func New(name string, tags *tagmgr.Manager, store Store, cfg Config) *Manager {
	return &Manager{
		name:     name,
		cfg:      cfg,
		tags:     tags,
		store:    store,
		logger:   log.GetGlobalLogger().With("service", name),
		flushSig: make(chan struct{}, 1),
	}
}

// Name satisfies the service.Service contract.
func (m *Manager) Name() string { return m.name }

// Run subscribes to the Tag Manager and runs the periodic flush loop until
// ctx is cancelled, flushing once more before returning.
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

	ticker := time.NewTicker(m.cfg.flushInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.flush(context.WithoutCancel(ctx))
			return ctx.Err()
		case <-ticker.C:
			m.flush(ctx)
		case <-m.flushSig:
			m.flush(ctx)
		}
	}
}

func (m *Manager) onTagChange(ctx context.Context, tagName string, old, newVal tagmodel.Value) {
	if !m.cfg.admits(tagName) {
		return
	}
	rec := persistence.HistoryRecord{Time: newVal.Timestamp, Tag: tagName, Quality: newVal.Quality.String()}
	if f, ok := newVal.AsFloat64(); ok {
		rec.Value = &f
	}

	m.mu.Lock()
	m.buffer = append(m.buffer, rec)
	full := len(m.buffer) >= m.cfg.maxBufferSize()
	m.mu.Unlock()

	if full {
		select {
		case m.flushSig <- struct{}{}:
		default:
		}
	}
}

// flush drains the buffer to the store. On failure, records are re-queued
// at the front of the buffer and the failure is logged, by convention.
func (m *Manager) flush(ctx context.Context) {
	m.mu.Lock()
	pending := m.buffer
	m.buffer = nil
	m.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	for i, rec := range pending {
		if err := m.store.AppendHistory(ctx, rec); err != nil {
			m.logger.ErrorContext(ctx, "history flush failed, re-queuing remainder", "error", err, "flushed", i, "remaining", len(pending)-i)
			m.mu.Lock()
			m.buffer = append(pending[i:], m.buffer...)
			m.mu.Unlock()
			return
		}
	}
}

// BufferLen reports the current unflushed buffer length, for diagnostics.
func (m *Manager) BufferLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buffer)
}
