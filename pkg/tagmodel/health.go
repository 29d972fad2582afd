// SPDX-License-Identifier: BSD-3-Clause

package tagmodel

import (
	"sync"
	"time"
)

// ConnectorState is the lifecycle state of a southbound connector.
type ConnectorState string

const (
	ConnectorDisconnected ConnectorState = "DISCONNECTED"
	ConnectorConnecting   ConnectorState = "CONNECTING"
	ConnectorConnected    ConnectorState = "CONNECTED"
	ConnectorReconnecting ConnectorState = "RECONNECTING"
	ConnectorError        ConnectorState = "ERROR"
	ConnectorStopped      ConnectorState = "STOPPED"
)

// ConnectorHealth tracks the lifecycle and error history of a single
// connector. It is safe for concurrent use: the owning connector's
// serialization lock governs connect/reconnect ordering, but health reads
// happen from the Tag Manager's poll loop and the Web UI's health endpoint
// concurrently.
type ConnectorHealth struct {
	mu                sync.RWMutex
	state             ConnectorState
	lastSuccess       time.Time
	lastError         time.Time
	lastErrorMessage  string
	consecutiveErrors int
	totalReads        uint64
	totalWrites       uint64
	totalErrors       uint64
}

// NewConnectorHealth returns a ConnectorHealth starting in the disconnected
// state.
func NewConnectorHealth() *ConnectorHealth {
	return &ConnectorHealth{state: ConnectorDisconnected}
}

// State returns the current lifecycle state.
func (h *ConnectorHealth) State() ConnectorState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// SetState transitions the connector to a new lifecycle state.
func (h *ConnectorHealth) SetState(s ConnectorState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = s
}

// RecordSuccess marks a successful read or write: resets the consecutive
// error counter, stamps lastSuccess, and (if not already) moves the
// connector into CONNECTED.
func (h *ConnectorHealth) RecordSuccess(isWrite bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastSuccess = time.Now().UTC()
	h.consecutiveErrors = 0
	if isWrite {
		h.totalWrites++
	} else {
		h.totalReads++
	}
	if h.state != ConnectorStopped {
		h.state = ConnectorConnected
	}
}

// RecordError marks a failed operation: increments the consecutive and
// total error counters and stamps lastError/lastErrorMessage.
func (h *ConnectorHealth) RecordError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastError = time.Now().UTC()
	if err != nil {
		h.lastErrorMessage = err.Error()
	}
	h.consecutiveErrors++
	h.totalErrors++
}

// Healthy reports whether the connector is connected with no outstanding
// consecutive errors, per the invariant in the data model: a connector is
// healthy iff state=CONNECTED and consecutive_errors=0.
func (h *ConnectorHealth) Healthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state == ConnectorConnected && h.consecutiveErrors == 0
}

// ConsecutiveErrors returns the current consecutive-error count.
func (h *ConnectorHealth) ConsecutiveErrors() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.consecutiveErrors
}

// Snapshot is an immutable point-in-time copy of a ConnectorHealth, safe to
// hand to callers (e.g. the Web UI health endpoint) without holding a lock.
type Snapshot struct {
	State             ConnectorState
	LastSuccess       time.Time
	LastError         time.Time
	LastErrorMessage  string
	ConsecutiveErrors int
	TotalReads        uint64
	TotalWrites       uint64
	TotalErrors       uint64
}

// Snapshot returns a copy of the current health state.
func (h *ConnectorHealth) Snapshot() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Snapshot{
		State:             h.state,
		LastSuccess:       h.lastSuccess,
		LastError:         h.lastError,
		LastErrorMessage:  h.lastErrorMessage,
		ConsecutiveErrors: h.consecutiveErrors,
		TotalReads:        h.totalReads,
		TotalWrites:       h.totalWrites,
		TotalErrors:       h.totalErrors,
	}
}
