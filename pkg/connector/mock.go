// SPDX-License-Identifier: BSD-3-Clause

package connector

import (
	"context"
	"sync"

	"github.com/mtp-gateway/gateway/pkg/tagmodel"
)

// MockConnector is an in-memory Connector used by tests to exercise the
// tag manager without real PLC traffic.
type MockConnector struct {
	name string

	mu        sync.Mutex
	connected bool
	values    map[string]any
	health    *tagmodel.ConnectorHealth

	// FailConnect, when set, makes Connect return this error instead of
	// succeeding — used to exercise reconnect-loop behavior.
	FailConnect error
}

// NewMockConnector creates a mock connector seeded with the given address -> value map.
func NewMockConnector(name string, seed map[string]any) *MockConnector {
	values := make(map[string]any, len(seed))
	for k, v := range seed {
		values[k] = v
	}
	return &MockConnector{
		name:   name,
		values: values,
		health: tagmodel.NewConnectorHealth(),
	}
}

func (m *MockConnector) Name() string                     { return m.name }
func (m *MockConnector) Health() *tagmodel.ConnectorHealth { return m.health }

func (m *MockConnector) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailConnect != nil {
		return m.FailConnect
	}
	m.connected = true
	m.health.SetState(tagmodel.ConnectorConnected)
	return nil
}

func (m *MockConnector) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.health.SetState(tagmodel.ConnectorDisconnected)
	return nil
}

func (m *MockConnector) Read(ctx context.Context, addr string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, ErrNotConnected
	}
	v, ok := m.values[addr]
	if !ok {
		return nil, ErrUnsupportedAddress
	}
	m.health.RecordSuccess(false)
	return v, nil
}

func (m *MockConnector) Write(ctx context.Context, addr string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.values[addr] = value
	m.health.RecordSuccess(true)
	return nil
}

// Set directly overwrites a simulated register value, bypassing Write, to
// let tests stage a value a poll should observe.
func (m *MockConnector) Set(addr string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[addr] = value
}
