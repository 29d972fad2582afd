// SPDX-License-Identifier: BSD-3-Clause

package servicemgr

import (
	"context"

	"github.com/mtp-gateway/gateway/pkg/packml"
)

// EmergencyStop writes every tag in the SafetyController's safe-state map,
// continuing past individual write failures, then sends ABORT to every
// registered service. The whole operation is logged as a single audit
// event.
func (m *Manager) EmergencyStop(ctx context.Context) {
	if m.safe != nil {
		for tag, value := range m.safe.SafeStateTags() {
			if _, err := m.tagw.WriteTag(ctx, tag, value); err != nil {
				m.logger.ErrorContext(ctx, "emergency stop: safe-state write failed", "tag", tag, "error", err)
			}
		}
	}

	m.mu.RLock()
	names := make([]string, 0, len(m.services))
	for name := range m.services {
		names = append(names, name)
	}
	m.mu.RUnlock()

	for _, name := range names {
		if _, err := m.SendCommand(ctx, name, packml.CommandAbort, nil); err != nil {
			m.logger.ErrorContext(ctx, "emergency stop: abort failed", "service", name, "error", err)
		}
	}

	if m.audit != nil {
		m.audit.RecordEvent(ctx, "emergency_stop", "safe-state written and ABORT sent to all services")
	}
}
