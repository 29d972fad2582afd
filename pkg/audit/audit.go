// SPDX-License-Identifier: BSD-3-Clause

// Package audit implements the gateway's audit trail: typed command,
// state-transition, and security entries held in a bounded in-memory ring,
// with sensitive-value masking before anything reaches a log record.
package audit

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mtp-gateway/gateway/pkg/log"
	"github.com/mtp-gateway/gateway/pkg/packml"
)

// sensitiveKeys are substrings that mark a detail key's value for masking
// before it reaches a log line or a stored Security entry.
var sensitiveKeys = []string{
	"password", "secret", "token", "key", "apikey", "credential", "private",
}

func isSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// Entry is the common envelope every audit record carries.
type Entry struct {
	Service   string
	Timestamp time.Time
	Kind      string // "command" | "state_transition" | "security"

	// Command entries.
	Command    packml.Command
	Source     string
	Success    bool
	ProcedureID *int

	// StateTransition entries.
	FromState packml.State
	ToState   packml.State
	Trigger   string

	// Security entries.
	EventType string
	Details   map[string]any
	SourceIP  string
}

// Trail is a bounded, chronologically ordered in-memory audit log.
type Trail struct {
	logger     *slog.Logger
	maxEntries int

	mu      sync.Mutex
	entries []Entry
}

// NewTrail creates a Trail retaining at most maxEntries records, discarding
// the oldest once the limit is reached.
func NewTrail(maxEntries int) *Trail {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &Trail{
		logger:     log.GetGlobalLogger().With("component", "audit"),
		maxEntries: maxEntries,
	}
}

func (t *Trail) append(e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, e)
	if over := len(t.entries) - t.maxEntries; over > 0 {
		t.entries = t.entries[over:]
	}
}

// LogCommand records a command sent to a service.
func (t *Trail) LogCommand(ctx context.Context, service string, cmd packml.Command, source string, success bool, procedureID *int) {
	e := Entry{
		Service: service, Timestamp: time.Now().UTC(), Kind: "command",
		Command: cmd, Source: source, Success: success, ProcedureID: procedureID,
	}
	t.append(e)
	t.logger.DebugContext(ctx, "command logged",
		"service", service, "command", cmd.String(), "source", source, "success", success)
}

// LogStateTransition records a PackML state transition.
func (t *Trail) LogStateTransition(ctx context.Context, service string, from, to packml.State, trigger string) {
	e := Entry{
		Service: service, Timestamp: time.Now().UTC(), Kind: "state_transition",
		FromState: from, ToState: to, Trigger: trigger,
	}
	t.append(e)
	t.logger.DebugContext(ctx, "state transition logged",
		"service", service, "from", from.String(), "to", to.String(), "trigger", trigger)
}

// LogSecurityEvent records a security-relevant event: certificate
// generation, authentication attempts, secret access, policy changes.
// Detail values whose key looks sensitive are replaced with "***" in both
// the stored entry and the log record.
func (t *Trail) LogSecurityEvent(ctx context.Context, eventType, service string, details map[string]any, success bool, sourceIP string) {
	if service == "" {
		service = "security"
	}
	masked := make(map[string]any, len(details))
	for k, v := range details {
		if isSensitive(k) {
			v = "***"
		}
		masked[k] = v
	}
	e := Entry{
		Service: service, Timestamp: time.Now().UTC(), Kind: "security",
		EventType: eventType, Details: masked, Success: success, SourceIP: sourceIP,
	}
	t.append(e)

	args := []any{"event_type", eventType, "service", service, "success", success}
	if sourceIP != "" {
		args = append(args, "source_ip", sourceIP)
	}
	for k, v := range masked {
		args = append(args, k, v)
	}
	if success {
		t.logger.InfoContext(ctx, "security event", args...)
	} else {
		t.logger.WarnContext(ctx, "security event", args...)
	}
}

// RecordEvent is the narrow entry point the Service Manager depends on
// (servicemgr.AuditRecorder): a free-text kind/detail pair, recorded as a
// security-kind entry so it flows through the same bounded ring.
func (t *Trail) RecordEvent(ctx context.Context, kind, detail string) {
	t.LogSecurityEvent(ctx, kind, "", map[string]any{"detail": detail}, true, "")
}

// Entries returns a snapshot of recorded entries, optionally filtered by
// service and capped to the most recent limit entries (limit<=0 means no
// cap).
func (t *Trail) Entries(service string, limit int) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		if service != "" && e.Service != service {
			continue
		}
		out = append(out, e)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Clear discards every recorded entry.
func (t *Trail) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
}

// Count returns the current number of retained entries.
func (t *Trail) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
