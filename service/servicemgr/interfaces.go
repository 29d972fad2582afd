// SPDX-License-Identifier: BSD-3-Clause

package servicemgr

import (
	"context"

	"github.com/mtp-gateway/gateway/pkg/tagmodel"
)

// TagWriter is the subset of the Tag Manager's surface the Service Manager
// needs: state-hook and THIN/HYBRID command writes, and completion
// condition / PLC-state-sync reads. Declared here rather than importing
// service/tagmgr so the two packages have no compile-time cycle.
type TagWriter interface {
	WriteTag(ctx context.Context, name string, value any) (bool, error)
	ReadTag(ctx context.Context, name string) (tagmodel.Value, error)
}

// InterlockEvaluator reports whether a service is currently blocked from
// starting or unholding. pkg/safety implements this.
type InterlockEvaluator interface {
	// Interlocked evaluates the service's configured interlock sources and
	// returns true plus a human-readable reason if the service must not be
	// started or unheld right now.
	Interlocked(ctx context.Context, serviceName string) (bool, string)
}

// SafeStateProvider supplies the tag/value map EmergencyStop writes before
// aborting every service. pkg/safety implements this.
type SafeStateProvider interface {
	SafeStateTags() map[string]any
}

// AuditRecorder receives a one-line record of notable Service Manager
// events. pkg/audit implements this; nil is a valid, silent no-op.
type AuditRecorder interface {
	RecordEvent(ctx context.Context, kind, detail string)
}

// Snapshot is the durable record of a service's state used for crash
// recovery, by convention: on startup every persisted snapshot forces the local
// state machine and restores the current procedure before being deleted.
type Snapshot struct {
	Service            string
	State              string
	CurrentProcedureID int
}

// SnapshotStore persists and recovers service runtime snapshots. Writes are
// fire-and-forget from the Service Manager's perspective: a failed save is
// logged, not retried. service/persistence implements this.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	LoadSnapshots(ctx context.Context) ([]Snapshot, error)
	DeleteSnapshot(ctx context.Context, service string) error
}
