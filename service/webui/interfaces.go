// SPDX-License-Identifier: BSD-3-Clause

package webui

import (
	"context"
	"time"

	alarmpkg "github.com/mtp-gateway/gateway/pkg/alarm"
	"github.com/mtp-gateway/gateway/pkg/packml"
	"github.com/mtp-gateway/gateway/pkg/tagmodel"
	"github.com/mtp-gateway/gateway/service/persistence"
)

// TagSource is the subset of the Tag Manager's surface the Web UI reads
// and writes through. Declared locally, as service/servicemgr does for its
// own collaborators, so this package has no compile-time dependency on
// service/tagmgr's concrete type.
type TagSource interface {
	ReadTag(ctx context.Context, name string) (tagmodel.Value, error)
	WriteTag(ctx context.Context, name string, value any) (bool, error)
	State(name string) (*tagmodel.State, bool)
	Tags() []string
	Subscribe(fn func(ctx context.Context, tagName string, old, newVal tagmodel.Value)) (unsubscribe func())
}

// ServiceSource is the subset of the Service Manager's surface the REST
// and WebSocket layers need: command dispatch, procedure selection, and
// state/subscription reads.
type ServiceSource interface {
	SendCommand(ctx context.Context, service string, cmd packml.Command, procedureID *int) (packml.Result, error)
	RequestProcedure(service string, id int) error
	CurrentProcedure(service string) (int, error)
	State(service string) (packml.State, error)
	Subscribe(fn func(ctx context.Context, service string, from, to packml.State)) (unsubscribe func())
}

// AlarmSource lists and mutates alarms. service/persistence.Store
// implements this directly; the Alarm Detector (service/alarm) only ever
// raises and auto-clears, so operator-driven ack/clear/shelve go straight
// to the store, matching how service/alarm itself persists transitions.
type AlarmSource interface {
	ListAlarms(ctx context.Context, states map[alarmpkg.State]bool, start, end time.Time) ([]alarmpkg.Alarm, error)
	GetAlarm(ctx context.Context, id uint64) (alarmpkg.Alarm, error)
	UpsertAlarm(ctx context.Context, a alarmpkg.Alarm) (alarmpkg.Alarm, error)
}

// HistorySource answers history queries. service/persistence.Store
// implements this.
type HistorySource interface {
	QueryHistory(ctx context.Context, tag string, start, end time.Time) ([]persistence.HistoryRecord, error)
	AvailableHistoryTags(ctx context.Context) ([]string, error)
	QueryHistoryBucketed(ctx context.Context, tag string, start, end time.Time, bucketSize time.Duration, agg persistence.Aggregate) ([]persistence.Bucket, error)
}

// ServiceNames reports every configured service's name, used to validate
// REST path parameters and to seed the address-space style service list
// the Web UI's /services endpoint returns. It is satisfied by a simple
// []string built from config at wiring time; see New.
type ServiceNames interface {
	Names() []string
}

// nameList is the trivial ServiceNames implementation wired in by New.
type nameList []string

func (n nameList) Names() []string { return []string(n) }
