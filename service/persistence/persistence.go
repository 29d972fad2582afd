// SPDX-License-Identifier: BSD-3-Clause

// Package persistence implements the Persistence component: a
// single embedded bbolt database holding service snapshots, tag history,
// the command audit log, and the alarm table, with time-range and
// time-bucket queries over history.
package persistence

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"

	"github.com/mtp-gateway/gateway/pkg/alarm"
	"github.com/mtp-gateway/gateway/pkg/audit"
	"github.com/mtp-gateway/gateway/pkg/log"
	"github.com/mtp-gateway/gateway/service/servicemgr"
)

var (
	// ErrNotFound indicates a lookup found no matching record.
	ErrNotFound = errors.New("persistence: not found")
	// ErrClosed indicates an operation on an already-closed Store.
	ErrClosed = errors.New("persistence: store is closed")
)

var (
	bucketSnapshots = []byte("snapshots")
	bucketHistory   = []byte("history") // one sub-bucket per tag name
	bucketAudit     = []byte("audit")
	bucketAlarms    = []byte("alarms")
)

// HistoryRecord is one appended tag-value sample. Value is nil for
// non-numeric samples the history recorder still wants to retain the
// quality of.
type HistoryRecord struct {
	Time    time.Time
	Tag     string
	Value   *float64
	Quality string
}

// Store is the embedded persistence layer, backed by a single bbolt file.
type Store struct {
	db     *bbolt.DB
	logger *slog.Logger
}

// Open creates or opens the bbolt database at path and ensures every
// top-level bucket exists.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("persistence: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketSnapshots, bucketHistory, bucketAudit, bucketAlarms} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("persistence: init buckets: %w", err)
	}
	return &Store{db: db, logger: log.GetGlobalLogger().With("component", "persistence")}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSnapshot upserts a service's snapshot, keyed by service name. It
// satisfies servicemgr.SnapshotStore.
func (s *Store) SaveSnapshot(ctx context.Context, snap servicemgr.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("persistence: marshal snapshot: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put([]byte(snap.Service), data)
	})
}

// LoadSnapshots returns every persisted snapshot.
func (s *Store) LoadSnapshots(ctx context.Context) ([]servicemgr.Snapshot, error) {
	var out []servicemgr.Snapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSnapshots).ForEach(func(k, v []byte) error {
			var snap servicemgr.Snapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return fmt.Errorf("persistence: unmarshal snapshot %s: %w", k, err)
			}
			out = append(out, snap)
			return nil
		})
	})
	return out, err
}

// DeleteSnapshot removes a service's persisted snapshot, if any.
func (s *Store) DeleteSnapshot(ctx context.Context, service string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Delete([]byte(service))
	})
}

func timeKey(t time.Time) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(t.UnixNano()))
	return buf
}

// AppendHistory appends one sample to the named tag's history sub-bucket.
func (s *Store) AppendHistory(ctx context.Context, rec HistoryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("persistence: marshal history record: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		tagBucket, err := tx.Bucket(bucketHistory).CreateBucketIfNotExists([]byte(rec.Tag))
		if err != nil {
			return err
		}
		key := timeKey(rec.Time)
		// Disambiguate same-nanosecond writes (possible under fast test
		// clocks) by probing forward rather than overwriting.
		for tagBucket.Get(key) != nil {
			n := binary.BigEndian.Uint64(key)
			binary.BigEndian.PutUint64(key, n+1)
		}
		return tagBucket.Put(key, data)
	})
}

// QueryHistory returns every sample for tag with Time in [start, end].
func (s *Store) QueryHistory(ctx context.Context, tag string, start, end time.Time) ([]HistoryRecord, error) {
	var out []HistoryRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		tagBucket := tx.Bucket(bucketHistory).Bucket([]byte(tag))
		if tagBucket == nil {
			return nil
		}
		c := tagBucket.Cursor()
		min := timeKey(start)
		max := timeKey(end)
		for k, v := c.Seek(min); k != nil && string(k) <= string(max); k, v = c.Next() {
			var rec HistoryRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("persistence: unmarshal history record: %w", err)
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

// AvailableHistoryTags lists every tag name with at least one stored sample.
func (s *Store) AvailableHistoryTags(ctx context.Context) ([]string, error) {
	var out []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketHistory).ForEachBucket(func(name []byte) error {
			out = append(out, string(name))
			return nil
		})
	})
	return out, err
}

// AppendAudit persists one audit entry, keyed monotonically by time so
// iteration order matches insertion order.
func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("persistence: marshal audit entry: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAudit)
		key := timeKey(e.Timestamp)
		for b.Get(key) != nil {
			n := binary.BigEndian.Uint64(key)
			binary.BigEndian.PutUint64(key, n+1)
		}
		return b.Put(key, data)
	})
}

// QueryAudit returns audit entries with Timestamp in [start, end],
// optionally filtered to one service.
func (s *Store) QueryAudit(ctx context.Context, service string, start, end time.Time) ([]audit.Entry, error) {
	var out []audit.Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketAudit).Cursor()
		min := timeKey(start)
		max := timeKey(end)
		for k, v := c.Seek(min); k != nil && string(k) <= string(max); k, v = c.Next() {
			var e audit.Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("persistence: unmarshal audit entry: %w", err)
			}
			if service != "" && e.Service != service {
				continue
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// UpsertAlarm stores a under its numeric ID, assigning the next sequence
// number as ID when a.ID is zero; alarms are not matched by AlarmID.
func (s *Store) UpsertAlarm(ctx context.Context, a alarm.Alarm) (alarm.Alarm, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAlarms)
		if a.ID == 0 {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			a.ID = seq
		}
		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("persistence: marshal alarm: %w", err)
		}
		return b.Put(alarmKey(a.ID), data)
	})
	return a, err
}

func alarmKey(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

// GetAlarm fetches a single alarm by its numeric ID.
func (s *Store) GetAlarm(ctx context.Context, id uint64) (alarm.Alarm, error) {
	var a alarm.Alarm
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketAlarms).Get(alarmKey(id))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &a)
	})
	return a, err
}

// ListAlarms returns every stored alarm whose State is in the states set
// (empty means all), time-range filtered by RaisedAt.
func (s *Store) ListAlarms(ctx context.Context, states map[alarm.State]bool, start, end time.Time) ([]alarm.Alarm, error) {
	var out []alarm.Alarm
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAlarms).ForEach(func(k, v []byte) error {
			var a alarm.Alarm
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("persistence: unmarshal alarm: %w", err)
			}
			if len(states) > 0 && !states[a.State] {
				return nil
			}
			if !start.IsZero() && a.RaisedAt.Before(start) {
				return nil
			}
			if !end.IsZero() && a.RaisedAt.After(end) {
				return nil
			}
			out = append(out, a)
			return nil
		})
	})
	return out, err
}
