// SPDX-License-Identifier: BSD-3-Clause

// Package tagmodel holds the data model shared by every component that
// touches a tag: its static configuration, its immutable sampled values,
// and its mutable runtime state. Nothing in this package talks to a
// connector or a protocol; it is the common vocabulary the tag pipeline is
// built from.
package tagmodel

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mtp-gateway/gateway/pkg/quality"
)

var (
	// ErrUnknownDataType indicates a tag declared a DataType this package
	// does not recognize.
	ErrUnknownDataType = errors.New("tagmodel: unknown data type")
	// ErrNotWritable indicates a write was attempted on a read-only tag.
	ErrNotWritable = errors.New("tagmodel: tag is not writable")
	// ErrCoercion indicates a value could not be coerced to the tag's
	// declared DataType.
	ErrCoercion = errors.New("tagmodel: value coercion failed")
)

// DataType is the set of scalar types a Tag may declare, per the
// configuration schema's Modbus/S7/EIP/OPC UA-agnostic type vocabulary.
type DataType string

const (
	DataTypeBool    DataType = "BOOL"
	DataTypeInt16   DataType = "INT16"
	DataTypeInt32   DataType = "INT32"
	DataTypeInt64   DataType = "INT64"
	DataTypeUint16  DataType = "UINT16"
	DataTypeUint32  DataType = "UINT32"
	DataTypeUint64  DataType = "UINT64"
	DataTypeFloat32 DataType = "FLOAT32"
	DataTypeFloat64 DataType = "FLOAT64"
	DataTypeString  DataType = "STRING"
)

// Valid reports whether d is one of the known DataType constants.
func (d DataType) Valid() bool {
	switch d {
	case DataTypeBool, DataTypeInt16, DataTypeInt32, DataTypeInt64,
		DataTypeUint16, DataTypeUint32, DataTypeUint64,
		DataTypeFloat32, DataTypeFloat64, DataTypeString:
		return true
	}
	return false
}

// ByteOrder and WordOrder describe how a connector assembles multi-register
// or multi-byte values. Only meaningful for multi-byte DataTypes read off a
// register-oriented protocol (Modbus, S7).
type ByteOrder string

const (
	ByteOrderBigEndian    ByteOrder = "big"
	ByteOrderLittleEndian ByteOrder = "little"
)

type WordOrder string

const (
	WordOrderBigEndian    WordOrder = "big"
	WordOrderLittleEndian WordOrder = "little"
)

// ScaleConfig is a linear transform applied between the raw value read off
// the wire and the engineering value exposed to the rest of the gateway:
// scaled = raw*Gain + Offset. Writes apply the inverse.
type ScaleConfig struct {
	Gain   float64
	Offset float64
}

// Apply converts a raw numeric sample into its scaled engineering value.
func (s *ScaleConfig) Apply(raw float64) float64 {
	if s == nil {
		return raw
	}
	return raw*s.Gain + s.Offset
}

// Invert converts an engineering value back into the raw value that should
// be written to the wire.
func (s *ScaleConfig) Invert(scaled float64) (float64, error) {
	if s == nil {
		return scaled, nil
	}
	if s.Gain == 0 {
		return 0, fmt.Errorf("tagmodel: scale gain is zero, cannot invert")
	}
	return (scaled - s.Offset) / s.Gain, nil
}

// Tag is the static, configuration-derived description of a single tagged
// value: its identity, its binding to a connector address, its type, and
// any linear scaling applied between wire and engineering units.
type Tag struct {
	Name          string
	Connector     string
	Address       string
	DataType      DataType
	Writable      bool
	Scale         *ScaleConfig
	Unit          string
	ByteOrder     ByteOrder
	WordOrder     WordOrder
}

// Value is an immutable sample of a tag at a point in time. Two Values are
// never mutated in place; a new one is constructed for every update so that
// subscribers observing a prior Value never see it change underneath them.
type Value struct {
	Value            any
	Timestamp        time.Time
	Quality          quality.Quality
	SourceTimestamp  time.Time
	HasSourceStamp   bool
}

// NewValue constructs a Value stamped with the current server time.
func NewValue(v any, q quality.Quality) Value {
	return Value{Value: v, Timestamp: time.Now().UTC(), Quality: q}
}

// NewValueWithSource constructs a Value carrying a separate source-reported
// timestamp, as returned by protocols (e.g. OPC UA) that stamp samples at
// the origin device.
func NewValueWithSource(v any, q quality.Quality, sourceTS time.Time) Value {
	return Value{
		Value:           v,
		Timestamp:       time.Now().UTC(),
		Quality:         q,
		SourceTimestamp: sourceTS,
		HasSourceStamp:  true,
	}
}

// AsFloat64 attempts a best-effort numeric conversion of the Value's payload,
// used by scaling, alarm limit comparisons, and history ingestion.
func (v Value) AsFloat64() (float64, bool) {
	switch n := v.Value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// AsBool attempts a best-effort boolean conversion, used by binary monitors
// and interlock evaluation.
func (v Value) AsBool() (bool, bool) {
	switch n := v.Value.(type) {
	case bool:
		return n, true
	default:
		if f, ok := v.AsFloat64(); ok {
			return f != 0, true
		}
		return false, false
	}
}

// Coerce converts raw into the Go type matching dt, failing if the
// conversion is impossible or a negative value targets an unsigned type.
// Integer targets truncate any fractional part, and no range check against
// the type's bit width is made. Used on the write path before a value is
// handed to a connector's datatype-aware writer.
func Coerce(dt DataType, raw any) (any, error) {
	switch dt {
	case DataTypeBool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case float64:
			return v != 0, nil
		}
	case DataTypeInt16, DataTypeInt32, DataTypeInt64:
		if f, ok := toFloat(raw); ok {
			return int64(f), nil
		}
	case DataTypeUint16, DataTypeUint32, DataTypeUint64:
		if f, ok := toFloat(raw); ok {
			if f < 0 {
				return nil, fmt.Errorf("%w: negative value for unsigned type %s", ErrCoercion, dt)
			}
			return uint64(f), nil
		}
	case DataTypeFloat32, DataTypeFloat64:
		if f, ok := toFloat(raw); ok {
			return f, nil
		}
	case DataTypeString:
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return fmt.Sprintf("%v", raw), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDataType, dt)
	}
	return nil, fmt.Errorf("%w: cannot coerce %T to %s", ErrCoercion, raw, dt)
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// State is the mutable runtime record the Tag Manager owns per tag: its
// current and last-known-good sample plus read/write/error counters. A
// State is created once at startup from the Tag's configuration and lives
// for the process lifetime; it is never destroyed at runtime.
type State struct {
	mu            sync.RWMutex
	tag           Tag
	current       Value
	lastGood      Value
	hasLastGood   bool
	readCount     uint64
	writeCount    uint64
	errorCount    uint64
}

// NewState creates a State for tag, initialized to an uninitialized Bad
// value so readers never observe a zero-valued time.Time as meaningful.
func NewState(tag Tag) *State {
	return &State{
		tag:     tag,
		current: NewValue(nil, quality.BadNotConnected),
	}
}

// Tag returns the static configuration this State was created from.
func (s *State) Tag() Tag {
	return s.tag
}

// Current returns the most recently recorded Value.
func (s *State) Current() Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// LastGood returns the last Value recorded with Good quality, and whether
// one has ever been observed.
func (s *State) LastGood() (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastGood, s.hasLastGood
}

// Update records a newly sampled Value, tracking the read counter and, if
// the quality is good, the last-good value. It reports whether the value
// differs from the previous current value (by payload or quality), which the
// Tag Manager uses to decide whether to notify subscribers.
func (s *State) Update(v Value) (changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed = s.current.Value != v.Value || s.current.Quality != v.Quality
	s.current = v
	s.readCount++
	if v.Quality.IsGood() {
		s.lastGood = v
		s.hasLastGood = true
	}
	return changed
}

// RecordWrite increments the write counter, called after a successful
// write-confirm cycle.
func (s *State) RecordWrite() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeCount++
}

// RecordError increments the error counter, called whenever a read or write
// against this tag fails.
func (s *State) RecordError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCount++
}

// Counters is a snapshot of a State's read/write/error counters.
type Counters struct {
	Reads  uint64
	Writes uint64
	Errors uint64
}

// Counters returns a point-in-time snapshot of this State's counters.
func (s *State) Counters() Counters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Counters{Reads: s.readCount, Writes: s.writeCount, Errors: s.errorCount}
}
