// SPDX-License-Identifier: BSD-3-Clause

// Package daassembly describes the MTP Data Assembly types: the standardized
// OPC UA variable sets that model a sensor, valve, drive, controller, or
// monitor, and the per-instance configuration (bindings, scale, limits,
// interlock) that the address-space builder and manifest generator both
// read to produce identical node identifiers.
package daassembly

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownType indicates a DataAssembly declared a Type this package
	// does not recognize.
	ErrUnknownType = errors.New("daassembly: unknown type")
	// ErrMissingBinding indicates a required attribute has no tag binding.
	ErrMissingBinding = errors.New("daassembly: missing required binding")
)

// Type is one of the fifteen MTP DataAssembly kinds, an exhaustive set.
type Type string

const (
	TypeAnaView       Type = "AnaView"
	TypeAnaServParam  Type = "AnaServParam"
	TypeAnaMon        Type = "AnaMon"
	TypeAnaVlv        Type = "AnaVlv"
	TypeAnaDrv        Type = "AnaDrv"
	TypeBinView       Type = "BinView"
	TypeBinServParam  Type = "BinServParam"
	TypeBinMon        Type = "BinMon"
	TypeBinVlv        Type = "BinVlv"
	TypeBinDrv        Type = "BinDrv"
	TypeDIntView      Type = "DIntView"
	TypeDIntServParam Type = "DIntServParam"
	TypeStringView    Type = "StringView"
	TypeStringServParam Type = "StringServParam"
	TypePIDCtrl       Type = "PIDCtrl"
)

// attributeSets is the exhaustive per-type variable set. Order is
// preserved for deterministic manifest/address-space generation.
var attributeSets = map[Type][]string{
	TypeAnaView:      {"V", "VSclMin", "VSclMax", "VUnit", "WQC"},
	TypeAnaMon:       {"V", "VSclMin", "VSclMax", "VUnit", "WQC"},
	TypeAnaServParam: {"V", "VSclMin", "VSclMax", "VUnit", "WQC", "VInt", "VReq", "VOpMin", "VOpMax", "SrcMode"},
	TypeAnaVlv:       {"V", "VSclMin", "VSclMax", "VUnit", "WQC", "VFbk", "OpMode", "Interlock", "Permit"},
	TypeAnaDrv:       {"V", "VSclMin", "VSclMax", "VUnit", "WQC", "VFbk", "OpMode", "Interlock", "Permit"},
	TypeBinView:      {"V", "VState0", "VState1", "WQC"},
	TypeBinMon:       {"V", "VState0", "VState1", "WQC"},
	TypeBinServParam: {"V", "VState0", "VState1", "WQC", "VInt", "VReq", "SrcMode"},
	TypeBinVlv:       {"V", "VState0", "VState1", "WQC", "VFbkOpen", "VFbkClose", "OpMode", "Interlock", "Permit", "MonPosErr"},
	TypeBinDrv:       {"V", "VState0", "VState1", "WQC", "VFbkOpen", "VFbkClose", "OpMode", "Interlock", "Permit", "MonPosErr"},
	TypeDIntView:      {"V", "VSclMin", "VSclMax", "VUnit", "WQC"},
	TypeDIntServParam: {"V", "VSclMin", "VSclMax", "VUnit", "WQC", "VInt", "VReq", "VOpMin", "VOpMax", "SrcMode"},
	TypeStringView:       {"V"},
	TypeStringServParam:  {"V", "VInt"},
	TypePIDCtrl: {
		"PV", "PVSclMin", "PVSclMax", "PVUnit",
		"SP", "SPInt", "SPSclMin", "SPSclMax",
		"MV", "MVSclMin", "MVSclMax", "MVUnit",
		"Gain", "Ti", "Td", "OpMode", "ManMode",
	},
}

// Valid reports whether t is one of the fifteen known DataAssembly types.
func (t Type) Valid() bool {
	_, ok := attributeSets[t]
	return ok
}

// Attributes returns the ordered, exhaustive attribute-name set for t. The
// returned slice must not be mutated by callers.
func Attributes(t Type) ([]string, error) {
	attrs, ok := attributeSets[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
	return attrs, nil
}

// IsMonitor reports whether t is one of the two alarm-eligible monitor types.
func (t Type) IsMonitor() bool {
	return t == TypeAnaMon || t == TypeBinMon
}

// IsActuator reports whether t carries Interlock/Permit/OpMode semantics
// (valves and drives).
func (t Type) IsActuator() bool {
	switch t {
	case TypeAnaVlv, TypeAnaDrv, TypeBinVlv, TypeBinDrv:
		return true
	}
	return false
}

// ScaleRange is an optional engineering-unit min/max/unit annotation,
// carried through to the manifest for analog and PID types.
type ScaleRange struct {
	Min  float64
	Max  float64
	Unit string
}

// StateTexts names the two boolean states of a binary DataAssembly's
// VState0/VState1 attributes (e.g. "CLOSED"/"OPEN").
type StateTexts struct {
	State0 string
	State1 string
}

// MonitorLimits are the four alarm thresholds evaluated by the Alarm
// Detector against an AnaMon's source tag.
type MonitorLimits struct {
	HH float64
	H  float64
	L  float64
	LL float64
}

// InterlockBinding names the boolean source tag gating an actuator's
// Interlock attribute.
type InterlockBinding struct {
	SourceTag string
}

// Assembly is a configured DataAssembly instance: its type, its identity,
// and the bindings/annotations the builder and generator read.
type Assembly struct {
	Name string
	Type Type

	// Bindings maps attribute name (e.g. "V", "VFbk") to the tag name that
	// backs it. Not every attribute need be bound; unbound attributes still
	// appear in the address space as static/zero-valued nodes.
	Bindings map[string]string

	Scale      *ScaleRange
	States     *StateTexts
	Limits     *MonitorLimits
	Interlock  *InterlockBinding
}

// Validate checks that Type is known and that every bound attribute name
// actually belongs to this type's attribute set.
func (a Assembly) Validate() error {
	attrs, err := Attributes(a.Type)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(attrs))
	for _, attr := range attrs {
		known[attr] = true
	}
	for attr := range a.Bindings {
		if !known[attr] {
			return fmt.Errorf("daassembly: %s has no attribute %q for type %s", a.Name, attr, a.Type)
		}
	}
	if a.Type.IsMonitor() && a.Limits == nil && a.Type == TypeAnaMon {
		return fmt.Errorf("%w: %s (AnaMon) has no monitor limits configured", ErrMissingBinding, a.Name)
	}
	return nil
}

// PrimarySourceTag returns the tag the Alarm Detector indexes this assembly
// by: the bound "V" attribute.
func (a Assembly) PrimarySourceTag() (string, bool) {
	tag, ok := a.Bindings["V"]
	return tag, ok
}
