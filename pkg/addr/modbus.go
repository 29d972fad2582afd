// SPDX-License-Identifier: BSD-3-Clause

// Package addr parses and normalizes the protocol-specific address strings
// a Tag's configuration binds to: Modbus register ranges, Siemens S7
// addressing, Allen-Bradley EtherNet/IP symbolic paths, and OPC UA NodeId
// strings. Each sub-parser exposes a Validate function returning a
// normalized address, mirroring the config validator's strict-mode use.
package addr

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrInvalidAddress indicates an address string does not match any
	// recognized form for its protocol.
	ErrInvalidAddress = errors.New("addr: invalid address")
	// ErrBitOutOfRange indicates a bit suffix fell outside the protocol's
	// permitted range.
	ErrBitOutOfRange = errors.New("addr: bit offset out of range")
)

// ModbusRegisterType is the Modbus data table a parsed address refers to.
type ModbusRegisterType string

const (
	ModbusCoil            ModbusRegisterType = "COIL"
	ModbusDiscreteInput   ModbusRegisterType = "DISCRETE_INPUT"
	ModbusInputRegister   ModbusRegisterType = "INPUT_REGISTER"
	ModbusHoldingRegister ModbusRegisterType = "HOLDING_REGISTER"
)

// ModbusAddress is the structured form of a parsed Modbus address.
type ModbusAddress struct {
	RegisterType ModbusRegisterType
	Address      int // 0-based
	Count        int
	BitOffset    int
	HasBitOffset bool
	Unit         int
	HasUnit      bool
}

// Normalize renders the address back to its canonical textual form, using
// the numeric 5-digit convention when the offset fits the 5-digit range
// (0-9998) and the named-prefix form (e.g. "HR:12000") otherwise, with an
// explicit unit/bit suffix only when they were present in the original
// address.
func (m ModbusAddress) Normalize() string {
	var base int
	var prefix string
	switch m.RegisterType {
	case ModbusCoil:
		base, prefix = 1, "C"
	case ModbusDiscreteInput:
		base, prefix = 10001, "DI"
	case ModbusInputRegister:
		base, prefix = 30001, "IR"
	case ModbusHoldingRegister:
		base, prefix = 40001, "HR"
	}
	s := strconv.Itoa(base + m.Address)
	if m.Address > 9998 {
		s = fmt.Sprintf("%s:%d", prefix, m.Address)
	}
	if m.HasBitOffset {
		s = fmt.Sprintf("%s.%d", s, m.BitOffset)
	}
	if m.HasUnit {
		s = fmt.Sprintf("unit:%d:%s", m.Unit, s)
	}
	return s
}

var (
	modbusPrefixRe = regexp.MustCompile(`^(?:unit:(\d+):)?(?:([CcDdIiRrHh]{1,2}):)?(\d+)(?:\.(\d+))?$`)
)

// ParseModbus parses an address string into a ModbusAddress. It accepts:
//   - numeric 5-digit ranges: 1-9999 (coils), 10001-19999 (discrete inputs),
//     30001-39999 (input registers), 40001-49999 (holding registers)
//   - extended 6-digit ranges covering the same table at 10x the span
//   - named prefixes C/DI/IR/HR with a 0-based offset
//   - an optional ".bit" suffix (0-15)
//   - an optional "unit:<n>:" prefix selecting the slave/unit id
func ParseModbus(raw string) (ModbusAddress, error) {
	raw = strings.TrimSpace(raw)
	m := modbusPrefixRe.FindStringSubmatch(raw)
	if m == nil {
		return ModbusAddress{}, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}

	var out ModbusAddress
	if m[1] != "" {
		unit, err := strconv.Atoi(m[1])
		if err != nil {
			return ModbusAddress{}, fmt.Errorf("%w: bad unit in %q", ErrInvalidAddress, raw)
		}
		out.Unit = unit
		out.HasUnit = true
	}

	prefix := strings.ToUpper(m[2])
	numStr := m[3]
	num, err := strconv.Atoi(numStr)
	if err != nil {
		return ModbusAddress{}, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}

	if prefix != "" {
		rt, ok := namedPrefixType(prefix)
		if !ok {
			return ModbusAddress{}, fmt.Errorf("%w: unknown prefix %q", ErrInvalidAddress, prefix)
		}
		out.RegisterType = rt
		out.Address = num
	} else {
		rt, zeroBased, ok := classifyNumericAddress(num)
		if !ok {
			return ModbusAddress{}, fmt.Errorf("%w: address %d out of range", ErrInvalidAddress, num)
		}
		out.RegisterType = rt
		out.Address = zeroBased
	}

	out.Count = 1

	if m[4] != "" {
		bit, err := strconv.Atoi(m[4])
		if err != nil || bit < 0 || bit > 15 {
			return ModbusAddress{}, fmt.Errorf("%w: bit %q", ErrBitOutOfRange, m[4])
		}
		out.BitOffset = bit
		out.HasBitOffset = true
	}

	return out, nil
}

func namedPrefixType(prefix string) (ModbusRegisterType, bool) {
	switch prefix {
	case "C":
		return ModbusCoil, true
	case "DI":
		return ModbusDiscreteInput, true
	case "IR":
		return ModbusInputRegister, true
	case "HR":
		return ModbusHoldingRegister, true
	}
	return "", false
}

// classifyNumericAddress maps a bare numeric Modbus address (5 or 6 digit
// convention) to its register type and 0-based offset within that table.
func classifyNumericAddress(num int) (ModbusRegisterType, int, bool) {
	switch {
	case num >= 1 && num <= 9999:
		return ModbusCoil, num - 1, true
	case num >= 100001 && num <= 165535:
		return ModbusCoil, num - 100001, true
	case num >= 10001 && num <= 19999:
		return ModbusDiscreteInput, num - 10001, true
	case num >= 110001 && num <= 165535+100000:
		return ModbusDiscreteInput, num - 110001, true
	case num >= 30001 && num <= 39999:
		return ModbusInputRegister, num - 30001, true
	case num >= 300001 && num <= 365535:
		return ModbusInputRegister, num - 300001, true
	case num >= 40001 && num <= 49999:
		return ModbusHoldingRegister, num - 40001, true
	case num >= 400001 && num <= 465535:
		return ModbusHoldingRegister, num - 400001, true
	default:
		return "", 0, false
	}
}

// ValidateModbus parses raw and, on success, returns its normalized form.
func ValidateModbus(raw string) (normalized string, err error) {
	a, err := ParseModbus(raw)
	if err != nil {
		return "", err
	}
	return a.Normalize(), nil
}
