// SPDX-License-Identifier: BSD-3-Clause

// Package quality implements the OPC UA-aligned quality classification used
// to mark every sampled or written tag value with a reliability band. It
// mirrors the three-band (Good/Uncertain/Bad) StatusCode layout defined by
// the OPC UA specification closely enough that the 32-bit codes returned by
// Code can be written directly into an OPC UA StatusCode attribute.
package quality

import "fmt"

// Quality is a reliability classification for a sampled or written value.
type Quality int

const (
	// Good indicates the value was obtained normally and can be trusted.
	Good Quality = iota
	// GoodLocalOverride indicates a value forced locally (e.g. by an operator override).
	GoodLocalOverride
	// UncertainNoCommLastUsable indicates communication is currently down but a
	// prior good value is being held over.
	UncertainNoCommLastUsable
	// UncertainLastUsable is used when a value is suspect but the last known
	// good sample is still being reported.
	UncertainLastUsable
	// UncertainSensorNotAccurate indicates the source reported reduced accuracy.
	UncertainSensorNotAccurate
	// BadNoCommunication indicates the transport to the source is down and no
	// prior value exists to hold over.
	BadNoCommunication
	// BadConfigError indicates the tag's address or datatype configuration is
	// invalid; the connector remains connected.
	BadConfigError
	// BadNotConnected indicates the owning connector has never established a
	// session.
	BadNotConnected
	// BadOutOfService indicates the source is intentionally taken offline.
	BadOutOfService
	// BadWriteFailed indicates a write to the source did not take effect.
	BadWriteFailed
)

// band classifies a Quality into Good/Uncertain/Bad for Is* helpers and for
// deriving the high two bits of the OPC UA status code.
type band int

const (
	bandGood band = iota
	bandUncertain
	bandBad
)

var bands = map[Quality]band{
	Good:                      bandGood,
	GoodLocalOverride:         bandGood,
	UncertainNoCommLastUsable: bandUncertain,
	UncertainLastUsable:       bandUncertain,
	UncertainSensorNotAccurate: bandUncertain,
	BadNoCommunication:        bandBad,
	BadConfigError:            bandBad,
	BadNotConnected:           bandBad,
	BadOutOfService:           bandBad,
	BadWriteFailed:            bandBad,
}

var names = map[Quality]string{
	Good:                       "Good",
	GoodLocalOverride:          "GoodLocalOverride",
	UncertainNoCommLastUsable:  "UncertainNoCommLastUsable",
	UncertainLastUsable:        "UncertainLastUsable",
	UncertainSensorNotAccurate: "UncertainSensorNotAccurate",
	BadNoCommunication:         "BadNoCommunication",
	BadConfigError:             "BadConfigError",
	BadNotConnected:            "BadNotConnected",
	BadOutOfService:            "BadOutOfService",
	BadWriteFailed:             "BadWriteFailed",
}

// OPC UA status codes, high 16 bits only (severity + sub-code), the low 16
// bits (info bits) are left zero as this gateway does not set them.
var codes = map[Quality]uint32{
	Good:                       0x00000000,
	GoodLocalOverride:          0x00B40000,
	UncertainNoCommLastUsable: 0x408F0000,
	UncertainLastUsable:        0x409A0000,
	UncertainSensorNotAccurate: 0x40920000,
	BadNoCommunication:         0x80130000,
	BadConfigError:             0x80580000,
	BadNotConnected:            0x808C0000,
	BadOutOfService:            0x808D0000,
	BadWriteFailed:             0x803B0000,
}

// String returns the canonical sub-code name, e.g. "BadNoCommunication".
func (q Quality) String() string {
	if n, ok := names[q]; ok {
		return n
	}
	return fmt.Sprintf("Quality(%d)", int(q))
}

// Code returns the 32-bit OPC UA status code for q.
func (q Quality) Code() uint32 {
	return codes[q]
}

// IsGood reports whether q is in the Good band.
func (q Quality) IsGood() bool { return bands[q] == bandGood }

// IsUncertain reports whether q is in the Uncertain band.
func (q Quality) IsUncertain() bool { return bands[q] == bandUncertain }

// IsBad reports whether q is in the Bad band.
func (q Quality) IsBad() bool { return bands[q] == bandBad }

// FromOPCUAStatusCode maps a raw 32-bit OPC UA StatusCode (as returned by an
// OPC UA client read) onto the nearest Quality. Codes with a zero severity
// (top two bits clear) map to Good; 0x40 severity maps to an uncertain band;
// 0x80 severity maps to a bad band. Unknown non-good codes default to the
// generic bad-communication classification so a tag is never silently
// reported as trustworthy.
func FromOPCUAStatusCode(code uint32) Quality {
	severity := code & 0xC0000000
	switch severity {
	case 0x00000000:
		return Good
	case 0x40000000:
		return UncertainLastUsable
	default:
		return BadNoCommunication
	}
}
