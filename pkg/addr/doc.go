// SPDX-License-Identifier: BSD-3-Clause

package addr

import "fmt"

// Protocol identifies which sub-parser an address string belongs to.
type Protocol string

const (
	ProtocolModbus Protocol = "modbus"
	ProtocolS7     Protocol = "s7"
	ProtocolEIP    Protocol = "eip"
	ProtocolOPCUA  Protocol = "opcua"
)

// Result is the outcome of validating a single address string, in the shape
// the config validator reports per field: whether it is valid, its
// normalized form, and a human-readable error when it is not.
type Result struct {
	Valid      bool
	Normalized string
	Error      string
}

// Validate dispatches raw to the parser for protocol and returns a Result
// suitable for config-validator reporting. It never returns a Go error;
// parse failures are carried in Result.Error so callers can accumulate many
// field errors without early-exiting.
func Validate(protocol Protocol, raw string) Result {
	var normalized string
	var err error

	switch protocol {
	case ProtocolModbus:
		normalized, err = ValidateModbus(raw)
	case ProtocolS7:
		normalized, err = ValidateS7(raw)
	case ProtocolEIP:
		normalized, err = ValidateEIP(raw)
	case ProtocolOPCUA:
		normalized, err = ValidateOPCUANodeID(raw)
	default:
		err = fmt.Errorf("%w: unknown protocol %q", ErrInvalidAddress, protocol)
	}

	if err != nil {
		return Result{Error: err.Error()}
	}
	return Result{Valid: true, Normalized: normalized}
}
