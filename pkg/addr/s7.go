// SPDX-License-Identifier: BSD-3-Clause

package addr

import (
	"fmt"
	"regexp"
	"strconv"
)

// S7AreaType is the Siemens S7 memory area a parsed address refers to.
type S7AreaType string

const (
	S7AreaDataBlock S7AreaType = "DB"
	S7AreaMarker    S7AreaType = "M"
	S7AreaInput     S7AreaType = "I"
	S7AreaOutput    S7AreaType = "Q"
	S7AreaTimer     S7AreaType = "T"
	S7AreaCounter   S7AreaType = "C"
)

// S7Size is the access width of an S7 address: bit, byte, word, or double word.
type S7Size string

const (
	S7SizeBit    S7Size = "X" // single bit, requires a bit index
	S7SizeByte   S7Size = "B"
	S7SizeWord   S7Size = "W"
	S7SizeDouble S7Size = "D"
)

// S7Address is the structured form of a parsed Siemens S7 address.
type S7Address struct {
	Area      S7AreaType
	DBNumber  int // only meaningful when Area == S7AreaDataBlock
	Size      S7Size
	Offset    int
	BitIndex  int
	HasBit    bool
}

var (
	s7DBRe      = regexp.MustCompile(`^DB(\d+)\.DB([XWBD])(\d+)(?:\.(\d+))?$`)
	s7MarkerRe  = regexp.MustCompile(`^M([WBD])(\d+)$|^M(\d+)\.(\d+)$`)
	s7IORe      = regexp.MustCompile(`^([IQ])([WBD])(\d+)$|^([IQ])(\d+)\.(\d+)$`)
	s7TimerRe   = regexp.MustCompile(`^T(\d+)$`)
	s7CounterRe = regexp.MustCompile(`^C(\d+)$`)
)

// ParseS7 parses a Siemens S7 address string. Supported forms:
//
//	DB<n>.DB[XWBD]<offset>[.bit]   data block access
//	M[WBD]<offset> / M<offset>.<bit>   marker memory
//	[IQ][WBD]<offset> / [IQ]<offset>.<bit>   input/output
//	T<n>   timer
//	C<n>   counter
//
// A bit index, where permitted, must be 0-7; DBX/bit-addressed M/I/Q
// require one, all other sizes forbid one.
func ParseS7(raw string) (S7Address, error) {
	if m := s7DBRe.FindStringSubmatch(raw); m != nil {
		dbNum, _ := strconv.Atoi(m[1])
		offset, _ := strconv.Atoi(m[3])
		size := S7Size(m[2])

		addr := S7Address{Area: S7AreaDataBlock, DBNumber: dbNum, Size: size, Offset: offset}
		if size == S7SizeBit {
			if m[4] == "" {
				return S7Address{}, fmt.Errorf("%w: DBX requires a bit index: %q", ErrInvalidAddress, raw)
			}
			bit, err := strconv.Atoi(m[4])
			if err != nil || bit < 0 || bit > 7 {
				return S7Address{}, fmt.Errorf("%w: bit %q", ErrBitOutOfRange, m[4])
			}
			addr.BitIndex = bit
			addr.HasBit = true
		} else if m[4] != "" {
			return S7Address{}, fmt.Errorf("%w: %s forbids a bit index: %q", ErrInvalidAddress, size, raw)
		}
		return addr, nil
	}

	if m := s7MarkerRe.FindStringSubmatch(raw); m != nil {
		if m[1] != "" {
			offset, _ := strconv.Atoi(m[2])
			return S7Address{Area: S7AreaMarker, Size: S7Size(m[1]), Offset: offset}, nil
		}
		offset, _ := strconv.Atoi(m[3])
		bit, err := strconv.Atoi(m[4])
		if err != nil || bit < 0 || bit > 7 {
			return S7Address{}, fmt.Errorf("%w: bit %q", ErrBitOutOfRange, m[4])
		}
		return S7Address{Area: S7AreaMarker, Size: S7SizeBit, Offset: offset, BitIndex: bit, HasBit: true}, nil
	}

	if m := s7IORe.FindStringSubmatch(raw); m != nil {
		if m[1] != "" {
			offset, _ := strconv.Atoi(m[3])
			return S7Address{Area: S7AreaType(m[1]), Size: S7Size(m[2]), Offset: offset}, nil
		}
		offset, _ := strconv.Atoi(m[5])
		bit, err := strconv.Atoi(m[6])
		if err != nil || bit < 0 || bit > 7 {
			return S7Address{}, fmt.Errorf("%w: bit %q", ErrBitOutOfRange, m[6])
		}
		return S7Address{Area: S7AreaType(m[4]), Size: S7SizeBit, Offset: offset, BitIndex: bit, HasBit: true}, nil
	}

	if m := s7TimerRe.FindStringSubmatch(raw); m != nil {
		n, _ := strconv.Atoi(m[1])
		return S7Address{Area: S7AreaTimer, Offset: n}, nil
	}

	if m := s7CounterRe.FindStringSubmatch(raw); m != nil {
		n, _ := strconv.Atoi(m[1])
		return S7Address{Area: S7AreaCounter, Offset: n}, nil
	}

	return S7Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
}

// Normalize renders the address back to its canonical textual form.
func (a S7Address) Normalize() string {
	switch a.Area {
	case S7AreaDataBlock:
		s := fmt.Sprintf("DB%d.DB%s%d", a.DBNumber, a.Size, a.Offset)
		if a.HasBit {
			s = fmt.Sprintf("%s.%d", s, a.BitIndex)
		}
		return s
	case S7AreaMarker:
		if a.HasBit {
			return fmt.Sprintf("M%d.%d", a.Offset, a.BitIndex)
		}
		return fmt.Sprintf("M%s%d", a.Size, a.Offset)
	case S7AreaInput, S7AreaOutput:
		if a.HasBit {
			return fmt.Sprintf("%s%d.%d", a.Area, a.Offset, a.BitIndex)
		}
		return fmt.Sprintf("%s%s%d", a.Area, a.Size, a.Offset)
	case S7AreaTimer:
		return fmt.Sprintf("T%d", a.Offset)
	case S7AreaCounter:
		return fmt.Sprintf("C%d", a.Offset)
	default:
		return ""
	}
}

// ValidateS7 parses raw and, on success, returns its normalized form.
func ValidateS7(raw string) (normalized string, err error) {
	a, err := ParseS7(raw)
	if err != nil {
		return "", err
	}
	return a.Normalize(), nil
}
