// SPDX-License-Identifier: BSD-3-Clause

package addr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// OPCUAIdentifierType is the discriminator for the four NodeId identifier
// encodings defined by the OPC UA specification.
type OPCUAIdentifierType string

const (
	OPCUAIdentifierNumeric OPCUAIdentifierType = "i"
	OPCUAIdentifierString  OPCUAIdentifierType = "s"
	OPCUAIdentifierGUID    OPCUAIdentifierType = "g"
	OPCUAIdentifierOpaque  OPCUAIdentifierType = "b"
)

// OPCUANodeID is the structured form of a parsed OPC UA NodeId string, in
// either its compact (ns=<n>) or expanded (nsu=<uri>) form.
type OPCUANodeID struct {
	Namespace    uint16
	NamespaceURI string
	HasURI       bool
	IDType       OPCUAIdentifierType
	Numeric      uint32
	String       string
	GUID         string
	Opaque       string // base64 text, kept verbatim
}

var (
	opcuaNsRe  = regexp.MustCompile(`^ns=(\d+);`)
	opcuaNsuRe = regexp.MustCompile(`^nsu=([^;]+);`)
	opcuaIdRe  = regexp.MustCompile(`^([isgb])=(.+)$`)
	guidRe     = regexp.MustCompile(`^[0-9A-Fa-f]{8}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{12}$`)
)

// ParseOPCUANodeID parses an OPC UA NodeId string in any of the forms:
//
//	ns=<n>;i=<num>
//	ns=<n>;s=<str>
//	ns=<n>;g=<guid>
//	ns=<n>;b=<base64>
//	nsu=<uri>;i=<num>   (and s=/g=/b= equivalents)
//
// The default namespace is 0 when "ns=" is omitted entirely.
func ParseOPCUANodeID(raw string) (OPCUANodeID, error) {
	rest := raw
	var node OPCUANodeID

	switch {
	case opcuaNsuRe.MatchString(rest):
		m := opcuaNsuRe.FindStringSubmatch(rest)
		node.NamespaceURI = m[1]
		node.HasURI = true
		rest = rest[len(m[0]):]
	case opcuaNsRe.MatchString(rest):
		m := opcuaNsRe.FindStringSubmatch(rest)
		n, err := strconv.ParseUint(m[1], 10, 16)
		if err != nil {
			return OPCUANodeID{}, fmt.Errorf("%w: namespace index %q", ErrInvalidAddress, m[1])
		}
		node.Namespace = uint16(n)
		rest = rest[len(m[0]):]
	default:
		node.Namespace = 0
	}

	m := opcuaIdRe.FindStringSubmatch(rest)
	if m == nil {
		return OPCUANodeID{}, fmt.Errorf("%w: missing identifier in %q", ErrInvalidAddress, raw)
	}
	node.IDType = OPCUAIdentifierType(m[1])
	payload := m[2]

	switch node.IDType {
	case OPCUAIdentifierNumeric:
		n, err := strconv.ParseUint(payload, 10, 32)
		if err != nil {
			return OPCUANodeID{}, fmt.Errorf("%w: numeric identifier %q", ErrInvalidAddress, payload)
		}
		node.Numeric = uint32(n)
	case OPCUAIdentifierString:
		if payload == "" {
			return OPCUANodeID{}, fmt.Errorf("%w: empty string identifier", ErrInvalidAddress)
		}
		node.String = payload
	case OPCUAIdentifierGUID:
		if !guidRe.MatchString(payload) {
			return OPCUANodeID{}, fmt.Errorf("%w: malformed GUID %q", ErrInvalidAddress, payload)
		}
		node.GUID = strings.ToUpper(payload)
	case OPCUAIdentifierOpaque:
		if payload == "" {
			return OPCUANodeID{}, fmt.Errorf("%w: empty opaque identifier", ErrInvalidAddress)
		}
		node.Opaque = payload
	default:
		return OPCUANodeID{}, fmt.Errorf("%w: unknown identifier type %q", ErrInvalidAddress, node.IDType)
	}

	return node, nil
}

// Normalize renders the NodeId back to its canonical textual form, using
// the expanded nsu= form when a namespace URI was present, compact ns=
// otherwise, and omitting "ns=0;" for the default namespace to match common
// OPC UA client output.
func (n OPCUANodeID) Normalize() string {
	var prefix string
	switch {
	case n.HasURI:
		prefix = fmt.Sprintf("nsu=%s;", n.NamespaceURI)
	case n.Namespace != 0:
		prefix = fmt.Sprintf("ns=%d;", n.Namespace)
	}

	switch n.IDType {
	case OPCUAIdentifierNumeric:
		return fmt.Sprintf("%si=%d", prefix, n.Numeric)
	case OPCUAIdentifierString:
		return fmt.Sprintf("%ss=%s", prefix, n.String)
	case OPCUAIdentifierGUID:
		return fmt.Sprintf("%sg=%s", prefix, n.GUID)
	case OPCUAIdentifierOpaque:
		return fmt.Sprintf("%sb=%s", prefix, n.Opaque)
	default:
		return ""
	}
}

// ValidateOPCUANodeID parses raw and, on success, returns its normalized
// form.
func ValidateOPCUANodeID(raw string) (normalized string, err error) {
	n, err := ParseOPCUANodeID(raw)
	if err != nil {
		return "", err
	}
	return n.Normalize(), nil
}
