// SPDX-License-Identifier: BSD-3-Clause

package connector

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/mtp-gateway/gateway/pkg/addr"
	"github.com/mtp-gateway/gateway/pkg/tagmodel"
)

// s7AreaCode maps an S7 memory area to its S7comm area identifier.
var s7AreaCode = map[addr.S7AreaType]byte{
	addr.S7AreaInput:   0x81,
	addr.S7AreaOutput:  0x82,
	addr.S7AreaMarker:  0x83,
	addr.S7AreaDB:      0x84,
	addr.S7AreaTimer:   0x1D,
	addr.S7AreaCounter: 0x1C,
}

// S7Connector speaks a minimal S7comm-over-ISO-on-TCP subset sufficient to
// read and write DB/M/I/Q words and bits. It performs its own COTP
// connection-request handshake once per Connect and then issues one S7
// job per Read/Write, matching the request-response cadence of the real
// protocol without implementing its full PDU negotiation surface.
type S7Connector struct {
	name    string
	host    string
	port    int
	rack    int
	slot    int
	timeout time.Duration

	mu     sync.Mutex
	conn   net.Conn
	health *tagmodel.ConnectorHealth
}

// NewS7Connector creates an S7 connector for host:port (conventionally 102)
// addressing the PLC at the given rack/slot.
func NewS7Connector(name, host string, port, rack, slot int) *S7Connector {
	return &S7Connector{
		name:    name,
		host:    host,
		port:    port,
		rack:    rack,
		slot:    slot,
		timeout: 3 * time.Second,
		health:  tagmodel.NewConnectorHealth(),
	}
}

func (c *S7Connector) Name() string                     { return c.name }
func (c *S7Connector) Health() *tagmodel.ConnectorHealth { return c.health }

func (c *S7Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", c.host, c.port))
	if err != nil {
		return fmt.Errorf("s7 connect %s: %w", c.name, err)
	}

	if err := c.cotpHandshake(conn); err != nil {
		_ = conn.Close()
		return fmt.Errorf("s7 cotp handshake %s: %w", c.name, err)
	}

	c.conn = conn
	c.health.SetState(tagmodel.ConnectorConnected)
	return nil
}

func (c *S7Connector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.health.SetState(tagmodel.ConnectorDisconnected)
	return err
}

// cotpHandshake sends the ISO-on-TCP connection-request TPDU addressed to
// the configured rack/slot and expects a connection-confirm in reply.
func (c *S7Connector) cotpHandshake(conn net.Conn) error {
	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	remoteTSAP := uint16(0x0100 | (uint16(c.rack)<<5 | uint16(c.slot)&0x1F))
	req := []byte{
		0x03, 0x00, 0x00, 0x16, // TPKT: version, reserved, length
		0x11,       // COTP length
		0xE0,       // connection request
		0x00, 0x00, // dst ref
		0x00, 0x01, // src ref
		0x00, // class
		0xC1, 0x02, 0x01, 0x00, // src TSAP
		0xC2, 0x02, byte(remoteTSAP >> 8), byte(remoteTSAP),
	}
	if _, err := conn.Write(req); err != nil {
		return err
	}

	resp := make([]byte, 22)
	_, err := readFull(conn, resp)
	return err
}

func (c *S7Connector) Read(ctx context.Context, raw string) (any, error) {
	a, err := addr.ParseS7(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedAddress, err)
	}
	area, ok := s7AreaCode[a.Area]
	if !ok {
		return nil, fmt.Errorf("%w: s7 area %v", ErrUnsupportedAddress, a.Area)
	}

	nBytes := sizeBytes(a.Size)
	bitAddr := a.Offset * 8
	if a.HasBit {
		bitAddr += a.BitIndex
	}

	body, err := c.job(ctx, area, uint16(a.DBNumber), uint32(bitAddr), nBytes)
	if err != nil {
		c.health.RecordError(err)
		return nil, err
	}
	c.health.RecordSuccess(false)

	switch {
	case a.HasBit:
		return body[0]&0x01 != 0, nil
	case a.Size == addr.S7SizeByte:
		return body[0], nil
	case a.Size == addr.S7SizeWord:
		return binary.BigEndian.Uint16(body), nil
	case a.Size == addr.S7SizeDouble:
		return binary.BigEndian.Uint32(body), nil
	default:
		return body, nil
	}
}

func (c *S7Connector) Write(ctx context.Context, raw string, value any) error {
	a, err := addr.ParseS7(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupportedAddress, err)
	}
	area, ok := s7AreaCode[a.Area]
	if !ok {
		return fmt.Errorf("%w: s7 area %v", ErrUnsupportedAddress, a.Area)
	}

	var payload []byte
	switch v := value.(type) {
	case bool:
		if v {
			payload = []byte{0x01}
		} else {
			payload = []byte{0x00}
		}
	case uint16:
		payload = binary.BigEndian.AppendUint16(nil, v)
	case uint32:
		payload = binary.BigEndian.AppendUint32(nil, v)
	case int:
		payload = binary.BigEndian.AppendUint16(nil, uint16(v))
	default:
		return fmt.Errorf("s7: unsupported write value type %T", value)
	}

	bitAddr := a.Offset * 8
	if a.HasBit {
		bitAddr += a.BitIndex
	}

	_, err = c.jobWrite(ctx, area, uint16(a.DBNumber), uint32(bitAddr), payload)
	if err != nil {
		c.health.RecordError(err)
		return err
	}
	c.health.RecordSuccess(true)
	return nil
}

func sizeBytes(s addr.S7Size) int {
	switch s {
	case addr.S7SizeBit:
		return 1
	case addr.S7SizeByte:
		return 1
	case addr.S7SizeWord:
		return 2
	case addr.S7SizeDouble:
		return 4
	default:
		return 1
	}
}

// job issues a single S7 read job for the given area/db/bit-address/length
// and returns the raw data bytes from the response.
func (c *S7Connector) job(ctx context.Context, area byte, db uint16, bitAddr uint32, length int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(dl)
	} else {
		_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	}

	req := s7ReadRequest(area, db, bitAddr, length)
	if _, err := c.conn.Write(req); err != nil {
		_ = c.conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("s7 write job: %w", err)
	}

	header := make([]byte, 4)
	if _, err := readFull(c.conn, header); err != nil {
		_ = c.conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("s7 read tpkt header: %w", err)
	}
	total := binary.BigEndian.Uint16(header[2:4])
	rest := make([]byte, int(total)-4)
	if _, err := readFull(c.conn, rest); err != nil {
		_ = c.conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("s7 read body: %w", err)
	}
	if len(rest) < length {
		return nil, fmt.Errorf("s7: short response, want %d bytes got %d", length, len(rest))
	}
	return rest[len(rest)-length:], nil
}

func (c *S7Connector) jobWrite(ctx context.Context, area byte, db uint16, bitAddr uint32, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(dl)
	} else {
		_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	}

	req := s7WriteRequest(area, db, bitAddr, payload)
	if _, err := c.conn.Write(req); err != nil {
		_ = c.conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("s7 write job: %w", err)
	}

	header := make([]byte, 4)
	if _, err := readFull(c.conn, header); err != nil {
		_ = c.conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("s7 read tpkt header: %w", err)
	}
	total := binary.BigEndian.Uint16(header[2:4])
	rest := make([]byte, int(total)-4)
	_, err := readFull(c.conn, rest)
	return rest, err
}

// s7ReadRequest builds a minimal S7comm "read var" job wrapped in a single
// COTP data TPDU over TPKT, addressing one item by area/db/bit-offset/length.
func s7ReadRequest(area byte, db uint16, bitAddr uint32, length int) []byte {
	item := []byte{
		0x12, 0x0A, 0x10, 0x02,
		byte(length >> 8), byte(length),
		byte(db >> 8), byte(db),
		area,
		byte(bitAddr >> 16), byte(bitAddr >> 8), byte(bitAddr),
	}
	return s7Frame(0x04, item)
}

func s7WriteRequest(area byte, db uint16, bitAddr uint32, payload []byte) []byte {
	item := []byte{
		0x12, 0x0A, 0x10, 0x02,
		byte(len(payload) >> 8), byte(len(payload)),
		byte(db >> 8), byte(db),
		area,
		byte(bitAddr >> 16), byte(bitAddr >> 8), byte(bitAddr),
	}
	dataItem := append([]byte{0x00, 0x04, byte(len(payload) * 8 >> 8), byte(len(payload) * 8)}, payload...)
	frame := append(item, dataItem...)
	return s7Frame(0x05, frame)
}

func s7Frame(function byte, params []byte) []byte {
	header := []byte{0x32, 0x01, 0x00, 0x00, 0x00, 0x01, byte(len(params) >> 8), byte(len(params)), 0x00, 0x00}
	s7pdu := append(header, params...)
	cotp := append([]byte{0x02, 0xF0, 0x80}, s7pdu...)
	total := 4 + len(cotp)
	tpkt := []byte{0x03, 0x00, byte(total >> 8), byte(total)}
	_ = function
	return append(tpkt, cotp...)
}
