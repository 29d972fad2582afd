// SPDX-License-Identifier: BSD-3-Clause

package connector

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"github.com/mtp-gateway/gateway/pkg/addr"
	"github.com/mtp-gateway/gateway/pkg/tagmodel"
)

// EIPConnector speaks EtherNet/IP encapsulation with unconnected CIP
// messaging, reading and writing a symbolic tag via the Logix
// "Read/Write Tag Service" (0x4C/0x4D) addressed by an ANSI extended
// symbolic segment built from the parsed tag path.
type EIPConnector struct {
	name    string
	host    string
	port    int
	timeout time.Duration

	mu          sync.Mutex
	conn        net.Conn
	sessionID   uint32
	health      *tagmodel.ConnectorHealth
}

// NewEIPConnector creates an EtherNet/IP connector dialing host:port
// (conventionally 44818).
func NewEIPConnector(name, host string, port int) *EIPConnector {
	return &EIPConnector{
		name:    name,
		host:    host,
		port:    port,
		timeout: 3 * time.Second,
		health:  tagmodel.NewConnectorHealth(),
	}
}

func (c *EIPConnector) Name() string                     { return c.name }
func (c *EIPConnector) Health() *tagmodel.ConnectorHealth { return c.health }

func (c *EIPConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", c.host, c.port))
	if err != nil {
		return fmt.Errorf("eip connect %s: %w", c.name, err)
	}

	sid, err := registerSession(conn, c.timeout)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("eip register session %s: %w", c.name, err)
	}

	c.conn = conn
	c.sessionID = sid
	c.health.SetState(tagmodel.ConnectorConnected)
	return nil
}

func (c *EIPConnector) Disconnect(ctx context.Context) error {
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

func registerSession(conn net.Conn, timeout time.Duration) (uint32, error) {
	_ = conn.SetDeadline(time.Now().Add(timeout))
	req := enipHeader(0x0065, 0, make([]byte, 4))
	if _, err := conn.Write(req); err != nil {
		return 0, err
	}
	resp := make([]byte, 24+4)
	if _, err := readFull(conn, resp); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(resp[4:8]), nil
}

func enipHeader(command uint16, sessionID uint32, data []byte) []byte {
	hdr := make([]byte, 24+len(data))
	binary.LittleEndian.PutUint16(hdr[0:2], command)
	binary.LittleEndian.PutUint16(hdr[2:4], uint16(len(data)))
	binary.LittleEndian.PutUint32(hdr[4:8], sessionID)
	copy(hdr[24:], data)
	return hdr
}

func (c *EIPConnector) Read(ctx context.Context, raw string) (any, error) {
	a, err := addr.ParseEIP(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedAddress, err)
	}

	resp, err := c.cipRequest(ctx, 0x4C, a, nil)
	if err != nil {
		c.health.RecordError(err)
		return nil, err
	}
	c.health.RecordSuccess(false)
	if len(resp) < 2 {
		return nil, fmt.Errorf("eip: short CIP read reply")
	}
	dataType := binary.LittleEndian.Uint16(resp[0:2])
	payload := resp[2:]
	return decodeCIPValue(dataType, payload)
}

func (c *EIPConnector) Write(ctx context.Context, raw string, value any) error {
	a, err := addr.ParseEIP(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupportedAddress, err)
	}

	encoded, dataType, err := encodeCIPValue(value)
	if err != nil {
		return fmt.Errorf("eip: %w", err)
	}
	payload := append(binary.LittleEndian.AppendUint16(nil, dataType), encoded...)

	_, err = c.cipRequest(ctx, 0x4D, a, payload)
	if err != nil {
		c.health.RecordError(err)
		return err
	}
	c.health.RecordSuccess(true)
	return nil
}

// cipRequest wraps a CIP service request for the tag path in an
// unconnected SendRRData ENIP command and returns the CIP reply data.
func (c *EIPConnector) cipRequest(ctx context.Context, service byte, a addr.EIPAddress, extra []byte) ([]byte, error) {
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

	path := symbolicPath(a)
	cipMsg := append([]byte{service, byte(len(path) / 2)}, path...)
	cipMsg = append(cipMsg, extra...)

	cpf := buildUnconnectedCPF(cipMsg)
	req := enipHeader(0x006F, c.sessionID, cpf)

	if _, err := c.conn.Write(req); err != nil {
		_ = c.conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("eip write request: %w", err)
	}

	header := make([]byte, 24)
	if _, err := readFull(c.conn, header); err != nil {
		_ = c.conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("eip read header: %w", err)
	}
	length := binary.LittleEndian.Uint16(header[2:4])
	body := make([]byte, length)
	if _, err := readFull(c.conn, body); err != nil {
		_ = c.conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("eip read body: %w", err)
	}

	return extractCIPReplyData(body)
}

// symbolicPath renders an EIPAddress as an ANSI extended symbolic segment
// path: tag name, then each accessor member/array-index/bit as additional
// path segments.
func symbolicPath(a addr.EIPAddress) []byte {
	var path []byte
	path = append(path, ansiSymbol(a.Tag)...)
	for _, acc := range a.Accessors {
		if acc.Member != "" {
			path = append(path, ansiSymbol(acc.Member)...)
		}
		for _, idx := range acc.ArrayIndex {
			path = append(path, 0x28, byte(idx))
		}
	}
	if len(path)%2 != 0 {
		path = append(path, 0x00)
	}
	return path
}

func ansiSymbol(name string) []byte {
	seg := append([]byte{0x91, byte(len(name))}, []byte(name)...)
	if len(seg)%2 != 0 {
		seg = append(seg, 0x00)
	}
	return seg
}

func buildUnconnectedCPF(cipMsg []byte) []byte {
	addrItem := []byte{0x00, 0x00, 0x00, 0x00}
	dataItem := append([]byte{0xB2, 0x00, byte(len(cipMsg)), byte(len(cipMsg) >> 8)}, cipMsg...)
	body := append([]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x02, 0x00}, addrItem...)
	body = append(body, dataItem...)
	return body
}

func extractCIPReplyData(body []byte) ([]byte, error) {
	if len(body) < 8 {
		return nil, fmt.Errorf("eip: short command-specific data")
	}
	itemCount := binary.LittleEndian.Uint16(body[6:8])
	if itemCount < 2 {
		return nil, fmt.Errorf("eip: unexpected CPF item count %d", itemCount)
	}
	offset := 8 + 4 // skip address item header+data (null address item)
	if offset+4 > len(body) {
		return nil, fmt.Errorf("eip: truncated response")
	}
	dataLen := int(binary.LittleEndian.Uint16(body[offset+2 : offset+4]))
	dataStart := offset + 4
	if dataStart+dataLen > len(body) {
		return nil, fmt.Errorf("eip: truncated CIP data")
	}
	cip := body[dataStart : dataStart+dataLen]
	if len(cip) < 4 {
		return nil, fmt.Errorf("eip: short CIP reply")
	}
	status := cip[2]
	if status != 0 {
		return nil, fmt.Errorf("eip: CIP general status 0x%02x", status)
	}
	return cip[4:], nil
}

func decodeCIPValue(dataType uint16, payload []byte) (any, error) {
	switch dataType {
	case 0x00C1: // BOOL
		return len(payload) > 0 && payload[0] != 0, nil
	case 0x00C2, 0x00C3: // SINT/INT
		if len(payload) < 2 {
			return nil, fmt.Errorf("eip: short int payload")
		}
		return int16(binary.LittleEndian.Uint16(payload)), nil
	case 0x00C4: // DINT
		if len(payload) < 4 {
			return nil, fmt.Errorf("eip: short dint payload")
		}
		return int32(binary.LittleEndian.Uint32(payload)), nil
	case 0x00CA: // REAL
		if len(payload) < 4 {
			return nil, fmt.Errorf("eip: short real payload")
		}
		bits := binary.LittleEndian.Uint32(payload)
		return math.Float32frombits(bits), nil
	default:
		return payload, nil
	}
}

func encodeCIPValue(value any) ([]byte, uint16, error) {
	switch v := value.(type) {
	case bool:
		if v {
			return []byte{0x01}, 0x00C1, nil
		}
		return []byte{0x00}, 0x00C1, nil
	case int32:
		return binary.LittleEndian.AppendUint32(nil, uint32(v)), 0x00C4, nil
	case int:
		return binary.LittleEndian.AppendUint32(nil, uint32(v)), 0x00C4, nil
	default:
		return nil, 0, fmt.Errorf("unsupported write value type %T", value)
	}
}
