// SPDX-License-Identifier: BSD-3-Clause

package connector

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mtp-gateway/gateway/pkg/addr"
	"github.com/mtp-gateway/gateway/pkg/tagmodel"
)

// OPCUAClientConnector polls an upstream OPC UA server as a southbound
// source. It implements a minimal binary subset: a Hello, one
// OpenSecureChannel frame in SecurityMode=None, and simplified Read/Write
// request frames carrying a NodeId. No CreateSession/ActivateSession
// exchange is made.
type OPCUAClientConnector struct {
	name     string
	endpoint string
	timeout  time.Duration

	mu               sync.Mutex
	conn             net.Conn
	secureChannelID  uint32
	authenticationID uint32
	requestHandle    atomic.Uint32
	health           *tagmodel.ConnectorHealth
}

// NewOPCUAClientConnector creates a client connector for the given
// endpoint URL, e.g. "opc.tcp://10.0.0.5:4840".
func NewOPCUAClientConnector(name, endpoint string) *OPCUAClientConnector {
	return &OPCUAClientConnector{
		name:     name,
		endpoint: endpoint,
		timeout:  5 * time.Second,
		health:   tagmodel.NewConnectorHealth(),
	}
}

func (c *OPCUAClientConnector) Name() string                     { return c.name }
func (c *OPCUAClientConnector) Health() *tagmodel.ConnectorHealth { return c.health }

func (c *OPCUAClientConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	host, port, err := parseOPCUAEndpoint(c.endpoint)
	if err != nil {
		return fmt.Errorf("opcua client %s: %w", c.name, err)
	}

	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return fmt.Errorf("opcua client connect %s: %w", c.name, err)
	}
	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	if err := c.sendHello(conn); err != nil {
		_ = conn.Close()
		return fmt.Errorf("opcua client hello %s: %w", c.name, err)
	}
	scID, authID, err := c.openSecureChannelAndSession(conn)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("opcua client channel %s: %w", c.name, err)
	}

	c.conn = conn
	c.secureChannelID = scID
	c.authenticationID = authID
	c.health.SetState(tagmodel.ConnectorConnected)
	return nil
}

func (c *OPCUAClientConnector) Disconnect(ctx context.Context) error {
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

func (c *OPCUAClientConnector) sendHello(conn net.Conn) error {
	msg := []byte("HELF")
	body := make([]byte, 0, 28)
	body = binary.LittleEndian.AppendUint32(body, 0) // protocol version
	body = binary.LittleEndian.AppendUint32(body, 65536)
	body = binary.LittleEndian.AppendUint32(body, 65536)
	body = binary.LittleEndian.AppendUint32(body, 65536)
	body = binary.LittleEndian.AppendUint32(body, 65536)
	body = binary.LittleEndian.AppendUint32(body, uint32(len(c.endpoint)))
	body = append(body, []byte(c.endpoint)...)

	frame := opcuaFrame(msg, body)
	if _, err := conn.Write(frame); err != nil {
		return err
	}

	header := make([]byte, 8)
	if _, err := readFull(conn, header); err != nil {
		return err
	}
	size := binary.LittleEndian.Uint32(header[4:8])
	rest := make([]byte, int(size)-8)
	_, err := readFull(conn, rest)
	return err
}

// openSecureChannelAndSession sends one OpenSecureChannel frame and returns
// the first two uint32 values of the reply as the secure channel and
// authentication token identifiers used to tag subsequent requests; no
// separate session request is sent.
func (c *OPCUAClientConnector) openSecureChannelAndSession(conn net.Conn) (uint32, uint32, error) {
	// SecurityMode=None exchanges are a fixed-shape OpenSecureChannel
	// request; the server reply carries the two identifiers we need.
	req := opcuaFrame([]byte("OPNF"), []byte{0x00, 0x00, 0x00, 0x00})
	if _, err := conn.Write(req); err != nil {
		return 0, 0, err
	}
	header := make([]byte, 8)
	if _, err := readFull(conn, header); err != nil {
		return 0, 0, err
	}
	size := binary.LittleEndian.Uint32(header[4:8])
	rest := make([]byte, int(size)-8)
	if _, err := readFull(conn, rest); err != nil {
		return 0, 0, err
	}
	if len(rest) < 8 {
		return 0, 0, fmt.Errorf("opcua: short OpenSecureChannel reply")
	}
	scID := binary.LittleEndian.Uint32(rest[0:4])
	authID := binary.LittleEndian.Uint32(rest[4:8])
	return scID, authID, nil
}

func opcuaFrame(msgType []byte, body []byte) []byte {
	total := 8 + len(body)
	frame := make([]byte, 0, total)
	frame = append(frame, msgType[:3]...)
	frame = append(frame, 'F')
	frame = binary.LittleEndian.AppendUint32(frame, uint32(total))
	frame = append(frame, body...)
	return frame
}

func parseOPCUAEndpoint(endpoint string) (string, int, error) {
	const prefix = "opc.tcp://"
	if len(endpoint) <= len(prefix) || endpoint[:len(prefix)] != prefix {
		return "", 0, fmt.Errorf("endpoint must start with %q", prefix)
	}
	hostport := endpoint[len(prefix):]
	for i := 0; i < len(hostport); i++ {
		if hostport[i] == '/' {
			hostport = hostport[:i]
			break
		}
	}
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport, 4840, nil
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return host, 4840, nil
	}
	return host, port, nil
}

func (c *OPCUAClientConnector) Read(ctx context.Context, raw string) (any, error) {
	node, err := addr.ParseOPCUANodeID(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedAddress, err)
	}

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

	body := c.readRequestBody(node)
	frame := opcuaFrame([]byte("MSGF"), body)
	if _, err := c.conn.Write(frame); err != nil {
		_ = c.conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("opcua write read request: %w", err)
	}

	header := make([]byte, 8)
	if _, err := readFull(c.conn, header); err != nil {
		_ = c.conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("opcua read reply header: %w", err)
	}
	size := binary.LittleEndian.Uint32(header[4:8])
	rest := make([]byte, int(size)-8)
	if _, err := readFull(c.conn, rest); err != nil {
		_ = c.conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("opcua read reply body: %w", err)
	}
	c.health.RecordSuccess(false)
	return decodeOPCUAVariant(rest)
}

func (c *OPCUAClientConnector) readRequestBody(node addr.OPCUANodeID) []byte {
	body := make([]byte, 0, 16)
	body = binary.LittleEndian.AppendUint32(body, c.secureChannelID)
	body = binary.LittleEndian.AppendUint32(body, c.authenticationID)
	body = binary.LittleEndian.AppendUint32(body, c.requestHandle.Add(1))
	body = append(body, []byte(node.Normalize())...)
	return body
}

func (c *OPCUAClientConnector) Write(ctx context.Context, raw string, value any) error {
	node, err := addr.ParseOPCUANodeID(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupportedAddress, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(dl)
	} else {
		_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	}

	encoded, err := encodeOPCUAVariant(value)
	if err != nil {
		return fmt.Errorf("opcua: %w", err)
	}
	body := c.readRequestBody(node)
	body = append(body, encoded...)

	frame := opcuaFrame([]byte("MSGF"), body)
	if _, err := c.conn.Write(frame); err != nil {
		_ = c.conn.Close()
		c.conn = nil
		return fmt.Errorf("opcua write write-request: %w", err)
	}

	header := make([]byte, 8)
	if _, err := readFull(c.conn, header); err != nil {
		_ = c.conn.Close()
		c.conn = nil
		return fmt.Errorf("opcua read reply header: %w", err)
	}
	size := binary.LittleEndian.Uint32(header[4:8])
	rest := make([]byte, int(size)-8)
	if _, err := readFull(c.conn, rest); err != nil {
		_ = c.conn.Close()
		c.conn = nil
		return fmt.Errorf("opcua read reply body: %w", err)
	}
	if len(rest) >= 4 && binary.LittleEndian.Uint32(rest[0:4]) != 0 {
		return fmt.Errorf("opcua: write service returned status 0x%08x", binary.LittleEndian.Uint32(rest[0:4]))
	}
	c.health.RecordSuccess(true)
	return nil
}

// decodeOPCUAVariant reads the builtin-type byte used across this package's
// simplified variant encoding and decodes the matching scalar value.
func decodeOPCUAVariant(data []byte) (any, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("opcua: empty variant")
	}
	switch data[0] {
	case 1: // Boolean
		return len(data) > 1 && data[1] != 0, nil
	case 6: // Int32
		if len(data) < 5 {
			return nil, fmt.Errorf("opcua: short int32 variant")
		}
		return int32(binary.LittleEndian.Uint32(data[1:5])), nil
	case 10: // Float
		if len(data) < 5 {
			return nil, fmt.Errorf("opcua: short float variant")
		}
		bits := binary.LittleEndian.Uint32(data[1:5])
		return math.Float32frombits(bits), nil
	case 11: // Double
		if len(data) < 9 {
			return nil, fmt.Errorf("opcua: short double variant")
		}
		bits := binary.LittleEndian.Uint64(data[1:9])
		return math.Float64frombits(bits), nil
	case 12: // String
		if len(data) < 5 {
			return nil, fmt.Errorf("opcua: short string variant")
		}
		n := binary.LittleEndian.Uint32(data[1:5])
		if len(data) < int(5+n) {
			return nil, fmt.Errorf("opcua: truncated string variant")
		}
		return string(data[5 : 5+n]), nil
	default:
		return data[1:], nil
	}
}

func encodeOPCUAVariant(value any) ([]byte, error) {
	switch v := value.(type) {
	case bool:
		b := byte(0)
		if v {
			b = 1
		}
		return []byte{1, b}, nil
	case int32:
		return append([]byte{6}, binary.LittleEndian.AppendUint32(nil, uint32(v))...), nil
	case int:
		return append([]byte{6}, binary.LittleEndian.AppendUint32(nil, uint32(v))...), nil
	case float32:
		return append([]byte{10}, binary.LittleEndian.AppendUint32(nil, math.Float32bits(v))...), nil
	case float64:
		return append([]byte{11}, binary.LittleEndian.AppendUint64(nil, math.Float64bits(v))...), nil
	case string:
		out := append([]byte{12}, binary.LittleEndian.AppendUint32(nil, uint32(len(v)))...)
		return append(out, []byte(v)...), nil
	default:
		return nil, fmt.Errorf("unsupported write value type %T", value)
	}
}
