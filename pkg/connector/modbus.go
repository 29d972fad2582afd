// SPDX-License-Identifier: BSD-3-Clause

package connector

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mtp-gateway/gateway/pkg/addr"
	"github.com/mtp-gateway/gateway/pkg/tagmodel"
)

// ModbusConnector speaks Modbus TCP (MBAP header + PDU) over a single
// persistent connection, serializing requests since the protocol has no
// concept of pipelining without risking response misattribution.
type ModbusConnector struct {
	name    string
	host    string
	port    int
	unit    uint8
	timeout time.Duration

	mu     sync.Mutex
	conn   net.Conn
	txID   atomic.Uint32
	health *tagmodel.ConnectorHealth
}

// NewModbusConnector creates a Modbus TCP connector dialing host:port,
// addressing unit unless an address specifies its own unit: prefix.
func NewModbusConnector(name, host string, port int, unit uint8) *ModbusConnector {
	return &ModbusConnector{
		name:    name,
		host:    host,
		port:    port,
		unit:    unit,
		timeout: 3 * time.Second,
		health:  tagmodel.NewConnectorHealth(),
	}
}

func (c *ModbusConnector) Name() string                       { return c.name }
func (c *ModbusConnector) Health() *tagmodel.ConnectorHealth   { return c.health }

func (c *ModbusConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", c.host, c.port))
	if err != nil {
		return fmt.Errorf("modbus connect %s: %w", c.name, err)
	}
	c.conn = conn
	c.health.SetState(tagmodel.ConnectorConnected)
	return nil
}

func (c *ModbusConnector) Disconnect(ctx context.Context) error {
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

func (c *ModbusConnector) Read(ctx context.Context, raw string) (any, error) {
	a, err := addr.ParseModbus(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedAddress, err)
	}

	unit := c.unit
	if a.HasUnit {
		unit = uint8(a.Unit)
	}

	var fn byte
	switch a.RegisterType {
	case addr.ModbusCoil:
		fn = 0x01
	case addr.ModbusDiscreteInput:
		fn = 0x02
	case addr.ModbusInputRegister:
		fn = 0x04
	case addr.ModbusHoldingRegister:
		fn = 0x03
	default:
		return nil, fmt.Errorf("%w: register type %s", ErrUnsupportedAddress, a.RegisterType)
	}

	count := uint16(1)
	if a.Count > 1 {
		count = uint16(a.Count)
	}

	req := make([]byte, 5)
	req[0] = fn
	binary.BigEndian.PutUint16(req[1:3], uint16(a.Address))
	binary.BigEndian.PutUint16(req[3:5], count)

	resp, err := c.roundTrip(ctx, unit, req)
	if err != nil {
		c.health.RecordError(err)
		return nil, err
	}
	c.health.RecordSuccess(false)

	switch fn {
	case 0x01, 0x02:
		if len(resp) < 2 {
			return nil, fmt.Errorf("modbus: short coil response")
		}
		bit := resp[1]&(1<<uint(a.BitOffset)) != 0
		return bit, nil
	case 0x03, 0x04:
		if len(resp) < 3 {
			return nil, fmt.Errorf("modbus: short register response")
		}
		regs := resp[1:]
		if a.HasBitOffset {
			word := binary.BigEndian.Uint16(regs[0:2])
			return word&(1<<uint(a.BitOffset)) != 0, nil
		}
		if count == 1 {
			return binary.BigEndian.Uint16(regs[0:2]), nil
		}
		out := make([]uint16, count)
		for i := range out {
			out[i] = binary.BigEndian.Uint16(regs[i*2 : i*2+2])
		}
		return out, nil
	}
	return nil, fmt.Errorf("modbus: unreachable function code 0x%02x", fn)
}

func (c *ModbusConnector) Write(ctx context.Context, raw string, value any) error {
	a, err := addr.ParseModbus(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupportedAddress, err)
	}

	unit := c.unit
	if a.HasUnit {
		unit = uint8(a.Unit)
	}

	var req []byte
	switch a.RegisterType {
	case addr.ModbusCoil:
		on, ok := value.(bool)
		if !ok {
			return fmt.Errorf("modbus: coil write requires bool, got %T", value)
		}
		req = make([]byte, 5)
		req[0] = 0x05
		binary.BigEndian.PutUint16(req[1:3], uint16(a.Address))
		if on {
			req[3] = 0xFF
		}
	case addr.ModbusHoldingRegister:
		word, err := toUint16(value)
		if err != nil {
			return fmt.Errorf("modbus: %w", err)
		}
		req = make([]byte, 5)
		req[0] = 0x06
		binary.BigEndian.PutUint16(req[1:3], uint16(a.Address))
		binary.BigEndian.PutUint16(req[3:5], word)
	default:
		return fmt.Errorf("%w: register type %s is not writable", ErrUnsupportedAddress, a.RegisterType)
	}

	_, err = c.roundTrip(ctx, unit, req)
	if err != nil {
		c.health.RecordError(err)
		return err
	}
	c.health.RecordSuccess(true)
	return nil
}

func (c *ModbusConnector) roundTrip(ctx context.Context, unit uint8, pdu []byte) ([]byte, error) {
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

	txID := uint16(c.txID.Add(1))
	header := make([]byte, 7)
	binary.BigEndian.PutUint16(header[0:2], txID)
	binary.BigEndian.PutUint16(header[4:6], uint16(len(pdu)+1))
	header[6] = unit

	if _, err := c.conn.Write(append(header, pdu...)); err != nil {
		_ = c.conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("modbus write request: %w", err)
	}

	respHeader := make([]byte, 7)
	if _, err := readFull(c.conn, respHeader); err != nil {
		_ = c.conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("modbus read header: %w", err)
	}
	length := binary.BigEndian.Uint16(respHeader[4:6])
	if length == 0 || length > 253 {
		return nil, fmt.Errorf("modbus: invalid response length %d", length)
	}
	body := make([]byte, length-1)
	if _, err := readFull(c.conn, body); err != nil {
		_ = c.conn.Close()
		c.conn = nil
		return nil, fmt.Errorf("modbus read body: %w", err)
	}

	if body[0]&0x80 != 0 {
		exCode := byte(0)
		if len(body) > 1 {
			exCode = body[1]
		}
		return nil, fmt.Errorf("modbus: exception response, function 0x%02x code 0x%02x", body[0]&0x7F, exCode)
	}

	return body, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func toUint16(value any) (uint16, error) {
	switch v := value.(type) {
	case uint16:
		return v, nil
	case int:
		return uint16(v), nil
	case int32:
		return uint16(v), nil
	case int64:
		return uint16(v), nil
	case float64:
		return uint16(v), nil
	default:
		return 0, fmt.Errorf("cannot coerce %T to uint16", value)
	}
}
