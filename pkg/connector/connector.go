// SPDX-License-Identifier: BSD-3-Clause

// Package connector implements the southbound protocol adapters that poll
// and write PLC registers: Modbus TCP/RTU, Siemens S7, Allen-Bradley
// EtherNet/IP, and OPC UA client. Every adapter implements Connector and
// reports its health through tagmodel.ConnectorHealth so the tag manager
// can reconnect with backoff and subscribers can observe connector state.
package connector

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/mtp-gateway/gateway/pkg/tagmodel"
)

var (
	// ErrNotConnected indicates a Read/Write was attempted on a disconnected connector.
	ErrNotConnected = errors.New("connector not connected")
	// ErrUnsupportedAddress indicates the address does not belong to this connector's protocol.
	ErrUnsupportedAddress = errors.New("address not supported by this connector")
	// ErrMaxAttemptsExceeded indicates RunReconnectLoop gave up after exhausting maxAttempts.
	ErrMaxAttemptsExceeded = errors.New("connector: max reconnect attempts exceeded")
)

// Connector is implemented by every southbound protocol adapter.
type Connector interface {
	// Name identifies this connector instance, matching Tag.Connector.
	Name() string
	// Connect establishes the underlying transport. Idempotent: calling it
	// while already connected is a no-op.
	Connect(ctx context.Context) error
	// Disconnect tears down the transport. Idempotent.
	Disconnect(ctx context.Context) error
	// Read fetches the current raw value at addr.
	Read(ctx context.Context, addr string) (any, error)
	// Write pushes a raw value to addr. Returns ErrUnsupportedAddress-wrapping
	// errors for addresses the protocol cannot write.
	Write(ctx context.Context, addr string, value any) error
	// Health returns the connector's shared health tracker.
	Health() *tagmodel.ConnectorHealth
}

// BackoffConfig controls the reconnect loop's exponential backoff with
// jitter, the same shape used throughout the gateway's service-lifecycle
// reconnect code.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64 // fraction of the computed delay, e.g. 0.2 = ±20%
}

// DefaultMaxReconnectAttempts bounds RunReconnectLoop before it gives up and
// leaves the connector in the ERROR state.
const DefaultMaxReconnectAttempts = 10

// DefaultBackoff matches common PLC polling deployments: start at 500ms,
// cap at 30s, double each attempt, with 10% jitter to avoid thundering-herd
// reconnects when many connectors drop at once (e.g. a network blip).
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		Initial:    500 * time.Millisecond,
		Max:        30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

// Next computes the delay for the given attempt (0-based).
func (b BackoffConfig) Next(attempt int) time.Duration {
	d := float64(b.Initial)
	for i := 0; i < attempt; i++ {
		d *= b.Multiplier
	}
	if max := float64(b.Max); d > max {
		d = max
	}
	if b.Jitter > 0 {
		delta := d * b.Jitter
		d += (rand.Float64()*2 - 1) * delta
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// RunReconnectLoop keeps calling connect until it succeeds, ctx is
// cancelled, or maxAttempts consecutive attempts have failed, recording
// each attempt's outcome on health and sleeping between attempts per
// backoff. It returns when connect succeeds, ctx is done (returning
// ctx.Err()), or maxAttempts is exhausted (returning
// ErrMaxAttemptsExceeded and leaving health in the ERROR state).
func RunReconnectLoop(ctx context.Context, health *tagmodel.ConnectorHealth, backoff BackoffConfig, maxAttempts int, connect func(context.Context) error) error {
	health.SetState(tagmodel.ConnectorConnecting)
	attempt := 0
	for {
		if err := connect(ctx); err == nil {
			health.RecordSuccess(false)
			return nil
		} else {
			health.SetState(tagmodel.ConnectorReconnecting)
			health.RecordError(err)
		}

		attempt++
		if maxAttempts > 0 && attempt >= maxAttempts {
			health.SetState(tagmodel.ConnectorError)
			return ErrMaxAttemptsExceeded
		}

		delay := backoff.Next(attempt - 1)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
