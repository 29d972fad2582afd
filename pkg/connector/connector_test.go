// SPDX-License-Identifier: BSD-3-Clause

package connector_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mtp-gateway/gateway/pkg/connector"
	"github.com/mtp-gateway/gateway/pkg/tagmodel"
)

func TestMockConnectorReadWrite(t *testing.T) {
	ctx := context.Background()
	c := connector.NewMockConnector("plc1", map[string]any{"40001": uint16(7)})
	require.NoError(t, c.Connect(ctx))

	v, err := c.Read(ctx, "40001")
	require.NoError(t, err)
	require.Equal(t, uint16(7), v)

	require.NoError(t, c.Write(ctx, "40001", uint16(42)))
	v, err = c.Read(ctx, "40001")
	require.NoError(t, err)
	require.Equal(t, uint16(42), v)
	require.True(t, c.Health().Healthy())
}

func TestMockConnectorReadBeforeConnectFails(t *testing.T) {
	c := connector.NewMockConnector("plc1", nil)
	_, err := c.Read(context.Background(), "40001")
	require.ErrorIs(t, err, connector.ErrNotConnected)
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := connector.BackoffConfig{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2, Jitter: 0}
	require.Equal(t, 100*time.Millisecond, b.Next(0))
	require.Equal(t, 200*time.Millisecond, b.Next(1))
	require.Equal(t, 400*time.Millisecond, b.Next(2))
	require.Equal(t, time.Second, b.Next(10), "must cap at Max")
}

func TestRunReconnectLoopSucceedsAfterRetries(t *testing.T) {
	health := tagmodel.NewConnectorHealth()
	attempts := 0
	err := connector.RunReconnectLoop(context.Background(), health, connector.BackoffConfig{
		Initial: time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 1, Jitter: 0,
	}, 10, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
	require.Equal(t, tagmodel.ConnectorConnected, health.State())
}

func TestRunReconnectLoopRespectsCancellation(t *testing.T) {
	health := tagmodel.NewConnectorHealth()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := connector.RunReconnectLoop(ctx, health, connector.BackoffConfig{
		Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1, Jitter: 0,
	}, 10, func(ctx context.Context) error {
		return errors.New("always fails")
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunReconnectLoopGivesUpAfterMaxAttempts(t *testing.T) {
	health := tagmodel.NewConnectorHealth()
	attempts := 0

	err := connector.RunReconnectLoop(context.Background(), health, connector.BackoffConfig{
		Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1, Jitter: 0,
	}, 3, func(ctx context.Context) error {
		attempts++
		return errors.New("always fails")
	})
	require.ErrorIs(t, err, connector.ErrMaxAttemptsExceeded)
	require.Equal(t, 3, attempts)
	require.Equal(t, tagmodel.ConnectorError, health.State())
}
