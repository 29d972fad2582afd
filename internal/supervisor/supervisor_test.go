// SPDX-License-Identifier: BSD-3-Clause

package supervisor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mtp-gateway/gateway/internal/supervisor"
	"github.com/mtp-gateway/gateway/pkg/process"
	"github.com/mtp-gateway/gateway/service/ipc"
)

func TestRunRejectsEmptyName(t *testing.T) {
	s := supervisor.New(supervisor.WithName(""))
	err := s.Run(context.Background(), nil)
	require.ErrorIs(t, err, supervisor.ErrNameEmpty)
}

func TestRunRejectsMissingIPC(t *testing.T) {
	s := supervisor.New(supervisor.WithIDDir(t.TempDir()))
	err := s.Run(context.Background(), nil)
	require.ErrorIs(t, err, supervisor.ErrIPCNil)
}

func TestRunStartsAndStopsWithExternalIPCConn(t *testing.T) {
	bus := ipc.New(ipc.WithServiceName("test-ipc"), ipc.WithDontListen(true))
	busCtx, busCancel := context.WithCancel(context.Background())
	defer busCancel()

	go func() {
		_ = bus.Run(busCtx, nil)
	}()

	require.Eventually(t, func() bool {
		_, err := bus.GetConnProvider().InProcessConn()
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	s := supervisor.New(
		supervisor.WithName("test-gateway"),
		supervisor.WithIDDir(t.TempDir()),
		supervisor.WithDisableBanner(true),
		supervisor.WithTimeout(time.Second),
		supervisor.WithExtraService(process.NewStub("stub-a")),
		supervisor.WithExtraService(process.NewStub("stub-b")),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := s.Run(ctx, bus.GetConnProvider())
	require.NoError(t, err)
}

func TestRunUsesConfiguredID(t *testing.T) {
	bus := ipc.New(ipc.WithServiceName("test-ipc-2"), ipc.WithDontListen(true))
	busCtx, busCancel := context.WithCancel(context.Background())
	defer busCancel()

	go func() {
		_ = bus.Run(busCtx, nil)
	}()

	require.Eventually(t, func() bool {
		_, err := bus.GetConnProvider().InProcessConn()
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	s := supervisor.New(
		supervisor.WithName("test-gateway-2"),
		supervisor.WithID("fixed-instance-id"),
		supervisor.WithDisableBanner(true),
		supervisor.WithTimeout(time.Second),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := s.Run(ctx, bus.GetConnProvider())
	require.NoError(t, err)
}
