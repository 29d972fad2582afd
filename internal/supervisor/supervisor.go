// Package supervisor boots the gateway's IPC bus and runs every configured
// service.Service under a cirello.io/oversight supervision tree, restarting
// whichever one fails without taking the others down.
//
// It uses the same oversight tree, process.New/nursery wiring, and
// reflect-based discovery of service.Service fields off a config struct
// as the rest of this codebase's supervised services — but with the
// gateway's own roster (tag manager, PackML service engine, alarm
// detector, history recorder, Web UI) instead of a fixed BMC-style one.
// There's no Linux pseudo-filesystem bootstrap or ASCII banner here —
// neither has an equivalent in this domain, so both are left out.
package supervisor

import (
	"context"
	"fmt"
	"reflect"

	"cirello.io/oversight/v2"
	"github.com/arunsworld/nursery"
	"github.com/nats-io/nats.go"

	"github.com/mtp-gateway/gateway/pkg/id"
	"github.com/mtp-gateway/gateway/pkg/log"
	"github.com/mtp-gateway/gateway/pkg/process"
	"github.com/mtp-gateway/gateway/service"
)

const defaultBanner = "mtp-gateway: industrial protocol gateway starting"

// Compile-time assertion that Supervisor implements service.Service, so it
// can itself be nested inside another supervisor if ever needed.
var _ service.Service = (*Supervisor)(nil)

// Supervisor owns the IPC bus and every long-running service.Service the
// gateway is configured with, restarting failed children under an
// oversight tree until its context is canceled.
type Supervisor struct {
	config
}

// New builds a Supervisor from the given options. Callers wire in whichever
// services they have constructed via WithTagManager, WithServiceManager,
// WithAlarmDetector, WithHistoryRecorder, WithWebUI, and WithIPC (or pass
// an external ipcConn to Run instead).
func New(opts ...Option) *Supervisor {
	return &Supervisor{config: *newConfig(opts...)}
}

// Name returns the supervisor's configured name.
func (s *Supervisor) Name() string {
	return s.name
}

// Run starts the IPC bus (if configured), builds an oversight supervision
// tree from every non-nil service.Service field, and runs until ctx is
// canceled. The ipcConn parameter lets a caller supply an external NATS
// in-process connection provider instead of starting an owned IPC bus;
// if both are nil, Run fails with ErrIPCNil.
func (s *Supervisor) Run(ctx context.Context, ipcConn nats.InProcessConnProvider) (err error) {
	if s.name == "" {
		return ErrNameEmpty
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s %w: %v", s.Name(), ErrPanicked, r)
		}
	}()

	s.otelSetup()

	l := log.GetGlobalLogger()
	if s.logger != nil {
		l = s.logger
	}

	if s.id == "" {
		idStr, idErr := id.GetOrCreatePersistentID(s.Name(), s.idDir)
		if idErr != nil {
			l.ErrorContext(ctx, "failed to get/create persistent instance ID, using ephemeral ID", "error", idErr)
			s.id = id.NewID()
		} else {
			s.id = idStr
		}
	}

	if !s.disableBanner {
		if s.customBanner != "" {
			l.Info(s.customBanner)
		} else {
			l.Info(defaultBanner)
		}
		l.InfoContext(ctx, "instance identity", "id", s.id)
	}

	supervisionTree := oversight.New(
		oversight.NeverHalt(),
		oversight.DefaultRestartStrategy(),
		oversight.WithLogger(log.NewOversightLogger(l)),
	)

	if s.ipc == nil && ipcConn == nil {
		return ErrIPCNil
	}

	if s.ipc != nil && ipcConn == nil {
		if addErr := supervisionTree.Add(
			process.New(s.ipc, nil),
			oversight.Transient(),
			oversight.Timeout(s.timeout),
			s.ipc.Name(),
		); addErr != nil {
			return fmt.Errorf("%w %s to tree: %w", ErrAddProcess, s.ipc.Name(), addErr)
		}
	} else {
		stub := process.NewStub("ipc-stub")
		if addErr := supervisionTree.Add(
			process.New(stub, nil),
			oversight.Transient(),
			oversight.Timeout(s.timeout),
			stub.Name(),
		); addErr != nil {
			return fmt.Errorf("%w %s to tree: %w", ErrAddProcess, stub.Name(), addErr)
		}
	}

	supervise := func(ctx context.Context, c chan error) {
		c <- supervisionTree.Start(ctx)
	}

	spawnProcs := func(ctx context.Context, c chan error) {
		var conn nats.InProcessConnProvider
		if ipcConn != nil {
			conn = ipcConn
		} else {
			conn = s.ipc.GetConnProvider()
		}

		configValue := reflect.ValueOf(s.config)
		for i := range configValue.NumField() {
			field := configValue.Field(i)
			if !field.IsValid() || !field.CanInterface() {
				continue
			}
			v := field.Interface()
			if v == nil {
				continue
			}
			svc, ok := v.(service.Service)
			if !ok {
				continue
			}
			if reflect.ValueOf(svc).IsZero() {
				continue
			}
			if err := supervisionTree.Add(
				process.New(svc, conn),
				oversight.Transient(),
				oversight.Timeout(s.timeout),
				svc.Name(),
			); err != nil {
				c <- fmt.Errorf("%w %s to tree: %w", ErrAddProcess, svc.Name(), err)
				return
			}
		}

		for _, svc := range s.extraServices {
			if err := supervisionTree.Add(
				process.New(svc, conn),
				oversight.Transient(),
				oversight.Timeout(s.timeout),
				svc.Name(),
			); err != nil {
				c <- fmt.Errorf("%w %s to tree: %w", ErrAddProcess, svc.Name(), err)
				return
			}
		}
	}

	l.InfoContext(ctx, "starting child routines", "service", s.name)
	return nursery.RunConcurrentlyWithContext(ctx, supervise, spawnProcs)
}
