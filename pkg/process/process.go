// SPDX-License-Identifier: BSD-3-Clause

// Package process adapts a service.Service into an oversight.ChildProcess
// so internal/supervisor can run the gateway's services under a
// cirello.io/oversight supervision tree, with panic recovery at the
// boundary between the tree and user code.
package process

import (
	"context"
	"fmt"

	"cirello.io/oversight/v2"
	"github.com/nats-io/nats.go"

	"github.com/mtp-gateway/gateway/service"
)

// New wraps svc as an oversight.ChildProcess. A panic inside svc.Run is
// recovered and returned as an error carrying the service's name, so one
// misbehaving service cannot take down the whole supervision tree.
func New(svc service.Service, ipcConn nats.InProcessConnProvider) oversight.ChildProcess {
	return func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s %w: %v", svc.Name(), ErrServicePanic, r)
			}
		}()

		return svc.Run(ctx, ipcConn)
	}
}

// Stub is a no-op service.Service, used to fill a supervision tree slot
// when the real service is intentionally disabled.
type Stub struct {
	name string
}

// NewStub returns a Stub reporting the given name.
func NewStub(name string) *Stub {
	return &Stub{name: name}
}

// Name returns the stub's configured name.
func (s *Stub) Name() string { return s.name }

// Run returns immediately without doing anything.
func (s *Stub) Run(_ context.Context, _ nats.InProcessConnProvider) error {
	return nil
}
