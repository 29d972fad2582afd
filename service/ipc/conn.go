// SPDX-License-Identifier: BSD-3-Clause

package ipc

import (
	"fmt"
	"net"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// ConnProvider hands out in-process connections to the embedded NATS
// server, blocking until the server is ready or a timeout elapses.
type ConnProvider struct {
	server *server.Server
}

// InProcessConn returns a net.Conn to the embedded server. It blocks up to
// one minute for the server to become ready for connections.
func (p *ConnProvider) InProcessConn() (net.Conn, error) {
	if p.server == nil {
		return nil, ErrConnectionNotAvailable
	}

	if !p.server.ReadyForConnections(time.Minute) {
		return nil, ErrServerNotReady
	}

	conn, err := p.server.InProcessConn()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInProcessConnFailed, err)
	}

	return conn, nil
}
