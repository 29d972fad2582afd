// SPDX-License-Identifier: BSD-3-Clause

// Package ipc runs an embedded NATS server used as the gateway's
// in-process message bus. internal/supervisor starts it first and hands
// every other service.Service a ConnProvider backed by it.
//
//	bus := ipc.New(ipc.WithServiceName("ipc"))
//	go bus.Run(ctx, nil)
//	conn, err := bus.GetConnProvider().InProcessConn()
package ipc
