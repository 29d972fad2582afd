// SPDX-License-Identifier: BSD-3-Clause

package ipc

import "errors"

var (
	// ErrInvalidConfiguration indicates the service configuration is invalid.
	ErrInvalidConfiguration = errors.New("invalid IPC service configuration")
	// ErrServerCreationFailed indicates NATS server creation failed.
	ErrServerCreationFailed = errors.New("failed to create NATS server")
	// ErrServerNotReady indicates the NATS server is not ready for connections.
	ErrServerNotReady = errors.New("NATS server not ready for connections")
	// ErrServerTimeout indicates a server operation timed out.
	ErrServerTimeout = errors.New("NATS server operation timeout")
	// ErrInProcessConnFailed indicates in-process connection creation failed.
	ErrInProcessConnFailed = errors.New("failed to create in-process connection")
	// ErrConnectionNotAvailable indicates no server is available to connect to.
	ErrConnectionNotAvailable = errors.New("connection not available")
	// ErrInvalidServerName indicates an empty or invalid server name.
	ErrInvalidServerName = errors.New("invalid server name")
	// ErrInvalidTimeout indicates a non-positive timeout value.
	ErrInvalidTimeout = errors.New("invalid timeout value")
)
