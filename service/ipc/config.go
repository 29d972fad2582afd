// SPDX-License-Identifier: BSD-3-Clause

package ipc

import (
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

const (
	DefaultServiceName        = "ipc"
	DefaultServiceDescription = "embedded NATS bus for gateway inter-service communication"
	DefaultServiceVersion     = "1.0.0"
	DefaultServerName         = "mtp-gateway-ipc"
	DefaultStoreDir           = "/var/lib/mtp-gateway/ipc"
	DefaultMaxMemory          = int64(64 * 1024 * 1024)
	DefaultMaxStorage         = int64(256 * 1024 * 1024)
	DefaultStartupTimeout     = 5 * time.Second
	DefaultShutdownTimeout    = 5 * time.Second
)

// config holds the embedded NATS server's tunables. Every field has a
// default set in New, so ipc.New() with no options is ready to run.
type config struct {
	serviceName        string
	serviceDescription string
	serviceVersion     string
	serverName         string

	storeDir        string
	enableJetStream bool
	dontListen      bool

	maxMemory  int64
	maxStorage int64

	startupTimeout  time.Duration
	shutdownTimeout time.Duration

	maxConnections              int
	maxControlLine              int32
	maxPayload                  int32
	writeDeadline               time.Duration
	pingInterval                time.Duration
	maxPingsOut                 int
	enableSlowConsumerDetection bool
	slowConsumerThreshold       time.Duration
}

// Validate checks the configuration for obviously invalid values before a
// server is constructed from it.
func (c *config) Validate() error {
	if c.serviceName == "" {
		return ErrInvalidServerName
	}
	if c.startupTimeout <= 0 || c.shutdownTimeout <= 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// ToServerOptions translates the config into NATS server options.
func (c *config) ToServerOptions() *server.Options {
	return &server.Options{
		ServerName:         c.serverName,
		DontListen:         c.dontListen,
		JetStream:          c.enableJetStream,
		StoreDir:           c.storeDir,
		JetStreamMaxMemory: c.maxMemory,
		JetStreamMaxStore:  c.maxStorage,
		MaxConn:            c.maxConnections,
		MaxControlLine:     c.maxControlLine,
		MaxPayload:         c.maxPayload,
		WriteDeadline:      c.writeDeadline,
		PingInterval:       c.pingInterval,
		MaxPingsOut:        c.maxPingsOut,
	}
}

type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

// WithServiceName sets the service's name as reported by Name().
func WithServiceName(name string) Option {
	return optionFunc(func(c *config) { c.serviceName = name })
}

// WithServerName sets the underlying NATS server's identity string.
func WithServerName(name string) Option {
	return optionFunc(func(c *config) { c.serverName = name })
}

// WithStoreDir sets the JetStream storage directory.
func WithStoreDir(dir string) Option {
	return optionFunc(func(c *config) { c.storeDir = dir })
}

// WithDontListen disables the server's TCP listener, leaving only the
// in-process connection provider reachable. Useful for tests that don't
// want to bind a real port.
func WithDontListen(dontListen bool) Option {
	return optionFunc(func(c *config) { c.dontListen = dontListen })
}

// WithJetStream enables or disables JetStream persistence.
func WithJetStream(enabled bool) Option {
	return optionFunc(func(c *config) { c.enableJetStream = enabled })
}

// WithMaxMemory bounds JetStream's in-memory storage.
func WithMaxMemory(bytes int64) Option {
	return optionFunc(func(c *config) { c.maxMemory = bytes })
}

// WithMaxStorage bounds JetStream's on-disk storage.
func WithMaxStorage(bytes int64) Option {
	return optionFunc(func(c *config) { c.maxStorage = bytes })
}

// WithStartupTimeout bounds how long Run waits for the server to become
// ready for connections before failing.
func WithStartupTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) { c.startupTimeout = d })
}

// WithShutdownTimeout bounds how long Run waits for a graceful shutdown
// before the context's error is returned.
func WithShutdownTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) { c.shutdownTimeout = d })
}
