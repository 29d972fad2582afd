// SPDX-License-Identifier: BSD-3-Clause

package webui

import (
	"fmt"
	"time"
)

// role is one of the three RBAC roles this gateway defines. Permissions
// are fixed per role rather than independently configurable, mirroring the
// fixed ProxyMode set servicemgr validates against.
type role string

const (
	roleOperator role = "operator"
	roleEngineer role = "engineer"
	roleAdmin    role = "admin"
)

func (r role) valid() bool {
	return r == roleOperator || r == roleEngineer || r == roleAdmin
}

// User is one statically configured Web UI account.
type User struct {
	Username     string
	PasswordHash string // bcrypt
	Role         role
}

// NewUser builds a User from a role name ("operator", "engineer", or
// "admin"), the only way to construct one outside this package since role
// itself stays unexported.
func NewUser(username, passwordHash, roleName string) (User, error) {
	r := role(roleName)
	if !r.valid() {
		return User{}, fmt.Errorf("webui: unknown role %q for user %q", roleName, username)
	}
	return User{Username: username, PasswordHash: passwordHash, Role: r}, nil
}

type config struct {
	name              string
	listenAddr        string
	jwtSigningKey     string
	jwtExpiry         time.Duration
	minUpdateInterval time.Duration
	users             []User
	readTimeout       time.Duration
	writeTimeout      time.Duration
	idleTimeout       time.Duration
}

// Option configures a Manager at construction time.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

// WithName sets the service name used for logging and identification.
func WithName(name string) Option {
	return optionFunc(func(c *config) { c.name = name })
}

// WithListenAddr sets the REST/WebSocket listen address, e.g. ":8443".
func WithListenAddr(addr string) Option {
	return optionFunc(func(c *config) { c.listenAddr = addr })
}

// WithJWTSigningKey sets the HMAC key used to sign and verify session
// tokens. It must not be empty in production; Run refuses to start without
// one.
func WithJWTSigningKey(key string) Option {
	return optionFunc(func(c *config) { c.jwtSigningKey = key })
}

// WithJWTExpiry sets how long an issued token remains valid.
func WithJWTExpiry(d time.Duration) Option {
	return optionFunc(func(c *config) { c.jwtExpiry = d })
}

// WithMinUpdateInterval sets the per-tag broadcast coalescing window: the
// broadcaster never emits more than one update per tag inside this
// window, always keeping the most recent value.
func WithMinUpdateInterval(d time.Duration) Option {
	return optionFunc(func(c *config) { c.minUpdateInterval = d })
}

// WithUsers sets the statically configured account list.
func WithUsers(users []User) Option {
	return optionFunc(func(c *config) { c.users = users })
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		name:              "webui",
		listenAddr:        ":8443",
		jwtExpiry:         30 * time.Minute,
		minUpdateInterval: 100 * time.Millisecond,
		readTimeout:       5 * time.Second,
		writeTimeout:      5 * time.Second,
		idleTimeout:       120 * time.Second,
	}
	for _, opt := range opts {
		opt.apply(cfg)
	}
	return cfg
}
