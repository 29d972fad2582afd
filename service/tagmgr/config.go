// SPDX-License-Identifier: BSD-3-Clause

package tagmgr

import (
	"fmt"
	"time"
)

// Default configuration constants.
const (
	DefaultServiceName        = "tagmgr"
	DefaultServiceDescription = "Polls southbound connectors and maintains tag state"
	DefaultServiceVersion     = "1.0.0"
	DefaultPollInterval       = time.Second
)

// Config holds the configuration for the tag manager service.
type Config struct {
	// ServiceName is the name of the service, used in logs and traces.
	ServiceName string
	// ServiceDescription is a human-readable description of the service.
	ServiceDescription string
	// ServiceVersion is the semantic version of the service.
	ServiceVersion string
	// DefaultPollInterval is used for any connector that does not specify
	// its own poll_interval_ms.
	DefaultPollInterval time.Duration
	// Safety, if non-nil, gates every write through its allowlist and rate
	// limiter before it reaches a connector.
	Safety SafetyController
}

// Option configures a Config.
type Option interface {
	apply(*Config)
}

type optionFunc func(*Config)

func (f optionFunc) apply(c *Config) { f(c) }

// WithServiceName sets the service name.
func WithServiceName(name string) Option {
	return optionFunc(func(c *Config) { c.ServiceName = name })
}

// WithDefaultPollInterval sets the fallback poll interval for connectors
// that do not specify their own.
func WithDefaultPollInterval(d time.Duration) Option {
	return optionFunc(func(c *Config) { c.DefaultPollInterval = d })
}

// WithSafetyController installs the write-path gate checked by WriteTag.
func WithSafetyController(s SafetyController) Option {
	return optionFunc(func(c *Config) { c.Safety = s })
}

// NewConfig builds a Config from defaults overridden by opts.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		ServiceName:         DefaultServiceName,
		ServiceDescription:  DefaultServiceDescription,
		ServiceVersion:      DefaultServiceVersion,
		DefaultPollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt.apply(cfg)
	}
	return cfg
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("tagmgr: service name cannot be empty")
	}
	if c.DefaultPollInterval <= 0 {
		return fmt.Errorf("tagmgr: default poll interval must be positive")
	}
	return nil
}
