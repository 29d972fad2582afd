// SPDX-License-Identifier: BSD-3-Clause

package supervisor

import (
	"log/slog"
	"time"

	"github.com/mtp-gateway/gateway/pkg/log"
	"github.com/mtp-gateway/gateway/pkg/telemetry"
	"github.com/mtp-gateway/gateway/service"
	"github.com/mtp-gateway/gateway/service/ipc"
)

// config holds the Supervisor's construction-time settings. Every
// service.Service field is dynamically discovered by reflection in
// Run and added to the oversight tree if non-nil, so a deployment that
// only wires a subset of services (e.g. no Web UI) still runs cleanly.
type config struct {
	name string
	id   string

	disableBanner bool
	customBanner  string

	otelSetup func()
	logger    *slog.Logger
	timeout   time.Duration

	idDir string

	ipc             *ipc.IPC
	TagManager      service.Service
	ServiceManager  service.Service
	AlarmDetector   service.Service
	HistoryRecorder service.Service
	WebUI           service.Service

	extraServices []service.Service
}

// Option configures a Supervisor.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

// WithName sets the supervisor's own service name, used as its oversight
// tree's log prefix and as the file name of its persistent ID inside the
// ID directory.
func WithName(name string) Option {
	return optionFunc(func(c *config) { c.name = name })
}

// WithID pins the supervisor's instance ID instead of loading or creating
// one on disk. Mostly useful for tests.
func WithID(id string) Option {
	return optionFunc(func(c *config) { c.id = id })
}

// WithIDDir sets the directory GetOrCreatePersistentID reads/writes the
// instance ID file in.
func WithIDDir(dir string) Option {
	return optionFunc(func(c *config) { c.idDir = dir })
}

// WithDisableBanner suppresses the startup banner log line.
func WithDisableBanner(disable bool) Option {
	return optionFunc(func(c *config) { c.disableBanner = disable })
}

// WithBanner overrides the default startup banner text.
func WithBanner(banner string) Option {
	return optionFunc(func(c *config) { c.customBanner = banner })
}

// WithOtelSetup overrides telemetry initialization, run once at the start
// of Run before the global logger is fetched.
func WithOtelSetup(setup func()) Option {
	return optionFunc(func(c *config) { c.otelSetup = setup })
}

// WithLogger overrides the supervisor's logger.
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(c *config) { c.logger = logger })
}

// WithTimeout bounds how long the oversight tree waits for each child's
// Run to return after the tree's context is canceled before it is
// considered hung.
func WithTimeout(timeout time.Duration) Option {
	return optionFunc(func(c *config) { c.timeout = timeout })
}

// WithIPC supplies the embedded NATS bus every other service connects
// through. Required unless an external ipcConn is passed to Run.
func WithIPC(bus *ipc.IPC) Option {
	return optionFunc(func(c *config) { c.ipc = bus })
}

// WithTagManager wires the tag poller/writer into the supervision tree.
func WithTagManager(svc service.Service) Option {
	return optionFunc(func(c *config) { c.TagManager = svc })
}

// WithServiceManager wires the PackML service engine into the supervision tree.
func WithServiceManager(svc service.Service) Option {
	return optionFunc(func(c *config) { c.ServiceManager = svc })
}

// WithAlarmDetector wires the alarm detector into the supervision tree.
func WithAlarmDetector(svc service.Service) Option {
	return optionFunc(func(c *config) { c.AlarmDetector = svc })
}

// WithHistoryRecorder wires the history recorder into the supervision tree.
func WithHistoryRecorder(svc service.Service) Option {
	return optionFunc(func(c *config) { c.HistoryRecorder = svc })
}

// WithWebUI wires the REST/WebSocket front end into the supervision tree.
func WithWebUI(svc service.Service) Option {
	return optionFunc(func(c *config) { c.WebUI = svc })
}

// WithExtraService adds an additional service.Service beyond the named
// fields above, for deployments that wire in something bespoke.
func WithExtraService(svc service.Service) Option {
	return optionFunc(func(c *config) { c.extraServices = append(c.extraServices, svc) })
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		name:      "mtp-gateway",
		otelSetup: telemetry.DefaultSetup,
		logger:    log.NewDefaultLogger(),
		timeout:   10 * time.Second,
		idDir:     "/var/lib/mtp-gateway",
	}
	for _, opt := range opts {
		opt.apply(cfg)
	}
	return cfg
}
