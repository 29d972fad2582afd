// SPDX-License-Identifier: BSD-3-Clause

// Package webui implements the gateway's northbound REST/WebSocket Web
// UI: JWT-authenticated, role-based REST access to tags, services,
// alarms, and history, plus a coalesced WebSocket event feed covering the
// same three domains.
//
// It follows this codebase's usual Config/Option + Name()/Run(ctx, ipcConn)
// shape for a long-running service, using github.com/arunsworld/nursery to
// run the listener and its shutdown watcher concurrently, built on the
// REST/WebSocket/JWT stack this module's go.mod carries: go-chi/chi,
// gorilla/websocket, golang-jwt/jwt, and golang.org/x/crypto/bcrypt.
package webui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/arunsworld/nursery"
	"github.com/nats-io/nats.go"

	"github.com/mtp-gateway/gateway/pkg/log"
	"github.com/mtp-gateway/gateway/service"
)

var _ service.Service = (*Manager)(nil)

// AuditRecorder receives a one-line record of login and command events.
// pkg/audit implements this; nil is a valid, silent no-op, matching
// service/servicemgr's own AuditRecorder contract.
type AuditRecorder interface {
	RecordEvent(ctx context.Context, kind, detail string)
}

type noopAudit struct{}

func (noopAudit) RecordEvent(context.Context, string, string) {}

// Manager is the Web UI service: it owns the HTTP listener, the
// authenticator, the WebSocket hub, and the tag/service/alarm broadcaster.
type Manager struct {
	config

	tags     TagSource
	svc      ServiceSource
	services ServiceNames
	alarms   AlarmSource
	history  HistorySource
	audit    AuditRecorder

	auth        *authenticator
	hub         *hub
	broadcaster *broadcaster
	logger      *slog.Logger
}

// New creates a Manager wired to its collaborators. audit may be nil.
func New(tags TagSource, svc ServiceSource, serviceNames []string, alarms AlarmSource, history HistorySource, audit AuditRecorder, opts ...Option) *Manager {
	cfg := newConfig(opts...)
	if audit == nil {
		audit = noopAudit{}
	}
	logger := log.GetGlobalLogger().With("service", cfg.name)

	m := &Manager{
		config:   *cfg,
		tags:     tags,
		svc:      svc,
		services: nameList(serviceNames),
		alarms:   alarms,
		history:  history,
		audit:    audit,
		logger:   logger,
	}
	m.hub = newHub(logger)
	m.broadcaster = newBroadcaster(cfg.minUpdateInterval, m.hub)
	m.auth = newAuthenticator(cfg.jwtSigningKey, cfg.jwtExpiry, cfg.users)
	return m
}

// Name satisfies the service.Service contract.
func (m *Manager) Name() string { return m.name }

// Run serves the REST/WebSocket surface until ctx is cancelled. It
// subscribes to the Tag Manager and Service Manager so every change reaches
// connected WebSocket clients through the coalescing broadcaster.
func (m *Manager) Run(ctx context.Context, _ nats.InProcessConnProvider) error {
	if m.jwtSigningKey == "" {
		return ErrMissingSigningKey
	}

	unsubTags := m.tags.Subscribe(m.broadcaster.onTagChange)
	defer unsubTags()
	unsubSvc := m.svc.Subscribe(m.broadcaster.onServiceStateChange)
	defer unsubSvc()

	router := m.setupRouter()

	lc := &net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", m.listenAddr)
	if err != nil {
		return fmt.Errorf("webui: listen %s: %w", m.listenAddr, err)
	}

	srv := &http.Server{
		Handler:      router,
		ReadTimeout:  m.readTimeout,
		WriteTimeout: m.writeTimeout,
		IdleTimeout:  m.idleTimeout,
		ErrorLog:     log.NewStdLoggerAt(m.logger, slog.LevelWarn),
	}

	m.logger.InfoContext(ctx, "starting web UI", "addr", m.listenAddr)

	serve := func(ctx context.Context, errChan chan error) {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}
	watch := func(ctx context.Context, errChan chan error) {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), m.writeTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errChan <- err
		}
	}

	if err := nursery.RunConcurrentlyWithContext(ctx, serve, watch); err != nil {
		return err
	}
	return ctx.Err()
}
