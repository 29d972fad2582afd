// SPDX-License-Identifier: BSD-3-Clause

// Package log provides structured logging with dual output to a human-readable
// console writer and OpenTelemetry, built around the standard library's slog
// package. It also provides small adapters so NATS and oversight can log
// through the same slog.Logger as the rest of the gateway.
//
// Basic usage:
//
//	logger := log.NewDefaultLogger()
//	logger.Info("gateway starting", "config", cfgPath)
//
// NATS server integration:
//
//	opts := &server.Options{Logger: log.NewNATSLogger(logger)}
package log
