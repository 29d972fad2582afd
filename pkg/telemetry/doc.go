// SPDX-License-Identifier: BSD-3-Clause

// Package telemetry provides OpenTelemetry setup and distributed tracing
// utilities for the gateway. It configures logging, tracing, and metrics
// providers, and exposes helpers for propagating trace context across the
// NATS event bus that connects the gateway's internal services.
//
// # Basic setup
//
//	func main() {
//		shutdown, err := telemetry.Setup(ctx,
//			telemetry.WithServiceName("mtpgwd"),
//			telemetry.WithOTLPgRPC("localhost:4317"),
//		)
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer shutdown(ctx)
//	}
//
// Services that cannot reach a collector use the NoOp exporter type (the
// default), which sets up providers with no exporter attached, so
// instrumentation calls stay safe and nothing is exported.
package telemetry
