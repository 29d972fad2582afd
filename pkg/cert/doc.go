// SPDX-License-Identifier: BSD-3-Clause

// Package cert provides X.509 certificate generation and inspection, used
// by the `security generate-cert` and `security check-cert` subcommands;
// no listener of the gateway loads its output. It supports self-signed
// certificates for field deployments with no CA, and Let's Encrypt ACME
// certificates for installations with a public hostname.
//
// Basic usage:
//
//	cfg := cert.NewConfig(cert.WithHostname("gw01.plant.local"))
//	certPEM, keyPEM, err := cert.GenerateSelfsigned(cert.CertificateOptions{
//		Hostname: cfg.Hostname,
//	})
//
// Inspect reports validity and expiry for `security check-cert`.
package cert
