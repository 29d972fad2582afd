// SPDX-License-Identifier: BSD-3-Clause

package cert

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"
)

// Info summarizes a certificate's identity and validity window for display
// or automated expiry checks.
type Info struct {
	Subject        string
	Issuer         string
	NotBefore      time.Time
	NotAfter       time.Time
	DNSNames       []string
	IsCA           bool
	SerialNumber   string
	SignatureAlgo  string
	DaysUntilEnd   int
	ExpiringSoon   bool
	AlreadyExpired bool
}

// Inspect loads a PEM-encoded certificate from certPath and reports its
// subject, validity window, and whether it is expired or close to expiring.
// warnWithin controls how long before expiry ExpiringSoon is set.
func Inspect(certPath string, warnWithin time.Duration) (*Info, error) {
	data, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadCertificateFile, err)
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("%w: no PEM certificate block found in %s", ErrInvalidCertificateOptions, certPath)
	}

	c, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateCertificate, err)
	}

	now := time.Now()
	remaining := c.NotAfter.Sub(now)

	return &Info{
		Subject:        c.Subject.String(),
		Issuer:         c.Issuer.String(),
		NotBefore:      c.NotBefore,
		NotAfter:       c.NotAfter,
		DNSNames:       c.DNSNames,
		IsCA:           c.IsCA,
		SerialNumber:   c.SerialNumber.String(),
		SignatureAlgo:  c.SignatureAlgorithm.String(),
		DaysUntilEnd:   int(remaining.Hours() / 24),
		ExpiringSoon:   remaining > 0 && remaining <= warnWithin,
		AlreadyExpired: remaining <= 0,
	}, nil
}
