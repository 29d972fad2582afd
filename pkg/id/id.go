// SPDX-License-Identifier: BSD-3-Clause

// Package id generates and persists the gateway instance identifier: a
// UUID that stays stable across restarts, used as the OPC UA server's
// ApplicationInstance URI suffix and stamped onto audit trail entries so
// log lines from the same deployment correlate even after a process
// restart picks a fresh NATS server ID.
package id

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/mtp-gateway/gateway/pkg/file"
)

// NewID returns a fresh, non-persisted UUID.
func NewID() string {
	return uuid.New().String()
}

// GetOrCreatePersistentID reads the UUID stored at path/name, creating one
// atomically if the file does not yet exist.
func GetOrCreatePersistentID(name, path string) (string, error) {
	fullPath := filepath.Join(path, name)

	if b, err := os.ReadFile(fullPath); err == nil {
		return parseUUID(b)
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %w", ErrFileRead, err)
	}

	if err := os.MkdirAll(path, 0o750); err != nil {
		return "", fmt.Errorf("%w: %w", ErrDirectoryCreation, err)
	}

	newID := uuid.New()
	if err := file.AtomicCreateFile(fullPath, []byte(newID.String()), 0o600); err != nil {
		if errors.Is(err, file.ErrFileAlreadyExists) {
			// Lost a race with another process; read back what it wrote.
			b, readErr := os.ReadFile(fullPath)
			if readErr != nil {
				return "", fmt.Errorf("%w: %w", ErrFileRead, readErr)
			}
			return parseUUID(b)
		}
		return "", err
	}

	return newID.String(), nil
}

// UpdatePersistentID generates a new UUID and overwrites the file at
// path/name with it, returning the new value.
func UpdatePersistentID(name, path string) (string, error) {
	newID := uuid.New()
	fullPath := filepath.Join(path, name)
	if err := file.AtomicUpdateFile(fullPath, []byte(newID.String()), 0o600); err != nil {
		return "", fmt.Errorf("%w: %w", ErrFileUpdate, err)
	}
	return newID.String(), nil
}

func parseUUID(b []byte) (string, error) {
	parsed, err := uuid.ParseBytes(bytes.TrimSpace(b))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidUUID, err)
	}
	return parsed.String(), nil
}
