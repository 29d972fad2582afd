// SPDX-License-Identifier: BSD-3-Clause

package id

import "errors"

var (
	// ErrDirectoryCreation indicates a failure to create the ID storage directory.
	ErrDirectoryCreation = errors.New("failed to create directory for persistent ID storage")
	// ErrFileRead indicates a failure to read the persistent ID file.
	ErrFileRead = errors.New("failed to read persistent ID file")
	// ErrFileUpdate indicates a failure to update the persistent ID file.
	ErrFileUpdate = errors.New("failed to update persistent ID file")
	// ErrInvalidUUID indicates the ID file's content is not a valid UUID.
	ErrInvalidUUID = errors.New("invalid UUID format in persistent ID file")
)
