// SPDX-License-Identifier: BSD-3-Clause

package tagmgr

import "errors"

var (
	// ErrUnknownTag indicates an operation referenced a tag name that was
	// never registered.
	ErrUnknownTag = errors.New("tagmgr: unknown tag")
	// ErrUnknownConnector indicates a tag referenced a connector name that
	// was never registered.
	ErrUnknownConnector = errors.New("tagmgr: unknown connector")
	// ErrNotWritable indicates a write was attempted on a read-only tag.
	ErrNotWritable = errors.New("tagmgr: tag is not writable")
	// ErrWriteDenied indicates a SafetyController rejected a write.
	ErrWriteDenied = errors.New("tagmgr: write denied by safety controller")
	// ErrAlreadyStarted indicates Run was called twice on the same manager.
	ErrAlreadyStarted = errors.New("tagmgr: already started")
)
