// SPDX-License-Identifier: BSD-3-Clause

package servicemgr

import "errors"

var (
	// ErrUnknownService indicates a command or lookup referenced a service
	// name that was never registered.
	ErrUnknownService = errors.New("servicemgr: unknown service")
	// ErrInterlocked indicates START or UNHOLD was refused because the
	// interlock evaluator reported the service interlocked.
	ErrInterlocked = errors.New("servicemgr: service is interlocked")
	// ErrAlreadyRegistered indicates RegisterService was called twice for
	// the same name.
	ErrAlreadyRegistered = errors.New("servicemgr: service already registered")
	// ErrAlreadyStarted indicates Run was called twice on the same manager.
	ErrAlreadyStarted = errors.New("servicemgr: already started")
)
