// SPDX-License-Identifier: BSD-3-Clause

package supervisor

import "errors"

var (
	// ErrNameEmpty indicates the supervisor was constructed without a name.
	ErrNameEmpty = errors.New("supervisor name must not be empty")
	// ErrIPCNil indicates neither an IPC bus nor an external connection
	// provider was supplied to Run.
	ErrIPCNil = errors.New("no IPC bus configured and no external ipcConn provided")
	// ErrPanicked wraps a panic recovered from the supervisor's own Run method.
	ErrPanicked = errors.New("panicked")
	// ErrAddProcess indicates a child process could not be added to the
	// oversight tree.
	ErrAddProcess = errors.New("failed to add process")
)
