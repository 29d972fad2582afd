// SPDX-License-Identifier: BSD-3-Clause

package packml

import "errors"

var (
	// ErrInvalidTransition indicates the requested command is not valid in the current state.
	ErrInvalidTransition = errors.New("invalid packml transition")
	// ErrNotActingState indicates CompleteActingState was called while the machine is in a stable state.
	ErrNotActingState = errors.New("state is not an acting state")
	// ErrUnknownState indicates a state value outside the defined PackML state set.
	ErrUnknownState = errors.New("unknown packml state")
	// ErrUnknownCommand indicates a command value outside the defined PackML command set.
	ErrUnknownCommand = errors.New("unknown packml command")
)
