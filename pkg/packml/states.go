// SPDX-License-Identifier: BSD-3-Clause

package packml

import "strings"

// State is one of the 17 named PackML (ISA-88) service states.
type State int

const (
	StateUndefined State = iota
	StateIdle
	StateStarting
	StateExecute
	StateCompleting
	StateCompleted
	StateHolding
	StateHeld
	StateUnholding
	StateStopping
	StateStopped
	StateAborting
	StateAborted
	StateClearing
	StateSuspending
	StateSuspended
	StateUnsuspending
	StateResetting
)

// completeTrigger is the internal stateless trigger used by
// Machine.CompleteActingState to move an acting state to its stable target.
const completeTrigger = "__complete"

var stateNames = map[State]string{
	StateUndefined:    "UNDEFINED",
	StateIdle:         "IDLE",
	StateStarting:     "STARTING",
	StateExecute:      "EXECUTE",
	StateCompleting:   "COMPLETING",
	StateCompleted:    "COMPLETED",
	StateHolding:      "HOLDING",
	StateHeld:         "HELD",
	StateUnholding:    "UNHOLDING",
	StateStopping:     "STOPPING",
	StateStopped:      "STOPPED",
	StateAborting:     "ABORTING",
	StateAborted:      "ABORTED",
	StateClearing:     "CLEARING",
	StateSuspending:   "SUSPENDING",
	StateSuspended:    "SUSPENDED",
	StateUnsuspending: "UNSUSPENDING",
	StateResetting:    "RESETTING",
}

var namesToState = func() map[string]State {
	m := make(map[string]State, len(stateNames))
	for s, n := range stateNames {
		m[n] = s
	}
	return m
}()

// Valid reports whether s is one of the 17 defined PackML states.
func (s State) Valid() bool {
	_, ok := stateNames[s]
	return ok && s != StateUndefined
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// IsActing reports whether s is one of the ten transient states whose name
// ends in "-ING" — STARTING, COMPLETING, HOLDING, UNHOLDING, STOPPING,
// ABORTING, CLEARING, SUSPENDING, UNSUSPENDING, RESETTING.
func (s State) IsActing() bool {
	return strings.HasSuffix(s.String(), "ING")
}

// AllStates returns every defined state except StateUndefined, ordered by
// declaration order, for callers that need to wire a hook uniformly across
// all of them.
func AllStates() []State {
	return []State{
		StateIdle, StateStarting, StateExecute, StateCompleting, StateCompleted,
		StateHolding, StateHeld, StateUnholding, StateStopping, StateStopped,
		StateAborting, StateAborted, StateClearing, StateSuspending,
		StateSuspended, StateUnsuspending, StateResetting,
	}
}

// ParseState looks up a State by its canonical name.
func ParseState(name string) (State, error) {
	s, ok := namesToState[strings.ToUpper(name)]
	if !ok {
		return StateUndefined, ErrUnknownState
	}
	return s, nil
}

// Command is one of the 10 numbered PackML commands.
type Command int

const (
	CommandReset Command = iota + 1
	CommandStart
	CommandStop
	CommandHold
	CommandUnhold
	CommandSuspend
	CommandUnsuspend
	CommandAbort
	CommandClear
	CommandComplete
)

var commandNames = map[Command]string{
	CommandReset:      "RESET",
	CommandStart:      "START",
	CommandStop:       "STOP",
	CommandHold:       "HOLD",
	CommandUnhold:     "UNHOLD",
	CommandSuspend:    "SUSPEND",
	CommandUnsuspend:  "UNSUSPEND",
	CommandAbort:      "ABORT",
	CommandClear:      "CLEAR",
	CommandComplete:   "COMPLETE",
}

func (c Command) String() string {
	if n, ok := commandNames[c]; ok {
		return n
	}
	return "UNKNOWN"
}

// CommandFromInt decodes a numeric command value as written to a CommandOp
// tag, validating it falls within the defined range 1..10.
func CommandFromInt(v int) (Command, error) {
	c := Command(v)
	if _, ok := commandNames[c]; !ok {
		return 0, ErrUnknownCommand
	}
	return c, nil
}

// completionTarget maps each acting state to the stable state it settles
// into when CompleteActingState succeeds.
var completionTarget = map[State]State{
	StateStarting:     StateExecute,
	StateCompleting:   StateCompleted,
	StateHolding:      StateHeld,
	StateUnholding:    StateExecute,
	StateStopping:     StateStopped,
	StateAborting:     StateAborted,
	StateClearing:     StateStopped,
	StateSuspending:   StateSuspended,
	StateUnsuspending: StateExecute,
	StateResetting:    StateIdle,
}

// transitions is the fixed (state, command) -> state table drawn from
// ISA-88/VDI 2658. The acting states' ABORT and STOP permits are added
// separately in Machine.configure since they are uniform across them.
var transitions = map[State]map[Command]State{
	StateIdle: {
		CommandStart: StateStarting,
		CommandStop:  StateStopping,
		CommandAbort: StateAborting,
	},
	StateExecute: {
		CommandHold:     StateHolding,
		CommandSuspend:  StateSuspending,
		CommandStop:     StateStopping,
		CommandAbort:    StateAborting,
		CommandComplete: StateCompleting,
	},
	StateHeld: {
		CommandUnhold: StateUnholding,
		CommandStop:   StateStopping,
		CommandAbort:  StateAborting,
	},
	StateSuspended: {
		CommandUnsuspend: StateUnsuspending,
		CommandStop:      StateStopping,
		CommandAbort:     StateAborting,
	},
	StateStopped: {
		CommandReset: StateResetting,
		CommandAbort: StateAborting,
	},
	StateCompleted: {
		CommandReset: StateResetting,
		CommandStop:  StateStopping,
		CommandAbort: StateAborting,
	},
	StateAborted: {
		CommandClear: StateClearing,
	},
}
