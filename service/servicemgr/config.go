// SPDX-License-Identifier: BSD-3-Clause

package servicemgr

import (
	"fmt"
	"time"

	"github.com/mtp-gateway/gateway/pkg/packml"
)

// ProxyMode selects how a service's state machine relates to the PLC it
// fronts, by convention.
type ProxyMode string

const (
	// ProxyThick drives the state machine locally and auto-completes acting
	// states; no PLC command/state tags are touched.
	ProxyThick ProxyMode = "THICK"
	// ProxyThin never drives the local state machine directly: commands are
	// written to CommandOpTag and the local state is forced to whatever the
	// PLC reports on StateCurTag.
	ProxyThin ProxyMode = "THIN"
	// ProxyHybrid does both: drives the local machine and writes to the PLC;
	// the PLC-reported state wins if it diverges.
	ProxyHybrid ProxyMode = "HYBRID"
)

// CompareOp is one of the six comparison operators a completion condition
// may use against a tag's current value.
type CompareOp string

const (
	CompareEQ CompareOp = "=="
	CompareNE CompareOp = "!="
	CompareGT CompareOp = ">"
	CompareGE CompareOp = ">="
	CompareLT CompareOp = "<"
	CompareLE CompareOp = "<="
)

// Evaluate applies the operator to (current, reference).
func (op CompareOp) Evaluate(current, reference float64) bool {
	switch op {
	case CompareEQ:
		return current == reference
	case CompareNE:
		return current != reference
	case CompareGT:
		return current > reference
	case CompareGE:
		return current >= reference
	case CompareLT:
		return current < reference
	case CompareLE:
		return current <= reference
	default:
		return false
	}
}

// CompletionCondition is evaluated by the completion monitor while a
// service is in EXECUTE.
type CompletionCondition struct {
	Tag       string
	Op        CompareOp
	Reference float64
}

// Hook is one tag write issued when a service's state machine enters a
// configured state.
type Hook struct {
	Tag   string
	Value any
}

// Procedure is one named recipe a service can run, selected by START.
type Procedure struct {
	ID        int
	Name      string
	IsDefault bool
	// Hooks maps a PackML state to the ordered tag writes executed when the
	// state is entered while this procedure is active.
	Hooks map[packml.State][]Hook
}

// ServiceConfig describes one service's proxy wiring.
type ServiceConfig struct {
	Name     string
	Mode     ProxyMode
	DefaultHooks map[packml.State][]Hook
	Procedures   []Procedure

	// CommandOpTag / StateCurTag are required for THIN and HYBRID.
	CommandOpTag string
	StateCurTag  string

	SelfCompleting      bool
	CompletionCondition *CompletionCondition
	TimeoutS            float64
	TimeoutAction       packml.Command

	// InterlockSourceTags lists the tags whose values the interlock
	// evaluator inspects before permitting START/UNHOLD on this service.
	InterlockSourceTags []string
}

// defaultProcedure returns the configured default procedure, or a synthetic
// id-0 procedure with no hooks when none is marked default.
func (c ServiceConfig) defaultProcedure() Procedure {
	for _, p := range c.Procedures {
		if p.IsDefault {
			return p
		}
	}
	for _, p := range c.Procedures {
		if p.ID == 0 {
			return p
		}
	}
	return Procedure{ID: 0, Name: "default"}
}

func (c ServiceConfig) procedure(id int) (Procedure, bool) {
	for _, p := range c.Procedures {
		if p.ID == id {
			return p, true
		}
	}
	return Procedure{}, false
}

func (c ServiceConfig) validate() error {
	if c.Name == "" {
		return fmt.Errorf("servicemgr: service name cannot be empty")
	}
	switch c.Mode {
	case ProxyThick:
	case ProxyThin, ProxyHybrid:
		if c.CommandOpTag == "" || c.StateCurTag == "" {
			return fmt.Errorf("servicemgr: service %s: THIN/HYBRID requires command_op_tag and state_cur_tag", c.Name)
		}
	default:
		return fmt.Errorf("servicemgr: service %s: unknown proxy mode %q", c.Name, c.Mode)
	}
	return nil
}

// syncInterval is the PLC-state poll cadence for THIN/HYBRID services and
// the completion monitor's wake cadence, both fixed at 100ms by convention.
const syncInterval = 100 * time.Millisecond
