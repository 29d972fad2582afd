// SPDX-License-Identifier: BSD-3-Clause

package addrspace

import (
	"context"
	"fmt"

	"github.com/mtp-gateway/gateway/pkg/packml"
	"github.com/mtp-gateway/gateway/pkg/quality"
	"github.com/mtp-gateway/gateway/pkg/tagmodel"
)

// HandleWrite is the address space's write-handling callback for
// client-originated writes. It takes no flag telling external writes from
// internal ones: every write it receives is dispatched to the
// CommandOp/ProcedureReq/tag-bound handling, so an internally-sourced write
// (e.g. replaying a snapshot) must not be routed through it.
func (s *Space) HandleWrite(ctx context.Context, nodeID string, value any) error {
	node, ok := s.Node(nodeID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, nodeID)
	}
	if !node.Writable {
		return fmt.Errorf("%w: %s", ErrNotWritable, nodeID)
	}

	s.mu.RLock()
	commandOpService, isCommandOp := s.commandOpOwner[nodeID]
	procedureReqService, isProcedureReq := s.procedureReqOwner[nodeID]
	tagName, isTagNode := s.writableTagOwner[nodeID]
	s.mu.RUnlock()

	switch {
	case isCommandOp:
		return s.handleCommandOpWrite(ctx, commandOpService, value)
	case isProcedureReq:
		return s.handleProcedureReqWrite(procedureReqService, value)
	case isTagNode:
		_, err := s.tagw.WriteTag(ctx, tagName, value)
		return err
	default:
		return fmt.Errorf("%w: %s has no registered write handler", ErrNotWritable, nodeID)
	}
}

// handleCommandOpWrite validates the written integer as a PackML command
// (1..10); on START, any pending procedure requested via ProcedureReq is
// popped and passed through, and ProcedureCur is updated on success.
func (s *Space) handleCommandOpWrite(ctx context.Context, service string, value any) error {
	cmd, err := parseCommandValue(value)
	if err != nil {
		return err
	}

	var procedureID *int
	if cmd == packml.CommandStart {
		s.pendingMu.Lock()
		if id, ok := s.pending[service]; ok {
			procedureID = &id
			delete(s.pending, service)
		}
		s.pendingMu.Unlock()
	}

	result, err := s.svc.SendCommand(ctx, service, cmd, procedureID)
	if err != nil {
		return err
	}
	if !result.Success {
		return result.Err
	}

	if cmd == packml.CommandStart {
		if sn, ok := s.ServiceNodeSet(service); ok {
			if n, ok := s.Node(sn.ProcedureCur); ok {
				if id, err := s.svc.CurrentProcedure(service); err == nil {
					n.set(tagmodel.NewValue(uint32(id), quality.Good))
				}
			}
		}
	}
	return nil
}

// handleProcedureReqWrite stores the requested procedure id as the pending
// selection for service, consumed by the next CommandOp START write.
func (s *Space) handleProcedureReqWrite(service string, value any) error {
	id, err := parseProcedureID(value)
	if err != nil {
		return err
	}
	s.pendingMu.Lock()
	s.pending[service] = id
	s.pendingMu.Unlock()
	return s.svc.RequestProcedure(service, id)
}

func parseCommandValue(raw any) (packml.Command, error) {
	n, err := parseInt(raw)
	if err != nil {
		return 0, fmt.Errorf("addrspace: command value %v is not numeric: %w", raw, err)
	}
	return packml.CommandFromInt(n)
}

func parseProcedureID(raw any) (int, error) {
	return parseInt(raw)
}

func parseInt(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint32:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		return int(v), nil
	case float32:
		return int(v), nil
	default:
		return 0, fmt.Errorf("addrspace: unsupported value type %T", raw)
	}
}
