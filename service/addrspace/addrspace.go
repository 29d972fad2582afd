// SPDX-License-Identifier: BSD-3-Clause

// Package addrspace implements the OPC UA Address-Space Builder: it
// constructs the deterministic Objects/PEA_<name>/{DataAssemblies,
// Services,Tags,Diagnostics} node hierarchy, computes each variable's
// NodeId with the same string scheme the manifest generator uses, wires
// Tag Manager and Service Manager subscriptions onto those nodes, and
// dispatches external write requests back into the Tag Manager and
// Service Manager.
//
// There's no third-party OPC UA server stack wired into this module, so
// this package models the address space itself — the node tree, its
// values, and the write-handling callback — rather than a wire-level OPC
// UA binary server; service/webui exposes the same tree northbound over
// REST/WebSocket.
package addrspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mtp-gateway/gateway/pkg/addr"
	"github.com/mtp-gateway/gateway/pkg/daassembly"
	"github.com/mtp-gateway/gateway/pkg/log"
	"github.com/mtp-gateway/gateway/pkg/packml"
	"github.com/mtp-gateway/gateway/pkg/tagmodel"
)

var (
	// ErrUnknownNode indicates a write targeted a NodeId the space never
	// registered.
	ErrUnknownNode = errors.New("addrspace: unknown node")
	// ErrNotWritable indicates a write targeted a node the builder never
	// marked writable.
	ErrNotWritable = errors.New("addrspace: node is not writable")
	// ErrAlreadyRegistered indicates a duplicate DataAssembly, Service, or
	// Tag name was registered.
	ErrAlreadyRegistered = errors.New("addrspace: already registered")
)

// writableAttrs is the set of DataAssembly attribute names an external OPC
// UA client may write, per the MTP operator-write convention (VInt/VReq
// request the value/interlock override; SrcMode/OpMode/ManMode switch
// control source).
var writableAttrs = map[string]bool{
	"VInt": true, "VReq": true, "SrcMode": true,
	"OpMode": true, "ManMode": true,
	"SPInt": true,
}

// TagWriter forwards a write-bound node's value to the Tag Manager.
type TagWriter interface {
	WriteTag(ctx context.Context, name string, value any) (bool, error)
}

// ServiceCommander drives a service's state machine and pending-procedure
// slot from CommandOp/ProcedureReq node writes.
type ServiceCommander interface {
	SendCommand(ctx context.Context, service string, cmd packml.Command, procedureID *int) (packml.Result, error)
	RequestProcedure(service string, id int) error
	CurrentProcedure(service string) (int, error)
}

// Node is one variable in the address space.
type Node struct {
	Path     string
	NodeID   string
	Writable bool

	mu    sync.RWMutex
	value tagmodel.Value
}

func (n *Node) set(v tagmodel.Value) {
	n.mu.Lock()
	n.value = v
	n.mu.Unlock()
}

// Value returns the node's last written value.
func (n *Node) Value() tagmodel.Value {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.value
}

// ServiceNodes names the four state-machine nodes the builder retains for
// runtime binding, by convention bindings item 3.
type ServiceNodes struct {
	CommandOp    string
	StateCur     string
	ProcedureCur string
	ProcedureReq string
}

// Space is one PEA's address space.
type Space struct {
	peaName      string
	namespaceURI string

	tagw TagWriter
	svc  ServiceCommander

	logger *slog.Logger

	mu                sync.RWMutex
	nodes             map[string]*Node   // by NodeID
	tagBindings       map[string][]string // tag -> []NodeID (DataAssembly attrs)
	tagNodes          map[string]string   // tag -> NodeID (Tags/ direct variable)
	serviceNodes      map[string]ServiceNodes
	interlockBindings map[string][]string // source tag -> []NodeID ("Interlock" attr nodes)

	commandOpOwner    map[string]string // NodeID -> service name
	procedureReqOwner map[string]string // NodeID -> service name
	writableTagOwner  map[string]string // NodeID -> tag name

	pendingMu sync.Mutex
	pending   map[string]int // service -> procedure id requested via ProcedureReq
}

// New creates an empty Space for the given namespace URI and PEA name.
func New(namespaceURI, peaName string, tagw TagWriter, svc ServiceCommander) *Space {
	return &Space{
		peaName:           peaName,
		namespaceURI:      namespaceURI,
		tagw:              tagw,
		svc:               svc,
		logger:            log.GetGlobalLogger().With("component", "addrspace", "pea", peaName),
		nodes:             make(map[string]*Node),
		tagBindings:       make(map[string][]string),
		tagNodes:          make(map[string]string),
		serviceNodes:      make(map[string]ServiceNodes),
		interlockBindings: make(map[string][]string),
		commandOpOwner:    make(map[string]string),
		procedureReqOwner: make(map[string]string),
		writableTagOwner:  make(map[string]string),
		pending:           make(map[string]int),
	}
}

// NodeID computes the namespace-qualified NodeId string for a dotted path,
// using the same expanded nsu=<uri>;s=<path> scheme the manifest generator
// (service/manifest) uses for the same path.
func (s *Space) NodeID(path string) string {
	n := addr.OPCUANodeID{HasURI: true, NamespaceURI: s.namespaceURI, IDType: addr.OPCUAIdentifierString, String: path}
	return n.Normalize()
}

func (s *Space) register(path string, writable bool) *Node {
	id := s.NodeID(path)
	n := &Node{Path: path, NodeID: id, Writable: writable}
	s.nodes[id] = n
	return n
}

// AddDataAssembly adds one DataAssembly's object and attribute variables
// under DataAssemblies/, by convention and the exhaustive per-type
// attribute sets daassembly defines.
func (s *Space) AddDataAssembly(da daassembly.Assembly) error {
	if err := da.Validate(); err != nil {
		return err
	}
	attrs, err := daassembly.Attributes(da.Type)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	basePath := fmt.Sprintf("PEA_%s.DataAssemblies.%s", s.peaName, da.Name)
	if _, exists := s.nodes[s.NodeID(basePath)]; exists {
		return fmt.Errorf("%w: data assembly %s", ErrAlreadyRegistered, da.Name)
	}
	s.register(basePath, false)

	for _, attr := range attrs {
		path := fmt.Sprintf("%s.%s", basePath, attr)
		node := s.register(path, writableAttrs[attr])

		tagName, bound := da.Bindings[attr]
		if !bound {
			continue
		}
		s.tagBindings[tagName] = append(s.tagBindings[tagName], node.NodeID)
		if writableAttrs[attr] {
			s.writableTagOwner[node.NodeID] = tagName
		}
		if attr == "Interlock" && da.Interlock != nil {
			s.interlockBindings[da.Interlock.SourceTag] = append(s.interlockBindings[da.Interlock.SourceTag], node.NodeID)
		}
	}
	return nil
}

// AddService adds one service's state-machine object (CommandOp,
// CommandInt, CommandExt, StateCur, StateChannel, ProcedureCur,
// ProcedureReq) plus its Parameters/ReportValues/Procedures sub-folders,
// by convention.
func (s *Space) AddService(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.serviceNodes[name]; exists {
		return fmt.Errorf("%w: service %s", ErrAlreadyRegistered, name)
	}

	base := fmt.Sprintf("PEA_%s.Services.%s", s.peaName, name)
	s.register(base, false)
	for _, folder := range []string{"Parameters", "ReportValues", "Procedures"} {
		s.register(base+"."+folder, false)
	}

	commandOp := s.register(base+".CommandOp", true)
	s.register(base+".CommandInt", false)
	s.register(base+".CommandExt", false)
	stateCur := s.register(base+".StateCur", false)
	s.register(base+".StateChannel", false)
	procedureCur := s.register(base+".ProcedureCur", false)
	procedureReq := s.register(base+".ProcedureReq", true)

	s.serviceNodes[name] = ServiceNodes{
		CommandOp:    commandOp.NodeID,
		StateCur:     stateCur.NodeID,
		ProcedureCur: procedureCur.NodeID,
		ProcedureReq: procedureReq.NodeID,
	}
	s.commandOpOwner[commandOp.NodeID] = name
	s.procedureReqOwner[procedureReq.NodeID] = name
	return nil
}

// AddTag adds a direct per-tag variable under Tags/, independent of any
// DataAssembly binding.
func (s *Space) AddTag(tagName string, writable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := fmt.Sprintf("PEA_%s.Tags.%s", s.peaName, tagName)
	id := s.NodeID(path)
	if _, exists := s.nodes[id]; exists {
		return fmt.Errorf("%w: tag %s", ErrAlreadyRegistered, tagName)
	}
	node := s.register(path, writable)
	s.tagNodes[tagName] = node.NodeID
	if writable {
		s.writableTagOwner[node.NodeID] = tagName
	}
	return nil
}

// Node looks up a registered node by NodeId.
func (s *Space) Node(nodeID string) (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[nodeID]
	return n, ok
}

// TagBindings returns the tag -> bound DataAssembly attribute NodeId
// mapping, read by the manifest generator and by tests.
func (s *Space) TagBindings() map[string][]string { return copyStrSlice(s.snapshot().tagBindings) }

// TagNodes returns the tag -> direct Tags/ variable NodeId mapping.
func (s *Space) TagNodes() map[string]string { return copyStr(s.snapshot().tagNodes) }

// ServiceNodeSet returns the retained state-machine NodeIds for a service.
func (s *Space) ServiceNodeSet(name string) (ServiceNodes, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sn, ok := s.serviceNodes[name]
	return sn, ok
}

// InterlockBindings returns the source-tag -> interlock-node NodeId mapping.
func (s *Space) InterlockBindings() map[string][]string { return copyStrSlice(s.snapshot().interlockBindings) }

type snap struct {
	tagBindings       map[string][]string
	tagNodes          map[string]string
	interlockBindings map[string][]string
}

func (s *Space) snapshot() snap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snap{tagBindings: s.tagBindings, tagNodes: s.tagNodes, interlockBindings: s.interlockBindings}
}

func copyStr(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyStrSlice(m map[string][]string) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, v := range m {
		cp := make([]string, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}
