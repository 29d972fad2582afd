// SPDX-License-Identifier: BSD-3-Clause

// Package manifest generates the two northbound description documents
// that must carry identical NodeId strings to the running address space
// (service/addrspace): an AutomationML/CAEX 3.0 manifest and an OPC
// Foundation NodeSet2 XML export.
package manifest

import (
	"fmt"

	"github.com/mtp-gateway/gateway/pkg/addr"
	"github.com/mtp-gateway/gateway/pkg/daassembly"
)

// ProcedureInfo is one selectable procedure, for the manifest's per-service
// procedure list.
type ProcedureInfo struct {
	ID        int
	Name      string
	IsDefault bool
}

// ServiceInfo describes one service's manifest metadata: proxy mode and
// procedure list.
type ServiceInfo struct {
	Name       string
	Mode       string // THICK|THIN|HYBRID
	Procedures []ProcedureInfo
}

// Config is the input both generators read; it is exactly the
// configuration slice service/addrspace itself is built from, so the two
// always compute the same NodeId set for the same input.
type Config struct {
	PEAName        string
	PEAVersion     string
	PEADescription string

	Endpoint     string
	NamespaceURI string

	DataAssemblies []daassembly.Assembly
	Services       []ServiceInfo

	// Deterministic, when true, derives every generated UUID from a stable
	// hash of the relevant configuration slice and fixes LastModified,
	// guaranteeing byte-identical NodeSet2 output for identical input.
	Deterministic bool
}

// nodeID computes the same expanded-form NodeId string service/addrspace
// computes for the same path, so the manifest/NodeSet2 and the running
// server's node sets are always equal by construction rather than by
// coincidence.
func nodeID(namespaceURI, path string) string {
	n := addr.OPCUANodeID{HasURI: true, NamespaceURI: namespaceURI, IDType: addr.OPCUAIdentifierString, String: path}
	return n.Normalize()
}

func daAttributeNodeIDs(cfg Config, da daassembly.Assembly) (map[string]string, error) {
	attrs, err := daassembly.Attributes(da.Type)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]string, len(attrs))
	for _, attr := range attrs {
		path := fmt.Sprintf("PEA_%s.DataAssemblies.%s.%s", cfg.PEAName, da.Name, attr)
		ids[attr] = nodeID(cfg.NamespaceURI, path)
	}
	return ids, nil
}

func serviceNodeIDs(cfg Config, svc ServiceInfo) map[string]string {
	base := fmt.Sprintf("PEA_%s.Services.%s", cfg.PEAName, svc.Name)
	ids := map[string]string{}
	for _, attr := range []string{"CommandOp", "CommandInt", "CommandExt", "StateCur", "StateChannel", "ProcedureCur", "ProcedureReq"} {
		ids[attr] = nodeID(cfg.NamespaceURI, base+"."+attr)
	}
	return ids
}

// AllNodeIDs returns every DataAssembly-attribute and service-variable
// NodeId this configuration produces, for contract testing against a
// running address space built from the same configuration, which registers
// each of them. The address space's object, folder and Tags/ nodes are not
// listed here.
func AllNodeIDs(cfg Config) ([]string, error) {
	var ids []string
	for _, da := range cfg.DataAssemblies {
		m, err := daAttributeNodeIDs(cfg, da)
		if err != nil {
			return nil, err
		}
		for _, id := range m {
			ids = append(ids, id)
		}
	}
	for _, svc := range cfg.Services {
		for _, id := range serviceNodeIDs(cfg, svc) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
