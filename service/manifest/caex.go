// SPDX-License-Identifier: BSD-3-Clause

package manifest

import (
	"encoding/xml"
	"fmt"

	"github.com/mtp-gateway/gateway/pkg/daassembly"
)

// caexFile is the AutomationML/CAEX 3.0 root element: a CAEXFile root,
// RoleClassLib, InterfaceClassLib, and InstanceHierarchy containing a
// single PEA_<name> InternalElement with nested DataAssemblies/Services/
// Communication.
type caexFile struct {
	XMLName           xml.Name           `xml:"CAEXFile"`
	SchemaVersion     string             `xml:"SchemaVersion,attr"`
	FileName          string             `xml:"FileName,attr"`
	RoleClassLib      roleClassLib       `xml:"RoleClassLib"`
	InterfaceClassLib interfaceClassLib  `xml:"InterfaceClassLib"`
	InstanceHierarchy instanceHierarchy  `xml:"InstanceHierarchy"`
}

type roleClassLib struct {
	Name       string      `xml:"Name,attr"`
	RoleClass  []roleClass `xml:"RoleClass"`
}

type roleClass struct {
	Name string `xml:"Name,attr"`
}

type interfaceClassLib struct {
	Name           string          `xml:"Name,attr"`
	InterfaceClass []interfaceClass `xml:"InterfaceClass"`
}

type interfaceClass struct {
	Name string `xml:"Name,attr"`
}

type instanceHierarchy struct {
	Name            string          `xml:"Name,attr"`
	InternalElement internalElement `xml:"InternalElement"`
}

type internalElement struct {
	Name             string             `xml:"Name,attr"`
	ID               string             `xml:"ID,attr"`
	Attribute        []caexAttribute    `xml:"Attribute"`
	InternalElements []internalElement  `xml:"InternalElement,omitempty"`
}

type caexAttribute struct {
	Name  string `xml:"Name,attr"`
	Value string `xml:"Value"`
}

func strAttr(name, value string) caexAttribute  { return caexAttribute{Name: name, Value: value} }
func fAttr(name string, v float64) caexAttribute { return caexAttribute{Name: name, Value: fmt.Sprintf("%g", v)} }

// GenerateCAEX renders cfg as an AutomationML/CAEX 3.0 manifest document.
// Attribute names ending in "NodeId" carry the expanded-form NodeId
// strings that must exist in the running address space, by convention.
func GenerateCAEX(cfg Config) ([]byte, error) {
	pea := internalElement{
		Name: fmt.Sprintf("PEA_%s", cfg.PEAName),
		ID:   fmt.Sprintf("PEA_%s", cfg.PEAName),
		Attribute: []caexAttribute{
			strAttr("Name", cfg.PEAName),
			strAttr("Version", cfg.PEAVersion),
			strAttr("Description", cfg.PEADescription),
			strAttr("OPCUAEndpoint", cfg.Endpoint),
			strAttr("NamespaceURI", cfg.NamespaceURI),
		},
	}

	daFolder := internalElement{Name: "DataAssemblies", ID: "DataAssemblies"}
	for _, da := range cfg.DataAssemblies {
		el, err := dataAssemblyElement(cfg, da)
		if err != nil {
			return nil, err
		}
		daFolder.InternalElements = append(daFolder.InternalElements, el)
	}
	pea.InternalElements = append(pea.InternalElements, daFolder)

	svcFolder := internalElement{Name: "Services", ID: "Services"}
	for _, svc := range cfg.Services {
		svcFolder.InternalElements = append(svcFolder.InternalElements, serviceElement(cfg, svc))
	}
	pea.InternalElements = append(pea.InternalElements, svcFolder)

	commFolder := internalElement{
		Name: "Communication",
		ID:   "Communication",
		Attribute: []caexAttribute{
			strAttr("Endpoint", cfg.Endpoint),
			strAttr("NamespaceURI", cfg.NamespaceURI),
		},
	}
	pea.InternalElements = append(pea.InternalElements, commFolder)

	doc := caexFile{
		SchemaVersion: "3.0",
		FileName:      fmt.Sprintf("%s.aml", cfg.PEAName),
		RoleClassLib: roleClassLib{
			Name: "MTPRoleClassLib",
			RoleClass: []roleClass{
				{Name: "PEA"}, {Name: "DataAssembly"}, {Name: "Service"},
			},
		},
		InterfaceClassLib: interfaceClassLib{
			Name:           "MTPInterfaceClassLib",
			InterfaceClass: []interfaceClass{{Name: "OPCUAVariable"}},
		},
		InstanceHierarchy: instanceHierarchy{
			Name:            fmt.Sprintf("%sInstanceHierarchy", cfg.PEAName),
			InternalElement: pea,
		},
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("manifest: marshal CAEX: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

func dataAssemblyElement(cfg Config, da daassembly.Assembly) (internalElement, error) {
	ids, err := daAttributeNodeIDs(cfg, da)
	if err != nil {
		return internalElement{}, err
	}

	el := internalElement{
		Name: da.Name,
		ID:   fmt.Sprintf("PEA_%s.DataAssemblies.%s", cfg.PEAName, da.Name),
		Attribute: []caexAttribute{
			strAttr("Type", string(da.Type)),
		},
	}
	if da.Scale != nil {
		el.Attribute = append(el.Attribute,
			fAttr("ScaleMin", da.Scale.Min),
			fAttr("ScaleMax", da.Scale.Max),
			strAttr("Unit", da.Scale.Unit),
		)
	}

	attrs, err := daassembly.Attributes(da.Type)
	if err != nil {
		return internalElement{}, err
	}
	for _, attr := range attrs {
		el.Attribute = append(el.Attribute, strAttr(attr+"NodeId", ids[attr]))
	}
	return el, nil
}

func serviceElement(cfg Config, svc ServiceInfo) internalElement {
	ids := serviceNodeIDs(cfg, svc)

	el := internalElement{
		Name: svc.Name,
		ID:   fmt.Sprintf("PEA_%s.Services.%s", cfg.PEAName, svc.Name),
		Attribute: []caexAttribute{
			strAttr("ProxyMode", svc.Mode),
		},
	}
	for _, attr := range []string{"CommandOp", "CommandInt", "CommandExt", "StateCur", "StateChannel", "ProcedureCur", "ProcedureReq"} {
		el.Attribute = append(el.Attribute, strAttr(attr+"NodeId", ids[attr]))
	}

	procFolder := internalElement{Name: "Procedures", ID: el.ID + ".Procedures"}
	for _, p := range svc.Procedures {
		procFolder.InternalElements = append(procFolder.InternalElements, internalElement{
			Name: p.Name,
			ID:   fmt.Sprintf("%s.Procedures.%d", el.ID, p.ID),
			Attribute: []caexAttribute{
				strAttr("ProcedureId", fmt.Sprintf("%d", p.ID)),
				strAttr("IsDefault", fmt.Sprintf("%t", p.IsDefault)),
			},
		})
	}
	el.InternalElements = append(el.InternalElements, procFolder)
	return el
}
