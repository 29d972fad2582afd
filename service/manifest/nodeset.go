// SPDX-License-Identifier: BSD-3-Clause

package manifest

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mtp-gateway/gateway/pkg/daassembly"
)

// fixedLastModified is the timestamp written into deterministic NodeSet2
// output, so two generations of the same configuration are byte-identical.
var fixedLastModified = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

type uaNodeSet struct {
	XMLName       xml.Name        `xml:"UANodeSet"`
	Xmlns         string          `xml:"xmlns,attr"`
	LastModified  string          `xml:"LastModified,attr"`
	NamespaceUris nsURIs          `xml:"NamespaceUris"`
	Aliases       aliases         `xml:"Aliases"`
	Objects       []uaObject      `xml:"UAObject"`
	Variables     []uaVariable    `xml:"UAVariable"`
}

type nsURIs struct {
	URI []string `xml:"Uri"`
}

type aliases struct {
	Alias []alias `xml:"Alias"`
}

type alias struct {
	Alias string `xml:"Alias,attr"`
	Value string `xml:",chardata"`
}

type uaObject struct {
	NodeID      string `xml:"NodeId,attr"`
	BrowseName  string `xml:"BrowseName,attr"`
	DisplayName string `xml:"DisplayName"`
}

type uaVariable struct {
	NodeID      string `xml:"NodeId,attr"`
	BrowseName  string `xml:"BrowseName,attr"`
	DataType    string `xml:"DataType,attr"`
	DisplayName string `xml:"DisplayName"`
}

// writeTagBoolAttrs names the DataAssembly attributes attrDataType renders
// as Boolean; it maps the rest onto the String, UInt32 and Double aliases.
var writeTagBoolAttrs = map[string]bool{"WQC": true, "Interlock": true, "Permit": true, "MonPosErr": true, "VFbkOpen": true, "VFbkClose": true}

func attrDataType(attr string) string {
	switch {
	case writeTagBoolAttrs[attr]:
		return "Boolean"
	case attr == "VState0" || attr == "VState1":
		return "String"
	case attr == "OpMode" || attr == "SrcMode" || attr == "ManMode":
		return "UInt32"
	default:
		return "Double"
	}
}

// GenerateNodeSet2 renders cfg as an OPC Foundation UANodeSet XML document.
// In deterministic mode every generated UUID is derived
// from a stable hash of the relevant configuration slice and LastModified
// is fixed, so two generations of the same configuration are
// byte-identical.
func GenerateNodeSet2(cfg Config) ([]byte, error) {
	doc := uaNodeSet{
		Xmlns:         "http://opcfoundation.org/UA/2011/03/UANodeSet.xsd",
		NamespaceUris: nsURIs{URI: []string{cfg.NamespaceURI}},
		Aliases: aliases{Alias: []alias{
			{Alias: "Boolean", Value: "i=1"},
			{Alias: "Int16", Value: "i=4"},
			{Alias: "UInt32", Value: "i=7"},
			{Alias: "Float", Value: "i=10"},
			{Alias: "Double", Value: "i=11"},
			{Alias: "String", Value: "i=12"},
		}},
	}
	if cfg.Deterministic {
		doc.LastModified = fixedLastModified.Format(time.RFC3339)
	} else {
		doc.LastModified = time.Now().UTC().Format(time.RFC3339)
	}

	peaUUID := configUUID(cfg, "PEA")
	doc.Objects = append(doc.Objects, uaObject{
		NodeID:      "ns=1;g=" + peaUUID,
		BrowseName:  fmt.Sprintf("1:PEA_%s", cfg.PEAName),
		DisplayName: cfg.PEAName,
	})

	for _, da := range cfg.DataAssemblies {
		ids, err := daAttributeNodeIDs(cfg, da)
		if err != nil {
			return nil, err
		}
		objUUID := configUUID(cfg, "DA:"+da.Name)
		doc.Objects = append(doc.Objects, uaObject{
			NodeID:      "ns=1;g=" + objUUID,
			BrowseName:  fmt.Sprintf("1:%s", da.Name),
			DisplayName: da.Name,
		})

		attrs, err := daassembly.Attributes(da.Type)
		if err != nil {
			return nil, err
		}
		for _, attr := range attrs {
			doc.Variables = append(doc.Variables, uaVariable{
				NodeID:      toIndex1(ids[attr]),
				BrowseName:  fmt.Sprintf("1:%s.%s", da.Name, attr),
				DataType:    attrDataType(attr),
				DisplayName: attr,
			})
		}
	}

	for _, svc := range cfg.Services {
		ids := serviceNodeIDs(cfg, svc)
		svcUUID := configUUID(cfg, "SVC:"+svc.Name)
		doc.Objects = append(doc.Objects, uaObject{
			NodeID:      "ns=1;g=" + svcUUID,
			BrowseName:  fmt.Sprintf("1:%s", svc.Name),
			DisplayName: svc.Name,
		})
		for _, attr := range []string{"CommandOp", "CommandInt", "CommandExt", "StateCur", "StateChannel", "ProcedureCur", "ProcedureReq"} {
			doc.Variables = append(doc.Variables, uaVariable{
				NodeID:      toIndex1(ids[attr]),
				BrowseName:  fmt.Sprintf("1:%s.%s", svc.Name, attr),
				DataType:    "UInt32",
				DisplayName: attr,
			})
		}
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("manifest: marshal NodeSet2: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// toIndex1 rewrites an expanded nsu=...;s=<path> NodeId into the
// namespace-index-1 string form NodeSet2 files conventionally use, keeping
// the same path identifier the server and manifest both compute.
func toIndex1(expanded string) string {
	for i := 0; i+3 <= len(expanded); i++ {
		if expanded[i:i+3] == ";s=" {
			return "ns=1;s=" + expanded[i+3:]
		}
	}
	return expanded
}

// configUUID derives a stable UUID for seed from cfg's PEA identity, so
// deterministic mode produces byte-identical output for identical
// configuration, by convention, without ever calling uuid.New().
func configUUID(cfg Config, seed string) string {
	data := fmt.Sprintf("%s|%s|%s", cfg.PEAName, cfg.NamespaceURI, seed)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(data)).String()
}
