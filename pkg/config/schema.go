// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"encoding/json"
	"fmt"
)

// SchemaField describes one documented field in the exported schema, used
// by `mtpgwd schema export` to produce a machine-readable description of
// the configuration document without hand-maintaining a separate JSON
// Schema file alongside the Go structs.
type SchemaField struct {
	Path        string `json:"path"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Schema is the document `mtpgwd schema export` prints.
type Schema struct {
	Version string        `json:"schema_version"`
	Fields  []SchemaField `json:"fields"`
}

// ExportSchema returns the current configuration document's schema
// description. It is hand-maintained alongside GatewayConfig rather than
// reflected, so field descriptions stay human-readable.
func ExportSchema() Schema {
	return Schema{
		Version: SchemaVersion,
		Fields: []SchemaField{
			{"pea.name", "string", "PEA instance name, used as the OPC UA namespace's root folder"},
			{"pea.version", "string", "PEA version string, embedded in generated manifests"},
			{"opcua.endpoint", "string", "northbound OPC UA server bind address, e.g. opc.tcp://0.0.0.0:4840"},
			{"opcua.security_policy", "string", "None|Basic128Rsa15|Basic256|Basic256Sha256"},
			{"connectors[].protocol", "string", "modbus-tcp|modbus-rtu|s7|eip|opcua-client"},
			{"tags[].data_type", "string", "BOOL|INT16|INT32|INT64|UINT16|UINT32|UINT64|FLOAT32|FLOAT64|STRING"},
			{"data_assemblies[].type", "string", "one of the 15 MTP DataAssembly types, e.g. AnaMon, BinVlv, PIDCtrl"},
			{"services[].mode", "string", "THIN|THICK|HYBRID proxy mode"},
			{"safety.max_writes_per_second", "number", "token-bucket refill rate for northbound writes"},
			{"history.flush_interval_ms", "integer", "periodic history flush cadence, default 1000"},
			{"webui.jwt_expiry_minutes", "integer", "issued JWT lifetime"},
		},
	}
}

// ExportSchemaJSON renders ExportSchema as indented JSON, for `mtpgwd
// schema export`.
func ExportSchemaJSON() (string, error) {
	b, err := json.MarshalIndent(ExportSchema(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("config: marshal schema: %w", err)
	}
	return string(b), nil
}

// CheckSchemaVersion reports whether a document's declared schema_version
// matches the binary's SchemaVersion exactly. The gateway does not attempt
// cross-version migration; a mismatch is a hard validation error.
func CheckSchemaVersion(declared string) error {
	if declared == "" {
		return fmt.Errorf("config: schema_version is required (expected %s)", SchemaVersion)
	}
	if declared != SchemaVersion {
		return fmt.Errorf("config: schema_version %q does not match gateway schema %s", declared, SchemaVersion)
	}
	return nil
}
