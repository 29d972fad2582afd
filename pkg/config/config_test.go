// SPDX-License-Identifier: BSD-3-Clause

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mtp-gateway/gateway/pkg/config"
)

const validDoc = `
schema_version: "1.0.0"
pea:
  name: Reactor1
connectors:
  - name: plc1
    protocol: modbus-tcp
    host: 10.0.0.5
    port: 502
tags:
  - name: lt101.pv
    connector: plc1
    address: "40001"
    data_type: FLOAT32
  - name: lt101.cmd
    connector: plc1
    address: "40002"
    data_type: FLOAT32
    writable: true
data_assemblies:
  - name: LT101
    type: AnaMon
    bindings:
      V: lt101.pv
    hh_limit: 90.0
    h_limit: 80.0
    l_limit: 10.0
    ll_limit: 5.0
services:
  - name: Feed
    mode: THIN
    command_op_tag: lt101.cmd
    state_cur_tag: lt101.pv
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadParsesValidDocument(t *testing.T) {
	path := writeTemp(t, validDoc)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "Reactor1", cfg.PEA.Name)
	require.Len(t, cfg.Connectors, 1)
	require.Len(t, cfg.Tags, 2)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidateAcceptsValidDocument(t *testing.T) {
	cfg, err := config.Load(writeTemp(t, validDoc))
	require.NoError(t, err)
	errs := config.Validate(cfg)
	require.Empty(t, errs)
}

func TestValidateCatchesUnknownConnectorReference(t *testing.T) {
	cfg := &config.GatewayConfig{
		SchemaVersion: config.SchemaVersion,
		Tags: []config.TagConfig{
			{Name: "t1", Connector: "ghost", DataType: "FLOAT32"},
		},
	}
	errs := config.Validate(cfg)
	require.NotEmpty(t, errs)
	found := false
	for _, e := range errs {
		if e.Path == "tags[t1].connector" {
			found = true
		}
	}
	require.True(t, found, "expected a FieldError for tags[t1].connector, got %+v", errs)
}

func TestValidateAccumulatesMultipleErrors(t *testing.T) {
	cfg := &config.GatewayConfig{
		SchemaVersion: config.SchemaVersion,
		Tags: []config.TagConfig{
			{Name: "t1", Connector: "ghost", DataType: "NOT_A_TYPE"},
		},
		Services: []config.ServiceConfig{
			{Name: "svc", Mode: "BOGUS"},
		},
	}
	errs := config.Validate(cfg)
	require.GreaterOrEqual(t, len(errs), 3, "expects errors for connector, data_type, and mode all at once")
}

func TestValidateRejectsMultipleDefaultProcedures(t *testing.T) {
	cfg := &config.GatewayConfig{
		SchemaVersion: config.SchemaVersion,
		Services: []config.ServiceConfig{
			{
				Name: "svc",
				Mode: "THICK",
				Procedures: []config.ProcedureConfig{
					{ID: 1, Name: "A", IsDefault: true},
					{ID: 2, Name: "B", IsDefault: true},
				},
			},
		},
	}
	errs := config.Validate(cfg)
	found := false
	for _, e := range errs {
		if e.Path == "services[svc].procedures" {
			found = true
		}
	}
	require.True(t, found)
}

func TestValidateRejectsThickServiceWithProxyTags(t *testing.T) {
	cfg := &config.GatewayConfig{
		SchemaVersion: config.SchemaVersion,
		Services: []config.ServiceConfig{
			{Name: "svc", Mode: "THICK", CommandOpTag: "t1"},
		},
	}
	errs := config.Validate(cfg)
	require.NotEmpty(t, errs)
}

func TestValidateRejectsMismatchedSchemaVersion(t *testing.T) {
	cfg := &config.GatewayConfig{SchemaVersion: "0.0.1"}
	errs := config.Validate(cfg)
	require.NotEmpty(t, errs)
	require.Equal(t, "schema_version", errs[0].Path)
}

func TestExportSchemaJSONIncludesVersion(t *testing.T) {
	out, err := config.ExportSchemaJSON()
	require.NoError(t, err)
	require.Contains(t, out, config.SchemaVersion)
}
