// SPDX-License-Identifier: BSD-3-Clause

// Package config loads and validates the gateway's single versioned YAML
// configuration document: PEA identity, OPC UA endpoint/security,
// connectors, tags, data assemblies, services, safety policy, and Web UI
// options.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SchemaVersion is the current config document schema's semver, printed by
// `mtpgwd schema version` and embedded in generated example configs.
const SchemaVersion = "1.0.0"

// GatewayConfig is the root configuration document.
type GatewayConfig struct {
	SchemaVersion string `yaml:"schema_version"`

	PEA struct {
		Name        string `yaml:"name"`
		Version     string `yaml:"version"`
		Description string `yaml:"description"`
	} `yaml:"pea"`

	OPCUA OPCUAConfig `yaml:"opcua"`

	Connectors     []ConnectorConfig     `yaml:"connectors"`
	Tags           []TagConfig           `yaml:"tags"`
	DataAssemblies []DataAssemblyConfig  `yaml:"data_assemblies"`
	Services       []ServiceConfig       `yaml:"services"`

	Safety      SafetyConfig      `yaml:"safety"`
	Persistence PersistenceConfig `yaml:"persistence"`
	History     HistoryConfig     `yaml:"history"`
	WebUI       WebUIConfig       `yaml:"webui"`
}

// OPCUAConfig describes the northbound server's identity and security.
type OPCUAConfig struct {
	Endpoint     string `yaml:"endpoint"`
	NamespaceURI string `yaml:"namespace_uri"`

	SecurityPolicy string `yaml:"security_policy"` // None|Basic128Rsa15|Basic256|Basic256Sha256
	SecurityMode   string `yaml:"security_mode"`   // Sign|SignAndEncrypt

	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ConnectorConfig describes one southbound PLC connection.
type ConnectorConfig struct {
	Name     string `yaml:"name"`
	Protocol string `yaml:"protocol"` // modbus-tcp|modbus-rtu|s7|eip|opcua-client

	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Unit is the Modbus slave/unit identifier.
	Unit int `yaml:"unit"`

	// Modbus RTU serial parameters.
	SerialDevice string `yaml:"serial_device"`
	BaudRate     int    `yaml:"baud_rate"`
	Parity       string `yaml:"parity"`
	StopBits     int    `yaml:"stop_bits"`
	ByteSize     int    `yaml:"byte_size"`

	// S7 parameters.
	Rack int `yaml:"rack"`
	Slot int `yaml:"slot"`

	// OPC UA client parameters.
	SecurityPolicy string `yaml:"security_policy"`
	SecurityMode   string `yaml:"security_mode"`
	CertFile       string `yaml:"cert_file"`
	KeyFile        string `yaml:"key_file"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`

	PollIntervalMS int `yaml:"poll_interval_ms"`
	TimeoutMS      int `yaml:"timeout_ms"`
}

// PollInterval returns the configured poll interval, defaulting to 1s.
func (c ConnectorConfig) PollInterval() time.Duration {
	if c.PollIntervalMS <= 0 {
		return time.Second
	}
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// Timeout returns the configured per-operation timeout, defaulting to 2s.
func (c ConnectorConfig) Timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// TagConfig describes one polled/writable point.
type TagConfig struct {
	Name      string  `yaml:"name"`
	Connector string  `yaml:"connector"`
	Address   string  `yaml:"address"`
	DataType  string  `yaml:"data_type"`
	Writable  bool    `yaml:"writable"`
	Gain      float64 `yaml:"gain"`
	Offset    float64 `yaml:"offset"`
	Unit      string  `yaml:"unit"`
	ByteOrder string  `yaml:"byte_order"`
	WordOrder string  `yaml:"word_order"`
}

// DataAssemblyConfig describes one MTP DataAssembly instance.
type DataAssemblyConfig struct {
	Name     string            `yaml:"name"`
	Type     string            `yaml:"type"`
	Bindings map[string]string `yaml:"bindings"`

	ScaleMin *float64 `yaml:"scale_min"`
	ScaleMax *float64 `yaml:"scale_max"`
	Unit     string   `yaml:"unit"`

	State0 string `yaml:"state0"`
	State1 string `yaml:"state1"`

	HHLimit *float64 `yaml:"hh_limit"`
	HLimit  *float64 `yaml:"h_limit"`
	LLimit  *float64 `yaml:"l_limit"`
	LLLimit *float64 `yaml:"ll_limit"`

	InterlockSourceTag string `yaml:"interlock_source_tag"`
}

// ProcedureConfig describes one selectable service procedure.
type ProcedureConfig struct {
	ID        int    `yaml:"id"`
	Name      string `yaml:"name"`
	IsDefault bool   `yaml:"is_default"`
}

// HookConfig is one state-entry tag write.
type HookConfig struct {
	Tag   string `yaml:"tag"`
	Value any    `yaml:"value"`
}

// InterlockBindingConfig gates a service's START/UNHOLD on a source tag.
type InterlockBindingConfig struct {
	SourceTag     string `yaml:"source_tag"`
	RequiredValue any    `yaml:"required_value"`
	Message       string `yaml:"message"`
}

// ServiceConfig describes one PackML-governed service.
type ServiceConfig struct {
	Name string `yaml:"name"`
	Mode string `yaml:"mode"` // THIN|THICK|HYBRID

	Procedures []ProcedureConfig       `yaml:"procedures"`
	StateHooks map[string][]HookConfig `yaml:"state_hooks"`

	CommandOpTag string `yaml:"command_op_tag"`
	StateCurTag  string `yaml:"state_cur_tag"`

	SelfCompleting      bool    `yaml:"self_completing"`
	CompletionTag       string  `yaml:"completion_tag"`
	CompletionOp        string  `yaml:"completion_op"`
	CompletionReference float64 `yaml:"completion_reference"`
	TimeoutS            float64 `yaml:"timeout_s"`
	TimeoutAction       string  `yaml:"timeout_action"`

	Interlocks []InterlockBindingConfig `yaml:"interlocks"`
}

// SafetyConfig is the allowlist/rate-limit/safe-state policy.
type SafetyConfig struct {
	WritableTags       []string         `yaml:"writable_tags"`
	MaxWritesPerSecond float64          `yaml:"max_writes_per_second"`
	Burst              int              `yaml:"burst"`
	SafeState          map[string]any   `yaml:"safe_state"`
}

// PersistenceConfig names the embedded database file.
type PersistenceConfig struct {
	Path string `yaml:"path"`
}

// HistoryConfig tunes the History Recorder.
type HistoryConfig struct {
	FlushIntervalMS int      `yaml:"flush_interval_ms"`
	MaxBufferSize   int      `yaml:"max_buffer_size"`
	IncludeTags     []string `yaml:"include_tags"`
	ExcludeTags     []string `yaml:"exclude_tags"`
}

// WebUIConfig tunes the REST/WebSocket surface.
type WebUIConfig struct {
	ListenAddr          string `yaml:"listen_addr"`
	JWTSigningKey       string `yaml:"jwt_signing_key"`
	JWTExpiryMinutes    int    `yaml:"jwt_expiry_minutes"`
	MinUpdateIntervalMS int    `yaml:"min_update_interval_ms"`

	Users []UserConfig `yaml:"users"`
}

// UserConfig is one statically configured Web UI account.
type UserConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"` // operator|engineer|admin
}

// Load reads and parses the YAML document at path.
func Load(path string) (*GatewayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg GatewayConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}
