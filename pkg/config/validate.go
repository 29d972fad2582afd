// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"fmt"

	"github.com/mtp-gateway/gateway/pkg/daassembly"
	"github.com/mtp-gateway/gateway/pkg/tagmodel"
)

// FieldError names one invalid field by its dotted path within the document,
// so `mtpgwd validate` can report every problem, not just the
// first.
type FieldError struct {
	Path   string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// ValidationErrors accumulates every FieldError found during Validate.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "config: no errors"
	}
	s := fmt.Sprintf("config: %d validation error(s)", len(v))
	for _, e := range v {
		s += "\n  - " + e.Error()
	}
	return s
}

// Validate walks every cross-reference in cfg (tag→connector,
// service→tags, data-assembly→tags, interlock→tags) and returns every
// FieldError found, rather than stopping at the first.
func Validate(cfg *GatewayConfig) ValidationErrors {
	var errs ValidationErrors

	if err := CheckSchemaVersion(cfg.SchemaVersion); err != nil {
		errs = append(errs, FieldError{"schema_version", err.Error()})
	}

	connectors := make(map[string]bool, len(cfg.Connectors))
	for i, c := range cfg.Connectors {
		if c.Name == "" {
			errs = append(errs, FieldError{fmt.Sprintf("connectors[%d].name", i), "must not be empty"})
			continue
		}
		if connectors[c.Name] {
			errs = append(errs, FieldError{fmt.Sprintf("connectors[%d].name", i), "duplicate connector name"})
		}
		connectors[c.Name] = true
		if !validProtocol(c.Protocol) {
			errs = append(errs, FieldError{fmt.Sprintf("connectors[%s].protocol", c.Name), fmt.Sprintf("unknown protocol %q", c.Protocol)})
		}
	}

	tags := make(map[string]TagConfig, len(cfg.Tags))
	for i, t := range cfg.Tags {
		path := fmt.Sprintf("tags[%d]", i)
		if t.Name == "" {
			errs = append(errs, FieldError{path + ".name", "must not be empty"})
			continue
		}
		path = fmt.Sprintf("tags[%s]", t.Name)
		if _, dup := tags[t.Name]; dup {
			errs = append(errs, FieldError{path + ".name", "duplicate tag name"})
		}
		tags[t.Name] = t

		if !connectors[t.Connector] {
			errs = append(errs, FieldError{path + ".connector", fmt.Sprintf("references unknown connector %q", t.Connector)})
		}
		if !tagmodel.DataType(t.DataType).Valid() {
			errs = append(errs, FieldError{path + ".data_type", fmt.Sprintf("unknown data type %q", t.DataType)})
		}
	}

	for i, da := range cfg.DataAssemblies {
		path := fmt.Sprintf("data_assemblies[%d]", i)
		if da.Name != "" {
			path = fmt.Sprintf("data_assemblies[%s]", da.Name)
		}
		if !daassembly.Type(da.Type).Valid() {
			errs = append(errs, FieldError{path + ".type", fmt.Sprintf("unknown data assembly type %q", da.Type)})
			continue
		}
		attrs, _ := daassembly.Attributes(daassembly.Type(da.Type))
		known := make(map[string]bool, len(attrs))
		for _, a := range attrs {
			known[a] = true
		}
		for attr, tagName := range da.Bindings {
			if !known[attr] {
				errs = append(errs, FieldError{fmt.Sprintf("%s.bindings.%s", path, attr), fmt.Sprintf("not a valid attribute for type %s", da.Type)})
				continue
			}
			if _, ok := tags[tagName]; !ok {
				errs = append(errs, FieldError{fmt.Sprintf("%s.bindings.%s", path, attr), fmt.Sprintf("references unknown tag %q", tagName)})
			}
		}
		if da.InterlockSourceTag != "" {
			if _, ok := tags[da.InterlockSourceTag]; !ok {
				errs = append(errs, FieldError{path + ".interlock_source_tag", fmt.Sprintf("references unknown tag %q", da.InterlockSourceTag)})
			}
		}
		if daassembly.Type(da.Type) == daassembly.TypeAnaMon && da.HHLimit == nil {
			errs = append(errs, FieldError{path, "AnaMon requires hh_limit/h_limit/l_limit/ll_limit"})
		}
	}

	for i, svc := range cfg.Services {
		path := fmt.Sprintf("services[%d]", i)
		if svc.Name != "" {
			path = fmt.Sprintf("services[%s]", svc.Name)
		}
		if !validProxyMode(svc.Mode) {
			errs = append(errs, FieldError{path + ".mode", fmt.Sprintf("unknown proxy mode %q", svc.Mode)})
		}

		defaults := 0
		for _, p := range svc.Procedures {
			if p.IsDefault {
				defaults++
			}
		}
		if defaults > 1 {
			errs = append(errs, FieldError{path + ".procedures", "at most one procedure may be is_default"})
		}

		requiresProxyTags := svc.Mode == "THIN" || svc.Mode == "HYBRID"
		if requiresProxyTags {
			if svc.CommandOpTag == "" || svc.StateCurTag == "" {
				errs = append(errs, FieldError{path, "THIN/HYBRID services require command_op_tag and state_cur_tag"})
			}
			if t, ok := tags[svc.CommandOpTag]; ok && !t.Writable {
				errs = append(errs, FieldError{path + ".command_op_tag", "must reference a writable tag"})
			}
		}
		if svc.Mode == "THICK" && (svc.CommandOpTag != "" || svc.StateCurTag != "") {
			errs = append(errs, FieldError{path, "THICK services must not reference command_op_tag/state_cur_tag"})
		}

		for state, hooks := range svc.StateHooks {
			for _, h := range hooks {
				if _, ok := tags[h.Tag]; !ok {
					errs = append(errs, FieldError{fmt.Sprintf("%s.state_hooks.%s", path, state), fmt.Sprintf("references unknown tag %q", h.Tag)})
				}
			}
		}
		for j, il := range svc.Interlocks {
			if _, ok := tags[il.SourceTag]; !ok {
				errs = append(errs, FieldError{fmt.Sprintf("%s.interlocks[%d].source_tag", path, j), fmt.Sprintf("references unknown tag %q", il.SourceTag)})
			}
		}
	}

	for _, tagName := range cfg.Safety.WritableTags {
		if _, ok := tags[tagName]; !ok {
			errs = append(errs, FieldError{"safety.writable_tags", fmt.Sprintf("references unknown tag %q", tagName)})
		}
	}
	for tagName := range cfg.Safety.SafeState {
		if _, ok := tags[tagName]; !ok {
			errs = append(errs, FieldError{"safety.safe_state", fmt.Sprintf("references unknown tag %q", tagName)})
		}
	}

	return errs
}

func validProtocol(p string) bool {
	switch p {
	case "modbus-tcp", "modbus-rtu", "s7", "eip", "opcua-client":
		return true
	}
	return false
}

func validProxyMode(m string) bool {
	switch m {
	case "THIN", "THICK", "HYBRID":
		return true
	}
	return false
}
