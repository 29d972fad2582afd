// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"fmt"
	"time"

	"github.com/mtp-gateway/gateway/pkg/audit"
	"github.com/mtp-gateway/gateway/pkg/config"
	"github.com/mtp-gateway/gateway/pkg/connector"
	"github.com/mtp-gateway/gateway/pkg/daassembly"
	"github.com/mtp-gateway/gateway/pkg/packml"
	"github.com/mtp-gateway/gateway/pkg/safety"
	"github.com/mtp-gateway/gateway/pkg/tagmodel"
	"github.com/mtp-gateway/gateway/service/addrspace"
	"github.com/mtp-gateway/gateway/service/alarm"
	"github.com/mtp-gateway/gateway/service/history"
	"github.com/mtp-gateway/gateway/service/manifest"
	"github.com/mtp-gateway/gateway/service/persistence"
	"github.com/mtp-gateway/gateway/service/servicemgr"
	"github.com/mtp-gateway/gateway/service/tagmgr"
	"github.com/mtp-gateway/gateway/service/webui"
)

// ErrUnsupportedProtocol indicates a connector's protocol has no wired
// implementation (currently only modbus-rtu, which has no serial driver).
var ErrUnsupportedProtocol = fmt.Errorf("connector protocol not implemented")

// buildConnector constructs the southbound connector named by cfg, using
// the only field set its protocol needs.
func buildConnector(cfg config.ConnectorConfig) (connector.Connector, error) {
	switch cfg.Protocol {
	case "modbus-tcp":
		return connector.NewModbusConnector(cfg.Name, cfg.Host, cfg.Port, uint8(cfg.Unit)), nil
	case "s7":
		return connector.NewS7Connector(cfg.Name, cfg.Host, cfg.Port, cfg.Rack, cfg.Slot), nil
	case "eip":
		return connector.NewEIPConnector(cfg.Name, cfg.Host, cfg.Port), nil
	case "opcua-client":
		return connector.NewOPCUAClientConnector(cfg.Name, cfg.Host), nil
	default:
		return nil, fmt.Errorf("%w: %q (connector %q)", ErrUnsupportedProtocol, cfg.Protocol, cfg.Name)
	}
}

// buildTag converts one configured tag into a tagmodel.Tag, applying a
// scale transform only when gain or offset is non-default.
func buildTag(cfg config.TagConfig) tagmodel.Tag {
	t := tagmodel.Tag{
		Name:      cfg.Name,
		Connector: cfg.Connector,
		Address:   cfg.Address,
		DataType:  tagmodel.DataType(cfg.DataType),
		Writable:  cfg.Writable,
		Unit:      cfg.Unit,
		ByteOrder: tagmodel.ByteOrder(cfg.ByteOrder),
		WordOrder: tagmodel.WordOrder(cfg.WordOrder),
	}
	if cfg.Gain != 0 || cfg.Offset != 0 {
		t.Scale = &tagmodel.ScaleConfig{Gain: cfg.Gain, Offset: cfg.Offset}
		if cfg.Gain == 0 {
			t.Scale.Gain = 1
		}
	}
	return t
}

// buildAssembly converts one configured DataAssembly into its daassembly
// form, the shared input service/addrspace and service/manifest both
// build their node sets from.
func buildAssembly(cfg config.DataAssemblyConfig) daassembly.Assembly {
	a := daassembly.Assembly{
		Name:     cfg.Name,
		Type:     daassembly.Type(cfg.Type),
		Bindings: cfg.Bindings,
	}
	if cfg.ScaleMin != nil && cfg.ScaleMax != nil {
		a.Scale = &daassembly.ScaleRange{Min: *cfg.ScaleMin, Max: *cfg.ScaleMax, Unit: cfg.Unit}
	}
	if cfg.State0 != "" || cfg.State1 != "" {
		a.States = &daassembly.StateTexts{State0: cfg.State0, State1: cfg.State1}
	}
	if cfg.HHLimit != nil || cfg.HLimit != nil || cfg.LLimit != nil || cfg.LLLimit != nil {
		limits := &daassembly.MonitorLimits{}
		if cfg.HHLimit != nil {
			limits.HH = *cfg.HHLimit
		}
		if cfg.HLimit != nil {
			limits.H = *cfg.HLimit
		}
		if cfg.LLimit != nil {
			limits.L = *cfg.LLimit
		}
		if cfg.LLLimit != nil {
			limits.LL = *cfg.LLLimit
		}
		a.Limits = limits
	}
	if cfg.InterlockSourceTag != "" {
		a.Interlock = &daassembly.InterlockBinding{SourceTag: cfg.InterlockSourceTag}
	}
	return a
}

// parseTimeoutAction maps a configured timeout action name to its
// packml.Command, defaulting to ABORT when unset.
func parseTimeoutAction(name string) (packml.Command, error) {
	switch name {
	case "", "ABORT":
		return packml.CommandAbort, nil
	case "STOP":
		return packml.CommandStop, nil
	case "HOLD":
		return packml.CommandHold, nil
	default:
		return 0, fmt.Errorf("servicemgr: unknown timeout_action %q", name)
	}
}

// buildServiceConfig converts one configured service into servicemgr's
// ServiceConfig, translating its state-keyed hook map and procedure list.
func buildServiceConfig(cfg config.ServiceConfig) (servicemgr.ServiceConfig, error) {
	out := servicemgr.ServiceConfig{
		Name:           cfg.Name,
		Mode:           servicemgr.ProxyMode(cfg.Mode),
		CommandOpTag:   cfg.CommandOpTag,
		StateCurTag:    cfg.StateCurTag,
		SelfCompleting: cfg.SelfCompleting,
		TimeoutS:       cfg.TimeoutS,
	}

	defaultHooks := make(map[packml.State][]servicemgr.Hook, len(cfg.StateHooks))
	for stateName, hooks := range cfg.StateHooks {
		st, err := packml.ParseState(stateName)
		if err != nil {
			return servicemgr.ServiceConfig{}, fmt.Errorf("service %q: %w", cfg.Name, err)
		}
		converted := make([]servicemgr.Hook, 0, len(hooks))
		for _, h := range hooks {
			converted = append(converted, servicemgr.Hook{Tag: h.Tag, Value: h.Value})
		}
		defaultHooks[st] = converted
	}
	out.DefaultHooks = defaultHooks

	procedures := make([]servicemgr.Procedure, 0, len(cfg.Procedures))
	for _, p := range cfg.Procedures {
		procedures = append(procedures, servicemgr.Procedure{
			ID:        p.ID,
			Name:      p.Name,
			IsDefault: p.IsDefault,
			Hooks:     defaultHooks,
		})
	}
	out.Procedures = procedures

	if cfg.CompletionTag != "" {
		op := servicemgr.CompareOp(cfg.CompletionOp)
		out.CompletionCondition = &servicemgr.CompletionCondition{
			Tag:       cfg.CompletionTag,
			Op:        op,
			Reference: cfg.CompletionReference,
		}
	}

	action, err := parseTimeoutAction(cfg.TimeoutAction)
	if err != nil {
		return servicemgr.ServiceConfig{}, err
	}
	out.TimeoutAction = action

	sourceTags := make([]string, 0, len(cfg.Interlocks))
	for _, ib := range cfg.Interlocks {
		sourceTags = append(sourceTags, ib.SourceTag)
	}
	out.InterlockSourceTags = sourceTags

	return out, nil
}

// buildSafetyConfig converts the document's safety policy and every
// service's interlock bindings into pkg/safety's Config shape.
func buildSafetyConfig(cfg *config.GatewayConfig) safety.Config {
	writable := make(map[string]bool, len(cfg.Safety.WritableTags))
	for _, t := range cfg.Safety.WritableTags {
		writable[t] = true
	}

	interlocks := make(map[string][]safety.InterlockBinding, len(cfg.Services))
	for _, svc := range cfg.Services {
		if len(svc.Interlocks) == 0 {
			continue
		}
		bindings := make([]safety.InterlockBinding, 0, len(svc.Interlocks))
		for _, ib := range svc.Interlocks {
			bindings = append(bindings, safety.InterlockBinding{
				SourceTag:     ib.SourceTag,
				RequiredValue: ib.RequiredValue,
				Message:       ib.Message,
			})
		}
		interlocks[svc.Name] = bindings
	}

	return safety.Config{
		WritableTags:       writable,
		MaxWritesPerSecond: cfg.Safety.MaxWritesPerSecond,
		Burst:              cfg.Safety.Burst,
		SafeState:          cfg.Safety.SafeState,
		Interlocks:         interlocks,
	}
}

// buildManifestConfig converts the document into service/manifest's input
// shape, the same slice service/addrspace is built from so both compute
// identical NodeIds.
func buildManifestConfig(cfg *config.GatewayConfig, deterministic bool) (manifest.Config, error) {
	assemblies := make([]daassembly.Assembly, 0, len(cfg.DataAssemblies))
	for _, da := range cfg.DataAssemblies {
		assemblies = append(assemblies, buildAssembly(da))
	}

	services := make([]manifest.ServiceInfo, 0, len(cfg.Services))
	for _, svc := range cfg.Services {
		procs := make([]manifest.ProcedureInfo, 0, len(svc.Procedures))
		for _, p := range svc.Procedures {
			procs = append(procs, manifest.ProcedureInfo{ID: p.ID, Name: p.Name, IsDefault: p.IsDefault})
		}
		services = append(services, manifest.ServiceInfo{Name: svc.Name, Mode: svc.Mode, Procedures: procs})
	}

	return manifest.Config{
		PEAName:        cfg.PEA.Name,
		PEAVersion:     cfg.PEA.Version,
		PEADescription: cfg.PEA.Description,
		Endpoint:       cfg.OPCUA.Endpoint,
		NamespaceURI:   cfg.OPCUA.NamespaceURI,
		DataAssemblies: assemblies,
		Services:       services,
		Deterministic:  deterministic,
	}, nil
}

// gateway bundles every top-level service the supervisor runs, plus the
// persistence store the supervisor's caller owns the lifetime of.
type gateway struct {
	tags     *tagmgr.Manager
	services *servicemgr.Manager
	alarms   *alarm.Manager
	history  *history.Manager
	webui    *webui.Manager
	space    *addrspace.Space
	store    *persistence.Store
}

// buildGateway converts a loaded, validated GatewayConfig into the full set
// of wired domain objects: connectors, tags, data assemblies, services,
// safety policy, persistence, and the address space each of them binds to.
func buildGateway(cfg *config.GatewayConfig) (*gateway, error) {
	store, err := persistence.Open(cfg.Persistence.Path)
	if err != nil {
		return nil, fmt.Errorf("gateway: open persistence store: %w", err)
	}

	trail := audit.NewTrail(1000)

	safetyCfg := buildSafetyConfig(cfg)

	tagMgr := tagmgr.New(tagmgr.WithServiceName("tagmgr"))
	safetyCtl := safety.NewController(safetyCfg, tagMgr)
	tagMgr.SetSafetyController(safetyCtl)

	for _, cc := range cfg.Connectors {
		conn, err := buildConnector(cc)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		tagMgr.RegisterConnector(cc.Name, conn, cc.PollInterval())
	}
	for _, tc := range cfg.Tags {
		if err := tagMgr.RegisterTag(buildTag(tc)); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("gateway: register tag %s: %w", tc.Name, err)
		}
	}

	svcMgr := servicemgr.New(cfg.PEA.Name+"-services", servicemgr.Deps{
		TagWriter:  tagMgr,
		Interlocks: safetyCtl,
		SafeState:  safetyCtl,
		Audit:      trail,
		Snapshots:  store,
	})
	for _, sc := range cfg.Services {
		built, err := buildServiceConfig(sc)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		if err := svcMgr.RegisterService(built); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("gateway: register service %s: %w", sc.Name, err)
		}
	}

	space := addrspace.New(cfg.OPCUA.NamespaceURI, cfg.PEA.Name, tagMgr, svcMgr)
	for _, sc := range cfg.Services {
		if err := space.AddService(sc.Name); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	assemblies := make([]daassembly.Assembly, 0, len(cfg.DataAssemblies))
	for _, dac := range cfg.DataAssemblies {
		a := buildAssembly(dac)
		assemblies = append(assemblies, a)
		if err := space.AddDataAssembly(a); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("gateway: add data assembly %s: %w", dac.Name, err)
		}
	}
	space.BindTagManager(tagMgr)
	space.BindServiceManager(svcMgr)

	alarmMgr := alarm.New(cfg.PEA.Name+"-alarms", tagMgr, store)
	for _, a := range assemblies {
		if err := alarmMgr.RegisterAssembly(a); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("gateway: register alarm assembly %s: %w", a.Name, err)
		}
	}

	includeTags := make(map[string]bool, len(cfg.History.IncludeTags))
	for _, t := range cfg.History.IncludeTags {
		includeTags[t] = true
	}
	excludeTags := make(map[string]bool, len(cfg.History.ExcludeTags))
	for _, t := range cfg.History.ExcludeTags {
		excludeTags[t] = true
	}
	historyMgr := history.New(cfg.PEA.Name+"-history", tagMgr, store, history.Config{
		FlushInterval: time.Duration(cfg.History.FlushIntervalMS) * time.Millisecond,
		MaxBufferSize: cfg.History.MaxBufferSize,
		IncludeTags:   includeTags,
		ExcludeTags:   excludeTags,
	})

	serviceNames := make([]string, 0, len(cfg.Services))
	users := make([]webui.User, 0, len(cfg.WebUI.Users))
	for _, sc := range cfg.Services {
		serviceNames = append(serviceNames, sc.Name)
	}
	for _, uc := range cfg.WebUI.Users {
		u, err := webui.NewUser(uc.Username, uc.PasswordHash, uc.Role)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		users = append(users, u)
	}
	webuiMgr := webui.New(tagMgr, svcMgr, serviceNames, store, store, trail,
		webui.WithName(cfg.PEA.Name+"-webui"),
		webui.WithListenAddr(cfg.WebUI.ListenAddr),
		webui.WithJWTSigningKey(cfg.WebUI.JWTSigningKey),
		webui.WithJWTExpiry(time.Duration(cfg.WebUI.JWTExpiryMinutes)*time.Minute),
		webui.WithMinUpdateInterval(time.Duration(cfg.WebUI.MinUpdateIntervalMS)*time.Millisecond),
		webui.WithUsers(users),
	)

	return &gateway{
		tags:     tagMgr,
		services: svcMgr,
		alarms:   alarmMgr,
		history:  historyMgr,
		webui:    webuiMgr,
		space:    space,
		store:    store,
	}, nil
}
