// SPDX-License-Identifier: BSD-3-Clause

package main

// exampleConfigYAML is a minimal but complete configuration document,
// written by "generate-example" as a starting point for a new PEA.
const exampleConfigYAML = `schema_version: "1.0.0"

pea:
  name: Reactor01
  version: "1.0.0"
  description: Stirred-tank reactor package

opcua:
  endpoint: "opc.tcp://0.0.0.0:4840"
  namespace_uri: "urn:mtp-gateway:reactor01"
  security_policy: None
  security_mode: None

connectors:
  - name: plc1
    protocol: modbus-tcp
    host: 192.0.2.10
    port: 502
    unit: 1
    poll_interval_ms: 500
    timeout_ms: 2000

tags:
  - name: reactor.temperature
    connector: plc1
    address: "40001"
    data_type: FLOAT32
    writable: false
    gain: 0.1
    unit: degC
  - name: reactor.agitator_run
    connector: plc1
    address: "00001"
    data_type: BOOL
    writable: true
  - name: reactor.agitator_interlock
    connector: plc1
    address: "00002"
    data_type: BOOL
    writable: false

data_assemblies:
  - name: TempIndicator
    type: AnaView
    bindings:
      V: reactor.temperature
    scale_min: 0
    scale_max: 200
    unit: degC
    h_limit: 150
    hh_limit: 180
  - name: Agitator
    type: BinDrv
    bindings:
      V: reactor.agitator_run
      Interlock: reactor.agitator_interlock
    state0: Stopped
    state1: Running
    interlock_source_tag: reactor.agitator_interlock

services:
  - name: Agitate
    mode: HYBRID
    command_op_tag: reactor.agitator_run
    state_cur_tag: reactor.agitator_run
    self_completing: false
    timeout_s: 300
    timeout_action: ABORT
    procedures:
      - id: 1
        name: Default
        is_default: true
    state_hooks:
      EXECUTE:
        - tag: reactor.agitator_run
          value: true
      STOPPED:
        - tag: reactor.agitator_run
          value: false
    interlocks:
      - source_tag: reactor.agitator_interlock
        required_value: false
        message: agitator interlock active

safety:
  writable_tags:
    - reactor.agitator_run
  max_writes_per_second: 5
  burst: 10
  safe_state:
    reactor.agitator_run: false

persistence:
  path: mtp-gateway.db

history:
  flush_interval_ms: 5000
  max_buffer_size: 500
  include_tags:
    - reactor.temperature

webui:
  listen_addr: ":8443"
  jwt_signing_key: "change-me"
  jwt_expiry_minutes: 30
  min_update_interval_ms: 100
  users:
    - username: admin
      password_hash: "$2a$10$changemechangemechangemechangemechangemechangeme"
      role: admin
`
