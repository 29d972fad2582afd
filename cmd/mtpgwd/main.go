// SPDX-License-Identifier: BSD-3-Clause

// Command mtpgwd is the gateway daemon: it loads a YAML configuration
// document, wires every southbound connector and northbound service
// together, and runs them under a supervision tree until signaled to stop.
// It also offers offline subcommands for validating a configuration,
// generating its MTP manifest/NodeSet2 exports, probing a single tag, and
// managing the Web UI's TLS certificate.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mtp-gateway/gateway/internal/supervisor"
	"github.com/mtp-gateway/gateway/pkg/cert"
	"github.com/mtp-gateway/gateway/pkg/config"
	"github.com/mtp-gateway/gateway/pkg/log"
	"github.com/mtp-gateway/gateway/service/ipc"
	"github.com/mtp-gateway/gateway/service/manifest"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = cmdRun(os.Args[2:])
	case "validate":
		err = cmdValidate(os.Args[2:])
	case "probe":
		err = cmdProbe(os.Args[2:])
	case "generate-manifest":
		err = cmdGenerateManifest(os.Args[2:])
	case "generate-nodeset":
		err = cmdGenerateNodeSet(os.Args[2:])
	case "generate-example":
		err = cmdGenerateExample(os.Args[2:])
	case "schema":
		err = cmdSchema(os.Args[2:])
	case "security":
		err = cmdSecurity(os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "mtpgwd:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: mtpgwd <command> [flags]

commands:
  run                 start the gateway and run until signaled
  validate            load and validate a configuration file
  probe               read a single tag through its connector
  generate-manifest   write the AutomationML/CAEX manifest for a config
  generate-nodeset    write the OPC UA NodeSet2 XML export for a config
  generate-example    write a minimal example configuration document
  schema version      print the current config schema version
  schema export       print the config schema as JSON
  security generate-cert   generate a self-signed Web UI certificate
  security check-cert      inspect a certificate's validity window`)
}

func loadConfig(path string) (*config.GatewayConfig, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.CheckSchemaVersion(cfg.SchemaVersion); err != nil {
		return nil, err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return nil, errs
	}
	return cfg, nil
}

func cmdValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	path := fs.String("config", "gateway.yaml", "path to the configuration document")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := loadConfig(*path); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	path := fs.String("config", "gateway.yaml", "path to the configuration document")
	idDir := fs.String("id-dir", "/var/lib/mtp-gateway", "directory the instance ID file is kept in")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*path)
	if err != nil {
		return err
	}

	log.RedirectStdLog(log.GetGlobalLogger())

	bus := ipc.New(ipc.WithServiceName(cfg.PEA.Name + "-ipc"))

	built, err := buildGateway(cfg)
	if err != nil {
		return err
	}

	sup := supervisor.New(
		supervisor.WithName(cfg.PEA.Name),
		supervisor.WithIDDir(*idDir),
		supervisor.WithIPC(bus),
		supervisor.WithTagManager(built.tags),
		supervisor.WithServiceManager(built.services),
		supervisor.WithAlarmDetector(built.alarms),
		supervisor.WithHistoryRecorder(built.history),
		supervisor.WithWebUI(built.webui),
	)
	defer func() { _ = built.store.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sup.Run(ctx, nil); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func cmdProbe(args []string) error {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	path := fs.String("config", "gateway.yaml", "path to the configuration document")
	tagName := fs.String("tag", "", "name of the tag to read")
	timeout := fs.Duration("timeout", 5*time.Second, "overall timeout for connecting and reading")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tagName == "" {
		return errors.New("probe: -tag is required")
	}

	cfg, err := loadConfig(*path)
	if err != nil {
		return err
	}

	var tagCfg *config.TagConfig
	for i := range cfg.Tags {
		if cfg.Tags[i].Name == *tagName {
			tagCfg = &cfg.Tags[i]
			break
		}
	}
	if tagCfg == nil {
		return fmt.Errorf("probe: unknown tag %q", *tagName)
	}
	var connCfg *config.ConnectorConfig
	for i := range cfg.Connectors {
		if cfg.Connectors[i].Name == tagCfg.Connector {
			connCfg = &cfg.Connectors[i]
			break
		}
	}
	if connCfg == nil {
		return fmt.Errorf("probe: tag %q references unknown connector %q", *tagName, tagCfg.Connector)
	}

	conn, err := buildConnector(*connCfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := conn.Connect(ctx); err != nil {
		return fmt.Errorf("probe: connect %s: %w", connCfg.Name, err)
	}
	defer func() { _ = conn.Disconnect(ctx) }()

	raw, err := conn.Read(ctx, tagCfg.Address)
	if err != nil {
		return fmt.Errorf("probe: read %s: %w", *tagName, err)
	}
	fmt.Printf("%s = %v\n", *tagName, raw)
	return nil
}

func cmdGenerateManifest(args []string) error {
	fs := flag.NewFlagSet("generate-manifest", flag.ExitOnError)
	path := fs.String("config", "gateway.yaml", "path to the configuration document")
	out := fs.String("out", "", "output path (default: stdout)")
	deterministic := fs.Bool("deterministic", true, "emit NodeIds/UUIDs deterministically for diffable output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*path)
	if err != nil {
		return err
	}
	mcfg, err := buildManifestConfig(cfg, *deterministic)
	if err != nil {
		return err
	}
	data, err := manifest.GenerateCAEX(mcfg)
	if err != nil {
		return err
	}
	return writeOutput(*out, data)
}

func cmdGenerateNodeSet(args []string) error {
	fs := flag.NewFlagSet("generate-nodeset", flag.ExitOnError)
	path := fs.String("config", "gateway.yaml", "path to the configuration document")
	out := fs.String("out", "", "output path (default: stdout)")
	deterministic := fs.Bool("deterministic", true, "emit NodeIds/UUIDs deterministically for diffable output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*path)
	if err != nil {
		return err
	}
	mcfg, err := buildManifestConfig(cfg, *deterministic)
	if err != nil {
		return err
	}
	data, err := manifest.GenerateNodeSet2(mcfg)
	if err != nil {
		return err
	}
	return writeOutput(*out, data)
}

func cmdGenerateExample(args []string) error {
	fs := flag.NewFlagSet("generate-example", flag.ExitOnError)
	out := fs.String("out", "", "output path (default: stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return writeOutput(*out, []byte(exampleConfigYAML))
}

func cmdSchema(args []string) error {
	if len(args) == 0 {
		return errors.New("schema: expected \"version\" or \"export\"")
	}
	switch args[0] {
	case "version":
		fmt.Println(config.SchemaVersion)
		return nil
	case "export":
		j, err := config.ExportSchemaJSON()
		if err != nil {
			return err
		}
		fmt.Println(j)
		return nil
	default:
		return fmt.Errorf("schema: unknown subcommand %q", args[0])
	}
}

func cmdSecurity(args []string) error {
	if len(args) == 0 {
		return errors.New("security: expected \"generate-cert\" or \"check-cert\"")
	}
	switch args[0] {
	case "generate-cert":
		return cmdGenerateCert(args[1:])
	case "check-cert":
		return cmdCheckCert(args[1:])
	default:
		return fmt.Errorf("security: unknown subcommand %q", args[0])
	}
}

func cmdGenerateCert(args []string) error {
	fs := flag.NewFlagSet("security generate-cert", flag.ExitOnError)
	hostname := fs.String("hostname", "localhost", "certificate hostname")
	certPath := fs.String("cert-out", "webui.crt", "output path for the certificate")
	keyPath := fs.String("key-out", "webui.key", "output path for the private key")
	validity := fs.Duration("validity", 365*24*time.Hour, "certificate validity period")
	if err := fs.Parse(args); err != nil {
		return err
	}

	now := time.Now()
	certPEM, keyPEM, err := cert.GenerateSelfsigned(cert.CertificateOptions{
		Hostname:  *hostname,
		NotBefore: now,
		NotAfter:  now.Add(*validity),
	})
	if err != nil {
		return fmt.Errorf("security generate-cert: %w", err)
	}
	if err := os.WriteFile(*certPath, certPEM, 0o644); err != nil {
		return fmt.Errorf("security generate-cert: write cert: %w", err)
	}
	if err := os.WriteFile(*keyPath, keyPEM, 0o600); err != nil {
		return fmt.Errorf("security generate-cert: write key: %w", err)
	}
	fmt.Printf("wrote %s and %s for %s, valid until %s\n", *certPath, *keyPath, *hostname, now.Add(*validity).Format(time.RFC3339))
	return nil
}

func cmdCheckCert(args []string) error {
	fs := flag.NewFlagSet("security check-cert", flag.ExitOnError)
	certPath := fs.String("cert", "webui.crt", "certificate path to inspect")
	warnWithin := fs.Duration("warn-within", 30*24*time.Hour, "warn if the certificate expires within this window")
	if err := fs.Parse(args); err != nil {
		return err
	}

	info, err := cert.Inspect(*certPath, *warnWithin)
	if err != nil {
		return fmt.Errorf("security check-cert: %w", err)
	}
	fmt.Printf("subject=%s expires=%s expiring-soon=%v\n", info.Subject, info.NotAfter.Format(time.RFC3339), info.ExpiringSoon)
	return nil
}

func writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
