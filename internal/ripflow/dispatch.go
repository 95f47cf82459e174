package ripflow

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/jalas-labs/ripflow/internal/analyzer"
	"github.com/jalas-labs/ripflow/internal/config"
	"github.com/jalas-labs/ripflow/internal/connector"
	"github.com/jalas-labs/ripflow/internal/core"
	"github.com/jalas-labs/ripflow/internal/process"
	"github.com/jalas-labs/ripflow/internal/producer"
	"github.com/jalas-labs/ripflow/internal/sender"
	"github.com/jalas-labs/ripflow/internal/serializer"
	"github.com/jalas-labs/ripflow/internal/worker"
)

// ingressAddr and egressAddr reproduce the address scheme named in
// spec.md §4.1: producer binds ipc://source, workers connect to it;
// sender k binds ipc://sender_<k>, workers connect to each.
const ingressAddr = "ipc://source"

func egressAddr(k int) string { return fmt.Sprintf("ipc://sender_%d", k) }

// RunChildFromEnv is the entry point a re-exec'd child process calls.
// It reads its role and index from the environment variables
// internal/process sets at Launch time, rebuilds its capability from
// the persisted config file, and blocks running that role's main
// routine until it errors or the process is signaled to stop.
func RunChildFromEnv() error {
	role := core.Role(os.Getenv(process.RoleEnvVar))
	index, _ := strconv.Atoi(os.Getenv(process.IndexEnvVar))
	configPath := os.Getenv(process.ConfigPathEnvVar)
	socketDir := os.Getenv(process.SocketDirEnvVar)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("ripflow: child load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	return RunChild(ctx, role, index, socketDir, cfg)
}

// RunChild dispatches to the named role's main routine, reconstructing
// its source/sink/analyzer from cfg by name. Exported separately from
// RunChildFromEnv so tests can drive a child without an OS-level
// re-exec.
func RunChild(ctx context.Context, role core.Role, index int, socketDir string, cfg *config.GlobalConfig) error {
	switch role {
	case core.RoleProducer:
		return runProducerChild(ctx, socketDir, cfg)
	case core.RoleWorker:
		return runWorkerChild(ctx, socketDir, cfg)
	case core.RoleSender:
		return runSenderChild(ctx, index, socketDir, cfg)
	default:
		return &core.ConfigError{Field: "role", Reason: fmt.Sprintf("unknown child role %q", role)}
	}
}

func runProducerChild(ctx context.Context, socketDir string, cfg *config.GlobalConfig) error {
	sourceFactory, ok := connector.GetSourceFactory(cfg.Pipeline.Source.Name)
	if !ok {
		return &core.ConfigError{Field: "pipeline.source.name", Reason: fmt.Sprintf("no source registered as %q", cfg.Pipeline.Source.Name)}
	}
	source, err := sourceFactory(cfg.Pipeline.Source.Config)
	if err != nil {
		return err
	}

	return producer.Run(ctx, producer.Config{
		Source:        source,
		IngressAddr:   ingressAddr,
		SocketDir:     socketDir,
		SourceTimeout: cfg.Pipeline.SourceTimeout,
		ControlSocket: cfg.Control.Socket,
	})
}

func runWorkerChild(ctx context.Context, socketDir string, cfg *config.GlobalConfig) error {
	analyzerFactory, ok := analyzer.Get(cfg.Pipeline.Analyzer.Name)
	if !ok {
		return &core.ConfigError{Field: "pipeline.analyzer.name", Reason: fmt.Sprintf("no analyzer registered as %q", cfg.Pipeline.Analyzer.Name)}
	}
	an, err := analyzerFactory(cfg.Pipeline.Analyzer.Config)
	if err != nil {
		return err
	}

	serializerName := serializerNameForSink(cfg)
	serializerFactory, ok := serializer.Get(serializerName)
	if !ok {
		return &core.ConfigError{Field: "pipeline.sink.config.serializer", Reason: fmt.Sprintf("no serializer registered as %q", serializerName)}
	}
	ser, err := serializerFactory(nil)
	if err != nil {
		return err
	}

	egressAddrs := make([]string, an.NOutputs())
	for k := range egressAddrs {
		egressAddrs[k] = egressAddr(k)
	}

	return worker.Run(ctx, worker.Config{
		Analyzer:      an,
		Serializer:    ser,
		IngressAddr:   ingressAddr,
		EgressAddrs:   egressAddrs,
		SocketDir:     socketDir,
		ControlSocket: cfg.Control.Socket,
	})
}

func runSenderChild(ctx context.Context, index int, socketDir string, cfg *config.GlobalConfig) error {
	sinkFactory, ok := connector.GetSinkFactory(cfg.Pipeline.Sink.Name)
	if !ok {
		return &core.ConfigError{Field: "pipeline.sink.name", Reason: fmt.Sprintf("no sink registered as %q", cfg.Pipeline.Sink.Name)}
	}
	sinkConfig := withBasePort(cfg.Pipeline.Sink.Config, cfg.Pipeline.BasePort)
	sink, err := sinkFactory(sinkConfig)
	if err != nil {
		return err
	}

	return sender.Run(ctx, sender.Config{
		Sink:          sink,
		Idx:           index,
		EgressAddr:    egressAddr(index),
		SocketDir:     socketDir,
		ControlSocket: cfg.Control.Socket,
	})
}

// serializerNameForSink resolves the serializer named in the sink's
// config map, defaulting to "json" so the worker and the sender agree
// on wire format even when the operator never set one explicitly.
func serializerNameForSink(cfg *config.GlobalConfig) string {
	name, _ := cfg.Pipeline.Sink.Config["serializer"].(string)
	if name == "" {
		name = "json"
	}
	return name
}

func withBasePort(cfg map[string]any, basePort int) map[string]any {
	out := make(map[string]any, len(cfg)+1)
	for k, v := range cfg {
		out[k] = v
	}
	if _, exists := out["base_port"]; !exists {
		out["base_port"] = basePort
	}
	return out
}
