// Package config handles ripflow's global configuration loading using
// viper, generalized from the teacher's GlobalConfig/Load shape away
// from its packet-capture-specific sections (kafka, command_channel,
// decoder, reporters) toward ripflow's pipeline/node/control/log shape.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jalas-labs/ripflow/internal/core"
)

// GlobalConfig is the top-level static configuration, the `ripflow:`
// root key in YAML.
type GlobalConfig struct {
	Node     NodeConfig     `mapstructure:"node"`
	Control  ControlConfig  `mapstructure:"control"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// NodeConfig identifies the host this ripflow instance runs on.
type NodeConfig struct {
	IP       string            `mapstructure:"ip"`
	Hostname string            `mapstructure:"hostname"`
	Tags     map[string]string `mapstructure:"tags"`
}

// ControlConfig is the local control plane: the Unix socket the CLI's
// stop/status subcommands talk to, and where the running daemon's PID
// is recorded.
type ControlConfig struct {
	Socket  string `mapstructure:"socket"`
	PIDFile string `mapstructure:"pid_file"`
}

// PipelineConfig describes the one pipeline this instance runs: worker
// count, channel addressing, restart policy, and the three injected
// capabilities (source, sink, analyzer), each resolved by name against
// this module's factory registries.
type PipelineConfig struct {
	NWorkers      int                  `mapstructure:"workers"`
	SocketDir     string               `mapstructure:"socket_dir"`
	BasePort      int                  `mapstructure:"base_port"`
	SourceTimeout int                  `mapstructure:"source_timeout_seconds"`
	RestartPolicy RestartPolicyConfig  `mapstructure:"restart_policy"`
	Source        CapabilityConfig     `mapstructure:"source"`
	Sink          CapabilityConfig     `mapstructure:"sink"`
	Analyzer      CapabilityConfig     `mapstructure:"analyzer"`
}

// CapabilityConfig names a registered factory (source/sink/analyzer/
// serializer) and carries its free-form configuration map.
type CapabilityConfig struct {
	Name   string         `mapstructure:"name"`
	Config map[string]any `mapstructure:"config"`
}

// RestartPolicyConfig mirrors supervisor.RestartPolicy in a
// viper-friendly shape (durations as strings).
type RestartPolicyConfig struct {
	NRestart         int    `mapstructure:"n_restart"`
	RestartDelaySecs string `mapstructure:"restart_delay"`
	ResetWindowSecs  string `mapstructure:"reset_window"`
}

// RestartDelay parses the restart_delay duration string, defaulting an
// unparsable or empty value to the reference deployment's constant.
func (r RestartPolicyConfig) RestartDelay() time.Duration {
	return parseDurationOrDefault(r.RestartDelaySecs, 5*time.Second)
}

func (r RestartPolicyConfig) ResetWindow() time.Duration {
	return parseDurationOrDefault(r.ResetWindowSecs, 60*time.Second)
}

func parseDurationOrDefault(s string, d time.Duration) time.Duration {
	if s == "" {
		return d
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return d
	}
	return parsed
}

// LogConfig mirrors the teacher's logging shape.
type LogConfig struct {
	Level   string           `mapstructure:"level"`
	Format  string           `mapstructure:"format"`
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
	Loki LokiOutputConfig `mapstructure:"loki"`
}

type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

type LokiOutputConfig struct {
	Enabled      bool              `mapstructure:"enabled"`
	Endpoint     string            `mapstructure:"endpoint"`
	Labels       map[string]string `mapstructure:"labels"`
	BatchSize    int               `mapstructure:"batch_size"`
	BatchTimeout string            `mapstructure:"batch_timeout"`
}

// MetricsConfig configures the operational status endpoint (stdlib
// net/http + JSON, not Prometheus — see DESIGN.md).
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// configRoot is the top-level wrapper matching the YAML `ripflow:` root.
type configRoot struct {
	Ripflow GlobalConfig `mapstructure:"ripflow"`
}

// Load reads configuration from path. Env vars use a RIPFLOW_ prefix
// (e.g. RIPFLOW_LOG_LEVEL), matching the teacher's key-replacer
// approach of mapping dotted config keys onto underscore-separated env
// vars.
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg := root.Ripflow

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ripflow.control.socket", "/var/run/ripflow.sock")
	v.SetDefault("ripflow.control.pid_file", "/var/run/ripflow.pid")

	v.SetDefault("ripflow.pipeline.workers", 2)
	v.SetDefault("ripflow.pipeline.socket_dir", "/var/run/ripflow")
	v.SetDefault("ripflow.pipeline.base_port", 17000)
	v.SetDefault("ripflow.pipeline.source_timeout_seconds", 0)
	v.SetDefault("ripflow.pipeline.restart_policy.n_restart", 3)
	v.SetDefault("ripflow.pipeline.restart_policy.restart_delay", "5s")
	v.SetDefault("ripflow.pipeline.restart_policy.reset_window", "60s")
	v.SetDefault("ripflow.pipeline.source.name", "memory")
	v.SetDefault("ripflow.pipeline.sink.name", "console")
	v.SetDefault("ripflow.pipeline.analyzer.name", "identity")

	v.SetDefault("ripflow.log.level", "info")
	v.SetDefault("ripflow.log.format", "json")
	v.SetDefault("ripflow.log.outputs.file.enabled", false)
	v.SetDefault("ripflow.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("ripflow.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("ripflow.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("ripflow.log.outputs.file.rotation.compress", true)

	v.SetDefault("ripflow.metrics.enabled", true)
	v.SetDefault("ripflow.metrics.listen", ":9091")
}

// ValidateAndApplyDefaults validates the loaded configuration and fills
// in host-derived defaults (hostname, node IP).
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return &core.ConfigError{Field: "log.level", Reason: "must be one of debug/info/warn/error"}
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return &core.ConfigError{Field: "log.format", Reason: "must be json or text"}
	}

	if cfg.Pipeline.NWorkers <= 0 {
		return &core.ConfigError{Field: "pipeline.workers", Reason: "must be > 0"}
	}
	if cfg.Pipeline.Source.Name == "" {
		return &core.ConfigError{Field: "pipeline.source.name", Reason: "must not be empty"}
	}
	if cfg.Pipeline.Sink.Name == "" {
		return &core.ConfigError{Field: "pipeline.sink.name", Reason: "must not be empty"}
	}
	if cfg.Pipeline.Analyzer.Name == "" {
		return &core.ConfigError{Field: "pipeline.analyzer.name", Reason: "must not be empty"}
	}

	if cfg.Node.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("config: resolve hostname: %w", err)
		}
		cfg.Node.Hostname = hostname
	}

	resolvedIP, err := resolveNodeIP(&cfg.Node)
	if err != nil {
		return err
	}
	cfg.Node.IP = resolvedIP

	return nil
}

// resolveNodeIP returns the configured IP, or auto-detects the first
// non-loopback, non-link-local IPv4 address.
func resolveNodeIP(node *NodeConfig) (string, error) {
	if node.IP != "" {
		return node.IP, nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("config: resolve node IP: list interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil || (ip4[0] == 169 && ip4[1] == 254) {
				continue
			}
			return ip4.String(), nil
		}
	}

	return "", nil
}
