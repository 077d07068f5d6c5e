package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides. A double underscore
// separates levels: FLOWFEAT_RUN__PACKET_BUDGET -> run.packet_budget.
const EnvPrefix = "FLOWFEAT_"

// SourceConfig selects where packets come from.
type SourceConfig struct {
	Path      string `koanf:"path" yaml:"path"`
	Interface string `koanf:"interface" yaml:"interface"`
	BPF       string `koanf:"bpf" yaml:"bpf"`
	SnapLen   int    `koanf:"snaplen" yaml:"snaplen"`
	Promisc   bool   `koanf:"promisc" yaml:"promisc"`
	RecordDir string `koanf:"record_dir" yaml:"record_dir,omitempty"` // live captures also written here as pcap
}

// RunConfig holds the run controller settings.
type RunConfig struct {
	PacketBudget     int    `koanf:"packet_budget" yaml:"packet_budget"`
	ProgressInterval int    `koanf:"progress_interval" yaml:"progress_interval"`
	FlowTimeout      string `koanf:"flow_timeout" yaml:"flow_timeout"`
	ExpiryInterval   int    `koanf:"expiry_interval" yaml:"expiry_interval"`
}

// FlowTimeoutDuration parses FlowTimeout; empty means disabled.
func (r RunConfig) FlowTimeoutDuration() (time.Duration, error) {
	if r.FlowTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(r.FlowTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid run.flow_timeout: %w", err)
	}
	return d, nil
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

// APIConfig holds the status side channel addresses. Empty disables them.
type APIConfig struct {
	ListenAddr string `koanf:"listen_addr" yaml:"listen_addr"`
	GRPCAddr   string `koanf:"grpc_addr" yaml:"grpc_addr"`
}

// ProbeConfig holds the NATS packet transport settings.
type ProbeConfig struct {
	NATSURL string `koanf:"nats_url" yaml:"nats_url"`
	Subject string `koanf:"subject" yaml:"subject"`
	Buffer  int    `koanf:"buffer" yaml:"buffer"`
}

// ClickHouseConfig holds connection details for the clickhouse writer.
type ClickHouseConfig struct {
	Host     string `koanf:"host" yaml:"host"`
	Port     int    `koanf:"port" yaml:"port"`
	Database string `koanf:"database" yaml:"database"`
	Username string `koanf:"username" yaml:"username"`
	Password string `koanf:"password" yaml:"password"`
	Table    string `koanf:"table" yaml:"table"`
}

// NATSConfig holds the nats writer settings.
type NATSConfig struct {
	URL     string `koanf:"url" yaml:"url"`
	Subject string `koanf:"subject" yaml:"subject"`
}

// KafkaConfig holds the kafka writer settings.
type KafkaConfig struct {
	Brokers     []string `koanf:"brokers" yaml:"brokers"`
	Topic       string   `koanf:"topic" yaml:"topic"`
	Version     string   `koanf:"version" yaml:"version"`
	Compression string   `koanf:"compression" yaml:"compression"`
}

// WriterConfig defines one export sink.
type WriterConfig struct {
	Type       string           `koanf:"type" yaml:"type"`
	Enabled    bool             `koanf:"enabled" yaml:"enabled"`
	Path       string           `koanf:"path" yaml:"path,omitempty"`
	RootPath   string           `koanf:"root_path" yaml:"root_path,omitempty"`
	ClickHouse ClickHouseConfig `koanf:"clickhouse" yaml:"clickhouse,omitempty"`
	NATS       NATSConfig       `koanf:"nats" yaml:"nats,omitempty"`
	Kafka      KafkaConfig      `koanf:"kafka" yaml:"kafka,omitempty"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Source  SourceConfig   `koanf:"source" yaml:"source"`
	Run     RunConfig      `koanf:"run" yaml:"run"`
	Log     LogConfig      `koanf:"log" yaml:"log"`
	API     APIConfig      `koanf:"api" yaml:"api"`
	Probe   ProbeConfig    `koanf:"probe" yaml:"probe"`
	Writers []WriterConfig `koanf:"writers" yaml:"writers"`
}

// Defaults returns the baseline configuration.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"source.snaplen":        65536,
		"source.promisc":        true,
		"run.packet_budget":     100000,
		"run.progress_interval": 20000,
		"run.flow_timeout":      "",
		"run.expiry_interval":   10000,
		"log.level":             "info",
		"log.format":            "text",
		"api.listen_addr":       "",
		"api.grpc_addr":         "",
		"probe.nats_url":        "nats://127.0.0.1:4222",
		"probe.subject":         "flowfeat.packets.raw",
		"probe.buffer":          10000,
		"writers": []interface{}{
			map[string]interface{}{"type": "csv", "enabled": true, "path": "features.csv"},
		},
	}
}

// Load merges defaults, the YAML file at path (optional), FLOWFEAT_ environment
// variables and changed command-line flags, in that order of precedence.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(key string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load command-line flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig reads the configuration from a YAML file on top of the defaults.
func LoadConfig(filePath string) (*Config, error) {
	return Load(filePath, nil)
}

// Validate rejects settings the run controller cannot honour.
func (c *Config) Validate() error {
	var errs []error
	if c.Run.PacketBudget < 0 {
		errs = append(errs, fmt.Errorf("run.packet_budget must be >= 0, got %d", c.Run.PacketBudget))
	}
	if c.Run.ProgressInterval < 0 {
		errs = append(errs, fmt.Errorf("run.progress_interval must be >= 0, got %d", c.Run.ProgressInterval))
	}
	if c.Run.ExpiryInterval < 0 {
		errs = append(errs, fmt.Errorf("run.expiry_interval must be >= 0, got %d", c.Run.ExpiryInterval))
	}
	if d, err := c.Run.FlowTimeoutDuration(); err != nil {
		errs = append(errs, err)
	} else if d < 0 {
		errs = append(errs, fmt.Errorf("run.flow_timeout must not be negative"))
	}
	for i, w := range c.Writers {
		if w.Type == "" {
			errs = append(errs, fmt.Errorf("writers[%d]: missing type", i))
		}
	}
	return errors.Join(errs...)
}

// Dump renders the effective configuration as YAML.
func Dump(cfg *Config) ([]byte, error) {
	out, err := yamlv3.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config YAML: %w", err)
	}
	return out, nil
}
