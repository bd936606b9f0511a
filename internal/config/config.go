package config

// Configuration loading and validation for cipengine

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tturner/cipengine/internal/cip/client"
	"github.com/tturner/cipengine/internal/cip/epath"
	"github.com/tturner/cipengine/internal/logging"
)

// EnvPrefix is prepended to environment overrides, e.g. CIPENGINE_TARGET_ADDRESS.
const EnvPrefix = "CIPENGINE"

// Config represents the client configuration
type Config struct {
	Target     TargetConfig     `yaml:"target"     mapstructure:"target"`
	Session    SessionConfig    `yaml:"session"    mapstructure:"session"`
	Tuning     TuningConfig     `yaml:"tuning"     mapstructure:"tuning"`
	Connection ConnectionConfig `yaml:"connection" mapstructure:"connection"`
	Logging    LoggingConfig    `yaml:"logging"    mapstructure:"logging"`
	Capture    CaptureConfig    `yaml:"capture"    mapstructure:"capture"`
}

// TargetConfig identifies the device.
type TargetConfig struct {
	Address string `yaml:"address" mapstructure:"address"`
	Port    int    `yaml:"port"    mapstructure:"port"`
	// Route is a comma separated port,link list, e.g. "backplane,0".
	Route string `yaml:"route,omitempty" mapstructure:"route"`
}

type SessionConfig struct {
	TimeoutMs     int    `yaml:"timeout_ms"     mapstructure:"timeout_ms"`
	SenderContext string `yaml:"sender_context" mapstructure:"sender_context"`
}

// TuningConfig mirrors client.Tuning.
type TuningConfig struct {
	Priority          uint8  `yaml:"priority"           mapstructure:"priority"`
	TimeoutTicks      uint8  `yaml:"timeout_ticks"      mapstructure:"timeout_ticks"`
	TimeoutMultiplier uint8  `yaml:"timeout_multiplier" mapstructure:"timeout_multiplier"`
	RPI               uint32 `yaml:"rpi"                mapstructure:"rpi"`
	TransportTrigger  uint8  `yaml:"transport_trigger"  mapstructure:"transport_trigger"`
	ProtocolVersion   uint16 `yaml:"protocol_version"   mapstructure:"protocol_version"`
}

type ConnectionConfig struct {
	Extended         bool   `yaml:"extended"          mapstructure:"extended"`
	SerialNumber     uint16 `yaml:"serial_number"     mapstructure:"serial_number"`
	VendorID         uint16 `yaml:"vendor_id"         mapstructure:"vendor_id"`
	OriginatorSerial uint32 `yaml:"originator_serial" mapstructure:"originator_serial"`
	SequenceStart    uint16 `yaml:"sequence_start"    mapstructure:"sequence_start"`
	SequenceStop     uint16 `yaml:"sequence_stop"     mapstructure:"sequence_stop"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"     mapstructure:"level"`
	Format   string `yaml:"format"    mapstructure:"format"`
	File     string `yaml:"file"      mapstructure:"file"`
	LogEvery int    `yaml:"log_every" mapstructure:"log_every"`
}

// CaptureConfig names optional output files. Empty disables each one.
type CaptureConfig struct {
	PcapFile    string `yaml:"pcap_file"    mapstructure:"pcap_file"`
	MetricsFile string `yaml:"metrics_file" mapstructure:"metrics_file"`
}

// SetDefaults configures default values for the configuration.
func SetDefaults(v *viper.Viper) {
	t := client.DefaultTuning()
	// Every key gets a default so environment overrides apply without a file.
	v.SetDefault("target.address", "")
	v.SetDefault("target.port", client.DefaultPort)
	v.SetDefault("target.route", "")
	v.SetDefault("session.timeout_ms", int(client.DefaultTimeout/time.Millisecond))
	v.SetDefault("session.sender_context", string(client.DefaultSenderContext[:]))
	v.SetDefault("tuning.priority", t.Priority)
	v.SetDefault("tuning.timeout_ticks", t.TimeoutTicks)
	v.SetDefault("tuning.timeout_multiplier", t.TimeoutMultiplier)
	v.SetDefault("tuning.rpi", t.RPI)
	v.SetDefault("tuning.transport_trigger", t.TransportTrigger)
	v.SetDefault("tuning.protocol_version", t.ProtocolVersion)
	v.SetDefault("connection.extended", false)
	v.SetDefault("connection.serial_number", client.DefaultSerialNumber)
	v.SetDefault("connection.vendor_id", client.DefaultVendorID)
	v.SetDefault("connection.originator_serial", client.DefaultOriginatorSerial)
	v.SetDefault("connection.sequence_start", 1)
	v.SetDefault("connection.sequence_stop", 0xFFFF)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.log_every", 1)
	v.SetDefault("capture.pcap_file", "")
	v.SetDefault("capture.metrics_file", "")
}

// NewViper returns a viper instance with defaults and environment overrides
// applied. A non-empty configFile is read; a missing default file is not an
// error.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
		return v, nil
	}

	v.SetConfigName("cipengine")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return v, nil
}

// Load reads configuration from a YAML file and returns a validated Config.
func Load(configFile string) (*Config, error) {
	v, err := NewViper(configFile)
	if err != nil {
		return nil, err
	}
	return LoadWithViper(v)
}

// LoadWithViper reads configuration using an existing viper instance (for CLI flag binding).
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	t := client.DefaultTuning()
	return &Config{
		Target: TargetConfig{Port: client.DefaultPort},
		Session: SessionConfig{
			TimeoutMs:     int(client.DefaultTimeout / time.Millisecond),
			SenderContext: string(client.DefaultSenderContext[:]),
		},
		Tuning: TuningConfig{
			Priority:          t.Priority,
			TimeoutTicks:      t.TimeoutTicks,
			TimeoutMultiplier: t.TimeoutMultiplier,
			RPI:               t.RPI,
			TransportTrigger:  t.TransportTrigger,
			ProtocolVersion:   t.ProtocolVersion,
		},
		Connection: ConnectionConfig{
			SerialNumber:     client.DefaultSerialNumber,
			VendorID:         client.DefaultVendorID,
			OriginatorSerial: client.DefaultOriginatorSerial,
			SequenceStart:    1,
			SequenceStop:     0xFFFF,
		},
		Logging: LoggingConfig{Level: "info", Format: "text", LogEvery: 1},
	}
}

const defaultHeader = `# cipengine configuration
# Every key can be overridden with a CIPENGINE_ environment variable,
# e.g. CIPENGINE_TARGET_ADDRESS=10.0.0.5 or CIPENGINE_SESSION_TIMEOUT_MS=2000.
`

// Marshal renders cfg as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// WriteDefault writes a default configuration to path. An existing file is
// only replaced when overwrite is set.
func WriteDefault(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	data, err := Default().Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Target.Port <= 0 || c.Target.Port > 0xFFFF {
		return fmt.Errorf("target.port must be 1-65535, got %d", c.Target.Port)
	}
	if _, err := epath.ParseRoute(c.Target.Route); err != nil {
		return fmt.Errorf("target.route: %w", err)
	}
	if c.Session.TimeoutMs <= 0 {
		return fmt.Errorf("session.timeout_ms must be > 0")
	}
	if _, err := c.SenderContext(); err != nil {
		return err
	}
	if c.Tuning.RPI == 0 {
		return fmt.Errorf("tuning.rpi must be > 0")
	}
	if c.Connection.SequenceStop != 0 && c.Connection.SequenceStop < c.Connection.SequenceStart {
		return fmt.Errorf("connection.sequence_stop (%d) is below sequence_start (%d)",
			c.Connection.SequenceStop, c.Connection.SequenceStart)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Logging.Format != "" && c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got '%s'", c.Logging.Format)
	}
	if c.Logging.LogEvery < 0 {
		return fmt.Errorf("logging.log_every must be >= 0")
	}
	return nil
}

// Address returns host:port for the target.
func (c *Config) Address() string {
	if c.Target.Address == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Target.Address, c.Target.Port)
}

// Timeout returns the per-exchange timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Session.TimeoutMs) * time.Millisecond
}

// SenderContext returns the 8-byte sender context. Shorter values are zero
// padded.
func (c *Config) SenderContext() ([8]byte, error) {
	var out [8]byte
	if len(c.Session.SenderContext) > len(out) {
		return out, fmt.Errorf("session.sender_context %q is longer than 8 bytes", c.Session.SenderContext)
	}
	copy(out[:], c.Session.SenderContext)
	return out, nil
}

// ToTuning converts the tuning section.
func (c *Config) ToTuning() client.Tuning {
	return client.Tuning{
		Priority:          c.Tuning.Priority,
		TimeoutTicks:      c.Tuning.TimeoutTicks,
		TimeoutMultiplier: c.Tuning.TimeoutMultiplier,
		RPI:               c.Tuning.RPI,
		TransportTrigger:  c.Tuning.TransportTrigger,
		ProtocolVersion:   c.Tuning.ProtocolVersion,
	}
}

// ToConnectionOptions converts the connection section and target route.
func (c *Config) ToConnectionOptions() (client.ConnectionOptions, error) {
	route, err := c.Route()
	if err != nil {
		return client.ConnectionOptions{}, err
	}
	return client.ConnectionOptions{
		Extended:         c.Connection.Extended,
		SerialNumber:     c.Connection.SerialNumber,
		VendorID:         c.Connection.VendorID,
		OriginatorSerial: c.Connection.OriginatorSerial,
		Route:            route,
		SequenceStart:    c.Connection.SequenceStart,
		SequenceStop:     c.Connection.SequenceStop,
	}, nil
}

// Route parses target.route.
func (c *Config) Route() (epath.Path, error) {
	route, err := epath.ParseRoute(c.Target.Route)
	if err != nil {
		return nil, fmt.Errorf("target.route: %w", err)
	}
	return route, nil
}

// NewLogger builds the logger described by the logging section.
func (c *Config) NewLogger() (*logging.Logger, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLoggerWithOptions(level, c.Logging.File, c.Logging.Format, c.Logging.LogEvery)
}

// Summary returns a human-readable summary of the configuration.
func (c *Config) Summary() string {
	var sb strings.Builder
	sb.WriteString("Configuration:\n")
	sb.WriteString(fmt.Sprintf("  Target:        %s\n", c.Address()))
	if c.Target.Route != "" {
		sb.WriteString(fmt.Sprintf("  Route:         %s\n", c.Target.Route))
	}
	sb.WriteString(fmt.Sprintf("  Timeout:       %dms\n", c.Session.TimeoutMs))
	sb.WriteString(fmt.Sprintf("  Context:       %q\n", c.Session.SenderContext))
	sb.WriteString(fmt.Sprintf("  Tuning:        priority=0x%02X ticks=0x%02X multiplier=0x%02X rpi=0x%08X trigger=0x%02X\n",
		c.Tuning.Priority, c.Tuning.TimeoutTicks, c.Tuning.TimeoutMultiplier, c.Tuning.RPI, c.Tuning.TransportTrigger))
	sb.WriteString(fmt.Sprintf("  Connection:    extended=%v csn=0x%04X vid=0x%04X vsn=0x%08X seq=%d..%d\n",
		c.Connection.Extended, c.Connection.SerialNumber, c.Connection.VendorID, c.Connection.OriginatorSerial,
		c.Connection.SequenceStart, c.Connection.SequenceStop))
	sb.WriteString(fmt.Sprintf("  Logging:       level=%s format=%s\n", c.Logging.Level, c.Logging.Format))
	return sb.String()
}
