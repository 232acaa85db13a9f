// Package config loads the daemon configuration. Values are layered:
// built-in defaults, then the YAML file, then RADAR_* environment variables,
// then command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rjboer/radarcore/internal/logging"
	"github.com/rjboer/radarcore/internal/telemetry"
)

// Hardware backends.
const (
	BackendSim    = "sim"
	BackendDevMem = "devmem"
	BackendSSH    = "ssh"
)

// Config is the complete daemon configuration.
type Config struct {
	Listen    string          `yaml:"listen"`
	Hardware  HardwareConfig  `yaml:"hardware"`
	Generator GeneratorConfig `yaml:"generator"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Archive   ArchiveConfig   `yaml:"archive"`
	MDNS      MDNSConfig      `yaml:"mdns"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// HardwareConfig selects and addresses the register and DMA backend.
type HardwareConfig struct {
	Backend  string `yaml:"backend"`
	CoreBase uint32 `yaml:"core_base"`
	DMABase  uint32 `yaml:"dma_base"`
	// MapSize is the span of the /dev/mem mapping, covering core and DMA.
	MapSize    uint32        `yaml:"map_size"`
	DevMemPath string        `yaml:"devmem_path"`
	UDMABuf    string        `yaml:"udmabuf"`
	SimLatency time.Duration `yaml:"sim_latency"`
	SSH        SSHConfig     `yaml:"ssh"`
}

type SSHConfig struct {
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	User       string        `yaml:"user"`
	Password   string        `yaml:"password"`
	KeyPath    string        `yaml:"key_path"`
	DevmemPath string        `yaml:"devmem_path"`
	Timeout    time.Duration `yaml:"timeout"`
}

// GeneratorConfig tunes the engine and the session actors.
type GeneratorConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
	MailboxSize    int           `yaml:"mailbox_size"`
	// ToneBlock is the FFT length of the capture tone estimate; 0 disables it.
	ToneBlock int `yaml:"tone_block"`
}

type TelemetryConfig struct {
	WebAddr      string `yaml:"web_addr"`
	HistoryLimit int    `yaml:"history_limit"`
}

type MQTTConfig struct {
	Enabled bool `yaml:"enabled"`

	telemetry.MQTTConfig `yaml:",inline"`
}

type ArchiveConfig struct {
	Dir string `yaml:"dir"`
}

type MDNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

// LoggingConfig selects the log level, format and destination. Output is
// "stderr", "stdout" or a file path rotated by size.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Listen: ":8600",
		Hardware: HardwareConfig{
			Backend:    BackendSim,
			CoreBase:   0x40600000,
			DMABase:    0x40400000,
			MapSize:    0x00300000,
			DevMemPath: "/dev/mem",
			UDMABuf:    "udmabuf0",
			SSH: SSHConfig{
				Port:       22,
				User:       "root",
				DevmemPath: "devmem",
				Timeout:    5 * time.Second,
			},
		},
		Generator: GeneratorConfig{
			PollInterval:   10 * time.Millisecond,
			CaptureTimeout: 2 * time.Second,
			MailboxSize:    5,
			ToneBlock:      4096,
		},
		Telemetry: TelemetryConfig{
			WebAddr:      ":8080",
			HistoryLimit: 500,
		},
		MQTT: MQTTConfig{MQTTConfig: telemetry.MQTTConfig{Port: 1883, TopicPrefix: "radar"}},
		MDNS: MDNSConfig{Enabled: true},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
	}
}

// LoadFile reads path over the defaults. It does not validate, so env and
// flags can still fix values before Validate runs.
func LoadFile(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}

	switch c.Hardware.Backend {
	case BackendSim, BackendDevMem:
	case BackendSSH:
		if c.Hardware.SSH.Host == "" {
			errs = append(errs, errors.New("ssh host is required for the ssh backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown hardware backend %q", c.Hardware.Backend))
	}
	if c.Hardware.Backend == BackendDevMem && c.Hardware.MapSize == 0 {
		errs = append(errs, errors.New("devmem map size is required"))
	}

	g := c.Generator
	if g.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if g.CaptureTimeout < g.PollInterval {
		errs = append(errs, fmt.Errorf("capture timeout %s is shorter than poll interval %s", g.CaptureTimeout, g.PollInterval))
	}
	if g.MailboxSize < 1 {
		errs = append(errs, errors.New("mailbox size must be at least 1"))
	}
	if g.ToneBlock != 0 && g.ToneBlock < 16 {
		errs = append(errs, fmt.Errorf("tone block %d is too short", g.ToneBlock))
	}

	if c.Telemetry.HistoryLimit < 1 || c.Telemetry.HistoryLimit > 10_000 {
		errs = append(errs, fmt.Errorf("history limit must be between 1 and 10000"))
	}

	if c.MQTT.Enabled {
		if c.MQTT.Host == "" {
			errs = append(errs, errors.New("MQTT host is required when MQTT is enabled"))
		}
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, errors.New("MQTT topic prefix is required"))
		}
		if c.MQTT.QoS > 2 {
			errs = append(errs, fmt.Errorf("MQTT qos %d out of range", c.MQTT.QoS))
		}
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
