package config

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Lookup reads an environment variable; os.LookupEnv in production.
type Lookup func(string) (string, bool)

// Parse resolves the configuration for a daemon named name. The file comes
// from --config or RADAR_CONFIG; without one the defaults are the base layer.
func Parse(name string, args []string, lookup Lookup) (*Config, error) {
	path := configPath(args, envString(lookup, "RADAR_CONFIG", ""))

	cfg := Defaults()
	if path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}

	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", path, "YAML configuration file")
	bindFlags(fs, &cfg)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// configPath finds --config in args without failing on the other flags.
func configPath(args []string, fallback string) string {
	fs := pflag.NewFlagSet("config", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	path := fs.String("config", fallback, "")
	_ = fs.Parse(args)
	return *path
}

func bindFlags(fs *pflag.FlagSet, c *Config) {
	fs.StringVarP(&c.Listen, "listen", "l", c.Listen, "control WebSocket listen address")

	hw := &c.Hardware
	fs.StringVar(&hw.Backend, "backend", hw.Backend, "hardware backend (sim|devmem|ssh)")
	fs.Uint32Var(&hw.CoreBase, "core-base", hw.CoreBase, "physical base of the modulator core")
	fs.Uint32Var(&hw.DMABase, "dma-base", hw.DMABase, "physical base of the AXI DMA core")
	fs.StringVar(&hw.UDMABuf, "udmabuf", hw.UDMABuf, "u-dma-buf device receiving debug captures")
	fs.DurationVar(&hw.SimLatency, "sim-latency", hw.SimLatency, "simulated DMA latency")
	fs.StringVar(&hw.SSH.Host, "ssh-host", hw.SSH.Host, "board address for the ssh backend")
	fs.StringVar(&hw.SSH.User, "ssh-user", hw.SSH.User, "ssh login")
	fs.StringVar(&hw.SSH.KeyPath, "ssh-key", hw.SSH.KeyPath, "ssh private key file")

	g := &c.Generator
	fs.DurationVar(&g.PollInterval, "poll-interval", g.PollInterval, "DMA completion poll interval")
	fs.DurationVar(&g.CaptureTimeout, "capture-timeout", g.CaptureTimeout, "debug capture deadline")
	fs.IntVar(&g.MailboxSize, "mailbox-size", g.MailboxSize, "actor mailbox capacity")
	fs.IntVar(&g.ToneBlock, "tone-block", g.ToneBlock, "capture tone estimate FFT length, 0 to disable")

	fs.StringVar(&c.Telemetry.WebAddr, "web-addr", c.Telemetry.WebAddr, "telemetry HTTP listen address, empty to disable")
	fs.IntVar(&c.Telemetry.HistoryLimit, "history-limit", c.Telemetry.HistoryLimit, "telemetry events kept in history")

	fs.BoolVar(&c.MQTT.Enabled, "mqtt", c.MQTT.Enabled, "publish telemetry to MQTT")
	fs.StringVar(&c.MQTT.Host, "mqtt-host", c.MQTT.Host, "MQTT broker host")
	fs.IntVar(&c.MQTT.Port, "mqtt-port", c.MQTT.Port, "MQTT broker port")

	fs.StringVar(&c.Archive.Dir, "archive-dir", c.Archive.Dir, "directory for parquet capture files, empty to disable")
	fs.BoolVar(&c.MDNS.Enabled, "mdns", c.MDNS.Enabled, "announce the control service over mDNS")
	fs.StringVar(&c.MDNS.Instance, "mdns-instance", c.MDNS.Instance, "mDNS instance name")

	fs.StringVar(&c.Logging.Level, "log-level", c.Logging.Level, "log level (debug|info|warn|error)")
	fs.StringVar(&c.Logging.Format, "log-format", c.Logging.Format, "log format (text|json)")
	fs.StringVar(&c.Logging.Output, "log-output", c.Logging.Output, "log destination (stderr|stdout|file path)")
}

func applyEnv(c *Config, lookup Lookup) error {
	var err error
	c.Listen = envString(lookup, "RADAR_LISTEN", c.Listen)
	c.Hardware.Backend = envString(lookup, "RADAR_BACKEND", c.Hardware.Backend)
	if c.Hardware.CoreBase, err = envUint32(lookup, "RADAR_CORE_BASE", c.Hardware.CoreBase); err != nil {
		return err
	}
	if c.Hardware.DMABase, err = envUint32(lookup, "RADAR_DMA_BASE", c.Hardware.DMABase); err != nil {
		return err
	}
	c.Hardware.SSH.Host = envString(lookup, "RADAR_SSH_HOST", c.Hardware.SSH.Host)
	c.Hardware.SSH.User = envString(lookup, "RADAR_SSH_USER", c.Hardware.SSH.User)
	c.Hardware.SSH.Password = envString(lookup, "RADAR_SSH_PASSWORD", c.Hardware.SSH.Password)
	c.Hardware.SSH.KeyPath = envString(lookup, "RADAR_SSH_KEY", c.Hardware.SSH.KeyPath)

	if c.Generator.PollInterval, err = envDuration(lookup, "RADAR_POLL_INTERVAL", c.Generator.PollInterval); err != nil {
		return err
	}
	if c.Generator.CaptureTimeout, err = envDuration(lookup, "RADAR_CAPTURE_TIMEOUT", c.Generator.CaptureTimeout); err != nil {
		return err
	}

	c.Telemetry.WebAddr = envString(lookup, "RADAR_WEB_ADDR", c.Telemetry.WebAddr)
	if c.Telemetry.HistoryLimit, err = envInt(lookup, "RADAR_HISTORY_LIMIT", c.Telemetry.HistoryLimit); err != nil {
		return err
	}

	if host, ok := lookup("RADAR_MQTT_HOST"); ok {
		c.MQTT.Host = host
		c.MQTT.Enabled = host != ""
	}
	c.MQTT.Username = envString(lookup, "RADAR_MQTT_USERNAME", c.MQTT.Username)
	c.MQTT.Password = envString(lookup, "RADAR_MQTT_PASSWORD", c.MQTT.Password)

	c.Archive.Dir = envString(lookup, "RADAR_ARCHIVE_DIR", c.Archive.Dir)
	if c.MDNS.Enabled, err = envBool(lookup, "RADAR_MDNS", c.MDNS.Enabled); err != nil {
		return err
	}

	c.Logging.Level = envString(lookup, "RADAR_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = envString(lookup, "RADAR_LOG_FORMAT", c.Logging.Format)
	c.Logging.Output = envString(lookup, "RADAR_LOG_OUTPUT", c.Logging.Output)
	return nil
}

func envString(lookup Lookup, key, def string) string {
	if val, ok := lookup(key); ok {
		return val
	}
	return def
}

func envInt(lookup Lookup, key string, def int) (int, error) {
	val, ok := lookup(key)
	if !ok {
		return def, nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}

func envUint32(lookup Lookup, key string, def uint32) (uint32, error) {
	val, ok := lookup(key)
	if !ok {
		return def, nil
	}
	parsed, err := strconv.ParseUint(strings.TrimSpace(val), 0, 32)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return uint32(parsed), nil
}

func envDuration(lookup Lookup, key string, def time.Duration) (time.Duration, error) {
	val, ok := lookup(key)
	if !ok {
		return def, nil
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(val))
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}

func envBool(lookup Lookup, key string, def bool) (bool, error) {
	val, ok := lookup(key)
	if !ok {
		return def, nil
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}
