package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) Lookup {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "radard.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
listen: ":9000"
hardware:
  backend: ssh
  core_base: 0x43c00000
  ssh:
    host: rp-f0.local
generator:
  capture_timeout: 500ms
mqtt:
  enabled: true
  host: broker.lan
  topic_prefix: lab/radar
logging:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9000" || cfg.Hardware.Backend != BackendSSH || cfg.Hardware.CoreBase != 0x43c00000 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Hardware.SSH.Host != "rp-f0.local" || cfg.Hardware.SSH.User != "root" {
		t.Fatalf("ssh section not merged over defaults: %+v", cfg.Hardware.SSH)
	}
	if cfg.Generator.CaptureTimeout != 500*time.Millisecond || cfg.Generator.PollInterval != 10*time.Millisecond {
		t.Fatalf("unexpected generator timing %+v", cfg.Generator)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Host != "broker.lan" || cfg.MQTT.TopicPrefix != "lab/radar" || cfg.MQTT.Port != 1883 {
		t.Fatalf("unexpected mqtt %+v", cfg.MQTT)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "listen: [")); err == nil {
		t.Fatalf("expected parse error")
	}
	_, err := Load(writeConfig(t, "hardware:\n  backend: ssh\n"))
	if err == nil || !strings.Contains(err.Error(), "ssh host") {
		t.Fatalf("expected ssh host error, got %v", err)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Hardware.Backend = "jtag"
	cfg.Generator.MailboxSize = 0
	cfg.Logging.Format = "xml"
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"jtag", "mailbox", "xml"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %q", err, want)
		}
	}
}

func TestValidateCaptureTimeout(t *testing.T) {
	cfg := Defaults()
	cfg.Generator.CaptureTimeout = time.Millisecond
	if err := cfg.Validate(); err == nil {
		t.Fatalf("timeout shorter than poll interval accepted")
	}
}

func TestParseLayers(t *testing.T) {
	path := writeConfig(t, "listen: \":9000\"\ntelemetry:\n  history_limit: 50\n")
	env := envMap(map[string]string{
		"RADAR_CONFIG":        path,
		"RADAR_LISTEN":        ":9100",
		"RADAR_CORE_BASE":     "0x43c00000",
		"RADAR_HISTORY_LIMIT": "75",
		"RADAR_MQTT_HOST":     "broker.lan",
	})
	cfg, err := Parse("radard", []string{"--listen", ":9200", "--poll-interval=5ms"}, env)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Listen != ":9200" {
		t.Fatalf("flag did not override env: %s", cfg.Listen)
	}
	if cfg.Telemetry.HistoryLimit != 75 {
		t.Fatalf("env did not override file: %d", cfg.Telemetry.HistoryLimit)
	}
	if cfg.Hardware.CoreBase != 0x43c00000 {
		t.Fatalf("hex env not parsed: %#x", cfg.Hardware.CoreBase)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Host != "broker.lan" {
		t.Fatalf("RADAR_MQTT_HOST did not enable mqtt: %+v", cfg.MQTT)
	}
	if cfg.Generator.PollInterval != 5*time.Millisecond {
		t.Fatalf("poll interval %s", cfg.Generator.PollInterval)
	}
}

func TestParseConfigFlag(t *testing.T) {
	path := writeConfig(t, "hardware:\n  backend: devmem\n")
	cfg, err := Parse("radard", []string{"--backend", "sim", "--config", path, "--core-base", "0x40000000"}, noEnv)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Hardware.Backend != BackendSim || cfg.Hardware.CoreBase != 0x40000000 {
		t.Fatalf("unexpected hardware %+v", cfg.Hardware)
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse("radard", []string{"--no-such-flag"}, noEnv); err == nil {
		t.Fatalf("unknown flag accepted")
	}
	if _, err := Parse("radard", nil, envMap(map[string]string{"RADAR_POLL_INTERVAL": "soon"})); err == nil {
		t.Fatalf("bad env duration accepted")
	}
	if _, err := Parse("radard", []string{"--backend", "jtag"}, noEnv); err == nil {
		t.Fatalf("invalid backend accepted")
	}
}
