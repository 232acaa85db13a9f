package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rjboer/radarcore/internal/config"
	"github.com/rjboer/radarcore/internal/hw"
	"github.com/rjboer/radarcore/internal/logging"
	"github.com/rjboer/radarcore/internal/telemetry"
)

func testLogger(t *testing.T) logging.Logger {
	t.Helper()
	return logging.New(logging.Debug, logging.Text, io.Discard)
}

func TestSelectSimBackend(t *testing.T) {
	cfg := config.Defaults().Hardware
	hwd, err := selectBackend(cfg)
	if err != nil {
		t.Fatalf("selectBackend: %v", err)
	}
	defer hwd.Close()
	if hwd.sim == nil || hwd.regs == nil || hwd.dma == nil {
		t.Fatalf("sim backend incomplete: %+v", hwd)
	}
	if err := hwd.regs.WriteWord(cfg.CoreBase+hw.RegFreq, 7); err != nil {
		t.Fatalf("write: %v", err)
	}
	if hwd.sim.Register(hw.RegFreq) != 7 {
		t.Fatalf("sim not based at core base")
	}
}

func TestSelectBackendErrors(t *testing.T) {
	cfg := config.Defaults().Hardware
	cfg.Backend = "jtag"
	if _, err := selectBackend(cfg); err == nil {
		t.Fatalf("unknown backend accepted")
	}
	cfg.Backend = config.BackendSSH
	cfg.SSH.Host = ""
	if _, err := selectBackend(cfg); err == nil {
		t.Fatalf("ssh backend without host accepted")
	}
}

func TestNoDataPathFails(t *testing.T) {
	if err := (noDataPath{}).Start(make([]byte, 4), 4); !errors.Is(err, hw.ErrAccess) {
		t.Fatalf("expected ErrAccess, got %v", err)
	}
}

func TestBuildReporters(t *testing.T) {
	cfg := config.Defaults()
	cfg.Telemetry.WebAddr = ""
	cfg.Archive.Dir = t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reporters, closeAll, err := buildReporters(ctx, &cfg, testLogger(t))
	if err != nil {
		t.Fatalf("buildReporters: %v", err)
	}
	if len(reporters) != 2 {
		t.Fatalf("expected log and archive reporters, got %d", len(reporters))
	}
	reporters.Report(telemetry.Event{Kind: telemetry.KindAck, Retval: "ACK"})
	closeAll()
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := config.Defaults()
	cfg.Listen = "127.0.0.1:0"
	cfg.Telemetry.WebAddr = ""
	cfg.MDNS.Enabled = false
	cfg.Logging.Output = filepath.Join(t.TempDir(), "radard.log")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, &cfg) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("run did not stop")
	}
}

func noEnv(string) (string, bool) { return "", false }

func TestCLIExitCodes(t *testing.T) {
	quiet := []string{"--web-addr=", "--mdns=false", "--log-output=" + filepath.Join(t.TempDir(), "radard.log")}

	var stderr bytes.Buffer
	if code := cli(context.Background(), []string{"--help"}, noEnv, &stderr); code != 0 {
		t.Fatalf("--help exit code %d", code)
	}
	if code := cli(context.Background(), []string{"--backend=fpga"}, noEnv, &stderr); code != 2 {
		t.Fatalf("bad backend exit code %d", code)
	}

	stderr.Reset()
	args := append([]string{"--listen=127.0.0.1:notaport"}, quiet...)
	if code := cli(context.Background(), args, noEnv, &stderr); code != 1 {
		t.Fatalf("listen failure exit code %d", code)
	}
	if !strings.Contains(stderr.String(), "listen") {
		t.Fatalf("listen failure not reported: %q", stderr.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	args = append([]string{"--listen=127.0.0.1:0"}, quiet...)
	if code := cli(ctx, args, noEnv, &stderr); code != 0 {
		t.Fatalf("canceled run exit code %d: %s", code, stderr.String())
	}
}
