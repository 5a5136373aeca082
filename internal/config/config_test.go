package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RELAY_SECRET", "s3cret")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 8080 || cfg.Mode != "release" || cfg.FrameBackpressure != "drop" || !cfg.MeshEnforceInitiator {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.RingTimeout != 0 {
		t.Fatalf("ring timeout default = %v, want disabled", cfg.RingTimeout)
	}
	if got := cfg.PongWait(); got != 60*time.Second {
		t.Fatalf("PongWait = %v, want 60s", got)
	}
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	path := writeConfig(t, `
mode: debug
port: 9090
secret: s3cret
ring_timeout: 30s
frame_backpressure: kick
mesh_enforce_initiator: false
`)
	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9090 || cfg.Mode != "debug" || cfg.RingTimeout != 30*time.Second || cfg.FrameBackpressure != "kick" || cfg.MeshEnforceInitiator {
		t.Fatalf("file values not applied: %+v", cfg)
	}

	t.Setenv("RELAY_PORT", "7000")
	cfg, err = Load(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 7000 {
		t.Fatalf("env override: port = %d, want 7000", cfg.Port)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("port", 8080, "")
	if err := fs.Parse([]string{"--port=9999"}); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(path, fs)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9999 {
		t.Fatalf("flag override: port = %d, want 9999", cfg.Port)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"backpressure":       "secret: s3cret\nframe_backpressure: shout\n",
		"port":               "secret: s3cret\nport: 70000\n",
		"send buffer":        "secret: s3cret\nsend_buffer: 0\n",
		"no identity source": "mode: release\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body), nil); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestIdentitySource(t *testing.T) {
	t.Setenv("RELAY_SECRET", "")
	t.Setenv("RELAY_TRUSTED_HEADER", "")
	cfg, err := Load(writeConfig(t, "mode: release\ntrusted_header: X-User\n"), nil)
	if err != nil {
		t.Fatalf("trusted header alone should be enough: %v", err)
	}
	if cfg.TrustedHeader != "X-User" {
		t.Fatalf("trusted_header = %q", cfg.TrustedHeader)
	}

	_, err = Load(writeConfig(t, "mode: release\n"), nil)
	if err == nil || !strings.Contains(err.Error(), "identity source") {
		t.Fatalf("release without secret or trusted_header = %v, want identity source error", err)
	}
}
