package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Setenv("POSTGRES_URI", "postgres://localhost/retracer")
	t.Setenv("TOKEN", "secret")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("TESTNET", "true")
	t.Setenv("EMULATOR_TIMEOUT", "5s")
	t.Setenv("WORKERS", "4")

	c := Load()
	if c.LogLevel != slog.LevelDebug {
		t.Errorf("unexpected log level %v", c.LogLevel)
	}
	if !c.Testnet || c.EmulatorTimeout != 5*time.Second || c.Workers != 4 {
		t.Errorf("unexpected config %+v", c)
	}
	if c.Port != 8081 || c.JobTimeout != 2*time.Minute || c.RedisAddr != "localhost:6379" {
		t.Errorf("unexpected defaults %+v", c)
	}
}

func TestLoad_Required(t *testing.T) {
	for _, key := range []string{"POSTGRES_URI", "TOKEN"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	var c Config
	if err := load(&c); err == nil {
		t.Fatalf("expected error for missing required variables")
	}
}

func TestLoad_InvalidLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "LOUD")
	var c Replay
	if err := load(&c); err == nil {
		t.Fatalf("expected error for invalid log level")
	}
}

func TestLoadReplay(t *testing.T) {
	t.Setenv("REQUEST_DELAY", "100ms")
	c := LoadReplay()
	if c.RequestDelay != 100*time.Millisecond || c.EmulatorQueue == "" {
		t.Errorf("unexpected config %+v", c)
	}
}
