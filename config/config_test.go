package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("sample rate = %d, want 16000", cfg.Audio.SampleRate)
	}
	if cfg.Segmenter.MaxSegmentSec <= cfg.Segmenter.MinSegmentSec {
		t.Errorf("segment bounds inverted: min=%v max=%v", cfg.Segmenter.MinSegmentSec, cfg.Segmenter.MaxSegmentSec)
	}
	if cfg.Transcriber.Backend != "whispercpp" {
		t.Errorf("backend = %s, want whispercpp", cfg.Transcriber.Backend)
	}
	if cfg.Worker.PoolSize < 1 || cfg.Worker.QueueSize < 1 {
		t.Errorf("worker defaults = %+v", cfg.Worker)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SPEECHFORGE_SERVER_PORT", "9090")
	t.Setenv("SPEECHFORGE_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090 from environment", cfg.Server.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %s, want debug", cfg.LogLevel)
	}
}

func TestLoadRejectsHTTPBackendWithoutURL(t *testing.T) {
	t.Setenv("SPEECHFORGE_TRANSCRIBER_BACKEND", "http")

	if _, err := Load(); err == nil {
		t.Fatal("http backend without url should fail validation")
	}

	t.Setenv("SPEECHFORGE_TRANSCRIBER_URL", "http://localhost:9000")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load with url set: %v", err)
	}
	if cfg.Transcriber.Backend != "http" {
		t.Errorf("backend = %s, want http", cfg.Transcriber.Backend)
	}
}

func TestLoadRejectsInvalidBackend(t *testing.T) {
	t.Setenv("SPEECHFORGE_TRANSCRIBER_BACKEND", "carrier-pigeon")

	if _, err := Load(); err == nil {
		t.Fatal("unknown backend should fail validation")
	}
}
