package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/voxlay/whisperbridge/internal/config"
)

func mapLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}
}

func TestLoaderDefaults(t *testing.T) {
	loader := config.Loader{Lookup: mapLookup(nil)}
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	assertEqual(t, config.DefaultListenAddr, cfg.ListenAddr, "listen addr")
	assertEqual(t, config.DefaultHealthAddr, cfg.HealthAddr, "health addr")
	assertEqual(t, config.DefaultDataDir, cfg.DataDir, "data dir")
	assertEqual(t, config.DefaultModel, cfg.ModelVariant, "model variant")
	assertEqual(t, "", cfg.ModelPath, "model path")
	assertEqual(t, config.DefaultEngineMode, cfg.EngineMode, "engine mode")
	assertEqual(t, config.DefaultLogLevel, cfg.LogLevel, "log level")
	if cfg.Threads != config.DefaultThreads {
		t.Fatalf("expected default threads %d, got %d", config.DefaultThreads, cfg.Threads)
	}
	if !cfg.History.Enabled {
		t.Fatalf("expected history enabled by default")
	}
	assertEqual(t, filepath.Join(config.DefaultDataDir, "history.db"), cfg.History.Path, "history path")
	if cfg.MQTT.Enabled {
		t.Fatalf("expected mqtt disabled by default")
	}
	assertEqual(t, config.DefaultTopicPrefix, cfg.MQTT.TopicPrefix, "topic prefix")
}

func TestLoaderEnvOverrides(t *testing.T) {
	env := map[string]string{
		"WHISPERBRIDGE_LISTEN_ADDR":   "0.0.0.0:9090",
		"WHISPERBRIDGE_HEALTH_ADDR":   "0.0.0.0:6000",
		"WHISPERBRIDGE_DATA_DIR":      "/var/lib/whisperbridge",
		"WHISPERBRIDGE_MODEL_VARIANT": "small",
		"WHISPERBRIDGE_MODEL_PATH":    "/var/lib/whisperbridge/models/custom.bin",
		"WHISPERBRIDGE_ENGINE_MODE":   "stub",
		"WHISPERBRIDGE_THREADS":       "6",
		"WHISPERBRIDGE_LOG_LEVEL":     "debug",
		"WHISPERBRIDGE_HISTORY":       "false",
		"WHISPERBRIDGE_MQTT":          "true",
		"WHISPERBRIDGE_MQTT_BROKER":   "tcp://127.0.0.1:1883",
	}

	cfg, err := config.Loader{Lookup: mapLookup(env)}.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	assertEqual(t, "0.0.0.0:9090", cfg.ListenAddr, "listen addr")
	assertEqual(t, "0.0.0.0:6000", cfg.HealthAddr, "health addr")
	assertEqual(t, "/var/lib/whisperbridge", cfg.DataDir, "data dir")
	assertEqual(t, "small", cfg.ModelVariant, "model variant")
	assertEqual(t, "/var/lib/whisperbridge/models/custom.bin", cfg.ModelPath, "model path")
	assertEqual(t, "stub", cfg.EngineMode, "engine mode")
	assertEqual(t, "debug", cfg.LogLevel, "log level")
	if cfg.Threads != 6 {
		t.Fatalf("expected 6 threads, got %d", cfg.Threads)
	}
	if cfg.History.Enabled {
		t.Fatalf("expected history disabled")
	}
	assertEqual(t, filepath.Join("/var/lib/whisperbridge", "history.db"), cfg.History.Path, "history path")
	if !cfg.MQTT.Enabled {
		t.Fatalf("expected mqtt enabled")
	}
	assertEqual(t, "tcp://127.0.0.1:1883", cfg.MQTT.BrokerURL, "broker url")
	assertEqual(t, "whisperbridged", cfg.MQTT.ClientID, "client id")
}

func TestLoaderFilePayloadPrecedence(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
listen_addr: 127.0.0.1:7001
model_variant: tiny
threads: 2
mqtt:
  enabled: true
  broker_url: tcp://broker.local:1883
  topic_prefix: lab
`
	if err := os.WriteFile(file, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	env := map[string]string{
		config.EnvConfigFile:        file,
		"WHISPERBRIDGE_LISTEN_ADDR": "127.0.0.1:7002",
		config.EnvConfigPayload:     `{"listen_addr":"127.0.0.1:7003","threads":8}`,
	}

	cfg, err := config.Loader{Lookup: mapLookup(env)}.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// Payload beats env beats file.
	assertEqual(t, "127.0.0.1:7003", cfg.ListenAddr, "listen addr")
	assertEqual(t, "tiny", cfg.ModelVariant, "model variant")
	if cfg.Threads != 8 {
		t.Fatalf("expected payload threads to win, got %d", cfg.Threads)
	}
	if !cfg.MQTT.Enabled {
		t.Fatalf("expected mqtt enabled from file")
	}
	assertEqual(t, "tcp://broker.local:1883", cfg.MQTT.BrokerURL, "broker url")
	assertEqual(t, "lab", cfg.MQTT.TopicPrefix, "topic prefix")
}

func TestLoaderThreadsAuto(t *testing.T) {
	env := map[string]string{
		config.EnvConfigPayload: `{"threads":0}`,
	}

	cfg, err := config.Loader{Lookup: mapLookup(env)}.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Threads != config.DefaultThreads {
		t.Fatalf("expected default threads when configured as 0, got %d", cfg.Threads)
	}
}

func TestLoaderClampsThreads(t *testing.T) {
	cfg, err := config.Loader{Lookup: mapLookup(map[string]string{
		"WHISPERBRIDGE_THREADS": "99",
	})}.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Threads != config.MaxThreads {
		t.Fatalf("expected threads clamped to %d, got %d", config.MaxThreads, cfg.Threads)
	}

	cfg, err = config.Loader{Lookup: mapLookup(map[string]string{
		"WHISPERBRIDGE_THREADS": "-3",
	})}.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Threads != config.MinThreads {
		t.Fatalf("expected threads clamped to %d, got %d", config.MinThreads, cfg.Threads)
	}
}

func TestLoaderRejections(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "unknown engine mode",
			env:  map[string]string{"WHISPERBRIDGE_ENGINE_MODE": "gpu"},
		},
		{
			name: "bad threads",
			env:  map[string]string{"WHISPERBRIDGE_THREADS": "many"},
		},
		{
			name: "bad history flag",
			env:  map[string]string{"WHISPERBRIDGE_HISTORY": "yep"},
		},
		{
			name: "mqtt without broker",
			env:  map[string]string{"WHISPERBRIDGE_MQTT": "true"},
		},
		{
			name: "bad payload",
			env:  map[string]string{config.EnvConfigPayload: `{"listen_addr":`},
		},
		{
			name: "missing config file",
			env:  map[string]string{config.EnvConfigFile: "/nonexistent/config.yaml"},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if _, err := (config.Loader{Lookup: mapLookup(tc.env)}).Load(); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}

func assertEqual(t *testing.T, want, got, label string) {
	t.Helper()
	if want != got {
		t.Fatalf("unexpected %s: want %q, got %q", label, want, got)
	}
}
