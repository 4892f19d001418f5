package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// EnvConfigFile names a YAML file to layer over the defaults.
	EnvConfigFile = "WHISPERBRIDGE_CONFIG_FILE"
	// EnvConfigPayload carries a JSON document injected by the supervisor.
	// It wins over both the file and individual variables.
	EnvConfigPayload = "WHISPERBRIDGE_CONFIG"
)

// Loader loads configuration from the environment. Tests can override Lookup
// to inject deterministic maps.
type Loader struct {
	Lookup func(string) (string, bool)
}

// Load assembles the daemon configuration and validates it. Precedence, low
// to high: defaults, YAML file, WHISPERBRIDGE_* variables, JSON payload.
func (l Loader) Load() (Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}

	cfg := Config{
		ListenAddr: DefaultListenAddr,
		HealthAddr: DefaultHealthAddr,
		History:    HistoryConfig{Enabled: true},
	}

	if path, ok := l.Lookup(EnvConfigFile); ok && strings.TrimSpace(path) != "" {
		if err := applyFile(strings.TrimSpace(path), &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(l.Lookup, &cfg); err != nil {
		return Config{}, err
	}
	if raw, ok := l.Lookup(EnvConfigPayload); ok && strings.TrimSpace(raw) != "" {
		if err := applyJSON(raw, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// overlay is the wire shape shared by the YAML file and the JSON payload.
// Pointer fields distinguish "absent" from zero values.
type overlay struct {
	ListenAddr   string `json:"listen_addr" yaml:"listen_addr"`
	HealthAddr   string `json:"health_addr" yaml:"health_addr"`
	DataDir      string `json:"data_dir" yaml:"data_dir"`
	ModelVariant string `json:"model_variant" yaml:"model_variant"`
	ModelPath    string `json:"model_path" yaml:"model_path"`
	EngineMode   string `json:"engine_mode" yaml:"engine_mode"`
	Threads      *int   `json:"threads" yaml:"threads"`
	LogLevel     string `json:"log_level" yaml:"log_level"`
	History      *bool  `json:"history" yaml:"history"`
	HistoryPath  string `json:"history_path" yaml:"history_path"`
	MQTT         struct {
		Enabled     *bool  `json:"enabled" yaml:"enabled"`
		BrokerURL   string `json:"broker_url" yaml:"broker_url"`
		ClientID    string `json:"client_id" yaml:"client_id"`
		Username    string `json:"username" yaml:"username"`
		Password    string `json:"password" yaml:"password"`
		TopicPrefix string `json:"topic_prefix" yaml:"topic_prefix"`
	} `json:"mqtt" yaml:"mqtt"`
}

func (o overlay) apply(cfg *Config) {
	if o.ListenAddr != "" {
		cfg.ListenAddr = o.ListenAddr
	}
	if o.HealthAddr != "" {
		cfg.HealthAddr = o.HealthAddr
	}
	if o.DataDir != "" {
		cfg.DataDir = o.DataDir
	}
	if o.ModelVariant != "" {
		cfg.ModelVariant = o.ModelVariant
	}
	if o.ModelPath != "" {
		cfg.ModelPath = o.ModelPath
	}
	if o.EngineMode != "" {
		cfg.EngineMode = o.EngineMode
	}
	// Zero means "pick the default", matching an absent field.
	if o.Threads != nil && *o.Threads != 0 {
		cfg.Threads = *o.Threads
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if o.History != nil {
		cfg.History.Enabled = *o.History
	}
	if o.HistoryPath != "" {
		cfg.History.Path = o.HistoryPath
	}
	if o.MQTT.Enabled != nil {
		cfg.MQTT.Enabled = *o.MQTT.Enabled
	}
	if o.MQTT.BrokerURL != "" {
		cfg.MQTT.BrokerURL = o.MQTT.BrokerURL
	}
	if o.MQTT.ClientID != "" {
		cfg.MQTT.ClientID = o.MQTT.ClientID
	}
	if o.MQTT.Username != "" {
		cfg.MQTT.Username = o.MQTT.Username
	}
	if o.MQTT.Password != "" {
		cfg.MQTT.Password = o.MQTT.Password
	}
	if o.MQTT.TopicPrefix != "" {
		cfg.MQTT.TopicPrefix = o.MQTT.TopicPrefix
	}
}

func applyFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var o overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	o.apply(cfg)
	return nil
}

func applyJSON(raw string, cfg *Config) error {
	var o overlay
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		return fmt.Errorf("config: decode %s: %w", EnvConfigPayload, err)
	}
	o.apply(cfg)
	return nil
}

func applyEnv(lookup func(string) (string, bool), cfg *Config) error {
	overrideString(lookup, "WHISPERBRIDGE_LISTEN_ADDR", &cfg.ListenAddr)
	overrideString(lookup, "WHISPERBRIDGE_HEALTH_ADDR", &cfg.HealthAddr)
	overrideString(lookup, "WHISPERBRIDGE_DATA_DIR", &cfg.DataDir)
	overrideString(lookup, "WHISPERBRIDGE_MODEL_VARIANT", &cfg.ModelVariant)
	overrideString(lookup, "WHISPERBRIDGE_MODEL_PATH", &cfg.ModelPath)
	overrideString(lookup, "WHISPERBRIDGE_ENGINE_MODE", &cfg.EngineMode)
	overrideString(lookup, "WHISPERBRIDGE_LOG_LEVEL", &cfg.LogLevel)
	overrideString(lookup, "WHISPERBRIDGE_HISTORY_PATH", &cfg.History.Path)
	overrideString(lookup, "WHISPERBRIDGE_MQTT_BROKER", &cfg.MQTT.BrokerURL)
	overrideString(lookup, "WHISPERBRIDGE_MQTT_CLIENT_ID", &cfg.MQTT.ClientID)
	overrideString(lookup, "WHISPERBRIDGE_MQTT_USERNAME", &cfg.MQTT.Username)
	overrideString(lookup, "WHISPERBRIDGE_MQTT_PASSWORD", &cfg.MQTT.Password)
	overrideString(lookup, "WHISPERBRIDGE_MQTT_TOPIC_PREFIX", &cfg.MQTT.TopicPrefix)

	if err := overrideInt(lookup, "WHISPERBRIDGE_THREADS", &cfg.Threads); err != nil {
		return err
	}
	if err := overrideBool(lookup, "WHISPERBRIDGE_HISTORY", &cfg.History.Enabled); err != nil {
		return err
	}
	if err := overrideBool(lookup, "WHISPERBRIDGE_MQTT", &cfg.MQTT.Enabled); err != nil {
		return err
	}
	return nil
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideInt(lookup func(string) (string, bool), key string, target *int) error {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", key, err)
	}
	*target = parsed
	return nil
}

func overrideBool(lookup func(string) (string, bool), key string, target *bool) error {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("config: parse %s: %w", key, err)
	}
	*target = parsed
	return nil
}
