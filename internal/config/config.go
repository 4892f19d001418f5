package config

import (
	"fmt"
	"path/filepath"
)

const (
	// DefaultListenAddr is where the HTTP data plane binds when the runner
	// does not inject an explicit address.
	DefaultListenAddr = "127.0.0.1:8085"
	// DefaultHealthAddr is where the gRPC health endpoint binds.
	DefaultHealthAddr = "127.0.0.1:50051"
	DefaultDataDir    = "data"
	DefaultModel      = "base"
	DefaultEngineMode = "auto"
	DefaultThreads    = 4
	DefaultLogLevel   = "info"

	// DefaultTopicPrefix scopes MQTT event topics.
	DefaultTopicPrefix = "whisperbridge"

	MinThreads = 1
	MaxThreads = 16
)

// Config captures bootstrap configuration assembled from defaults, an
// optional YAML file, environment variables, and an injected JSON payload
// (`WHISPERBRIDGE_CONFIG`).
type Config struct {
	ListenAddr   string
	HealthAddr   string
	DataDir      string
	ModelVariant string
	ModelPath    string
	EngineMode   string
	Threads      int
	LogLevel     string
	History      HistoryConfig
	MQTT         MQTTConfig
}

// HistoryConfig controls the sqlite transcript log.
type HistoryConfig struct {
	Enabled bool
	Path    string
}

// MQTTConfig controls the optional event publisher.
type MQTTConfig struct {
	Enabled     bool
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// Validate applies defaults, checks required fields, and clamps out-of-range
// values.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen address is required")
	}
	if c.HealthAddr == "" {
		return fmt.Errorf("config: health address is required")
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.ModelVariant == "" {
		c.ModelVariant = DefaultModel
	}
	if c.EngineMode == "" {
		c.EngineMode = DefaultEngineMode
	}
	switch c.EngineMode {
	case "auto", "native", "stub":
	default:
		return fmt.Errorf("config: unknown engine mode %q", c.EngineMode)
	}
	if c.Threads == 0 {
		c.Threads = DefaultThreads
	}
	if c.Threads < MinThreads {
		c.Threads = MinThreads
	}
	if c.Threads > MaxThreads {
		c.Threads = MaxThreads
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.History.Path == "" {
		c.History.Path = filepath.Join(c.DataDir, "history.db")
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = DefaultTopicPrefix
	}
	if c.MQTT.Enabled {
		if c.MQTT.BrokerURL == "" {
			return fmt.Errorf("config: mqtt enabled without a broker url")
		}
		if c.MQTT.ClientID == "" {
			c.MQTT.ClientID = "whisperbridged"
		}
	}
	return nil
}
