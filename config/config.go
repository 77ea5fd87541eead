// Package config loads the demo session configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Transport names accepted by broker.transport
const (
	TransportTCP       = "tcp"
	TransportWebsocket = "websocket"
)

// Config is the complete session configuration
type Config struct {
	Broker  BrokerConfig  `yaml:"broker"`
	Client  ClientConfig  `yaml:"client"`
	Retry   RetryConfig   `yaml:"retry"`
	Session SessionConfig `yaml:"session"`
	Log     LogConfig     `yaml:"log"`
}

// BrokerConfig where and how to reach the MQTT server
type BrokerConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	Port          uint16        `yaml:"port"`
	Transport     string        `yaml:"transport"`
	WebsocketPath string        `yaml:"websocket_path"`
	SendTimeout   time.Duration `yaml:"send_timeout"`
	RecvTimeout   time.Duration `yaml:"recv_timeout"`
}

// ClientConfig the MQTT client identity and engine sizing
type ClientConfig struct {
	ClientID          string        `yaml:"client_id"`
	KeepAlive         time.Duration `yaml:"keep_alive"`
	ConnAckTimeout    time.Duration `yaml:"connack_timeout"`
	NetworkBufferSize int           `yaml:"network_buffer_size"`
	OutgoingRecords   int           `yaml:"outgoing_publish_records"`
	IncomingRecords   int           `yaml:"incoming_publish_records"`
}

// RetryConfig the connection retry policy
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
}

// SessionConfig what a single iteration does
type SessionConfig struct {
	TopicCount         int           `yaml:"topic_count"`
	TopicBufferSize    int           `yaml:"topic_buffer_size"`
	Message            string        `yaml:"message"`
	Iterations         int           `yaml:"iterations"`
	IterationDelay     time.Duration `yaml:"iteration_delay"`
	ProcessLoopTimeout time.Duration `yaml:"process_loop_timeout"`
	PublishInterval    time.Duration `yaml:"publish_interval"`
	AckReason          string        `yaml:"ack_reason"`
	Subscribe          bool          `yaml:"subscribe"`
	BadAuthProbe       bool          `yaml:"bad_auth_probe"`
	WillProbe          bool          `yaml:"will_probe"`
}

// LogConfig logger settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration of the plaintext demo
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			Endpoint:      "localhost",
			Port:          8883,
			Transport:     TransportTCP,
			WebsocketPath: "/mqtt",
			SendTimeout:   200 * time.Millisecond,
			RecvTimeout:   200 * time.Millisecond,
		},
		Client: ClientConfig{
			KeepAlive:         60 * time.Second,
			ConnAckTimeout:    time.Second,
			NetworkBufferSize: 1024,
			OutgoingRecords:   15,
			IncomingRecords:   15,
		},
		Retry: RetryConfig{
			MaxAttempts: 5,
			BaseBackoff: 500 * time.Millisecond,
			MaxBackoff:  5 * time.Second,
		},
		Session: SessionConfig{
			TopicCount:         3,
			TopicBufferSize:    100,
			Message:            "Hello World!",
			IterationDelay:     5 * time.Second,
			ProcessLoopTimeout: 2 * time.Second,
			AckReason:          "test",
			BadAuthProbe:       true,
			WillProbe:          true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads the configuration from filename on top of the defaults. An
// empty filename or a missing file yields the defaults. An empty
// client.client_id is replaced by a generated one.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename != "" {
		data, err := os.ReadFile(filename)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if cfg.Client.ClientID == "" {
		cfg.Client.ClientID = GenerateClientID()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// GenerateClientID returns "testClient" followed by 12 hex characters
func GenerateClientID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "testClient" + id[:12]
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Broker.Endpoint == "" {
		return fmt.Errorf("broker.endpoint cannot be empty")
	}
	if c.Broker.Port == 0 {
		return fmt.Errorf("broker.port cannot be 0")
	}
	switch c.Broker.Transport {
	case TransportTCP:
	case TransportWebsocket:
		if !strings.HasPrefix(c.Broker.WebsocketPath, "/") {
			return fmt.Errorf("broker.websocket_path must start with '/'")
		}
	default:
		return fmt.Errorf("broker.transport must be one of: %s, %s", TransportTCP, TransportWebsocket)
	}
	if c.Broker.SendTimeout <= 0 {
		return fmt.Errorf("broker.send_timeout must be positive")
	}
	if c.Broker.RecvTimeout <= 0 {
		return fmt.Errorf("broker.recv_timeout must be positive")
	}

	if len(c.Client.ClientID) > 65535 {
		return fmt.Errorf("client.client_id is too long")
	}
	if c.Client.KeepAlive < 0 || c.Client.KeepAlive > 65535*time.Second {
		return fmt.Errorf("client.keep_alive must be between 0s and 65535s")
	}
	if c.Client.ConnAckTimeout <= 0 {
		return fmt.Errorf("client.connack_timeout must be positive")
	}
	if c.Client.NetworkBufferSize < 16 {
		return fmt.Errorf("client.network_buffer_size must be at least 16")
	}
	if c.Broker.RecvTimeout >= c.Client.ConnAckTimeout {
		return fmt.Errorf("broker.recv_timeout must be below client.connack_timeout")
	}
	if c.Client.OutgoingRecords < 0 || c.Client.IncomingRecords < 0 {
		return fmt.Errorf("client.outgoing_publish_records and client.incoming_publish_records cannot be negative")
	}

	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive")
	}
	if c.Retry.BaseBackoff <= 0 {
		return fmt.Errorf("retry.base_backoff must be positive")
	}
	if c.Retry.MaxBackoff < c.Retry.BaseBackoff {
		return fmt.Errorf("retry.max_backoff cannot be below retry.base_backoff")
	}

	if c.Session.TopicCount < 0 {
		return fmt.Errorf("session.topic_count cannot be negative")
	}
	if c.Session.TopicBufferSize <= 0 {
		return fmt.Errorf("session.topic_buffer_size must be positive")
	}
	if c.Session.Subscribe && c.Session.TopicCount == 0 {
		return fmt.Errorf("session.subscribe needs a session.topic_count above 0")
	}
	if c.Session.IterationDelay < 0 {
		return fmt.Errorf("session.iteration_delay cannot be negative")
	}
	if c.Session.ProcessLoopTimeout <= c.Broker.RecvTimeout {
		return fmt.Errorf("session.process_loop_timeout must be above broker.recv_timeout")
	}
	if c.Session.PublishInterval < 0 {
		return fmt.Errorf("session.publish_interval cannot be negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be one of: text, json")
	}
	if c.Log.Output != "stdout" && c.Log.Output != "stderr" {
		return fmt.Errorf("log.output must be one of: stdout, stderr")
	}

	return nil
}
