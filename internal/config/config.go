// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Links []LinkConfig `yaml:"links"`
	MQTT  MQTTConfig   `yaml:"mqtt"`
	HTTP  HTTPConfig   `yaml:"http"`
}

// ---- LINK ----

type LinkConfig struct {
	ID        string          `yaml:"id"`
	Protocol  string          `yaml:"protocol"` // pace-lv | pace-lv-v1 | jk-modbus | tdt
	Transport TransportConfig `yaml:"transport"`
	Poll      PollConfig      `yaml:"poll"`
}

// ---- TRANSPORT ----

type TransportConfig struct {
	Kind      string `yaml:"kind"` // usb-serial | serial-over-tcp | serial-over-websocket
	Address   string `yaml:"address"`
	BaudRate  int    `yaml:"baud_rate"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- POLL ----

type PollConfig struct {
	IntervalMs       int `yaml:"interval_ms"`
	SettleMs         int `yaml:"settle_ms"`
	RequestRetries   int `yaml:"request_retries"`
	EnumerateRetries int `yaml:"enumerate_retries"`
	ReconnectDelayMs int `yaml:"reconnect_delay_ms"`
	MaxPacks         int `yaml:"max_packs"`

	// JK Modbus only: chained packs answer on consecutive slave addresses.
	FirstAddress int `yaml:"first_address"`
	CellCount    int `yaml:"cell_count"`
}

// ---- PUBLISHERS ----

type MQTTConfig struct {
	Broker    string `yaml:"broker"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	ClientID  string `yaml:"client_id"`
	BaseTopic string `yaml:"base_topic"`
}

type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// ---- DERIVED DURATIONS ----

func (t TransportConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutMs) * time.Millisecond
}

func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMs) * time.Millisecond
}

func (p PollConfig) Settle() time.Duration {
	return time.Duration(p.SettleMs) * time.Millisecond
}

func (p PollConfig) ReconnectDelay() time.Duration {
	return time.Duration(p.ReconnectDelayMs) * time.Millisecond
}

// Load reads and decodes the YAML configuration file.
// Validation and normalization are separate passes.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return &cfg, nil
}
