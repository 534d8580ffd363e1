// Package config handles microbot configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/microbot/config.yaml, /etc/microbot/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "microbot", "config.yaml"))
	}

	paths = append(paths, "/etc/microbot/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all microbot configuration.
type Config struct {
	Listen      ListenConfig    `yaml:"listen"`
	Models      ModelsConfig    `yaml:"models"`
	Loop        LoopConfig      `yaml:"loop"`
	MQTT        MQTTConfig      `yaml:"mqtt"`
	Shell       ShellConfig     `yaml:"shell"`
	DataQuery   DataQueryConfig `yaml:"data_query"`
	DataDir     string          `yaml:"data_dir"`
	SkillsDir   string          `yaml:"skills_dir"`
	PersonaFile string          `yaml:"persona_file"`
	MemoryFile  string          `yaml:"memory_file"`
	LogLevel    string          `yaml:"log_level"`
}

// ListenConfig defines the HTTP server settings (webhook + WebSocket).
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ModelsConfig defines model backend settings.
type ModelsConfig struct {
	Default   string       `yaml:"default"`
	Provider  string       `yaml:"provider"` // ollama, openai
	OllamaURL string       `yaml:"ollama_url"`
	OpenAI    OpenAIConfig `yaml:"openai"`
}

// OpenAIConfig defines settings for an OpenAI-compatible backend.
type OpenAIConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// LoopConfig bounds the orchestration loop.
type LoopConfig struct {
	// MaxIterations caps model/tool round-trips per inbound message (default 10).
	MaxIterations int `yaml:"max_iterations"`
	// ModelTimeoutSec bounds a single model call (default 120).
	ModelTimeoutSec int `yaml:"model_timeout_sec"`
	// ToolTimeoutSec bounds a single tool execution (default 30).
	ToolTimeoutSec int `yaml:"tool_timeout_sec"`
}

// MQTTConfig defines the optional MQTT transport bridge.
type MQTTConfig struct {
	Enabled       bool   `yaml:"enabled"`
	BrokerURL     string `yaml:"broker_url"` // e.g. mqtt://broker:1883
	ClientID      string `yaml:"client_id"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	InboundTopic  string `yaml:"inbound_topic"`  // default microbot/inbound
	OutboundTopic string `yaml:"outbound_topic"` // default microbot/outbound
	KeepAliveSec  int    `yaml:"keep_alive_sec"` // default 30
}

// ShellConfig defines the built-in shell skill. Disabled by default.
type ShellConfig struct {
	Enabled           bool     `yaml:"enabled"`
	WorkingDir        string   `yaml:"working_dir"`
	DeniedPatterns    []string `yaml:"denied_patterns"`
	AllowedPrefixes   []string `yaml:"allowed_prefixes"`
	DefaultTimeoutSec int      `yaml:"default_timeout_sec"`
}

// DataQueryConfig defines the external command-line analyzer used by
// the built-in data_query skill.
type DataQueryConfig struct {
	// AnalyzerCmd is the analyzer binary invoked as:
	//   <analyzer> <file> <sql>
	AnalyzerCmd string `yaml:"analyzer_cmd"`
	// TimeoutSec bounds a single analyzer run (default 30).
	TimeoutSec int `yaml:"timeout_sec"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Models: ModelsConfig{
			Default:   "qwen3:4b",
			Provider:  "ollama",
			OllamaURL: "http://localhost:11434",
		},
		Loop: LoopConfig{
			MaxIterations:   10,
			ModelTimeoutSec: 120,
			ToolTimeoutSec:  30,
		},
		MQTT: MQTTConfig{
			InboundTopic:  "microbot/inbound",
			OutboundTopic: "microbot/outbound",
			KeepAliveSec:  30,
		},
		DataQuery: DataQueryConfig{
			AnalyzerCmd: "dsq",
			TimeoutSec:  30,
		},
		DataDir: "data",
	}
}
