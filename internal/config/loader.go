package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the CLI and the HTTP server.
// Zero values mean "unspecified" and are replaced by Defaults.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`

	// Session defaults.
	Org          string   `json:"org" yaml:"org" toml:"org"`
	DefaultModel string   `json:"default_model" yaml:"default_model" toml:"default_model"`
	Models       []string `json:"models" yaml:"models" toml:"models"`
	Variant      string   `json:"variant" yaml:"variant" toml:"variant"`
	Device       string   `json:"device" yaml:"device" toml:"device"`
	Temperature  float64  `json:"temperature" yaml:"temperature" toml:"temperature"`
	MaxNewTokens int      `json:"max_new_tokens" yaml:"max_new_tokens" toml:"max_new_tokens"`

	// Devices pins the available device list and skips probing.
	Devices          []string `json:"devices" yaml:"devices" toml:"devices"`
	DevicePreference []string `json:"device_preference" yaml:"device_preference" toml:"device_preference"`
	DeviceProbe      []string `json:"device_probe" yaml:"device_probe" toml:"device_probe"`

	// Acquisition.
	Offline         bool   `json:"offline" yaml:"offline" toml:"offline"`
	HubURL          string `json:"hub_url" yaml:"hub_url" toml:"hub_url"`
	Converter       string `json:"converter" yaml:"converter" toml:"converter"`
	TrustRemoteCode bool   `json:"trust_remote_code" yaml:"trust_remote_code" toml:"trust_remote_code"`

	// Inference backend: server, subprocess or llama.
	Backend         string   `json:"backend" yaml:"backend" toml:"backend"`
	ServerURL       string   `json:"server_url" yaml:"server_url" toml:"server_url"`
	// ServerAPIPrefix overrides the OpenAI path prefix (/v1 for server,
	// /v3 for subprocess).
	ServerAPIPrefix string   `json:"server_api_prefix" yaml:"server_api_prefix" toml:"server_api_prefix"`
	ServerAPIKey    string   `json:"server_api_key" yaml:"server_api_key" toml:"server_api_key"`
	ServerBin       string   `json:"server_bin" yaml:"server_bin" toml:"server_bin"`
	ServerArgs      []string `json:"server_args" yaml:"server_args" toml:"server_args"`
	ServerPortStart int      `json:"server_port_start" yaml:"server_port_start" toml:"server_port_start"`
	ServerPortEnd   int      `json:"server_port_end" yaml:"server_port_end" toml:"server_port_end"`
	LlamaCtx        int      `json:"llama_ctx" yaml:"llama_ctx" toml:"llama_ctx"`
	LlamaThreads    int      `json:"llama_threads" yaml:"llama_threads" toml:"llama_threads"`
	LlamaGPULayers  int      `json:"llama_gpu_layers" yaml:"llama_gpu_layers" toml:"llama_gpu_layers"`
	// LlamaModelFile names the GGUF file inside the model directory.
	LlamaModelFile  string   `json:"llama_model_file" yaml:"llama_model_file" toml:"llama_model_file"`

	// Sampling beyond the session settings.
	TopP          float64  `json:"top_p" yaml:"top_p" toml:"top_p"`
	TopK          int      `json:"top_k" yaml:"top_k" toml:"top_k"`
	RepeatPenalty float64  `json:"repeat_penalty" yaml:"repeat_penalty" toml:"repeat_penalty"`
	Stop          []string `json:"stop" yaml:"stop" toml:"stop"`

	// HTTP server.
	ChatTimeoutSec int      `json:"chat_timeout_sec" yaml:"chat_timeout_sec" toml:"chat_timeout_sec"`
	MaxBodyBytes   int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	CORSEnabled    bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins    []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	CORSMethods    []string `json:"cors_methods" yaml:"cors_methods" toml:"cors_methods"`
	CORSHeaders    []string `json:"cors_headers" yaml:"cors_headers" toml:"cors_headers"`
	Swagger        bool     `json:"swagger" yaml:"swagger" toml:"swagger"`

	// RequestLogLevel is the default per-request log level: off, error, info
	// or debug.
	RequestLogLevel string `json:"request_log_level" yaml:"request_log_level" toml:"request_log_level"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
