package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// DefaultConcurrency is used when Config.Concurrency is zero.
const DefaultConcurrency = 6

// DefaultChunkSize is used when Config.ChunkSize is zero.
const DefaultChunkSize = 64 * 1024

// Config holds persistent user settings, read from and written to
// ~/.qdrop/config.json.
type Config struct {
	// StunServer and TurnAuthURL configure the ICE agent (internal/transport).
	StunServer  string `json:"stun_server,omitempty"`
	TurnAuthURL string `json:"turn_auth_url,omitempty"`

	// RendezvousURL is loaded and saved with the rest of the config, but
	// no code reads it: internal/discovery.RegistryClient always uses its
	// built-in endpoint.
	RendezvousURL string `json:"rendezvous_url,omitempty"`

	// Concurrency is the default number of files transferred in parallel
	// per offer (internal/transferengine.SendPlan/ReceivePlan).
	Concurrency int `json:"concurrency,omitempty"`

	// ChunkSize is the default internal/materializer write chunk size.
	ChunkSize int `json:"chunk_size,omitempty"`

	// BandwidthLimitBytesPerSec is loaded and saved with the rest of the
	// config, but no code reads it: materializer writes are not
	// rate-limited by it (internal/materializer's Limiter stays nil).
	BandwidthLimitBytesPerSec int64 `json:"bandwidth_limit_bytes_per_sec,omitempty"`

	// DefaultOutputDir is where accepted transfers land when the host
	// doesn't specify one explicitly.
	DefaultOutputDir string `json:"default_output_dir,omitempty"`
}

// WithDefaults returns a copy of cfg with zero-valued fields replaced by
// package defaults.
func (cfg Config) WithDefaults() Config {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	return cfg
}

func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".qdrop")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.json"), nil
}

// Load reads the config file
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil // Default empty config
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config file
func Save(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
