package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"payflow/native/registry"
)

// Default values for a fresh node. The expiry epoch default matches the
// deployment being reproduced.
const (
	DefaultRPCAddress  = "127.0.0.1:8645"
	DefaultBackend     = "leveldb"
	DefaultExpiryEpoch = 2_000_000_000

	// The declared schema must cover 1 + 10*N integer slots and N byte
	// slices; the defaults leave headroom over the three-processor set.
	DefaultMaxUints      = 40
	DefaultMaxByteSlices = 8
)

type Config struct {
	RPCAddress      string `toml:"RPCAddress"`
	DataDir         string `toml:"DataDir"`
	Backend         string `toml:"Backend"`
	GenesisFile     string `toml:"GenesisFile"`
	ExpiryEpoch     uint64 `toml:"ExpiryEpoch"`
	RankingStrategy string `toml:"RankingStrategy"`
	MaxUints        uint64 `toml:"MaxUints"`
	MaxByteSlices   uint64 `toml:"MaxByteSlices"`

	Env string `toml:"Env"`

	LogPath       string `toml:"LogPath"`
	LogMaxSizeMB  int    `toml:"LogMaxSizeMB"`
	LogMaxBackups int    `toml:"LogMaxBackups"`

	RateLimitPerMinute float64 `toml:"RateLimitPerMinute"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = DefaultRPCAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./payflow-data"
	}
	if strings.TrimSpace(c.Backend) == "" {
		c.Backend = DefaultBackend
	}
	if strings.TrimSpace(c.GenesisFile) == "" {
		c.GenesisFile = filepath.Join(c.DataDir, "genesis.yaml")
	}
	if c.ExpiryEpoch == 0 {
		c.ExpiryEpoch = DefaultExpiryEpoch
	}
	if strings.TrimSpace(c.RankingStrategy) == "" {
		c.RankingStrategy = string(registry.StrategyLegacyTriple)
	}
	if c.MaxUints == 0 {
		c.MaxUints = DefaultMaxUints
	}
	if c.MaxByteSlices == 0 {
		c.MaxByteSlices = DefaultMaxByteSlices
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 600
	}
	if c.RateLimitBurst == 0 {
		c.RateLimitBurst = 20
	}
}

// Validate checks everything that can be checked without the genesis
// manifest; the seed-count preflight against the schema happens at startup
// once the manifest is loaded.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Backend)) {
	case "memory", "leveldb", "bolt":
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if _, err := registry.ParseStrategy(c.RankingStrategy); err != nil {
		return err
	}
	if c.ExpiryEpoch == 0 {
		return fmt.Errorf("config: ExpiryEpoch required")
	}
	if c.MaxUints == 0 || c.MaxByteSlices == 0 {
		return fmt.Errorf("config: schema capacity must be positive")
	}
	return nil
}

// Strategy returns the parsed ranking strategy. Call after Validate.
func (c *Config) Strategy() registry.Strategy {
	strategy, _ := registry.ParseStrategy(c.RankingStrategy)
	return strategy
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
