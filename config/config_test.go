package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"payflow/native/registry"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payflow.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, DefaultRPCAddress, cfg.RPCAddress)
	require.Equal(t, uint64(DefaultExpiryEpoch), cfg.ExpiryEpoch)
	require.Equal(t, registry.StrategyLegacyTriple, cfg.Strategy())

	// The file written on first run loads back identically.
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, reloaded)
}

func TestLoadAppliesDefaultsToSparseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payflow.toml")
	require.NoError(t, os.WriteFile(path, []byte("RPCAddress = \"0.0.0.0:9000\"\n"), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.RPCAddress)
	require.Equal(t, DefaultBackend, cfg.Backend)
	require.Equal(t, uint64(DefaultMaxUints), cfg.MaxUints)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payflow.toml")
	require.NoError(t, os.WriteFile(path, []byte("Backend = \"redis\"\n"), 0o644))
	_, err := Load(path)
	require.ErrorContains(t, err, "unknown backend")
}

func TestLoadRejectsUnknownStrategy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payflow.toml")
	require.NoError(t, os.WriteFile(path, []byte("RankingStrategy = \"round-robin\"\n"), 0o644))
	_, err := Load(path)
	require.ErrorContains(t, err, "unknown ranking strategy")
}

func TestLoadGenesisWritesDefaultManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	genesis, err := LoadGenesis(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Len(t, genesis.Processors, 3)
	require.Equal(t, "Stripe", genesis.Processors[0].Name)
	require.Equal(t, uint64(150), genesis.Processors[0].AvgProcessingTime)

	reloaded, err := LoadGenesis(path)
	require.NoError(t, err)
	require.Equal(t, genesis, reloaded)
}

func TestLoadGenesisRejectsEmptyManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte("processors: []\n"), 0o644))
	_, err := LoadGenesis(path)
	require.Error(t, err)
}

func TestPreflightSchema(t *testing.T) {
	genesis := DefaultGenesis()

	cfg := &Config{}
	cfg.applyDefaults()
	require.NoError(t, PreflightSchema(cfg, genesis))

	// The original deployment's 20 integer slots are too few for the
	// 1 + 10*3 the record set occupies.
	under := &Config{MaxUints: 20, MaxByteSlices: 20}
	under.applyDefaults()
	require.ErrorContains(t, PreflightSchema(under, genesis), "MaxUints")

	// Legacy ranking is pinned to three processors.
	four := Genesis{Processors: append(genesis.Processors, registry.Seed{Name: "Adyen", AvgProcessingTime: 120})}
	cfgLegacy := &Config{}
	cfgLegacy.applyDefaults()
	require.ErrorContains(t, PreflightSchema(cfgLegacy, four), "legacy-triple")

	cfgStable := &Config{RankingStrategy: "stable"}
	cfgStable.applyDefaults()
	cfgStable.MaxUints = 64
	require.NoError(t, PreflightSchema(cfgStable, four))
}
