package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"payflow/native/registry"
)

// Genesis is the processor manifest the daemon initialises an empty record
// set from. The set is fixed at creation; it is never resized afterwards.
type Genesis struct {
	Processors []registry.Seed `yaml:"processors"`
}

// DefaultGenesis returns the manifest of the reproduced deployment.
func DefaultGenesis() Genesis {
	return Genesis{Processors: registry.DefaultSeeds()}
}

// LoadGenesis reads the manifest at path, writing the default manifest when
// none exists.
func LoadGenesis(path string) (Genesis, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		genesis := DefaultGenesis()
		return genesis, writeGenesis(path, genesis)
	}
	if err != nil {
		return Genesis{}, err
	}
	var genesis Genesis
	if err := yaml.Unmarshal(raw, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("config: parse genesis %s: %w", path, err)
	}
	if err := registry.ValidateSeeds(genesis.Processors); err != nil {
		return Genesis{}, err
	}
	return genesis, nil
}

func writeGenesis(path string, genesis Genesis) error {
	encoded, err := yaml.Marshal(genesis)
	if err != nil {
		return err
	}
	return os.WriteFile(path, encoded, 0o644)
}

// PreflightSchema rejects a configuration whose declared capacity cannot hold
// the genesis record set. Deployments in this domain have shipped with too
// few integer slots and failed only at the first write; this check turns
// that into a startup error.
func PreflightSchema(cfg *Config, genesis Genesis) error {
	uints, byteSlices := registry.RequiredSlots(uint64(len(genesis.Processors)))
	if cfg.MaxUints < uints {
		return fmt.Errorf("config: MaxUints=%d cannot hold %d processors (need %d)", cfg.MaxUints, len(genesis.Processors), uints)
	}
	if cfg.MaxByteSlices < byteSlices {
		return fmt.Errorf("config: MaxByteSlices=%d cannot hold %d processors (need %d)", cfg.MaxByteSlices, len(genesis.Processors), byteSlices)
	}
	if cfg.Strategy() == registry.StrategyLegacyTriple && len(genesis.Processors) != 3 {
		return fmt.Errorf("config: legacy-triple ranking requires exactly 3 processors, genesis has %d", len(genesis.Processors))
	}
	return nil
}
