package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"custodyledger/core/state"
	"custodyledger/crypto"
)

const (
	defaultNetworkName    = "custody-local"
	defaultDataDir        = "./custody-data"
	defaultMetricsAddress = ":9100"
	defaultSweepInterval  = 60
)

// Config is the node configuration read from TOML.
type Config struct {
	DataDir              string     `toml:"DataDir"`
	NetworkName          string     `toml:"NetworkName"`
	MetricsAddress       string     `toml:"MetricsAddress"`
	LogFile              string     `toml:"LogFile"`
	GenesisFile          string     `toml:"GenesisFile"`
	MaintenanceAuthority string     `toml:"MaintenanceAuthority"`
	SweepIntervalSeconds uint64     `toml:"SweepIntervalSeconds"`
	SweepRatePerSecond   float64    `toml:"SweepRatePerSecond"`
	Rent                 RentConfig `toml:"Rent"`
}

// RentConfig overrides the storage deposit schedule. Zero fields take the
// defaults.
type RentConfig struct {
	AccountOverhead uint64 `toml:"AccountOverhead"`
	PerByteYear     uint64 `toml:"PerByteYear"`
	ExemptionYears  uint64 `toml:"ExemptionYears"`
}

// Load loads the configuration from the given path. A missing file is
// created with defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0].String())
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	cfg.NetworkName = strings.TrimSpace(cfg.NetworkName)
	if cfg.NetworkName == "" {
		cfg.NetworkName = defaultNetworkName
	}
	cfg.MetricsAddress = strings.TrimSpace(cfg.MetricsAddress)
	if cfg.MetricsAddress == "" {
		cfg.MetricsAddress = defaultMetricsAddress
	}
	cfg.LogFile = strings.TrimSpace(cfg.LogFile)
	cfg.GenesisFile = strings.TrimSpace(cfg.GenesisFile)
	cfg.MaintenanceAuthority = strings.TrimSpace(cfg.MaintenanceAuthority)
	if cfg.SweepIntervalSeconds == 0 {
		cfg.SweepIntervalSeconds = defaultSweepInterval
	}
}

func (cfg *Config) validate() error {
	if cfg.SweepRatePerSecond < 0 {
		return fmt.Errorf("SweepRatePerSecond must not be negative")
	}
	if _, err := cfg.Authority(); err != nil {
		return err
	}
	return nil
}

// Authority decodes MaintenanceAuthority. An empty value yields the zero
// address, which leaves reclaiming open to every caller.
func (cfg *Config) Authority() (crypto.Address, error) {
	if cfg.MaintenanceAuthority == "" {
		return crypto.ZeroAddress, nil
	}
	addr, err := crypto.DecodeAddress(cfg.MaintenanceAuthority)
	if err != nil {
		return crypto.ZeroAddress, fmt.Errorf("MaintenanceAuthority: %w", err)
	}
	return addr, nil
}

// RentSchedule merges the configured overrides into the default schedule.
func (cfg *Config) RentSchedule() state.Rent {
	rent := state.DefaultRent()
	if cfg.Rent.AccountOverhead != 0 {
		rent.AccountOverhead = cfg.Rent.AccountOverhead
	}
	if cfg.Rent.PerByteYear != 0 {
		rent.PerByteYear = cfg.Rent.PerByteYear
	}
	if cfg.Rent.ExemptionYears != 0 {
		rent.ExemptionYears = cfg.Rent.ExemptionYears
	}
	return rent
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.normalize()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
