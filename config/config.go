package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load reads the protocol configuration at path. A missing file is created
// with Default values. Unknown keys are rejected.
func Load(path string) (*ProtocolConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &ProtocolConfig{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("config: %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a self-consistent local configuration: one day per phase
// from the unix epoch and an in-memory ledger.
func Default() *ProtocolConfig {
	const day = 86_400
	cfg := &ProtocolConfig{
		Periods: Periods{
			Stake:       PeriodRange{Start: 0, End: 10 * day},
			Fund:        PeriodRange{Start: 10 * day, End: 11 * day},
			DepositLoan: PeriodRange{Start: 11 * day, End: 12 * day},
			Borrow:      PeriodRange{Start: 12 * day, End: 13 * day},
			Claim:       PeriodRange{Start: 13 * day, End: 30 * day},
		},
		Stake: Stake{
			Token:               "GOV",
			MinStakeAmount:      "100",
			RequiredStakeAmount: "1000",
			RetentionSeconds:    4 * day,
		},
		Fund: Fund{SaleToken: "SALE", ExchangeToken: "USDC"},
		Sale: Sale{
			Target:       "100000",
			ExchangeRate: "1000000",
			PerUserMin:   "0",
			PerUserMax:   "0",
		},
		Lending: Lending{
			StableToken:     "USDC",
			LTVBps:          5_000,
			InterestRate:    200_000,
			MaxUserDeposit:  "0",
			MaxTotalDeposit: "0",
		},
		Storage:   Storage{Backend: "memory"},
		Telemetry: Telemetry{ServiceName: "dopectl", Environment: "local"},
		Logging:   Logging{Level: "info"},
		EventLog:  EventLog{Driver: "sqlite"},
	}
	return cfg
}

func (c *ProtocolConfig) applyDefaults() {
	if strings.TrimSpace(c.Storage.Backend) == "" {
		c.Storage.Backend = "memory"
	}
	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		c.Telemetry.ServiceName = "dopectl"
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.EventLog.Driver) == "" {
		c.EventLog.Driver = "sqlite"
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*ProtocolConfig, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as TOML.
func Save(path string, cfg *ProtocolConfig) error {
	return persist(path, cfg)
}

func persist(path string, cfg *ProtocolConfig) error {
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
