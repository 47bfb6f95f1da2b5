package lending

import (
	"math/big"

	"dope/core/types"
)

// Config captures the runtime configuration for the lending module.
type Config struct {
	// StableToken is the asset lenders deposit and borrowers draw.
	StableToken string `toml:"StableToken"`
	// LTVBps is the loan-to-value ratio against contribution, in basis points.
	LTVBps uint64 `toml:"LTVBps"`
	// InterestRate is the flat loan interest, scaled by RateScale.
	InterestRate uint64 `toml:"InterestRate"`
	// MaxUserDeposit caps a single lender's deposit. Zero disables the cap.
	MaxUserDeposit *big.Int `toml:"MaxUserDeposit"`
	// MaxTotalDeposit caps pool liquidity. Zero disables the cap.
	MaxTotalDeposit *big.Int `toml:"MaxTotalDeposit"`
}

// EnsureDefaults populates nil big.Int fields so RLP handling is safe.
func (c *Config) EnsureDefaults() {
	c.StableToken = types.NormalizeSymbol(c.StableToken)
	if c.MaxUserDeposit == nil {
		c.MaxUserDeposit = big.NewInt(0)
	}
	if c.MaxTotalDeposit == nil {
		c.MaxTotalDeposit = big.NewInt(0)
	}
}

// Clone returns a deep copy of the config.
func (c Config) Clone() Config {
	clone := c
	clone.MaxUserDeposit = copyInt(c.MaxUserDeposit)
	clone.MaxTotalDeposit = copyInt(c.MaxTotalDeposit)
	return clone
}
