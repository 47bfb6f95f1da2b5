package fund

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"dope/core/types"
)

// RateScale is the fixed-point denominator of the exchange rate.
var RateScale = big.NewInt(1_000_000)

// Config captures the funding ledger parameters.
type Config struct {
	// SaleToken is the token distributed to contributors.
	SaleToken string `toml:"SaleToken"`
	// ExchangeToken is the stable asset contributors pay with.
	ExchangeToken string `toml:"ExchangeToken"`
	// Treasury receives contributed stable tokens.
	Treasury string `toml:"Treasury"`
}

// EnsureDefaults normalises token symbols.
func (c *Config) EnsureDefaults() {
	c.SaleToken = types.NormalizeSymbol(c.SaleToken)
	c.ExchangeToken = types.NormalizeSymbol(c.ExchangeToken)
	c.Treasury = strings.TrimSpace(c.Treasury)
}

// SaleTerms are the one-time parameters installed by SetSaleToken.
type SaleTerms struct {
	Source       common.Address
	Target       *big.Int
	ExchangeRate *big.Int
	PerUserMin   *big.Int
	PerUserMax   *big.Int
}

// Sale is the global funding record.
type Sale struct {
	Configured bool
	Terms      SaleTerms
	// Supply is the amount of sale token moved into custody at configuration.
	Supply *big.Int
	// Raised is the sum of every account's contribution.
	Raised *big.Int
	// Distributed is the sale token paid out through claims and lender rewards.
	Distributed *big.Int
	Reclaimed   bool
}

// Clone returns a deep copy of the sale.
func (s *Sale) Clone() *Sale {
	if s == nil {
		return nil
	}
	clone := &Sale{Configured: s.Configured, Reclaimed: s.Reclaimed, Terms: SaleTerms{Source: s.Terms.Source}}
	clone.Terms.Target = copyInt(s.Terms.Target)
	clone.Terms.ExchangeRate = copyInt(s.Terms.ExchangeRate)
	clone.Terms.PerUserMin = copyInt(s.Terms.PerUserMin)
	clone.Terms.PerUserMax = copyInt(s.Terms.PerUserMax)
	clone.Supply = copyInt(s.Supply)
	clone.Raised = copyInt(s.Raised)
	clone.Distributed = copyInt(s.Distributed)
	return clone
}

func (s *Sale) ensureDefaults() {
	for _, field := range []**big.Int{&s.Terms.Target, &s.Terms.ExchangeRate, &s.Terms.PerUserMin, &s.Terms.PerUserMax, &s.Supply, &s.Raised, &s.Distributed} {
		if *field == nil {
			*field = big.NewInt(0)
		}
	}
}

// Position is one contributor's funding record.
type Position struct {
	Account     common.Address
	Contributed *big.Int
	Claimed     bool
	Payout      *big.Int
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	return &Position{Account: p.Account, Contributed: copyInt(p.Contributed), Claimed: p.Claimed, Payout: copyInt(p.Payout)}
}

func (p *Position) ensureDefaults() {
	if p.Contributed == nil {
		p.Contributed = big.NewInt(0)
	}
	if p.Payout == nil {
		p.Payout = big.NewInt(0)
	}
}

// Entitlement converts a stable amount into sale token at rate.
func Entitlement(amount, rate *big.Int) *big.Int {
	if amount == nil || rate == nil || amount.Sign() <= 0 || rate.Sign() <= 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, rate)
	return out.Quo(out, RateScale)
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
