package stake

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"dope/core/types"
)

// Config captures the stake ledger parameters.
type Config struct {
	// Token is the governance token accepted as stake.
	Token string `toml:"Token"`
	// MinStakeAmount is the smallest resulting balance a stake may leave.
	MinStakeAmount *big.Int `toml:"MinStakeAmount"`
	// RequiredStakeAmount is the balance an account must hold across the
	// whole retention window to be eligible for funding.
	RequiredStakeAmount *big.Int `toml:"RequiredStakeAmount"`
	// RetentionPeriod is the trailing window length, in seconds.
	RetentionPeriod uint64 `toml:"RetentionPeriod"`
}

// EnsureDefaults populates nil big.Int fields.
func (c *Config) EnsureDefaults() {
	c.Token = types.NormalizeSymbol(c.Token)
	if c.MinStakeAmount == nil {
		c.MinStakeAmount = big.NewInt(0)
	}
	if c.RequiredStakeAmount == nil {
		c.RequiredStakeAmount = big.NewInt(0)
	}
}

// Clone returns a deep copy of the config.
func (c Config) Clone() Config {
	clone := Config{Token: c.Token, RetentionPeriod: c.RetentionPeriod}
	if c.MinStakeAmount != nil {
		clone.MinStakeAmount = new(big.Int).Set(c.MinStakeAmount)
	}
	if c.RequiredStakeAmount != nil {
		clone.RequiredStakeAmount = new(big.Int).Set(c.RequiredStakeAmount)
	}
	return clone
}

// HistoryEntry records the balance held from At until the next entry.
type HistoryEntry struct {
	At      uint64
	Balance *big.Int
}

// Position is the stake held by one account in one token. Positions are never
// deleted; a fully unstaked account keeps a zero balance and its history.
type Position struct {
	Account      common.Address
	Token        string
	Amount       *big.Int
	LastChangeAt uint64
	History      []HistoryEntry
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{Account: p.Account, Token: p.Token, LastChangeAt: p.LastChangeAt}
	if p.Amount != nil {
		clone.Amount = new(big.Int).Set(p.Amount)
	}
	if len(p.History) > 0 {
		clone.History = make([]HistoryEntry, len(p.History))
		for i, entry := range p.History {
			clone.History[i] = HistoryEntry{At: entry.At, Balance: new(big.Int).Set(entry.Balance)}
		}
	}
	return clone
}

func (p *Position) ensureDefaults() {
	if p.Amount == nil {
		p.Amount = big.NewInt(0)
	}
	for i := range p.History {
		if p.History[i].Balance == nil {
			p.History[i].Balance = big.NewInt(0)
		}
	}
}

// Proof is a Merkle allow-list membership proof.
type Proof struct {
	Siblings  []common.Hash
	LeafIndex uint64
}
