package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"dope/core/types"
)

func normalizeSymbol(symbol string) string {
	return types.NormalizeSymbol(symbol)
}

func (m *Manager) getAmount(key []byte) (*big.Int, error) {
	total := new(big.Int)
	ok, err := m.getRLP(key, total)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return total, nil
}

func (m *Manager) putAmount(key []byte, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative amount %s", amount)
	}
	return m.putRLP(key, amount)
}

// GetTokenBalance returns the balance of addr in token. Missing entries
// default to zero.
func (m *Manager) GetTokenBalance(symbol string, addr common.Address) (*big.Int, error) {
	return m.getAmount(hashKey(tokenBalancePrefix, []byte(normalizeSymbol(symbol)), addr.Bytes()))
}

// PutTokenBalance overwrites the balance of addr in token.
func (m *Manager) PutTokenBalance(symbol string, addr common.Address, amount *big.Int) error {
	return m.putAmount(hashKey(tokenBalancePrefix, []byte(normalizeSymbol(symbol)), addr.Bytes()), amount)
}

// GetTokenAllowance returns how much spender may move on behalf of owner.
func (m *Manager) GetTokenAllowance(symbol string, owner, spender common.Address) (*big.Int, error) {
	return m.getAmount(hashKey(tokenAllowancePrefix, []byte(normalizeSymbol(symbol)), owner.Bytes(), spender.Bytes()))
}

// PutTokenAllowance overwrites the allowance granted by owner to spender.
func (m *Manager) PutTokenAllowance(symbol string, owner, spender common.Address, amount *big.Int) error {
	return m.putAmount(hashKey(tokenAllowancePrefix, []byte(normalizeSymbol(symbol)), owner.Bytes(), spender.Bytes()), amount)
}

// TokenSupply returns the persisted total supply for the provided token.
// Missing entries default to zero.
func (m *Manager) TokenSupply(symbol string) (*big.Int, error) {
	normalized := normalizeSymbol(symbol)
	if normalized == "" {
		return nil, fmt.Errorf("token symbol required")
	}
	return m.getAmount(hashKey(tokenSupplyPrefix, []byte(normalized)))
}

// SetTokenSupply overwrites the stored total supply for the token.
func (m *Manager) SetTokenSupply(symbol string, amount *big.Int) error {
	normalized := normalizeSymbol(symbol)
	if normalized == "" {
		return fmt.Errorf("token symbol required")
	}
	if amount != nil && amount.Sign() < 0 {
		return fmt.Errorf("token %s supply cannot be negative", normalized)
	}
	return m.putAmount(hashKey(tokenSupplyPrefix, []byte(normalized)), amount)
}
