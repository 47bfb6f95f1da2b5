package token

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	coreerrors "dope/core/errors"
	"dope/core/events"
	"dope/core/types"
)

var (
	errNilState       = errors.New("token ledger: state not configured")
	errSymbolRequired = errors.New("token ledger: symbol required")
	errSupplyOverflow = errors.New("token ledger: supply exceeds 256 bits")
)

type ledgerState interface {
	GetTokenBalance(symbol string, addr common.Address) (*big.Int, error)
	PutTokenBalance(symbol string, addr common.Address, amount *big.Int) error
	GetTokenAllowance(symbol string, owner, spender common.Address) (*big.Int, error)
	PutTokenAllowance(symbol string, owner, spender common.Address, amount *big.Int) error
	TokenSupply(symbol string) (*big.Int, error)
	SetTokenSupply(symbol string, amount *big.Int) error
}

// Ledger is a fungible token ledger with allowance-based pulls. Every token
// shares one ledger and is addressed by symbol.
type Ledger struct {
	state   ledgerState
	emitter events.Emitter
}

// NewLedger constructs a ledger over state.
func NewLedger(state ledgerState) *Ledger {
	return &Ledger{state: state, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// Mint credits amount of symbol to addr and grows the supply.
func (l *Ledger) Mint(symbol string, to common.Address, amount *big.Int) error {
	symbol, err := l.prepare(symbol, amount)
	if err != nil {
		return err
	}
	supply, err := l.state.TokenSupply(symbol)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(supply, amount)
	if _, overflow := uint256.FromBig(next); overflow {
		return errSupplyOverflow
	}
	balance, err := l.state.GetTokenBalance(symbol, to)
	if err != nil {
		return err
	}
	if err := l.state.PutTokenBalance(symbol, to, new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	if err := l.state.SetTokenSupply(symbol, next); err != nil {
		return err
	}
	l.emitter.Emit(events.TokenSupply{Token: symbol, Total: new(big.Int).Set(next), Delta: new(big.Int).Set(amount), Reason: events.SupplyReasonMint})
	return nil
}

// BalanceOf returns the balance of addr.
func (l *Ledger) BalanceOf(symbol string, addr common.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	return l.state.GetTokenBalance(normalize(symbol), addr)
}

// TotalSupply returns the minted supply of symbol.
func (l *Ledger) TotalSupply(symbol string) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	return l.state.TokenSupply(normalize(symbol))
}

// Allowance returns how much spender may pull from owner.
func (l *Ledger) Allowance(symbol string, owner, spender common.Address) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	return l.state.GetTokenAllowance(normalize(symbol), owner, spender)
}

// Approve sets the allowance of spender over owner's balance.
func (l *Ledger) Approve(symbol string, owner, spender common.Address, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	symbol = normalize(symbol)
	if symbol == "" {
		return errSymbolRequired
	}
	if amount == nil || amount.Sign() < 0 {
		return coreerrors.ErrInvalidAmount.Withf("allowance must not be negative")
	}
	if err := l.state.PutTokenAllowance(symbol, owner, spender, amount); err != nil {
		return err
	}
	l.emitter.Emit(events.TokenApproval{Token: symbol, Owner: owner, Spender: spender, Amount: new(big.Int).Set(amount)})
	return nil
}

// Transfer moves amount from one account to another.
func (l *Ledger) Transfer(symbol string, from, to common.Address, amount *big.Int) error {
	symbol, err := l.prepare(symbol, amount)
	if err != nil {
		return err
	}
	return l.move(symbol, from, to, amount)
}

// TransferFrom moves amount from owner to recipient using spender's allowance.
func (l *Ledger) TransferFrom(symbol string, spender, from, to common.Address, amount *big.Int) error {
	symbol, err := l.prepare(symbol, amount)
	if err != nil {
		return err
	}
	allowance, err := l.state.GetTokenAllowance(symbol, from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return coreerrors.ErrInsufficientAllowance.Withf("%s allowance %s below %s", symbol, allowance, amount)
	}
	if err := l.move(symbol, from, to, amount); err != nil {
		return err
	}
	return l.state.PutTokenAllowance(symbol, from, spender, new(big.Int).Sub(allowance, amount))
}

func (l *Ledger) move(symbol string, from, to common.Address, amount *big.Int) error {
	fromBalance, err := l.state.GetTokenBalance(symbol, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return coreerrors.ErrInsufficientBalance.Withf("%s balance %s below %s", symbol, fromBalance, amount)
	}
	if err := l.state.PutTokenBalance(symbol, from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	toBalance, err := l.state.GetTokenBalance(symbol, to)
	if err != nil {
		return err
	}
	if err := l.state.PutTokenBalance(symbol, to, new(big.Int).Add(toBalance, amount)); err != nil {
		return err
	}
	l.emitter.Emit(events.TokenTransfer{Token: symbol, From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

func (l *Ledger) prepare(symbol string, amount *big.Int) (string, error) {
	if l == nil || l.state == nil {
		return "", errNilState
	}
	symbol = normalize(symbol)
	if symbol == "" {
		return "", errSymbolRequired
	}
	if amount == nil || amount.Sign() <= 0 {
		return "", coreerrors.ErrInvalidAmount.Withf("transfer amount must be positive")
	}
	return symbol, nil
}

func normalize(symbol string) string {
	return types.NormalizeSymbol(symbol)
}
