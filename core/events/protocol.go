package events

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"dope/core/types"
)

const (
	TypePeriodsConfigured   = "period.configured"
	TypeStakeDeposited      = "stake.deposited"
	TypeStakeWithdrawn      = "stake.withdrawn"
	TypeWhitelistRegistered = "stake.whitelistRegistered"
	TypeSaleTokenConfigured = "fund.saleTokenConfigured"
	TypeFunded              = "fund.funded"
	TypeClaimed             = "fund.claimed"
	TypeUnsoldReclaimed     = "fund.unsoldReclaimed"
	TypeLendDeposited       = "lending.deposited"
	TypeBorrowed            = "lending.borrowed"
	TypeRepaid              = "lending.repaid"
	TypeLendWithdrawn       = "lending.withdrawn"
	TypeModulePauseSet      = "settlement.pauseSet"
)

// PeriodRange is a flattened phase window.
type PeriodRange struct {
	Phase string
	Start uint64
	End   uint64
}

// PeriodsConfigured is emitted when the phase schedule is (re)configured.
type PeriodsConfigured struct {
	Ranges []PeriodRange
}

func (PeriodsConfigured) EventType() string { return TypePeriodsConfigured }

func (e PeriodsConfigured) Event() *types.Event {
	attrs := make(map[string]string, len(e.Ranges)*2)
	for _, r := range e.Ranges {
		attrs[r.Phase+".start"] = strconv.FormatUint(r.Start, 10)
		attrs[r.Phase+".end"] = strconv.FormatUint(r.End, 10)
	}
	return &types.Event{Type: TypePeriodsConfigured, Attributes: attrs}
}

// StakeDeposited captures a stake increase.
type StakeDeposited struct {
	Account common.Address
	Token   string
	Amount  *big.Int
	Balance *big.Int
}

func (StakeDeposited) EventType() string { return TypeStakeDeposited }

func (e StakeDeposited) Event() *types.Event {
	return &types.Event{Type: TypeStakeDeposited, Attributes: map[string]string{
		"account": formatAddress(e.Account),
		"token":   normalizeAsset(e.Token),
		"amount":  formatAmount(e.Amount),
		"balance": formatAmount(e.Balance),
	}}
}

// StakeWithdrawn captures a stake decrease.
type StakeWithdrawn struct {
	Account common.Address
	Token   string
	Amount  *big.Int
	Balance *big.Int
}

func (StakeWithdrawn) EventType() string { return TypeStakeWithdrawn }

func (e StakeWithdrawn) Event() *types.Event {
	return &types.Event{Type: TypeStakeWithdrawn, Attributes: map[string]string{
		"account": formatAddress(e.Account),
		"token":   normalizeAsset(e.Token),
		"amount":  formatAmount(e.Amount),
		"balance": formatAmount(e.Balance),
	}}
}

// WhitelistRegistered records a new allow-list root for a stake token.
type WhitelistRegistered struct {
	Token string
	Root  common.Hash
}

func (WhitelistRegistered) EventType() string { return TypeWhitelistRegistered }

func (e WhitelistRegistered) Event() *types.Event {
	return &types.Event{Type: TypeWhitelistRegistered, Attributes: map[string]string{
		"token": normalizeAsset(e.Token),
		"root":  e.Root.Hex(),
	}}
}

// SaleTokenConfigured records the one-time sale configuration.
type SaleTokenConfigured struct {
	Source       common.Address
	Token        string
	Target       *big.Int
	ExchangeRate *big.Int
	Supply       *big.Int
}

func (SaleTokenConfigured) EventType() string { return TypeSaleTokenConfigured }

func (e SaleTokenConfigured) Event() *types.Event {
	return &types.Event{Type: TypeSaleTokenConfigured, Attributes: map[string]string{
		"source":       formatAddress(e.Source),
		"token":        normalizeAsset(e.Token),
		"target":       formatAmount(e.Target),
		"exchangeRate": formatAmount(e.ExchangeRate),
		"supply":       formatAmount(e.Supply),
	}}
}

// Funded captures a contribution during the Fund phase.
type Funded struct {
	Account     common.Address
	Amount      *big.Int
	Contributed *big.Int
	Raised      *big.Int
}

func (Funded) EventType() string { return TypeFunded }

func (e Funded) Event() *types.Event {
	return &types.Event{Type: TypeFunded, Attributes: map[string]string{
		"account":     formatAddress(e.Account),
		"amount":      formatAmount(e.Amount),
		"contributed": formatAmount(e.Contributed),
		"raised":      formatAmount(e.Raised),
	}}
}

// Claimed captures the terminal payout of a funding position.
type Claimed struct {
	Account common.Address
	Payout  *big.Int
	Penalty *big.Int
}

func (Claimed) EventType() string { return TypeClaimed }

func (e Claimed) Event() *types.Event {
	return &types.Event{Type: TypeClaimed, Attributes: map[string]string{
		"account": formatAddress(e.Account),
		"payout":  formatAmount(e.Payout),
		"penalty": formatAmount(e.Penalty),
	}}
}

// UnsoldReclaimed captures the return of sale tokens not backing entitlements.
type UnsoldReclaimed struct {
	Source common.Address
	Amount *big.Int
}

func (UnsoldReclaimed) EventType() string { return TypeUnsoldReclaimed }

func (e UnsoldReclaimed) Event() *types.Event {
	return &types.Event{Type: TypeUnsoldReclaimed, Attributes: map[string]string{
		"source": formatAddress(e.Source),
		"amount": formatAmount(e.Amount),
	}}
}

// LendDeposited captures lender liquidity entering the pool.
type LendDeposited struct {
	Account common.Address
	Amount  *big.Int
	Total   *big.Int
}

func (LendDeposited) EventType() string { return TypeLendDeposited }

func (e LendDeposited) Event() *types.Event {
	return &types.Event{Type: TypeLendDeposited, Attributes: map[string]string{
		"account": formatAddress(e.Account),
		"amount":  formatAmount(e.Amount),
		"total":   formatAmount(e.Total),
	}}
}

// Borrowed captures a collateralised loan draw.
type Borrowed struct {
	Account    common.Address
	Amount     *big.Int
	Collateral *big.Int
	Interest   *big.Int
}

func (Borrowed) EventType() string { return TypeBorrowed }

func (e Borrowed) Event() *types.Event {
	return &types.Event{Type: TypeBorrowed, Attributes: map[string]string{
		"account":    formatAddress(e.Account),
		"amount":     formatAmount(e.Amount),
		"collateral": formatAmount(e.Collateral),
		"interest":   formatAmount(e.Interest),
	}}
}

// Repaid captures a loan repayment.
type Repaid struct {
	Account  common.Address
	Amount   *big.Int
	Released *big.Int
	Interest *big.Int
}

func (Repaid) EventType() string { return TypeRepaid }

func (e Repaid) Event() *types.Event {
	return &types.Event{Type: TypeRepaid, Attributes: map[string]string{
		"account":  formatAddress(e.Account),
		"amount":   formatAmount(e.Amount),
		"released": formatAmount(e.Released),
		"interest": formatAmount(e.Interest),
	}}
}

// LendWithdrawn captures a lender exit at Claim.
type LendWithdrawn struct {
	Account   common.Address
	Principal *big.Int
	Reward    *big.Int
}

func (LendWithdrawn) EventType() string { return TypeLendWithdrawn }

func (e LendWithdrawn) Event() *types.Event {
	return &types.Event{Type: TypeLendWithdrawn, Attributes: map[string]string{
		"account":   formatAddress(e.Account),
		"principal": formatAmount(e.Principal),
		"reward":    formatAmount(e.Reward),
	}}
}

// ModulePauseSet records an operator toggling a module pause switch.
type ModulePauseSet struct {
	Module string
	Paused bool
}

func (ModulePauseSet) EventType() string { return TypeModulePauseSet }

func (e ModulePauseSet) Event() *types.Event {
	return &types.Event{Type: TypeModulePauseSet, Attributes: map[string]string{
		"module": e.Module,
		"paused": strconv.FormatBool(e.Paused),
	}}
}
