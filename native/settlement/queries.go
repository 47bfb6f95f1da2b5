package settlement

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"dope/native/fund"
	"dope/native/lending"
	"dope/native/period"
	"dope/native/stake"
)

// Now returns the current ledger time.
func (e *Engine) Now() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now()
}

// GetCurrentPhases reports which phase contains the current ledger time.
func (e *Engine) GetCurrentPhases() period.Flags {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.oracle.Flags(e.now())
}

// CurrentPhase returns the active phase, or false outside every range.
func (e *Engine) CurrentPhase() (period.Phase, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.oracle.CurrentPhase(e.now())
}

// GetStartAndEndPhaseOf returns the configured window of p.
func (e *Engine) GetStartAndEndPhaseOf(p period.Phase) (period.Range, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.oracle.Bounds(p)
}

// Schedule returns the installed phase schedule.
func (e *Engine) Schedule() (period.Schedule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.oracle.Schedule()
}

// GetCurrentStakeAmount returns the account's staked balance.
func (e *Engine) GetCurrentStakeAmount(account common.Address) (*big.Int, error) {
	pos, err := e.StakePosition(account)
	if err != nil {
		return nil, err
	}
	return pos.Amount, nil
}

// StakePosition returns the account's stake position including its history.
func (e *Engine) StakePosition(account common.Address) (*stake.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stake.Position(account)
}

// TotalStaked returns the stake held in custody.
func (e *Engine) TotalStaked() (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stake.TotalStaked()
}

// IsSatisfied reports whether the account currently meets the stake
// retention requirement.
func (e *Engine) IsSatisfied(account common.Address) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stake.IsSatisfied(account, e.now())
}

// IsWhiteListed verifies an allow-list proof for addr against token's root.
func (e *Engine) IsWhiteListed(addr common.Address, token string, proof []common.Hash, leafIndex uint64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stake.IsWhitelisted(addr, token, proof, leafIndex)
}

// GetShareAndCollateral returns the account's contribution and the part of
// it locked by loans.
func (e *Engine) GetShareAndCollateral(account common.Address) (*big.Int, *big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fund.ShareAndCollateral(account)
}

// FundingPosition returns the account's funding position.
func (e *Engine) FundingPosition(account common.Address) (*fund.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fund.Position(account)
}

// Sale returns the global sale record.
func (e *Engine) Sale() (*fund.Sale, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fund.Sale()
}

// ClaimablePayout returns the sale token Claim would pay the account now.
// Accounts that already claimed report their recorded payout.
func (e *Engine) ClaimablePayout(account common.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, err := e.fund.Position(account)
	if err != nil {
		return nil, err
	}
	if pos.Claimed {
		return new(big.Int).Set(pos.Payout), nil
	}
	sale, err := e.fund.Sale()
	if err != nil {
		return nil, err
	}
	forfeited, err := e.lending.Forfeiture(account)
	if err != nil {
		return nil, err
	}
	share := new(big.Int).Sub(pos.Contributed, forfeited)
	if share.Sign() < 0 {
		share.SetInt64(0)
	}
	return fund.Entitlement(share, sale.Terms.ExchangeRate), nil
}

// GetDepositedAmount returns the lender's deposit.
func (e *Engine) GetDepositedAmount(lender common.Address) (*big.Int, error) {
	pos, err := e.DepositPosition(lender)
	if err != nil {
		return nil, err
	}
	return pos.Deposited, nil
}

// DepositPosition returns the lender's deposit record.
func (e *Engine) DepositPosition(lender common.Address) (*lending.DepositPosition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lending.DepositOf(lender)
}

// Loan returns the account's aggregated loan.
func (e *Engine) Loan(account common.Address) (*lending.Loan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lending.Loan(account)
}

// Market returns the lending pool totals.
func (e *Engine) Market() (*lending.Market, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lending.Market()
}

// RewardPool returns the sale token owed to lenders in aggregate.
func (e *Engine) RewardPool() (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lending.RewardPool()
}

// BalanceOf returns an account's token balance.
func (e *Engine) BalanceOf(symbol string, account common.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tokens.BalanceOf(symbol, account)
}

// IsPaused reports whether module is halted.
func (e *Engine) IsPaused(module string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.IsPaused(module)
}
