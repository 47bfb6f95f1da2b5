package state

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"dope/native/fund"
	"dope/native/lending"
	"dope/native/period"
	"dope/native/stake"
)

// GetSchedule returns the persisted phase schedule, or nil if none was stored.
func (m *Manager) GetSchedule() (*period.Schedule, error) {
	schedule := new(period.Schedule)
	ok, err := m.getRLP(hashKey(schedulePrefix), schedule)
	if err != nil || !ok {
		return nil, err
	}
	return schedule, nil
}

// PutSchedule persists the phase schedule.
func (m *Manager) PutSchedule(schedule *period.Schedule) error {
	return m.putRLP(hashKey(schedulePrefix), schedule)
}

// IsPaused reports whether an operator halted module. Read failures are
// treated as not paused.
func (m *Manager) IsPaused(module string) bool {
	var paused bool
	ok, err := m.getRLP(hashKey(pausePrefix, []byte(strings.ToLower(strings.TrimSpace(module)))), &paused)
	return err == nil && ok && paused
}

// SetPaused toggles the pause flag of module.
func (m *Manager) SetPaused(module string, paused bool) error {
	return m.putRLP(hashKey(pausePrefix, []byte(strings.ToLower(strings.TrimSpace(module)))), paused)
}

// GetStakePosition returns the stake position of addr in token.
func (m *Manager) GetStakePosition(token string, addr common.Address) (*stake.Position, error) {
	pos := new(stake.Position)
	ok, err := m.getRLP(hashKey(stakePositionPrefix, []byte(normalizeSymbol(token)), addr.Bytes()), pos)
	if err != nil || !ok {
		return nil, err
	}
	return pos, nil
}

// PutStakePosition persists a stake position.
func (m *Manager) PutStakePosition(pos *stake.Position) error {
	return m.putRLP(hashKey(stakePositionPrefix, []byte(normalizeSymbol(pos.Token)), pos.Account.Bytes()), pos)
}

// GetStakeTotal returns the aggregate stake held in custody for token.
func (m *Manager) GetStakeTotal(token string) (*big.Int, error) {
	return m.getAmount(hashKey(stakeTotalPrefix, []byte(normalizeSymbol(token))))
}

// PutStakeTotal overwrites the aggregate stake for token.
func (m *Manager) PutStakeTotal(token string, total *big.Int) error {
	return m.putAmount(hashKey(stakeTotalPrefix, []byte(normalizeSymbol(token))), total)
}

// GetWhitelistRoot returns the allow-list root for token; the zero hash means
// no allow-list.
func (m *Manager) GetWhitelistRoot(token string) (common.Hash, error) {
	var root common.Hash
	if _, err := m.getRLP(hashKey(whitelistRootPrefix, []byte(normalizeSymbol(token))), &root); err != nil {
		return common.Hash{}, err
	}
	return root, nil
}

// PutWhitelistRoot stores the allow-list root for token.
func (m *Manager) PutWhitelistRoot(token string, root common.Hash) error {
	return m.putRLP(hashKey(whitelistRootPrefix, []byte(normalizeSymbol(token))), root)
}

// GetSale returns the sale record, or nil before configuration.
func (m *Manager) GetSale() (*fund.Sale, error) {
	sale := new(fund.Sale)
	ok, err := m.getRLP(hashKey(salePrefix), sale)
	if err != nil || !ok {
		return nil, err
	}
	return sale, nil
}

// PutSale persists the sale record.
func (m *Manager) PutSale(sale *fund.Sale) error {
	return m.putRLP(hashKey(salePrefix), sale)
}

// GetFundingPosition returns the funding position of addr.
func (m *Manager) GetFundingPosition(addr common.Address) (*fund.Position, error) {
	pos := new(fund.Position)
	ok, err := m.getRLP(hashKey(fundingPositionPrefix, addr.Bytes()), pos)
	if err != nil || !ok {
		return nil, err
	}
	return pos, nil
}

// PutFundingPosition persists a funding position.
func (m *Manager) PutFundingPosition(pos *fund.Position) error {
	return m.putRLP(hashKey(fundingPositionPrefix, pos.Account.Bytes()), pos)
}

// GetMarket returns the lending pool totals.
func (m *Manager) GetMarket() (*lending.Market, error) {
	market := new(lending.Market)
	ok, err := m.getRLP(hashKey(marketPrefix), market)
	if err != nil || !ok {
		return nil, err
	}
	return market, nil
}

// PutMarket persists the lending pool totals.
func (m *Manager) PutMarket(market *lending.Market) error {
	return m.putRLP(hashKey(marketPrefix), market)
}

// GetLoan returns the loan of addr.
func (m *Manager) GetLoan(addr common.Address) (*lending.Loan, error) {
	loan := new(lending.Loan)
	ok, err := m.getRLP(hashKey(loanPrefix, addr.Bytes()), loan)
	if err != nil || !ok {
		return nil, err
	}
	return loan, nil
}

// PutLoan persists a loan.
func (m *Manager) PutLoan(loan *lending.Loan) error {
	return m.putRLP(hashKey(loanPrefix, loan.Address.Bytes()), loan)
}

// GetDeposit returns the lender position of addr.
func (m *Manager) GetDeposit(addr common.Address) (*lending.DepositPosition, error) {
	pos := new(lending.DepositPosition)
	ok, err := m.getRLP(hashKey(depositPrefix, addr.Bytes()), pos)
	if err != nil || !ok {
		return nil, err
	}
	return pos, nil
}

// PutDeposit persists a lender position.
func (m *Manager) PutDeposit(pos *lending.DepositPosition) error {
	return m.putRLP(hashKey(depositPrefix, pos.Address.Bytes()), pos)
}
