package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Market captures the global accounting state of the lending pool. Stable
// amounts are in exchange token units; collateral and interest are measured in
// funding contribution units, which share the same denomination.
type Market struct {
	// TotalDeposited is the aggregate stable liquidity supplied by lenders.
	TotalDeposited *big.Int
	// TotalBorrowed tracks the outstanding principal across all loans.
	TotalBorrowed *big.Int
	// TotalCollateralLocked is the contribution share pledged by open loans.
	TotalCollateralLocked *big.Int
	// TotalInterestDue is interest reserved by open loans and not yet settled.
	TotalInterestDue *big.Int
	// TotalInterestCharged is interest settled by repayment.
	TotalInterestCharged *big.Int
}

// Loan maintains the borrowing position of one account. Repeated borrows
// aggregate into a single loan.
type Loan struct {
	Address          common.Address
	Borrowed         *big.Int
	CollateralLocked *big.Int
	InterestDue      *big.Int
	InterestCharged  *big.Int
}

// DepositPosition is a lender's stake in the pool.
type DepositPosition struct {
	Address   common.Address
	Deposited *big.Int
	Withdrawn bool
	Principal *big.Int
	Reward    *big.Int
}

// Clone returns a deep copy of the market.
func (m *Market) Clone() *Market {
	if m == nil {
		return nil
	}
	return &Market{
		TotalDeposited:        copyInt(m.TotalDeposited),
		TotalBorrowed:         copyInt(m.TotalBorrowed),
		TotalCollateralLocked: copyInt(m.TotalCollateralLocked),
		TotalInterestDue:      copyInt(m.TotalInterestDue),
		TotalInterestCharged:  copyInt(m.TotalInterestCharged),
	}
}

func (m *Market) ensureDefaults() {
	ensure(&m.TotalDeposited, &m.TotalBorrowed, &m.TotalCollateralLocked, &m.TotalInterestDue, &m.TotalInterestCharged)
}

// Forfeited is the contribution share owed to lenders: settled interest plus
// everything still pledged by open loans.
func (m *Market) Forfeited() *big.Int {
	out := new(big.Int).Add(m.TotalInterestCharged, m.TotalCollateralLocked)
	return out.Add(out, m.TotalInterestDue)
}

// Available returns the liquidity not lent out.
func (m *Market) Available() *big.Int {
	out := new(big.Int).Sub(m.TotalDeposited, m.TotalBorrowed)
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}

// Clone returns a deep copy of the loan.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	return &Loan{
		Address:          l.Address,
		Borrowed:         copyInt(l.Borrowed),
		CollateralLocked: copyInt(l.CollateralLocked),
		InterestDue:      copyInt(l.InterestDue),
		InterestCharged:  copyInt(l.InterestCharged),
	}
}

func (l *Loan) ensureDefaults() {
	ensure(&l.Borrowed, &l.CollateralLocked, &l.InterestDue, &l.InterestCharged)
}

// Encumbered is the contribution share this loan withholds from the
// borrower's claim.
func (l *Loan) Encumbered() *big.Int {
	out := new(big.Int).Add(l.CollateralLocked, l.InterestDue)
	return out.Add(out, l.InterestCharged)
}

// Clone returns a deep copy of the deposit position.
func (d *DepositPosition) Clone() *DepositPosition {
	if d == nil {
		return nil
	}
	return &DepositPosition{
		Address:   d.Address,
		Deposited: copyInt(d.Deposited),
		Withdrawn: d.Withdrawn,
		Principal: copyInt(d.Principal),
		Reward:    copyInt(d.Reward),
	}
}

func (d *DepositPosition) ensureDefaults() {
	ensure(&d.Deposited, &d.Principal, &d.Reward)
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func ensure(fields ...**big.Int) {
	for _, field := range fields {
		if *field == nil {
			*field = big.NewInt(0)
		}
	}
}
