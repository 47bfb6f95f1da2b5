package lending

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "dope/core/errors"
	"dope/core/events"
	nativecommon "dope/native/common"
	"dope/native/period"
)

var (
	errNilState   = errors.New("lending engine: state not configured")
	errNilTokens  = errors.New("lending engine: token ledger not configured")
	errNilShares  = errors.New("lending engine: contribution source not configured")
	errNilRewards = errors.New("lending engine: reward source not configured")
)

const moduleName = "lending"

type engineState interface {
	GetMarket() (*Market, error)
	PutMarket(market *Market) error
	GetLoan(addr common.Address) (*Loan, error)
	PutLoan(loan *Loan) error
	GetDeposit(addr common.Address) (*DepositPosition, error)
	PutDeposit(pos *DepositPosition) error
}

type tokenLedger interface {
	Transfer(token string, from, to common.Address, amount *big.Int) error
	TransferFrom(token string, spender, from, to common.Address, amount *big.Int) error
}

// shareSource reports funding contributions; satisfied by the funding ledger.
type shareSource interface {
	Contribution(account common.Address) (*big.Int, error)
}

// rewardSource converts forfeited contribution into sale token and pays it;
// satisfied by the funding ledger.
type rewardSource interface {
	RewardPoolFor(shares *big.Int) (*big.Int, error)
	PayReward(to common.Address, amount *big.Int) error
}

// Engine orchestrates the state transitions of the lending pool.
type Engine struct {
	state   engineState
	tokens  tokenLedger
	shares  shareSource
	rewards rewardSource
	phases  nativecommon.PhaseView
	pauses  nativecommon.PauseView
	emitter events.Emitter
	custody common.Address
	config  Config
}

// NewEngine constructs a lending engine holding pool liquidity at custody.
func NewEngine(custody common.Address, cfg Config) *Engine {
	cfg = cfg.Clone()
	cfg.EnsureDefaults()
	return &Engine{custody: custody, config: cfg, emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTokens wires the fungible token ledger.
func (e *Engine) SetTokens(tokens tokenLedger) { e.tokens = tokens }

// SetShares wires the contribution source used for collateral checks.
func (e *Engine) SetShares(src shareSource) { e.shares = src }

// SetRewards wires the sale token reward source used at withdrawal.
func (e *Engine) SetRewards(src rewardSource) { e.rewards = src }

// SetPhases wires the period oracle.
func (e *Engine) SetPhases(p nativecommon.PhaseView) { e.phases = p }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Custody returns the pool address. Lenders and repaying borrowers approve it.
func (e *Engine) Custody() common.Address { return e.custody }

// Config returns a copy of the active parameters.
func (e *Engine) Config() Config { return e.config.Clone() }

// Deposit adds lender liquidity during the DepositLoan phase.
func (e *Engine) Deposit(lender common.Address, amount *big.Int, now uint64) (*DepositPosition, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.RequirePhase(e.phases, now, "deposit", period.PhaseDepositLoan); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, coreerrors.ErrInvalidAmount.Withf("deposit amount must be positive")
	}
	market, err := e.loadMarket()
	if err != nil {
		return nil, err
	}
	pos, err := e.loadDeposit(lender)
	if err != nil {
		return nil, err
	}

	deposited := new(big.Int).Add(pos.Deposited, amount)
	if limit := e.config.MaxUserDeposit; limit.Sign() > 0 && deposited.Cmp(limit) > 0 {
		return nil, coreerrors.ErrDepositCapExceeded.Withf("lender deposit %s above cap %s", deposited, limit)
	}
	total := new(big.Int).Add(market.TotalDeposited, amount)
	if limit := e.config.MaxTotalDeposit; limit.Sign() > 0 && total.Cmp(limit) > 0 {
		return nil, coreerrors.ErrDepositCapExceeded.Withf("pool deposits %s above cap %s", total, limit)
	}
	if err := e.tokens.TransferFrom(e.config.StableToken, e.custody, lender, e.custody, amount); err != nil {
		return nil, err
	}

	updated := pos.Clone()
	updated.Deposited = deposited
	market.TotalDeposited = total
	if err := e.state.PutDeposit(updated); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(market); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.LendDeposited{Account: lender, Amount: new(big.Int).Set(amount), Total: new(big.Int).Set(total)})
	return updated, nil
}

// Borrow draws amount of stable liquidity against the borrower's funding
// contribution. Collateral and the flat interest are reserved up front, and
// every open draw of the same account counts against the same contribution.
func (e *Engine) Borrow(borrower common.Address, amount *big.Int, now uint64) (*Loan, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.RequirePhase(e.phases, now, "borrow", period.PhaseBorrow); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, coreerrors.ErrInvalidAmount.Withf("borrow amount must be positive")
	}
	if e.config.LTVBps == 0 {
		return nil, coreerrors.ErrInsufficientCollateral.Withf("borrowing disabled")
	}
	if e.shares == nil {
		return nil, errNilShares
	}
	contributed, err := e.shares.Contribution(borrower)
	if err != nil {
		return nil, err
	}
	loan, err := e.loadLoan(borrower)
	if err != nil {
		return nil, err
	}

	collateral := requiredCollateral(amount, e.config.LTVBps)
	interest := interestFor(amount, e.config.InterestRate)
	needed := new(big.Int).Add(collateral, interest)
	available := new(big.Int).Sub(contributed, loan.Encumbered())
	if available.Cmp(needed) < 0 {
		return nil, coreerrors.ErrInsufficientCollateral.Withf("need %s of contribution, %s available", needed, available)
	}

	market, err := e.loadMarket()
	if err != nil {
		return nil, err
	}
	borrowed := new(big.Int).Add(market.TotalBorrowed, amount)
	if borrowed.Cmp(market.TotalDeposited) > 0 {
		return nil, coreerrors.ErrPoolExhausted.Withf("pool has %s available", market.Available())
	}
	if err := e.tokens.Transfer(e.config.StableToken, e.custody, borrower, amount); err != nil {
		return nil, err
	}

	updated := loan.Clone()
	updated.Borrowed.Add(updated.Borrowed, amount)
	updated.CollateralLocked.Add(updated.CollateralLocked, collateral)
	updated.InterestDue.Add(updated.InterestDue, interest)
	market.TotalBorrowed = borrowed
	market.TotalCollateralLocked.Add(market.TotalCollateralLocked, collateral)
	market.TotalInterestDue.Add(market.TotalInterestDue, interest)
	if err := e.state.PutLoan(updated); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(market); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.Borrowed{Account: borrower, Amount: new(big.Int).Set(amount), Collateral: collateral, Interest: interest})
	return updated, nil
}

// Repay returns amount of principal. Collateral is released and reserved
// interest is settled in proportion to the principal repaid.
func (e *Engine) Repay(borrower common.Address, amount *big.Int, now uint64) (*Loan, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.RequirePhase(e.phases, now, "repay", period.PhaseBorrow); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, coreerrors.ErrInvalidAmount.Withf("repay amount must be positive")
	}
	loan, err := e.loadLoan(borrower)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(loan.Borrowed) > 0 {
		return nil, coreerrors.ErrExceedsOwed.Withf("repay %s exceeds owed %s", amount, loan.Borrowed)
	}
	market, err := e.loadMarket()
	if err != nil {
		return nil, err
	}
	if err := e.tokens.TransferFrom(e.config.StableToken, e.custody, borrower, e.custody, amount); err != nil {
		return nil, err
	}

	released := loan.CollateralLocked
	settled := loan.InterestDue
	if amount.Cmp(loan.Borrowed) < 0 {
		released = proRata(loan.CollateralLocked, amount, loan.Borrowed)
		settled = proRata(loan.InterestDue, amount, loan.Borrowed)
	}
	released = new(big.Int).Set(released)
	settled = new(big.Int).Set(settled)

	updated := loan.Clone()
	updated.Borrowed.Sub(updated.Borrowed, amount)
	updated.CollateralLocked.Sub(updated.CollateralLocked, released)
	updated.InterestDue.Sub(updated.InterestDue, settled)
	updated.InterestCharged.Add(updated.InterestCharged, settled)
	market.TotalBorrowed.Sub(market.TotalBorrowed, amount)
	market.TotalCollateralLocked.Sub(market.TotalCollateralLocked, released)
	market.TotalInterestDue.Sub(market.TotalInterestDue, settled)
	market.TotalInterestCharged.Add(market.TotalInterestCharged, settled)
	if err := e.state.PutLoan(updated); err != nil {
		return nil, err
	}
	if err := e.state.PutMarket(market); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.Repaid{Account: borrower, Amount: new(big.Int).Set(amount), Released: released, Interest: settled})
	return updated, nil
}

// Withdraw settles a lender once claims open: the pro-rata share of pool
// liquidity plus the pro-rata share of the sale token reward pool. Loans still
// open at that point are treated as defaulted and their pledged contribution
// feeds the reward pool.
func (e *Engine) Withdraw(lender common.Address, now uint64) (*DepositPosition, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.RequireClaimOpen(e.phases, now, "withdraw"); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.rewards == nil {
		return nil, errNilRewards
	}
	pos, err := e.loadDeposit(lender)
	if err != nil {
		return nil, err
	}
	if pos.Withdrawn {
		return nil, coreerrors.ErrAlreadyWithdrawn.Withf("lender %s already withdrew", lender.Hex())
	}
	if pos.Deposited.Sign() == 0 {
		return nil, coreerrors.ErrNothingToWithdraw.Withf("lender %s has no deposit", lender.Hex())
	}
	market, err := e.loadMarket()
	if err != nil {
		return nil, err
	}

	principal := proRata(pos.Deposited, market.Available(), market.TotalDeposited)
	pool, err := e.rewards.RewardPoolFor(market.Forfeited())
	if err != nil {
		return nil, err
	}
	reward := proRata(pos.Deposited, pool, market.TotalDeposited)
	if principal.Sign() > 0 {
		if err := e.tokens.Transfer(e.config.StableToken, e.custody, lender, principal); err != nil {
			return nil, err
		}
	}
	if err := e.rewards.PayReward(lender, reward); err != nil {
		return nil, err
	}

	updated := pos.Clone()
	updated.Withdrawn = true
	updated.Principal = principal
	updated.Reward = reward
	if err := e.state.PutDeposit(updated); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.LendWithdrawn{Account: lender, Principal: new(big.Int).Set(principal), Reward: new(big.Int).Set(reward)})
	return updated, nil
}

// CollateralLocked returns the contribution share pledged by the account's
// open loan.
func (e *Engine) CollateralLocked(account common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	loan, err := e.loadLoan(account)
	if err != nil {
		return nil, err
	}
	return loan.CollateralLocked, nil
}

// Forfeiture returns the contribution share the account loses at claim.
func (e *Engine) Forfeiture(account common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	loan, err := e.loadLoan(account)
	if err != nil {
		return nil, err
	}
	return loan.Encumbered(), nil
}

// RewardPool returns the sale token owed to lenders in aggregate.
func (e *Engine) RewardPool() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.rewards == nil {
		return nil, errNilRewards
	}
	market, err := e.loadMarket()
	if err != nil {
		return nil, err
	}
	return e.rewards.RewardPoolFor(market.Forfeited())
}

// Market returns the pool totals.
func (e *Engine) Market() (*Market, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadMarket()
}

// Loan returns the account's loan.
func (e *Engine) Loan(account common.Address) (*Loan, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadLoan(account)
}

// DepositOf returns the lender's deposit position.
func (e *Engine) DepositOf(account common.Address) (*DepositPosition, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadDeposit(account)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.tokens == nil {
		return errNilTokens
	}
	return nil
}

func (e *Engine) loadMarket() (*Market, error) {
	market, err := e.state.GetMarket()
	if err != nil {
		return nil, err
	}
	if market == nil {
		market = &Market{}
	} else {
		market = market.Clone()
	}
	market.ensureDefaults()
	return market, nil
}

func (e *Engine) loadLoan(account common.Address) (*Loan, error) {
	loan, err := e.state.GetLoan(account)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		loan = &Loan{Address: account}
	}
	loan.ensureDefaults()
	return loan, nil
}

func (e *Engine) loadDeposit(account common.Address) (*DepositPosition, error) {
	pos, err := e.state.GetDeposit(account)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = &DepositPosition{Address: account}
	}
	pos.ensureDefaults()
	return pos, nil
}
