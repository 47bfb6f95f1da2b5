package fund

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
	errNilState  = errors.New("fund engine: state not configured")
	errNilTokens = errors.New("fund engine: token ledger not configured")
)

const moduleName = "fund"

type engineState interface {
	GetSale() (*Sale, error)
	PutSale(sale *Sale) error
	GetFundingPosition(addr common.Address) (*Position, error)
	PutFundingPosition(pos *Position) error
}

type tokenLedger interface {
	BalanceOf(token string, addr common.Address) (*big.Int, error)
	Allowance(token string, owner, spender common.Address) (*big.Int, error)
	Transfer(token string, from, to common.Address, amount *big.Int) error
	TransferFrom(token string, spender, from, to common.Address, amount *big.Int) error
}

// eligibility is satisfied by the stake ledger.
type eligibility interface {
	IsSatisfied(account common.Address, now uint64) (bool, error)
}

// collateralView is satisfied by the lending ledger.
type collateralView interface {
	CollateralLocked(account common.Address) (*big.Int, error)
}

// Engine runs the fixed-rate sale: contributions in the exchange token during
// the Fund phase, deferred sale token payout at Claim.
type Engine struct {
	state      engineState
	tokens     tokenLedger
	phases     nativecommon.PhaseView
	pauses     nativecommon.PauseView
	stake      eligibility
	collateral collateralView
	emitter    events.Emitter
	custody    common.Address
	treasury   common.Address
	config     Config
}

// NewEngine constructs a funding engine. Sale tokens are held at custody and
// contributions are forwarded to treasury.
func NewEngine(custody, treasury common.Address, cfg Config) *Engine {
	cfg.EnsureDefaults()
	return &Engine{custody: custody, treasury: treasury, config: cfg, emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTokens wires the fungible token ledger.
func (e *Engine) SetTokens(tokens tokenLedger) { e.tokens = tokens }

// SetPhases wires the period oracle.
func (e *Engine) SetPhases(p nativecommon.PhaseView) { e.phases = p }

// SetEligibility wires the stake check consulted before every contribution.
func (e *Engine) SetEligibility(check eligibility) { e.stake = check }

// SetCollateral wires the lending view used by ShareAndCollateral.
func (e *Engine) SetCollateral(view collateralView) { e.collateral = view }

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

// Custody returns the address holding sale tokens. The sale token source
// approves this address before SetSaleToken.
func (e *Engine) Custody() common.Address { return e.custody }

// Treasury returns the contribution sink.
func (e *Engine) Treasury() common.Address { return e.treasury }

// Config returns the active parameters.
func (e *Engine) Config() Config { return e.config }

// SetSaleToken installs the sale terms and pulls enough sale token from
// terms.Source to back the full target. It may only run once, before the
// DepositLoan phase.
func (e *Engine) SetSaleToken(terms SaleTerms, now uint64) (*Sale, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.RequireBefore(e.phases, now, "sale configuration", period.PhaseDepositLoan); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	sale, err := e.loadSale()
	if err != nil {
		return nil, err
	}
	if sale.Configured {
		return nil, coreerrors.ErrAlreadyConfigured.Withf("sale token already configured")
	}
	if err := validateTerms(terms); err != nil {
		return nil, err
	}

	supply := Entitlement(terms.Target, terms.ExchangeRate)
	allowance, err := e.tokens.Allowance(e.config.SaleToken, terms.Source, e.custody)
	if err != nil {
		return nil, err
	}
	balance, err := e.tokens.BalanceOf(e.config.SaleToken, terms.Source)
	if err != nil {
		return nil, err
	}
	if allowance.Cmp(supply) < 0 || balance.Cmp(supply) < 0 {
		return nil, coreerrors.ErrInsufficientSaleTokenSupply.Withf("need %s, allowance %s, balance %s", supply, allowance, balance)
	}
	if supply.Sign() > 0 {
		if err := e.tokens.TransferFrom(e.config.SaleToken, e.custody, terms.Source, e.custody, supply); err != nil {
			return nil, err
		}
	}

	updated := sale.Clone()
	updated.Configured = true
	updated.Terms = SaleTerms{
		Source:       terms.Source,
		Target:       new(big.Int).Set(terms.Target),
		ExchangeRate: new(big.Int).Set(terms.ExchangeRate),
		PerUserMin:   copyOrZero(terms.PerUserMin),
		PerUserMax:   copyOrZero(terms.PerUserMax),
	}
	updated.Supply = supply
	if err := e.state.PutSale(updated); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.SaleTokenConfigured{
		Source:       terms.Source,
		Token:        e.config.SaleToken,
		Target:       new(big.Int).Set(terms.Target),
		ExchangeRate: new(big.Int).Set(terms.ExchangeRate),
		Supply:       new(big.Int).Set(supply),
	})
	return updated, nil
}

// Fund records a contribution of amount exchange tokens from account.
func (e *Engine) Fund(account common.Address, amount *big.Int, now uint64) (*Position, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.RequirePhase(e.phases, now, "fund", period.PhaseFund); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.stake != nil {
		ok, err := e.stake.IsSatisfied(account, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, coreerrors.ErrNotEligible.Withf("account %s has not met the stake requirement", account.Hex())
		}
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, coreerrors.ErrInvalidAmount.Withf("fund amount must be positive")
	}
	sale, err := e.loadSale()
	if err != nil {
		return nil, err
	}
	if !sale.Configured {
		return nil, coreerrors.ErrNotConfigured.Withf("sale token not configured")
	}
	pos, err := e.loadPosition(account)
	if err != nil {
		return nil, err
	}

	contributed := new(big.Int).Add(pos.Contributed, amount)
	if contributed.Cmp(sale.Terms.PerUserMin) < 0 {
		return nil, coreerrors.ErrBelowMinimum.Withf("contribution %s below per-user minimum %s", contributed, sale.Terms.PerUserMin)
	}
	if sale.Terms.PerUserMax.Sign() > 0 && contributed.Cmp(sale.Terms.PerUserMax) > 0 {
		return nil, coreerrors.ErrAboveMaximum.Withf("contribution %s above per-user maximum %s", contributed, sale.Terms.PerUserMax)
	}
	raised := new(big.Int).Add(sale.Raised, amount)
	if raised.Cmp(sale.Terms.Target) > 0 {
		return nil, coreerrors.ErrTargetExceeded.Withf("raised %s would exceed target %s", raised, sale.Terms.Target)
	}
	if err := e.tokens.TransferFrom(e.config.ExchangeToken, e.custody, account, e.treasury, amount); err != nil {
		return nil, err
	}

	updatedPos := pos.Clone()
	updatedPos.Contributed = contributed
	updatedSale := sale.Clone()
	updatedSale.Raised = raised
	if err := e.state.PutFundingPosition(updatedPos); err != nil {
		return nil, err
	}
	if err := e.state.PutSale(updatedSale); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.Funded{Account: account, Amount: new(big.Int).Set(amount), Contributed: new(big.Int).Set(contributed), Raised: new(big.Int).Set(raised)})
	return updatedPos, nil
}

// Claim pays the account's sale token entitlement. deductions is the share of
// the contribution forfeited to lenders (interest paid plus any defaulted
// collateral and interest) and is capped at the contribution.
func (e *Engine) Claim(account common.Address, deductions *big.Int, now uint64) (*Position, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.RequireClaimOpen(e.phases, now, "claim"); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	pos, err := e.loadPosition(account)
	if err != nil {
		return nil, err
	}
	if pos.Claimed {
		return nil, coreerrors.ErrAlreadyClaimed.Withf("account %s already claimed", account.Hex())
	}
	if pos.Contributed.Sign() == 0 {
		return nil, coreerrors.ErrNothingToClaim.Withf("account %s has no contribution", account.Hex())
	}
	sale, err := e.loadSale()
	if err != nil {
		return nil, err
	}

	penalty := big.NewInt(0)
	if deductions != nil && deductions.Sign() > 0 {
		penalty = minInt(deductions, pos.Contributed)
	}
	share := new(big.Int).Sub(pos.Contributed, penalty)
	payout := Entitlement(share, sale.Terms.ExchangeRate)
	if payout.Sign() > 0 {
		if err := e.tokens.Transfer(e.config.SaleToken, e.custody, account, payout); err != nil {
			return nil, err
		}
	}

	updatedPos := pos.Clone()
	updatedPos.Claimed = true
	updatedPos.Payout = payout
	updatedSale := sale.Clone()
	updatedSale.Distributed.Add(updatedSale.Distributed, payout)
	if err := e.state.PutFundingPosition(updatedPos); err != nil {
		return nil, err
	}
	if err := e.state.PutSale(updatedSale); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.Claimed{Account: account, Payout: new(big.Int).Set(payout), Penalty: new(big.Int).Set(penalty)})
	return updatedPos, nil
}

// ReclaimUnsold returns sale tokens that back no entitlement to the sale
// source. It runs once, after claims open.
func (e *Engine) ReclaimUnsold(now uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.RequireClaimOpen(e.phases, now, "reclaim"); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	sale, err := e.loadSale()
	if err != nil {
		return nil, err
	}
	if !sale.Configured {
		return nil, coreerrors.ErrNotConfigured.Withf("sale token not configured")
	}
	if sale.Reclaimed {
		return nil, coreerrors.ErrAlreadyClaimed.Withf("unsold supply already reclaimed")
	}
	unsold := new(big.Int).Sub(sale.Supply, Entitlement(sale.Raised, sale.Terms.ExchangeRate))
	if unsold.Sign() < 0 {
		unsold.SetInt64(0)
	}
	if unsold.Sign() > 0 {
		if err := e.tokens.Transfer(e.config.SaleToken, e.custody, sale.Terms.Source, unsold); err != nil {
			return nil, err
		}
	}
	updated := sale.Clone()
	updated.Reclaimed = true
	if err := e.state.PutSale(updated); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.UnsoldReclaimed{Source: sale.Terms.Source, Amount: new(big.Int).Set(unsold)})
	return unsold, nil
}

// RewardPoolFor converts forfeited contribution shares into sale token.
func (e *Engine) RewardPoolFor(shares *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	sale, err := e.loadSale()
	if err != nil {
		return nil, err
	}
	return Entitlement(shares, sale.Terms.ExchangeRate), nil
}

// PayReward transfers amount of sale token from custody to a lender.
func (e *Engine) PayReward(to common.Address, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	sale, err := e.loadSale()
	if err != nil {
		return err
	}
	if err := e.tokens.Transfer(e.config.SaleToken, e.custody, to, amount); err != nil {
		return err
	}
	updated := sale.Clone()
	updated.Distributed.Add(updated.Distributed, amount)
	return e.state.PutSale(updated)
}

// Contribution returns the account's contributed amount.
func (e *Engine) Contribution(account common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pos, err := e.loadPosition(account)
	if err != nil {
		return nil, err
	}
	return pos.Contributed, nil
}

// ShareAndCollateral returns the account's contribution and the portion of it
// currently locked as loan collateral.
func (e *Engine) ShareAndCollateral(account common.Address) (*big.Int, *big.Int, error) {
	contributed, err := e.Contribution(account)
	if err != nil {
		return nil, nil, err
	}
	locked := big.NewInt(0)
	if e.collateral != nil {
		if locked, err = e.collateral.CollateralLocked(account); err != nil {
			return nil, nil, err
		}
	}
	return contributed, locked, nil
}

// Entitlement returns the sale token the account's full contribution is worth.
func (e *Engine) Entitlement(account common.Address) (*big.Int, error) {
	contributed, err := e.Contribution(account)
	if err != nil {
		return nil, err
	}
	sale, err := e.loadSale()
	if err != nil {
		return nil, err
	}
	return Entitlement(contributed, sale.Terms.ExchangeRate), nil
}

// Sale returns the global sale record.
func (e *Engine) Sale() (*Sale, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadSale()
}

// Position returns the account's funding position.
func (e *Engine) Position(account common.Address) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadPosition(account)
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

func (e *Engine) loadSale() (*Sale, error) {
	sale, err := e.state.GetSale()
	if err != nil {
		return nil, err
	}
	if sale == nil {
		sale = &Sale{}
	}
	sale.ensureDefaults()
	return sale, nil
}

func (e *Engine) loadPosition(account common.Address) (*Position, error) {
	pos, err := e.state.GetFundingPosition(account)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = &Position{Account: account}
	}
	pos.ensureDefaults()
	return pos, nil
}

func validateTerms(terms SaleTerms) error {
	if terms.Target == nil || terms.Target.Sign() <= 0 {
		return coreerrors.ErrInvalidConfig.Withf("sale target must be positive")
	}
	if terms.ExchangeRate == nil || terms.ExchangeRate.Sign() <= 0 {
		return coreerrors.ErrInvalidConfig.Withf("exchange rate must be positive")
	}
	if terms.PerUserMin != nil && terms.PerUserMin.Sign() < 0 {
		return coreerrors.ErrInvalidConfig.Withf("per-user minimum must not be negative")
	}
	if terms.PerUserMax != nil && terms.PerUserMax.Sign() < 0 {
		return coreerrors.ErrInvalidConfig.Withf("per-user maximum must not be negative")
	}
	if terms.PerUserMin != nil && terms.PerUserMax != nil && terms.PerUserMax.Sign() > 0 && terms.PerUserMin.Cmp(terms.PerUserMax) > 0 {
		return coreerrors.ErrInvalidConfig.Withf("per-user minimum %s exceeds maximum %s", terms.PerUserMin, terms.PerUserMax)
	}
	return nil
}

func copyOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func minInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
