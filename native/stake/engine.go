package stake

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "dope/core/errors"
	"dope/core/events"
	"dope/core/types"
	"dope/crypto"
	nativecommon "dope/native/common"
	"dope/native/period"
)

var (
	errNilState  = errors.New("stake engine: state not configured")
	errNilTokens = errors.New("stake engine: token ledger not configured")
)

const moduleName = "stake"

type engineState interface {
	GetStakePosition(token string, addr common.Address) (*Position, error)
	PutStakePosition(pos *Position) error
	GetStakeTotal(token string) (*big.Int, error)
	PutStakeTotal(token string, total *big.Int) error
	GetWhitelistRoot(token string) (common.Hash, error)
	PutWhitelistRoot(token string, root common.Hash) error
}

type tokenLedger interface {
	Allowance(token string, owner, spender common.Address) (*big.Int, error)
	Transfer(token string, from, to common.Address, amount *big.Int) error
	TransferFrom(token string, spender, from, to common.Address, amount *big.Int) error
}

// Engine maintains stake positions and the retention-based eligibility check
// that gates funding.
type Engine struct {
	state   engineState
	tokens  tokenLedger
	phases  nativecommon.PhaseView
	pauses  nativecommon.PauseView
	emitter events.Emitter
	custody common.Address
	config  Config
}

// NewEngine constructs a stake engine holding deposits at custody.
func NewEngine(custody common.Address, cfg Config) *Engine {
	cfg = cfg.Clone()
	cfg.EnsureDefaults()
	return &Engine{custody: custody, config: cfg, emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTokens wires the fungible token ledger.
func (e *Engine) SetTokens(tokens tokenLedger) { e.tokens = tokens }

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

// Custody returns the address holding staked tokens. Stakers approve this
// address before calling Stake.
func (e *Engine) Custody() common.Address { return e.custody }

// Config returns a copy of the active parameters.
func (e *Engine) Config() Config { return e.config.Clone() }

// Stake moves amount of the stake token into custody and credits the
// account's position.
func (e *Engine) Stake(account common.Address, amount *big.Int, proof *Proof, now uint64) (*Position, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.RequirePhase(e.phases, now, "stake", period.PhaseStake); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := e.checkWhitelist(account, proof); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, coreerrors.ErrInvalidAmount.Withf("stake amount must be positive")
	}
	allowance, err := e.tokens.Allowance(e.config.Token, account, e.custody)
	if err != nil {
		return nil, err
	}
	if allowance.Cmp(amount) < 0 {
		return nil, coreerrors.ErrInsufficientAllowance.Withf("allowance %s below stake %s", allowance, amount)
	}

	pos, err := e.loadPosition(account)
	if err != nil {
		return nil, err
	}
	updated := pos.Clone()
	updated.Amount.Add(updated.Amount, amount)
	if updated.Amount.Cmp(e.config.MinStakeAmount) < 0 {
		return nil, coreerrors.ErrInsufficientAmount.Withf("balance %s below minimum %s", updated.Amount, e.config.MinStakeAmount)
	}

	if err := e.tokens.TransferFrom(e.config.Token, e.custody, account, e.custody, amount); err != nil {
		return nil, err
	}
	updated.LastChangeAt = now
	updated.History = record(updated.History, now, updated.Amount, e.config.RetentionPeriod)
	if err := e.state.PutStakePosition(updated); err != nil {
		return nil, err
	}
	if err := e.adjustTotal(amount); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.StakeDeposited{Account: account, Token: e.config.Token, Amount: new(big.Int).Set(amount), Balance: new(big.Int).Set(updated.Amount)})
	return updated, nil
}

// Unstake returns amount of the stake token to the account. It is available
// during the Stake phase and again once claims open.
func (e *Engine) Unstake(account common.Address, amount *big.Int, now uint64) (*Position, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !nativecommon.ClaimOpen(e.phases, now) {
		if err := nativecommon.RequirePhase(e.phases, now, "unstake", period.PhaseStake); err != nil {
			return nil, err
		}
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	pos, err := e.loadPosition(account)
	if err != nil {
		return nil, err
	}
	if pos.Amount.Sign() == 0 {
		return nil, coreerrors.ErrZeroStakeBalance.Withf("account %s has no stake", account.Hex())
	}
	if amount == nil || amount.Sign() <= 0 || amount.Cmp(pos.Amount) > 0 {
		return nil, coreerrors.ErrInvalidAmount.Withf("unstake amount must be within (0, %s]", pos.Amount)
	}

	updated := pos.Clone()
	updated.Amount.Sub(updated.Amount, amount)
	if err := e.tokens.Transfer(e.config.Token, e.custody, account, amount); err != nil {
		return nil, err
	}
	updated.LastChangeAt = now
	updated.History = record(updated.History, now, updated.Amount, e.config.RetentionPeriod)
	if err := e.state.PutStakePosition(updated); err != nil {
		return nil, err
	}
	if err := e.adjustTotal(new(big.Int).Neg(amount)); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.StakeWithdrawn{Account: account, Token: e.config.Token, Amount: new(big.Int).Set(amount), Balance: new(big.Int).Set(updated.Amount)})
	return updated, nil
}

// IsSatisfied reports whether the account held at least the required stake
// for the entire retention window ending at now.
func (e *Engine) IsSatisfied(account common.Address, now uint64) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	if e.config.RequiredStakeAmount.Sign() == 0 {
		return true, nil
	}
	if now < e.config.RetentionPeriod {
		// No full retention window has elapsed since ledger time zero.
		return false, nil
	}
	pos, err := e.loadPosition(account)
	if err != nil {
		return false, err
	}
	low := minBalance(pos.History, windowStart(now, e.config.RetentionPeriod))
	return low.Cmp(e.config.RequiredStakeAmount) >= 0, nil
}

// Position returns the account's stake position. Unknown accounts yield a
// zero position.
func (e *Engine) Position(account common.Address) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadPosition(account)
}

// TotalStaked returns the sum of every position's amount.
func (e *Engine) TotalStaked() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	total, err := e.state.GetStakeTotal(e.config.Token)
	if err != nil {
		return nil, err
	}
	if total == nil {
		return big.NewInt(0), nil
	}
	return total, nil
}

// RegisterWhitelist installs the allow-list root for token. A zero root
// removes the gate.
func (e *Engine) RegisterWhitelist(token string, root common.Hash) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	token = normalizeToken(token)
	if token == "" {
		return coreerrors.ErrInvalidConfig.Withf("whitelist token required")
	}
	if err := e.state.PutWhitelistRoot(token, root); err != nil {
		return err
	}
	e.emitter.Emit(events.WhitelistRegistered{Token: token, Root: root})
	return nil
}

// IsWhitelisted verifies addr against the root registered for token.
func (e *Engine) IsWhitelisted(addr common.Address, token string, proof []common.Hash, leafIndex uint64) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	root, err := e.state.GetWhitelistRoot(normalizeToken(token))
	if err != nil {
		return false, err
	}
	return crypto.VerifyProof(root, crypto.LeafHash(addr), proof, leafIndex), nil
}

func (e *Engine) checkWhitelist(account common.Address, proof *Proof) error {
	root, err := e.state.GetWhitelistRoot(e.config.Token)
	if err != nil {
		return err
	}
	if root == (common.Hash{}) {
		return nil
	}
	if proof == nil || !crypto.VerifyProof(root, crypto.LeafHash(account), proof.Siblings, proof.LeafIndex) {
		return coreerrors.ErrNotWhitelisted.Withf("account %s not on allow-list", account.Hex())
	}
	return nil
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

func (e *Engine) loadPosition(account common.Address) (*Position, error) {
	pos, err := e.state.GetStakePosition(e.config.Token, account)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = &Position{Account: account, Token: e.config.Token}
	}
	pos.ensureDefaults()
	return pos, nil
}

func (e *Engine) adjustTotal(delta *big.Int) error {
	total, err := e.TotalStaked()
	if err != nil {
		return err
	}
	next := new(big.Int).Add(total, delta)
	if next.Sign() < 0 {
		next = big.NewInt(0)
	}
	return e.state.PutStakeTotal(e.config.Token, next)
}

func normalizeToken(token string) string {
	return types.NormalizeSymbol(token)
}
