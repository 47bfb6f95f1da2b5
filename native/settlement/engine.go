package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/trace"

	coreerrors "dope/core/errors"
	"dope/core/events"
	"dope/core/state"
	"dope/core/token"
	"dope/crypto"
	"dope/native/fund"
	"dope/native/lending"
	"dope/native/period"
	"dope/native/stake"
	"dope/observability/metrics"
	dopeotel "dope/observability/otel"
)

var errNilManager = errors.New("settlement engine: state manager not configured")

// Engine is one protocol instance. It owns the ledger state and serialises
// every operation behind a single lock; each mutating call commits all of its
// writes or none of them.
type Engine struct {
	mu sync.Mutex

	state   *state.Manager
	oracle  *period.Oracle
	tokens  *token.Ledger
	stake   *stake.Engine
	fund    *fund.Engine
	lending *lending.Engine

	staged   *events.Recorder
	emitter  events.Emitter
	deferred []func()

	now     func() uint64
	logger  *slog.Logger
	metrics *metrics.SettlementMetrics
	tracer  trace.Tracer

	treasury common.Address
}

// New wires the four ledgers over manager. A persisted schedule takes
// precedence over cfg.Periods.
func New(manager *state.Manager, cfg Config) (*Engine, error) {
	if manager == nil {
		return nil, errNilManager
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	treasury, err := cfg.treasury()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		state:    manager,
		oracle:   period.NewOracle(),
		tokens:   token.NewLedger(manager),
		staged:   &events.Recorder{},
		emitter:  events.NoopEmitter{},
		now:      func() uint64 { return uint64(time.Now().Unix()) },
		logger:   slog.Default(),
		tracer:   dopeotel.Tracer(),
		treasury: treasury,
	}
	e.stake = stake.NewEngine(crypto.ModuleAddress(ModuleStake), cfg.Stake)
	e.fund = fund.NewEngine(crypto.ModuleAddress(ModuleFund), treasury, cfg.Fund)
	e.lending = lending.NewEngine(crypto.ModuleAddress(ModuleLending), cfg.Lending)

	e.tokens.SetEmitter(e.staged)
	e.stake.SetState(manager)
	e.stake.SetTokens(e.tokens)
	e.stake.SetPhases(e.oracle)
	e.stake.SetPauses(manager)
	e.stake.SetEmitter(e.staged)

	e.fund.SetState(manager)
	e.fund.SetTokens(e.tokens)
	e.fund.SetPhases(e.oracle)
	e.fund.SetPauses(manager)
	e.fund.SetEligibility(e.stake)
	e.fund.SetCollateral(e.lending)
	e.fund.SetEmitter(e.staged)

	e.lending.SetState(manager)
	e.lending.SetTokens(e.tokens)
	e.lending.SetPhases(e.oracle)
	e.lending.SetPauses(manager)
	e.lending.SetShares(e.fund)
	e.lending.SetRewards(e.fund)
	e.lending.SetEmitter(e.staged)

	stored, err := manager.GetSchedule()
	if err != nil {
		return nil, fmt.Errorf("settlement: load schedule: %w", err)
	}
	switch {
	case stored != nil:
		if err := e.oracle.Configure(*stored); err != nil {
			return nil, fmt.Errorf("settlement: stored schedule: %w", err)
		}
	case cfg.Periods != nil:
		if err := e.ConfigurePeriods(context.Background(), *cfg.Periods); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// SetEmitter forwards committed events, stamped with the operation time, to
// emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc replaces the ledger clock.
func (e *Engine) SetNowFunc(now func() uint64) {
	if now == nil {
		return
	}
	e.mu.Lock()
	e.now = now
	e.mu.Unlock()
}

// SetLogger configures structured logging.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	e.mu.Lock()
	e.logger = logger
	e.mu.Unlock()
}

// SetMetrics enables Prometheus instrumentation.
func (e *Engine) SetMetrics(m *metrics.SettlementMetrics) {
	e.mu.Lock()
	e.metrics = m
	e.mu.Unlock()
}

// SetTracer overrides the tracer used for operation spans.
func (e *Engine) SetTracer(tracer trace.Tracer) {
	if tracer == nil {
		return
	}
	e.mu.Lock()
	e.tracer = tracer
	e.mu.Unlock()
}

// Treasury returns the address receiving contributions.
func (e *Engine) Treasury() common.Address { return e.treasury }

// StakeToken returns the configured stake token symbol.
func (e *Engine) StakeToken() string { return e.stake.Config().Token }

// StakeCustody returns the address stakers approve.
func (e *Engine) StakeCustody() common.Address { return e.stake.Custody() }

// FundCustody returns the address contributors and the sale source approve.
func (e *Engine) FundCustody() common.Address { return e.fund.Custody() }

// LendingCustody returns the address lenders and repaying borrowers approve.
func (e *Engine) LendingCustody() common.Address { return e.lending.Custody() }

// ConfigurePeriods installs and persists the phase schedule.
func (e *Engine) ConfigurePeriods(ctx context.Context, schedule period.Schedule) error {
	return e.execute(ctx, "configurePeriods", nil, func(uint64) error {
		if err := schedule.Validate(); err != nil {
			return err
		}
		installed := schedule.Clone()
		if err := e.state.PutSchedule(&installed); err != nil {
			return err
		}
		ranges := make([]events.PeriodRange, 0, period.PhaseCount)
		for _, p := range period.Phases() {
			r, _ := installed.Range(p)
			ranges = append(ranges, events.PeriodRange{Phase: p.String(), Start: r.Start, End: r.End})
		}
		e.staged.Emit(events.PeriodsConfigured{Ranges: ranges})
		e.afterCommit(func() {
			// Validated above; Configure cannot fail here.
			_ = e.oracle.Configure(installed)
		})
		return nil
	})
}

// SetPaused toggles the pause switch of a ledger module.
func (e *Engine) SetPaused(ctx context.Context, module string, paused bool) error {
	module = strings.ToLower(strings.TrimSpace(module))
	return e.execute(ctx, "setPaused", []slog.Attr{slog.String("module", module)}, func(uint64) error {
		known := false
		for _, m := range Modules() {
			if m == module {
				known = true
				break
			}
		}
		if !known {
			return coreerrors.ErrInvalidConfig.Withf("unknown module %q", module)
		}
		if err := e.state.SetPaused(module, paused); err != nil {
			return err
		}
		e.staged.Emit(events.ModulePauseSet{Module: module, Paused: paused})
		return nil
	})
}

// Mint credits amount of a token to an account. It stands in for the
// external token contracts the protocol settles against.
func (e *Engine) Mint(ctx context.Context, symbol string, to common.Address, amount *big.Int) error {
	return e.execute(ctx, "mint", accountAttrs(to, amount), func(uint64) error {
		return e.tokens.Mint(symbol, to, amount)
	})
}

// Approve sets the allowance owner grants spender.
func (e *Engine) Approve(ctx context.Context, symbol string, owner, spender common.Address, amount *big.Int) error {
	return e.execute(ctx, "approve", accountAttrs(owner, amount), func(uint64) error {
		return e.tokens.Approve(symbol, owner, spender, amount)
	})
}

// Stake moves stake token into custody. proof is required once an allow-list
// root is registered for the stake token.
func (e *Engine) Stake(ctx context.Context, account common.Address, amount *big.Int, proof *stake.Proof) (*stake.Position, error) {
	var out *stake.Position
	err := e.execute(ctx, "stake", accountAttrs(account, amount), func(now uint64) error {
		pos, err := e.stake.Stake(account, amount, proof, now)
		out = pos
		return err
	})
	return out, err
}

// Unstake returns stake token to the account.
func (e *Engine) Unstake(ctx context.Context, account common.Address, amount *big.Int) (*stake.Position, error) {
	var out *stake.Position
	err := e.execute(ctx, "unstake", accountAttrs(account, amount), func(now uint64) error {
		pos, err := e.stake.Unstake(account, amount, now)
		out = pos
		return err
	})
	return out, err
}

// RegisterWhitelist installs the allow-list root gating Stake for token.
func (e *Engine) RegisterWhitelist(ctx context.Context, tokenSymbol string, root common.Hash) error {
	attrs := []slog.Attr{slog.String("token", tokenSymbol), slog.String("root", root.Hex())}
	return e.execute(ctx, "registerWhitelist", attrs, func(uint64) error {
		return e.stake.RegisterWhitelist(tokenSymbol, root)
	})
}

// SetSaleToken installs the sale terms and pulls the backing supply.
func (e *Engine) SetSaleToken(ctx context.Context, terms fund.SaleTerms) (*fund.Sale, error) {
	var out *fund.Sale
	err := e.execute(ctx, "setSaleToken", accountAttrs(terms.Source, terms.Target), func(now uint64) error {
		sale, err := e.fund.SetSaleToken(terms, now)
		out = sale
		return err
	})
	return out, err
}

// FundSaleToken contributes the exchange token during the Fund phase.
func (e *Engine) FundSaleToken(ctx context.Context, account common.Address, amount *big.Int) (*fund.Position, error) {
	var out *fund.Position
	err := e.execute(ctx, "fund", accountAttrs(account, amount), func(now uint64) error {
		pos, err := e.fund.Fund(account, amount, now)
		out = pos
		return err
	})
	return out, err
}

// DepositTokenForLend adds lender liquidity.
func (e *Engine) DepositTokenForLend(ctx context.Context, lender common.Address, amount *big.Int) (*lending.DepositPosition, error) {
	var out *lending.DepositPosition
	err := e.execute(ctx, "deposit", accountAttrs(lender, amount), func(now uint64) error {
		pos, err := e.lending.Deposit(lender, amount, now)
		out = pos
		return err
	})
	return out, err
}

// Borrow draws stable token against the account's funding position.
func (e *Engine) Borrow(ctx context.Context, borrower common.Address, amount *big.Int) (*lending.Loan, error) {
	var out *lending.Loan
	err := e.execute(ctx, "borrow", accountAttrs(borrower, amount), func(now uint64) error {
		loan, err := e.lending.Borrow(borrower, amount, now)
		out = loan
		return err
	})
	return out, err
}

// Repay returns borrowed stable token and releases collateral.
func (e *Engine) Repay(ctx context.Context, borrower common.Address, amount *big.Int) (*lending.Loan, error) {
	var out *lending.Loan
	err := e.execute(ctx, "repay", accountAttrs(borrower, amount), func(now uint64) error {
		loan, err := e.lending.Repay(borrower, amount, now)
		out = loan
		return err
	})
	return out, err
}

// WithdrawLentToken pays a lender their principal and reward share.
func (e *Engine) WithdrawLentToken(ctx context.Context, lender common.Address) (*lending.DepositPosition, error) {
	var out *lending.DepositPosition
	err := e.execute(ctx, "withdraw", accountAttrs(lender, nil), func(now uint64) error {
		pos, err := e.lending.Withdraw(lender, now)
		out = pos
		return err
	})
	return out, err
}

// Claim settles the account's funding position. Interest paid and any loan
// left open at claim are deducted from the entitlement.
func (e *Engine) Claim(ctx context.Context, account common.Address) (*fund.Position, error) {
	var out *fund.Position
	err := e.execute(ctx, "claim", accountAttrs(account, nil), func(now uint64) error {
		deductions, err := e.lending.Forfeiture(account)
		if err != nil {
			return err
		}
		pos, err := e.fund.Claim(account, deductions, now)
		out = pos
		return err
	})
	return out, err
}

// ReclaimUnsold returns sale tokens backing no entitlement to the sale source.
func (e *Engine) ReclaimUnsold(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	err := e.execute(ctx, "reclaimUnsold", nil, func(now uint64) error {
		amount, err := e.fund.ReclaimUnsold(now)
		out = amount
		return err
	})
	return out, err
}

func (e *Engine) afterCommit(fn func()) {
	e.deferred = append(e.deferred, fn)
}

// execute runs op under the engine lock with a single ledger time. Staged
// writes and events are discarded when op fails.
func (e *Engine) execute(ctx context.Context, op string, attrs []slog.Attr, fn func(now uint64) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	phase, _ := e.oracle.CurrentPhase(now)
	_, span := dopeotel.StartOperation(ctx, e.tracer, op, phase.String(), now)
	defer span.End()

	started := time.Now()
	err := fn(now)
	if err == nil {
		err = e.state.Commit()
	}
	elapsed := time.Since(started)

	logAttrs := append([]any{slog.String("operation", op), slog.String("phase", phase.String()), slog.Uint64("now", now)}, attrsToAny(attrs)...)
	if err != nil {
		e.state.Rollback()
		e.staged.Drain()
		e.deferred = nil

		code := string(coreerrors.CodeOf(err))
		if code == "" {
			code = "internal"
		}
		e.metrics.ObserveOperation(op, code, elapsed)
		span.Reject(code, err)
		e.logger.Debug("operation rejected", append(logAttrs, slog.String("code", code), slog.String("reason", err.Error()))...)
		return err
	}

	for _, hook := range e.deferred {
		hook()
	}
	e.deferred = nil
	for _, evt := range e.staged.Drain() {
		e.emitter.Emit(events.Timed{Inner: evt, At: now})
	}
	e.metrics.ObserveOperation(op, "", elapsed)
	e.publishTotals(now)
	span.Commit()
	e.logger.Info("operation committed", logAttrs...)
	return nil
}

func (e *Engine) publishTotals(now uint64) {
	if e.metrics == nil {
		return
	}
	if phase, ok := e.oracle.CurrentPhase(now); ok {
		e.metrics.SetPhase(int(phase))
	} else {
		e.metrics.SetPhase(-1)
	}
	if total, err := e.stake.TotalStaked(); err == nil {
		e.metrics.SetTotal("staked", total)
	}
	if sale, err := e.fund.Sale(); err == nil {
		e.metrics.SetTotal("raised", sale.Raised)
		e.metrics.SetTotal("distributed", sale.Distributed)
	}
	if market, err := e.lending.Market(); err == nil {
		e.metrics.SetTotal("deposited", market.TotalDeposited)
		e.metrics.SetTotal("borrowed", market.TotalBorrowed)
	}
}

func accountAttrs(account common.Address, amount *big.Int) []slog.Attr {
	attrs := []slog.Attr{slog.String("account", account.Hex())}
	if amount != nil {
		attrs = append(attrs, slog.String("amount", amount.String()))
	}
	return attrs
}

func attrsToAny(attrs []slog.Attr) []any {
	out := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		out = append(out, attr)
	}
	return out
}
