package settlement

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	coreerrors "dope/core/errors"
	"dope/core/events"
	"dope/core/state"
	"dope/crypto"
	"dope/native/fund"
	"dope/native/lending"
	"dope/native/period"
	"dope/native/stake"
	"dope/observability/metrics"
)

const (
	govToken  = "GOV"
	saleToken = "SALE"
	usdc      = "USDC"

	stakeAt   = uint64(10)
	fundAt    = uint64(150)
	depositAt = uint64(250)
	borrowAt  = uint64(350)
	claimAt   = uint64(450)
)

var (
	source   = common.HexToAddress("0x5a1e")
	investor = common.HexToAddress("0xa11ce")
	lender   = common.HexToAddress("0x1e4d")
	lender2  = common.HexToAddress("0x1e4e")
	ctx      = context.Background()
)

type clock struct{ now uint64 }

func testSchedule() period.Schedule {
	return period.NewSchedule(
		period.Range{Start: 0, End: 100},
		period.Range{Start: 100, End: 200},
		period.Range{Start: 200, End: 300},
		period.Range{Start: 300, End: 400},
		period.Range{Start: 400, End: 1_000},
	)
}

func testConfig() Config {
	schedule := testSchedule()
	return Config{
		Periods: &schedule,
		Stake: stake.Config{
			Token:               govToken,
			MinStakeAmount:      big.NewInt(100),
			RequiredStakeAmount: big.NewInt(1_000),
			RetentionPeriod:     50,
		},
		Fund: fund.Config{SaleToken: saleToken, ExchangeToken: usdc},
		Lending: lending.Config{
			StableToken:  usdc,
			LTVBps:       5_000,
			InterestRate: 200_000,
		},
	}
}

type harness struct {
	engine   *Engine
	manager  *state.Manager
	clock    *clock
	recorder *events.Recorder
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	manager := state.NewMemoryManager()
	engine, err := New(manager, cfg)
	require.NoError(t, err)
	c := &clock{}
	engine.SetNowFunc(func() uint64 { return c.now })
	rec := &events.Recorder{}
	engine.SetEmitter(rec)
	return &harness{engine: engine, manager: manager, clock: c, recorder: rec}
}

func (h *harness) at(now uint64) *harness {
	h.clock.now = now
	return h
}

func (h *harness) credit(t *testing.T, symbol string, to, spender common.Address, amount int64) {
	t.Helper()
	require.NoError(t, h.engine.Mint(ctx, symbol, to, big.NewInt(amount)))
	require.NoError(t, h.engine.Approve(ctx, symbol, to, spender, big.NewInt(amount)))
}

func (h *harness) balance(t *testing.T, symbol string, addr common.Address) int64 {
	t.Helper()
	bal, err := h.engine.BalanceOf(symbol, addr)
	require.NoError(t, err)
	return bal.Int64()
}

// setup installs the sale, makes investor eligible and funds contribution.
func (h *harness) setup(t *testing.T, contribution int64) {
	t.Helper()
	h.at(stakeAt)
	h.credit(t, saleToken, source, h.engine.FundCustody(), 100_000)
	_, err := h.engine.SetSaleToken(ctx, fund.SaleTerms{
		Source:       source,
		Target:       big.NewInt(100_000),
		ExchangeRate: big.NewInt(1_000_000),
	})
	require.NoError(t, err)

	h.credit(t, govToken, investor, h.engine.StakeCustody(), 1_000)
	_, err = h.engine.Stake(ctx, investor, big.NewInt(1_000), nil)
	require.NoError(t, err)

	h.at(fundAt)
	h.credit(t, usdc, investor, h.engine.FundCustody(), contribution)
	_, err = h.engine.FundSaleToken(ctx, investor, big.NewInt(contribution))
	require.NoError(t, err)
}

func (h *harness) deposit(t *testing.T, who common.Address, amount int64) {
	t.Helper()
	h.at(depositAt)
	h.credit(t, usdc, who, h.engine.LendingCustody(), amount)
	_, err := h.engine.DepositTokenForLend(ctx, who, big.NewInt(amount))
	require.NoError(t, err)
}

func (h *harness) borrowAndRepay(t *testing.T, amount int64) {
	t.Helper()
	h.at(borrowAt)
	_, err := h.engine.Borrow(ctx, investor, big.NewInt(amount))
	require.NoError(t, err)
	require.NoError(t, h.engine.Approve(ctx, usdc, investor, h.engine.LendingCustody(), big.NewInt(amount)))
	loan, err := h.engine.Repay(ctx, investor, big.NewInt(amount))
	require.NoError(t, err)
	require.Zero(t, loan.Borrowed.Sign())
}

func TestReferenceScenario(t *testing.T) {
	h := newHarness(t, testConfig())
	h.setup(t, 10_000)
	require.Equal(t, int64(10_000), h.balance(t, usdc, h.engine.Treasury()))

	h.deposit(t, lender, 10_000)
	h.borrowAndRepay(t, 1_000)

	h.at(claimAt)
	pos, err := h.engine.WithdrawLentToken(ctx, lender)
	require.NoError(t, err)
	require.Equal(t, int64(10_000), pos.Principal.Int64())
	require.Equal(t, int64(200), pos.Reward.Int64())
	require.Equal(t, int64(10_000), h.balance(t, usdc, lender))
	require.Equal(t, int64(200), h.balance(t, saleToken, lender))

	payout, err := h.engine.ClaimablePayout(investor)
	require.NoError(t, err)
	require.Equal(t, int64(9_800), payout.Int64())

	claimed, err := h.engine.Claim(ctx, investor)
	require.NoError(t, err)
	require.True(t, claimed.Claimed)
	require.Equal(t, int64(9_800), claimed.Payout.Int64())
	require.Equal(t, int64(9_800), h.balance(t, saleToken, investor))

	unsold, err := h.engine.ReclaimUnsold(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(90_000), unsold.Int64())
	require.Zero(t, h.balance(t, saleToken, h.engine.FundCustody()))
	require.Zero(t, h.balance(t, usdc, h.engine.LendingCustody()))

	_, err = h.engine.ReclaimUnsold(ctx)
	require.True(t, errors.Is(err, coreerrors.ErrAlreadyClaimed), "got %v", err)
}

func TestRewardSplitsAcrossLenders(t *testing.T) {
	h := newHarness(t, testConfig())
	h.setup(t, 20_000)
	h.deposit(t, lender, 10_000)
	h.deposit(t, lender2, 40_000)
	h.borrowAndRepay(t, 5_000)

	h.at(claimAt)
	pool, err := h.engine.RewardPool()
	require.NoError(t, err)
	require.Equal(t, int64(1_000), pool.Int64())

	first, err := h.engine.WithdrawLentToken(ctx, lender)
	require.NoError(t, err)
	require.Equal(t, int64(200), first.Reward.Int64())
	second, err := h.engine.WithdrawLentToken(ctx, lender2)
	require.NoError(t, err)
	require.Equal(t, int64(800), second.Reward.Int64())

	claimed, err := h.engine.Claim(ctx, investor)
	require.NoError(t, err)
	require.Equal(t, int64(19_000), claimed.Payout.Int64())

	_, err = h.engine.WithdrawLentToken(ctx, lender)
	require.True(t, errors.Is(err, coreerrors.ErrAlreadyWithdrawn), "got %v", err)
}

func TestClaimTwiceFails(t *testing.T) {
	h := newHarness(t, testConfig())
	h.setup(t, 10_000)

	h.at(claimAt)
	_, err := h.engine.Claim(ctx, investor)
	require.NoError(t, err)
	require.Equal(t, int64(10_000), h.balance(t, saleToken, investor))

	before := len(h.recorder.Events())
	_, err = h.engine.Claim(ctx, investor)
	require.True(t, errors.Is(err, coreerrors.ErrAlreadyClaimed), "got %v", err)
	require.Equal(t, int64(10_000), h.balance(t, saleToken, investor))
	require.Len(t, h.recorder.Events(), before)

	_, err = h.engine.Claim(ctx, lender)
	require.True(t, errors.Is(err, coreerrors.ErrNothingToClaim), "got %v", err)
}

func TestClaimBeforeClaimPhase(t *testing.T) {
	h := newHarness(t, testConfig())
	h.setup(t, 10_000)
	h.at(borrowAt)
	_, err := h.engine.Claim(ctx, investor)
	require.True(t, errors.Is(err, coreerrors.ErrNotInClaimPeriod), "got %v", err)

	// Claim stays open after the configured claim window ends.
	h.at(5_000)
	_, err = h.engine.Claim(ctx, investor)
	require.NoError(t, err)
}

func TestDefaultedLoanFeedsLenders(t *testing.T) {
	h := newHarness(t, testConfig())
	h.setup(t, 10_000)
	h.deposit(t, lender, 10_000)

	h.at(borrowAt)
	loan, err := h.engine.Borrow(ctx, investor, big.NewInt(1_000))
	require.NoError(t, err)
	require.Equal(t, int64(2_000), loan.CollateralLocked.Int64())
	require.Equal(t, int64(200), loan.InterestDue.Int64())

	h.at(claimAt)
	pos, err := h.engine.WithdrawLentToken(ctx, lender)
	require.NoError(t, err)
	require.Equal(t, int64(9_000), pos.Principal.Int64())
	require.Equal(t, int64(2_200), pos.Reward.Int64())

	claimed, err := h.engine.Claim(ctx, investor)
	require.NoError(t, err)
	require.Equal(t, int64(7_800), claimed.Payout.Int64())
	require.Equal(t, int64(1_000), h.balance(t, usdc, investor))

	_, err = h.engine.ReclaimUnsold(ctx)
	require.NoError(t, err)
	require.Zero(t, h.balance(t, saleToken, h.engine.FundCustody()))
}

func TestMultipleLoansShareCollateral(t *testing.T) {
	h := newHarness(t, testConfig())
	h.setup(t, 10_000)
	h.deposit(t, lender, 10_000)

	h.at(borrowAt)
	_, err := h.engine.Borrow(ctx, investor, big.NewInt(3_000))
	require.NoError(t, err)
	_, err = h.engine.Borrow(ctx, investor, big.NewInt(1_500))
	require.NoError(t, err)

	share, locked, err := h.engine.GetShareAndCollateral(investor)
	require.NoError(t, err)
	require.Equal(t, int64(10_000), share.Int64())
	require.Equal(t, int64(9_000), locked.Int64())

	_, err = h.engine.Borrow(ctx, investor, big.NewInt(100))
	require.True(t, errors.Is(err, coreerrors.ErrInsufficientCollateral), "got %v", err)

	loan, err := h.engine.Loan(investor)
	require.NoError(t, err)
	require.Equal(t, int64(4_500), loan.Borrowed.Int64())
	require.Equal(t, int64(900), loan.InterestDue.Int64())
}

func TestPhaseFlags(t *testing.T) {
	h := newHarness(t, testConfig())
	cases := []struct {
		now  uint64
		want []bool
	}{
		{50, []bool{true, false, false, false, false}},
		{99, []bool{true, false, false, false, false}},
		{100, []bool{false, true, false, false, false}},
		{300, []bool{false, false, false, true, false}},
		{999, []bool{false, false, false, false, true}},
		{1_000, []bool{false, false, false, false, false}},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, h.at(tc.now).engine.GetCurrentPhases().Slice(), "now=%d", tc.now)
	}

	bounds, err := h.engine.GetStartAndEndPhaseOf(period.PhaseFund)
	require.NoError(t, err)
	require.Equal(t, period.Range{Start: 100, End: 200}, bounds)

	_, err = h.engine.GetStartAndEndPhaseOf(period.PhaseNone)
	require.True(t, errors.Is(err, coreerrors.ErrInvalidPeriod), "got %v", err)
}

func TestOperationsRejectedOutsidePhase(t *testing.T) {
	h := newHarness(t, testConfig())
	h.setup(t, 10_000)

	h.at(fundAt)
	h.credit(t, usdc, lender, h.engine.LendingCustody(), 1_000)
	_, err := h.engine.DepositTokenForLend(ctx, lender, big.NewInt(1_000))
	require.True(t, errors.Is(err, coreerrors.ErrNotInPeriod), "got %v", err)

	_, err = h.engine.Borrow(ctx, investor, big.NewInt(1))
	require.True(t, errors.Is(err, coreerrors.ErrNotInPeriod), "got %v", err)

	_, err = h.engine.Unstake(ctx, investor, big.NewInt(1))
	require.True(t, errors.Is(err, coreerrors.ErrNotInPeriod), "got %v", err)

	h.at(depositAt)
	_, err = h.engine.FundSaleToken(ctx, investor, big.NewInt(1))
	require.True(t, errors.Is(err, coreerrors.ErrNotInPeriod), "got %v", err)
}

func TestRetentionWindow(t *testing.T) {
	const day = uint64(86_400)
	cfg := testConfig()
	cfg.Stake.MinStakeAmount = big.NewInt(0)
	cfg.Stake.RequiredStakeAmount = big.NewInt(100_000)
	cfg.Stake.RetentionPeriod = 4 * day
	schedule := period.NewSchedule(
		period.Range{Start: 0, End: 10 * day},
		period.Range{Start: 10 * day, End: 11 * day},
		period.Range{Start: 11 * day, End: 12 * day},
		period.Range{Start: 12 * day, End: 13 * day},
		period.Range{Start: 13 * day, End: 14 * day},
	)
	cfg.Periods = &schedule
	h := newHarness(t, cfg)

	t0 := day
	h.at(t0)
	h.credit(t, govToken, investor, h.engine.StakeCustody(), 100_000)
	h.credit(t, govToken, lender, h.engine.StakeCustody(), 100_000)
	_, err := h.engine.Stake(ctx, investor, big.NewInt(100_000), nil)
	require.NoError(t, err)
	_, err = h.engine.Stake(ctx, lender, big.NewInt(100_000), nil)
	require.NoError(t, err)

	h.at(t0 + day)
	_, err = h.engine.Unstake(ctx, investor, big.NewInt(99_999))
	require.NoError(t, err)

	h.at(t0 + 4*day)
	amount, err := h.engine.GetCurrentStakeAmount(investor)
	require.NoError(t, err)
	require.Equal(t, int64(1), amount.Int64())

	ok, err := h.engine.IsSatisfied(investor)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = h.engine.IsSatisfied(lender)
	require.NoError(t, err)
	require.True(t, ok)

	total, err := h.engine.TotalStaked()
	require.NoError(t, err)
	require.Equal(t, int64(100_001), total.Int64())
	require.Equal(t, int64(100_001), h.balance(t, govToken, h.engine.StakeCustody()))
}

func TestWhitelistGatesStake(t *testing.T) {
	h := newHarness(t, testConfig())
	tree, err := crypto.NewAddressTree([]common.Address{investor, lender})
	require.NoError(t, err)

	h.at(stakeAt)
	require.NoError(t, h.engine.RegisterWhitelist(ctx, govToken, tree.Root()))
	h.credit(t, govToken, lender2, h.engine.StakeCustody(), 1_000)
	_, err = h.engine.Stake(ctx, lender2, big.NewInt(1_000), nil)
	require.True(t, errors.Is(err, coreerrors.ErrNotWhitelisted), "got %v", err)

	proof, err := tree.Proof(0)
	require.NoError(t, err)
	ok, err := h.engine.IsWhiteListed(investor, govToken, proof, 0)
	require.NoError(t, err)
	require.True(t, ok)

	h.credit(t, govToken, investor, h.engine.StakeCustody(), 1_000)
	_, err = h.engine.Stake(ctx, investor, big.NewInt(1_000), &stake.Proof{Siblings: proof, LeafIndex: 0})
	require.NoError(t, err)
}

func TestFailedOperationLeavesNoTrace(t *testing.T) {
	h := newHarness(t, testConfig())
	h.setup(t, 10_000)

	h.at(fundAt)
	require.NoError(t, h.engine.Approve(ctx, usdc, investor, h.engine.FundCustody(), big.NewInt(5_000)))
	before := len(h.recorder.Events())

	_, err := h.engine.FundSaleToken(ctx, investor, big.NewInt(5_000))
	require.True(t, errors.Is(err, coreerrors.ErrInsufficientBalance), "got %v", err)
	require.False(t, h.manager.Dirty())
	require.Len(t, h.recorder.Events(), before)

	pos, err := h.engine.FundingPosition(investor)
	require.NoError(t, err)
	require.Equal(t, int64(10_000), pos.Contributed.Int64())
	sale, err := h.engine.Sale()
	require.NoError(t, err)
	require.Equal(t, int64(10_000), sale.Raised.Int64())
}

func TestPauseHaltsOneModule(t *testing.T) {
	h := newHarness(t, testConfig())
	h.setup(t, 5_000)

	require.NoError(t, h.engine.SetPaused(ctx, "Fund", true))
	require.True(t, h.engine.IsPaused(ModuleFund))

	h.credit(t, usdc, investor, h.engine.FundCustody(), 1_000)
	_, err := h.engine.FundSaleToken(ctx, investor, big.NewInt(1_000))
	require.True(t, errors.Is(err, coreerrors.ErrModulePaused), "got %v", err)

	require.NoError(t, h.engine.SetPaused(ctx, ModuleFund, false))
	_, err = h.engine.FundSaleToken(ctx, investor, big.NewInt(1_000))
	require.NoError(t, err)

	err = h.engine.SetPaused(ctx, "oracle", true)
	require.True(t, errors.Is(err, coreerrors.ErrInvalidConfig), "got %v", err)
}

func TestEventsCarryOperationTime(t *testing.T) {
	h := newHarness(t, testConfig())
	h.setup(t, 10_000)

	var funded *events.Timed
	for _, evt := range h.recorder.Events() {
		timed, ok := evt.(events.Timed)
		require.True(t, ok)
		if timed.EventType() == events.TypeFunded {
			funded = &timed
		}
	}
	require.NotNil(t, funded)
	require.Equal(t, fundAt, funded.At)
	require.Equal(t, "10000", events.Render(*funded).Attr("raised"))
}

func TestScheduleSurvivesRestart(t *testing.T) {
	h := newHarness(t, testConfig())
	cfg := testConfig()
	cfg.Periods = nil

	restarted, err := New(h.manager, cfg)
	require.NoError(t, err)
	schedule, err := restarted.Schedule()
	require.NoError(t, err)
	require.Equal(t, testSchedule(), schedule)

	invalid := testSchedule()
	invalid.Ranges[1].Start = 50
	err = restarted.ConfigurePeriods(ctx, invalid)
	require.True(t, errors.Is(err, coreerrors.ErrInvalidPeriod), "got %v", err)
	schedule, err = restarted.Schedule()
	require.NoError(t, err)
	require.Equal(t, testSchedule(), schedule)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Lending.LTVBps = 20_000
	_, err := New(state.NewMemoryManager(), cfg)
	require.True(t, errors.Is(err, coreerrors.ErrInvalidConfig), "got %v", err)

	cfg = testConfig()
	cfg.Fund.Treasury = "not-an-address"
	_, err = New(state.NewMemoryManager(), cfg)
	require.True(t, errors.Is(err, coreerrors.ErrInvalidConfig), "got %v", err)

	cfg = testConfig()
	cfg.Lending.StableToken = "DAI"
	_, err = New(state.NewMemoryManager(), cfg)
	require.True(t, errors.Is(err, coreerrors.ErrInvalidConfig), "got %v", err)

	cfg = testConfig()
	cfg.Lending.StableToken = saleToken
	_, err = New(state.NewMemoryManager(), cfg)
	require.True(t, errors.Is(err, coreerrors.ErrInvalidConfig), "got %v", err)

	cfg = testConfig()
	cfg.Lending.StableToken = "usdc"
	_, err = New(state.NewMemoryManager(), cfg)
	require.NoError(t, err)

	cfg = testConfig()
	cfg.Lending.StableToken = "\uff35\uff33\uff24\uff23"
	_, err = New(state.NewMemoryManager(), cfg)
	require.NoError(t, err)

	_, err = New(nil, testConfig())
	require.Error(t, err)
}

func TestMetricsTrackOperations(t *testing.T) {
	h := newHarness(t, testConfig())
	m := metrics.NewSettlementMetrics()
	h.engine.SetMetrics(m)
	h.setup(t, 10_000)

	h.at(claimAt)
	_, err := h.engine.Claim(ctx, investor)
	require.NoError(t, err)
	_, err = h.engine.Claim(ctx, investor)
	require.Error(t, err)

	require.Equal(t, float64(1), testutil.ToFloat64(m.OperationCounter().WithLabelValues("fund", "ok")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.FailureCounter().WithLabelValues("claim", string(coreerrors.CodeAlreadyClaimed))))
	require.Equal(t, float64(10_000), testutil.ToFloat64(m.TotalsGauge().WithLabelValues("raised")))
	require.Equal(t, float64(period.PhaseClaim), testutil.ToFloat64(m.PhaseGauge()))
}

func TestSpansTrackOperations(t *testing.T) {
	h := newHarness(t, testConfig())
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	h.engine.SetTracer(provider.Tracer("test"))
	h.setup(t, 10_000)

	h.at(claimAt)
	_, err := h.engine.Claim(ctx, investor)
	require.NoError(t, err)
	_, err = h.engine.Claim(ctx, investor)
	require.Error(t, err)

	spans := recorder.Ended()
	require.NotEmpty(t, spans)
	last := spans[len(spans)-1]
	require.Equal(t, "settlement.claim", last.Name())
	require.Equal(t, codes.Error, last.Status().Code)
	require.Equal(t, string(coreerrors.CodeAlreadyClaimed), last.Status().Description)
	require.Contains(t, last.Attributes(), attribute.String("settlement.phase", "claim"))

	committed := spans[len(spans)-2]
	require.Equal(t, "settlement.claim", committed.Name())
	require.Equal(t, codes.Ok, committed.Status().Code)
}
