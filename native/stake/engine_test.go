package stake

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "dope/core/errors"
	"dope/core/events"
	"dope/crypto"
	nativecommon "dope/native/common"
	"dope/native/period"
)

const day = uint64(86_400)

type mockEngineState struct {
	positions map[string]*Position
	totals    map[string]*big.Int
	roots     map[string]common.Hash
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{
		positions: make(map[string]*Position),
		totals:    make(map[string]*big.Int),
		roots:     make(map[string]common.Hash),
	}
}

func (m *mockEngineState) key(token string, addr common.Address) string {
	return token + "/" + addr.Hex()
}

func (m *mockEngineState) GetStakePosition(token string, addr common.Address) (*Position, error) {
	return m.positions[m.key(token, addr)].Clone(), nil
}

func (m *mockEngineState) PutStakePosition(pos *Position) error {
	m.positions[m.key(pos.Token, pos.Account)] = pos.Clone()
	return nil
}

func (m *mockEngineState) GetStakeTotal(token string) (*big.Int, error) {
	if total, ok := m.totals[token]; ok {
		return new(big.Int).Set(total), nil
	}
	return nil, nil
}

func (m *mockEngineState) PutStakeTotal(token string, total *big.Int) error {
	m.totals[token] = new(big.Int).Set(total)
	return nil
}

func (m *mockEngineState) GetWhitelistRoot(token string) (common.Hash, error) {
	return m.roots[token], nil
}

func (m *mockEngineState) PutWhitelistRoot(token string, root common.Hash) error {
	m.roots[token] = root
	return nil
}

type mockTokens struct {
	balances   map[common.Address]*big.Int
	allowances map[[2]common.Address]*big.Int
}

func newMockTokens() *mockTokens {
	return &mockTokens{balances: make(map[common.Address]*big.Int), allowances: make(map[[2]common.Address]*big.Int)}
}

func (m *mockTokens) balance(addr common.Address) *big.Int {
	if b, ok := m.balances[addr]; ok {
		return b
	}
	return big.NewInt(0)
}

func (m *mockTokens) Allowance(_ string, owner, spender common.Address) (*big.Int, error) {
	if a, ok := m.allowances[[2]common.Address{owner, spender}]; ok {
		return new(big.Int).Set(a), nil
	}
	return big.NewInt(0), nil
}

func (m *mockTokens) Transfer(_ string, from, to common.Address, amount *big.Int) error {
	if m.balance(from).Cmp(amount) < 0 {
		return coreerrors.ErrInsufficientBalance
	}
	m.balances[from] = new(big.Int).Sub(m.balance(from), amount)
	m.balances[to] = new(big.Int).Add(m.balance(to), amount)
	return nil
}

func (m *mockTokens) TransferFrom(token string, spender, from, to common.Address, amount *big.Int) error {
	allowance, _ := m.Allowance(token, from, spender)
	if allowance.Cmp(amount) < 0 {
		return coreerrors.ErrInsufficientAllowance
	}
	if err := m.Transfer(token, from, to, amount); err != nil {
		return err
	}
	m.allowances[[2]common.Address{from, spender}] = allowance.Sub(allowance, amount)
	return nil
}

type stubPauseView struct {
	modules map[string]bool
}

func (s stubPauseView) IsPaused(module string) bool { return s.modules[module] }

func newOracle(t *testing.T, stakeEnd uint64) *period.Oracle {
	t.Helper()
	oracle := period.NewOracle()
	schedule := period.NewSchedule(
		period.Range{Start: 0, End: stakeEnd},
		period.Range{Start: stakeEnd, End: stakeEnd + day},
		period.Range{Start: stakeEnd + day, End: stakeEnd + 2*day},
		period.Range{Start: stakeEnd + 2*day, End: stakeEnd + 3*day},
		period.Range{Start: stakeEnd + 3*day, End: stakeEnd + 4*day},
	)
	if err := oracle.Configure(schedule); err != nil {
		t.Fatalf("configure oracle: %v", err)
	}
	return oracle
}

type harness struct {
	engine  *Engine
	state   *mockEngineState
	tokens  *mockTokens
	events  *events.Recorder
	custody common.Address
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		state:   newMockEngineState(),
		tokens:  newMockTokens(),
		events:  &events.Recorder{},
		custody: crypto.ModuleAddress("stake"),
	}
	h.engine = NewEngine(h.custody, cfg)
	h.engine.SetState(h.state)
	h.engine.SetTokens(h.tokens)
	h.engine.SetPhases(newOracle(t, 10*day))
	h.engine.SetEmitter(h.events)
	return h
}

func (h *harness) fund(account common.Address, amount int64) {
	h.tokens.balances[account] = big.NewInt(amount)
	h.tokens.allowances[[2]common.Address{account, h.custody}] = big.NewInt(amount)
}

func defaultConfig() Config {
	return Config{
		Token:               "gov",
		MinStakeAmount:      big.NewInt(10),
		RequiredStakeAmount: big.NewInt(100_000),
		RetentionPeriod:     4 * day,
	}
}

func TestStakeAndUnstakeKeepCustodyBalanced(t *testing.T) {
	h := newHarness(t, defaultConfig())
	alice := common.HexToAddress("0xa1")
	bob := common.HexToAddress("0xb0")
	h.fund(alice, 1_000)
	h.fund(bob, 500)

	if _, err := h.engine.Stake(alice, big.NewInt(600), nil, 1); err != nil {
		t.Fatalf("stake alice: %v", err)
	}
	if _, err := h.engine.Stake(bob, big.NewInt(500), nil, 2); err != nil {
		t.Fatalf("stake bob: %v", err)
	}
	pos, err := h.engine.Unstake(alice, big.NewInt(200), 3)
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if pos.Amount.Cmp(big.NewInt(400)) != 0 || pos.LastChangeAt != 3 {
		t.Fatalf("unexpected position %+v", pos)
	}

	total, err := h.engine.TotalStaked()
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("expected total 900, got %s", total)
	}
	if custody := h.tokens.balance(h.custody); custody.Cmp(total) != 0 {
		t.Fatalf("custody %s does not match total %s", custody, total)
	}
	if got := len(h.events.Events()); got != 3 {
		t.Fatalf("expected 3 events, got %d", got)
	}
}

func TestStakeRejections(t *testing.T) {
	h := newHarness(t, defaultConfig())
	alice := common.HexToAddress("0xa1")
	h.fund(alice, 100)

	if _, err := h.engine.Stake(alice, big.NewInt(50), nil, 10*day); !errors.Is(err, coreerrors.ErrNotInPeriod) {
		t.Fatalf("expected NotInPeriod, got %v", err)
	}
	if _, err := h.engine.Stake(alice, big.NewInt(500), nil, 1); !errors.Is(err, coreerrors.ErrInsufficientAllowance) {
		t.Fatalf("expected InsufficientAllowance, got %v", err)
	}
	if _, err := h.engine.Stake(alice, big.NewInt(5), nil, 1); !errors.Is(err, coreerrors.ErrInsufficientAmount) {
		t.Fatalf("expected InsufficientAmount, got %v", err)
	}
	if _, err := h.engine.Stake(alice, big.NewInt(0), nil, 1); !errors.Is(err, coreerrors.ErrInvalidAmount) {
		t.Fatalf("expected InvalidAmount, got %v", err)
	}
	if h.tokens.balance(alice).Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("failed stakes must not move tokens")
	}

	if _, err := h.engine.Unstake(alice, big.NewInt(1), 1); !errors.Is(err, coreerrors.ErrZeroStakeBalance) {
		t.Fatalf("expected ZeroStakeBalance, got %v", err)
	}
	if _, err := h.engine.Stake(alice, big.NewInt(20), nil, 1); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if _, err := h.engine.Unstake(alice, big.NewInt(21), 2); !errors.Is(err, coreerrors.ErrInvalidAmount) {
		t.Fatalf("expected InvalidAmount on over-withdraw, got %v", err)
	}
	if _, err := h.engine.Unstake(alice, big.NewInt(5), 10*day+1); !errors.Is(err, coreerrors.ErrNotInPeriod) {
		t.Fatalf("expected NotInPeriod during fund, got %v", err)
	}
	if _, err := h.engine.Unstake(alice, big.NewInt(20), 13*day); err != nil {
		t.Fatalf("unstake after claim opens: %v", err)
	}
}

func TestStakeGuardBlocksMutation(t *testing.T) {
	h := newHarness(t, defaultConfig())
	h.engine.SetPauses(stubPauseView{modules: map[string]bool{"stake": true}})
	alice := common.HexToAddress("0xa1")
	h.fund(alice, 100)

	if _, err := h.engine.Stake(alice, big.NewInt(50), nil, 1); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if h.tokens.balance(h.custody).Sign() != 0 {
		t.Fatalf("paused stake must not move tokens")
	}
}

func TestRetentionWindowUsesMinimumBalance(t *testing.T) {
	h := newHarness(t, defaultConfig())
	alice := common.HexToAddress("0xa1")
	h.fund(alice, 100_000)

	t0 := uint64(1_000)
	if _, err := h.engine.Stake(alice, big.NewInt(100_000), nil, t0); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if ok, _ := h.engine.IsSatisfied(alice, t0); ok {
		t.Fatalf("fresh stake must not satisfy the window")
	}
	if _, err := h.engine.Unstake(alice, big.NewInt(99_999), t0+day); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	ok, err := h.engine.IsSatisfied(alice, t0+4*day)
	if err != nil {
		t.Fatalf("is satisfied: %v", err)
	}
	if ok {
		t.Fatalf("dip inside the window must fail the check")
	}

	// Restaking does not repair the window until the dip ages out.
	h.fund(alice, 100_000)
	if _, err := h.engine.Stake(alice, big.NewInt(99_999), nil, t0+4*day); err != nil {
		t.Fatalf("restake: %v", err)
	}
	if ok, _ := h.engine.IsSatisfied(alice, t0+5*day); ok {
		t.Fatalf("restake immediately before the check must not satisfy it")
	}
	if ok, _ := h.engine.IsSatisfied(alice, t0+8*day); !ok {
		t.Fatalf("expected satisfaction once the dip leaves the window")
	}
}

func TestUnstakeWithoutSchedule(t *testing.T) {
	h := newHarness(t, defaultConfig())
	alice := common.HexToAddress("0xa1")
	h.fund(alice, 100_000)
	if _, err := h.engine.Stake(alice, big.NewInt(100_000), nil, 100); err != nil {
		t.Fatalf("stake: %v", err)
	}
	h.engine.SetPhases(nil)
	if _, err := h.engine.Unstake(alice, big.NewInt(1), 200); !errors.Is(err, coreerrors.ErrNotInPeriod) {
		t.Fatalf("expected NotInPeriod without a schedule, got %v", err)
	}
}

func TestRetentionWindowFromLedgerStart(t *testing.T) {
	h := newHarness(t, defaultConfig())
	alice := common.HexToAddress("0xa1")
	h.fund(alice, 100_000)

	if _, err := h.engine.Stake(alice, big.NewInt(100_000), nil, 0); err != nil {
		t.Fatalf("stake: %v", err)
	}
	for _, now := range []uint64{0, 1, 4*day - 1} {
		ok, err := h.engine.IsSatisfied(alice, now)
		if err != nil {
			t.Fatalf("is satisfied at %d: %v", now, err)
		}
		if ok {
			t.Fatalf("stake at time zero satisfied the window at %d", now)
		}
	}
	if ok, _ := h.engine.IsSatisfied(alice, 4*day); !ok {
		t.Fatalf("expected satisfaction after a full window from time zero")
	}
}

func TestRetentionSatisfiedAfterFullWindow(t *testing.T) {
	h := newHarness(t, defaultConfig())
	alice := common.HexToAddress("0xa1")
	h.fund(alice, 150_000)

	if _, err := h.engine.Stake(alice, big.NewInt(150_000), nil, 100); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if ok, _ := h.engine.IsSatisfied(alice, 100+4*day-1); ok {
		t.Fatalf("window not yet elapsed")
	}
	if ok, _ := h.engine.IsSatisfied(alice, 100+4*day); !ok {
		t.Fatalf("expected satisfaction at window end")
	}
	if ok, _ := h.engine.IsSatisfied(common.HexToAddress("0xdead"), 100+4*day); ok {
		t.Fatalf("unknown account must not be eligible")
	}
}

func TestZeroRequirementAlwaysSatisfied(t *testing.T) {
	cfg := defaultConfig()
	cfg.RequiredStakeAmount = nil
	h := newHarness(t, cfg)
	if ok, err := h.engine.IsSatisfied(common.HexToAddress("0x01"), 0); err != nil || !ok {
		t.Fatalf("expected zero requirement to be satisfied, ok=%v err=%v", ok, err)
	}
}

func TestWhitelistGatesStake(t *testing.T) {
	h := newHarness(t, defaultConfig())
	members := []common.Address{
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
		common.HexToAddress("0x3333333333333333333333333333333333333333"),
	}
	tree, err := crypto.NewAddressTree(members)
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	if err := h.engine.RegisterWhitelist("GOV", tree.Root()); err != nil {
		t.Fatalf("register: %v", err)
	}

	member := members[1]
	h.fund(member, 100)
	proof, err := tree.Proof(1)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	if ok, _ := h.engine.IsWhitelisted(member, "gov", proof, 1); !ok {
		t.Fatalf("expected member to verify")
	}
	if ok, _ := h.engine.IsWhitelisted(member, "gov", proof, 0); ok {
		t.Fatalf("wrong leaf index must not verify")
	}
	if _, err := h.engine.Stake(member, big.NewInt(50), &Proof{Siblings: proof, LeafIndex: 0}, 1); !errors.Is(err, coreerrors.ErrNotWhitelisted) {
		t.Fatalf("expected NotWhitelisted, got %v", err)
	}
	if _, err := h.engine.Stake(member, big.NewInt(50), &Proof{Siblings: proof, LeafIndex: 1}, 1); err != nil {
		t.Fatalf("stake with valid proof: %v", err)
	}

	outsider := common.HexToAddress("0x4444444444444444444444444444444444444444")
	h.fund(outsider, 100)
	if _, err := h.engine.Stake(outsider, big.NewInt(50), nil, 1); !errors.Is(err, coreerrors.ErrNotWhitelisted) {
		t.Fatalf("expected NotWhitelisted for outsider, got %v", err)
	}

	if err := h.engine.RegisterWhitelist("gov", common.Hash{}); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := h.engine.Stake(outsider, big.NewInt(50), nil, 1); err != nil {
		t.Fatalf("stake after clearing allow-list: %v", err)
	}
}

func TestHistoryCompaction(t *testing.T) {
	var history []HistoryEntry
	for i := uint64(0); i < 10; i++ {
		history = record(history, i*day, big.NewInt(int64(i+1)), 2*day)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 entries after compaction, got %d", len(history))
	}
	if history[0].At != 7*day {
		t.Fatalf("expected anchor at day 7, got %d", history[0].At/day)
	}
	if low := minBalance(history, 7*day); low.Cmp(big.NewInt(8)) != 0 {
		t.Fatalf("expected min 8, got %s", low)
	}
	if low := minBalance(history, 6*day); low.Sign() != 0 {
		t.Fatalf("window before the anchor must read zero, got %s", low)
	}
}
