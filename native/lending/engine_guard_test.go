package lending

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "dope/native/common"
)

type stubPauseView struct {
	modules map[string]bool
}

func (s stubPauseView) IsPaused(module string) bool {
	if s.modules == nil {
		return false
	}
	return s.modules[module]
}

func TestDepositGuardBlocksMutation(t *testing.T) {
	h := newHarness(t, referenceConfig())
	h.engine.SetPauses(stubPauseView{modules: map[string]bool{"lending": true}})
	lender := common.HexToAddress("0xcc")
	h.tokens.credit(lender, 500)

	if _, err := h.engine.Deposit(lender, big.NewInt(100), depositAt); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if balance := h.tokens.balance(lender); balance.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected lender balance to remain 500, got %s", balance)
	}
	if h.state.market != nil && h.state.market.TotalDeposited.Sign() != 0 {
		t.Fatalf("expected market deposits unchanged, got %s", h.state.market.TotalDeposited)
	}
}

func TestBorrowGuardIgnoresOtherModules(t *testing.T) {
	h := newHarness(t, referenceConfig())
	h.engine.SetPauses(stubPauseView{modules: map[string]bool{"fund": true}})
	h.seedPool(t, 10_000)
	h.shares[borrower] = big.NewInt(10_000)
	h.tokens.credit(borrower, 0)

	if _, err := h.engine.Borrow(borrower, big.NewInt(1_000), borrowAt); err != nil {
		t.Fatalf("borrow should ignore unrelated pauses: %v", err)
	}
}
