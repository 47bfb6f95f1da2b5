package common

import (
	"errors"
	"testing"

	coreerrors "dope/core/errors"
	"dope/native/period"
)

type pauseSet map[string]bool

func (p pauseSet) IsPaused(module string) bool { return p[module] }

func testOracle(t *testing.T) *period.Oracle {
	t.Helper()
	oracle := period.NewOracle()
	schedule := period.NewSchedule(
		period.Range{Start: 0, End: 10},
		period.Range{Start: 10, End: 20},
		period.Range{Start: 20, End: 30},
		period.Range{Start: 30, End: 40},
		period.Range{Start: 40, End: 50},
	)
	if err := oracle.Configure(schedule); err != nil {
		t.Fatalf("configure: %v", err)
	}
	return oracle
}

func TestGuard(t *testing.T) {
	pauses := pauseSet{"fund": true}
	if err := Guard(pauses, "fund"); !errors.Is(err, coreerrors.ErrModulePaused) {
		t.Fatalf("expected ModulePaused, got %v", err)
	}
	if err := Guard(pauses, "stake"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Guard(nil, "fund"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
}

func TestRequirePhase(t *testing.T) {
	oracle := testOracle(t)
	if err := RequirePhase(oracle, 15, "fund", period.PhaseFund); err != nil {
		t.Fatalf("fund phase rejected: %v", err)
	}
	if err := RequirePhase(oracle, 45, "unstake", period.PhaseStake, period.PhaseClaim); err != nil {
		t.Fatalf("second allowed phase rejected: %v", err)
	}
	if err := RequirePhase(oracle, 25, "fund", period.PhaseFund); !errors.Is(err, coreerrors.ErrNotInPeriod) {
		t.Fatalf("expected NotInPeriod, got %v", err)
	}
	if err := RequirePhase(oracle, 75, "fund", period.PhaseFund); !errors.Is(err, coreerrors.ErrNotInPeriod) {
		t.Fatalf("expected NotInPeriod outside every range, got %v", err)
	}
	if err := RequirePhase(nil, 15, "fund", period.PhaseFund); !errors.Is(err, coreerrors.ErrNotInPeriod) {
		t.Fatalf("expected NotInPeriod without an oracle, got %v", err)
	}
}

func TestRequireClaimOpen(t *testing.T) {
	oracle := testOracle(t)
	if err := RequireClaimOpen(oracle, 39, "claim"); !errors.Is(err, coreerrors.ErrNotInClaimPeriod) {
		t.Fatalf("expected NotInClaimPeriod, got %v", err)
	}
	for _, now := range []uint64{40, 49, 500} {
		if err := RequireClaimOpen(oracle, now, "claim"); err != nil {
			t.Fatalf("claim at %d rejected: %v", now, err)
		}
	}
}

func TestPhaseHelpersWithoutOracle(t *testing.T) {
	if ClaimOpen(nil, 1_000) {
		t.Fatalf("claim must not open without a schedule")
	}
	if err := RequireClaimOpen(nil, 1_000, "claim"); !errors.Is(err, coreerrors.ErrNotInClaimPeriod) {
		t.Fatalf("expected NotInClaimPeriod, got %v", err)
	}
	if err := RequireBefore(nil, 0, "sale", period.PhaseDepositLoan); !errors.Is(err, coreerrors.ErrNotInPeriod) {
		t.Fatalf("expected NotInPeriod, got %v", err)
	}
}

func TestRequireBefore(t *testing.T) {
	oracle := testOracle(t)
	if err := RequireBefore(oracle, 19, "sale", period.PhaseDepositLoan); err != nil {
		t.Fatalf("sale before deposit rejected: %v", err)
	}
	if err := RequireBefore(oracle, 20, "sale", period.PhaseDepositLoan); !errors.Is(err, coreerrors.ErrNotInPeriod) {
		t.Fatalf("expected NotInPeriod at deposit start, got %v", err)
	}
}
