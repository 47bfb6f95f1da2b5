package common

import (
	coreerrors "dope/core/errors"
	"dope/native/period"
)

// ErrModulePaused is returned when an operator has halted a module.
var ErrModulePaused = coreerrors.ErrModulePaused

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused.Withf("%s paused", module)
	}
	return nil
}

// PhaseView is the read-only slice of the period oracle the ledgers consult.
type PhaseView interface {
	CurrentPhase(now uint64) (period.Phase, bool)
	ClaimOpen(now uint64) bool
	Before(p period.Phase, now uint64) bool
}

// RequirePhase fails with NotInPeriod unless now falls inside one of the
// allowed phases.
func RequirePhase(v PhaseView, now uint64, op string, allowed ...period.Phase) error {
	if v == nil {
		return coreerrors.ErrNotInPeriod.Withf("%s: phase schedule unavailable", op)
	}
	current, ok := v.CurrentPhase(now)
	if ok {
		for _, p := range allowed {
			if current == p {
				return nil
			}
		}
	}
	return coreerrors.ErrNotInPeriod.Withf("%s not allowed during %s", op, current)
}

// ClaimOpen reports whether the Claim phase has started. A missing view
// reports false.
func ClaimOpen(v PhaseView, now uint64) bool {
	return v != nil && v.ClaimOpen(now)
}

// RequireBefore fails with NotInPeriod once phase p has started.
func RequireBefore(v PhaseView, now uint64, op string, p period.Phase) error {
	if v == nil {
		return coreerrors.ErrNotInPeriod.Withf("%s: phase schedule unavailable", op)
	}
	if !v.Before(p, now) {
		return coreerrors.ErrNotInPeriod.Withf("%s must happen before the %s phase", op, p)
	}
	return nil
}

// RequireClaimOpen fails with NotInClaimPeriod until the Claim phase starts.
func RequireClaimOpen(v PhaseView, now uint64, op string) error {
	if !ClaimOpen(v, now) {
		return coreerrors.ErrNotInClaimPeriod.Withf("%s requires the claim phase", op)
	}
	return nil
}
