package period

import (
	"fmt"
	"strings"

	coreerrors "dope/core/errors"
)

// Phase identifies one stage of the protocol lifecycle.
type Phase uint8

const (
	PhaseStake Phase = iota
	PhaseFund
	PhaseDepositLoan
	PhaseBorrow
	PhaseClaim

	// PhaseNone is reported when the ledger time is outside every range.
	PhaseNone Phase = 0xff
)

// PhaseCount is the number of configurable phases.
const PhaseCount = 5

var phaseNames = [PhaseCount]string{"stake", "fund", "depositLoan", "borrow", "claim"}

func (p Phase) String() string {
	if int(p) < PhaseCount {
		return phaseNames[p]
	}
	return "none"
}

// Valid reports whether p is one of the five configurable phases.
func (p Phase) Valid() bool { return int(p) < PhaseCount }

// Phases lists the configurable phases in lifecycle order.
func Phases() []Phase {
	return []Phase{PhaseStake, PhaseFund, PhaseDepositLoan, PhaseBorrow, PhaseClaim}
}

// ParsePhase resolves a case-insensitive phase name.
func ParsePhase(raw string) (Phase, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	for i, name := range phaseNames {
		if strings.ToLower(name) == normalized {
			return Phase(i), true
		}
	}
	return PhaseNone, false
}

// Range is a half-open [Start, End) window of ledger time.
type Range struct {
	Start uint64
	End   uint64
}

// Contains reports whether now falls inside the range.
func (r Range) Contains(now uint64) bool {
	return now >= r.Start && now < r.End
}

// Schedule holds one range per phase, indexed by Phase.
type Schedule struct {
	Ranges []Range
}

// NewSchedule builds a schedule from the five ranges in lifecycle order.
func NewSchedule(stake, fund, depositLoan, borrow, claim Range) Schedule {
	return Schedule{Ranges: []Range{stake, fund, depositLoan, borrow, claim}}
}

// Validate rejects schedules whose ranges are inverted, overlapping or out of
// order. Adjacent ranges (End == next Start) are allowed.
func (s Schedule) Validate() error {
	if len(s.Ranges) != PhaseCount {
		return coreerrors.ErrInvalidPeriod.Withf("expected %d ranges, got %d", PhaseCount, len(s.Ranges))
	}
	for i, r := range s.Ranges {
		if r.End < r.Start {
			return coreerrors.ErrInvalidPeriod.Withf("%s ends (%d) before it starts (%d)", Phase(i), r.End, r.Start)
		}
		if i == 0 {
			continue
		}
		prev := s.Ranges[i-1]
		if r.Start < prev.End {
			return coreerrors.ErrInvalidPeriod.Withf("%s starts (%d) before %s ends (%d)", Phase(i), r.Start, Phase(i-1), prev.End)
		}
	}
	return nil
}

// Range returns the window configured for p.
func (s Schedule) Range(p Phase) (Range, bool) {
	if !p.Valid() || len(s.Ranges) != PhaseCount {
		return Range{}, false
	}
	return s.Ranges[p], true
}

// Clone returns a deep copy of the schedule.
func (s Schedule) Clone() Schedule {
	return Schedule{Ranges: append([]Range(nil), s.Ranges...)}
}

func (s Schedule) String() string {
	parts := make([]string, 0, len(s.Ranges))
	for i, r := range s.Ranges {
		parts = append(parts, fmt.Sprintf("%s=[%d,%d)", Phase(i), r.Start, r.End))
	}
	return strings.Join(parts, " ")
}

// Flags exposes one boolean per phase. At most one flag is set.
type Flags struct {
	IsStake       bool
	IsFund        bool
	IsDepositLoan bool
	IsBorrow      bool
	IsClaim       bool
}

// Slice returns the flags in lifecycle order.
func (f Flags) Slice() []bool {
	return []bool{f.IsStake, f.IsFund, f.IsDepositLoan, f.IsBorrow, f.IsClaim}
}

func flagsFor(p Phase) Flags {
	switch p {
	case PhaseStake:
		return Flags{IsStake: true}
	case PhaseFund:
		return Flags{IsFund: true}
	case PhaseDepositLoan:
		return Flags{IsDepositLoan: true}
	case PhaseBorrow:
		return Flags{IsBorrow: true}
	case PhaseClaim:
		return Flags{IsClaim: true}
	default:
		return Flags{}
	}
}
