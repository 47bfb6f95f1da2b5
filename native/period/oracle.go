package period

import coreerrors "dope/core/errors"

// Oracle answers phase queries against the configured schedule. It holds no
// ledger state of its own; persistence of the schedule is the caller's
// concern.
type Oracle struct {
	schedule *Schedule
}

// NewOracle returns an unconfigured oracle. Every query reports PhaseNone
// until Configure succeeds.
func NewOracle() *Oracle {
	return &Oracle{}
}

// Configure validates and installs a schedule. Reconfiguring is permitted and
// only changes how future operations are gated.
func (o *Oracle) Configure(s Schedule) error {
	if err := s.Validate(); err != nil {
		return err
	}
	cloned := s.Clone()
	o.schedule = &cloned
	return nil
}

// Configured reports whether a schedule is installed.
func (o *Oracle) Configured() bool {
	return o != nil && o.schedule != nil
}

// Schedule returns a copy of the active schedule.
func (o *Oracle) Schedule() (Schedule, error) {
	if !o.Configured() {
		return Schedule{}, coreerrors.ErrNotConfigured.Withf("phase schedule not configured")
	}
	return o.schedule.Clone(), nil
}

// CurrentPhase returns the phase whose range contains now, or
// (PhaseNone, false) when now is outside every range.
func (o *Oracle) CurrentPhase(now uint64) (Phase, bool) {
	if !o.Configured() {
		return PhaseNone, false
	}
	for i, r := range o.schedule.Ranges {
		if r.Contains(now) {
			return Phase(i), true
		}
	}
	return PhaseNone, false
}

// Flags reports the phase flags at now.
func (o *Oracle) Flags(now uint64) Flags {
	phase, _ := o.CurrentPhase(now)
	return flagsFor(phase)
}

// Bounds returns the start and end of phase p.
func (o *Oracle) Bounds(p Phase) (Range, error) {
	if !o.Configured() {
		return Range{}, coreerrors.ErrNotConfigured.Withf("phase schedule not configured")
	}
	r, ok := o.schedule.Range(p)
	if !ok {
		return Range{}, coreerrors.ErrInvalidPeriod.Withf("unknown phase %d", p)
	}
	return r, nil
}

// ClaimOpen reports whether the Claim phase has started. Settlement payouts
// remain available after the Claim range ends.
func (o *Oracle) ClaimOpen(now uint64) bool {
	if !o.Configured() {
		return false
	}
	return now >= o.schedule.Ranges[PhaseClaim].Start
}

// Before reports whether now precedes the start of phase p.
func (o *Oracle) Before(p Phase, now uint64) bool {
	if !o.Configured() || !p.Valid() {
		return false
	}
	return now < o.schedule.Ranges[p].Start
}
