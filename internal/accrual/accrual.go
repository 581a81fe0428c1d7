// Package accrual implements the ROI accrual, cap, and horizon model for
// tiered staking positions.
//
// Every operation is a pure function: it takes explicit tier/position
// values and an explicit `now` (unix seconds), mutates nothing, and
// returns new values. Business-rule rejections come back as sentinel
// errors; programming-contract violations (negative principal, nil tier)
// panic, since they cannot arise from validated input.
//
// All monetary values are USD micros (6 implied decimals) carried as
// shopspring/decimal — never float64 for money.
package accrual

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/obidua/mint-engine/internal/model"
)

const (
	// SecondsPerDay is the accrual granularity. ROI accrues once per
	// full elapsed day; partial days never count.
	SecondsPerDay = 86400
)

var (
	// ErrBelowMinimum is returned when an activation principal is below
	// the applicable minimum stake. Use errors.As with *BelowMinimumError
	// to recover the required amount.
	ErrBelowMinimum = errors.New("accrual: principal below minimum stake")

	// ErrTierLocked is returned when activating a tier out of sequence.
	ErrTierLocked = errors.New("accrual: tier is locked")

	// ErrNothingToClaim is returned when a position has no full pending
	// days, including closed positions.
	ErrNothingToClaim = errors.New("accrual: nothing to claim")

	// ErrCapNotReached is returned when topping up a position whose
	// claimed total has not reached its cap.
	ErrCapNotReached = errors.New("accrual: cap not reached")

	// ErrInvalidHorizon is returned when a horizon value is neither
	// 2X nor 3X.
	ErrInvalidHorizon = errors.New("accrual: invalid horizon")

	// SecondarySlotMinimum is the minimum principal for additional slots
	// on an already-opened tier: $1.00 in USD micros.
	SecondarySlotMinimum = decimal.NewFromInt(1_000000)

	// CapEpsilon is the rounding tolerance for top-up eligibility:
	// one USD micro.
	CapEpsilon = decimal.NewFromInt(1)

	bpDivisor = decimal.NewFromInt(10000)
)

// BelowMinimumError carries the minimum the rejected principal had to meet.
type BelowMinimumError struct {
	Required decimal.Decimal
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("accrual: principal below minimum stake of %s micros", e.Required)
}

func (e *BelowMinimumError) Unwrap() error { return ErrBelowMinimum }

// UnlockStatus describes one tier's position in the unlock sequence for
// a given user. Exactly one of the three flags is set for any tier.
type UnlockStatus struct {
	TierID              int64 `json:"tier_id"`
	Locked              bool  `json:"locked"`
	AvailableToActivate bool  `json:"available_to_activate"`
	AlreadyActivated    bool  `json:"already_activated"`
}

// TierUnlockStatus computes the unlock sequence for a user. Tiers unlock
// strictly in ascending id order: everything up to highestActivated with
// at least one slot is activated, exactly highestActivated+1 is available,
// and everything beyond is locked. slotCounts maps tier id to the user's
// open slot count on that tier.
func TierUnlockStatus(tiers []model.ServerTier, highestActivated int64, slotCounts map[int64]int64) []UnlockStatus {
	out := make([]UnlockStatus, 0, len(tiers))
	for i := range tiers {
		id := tiers[i].ID
		s := UnlockStatus{TierID: id}
		switch {
		case id <= highestActivated && slotCounts[id] > 0:
			s.AlreadyActivated = true
		case id == highestActivated+1:
			s.AvailableToActivate = true
		case id > highestActivated+1:
			s.Locked = true
		default:
			// id <= highestActivated but no slot held: re-activation
			// on an unlocked tier is allowed.
			s.AvailableToActivate = true
		}
		out = append(out, s)
	}
	return out
}

// ValidateActivation checks an activation principal against the tier's
// minimum. First slots on a tier must meet the tier minimum; additional
// slots only need SecondarySlotMinimum.
func ValidateActivation(tier *model.ServerTier, isFirstSlotOnTier bool, principalUsd decimal.Decimal) error {
	mustBeValidAmount("principal", principalUsd)
	if tier == nil {
		panic("accrual: nil tier")
	}
	min := SecondarySlotMinimum
	if isFirstSlotOnTier {
		min = tier.MinStakeUsd
	}
	if principalUsd.LessThan(min) {
		return &BelowMinimumError{Required: min}
	}
	return nil
}

// NewPosition creates a position on a tier. The daily rate, day count,
// and cap multiple are copied from the tier's schedule for the chosen
// horizon so later config changes never touch open positions.
// The caller is responsible for running ValidateActivation first.
func NewPosition(tier *model.ServerTier, horizon model.Horizon, principalUsd decimal.Decimal, now int64, existingSlotCountOnTier int64) model.Position {
	mustBeValidAmount("principal", principalUsd)
	if tier == nil {
		panic("accrual: nil tier")
	}
	sched := tier.Schedule(horizon)
	return model.Position{
		TierID:       tier.ID,
		SlotID:       existingSlotCountOnTier + 1,
		Horizon:      horizon,
		PrincipalUsd: principalUsd,
		CapUsd:       principalUsd.Mul(horizon.Multiple()),
		DailyRateBp:  sched.DailyRateBp,
		TotalDays:    sched.Days,
		ClaimedDays:  0,
		ClaimedUsd:   decimal.Zero,
		StartTime:    now,
		Active:       true,
	}
}

// PendingDays returns the count of fully elapsed, not-yet-claimed days.
// Elapsed days are clamped to [0, TotalDays]: once the schedule runs out
// no more accrue even if unclaimed. Closed positions always yield 0.
func PendingDays(p *model.Position, now int64) int64 {
	if !p.Active {
		return 0
	}
	elapsed := (now - p.StartTime) / SecondsPerDay
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > p.TotalDays {
		elapsed = p.TotalDays
	}
	pending := elapsed - p.ClaimedDays
	if pending < 0 {
		return 0
	}
	return pending
}

// DailyUsd returns the position's per-day payout:
// principal x dailyRateBp / 10000, floored to a whole USD micro so that
// repeated claims never overshoot the cap through rounding.
func DailyUsd(p *model.Position) decimal.Decimal {
	return p.PrincipalUsd.Mul(p.DailyRateBp).Div(bpDivisor).Floor()
}

// PendingROI returns the claimable USD amount at `now`, clamped so that
// ClaimedUsd plus the result never exceeds CapUsd.
func PendingROI(p *model.Position, now int64) decimal.Decimal {
	days := PendingDays(p, now)
	if days == 0 {
		return decimal.Zero
	}
	gross := DailyUsd(p).Mul(decimal.NewFromInt(days))
	headroom := p.CapUsd.Sub(p.ClaimedUsd)
	if gross.GreaterThan(headroom) {
		return headroom
	}
	return gross
}

// SettleClaim settles all pending days of a position, returning the
// updated position and the claimed amount. This is the client-side
// projection of the on-chain settlement: all-or-nothing from the
// caller's perspective. The position closes when the cap is reached.
func SettleClaim(p *model.Position, now int64) (model.Position, decimal.Decimal, error) {
	days := PendingDays(p, now)
	if days == 0 {
		return *p, decimal.Zero, ErrNothingToClaim
	}
	amount := PendingROI(p, now)

	updated := *p
	updated.ClaimedDays += days
	updated.ClaimedUsd = p.ClaimedUsd.Add(amount)
	if updated.ClaimedUsd.GreaterThanOrEqual(updated.CapUsd) {
		updated.Active = false
	}
	return updated, amount, nil
}

// EligibleForTopUp reports whether a position's lifetime payout has
// reached its cap, within one USD micro of rounding tolerance.
func EligibleForTopUp(p *model.Position) bool {
	return p.ClaimedUsd.GreaterThanOrEqual(p.CapUsd.Sub(CapEpsilon))
}

// TopUp resets a capped-out position with fresh principal and a freshly
// chosen horizon, exactly as NewPosition would, preserving the tier and
// slot identity. Fails with ErrCapNotReached while the cap has not been
// exhausted.
func TopUp(p *model.Position, tier *model.ServerTier, horizon model.Horizon, newPrincipalUsd decimal.Decimal, now int64) (model.Position, error) {
	mustBeValidAmount("principal", newPrincipalUsd)
	if tier == nil {
		panic("accrual: nil tier")
	}
	if !EligibleForTopUp(p) {
		return *p, ErrCapNotReached
	}
	if newPrincipalUsd.LessThan(SecondarySlotMinimum) {
		return *p, &BelowMinimumError{Required: SecondarySlotMinimum}
	}

	sched := tier.Schedule(horizon)
	updated := *p
	updated.Horizon = horizon
	updated.PrincipalUsd = newPrincipalUsd
	updated.CapUsd = newPrincipalUsd.Mul(horizon.Multiple())
	updated.DailyRateBp = sched.DailyRateBp
	updated.TotalDays = sched.Days
	updated.ClaimedDays = 0
	updated.ClaimedUsd = decimal.Zero
	updated.StartTime = now
	updated.Active = true
	return updated, nil
}

// ParseHorizon converts the wire representation ("2X"/"3X", or the
// contract's "0"/"1" enum) into a Horizon.
func ParseHorizon(s string) (model.Horizon, error) {
	switch s {
	case "2X", "2x", "0":
		return model.HorizonTwoX, nil
	case "3X", "3x", "1":
		return model.HorizonThreeX, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidHorizon, s)
}

// mustBeValidAmount panics on amounts that indicate a caller bug rather
// than a business-rule rejection.
func mustBeValidAmount(name string, v decimal.Decimal) {
	if v.IsNegative() {
		panic(fmt.Sprintf("accrual: negative %s: %s", name, v))
	}
}
