// Package tier holds the server tier configuration: the production tier
// table, schedule invariant validation, and parsing of the
// MINT-S{tier}-P{slot} position reference format used in API paths and
// ledger rows.
package tier

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/obidua/mint-engine/internal/model"
)

var (
	ErrInvalidRef    = errors.New("tier: invalid position reference format")
	ErrUnknownTier   = errors.New("tier: unknown tier id")
	ErrInvalidConfig = errors.New("tier: invalid tier configuration")
)

// refRegex matches: MINT-S{tierID}-P{slotID}
// Example: MINT-S1-P3 (tier 1, slot 3).
var refRegex = regexp.MustCompile(`^MINT-S([1-9][0-9]*)-P([1-9][0-9]*)$`)

// Ref formats a (tier, slot) pair as a position reference.
func Ref(tierID, slotID int64) string {
	return fmt.Sprintf("MINT-S%d-P%d", tierID, slotID)
}

// ParseRef parses and validates a position reference string.
func ParseRef(ref string) (tierID, slotID int64, err error) {
	matches := refRegex.FindStringSubmatch(ref)
	if matches == nil {
		return 0, 0, fmt.Errorf("%w: %s (expected MINT-S{tier}-P{slot})", ErrInvalidRef, ref)
	}
	tierID, _ = strconv.ParseInt(matches[1], 10, 64)
	slotID, _ = strconv.ParseInt(matches[2], 10, 64)
	return tierID, slotID, nil
}

// Defaults returns the production tier table. Minimum stakes double per
// tier; each horizon's rate spreads the 2x/3x total payout evenly over
// its day count. Rates are the values the live contract publishes.
func Defaults() []model.ServerTier {
	bp := decimal.NewFromFloat
	usd := decimal.NewFromInt
	return []model.ServerTier{
		{
			ID:          1,
			MinStakeUsd: usd(5_000000),
			Horizon2x:   model.Schedule{Days: 990, DailyRateBp: bp(20.2)},
			Horizon3x:   model.Schedule{Days: 1350, DailyRateBp: bp(22.2)},
		},
		{
			ID:          2,
			MinStakeUsd: usd(10_000000),
			Horizon2x:   model.Schedule{Days: 900, DailyRateBp: bp(22.2)},
			Horizon3x:   model.Schedule{Days: 1260, DailyRateBp: bp(23.8)},
		},
		{
			ID:          3,
			MinStakeUsd: usd(20_000000),
			Horizon2x:   model.Schedule{Days: 810, DailyRateBp: bp(24.7)},
			Horizon3x:   model.Schedule{Days: 1170, DailyRateBp: bp(25.6)},
		},
		{
			ID:          4,
			MinStakeUsd: usd(40_000000),
			Horizon2x:   model.Schedule{Days: 720, DailyRateBp: bp(27.8)},
			Horizon3x:   model.Schedule{Days: 1080, DailyRateBp: bp(27.8)},
		},
		{
			ID:          5,
			MinStakeUsd: usd(80_000000),
			Horizon2x:   model.Schedule{Days: 600, DailyRateBp: bp(33.3)},
			Horizon3x:   model.Schedule{Days: 930, DailyRateBp: bp(32.3)},
		},
	}
}

// scheduleTolerance bounds how far rate x days may drift from the exact
// 200%/300% total. The published per-tier rates carry a few basis points
// of rounding; the cap rule absorbs the drift at claim time.
var scheduleTolerance = decimal.NewFromInt(100) // 1% in bp

// Validate checks structural invariants of a tier table: dense ids
// starting at 1, positive minimums, positive day counts and rates, and
// each schedule's total payout within tolerance of its cap multiple.
func Validate(tiers []model.ServerTier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("%w: empty tier table", ErrInvalidConfig)
	}
	for i := range tiers {
		t := &tiers[i]
		if t.ID != int64(i+1) {
			return fmt.Errorf("%w: tier ids must be dense 1..N, got %d at index %d", ErrInvalidConfig, t.ID, i)
		}
		if !t.MinStakeUsd.IsPositive() {
			return fmt.Errorf("%w: tier %d min stake must be positive", ErrInvalidConfig, t.ID)
		}
		if err := validateSchedule(t.ID, "2x", t.Horizon2x, 2); err != nil {
			return err
		}
		if err := validateSchedule(t.ID, "3x", t.Horizon3x, 3); err != nil {
			return err
		}
	}
	return nil
}

func validateSchedule(tierID int64, name string, s model.Schedule, multiple int64) error {
	if s.Days <= 0 {
		return fmt.Errorf("%w: tier %d %s day count must be positive", ErrInvalidConfig, tierID, name)
	}
	if !s.DailyRateBp.IsPositive() {
		return fmt.Errorf("%w: tier %d %s daily rate must be positive", ErrInvalidConfig, tierID, name)
	}
	// rate x days should reduce to the cap multiple: 20000 bp or 30000 bp.
	total := s.DailyRateBp.Mul(decimal.NewFromInt(s.Days))
	target := decimal.NewFromInt(multiple * 10000)
	if total.Sub(target).Abs().GreaterThan(scheduleTolerance) {
		return fmt.Errorf("%w: tier %d %s schedule totals %s bp, want ~%s bp",
			ErrInvalidConfig, tierID, name, total, target)
	}
	return nil
}

// ByID returns the tier with the given id from a table, or ErrUnknownTier.
func ByID(tiers []model.ServerTier, id int64) (*model.ServerTier, error) {
	for i := range tiers {
		if tiers[i].ID == id {
			return &tiers[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownTier, id)
}
