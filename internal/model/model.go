// Package model defines the core domain types shared across the mint engine.
// All USD amounts are fixed-point integers with 6 implied decimals
// ("USD micros") carried as shopspring/decimal — never float64 for money.
// Native-token amounts, where they appear, use 18 implied decimals.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Horizon selects one of the two payout schedules a tier offers.
type Horizon int

const (
	// HorizonTwoX pays out 2x principal over the tier's 2x day count.
	HorizonTwoX Horizon = iota
	// HorizonThreeX pays out 3x principal over the tier's 3x day count.
	HorizonThreeX
)

// Multiple returns the cap multiple for the horizon (2 or 3).
func (h Horizon) Multiple() decimal.Decimal {
	if h == HorizonThreeX {
		return decimal.NewFromInt(3)
	}
	return decimal.NewFromInt(2)
}

func (h Horizon) String() string {
	if h == HorizonThreeX {
		return "3X"
	}
	return "2X"
}

// Schedule is one payout schedule of a tier: the day count and the daily
// ROI rate in basis points of principal per day.
type Schedule struct {
	Days        int64           `json:"days" db:"days"`
	DailyRateBp decimal.Decimal `json:"daily_rate_bp" db:"daily_rate_bp"`
}

// ServerTier is the immutable configuration of one staking tier.
// Tier ids are dense (1..N) and define the unlock order.
type ServerTier struct {
	ID          int64           `json:"id" db:"id"`
	MinStakeUsd decimal.Decimal `json:"min_stake_usd" db:"min_stake_usd"` // USD micros
	Horizon2x   Schedule        `json:"horizon_2x"`
	Horizon3x   Schedule        `json:"horizon_3x"`
}

// Schedule returns the schedule for the given horizon.
func (t *ServerTier) Schedule(h Horizon) Schedule {
	if h == HorizonThreeX {
		return t.Horizon3x
	}
	return t.Horizon2x
}

// Position is one funded stake ("slot" / "portfolio") within a tier.
// Rate and day count are copied from the tier at creation so later tier
// config changes never affect open positions. Positions are never
// deleted; Active flips to false at full cap exhaustion.
type Position struct {
	UserAddress  string          `json:"user_address" db:"user_address"`
	TierID       int64           `json:"tier_id" db:"tier_id"`
	SlotID       int64           `json:"slot_id" db:"slot_id"`
	Horizon      Horizon         `json:"horizon" db:"horizon"`
	PrincipalUsd decimal.Decimal `json:"principal_usd" db:"principal_usd"` // USD micros
	CapUsd       decimal.Decimal `json:"cap_usd" db:"cap_usd"`             // principal x 2 or 3
	DailyRateBp  decimal.Decimal `json:"daily_rate_bp" db:"daily_rate_bp"`
	TotalDays    int64           `json:"total_days" db:"total_days"`
	ClaimedDays  int64           `json:"claimed_days" db:"claimed_days"`
	ClaimedUsd   decimal.Decimal `json:"claimed_usd" db:"claimed_usd"`
	StartTime    int64           `json:"start_time" db:"start_time"` // unix seconds
	Active       bool            `json:"active" db:"active"`
}

// UserMintState is the per-user aggregate derived from positions.
// UserCapRemainingUsd is a wallet-wide ceiling owned by an external rule;
// the engine only consumes it for eligibility checks.
type UserMintState struct {
	UserAddress         string          `json:"user_address"`
	Positions           []Position      `json:"positions"`
	HighestTierActive   int64           `json:"highest_tier_activated"`
	UserCapRemainingUsd decimal.Decimal `json:"user_cap_remaining_usd"`
	SelfBusinessUsd     decimal.Decimal `json:"self_business_usd"` // sum of principals staked
}

// SlotCount returns the number of positions the user holds on a tier.
func (s *UserMintState) SlotCount(tierID int64) int64 {
	var n int64
	for i := range s.Positions {
		if s.Positions[i].TierID == tierID {
			n++
		}
	}
	return n
}

// ClaimRecord is an immutable ledger row for one ROI settlement.
type ClaimRecord struct {
	ID          string          `json:"id" db:"id"`
	UserAddress string          `json:"user_address" db:"user_address"`
	TierID      int64           `json:"tier_id" db:"tier_id"`
	SlotID      int64           `json:"slot_id" db:"slot_id"`
	Days        int64           `json:"days" db:"days"`
	AmountUsd   decimal.Decimal `json:"amount_usd" db:"amount_usd"`
	Timestamp   time.Time       `json:"timestamp" db:"timestamp"`
}

// TopUpRecord is an immutable ledger row for one cap-reset top-up.
type TopUpRecord struct {
	ID              string          `json:"id" db:"id"`
	UserAddress     string          `json:"user_address" db:"user_address"`
	TierID          int64           `json:"tier_id" db:"tier_id"`
	SlotID          int64           `json:"slot_id" db:"slot_id"`
	OldPrincipalUsd decimal.Decimal `json:"old_principal_usd" db:"old_principal_usd"`
	NewPrincipalUsd decimal.Decimal `json:"new_principal_usd" db:"new_principal_usd"`
	Horizon         Horizon         `json:"horizon" db:"horizon"`
	Timestamp       time.Time       `json:"timestamp" db:"timestamp"`
}

// CommissionRecord is an immutable ledger row for one level commission
// credited on a downline activation.
type CommissionRecord struct {
	ID            string          `json:"id" db:"id"`
	UserAddress   string          `json:"user_address" db:"user_address"` // beneficiary
	FromAddress   string          `json:"from_address" db:"from_address"` // activating downline
	Level         int             `json:"level" db:"level"`               // 1..5
	VolumeUsd     decimal.Decimal `json:"volume_usd" db:"volume_usd"`     // activation principal
	CommissionUsd decimal.Decimal `json:"commission_usd" db:"commission_usd"`
	Timestamp     time.Time       `json:"timestamp" db:"timestamp"`
}
