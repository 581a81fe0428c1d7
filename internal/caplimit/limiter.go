// Package caplimit enforces the wallet-wide payout ceiling on new cap
// commitments. The ceiling itself (userCapRemainingUsd) is owned by an
// external rule on the contract side; this package only consumes the
// caller-supplied value for eligibility checks, it never computes it.
package caplimit

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrUserCapExceeded is returned when a new position's cap would
	// exceed the wallet-wide remaining ceiling.
	ErrUserCapExceeded = errors.New("caplimit: wallet-wide cap ceiling exceeded")

	// ErrSlotLimitExceeded is returned when a tier already holds the
	// maximum number of open slots.
	ErrSlotLimitExceeded = errors.New("caplimit: per-tier slot limit exceeded")
)

// Limiter validates cap commitments against the wallet ceiling and an
// optional per-tier open-slot limit. Zero MaxSlotsPerTier disables the
// slot limit.
type Limiter struct {
	MaxSlotsPerTier int64
}

// NewLimiter creates a limiter. maxSlotsPerTier <= 0 means unlimited
// slots per tier.
func NewLimiter(maxSlotsPerTier int64) *Limiter {
	return &Limiter{MaxSlotsPerTier: maxSlotsPerTier}
}

// CheckActivation validates that committing newCapUsd fits inside the
// wallet's remaining ceiling and that the tier has slot headroom.
//
// Parameters:
//   - capRemainingUsd: wallet-wide remaining ceiling (USD micros)
//   - newCapUsd: the cap of the position being opened or topped up
//   - openSlotsOnTier: current open slot count on the target tier
func (l *Limiter) CheckActivation(capRemainingUsd, newCapUsd decimal.Decimal, openSlotsOnTier int64) error {
	if newCapUsd.GreaterThan(capRemainingUsd) {
		return ErrUserCapExceeded
	}
	if l.MaxSlotsPerTier > 0 && openSlotsOnTier >= l.MaxSlotsPerTier {
		return ErrSlotLimitExceeded
	}
	return nil
}

// CheckTopUp validates a top-up's fresh cap against the wallet ceiling.
// Top-ups reuse an existing slot, so the slot limit does not apply.
func (l *Limiter) CheckTopUp(capRemainingUsd, newCapUsd decimal.Decimal) error {
	if newCapUsd.GreaterThan(capRemainingUsd) {
		return ErrUserCapExceeded
	}
	return nil
}
