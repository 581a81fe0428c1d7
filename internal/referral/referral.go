// Package referral computes the five-level spot commission split paid on
// activation volume. Rates are percentages of the activation principal
// credited to the upline chain, nearest ancestor first.
package referral

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/obidua/mint-engine/internal/model"
)

// LevelRatesBp are the commission rates per upline level, in basis
// points of activation principal: L1 5%, L2 3%, L3 2%, L4 1%, L5 1%.
var LevelRatesBp = []int64{500, 300, 200, 100, 100}

var bpDivisor = decimal.NewFromInt(10000)

// Split computes commission records for one activation. upline lists
// beneficiary addresses nearest first; levels beyond the chain length
// (or beyond 5) earn nothing. Amounts are floored to whole USD micros.
func Split(fromAddress string, principalUsd decimal.Decimal, upline []string, ts time.Time) []model.CommissionRecord {
	n := len(upline)
	if n > len(LevelRatesBp) {
		n = len(LevelRatesBp)
	}

	records := make([]model.CommissionRecord, 0, n)
	for i := 0; i < n; i++ {
		if upline[i] == "" {
			continue
		}
		amount := principalUsd.Mul(decimal.NewFromInt(LevelRatesBp[i])).Div(bpDivisor).Floor()
		records = append(records, model.CommissionRecord{
			ID:            uuid.New().String(),
			UserAddress:   upline[i],
			FromAddress:   fromAddress,
			Level:         i + 1,
			VolumeUsd:     principalUsd,
			CommissionUsd: amount,
			Timestamp:     ts,
		})
	}
	return records
}

// TotalRateBp returns the aggregate commission rate across all levels.
func TotalRateBp() int64 {
	var total int64
	for _, r := range LevelRatesBp {
		total += r
	}
	return total
}
