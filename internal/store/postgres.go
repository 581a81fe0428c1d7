package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/obidua/mint-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) ListTiers(ctx context.Context) ([]model.ServerTier, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, min_stake_usd::TEXT,
		        days_2x, rate_bp_2x::TEXT,
		        days_3x, rate_bp_3x::TEXT
		 FROM tiers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiers []model.ServerTier
	for rows.Next() {
		var t model.ServerTier
		var minStake, rate2x, rate3x string
		if err := rows.Scan(&t.ID, &minStake,
			&t.Horizon2x.Days, &rate2x,
			&t.Horizon3x.Days, &rate3x); err != nil {
			return nil, err
		}
		t.MinStakeUsd, _ = decimal.NewFromString(minStake)
		t.Horizon2x.DailyRateBp, _ = decimal.NewFromString(rate2x)
		t.Horizon3x.DailyRateBp, _ = decimal.NewFromString(rate3x)
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

func (s *PostgresStore) SeedTiers(ctx context.Context, tiers []model.ServerTier) error {
	for _, t := range tiers {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO tiers (id, min_stake_usd, days_2x, rate_bp_2x, days_3x, rate_bp_3x)
			 VALUES ($1, $2::NUMERIC, $3, $4::NUMERIC, $5, $6::NUMERIC)
			 ON CONFLICT (id) DO NOTHING`,
			t.ID, t.MinStakeUsd.String(),
			t.Horizon2x.Days, t.Horizon2x.DailyRateBp.String(),
			t.Horizon3x.Days, t.Horizon3x.DailyRateBp.String(),
		)
		if err != nil {
			return fmt.Errorf("seed tier %d: %w", t.ID, err)
		}
	}
	return nil
}

func (s *PostgresStore) InsertPosition(ctx context.Context, p *model.Position) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO positions (user_address, tier_id, slot_id, horizon,
		                        principal_usd, cap_usd, daily_rate_bp, total_days,
		                        claimed_days, claimed_usd, start_time, active)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8, $9, $10::NUMERIC, $11, $12)`,
		p.UserAddress, p.TierID, p.SlotID, int(p.Horizon),
		p.PrincipalUsd.String(), p.CapUsd.String(), p.DailyRateBp.String(), p.TotalDays,
		p.ClaimedDays, p.ClaimedUsd.String(), p.StartTime, p.Active,
	)
	return err
}

func (s *PostgresStore) UpdatePosition(ctx context.Context, p *model.Position) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE positions
		 SET horizon = $4, principal_usd = $5::NUMERIC, cap_usd = $6::NUMERIC,
		     daily_rate_bp = $7::NUMERIC, total_days = $8,
		     claimed_days = $9, claimed_usd = $10::NUMERIC,
		     start_time = $11, active = $12
		 WHERE user_address = $1 AND tier_id = $2 AND slot_id = $3`,
		p.UserAddress, p.TierID, p.SlotID, int(p.Horizon),
		p.PrincipalUsd.String(), p.CapUsd.String(), p.DailyRateBp.String(), p.TotalDays,
		p.ClaimedDays, p.ClaimedUsd.String(), p.StartTime, p.Active,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("position %s/%d/%d not found", p.UserAddress, p.TierID, p.SlotID)
	}
	return nil
}

func (s *PostgresStore) GetPosition(ctx context.Context, userAddress string, tierID, slotID int64) (*model.Position, error) {
	var p model.Position
	var horizon int
	var principal, cap, rate, claimed string

	err := s.pool.QueryRow(ctx,
		`SELECT user_address, tier_id, slot_id, horizon,
		        principal_usd::TEXT, cap_usd::TEXT, daily_rate_bp::TEXT, total_days,
		        claimed_days, claimed_usd::TEXT, start_time, active
		 FROM positions
		 WHERE user_address = $1 AND tier_id = $2 AND slot_id = $3`,
		userAddress, tierID, slotID).
		Scan(&p.UserAddress, &p.TierID, &p.SlotID, &horizon,
			&principal, &cap, &rate, &p.TotalDays,
			&p.ClaimedDays, &claimed, &p.StartTime, &p.Active)
	if err != nil {
		return nil, fmt.Errorf("get position %s/%d/%d: %w", userAddress, tierID, slotID, err)
	}

	p.Horizon = model.Horizon(horizon)
	p.PrincipalUsd, _ = decimal.NewFromString(principal)
	p.CapUsd, _ = decimal.NewFromString(cap)
	p.DailyRateBp, _ = decimal.NewFromString(rate)
	p.ClaimedUsd, _ = decimal.NewFromString(claimed)

	return &p, nil
}

func (s *PostgresStore) ListPositionsByUser(ctx context.Context, userAddress string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_address, tier_id, slot_id, horizon,
		        principal_usd::TEXT, cap_usd::TEXT, daily_rate_bp::TEXT, total_days,
		        claimed_days, claimed_usd::TEXT, start_time, active
		 FROM positions WHERE user_address = $1 ORDER BY seq`, userAddress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var horizon int
		var principal, cap, rate, claimed string
		if err := rows.Scan(&p.UserAddress, &p.TierID, &p.SlotID, &horizon,
			&principal, &cap, &rate, &p.TotalDays,
			&p.ClaimedDays, &claimed, &p.StartTime, &p.Active); err != nil {
			return nil, err
		}
		p.Horizon = model.Horizon(horizon)
		p.PrincipalUsd, _ = decimal.NewFromString(principal)
		p.CapUsd, _ = decimal.NewFromString(cap)
		p.DailyRateBp, _ = decimal.NewFromString(rate)
		p.ClaimedUsd, _ = decimal.NewFromString(claimed)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) InsertClaim(ctx context.Context, rec *model.ClaimRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO claim_records (id, user_address, tier_id, slot_id, days, amount_usd, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7)`,
		rec.ID, rec.UserAddress, rec.TierID, rec.SlotID, rec.Days,
		rec.AmountUsd.String(), rec.Timestamp,
	)
	return err
}

func (s *PostgresStore) ListClaimsByUser(ctx context.Context, userAddress string) ([]model.ClaimRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_address, tier_id, slot_id, days, amount_usd::TEXT, timestamp
		 FROM claim_records WHERE user_address = $1 ORDER BY timestamp`, userAddress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []model.ClaimRecord
	for rows.Next() {
		var r model.ClaimRecord
		var amount string
		if err := rows.Scan(&r.ID, &r.UserAddress, &r.TierID, &r.SlotID, &r.Days,
			&amount, &r.Timestamp); err != nil {
			return nil, err
		}
		r.AmountUsd, _ = decimal.NewFromString(amount)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *PostgresStore) InsertTopUp(ctx context.Context, rec *model.TopUpRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO topup_records (id, user_address, tier_id, slot_id,
		                            old_principal_usd, new_principal_usd, horizon, timestamp)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7, $8)`,
		rec.ID, rec.UserAddress, rec.TierID, rec.SlotID,
		rec.OldPrincipalUsd.String(), rec.NewPrincipalUsd.String(), int(rec.Horizon), rec.Timestamp,
	)
	return err
}

func (s *PostgresStore) ListTopUpsByUser(ctx context.Context, userAddress string) ([]model.TopUpRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_address, tier_id, slot_id,
		        old_principal_usd::TEXT, new_principal_usd::TEXT, horizon, timestamp
		 FROM topup_records WHERE user_address = $1 ORDER BY timestamp`, userAddress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []model.TopUpRecord
	for rows.Next() {
		var r model.TopUpRecord
		var oldP, newP string
		var horizon int
		if err := rows.Scan(&r.ID, &r.UserAddress, &r.TierID, &r.SlotID,
			&oldP, &newP, &horizon, &r.Timestamp); err != nil {
			return nil, err
		}
		r.OldPrincipalUsd, _ = decimal.NewFromString(oldP)
		r.NewPrincipalUsd, _ = decimal.NewFromString(newP)
		r.Horizon = model.Horizon(horizon)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *PostgresStore) InsertCommissions(ctx context.Context, recs []model.CommissionRecord) error {
	for _, r := range recs {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO commission_records (id, user_address, from_address, level,
			                                 volume_usd, commission_usd, timestamp)
			 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7)`,
			r.ID, r.UserAddress, r.FromAddress, r.Level,
			r.VolumeUsd.String(), r.CommissionUsd.String(), r.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert commission %s: %w", r.ID, err)
		}
	}
	return nil
}

func (s *PostgresStore) ListCommissionsByUser(ctx context.Context, userAddress string) ([]model.CommissionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_address, from_address, level,
		        volume_usd::TEXT, commission_usd::TEXT, timestamp
		 FROM commission_records WHERE user_address = $1 ORDER BY timestamp`, userAddress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []model.CommissionRecord
	for rows.Next() {
		var r model.CommissionRecord
		var volume, commission string
		if err := rows.Scan(&r.ID, &r.UserAddress, &r.FromAddress, &r.Level,
			&volume, &commission, &r.Timestamp); err != nil {
			return nil, err
		}
		r.VolumeUsd, _ = decimal.NewFromString(volume)
		r.CommissionUsd, _ = decimal.NewFromString(commission)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
