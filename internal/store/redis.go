package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/obidua/mint-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary. The tier table changes
// rarely and caches well; positions are invalidated per user on any
// position write.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Read-through (check cache first) ---

func (s *CachedStore) ListTiers(ctx context.Context) ([]model.ServerTier, error) {
	data, err := s.rdb.Get(ctx, tiersKey()).Bytes()
	if err == nil {
		var tiers []model.ServerTier
		if json.Unmarshal(data, &tiers) == nil {
			return tiers, nil
		}
	}

	tiers, err := s.primary.ListTiers(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(tiers); err == nil {
		s.rdb.Set(ctx, tiersKey(), data, s.ttl)
	}
	return tiers, nil
}

func (s *CachedStore) ListPositionsByUser(ctx context.Context, userAddress string) ([]model.Position, error) {
	data, err := s.rdb.Get(ctx, positionsKey(userAddress)).Bytes()
	if err == nil {
		var positions []model.Position
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	}

	positions, err := s.primary.ListPositionsByUser(ctx, userAddress)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(positions); err == nil {
		s.rdb.Set(ctx, positionsKey(userAddress), data, s.ttl)
	}
	return positions, nil
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) SeedTiers(ctx context.Context, tiers []model.ServerTier) error {
	if err := s.primary.SeedTiers(ctx, tiers); err != nil {
		return err
	}
	s.rdb.Del(ctx, tiersKey())
	return nil
}

func (s *CachedStore) InsertPosition(ctx context.Context, p *model.Position) error {
	if err := s.primary.InsertPosition(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, positionsKey(p.UserAddress))
	return nil
}

func (s *CachedStore) UpdatePosition(ctx context.Context, p *model.Position) error {
	if err := s.primary.UpdatePosition(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, positionsKey(p.UserAddress))
	return nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) GetPosition(ctx context.Context, userAddress string, tierID, slotID int64) (*model.Position, error) {
	return s.primary.GetPosition(ctx, userAddress, tierID, slotID)
}

func (s *CachedStore) InsertClaim(ctx context.Context, rec *model.ClaimRecord) error {
	return s.primary.InsertClaim(ctx, rec)
}

func (s *CachedStore) ListClaimsByUser(ctx context.Context, userAddress string) ([]model.ClaimRecord, error) {
	return s.primary.ListClaimsByUser(ctx, userAddress)
}

func (s *CachedStore) InsertTopUp(ctx context.Context, rec *model.TopUpRecord) error {
	return s.primary.InsertTopUp(ctx, rec)
}

func (s *CachedStore) ListTopUpsByUser(ctx context.Context, userAddress string) ([]model.TopUpRecord, error) {
	return s.primary.ListTopUpsByUser(ctx, userAddress)
}

func (s *CachedStore) InsertCommissions(ctx context.Context, recs []model.CommissionRecord) error {
	return s.primary.InsertCommissions(ctx, recs)
}

func (s *CachedStore) ListCommissionsByUser(ctx context.Context, userAddress string) ([]model.CommissionRecord, error) {
	return s.primary.ListCommissionsByUser(ctx, userAddress)
}

// --- Cache keys ---

func tiersKey() string                { return "tiers" }
func positionsKey(addr string) string { return fmt.Sprintf("positions:%s", addr) }
