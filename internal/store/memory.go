package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/obidua/mint-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu          sync.RWMutex
	tiers       []model.ServerTier
	positions   map[string][]model.Position // user address -> creation order
	claims      []model.ClaimRecord
	topUps      []model.TopUpRecord
	commissions []model.CommissionRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		positions: make(map[string][]model.Position),
	}
}

func (s *MemoryStore) ListTiers(_ context.Context) ([]model.ServerTier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tiers := make([]model.ServerTier, len(s.tiers))
	copy(tiers, s.tiers)
	return tiers, nil
}

func (s *MemoryStore) SeedTiers(_ context.Context, tiers []model.ServerTier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tiers) > 0 {
		return nil
	}
	s.tiers = make([]model.ServerTier, len(tiers))
	copy(s.tiers, tiers)
	return nil
}

func (s *MemoryStore) InsertPosition(_ context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.positions[p.UserAddress] {
		if existing.TierID == p.TierID && existing.SlotID == p.SlotID {
			return fmt.Errorf("position %s/%d/%d already exists", p.UserAddress, p.TierID, p.SlotID)
		}
	}
	s.positions[p.UserAddress] = append(s.positions[p.UserAddress], *p)
	return nil
}

func (s *MemoryStore) UpdatePosition(_ context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.positions[p.UserAddress]
	for i := range list {
		if list[i].TierID == p.TierID && list[i].SlotID == p.SlotID {
			list[i] = *p
			return nil
		}
	}
	return fmt.Errorf("position %s/%d/%d not found", p.UserAddress, p.TierID, p.SlotID)
}

func (s *MemoryStore) GetPosition(_ context.Context, userAddress string, tierID, slotID int64) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.positions[userAddress] {
		if p.TierID == tierID && p.SlotID == slotID {
			copy := p
			return &copy, nil
		}
	}
	return nil, fmt.Errorf("position %s/%d/%d not found", userAddress, tierID, slotID)
}

func (s *MemoryStore) ListPositionsByUser(_ context.Context, userAddress string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.positions[userAddress]
	out := make([]model.Position, len(list))
	copy(out, list)
	return out, nil
}

func (s *MemoryStore) InsertClaim(_ context.Context, rec *model.ClaimRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.claims = append(s.claims, *rec)
	return nil
}

func (s *MemoryStore) ListClaimsByUser(_ context.Context, userAddress string) ([]model.ClaimRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.ClaimRecord
	for _, c := range s.claims {
		if c.UserAddress == userAddress {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryStore) InsertTopUp(_ context.Context, rec *model.TopUpRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.topUps = append(s.topUps, *rec)
	return nil
}

func (s *MemoryStore) ListTopUpsByUser(_ context.Context, userAddress string) ([]model.TopUpRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.TopUpRecord
	for _, r := range s.topUps {
		if r.UserAddress == userAddress {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) InsertCommissions(_ context.Context, recs []model.CommissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commissions = append(s.commissions, recs...)
	return nil
}

func (s *MemoryStore) ListCommissionsByUser(_ context.Context, userAddress string) ([]model.CommissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.CommissionRecord
	for _, r := range s.commissions {
		if r.UserAddress == userAddress {
			out = append(out, r)
		}
	}
	return out, nil
}
