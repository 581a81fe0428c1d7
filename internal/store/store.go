// Package store defines the persistence interface for the mint engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"

	"github.com/obidua/mint-engine/internal/model"
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer. Positions are never deleted
// and ledger rows are append-only.
type Store interface {
	// --- Tier configuration ---

	// ListTiers returns the tier table ordered by id.
	ListTiers(ctx context.Context) ([]model.ServerTier, error)

	// SeedTiers installs the tier table if it is not present yet.
	SeedTiers(ctx context.Context, tiers []model.ServerTier) error

	// --- Positions ---

	// InsertPosition persists a new position.
	InsertPosition(ctx context.Context, p *model.Position) error

	// UpdatePosition replaces the stored state of an existing position,
	// identified by (user, tier, slot).
	UpdatePosition(ctx context.Context, p *model.Position) error

	// GetPosition retrieves one position by (user, tier, slot).
	GetPosition(ctx context.Context, userAddress string, tierID, slotID int64) (*model.Position, error)

	// ListPositionsByUser returns a user's positions in creation order.
	ListPositionsByUser(ctx context.Context, userAddress string) ([]model.Position, error)

	// --- Immutable ledgers ---

	// InsertClaim appends an immutable claim record.
	InsertClaim(ctx context.Context, rec *model.ClaimRecord) error

	// ListClaimsByUser returns a user's claim history, oldest first.
	ListClaimsByUser(ctx context.Context, userAddress string) ([]model.ClaimRecord, error)

	// InsertTopUp appends an immutable top-up record.
	InsertTopUp(ctx context.Context, rec *model.TopUpRecord) error

	// ListTopUpsByUser returns a user's top-up history, oldest first.
	ListTopUpsByUser(ctx context.Context, userAddress string) ([]model.TopUpRecord, error)

	// InsertCommissions appends commission records from one activation.
	InsertCommissions(ctx context.Context, recs []model.CommissionRecord) error

	// ListCommissionsByUser returns commissions credited to a user,
	// oldest first.
	ListCommissionsByUser(ctx context.Context, userAddress string) ([]model.CommissionRecord, error)
}
