// Package mint provides the HTTP handlers and business logic for
// activating servers, claiming ROI, topping up capped positions, and
// querying portfolios and ledgers.
//
// All monetary values are USD micros carried as shopspring/decimal —
// never float64 for money. Handlers return the validated client-side
// projection of each action; the on-chain contract remains the
// settlement authority.
package mint

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/obidua/mint-engine/internal/accrual"
	"github.com/obidua/mint-engine/internal/caplimit"
	"github.com/obidua/mint-engine/internal/metrics"
	"github.com/obidua/mint-engine/internal/model"
	"github.com/obidua/mint-engine/internal/referral"
	"github.com/obidua/mint-engine/internal/session"
	"github.com/obidua/mint-engine/internal/store"
	"github.com/obidua/mint-engine/internal/tier"
)

// DefaultUserCapCeiling is the wallet-wide payout ceiling applied when
// the external rule supplies none: $1,000,000 in USD micros, high
// enough to never bind in practice. Operators set the real ceiling via
// USER_CAP_CEILING_USD.
var DefaultUserCapCeiling = decimal.NewFromInt(1_000_000_000000)

// Service handles mint operations. Uses a mutex for serialized mutation
// (single-instance). For horizontal scaling, replace with distributed
// locking or database-level optimistic concurrency.
type Service struct {
	store          store.Store
	limiter        *caplimit.Limiter
	sessions       *session.Manager
	userCapCeiling decimal.Decimal
	now            func() time.Time
	mu             sync.Mutex
	wsHub          *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new mint service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, limiter *caplimit.Limiter, sessions *session.Manager, hub *WSHub) *Service {
	return &Service{
		store:          st,
		limiter:        limiter,
		sessions:       sessions,
		userCapCeiling: DefaultUserCapCeiling,
		now:            time.Now,
		wsHub:          hub,
	}
}

// SetClock overrides the wall clock. Tests use this to pin time.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SetUserCapCeiling overrides the wallet-wide payout ceiling.
func (s *Service) SetUserCapCeiling(ceiling decimal.Decimal) {
	s.userCapCeiling = ceiling
}

// --- Request/Response types ---

// ConnectRequest is the JSON body for POST /session.
type ConnectRequest struct {
	Address string `json:"address"`
}

// ActivateRequest is the JSON body for POST /activate. It covers both
// first activations on a tier and additional slots on an opened tier.
// Upline optionally lists referrer addresses nearest first for the
// commission split.
type ActivateRequest struct {
	UserAddress  string          `json:"user_address"`
	TierID       int64           `json:"tier_id"`
	Horizon      string          `json:"horizon"` // "2X" or "3X"
	PrincipalUsd decimal.Decimal `json:"principal_usd"`
	Upline       []string        `json:"upline,omitempty"`
}

// ActivateResponse is the JSON body returned from POST /activate.
type ActivateResponse struct {
	Ref         string         `json:"ref"`
	Position    model.Position `json:"position"`
	Commissions int            `json:"commissions_recorded"`
}

// ClaimRequest is the JSON body for POST /claim.
type ClaimRequest struct {
	UserAddress string `json:"user_address"`
	Ref         string `json:"ref"` // MINT-S{tier}-P{slot}
}

// ClaimResponse is the JSON body returned from POST /claim.
type ClaimResponse struct {
	Record   model.ClaimRecord `json:"record"`
	Position model.Position    `json:"position"`
}

// TopUpRequest is the JSON body for POST /topup.
type TopUpRequest struct {
	UserAddress  string          `json:"user_address"`
	Ref          string          `json:"ref"`
	Horizon      string          `json:"horizon"`
	PrincipalUsd decimal.Decimal `json:"principal_usd"`
}

// TopUpResponse is the JSON body returned from POST /topup.
type TopUpResponse struct {
	Record   model.TopUpRecord `json:"record"`
	Position model.Position    `json:"position"`
}

// TierView combines tier configuration with the user's unlock status.
type TierView struct {
	model.ServerTier
	Locked              bool  `json:"locked"`
	AvailableToActivate bool  `json:"available_to_activate"`
	AlreadyActivated    bool  `json:"already_activated"`
	UserSlots           int64 `json:"user_slots"`
}

// PositionView is a position plus its live accrual figures.
type PositionView struct {
	model.Position
	Ref           string          `json:"ref"`
	PendingDays   int64           `json:"pending_days"`
	PendingRoiUsd decimal.Decimal `json:"pending_roi_usd"`
	TopUpEligible bool            `json:"topup_eligible"`
}

// PortfolioResponse aggregates a user's positions with live accrual.
type PortfolioResponse struct {
	UserAddress         string          `json:"user_address"`
	Positions           []PositionView  `json:"positions"`
	HighestTierActive   int64           `json:"highest_tier_activated"`
	UserCapRemainingUsd decimal.Decimal `json:"user_cap_remaining_usd"`
	SelfBusinessUsd     decimal.Decimal `json:"self_business_usd"`
	TotalPendingRoiUsd  decimal.Decimal `json:"total_pending_roi_usd"`
	TotalClaimedUsd     decimal.Decimal `json:"total_claimed_usd"`
}

// Routes mounts the mint API. Mounted under /api/v1 by the server.
func (s *Service) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/session", s.Connect)
	r.Delete("/session/{address}", s.Disconnect)
	r.Get("/tiers", s.ListTiers)
	r.Post("/activate", s.Activate)
	r.Post("/claim", s.Claim)
	r.Post("/topup", s.TopUp)
	r.Get("/portfolio/{address}", s.GetPortfolio)
	r.Get("/claims/{address}", s.GetClaims)
	r.Get("/topups/{address}", s.GetTopUps)
	r.Get("/commissions/{address}", s.GetCommissions)
	return r
}

// --- HTTP Handlers ---

// Connect handles POST /api/v1/session
func (s *Service) Connect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		writeError(w, "address is required", http.StatusBadRequest)
		return
	}

	sess := s.sessions.Connect(req.Address, s.now().UTC())
	slog.Info("wallet connected", "address", sess.Address, "session", sess.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sess)
}

// Disconnect handles DELETE /api/v1/session/{address}
func (s *Service) Disconnect(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	s.sessions.Disconnect(address)
	slog.Info("wallet disconnected", "address", address)
	w.WriteHeader(http.StatusNoContent)
}

// ListTiers handles GET /api/v1/tiers
// Returns the tier table; with ?address= the unlock status is computed
// for that wallet, otherwise for a fresh wallet.
func (s *Service) ListTiers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tiers, err := s.store.ListTiers(ctx)
	if err != nil {
		writeError(w, "failed to load tiers", http.StatusInternalServerError)
		return
	}

	var highest int64
	slotCounts := make(map[int64]int64)
	if address := r.URL.Query().Get("address"); address != "" {
		positions, err := s.store.ListPositionsByUser(ctx, address)
		if err != nil {
			writeError(w, "failed to load positions", http.StatusInternalServerError)
			return
		}
		highest, slotCounts = summarize(positions)
	}

	statuses := accrual.TierUnlockStatus(tiers, highest, slotCounts)
	views := make([]TierView, len(tiers))
	for i := range tiers {
		views[i] = TierView{
			ServerTier:          tiers[i],
			Locked:              statuses[i].Locked,
			AvailableToActivate: statuses[i].AvailableToActivate,
			AlreadyActivated:    statuses[i].AlreadyActivated,
			UserSlots:           slotCounts[tiers[i].ID],
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

// Activate handles POST /api/v1/activate
// Validates the unlock sequence, minimum stake, and wallet cap ceiling,
// then creates the position and records the commission split.
func (s *Service) Activate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserAddress == "" {
		writeError(w, "user_address is required", http.StatusBadRequest)
		return
	}
	if req.PrincipalUsd.IsNegative() {
		writeError(w, "principal_usd must not be negative", http.StatusBadRequest)
		return
	}

	horizon, err := accrual.ParseHorizon(req.Horizon)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	// Serialize mutations.
	s.mu.Lock()
	defer s.mu.Unlock()

	tiers, err := s.store.ListTiers(ctx)
	if err != nil {
		writeError(w, "failed to load tiers", http.StatusInternalServerError)
		return
	}
	target, err := tier.ByID(tiers, req.TierID)
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}

	positions, err := s.store.ListPositionsByUser(ctx, req.UserAddress)
	if err != nil {
		writeError(w, "failed to load positions", http.StatusInternalServerError)
		return
	}
	highest, slotCounts := summarize(positions)

	// Tiers unlock strictly in ascending order.
	if target.ID > highest+1 {
		metrics.BusinessRejections.WithLabelValues("tier_locked").Inc()
		writeError(w, accrual.ErrTierLocked.Error(), http.StatusConflict)
		return
	}

	firstSlot := slotCounts[target.ID] == 0
	if err := accrual.ValidateActivation(target, firstSlot, req.PrincipalUsd); err != nil {
		metrics.BusinessRejections.WithLabelValues("below_minimum").Inc()
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	newCap := req.PrincipalUsd.Mul(horizon.Multiple())
	capRemaining := s.capRemaining(positions)
	if err := s.limiter.CheckActivation(capRemaining, newCap, slotCounts[target.ID]); err != nil {
		metrics.BusinessRejections.WithLabelValues("cap_ceiling").Inc()
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	now := s.now().UTC()
	position := accrual.NewPosition(target, horizon, req.PrincipalUsd, now.Unix(), slotCounts[target.ID])
	position.UserAddress = req.UserAddress

	if err := s.store.InsertPosition(ctx, &position); err != nil {
		writeError(w, "failed to record position", http.StatusInternalServerError)
		return
	}

	commissions := referral.Split(req.UserAddress, req.PrincipalUsd, req.Upline, now)
	if len(commissions) > 0 {
		if err := s.store.InsertCommissions(ctx, commissions); err != nil {
			writeError(w, "failed to record commissions", http.StatusInternalServerError)
			return
		}
	}

	tierLabel := strconv.FormatInt(target.ID, 10)
	metrics.ActivationsTotal.WithLabelValues(tierLabel).Inc()
	metrics.ActivePositions.Inc()

	ref := tier.Ref(position.TierID, position.SlotID)
	slog.Info("server activated",
		"user", req.UserAddress,
		"ref", ref,
		"horizon", horizon.String(),
		"principal_usd", req.PrincipalUsd.String(),
		"cap_usd", position.CapUsd.String(),
		"first_slot", firstSlot,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:        "activated",
			UserAddress: req.UserAddress,
			Ref:         ref,
			TierID:      position.TierID,
			SlotID:      position.SlotID,
			Horizon:     horizon.String(),
			AmountUsd:   req.PrincipalUsd.String(),
			Active:      true,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(ActivateResponse{
		Ref:         ref,
		Position:    position,
		Commissions: len(commissions),
	})
}

// Claim handles POST /api/v1/claim
// Settles all pending full days of one position.
func (s *Service) Claim(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserAddress == "" {
		writeError(w, "user_address is required", http.StatusBadRequest)
		return
	}

	tierID, slotID, err := tier.ParseRef(req.Ref)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	position, err := s.store.GetPosition(ctx, req.UserAddress, tierID, slotID)
	if err != nil {
		writeError(w, "position not found: "+req.Ref, http.StatusNotFound)
		return
	}

	now := s.now().UTC()
	updated, amount, err := accrual.SettleClaim(position, now.Unix())
	if err != nil {
		metrics.BusinessRejections.WithLabelValues("nothing_to_claim").Inc()
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	if err := s.store.UpdatePosition(ctx, &updated); err != nil {
		writeError(w, "failed to update position", http.StatusInternalServerError)
		return
	}

	record := model.ClaimRecord{
		ID:          uuid.New().String(),
		UserAddress: req.UserAddress,
		TierID:      tierID,
		SlotID:      slotID,
		Days:        updated.ClaimedDays - position.ClaimedDays,
		AmountUsd:   amount,
		Timestamp:   now,
	}
	if err := s.store.InsertClaim(ctx, &record); err != nil {
		writeError(w, "failed to record claim", http.StatusInternalServerError)
		return
	}

	tierLabel := strconv.FormatInt(tierID, 10)
	metrics.ClaimsTotal.WithLabelValues(tierLabel).Inc()
	metrics.ClaimAmountUsd.Observe(amount.Div(decimal.NewFromInt(1_000000)).InexactFloat64())
	if !updated.Active {
		metrics.ActivePositions.Dec()
	}

	slog.Info("roi claimed",
		"user", req.UserAddress,
		"ref", req.Ref,
		"days", record.Days,
		"amount_usd", amount.String(),
		"claimed_total", updated.ClaimedUsd.String(),
		"closed", !updated.Active,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:        "claimed",
			UserAddress: req.UserAddress,
			Ref:         req.Ref,
			TierID:      tierID,
			SlotID:      slotID,
			AmountUsd:   amount.String(),
			Active:      updated.Active,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ClaimResponse{
		Record:   record,
		Position: updated,
	})
}

// TopUp handles POST /api/v1/topup
// Resets a capped-out position with fresh principal and horizon.
func (s *Service) TopUp(w http.ResponseWriter, r *http.Request) {
	var req TopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserAddress == "" {
		writeError(w, "user_address is required", http.StatusBadRequest)
		return
	}
	if req.PrincipalUsd.IsNegative() {
		writeError(w, "principal_usd must not be negative", http.StatusBadRequest)
		return
	}

	horizon, err := accrual.ParseHorizon(req.Horizon)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	tierID, slotID, err := tier.ParseRef(req.Ref)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	tiers, err := s.store.ListTiers(ctx)
	if err != nil {
		writeError(w, "failed to load tiers", http.StatusInternalServerError)
		return
	}
	target, err := tier.ByID(tiers, tierID)
	if err != nil {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}

	position, err := s.store.GetPosition(ctx, req.UserAddress, tierID, slotID)
	if err != nil {
		writeError(w, "position not found: "+req.Ref, http.StatusNotFound)
		return
	}

	positions, err := s.store.ListPositionsByUser(ctx, req.UserAddress)
	if err != nil {
		writeError(w, "failed to load positions", http.StatusInternalServerError)
		return
	}

	now := s.now().UTC()
	updated, err := accrual.TopUp(position, target, horizon, req.PrincipalUsd, now.Unix())
	if err != nil {
		status := http.StatusConflict
		reason := "cap_not_reached"
		if errors.Is(err, accrual.ErrBelowMinimum) {
			status = http.StatusBadRequest
			reason = "below_minimum"
		}
		metrics.BusinessRejections.WithLabelValues(reason).Inc()
		writeError(w, err.Error(), status)
		return
	}

	// The old cap is fully exhausted; only the fresh cap counts against
	// the wallet ceiling headroom.
	headroom := s.capRemaining(positions).Add(position.CapUsd)
	if err := s.limiter.CheckTopUp(headroom, updated.CapUsd); err != nil {
		metrics.BusinessRejections.WithLabelValues("cap_ceiling").Inc()
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	if err := s.store.UpdatePosition(ctx, &updated); err != nil {
		writeError(w, "failed to update position", http.StatusInternalServerError)
		return
	}

	record := model.TopUpRecord{
		ID:              uuid.New().String(),
		UserAddress:     req.UserAddress,
		TierID:          tierID,
		SlotID:          slotID,
		OldPrincipalUsd: position.PrincipalUsd,
		NewPrincipalUsd: updated.PrincipalUsd,
		Horizon:         horizon,
		Timestamp:       now,
	}
	if err := s.store.InsertTopUp(ctx, &record); err != nil {
		writeError(w, "failed to record top-up", http.StatusInternalServerError)
		return
	}

	tierLabel := strconv.FormatInt(tierID, 10)
	metrics.TopUpsTotal.WithLabelValues(tierLabel).Inc()
	if !position.Active {
		metrics.ActivePositions.Inc()
	}

	slog.Info("position topped up",
		"user", req.UserAddress,
		"ref", req.Ref,
		"old_principal_usd", position.PrincipalUsd.String(),
		"new_principal_usd", updated.PrincipalUsd.String(),
		"horizon", horizon.String(),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:        "topped_up",
			UserAddress: req.UserAddress,
			Ref:         req.Ref,
			TierID:      tierID,
			SlotID:      slotID,
			Horizon:     horizon.String(),
			AmountUsd:   updated.PrincipalUsd.String(),
			Active:      true,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(TopUpResponse{
		Record:   record,
		Position: updated,
	})
}

// GetPortfolio handles GET /api/v1/portfolio/{address}
// Returns positions with live pending-day/ROI figures and aggregates.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	ctx := r.Context()

	positions, err := s.store.ListPositionsByUser(ctx, address)
	if err != nil {
		writeError(w, "failed to load positions", http.StatusInternalServerError)
		return
	}

	nowUnix := s.now().UTC().Unix()
	highest, _ := summarize(positions)

	views := make([]PositionView, 0, len(positions))
	selfBusiness := decimal.Zero
	totalPending := decimal.Zero
	totalClaimed := decimal.Zero

	for i := range positions {
		p := &positions[i]
		pendingRoi := accrual.PendingROI(p, nowUnix)
		views = append(views, PositionView{
			Position:      *p,
			Ref:           tier.Ref(p.TierID, p.SlotID),
			PendingDays:   accrual.PendingDays(p, nowUnix),
			PendingRoiUsd: pendingRoi,
			TopUpEligible: accrual.EligibleForTopUp(p),
		})
		selfBusiness = selfBusiness.Add(p.PrincipalUsd)
		totalPending = totalPending.Add(pendingRoi)
		totalClaimed = totalClaimed.Add(p.ClaimedUsd)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(PortfolioResponse{
		UserAddress:         address,
		Positions:           views,
		HighestTierActive:   highest,
		UserCapRemainingUsd: s.capRemaining(positions),
		SelfBusinessUsd:     selfBusiness,
		TotalPendingRoiUsd:  totalPending,
		TotalClaimedUsd:     totalClaimed,
	})
}

// GetClaims handles GET /api/v1/claims/{address}
func (s *Service) GetClaims(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	recs, err := s.store.ListClaimsByUser(r.Context(), address)
	if err != nil {
		writeError(w, "failed to load claim history", http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []model.ClaimRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(recs)
}

// GetTopUps handles GET /api/v1/topups/{address}
func (s *Service) GetTopUps(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	recs, err := s.store.ListTopUpsByUser(r.Context(), address)
	if err != nil {
		writeError(w, "failed to load top-up history", http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []model.TopUpRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(recs)
}

// GetCommissions handles GET /api/v1/commissions/{address}
func (s *Service) GetCommissions(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	recs, err := s.store.ListCommissionsByUser(r.Context(), address)
	if err != nil {
		writeError(w, "failed to load commission history", http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []model.CommissionRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(recs)
}

// --- Helpers ---

// summarize derives the highest activated tier and per-tier slot counts
// from a position list.
func summarize(positions []model.Position) (highest int64, slotCounts map[int64]int64) {
	slotCounts = make(map[int64]int64)
	for i := range positions {
		p := &positions[i]
		slotCounts[p.TierID]++
		if p.TierID > highest {
			highest = p.TierID
		}
	}
	return highest, slotCounts
}

// capRemaining computes the wallet ceiling headroom from currently
// committed position caps. The contract is the authoritative source;
// this is the client-side projection.
func (s *Service) capRemaining(positions []model.Position) decimal.Decimal {
	committed := decimal.Zero
	for i := range positions {
		committed = committed.Add(positions[i].CapUsd)
	}
	remaining := s.userCapCeiling.Sub(committed)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
