package mint_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/obidua/mint-engine/internal/caplimit"
	"github.com/obidua/mint-engine/internal/mint"
	"github.com/obidua/mint-engine/internal/model"
	"github.com/obidua/mint-engine/internal/session"
	"github.com/obidua/mint-engine/internal/store"
	"github.com/obidua/mint-engine/internal/tier"
)

// usd builds a USD-micros amount.
func usd(micros int64) decimal.Decimal {
	return decimal.NewFromInt(micros)
}

type testEnv struct {
	svc    *mint.Service
	ms     *store.MemoryStore
	router chi.Router
	now    time.Time
}

// newTestEnv creates a test Service with in-memory store, seeded tier
// table, and a pinned clock advanced via env.advance.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ms := store.NewMemoryStore()
	if err := ms.SeedTiers(context.Background(), tier.Defaults()); err != nil {
		t.Fatalf("failed to seed tiers: %v", err)
	}

	env := &testEnv{
		ms:  ms,
		now: time.Unix(1_700_000_000, 0).UTC(),
	}
	env.svc = mint.NewService(ms, caplimit.NewLimiter(2), session.NewManager(), nil)
	env.svc.SetClock(func() time.Time { return env.now })

	r := chi.NewRouter()
	r.Mount("/api/v1", env.svc.Routes())
	env.router = r
	return env
}

func (env *testEnv) advance(d time.Duration) {
	env.now = env.now.Add(d)
}

func (env *testEnv) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func (env *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func (env *testEnv) activate(t *testing.T, addr string, tierID int64, horizon string, principal decimal.Decimal) *httptest.ResponseRecorder {
	t.Helper()
	return env.post(t, "/api/v1/activate", mint.ActivateRequest{
		UserAddress:  addr,
		TierID:       tierID,
		Horizon:      horizon,
		PrincipalUsd: principal,
	})
}

// --- Activation tests ---

func TestActivate_FirstSlot(t *testing.T) {
	env := newTestEnv(t)

	w := env.activate(t, "0xabc", 1, "2X", usd(5_000000))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp mint.ActivateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Ref != "MINT-S1-P1" {
		t.Errorf("ref = %q, want MINT-S1-P1", resp.Ref)
	}
	if !resp.Position.CapUsd.Equal(usd(10_000000)) {
		t.Errorf("cap = %s, want 10000000", resp.Position.CapUsd)
	}
	if resp.Position.TotalDays != 990 {
		t.Errorf("total days = %d, want 990", resp.Position.TotalDays)
	}
	if !resp.Position.Active {
		t.Error("position should be active")
	}
}

func TestActivate_BelowMinimum(t *testing.T) {
	env := newTestEnv(t)

	w := env.activate(t, "0xabc", 1, "2X", usd(4_999999))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestActivate_TierLocked(t *testing.T) {
	env := newTestEnv(t)

	// Tier 2 before tier 1 is locked.
	w := env.activate(t, "0xabc", 2, "2X", usd(10_000000))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}

	// Opening tier 1 unlocks tier 2.
	if w := env.activate(t, "0xabc", 1, "2X", usd(5_000000)); w.Code != http.StatusCreated {
		t.Fatalf("tier 1 activation failed: %d", w.Code)
	}
	if w := env.activate(t, "0xabc", 2, "2X", usd(10_000000)); w.Code != http.StatusCreated {
		t.Fatalf("tier 2 should now be unlocked: %d: %s", w.Code, w.Body.String())
	}
}

func TestActivate_SecondSlotLowerMinimum(t *testing.T) {
	env := newTestEnv(t)

	if w := env.activate(t, "0xabc", 1, "2X", usd(5_000000)); w.Code != http.StatusCreated {
		t.Fatalf("first slot failed: %d", w.Code)
	}

	// Additional slots on an opened tier only need $1.00.
	w := env.activate(t, "0xabc", 1, "3X", usd(1_000000))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp mint.ActivateResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Ref != "MINT-S1-P2" {
		t.Errorf("ref = %q, want MINT-S1-P2", resp.Ref)
	}
	if !resp.Position.CapUsd.Equal(usd(3_000000)) {
		t.Errorf("3X cap = %s, want 3000000", resp.Position.CapUsd)
	}
}

func TestActivate_SlotLimit(t *testing.T) {
	env := newTestEnv(t) // limiter allows 2 slots per tier

	env.activate(t, "0xabc", 1, "2X", usd(5_000000))
	env.activate(t, "0xabc", 1, "2X", usd(1_000000))

	w := env.activate(t, "0xabc", 1, "2X", usd(1_000000))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on third slot, got %d: %s", w.Code, w.Body.String())
	}
}

func TestActivate_WalletCeiling(t *testing.T) {
	env := newTestEnv(t)
	env.svc.SetUserCapCeiling(usd(12_000000))

	if w := env.activate(t, "0xabc", 1, "2X", usd(5_000000)); w.Code != http.StatusCreated {
		t.Fatalf("first activation failed: %d", w.Code)
	}

	// Remaining headroom is exactly 2.00; a 2.00 cap fits inclusively.
	if w := env.activate(t, "0xabc", 1, "2X", usd(1_000000)); w.Code != http.StatusCreated {
		t.Fatalf("activation at exact ceiling should pass: %d: %s", w.Code, w.Body.String())
	}

	// Ceiling exhausted; tier 2 is unlocked but has no cap headroom.
	if w := env.activate(t, "0xabc", 2, "2X", usd(10_000000)); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 past the ceiling, got %d: %s", w.Code, w.Body.String())
	}
}

func TestActivate_WithUplineRecordsCommissions(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, "/api/v1/activate", mint.ActivateRequest{
		UserAddress:  "0xbuyer",
		TierID:       1,
		Horizon:      "2X",
		PrincipalUsd: usd(100_000000),
		Upline:       []string{"0xl1", "0xl2"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("activation failed: %d: %s", w.Code, w.Body.String())
	}

	var resp mint.ActivateResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Commissions != 2 {
		t.Fatalf("commissions = %d, want 2", resp.Commissions)
	}

	cw := env.get(t, "/api/v1/commissions/0xl1")
	if cw.Code != http.StatusOK {
		t.Fatalf("commission lookup failed: %d", cw.Code)
	}
	var recs []model.CommissionRecord
	json.Unmarshal(cw.Body.Bytes(), &recs)
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	// Level 1 is 5% of the activation principal.
	if !recs[0].CommissionUsd.Equal(usd(5_000000)) {
		t.Errorf("L1 commission = %s, want 5000000", recs[0].CommissionUsd)
	}
}

// --- Claim tests ---

func TestClaim_AfterThreeDays(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t, "0xabc", 1, "2X", usd(5_000000))

	env.advance(3*24*time.Hour + time.Minute)

	w := env.post(t, "/api/v1/claim", mint.ClaimRequest{
		UserAddress: "0xabc",
		Ref:         "MINT-S1-P1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp mint.ClaimResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	// Daily ROI at 20.2 bp of $5.00 is 10100 micros; three full days.
	if !resp.Record.AmountUsd.Equal(usd(30300)) {
		t.Errorf("amount = %s, want 30300", resp.Record.AmountUsd)
	}
	if resp.Record.Days != 3 {
		t.Errorf("days = %d, want 3", resp.Record.Days)
	}
	if resp.Position.ClaimedDays != 3 {
		t.Errorf("claimed days = %d, want 3", resp.Position.ClaimedDays)
	}
}

func TestClaim_NothingPending(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t, "0xabc", 1, "2X", usd(5_000000))

	// Less than one full day elapsed.
	env.advance(23 * time.Hour)

	w := env.post(t, "/api/v1/claim", mint.ClaimRequest{
		UserAddress: "0xabc",
		Ref:         "MINT-S1-P1",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestClaim_UnknownPosition(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, "/api/v1/claim", mint.ClaimRequest{
		UserAddress: "0xabc",
		Ref:         "MINT-S1-P1",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestClaim_BadRef(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, "/api/v1/claim", mint.ClaimRequest{
		UserAddress: "0xabc",
		Ref:         "SRV-1-1",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestClaim_CapClosesPosition(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t, "0xabc", 1, "2X", usd(5_000000))

	// Far past the schedule end: payout clamps at the 2x cap.
	env.advance(2000 * 24 * time.Hour)

	w := env.post(t, "/api/v1/claim", mint.ClaimRequest{
		UserAddress: "0xabc",
		Ref:         "MINT-S1-P1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp mint.ClaimResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Record.AmountUsd.Equal(usd(10_000000)) {
		t.Errorf("amount = %s, want full 2x cap 10000000", resp.Record.AmountUsd)
	}
	if resp.Position.Active {
		t.Error("position should be closed at cap")
	}

	// Nothing further to claim from a closed position.
	w2 := env.post(t, "/api/v1/claim", mint.ClaimRequest{
		UserAddress: "0xabc",
		Ref:         "MINT-S1-P1",
	})
	if w2.Code != http.StatusConflict {
		t.Fatalf("expected 409 on second claim, got %d", w2.Code)
	}
}

// --- Top-up tests ---

func TestTopUp_ResetsCappedPosition(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t, "0xabc", 1, "2X", usd(5_000000))
	env.advance(2000 * 24 * time.Hour)
	env.post(t, "/api/v1/claim", mint.ClaimRequest{UserAddress: "0xabc", Ref: "MINT-S1-P1"})

	w := env.post(t, "/api/v1/topup", mint.TopUpRequest{
		UserAddress:  "0xabc",
		Ref:          "MINT-S1-P1",
		Horizon:      "3X",
		PrincipalUsd: usd(5_000000),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp mint.TopUpResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Position.Active {
		t.Error("topped-up position should be active")
	}
	if !resp.Position.CapUsd.Equal(usd(15_000000)) {
		t.Errorf("new cap = %s, want 15000000", resp.Position.CapUsd)
	}
	if resp.Position.ClaimedDays != 0 || !resp.Position.ClaimedUsd.IsZero() {
		t.Error("top-up should reset claim progress")
	}
	if resp.Position.TotalDays != 1350 {
		t.Errorf("total days = %d, want 1350 for tier 1 3X", resp.Position.TotalDays)
	}

	// Accrual restarts from the top-up time.
	cw := env.post(t, "/api/v1/claim", mint.ClaimRequest{UserAddress: "0xabc", Ref: "MINT-S1-P1"})
	if cw.Code != http.StatusConflict {
		t.Fatalf("expected 409 right after top-up, got %d", cw.Code)
	}
}

func TestTopUp_CapNotReached(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t, "0xabc", 1, "2X", usd(5_000000))

	w := env.post(t, "/api/v1/topup", mint.TopUpRequest{
		UserAddress:  "0xabc",
		Ref:          "MINT-S1-P1",
		Horizon:      "2X",
		PrincipalUsd: usd(5_000000),
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

// --- Tier listing tests ---

func TestListTiers_FreshWallet(t *testing.T) {
	env := newTestEnv(t)

	w := env.get(t, "/api/v1/tiers?address=0xnew")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var views []mint.TierView
	json.Unmarshal(w.Body.Bytes(), &views)
	if len(views) != 5 {
		t.Fatalf("got %d tiers, want 5", len(views))
	}
	if !views[0].AvailableToActivate || views[0].Locked {
		t.Error("tier 1 should be available for a fresh wallet")
	}
	for _, v := range views[1:] {
		if !v.Locked {
			t.Errorf("tier %d should be locked", v.ID)
		}
	}
}

func TestListTiers_AfterActivation(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t, "0xabc", 1, "2X", usd(5_000000))

	w := env.get(t, "/api/v1/tiers?address=0xabc")
	var views []mint.TierView
	json.Unmarshal(w.Body.Bytes(), &views)

	if !views[0].AlreadyActivated {
		t.Error("tier 1 should be activated")
	}
	if views[0].UserSlots != 1 {
		t.Errorf("tier 1 slots = %d, want 1", views[0].UserSlots)
	}
	if !views[1].AvailableToActivate {
		t.Error("tier 2 should be available")
	}
	if !views[2].Locked {
		t.Error("tier 3 should still be locked")
	}
}

// --- Portfolio tests ---

func TestGetPortfolio(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t, "0xabc", 1, "2X", usd(5_000000))
	env.activate(t, "0xabc", 2, "3X", usd(10_000000))

	env.advance(2*24*time.Hour + time.Minute)

	w := env.get(t, "/api/v1/portfolio/0xabc")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp mint.PortfolioResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if len(resp.Positions) != 2 {
		t.Fatalf("got %d positions, want 2", len(resp.Positions))
	}
	if resp.HighestTierActive != 2 {
		t.Errorf("highest tier = %d, want 2", resp.HighestTierActive)
	}
	if !resp.SelfBusinessUsd.Equal(usd(15_000000)) {
		t.Errorf("self business = %s, want 15000000", resp.SelfBusinessUsd)
	}
	if resp.Positions[0].PendingDays != 2 {
		t.Errorf("pending days = %d, want 2", resp.Positions[0].PendingDays)
	}
	// 2 days at 20.2 bp of $5 plus 2 days at 23.8 bp of $10.
	want := usd(2*10100 + 2*23800)
	if !resp.TotalPendingRoiUsd.Equal(want) {
		t.Errorf("total pending = %s, want %s", resp.TotalPendingRoiUsd, want)
	}
}

func TestGetPortfolio_Empty(t *testing.T) {
	env := newTestEnv(t)

	w := env.get(t, "/api/v1/portfolio/0xnobody")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp mint.PortfolioResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Positions) != 0 {
		t.Errorf("got %d positions, want 0", len(resp.Positions))
	}
	if resp.HighestTierActive != 0 {
		t.Errorf("highest tier = %d, want 0", resp.HighestTierActive)
	}
}

// --- Ledger history tests ---

func TestClaimHistory(t *testing.T) {
	env := newTestEnv(t)
	env.activate(t, "0xabc", 1, "2X", usd(5_000000))

	env.advance(24*time.Hour + time.Minute)
	env.post(t, "/api/v1/claim", mint.ClaimRequest{UserAddress: "0xabc", Ref: "MINT-S1-P1"})
	env.advance(24 * time.Hour)
	env.post(t, "/api/v1/claim", mint.ClaimRequest{UserAddress: "0xabc", Ref: "MINT-S1-P1"})

	w := env.get(t, "/api/v1/claims/0xabc")
	var recs []model.ClaimRecord
	json.Unmarshal(w.Body.Bytes(), &recs)
	if len(recs) != 2 {
		t.Fatalf("got %d claim records, want 2", len(recs))
	}
	if recs[0].Days != 1 || recs[1].Days != 1 {
		t.Errorf("each claim should settle one day: %d, %d", recs[0].Days, recs[1].Days)
	}
}

// --- Session tests ---

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, "/api/v1/session", mint.ConnectRequest{Address: "0xABC"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}

	var sess session.Session
	json.Unmarshal(w.Body.Bytes(), &sess)
	if sess.Address != "0xabc" {
		t.Errorf("address = %q, want normalized 0xabc", sess.Address)
	}

	req := httptest.NewRequest("DELETE", "/api/v1/session/0xabc", nil)
	dw := httptest.NewRecorder()
	env.router.ServeHTTP(dw, req)
	if dw.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", dw.Code)
	}
}

func TestConnect_MissingAddress(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, "/api/v1/session", mint.ConnectRequest{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
