package caplimit

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func TestCheckActivation_WithinCeiling(t *testing.T) {
	l := NewLimiter(0)
	if err := l.CheckActivation(d(285_000000), d(15_000000), 3); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckActivation_ExactlyAtCeiling(t *testing.T) {
	l := NewLimiter(0)
	if err := l.CheckActivation(d(15_000000), d(15_000000), 0); err != nil {
		t.Errorf("ceiling boundary should be inclusive, got %v", err)
	}
}

func TestCheckActivation_CeilingExceeded(t *testing.T) {
	l := NewLimiter(0)
	if err := l.CheckActivation(d(10_000000), d(15_000000), 0); err != ErrUserCapExceeded {
		t.Errorf("expected ErrUserCapExceeded, got %v", err)
	}
}

func TestCheckActivation_SlotLimit(t *testing.T) {
	l := NewLimiter(5)

	if err := l.CheckActivation(d(100_000000), d(1_000000), 4); err != nil {
		t.Errorf("4 of 5 slots used should pass, got %v", err)
	}
	if err := l.CheckActivation(d(100_000000), d(1_000000), 5); err != ErrSlotLimitExceeded {
		t.Errorf("expected ErrSlotLimitExceeded, got %v", err)
	}
}

func TestCheckActivation_UnlimitedSlots(t *testing.T) {
	l := NewLimiter(0)
	if err := l.CheckActivation(d(100_000000), d(1_000000), 10000); err != nil {
		t.Errorf("slot limit disabled, expected no error, got %v", err)
	}
}

func TestCheckTopUp(t *testing.T) {
	l := NewLimiter(1)

	// Slot limit must not apply to top-ups.
	if err := l.CheckTopUp(d(30_000000), d(24_000000)); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if err := l.CheckTopUp(d(20_000000), d(24_000000)); err != ErrUserCapExceeded {
		t.Errorf("expected ErrUserCapExceeded, got %v", err)
	}
}
