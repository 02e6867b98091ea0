package models

import (
	"errors"
	"testing"
	"time"
)

func TestIsValidTransition_FromRunning(t *testing.T) {
	tests := []struct {
		to        TradeStatus
		condition string
	}{
		{StatusTarget, ConditionTargetHit},
		{StatusStoploss, ConditionStoplossHit},
		{StatusManuallyClosed, ConditionManualClose},
	}
	for _, tt := range tests {
		if err := IsValidTransition(StatusRunning, tt.to, tt.condition); err != nil {
			t.Errorf("Running -> %s (%s) should be valid: %v", tt.to, tt.condition, err)
		}
	}
}

func TestIsValidTransition_WrongCondition(t *testing.T) {
	err := IsValidTransition(StatusRunning, StatusTarget, ConditionStoplossHit)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestIsValidTransition_TerminalNeverReopens(t *testing.T) {
	terminal := []TradeStatus{StatusTarget, StatusStoploss, StatusManuallyClosed}
	targets := []TradeStatus{StatusRunning, StatusTarget, StatusStoploss, StatusManuallyClosed}
	for _, from := range terminal {
		for _, to := range targets {
			for _, cond := range []string{"", ConditionTargetHit, ConditionStoplossHit, ConditionManualClose} {
				if err := IsValidTransition(from, to, cond); !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("%s -> %s (%q) should be rejected, got %v", from, to, cond, err)
				}
			}
		}
	}
}

func TestTradeClose_SetsClosingFields(t *testing.T) {
	tr := Trade{ID: "NIFTY_14-Aug-2025_HighReward", Status: StatusRunning}
	at := time.Date(2025, 8, 11, 10, 17, 42, 0, time.UTC)

	if err := tr.Close(StatusTarget, ConditionTargetHit, 12750, at); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if tr.Status != StatusTarget {
		t.Errorf("status = %s, want Target", tr.Status)
	}
	if tr.FinalPnL == nil || *tr.FinalPnL != 12750 {
		t.Errorf("final_pnl = %v, want 12750", tr.FinalPnL)
	}
	if tr.ClosedDate != "2025-08-11 10:17" {
		t.Errorf("closed_date = %q", tr.ClosedDate)
	}
	if err := tr.ValidateState(); err != nil {
		t.Errorf("closed trade should validate: %v", err)
	}

	// A second close is rejected and leaves the record untouched.
	err := tr.Close(StatusManuallyClosed, ConditionManualClose, 1, at.Add(time.Hour))
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if *tr.FinalPnL != 12750 || tr.Status != StatusTarget {
		t.Errorf("rejected close mutated trade: %+v", tr)
	}
}

func TestStatusDescription(t *testing.T) {
	for _, s := range []TradeStatus{StatusRunning, StatusTarget, StatusStoploss, StatusManuallyClosed} {
		if StatusDescription(s) == "Unknown state" {
			t.Errorf("missing description for %s", s)
		}
	}
	if StatusDescription("bogus") != "Unknown state" {
		t.Error("unknown status should describe as Unknown state")
	}
}
