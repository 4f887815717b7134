//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"subscription-payments/internal/domain"
)

// --- Payment Session Tests ---

func TestNewPaymentSession(t *testing.T) {
	t.Run("should create a session with the deadline derived from the horizon", func(t *testing.T) {
		s, err := NewPaymentSession("sess-1", "user-1", "plan-pro", "u@example.com", 10*time.Minute)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if s.ID != "sess-1" || s.UserID != "user-1" || s.PlanID != "plan-pro" {
			t.Errorf("identity fields not carried: %+v", s)
		}
		remaining := time.Until(s.Deadline)
		if remaining < 9*time.Minute || remaining > 10*time.Minute {
			t.Errorf("deadline %v is not ~10m out", remaining)
		}
		if s.WinningSource != "" {
			t.Error("winning source must be empty until a resolution commits")
		}
	})

	t.Run("should fail on missing identity or horizon", func(t *testing.T) {
		cases := []struct {
			name    string
			id      string
			userID  string
			planID  string
			horizon time.Duration
		}{
			{"empty id", "", "user-1", "plan-pro", time.Minute},
			{"empty user", "sess-1", "", "plan-pro", time.Minute},
			{"empty plan", "sess-1", "user-1", "", time.Minute},
			{"zero horizon", "sess-1", "user-1", "plan-pro", 0},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				if _, err := NewPaymentSession(tc.id, tc.userID, tc.planID, "", tc.horizon); !errors.Is(err, domain.ErrInvalidArgument) {
					t.Errorf("expected ErrInvalidArgument, got %v", err)
				}
			})
		}
	})
}

func TestPaymentSession_PaymentRef(t *testing.T) {
	s, _ := NewPaymentSession("sess-1", "user-1", "plan-pro", "", time.Minute)

	if _, _, err := s.PaymentRef(); !errors.Is(err, domain.ErrMissingPaymentRef) {
		t.Errorf("expected ErrMissingPaymentRef before any gateway id, got %v", err)
	}

	s.GatewayPreferenceID = "pref-1"
	paymentID, preferenceID, err := s.PaymentRef()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if paymentID != "" || preferenceID != "pref-1" {
		t.Errorf("ref = (%q, %q), want ('', 'pref-1')", paymentID, preferenceID)
	}

	s.GatewayPaymentID = "mp-7"
	paymentID, _, _ = s.PaymentRef()
	if paymentID != "mp-7" {
		t.Errorf("payment id = %q, want mp-7", paymentID)
	}
}

func TestSignalOutcome_Terminal(t *testing.T) {
	if !OutcomeApproved.Terminal() || !OutcomeRejected.Terminal() {
		t.Error("approved and rejected must be terminal")
	}
	if OutcomeStillPending.Terminal() {
		t.Error("still pending must not be terminal")
	}
}

func TestOutcomeForStatus(t *testing.T) {
	cases := map[string]SignalOutcome{
		"approved":     OutcomeApproved,
		"rejected":     OutcomeRejected,
		"cancelled":    OutcomeRejected,
		"pending":      OutcomeStillPending,
		"in_process":   OutcomeStillPending,
		"in_mediation": OutcomeStillPending,
		"":             OutcomeStillPending,
	}
	for status, want := range cases {
		if got := OutcomeForStatus(status); got != want {
			t.Errorf("OutcomeForStatus(%q) = %s, want %s", status, got, want)
		}
	}
}

// --- Subscription Tests ---

func TestUserSubscription_ActiveFor(t *testing.T) {
	sub := &UserSubscription{UserID: "user-1", PlanID: "plan-pro", Status: SubscriptionStatusActive}
	if !sub.ActiveFor("plan-pro") {
		t.Error("active record for the plan must confirm")
	}
	if sub.ActiveFor("plan-basic") {
		t.Error("active record for another plan must not confirm")
	}
	sub.Status = SubscriptionStatusPending
	if sub.ActiveFor("plan-pro") {
		t.Error("pending record must not confirm")
	}
	var nilSub *UserSubscription
	if nilSub.ActiveFor("plan-pro") {
		t.Error("nil record must not confirm")
	}
}

func TestNewSubscriptionPlan(t *testing.T) {
	t.Run("should create a valid plan", func(t *testing.T) {
		p, err := NewSubscriptionPlan("plan-pro", "Pro", 30, 990, "USD")
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if p.DurationDays != 30 || p.PriceCents != 990 {
			t.Errorf("plan fields not carried: %+v", p)
		}
	})

	t.Run("should fail on non-positive price or duration", func(t *testing.T) {
		if _, err := NewSubscriptionPlan("plan-pro", "Pro", 0, 990, "USD"); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for zero duration, got %v", err)
		}
		if _, err := NewSubscriptionPlan("plan-pro", "Pro", 30, 0, "USD"); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for zero price, got %v", err)
		}
	})
}
