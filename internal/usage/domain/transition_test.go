package domain

import (
	"errors"
	"testing"
	"time"
)

func baseRecord(now time.Time) UsageRecord {
	return UsageRecord{
		ID:            1,
		TenantID:      2,
		PeriodStart:   now.Add(-20 * 24 * time.Hour),
		PeriodEnd:     now.Add(10 * 24 * time.Hour),
		ConsumedUnits: 40,
		LimitUnits:    100,
		Status:        UsageStatusActive,
	}
}

func TestApplyPaymentConfirmedMidPeriodExtends(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	rec := baseRecord(now)

	got, err := Apply(rec, Event{Type: EventPaymentConfirmed, TenantID: rec.TenantID}, now)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !got.PeriodEnd.Equal(rec.PeriodEnd.Add(30 * 24 * time.Hour)) {
		t.Fatalf("expected extension, got %v", got.PeriodEnd)
	}
	if got.ConsumedUnits != rec.ConsumedUnits {
		t.Fatalf("mid-period payment must keep consumption, got %d", got.ConsumedUnits)
	}
	if got.Status != UsageStatusActive {
		t.Fatalf("expected ACTIVE, got %s", got.Status)
	}
}

func TestApplyPaymentConfirmedOpensNewPeriod(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		rec  UsageRecord
	}{
		{name: "lapsed period", rec: func() UsageRecord {
			r := baseRecord(now)
			r.PeriodEnd = now.Add(-time.Hour)
			return r
		}()},
		{name: "over quota", rec: func() UsageRecord {
			r := baseRecord(now)
			r.ConsumedUnits = 150
			r.Status = UsageStatusOverLimit
			return r
		}()},
		{name: "suspended and lapsed", rec: func() UsageRecord {
			r := baseRecord(now)
			r.PeriodEnd = now
			r.Status = UsageStatusSuspended
			return r
		}()},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Apply(tc.rec, Event{Type: EventPaymentConfirmed, TenantID: tc.rec.TenantID, PeriodDays: 30}, now)
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			if !got.PeriodStart.Equal(now) {
				t.Fatalf("expected period start %v, got %v", now, got.PeriodStart)
			}
			if !got.PeriodEnd.Equal(now.Add(30 * 24 * time.Hour)) {
				t.Fatalf("expected period end %v, got %v", now.Add(30*24*time.Hour), got.PeriodEnd)
			}
			if got.ConsumedUnits != 0 {
				t.Fatalf("expected reset consumption, got %d", got.ConsumedUnits)
			}
			if got.Status != UsageStatusActive {
				t.Fatalf("expected ACTIVE, got %s", got.Status)
			}
		})
	}
}

func TestApplyPaymentFailureMarksOverLimit(t *testing.T) {
	now := time.Now().UTC()
	for _, typ := range []EventType{EventPaymentFailed, EventPaymentRefunded} {
		rec := baseRecord(now)
		got, err := Apply(rec, Event{Type: typ, TenantID: rec.TenantID}, now)
		if err != nil {
			t.Fatalf("apply %s: %v", typ, err)
		}
		if got.Status != UsageStatusOverLimit {
			t.Fatalf("expected OVER_LIMIT for %s, got %s", typ, got.Status)
		}
		if got.ConsumedUnits != rec.ConsumedUnits {
			t.Fatalf("payment failure must not touch consumption")
		}
	}
}

func TestApplyPaymentFailureKeepsSuspension(t *testing.T) {
	now := time.Now().UTC()
	rec := baseRecord(now)
	rec.Status = UsageStatusSuspended

	got, err := Apply(rec, Event{Type: EventPaymentFailed, TenantID: rec.TenantID}, now)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got.Status != UsageStatusSuspended {
		t.Fatalf("expected SUSPENDED to stick, got %s", got.Status)
	}
}

func TestApplySubscriptionCanceledSuspends(t *testing.T) {
	now := time.Now().UTC()
	rec := baseRecord(now)

	got, err := Apply(rec, Event{Type: EventSubscriptionCanceled, TenantID: rec.TenantID}, now)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got.Status != UsageStatusSuspended {
		t.Fatalf("expected SUSPENDED, got %s", got.Status)
	}
}

func TestApplyUsageIncrement(t *testing.T) {
	now := time.Now().UTC()

	rec := baseRecord(now)
	got, err := Apply(rec, Event{Type: EventUsageIncrement, TenantID: rec.TenantID, Delta: 10}, now)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got.ConsumedUnits != 50 {
		t.Fatalf("expected 50 consumed, got %d", got.ConsumedUnits)
	}
	if got.Status != UsageStatusActive {
		t.Fatalf("expected ACTIVE below quota, got %s", got.Status)
	}

	// Crossing the quota flips the status exactly once.
	got, err = Apply(got, Event{Type: EventUsageIncrement, TenantID: rec.TenantID, Delta: 60}, now)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got.ConsumedUnits != 110 {
		t.Fatalf("expected 110 consumed, got %d", got.ConsumedUnits)
	}
	if got.Status != UsageStatusOverLimit {
		t.Fatalf("expected OVER_LIMIT, got %s", got.Status)
	}
}

func TestApplyUsageIncrementOnSuspendedStaysSuspended(t *testing.T) {
	now := time.Now().UTC()
	rec := baseRecord(now)
	rec.Status = UsageStatusSuspended
	rec.ConsumedUnits = 150

	got, err := Apply(rec, Event{Type: EventUsageIncrement, TenantID: rec.TenantID, Delta: 5}, now)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got.Status != UsageStatusSuspended {
		t.Fatalf("usage must never lift a suspension, got %s", got.Status)
	}
	if got.ConsumedUnits != 155 {
		t.Fatalf("expected 155 consumed, got %d", got.ConsumedUnits)
	}
}

func TestApplyNegativeDeltaRejected(t *testing.T) {
	now := time.Now().UTC()
	rec := baseRecord(now)

	if _, err := Apply(rec, Event{Type: EventUsageIncrement, TenantID: rec.TenantID, Delta: -1}, now); !errors.Is(err, ErrInvalidDelta) {
		t.Fatalf("expected invalid delta, got %v", err)
	}
}

func TestApplyUnknownEventType(t *testing.T) {
	now := time.Now().UTC()
	rec := baseRecord(now)

	if _, err := Apply(rec, Event{Type: "payment.anticipated", TenantID: rec.TenantID}, now); !errors.Is(err, ErrUnknownEventType) {
		t.Fatalf("expected unknown event type, got %v", err)
	}
}

func TestApplyConsumedUnitsMonotonic(t *testing.T) {
	now := time.Now().UTC()
	rec := baseRecord(now)

	for _, typ := range []EventType{EventPaymentFailed, EventPaymentRefunded, EventSubscriptionCanceled} {
		got, err := Apply(rec, Event{Type: typ, TenantID: rec.TenantID}, now)
		if err != nil {
			t.Fatalf("apply %s: %v", typ, err)
		}
		if got.ConsumedUnits < rec.ConsumedUnits {
			t.Fatalf("%s decreased consumption", typ)
		}
	}
}
