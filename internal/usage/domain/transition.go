package domain

import "time"

// DefaultPeriodDays is the length of a paid usage period when the event does
// not carry one.
const DefaultPeriodDays = 30

// Apply folds a billing event into a usage record and returns the new state.
// It is a pure function: the single write belongs to the caller's
// transaction, which keeps the policy unit-testable without a database.
//
// Invariants:
//   - consumed_units never decreases except through the period reset on a
//     confirming payment.
//   - SUSPENDED is sticky against usage.increment; only payment.confirmed
//     revives a tenant.
func Apply(rec UsageRecord, ev Event, now time.Time) (UsageRecord, error) {
	switch ev.Type {
	case EventPaymentConfirmed:
		days := ev.PeriodDays
		if days <= 0 {
			days = DefaultPeriodDays
		}
		extension := time.Duration(days) * 24 * time.Hour

		// A payment opens a new period when the current one has lapsed or
		// the tenant ran over its quota; a mid-period payment only extends.
		if !now.Before(rec.PeriodEnd) || rec.ConsumedUnits > rec.LimitUnits {
			rec.PeriodStart = now
			rec.PeriodEnd = now.Add(extension)
			rec.ConsumedUnits = 0
		} else {
			rec.PeriodEnd = rec.PeriodEnd.Add(extension)
		}
		rec.Status = UsageStatusActive
		return rec, nil

	case EventPaymentFailed, EventPaymentRefunded:
		if rec.Status != UsageStatusSuspended {
			rec.Status = UsageStatusOverLimit
		}
		return rec, nil

	case EventSubscriptionCanceled:
		rec.Status = UsageStatusSuspended
		return rec, nil

	case EventUsageIncrement:
		if ev.Delta < 0 {
			return rec, ErrInvalidDelta
		}
		rec.ConsumedUnits += ev.Delta
		if rec.ConsumedUnits > rec.LimitUnits && rec.Status == UsageStatusActive {
			rec.Status = UsageStatusOverLimit
		}
		return rec, nil

	default:
		return rec, ErrUnknownEventType
	}
}
