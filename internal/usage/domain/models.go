// Package domain contains persistence models and state transitions for
// tenant usage accounting.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// UsageStatus represents the billing standing of a tenant within a period.
type UsageStatus string

const (
	UsageStatusActive    UsageStatus = "ACTIVE"
	UsageStatusOverLimit UsageStatus = "OVER_LIMIT"
	UsageStatusSuspended UsageStatus = "SUSPENDED"
)

// UsageRecord accumulates billable usage for a tenant within a billing
// period. Exactly one open (archived_at IS NULL) record exists per tenant;
// closed periods are retained for audit.
type UsageRecord struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID      snowflake.ID `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	PeriodStart   time.Time    `gorm:"column:period_start;not null" json:"period_start"`
	PeriodEnd     time.Time    `gorm:"column:period_end;not null" json:"period_end"`
	ConsumedUnits int64        `gorm:"column:consumed_units;not null;default:0" json:"consumed_units"`
	LimitUnits    int64        `gorm:"column:limit_units;not null" json:"limit_units"`
	Status        UsageStatus  `gorm:"type:text;not null" json:"status"`
	ArchivedAt    *time.Time   `gorm:"column:archived_at" json:"archived_at,omitempty"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "tenant_usage" }

// EventType is the canonical billing event vocabulary. Webhook deliveries are
// normalized into these before reconciliation; usage.increment is produced
// internally by order creation and never accepted from the provider.
type EventType string

const (
	EventPaymentConfirmed     EventType = "payment.confirmed"
	EventPaymentFailed        EventType = "payment.failed"
	EventPaymentRefunded      EventType = "payment.refunded"
	EventSubscriptionCanceled EventType = "subscription.canceled"
	EventUsageIncrement       EventType = "usage.increment"
)

// Event is a single reconciliation input for one tenant.
type Event struct {
	Type       EventType
	TenantID   snowflake.ID
	Delta      int64 // usage.increment only
	PeriodDays int   // payment.confirmed only; 0 means the default
	OccurredAt time.Time
}

var (
	ErrNotFound         = errors.New("usage_record_not_found")
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidDelta     = errors.New("invalid_delta")
	ErrUnknownEventType = errors.New("unknown_event_type")
)
