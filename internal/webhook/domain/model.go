// Package domain contains persistence models for inbound payment-provider
// webhook events.
package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/faturolabs/faturo/internal/usage/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventStatus is the processing state of one delivery. Records reach a
// terminal state exactly once and are retained for audit and idempotency
// lookups; FAILED is retryable, PROCESSED and REJECTED are not.
type EventStatus string

const (
	EventStatusPending   EventStatus = "PENDING"
	EventStatusProcessed EventStatus = "PROCESSED"
	EventStatusRejected  EventStatus = "REJECTED"
	EventStatusFailed    EventStatus = "FAILED"
)

// EventRecord is one inbound callback. (provider, provider_event_id) is the
// idempotency key: the storage uniqueness constraint is the authoritative
// lock against concurrent deliveries of the same event.
type EventRecord struct {
	ID              snowflake.ID   `gorm:"primaryKey"`
	Provider        string         `gorm:"type:text;not null;uniqueIndex:ux_webhook_events_provider_event,priority:1"`
	ProviderEventID string         `gorm:"column:provider_event_id;type:text;not null;uniqueIndex:ux_webhook_events_provider_event,priority:2"`
	EventType       string         `gorm:"column:event_type;type:text;not null"`
	TenantID        snowflake.ID   `gorm:"column:tenant_id;index"`
	Payload         datatypes.JSON `gorm:"type:jsonb;not null"`
	Status          EventStatus    `gorm:"type:text;not null"`
	Note            string         `gorm:"type:text"`
	ReceivedAt      time.Time      `gorm:"column:received_at;not null"`
	ProcessedAt     *time.Time     `gorm:"column:processed_at"`
}

// TableName sets the database table name.
func (EventRecord) TableName() string { return "webhook_events" }

// InboundEvent is the provider envelope after verification and parsing.
// Type is empty when the provider event is structurally valid but not part
// of the canonical vocabulary (forward compatibility: accepted and skipped).
type InboundEvent struct {
	Provider          string
	ProviderEventID   string
	ProviderEventType string
	Type              usagedomain.EventType
	TenantID          snowflake.ID
	OccurredAt        time.Time
	RawPayload        []byte
}

// Adapter verifies and normalizes one provider's webhook format. Verify must
// run before any parsing or persistence and must not touch the store.
type Adapter interface {
	Provider() string
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*InboundEvent, error)
}

// Service is the webhook ingestion gateway.
type Service interface {
	HandleIncoming(ctx context.Context, payload []byte, headers http.Header) error
}

// EventLocker sheds racing deliveries of one provider event before they
// reach the store. Best effort: an error means the lock backend is
// unavailable, not that the event is held; the storage uniqueness
// constraint stays authoritative either way.
type EventLocker interface {
	TryLockEvent(ctx context.Context, provider, providerEventID string) (token string, acquired bool, err error)
	ReleaseEvent(ctx context.Context, provider, providerEventID, token string) error
}

// Repository isolates webhook_events persistence.
type Repository interface {
	// InsertEvent inserts the PENDING intent record; returns false without
	// error when the idempotency key already exists.
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	MarkStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status EventStatus, note string, processedAt time.Time) error
	// Reclaim flips a FAILED record back to PENDING for a clean retry;
	// returns false when another delivery took it first.
	Reclaim(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}

var (
	ErrUnauthorized          = errors.New("invalid_webhook_token")
	ErrMalformedPayload      = errors.New("malformed_payload")
	ErrUnknownTenant         = errors.New("unknown_tenant_reference")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrEventInFlight         = errors.New("event_in_flight")
	ErrReconciliationFailed  = errors.New("reconciliation_failed")
)
