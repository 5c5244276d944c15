package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Service owns TenantUsageRecord mutations. Orders and webhook reconciliation
// go through it; nothing else writes tenant_usage.
type Service interface {
	// Current returns the tenant's open usage record.
	Current(ctx context.Context, tenantID snowflake.ID) (*UsageRecord, error)

	// Increment applies an internal usage.increment event in its own
	// transaction.
	Increment(ctx context.Context, tenantID snowflake.ID, delta int64) (*UsageRecord, error)

	// ApplyEventTx folds a billing event into the tenant's open record inside
	// the caller's transaction, so the caller can commit it atomically with
	// its own state transition.
	ApplyEventTx(ctx context.Context, tx *gorm.DB, ev Event) (*UsageRecord, error)

	// Rollover archives open records whose period has ended and opens the
	// next period. Returns the number of records rolled.
	Rollover(ctx context.Context) (int, error)
}

// Repository isolates tenant_usage persistence. Methods operate on the
// provided handle so callers control transaction scope.
type Repository interface {
	FindOpen(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*UsageRecord, error)
	FindOpenForUpdate(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*UsageRecord, error)
	Insert(ctx context.Context, db *gorm.DB, rec *UsageRecord) error
	Update(ctx context.Context, db *gorm.DB, rec *UsageRecord) error
	ListExpired(ctx context.Context, db *gorm.DB, limit int) ([]UsageRecord, error)
	Archive(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}
