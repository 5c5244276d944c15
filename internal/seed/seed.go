// Package seed bootstraps a default tenant so a fresh install can take
// webhooks and orders immediately.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/faturolabs/faturo/internal/tenant/domain"
	usagedomain "github.com/faturolabs/faturo/internal/usage/domain"
	"gorm.io/gorm"
)

const (
	defaultTenantName  = "Default"
	defaultTenantEmail = "owner@faturo.local"

	// DefaultAPIKey is for local development only; production installs
	// create real keys and disable seeding.
	DefaultAPIKey = "faturo_dev_key"

	defaultLimitUnits = 1000
	defaultPeriodDays = 30
)

// EnsureDefaultTenant seeds a tenant, an API key, and an open usage period.
// It is idempotent and safe to run on every startup.
func EnsureDefaultTenant(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenant, err := ensureTenantTx(ctx, tx, node)
		if err != nil {
			return err
		}
		if err := ensureAPIKeyTx(ctx, tx, node, tenant.ID); err != nil {
			return err
		}
		return ensureUsagePeriodTx(ctx, tx, node, tenant.ID)
	})
}

func ensureTenantTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (*tenantdomain.Tenant, error) {
	var tenant tenantdomain.Tenant
	err := tx.WithContext(ctx).
		Where("name = ?", defaultTenantName).
		First(&tenant).Error
	if err == nil {
		return &tenant, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	tenant = tenantdomain.Tenant{
		ID:        node.Generate(),
		Name:      defaultTenantName,
		Email:     defaultTenantEmail,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&tenant).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}

func ensureAPIKeyTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, tenantID snowflake.ID) error {
	hash := tenantdomain.HashAPIKey(DefaultAPIKey)

	var key tenantdomain.APIKey
	err := tx.WithContext(ctx).
		Where("key_hash = ?", hash).
		First(&key).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	key = tenantdomain.APIKey{
		ID:       node.Generate(),
		TenantID: tenantID,
		Name:     "default",
		Scopes: []string{
			tenantdomain.ScopeOrdersRead,
			tenantdomain.ScopeOrdersWrite,
			tenantdomain.ScopeUsageRead,
		},
		KeyHash:   hash,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	return tx.WithContext(ctx).Create(&key).Error
}

func ensureUsagePeriodTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, tenantID snowflake.ID) error {
	var count int64
	err := tx.WithContext(ctx).
		Model(&usagedomain.UsageRecord{}).
		Where("tenant_id = ? AND archived_at IS NULL", tenantID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	rec := usagedomain.UsageRecord{
		ID:            node.Generate(),
		TenantID:      tenantID,
		PeriodStart:   now,
		PeriodEnd:     now.Add(defaultPeriodDays * 24 * time.Hour),
		ConsumedUnits: 0,
		LimitUnits:    defaultLimitUnits,
		Status:        usagedomain.UsageStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return tx.WithContext(ctx).Create(&rec).Error
}
