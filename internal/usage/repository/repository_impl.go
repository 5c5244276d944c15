package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/faturolabs/faturo/internal/usage/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindOpen(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*domain.UsageRecord, error) {
	return r.findOpen(ctx, db, tenantID, false)
}

func (r *repo) FindOpenForUpdate(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*domain.UsageRecord, error) {
	return r.findOpen(ctx, db, tenantID, true)
}

func (r *repo) findOpen(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, lock bool) (*domain.UsageRecord, error) {
	query := `SELECT id, tenant_id, period_start, period_end, consumed_units, limit_units,
			status, archived_at, created_at, updated_at
		 FROM tenant_usage
		 WHERE tenant_id = ? AND archived_at IS NULL
		 LIMIT 1`
	// sqlite has a single writer and no row locks.
	if lock && db.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}

	var item domain.UsageRecord
	err := db.WithContext(ctx).Raw(query, tenantID).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rec *domain.UsageRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tenant_usage (
			id, tenant_id, period_start, period_end, consumed_units, limit_units,
			status, archived_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.TenantID,
		rec.PeriodStart,
		rec.PeriodEnd,
		rec.ConsumedUnits,
		rec.LimitUnits,
		rec.Status,
		rec.ArchivedAt,
		rec.CreatedAt,
		rec.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, rec *domain.UsageRecord) error {
	return db.WithContext(ctx).Exec(
		`UPDATE tenant_usage
		 SET period_start = ?,
		     period_end = ?,
		     consumed_units = ?,
		     limit_units = ?,
		     status = ?,
		     updated_at = ?
		 WHERE id = ? AND archived_at IS NULL`,
		rec.PeriodStart,
		rec.PeriodEnd,
		rec.ConsumedUnits,
		rec.LimitUnits,
		rec.Status,
		rec.UpdatedAt,
		rec.ID,
	).Error
}

func (r *repo) ListExpired(ctx context.Context, db *gorm.DB, limit int) ([]domain.UsageRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []domain.UsageRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, period_start, period_end, consumed_units, limit_units,
			status, archived_at, created_at, updated_at
		 FROM tenant_usage
		 WHERE archived_at IS NULL AND period_end < ?
		 ORDER BY period_end ASC
		 LIMIT ?`,
		time.Now().UTC(),
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) Archive(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE tenant_usage
		 SET archived_at = ?, updated_at = ?
		 WHERE id = ? AND archived_at IS NULL`,
		time.Now().UTC(),
		time.Now().UTC(),
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
