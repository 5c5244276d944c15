package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/faturolabs/faturo/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (id, tenant_id, description, units, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.TenantID,
		order.Description,
		order.Units,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, orderID snowflake.ID) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, description, units, created_at, updated_at
		 FROM orders
		 WHERE id = ? AND tenant_id = ?
		 LIMIT 1`,
		orderID,
		tenantID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, limit int) ([]domain.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var rows []domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, description, units, created_at, updated_at
		 FROM orders
		 WHERE tenant_id = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		tenantID,
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
