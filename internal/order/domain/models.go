// Package domain contains the order model and service contract.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Order is one unit-consuming purchase by a tenant. Creating an order is the
// only producer of usage.increment events.
type Order struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID    snowflake.ID `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	Description string       `gorm:"type:text;not null" json:"description"`
	Units       int64        `gorm:"not null" json:"units"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// CreateOrderRequest is the POST /orders body.
type CreateOrderRequest struct {
	Description string `json:"description" binding:"required"`
	Units       int64  `json:"units" binding:"required,gt=0"`
}

// Service creates and reads orders, enforcing the tenant's usage standing.
type Service interface {
	Create(ctx context.Context, tenantID snowflake.ID, req CreateOrderRequest) (*Order, error)
	Get(ctx context.Context, tenantID, orderID snowflake.ID) (*Order, error)
	List(ctx context.Context, tenantID snowflake.ID, limit int) ([]Order, error)
}

// Repository isolates orders persistence.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID, orderID snowflake.ID) (*Order, error)
	List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, limit int) ([]Order, error)
}

var (
	ErrNotFound        = errors.New("order_not_found")
	ErrInvalidOrder    = errors.New("invalid_order")
	ErrTenantSuspended = errors.New("tenant_suspended")
	ErrQuotaExceeded   = errors.New("quota_exceeded")
)
